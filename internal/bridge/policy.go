package bridge

import "github.com/haasonsaas/tau/pkg/models"

// PolicyDecision is the outcome of a pairing + RBAC check against one
// BridgeEvent.
type PolicyDecision struct {
	Allowed    bool
	Enforced   bool // false means the policy ran in permissive/log-only mode
	ReasonCode string
}

// PolicyChecker decides whether an event may proceed to dispatch. The
// pairing policy (actor, channel) and RBAC action lookup are both
// concerns of the implementation, not this interface.
type PolicyChecker interface {
	Check(event models.BridgeEvent, rbacAction string) PolicyDecision
}

// AllowAllPolicy is a permissive PolicyChecker: every event is allowed
// and reported as unenforced, for deployments with pairing/RBAC
// disabled.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Check(event models.BridgeEvent, rbacAction string) PolicyDecision {
	return PolicyDecision{Allowed: true, Enforced: false}
}

// PairingTable is a simple per-(actor, channel) allow/deny PolicyChecker
// with an RBAC role-to-action table layered on top. A nil table in
// either map means "no restriction for this dimension".
type PairingTable struct {
	// AllowedActors, keyed by conversation id, lists actor ids paired to
	// that channel. An empty slice means unrestricted.
	AllowedActors map[string][]string
	// RoleActions maps a role name to the set of RBAC actions it may
	// invoke. Roles come from ActorRoles.
	RoleActions map[string]map[string]bool
	// ActorRoles maps actor id to role name.
	ActorRoles map[string]string
	// Enforce, when false, runs checks for telemetry only and always
	// allows (reason codes still reflect what would have been denied).
	Enforce bool
}

func (p *PairingTable) Check(event models.BridgeEvent, rbacAction string) PolicyDecision {
	decision := PolicyDecision{Allowed: true, Enforced: p.Enforce}

	if allowed, ok := p.AllowedActors[event.ConversationID]; ok && len(allowed) > 0 {
		if !containsString(allowed, event.ActorID) {
			decision.Allowed = false
			decision.ReasonCode = "pairing_not_allowed"
		}
	}

	if decision.Allowed && rbacAction != "" && p.RoleActions != nil {
		role := p.ActorRoles[event.ActorID]
		actions, ok := p.RoleActions[role]
		if !ok || !actions[rbacAction] {
			decision.Allowed = false
			decision.ReasonCode = "rbac_action_denied"
		}
	}

	if !p.Enforce {
		decision.Allowed = true
	}
	return decision
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
