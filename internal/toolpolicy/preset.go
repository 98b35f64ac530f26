// Package toolpolicy implements tool-execution policy: named presets
// controlling command allowlists, byte/time caps, and sandbox mode,
// plus JSON-schema validation of tool-call arguments before execution.
package toolpolicy

import "time"

// SandboxMode selects how aggressively a tool executor isolates the
// command it runs.
type SandboxMode string

const (
	SandboxNone       SandboxMode = "none"
	SandboxRestricted SandboxMode = "restricted"
	SandboxIsolated   SandboxMode = "isolated"
)

// Preset names a named bundle of defaults (spec "Tool policy preset").
type Preset string

const (
	PresetPermissive Preset = "permissive"
	PresetBalanced   Preset = "balanced"
	PresetStrict     Preset = "strict"
	PresetHardened   Preset = "hardened"
)

// Policy is the fully resolved set of limits a tool call is checked
// against: a preset's defaults with any explicit overrides applied.
type Policy struct {
	Preset           Preset
	MaxOutputBytes   int
	MaxExecutionTime time.Duration
	Sandbox          SandboxMode
	// CommandAllowlist is nil for presets that don't restrict by
	// command name (permissive); non-nil means only listed commands
	// (by base name) may run.
	CommandAllowlist map[string]bool
}

// defaultCommandAllowlist is shared by the strict and hardened
// presets: a conservative set of read-only/inspection commands.
var defaultCommandAllowlist = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true,
	"echo": true, "pwd": true, "head": true, "tail": true,
}

// PresetDefaults returns the baseline Policy for a named preset.
func PresetDefaults(preset Preset) Policy {
	switch preset {
	case PresetPermissive:
		return Policy{
			Preset:           PresetPermissive,
			MaxOutputBytes:   10 * 1024 * 1024,
			MaxExecutionTime: 5 * time.Minute,
			Sandbox:          SandboxNone,
			CommandAllowlist: nil,
		}
	case PresetStrict:
		return Policy{
			Preset:           PresetStrict,
			MaxOutputBytes:   256 * 1024,
			MaxExecutionTime: 15 * time.Second,
			Sandbox:          SandboxRestricted,
			CommandAllowlist: cloneAllowlist(defaultCommandAllowlist),
		}
	case PresetHardened:
		return Policy{
			Preset:           PresetHardened,
			MaxOutputBytes:   64 * 1024,
			MaxExecutionTime: 5 * time.Second,
			Sandbox:          SandboxIsolated,
			CommandAllowlist: cloneAllowlist(defaultCommandAllowlist),
		}
	default: // PresetBalanced
		return Policy{
			Preset:           PresetBalanced,
			MaxOutputBytes:   2 * 1024 * 1024,
			MaxExecutionTime: 60 * time.Second,
			Sandbox:          SandboxRestricted,
			CommandAllowlist: nil,
		}
	}
}

func cloneAllowlist(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Overrides carries the subset of Policy fields a caller wants to
// change from the preset baseline. A nil/zero field leaves the preset
// value untouched.
type Overrides struct {
	MaxOutputBytes   *int
	MaxExecutionTime *time.Duration
	Sandbox          *SandboxMode
	AllowCommands    []string
	DenyCommands     []string
}

// Resolve builds the effective Policy for preset with overrides applied.
// AllowCommands replaces the allowlist outright; DenyCommands removes
// entries from whatever allowlist results (preset's or AllowCommands').
func Resolve(preset Preset, overrides Overrides) Policy {
	policy := PresetDefaults(preset)

	if overrides.MaxOutputBytes != nil {
		policy.MaxOutputBytes = *overrides.MaxOutputBytes
	}
	if overrides.MaxExecutionTime != nil {
		policy.MaxExecutionTime = *overrides.MaxExecutionTime
	}
	if overrides.Sandbox != nil {
		policy.Sandbox = *overrides.Sandbox
	}
	if len(overrides.AllowCommands) > 0 {
		policy.CommandAllowlist = make(map[string]bool, len(overrides.AllowCommands))
		for _, cmd := range overrides.AllowCommands {
			policy.CommandAllowlist[cmd] = true
		}
	}
	for _, cmd := range overrides.DenyCommands {
		if policy.CommandAllowlist != nil {
			delete(policy.CommandAllowlist, cmd)
		}
	}
	return policy
}

// AllowsCommand reports whether cmd may run under this policy. A nil
// allowlist allows every command (the permissive/balanced default).
func (p Policy) AllowsCommand(cmd string) bool {
	if p.CommandAllowlist == nil {
		return true
	}
	return p.CommandAllowlist[cmd]
}
