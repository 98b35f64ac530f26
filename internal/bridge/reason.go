package bridge

import "github.com/haasonsaas/tau/pkg/models"

// deriveReasonCodes implements spec §4.5's reason-code mapping. Order
// of insertion matters: callers (and tests) may depend on the returned
// slice's ordering to find the "dominant" reason.
func deriveReasonCodes(report *models.MultiChannelRuntimeCycleReport) []string {
	var codes []string

	if report.Discovered > report.Queued {
		codes = append(codes, models.ReasonQueueBackpressure)
	}
	if report.Duplicates > 0 {
		codes = append(codes, models.ReasonDuplicateEventsSkipped)
	}
	if report.RetryAttempts > 0 {
		codes = append(codes, models.ReasonRetryAttempted)
	}
	if report.TransientFailures > 0 {
		codes = append(codes, models.ReasonTransientFailures)
	}
	if report.Failed > 0 {
		codes = append(codes, models.ReasonEventProcessingFail)
	}
	if len(codes) == 0 {
		codes = append(codes, models.ReasonHealthyCycle)
	}

	if report.PolicyEnforced > 0 {
		codes = append(codes, models.ReasonPolicyEnforced)
	} else if report.PolicyChecked > 0 {
		codes = append(codes, models.ReasonPolicyPermissive)
	}
	if report.PolicyDenied > 0 {
		codes = append(codes, models.ReasonPolicyDeniedEvents)
	}
	if report.TypingEvents > 0 || report.PresenceEvents > 0 {
		codes = append(codes, models.ReasonTelemetryLifecycle)
	}
	if report.UsageSummaries > 0 {
		codes = append(codes, models.ReasonTelemetryUsageSummary)
	}

	return codes
}
