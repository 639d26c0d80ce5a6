// Package benchmarks provides timing estimates for deployment lifecycle phases.
package benchmarks

import (
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// Lifecycle phases used for ETA calculation.
const (
	PhaseProvisioning = "Provisioning"
	PhaseValidating   = "Validating"
)

// DefaultTimings are median durations from marketplace test runs (seconds).
var DefaultTimings = map[string]int{
	PhaseProvisioning: 600,
	PhaseValidating:   60,
}

// PhaseOrder defines the sequence of lifecycle phases for ETA calculation.
var PhaseOrder = []string{
	PhaseProvisioning,
	PhaseValidating,
}

// Phase maps a status onto the phase it is spending time in. Settled
// statuses have no phase.
func Phase(s deployment.Status) (string, bool) {
	switch s {
	case deployment.StatusCreated, deployment.StatusProvisioning:
		return PhaseProvisioning, true
	case deployment.StatusSucceeded, deployment.StatusValidating:
		return PhaseValidating, true
	default:
		return "", false
	}
}

// EstimateRemaining calculates the time left until rec settles, scaled by
// how fast the settled records in history went compared to the defaults.
func EstimateRemaining(rec deployment.Record, now time.Time, history []deployment.Record) time.Duration {
	phase, ok := Phase(rec.Status)
	if !ok {
		return 0
	}
	elapsed := phaseElapsed(rec, phase, now)
	return EstimateRemainingWithScale(phase, elapsed, PerformanceScale(phase, elapsed, history))
}

// EstimateRemainingWithScale calculates ETA while applying a performance scale factor.
func EstimateRemainingWithScale(currentPhase string, phaseElapsed time.Duration, scale float64) time.Duration {
	var remaining time.Duration

	currentIdx := -1
	for i, p := range PhaseOrder {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	// For the current phase: max(0, expected - elapsed)
	if expected, ok := DefaultTimings[currentPhase]; ok {
		expectedDur := time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		if expectedDur > phaseElapsed {
			remaining += expectedDur - phaseElapsed
		}
	}

	for _, phase := range PhaseOrder[currentIdx+1:] {
		if expected, ok := DefaultTimings[phase]; ok {
			remaining += time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		}
	}

	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 11m, observed 16m30s => scale=1.5 (future ETAs are stretched by 50%).
// Only deployments that provisioned count; a failure says nothing about speed.
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []deployment.Record) float64 {
	var expectedTotal time.Duration
	var actualTotal time.Duration

	for _, rec := range history {
		if rec.SubmittedAt == nil || rec.TerminalAt == nil {
			continue
		}
		if rec.Status != deployment.StatusValidated && rec.Status != deployment.StatusValidationFailed {
			continue
		}
		expectedTotal += TotalEstimate()
		actualTotal += rec.TerminalAt.Sub(*rec.SubmittedAt)
	}

	// If current phase is overrunning, fold it in immediately so ETA adapts quickly.
	if expectedSecs, ok := DefaultTimings[currentPhase]; ok && phaseElapsed > 0 {
		expectedCurrent := time.Duration(expectedSecs) * time.Second
		if phaseElapsed > expectedCurrent {
			expectedTotal += expectedCurrent
			actualTotal += phaseElapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the total estimated time from submission to a settled result.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, phase := range PhaseOrder {
		if secs, ok := DefaultTimings[phase]; ok {
			total += time.Duration(secs) * time.Second
		}
	}
	return total
}

// phaseElapsed is the time spent in phase. Validation start is not
// recorded, so it counts from the last poll.
func phaseElapsed(rec deployment.Record, phase string, now time.Time) time.Duration {
	var since time.Time
	switch {
	case phase == PhaseProvisioning && rec.SubmittedAt != nil:
		since = *rec.SubmittedAt
	case phase == PhaseProvisioning:
		since = rec.CreatedAt
	case rec.LastPolledAt != nil:
		since = *rec.LastPolledAt
	default:
		return 0
	}
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}
