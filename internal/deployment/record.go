// Package deployment defines the deployment record, its lifecycle state
// machine and the error taxonomy shared by every orchestrator component.
package deployment

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a deployment attempt.
type Status string

const (
	StatusCreated          Status = "Created"
	StatusProvisioning     Status = "Provisioning"
	StatusSucceeded        Status = "Succeeded"
	StatusFailed           Status = "Failed"
	StatusValidating       Status = "Validating"
	StatusValidated        Status = "Validated"
	StatusValidationFailed Status = "ValidationFailed"
	StatusCleaned          Status = "Cleaned"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusCreated,
		StatusProvisioning,
		StatusSucceeded,
		StatusFailed,
		StatusValidating,
		StatusValidated,
		StatusValidationFailed,
		StatusCleaned,
	}
}

// IsValid returns true if s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// InFlight reports whether the provider may still be creating resources.
func (s Status) InFlight() bool {
	return s == StatusCreated || s == StatusProvisioning
}

// Settled reports whether no further automatic transition will happen.
// Settled records are candidates for reporting and cleanup.
func (s Status) Settled() bool {
	switch s {
	case StatusFailed, StatusValidated, StatusValidationFailed, StatusCleaned:
		return true
	default:
		return false
	}
}

// Failing reports whether the status counts as a failed outcome.
func (s Status) Failing() bool {
	return s == StatusFailed || s == StatusValidationFailed
}

// transitions lists the allowed edges of the lifecycle state machine.
var transitions = map[Status][]Status{
	StatusCreated:          {StatusProvisioning, StatusFailed, StatusCleaned},
	StatusProvisioning:     {StatusSucceeded, StatusFailed, StatusCleaned},
	StatusSucceeded:        {StatusValidating, StatusCleaned},
	StatusFailed:           {StatusCleaned},
	StatusValidating:       {StatusValidated, StatusValidationFailed, StatusCleaned},
	StatusValidated:        {StatusValidating, StatusCleaned},
	StatusValidationFailed: {StatusValidating, StatusCleaned},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidationResult is the outcome of the workload smoke test.
type ValidationResult string

const (
	ValidationPass   ValidationResult = "Pass"
	ValidationFail   ValidationResult = "Fail"
	ValidationNotRun ValidationResult = "NotRun"
)

// Record is the durable state of one deployment attempt.
type Record struct {
	ID               string           `json:"deploymentId"`
	ScenarioName     string           `json:"scenarioName"`
	ContainerName    string           `json:"resourceContainerName"`
	DeploymentName   string           `json:"deploymentName"`
	Region           string           `json:"region,omitempty"`
	Status           Status           `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	SubmittedAt      *time.Time       `json:"submittedAt,omitempty"`
	LastPolledAt     *time.Time       `json:"lastPolledAt,omitempty"`
	TerminalAt       *time.Time       `json:"terminalAt,omitempty"`
	ValidationResult ValidationResult `json:"validationResult,omitempty"`
	ErrorDetail      string           `json:"errorDetail,omitempty"`
	Endpoint         string           `json:"endpoint,omitempty"`
	BrowserURL       string           `json:"browserUrl,omitempty"`
	CancelRequested  bool             `json:"cancelRequested,omitempty"`
	ParameterPath    string           `json:"parameterPath,omitempty"`

	// Version is bumped by the state store on every successful write.
	Version int64 `json:"version"`
}

// Transition moves the record to next, stamping TerminalAt when the new
// state is settled. It returns ErrInvalidTransition for illegal edges.
func (r *Record) Transition(next Status, now time.Time) error {
	if !CanTransition(r.Status, next) {
		return fmt.Errorf("%w: %s -> %s (deployment %s)", ErrInvalidTransition, r.Status, next, r.ID)
	}
	r.Status = next
	if next.Settled() {
		t := now.UTC()
		r.TerminalAt = &t
	}
	return nil
}

// Fail transitions the record to Failed with the given detail.
func (r *Record) Fail(detail string, now time.Time) error {
	if err := r.Transition(StatusFailed, now); err != nil {
		return err
	}
	r.ErrorDetail = detail
	return nil
}

// Age returns how long ago the record was created.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	c.LastPolledAt = cloneTime(r.LastPolledAt)
	c.TerminalAt = cloneTime(r.TerminalAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
