package deployment

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, registry and materializer.
var (
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("already exists")
	ErrInvalidConfig             = errors.New("invalid configuration")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrConcurrentUpdateExhausted = errors.New("concurrent update retries exhausted")
	ErrIDGenerationExhausted     = errors.New("deployment id generation exhausted")
)

// Kind classifies an error by how the orchestrator reacts to it.
type Kind string

const (
	// KindConfig is a bad scenario or settings value. Never retried.
	KindConfig Kind = "ConfigError"
	// KindSubmission is a rejected create call. Not retried automatically.
	KindSubmission Kind = "SubmissionError"
	// KindProviderTransient is a network or 5xx failure during a read, poll or delete.
	KindProviderTransient Kind = "ProviderTransientError"
	// KindProviderTerminal is an explicit provider failure or confirmed drift.
	KindProviderTerminal Kind = "ProviderTerminalError"
	// KindValidation is a failed or timed out workload smoke test.
	KindValidation Kind = "ValidationError"
	// KindStateConflict means the store gave up on a contended update.
	KindStateConflict Kind = "StateConflictError"
)

// Error carries a Kind plus the operation and deployment it happened in.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.ID != "" && e.Op != "":
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.ID, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind Kind, op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// ConfigError wraps err as a KindConfig error that also matches ErrInvalidConfig.
func ConfigError(op string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrInvalidConfig) {
		err = fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
