// Package inmem is an in-memory workload for exercising the validation
// runner without a database.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo4j-partners/neo4j-deploy/internal/validation"
)

// ErrUnavailable is returned by Connect while the workload is warming up.
var ErrUnavailable = errors.New("workload unavailable")

// Workload stores smoke-test markers in a map.
type Workload struct {
	mu sync.Mutex

	// FailConnects makes the first n Connect calls fail.
	FailConnects int
	// Down makes every Connect fail.
	Down bool
	// Corrupt makes Read return a different payload.
	Corrupt bool
	// Agreement is the license agreement the workload reports.
	Agreement string
	// LicenseErr makes LicenseAgreement fail.
	LicenseErr error

	data     map[string]string
	connects int
	writes   int
	deletes  int
	targets  []validation.Target

	licenseChecks int
}

var _ validation.Workload = (*Workload)(nil)

func New() *Workload {
	return &Workload{data: make(map[string]string)}
}

func (w *Workload) Connect(ctx context.Context, t validation.Target) (validation.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connects++
	w.targets = append(w.targets, t)
	if w.Down || w.connects <= w.FailConnects {
		return nil, fmt.Errorf("%s: %w", t.URI, ErrUnavailable)
	}
	return &session{w: w}, nil
}

// Connects returns the number of connection attempts.
func (w *Workload) Connects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connects
}

// Writes returns the number of successful marker writes.
func (w *Workload) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// Deletes returns the number of marker deletions.
func (w *Workload) Deletes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deletes
}

// LicenseChecks returns the number of license agreement queries.
func (w *Workload) LicenseChecks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.licenseChecks
}

// Len returns the number of markers still stored.
func (w *Workload) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.data)
}

// LastTarget returns the target of the latest Connect call.
func (w *Workload) LastTarget() (validation.Target, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.targets) == 0 {
		return validation.Target{}, false
	}
	return w.targets[len(w.targets)-1], true
}

type session struct {
	w *Workload
}

func (s *session) Write(_ context.Context, tag, payload string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.data[tag] = payload
	s.w.writes++
	return nil
}

func (s *session) Read(_ context.Context, tag string) (string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	v, ok := s.w.data[tag]
	if !ok {
		return "", fmt.Errorf("marker %s not found", tag)
	}
	if s.w.Corrupt {
		return v + "-corrupted", nil
	}
	return v, nil
}

func (s *session) Delete(_ context.Context, tag string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	delete(s.w.data, tag)
	s.w.deletes++
	return nil
}

func (s *session) LicenseAgreement(context.Context) (string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.licenseChecks++
	return s.w.Agreement, s.w.LicenseErr
}

func (s *session) Close(context.Context) error {
	return nil
}
