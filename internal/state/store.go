// Package state persists deployment records and serialises concurrent
// updates to them.
//
// Every mutation goes through [Store.Update], a read-modify-write that
// detects concurrent writers by comparing the record version and re-applies
// the mutation to the fresh copy a bounded number of times.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// DefaultUpdateAttempts bounds the compare-and-swap loop in Update.
const DefaultUpdateAttempts = 5

// MutateFunc changes a record in place. Returning an error aborts the update.
type MutateFunc func(*deployment.Record) error

// Store is the durable deployment record store.
type Store interface {
	// Create inserts a new record. It fails with ErrConflict if the id exists.
	Create(ctx context.Context, rec deployment.Record) error
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (deployment.Record, error)
	// Update atomically applies mutate to the latest version of the record.
	Update(ctx context.Context, id string, mutate MutateFunc) (deployment.Record, error)
	// List returns the records matching f ordered by creation time.
	List(ctx context.Context, f Filter) ([]deployment.Record, error)
	// Delete permanently removes the record.
	Delete(ctx context.Context, id string) error
	// Close releases backend resources.
	Close() error
}

// Filter selects records in List. Zero fields match everything.
type Filter struct {
	IDs           []string
	Statuses      []deployment.Status
	Scenario      string
	CreatedBefore time.Time
}

// Match reports whether rec satisfies the filter.
func (f Filter) Match(rec deployment.Record) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, rec.ID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, rec.Status) {
		return false
	}
	if f.Scenario != "" && rec.ScenarioName != f.Scenario {
		return false
	}
	if !f.CreatedBefore.IsZero() && !rec.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// SortRecords orders records by creation time, then id.
func SortRecords(recs []deployment.Record) {
	slices.SortFunc(recs, func(a, b deployment.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// CASBackend is the minimal surface a backend provides to CompareAndSwap.
type CASBackend interface {
	LoadRecord(ctx context.Context, id string) (deployment.Record, error)
	// CommitRecord writes next if the stored version still equals expected.
	// It returns false when another writer got there first.
	CommitRecord(ctx context.Context, expected int64, next deployment.Record) (bool, error)
}

// CompareAndSwap implements the Update contract shared by all backends:
// load, mutate a copy, commit if the version is unchanged, otherwise retry
// on the fresh copy up to attempts times.
func CompareAndSwap(ctx context.Context, b CASBackend, attempts int, id string, mutate MutateFunc) (deployment.Record, error) {
	if attempts < 1 {
		attempts = DefaultUpdateAttempts
	}

	for range attempts {
		if err := ctx.Err(); err != nil {
			return deployment.Record{}, err
		}

		current, err := b.LoadRecord(ctx, id)
		if err != nil {
			return deployment.Record{}, err
		}

		next := current.Clone()
		if err := mutate(&next); err != nil {
			return deployment.Record{}, err
		}
		next.ID = current.ID
		next.Version = current.Version + 1
		if !next.Status.IsValid() {
			return deployment.Record{}, fmt.Errorf("update %s: unknown status %q", id, next.Status)
		}

		ok, err := b.CommitRecord(ctx, current.Version, next)
		if err != nil {
			return deployment.Record{}, err
		}
		if ok {
			return next, nil
		}
	}

	return deployment.Record{}, deployment.NewError(deployment.KindStateConflict, "update", id,
		fmt.Errorf("%w after %d attempts", deployment.ErrConcurrentUpdateExhausted, attempts))
}

// notFound wraps ErrNotFound with the record id.
func notFound(id string) error {
	return fmt.Errorf("deployment %q: %w", id, deployment.ErrNotFound)
}

// conflict wraps ErrConflict with the record id.
func conflict(id string) error {
	return fmt.Errorf("deployment %q: %w", id, deployment.ErrConflict)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, deployment.ErrNotFound)
}
