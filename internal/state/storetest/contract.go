// Package storetest provides contract tests for [state.Store]
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
)

// Factory creates a fresh [state.Store] for each test.
type Factory func(t *testing.T) state.Store

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Sample returns a Created record with the given id.
func Sample(id string) deployment.Record {
	return deployment.Record{
		ID:             id,
		ScenarioName:   "standalone-v5",
		ContainerName:  "neo4j-test-" + id,
		DeploymentName: "neo4j-" + id,
		Region:         "westeurope",
		Status:         deployment.StatusCreated,
		CreatedAt:      baseTime,
		ParameterPath:  "/tmp/params/" + id + ".json",
	}
}

// Run exercises the [state.Store] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		rec := Sample("d1")
		submitted := baseTime.Add(time.Minute)
		rec.SubmittedAt = &submitted

		require.NoError(t, store.Create(ctx, rec))

		got, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		rec.Version = 1
		assert.Equal(t, rec, got)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))
		err := store.Create(ctx, Sample("d1"))
		assert.ErrorIs(t, err, deployment.ErrConflict)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "nonexistent")
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))

		updated, err := store.Update(ctx, "d1", func(r *deployment.Record) error {
			return r.Transition(deployment.StatusProvisioning, baseTime)
		})
		require.NoError(t, err)
		assert.Equal(t, deployment.StatusProvisioning, updated.Status)
		assert.Equal(t, int64(2), updated.Version)

		got, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, updated, got)
	})

	t.Run("UpdateKeepsIdentity", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))

		updated, err := store.Update(ctx, "d1", func(r *deployment.Record) error {
			r.ID = "hijacked"
			r.Version = 99
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "d1", updated.ID)
		assert.Equal(t, int64(2), updated.Version)
	})

	t.Run("UpdateMutationErrorAborts", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))

		boom := errors.New("boom")
		_, err := store.Update(ctx, "d1", func(r *deployment.Record) error {
			r.ErrorDetail = "should not persist"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.Get(ctx, "d1")
		require.NoError(t, err)
		assert.Empty(t, got.ErrorDetail)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("UpdateInvalidTransition", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))

		_, err := store.Update(ctx, "d1", func(r *deployment.Record) error {
			return r.Transition(deployment.StatusValidated, baseTime)
		})
		assert.ErrorIs(t, err, deployment.ErrInvalidTransition)
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		store := factory(t)
		_, err := store.Update(context.Background(), "nonexistent", func(*deployment.Record) error { return nil })
		assert.ErrorIs(t, err, deployment.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		for i, st := range []deployment.Status{deployment.StatusCreated, deployment.StatusProvisioning, deployment.StatusFailed} {
			rec := Sample(fmt.Sprintf("d%d", i))
			rec.CreatedAt = baseTime.Add(time.Duration(i) * time.Hour)
			if i == 2 {
				rec.ScenarioName = "cluster-v5"
			}
			require.NoError(t, store.Create(ctx, rec))
			if st != deployment.StatusCreated {
				_, err := store.Update(ctx, rec.ID, func(r *deployment.Record) error {
					r.Status = st
					return nil
				})
				require.NoError(t, err)
			}
		}

		all, err := store.List(ctx, state.Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"d0", "d1", "d2"}, ids(all))

		byStatus, err := store.List(ctx, state.Filter{Statuses: []deployment.Status{deployment.StatusProvisioning, deployment.StatusFailed}})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2"}, ids(byStatus))

		byScenario, err := store.List(ctx, state.Filter{Scenario: "cluster-v5"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d2"}, ids(byScenario))

		older, err := store.List(ctx, state.Filter{CreatedBefore: baseTime.Add(90 * time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, []string{"d0", "d1"}, ids(older))

		byID, err := store.List(ctx, state.Filter{IDs: []string{"d2", "missing"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"d2"}, ids(byID))
	})

	t.Run("Delete", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, Sample("d1")))

		require.NoError(t, store.Delete(ctx, "d1"))
		_, err := store.Get(ctx, "d1")
		assert.ErrorIs(t, err, deployment.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "d1"), deployment.ErrNotFound)
	})

	t.Run("ConcurrentUpdatesLoseNothing", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			store := factory(t)
			ctx := context.Background()
			id := fmt.Sprintf("d-%d", rapid.IntRange(0, 1<<20).Draw(rt, "id"))
			writers := rapid.IntRange(2, state.DefaultUpdateAttempts).Draw(rt, "writers")

			if err := store.Create(ctx, Sample(id)); err != nil {
				rt.Fatalf("Create: %v", err)
			}

			var wg sync.WaitGroup
			errs := make([]error, writers)
			for w := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[w] = store.Update(ctx, id, func(r *deployment.Record) error {
						r.ErrorDetail += fmt.Sprintf("[w%d]", w)
						return nil
					})
				}()
			}
			wg.Wait()

			for w, err := range errs {
				if err != nil {
					rt.Fatalf("writer %d: %v", w, err)
				}
			}

			got, err := store.Get(ctx, id)
			if err != nil {
				rt.Fatalf("Get: %v", err)
			}
			if got.Version != int64(1+writers) {
				rt.Fatalf("version = %d, want %d", got.Version, 1+writers)
			}
			for w := range writers {
				if n := strings.Count(got.ErrorDetail, fmt.Sprintf("[w%d]", w)); n != 1 {
					rt.Fatalf("writer %d applied %d times in %q", w, n, got.ErrorDetail)
				}
			}
		})
	})
}

func ids(recs []deployment.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
