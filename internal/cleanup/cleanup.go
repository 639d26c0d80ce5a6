// Package cleanup removes the cloud resources behind deployment records
// and retires the records once removal is confirmed.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/metrics"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/async"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/labels"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/retry"
)

// Action is what a cleanup run did with one record.
type Action string

const (
	ActionCleaned Action = "cleaned"
	ActionPlanned Action = "planned"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Options control a single cleanup run.
type Options struct {
	// Force includes in-flight deployments and containers without the
	// managed-by tag.
	Force bool
	// DryRun reports what would be deleted without deleting anything.
	DryRun bool
}

// Result is the per-record outcome of a cleanup run.
type Result struct {
	ID        string
	Scenario  string
	Container string
	Status    deployment.Status
	Action    Action
	Reason    string
	Err       error
}

// Summary collects the results of a cleanup run in selection order.
type Summary struct {
	Results []Result
}

// Count returns how many results took action a.
func (s *Summary) Count(a Action) int {
	n := 0
	for _, r := range s.Results {
		if r.Action == a {
			n++
		}
	}
	return n
}

// Failed returns the results that could not be cleaned.
func (s *Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Action == ActionFailed {
			out = append(out, r)
		}
	}
	return out
}

// Manager deletes resource containers and retires their records.
type Manager struct {
	Store     state.Store
	Provider  provider.Provider
	ParamsDir string
	Locks     *state.KeyedMutex
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics

	Concurrency     int
	DeleteRetries   int
	RetryDelay      time.Duration
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

// NewManager builds a Manager from the orchestration settings.
func NewManager(store state.Store, p provider.Provider, paramsDir string, o config.Orchestration) *Manager {
	return &Manager{
		Store:           store,
		Provider:        p,
		ParamsDir:       paramsDir,
		Locks:           &state.KeyedMutex{},
		Clock:           clockwork.NewRealClock(),
		Concurrency:     o.Concurrency,
		DeleteRetries:   o.PollRetries,
		RetryDelay:      2 * time.Second,
		ConfirmAttempts: o.CleanupConfirmAttempts,
		ConfirmInterval: o.CleanupConfirmInterval.Duration,
	}
}

// Cleanup processes every record sel picks. The returned error is a
// *CleanupError when any record failed; skipped records are not errors.
func (m *Manager) Cleanup(ctx context.Context, sel Selector, opts Options) (*Summary, error) {
	log := logr.FromContextOrDiscard(ctx)

	f, err := sel.filter(m.Clock.Now())
	if err != nil {
		return nil, err
	}
	recs, err := m.Store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}

	summary := &Summary{}
	for _, id := range missing(sel.IDs, recs) {
		summary.Results = append(summary.Results, Result{
			ID:     id,
			Action: ActionFailed,
			Err:    fmt.Errorf("deployment %s: %w", id, deployment.ErrNotFound),
		})
	}

	results := make([]Result, len(recs))
	_ = async.ForEach(ctx, m.Concurrency, indexes(len(recs)),
		func(i int) string { return recs[i].ID },
		func(ctx context.Context, i int) error {
			results[i] = m.one(ctx, recs[i], opts)
			return results[i].Err
		},
	)
	for i := range results {
		if results[i].ID == "" {
			results[i] = Result{ID: recs[i].ID, Scenario: recs[i].ScenarioName, Container: recs[i].ContainerName,
				Status: recs[i].Status, Action: ActionFailed, Err: ctx.Err()}
		}
	}
	summary.Results = append(summary.Results, results...)

	cerr := &CleanupError{}
	for _, r := range summary.Results {
		if r.Action == ActionFailed {
			cerr.Add(fmt.Errorf("%s: %w", r.ID, r.Err))
		}
	}
	log.Info("cleanup finished", "selector", sel.String(), "dryRun", opts.DryRun,
		"cleaned", summary.Count(ActionCleaned), "skipped", summary.Count(ActionSkipped),
		"failed", summary.Count(ActionFailed))
	if cerr.HasErrors() {
		return summary, cerr
	}
	return summary, nil
}

func (m *Manager) one(ctx context.Context, rec deployment.Record, opts Options) Result {
	res := Result{ID: rec.ID, Scenario: rec.ScenarioName, Container: rec.ContainerName, Status: rec.Status}
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID, "container", rec.ContainerName)

	skip := func(reason string) Result {
		res.Action = ActionSkipped
		res.Reason = reason
		m.Metrics.RecordCleanup(string(ActionSkipped))
		log.V(1).Info("skipping cleanup", "reason", reason)
		return res
	}

	// Forcing a Validating record reclaims one left by an interrupted
	// validation; the id lock below still skips a run in this process.
	switch {
	case rec.Status == deployment.StatusValidating && !opts.Force:
		return skip("validation in progress; use --force to delete an interrupted validation")
	case rec.Status.InFlight() && !opts.Force:
		return skip(fmt.Sprintf("deployment is %s; use --force to delete in-flight deployments", rec.Status))
	}

	unlock, ok := m.Locks.TryLock(rec.ID)
	if !ok {
		return skip("deployment is busy in this process")
	}
	defer unlock()

	if rec.Status == deployment.StatusCleaned {
		if opts.DryRun {
			res.Action = ActionPlanned
			res.Reason = "purge record"
			return res
		}
		return m.retire(ctx, res)
	}

	c, err := m.Provider.GetContainer(ctx, rec.ContainerName)
	gone := errors.Is(err, provider.ErrNotFound)
	switch {
	case err != nil && !gone:
		return m.fail(ctx, res, fmt.Errorf("look up container: %w", err))
	case !gone && !labels.IsManaged(c.Tags) && !opts.Force:
		return skip("container is not tagged managed-by=" + labels.ManagedByTool)
	}

	if opts.DryRun {
		res.Action = ActionPlanned
		res.Reason = "delete container " + rec.ContainerName
		if gone {
			res.Reason = "container already absent; retire record"
		}
		return res
	}

	if rec.Status.InFlight() || rec.Status == deployment.StatusValidating {
		log.Info("forcing cleanup of in-flight deployment", "status", rec.Status)
	}

	if !gone {
		if err := m.delete(ctx, rec.ContainerName); err != nil {
			return m.fail(ctx, res, err)
		}
		if err := m.confirm(ctx, rec.ContainerName); err != nil {
			return m.fail(ctx, res, err)
		}
	}

	if _, err := m.Store.Update(ctx, rec.ID, func(cur *deployment.Record) error {
		if cur.Status == deployment.StatusCleaned {
			return nil
		}
		return cur.Transition(deployment.StatusCleaned, m.Clock.Now())
	}); err != nil {
		return m.fail(ctx, res, fmt.Errorf("mark cleaned: %w", err))
	}
	m.Metrics.RecordTransition(string(rec.Status), string(deployment.StatusCleaned))
	log.Info("container deleted")
	return m.retire(ctx, res)
}

func (m *Manager) delete(ctx context.Context, name string) error {
	err := retry.WithExponentialBackoff(ctx, func() error {
		return m.Provider.DeleteContainer(ctx, name)
	},
		retry.WithClock(m.Clock),
		retry.WithMaxRetries(m.DeleteRetries),
		retry.WithInitialDelay(m.RetryDelay),
		retry.WithRetryable(provider.IsTransient),
	)
	if err != nil {
		return fmt.Errorf("delete container %s: %w", name, err)
	}
	return nil
}

// confirm waits until the container is gone, checking at most
// ConfirmAttempts times.
func (m *Manager) confirm(ctx context.Context, name string) error {
	attempts := max(m.ConfirmAttempts, 1)
	for i := range attempts {
		_, err := m.Provider.GetContainer(ctx, name)
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		if err != nil && !provider.IsTransient(err) {
			return fmt.Errorf("confirm deletion of %s: %w", name, err)
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm deletion of %s: %w", name, ctx.Err())
		case <-m.Clock.After(m.ConfirmInterval):
		}
	}
	return fmt.Errorf("deletion of %s not confirmed after %d checks", name, attempts)
}

// retire removes the record and its parameter artifacts.
func (m *Manager) retire(ctx context.Context, res Result) Result {
	if err := m.Store.Delete(ctx, res.ID); err != nil && !state.IsNotFound(err) {
		return m.fail(ctx, res, fmt.Errorf("delete record: %w", err))
	}
	if m.ParamsDir != "" {
		if err := params.Remove(m.ParamsDir, res.ID); err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "remove parameter artifacts", "deploymentId", res.ID)
		}
	}
	res.Action = ActionCleaned
	m.Metrics.RecordCleanup(string(ActionCleaned))
	return res
}

// fail keeps the record and annotates it with the cleanup failure.
func (m *Manager) fail(ctx context.Context, res Result, cause error) Result {
	res.Action = ActionFailed
	res.Err = cause
	m.Metrics.RecordCleanup(string(ActionFailed))

	_, err := m.Store.Update(context.WithoutCancel(ctx), res.ID, func(cur *deployment.Record) error {
		cur.ErrorDetail = withCleanupNote(cur.ErrorDetail, cause)
		return nil
	})
	if err != nil {
		res.Err = errors.Join(cause, fmt.Errorf("annotate record: %w", err))
	}
	logr.FromContextOrDiscard(ctx).Error(cause, "cleanup failed", "deploymentId", res.ID)
	return res
}

const cleanupNote = "cleanup failed: "

// withCleanupNote replaces any earlier cleanup note in detail with one for cause.
func withCleanupNote(detail string, cause error) string {
	if i := strings.Index(detail, cleanupNote); i >= 0 {
		detail = strings.TrimSuffix(detail[:i], "; ")
	}
	note := cleanupNote + cause.Error()
	if detail == "" {
		return note
	}
	return detail + "; " + note
}

func missing(ids []string, recs []deployment.Record) []string {
	found := make(map[string]bool, len(recs))
	for _, r := range recs {
		found[r.ID] = true
	}
	var out []string
	for _, id := range ids {
		if !found[id] {
			out = append(out, id)
		}
	}
	return out
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
