// Package reconciler polls in-flight deployments and maps provider state
// onto the lifecycle state machine.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/metrics"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/async"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/retry"
)

// Error details recorded on forced failures.
const (
	DetailTimeout     = "timeout"
	DetailCancelled   = "cancelled"
	DetailDisappeared = "resource disappeared externally"
)

// Template outputs carrying the browser URL.
const (
	OutputClusterBrowserURL = "neo4jClusterBrowserURL"
	OutputBrowserURL        = "neo4jBrowserURL"
)

// errNotInFlight aborts a store update when another worker already moved
// the record on.
var errNotInFlight = errors.New("deployment is no longer provisioning")

// SucceededHook runs once, in the polling worker, right after a record is
// persisted as Succeeded.
type SucceededHook func(ctx context.Context, rec deployment.Record) (deployment.Record, error)

// Options holds the polling timings.
type Options struct {
	PollInterval      time.Duration
	DeploymentTimeout time.Duration
	NotFoundGrace     time.Duration
	PollRetries       int
	RetryDelay        time.Duration
	Concurrency       int
	BoltPort          int
}

// OptionsFromSettings extracts the reconciler timings from settings.
func OptionsFromSettings(s *config.Settings) Options {
	o := s.Orchestration
	return Options{
		PollInterval:      o.PollInterval.Duration,
		DeploymentTimeout: o.DeploymentTimeout.Duration,
		NotFoundGrace:     o.NotFoundGrace.Duration,
		PollRetries:       o.PollRetries,
		RetryDelay:        time.Second,
		Concurrency:       o.Concurrency,
		BoltPort:          s.Validation.BoltPort,
	}
}

// Reconciler drives Provisioning records to a settled provider state.
type Reconciler struct {
	Store       state.Store
	Provider    provider.Provider
	Options     Options
	Clock       clockwork.Clock
	Locks       *state.KeyedMutex
	OnSucceeded SucceededHook
	Metrics     *metrics.Metrics
}

// New returns a Reconciler on the real clock with its own lock set.
func New(store state.Store, p provider.Provider, opts Options) *Reconciler {
	return &Reconciler{
		Store:    store,
		Provider: p,
		Options:  opts,
		Clock:    clockwork.NewRealClock(),
		Locks:    &state.KeyedMutex{},
	}
}

// Poll queries the provider once for rec and persists the resulting
// transition. Records that are not Provisioning are returned unchanged.
func (r *Reconciler) Poll(ctx context.Context, rec deployment.Record) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)

	if rec.Status != deployment.StatusProvisioning {
		return rec, nil
	}
	if rec.CancelRequested {
		return r.cancel(ctx, rec)
	}

	var st provider.Status
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		st, err = r.Provider.GetStatus(ctx, rec.ContainerName, rec.DeploymentName)
		return err
	},
		retry.WithClock(r.Clock),
		retry.WithMaxRetries(r.Options.PollRetries),
		retry.WithInitialDelay(r.Options.RetryDelay),
		retry.WithRetryable(provider.IsTransient),
		retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			log.V(1).Info("status poll failed, retrying", "attempt", attempt, "error", err.Error(), "retryIn", wait.String())
		}),
	)

	now := r.Clock.Now()
	timedOut := r.timedOut(rec, now)

	if err != nil {
		r.Metrics.RecordPoll("error")
		if timedOut {
			return r.fail(ctx, rec, DetailTimeout)
		}
		log.Info("status poll failed, will retry next interval", "error", err.Error())
		return rec, deployment.NewError(deployment.KindProviderTransient, "poll", rec.ID, err)
	}
	r.Metrics.RecordPoll(string(st.State))

	switch st.State {
	case provider.StateSucceeded:
		return r.succeed(ctx, rec, st)
	case provider.StateFailed:
		detail := st.Detail
		if detail == "" {
			detail = "provider reported failure"
		}
		return r.fail(ctx, rec, detail)
	}

	if timedOut {
		return r.fail(ctx, rec, DetailTimeout)
	}
	if st.State == provider.StateNotFound && r.pastGrace(rec, now) {
		return r.fail(ctx, rec, DetailDisappeared)
	}

	updated, err := r.Store.Update(ctx, rec.ID, func(cur *deployment.Record) error {
		if cur.Status != deployment.StatusProvisioning {
			return errNotInFlight
		}
		t := now.UTC()
		cur.LastPolledAt = &t
		return nil
	})
	if errors.Is(err, errNotInFlight) {
		return r.Store.Get(ctx, rec.ID)
	}
	if err != nil {
		return rec, err
	}
	log.V(1).Info("still provisioning", "providerState", string(st.State))
	return updated, nil
}

func (r *Reconciler) timedOut(rec deployment.Record, now time.Time) bool {
	if r.Options.DeploymentTimeout <= 0 {
		return false
	}
	return now.Sub(submittedAt(rec)) >= r.Options.DeploymentTimeout
}

func (r *Reconciler) pastGrace(rec deployment.Record, now time.Time) bool {
	return now.Sub(submittedAt(rec)) > r.Options.NotFoundGrace
}

func submittedAt(rec deployment.Record) time.Time {
	if rec.SubmittedAt != nil {
		return *rec.SubmittedAt
	}
	return rec.CreatedAt
}

func (r *Reconciler) succeed(ctx context.Context, rec deployment.Record, st provider.Status) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)
	browser, endpoint := Endpoints(st, r.Options.BoltPort)

	updated, applied, err := r.transition(ctx, rec, func(cur *deployment.Record, now time.Time) error {
		if err := cur.Transition(deployment.StatusSucceeded, now); err != nil {
			return err
		}
		cur.LastPolledAt = ptrTime(now)
		cur.BrowserURL = browser
		cur.Endpoint = endpoint
		return nil
	})
	if err != nil || !applied {
		return updated, err
	}
	log.Info("deployment succeeded", "endpoint", endpoint, "browserUrl", browser)

	if r.OnSucceeded == nil {
		return updated, nil
	}
	validated, err := r.OnSucceeded(ctx, updated)
	if err != nil {
		log.Info("post-provisioning hook failed", "error", err.Error())
		if validated.ID == "" {
			validated = updated
		}
	}
	return validated, err
}

func (r *Reconciler) fail(ctx context.Context, rec deployment.Record, detail string) (deployment.Record, error) {
	updated, applied, err := r.transition(ctx, rec, func(cur *deployment.Record, now time.Time) error {
		if err := cur.Fail(detail, now); err != nil {
			return err
		}
		cur.LastPolledAt = ptrTime(now)
		return nil
	})
	if applied {
		logr.FromContextOrDiscard(ctx).Info("deployment failed", "deploymentId", rec.ID, "detail", detail)
	}
	return updated, err
}

func (r *Reconciler) cancel(ctx context.Context, rec deployment.Record) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)
	if err := r.Provider.DeleteContainer(ctx, rec.ContainerName); err != nil {
		log.Info("best-effort deletion of cancelled deployment failed", "container", rec.ContainerName, "error", err.Error())
	}
	return r.fail(ctx, rec, DetailCancelled)
}

// transition applies a settling mutation only while the record is still
// Provisioning. If another worker got there first, the stored record is
// returned with applied false.
func (r *Reconciler) transition(ctx context.Context, rec deployment.Record, mutate func(*deployment.Record, time.Time) error) (deployment.Record, bool, error) {
	now := r.Clock.Now()
	updated, err := r.Store.Update(ctx, rec.ID, func(cur *deployment.Record) error {
		if cur.Status != deployment.StatusProvisioning {
			return errNotInFlight
		}
		return mutate(cur, now)
	})
	if errors.Is(err, errNotInFlight) {
		cur, err := r.Store.Get(ctx, rec.ID)
		return cur, false, err
	}
	if err != nil {
		return rec, false, err
	}
	r.Metrics.RecordTransition(string(deployment.StatusProvisioning), string(updated.Status))
	r.Metrics.RecordProvisioned(updated.ScenarioName, string(updated.Status), now.Sub(submittedAt(updated)))
	return updated, true, nil
}

// RunOnce polls every Provisioning record in a bounded pool. Records whose
// lifecycle lock is held elsewhere are skipped until the next round.
func (r *Reconciler) RunOnce(ctx context.Context) ([]deployment.Record, error) {
	recs, err := r.Store.List(ctx, state.Filter{Statuses: []deployment.Status{deployment.StatusProvisioning}})
	if err != nil {
		return nil, fmt.Errorf("list provisioning deployments: %w", err)
	}

	results := make([]deployment.Record, len(recs))
	idx := make(map[string]int, len(recs))
	for i, rec := range recs {
		idx[rec.ID] = i
		results[i] = rec
	}

	err = async.ForEach(ctx, r.Options.Concurrency, recs,
		func(rec deployment.Record) string { return rec.ID },
		func(ctx context.Context, rec deployment.Record) error {
			unlock, ok := r.Locks.TryLock(rec.ID)
			if !ok {
				return nil
			}
			defer unlock()

			updated, err := r.Poll(ctx, rec)
			results[idx[rec.ID]] = updated
			return err
		},
	)
	return results, err
}

// Run polls on the configured interval until every id in ids is out of
// Provisioning (all in-flight records when ids is empty) or ctx ends.
func (r *Reconciler) Run(ctx context.Context, ids []string) ([]deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx)
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Poll errors leave records in place; the next round retries them.
			log.V(1).Info("poll round finished with errors", "error", err.Error())
		}

		pending, recs, err := r.pending(ctx, ids)
		if err != nil {
			return nil, err
		}
		if pending == 0 {
			return recs, nil
		}
		log.V(1).Info("waiting for deployments", "pending", pending, "interval", r.Options.PollInterval.String())

		select {
		case <-ctx.Done():
			return recs, ctx.Err()
		case <-r.Clock.After(r.Options.PollInterval):
		}
	}
}

func (r *Reconciler) pending(ctx context.Context, ids []string) (int, []deployment.Record, error) {
	recs, err := r.Store.List(ctx, state.Filter{IDs: ids})
	if err != nil {
		return 0, nil, fmt.Errorf("list deployments: %w", err)
	}
	n := 0
	for _, rec := range recs {
		if rec.Status == deployment.StatusProvisioning {
			n++
		}
	}
	return n, recs, nil
}

// Endpoints derives the browser URL and the Bolt routing URI from the
// template outputs. Both are empty when no browser URL output exists.
func Endpoints(st provider.Status, boltPort int) (browserURL, endpoint string) {
	browserURL, ok := st.Output(OutputClusterBrowserURL)
	if !ok {
		browserURL, ok = st.Output(OutputBrowserURL)
	}
	if !ok {
		return "", ""
	}
	u, err := url.Parse(browserURL)
	if err != nil || u.Hostname() == "" {
		return browserURL, ""
	}
	return browserURL, "neo4j://" + net.JoinHostPort(u.Hostname(), strconv.Itoa(boltPort))
}

func ptrTime(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
