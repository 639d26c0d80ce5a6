// Package orchestrator drives deployments through their lifecycle:
// materialize parameters, register the record, create the resource
// container, submit the template and hand off to the reconciler.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/metrics"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/reconciler"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/async"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/labels"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/retry"
)

// ValidationContainer is the resource group template validation runs against.
const ValidationContainer = "arm-validation-temp"

// PurposeValidation tags the validation resource group.
const PurposeValidation = "arm-template-validation"

// Outcome is the result of deploying one scenario.
type Outcome struct {
	Scenario string
	Record   deployment.Record
	Err      error
}

// Orchestrator owns record creation and submission.
type Orchestrator struct {
	Settings     *config.Settings
	Store        state.Store
	Provider     provider.Provider
	Materializer *params.Materializer
	Reconciler   *reconciler.Reconciler
	Locks        *state.KeyedMutex
	Clock        clockwork.Clock
	Metrics      *metrics.Metrics

	// PreValidate asks the provider to validate each submission first.
	PreValidate bool
	// RetryDelay is the first backoff for idempotent container calls.
	RetryDelay time.Duration
}

// New wires an Orchestrator that shares the reconciler's lifecycle locks.
func New(settings *config.Settings, store state.Store, p provider.Provider, m *params.Materializer, rec *reconciler.Reconciler) *Orchestrator {
	locks := &state.KeyedMutex{}
	clock := clockwork.NewRealClock()
	if rec != nil {
		locks = rec.Locks
		clock = rec.Clock
	}
	return &Orchestrator{
		Settings:     settings,
		Store:        store,
		Provider:     p,
		Materializer: m,
		Reconciler:   rec,
		Locks:        locks,
		Clock:        clock,
		RetryDelay:   2 * time.Second,
	}
}

// Deploy materializes parameters for sc, registers a Created record before
// any cloud call, then creates the container and submits.
func (o *Orchestrator) Deploy(ctx context.Context, sc scenario.Scenario) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("scenario", sc.Name)

	ps, err := o.Materializer.Materialize(ctx, sc, o.Settings)
	if err != nil {
		return deployment.Record{}, err
	}

	rec := deployment.Record{
		ID:             ps.DeploymentID,
		ScenarioName:   sc.Name,
		ContainerName:  ps.ContainerName,
		DeploymentName: ps.DeploymentName,
		Region:         ps.Region,
		Status:         deployment.StatusCreated,
		CreatedAt:      ps.CreatedAt,
		ParameterPath:  ps.Path,
	}
	if err := o.Store.Create(ctx, rec); err != nil {
		return deployment.Record{}, fmt.Errorf("register deployment %s: %w", rec.ID, err)
	}
	rec, err = o.Store.Get(ctx, rec.ID)
	if err != nil {
		return deployment.Record{}, err
	}
	log.Info("registered deployment", "deploymentId", rec.ID, "container", rec.ContainerName)

	unlock := o.Locks.Lock(rec.ID)
	defer unlock()
	return o.Submit(ctx, rec, ps)
}

// Submit creates the resource container and submits the template. Any
// failure settles the record as Failed; submission itself is never retried.
func (o *Orchestrator) Submit(ctx context.Context, rec deployment.Record, ps *params.ParameterSet) (deployment.Record, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("deploymentId", rec.ID)
	tags := o.tags(rec)

	err := retry.WithExponentialBackoff(ctx, func() error {
		_, err := o.Provider.CreateContainer(ctx, provider.ContainerSpec{
			Name:   rec.ContainerName,
			Region: rec.Region,
			Tags:   tags,
		})
		return err
	},
		retry.WithClock(o.Clock),
		retry.WithMaxRetries(o.Settings.Orchestration.PollRetries),
		retry.WithInitialDelay(o.RetryDelay),
		retry.WithRetryable(provider.IsTransient),
	)
	if err != nil {
		return o.failSubmission(ctx, rec, fmt.Errorf("create resource container %s: %w", rec.ContainerName, err))
	}

	sub := ps.Submission(tags)
	if o.PreValidate {
		if err := o.Provider.ValidateTemplate(ctx, sub); err != nil {
			return o.failSubmission(ctx, rec, fmt.Errorf("template validation: %w", err))
		}
	}

	if err := o.Provider.Submit(ctx, sub); err != nil {
		return o.failSubmission(ctx, rec, fmt.Errorf("submit: %w", err))
	}
	o.Metrics.RecordSubmission(rec.ScenarioName, nil)

	updated, err := o.Store.Update(ctx, rec.ID, func(cur *deployment.Record) error {
		now := o.Clock.Now()
		if err := cur.Transition(deployment.StatusProvisioning, now); err != nil {
			return err
		}
		t := now.UTC()
		cur.SubmittedAt = &t
		return nil
	})
	if err != nil {
		return rec, err
	}
	o.Metrics.RecordTransition(string(deployment.StatusCreated), string(deployment.StatusProvisioning))
	log.Info("submitted deployment", "deployment", rec.DeploymentName, "template", ps.Template.String())
	return updated, nil
}

func (o *Orchestrator) failSubmission(ctx context.Context, rec deployment.Record, cause error) (deployment.Record, error) {
	o.Metrics.RecordSubmission(rec.ScenarioName, cause)
	updated, err := o.Store.Update(context.WithoutCancel(ctx), rec.ID, func(cur *deployment.Record) error {
		return cur.Fail(cause.Error(), o.Clock.Now())
	})
	if err != nil {
		return rec, errors.Join(deployment.NewError(deployment.KindSubmission, "submit", rec.ID, cause), err)
	}
	o.Metrics.RecordTransition(string(rec.Status), string(deployment.StatusFailed))
	logr.FromContextOrDiscard(ctx).Info("submission failed", "deploymentId", rec.ID, "error", cause.Error())
	return updated, deployment.NewError(deployment.KindSubmission, "submit", rec.ID, cause)
}

func (o *Orchestrator) tags(rec deployment.Record) map[string]string {
	az := o.Settings.Azure
	return labels.NewLabelBuilder(rec.ID, rec.ScenarioName).
		WithCreated(rec.CreatedAt).
		WithOwnerIfSet(az.Owner).
		WithBranchIfSet(az.Branch).
		WithCleanupMode(string(az.CleanupMode)).
		WithExpiry(rec.CreatedAt, az.ExpiresAfter.Duration).
		Merge(az.Tags).
		Build()
}

// DeployAll deploys every scenario with bounded concurrency. Outcomes are
// returned in input order; failures never stop the other scenarios and are
// also returned joined.
func (o *Orchestrator) DeployAll(ctx context.Context, scenarios []scenario.Scenario) ([]Outcome, error) {
	outcomes := make([]Outcome, len(scenarios))
	indexed := make([]int, len(scenarios))
	for i := range scenarios {
		indexed[i] = i
		outcomes[i].Scenario = scenarios[i].Name
	}

	err := async.ForEach(ctx, o.Settings.Orchestration.Concurrency, indexed,
		func(i int) string { return scenarios[i].Name },
		func(ctx context.Context, i int) error {
			rec, err := o.Deploy(ctx, scenarios[i])
			outcomes[i].Record = rec
			outcomes[i].Err = err
			return err
		},
	)
	return outcomes, err
}

// Cancel flags a Provisioning deployment; the next poll deletes its
// container and settles it as Failed.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (deployment.Record, error) {
	return o.Store.Update(ctx, id, func(cur *deployment.Record) error {
		if cur.Status != deployment.StatusProvisioning {
			return fmt.Errorf("%w: only provisioning deployments can be cancelled, %s is %s",
				deployment.ErrInvalidTransition, id, cur.Status)
		}
		cur.CancelRequested = true
		return nil
	})
}

// WaitAll polls until none of ids is Provisioning and returns their records.
func (o *Orchestrator) WaitAll(ctx context.Context, ids []string) ([]deployment.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if o.Reconciler == nil {
		return nil, errors.New("no reconciler configured")
	}
	return o.Reconciler.Run(ctx, ids)
}

// TemplateCheck is the result of validating one scenario's template.
type TemplateCheck struct {
	Scenario string
	Err      error
}

// ValidateTemplates asks the provider to validate the template with each
// scenario's parameters, inside a dedicated validation resource group.
func (o *Orchestrator) ValidateTemplates(ctx context.Context, scenarios []scenario.Scenario) ([]TemplateCheck, error) {
	_, err := o.Provider.CreateContainer(ctx, provider.ContainerSpec{
		Name:   ValidationContainer,
		Region: o.Settings.Azure.Region,
		Tags: map[string]string{
			labels.KeyPurpose:   PurposeValidation,
			labels.KeyManagedBy: labels.ManagedByTool,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create validation resource group: %w", err)
	}

	checks := make([]TemplateCheck, len(scenarios))
	var errs []error
	for i, sc := range scenarios {
		checks[i].Scenario = sc.Name
		ps, err := o.Materializer.Preview(sc, o.Settings)
		if err == nil {
			sub := ps.Submission(nil)
			sub.Container = ValidationContainer
			err = o.Provider.ValidateTemplate(ctx, sub)
		}
		if err != nil {
			checks[i].Err = err
			errs = append(errs, &async.TaskError{Name: sc.Name, Err: err})
		}
	}
	return checks, errors.Join(errs...)
}
