package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/async"
)

// TestOptions are the test command flags.
type TestOptions struct {
	DeploymentID string
	All          bool
}

// Test re-runs the workload smoke test against provisioned deployments.
func Test(ctx context.Context, opts Options, t TestOptions) (err error) {
	if t.DeploymentID == "" && !t.All {
		return deployment.ConfigError("test", errors.New("use --deployment ID or --all"))
	}

	ctx, rt, err := open(ctx, opts, "test")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	filter := state.Filter{Statuses: []deployment.Status{
		deployment.StatusSucceeded, deployment.StatusValidated, deployment.StatusValidationFailed,
	}}
	if t.DeploymentID != "" {
		filter = state.Filter{IDs: []string{t.DeploymentID}}
	}
	recs, err := rt.store.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		if t.DeploymentID != "" {
			return fmt.Errorf("deployment %s: %w", t.DeploymentID, deployment.ErrNotFound)
		}
		fmt.Fprintln(stdout, "No provisioned deployments to test.")
		return nil
	}

	runner, err := rt.validator()
	if err != nil {
		return err
	}

	results := make([]deployment.Record, len(recs))
	refused := make([]error, len(recs))
	_ = async.ForEach(ctx, rt.settings.Orchestration.Concurrency, indexes(len(recs)),
		func(i int) string { return recs[i].ID },
		func(ctx context.Context, i int) error {
			updated, err := runner.Validate(ctx, recs[i])
			if updated.ID == "" {
				updated = recs[i]
			}
			results[i] = updated
			if err != nil && !deployment.IsKind(err, deployment.KindValidation) {
				refused[i] = err
			}
			return err
		},
	)

	var errs []error
	for i, r := range results {
		if refused[i] != nil {
			fmt.Fprintf(stdout, "  [!!] %-44s not tested: %v\n", r.ID, refused[i])
			errs = append(errs, refused[i])
			continue
		}
		printOutcome(r)
	}
	return errors.Join(append(errs, summarize(results))...)
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
