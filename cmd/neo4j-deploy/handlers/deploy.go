package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
)

// DeployOptions are the deploy command flags.
type DeployOptions struct {
	All         bool
	Scenarios   []string
	NoWait      bool
	PreValidate bool
}

// Deploy submits the selected scenarios and, unless NoWait is set, polls
// them to a settled state, smoke-testing each one that provisions.
func Deploy(ctx context.Context, opts Options, d DeployOptions) (err error) {
	ctx, rt, err := open(ctx, opts, "deploy")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	selected, err := selectScenarios(rt, d.All, d.Scenarios)
	if err != nil {
		return err
	}

	p, err := rt.cloud()
	if err != nil {
		return err
	}
	rec := rt.reconciler(p)
	runner, err := rt.validator()
	if err != nil {
		return err
	}
	rec.OnSucceeded = runner.Validate

	orch := rt.orchestrator(p, rec)
	orch.PreValidate = d.PreValidate

	fmt.Fprintf(stdout, "Deploying %d scenario(s) to %s\n", len(selected), rt.settings.Azure.Region)
	outcomes, deployErr := orch.DeployAll(ctx, selected)

	var (
		submitted []string
		results   []deployment.Record
		failures  []string
	)
	for _, out := range outcomes {
		switch {
		case out.Record.ID == "":
			fmt.Fprintf(stdout, "  [!!] %-44s %v\n", out.Scenario, out.Err)
			failures = append(failures, out.Scenario)
		case out.Err != nil:
			printOutcome(out.Record)
			results = append(results, out.Record)
		default:
			fmt.Fprintf(stdout, "  [..] %-44s submitted (%s)\n", out.Record.ID, out.Record.ContainerName)
			submitted = append(submitted, out.Record.ID)
		}
	}
	if deployErr != nil {
		rt.log.V(1).Info("some submissions failed", "error", deployErr.Error())
	}

	if d.NoWait {
		fmt.Fprintln(stdout, "\nNot waiting for provisioning; follow progress with 'neo4j-deploy status --watch'.")
		return failedScenarios(failures, results)
	}

	if len(submitted) > 0 {
		fmt.Fprintf(stdout, "\nWaiting for %d deployment(s), polling every %s\n", len(submitted), rt.settings.Orchestration.PollInterval.Duration)
		settled, err := orch.WaitAll(ctx, submitted)
		if err != nil {
			return fmt.Errorf("wait for deployments: %w", err)
		}
		results = append(results, settled...)
	}

	fmt.Fprintln(stdout)
	for _, r := range results {
		printOutcome(r)
	}
	sumErr := summarize(results)
	if len(failures) > 0 {
		return errors.Join(sumErr, fmt.Errorf("scenarios not deployed: %v", failures))
	}
	return sumErr
}

func failedScenarios(scenarios []string, recs []deployment.Record) error {
	var errs []error
	if len(scenarios) > 0 {
		errs = append(errs, fmt.Errorf("scenarios not deployed: %v", scenarios))
	}
	var ids []string
	for _, r := range recs {
		if r.Status.Failing() {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) > 0 {
		errs = append(errs, &FailedError{IDs: ids})
	}
	return errors.Join(errs...)
}

// selectScenarios resolves --all or the named scenarios. Invalid scenarios
// in the registry are reported but never block the valid ones.
func selectScenarios(rt *runtime, all bool, names []string) ([]scenario.Scenario, error) {
	reg, err := rt.scenarios()
	if err != nil {
		return nil, err
	}
	for _, problem := range reg.Problems() {
		fmt.Fprintf(stdout, "  [??] skipping invalid scenario: %v\n", problem)
	}

	if all {
		list := reg.List()
		if len(list) == 0 {
			return nil, deployment.ConfigError("select scenarios", errors.New("no valid scenarios configured"))
		}
		return list, nil
	}
	if len(names) == 0 {
		return nil, deployment.ConfigError("select scenarios", errors.New("use --all or --scenario NAME"))
	}

	out := make([]scenario.Scenario, 0, len(names))
	var errs []error
	for _, name := range names {
		sc, err := reg.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, sc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
