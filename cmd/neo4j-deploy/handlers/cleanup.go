package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j-partners/neo4j-deploy/internal/cleanup"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// CleanupOptions are the cleanup command flags.
type CleanupOptions struct {
	All          bool
	DeploymentID string
	OlderThan    string
	Force        bool
	DryRun       bool
}

func (c CleanupOptions) selector() (cleanup.Selector, error) {
	set := 0
	for _, b := range []bool{c.All, c.DeploymentID != "", c.OlderThan != ""} {
		if b {
			set++
		}
	}
	if set != 1 {
		return cleanup.Selector{}, deployment.ConfigError("cleanup",
			errors.New("use exactly one of --all, --deployment ID or --older-than DURATION"))
	}
	switch {
	case c.All:
		return cleanup.All(), nil
	case c.DeploymentID != "":
		return cleanup.ByID(c.DeploymentID), nil
	default:
		d, err := cleanup.ParseAge(c.OlderThan)
		if err != nil {
			return cleanup.Selector{}, deployment.ConfigError("cleanup", err)
		}
		return cleanup.OlderThan(d), nil
	}
}

// Cleanup deletes the resource containers of the selected deployments and
// retires their records.
func Cleanup(ctx context.Context, opts Options, c CleanupOptions) (err error) {
	sel, err := c.selector()
	if err != nil {
		return err
	}

	ctx, rt, err := open(ctx, opts, "cleanup")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	p, err := rt.cloud()
	if err != nil {
		return err
	}
	mgr := cleanup.NewManager(rt.store, p, rt.layout.ParamsDir(), rt.settings.Orchestration)
	mgr.Metrics = rt.metrics

	if c.DryRun {
		fmt.Fprintf(stdout, "Cleanup plan (%s), nothing will be deleted:\n", sel)
	} else {
		fmt.Fprintf(stdout, "Cleaning up deployments (%s)\n", sel)
	}

	summary, cleanupErr := mgr.Cleanup(ctx, sel, cleanup.Options{Force: c.Force, DryRun: c.DryRun})
	if summary == nil {
		return cleanupErr
	}
	for _, r := range summary.Results {
		printCleanupResult(r)
	}
	fmt.Fprintf(stdout, "\nSummary: %d cleaned, %d planned, %d skipped, %d failed\n",
		summary.Count(cleanup.ActionCleaned), summary.Count(cleanup.ActionPlanned),
		summary.Count(cleanup.ActionSkipped), summary.Count(cleanup.ActionFailed))
	return cleanupErr
}

func printCleanupResult(r cleanup.Result) {
	mark := map[cleanup.Action]string{
		cleanup.ActionCleaned: "[OK]",
		cleanup.ActionPlanned: "[..]",
		cleanup.ActionSkipped: "[--]",
		cleanup.ActionFailed:  "[!!]",
	}[r.Action]
	detail := r.Reason
	if r.Err != nil {
		detail = r.Err.Error()
	}
	fmt.Fprintf(stdout, "  %s %-44s %-8s %s\n", mark, r.ID, r.Action, detail)
}
