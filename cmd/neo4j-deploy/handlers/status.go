package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/report"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/ui/tui"
)

// Output formats accepted by status.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// StatusOptions are the status command flags.
type StatusOptions struct {
	Scenario string
	Output   string
	Watch    bool
	// Offline skips the provider poll and shows stored state only.
	Offline bool
}

// runTUI is the dashboard entry point, replaceable in tests.
var runTUI = tui.RunWatch

// Status shows the stored deployment records. Unless offline, in-flight
// deployments are polled once first; with Watch it keeps polling until
// every deployment settles.
func Status(ctx context.Context, opts Options, s StatusOptions) (err error) {
	if !slices.Contains([]string{"", OutputTable, OutputJSON, OutputYAML}, s.Output) {
		return fmt.Errorf("unsupported output format %q: use table, json or yaml", s.Output)
	}

	ctx, rt, err := open(ctx, opts, "status")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	filter := state.Filter{Scenario: s.Scenario}
	fetch := func(ctx context.Context) ([]deployment.Record, error) {
		return rt.store.List(ctx, filter)
	}

	var poll func(context.Context) error
	if !s.Offline {
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
		poll = func(ctx context.Context) error {
			_, err := rec.RunOnce(ctx)
			return err
		}
	}

	if s.Watch {
		return statusWatch(ctx, rt, fetch, poll, s)
	}

	if poll != nil {
		if err := poll(ctx); err != nil {
			rt.log.Info("refresh incomplete", "error", err.Error())
		}
	}
	recs, err := fetch(ctx)
	if err != nil {
		return err
	}
	return renderStatus(recs, s.Output)
}

func renderStatus(recs []deployment.Record, output string) error {
	switch output {
	case OutputJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case OutputYAML:
		data, err := yaml.Marshal(recs)
		if err != nil {
			return fmt.Errorf("failed to marshal deployments: %w", err)
		}
		_, err = stdout.Write(data)
		return err
	default:
		fmt.Fprint(stdout, report.RenderTerminal(report.Build("status", recs, now())))
		return nil
	}
}

// statusWatch refreshes until every record settles or ctx ends.
func statusWatch(ctx context.Context, rt *runtime, fetch tui.Fetcher, poll func(context.Context) error, s StatusOptions) error {
	interval := rt.settings.Orchestration.PollInterval.Duration
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if poll != nil {
		go func() {
			for {
				if err := poll(ctx); err != nil && ctx.Err() == nil {
					rt.log.V(1).Info("refresh incomplete", "error", err.Error())
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(interval):
				}
			}
		}()
	}

	if (s.Output == "" || s.Output == OutputTable) && isInteractiveTTY() {
		return runTUI(ctx, fetch, "status", rt.settings.Azure.Region, time.Second, true)
	}

	for {
		recs, err := fetch(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\n%s\n", now().Format(time.RFC3339))
		if err := renderStatus(recs, s.Output); err != nil {
			return err
		}
		if allSettled(recs) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func allSettled(recs []deployment.Record) bool {
	for _, r := range recs {
		if !r.Status.Settled() {
			return false
		}
	}
	return true
}
