package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/report"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
)

// ReportOptions are the report command flags.
type ReportOptions struct {
	Scenario string
	Upload   bool
	JSON     bool
}

// newUploader is the report upload factory, replaceable in tests.
var newUploader = func(ctx context.Context, cfg config.Report) (reportUploader, error) {
	return report.NewUploader(ctx, cfg, os.Getenv)
}

type reportUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Report summarizes stored deployments, writes the Markdown report and
// optionally uploads it.
func Report(ctx context.Context, opts Options, r ReportOptions) (err error) {
	ctx, rt, err := open(ctx, opts, "report")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.close()) }()

	recs, err := rt.store.List(ctx, state.Filter{Scenario: r.Scenario})
	if err != nil {
		return err
	}
	scope := r.Scenario
	if scope == "" {
		scope = "all"
	}
	summary := report.Build(scope, recs, now())

	if r.JSON {
		if err := report.RenderJSON(stdout, summary); err != nil {
			return err
		}
	} else {
		fmt.Fprint(stdout, report.RenderTerminal(summary))
	}

	path, err := report.WriteMarkdown(rt.layout.ResultsDir(), summary)
	if err != nil {
		return err
	}
	if !r.JSON {
		fmt.Fprintf(stdout, "\nReport written to %s\n", path)
	}

	if r.Upload {
		u, err := newUploader(ctx, rt.settings.Report)
		if err != nil {
			return err
		}
		key, err := u.Upload(ctx, path)
		if err != nil {
			return err
		}
		rt.log.Info("report uploaded", "bucket", rt.settings.Report.Bucket, "key", key)
		if !r.JSON {
			fmt.Fprintf(stdout, "Uploaded to s3://%s/%s\n", rt.settings.Report.Bucket, key)
		}
	}
	return nil
}
