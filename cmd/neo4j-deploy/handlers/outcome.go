package handlers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// stdout receives the per-deployment outcome lines.
var stdout io.Writer = os.Stdout

// FailedError lists the deployments a command left in a failing state.
type FailedError struct {
	IDs []string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%d deployment(s) failed: %s", len(e.IDs), strings.Join(e.IDs, ", "))
}

func outcomeMark(s deployment.Status) string {
	switch {
	case s == deployment.StatusValidated:
		return "[OK]"
	case s.Failing():
		return "[!!]"
	case s.Settled():
		return "[--]"
	default:
		return "[..]"
	}
}

// printOutcome writes one line for rec.
func printOutcome(rec deployment.Record) {
	line := fmt.Sprintf("  %s %-44s %-17s", outcomeMark(rec.Status), rec.ID, rec.Status)
	switch {
	case rec.Status.Failing() && rec.ErrorDetail != "":
		line += " " + rec.ErrorDetail
	case rec.Endpoint != "":
		line += " " + rec.Endpoint
	}
	fmt.Fprintln(stdout, strings.TrimRight(line, " "))
}

// summarize prints the count line and returns a *FailedError when any
// record is failing.
func summarize(recs []deployment.Record) error {
	counts := make(map[deployment.Status]int)
	var failed []string
	for _, rec := range recs {
		counts[rec.Status]++
		if rec.Status.Failing() {
			failed = append(failed, rec.ID)
		}
	}

	parts := []string{fmt.Sprintf("%d total", len(recs))}
	for _, s := range deployment.AllStatuses() {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	fmt.Fprintf(stdout, "\nSummary: %s\n", strings.Join(parts, ", "))

	if len(failed) > 0 {
		return &FailedError{IDs: failed}
	}
	return nil
}
