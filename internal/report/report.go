// Package report summarizes deployment records for the terminal, a
// Markdown file and machine readable output.
package report

import (
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
)

// Row is one deployment as it appears in a report.
type Row struct {
	ID          string                      `json:"deploymentId"`
	Scenario    string                      `json:"scenario"`
	Status      deployment.Status           `json:"status"`
	Validation  deployment.ValidationResult `json:"validationResult,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Age         time.Duration               `json:"-"`
	Duration    time.Duration               `json:"-"`
	Endpoint    string                      `json:"endpoint,omitempty"`
	BrowserURL  string                      `json:"browserUrl,omitempty"`
	Container   string                      `json:"resourceContainerName"`
	ErrorDetail string                      `json:"errorDetail,omitempty"`
}

// Summary is a point-in-time view over a set of records.
type Summary struct {
	Scope       string                    `json:"scope"`
	GeneratedAt time.Time                 `json:"generatedAt"`
	Total       int                       `json:"total"`
	Counts      map[deployment.Status]int `json:"counts"`
	Rows        []Row                     `json:"deployments"`
}

// Build summarizes recs as of now. Rows are ordered by creation time.
func Build(scope string, recs []deployment.Record, now time.Time) *Summary {
	sorted := make([]deployment.Record, len(recs))
	copy(sorted, recs)
	state.SortRecords(sorted)

	s := &Summary{
		Scope:       scope,
		GeneratedAt: now.UTC(),
		Total:       len(sorted),
		Counts:      make(map[deployment.Status]int),
		Rows:        make([]Row, 0, len(sorted)),
	}
	for _, rec := range sorted {
		s.Counts[rec.Status]++
		row := Row{
			ID:          rec.ID,
			Scenario:    rec.ScenarioName,
			Status:      rec.Status,
			Validation:  rec.ValidationResult,
			CreatedAt:   rec.CreatedAt,
			Age:         rec.Age(now),
			Endpoint:    rec.Endpoint,
			BrowserURL:  rec.BrowserURL,
			Container:   rec.ContainerName,
			ErrorDetail: rec.ErrorDetail,
		}
		if rec.SubmittedAt != nil && rec.TerminalAt != nil {
			row.Duration = rec.TerminalAt.Sub(*rec.SubmittedAt)
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

// Failing returns the rows whose status counts as a failure.
func (s *Summary) Failing() []Row {
	var out []Row
	for _, r := range s.Rows {
		if r.Status.Failing() {
			out = append(out, r)
		}
	}
	return out
}

// Passed returns how many deployments were validated.
func (s *Summary) Passed() int {
	return s.Counts[deployment.StatusValidated]
}

// InFlight returns how many deployments have not settled.
func (s *Summary) InFlight() int {
	n := 0
	for status, c := range s.Counts {
		if !status.Settled() {
			n += c
		}
	}
	return n
}
