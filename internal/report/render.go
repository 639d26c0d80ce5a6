package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"sigs.k8s.io/yaml"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/naming"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	greenStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	redStyle     = lipgloss.NewStyle().Foreground(colorRed)
	yellowStyle  = lipgloss.NewStyle().Foreground(colorYellow)
)

// StatusStyle returns the color a status is rendered in.
func StatusStyle(s deployment.Status) lipgloss.Style {
	switch {
	case s == deployment.StatusValidated:
		return greenStyle
	case s.Failing():
		return redStyle
	case s == deployment.StatusCleaned:
		return dimStyle
	default:
		return yellowStyle
	}
}

// RenderTerminal produces a lipgloss-styled status table.
func RenderTerminal(s *Summary) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  neo4j-deploy report: %s", s.Scope)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n\n")

	if len(s.Rows) == 0 {
		b.WriteString(dimStyle.Render("  No deployments recorded."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-44s %-22s %-17s %-10s %s", "Deployment", "Scenario", "Status", "Test", "Age")))
	b.WriteString("\n")
	for _, r := range s.Rows {
		fmt.Fprintf(&b, "  %-44s %-22s %s %-10s %s\n",
			r.ID,
			r.Scenario,
			StatusStyle(r.Status).Render(fmt.Sprintf("%-17s", r.Status)),
			orDash(string(r.Validation)),
			humanize.RelTime(s.GeneratedAt.Add(-r.Age), s.GeneratedAt, "ago", "from now"),
		)
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("  Summary"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 35)))
	b.WriteString("\n")
	for _, status := range deployment.AllStatuses() {
		if n := s.Counts[status]; n > 0 {
			fmt.Fprintf(&b, "    %-18s %d\n", status, n)
		}
	}
	fmt.Fprintf(&b, "    %-18s %d\n", "Total", s.Total)

	if failing := s.Failing(); len(failing) > 0 {
		b.WriteString("\n")
		b.WriteString(redStyle.Render("  Failures"))
		b.WriteString("\n")
		for _, r := range failing {
			fmt.Fprintf(&b, "    %s: %s\n", r.ID, orDash(r.ErrorDetail))
		}
	}
	return b.String()
}

// RenderMarkdown writes the summary as a Markdown document.
func RenderMarkdown(w io.Writer, s *Summary) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Deployment report: %s\n\n", s.Scope)
	fmt.Fprintf(&b, "Generated %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Status | Count |\n|---|---|\n")
	for _, status := range deployment.AllStatuses() {
		if n := s.Counts[status]; n > 0 {
			fmt.Fprintf(&b, "| %s | %d |\n", status, n)
		}
	}
	fmt.Fprintf(&b, "| **Total** | %d |\n\n", s.Total)

	b.WriteString("## Deployments\n\n")
	b.WriteString("| Deployment | Scenario | Status | Validation | Created | Duration | Endpoint |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range s.Rows {
		duration := "-"
		if r.Duration > 0 {
			duration = r.Duration.Round(time.Second).String()
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.ID, r.Scenario, r.Status, orDash(string(r.Validation)),
			r.CreatedAt.UTC().Format(time.RFC3339), duration, orDash(r.Endpoint))
	}

	if failing := s.Failing(); len(failing) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, r := range failing {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", r.ID, r.Scenario, mdEscape(orDash(r.ErrorDetail)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMarkdown renders the summary into dir and returns the file path.
func WriteMarkdown(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	var b strings.Builder
	if err := RenderMarkdown(&b, s); err != nil {
		return "", err
	}
	path := filepath.Join(dir, naming.Report(s.Scope, s.GeneratedAt))
	if err := atomic.WriteFile(path, strings.NewReader(b.String())); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

// RenderJSON writes the summary as indented JSON.
func RenderJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// RenderYAML writes the summary as YAML.
func RenderYAML(w io.Writer, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
