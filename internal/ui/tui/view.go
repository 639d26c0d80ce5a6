package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/ui/benchmarks"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderDeployments(&b, m)

	if failing := m.count(deployment.Status.Failing); failing > 0 {
		renderFailures(&b, m)
	}

	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("neo4j-deploy: %s", m.Title)
	if m.Region != "" {
		title += fmt.Sprintf(" (%s)", m.Region)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	inFlight := m.count(func(s deployment.Status) bool { return !s.Settled() })
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case len(m.Records) == 0:
		status += dimStyle.Render("no deployments")
	case inFlight > 0:
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") +
			warningStyle.Render(fmt.Sprintf("%d in progress", inFlight))
	case m.count(deployment.Status.Failing) > 0:
		status += failedStyle.Render("settled with failures")
	default:
		status += readyStyle.Render("all settled")
	}
	b.WriteString(status)
	b.WriteString("\n")

	counts := make([]string, 0, len(deployment.AllStatuses()))
	for _, s := range deployment.AllStatuses() {
		if n := m.count(func(x deployment.Status) bool { return x == s }); n > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", s, n))
		}
	}
	if len(counts) > 0 {
		b.WriteString(subtitleStyle.Render("  " + strings.Join(counts, "  ·  ")))
		b.WriteString("\n")
	}
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	fmt.Fprintf(b, "  %s %d%%\n", bar, int(progress*100))
}

func renderDeployments(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("Deployments"))
	b.WriteString("\n")
	if len(m.Records) == 0 {
		b.WriteString(dimStyle.Render("  none recorded"))
		b.WriteString("\n")
		return
	}

	now := m.LastRefresh
	if now.IsZero() {
		now = time.Now()
	}
	for _, rec := range m.Records {
		icon, style := statusIcon(rec.Status, m.SpinnerFrame)
		detail := dimStyle.Render(humanize.RelTime(rec.CreatedAt, now, "ago", "from now"))
		if rec.Endpoint != "" {
			detail += "  " + dimStyle.Render(rec.Endpoint)
		}
		if eta := benchmarks.EstimateRemaining(rec, now, m.Records); eta > 0 {
			detail += "  " + warningStyle.Render("~"+formatDuration(eta)+" left")
		}
		fmt.Fprintf(b, "  %s %-44s %s  %s\n",
			style(icon), rec.ID, style(fmt.Sprintf("%-17s", rec.Status)), detail)
	}
}

func renderFailures(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("Failures"))
	b.WriteString("\n")
	for _, rec := range m.Records {
		if !rec.Status.Failing() {
			continue
		}
		detail := rec.ErrorDetail
		if detail == "" {
			detail = "no detail recorded"
		}
		fmt.Fprintf(b, "  %s %s: %s\n", failedStyle.Render(crossMark), rec.ID, detail)
	}
}

func renderFooter(b *strings.Builder, m Model) {
	parts := []string{fmt.Sprintf("elapsed: %s", formatDuration(time.Since(m.StartTime)))}
	if !m.LastRefresh.IsZero() {
		parts = append(parts, fmt.Sprintf("refreshed: %s", m.LastRefresh.Local().Format("15:04:05")))
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  %s  |  q: quit", strings.Join(parts, "  |  "))))
	b.WriteString("\n")
}

func statusIcon(s deployment.Status, frame int) (string, styleFunc) {
	switch {
	case s == deployment.StatusValidated:
		return checkMark, sf(readyStyle)
	case s.Failing():
		return crossMark, sf(failedStyle)
	case s == deployment.StatusCleaned:
		return pending, sf(dimStyle)
	case s == deployment.StatusSucceeded:
		return warnMark, sf(warningStyle)
	default:
		return currentSpinner(frame), sf(warningStyle)
	}
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

// calculateProgress is the fraction of records that have settled.
func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}
	if len(m.Records) == 0 {
		return 0
	}
	settled := m.count(deployment.Status.Settled)
	return float64(settled) / float64(len(m.Records))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
