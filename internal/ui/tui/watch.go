package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// Fetcher returns the records the dashboard shows.
type Fetcher func(ctx context.Context) ([]deployment.Record, error)

// RunWatch shows the dashboard, refreshing from fetch every interval until
// the user quits, ctx ends, or (with exitWhenSettled) every record settles.
func RunWatch(ctx context.Context, fetch Fetcher, title, region string, interval time.Duration, exitWhenSettled bool) error {
	m := NewModel(title, region, exitWhenSettled)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.Send(snapshot(ctx, fetch))
		for {
			select {
			case <-ctx.Done():
				p.Send(ErrMsg{Err: ctx.Err()})
				return
			case <-ticker.C:
				p.Send(snapshot(ctx, fetch))
			}
		}
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	fm := finalModel.(Model)
	if fm.Err != nil {
		return fm.Err
	}
	return nil
}

func snapshot(ctx context.Context, fetch Fetcher) tea.Msg {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	recs, err := fetch(fetchCtx)
	if err != nil {
		return ErrMsg{Err: fmt.Errorf("failed to read deployments: %w", err)}
	}
	return SnapshotMsg{Records: recs, At: time.Now()}
}
