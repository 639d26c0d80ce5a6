package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// Model is the Bubble Tea model for the deployment dashboard.
type Model struct {
	Title  string
	Region string

	Records     []deployment.Record
	LastRefresh time.Time
	StartTime   time.Time

	// ExitWhenSettled quits once no record can change on its own.
	ExitWhenSettled bool

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
}

// NewModel creates a dashboard model.
func NewModel(title, region string, exitWhenSettled bool) Model {
	return Model{
		Title:           title,
		Region:          region,
		StartTime:       time.Now(),
		ExitWhenSettled: exitWhenSettled,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case SnapshotMsg:
		m.Records = msg.Records
		m.LastRefresh = msg.At
		if m.ExitWhenSettled && len(m.Records) > 0 && m.settled() {
			m.Done = true
			return m, tea.Quit
		}

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// settled reports whether every record has reached a settled status.
func (m Model) settled() bool {
	for _, rec := range m.Records {
		if !rec.Status.Settled() {
			return false
		}
	}
	return true
}

func (m Model) count(pred func(deployment.Status) bool) int {
	n := 0
	for _, rec := range m.Records {
		if pred(rec.Status) {
			n++
		}
	}
	return n
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
