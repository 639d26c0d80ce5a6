// Package tui provides a Bubble Tea dashboard that follows deployments
// through their lifecycle.
package tui

import (
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// SnapshotMsg carries the latest records from the state store.
type SnapshotMsg struct {
	Records []deployment.Record
	At      time.Time
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the operation is complete.
type DoneMsg struct{}
