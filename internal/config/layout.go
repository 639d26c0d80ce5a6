package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultWorkspace is the workspace directory used when none is configured.
const DefaultWorkspace = ".arm-testing"

// Layout resolves the persisted file locations under a workspace root.
//
//	<root>/config/settings.yaml
//	<root>/config/scenarios.yaml
//	<root>/state/
//	<root>/params/
//	<root>/results/
//	<root>/logs/
//	<root>/metrics/neo4j_deploy.prom
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root, or at DefaultWorkspace when empty.
func NewLayout(root string) Layout {
	if root == "" {
		root = DefaultWorkspace
	}
	return Layout{Root: root}
}

func (l Layout) ConfigDir() string     { return filepath.Join(l.Root, "config") }
func (l Layout) SettingsFile() string  { return filepath.Join(l.ConfigDir(), "settings.yaml") }
func (l Layout) ScenariosFile() string { return filepath.Join(l.ConfigDir(), "scenarios.yaml") }
func (l Layout) StateDir() string      { return filepath.Join(l.Root, "state") }
func (l Layout) StateDB() string       { return filepath.Join(l.StateDir(), "deployments.db") }
func (l Layout) ParamsDir() string     { return filepath.Join(l.Root, "params") }
func (l Layout) ResultsDir() string    { return filepath.Join(l.Root, "results") }
func (l Layout) LogsDir() string       { return filepath.Join(l.Root, "logs") }
func (l Layout) MetricsDir() string    { return filepath.Join(l.Root, "metrics") }
func (l Layout) MetricsFile() string   { return filepath.Join(l.MetricsDir(), "neo4j_deploy.prom") }

// Ensure creates every workspace directory. State and parameter
// directories hold secrets and are private to the user.
func (l Layout) Ensure() error {
	dirs := []struct {
		path string
		mode os.FileMode
	}{
		{l.ConfigDir(), 0o755},
		{l.StateDir(), 0o700},
		{l.ParamsDir(), 0o700},
		{l.ResultsDir(), 0o755},
		{l.LogsDir(), 0o755},
		{l.MetricsDir(), 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.mode); err != nil {
			return fmt.Errorf("failed to create workspace directory %s: %w", d.path, err)
		}
	}
	return nil
}
