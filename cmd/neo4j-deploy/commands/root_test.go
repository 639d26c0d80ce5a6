package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "neo4j-deploy", cmd.Use)
	assert.Equal(t, "Deploy, validate and clean up Neo4j on Azure", cmd.Short)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	expectedSubcommands := []string{
		"setup",
		"validate-templates",
		"deploy",
		"status",
		"test",
		"cancel",
		"report",
		"cleanup",
		"version",
		"completion",
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, expected := range expectedSubcommands {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), len(expectedSubcommands))
}

func TestRoot_GlobalFlags(t *testing.T) {
	cmd := Root()

	workspace := cmd.PersistentFlags().Lookup("workspace")
	require.NotNil(t, workspace)
	assert.Equal(t, ".arm-testing", workspace.DefValue)
	assert.Equal(t, "w", workspace.Shorthand)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestFlagGroups(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"deploy needs a selection", []string{"deploy"}},
		{"deploy all excludes scenario", []string{"deploy", "--all", "--scenario", "standalone-v5"}},
		{"test needs a selection", []string{"test"}},
		{"cancel requires deployment", []string{"cancel"}},
		{"cleanup needs a selection", []string{"cleanup", "--dry-run"}},
		{"cleanup selectors are exclusive", []string{"cleanup", "--all", "--older-than", "3d"}},
		{"positional args rejected", []string{"status", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := Root()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)

			assert.Error(t, root.Execute())
		})
	}
}

func TestDeployFlags(t *testing.T) {
	cmd := Deploy(nil)

	for _, name := range []string{"all", "scenario", "no-wait", "validate"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestStatusFlags(t *testing.T) {
	cmd := Status(nil)

	output := cmd.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "table", output.DefValue)
	assert.Equal(t, "o", output.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
	assert.NotNil(t, cmd.Flags().Lookup("offline"))
}

func TestCleanupFlags(t *testing.T) {
	cmd := Cleanup(nil)

	for _, name := range []string{"all", "deployment", "older-than", "force", "dry-run"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}
