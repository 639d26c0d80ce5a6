// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/neo4j-partners/neo4j-deploy/cmd/neo4j-deploy/handlers"
	"github.com/neo4j-partners/neo4j-deploy/internal/config"
)

// Root returns the root command for the neo4j-deploy CLI.
//
// Global flags select the workspace directory and console verbosity and
// are shared by every subcommand.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "neo4j-deploy",
		Short:         "Deploy, validate and clean up Neo4j on Azure",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.Workspace, "workspace", "w", config.DefaultWorkspace, "Workspace directory holding settings, state and results")
	cmd.PersistentFlags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase console log verbosity (repeatable)")

	// Lifecycle commands
	cmd.AddCommand(Setup(opts))
	cmd.AddCommand(ValidateTemplates(opts))
	cmd.AddCommand(Deploy(opts))
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(Test(opts))
	cmd.AddCommand(Cancel(opts))
	cmd.AddCommand(Report(opts))
	cmd.AddCommand(Cleanup(opts))

	// Utility commands
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
