package commands

import (
	"github.com/spf13/cobra"

	"github.com/neo4j-partners/neo4j-deploy/cmd/neo4j-deploy/handlers"
)

// Setup returns the setup command.
func Setup(opts *handlers.Options) *cobra.Command {
	var s handlers.SetupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the workspace and write settings",
		Long: `Setup creates the workspace directory, asks for the Azure subscription,
region, template and secret handling, and writes config/settings.yaml.
Stock scenarios are written to config/scenarios.yaml when none exist.

Example:
  neo4j-deploy setup
  neo4j-deploy setup --non-interactive --subscription-id $AZURE_SUBSCRIPTION_ID \
    --template-ref marketplace/neo4j-enterprise/mainTemplate.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Setup(cmd.Context(), *opts, s)
		},
	}

	cmd.Flags().BoolVar(&s.NonInteractive, "non-interactive", false, "Skip the wizard and use flags and defaults")
	cmd.Flags().StringVar(&s.SubscriptionID, "subscription-id", "", "Azure subscription id")
	cmd.Flags().StringVar(&s.TemplateRef, "template-ref", "", "Template path or URL")
	cmd.Flags().StringVar(&s.Region, "region", "", "Azure region")

	return cmd
}

// ValidateTemplates returns the validate-templates command.
func ValidateTemplates(opts *handlers.Options) *cobra.Command {
	var scenarios []string

	cmd := &cobra.Command{
		Use:   "validate-templates",
		Short: "Validate the template with each scenario's parameters",
		Long: `Validate-templates asks Azure Resource Manager to validate the template
with every scenario's parameters inside a dedicated validation resource
group. Nothing is deployed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.ValidateTemplates(cmd.Context(), *opts, scenarios)
		},
	}

	cmd.Flags().StringSliceVar(&scenarios, "scenario", nil, "Scenario to validate (repeatable, default all)")

	return cmd
}

// Deploy returns the deploy command.
func Deploy(opts *handlers.Options) *cobra.Command {
	var d handlers.DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy scenarios and wait for them to settle",
		Long: `Deploy materializes parameters for each selected scenario, registers a
deployment record, creates a tagged resource group and submits the
template. Unless --no-wait is given it then polls every deployment until it
settles and smoke-tests the ones that provision.

Example:
  neo4j-deploy deploy --scenario standalone-v5
  neo4j-deploy deploy --all --no-wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), *opts, d)
		},
	}

	cmd.Flags().BoolVar(&d.All, "all", false, "Deploy every valid scenario")
	cmd.Flags().StringSliceVar(&d.Scenarios, "scenario", nil, "Scenario to deploy (repeatable)")
	cmd.Flags().BoolVar(&d.NoWait, "no-wait", false, "Return after submission without polling")
	cmd.Flags().BoolVar(&d.PreValidate, "validate", false, "Validate each template submission before deploying")
	cmd.MarkFlagsMutuallyExclusive("all", "scenario")
	cmd.MarkFlagsOneRequired("all", "scenario")

	return cmd
}

// Status returns the status command.
func Status(opts *handlers.Options) *cobra.Command {
	var s handlers.StatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show deployment status",
		Long: `Status polls in-flight deployments once and prints every stored
deployment. With --watch it keeps polling and refreshing until every
deployment settles, using a live dashboard on a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), *opts, s)
		},
	}

	cmd.Flags().StringVar(&s.Scenario, "scenario", "", "Only show deployments of this scenario")
	cmd.Flags().StringVarP(&s.Output, "output", "o", handlers.OutputTable, "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&s.Watch, "watch", false, "Keep refreshing until every deployment settles")
	cmd.Flags().BoolVar(&s.Offline, "offline", false, "Show stored state without polling Azure")

	return cmd
}

// Test returns the test command.
func Test(opts *handlers.Options) *cobra.Command {
	var t handlers.TestOptions

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Re-run the workload smoke test",
		Long: `Test connects to provisioned deployments, writes a tagged node, reads it
back and removes it, recording Validated or ValidationFailed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Test(cmd.Context(), *opts, t)
		},
	}

	cmd.Flags().StringVar(&t.DeploymentID, "deployment", "", "Deployment id to test")
	cmd.Flags().BoolVar(&t.All, "all", false, "Test every provisioned deployment")
	cmd.MarkFlagsMutuallyExclusive("all", "deployment")
	cmd.MarkFlagsOneRequired("all", "deployment")

	return cmd
}

// Cancel returns the cancel command.
func Cancel(opts *handlers.Options) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a provisioning deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cancel(cmd.Context(), *opts, id)
		},
	}

	cmd.Flags().StringVar(&id, "deployment", "", "Deployment id to cancel (required)")
	_ = cmd.MarkFlagRequired("deployment")

	return cmd
}

// Report returns the report command.
func Report(opts *handlers.Options) *cobra.Command {
	var r handlers.ReportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize deployments and write a Markdown report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Report(cmd.Context(), *opts, r)
		},
	}

	cmd.Flags().StringVar(&r.Scenario, "scenario", "", "Only report deployments of this scenario")
	cmd.Flags().BoolVar(&r.Upload, "upload", false, "Upload the report to the configured bucket")
	cmd.Flags().BoolVar(&r.JSON, "json", false, "Print the summary as JSON")

	return cmd
}

// Cleanup returns the cleanup command.
func Cleanup(opts *handlers.Options) *cobra.Command {
	var c handlers.CleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete deployment resources and retire their records",
		Long: `Cleanup deletes the resource group of each selected deployment, waits
until Azure confirms it is gone, then removes the record and its parameter
files. In-flight deployments and resource groups without the managed-by tag
are skipped unless --force is given.

Example:
  neo4j-deploy cleanup --deployment standalone-v5-20260301-120000-ab12
  neo4j-deploy cleanup --older-than 3d --dry-run
  neo4j-deploy cleanup --all --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cleanup(cmd.Context(), *opts, c)
		},
	}

	cmd.Flags().BoolVar(&c.All, "all", false, "Clean up every deployment")
	cmd.Flags().StringVar(&c.DeploymentID, "deployment", "", "Deployment id to clean up")
	cmd.Flags().StringVar(&c.OlderThan, "older-than", "", "Clean up deployments older than this age (30m, 2h, 3d, 1w)")
	cmd.Flags().BoolVar(&c.Force, "force", false, "Include in-flight deployments and unmanaged resource groups")
	cmd.Flags().BoolVar(&c.DryRun, "dry-run", false, "Show what would be deleted without deleting")
	cmd.MarkFlagsMutuallyExclusive("all", "deployment", "older-than")
	cmd.MarkFlagsOneRequired("all", "deployment", "older-than")

	return cmd
}
