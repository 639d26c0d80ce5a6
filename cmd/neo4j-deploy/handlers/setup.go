package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/prerequisites"
)

// SetupOptions are the setup command flags.
type SetupOptions struct {
	NonInteractive bool
	SubscriptionID string
	TemplateRef    string
	Region         string
}

// Factory function variables for setup - can be replaced in tests.
var (
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	runWizard          = config.RunWizard
	saveSettings       = config.Save
	saveScenarios      = scenario.Save
	checkPrerequisites = prerequisites.CheckDefault
	getenv             = os.Getenv
)

// Setup creates the workspace, writes settings (interactively unless
// NonInteractive) and seeds the stock scenarios when none exist.
func Setup(ctx context.Context, opts Options, s SetupOptions) error {
	config.LoadDotEnv()
	layout := opts.layout()
	if err := layout.Ensure(); err != nil {
		return err
	}

	current := config.Defaults()
	if fileExists(layout.SettingsFile()) {
		existing, err := config.LoadWithoutValidation(layout.SettingsFile())
		if err != nil {
			return fmt.Errorf("failed to read existing settings: %w", err)
		}
		current = existing
		fmt.Fprintf(stdout, "Updating existing settings in %s\n\n", layout.SettingsFile())
	}
	current.Workspace = layout.Root

	if s.NonInteractive {
		if s.SubscriptionID != "" {
			current.Azure.SubscriptionID = s.SubscriptionID
		}
		if s.TemplateRef != "" {
			current.Azure.TemplateRef = s.TemplateRef
		}
		if s.Region != "" {
			current.Azure.Region = s.Region
		}
	} else {
		result, err := runWizard(ctx, current)
		if err != nil {
			return fmt.Errorf("setup canceled: %w", err)
		}
		result.Apply(current)
	}

	current.ApplyDefaults()
	if err := current.Validate(); err != nil {
		return errors.Join(errors.New("settings are incomplete"), err)
	}
	if err := saveSettings(current, layout.SettingsFile()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Fprintf(stdout, "Settings saved to %s\n", layout.SettingsFile())

	if !fileExists(layout.ScenariosFile()) {
		if err := saveScenarios(layout.ScenariosFile(), scenario.DefaultScenarios()); err != nil {
			return fmt.Errorf("failed to write scenarios: %w", err)
		}
		fmt.Fprintf(stdout, "Stock scenarios written to %s\n", layout.ScenariosFile())
	}

	printPreflight()

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  neo4j-deploy validate-templates")
	fmt.Fprintln(stdout, "  neo4j-deploy deploy --scenario standalone-v5")
	return nil
}

// printPreflight reports optional client tools and the Azure credential
// sources that look configured.
func printPreflight() {
	checks := checkPrerequisites()
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Client tools:")
	for _, r := range checks.Results {
		if r.Found {
			fmt.Fprintf(stdout, "  [OK] %s (%s)\n", r.Tool.Name, r.Path)
			continue
		}
		fmt.Fprintf(stdout, "  [--] %s not found: %s\n       %s\n", r.Tool.Name, r.Tool.Description, r.Tool.InstallURL)
	}

	sources := prerequisites.CredentialSources(getenv, checks)
	if len(sources) == 0 {
		fmt.Fprintln(stdout, "\nNo Azure credential source detected: run 'az login' or set AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET.")
		return
	}
	fmt.Fprintf(stdout, "\nAzure credentials: %s\n", strings.Join(sources, ", "))
}
