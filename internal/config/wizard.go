package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
)

var subscriptionPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// WizardResult holds the user's choices from the setup wizard.
type WizardResult struct {
	SubscriptionID      string
	Region              string
	ResourceGroupPrefix string
	Owner               string
	TemplateRef         string
	SecretMode          SecretMode
	VaultName           string
	VaultResourceGroup  string
	CleanupMode         CleanupMode
	GenerateSSHKey      bool
}

// RunWizard runs the interactive setup wizard seeded from current.
func RunWizard(ctx context.Context, current *Settings) (*WizardResult, error) {
	result := &WizardResult{
		SubscriptionID:      current.Azure.SubscriptionID,
		Region:              current.Azure.Region,
		ResourceGroupPrefix: current.Azure.ResourceGroupPrefix,
		Owner:               current.Azure.Owner,
		TemplateRef:         current.Azure.TemplateRef,
		SecretMode:          current.Secrets.Mode,
		VaultName:           current.Secrets.VaultName,
		VaultResourceGroup:  current.Secrets.VaultResourceGroup,
		CleanupMode:         current.Azure.CleanupMode,
		GenerateSSHKey:      current.SSH.GenerateKey,
	}

	form := huh.NewForm(
		// Subscription and placement
		huh.NewGroup(
			huh.NewInput().
				Title("Azure subscription ID").
				Value(&result.SubscriptionID).
				Validate(validateSubscriptionID),
			huh.NewSelect[string]().
				Title("Region").
				Options(
					huh.NewOption("West Europe (westeurope)", "westeurope"),
					huh.NewOption("North Europe (northeurope)", "northeurope"),
					huh.NewOption("East US (eastus)", "eastus"),
					huh.NewOption("East US 2 (eastus2)", "eastus2"),
					huh.NewOption("West US 2 (westus2)", "westus2"),
					huh.NewOption("UK South (uksouth)", "uksouth"),
				).
				Value(&result.Region),
			huh.NewInput().
				Title("Resource group prefix").
				Description("Containers are named <prefix>-<deploymentId>").
				Value(&result.ResourceGroupPrefix).
				Validate(validatePrefix),
			huh.NewInput().
				Title("Owner (optional)").
				Description("Recorded on every resource group as the owner tag").
				Value(&result.Owner),
		),

		// Template
		huh.NewGroup(
			huh.NewInput().
				Title("Template").
				Description("Local path to mainTemplate.json or an https:// template URL").
				Value(&result.TemplateRef).
				Validate(validateRequired("template")),
		),

		// Credentials
		huh.NewGroup(
			huh.NewSelect[SecretMode]().
				Title("Admin password handling").
				Options(
					huh.NewOption("Direct: generate or read from environment", SecretModeDirect),
					huh.NewOption("Key Vault reference", SecretModeVault),
				).
				Value(&result.SecretMode),
			huh.NewConfirm().
				Title("Generate an admin SSH key per deployment?").
				Value(&result.GenerateSSHKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Key Vault name").
				Value(&result.VaultName).
				Validate(validateRequired("vault name")),
			huh.NewInput().
				Title("Key Vault resource group").
				Value(&result.VaultResourceGroup).
				Validate(validateRequired("vault resource group")),
		).WithHideFunc(func() bool { return result.SecretMode != SecretModeVault }),

		// Cleanup policy
		huh.NewGroup(
			huh.NewSelect[CleanupMode]().
				Title("Default cleanup mode").
				Options(
					huh.NewOption("On success", CleanupOnSuccess),
					huh.NewOption("Immediate", CleanupImmediate),
					huh.NewOption("Manual", CleanupManual),
					huh.NewOption("Scheduled", CleanupScheduled),
				).
				Value(&result.CleanupMode),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}

	return result, nil
}

// Apply copies the wizard choices onto s.
func (r *WizardResult) Apply(s *Settings) {
	s.Azure.SubscriptionID = strings.TrimSpace(r.SubscriptionID)
	s.Azure.Region = r.Region
	s.Azure.ResourceGroupPrefix = strings.ToLower(strings.TrimSpace(r.ResourceGroupPrefix))
	s.Azure.Owner = strings.TrimSpace(r.Owner)
	s.Azure.TemplateRef = strings.TrimSpace(r.TemplateRef)
	s.Azure.CleanupMode = r.CleanupMode
	s.Secrets.Mode = r.SecretMode
	if r.SecretMode == SecretModeVault {
		s.Secrets.VaultName = strings.TrimSpace(r.VaultName)
		s.Secrets.VaultResourceGroup = strings.TrimSpace(r.VaultResourceGroup)
	}
	s.SSH.GenerateKey = r.GenerateSSHKey
}

func validateSubscriptionID(s string) error {
	if !subscriptionPattern.MatchString(strings.TrimSpace(s)) {
		return fmt.Errorf("subscription ID must be a GUID")
	}
	return nil
}

func validatePrefix(s string) error {
	if !prefixPattern.MatchString(strings.ToLower(strings.TrimSpace(s))) {
		return fmt.Errorf("prefix can only contain lowercase letters, numbers, and hyphens (max 28)")
	}
	return nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
