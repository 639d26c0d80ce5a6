package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// The prefix leaves room for "-<deploymentId>" with a 40-character
// scenario name inside the 90-character resource group limit.
var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,27}$`)

// Validate checks the settings and returns every violation joined together.
func (s *Settings) Validate() error {
	var errs []error

	if s.Workspace == "" {
		errs = append(errs, errors.New("workspace is required"))
	}

	if s.Azure.SubscriptionID == "" {
		errs = append(errs, errors.New("azure.subscriptionId is required"))
	}
	if s.Azure.Region == "" {
		errs = append(errs, errors.New("azure.region is required"))
	}
	if !prefixPattern.MatchString(s.Azure.ResourceGroupPrefix) {
		errs = append(errs, fmt.Errorf("azure.resourceGroupPrefix %q must be lowercase alphanumerics and hyphens, at most 28 characters", s.Azure.ResourceGroupPrefix))
	}
	if s.Azure.TemplateRef == "" {
		errs = append(errs, errors.New("azure.templateRef is required"))
	} else if strings.Contains(s.Azure.TemplateRef, "://") {
		if u, err := url.Parse(s.Azure.TemplateRef); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			errs = append(errs, fmt.Errorf("azure.templateRef %q must be a local path or an http(s) URL", s.Azure.TemplateRef))
		}
	}
	switch s.Azure.CleanupMode {
	case CleanupImmediate, CleanupOnSuccess, CleanupManual, CleanupScheduled:
	default:
		errs = append(errs, fmt.Errorf("azure.cleanupMode %q is not one of immediate, on-success, manual, scheduled", s.Azure.CleanupMode))
	}
	if s.Azure.ExpiresAfter.Duration < 0 {
		errs = append(errs, errors.New("azure.expiresAfter must not be negative"))
	}

	switch s.Secrets.Mode {
	case SecretModeVault:
		if s.Secrets.VaultName == "" {
			errs = append(errs, errors.New("secrets.vaultName is required in vault mode"))
		}
		if s.Secrets.VaultResourceGroup == "" {
			errs = append(errs, errors.New("secrets.vaultResourceGroup is required in vault mode"))
		}
	case SecretModeDirect:
	default:
		errs = append(errs, fmt.Errorf("secrets.mode %q must be vault or direct", s.Secrets.Mode))
	}

	if s.SSH.GenerateKey && s.SSH.Bits < 2048 {
		errs = append(errs, fmt.Errorf("ssh.bits %d must be at least 2048", s.SSH.Bits))
	}

	o := s.Orchestration
	if o.IDRetries < 1 {
		errs = append(errs, errors.New("orchestration.idRetries must be at least 1"))
	}
	if o.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("orchestration.pollInterval must be positive"))
	}
	if o.DeploymentTimeout.Duration <= o.PollInterval.Duration {
		errs = append(errs, errors.New("orchestration.deploymentTimeout must exceed pollInterval"))
	}
	if o.ValidationTimeout.Duration <= 0 {
		errs = append(errs, errors.New("orchestration.validationTimeout must be positive"))
	}
	if o.NotFoundGrace.Duration < 0 {
		errs = append(errs, errors.New("orchestration.notFoundGrace must not be negative"))
	}
	if o.Concurrency < 1 || o.Concurrency > 32 {
		errs = append(errs, fmt.Errorf("orchestration.concurrency %d must be between 1 and 32", o.Concurrency))
	}
	if o.UpdateAttempts < 1 {
		errs = append(errs, errors.New("orchestration.updateAttempts must be at least 1"))
	}
	if o.PollRetries < 0 {
		errs = append(errs, errors.New("orchestration.pollRetries must not be negative"))
	}
	if o.CleanupConfirmAttempts < 1 {
		errs = append(errs, errors.New("orchestration.cleanupConfirmAttempts must be at least 1"))
	}
	if o.ProviderRateLimit <= 0 || o.ProviderBurst < 1 {
		errs = append(errs, errors.New("orchestration.providerRateLimit and providerBurst must be positive"))
	}

	switch s.State.Backend {
	case StateBackendFile, StateBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("state.backend %q must be file or sqlite", s.State.Backend))
	}

	if s.Validation.BoltPort < 1 || s.Validation.BoltPort > 65535 {
		errs = append(errs, fmt.Errorf("validation.boltPort %d is out of range", s.Validation.BoltPort))
	}

	return errors.Join(errs...)
}
