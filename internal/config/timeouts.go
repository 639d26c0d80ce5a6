package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables that override settings loaded from file.
const (
	EnvWorkspace         = "NEO4J_DEPLOY_WORKSPACE"
	EnvPollInterval      = "NEO4J_DEPLOY_POLL_INTERVAL"
	EnvTimeout           = "NEO4J_DEPLOY_TIMEOUT"
	EnvValidationTimeout = "NEO4J_DEPLOY_VALIDATION_TIMEOUT"
	EnvNotFoundGrace     = "NEO4J_DEPLOY_NOT_FOUND_GRACE"
	EnvConcurrency       = "NEO4J_DEPLOY_CONCURRENCY"
	EnvIDRetries         = "NEO4J_DEPLOY_ID_RETRIES"
	EnvUpdateAttempts    = "NEO4J_DEPLOY_UPDATE_ATTEMPTS"
	EnvPollRetries       = "NEO4J_DEPLOY_POLL_RETRIES"
	EnvSubscriptionID    = "AZURE_SUBSCRIPTION_ID"
)

// ApplyEnvOverrides replaces settings with values from the environment.
// Unset or unparsable variables leave the current value in place.
//
// Environment Variables:
//   - NEO4J_DEPLOY_POLL_INTERVAL (default: 30s)
//   - NEO4J_DEPLOY_TIMEOUT (default: 60m)
//   - NEO4J_DEPLOY_VALIDATION_TIMEOUT (default: 5m)
//   - NEO4J_DEPLOY_NOT_FOUND_GRACE (default: 5m)
//   - NEO4J_DEPLOY_CONCURRENCY (default: 4)
//   - NEO4J_DEPLOY_ID_RETRIES (default: 3)
//   - NEO4J_DEPLOY_UPDATE_ATTEMPTS (default: 5)
//   - NEO4J_DEPLOY_POLL_RETRIES (default: 3)
//   - AZURE_SUBSCRIPTION_ID (used when azure.subscriptionId is empty)
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv(EnvWorkspace); v != "" {
		s.Workspace = v
	}
	if s.Azure.SubscriptionID == "" {
		s.Azure.SubscriptionID = os.Getenv(EnvSubscriptionID)
	}

	o := &s.Orchestration
	o.PollInterval.Duration = parseDuration(EnvPollInterval, o.PollInterval.Duration)
	o.DeploymentTimeout.Duration = parseDuration(EnvTimeout, o.DeploymentTimeout.Duration)
	o.ValidationTimeout.Duration = parseDuration(EnvValidationTimeout, o.ValidationTimeout.Duration)
	o.NotFoundGrace.Duration = parseDuration(EnvNotFoundGrace, o.NotFoundGrace.Duration)
	o.Concurrency = parseInt(EnvConcurrency, o.Concurrency)
	o.IDRetries = parseInt(EnvIDRetries, o.IDRetries)
	o.UpdateAttempts = parseInt(EnvUpdateAttempts, o.UpdateAttempts)
	o.PollRetries = parseInt(EnvPollRetries, o.PollRetries)
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
