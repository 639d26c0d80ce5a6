package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SecretMode selects how the workload admin credential reaches the template.
type SecretMode string

const (
	// SecretModeVault passes an ARM Key Vault reference; no plaintext is written.
	SecretModeVault SecretMode = "vault"
	// SecretModeDirect embeds the credential in the parameter artifact.
	SecretModeDirect SecretMode = "direct"
)

// StateBackend selects the deployment state store implementation.
type StateBackend string

const (
	StateBackendFile   StateBackend = "file"
	StateBackendSQLite StateBackend = "sqlite"
)

// CleanupMode is recorded on every container as the cleanup-mode tag.
type CleanupMode string

const (
	CleanupImmediate CleanupMode = "immediate"
	CleanupOnSuccess CleanupMode = "on-success"
	CleanupManual    CleanupMode = "manual"
	CleanupScheduled CleanupMode = "scheduled"
)

// Settings is the validated, strongly typed tool configuration.
type Settings struct {
	// Workspace is the root of all persisted files. Default ".arm-testing".
	Workspace string `yaml:"workspace,omitempty"`

	Azure         Azure         `yaml:"azure"`
	Secrets       Secrets       `yaml:"secrets"`
	SSH           SSH           `yaml:"ssh"`
	Orchestration Orchestration `yaml:"orchestration"`
	State         State         `yaml:"state"`
	Validation    Validation    `yaml:"validation"`
	Report        Report        `yaml:"report"`
}

// Azure holds the target subscription and template settings.
type Azure struct {
	SubscriptionID      string            `yaml:"subscriptionId"`
	Region              string            `yaml:"region"`
	ResourceGroupPrefix string            `yaml:"resourceGroupPrefix"`
	TemplateRef         string            `yaml:"templateRef"`
	Owner               string            `yaml:"owner,omitempty"`
	Branch              string            `yaml:"branch,omitempty"`
	CleanupMode         CleanupMode       `yaml:"cleanupMode,omitempty"`
	ExpiresAfter        Duration          `yaml:"expiresAfter,omitempty"`
	Tags                map[string]string `yaml:"tags,omitempty"`
	// Endpoint overrides the Resource Manager endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Secrets controls how the admin credential is provisioned.
type Secrets struct {
	Mode               SecretMode `yaml:"mode"`
	VaultName          string     `yaml:"vaultName,omitempty"`
	VaultResourceGroup string     `yaml:"vaultResourceGroup,omitempty"`
	SecretName         string     `yaml:"secretName,omitempty"`
	PasswordEnv        string     `yaml:"passwordEnv,omitempty"`
}

// VaultResourceID returns the ARM id of the configured Key Vault.
func (s Secrets) VaultResourceID(subscriptionID string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.KeyVault/vaults/%s",
		subscriptionID, s.VaultResourceGroup, s.VaultName)
}

// VaultURL returns the data-plane URL of the configured Key Vault.
func (s Secrets) VaultURL() string {
	return VaultURL(s.VaultName)
}

// VaultURL returns the data-plane URL of the named Key Vault.
func VaultURL(name string) string {
	return fmt.Sprintf("https://%s.vault.azure.net", name)
}

// SSH controls admin key generation.
type SSH struct {
	GenerateKey bool `yaml:"generateKey"`
	Bits        int  `yaml:"bits,omitempty"`
}

// Orchestration holds the lifecycle timings and limits.
type Orchestration struct {
	IDRetries              int      `yaml:"idRetries"`
	PollInterval           Duration `yaml:"pollInterval"`
	DeploymentTimeout      Duration `yaml:"deploymentTimeout"`
	ValidationTimeout      Duration `yaml:"validationTimeout"`
	NotFoundGrace          Duration `yaml:"notFoundGrace"`
	Concurrency            int      `yaml:"concurrency"`
	UpdateAttempts         int      `yaml:"updateAttempts"`
	PollRetries            int      `yaml:"pollRetries"`
	CleanupConfirmAttempts int      `yaml:"cleanupConfirmAttempts"`
	CleanupConfirmInterval Duration `yaml:"cleanupConfirmInterval"`
	ProviderRateLimit      float64  `yaml:"providerRateLimit"`
	ProviderBurst          int      `yaml:"providerBurst"`
}

// State selects the state store backend.
type State struct {
	Backend StateBackend `yaml:"backend"`
}

// Validation holds workload smoke test settings.
type Validation struct {
	Username string `yaml:"username"`
	Database string `yaml:"database"`
	BoltPort int    `yaml:"boltPort"`
}

// Report holds optional report upload settings.
type Report struct {
	Bucket       string `yaml:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"usePathStyle,omitempty"`
}

// UploadEnabled reports whether a bucket is configured.
func (r Report) UploadEnabled() bool {
	return r.Bucket != ""
}

// Duration is a time.Duration that reads and writes Go duration strings in YAML.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns settings with every optional field populated.
func Defaults() *Settings {
	s := &Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (s *Settings) ApplyDefaults() {
	setString(&s.Workspace, DefaultWorkspace)

	setString(&s.Azure.Region, "westeurope")
	setString(&s.Azure.ResourceGroupPrefix, "neo4j-test")
	if s.Azure.CleanupMode == "" {
		s.Azure.CleanupMode = CleanupOnSuccess
	}

	if s.Secrets.Mode == "" {
		s.Secrets.Mode = SecretModeDirect
	}
	setString(&s.Secrets.SecretName, "neo4j-admin-password")
	setString(&s.Secrets.PasswordEnv, "NEO4J_ADMIN_PASSWORD")

	setInt(&s.SSH.Bits, 4096)

	o := &s.Orchestration
	setInt(&o.IDRetries, 3)
	setDuration(&o.PollInterval, 30*time.Second)
	setDuration(&o.DeploymentTimeout, 60*time.Minute)
	setDuration(&o.ValidationTimeout, 5*time.Minute)
	setDuration(&o.NotFoundGrace, 5*time.Minute)
	setInt(&o.Concurrency, 4)
	setInt(&o.UpdateAttempts, 5)
	setInt(&o.PollRetries, 3)
	setInt(&o.CleanupConfirmAttempts, 20)
	setDuration(&o.CleanupConfirmInterval, 30*time.Second)
	if o.ProviderRateLimit == 0 {
		o.ProviderRateLimit = 5
	}
	setInt(&o.ProviderBurst, 10)

	if s.State.Backend == "" {
		s.State.Backend = StateBackendFile
	}

	setString(&s.Validation.Username, "neo4j")
	setString(&s.Validation.Database, "neo4j")
	setInt(&s.Validation.BoltPort, 7687)
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setDuration(p *Duration, v time.Duration) {
	if p.Duration == 0 {
		p.Duration = v
	}
}
