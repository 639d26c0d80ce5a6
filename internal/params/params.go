// Package params turns a scenario plus settings into the immutable,
// per-attempt ARM parameter set and persists it before any cloud call.
package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/keygen"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/naming"
)

// ARM parameter names understood by the Neo4j marketplace template.
const (
	ParamLocation            = "location"
	ParamNodeCount           = "nodeCount"
	ParamVersion             = "graphDatabaseVersion"
	ParamDiskSize            = "diskSize"
	ParamLicenseType         = "licenseType"
	ParamVMSize              = "vmSize"
	ParamReadReplicaCount    = "readReplicaCount"
	ParamReadReplicaVMSize   = "readReplicaVmSize"
	ParamReadReplicaDiskSize = "readReplicaDiskSize"
	ParamInstallGDS          = "installGraphDataScience"
	ParamGDSLicenseKey       = "graphDataScienceLicenseKey"
	ParamInstallBloom        = "installBloom"
	ParamBloomLicenseKey     = "bloomLicenseKey"
	ParamAdminPassword       = "adminPassword"
	ParamKeyVaultName        = "keyVaultName"
	ParamKeyVaultRG          = "keyVaultResourceGroup"
	ParamAdminPasswordSecret = "adminPasswordSecretName"
	ParamAdminSSHPublicKey   = "adminSshPublicKey"
	artifactMode             = 0o600
	artifactDirMode          = 0o700
	tempSuffix               = ".tmp"
)

// VaultRef points at the admin credential inside Azure Key Vault.
type VaultRef struct {
	VaultName     string
	ResourceGroup string
	SecretName    string
	ResourceID    string
}

// ParameterSet is the immutable input of one deployment attempt.
type ParameterSet struct {
	DeploymentID   string
	ScenarioName   string
	ContainerName  string
	DeploymentName string
	Region         string
	Template       provider.TemplateRef
	SecretMode     config.SecretMode
	Values         map[string]provider.Parameter

	// Vault is set in vault mode; Password in direct mode.
	Vault    *VaultRef
	Password Secret

	SSHPublicKey string
	// SSHKeyPath is the private key file, empty when no key was generated.
	SSHKeyPath string
	Path       string
	CreatedAt  time.Time
}

// Submission builds the provider request for this attempt.
func (p *ParameterSet) Submission(tags map[string]string) provider.Submission {
	return provider.Submission{
		Container:      p.ContainerName,
		DeploymentName: p.DeploymentName,
		Template:       p.Template,
		Parameters:     p.Values,
		Tags:           tags,
	}
}

// RecordLookup is the slice of the state store the materializer needs.
type RecordLookup interface {
	Get(ctx context.Context, id string) (deployment.Record, error)
}

// Materializer allocates deployment ids and writes parameter artifacts.
type Materializer struct {
	Dir    string
	Store  RecordLookup
	Clock  clockwork.Clock
	Suffix func() (string, error)
	Getenv func(string) string
}

// NewMaterializer writes artifacts under dir and checks ids against store.
func NewMaterializer(dir string, store RecordLookup) *Materializer {
	return &Materializer{
		Dir:    dir,
		Store:  store,
		Clock:  clockwork.NewRealClock(),
		Suffix: naming.RandomSuffix,
		Getenv: os.Getenv,
	}
}

// Materialize allocates a fresh deployment id for sc and durably writes
// its parameter artifact. The id is checked against the store and the
// artifact path is claimed exclusively; a collision regenerates the suffix
// up to settings.Orchestration.IDRetries times.
func (m *Materializer) Materialize(ctx context.Context, sc scenario.Scenario, settings *config.Settings) (*ParameterSet, error) {
	if err := sc.Validate(); err != nil {
		return nil, deployment.ConfigError("materialize", err)
	}
	if err := os.MkdirAll(m.Dir, artifactDirMode); err != nil {
		return nil, fmt.Errorf("create params dir: %w", err)
	}

	password, err := m.password(settings)
	if err != nil {
		return nil, err
	}

	now := m.Clock.Now().UTC()
	attempts := settings.Orchestration.IDRetries + 1
	for range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		suffix, err := m.Suffix()
		if err != nil {
			return nil, fmt.Errorf("generate id suffix: %w", err)
		}
		id := naming.DeploymentID(sc.Name, now, suffix)

		taken, err := m.taken(ctx, id)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		ps, err := m.build(id, sc, settings, password, now)
		if err != nil {
			return nil, err
		}
		if err := m.writeSSHKey(ps, settings); err != nil {
			return nil, err
		}
		switch err := writeExclusive(ps.Path, ps.document()); {
		case err == nil:
			return ps, nil
		case errors.Is(err, os.ErrExist):
			if ps.SSHKeyPath != "" {
				_ = os.Remove(ps.SSHKeyPath)
			}
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: scenario %s after %d attempts", deployment.ErrIDGenerationExhausted, sc.Name, attempts)
}

// PreviewSuffix is the id suffix of parameter sets built by Preview.
const PreviewSuffix = "0000"

// Preview builds the parameter set sc would get without allocating an id
// or writing anything. Template validation uses it.
func (m *Materializer) Preview(sc scenario.Scenario, settings *config.Settings) (*ParameterSet, error) {
	if err := sc.Validate(); err != nil {
		return nil, deployment.ConfigError("preview", err)
	}
	password, err := m.password(settings)
	if err != nil {
		return nil, err
	}
	now := m.Clock.Now().UTC()
	ps, err := m.build(naming.DeploymentID(sc.Name, now, PreviewSuffix), sc, settings, password, now)
	if err != nil {
		return nil, err
	}
	ps.Path = ""
	return ps, nil
}

func (m *Materializer) taken(ctx context.Context, id string) (bool, error) {
	_, err := m.Store.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, deployment.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check deployment id %s: %w", id, err)
	}
}

func (m *Materializer) password(settings *config.Settings) (Secret, error) {
	if settings.Secrets.Mode == config.SecretModeVault {
		return Secret{}, nil
	}
	if env := settings.Secrets.PasswordEnv; env != "" {
		if v := m.Getenv(env); v != "" {
			return NewSecret(v), nil
		}
	}
	p, err := keygen.GeneratePassword(keygen.DefaultPasswordLength)
	if err != nil {
		return Secret{}, fmt.Errorf("generate admin password: %w", err)
	}
	return NewSecret(p), nil
}

func (m *Materializer) build(id string, sc scenario.Scenario, settings *config.Settings, password Secret, now time.Time) (*ParameterSet, error) {
	ps := &ParameterSet{
		DeploymentID:   id,
		ScenarioName:   sc.Name,
		ContainerName:  naming.Container(settings.Azure.ResourceGroupPrefix, id),
		DeploymentName: naming.Deployment(id),
		Region:         settings.Azure.Region,
		Template:       provider.ParseTemplateRef(settings.Azure.TemplateRef),
		SecretMode:     settings.Secrets.Mode,
		Values:         ScenarioValues(sc, settings.Azure.Region),
		Path:           filepath.Join(m.Dir, naming.ParamsFile(id)),
		CreatedAt:      now,
	}

	if settings.Secrets.Mode == config.SecretModeVault {
		ref := &VaultRef{
			VaultName:     settings.Secrets.VaultName,
			ResourceGroup: settings.Secrets.VaultResourceGroup,
			SecretName:    settings.Secrets.SecretName,
			ResourceID:    settings.Secrets.VaultResourceID(settings.Azure.SubscriptionID),
		}
		ps.Vault = ref
		ps.Values[ParamAdminPassword] = provider.Parameter{Reference: &provider.KeyVaultReference{
			KeyVault:   provider.KeyVaultID{ID: ref.ResourceID},
			SecretName: ref.SecretName,
		}}
		ps.Values[ParamKeyVaultName] = provider.Parameter{Value: ref.VaultName}
		ps.Values[ParamKeyVaultRG] = provider.Parameter{Value: ref.ResourceGroup}
		ps.Values[ParamAdminPasswordSecret] = provider.Parameter{Value: ref.SecretName}
	} else {
		ps.Password = password
		ps.Values[ParamAdminPassword] = provider.Parameter{Value: password.Reveal()}
	}
	return ps, nil
}

func (m *Materializer) writeSSHKey(ps *ParameterSet, settings *config.Settings) error {
	if !settings.SSH.GenerateKey {
		return nil
	}
	kp, err := keygen.GenerateRSAKeyPair(settings.SSH.Bits)
	if err != nil {
		return fmt.Errorf("generate admin ssh key: %w", err)
	}
	path := filepath.Join(m.Dir, naming.SSHKeyFile(ps.DeploymentID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, artifactMode)
	if err != nil {
		return fmt.Errorf("write admin ssh key: %w", err)
	}
	if _, err := f.Write(kp.PrivateKey); err != nil {
		_ = f.Close()
		return fmt.Errorf("write admin ssh key: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write admin ssh key: %w", err)
	}
	ps.SSHPublicKey = kp.AuthorizedKey()
	ps.SSHKeyPath = path
	ps.Values[ParamAdminSSHPublicKey] = provider.Parameter{Value: ps.SSHPublicKey}
	return nil
}

// ScenarioValues maps a scenario onto the template's parameter names.
// Credential parameters are added separately.
func ScenarioValues(sc scenario.Scenario, region string) map[string]provider.Parameter {
	v := map[string]provider.Parameter{
		ParamLocation:     {Value: region},
		ParamNodeCount:    {Value: sc.NodeCount},
		ParamVersion:      {Value: sc.GraphDatabaseVersion},
		ParamDiskSize:     {Value: sc.DiskSizeGB},
		ParamLicenseType:  {Value: sc.LicenseType},
		ParamVMSize:       {Value: sc.VMSize},
		ParamInstallGDS:   {Value: yesNo(sc.InstallGraphDataScience)},
		ParamInstallBloom: {Value: yesNo(sc.InstallBloom)},
	}
	if sc.GraphDatabaseVersion == scenario.Version44 {
		v[ParamReadReplicaCount] = provider.Parameter{Value: sc.ReadReplicaCount}
		v[ParamReadReplicaVMSize] = provider.Parameter{Value: sc.ReadReplicaVMSize}
		v[ParamReadReplicaDiskSize] = provider.Parameter{Value: sc.ReadReplicaDiskSizeGB}
	}
	if sc.GraphDataScienceKey.Set() {
		v[ParamGDSLicenseKey] = provider.Parameter{Value: string(sc.GraphDataScienceKey)}
	}
	if sc.BloomKey.Set() {
		v[ParamBloomLicenseKey] = provider.Parameter{Value: string(sc.BloomKey)}
	}
	return v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func (p *ParameterSet) document() *Document {
	return &Document{
		Schema:         SchemaURL,
		ContentVersion: ContentVersion,
		Metadata: Metadata{
			DeploymentID:   p.DeploymentID,
			ScenarioName:   p.ScenarioName,
			ContainerName:  p.ContainerName,
			DeploymentName: p.DeploymentName,
			Region:         p.Region,
			TemplateRef:    p.Template.String(),
			SecretMode:     string(p.SecretMode),
			CreatedAt:      p.CreatedAt,
		},
		Parameters: p.Values,
	}
}

// writeExclusive writes doc to a temp file, syncs it and hard-links it into
// place. The link fails with os.ErrExist if path is already claimed, so an
// artifact is never overwritten and never observed half-written.
func writeExclusive(path string, doc *Document) error {
	data, err := doc.encode()
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(artifactMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write parameters: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write parameters: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write parameters: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}

// Load reads the artifact of deployment id from dir.
func Load(dir, id string) (*ParameterSet, error) {
	return LoadFile(filepath.Join(dir, naming.ParamsFile(id)))
}

// LoadFile reads a parameter artifact back into a ParameterSet.
func LoadFile(path string) (*ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("parameters %s: %w", path, deployment.ErrNotFound)
		}
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse parameters %s: %w", path, err)
	}

	md := doc.Metadata
	ps := &ParameterSet{
		DeploymentID:   md.DeploymentID,
		ScenarioName:   md.ScenarioName,
		ContainerName:  md.ContainerName,
		DeploymentName: md.DeploymentName,
		Region:         md.Region,
		Template:       provider.ParseTemplateRef(md.TemplateRef),
		SecretMode:     config.SecretMode(md.SecretMode),
		Values:         doc.Parameters,
		Path:           path,
		CreatedAt:      md.CreatedAt,
	}
	if ps.Values == nil {
		ps.Values = map[string]provider.Parameter{}
	}

	admin := ps.Values[ParamAdminPassword]
	switch {
	case admin.Reference != nil:
		ps.Vault = &VaultRef{
			ResourceID: admin.Reference.KeyVault.ID,
			SecretName: admin.Reference.SecretName,
		}
		ps.Vault.VaultName, _ = ps.Values[ParamKeyVaultName].Value.(string)
		ps.Vault.ResourceGroup, _ = ps.Values[ParamKeyVaultRG].Value.(string)
	case admin.Value != nil:
		s, _ := admin.Value.(string)
		ps.Password = NewSecret(s)
	}
	if key, ok := ps.Values[ParamAdminSSHPublicKey].Value.(string); ok {
		ps.SSHPublicKey = key
		ps.SSHKeyPath = filepath.Join(filepath.Dir(path), naming.SSHKeyFile(md.DeploymentID))
		if _, err := os.Stat(ps.SSHKeyPath); err != nil {
			ps.SSHKeyPath = ""
		}
	}
	return ps, nil
}

// Remove deletes the artifact and private key of deployment id. Missing
// files are not an error.
func Remove(dir, id string) error {
	var errs []error
	for _, name := range []string{naming.ParamsFile(id), naming.SSHKeyFile(id)} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
