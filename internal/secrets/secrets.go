// Package secrets resolves the workload admin credential of a deployment,
// either inline from its parameter set or from Azure Key Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
)

// ErrNoCredential means the parameter set carries neither an inline
// credential nor a vault reference.
var ErrNoCredential = errors.New("no admin credential in parameter set")

// Getter reads one secret from a vault.
type Getter interface {
	GetSecret(ctx context.Context, vaultURL, name string) (params.Secret, error)
}

// Resolver yields the plaintext credential for a parameter set.
type Resolver struct {
	Vault Getter
}

// NewResolver uses vault for vault-mode parameter sets. vault may be nil
// when only direct mode is configured.
func NewResolver(vault Getter) *Resolver {
	return &Resolver{Vault: vault}
}

// Credential returns the admin credential for ps.
func (r *Resolver) Credential(ctx context.Context, ps *params.ParameterSet) (params.Secret, error) {
	switch {
	case ps.Vault != nil:
		if r.Vault == nil {
			return params.Secret{}, fmt.Errorf("deployment %s uses vault %s but no vault client is configured", ps.DeploymentID, ps.Vault.VaultName)
		}
		s, err := r.Vault.GetSecret(ctx, config.VaultURL(ps.Vault.VaultName), ps.Vault.SecretName)
		if err != nil {
			return params.Secret{}, fmt.Errorf("read secret %s from vault %s: %w", ps.Vault.SecretName, ps.Vault.VaultName, err)
		}
		return s, nil
	case !ps.Password.Empty():
		return ps.Password, nil
	default:
		return params.Secret{}, fmt.Errorf("deployment %s: %w", ps.DeploymentID, ErrNoCredential)
	}
}

// KeyVault reads secrets with azsecrets, keeping one client per vault.
type KeyVault struct {
	cred azcore.TokenCredential
	opts *azsecrets.ClientOptions

	mu      sync.Mutex
	clients map[string]*azsecrets.Client
}

var _ Getter = (*KeyVault)(nil)

// NewKeyVault returns a Getter authenticated with cred.
func NewKeyVault(cred azcore.TokenCredential, opts *azsecrets.ClientOptions) *KeyVault {
	return &KeyVault{cred: cred, opts: opts, clients: make(map[string]*azsecrets.Client)}
}

func (k *KeyVault) client(vaultURL string) (*azsecrets.Client, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if c, ok := k.clients[vaultURL]; ok {
		return c, nil
	}
	c, err := azsecrets.NewClient(vaultURL, k.cred, k.opts)
	if err != nil {
		return nil, err
	}
	k.clients[vaultURL] = c
	return c, nil
}

// GetSecret reads the latest version of name.
func (k *KeyVault) GetSecret(ctx context.Context, vaultURL, name string) (params.Secret, error) {
	c, err := k.client(vaultURL)
	if err != nil {
		return params.Secret{}, err
	}
	resp, err := c.GetSecret(ctx, name, "", nil)
	if err != nil {
		return params.Secret{}, err
	}
	if resp.Value == nil || *resp.Value == "" {
		return params.Secret{}, fmt.Errorf("secret %s is empty", name)
	}
	return params.NewSecret(*resp.Value), nil
}
