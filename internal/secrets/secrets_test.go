package secrets

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/params"
)

type stubGetter struct {
	url, name string
	value     string
	err       error
}

func (s *stubGetter) GetSecret(_ context.Context, vaultURL, name string) (params.Secret, error) {
	s.url, s.name = vaultURL, name
	return params.NewSecret(s.value), s.err
}

func TestCredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("inline", func(t *testing.T) {
		r := NewResolver(nil)
		s, err := r.Credential(ctx, &params.ParameterSet{Password: params.NewSecret("pw")})
		require.NoError(t, err)
		assert.Equal(t, "pw", s.Reveal())
	})

	t.Run("vault", func(t *testing.T) {
		g := &stubGetter{value: "from-vault"}
		r := NewResolver(g)
		s, err := r.Credential(ctx, &params.ParameterSet{Vault: &params.VaultRef{VaultName: "kv1", SecretName: "admin"}})
		require.NoError(t, err)
		assert.Equal(t, "from-vault", s.Reveal())
		assert.Equal(t, "https://kv1.vault.azure.net", g.url)
		assert.Equal(t, "admin", g.name)
	})

	t.Run("vault error", func(t *testing.T) {
		boom := errors.New("forbidden")
		r := NewResolver(&stubGetter{err: boom})
		_, err := r.Credential(ctx, &params.ParameterSet{Vault: &params.VaultRef{VaultName: "kv1", SecretName: "admin"}})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("vault without client", func(t *testing.T) {
		_, err := NewResolver(nil).Credential(ctx, &params.ParameterSet{Vault: &params.VaultRef{VaultName: "kv1"}})
		assert.Error(t, err)
	})

	t.Run("nothing", func(t *testing.T) {
		_, err := NewResolver(nil).Credential(ctx, &params.ParameterSet{DeploymentID: "d1"})
		assert.ErrorIs(t, err, ErrNoCredential)
	})
}

func TestKeyVault_GetSecret(t *testing.T) {
	t.Parallel()
	srv := fake.Server{
		GetSecret: func(_ context.Context, name, version string, _ *azsecrets.GetSecretOptions) (resp azfake.Responder[azsecrets.GetSecretResponse], errResp azfake.ErrorResponder) {
			if name != "neo4j-admin-password" {
				errResp.SetResponseError(http.StatusNotFound, "SecretNotFound")
				return
			}
			resp.SetResponse(http.StatusOK, azsecrets.GetSecretResponse{
				Secret: azsecrets.Secret{Value: to.Ptr("s3cret-Value!")},
			}, nil)
			return
		},
	}
	kv := NewKeyVault(&azfake.TokenCredential{}, &azsecrets.ClientOptions{
		ClientOptions: azcore.ClientOptions{Transport: fake.NewServerTransport(&srv)},
	})
	ctx := context.Background()

	s, err := kv.GetSecret(ctx, "https://kv1.vault.azure.net", "neo4j-admin-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-Value!", s.Reveal())

	_, err = kv.GetSecret(ctx, "https://kv1.vault.azure.net", "other")
	var re *azcore.ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
}
