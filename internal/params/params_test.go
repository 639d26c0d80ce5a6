package params

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/keygen"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/naming"
)

type mapLookup struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *mapLookup) Get(_ context.Context, id string) (deployment.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[id] {
		return deployment.Record{ID: id}, nil
	}
	return deployment.Record{}, deployment.ErrNotFound
}

func testSettings() *config.Settings {
	s := config.Defaults()
	s.Azure.SubscriptionID = "sub-1"
	s.Azure.TemplateRef = "marketplace/neo4j-enterprise/mainTemplate.json"
	return s
}

func standalone() scenario.Scenario {
	return scenario.DefaultScenarios()[0]
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMaterializer(t *testing.T, lookup RecordLookup, suffixes ...string) *Materializer {
	t.Helper()
	m := NewMaterializer(t.TempDir(), lookup)
	m.Clock = clockwork.NewFakeClockAt(fixedNow)
	m.Getenv = func(string) string { return "" }
	if len(suffixes) > 0 {
		var mu sync.Mutex
		i := 0
		m.Suffix = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			s := suffixes[i%len(suffixes)]
			i++
			return s, nil
		}
	}
	return m
}

func TestMaterialize_Direct(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{}, "ab12")
	m.Getenv = func(k string) string {
		if k == "NEO4J_ADMIN_PASSWORD" {
			return "from-env-Secret1!"
		}
		return ""
	}

	ps, err := m.Materialize(context.Background(), standalone(), testSettings())
	require.NoError(t, err)

	assert.Equal(t, "standalone-v5-20260301-120000-ab12", ps.DeploymentID)
	assert.Equal(t, "neo4j-test-standalone-v5-20260301-120000-ab12", ps.ContainerName)
	assert.Equal(t, "neo4j-standalone-v5-20260301-120000-ab12", ps.DeploymentName)
	assert.Equal(t, "from-env-Secret1!", ps.Password.Reveal())
	assert.Nil(t, ps.Vault)
	assert.Equal(t, "No", ps.Values[ParamInstallBloom].Value)
	assert.NotContains(t, ps.Values, ParamReadReplicaCount)

	info, err := os.Stat(ps.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	var doc map[string]any
	raw, err := os.ReadFile(ps.Path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, SchemaURL, doc["$schema"])
	assert.Equal(t, ContentVersion, doc["contentVersion"])
}

func TestMaterialize_GeneratesPassword(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{})
	ps, err := m.Materialize(context.Background(), standalone(), testSettings())
	require.NoError(t, err)
	assert.Len(t, ps.Password.Reveal(), keygen.DefaultPasswordLength)
	assert.True(t, keygen.MeetsPasswordPolicy(ps.Password.Reveal()))
}

func TestMaterialize_VaultHasNoPlaintext(t *testing.T) {
	t.Parallel()
	s := testSettings()
	s.Secrets.Mode = config.SecretModeVault
	s.Secrets.VaultName = "kv-neo4j"
	s.Secrets.VaultResourceGroup = "rg-secrets"

	m := newTestMaterializer(t, &mapLookup{})
	m.Getenv = func(string) string { return "must-not-appear" }
	ps, err := m.Materialize(context.Background(), standalone(), s)
	require.NoError(t, err)

	require.NotNil(t, ps.Vault)
	assert.True(t, ps.Password.Empty())
	ref := ps.Values[ParamAdminPassword].Reference
	require.NotNil(t, ref)
	assert.Equal(t, "/subscriptions/sub-1/resourceGroups/rg-secrets/providers/Microsoft.KeyVault/vaults/kv-neo4j", ref.KeyVault.ID)
	assert.Equal(t, "neo4j-admin-password", ref.SecretName)
	assert.Equal(t, "kv-neo4j", ps.Values[ParamKeyVaultName].Value)

	raw, err := os.ReadFile(ps.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "must-not-appear")
	assert.Contains(t, string(raw), `"reference"`)

	loaded, err := LoadFile(ps.Path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Vault)
	assert.Equal(t, "kv-neo4j", loaded.Vault.VaultName)
	assert.Equal(t, ref.KeyVault.ID, loaded.Vault.ResourceID)
}

func TestMaterialize_RegeneratesOnCollision(t *testing.T) {
	t.Parallel()
	taken := naming.DeploymentID("standalone-v5", fixedNow, "aaaa")
	m := newTestMaterializer(t, &mapLookup{ids: map[string]bool{taken: true}}, "aaaa", "bbbb")

	ps, err := m.Materialize(context.Background(), standalone(), testSettings())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ps.DeploymentID, "-bbbb"))
}

func TestMaterialize_ArtifactCollision(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{}, "aaaa", "cccc")
	existing := filepath.Join(m.Dir, naming.ParamsFile(naming.DeploymentID("standalone-v5", fixedNow, "aaaa")))
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	ps, err := m.Materialize(context.Background(), standalone(), testSettings())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ps.DeploymentID, "-cccc"))

	raw, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw), "existing artifact must not be overwritten")
}

func TestMaterialize_Exhausted(t *testing.T) {
	t.Parallel()
	taken := naming.DeploymentID("standalone-v5", fixedNow, "aaaa")
	m := newTestMaterializer(t, &mapLookup{ids: map[string]bool{taken: true}}, "aaaa")

	_, err := m.Materialize(context.Background(), standalone(), testSettings())
	require.ErrorIs(t, err, deployment.ErrIDGenerationExhausted)
	assert.Contains(t, err.Error(), "4 attempts")
}

func TestMaterialize_InvalidScenario(t *testing.T) {
	t.Parallel()
	sc := standalone()
	sc.NodeCount = 2
	_, err := newTestMaterializer(t, &mapLookup{}).Materialize(context.Background(), sc, testSettings())
	assert.ErrorIs(t, err, deployment.ErrInvalidConfig)
	assert.True(t, deployment.IsKind(err, deployment.KindConfig))
}

func TestMaterialize_ConcurrentDistinctIDs(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{})
	m.Clock = clockwork.NewRealClock()

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps, err := m.Materialize(context.Background(), standalone(), testSettings())
			if assert.NoError(t, err) {
				ids <- ps.DeploymentID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMaterialize_SSHKey(t *testing.T) {
	t.Parallel()
	s := testSettings()
	s.SSH.GenerateKey = true
	s.SSH.Bits = 2048

	ps, err := newTestMaterializer(t, &mapLookup{}).Materialize(context.Background(), standalone(), s)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ps.SSHPublicKey, "ssh-rsa "))

	info, err := os.Stat(ps.SSHKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFile(ps.Path)
	require.NoError(t, err)
	assert.Equal(t, ps.SSHKeyPath, loaded.SSHKeyPath)

	require.NoError(t, Remove(filepath.Dir(ps.Path), ps.DeploymentID))
	_, err = os.Stat(ps.SSHKeyPath)
	assert.True(t, os.IsNotExist(err))
}

func TestLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{}, "zz99")
	sc := scenario.DefaultScenarios()[3]
	ps, err := m.Materialize(context.Background(), sc, testSettings())
	require.NoError(t, err)

	loaded, err := Load(m.Dir, ps.DeploymentID)
	require.NoError(t, err)
	assert.Equal(t, ps.DeploymentID, loaded.DeploymentID)
	assert.Equal(t, ps.ContainerName, loaded.ContainerName)
	assert.Equal(t, ps.Template, loaded.Template)
	assert.Equal(t, ps.CreatedAt, loaded.CreatedAt)
	assert.Equal(t, ps.Password.Reveal(), loaded.Password.Reveal())
	assert.Contains(t, loaded.Values, ParamReadReplicaCount)

	_, err = Load(m.Dir, "nope")
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestSubmission(t *testing.T) {
	t.Parallel()
	ps := &ParameterSet{ContainerName: "rg", DeploymentName: "d", Template: provider.TemplateRef{URI: "https://x"}}
	sub := ps.Submission(map[string]string{"a": "b"})
	assert.Equal(t, "rg", sub.Container)
	assert.Equal(t, "d", sub.DeploymentName)
	assert.Equal(t, "b", sub.Tags["a"])
}

func TestSecretRedaction(t *testing.T) {
	t.Parallel()
	s := NewSecret("hunter2-Secret!")
	for _, out := range []string{
		fmt.Sprint(s),
		fmt.Sprintf("%v %s %+v %#v", s, s, s, s),
		fmt.Sprintf("%+v", ParameterSet{Password: s}),
	} {
		assert.NotContains(t, out, "hunter2")
	}
	raw, err := json.Marshal(struct{ P Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.Equal(t, "[redacted]", s.MarshalLog())
	assert.Equal(t, "", NewSecret("").String())
}

func TestPreview_WritesNothing(t *testing.T) {
	t.Parallel()
	m := newTestMaterializer(t, &mapLookup{})
	ps, err := m.Preview(standalone(), testSettings())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ps.DeploymentID, "-"+PreviewSuffix))
	assert.Empty(t, ps.Path)

	entries, err := os.ReadDir(m.Dir)
	if err == nil {
		assert.Empty(t, entries)
	}
}
