package orchestrator

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
	"github.com/neo4j-partners/neo4j-deploy/internal/provider/fake"
	"github.com/neo4j-partners/neo4j-deploy/internal/scenario"
	"github.com/neo4j-partners/neo4j-deploy/internal/state"
	"github.com/neo4j-partners/neo4j-deploy/internal/util/labels"
)

func testSettings() *config.Settings {
	s := config.Defaults()
	s.Azure.SubscriptionID = "sub-1"
	s.Azure.TemplateRef = "marketplace/neo4j-enterprise/mainTemplate.json"
	s.Azure.Owner = "ci"
	return s
}

func standalone() scenario.Scenario {
	return scenario.DefaultScenarios()[0]
}

func newTestOrchestrator(t *testing.T, p provider.Provider) (*Orchestrator, state.Store) {
	t.Helper()
	store, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := params.NewMaterializer(t.TempDir(), store)
	m.Getenv = func(string) string { return "" }

	o := New(testSettings(), store, p, m, nil)
	o.RetryDelay = time.Millisecond
	return o, store
}

// observingProvider records the stored status of a deployment at the
// moment its container is created.
type observingProvider struct {
	*fake.Provider
	store      state.Store
	seen       atomic.Value
	createErrs []error
}

func (p *observingProvider) CreateContainer(ctx context.Context, spec provider.ContainerSpec) (provider.Container, error) {
	if id := spec.Tags[labels.KeyDeploymentID]; id != "" {
		if rec, err := p.store.Get(ctx, id); err == nil {
			p.seen.Store(rec.Status)
		}
	}
	if len(p.createErrs) > 0 {
		err := p.createErrs[0]
		p.createErrs = p.createErrs[1:]
		return provider.Container{}, err
	}
	return p.Provider.CreateContainer(ctx, spec)
}

func TestDeploy_Submits(t *testing.T) {
	t.Parallel()
	f := fake.New()
	o, store := newTestOrchestrator(t, f)
	ctx := context.Background()

	rec, err := o.Deploy(ctx, standalone())
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusProvisioning, rec.Status)
	require.NotNil(t, rec.SubmittedAt)
	assert.Equal(t, "standalone-v5", rec.ScenarioName)

	stored, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusProvisioning, stored.Status)
	assert.Equal(t, rec.Version, stored.Version)

	c, err := f.GetContainer(ctx, rec.ContainerName)
	require.NoError(t, err)
	assert.True(t, labels.IsManaged(c.Tags))
	assert.Equal(t, rec.ID, c.Tags[labels.KeyDeploymentID])
	assert.Equal(t, "ci", c.Tags["owner"])

	subs := f.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, rec.DeploymentName, subs[0].DeploymentName)
	assert.Equal(t, rec.ContainerName, subs[0].Container)

	_, err = os.Stat(rec.ParameterPath)
	assert.NoError(t, err)
}

func TestDeploy_RegistersRecordBeforeCloudCalls(t *testing.T) {
	t.Parallel()
	p := &observingProvider{Provider: fake.New()}
	o, store := newTestOrchestrator(t, p)
	p.store = store

	_, err := o.Deploy(context.Background(), standalone())
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusCreated, p.seen.Load())
}

func TestDeploy_RetriesTransientContainerCreate(t *testing.T) {
	t.Parallel()
	p := &observingProvider{Provider: fake.New(), createErrs: []error{
		&provider.HTTPError{StatusCode: 503, Message: "try later"},
	}}
	o, store := newTestOrchestrator(t, p)
	p.store = store

	rec, err := o.Deploy(context.Background(), standalone())
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusProvisioning, rec.Status)
}

func TestDeploy_SubmissionFailure(t *testing.T) {
	t.Parallel()
	f := fake.New()
	f.SubmitErr = &provider.HTTPError{StatusCode: 400, Code: "InvalidTemplate", Message: "bad parameter vmSize"}
	o, store := newTestOrchestrator(t, f)
	ctx := context.Background()

	rec, err := o.Deploy(ctx, standalone())
	require.Error(t, err)
	assert.True(t, deployment.IsKind(err, deployment.KindSubmission))
	assert.Equal(t, 1, f.Calls("Submit"))

	stored, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorDetail, "bad parameter vmSize")
	assert.NotNil(t, stored.TerminalAt)
}

func TestDeploy_PreValidationFailure(t *testing.T) {
	t.Parallel()
	f := fake.New()
	f.ValidateErr = errors.New("template invalid")
	o, store := newTestOrchestrator(t, f)
	o.PreValidate = true

	rec, err := o.Deploy(context.Background(), standalone())
	require.Error(t, err)
	assert.Zero(t, f.Calls("Submit"))

	stored, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorDetail, "template validation")
}

func TestDeploy_InvalidScenario(t *testing.T) {
	t.Parallel()
	f := fake.New()
	o, store := newTestOrchestrator(t, f)

	bad := standalone()
	bad.NodeCount = 2
	_, err := o.Deploy(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, deployment.IsKind(err, deployment.KindConfig))
	assert.Zero(t, f.Calls("CreateContainer"))

	recs, err := store.List(context.Background(), state.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeployAll_IsolatesFailures(t *testing.T) {
	t.Parallel()
	f := fake.New()
	o, _ := newTestOrchestrator(t, f)

	bad := standalone()
	bad.Name = "broken"
	bad.NodeCount = 2
	scenarios := []scenario.Scenario{bad, standalone(), scenario.DefaultScenarios()[1]}

	outcomes, err := o.DeployAll(context.Background(), scenarios)
	require.Error(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "broken", outcomes[0].Scenario)
	assert.Error(t, outcomes[0].Err)
	for _, out := range outcomes[1:] {
		assert.NoError(t, out.Err, out.Scenario)
		assert.Equal(t, deployment.StatusProvisioning, out.Record.Status)
	}
	assert.Len(t, f.Submissions(), 2)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, fake.New())
	ctx := context.Background()

	rec, err := o.Deploy(ctx, standalone())
	require.NoError(t, err)

	got, err := o.Cancel(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, deployment.StatusProvisioning, got.Status)
}

func TestCancel_RequiresProvisioning(t *testing.T) {
	t.Parallel()
	f := fake.New()
	f.SubmitErr = errors.New("rejected")
	o, _ := newTestOrchestrator(t, f)
	ctx := context.Background()

	rec, err := o.Deploy(ctx, standalone())
	require.Error(t, err)

	_, err = o.Cancel(ctx, rec.ID)
	assert.ErrorIs(t, err, deployment.ErrInvalidTransition)

	_, err = o.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestWaitAll_NoReconciler(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, fake.New())

	recs, err := o.WaitAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = o.WaitAll(context.Background(), []string{"d1"})
	assert.Error(t, err)
}

func TestValidateTemplates(t *testing.T) {
	t.Parallel()
	f := fake.New()
	o, store := newTestOrchestrator(t, f)
	ctx := context.Background()

	checks, err := o.ValidateTemplates(ctx, scenario.DefaultScenarios())
	require.NoError(t, err)
	require.Len(t, checks, 4)
	assert.Equal(t, 4, f.Calls("ValidateTemplate"))
	assert.Zero(t, f.Calls("Submit"))

	c, err := f.GetContainer(ctx, ValidationContainer)
	require.NoError(t, err)
	assert.Equal(t, PurposeValidation, c.Tags[labels.KeyPurpose])
	assert.True(t, labels.IsManaged(c.Tags))

	recs, err := store.List(ctx, state.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs, "validation must not register deployments")
}

func TestValidateTemplates_ReportsEachFailure(t *testing.T) {
	t.Parallel()
	f := fake.New()
	f.ValidateErr = errors.New("InvalidTemplateDeployment")
	o, _ := newTestOrchestrator(t, f)

	checks, err := o.ValidateTemplates(context.Background(), scenario.DefaultScenarios()[:2])
	require.Error(t, err)
	for _, c := range checks {
		assert.Error(t, c.Err, c.Scenario)
	}
}
