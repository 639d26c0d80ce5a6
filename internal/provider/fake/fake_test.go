package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
)

func TestScriptReplaysAndRepeatsLast(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New()
	p.Script("rg1",
		provider.Status{State: provider.StateInProgress},
		provider.Status{State: provider.StateSucceeded, Outputs: map[string]any{"neo4jBrowserURL": map[string]any{"value": "http://h:7474"}}},
	)

	_, err := p.CreateContainer(ctx, provider.ContainerSpec{Name: "rg1"})
	require.NoError(t, err)
	require.NoError(t, p.Submit(ctx, provider.Submission{Container: "rg1", DeploymentName: "d"}))

	want := []provider.OperationState{provider.StateInProgress, provider.StateSucceeded, provider.StateSucceeded}
	for _, w := range want {
		st, err := p.GetStatus(ctx, "rg1", "d")
		require.NoError(t, err)
		assert.Equal(t, w, st.State)
	}
	assert.Equal(t, 3, p.Polls("rg1", "d"))

	st, _ := p.GetStatus(ctx, "rg1", "d")
	url, ok := st.Output("neo4jbrowserurl")
	assert.True(t, ok)
	assert.Equal(t, "http://h:7474", url)
}

func TestUnknownDeploymentIsNotFound(t *testing.T) {
	t.Parallel()
	st, err := New().GetStatus(context.Background(), "rg", "d")
	require.NoError(t, err)
	assert.Equal(t, provider.StateNotFound, st.State)
}

func TestSubmitRequiresContainer(t *testing.T) {
	t.Parallel()
	err := New().Submit(context.Background(), provider.Submission{Container: "missing"})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestDeleteLagAndStuck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New()
	p.DeleteLag = 1
	_, _ = p.CreateContainer(ctx, provider.ContainerSpec{Name: "a"})
	_, _ = p.CreateContainer(ctx, provider.ContainerSpec{Name: "b"})
	p.StickDelete("b")

	require.NoError(t, p.DeleteContainer(ctx, "a"))
	require.NoError(t, p.DeleteContainer(ctx, "b"))

	c, err := p.GetContainer(ctx, "a")
	require.NoError(t, err)
	assert.True(t, c.Deleting())
	_, err = p.GetContainer(ctx, "a")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	for range 5 {
		_, err = p.GetContainer(ctx, "b")
		require.NoError(t, err)
	}
	assert.NoError(t, p.DeleteContainer(ctx, "gone"))
}

func TestInjectedErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New()
	boom := errors.New("boom")
	p.FailStatus("rg", boom)
	p.FailDelete("rg", boom)

	_, err := p.GetStatus(ctx, "rg", "d")
	assert.ErrorIs(t, err, boom)
	_, err = p.GetStatus(ctx, "rg", "d")
	assert.NoError(t, err)

	assert.ErrorIs(t, p.DeleteContainer(ctx, "rg"), boom)
	assert.NoError(t, p.DeleteContainer(ctx, "rg"))
	assert.Equal(t, 2, p.Calls("DeleteContainer"))
}
