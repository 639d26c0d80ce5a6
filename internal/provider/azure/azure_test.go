package azure

import (
	"context"
	"errors"
	"net/http"
	"testing"

	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
)

func newTestClient(t *testing.T, srv *fake.ServerFactory, readFile func(string) ([]byte, error)) *Client {
	t.Helper()
	opts := []Option{
		WithCredential(&azfake.TokenCredential{}),
		WithClientOptions(&arm.ClientOptions{
			ClientOptions: policy.ClientOptions{Transport: fake.NewServerFactoryTransport(srv)},
		}),
	}
	if readFile != nil {
		opts = append(opts, WithTemplateReader(readFile))
	}
	c, err := New("00000000-0000-0000-0000-000000000000", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresSubscription(t *testing.T) {
	t.Parallel()
	_, err := New("", WithCredential(&azfake.TokenCredential{}))
	assert.Error(t, err)
}

func TestCreateAndGetContainer(t *testing.T) {
	t.Parallel()
	var gotTags map[string]*string
	srv := &fake.ServerFactory{
		ResourceGroupsServer: fake.ResourceGroupsServer{
			CreateOrUpdate: func(_ context.Context, name string, rg armresources.ResourceGroup, _ *armresources.ResourceGroupsClientCreateOrUpdateOptions) (resp azfake.Responder[armresources.ResourceGroupsClientCreateOrUpdateResponse], errResp azfake.ErrorResponder) {
				gotTags = rg.Tags
				resp.SetResponse(http.StatusCreated, armresources.ResourceGroupsClientCreateOrUpdateResponse{
					ResourceGroup: armresources.ResourceGroup{
						Name:       to.Ptr(name),
						Location:   rg.Location,
						Tags:       rg.Tags,
						Properties: &armresources.ResourceGroupProperties{ProvisioningState: to.Ptr("Succeeded")},
					},
				}, nil)
				return
			},
			Get: func(_ context.Context, name string, _ *armresources.ResourceGroupsClientGetOptions) (resp azfake.Responder[armresources.ResourceGroupsClientGetResponse], errResp azfake.ErrorResponder) {
				if name == "missing" {
					errResp.SetResponseError(http.StatusNotFound, "ResourceGroupNotFound")
					return
				}
				resp.SetResponse(http.StatusOK, armresources.ResourceGroupsClientGetResponse{
					ResourceGroup: armresources.ResourceGroup{
						Name:       to.Ptr(name),
						Location:   to.Ptr("westeurope"),
						Properties: &armresources.ResourceGroupProperties{ProvisioningState: to.Ptr("Deleting")},
					},
				}, nil)
				return
			},
		},
	}
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	got, err := c.CreateContainer(ctx, provider.ContainerSpec{Name: "rg1", Region: "westeurope", Tags: map[string]string{"purpose": "testing"}})
	require.NoError(t, err)
	assert.Equal(t, "rg1", got.Name)
	assert.Equal(t, "testing", got.Tags["purpose"])
	require.Contains(t, gotTags, "purpose")

	existing, err := c.GetContainer(ctx, "rg1")
	require.NoError(t, err)
	assert.True(t, existing.Deleting())

	_, err = c.GetContainer(ctx, "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestDeleteContainer_AbsentIsSuccess(t *testing.T) {
	t.Parallel()
	srv := &fake.ServerFactory{
		ResourceGroupsServer: fake.ResourceGroupsServer{
			BeginDelete: func(_ context.Context, name string, _ *armresources.ResourceGroupsClientBeginDeleteOptions) (resp azfake.PollerResponder[armresources.ResourceGroupsClientDeleteResponse], errResp azfake.ErrorResponder) {
				switch name {
				case "gone":
					errResp.SetResponseError(http.StatusNotFound, "ResourceGroupNotFound")
				case "busy":
					errResp.SetResponseError(http.StatusConflict, "ScopeLocked")
				default:
					resp.SetTerminalResponse(http.StatusOK, armresources.ResourceGroupsClientDeleteResponse{}, nil)
				}
				return
			},
		},
	}
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	assert.NoError(t, c.DeleteContainer(ctx, "rg1"))
	assert.NoError(t, c.DeleteContainer(ctx, "gone"))

	err := c.DeleteContainer(ctx, "busy")
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err))
}

func TestSubmit_LocalTemplateAndParameters(t *testing.T) {
	t.Parallel()
	var got armresources.Deployment
	srv := &fake.ServerFactory{
		DeploymentsServer: fake.DeploymentsServer{
			BeginCreateOrUpdate: func(_ context.Context, _, _ string, params armresources.Deployment, _ *armresources.DeploymentsClientBeginCreateOrUpdateOptions) (resp azfake.PollerResponder[armresources.DeploymentsClientCreateOrUpdateResponse], errResp azfake.ErrorResponder) {
				got = params
				resp.AddNonTerminalResponse(http.StatusCreated, nil)
				resp.SetTerminalResponse(http.StatusOK, armresources.DeploymentsClientCreateOrUpdateResponse{}, nil)
				return
			},
		},
	}
	readFile := func(path string) ([]byte, error) {
		if path != "mainTemplate.json" {
			return nil, errors.New("unexpected path " + path)
		}
		return []byte(`{"$schema":"x","resources":[]}`), nil
	}
	c := newTestClient(t, srv, readFile)

	err := c.Submit(context.Background(), provider.Submission{
		Container:      "rg1",
		DeploymentName: "neo4j-d1",
		Template:       provider.TemplateRef{Path: "mainTemplate.json"},
		Parameters: map[string]provider.Parameter{
			"nodeCount": {Value: 3},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, got.Properties)
	assert.Equal(t, armresources.DeploymentModeIncremental, *got.Properties.Mode)
	assert.Nil(t, got.Properties.TemplateLink)
	tmpl, ok := got.Properties.Template.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, tmpl, "resources")
	params, ok := got.Properties.Parameters.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, params, "nodeCount")
}

func TestSubmit_RejectedIsNotTransient(t *testing.T) {
	t.Parallel()
	srv := &fake.ServerFactory{
		DeploymentsServer: fake.DeploymentsServer{
			BeginCreateOrUpdate: func(_ context.Context, _, _ string, _ armresources.Deployment, _ *armresources.DeploymentsClientBeginCreateOrUpdateOptions) (resp azfake.PollerResponder[armresources.DeploymentsClientCreateOrUpdateResponse], errResp azfake.ErrorResponder) {
				errResp.SetResponseError(http.StatusBadRequest, "InvalidTemplateDeployment")
				return
			},
		},
	}
	c := newTestClient(t, srv, nil)
	err := c.Submit(context.Background(), provider.Submission{
		Container:      "rg1",
		DeploymentName: "neo4j-d1",
		Template:       provider.TemplateRef{URI: "https://example.com/mainTemplate.json"},
	})
	require.Error(t, err)
	assert.False(t, provider.IsTransient(err))

	var he *provider.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "InvalidTemplateDeployment", he.Code)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()
	deployments := map[string]armresources.DeploymentExtended{
		"running": {Properties: &armresources.DeploymentPropertiesExtended{
			ProvisioningState: to.Ptr(armresources.ProvisioningStateRunning),
		}},
		"done": {Properties: &armresources.DeploymentPropertiesExtended{
			ProvisioningState: to.Ptr(armresources.ProvisioningStateSucceeded),
			Outputs: map[string]any{
				"neo4jBrowserURL": map[string]any{"type": "String", "value": "http://10.0.0.4:7474"},
			},
		}},
		"broken": {Properties: &armresources.DeploymentPropertiesExtended{
			ProvisioningState: to.Ptr(armresources.ProvisioningStateFailed),
			Error: &armresources.ErrorResponse{
				Code:    to.Ptr("DeploymentFailed"),
				Message: to.Ptr("At least one resource deployment operation failed."),
				Details: []*armresources.ErrorResponse{{Code: to.Ptr("SkuNotAvailable"), Message: to.Ptr("Standard_E4s_v5 unavailable")}},
			},
		}},
	}
	srv := &fake.ServerFactory{
		DeploymentsServer: fake.DeploymentsServer{
			Get: func(_ context.Context, _, name string, _ *armresources.DeploymentsClientGetOptions) (resp azfake.Responder[armresources.DeploymentsClientGetResponse], errResp azfake.ErrorResponder) {
				d, ok := deployments[name]
				if !ok {
					errResp.SetResponseError(http.StatusNotFound, "DeploymentNotFound")
					return
				}
				resp.SetResponse(http.StatusOK, armresources.DeploymentsClientGetResponse{DeploymentExtended: d}, nil)
				return
			},
		},
	}
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	st, err := c.GetStatus(ctx, "rg", "running")
	require.NoError(t, err)
	assert.Equal(t, provider.StateInProgress, st.State)

	st, err = c.GetStatus(ctx, "rg", "done")
	require.NoError(t, err)
	assert.Equal(t, provider.StateSucceeded, st.State)
	url, ok := st.Output("neo4jBrowserURL")
	assert.True(t, ok)
	assert.Equal(t, "http://10.0.0.4:7474", url)

	st, err = c.GetStatus(ctx, "rg", "broken")
	require.NoError(t, err)
	assert.Equal(t, provider.StateFailed, st.State)
	assert.Contains(t, st.Detail, "SkuNotAvailable")

	st, err = c.GetStatus(ctx, "rg", "nope")
	require.NoError(t, err)
	assert.Equal(t, provider.StateNotFound, st.State)
}

func TestDeployment_EmptyTemplate(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fake.ServerFactory{}, nil)
	_, err := c.deployment(provider.Submission{})
	assert.Error(t, err)
}
