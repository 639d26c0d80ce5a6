// Package azure implements the provider API on Azure Resource Manager:
// resource groups are the resource containers and ARM template deployments
// carry the workload.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
)

// Client implements provider.Provider against one subscription.
type Client struct {
	groups       *armresources.ResourceGroupsClient
	deployments  *armresources.DeploymentsClient
	readFile     func(string) ([]byte, error)
	pollInterval time.Duration
}

var _ provider.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*options)

type options struct {
	credential   azcore.TokenCredential
	clientOpts   *arm.ClientOptions
	readFile     func(string) ([]byte, error)
	pollInterval time.Duration
}

// WithCredential overrides the default Azure credential chain.
func WithCredential(cred azcore.TokenCredential) Option {
	return func(o *options) { o.credential = cred }
}

// WithClientOptions sets ARM client options, typically a custom transport.
func WithClientOptions(co *arm.ClientOptions) Option {
	return func(o *options) { o.clientOpts = co }
}

// WithTemplateReader replaces os.ReadFile for local templates.
func WithTemplateReader(fn func(string) ([]byte, error)) Option {
	return func(o *options) { o.readFile = fn }
}

// WithPollInterval sets how often template validation is polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// New creates a Client for subscriptionID. Without WithCredential it uses
// azidentity's default chain: environment, managed identity, then the az CLI.
func New(subscriptionID string, opts ...Option) (*Client, error) {
	if subscriptionID == "" {
		return nil, errors.New("azure: subscription id is required")
	}
	o := options{readFile: os.ReadFile, pollInterval: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure: credential: %w", err)
		}
		o.credential = cred
	}

	groups, err := armresources.NewResourceGroupsClient(subscriptionID, o.credential, o.clientOpts)
	if err != nil {
		return nil, fmt.Errorf("azure: resource groups client: %w", err)
	}
	deployments, err := armresources.NewDeploymentsClient(subscriptionID, o.credential, o.clientOpts)
	if err != nil {
		return nil, fmt.Errorf("azure: deployments client: %w", err)
	}
	return &Client{
		groups:       groups,
		deployments:  deployments,
		readFile:     o.readFile,
		pollInterval: o.pollInterval,
	}, nil
}

func (c *Client) CreateContainer(ctx context.Context, spec provider.ContainerSpec) (provider.Container, error) {
	resp, err := c.groups.CreateOrUpdate(ctx, spec.Name, armresources.ResourceGroup{
		Location: to.Ptr(spec.Region),
		Tags:     toTags(spec.Tags),
	}, nil)
	if err != nil {
		return provider.Container{}, fmt.Errorf("create resource group %s: %w", spec.Name, convertError(err))
	}
	return fromGroup(resp.ResourceGroup), nil
}

func (c *Client) GetContainer(ctx context.Context, name string) (provider.Container, error) {
	resp, err := c.groups.Get(ctx, name, nil)
	if err != nil {
		return provider.Container{}, fmt.Errorf("get resource group %s: %w", name, convertError(err))
	}
	return fromGroup(resp.ResourceGroup), nil
}

// DeleteContainer starts deletion and returns without waiting for the
// long-running operation; callers confirm absence through GetContainer.
func (c *Client) DeleteContainer(ctx context.Context, name string) error {
	_, err := c.groups.BeginDelete(ctx, name, nil)
	if err != nil {
		err = convertError(err)
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete resource group %s: %w", name, err)
	}
	return nil
}

func (c *Client) ValidateTemplate(ctx context.Context, sub provider.Submission) error {
	dep, err := c.deployment(sub)
	if err != nil {
		return err
	}
	poller, err := c.deployments.BeginValidate(ctx, sub.Container, sub.DeploymentName, dep, nil)
	if err != nil {
		return fmt.Errorf("validate template: %w", convertError(err))
	}
	resp, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: c.pollInterval})
	if err != nil {
		return fmt.Errorf("validate template: %w", convertError(err))
	}
	if resp.Error != nil {
		return fmt.Errorf("validate template: %s", describeError(resp.Error))
	}
	return nil
}

// Submit starts an incremental deployment and returns once ARM accepts it.
func (c *Client) Submit(ctx context.Context, sub provider.Submission) error {
	dep, err := c.deployment(sub)
	if err != nil {
		return err
	}
	if _, err := c.deployments.BeginCreateOrUpdate(ctx, sub.Container, sub.DeploymentName, dep, nil); err != nil {
		return fmt.Errorf("submit deployment %s: %w", sub.DeploymentName, convertError(err))
	}
	return nil
}

func (c *Client) GetStatus(ctx context.Context, container, deploymentName string) (provider.Status, error) {
	resp, err := c.deployments.Get(ctx, container, deploymentName, nil)
	if err != nil {
		err = convertError(err)
		if errors.Is(err, provider.ErrNotFound) {
			return provider.Status{State: provider.StateNotFound}, nil
		}
		return provider.Status{}, fmt.Errorf("get deployment %s: %w", deploymentName, err)
	}
	return fromDeployment(resp.DeploymentExtended), nil
}

func (c *Client) deployment(sub provider.Submission) (armresources.Deployment, error) {
	props := &armresources.DeploymentProperties{
		Mode:       to.Ptr(armresources.DeploymentModeIncremental),
		Parameters: sub.Parameters,
	}
	switch {
	case sub.Template.URI != "":
		props.TemplateLink = &armresources.TemplateLink{URI: to.Ptr(sub.Template.URI)}
	case sub.Template.Path != "":
		raw, err := c.readFile(sub.Template.Path)
		if err != nil {
			return armresources.Deployment{}, fmt.Errorf("read template %s: %w", sub.Template.Path, err)
		}
		var tmpl map[string]any
		if err := json.Unmarshal(raw, &tmpl); err != nil {
			return armresources.Deployment{}, fmt.Errorf("parse template %s: %w", sub.Template.Path, err)
		}
		props.Template = tmpl
	default:
		return armresources.Deployment{}, errors.New("template reference is empty")
	}
	return armresources.Deployment{Properties: props, Tags: toTags(sub.Tags)}, nil
}

func fromGroup(g armresources.ResourceGroup) provider.Container {
	c := provider.Container{
		Name:   deref(g.Name),
		Region: deref(g.Location),
		Tags:   make(map[string]string, len(g.Tags)),
	}
	for k, v := range g.Tags {
		c.Tags[k] = deref(v)
	}
	if g.Properties != nil {
		c.ProvisioningState = deref(g.Properties.ProvisioningState)
	}
	return c
}

func fromDeployment(d armresources.DeploymentExtended) provider.Status {
	if d.Properties == nil || d.Properties.ProvisioningState == nil {
		return provider.Status{State: provider.StateInProgress}
	}
	props := d.Properties
	st := provider.Status{}
	if outputs, ok := props.Outputs.(map[string]any); ok {
		st.Outputs = outputs
	}

	switch *props.ProvisioningState {
	case armresources.ProvisioningStateSucceeded:
		st.State = provider.StateSucceeded
	case armresources.ProvisioningStateFailed, armresources.ProvisioningStateCanceled:
		st.State = provider.StateFailed
		st.Detail = string(*props.ProvisioningState)
		if props.Error != nil {
			st.Detail = describeError(props.Error)
		}
	default:
		st.State = provider.StateInProgress
	}
	return st
}

// describeError flattens an ARM error tree into one line, innermost details last.
func describeError(e *armresources.ErrorResponse) string {
	var parts []string
	var walk func(*armresources.ErrorResponse)
	walk = func(e *armresources.ErrorResponse) {
		if e == nil {
			return
		}
		if code, msg := deref(e.Code), deref(e.Message); code != "" || msg != "" {
			parts = append(parts, strings.TrimSpace(code+": "+msg))
		}
		for _, d := range e.Details {
			walk(d)
		}
	}
	walk(e)
	if len(parts) == 0 {
		return "deployment failed"
	}
	return strings.Join(parts, "; ")
}

// convertError maps azcore response errors onto provider errors so callers
// can classify them without importing the SDK.
func convertError(err error) error {
	var re *azcore.ResponseError
	if !errors.As(err, &re) {
		return err
	}
	he := &provider.HTTPError{StatusCode: re.StatusCode, Code: re.ErrorCode, Message: err.Error()}
	if re.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", provider.ErrNotFound, he)
	}
	return he
}

func toTags(in map[string]string) map[string]*string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*string, len(in))
	for k, v := range in {
		out[k] = to.Ptr(v)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
