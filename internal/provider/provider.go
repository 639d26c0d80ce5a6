// Package provider defines the cloud collaborators the orchestrator drives:
// resource containers, template submission and deployment status.
package provider

import (
	"context"
	"strings"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// ErrNotFound is returned when a container or deployment does not exist.
var ErrNotFound = deployment.ErrNotFound

// OperationState is the provider-reported state of a submitted deployment.
type OperationState string

const (
	StateSucceeded  OperationState = "Succeeded"
	StateFailed     OperationState = "Failed"
	StateInProgress OperationState = "InProgress"
	StateNotFound   OperationState = "NotFound"
)

// Status is the answer to a status poll.
type Status struct {
	State   OperationState
	Detail  string
	Outputs map[string]any
}

// Output returns the string value of a template output, accepting both the
// raw value and the {"type":..., "value":...} envelope ARM returns.
func (s Status) Output(name string) (string, bool) {
	raw, ok := s.Outputs[name]
	if !ok {
		// ARM output names are case-insensitive.
		for k, v := range s.Outputs {
			if strings.EqualFold(k, name) {
				raw, ok = v, true
				break
			}
		}
		if !ok {
			return "", false
		}
	}
	if env, isMap := raw.(map[string]any); isMap {
		raw = env["value"]
	}
	v, isString := raw.(string)
	return v, isString && v != ""
}

// ContainerSpec describes a resource container to create.
type ContainerSpec struct {
	Name   string
	Region string
	Tags   map[string]string
}

// Container is a provider-side resource container.
type Container struct {
	Name              string
	Region            string
	Tags              map[string]string
	ProvisioningState string
}

// Deleting reports whether the provider is already removing the container.
func (c Container) Deleting() bool {
	return strings.EqualFold(c.ProvisioningState, "Deleting")
}

// TemplateRef points at an infrastructure template: a local file or a URL.
type TemplateRef struct {
	Path string
	URI  string
}

// ParseTemplateRef classifies s as a URL or a local path.
func ParseTemplateRef(s string) TemplateRef {
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		return TemplateRef{URI: s}
	}
	return TemplateRef{Path: s}
}

func (t TemplateRef) String() string {
	if t.URI != "" {
		return t.URI
	}
	return t.Path
}

// Submission is a template plus parameters aimed at one container.
type Submission struct {
	Container      string
	DeploymentName string
	Template       TemplateRef
	// Parameters is the ARM parameters object: name -> {value|reference}.
	Parameters map[string]Parameter
	Tags       map[string]string
}

// Parameter is one ARM deployment parameter.
type Parameter struct {
	Value     any                `json:"value,omitempty"`
	Reference *KeyVaultReference `json:"reference,omitempty"`
}

// KeyVaultReference makes the provider read a parameter from a vault.
type KeyVaultReference struct {
	KeyVault   KeyVaultID `json:"keyVault"`
	SecretName string     `json:"secretName"`
}

// KeyVaultID identifies a vault by ARM resource id.
type KeyVaultID struct {
	ID string `json:"id"`
}

// Provider is the resource provider and template deployer API.
type Provider interface {
	// CreateContainer creates or updates a resource container.
	CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error)
	// GetContainer returns ErrNotFound when the container is absent.
	GetContainer(ctx context.Context, name string) (Container, error)
	// DeleteContainer requests deletion. It returns once the request is
	// accepted; absence must be confirmed with GetContainer. Deleting an
	// absent container succeeds.
	DeleteContainer(ctx context.Context, name string) error
	// ValidateTemplate asks the provider to validate a submission without deploying.
	ValidateTemplate(ctx context.Context, sub Submission) error
	// Submit starts a deployment and returns once it is accepted.
	Submit(ctx context.Context, sub Submission) error
	// GetStatus reports the state of a submitted deployment.
	GetStatus(ctx context.Context, container, deploymentName string) (Status, error)
}
