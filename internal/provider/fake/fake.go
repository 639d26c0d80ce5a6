// Package fake is a scripted, in-memory provider for tests and dry runs.
package fake

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
)

// Provider is a concurrency-safe scripted [provider.Provider].
//
// Each submitted deployment replays its status script one entry per poll;
// the last entry repeats once the script is exhausted. Containers deleted
// through DeleteContainer disappear after DeleteLag further lookups, or
// never when marked stuck.
type Provider struct {
	mu sync.Mutex

	containers  map[string]*container
	deployments map[string]*deploymentState
	scripts     map[string][]provider.Status
	statusErrs  map[string][]error
	deleteErrs  map[string][]error
	stuck       map[string]bool

	// DefaultScript is used for containers without an explicit script.
	DefaultScript []provider.Status
	// DeleteLag is how many GetContainer calls a deleting container survives.
	DeleteLag int
	// SubmitErr, when set, is returned by every Submit.
	SubmitErr error
	// ValidateErr, when set, is returned by every ValidateTemplate.
	ValidateErr error

	submissions []provider.Submission
	calls       map[string]int
}

type container struct {
	provider.Container
	deleting  bool
	lookups   int
	deleteReq int
}

type deploymentState struct {
	polls int
}

var _ provider.Provider = (*Provider)(nil)

// New returns a fake whose deployments succeed on the first poll.
func New() *Provider {
	return &Provider{
		containers:    make(map[string]*container),
		deployments:   make(map[string]*deploymentState),
		scripts:       make(map[string][]provider.Status),
		statusErrs:    make(map[string][]error),
		deleteErrs:    make(map[string][]error),
		stuck:         make(map[string]bool),
		calls:         make(map[string]int),
		DefaultScript: []provider.Status{{State: provider.StateSucceeded}},
	}
}

// Script sets the status sequence returned for deployments in containerName.
func (p *Provider) Script(containerName string, statuses ...provider.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[containerName] = statuses
}

// FailStatus queues errors returned by the next GetStatus calls for containerName.
func (p *Provider) FailStatus(containerName string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusErrs[containerName] = append(p.statusErrs[containerName], errs...)
}

// FailDelete queues errors returned by the next DeleteContainer calls.
func (p *Provider) FailDelete(containerName string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteErrs[containerName] = append(p.deleteErrs[containerName], errs...)
}

// StickDelete makes deletion of containerName never complete.
func (p *Provider) StickDelete(containerName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stuck[containerName] = true
}

// AddContainer registers a pre-existing container, for example one created
// outside the tool.
func (p *Provider) AddContainer(c provider.Container) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.containers[c.Name] = &container{Container: c}
}

// RemoveContainer makes a container vanish, simulating external deletion.
func (p *Provider) RemoveContainer(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.containers, name)
	for key := range p.deployments {
		if c, _ := splitKey(key); c == name {
			delete(p.deployments, key)
		}
	}
}

// HasContainer reports whether the container still exists.
func (p *Provider) HasContainer(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.containers[name]
	return ok
}

// Submissions returns a copy of all accepted submissions in order.
func (p *Provider) Submissions() []provider.Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Submission(nil), p.submissions...)
}

// Calls returns how many times the named method was invoked.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *Provider) CreateContainer(_ context.Context, spec provider.ContainerSpec) (provider.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateContainer"]++

	c := provider.Container{
		Name:              spec.Name,
		Region:            spec.Region,
		Tags:              maps.Clone(spec.Tags),
		ProvisioningState: "Succeeded",
	}
	p.containers[spec.Name] = &container{Container: c}
	return c, nil
}

func (p *Provider) GetContainer(_ context.Context, name string) (provider.Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["GetContainer"]++

	c, ok := p.containers[name]
	if !ok {
		return provider.Container{}, fmt.Errorf("container %s: %w", name, provider.ErrNotFound)
	}
	if c.deleting && !p.stuck[name] {
		c.lookups++
		if c.lookups > p.DeleteLag {
			delete(p.containers, name)
			return provider.Container{}, fmt.Errorf("container %s: %w", name, provider.ErrNotFound)
		}
	}
	out := c.Container
	out.Tags = maps.Clone(c.Tags)
	return out, nil
}

func (p *Provider) DeleteContainer(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["DeleteContainer"]++

	if errs := p.deleteErrs[name]; len(errs) > 0 {
		p.deleteErrs[name] = errs[1:]
		return errs[0]
	}

	c, ok := p.containers[name]
	if !ok {
		return nil
	}
	c.deleting = true
	c.deleteReq++
	c.ProvisioningState = "Deleting"
	for key := range p.deployments {
		if cn, _ := splitKey(key); cn == name {
			delete(p.deployments, key)
		}
	}
	return nil
}

func (p *Provider) ValidateTemplate(_ context.Context, sub provider.Submission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["ValidateTemplate"]++
	if p.ValidateErr != nil {
		return p.ValidateErr
	}
	if sub.Template.Path == "" && sub.Template.URI == "" {
		return errors.New("template reference is empty")
	}
	return nil
}

func (p *Provider) Submit(_ context.Context, sub provider.Submission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["Submit"]++

	if p.SubmitErr != nil {
		return p.SubmitErr
	}
	if _, ok := p.containers[sub.Container]; !ok {
		return fmt.Errorf("container %s: %w", sub.Container, provider.ErrNotFound)
	}
	p.deployments[key(sub.Container, sub.DeploymentName)] = &deploymentState{}
	p.submissions = append(p.submissions, sub)
	return nil
}

func (p *Provider) GetStatus(_ context.Context, containerName, deploymentName string) (provider.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["GetStatus"]++

	if errs := p.statusErrs[containerName]; len(errs) > 0 {
		p.statusErrs[containerName] = errs[1:]
		return provider.Status{}, errs[0]
	}

	d, ok := p.deployments[key(containerName, deploymentName)]
	if !ok {
		return provider.Status{State: provider.StateNotFound}, nil
	}

	script, ok := p.scripts[containerName]
	if !ok || len(script) == 0 {
		script = p.DefaultScript
	}
	i := d.polls
	if i >= len(script) {
		i = len(script) - 1
	}
	d.polls++

	st := script[i]
	st.Outputs = maps.Clone(st.Outputs)
	return st, nil
}

// Polls returns how many status polls a deployment has answered.
func (p *Provider) Polls(containerName, deploymentName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.deployments[key(containerName, deploymentName)]; ok {
		return d.polls
	}
	return 0
}

func key(containerName, deploymentName string) string {
	return containerName + "\x00" + deploymentName
}

func splitKey(k string) (string, string) {
	for i := range len(k) {
		if k[i] == 0 {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}
