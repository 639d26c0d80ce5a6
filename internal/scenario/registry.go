package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// file is the on-disk shape of scenarios.yaml.
type file struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Registry is the immutable set of scenarios loaded from one source.
// Scenarios that fail validation are kept aside so one bad entry does not
// block the rest; resolving them returns their validation error.
type Registry struct {
	order   []string
	valid   map[string]Scenario
	invalid map[string]error
}

// Load reads and validates scenarios from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates scenarios from YAML bytes. It fails on
// malformed YAML and duplicate names.
func LoadFromBytes(data []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, deployment.ConfigError("load scenarios", fmt.Errorf("failed to parse YAML: %w", err))
	}
	return New(f.Scenarios)
}

// New builds a registry from scenarios in order, applying defaults.
func New(scenarios []Scenario) (*Registry, error) {
	r := &Registry{
		valid:   make(map[string]Scenario, len(scenarios)),
		invalid: make(map[string]error),
	}

	for i, s := range scenarios {
		if s.Name == "" {
			return nil, deployment.ConfigError("load scenarios", fmt.Errorf("scenario #%d: name is required", i+1))
		}
		if _, dup := r.valid[s.Name]; dup {
			return nil, deployment.ConfigError("load scenarios", fmt.Errorf("duplicate scenario %q", s.Name))
		}
		if _, dup := r.invalid[s.Name]; dup {
			return nil, deployment.ConfigError("load scenarios", fmt.Errorf("duplicate scenario %q", s.Name))
		}

		s.applyDefaults()
		r.order = append(r.order, s.Name)
		if err := s.Validate(); err != nil {
			r.invalid[s.Name] = deployment.ConfigError("resolve scenario "+s.Name, err)
			continue
		}
		r.valid[s.Name] = s
	}

	return r, nil
}

// Resolve returns the named scenario. It fails with ErrNotFound when the
// name is absent and with ErrInvalidConfig when the definition is invalid.
func (r *Registry) Resolve(name string) (Scenario, error) {
	if s, ok := r.valid[name]; ok {
		return s, nil
	}
	if err, ok := r.invalid[name]; ok {
		return Scenario{}, err
	}
	return Scenario{}, fmt.Errorf("scenario %q: %w", name, deployment.ErrNotFound)
}

// List returns the valid scenarios in source order.
func (r *Registry) List() []Scenario {
	out := make([]Scenario, 0, len(r.valid))
	for _, name := range r.order {
		if s, ok := r.valid[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Names returns every scenario name in source order, valid or not.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Problems returns the validation errors of invalid scenarios in source order.
func (r *Registry) Problems() []error {
	var errs []error
	for _, name := range r.order {
		if err, ok := r.invalid[name]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}

// Save writes scenarios to path atomically.
func Save(path string, scenarios []Scenario) error {
	data, err := yaml.Marshal(file{Scenarios: scenarios})
	if err != nil {
		return fmt.Errorf("failed to marshal scenarios: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write scenarios file: %w", err)
	}
	return nil
}
