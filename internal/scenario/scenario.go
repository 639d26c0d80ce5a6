// Package scenario loads and validates the named deployment configurations
// that drive every deploy run.
package scenario

import (
	"errors"
	"fmt"
	"regexp"
)

// Supported workload versions.
const (
	Version5  = "5"
	Version44 = "4.4"
)

// License modes.
const (
	LicenseEnterprise = "Enterprise"
	LicenseEvaluation = "Evaluation"
)

// Defaults applied to omitted fields.
const (
	DefaultMachineClass = "Standard_E4s_v5"
	DefaultDiskSizeGB   = 32
	MinDiskSizeGB       = 32
	MaxNodeCount        = 10
	MaxReadReplicas     = 10
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,39}$`)

// LicenseKey is a plugin license key. It never prints its value.
type LicenseKey string

func (k LicenseKey) String() string {
	if k == "" {
		return ""
	}
	return "[redacted]"
}

// GoString implements fmt.GoStringer.
func (k LicenseKey) GoString() string {
	return k.String()
}

// Set reports whether a key other than the "None" placeholder is present.
func (k LicenseKey) Set() bool {
	return k != "" && k != "None"
}

// Scenario is a named, immutable deployment configuration.
type Scenario struct {
	Name                    string     `yaml:"name" json:"name"`
	NodeCount               int        `yaml:"node_count" json:"nodeCount"`
	GraphDatabaseVersion    string     `yaml:"graph_database_version" json:"graphDatabaseVersion"`
	VMSize                  string     `yaml:"vm_size,omitempty" json:"vmSize"`
	DiskSizeGB              int        `yaml:"disk_size,omitempty" json:"diskSize"`
	LicenseType             string     `yaml:"license_type,omitempty" json:"licenseType"`
	ReadReplicaCount        int        `yaml:"read_replica_count,omitempty" json:"readReplicaCount,omitempty"`
	ReadReplicaVMSize       string     `yaml:"read_replica_vm_size,omitempty" json:"readReplicaVmSize,omitempty"`
	ReadReplicaDiskSizeGB   int        `yaml:"read_replica_disk_size,omitempty" json:"readReplicaDiskSize,omitempty"`
	InstallGraphDataScience bool       `yaml:"install_graph_data_science,omitempty" json:"installGraphDataScience"`
	GraphDataScienceKey     LicenseKey `yaml:"graph_data_science_license_key,omitempty" json:"-"`
	InstallBloom            bool       `yaml:"install_bloom,omitempty" json:"installBloom"`
	BloomKey                LicenseKey `yaml:"bloom_license_key,omitempty" json:"-"`
}

// Standalone reports whether the scenario deploys a single instance.
func (s Scenario) Standalone() bool {
	return s.NodeCount == 1
}

// MarshalLog implements logr.Marshaler and omits license keys.
func (s Scenario) MarshalLog() any {
	return map[string]any{
		"name":         s.Name,
		"nodeCount":    s.NodeCount,
		"version":      s.GraphDatabaseVersion,
		"vmSize":       s.VMSize,
		"diskSize":     s.DiskSizeGB,
		"license":      s.LicenseType,
		"readReplicas": s.ReadReplicaCount,
		"gds":          s.InstallGraphDataScience,
		"bloom":        s.InstallBloom,
	}
}

// applyDefaults fills omitted optional fields.
func (s *Scenario) applyDefaults() {
	if s.VMSize == "" {
		s.VMSize = DefaultMachineClass
	}
	if s.DiskSizeGB == 0 {
		s.DiskSizeGB = DefaultDiskSizeGB
	}
	if s.LicenseType == "" {
		s.LicenseType = LicenseEvaluation
	}
	if s.ReadReplicaCount > 0 {
		if s.ReadReplicaVMSize == "" {
			s.ReadReplicaVMSize = DefaultMachineClass
		}
		if s.ReadReplicaDiskSizeGB == 0 {
			s.ReadReplicaDiskSizeGB = DefaultDiskSizeGB
		}
	}
}

// Validate checks the scenario and returns every violation joined together.
func (s Scenario) Validate() error {
	var errs []error

	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if !namePattern.MatchString(s.Name) {
		errs = append(errs, fmt.Errorf("name %q must be lowercase alphanumerics and hyphens, at most 40 characters", s.Name))
	}

	switch {
	case s.NodeCount == 0:
		errs = append(errs, errors.New("node_count is required"))
	case s.NodeCount == 2:
		errs = append(errs, errors.New("node_count 2 cannot form a quorum; use 1 or 3 to 10"))
	case s.NodeCount < 1 || s.NodeCount > MaxNodeCount:
		errs = append(errs, fmt.Errorf("node_count %d must be 1 or between 3 and %d", s.NodeCount, MaxNodeCount))
	}

	switch s.GraphDatabaseVersion {
	case Version5, Version44:
	case "":
		errs = append(errs, errors.New("graph_database_version is required"))
	default:
		errs = append(errs, fmt.Errorf("graph_database_version %q must be %s or %s", s.GraphDatabaseVersion, Version5, Version44))
	}

	switch s.LicenseType {
	case LicenseEnterprise, LicenseEvaluation:
	default:
		errs = append(errs, fmt.Errorf("license_type %q must be %s or %s", s.LicenseType, LicenseEnterprise, LicenseEvaluation))
	}

	if s.DiskSizeGB < MinDiskSizeGB {
		errs = append(errs, fmt.Errorf("disk_size %d must be at least %d", s.DiskSizeGB, MinDiskSizeGB))
	}

	if s.ReadReplicaCount < 0 || s.ReadReplicaCount > MaxReadReplicas {
		errs = append(errs, fmt.Errorf("read_replica_count %d must be between 0 and %d", s.ReadReplicaCount, MaxReadReplicas))
	}
	if s.ReadReplicaCount > 0 {
		if s.GraphDatabaseVersion != Version44 {
			errs = append(errs, fmt.Errorf("read replicas are only supported with version %s", Version44))
		}
		if s.ReadReplicaDiskSizeGB < MinDiskSizeGB {
			errs = append(errs, fmt.Errorf("read_replica_disk_size %d must be at least %d", s.ReadReplicaDiskSizeGB, MinDiskSizeGB))
		}
	}

	return errors.Join(errs...)
}

// DefaultScenarios returns the stock scenarios written by setup.
func DefaultScenarios() []Scenario {
	stock := []Scenario{
		{Name: "standalone-v5", NodeCount: 1, GraphDatabaseVersion: Version5},
		{Name: "cluster-v5", NodeCount: 3, GraphDatabaseVersion: Version5},
		{Name: "standalone-v44", NodeCount: 1, GraphDatabaseVersion: Version44},
		{Name: "cluster-read-replicas", NodeCount: 3, GraphDatabaseVersion: Version44, ReadReplicaCount: 2},
	}
	for i := range stock {
		stock[i].applyDefaults()
	}
	return stock
}
