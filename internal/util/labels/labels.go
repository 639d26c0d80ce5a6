package labels

import "time"

// Standard tag keys for resource containers.
const (
	KeyPurpose      = "purpose"
	KeyScenario     = "scenario"
	KeyDeploymentID = "deployment-id"
	KeyOwner        = "owner"
	KeyCreated      = "created"
	KeyManagedBy    = "managed-by"
	KeyCleanupMode  = "cleanup-mode"
	KeyExpires      = "expires"
	KeyBranch       = "branch"
)

// ManagedByTool is the managed-by value written on every container.
const ManagedByTool = "neo4j-deploy"

// PurposeTesting is the default purpose tag value.
const PurposeTesting = "neo4j-deployment-testing"

// LabelBuilder provides a fluent interface for building container tags.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the deployment id, scenario,
// purpose and managed-by tags pre-set.
func NewLabelBuilder(deploymentID, scenario string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyDeploymentID: deploymentID,
			KeyScenario:     scenario,
			KeyPurpose:      PurposeTesting,
			KeyManagedBy:    ManagedByTool,
		},
	}
}

// WithCreated records the creation time in RFC 3339 UTC.
func (lb *LabelBuilder) WithCreated(t time.Time) *LabelBuilder {
	lb.labels[KeyCreated] = t.UTC().Format(time.RFC3339)
	return lb
}

// WithOwnerIfSet adds an owner tag only if owner is non-empty.
func (lb *LabelBuilder) WithOwnerIfSet(owner string) *LabelBuilder {
	if owner != "" {
		lb.labels[KeyOwner] = owner
	}
	return lb
}

// WithBranchIfSet adds a branch tag only if branch is non-empty.
func (lb *LabelBuilder) WithBranchIfSet(branch string) *LabelBuilder {
	if branch != "" {
		lb.labels[KeyBranch] = branch
	}
	return lb
}

// WithCleanupMode records the cleanup policy, for example "manual" or "scheduled".
func (lb *LabelBuilder) WithCleanupMode(mode string) *LabelBuilder {
	if mode != "" {
		lb.labels[KeyCleanupMode] = mode
	}
	return lb
}

// WithExpiry adds an expires tag ttl after created. A zero ttl adds nothing.
func (lb *LabelBuilder) WithExpiry(created time.Time, ttl time.Duration) *LabelBuilder {
	if ttl > 0 {
		lb.labels[KeyExpires] = created.Add(ttl).UTC().Format(time.RFC3339)
	}
	return lb
}

// WithManagedBy sets who manages this resource.
func (lb *LabelBuilder) WithManagedBy(manager string) *LabelBuilder {
	lb.labels[KeyManagedBy] = manager
	return lb
}

// Merge adds all labels from the provided map. Reserved keys are not overridden.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		if k == KeyManagedBy || k == KeyDeploymentID {
			continue
		}
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// IsManaged reports whether tags carry this tool's managed-by marker.
func IsManaged(tags map[string]string) bool {
	return tags[KeyManagedBy] == ManagedByTool
}

// Expired reports whether the expires tag is set and earlier than now.
func Expired(tags map[string]string, now time.Time) bool {
	v, ok := tags[KeyExpires]
	if !ok {
		return false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return false
	}
	return now.After(t)
}
