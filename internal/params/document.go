package params

import (
	"encoding/json"
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/provider"
)

// ARM deployment parameters file header values.
const (
	SchemaURL      = "https://schema.management.azure.com/schemas/2019-04-01/deploymentParameters.json#"
	ContentVersion = "1.0.0.0"
)

// Document is the on-disk ARM deployment parameters file. Metadata carries
// the orchestrator's bookkeeping and is ignored by Resource Manager.
type Document struct {
	Schema         string                        `json:"$schema"`
	ContentVersion string                        `json:"contentVersion"`
	Metadata       Metadata                      `json:"metadata"`
	Parameters     map[string]provider.Parameter `json:"parameters"`
}

// Metadata identifies the attempt a parameter file belongs to.
type Metadata struct {
	DeploymentID   string    `json:"deploymentId"`
	ScenarioName   string    `json:"scenarioName"`
	ContainerName  string    `json:"resourceContainerName"`
	DeploymentName string    `json:"deploymentName"`
	Region         string    `json:"region"`
	TemplateRef    string    `json:"templateRef"`
	SecretMode     string    `json:"secretMode"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (d *Document) encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
