// Package prerequisites checks the local machine for the client tools and
// Azure credential sources a deployment run relies on.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// AzureCLI is the tool name that doubles as a credential source.
const AzureCLI = "az"

// DefaultTools returns the tools worth having next to neo4j-deploy. None are
// required: Azure is reached through the SDK and workloads through Bolt.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:        AzureCLI,
			Required:    false,
			Description: "Supplies credentials through 'az login' when no service principal is configured",
			InstallURL:  "https://learn.microsoft.com/cli/azure/install-azure-cli",
		},
		{
			Name:        "cypher-shell",
			Required:    false,
			Description: "Useful for querying a deployment by hand",
			InstallURL:  "https://neo4j.com/deployment-center/",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool  Tool
	Found bool
	Path  string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Found reports whether the named tool was located.
func (r *CheckResults) Found(name string) bool {
	for _, res := range r.Results {
		if res.Tool.Name == name {
			return res.Found
		}
	}
	return false
}

var lookPath = exec.LookPath

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := lookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckDefault checks the default tools.
func CheckDefault() *CheckResults {
	return Check(DefaultTools())
}

// Credential source names, in the order DefaultAzureCredential tries them.
const (
	SourceEnvironment      = "environment"
	SourceWorkloadIdentity = "workload identity"
	SourceManagedIdentity  = "managed identity"
	SourceAzureCLI         = "azure cli"
)

// CredentialSources lists the Azure credential sources that look usable.
// It only inspects configuration; no token is requested.
func CredentialSources(getenv func(string) string, tools *CheckResults) []string {
	set := func(keys ...string) bool {
		for _, k := range keys {
			if getenv(k) == "" {
				return false
			}
		}
		return true
	}

	var sources []string
	if set("AZURE_TENANT_ID", "AZURE_CLIENT_ID") &&
		(getenv("AZURE_CLIENT_SECRET") != "" || getenv("AZURE_CLIENT_CERTIFICATE_PATH") != "") {
		sources = append(sources, SourceEnvironment)
	}
	if set("AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_FEDERATED_TOKEN_FILE") {
		sources = append(sources, SourceWorkloadIdentity)
	}
	if getenv("IDENTITY_ENDPOINT") != "" || getenv("MSI_ENDPOINT") != "" {
		sources = append(sources, SourceManagedIdentity)
	}
	if tools != nil && tools.Found(AzureCLI) {
		sources = append(sources, SourceAzureCLI)
	}
	return sources
}
