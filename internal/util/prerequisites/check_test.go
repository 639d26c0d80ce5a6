package prerequisites

import (
	"errors"
	"reflect"
	"testing"
)

func stubLookPath(t *testing.T, found map[string]string) {
	t.Helper()
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
}

func TestCheck(t *testing.T) {
	stubLookPath(t, map[string]string{"az": "/usr/bin/az"})

	results := CheckDefault()

	if len(results.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results.Results))
	}
	if !results.Found("az") {
		t.Errorf("expected az to be found")
	}
	if results.Results[0].Path != "/usr/bin/az" {
		t.Errorf("expected path to be set, got %q", results.Results[0].Path)
	}
	if results.Found("cypher-shell") {
		t.Errorf("expected cypher-shell to be missing")
	}
	if len(results.Missing) != 1 {
		t.Errorf("expected 1 missing tool, got %d", len(results.Missing))
	}
	if results.HasErrors() {
		t.Errorf("optional tools must not cause errors")
	}
	if results.Error() != nil {
		t.Errorf("expected nil error, got %v", results.Error())
	}
}

func TestCheckMissingRequiredTool(t *testing.T) {
	stubLookPath(t, nil)

	results := Check([]Tool{{
		Name:        "nonexistent-tool-xyz123",
		Required:    true,
		Description: "A tool that does not exist",
		InstallURL:  "https://example.com",
	}})

	if !results.HasErrors() {
		t.Errorf("expected errors for missing required tool")
	}
	err := results.Error()
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "missing required tools: nonexistent-tool-xyz123 (https://example.com)" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentialSources(t *testing.T) {
	withCLI := &CheckResults{Results: []CheckResult{{Tool: Tool{Name: AzureCLI}, Found: true}}}

	tests := []struct {
		name  string
		env   map[string]string
		tools *CheckResults
		want  []string
	}{
		{name: "nothing", want: nil},
		{
			name: "service principal secret",
			env:  map[string]string{"AZURE_TENANT_ID": "t", "AZURE_CLIENT_ID": "c", "AZURE_CLIENT_SECRET": "s"},
			want: []string{SourceEnvironment},
		},
		{
			name: "client id without secret",
			env:  map[string]string{"AZURE_TENANT_ID": "t", "AZURE_CLIENT_ID": "c"},
			want: nil,
		},
		{
			name: "workload identity",
			env:  map[string]string{"AZURE_TENANT_ID": "t", "AZURE_CLIENT_ID": "c", "AZURE_FEDERATED_TOKEN_FILE": "/var/run/token"},
			want: []string{SourceWorkloadIdentity},
		},
		{
			name:  "managed identity and cli",
			env:   map[string]string{"IDENTITY_ENDPOINT": "http://169.254.169.254"},
			tools: withCLI,
			want:  []string{SourceManagedIdentity, SourceAzureCLI},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CredentialSources(func(k string) string { return tt.env[k] }, tt.tools)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CredentialSources() = %v, want %v", got, tt.want)
			}
		})
	}
}
