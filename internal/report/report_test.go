package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/config"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func records() []deployment.Record {
	submitted := now.Add(-50 * time.Minute)
	done := now.Add(-30 * time.Minute)
	return []deployment.Record{
		{
			ID: "cluster-v5-20260301-1100-ab12", ScenarioName: "cluster-v5",
			Status: deployment.StatusFailed, CreatedAt: now.Add(-time.Hour),
			ErrorDetail: "timeout", ContainerName: "neo4j-test-cluster",
		},
		{
			ID: "standalone-v5-20260301-1110-cd34", ScenarioName: "standalone-v5",
			Status: deployment.StatusValidated, ValidationResult: deployment.ValidationPass,
			CreatedAt: now.Add(-50 * time.Minute), SubmittedAt: &submitted, TerminalAt: &done,
			Endpoint: "neo4j://10.0.0.4:7687",
		},
		{
			ID: "standalone-v44-20260301-1150-ef56", ScenarioName: "standalone-v44",
			Status: deployment.StatusProvisioning, CreatedAt: now.Add(-10 * time.Minute),
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	recs := records()
	recs[0], recs[2] = recs[2], recs[0]

	s := Build("all", recs, now)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Counts[deployment.StatusFailed])
	assert.Equal(t, 1, s.Passed())
	assert.Equal(t, 1, s.InFlight())

	require.Len(t, s.Rows, 3)
	assert.Equal(t, "cluster-v5", s.Rows[0].Scenario, "rows are ordered by creation time")
	assert.Equal(t, time.Hour, s.Rows[0].Age)
	assert.Equal(t, 20*time.Minute, s.Rows[1].Duration)

	failing := s.Failing()
	require.Len(t, failing, 1)
	assert.Equal(t, "timeout", failing[0].ErrorDetail)
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()
	s := Build("all", nil, now)
	assert.Zero(t, s.Total)
	assert.Empty(t, s.Failing())
	assert.Contains(t, RenderTerminal(s), "No deployments recorded")
}

func TestRenderTerminal(t *testing.T) {
	t.Parallel()
	out := RenderTerminal(Build("all", records(), now))

	assert.Contains(t, out, "standalone-v5-20260301-1110-cd34")
	assert.Contains(t, out, "Validated")
	assert.Contains(t, out, "Pass")
	assert.Contains(t, out, "1 hour ago")
	assert.Contains(t, out, "Failures")
	assert.Contains(t, out, "timeout")
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, Build("standalone-v5", records(), now)))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Deployment report: standalone-v5"))
	assert.Contains(t, out, "| Validated | 1 |")
	assert.Contains(t, out, "| **Total** | 3 |")
	assert.Contains(t, out, "| standalone-v5-20260301-1110-cd34 | standalone-v5 | Validated | Pass |")
	assert.Contains(t, out, "20m0s")
	assert.Contains(t, out, "- `cluster-v5-20260301-1100-ab12` (cluster-v5): timeout")
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "results")

	path, err := WriteMarkdown(dir, Build("all", records(), now))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report-all-20260301-120000.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Deployment report: all")
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, Build("all", records(), now)))

	var got struct {
		Total       int            `json:"total"`
		Counts      map[string]int `json:"counts"`
		Deployments []struct {
			ID         string `json:"deploymentId"`
			Status     string `json:"status"`
			Validation string `json:"validationResult"`
		} `json:"deployments"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 1, got.Counts["Validated"])
	assert.Equal(t, "Pass", got.Deployments[1].Validation)
}

func TestRenderYAML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, RenderYAML(&buf, Build("all", records(), now)))
	assert.Contains(t, buf.String(), "deploymentId: standalone-v5-20260301-1110-cd34")
	assert.Contains(t, buf.String(), "total: 3")
}

type stubPutter struct {
	in   *s3.PutObjectInput
	body string
	err  error
}

func (s *stubPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.in = in
	data, _ := io.ReadAll(in.Body)
	s.body = string(data)
	if s.err != nil {
		return nil, s.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	t.Parallel()
	path, err := WriteMarkdown(t.TempDir(), Build("all", records(), now))
	require.NoError(t, err)

	stub := &stubPutter{}
	u := &Uploader{Client: stub, Bucket: "reports", Prefix: "ci/neo4j"}
	key, err := u.Upload(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "ci/neo4j/report-all-20260301-120000.md", key)
	assert.Equal(t, "reports", *stub.in.Bucket)
	assert.Contains(t, stub.body, "# Deployment report")
}

func TestUploadAPIError(t *testing.T) {
	t.Parallel()
	path, err := WriteMarkdown(t.TempDir(), Build("all", nil, now))
	require.NoError(t, err)

	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	u := &Uploader{Client: &stubPutter{err: apiErr}, Bucket: "reports"}
	_, err = u.Upload(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")

	var got smithy.APIError
	assert.True(t, errors.As(err, &got))
}

func TestNewUploaderRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := NewUploader(context.Background(), config.Report{}, nil)
	assert.Error(t, err)
}
