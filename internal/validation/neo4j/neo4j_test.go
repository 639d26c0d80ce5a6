package neo4j

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo4j-partners/neo4j-deploy/internal/params"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation"
)

func TestConnect_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := New().Connect(context.Background(), validation.Target{
		URI:      "bogus://localhost:7687",
		Username: "neo4j",
		Password: params.NewSecret("pw"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create driver")
}

func TestQueriesUseMarkerLabel(t *testing.T) {
	t.Parallel()
	for _, q := range []string{writeQuery, readQuery, deleteQuery} {
		assert.True(t, strings.Contains(q, ":"+MarkerLabel+" {tag: $tag"), q)
	}
}

func TestConnect_ClosedPort(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	w := New()
	w.ConnectTimeout = 200 * time.Millisecond
	_, err = w.Connect(context.Background(), validation.Target{
		URI:      "neo4j://" + addr,
		Username: "neo4j",
		Password: params.NewSecret("pw"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
