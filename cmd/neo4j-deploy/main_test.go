package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

func TestExitCode(t *testing.T) {
	cfg := deployment.ConfigError("load settings", errors.New("subscriptionId is required"))

	assert.Equal(t, 2, exitCode(cfg))
	assert.Equal(t, 2, exitCode(fmt.Errorf("setup: %w", cfg)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 1, exitCode(deployment.NewError(deployment.KindSubmission, "submit", "d1", errors.New("denied"))))
}
