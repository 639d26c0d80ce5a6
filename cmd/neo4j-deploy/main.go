// Package main is the entry point for the neo4j-deploy CLI.
//
// neo4j-deploy drives Neo4j deployments on Azure Resource Manager through
// their whole lifecycle: template validation, submission, status polling,
// workload smoke tests, reporting and cleanup. All state lives in a local
// workspace directory so every command can be re-run after a crash.
//
// Commands: setup, validate-templates, deploy, status, test, cancel,
// report, cleanup.
//
// For detailed usage information, run:
//
//	neo4j-deploy --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neo4j-partners/neo4j-deploy/cmd/neo4j-deploy/commands"
	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration problems to 2 and every other failure to 1.
func exitCode(err error) int {
	if deployment.IsKind(err, deployment.KindConfig) {
		return 2
	}
	return 1
}
