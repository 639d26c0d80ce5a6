package validation

import (
	"context"

	"github.com/neo4j-partners/neo4j-deploy/internal/params"
)

// Target is everything needed to reach a deployed workload.
type Target struct {
	URI      string
	Username string
	Password params.Secret
	Database string
}

// Workload opens sessions against a deployed system.
type Workload interface {
	Connect(ctx context.Context, t Target) (Session, error)
}

// Session runs the smoke-test primitives on one connection.
type Session interface {
	// Write stores a marker record carrying tag and payload.
	Write(ctx context.Context, tag, payload string) error
	// Read returns the payload stored under tag.
	Read(ctx context.Context, tag string) (string, error)
	// Delete removes the marker record.
	Delete(ctx context.Context, tag string) error
	// LicenseAgreement returns the license agreement the server runs under,
	// or "" when the server does not report one.
	LicenseAgreement(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// EvaluationAgreement is the agreement reported by a server running under
// the 30-day evaluation license.
const EvaluationAgreement = "30"
