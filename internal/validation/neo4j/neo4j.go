// Package neo4j runs the smoke-test primitives over Bolt with the official
// Go driver.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/neo4j-partners/neo4j-deploy/internal/util/netutil"
	"github.com/neo4j-partners/neo4j-deploy/internal/validation"
)

// MarkerLabel is the node label of smoke-test records.
const MarkerLabel = "Neo4jDeploySmokeTest"

// DefaultBoltPort is assumed when the endpoint URI has no port.
const DefaultBoltPort = 7687

const (
	writeQuery   = "CREATE (n:" + MarkerLabel + " {tag: $tag, payload: $payload, createdAt: datetime()})"
	readQuery    = "MATCH (n:" + MarkerLabel + " {tag: $tag}) RETURN n.payload AS payload"
	deleteQuery  = "MATCH (n:" + MarkerLabel + " {tag: $tag}) DELETE n"
	licenseQuery = "CALL dbms.acceptedLicenseAgreement()"
)

// Workload connects to Neo4j over Bolt.
type Workload struct {
	ConnectTimeout time.Duration
}

var _ validation.Workload = (*Workload)(nil)

func New() *Workload {
	return &Workload{ConnectTimeout: 10 * time.Second}
}

// Connect creates a driver and verifies connectivity. The driver is closed
// with the session.
func (w *Workload) Connect(ctx context.Context, t validation.Target) (validation.Session, error) {
	driver, err := neo4j.NewDriverWithContext(t.URI,
		neo4j.BasicAuth(t.Username, t.Password.Reveal(), ""),
		func(c *config.Config) {
			c.SocketConnectTimeout = w.ConnectTimeout
			c.MaxConnectionPoolSize = 1
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}
	// Fail fast on a closed Bolt port.
	addr, err := netutil.HostPort(t.URI, DefaultBoltPort)
	if err == nil {
		err = netutil.Probe(ctx, addr, w.ConnectTimeout)
	}
	if err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	sess := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: t.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	return &session{driver: driver, session: sess}, nil
}

type session struct {
	driver  neo4j.DriverWithContext
	session neo4j.SessionWithContext
}

func (s *session) Write(ctx context.Context, tag, payload string) error {
	_, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, writeQuery, map[string]any{"tag": tag, "payload": payload})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *session) Read(ctx context.Context, tag string) (string, error) {
	v, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, readQuery, map[string]any{"tag": tag})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		payload, _ := rec.Get("payload")
		return payload, nil
	})
	if err != nil {
		return "", err
	}
	payload, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected payload type %T", v)
	}
	return payload, nil
}

func (s *session) Delete(ctx context.Context, tag string) error {
	_, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, deleteQuery, map[string]any{"tag": tag})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// LicenseAgreement reads the first column of the first row the procedure
// returns. Servers without the procedure return an error.
func (s *session) LicenseAgreement(ctx context.Context) (string, error) {
	v, err := s.session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, licenseQuery, nil)
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 || len(recs[0].Values) == 0 {
			return "", nil
		}
		if value, ok := recs[0].Get("value"); ok {
			return fmt.Sprint(value), nil
		}
		return fmt.Sprint(recs[0].Values[0]), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *session) Close(ctx context.Context) error {
	serr := s.session.Close(ctx)
	derr := s.driver.Close(ctx)
	if serr != nil {
		return serr
	}
	return derr
}
