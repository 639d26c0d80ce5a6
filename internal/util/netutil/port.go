// Package netutil provides TCP reachability checks used before protocol handshakes.
package netutil

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// DialTimeout bounds a single probe when the caller gives no timeout.
const DialTimeout = 2 * time.Second

// HostPort extracts host:port from a URI such as neo4j://10.1.0.4:7687,
// filling in defaultPort when the URI has none.
func HostPort(uri string, defaultPort int) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", uri, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", uri)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	return net.JoinHostPort(host, port), nil
}

// Probe dials address once and returns nil if a TCP connection was accepted.
func Probe(ctx context.Context, address string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", address, err)
	}
	_ = conn.Close()
	return nil
}
