package naming

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the UTC timestamp embedded in ids and file names.
const TimestampLayout = "20060102-150405"

// SuffixLength is the length of the random id suffix.
const SuffixLength = 4

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Provider-side name limits.
const (
	maxContainerName  = 90
	maxDeploymentName = 64
)

var deploymentIDPattern = regexp.MustCompile(`^(.+)-(\d{8}-\d{6})-([a-z0-9]{4})$`)

// DeploymentID builds a deployment id from its parts.
func DeploymentID(scenario string, at time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s-%s", scenario, at.UTC().Format(TimestampLayout), suffix)
}

// ParseDeploymentID splits an id into scenario, creation time and suffix.
func ParseDeploymentID(id string) (scenario string, at time.Time, suffix string, err error) {
	m := deploymentIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, "", fmt.Errorf("malformed deployment id %q", id)
	}
	at, err = time.ParseInLocation(TimestampLayout, m[2], time.UTC)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("malformed deployment id %q: %w", id, err)
	}
	return m[1], at, m[3], nil
}

// RandomSuffix returns SuffixLength characters drawn from [a-z0-9].
func RandomSuffix() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for range SuffixLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate id suffix: %w", err)
		}
		b.WriteByte(suffixAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Container returns the resource container name for a deployment. When
// the name is over the provider limit the scenario part is shortened; the
// timestamp and random suffix are always kept.
func Container(prefix, deploymentID string) string {
	return fit(prefix+"-", deploymentID, maxContainerName)
}

// Deployment returns the provider-side deployment name, shortened the same
// way as Container.
func Deployment(deploymentID string) string {
	return fit("neo4j-", deploymentID, maxDeploymentName)
}

// ParamsFile returns the parameter artifact file name.
func ParamsFile(deploymentID string) string {
	return deploymentID + ".json"
}

// SSHKeyFile returns the private key file name for a deployment.
func SSHKeyFile(deploymentID string) string {
	return deploymentID + "_id_rsa"
}

// Report returns the report file name for a scope ("all" or a scenario).
func Report(scope string, at time.Time) string {
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("report-%s-%s.md", scope, at.UTC().Format(TimestampLayout))
}

// LogFile returns the execution log file name for a command.
func LogFile(command string, at time.Time) string {
	return fmt.Sprintf("%s-%s.log", at.UTC().Format(TimestampLayout), command)
}

// fit joins head and id, cutting from the scenario part of id before the
// "-<timestamp>-<suffix>" tail until the result is at most n bytes.
func fit(head, id string, n int) string {
	name := head + id
	if len(name) <= n {
		return name
	}
	scenario, at, suffix, err := ParseDeploymentID(id)
	if err != nil {
		return name[:n]
	}
	tail := "-" + at.Format(TimestampLayout) + "-" + suffix
	keep := n - len(tail)
	front := head + scenario
	if keep <= 0 {
		return tail[len(tail)-n:]
	}
	return strings.TrimRight(front[:min(keep, len(front))], "-") + tail
}
