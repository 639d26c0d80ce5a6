package cleanup

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/neo4j-partners/neo4j-deploy/internal/state"
)

// Selector picks the deployments a cleanup run considers.
type Selector struct {
	IDs       []string
	All       bool
	OlderThan time.Duration
}

// ByID selects the given deployments.
func ByID(ids ...string) Selector {
	return Selector{IDs: ids}
}

// All selects every deployment.
func All() Selector {
	return Selector{All: true}
}

// OlderThan selects deployments created more than d ago.
func OlderThan(d time.Duration) Selector {
	return Selector{OlderThan: d}
}

func (s Selector) String() string {
	switch {
	case len(s.IDs) > 0:
		return fmt.Sprintf("ids %v", s.IDs)
	case s.OlderThan > 0:
		return "older than " + s.OlderThan.String()
	default:
		return "all"
	}
}

func (s Selector) filter(now time.Time) (state.Filter, error) {
	switch {
	case len(s.IDs) > 0:
		return state.Filter{IDs: s.IDs}, nil
	case s.OlderThan > 0:
		return state.Filter{CreatedBefore: now.Add(-s.OlderThan)}, nil
	case s.All:
		return state.Filter{}, nil
	default:
		return state.Filter{}, fmt.Errorf("empty cleanup selector")
	}
}

var agePattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

// ParseAge reads "30m", "2h", "3d", "1w" or any Go duration.
func ParseAge(s string) (time.Duration, error) {
	if m := agePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid age %q: %w", s, err)
		}
		unit := map[string]time.Duration{
			"m": time.Minute,
			"h": time.Hour,
			"d": 24 * time.Hour,
			"w": 7 * 24 * time.Hour,
		}[m[2]]
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: use <n>m, <n>h, <n>d, <n>w or a Go duration", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid age %q: must be positive", s)
	}
	return d, nil
}
