// Package retention bounds the growth of an agent's findings. Eviction
// is unconditional data loss: callers that need history snapshot the
// artifact (or enable store backups) before a trim runs.
package retention

import (
	"errors"
	"fmt"

	"github.com/entrhq/hivemind/pkg/team"
)

var ErrConfig = errors.New("retention: invalid configuration")

// DefaultMaxFindings applies when an agent's config does not set
// max_findings.
const DefaultMaxFindings = 50

// ConfigKey is the agent config entry that tunes the retention bound.
const ConfigKey = "max_findings"

// Bound resolves the retention bound for a record from its config.
// An unset key falls back to DefaultMaxFindings; a non-numeric or
// non-positive value fails with ErrConfig.
func Bound(rec *team.AgentRecord) (int, error) {
	v, ok := rec.Config[ConfigKey]
	if !ok || v.Kind() == team.KindNull {
		return DefaultMaxFindings, nil
	}
	n, ok := v.IntVal()
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number, got %s", ErrConfig, ConfigKey, v.Kind())
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", ErrConfig, ConfigKey, n)
	}
	return n, nil
}

// Trim evicts the oldest findings until at most max remain. The
// surviving suffix keeps its original relative order; the most recent
// finding is never evicted. Trim is deterministic and idempotent.
func Trim(rec *team.AgentRecord, max int) error {
	if max <= 0 {
		return fmt.Errorf("%w: bound must be positive, got %d", ErrConfig, max)
	}
	findings := rec.Experience.Findings
	if len(findings) <= max {
		return nil
	}
	kept := make([]team.Finding, max)
	copy(kept, findings[len(findings)-max:])
	rec.Experience.Findings = kept
	return nil
}

// Apply trims a record using the bound resolved from its own config.
func Apply(rec *team.AgentRecord) error {
	max, err := Bound(rec)
	if err != nil {
		return err
	}
	return Trim(rec, max)
}
