package cache

import (
	"slices"

	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// Which target triples a build output cache keeps.
type RetentionPolicy int

const (

	// Keep only the target that was just built. Cache growth is bounded by
	// one target, at the cost of a cold build when alternating targets
	// share a namespace.
	RetainCurrent RetentionPolicy = iota

	// Keep the target just built plus [Retention.KeepTargets].
	RetainListed

	// Never remove a target. Only per-profile pruning applies.
	RetainAll
)

// Returns the configuration name of the policy.
func (p RetentionPolicy) String() string {
	switch p {
	case RetainListed:
		return "listed"
	case RetainAll:
		return "all"
	default:
		return "current"
	}
}

// Implements [encoding.TextMarshaler].
func (p RetentionPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Implements [encoding.TextUnmarshaler].
func (p *RetentionPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "current":
		*p = RetainCurrent
	case "listed":
		*p = RetainListed
	case "all":
		*p = RetainAll
	default:
		return fault.Wrapf(ErrConfig, "unknown retention policy %q", text)
	}
	return nil
}

// Retention policy for build output caches shared by several targets.
type Retention struct {
	Policy      RetentionPolicy `mapstructure:"policy" yaml:"policy"`
	KeepTargets []string        `mapstructure:"keep_targets" yaml:"keep_targets"` // Extra triples for [RetainListed].
}

// Returns the target triples to keep after building current.
//
// A nil result means every target is kept. That is the case for
// [RetainAll] and whenever the current target is unknown, since pruning
// with an empty keep list would discard the build just made.
func (r Retention) Targets(current string) []string {
	if r.Policy == RetainAll || current == "" {
		return nil
	}

	keep := []string{current}
	if r.Policy == RetainListed {
		for _, t := range r.KeepTargets {
			if !slices.Contains(keep, t) {
				keep = append(keep, t)
			}
		}
	}
	return keep
}
