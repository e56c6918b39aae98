// Package connectivity tracks whether the upstream origin is reachable.
// It is driven by the outcome of every upstream fetch and fires restore
// callbacks on each offline to online transition.
package connectivity

import (
	"time"
)

// DefaultOfflineThreshold is the number of consecutive network failures
// after which the upstream is considered offline.
const DefaultOfflineThreshold = 3

// State represents the current connectivity state.
type State struct {
	// Online is false after the failure threshold has been reached and until
	// the next successful fetch.
	Online bool `json:"online"`

	// ConsecutiveFailures counts network failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastChange is when Online last flipped.
	LastChange time.Time `json:"last_change"`

	// LastUpdate is when the last outcome was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if no outcome was recorded within maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// OfflineFor returns how long the upstream has been offline.
// Returns 0 while online.
func (s State) OfflineFor() time.Duration {
	if s.Online || s.LastChange.IsZero() {
		return 0
	}
	return time.Since(s.LastChange)
}
