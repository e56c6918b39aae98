package connectivity

import (
	"testing"
	"time"
)

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    State{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    State{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_OfflineFor(t *testing.T) {
	online := State{Online: true, LastChange: time.Now().Add(-time.Hour)}
	if online.OfflineFor() != 0 {
		t.Errorf("OfflineFor() while online = %v, want 0", online.OfflineFor())
	}

	offline := State{Online: false, LastChange: time.Now().Add(-time.Minute)}
	if d := offline.OfflineFor(); d < 59*time.Second {
		t.Errorf("OfflineFor() = %v, want about 1m", d)
	}
}
