package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of the worker's cache generation.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// ErrInvalidTransition indicates a lifecycle event that is not allowed in
// the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// transitions lists the allowed moves. A redundant worker may try to
// install again.
var transitions = map[State][]State{
	StateParsed:     {StateInstalling},
	StateInstalling: {StateInstalled, StateRedundant},
	StateInstalled:  {StateActivating},
	StateActivating: {StateActivated, StateInstalled},
	StateRedundant:  {StateInstalling},
}

// Lifecycle is the state machine of one generation.
type Lifecycle struct {
	mu        sync.RWMutex
	state     State
	changedAt time.Time
}

// NewLifecycle returns a lifecycle in StateParsed.
func NewLifecycle() *Lifecycle {
	lifecycleState.Reset()
	lifecycleState.WithLabelValues(string(StateParsed)).Set(1)
	return &Lifecycle{state: StateParsed, changedAt: time.Now()}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// ChangedAt returns when the state last changed.
func (l *Lifecycle) ChangedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changedAt
}

// Transition moves to the state to and returns the previous state.
func (l *Lifecycle) Transition(to State) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.state
	for _, s := range transitions[from] {
		if s == to {
			l.state = to
			l.changedAt = time.Now()
			lifecycleState.Reset()
			lifecycleState.WithLabelValues(string(to)).Set(1)
			return from, nil
		}
	}
	return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
