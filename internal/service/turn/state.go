// Package turn provides turn ID generation and lifecycle tracking for one
// conversational turn: a finalized utterance and the spoken response to it.
package turn

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the lifecycle state of a turn.
type State int

const (
	// StatePending - Utterance received, no response spoken yet.
	StatePending State = iota
	// StateSpeaking - At least one response chunk has been spoken.
	StateSpeaking
	// StateCompleted - The whole response was spoken.
	StateCompleted
	// StateFailed - An adapter failed mid-turn. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSpeaking:
		return "SPEAKING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for COMPLETED and FAILED.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

var ErrTurnFinished = errors.New("turn already finished")

// Lifecycle tracks a single turn. Thread-safe.
//
//	PENDING ──Spoke()──> SPEAKING ──Complete()──> COMPLETED
//	   │                    │
//	   └──────Fail()────────┴──> FAILED
//
// A turn with an empty response goes straight from PENDING to COMPLETED.
type Lifecycle struct {
	mu        sync.RWMutex
	turnID    string
	utterance string
	state     State
	chunks    int
	startedAt time.Time
	endedAt   time.Time
}

// NewLifecycle starts a turn for utterance in PENDING state.
func NewLifecycle(turnID, utterance string) *Lifecycle {
	return &Lifecycle{
		turnID:    turnID,
		utterance: utterance,
		state:     StatePending,
		startedAt: time.Now(),
	}
}

func (l *Lifecycle) TurnID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.turnID
}

func (l *Lifecycle) Utterance() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.utterance
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Chunks returns the number of response chunks spoken.
func (l *Lifecycle) Chunks() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chunks
}

// Elapsed is the turn duration so far, or the final duration once terminal.
func (l *Lifecycle) Elapsed() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state.IsTerminal() {
		return l.endedAt.Sub(l.startedAt)
	}
	return time.Since(l.startedAt)
}

// Spoke records one spoken chunk.
func (l *Lifecycle) Spoke() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending, StateSpeaking:
		l.state = StateSpeaking
		l.chunks++
		return nil
	default:
		return ErrTurnFinished
	}
}

// Complete marks the response fully spoken.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrTurnFinished
	}
	l.state = StateCompleted
	l.endedAt = time.Now()
	return nil
}

// Fail abandons the turn. Returns false if it had already finished.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	l.endedAt = time.Now()
	return true
}
