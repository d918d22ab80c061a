package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a recognition session.
//
//	IDLE → STREAMING → STOPPED
//	              └──→ FAILED
//
// STOPPED and FAILED are terminal; a connection starts a fresh session for
// the next speak cycle instead of restarting a finished one.
type State int

const (
	// StateIdle - created, no stream opened yet.
	StateIdle State = iota
	// StateStreaming - one live recognition stream is open.
	StateStreaming
	// StateStopped - stream ended normally (explicit stop, disconnect or
	// provider time limit).
	StateStopped
	// StateFailed - stream ended on a fatal provider error.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStreaming:
		return "STREAMING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for STOPPED and FAILED.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// Errors for invalid lifecycle transitions.
var (
	ErrAlreadyStreaming = errors.New("recognition stream already open")
	ErrSessionFinished  = errors.New("recognition session already finished")
)
