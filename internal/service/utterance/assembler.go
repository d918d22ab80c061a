// Package utterance groups incremental recognition results into utterance
// records with a grouping-id lifecycle.
//
// All interim results between two finals are revisions of one in-progress
// utterance and share a grouping id. A final result closes the group and
// the id is rotated, so the next result starts a fresh group.
package utterance

import (
	"time"

	"github.com/google/uuid"

	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/service/stt"
)

// Action tells the caller what to do with an assembled utterance.
type Action int

const (
	// ActionReconnect - the event carried no alternatives: the provider hit
	// its stream duration cap. No utterance is produced; the caller must
	// tear the stream down. Restarting it is up to the client.
	ActionReconnect Action = iota

	// ActionNotify - interim revision of the open group. Client echo only;
	// the record service is never called for interim results.
	ActionNotify

	// ActionNotifyAppend - the group was finalized. Echo to the client and
	// append to the interview record.
	ActionNotifyAppend
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionReconnect:
		return "RECONNECT"
	case ActionNotify:
		return "NOTIFY"
	case ActionNotifyAppend:
		return "NOTIFY_APPEND"
	default:
		return "UNKNOWN"
	}
}

// Assembler holds the open grouping id for one recognition session. Not
// safe for concurrent use; the owning session serializes calls.
type Assembler struct {
	groupingID string
	now        func() time.Time
	newID      func() string
}

// New creates an Assembler with no open group.
func New() *Assembler {
	return &Assembler{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NewWithClock creates an Assembler with an injected clock and id minter.
func NewWithClock(now func() time.Time, newID func() string) *Assembler {
	return &Assembler{now: now, newID: newID}
}

// GroupingID returns the currently open grouping id, or "" if none has
// been minted yet.
func (a *Assembler) GroupingID() string {
	return a.groupingID
}

// Process converts one recognition result into an utterance record and the
// action to take. Every result yields either an utterance or a reconnect
// signal; nothing is dropped silently.
func (a *Assembler) Process(res stt.Result) (*models.Utterance, Action) {
	if len(res.Alternatives) == 0 {
		return nil, ActionReconnect
	}

	// Only the best alternative is consumed.
	alt := res.Alternatives[0]

	if a.groupingID == "" {
		a.groupingID = a.newID()
	}

	u := &models.Utterance{
		ID:         a.groupingID,
		Timestamp:  a.now().UnixMilli(),
		Transcript: alt.Transcript,
		Speakers:   alt.Words,
		IsFinal:    res.IsFinal,
	}

	if !res.IsFinal {
		// Revision of the open group: replaces the previous interim.
		return u, ActionNotify
	}

	// Group finalized; the id is retired and the next result starts fresh.
	a.groupingID = a.newID()
	return u, ActionNotifyAppend
}
