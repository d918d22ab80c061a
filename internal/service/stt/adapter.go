// Package stt defines the seam between recognition sessions and streaming
// Speech-to-Text providers.
package stt

import (
	"context"

	"interview-speech-relay/internal/models"
)

// Alternative is one candidate transcription for a recognition result.
type Alternative struct {
	Transcript string
	Confidence float64
	Words      []models.SpeakerWord
}

// Result is one incremental recognition event. An empty Alternatives slice
// means the provider hit its stream duration cap and will stop producing.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Callback receives events from an open recognition stream.
type Callback interface {
	// OnResult is called for each interim or final recognition result.
	OnResult(res Result)

	// OnTimeLimit is called when the provider reaches its stream duration
	// cap. The stream stops producing; the owner must tear it down.
	OnTimeLimit()

	// OnError is called on a fatal stream error (e.g. inactivity timeout).
	OnError(err error)
}

// StreamConfig configures a single recognition stream.
type StreamConfig struct {
	LanguageCode   string
	SampleRateHz   int32
	SpeakerCount   int32
	InterimResults bool
}

// Stream is one live recognition stream, exclusively owned by a session.
type Stream interface {
	// Send writes raw LINEAR16 audio bytes to the stream.
	Send(ctx context.Context, audio []byte) error

	// Close ends the stream. Safe to call more than once.
	Close() error
}

// Factory opens independent streams against a shared provider client. No
// per-stream state lives on the factory.
type Factory interface {
	OpenStream(ctx context.Context, cfg StreamConfig, cb Callback) (Stream, error)
}
