// Package protocol defines the JSON envelope exchanged with clients and the
// payload types carried inside it. Binary frames carry raw audio and never
// use the envelope.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound and outbound message types.
const (
	TypeAuth       = "auth"
	TypeSpeakStart = "speak.start"
	TypeSpeakData  = "speak.data"
	TypeSpeakStop  = "speak.stop"
	TypeError      = "error"
	TypeTranscript = "speak.transcript"
)

// Defaults applied to speak.start payloads.
const (
	DefaultLocale       = "en-US"
	DefaultSampleRateHz = 44100
)

// Outbound error payload texts. MsgSocketInactivity is the opaque message
// sent on a fatal recognition stream error; internals are never leaked.
const (
	MsgSocketInactivity  = "Socket closed due to inactivity."
	MsgInvalidEnvelope   = "Invalid message envelope."
	MsgStreamStartFailed = "Unable to start transcription stream."
)

// Envelope is an inbound control frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is an outbound message to the client.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// AuthPayload carries the client credential.
type AuthPayload struct {
	AccessToken string `json:"accessToken"`
}

// SpeakStartPayload configures a new recognition session.
type SpeakStartPayload struct {
	Locale      string `json:"locale,omitempty"`
	SampleRate  int32  `json:"sampleRate,omitempty"`
	InterviewID string `json:"interviewId"`
}

// ApplyDefaults fills in the documented defaults for omitted fields.
func (p *SpeakStartPayload) ApplyDefaults() {
	if p.Locale == "" {
		p.Locale = DefaultLocale
	}
	if p.SampleRate <= 0 {
		p.SampleRate = DefaultSampleRateHz
	}
}

// ParseEnvelope decodes an inbound text frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	return env, nil
}

// InvalidEventType builds the error payload for an unrecognized message type.
func InvalidEventType(msgType string) string {
	return fmt.Sprintf("Invalid event type. Received %q.", msgType)
}

// ErrorFrame builds an outbound error frame.
func ErrorFrame(message string) Frame {
	return Frame{Type: TypeError, Payload: message}
}

// TranscriptFrame builds an outbound live-transcript echo frame.
func TranscriptFrame(utterance any) Frame {
	return Frame{Type: TypeTranscript, Payload: utterance}
}
