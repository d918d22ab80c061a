// Package models defines the data structures for utterance events.
package models

// SpeakerWord is one recognized word with speaker attribution from diarization.
type SpeakerWord struct {
	Word       string `json:"word"`
	SpeakerTag int32  `json:"speakerTag"`
	StartMs    int64  `json:"startMs,omitempty"`
	EndMs      int64  `json:"endMs,omitempty"`
}

// Utterance is one segment of speech. Non-final utterances sharing an ID are
// successive revisions of the same in-progress group; the final one closes
// the group. Finalized utterances are never mutated.
type Utterance struct {
	ID         string        `json:"id"`
	Timestamp  int64         `json:"timestamp"`
	Transcript string        `json:"transcript"`
	Speakers   []SpeakerWord `json:"speakers"`
	IsFinal    bool          `json:"isFinal"`
}

// Claims are the identity attributes resolved from a client access token.
type Claims struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	WorkspaceID string `json:"currentWorkspaceId"`
	Role        string `json:"role"`
}
