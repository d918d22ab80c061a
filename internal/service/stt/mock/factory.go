// Package mock provides a scripted STT factory for tests and local runs
// without cloud credentials. It simulates progressive interim results and
// exactly one final result per utterance, cycling through sample utterances.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/service/stt"
)

// SimulatedUtterance is one scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Interims   []string
	Final      string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Interims:   []string{"So tell me", "So tell me about", "So tell me about your last"},
		Final:      "So tell me about your last role",
		Confidence: 0.94,
	},
	{
		Interims:   []string{"I led", "I led the platform"},
		Final:      "I led the platform team for two years",
		Confidence: 0.91,
	},
	{
		Interims:   []string{"What was", "What was the hardest"},
		Final:      "What was the hardest part of that",
		Confidence: 0.96,
	},
}

// Factory implements stt.Factory with scripted streams.
type Factory struct {
	mu        sync.Mutex
	nextIndex int
	// Delay between an audio frame arriving and the simulated result.
	ResultDelay time.Duration
}

// New creates a mock factory.
func New() *Factory {
	return &Factory{ResultDelay: 50 * time.Millisecond}
}

// OpenStream returns a scripted stream playing the next sample utterance.
func (f *Factory) OpenStream(ctx context.Context, cfg stt.StreamConfig, cb stt.Callback) (stt.Stream, error) {
	f.mu.Lock()
	utt := DefaultUtterances[f.nextIndex%len(DefaultUtterances)]
	f.nextIndex++
	delay := f.ResultDelay
	f.mu.Unlock()

	return &Stream{cb: cb, utterance: utt, delay: delay, interim: cfg.InterimResults}, nil
}

// Stream simulates one recognition stream. Each audio frame produces the
// next interim result; once interims are exhausted the final is emitted.
type Stream struct {
	mu        sync.Mutex
	cb        stt.Callback
	utterance SimulatedUtterance
	delay     time.Duration
	interim   bool
	nextIdx   int
	finalSent bool
	closed    bool
}

func (s *Stream) Send(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if s.interim && s.nextIdx < len(s.utterance.Interims) {
		text := s.utterance.Interims[s.nextIdx]
		s.nextIdx++
		s.emitLater(stt.Result{
			Alternatives: []stt.Alternative{{Transcript: text, Words: diarize(text)}},
			IsFinal:      false,
		})
		return nil
	}

	if !s.finalSent {
		s.finalSent = true
		s.emitLater(stt.Result{
			Alternatives: []stt.Alternative{{
				Transcript: s.utterance.Final,
				Confidence: s.utterance.Confidence,
				Words:      diarize(s.utterance.Final),
			}},
			IsFinal: true,
		})
	}
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) emitLater(res stt.Result) {
	go func() {
		time.Sleep(s.delay)
		s.mu.Lock()
		closed := s.closed
		cb := s.cb
		s.mu.Unlock()
		if !closed && cb != nil {
			cb.OnResult(res)
		}
	}()
}

// diarize attributes words to two alternating speakers.
func diarize(text string) []models.SpeakerWord {
	fields := strings.Fields(text)
	words := make([]models.SpeakerWord, 0, len(fields))
	for i, w := range fields {
		words = append(words, models.SpeakerWord{
			Word:       w,
			SpeakerTag: int32(i%2 + 1),
		})
	}
	return words
}
