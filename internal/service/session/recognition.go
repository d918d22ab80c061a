// Package session owns the per-connection state: the connection dispatcher
// and the recognition session state machine wiring audio into the STT
// provider and assembled utterances out to the collaborators.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/observability/metrics"
	"interview-speech-relay/internal/protocol"
	"interview-speech-relay/internal/service/stt"
	"interview-speech-relay/internal/service/utterance"
)

const (
	appendQueueSize      = 16
	defaultAppendTimeout = 10 * time.Second
)

// Notifier is how a recognition session talks back to its owning
// connection.
type Notifier interface {
	NotifyError(message string)
	NotifyTranscript(u models.Utterance)
	CloseConnection()
}

// Appender persists finalized utterances against an interview record.
type Appender interface {
	Append(ctx context.Context, interviewID, token string, u models.Utterance) error
}

// EventPublisher fans utterance events out to the event bus.
type EventPublisher interface {
	PublishInterim(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// RecognitionConfig binds one speak cycle to its target interview.
type RecognitionConfig struct {
	InterviewID string
	Locale      string
	SampleRate  int32
	Token       string
}

// utteranceEvent is the envelope published to the event bus.
type utteranceEvent struct {
	EventType   string           `json:"eventType"`
	InterviewID string           `json:"interviewId"`
	Utterance   models.Utterance `json:"utterance"`
}

const (
	eventTypeInterim = "interview.transcript.interim"
	eventTypeFinal   = "interview.transcript.final"
)

// RecognitionSession owns exactly one recognition stream for one speak
// cycle. It implements stt.Callback. Finalized utterances are appended in
// arrival order by a per-session worker so a slow record service never
// stalls audio ingestion.
type RecognitionSession struct {
	mu       sync.Mutex
	state    State
	detached bool
	stream   stt.Stream
	asm      *utterance.Assembler
	cfg      RecognitionConfig

	factory   stt.Factory
	appender  Appender
	publisher EventPublisher
	notifier  Notifier

	speakerCount int32
	interim      bool
	echo         bool

	appendCh      chan models.Utterance
	appendDone    chan struct{}
	appendTimeout time.Duration

	log zerolog.Logger
	m   *metrics.Metrics
}

// NewRecognitionSession creates an IDLE session. The append worker runs for
// the session's lifetime; Stop must be called on every exit path, including
// a failed Start.
func NewRecognitionSession(deps Deps, notifier Notifier) *RecognitionSession {
	speakers := deps.SpeakerCount
	if speakers <= 0 {
		speakers = 2
	}

	s := &RecognitionSession{
		state:         StateIdle,
		asm:           utterance.New(),
		factory:       deps.Factory,
		appender:      deps.Appender,
		publisher:     deps.Publisher,
		notifier:      notifier,
		speakerCount:  speakers,
		interim:       deps.InterimResults,
		echo:          deps.EchoTranscripts,
		appendCh:      make(chan models.Utterance, appendQueueSize),
		appendDone:    make(chan struct{}),
		appendTimeout: defaultAppendTimeout,
		log:           deps.Logger,
		m:             metrics.DefaultMetrics,
	}
	go s.appendLoop(s.appendCh)
	return s
}

// State returns the current lifecycle state.
func (s *RecognitionSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the recognition stream. It is an error to start a session
// that is already streaming or finished; a session is single-use.
func (s *RecognitionSession) Start(ctx context.Context, cfg RecognitionConfig) error {
	s.mu.Lock()
	switch s.state {
	case StateStreaming:
		s.mu.Unlock()
		return ErrAlreadyStreaming
	case StateStopped, StateFailed:
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.cfg = cfg
	s.state = StateStreaming
	s.mu.Unlock()

	stream, err := s.factory.OpenStream(ctx, stt.StreamConfig{
		LanguageCode:   cfg.Locale,
		SampleRateHz:   cfg.SampleRate,
		SpeakerCount:   s.speakerCount,
		InterimResults: s.interim,
	}, s)
	if err != nil {
		s.Stop()
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	s.m.StreamsStarted.Inc()
	s.log.Info().
		Str("interviewId", cfg.InterviewID).
		Str("locale", cfg.Locale).
		Int32("sampleRate", cfg.SampleRate).
		Msg("Recognition stream opened")
	return nil
}

// Feed writes raw audio bytes to the open stream. A silent no-op when the
// session is not streaming; client and stream teardown are not perfectly
// synchronized, so late audio is expected and discarded.
func (s *RecognitionSession) Feed(ctx context.Context, audio []byte) {
	s.mu.Lock()
	stream := s.stream
	streaming := s.state == StateStreaming
	s.mu.Unlock()

	if !streaming || stream == nil {
		return
	}

	if err := stream.Send(ctx, audio); err != nil {
		// The receive loop reports the stream's fate; a failed write on
		// its own is not fatal.
		s.log.Warn().Err(err).Msg("Failed to write audio to recognition stream")
	}
}

// Stop tears the session down: callbacks are detached so late events from
// the provider are ignored, the stream is ended and the append queue is
// closed for draining. Idempotent; safe from any state.
func (s *RecognitionSession) Stop() {
	s.mu.Lock()
	s.detached = true
	stream := s.stream
	s.stream = nil
	if s.appendCh != nil {
		close(s.appendCh)
		s.appendCh = nil
	}
	if !s.state.IsTerminal() {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Error closing recognition stream")
		}
	}
}

// OnResult routes a recognition event through the assembler and acts on
// the outcome. Implements stt.Callback.
func (s *RecognitionSession) OnResult(res stt.Result) {
	s.mu.Lock()
	if s.detached || s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	u, action := s.asm.Process(res)
	cfg := s.cfg
	echo := s.echo
	s.mu.Unlock()

	switch action {
	case utterance.ActionReconnect:
		s.OnTimeLimit()

	case utterance.ActionNotify:
		s.m.UtterancesInterim.Inc()
		_ = s.publisher.PublishInterim(context.Background(), cfg.InterviewID, utteranceEvent{
			EventType:   eventTypeInterim,
			InterviewID: cfg.InterviewID,
			Utterance:   *u,
		})
		if echo {
			s.notifier.NotifyTranscript(*u)
		}

	case utterance.ActionNotifyAppend:
		s.m.UtterancesFinal.Inc()
		_ = s.publisher.PublishFinal(context.Background(), cfg.InterviewID, utteranceEvent{
			EventType:   eventTypeFinal,
			InterviewID: cfg.InterviewID,
			Utterance:   *u,
		})
		if echo {
			s.notifier.NotifyTranscript(*u)
		}
		s.enqueueAppend(*u)
	}
}

// OnTimeLimit handles the provider's stream duration cap. The stream has
// stopped producing, so the session is torn down rather than left accepting
// audio into a dead stream. Implements stt.Callback.
func (s *RecognitionSession) OnTimeLimit() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	interviewID := s.cfg.InterviewID
	s.mu.Unlock()

	s.m.TimeLimitsReached.Inc()
	// TODO restart the provider stream in place instead of requiring the
	// client to send a fresh speak.start.
	s.log.Warn().
		Str("interviewId", interviewID).
		Msg("Reached transcription time limit, tearing stream down")
	s.Stop()
}

// OnError handles a fatal stream error reported by the provider. Terminal:
// the client gets an opaque error frame and the connection is closed.
// Implements stt.Callback.
func (s *RecognitionSession) OnError(err error) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	interviewID := s.cfg.InterviewID
	s.mu.Unlock()

	s.m.StreamErrors.Inc()
	s.log.Error().Err(err).
		Str("interviewId", interviewID).
		Msg("Recognition stream error, closing client connection")

	s.notifier.NotifyError(protocol.MsgSocketInactivity)
	s.Stop()

	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()

	s.notifier.CloseConnection()
}

// enqueueAppend hands a finalized utterance to the append worker without
// blocking the recognition callback.
func (s *RecognitionSession) enqueueAppend(u models.Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendCh == nil {
		s.m.AppendDropped.Inc()
		return
	}
	select {
	case s.appendCh <- u:
	default:
		s.m.AppendDropped.Inc()
		s.log.Warn().
			Str("utteranceId", u.ID).
			Msg("Append queue full, dropping finalized utterance")
	}
}

// appendLoop drains finalized utterances in arrival order. Append failures
// are logged and counted; they never propagate to the stream.
func (s *RecognitionSession) appendLoop(ch <-chan models.Utterance) {
	defer close(s.appendDone)

	for u := range ch {
		s.mu.Lock()
		cfg := s.cfg
		timeout := s.appendTimeout
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.appender.Append(ctx, cfg.InterviewID, cfg.Token, u)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).
				Str("utteranceId", u.ID).
				Msg("Append failed, transcription continues")
		}
	}
}
