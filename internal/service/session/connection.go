package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"interview-speech-relay/internal/auth"
	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/observability/metrics"
	"interview-speech-relay/internal/protocol"
	"interview-speech-relay/internal/service/stt"
)

// Conn is the client transport as seen by a connection session. Writes may
// come from the dispatcher and from recognition callbacks concurrently;
// implementations must serialize them.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Deps are the shared collaborators a connection session wires into each
// recognition session it creates.
type Deps struct {
	Factory   stt.Factory
	Appender  Appender
	Publisher EventPublisher
	Verifier  auth.Verifier

	DefaultLocale     string
	DefaultSampleRate int32
	SpeakerCount      int32
	InterimResults    bool
	EchoTranscripts   bool

	Logger zerolog.Logger
}

// ConnectionSession owns one client connection: token/claims state, the
// current recognition session (at most one, sequential reuse) and message
// dispatch. Created on connect, closed on disconnect.
type ConnectionSession struct {
	mu    sync.Mutex
	conn  Conn
	deps  Deps
	token string
	user  *models.Claims
	rec   *RecognitionSession

	log zerolog.Logger
	m   *metrics.Metrics
}

// NewConnectionSession creates the session for one freshly accepted
// connection.
func NewConnectionSession(conn Conn, deps Deps) *ConnectionSession {
	if deps.Verifier == nil {
		deps.Verifier = auth.Insecure{}
	}
	if deps.DefaultLocale == "" {
		deps.DefaultLocale = protocol.DefaultLocale
	}
	if deps.DefaultSampleRate <= 0 {
		deps.DefaultSampleRate = protocol.DefaultSampleRateHz
	}
	return &ConnectionSession{
		conn: conn,
		deps: deps,
		log:  deps.Logger,
		m:    metrics.DefaultMetrics,
	}
}

// HandleBinary forwards a raw audio frame to the recognition session, if
// any. Audio without an open session is silently discarded.
func (c *ConnectionSession) HandleBinary(ctx context.Context, data []byte) {
	c.m.RecordAudioReceived(len(data))

	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()

	if rec == nil {
		c.m.AudioFramesDropped.Inc()
		return
	}
	rec.Feed(ctx, data)
}

// HandleText parses a JSON envelope and dispatches on its type.
func (c *ConnectionSession) HandleText(ctx context.Context, raw []byte) {
	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("Malformed client envelope")
		c.send(protocol.ErrorFrame(protocol.MsgInvalidEnvelope))
		return
	}

	// Audio frames are excluded from action logging.
	if env.Type != protocol.TypeSpeakData {
		c.log.Info().Str("action", env.Type).Msg("Client action")
	}
	c.m.RecordMessage(env.Type)

	switch env.Type {
	case protocol.TypeAuth:
		c.handleAuth(env.Payload)
	case protocol.TypeSpeakStart:
		c.handleSpeakStart(ctx, env.Payload)
	case protocol.TypeSpeakData:
		// Audio must arrive as a binary frame; a JSON speak.data carries
		// no bytes to forward.
		c.log.Debug().Msg("Ignoring text-mode speak.data frame")
	case protocol.TypeSpeakStop:
		c.handleSpeakStop()
	default:
		c.send(protocol.ErrorFrame(protocol.InvalidEventType(env.Type)))
	}
}

// Close releases the connection's resources. Transport close implies
// speak.stop even when the client never sent one.
func (c *ConnectionSession) Close() {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
}

func (c *ConnectionSession) handleAuth(payload json.RawMessage) {
	var p protocol.AuthPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.send(protocol.ErrorFrame(protocol.MsgInvalidEnvelope))
		return
	}

	claims, err := c.deps.Verifier.Verify(p.AccessToken)
	if err != nil {
		c.log.Warn().Err(err).Msg("Token verification failed")
		c.send(protocol.ErrorFrame("Authentication failed."))
		return
	}

	c.mu.Lock()
	c.token = p.AccessToken
	c.user = claims
	c.mu.Unlock()

	c.log.Info().Str("userId", claims.UserID).Msg("Client authenticated")
}

func (c *ConnectionSession) handleSpeakStart(ctx context.Context, payload json.RawMessage) {
	var p protocol.SpeakStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.send(protocol.ErrorFrame(protocol.MsgInvalidEnvelope))
		return
	}
	if p.Locale == "" {
		p.Locale = c.deps.DefaultLocale
	}
	if p.SampleRate <= 0 {
		p.SampleRate = c.deps.DefaultSampleRate
	}

	c.mu.Lock()
	if c.rec != nil && c.rec.State() == StateStreaming {
		c.mu.Unlock()
		// One live stream per session; re-entrant starts are ignored.
		c.log.Warn().Msg("Ignoring speak.start while a recognition stream is open")
		return
	}
	token := c.token
	c.mu.Unlock()

	rec := NewRecognitionSession(c.deps, c)
	err := rec.Start(ctx, RecognitionConfig{
		InterviewID: p.InterviewID,
		Locale:      p.Locale,
		SampleRate:  p.SampleRate,
		Token:       token,
	})
	if err != nil {
		rec.Stop()
		c.log.Error().Err(err).Msg("Failed to start recognition session")
		c.send(protocol.ErrorFrame(protocol.MsgStreamStartFailed))
		return
	}

	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()
}

func (c *ConnectionSession) handleSpeakStop() {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
}

func (c *ConnectionSession) send(f protocol.Frame) {
	if err := c.conn.WriteJSON(f); err != nil {
		c.log.Warn().Err(err).Str("type", f.Type).Msg("Failed to write frame to client")
	}
}

// --- Notifier implementation (recognition session → client) ---

func (c *ConnectionSession) NotifyError(message string) {
	c.send(protocol.ErrorFrame(message))
}

func (c *ConnectionSession) NotifyTranscript(u models.Utterance) {
	c.send(protocol.TranscriptFrame(u))
}

func (c *ConnectionSession) CloseConnection() {
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Error closing client connection")
	}
}
