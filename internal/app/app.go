// Package app wires configuration, the STT provider, downstream clients and
// the servers into one runnable application.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"interview-speech-relay/internal/api/ws"
	"interview-speech-relay/internal/auth"
	"interview-speech-relay/internal/config"
	"interview-speech-relay/internal/events"
	"interview-speech-relay/internal/observability"
	"interview-speech-relay/internal/observability/logging"
	"interview-speech-relay/internal/records"
	"interview-speech-relay/internal/service/session"
	"interview-speech-relay/internal/service/stt"
	"interview-speech-relay/internal/service/stt/google"
	"interview-speech-relay/internal/service/stt/mock"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Cfg         *config.Config

	publisher *events.Publisher
	factory   stt.Factory
	wsServer  *ws.Server
	obsServer *observability.Server

	log zerolog.Logger
}

// New constructs the application from configuration. The STT provider is
// selected here; everything downstream sees only the stt.Factory seam.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logging.WithComponent("application")

	factory, err := newFactory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create stt factory: %w", err)
	}

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})

	deps := session.Deps{
		Factory:           factory,
		Appender:          records.New(records.Config{BaseURL: cfg.Records.BaseURL, Timeout: cfg.Records.Timeout}),
		Publisher:         publisher,
		Verifier:          auth.Insecure{},
		DefaultLocale:     cfg.STT.DefaultLocale,
		DefaultSampleRate: cfg.STT.DefaultSampleRateHz,
		SpeakerCount:      cfg.STT.SpeakerCount,
		InterimResults:    cfg.STT.InterimResults,
		EchoTranscripts:   cfg.EchoTranscripts,
	}

	a := &Application{
		Cfg:       cfg,
		publisher: publisher,
		factory:   factory,
		wsServer:  ws.New(listenAddr(cfg.Service.Port), deps),
		obsServer: observability.NewServer(cfg.Observability.MetricsAddr),
		log:       log,
	}

	log.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Str("recordsBase", cfg.Records.BaseURL).
		Msg("Application created")
	return a, nil
}

// Start brings up the WebSocket and observability servers.
func (a *Application) Start() {
	a.StartupTime = time.Now().UTC()
	a.wsServer.Start()
	a.obsServer.Start()
	a.log.Info().
		Time("startupTime", a.StartupTime).
		Str("port", a.Cfg.Service.Port).
		Msg("Interview speech relay started")
}

// Shutdown stops the servers and releases the provider client and event
// publisher. Best effort; every step runs even when earlier ones fail.
func (a *Application) Shutdown(ctx context.Context) {
	a.log.Info().Msg("Interview speech relay shutting down")

	if err := a.wsServer.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("WebSocket server shutdown error")
	}
	if err := a.obsServer.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Observability server shutdown error")
	}
	if closer, ok := a.factory.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("STT factory close error")
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Event publisher close error")
	}
}

func newFactory(ctx context.Context, cfg *config.Config) (stt.Factory, error) {
	switch cfg.STT.Provider {
	case "mock":
		return mock.New(), nil
	case "google", "":
		return google.New(ctx)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

// listenAddr turns a numeric port into a bind address and passes named
// endpoints through verbatim.
func listenAddr(port string) string {
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}
