// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ServiceConfig struct {
	// Port is the listen port for the client WebSocket server. A
	// non-numeric value is passed through verbatim (named endpoint).
	Port      string
	Principal string
}

type RecordsConfig struct {
	BaseURL string
	Timeout time.Duration
}

type STTConfig struct {
	Provider            string // google, mock
	DefaultLocale       string
	DefaultSampleRateHz int32
	SpeakerCount        int32
	InterimResults      bool
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicFinal   string
	Principal    string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string // json, console
	MetricsAddr string
}

type Config struct {
	Service       ServiceConfig
	Records       RecordsConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig

	// EchoTranscripts enables the optional speak.transcript frames back to
	// the client for interim and final utterances.
	EchoTranscripts bool
}

// Load reads configuration from environment variables, falling back to
// defaults for unset or unparseable values.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-relay")

	return &Config{
		Service: ServiceConfig{
			Port:      normalizePort(os.Getenv("PORT"), "8080"),
			Principal: principal,
		},
		Records: RecordsConfig{
			BaseURL: envOrDefault("RECORDS_API_BASE", "http://core:4000"),
			Timeout: envOrDefaultDuration("RECORDS_TIMEOUT", 10*time.Second),
		},
		STT: STTConfig{
			Provider:            envOrDefault("STT_PROVIDER", "google"),
			DefaultLocale:       envOrDefault("STT_DEFAULT_LOCALE", "en-US"),
			DefaultSampleRateHz: int32(envOrDefaultInt("STT_DEFAULT_SAMPLE_RATE_HZ", 44100)),
			SpeakerCount:        int32(envOrDefaultInt("STT_SPEAKER_COUNT", 2)),
			InterimResults:      envOrDefaultBool("STT_INTERIM_RESULTS", true),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			TopicInterim: envOrDefault("KAFKA_TOPIC_INTERIM", "interview.transcript.interim"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "interview.transcript.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		EchoTranscripts: envOrDefaultBool("ECHO_TRANSCRIPTS", false),
	}
}

// normalizePort keeps the original service's port semantics: empty or
// negative values fall back to the default, non-numeric values are treated
// as a named endpoint and returned as-is.
func normalizePort(val, def string) string {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return val
	}
	if n < 0 {
		return def
	}
	return val
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
