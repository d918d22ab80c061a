// Package records is the client for the interview record service, the
// downstream that persists finalized utterances.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/observability/metrics"
)

// Config holds record service client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client appends finalized utterances to interview records.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// New creates a record service client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://core:4000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    metrics.DefaultMetrics,
	}
}

// Append posts a finalized utterance to the interview record. The token is
// propagated as-is in the Authorization header. Callers treat errors as
// non-fatal; they are logged and counted here.
func (c *Client) Append(ctx context.Context, interviewID, token string, u models.Utterance) error {
	start := time.Now()

	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal utterance: %w", err)
	}

	url := fmt.Sprintf("%s/interviews/%s/actions/append", c.baseURL, interviewID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+token)

	resp, err := c.httpClient.Do(req)
	c.metrics.RecordAppend(err, time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).
			Str("interviewId", interviewID).
			Str("utteranceId", u.ID).
			Msg("Record append request failed")
		return fmt.Errorf("append utterance: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.AppendErrors.Inc()
		log.Error().
			Str("interviewId", interviewID).
			Str("utteranceId", u.ID).
			Int("status", resp.StatusCode).
			Msg("Record append rejected")
		return fmt.Errorf("append utterance: unexpected status %s", resp.Status)
	}

	log.Debug().
		Str("interviewId", interviewID).
		Str("utteranceId", u.ID).
		Dur("latency", time.Since(start)).
		Msg("Utterance appended to interview record")
	return nil
}
