// Package oracle implements the client for the external text scoring
// service. The oracle receives a student set and returns three indicators
// per student (positivity, engagement intensity, radicalism), each on a
// [0,1] scale. The indicators' internals are the oracle's business; this
// package only moves them reliably.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/analysis/scorer"
	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/campus-insight/campus-insight-hub/pkg/circuitbreaker"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
	"github.com/campus-insight/campus-insight-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the oracle client.
type ClientConfig struct {
	// BaseURL is the oracle service base URL.
	BaseURL string

	// APIKey authenticates requests, sent as a bearer token.
	APIKey string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxBatch bounds how many students go into one scoring request.
	MaxBatch int

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:  baseURL,
		Timeout:  30 * time.Second,
		MaxBatch: 100,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the scoring oracle client. It implements
// scorer.IndicatorSource.
type Client struct {
	config  ClientConfig
	http    *http.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewClient creates an oracle client with retry and circuit breaking.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("oracle"))

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = 100
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		retrier: retry.OracleRetrier(),
		breaker: circuitbreaker.OracleBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

type scoreRequest struct {
	StudentIDs []string `json:"student_ids"`
}

type scoreEntry struct {
	StudentID  string  `json:"student_id"`
	Positivity float64 `json:"positivity"`
	Intensity  float64 `json:"intensity"`
	Radicalism float64 `json:"radicalism"`
}

type scoreResponse struct {
	Scores []scoreEntry `json:"scores"`
}

// ScoreStudents fetches indicators for the given students, batching the
// request set. Students the oracle does not know are simply absent from
// the result; callers treat that as no signal.
func (c *Client) ScoreStudents(ctx context.Context, ids []student.ID) (map[student.ID]scorer.Indicators, error) {
	out := make(map[student.ID]scorer.Indicators, len(ids))
	for start := 0; start < len(ids); start += c.config.MaxBatch {
		end := start + c.config.MaxBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.scoreBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for id, ind := range batch {
			out[id] = ind
		}
	}
	return out, nil
}

func (c *Client) scoreBatch(ctx context.Context, ids []student.ID) (map[student.ID]scorer.Indicators, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	body, err := json.Marshal(scoreRequest{StudentIDs: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp scoreResponse
	call := func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, body, &resp)
		})
	}
	if err := c.breaker.Execute(ctx, call); err != nil {
		return nil, shared.WrapError("oracle", "ScoreStudents", shared.ErrServiceUnavailable, "scoring request failed", err)
	}

	out := make(map[student.ID]scorer.Indicators, len(resp.Scores))
	for _, e := range resp.Scores {
		if !inUnit(e.Positivity) || !inUnit(e.Intensity) || !inUnit(e.Radicalism) {
			return nil, shared.ErrOracleBadResponse
		}
		out[student.ID(e.StudentID)] = scorer.Indicators{
			Positivity: e.Positivity,
			Intensity:  e.Intensity,
			Radicalism: e.Radicalism,
		}
	}
	return out, nil
}

// doRequest performs one HTTP round trip. Server-side and transport
// failures are retryable; client-side errors are permanent.
func (c *Client) doRequest(ctx context.Context, body []byte, out *scoreResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/score", bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(err)
	}
	c.log.Debug("oracle response",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(started)),
	)

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(respBody, out); err != nil {
			return retry.Permanent(shared.ErrOracleBadResponse)
		}
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("oracle returned status %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("oracle rejected request with status %d: %s", resp.StatusCode, string(respBody)))
	}
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
