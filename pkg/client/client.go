// Package client is the consumer-side SDK for the recommendation API.
//
// It wraps the /v1 endpoints as remote calls with a bounded retry policy:
// transport failures and structured errors marked retryable are retried
// with exponential backoff, everything else fails on the first attempt.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/okian/keel/internal/domain/confidence"
	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/pkg/logger"
)

// Default client configuration constants.
const (
	defaultAttempts   = 3
	defaultRetryDelay = 500 * time.Millisecond
	connectTimeout    = 2 * time.Second
	requestTimeout    = 1500 * time.Millisecond
)

// Recommend outcome statuses.
const (
	// OutcomeRecommended carries a ranked card list for the visit.
	OutcomeRecommended = "recommended"
	// OutcomeDeferred means the visit signal is not yet trustworthy;
	// the caller should wait for more dwell and try again.
	OutcomeDeferred = "deferred"
)

// Resolution mirrors the read shape of GET /v1/merchant/resolve.
type Resolution struct {
	Merchant   string  `json:"merchant"`
	MCC        string  `json:"mcc,omitempty"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

// CardScore is one ranked entry of a score response.
type CardScore struct {
	Card   string  `json:"card"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ScoreRequest mirrors the schema for POST /v1/score.
type ScoreRequest struct {
	Merchant string   `json:"merchant,omitempty"`
	MCC      string   `json:"mcc,omitempty"`
	Category string   `json:"category,omitempty"`
	Cards    []string `json:"cards,omitempty"`
}

// ScoreResult mirrors the read shape of POST /v1/score.
type ScoreResult struct {
	Top              []CardScore `json:"top"`
	UsedRulesVersion string      `json:"used_rules_version"`
}

// Visit mirrors the schema for POST /v1/events/visit.
type Visit struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
}

// VisitAck reports how a visit submission was handled.
type VisitAck struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// ServiceConfig mirrors the read shape of GET /v1/config.
type ServiceConfig struct {
	RewardsVersion string  `json:"rewards_version"`
	ModelVersion   string  `json:"model_version"`
	MinConfidence  float64 `json:"min_confidence"`
	RadiusMeters   int     `json:"radius_meters"`
}

// Outcome is the composed result of Recommend.
type Outcome struct {
	Status           string
	Confidence       float64
	Merchant         string
	Category         string
	Top              []CardScore
	UsedRulesVersion string
}

// Client talks to the recommendation API with retries and bounded timeouts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	attempts   uint
	retryDelay time.Duration
	logger     logger.Logger
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		dialer := &net.Dialer{Timeout: connectTimeout}
		c.httpClient = &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		}
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("client")
	}

	return c
}

// ResolveMerchant resolves coordinates to the most likely merchant.
func (c *Client) ResolveMerchant(ctx context.Context, lat, lon float64) (Resolution, error) {
	var out Resolution
	path := fmt.Sprintf("/v1/merchant/resolve?lat=%f&lon=%f", lat, lon)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Resolution{}, err
	}
	return out, nil
}

// Score ranks cards for a category or MCC.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	var out ScoreResult
	if err := c.do(ctx, http.MethodPost, "/v1/score", req, &out); err != nil {
		return ScoreResult{}, err
	}
	return out, nil
}

// SubmitVisit submits a visit event under the given idempotency key.
func (c *Client) SubmitVisit(ctx context.Context, key string, visit Visit) (VisitAck, error) {
	if strings.TrimSpace(key) == "" {
		return VisitAck{}, ErrMissingIdempotencyKey
	}
	var out VisitAck
	if err := c.doWithHeaders(ctx, http.MethodPost, "/v1/events/visit", visit, &out, map[string]string{
		"Idempotency-Key": key,
	}); err != nil {
		return VisitAck{}, err
	}
	return out, nil
}

// Config fetches the service's read-only tunables.
func (c *Client) Config(ctx context.Context) (ServiceConfig, error) {
	var out ServiceConfig
	if err := c.do(ctx, http.MethodGet, "/v1/config", nil, &out); err != nil {
		return ServiceConfig{}, err
	}
	return out, nil
}

// Recommend runs the full consumer flow for a detected visit: gate on the
// confidence score, submit the event, resolve the merchant and rank the
// wallet. Low-trust signals defer without emitting an event. A resolution
// below the service's confidence floor drops the merchant identity and
// ranks on category alone.
func (c *Client) Recommend(ctx context.Context, key string, signal model.VisitSignal, cards []string) (Outcome, error) {
	score := confidence.Score(signal)
	if !confidence.Trusted(signal) {
		c.logger.Debug(ctx, "visit signal below confidence gate",
			logger.Float64("confidence", score),
		)
		return Outcome{Status: OutcomeDeferred, Confidence: score}, nil
	}

	if _, err := c.SubmitVisit(ctx, key, Visit{
		Lat:       signal.Latitude,
		Lon:       signal.Longitude,
		Timestamp: signal.ArrivalTime.UTC().Format(time.RFC3339),
	}); err != nil {
		return Outcome{}, fmt.Errorf("submit visit: %w", err)
	}

	resolution, err := c.ResolveMerchant(ctx, signal.Latitude, signal.Longitude)
	if err != nil {
		if IsNotFound(err) {
			return Outcome{}, fmt.Errorf("%w: no merchant at location", ErrNoRecommendation)
		}
		return Outcome{}, fmt.Errorf("resolve merchant: %w", err)
	}

	cfg, err := c.Config(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch config: %w", err)
	}

	req := ScoreRequest{
		Merchant: resolution.Merchant,
		MCC:      resolution.MCC,
		Category: resolution.Category,
		Cards:    cards,
	}
	if resolution.Confidence < cfg.MinConfidence {
		// Not confident in the merchant identity; rank on category only.
		req.Merchant = ""
		req.MCC = ""
	}

	result, err := c.Score(ctx, req)
	if err != nil {
		return Outcome{}, fmt.Errorf("score cards: %w", err)
	}

	merchant := req.Merchant
	return Outcome{
		Status:           OutcomeRecommended,
		Confidence:       score,
		Merchant:         merchant,
		Category:         resolution.Category,
		Top:              result.Top,
		UsedRulesVersion: result.UsedRulesVersion,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.doWithHeaders(ctx, method, path, body, out, nil)
}

// doWithHeaders performs one API call with the retry policy applied.
// A fresh request is built per attempt so the body can be re-sent.
func (c *Client) doWithHeaders(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return retry.Do(
		func() error {
			return c.doOnce(ctx, method, path, payload, out, headers)
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn(ctx, "retrying request",
				logger.String("path", path),
				logger.Int("attempt", int(n)+1),
				logger.Error(err),
			)
		}),
	)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any, headers map[string]string) error {
	var reader *bytes.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure, always retryable.
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeAPIError(resp)
		if !apiErr.Retryable {
			return retry.Unrecoverable(apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		// No structured body; fall back to the status class. 5xx and 429
		// are worth retrying, other 4xx are not.
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return &APIError{
			Status:    resp.StatusCode,
			Code:      "UNKNOWN",
			Message:   http.StatusText(resp.StatusCode),
			Retryable: retryable,
		}
	}
	return &APIError{
		Status:    resp.StatusCode,
		Code:      envelope.Error.Code,
		Message:   envelope.Error.Message,
		Retryable: envelope.Error.Retryable,
	}
}
