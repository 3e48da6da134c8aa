// Package places resolves geographic coordinates to merchant identities via
// an upstream nearby-search API.
//
// The client validates coordinates before anything touches the network,
// collapses concurrent identical lookups, caches answers for a short TTL and
// retries transient upstream failures with bounded backoff.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/maypok86/otter/v2"
	"golang.org/x/sync/singleflight"

	"github.com/okian/keel/internal/domain/model"
	"github.com/okian/keel/pkg/logger"
	"github.com/okian/keel/pkg/metrics"
)

// Default client configuration constants.
const (
	defaultBaseURL        = "https://maps.googleapis.com/maps/api/place"
	defaultRadius         = 100 // meters
	defaultFallbackRadius = 250 // meters, category-only lookup casts wider
	defaultMinConfidence  = 0.5
	defaultAttempts       = 3
	defaultRetryDelay     = 500 * time.Millisecond
	defaultCacheTTL       = 15 * time.Minute
	defaultCacheSize      = 10_000

	connectTimeout = 2 * time.Second
	requestTimeout = 1500 * time.Millisecond

	// resolvedConfidence is reported when the top place maps to a known MCC.
	resolvedConfidence = 0.8
)

// place is the slice of the upstream result this service cares about.
type place struct {
	Name    string   `json:"name"`
	PlaceID string   `json:"place_id"`
	Types   []string `json:"types"`
}

// nearbyResponse mirrors the upstream nearby-search payload.
type nearbyResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message"`
	Results      []place `json:"results"`
}

// Client looks up merchants near a coordinate.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	radius         int
	fallbackRadius int
	minConfidence  float64
	attempts       uint
	retryDelay     time.Duration

	cache  *otter.Cache[string, place]
	flight singleflight.Group
	logger logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL overrides the upstream endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the upstream API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithRadius sets the primary search radius in meters.
func WithRadius(radius int) Option {
	return func(c *Client) {
		if radius > 0 {
			c.radius = radius
		}
	}
}

// WithFallbackRadius sets the category-only lookup radius in meters.
func WithFallbackRadius(radius int) Option {
	return func(c *Client) {
		if radius > 0 {
			c.fallbackRadius = radius
		}
	}
}

// WithMinConfidence sets the confidence reported when no MCC maps.
func WithMinConfidence(min float64) Option {
	return func(c *Client) {
		if min > 0 {
			c.minConfidence = min
		}
	}
}

// WithAttempts bounds the retry budget for upstream calls.
func WithAttempts(attempts uint) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCacheTTL sets how long nearby answers are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = newPlaceCache(ttl)
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a places client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		baseURL:        defaultBaseURL,
		radius:         defaultRadius,
		fallbackRadius: defaultFallbackRadius,
		minConfidence:  defaultMinConfidence,
		attempts:       defaultAttempts,
		retryDelay:     defaultRetryDelay,
		cache:          newPlaceCache(defaultCacheTTL),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logger.Get().Named("places")
	}

	return c
}

func newPlaceCache(ttl time.Duration) *otter.Cache[string, place] {
	return otter.Must(&otter.Options[string, place]{
		MaximumSize:      defaultCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, place](ttl),
	})
}

// ValidateCoordinates fails fast on out-of-range input so it never reaches
// the upstream lookup.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of [-90,90]", ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of [-180,180]", ErrInvalidCoordinates, lon)
	}
	return nil
}

// Resolve maps coordinates to a merchant identity. Returns ErrNoMerchants
// when the upstream finds nothing nearby.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) (model.MerchantResolution, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return model.MerchantResolution{}, err
	}

	start := time.Now()
	top, err := c.nearby(ctx, lat, lon, c.radius, true)
	metrics.RecordResolveLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if errors.Is(err, ErrNoMerchants) {
			metrics.RecordResolveOutcome("no_merchants")
		} else {
			metrics.RecordResolveOutcome("upstream_error")
		}
		return model.MerchantResolution{}, err
	}
	metrics.RecordResolveOutcome("resolved")

	mcc, category := MapTypes(top.Types)
	confidence := c.minConfidence
	if mcc != "" {
		confidence = resolvedConfidence
	}

	c.logger.Debug(ctx, "merchant resolved",
		logger.String("merchant", top.Name),
		logger.String("mcc", mcc),
		logger.String("category", category),
		logger.Float64("confidence", confidence),
	)

	return model.MerchantResolution{
		Merchant:   top.Name,
		MCC:        mcc,
		Category:   category,
		Confidence: confidence,
	}, nil
}

// ResolveCategory is the degraded fallback path: a single wider lookup that
// yields a category with no merchant identity. It is deliberately not
// retried; a failure here is terminal for the pipeline invocation.
func (c *Client) ResolveCategory(ctx context.Context, lat, lon float64) (category, mcc string, err error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return "", "", err
	}

	metrics.RecordResolveFallback()
	top, err := c.nearby(ctx, lat, lon, c.fallbackRadius, false)
	if err != nil {
		return "", "", err
	}

	mcc, category = MapTypes(top.Types)
	if category == "" {
		return "", "", fmt.Errorf("%w: no classifiable place nearby", ErrNoMerchants)
	}
	return category, mcc, nil
}

// nearby returns the top-ranked place within radius meters of the
// coordinate, consulting the cache and collapsing concurrent lookups.
func (c *Client) nearby(ctx context.Context, lat, lon float64, radius int, retryable bool) (place, error) {
	// quantize to ~11m so nearby callers share cache entries
	key := fmt.Sprintf("%.4f,%.4f,r%d", lat, lon, radius)

	if cached, ok := c.cache.GetIfPresent(key); ok {
		metrics.RecordPlaceCacheHit()
		return cached, nil
	}
	metrics.RecordPlaceCacheMiss()

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		top, err := c.fetchNearby(ctx, lat, lon, radius, retryable)
		if err != nil {
			return place{}, err
		}
		c.cache.Set(key, top)
		return top, nil
	})
	if err != nil {
		return place{}, err
	}
	return v.(place), nil //nolint:forcetypeassert // singleflight stores what we put in
}

// fetchNearby performs the upstream call, optionally with bounded backoff.
func (c *Client) fetchNearby(ctx context.Context, lat, lon float64, radius int, retryable bool) (place, error) {
	var top place

	attempt := func() error {
		p, err := c.doNearbyRequest(ctx, lat, lon, radius)
		if err != nil {
			return err
		}
		top = p
		return nil
	}

	var err error
	if retryable {
		err = retry.Do(
			attempt,
			retry.Attempts(c.attempts),
			retry.Delay(c.retryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(func(err error) bool {
				// an empty neighborhood will not heal on retry
				return !errors.Is(err, ErrNoMerchants)
			}),
			retry.OnRetry(func(n uint, err error) {
				c.logger.Info(ctx, "retrying places lookup",
					logger.Int("attempt", int(n)+1),
					logger.Error(err),
				)
			}),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
	} else {
		err = attempt()
	}
	if err != nil {
		return place{}, err
	}
	return top, nil
}

// doNearbyRequest is a single upstream round trip.
func (c *Client) doNearbyRequest(ctx context.Context, lat, lon float64, radius int) (place, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%f,%f", lat, lon))
	q.Set("radius", fmt.Sprintf("%d", radius))
	q.Set("type", "establishment")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	endpoint := c.baseURL + "/nearbysearch/json?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return place{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return place{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode >= 500:
		return place{}, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode >= 400:
		// a client error will not heal on retry
		return place{}, retry.Unrecoverable(fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode))
	}

	var payload nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return place{}, fmt.Errorf("%w: decoding response: %w", ErrUpstream, err)
	}

	switch payload.Status {
	case "OK":
		// fall through
	case "ZERO_RESULTS":
		return place{}, ErrNoMerchants
	default:
		return place{}, fmt.Errorf("%w: status %s: %s", ErrUpstream, payload.Status, payload.ErrorMessage)
	}

	if len(payload.Results) == 0 {
		return place{}, ErrNoMerchants
	}
	return payload.Results[0], nil
}
