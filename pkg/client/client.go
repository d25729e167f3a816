// Package client is the KatAPI HTTP client. Requests are paced by a rate
// limiter, gated on the upstream budget, cached in Redis with conditional
// revalidation, and retried per error class. The client implements
// collection.PageDataSource.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/katscan/pkg/cache"
	"github.com/Sternrassler/katscan/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is the public KatAPI endpoint.
const DefaultBaseURL = "https://katapi.nachowyborski.xyz/api"

// DefaultStatusURL is the KRC-721 indexer status endpoint.
const DefaultStatusURL = "https://mainnet.krc721.stream/api/v1/krc721/mainnet/status"

// DefaultPageSize is the number of entries KatAPI returns per offset window.
const DefaultPageSize = 1000

// Client talks to KatAPI.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	group       singleflight.Group
	callsMu     sync.Mutex
	calls       map[string]*sharedCall
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// UserAgent identifies this client upstream. Required.
	UserAgent string

	// Redis enables the response cache and shares the upstream budget
	// between instances. Optional.
	Redis *redis.Client

	// Rate limiting
	RateLimit     float64 // Requests per second, <= 0 disables pacing
	Burst         int
	ThrottleDelay time.Duration // Pause while the budget is low

	// PageSize is the upstream entries window.
	PageSize int

	// Retry
	MaxRetries     int // Retries after the first attempt
	InitialBackoff time.Duration

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redisClient *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      userAgent,
		Redis:          redisClient,
		RateLimit:      10,
		Burst:          5,
		ThrottleDelay:  1 * time.Second,
		PageSize:       DefaultPageSize,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        30 * time.Second,
	}
}

// New creates a new KatAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "katscan-client").Logger()

	rateLimiter := ratelimit.NewTracker(cfg.Redis, logger, ratelimit.Options{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.Burst,
		ThrottleDelay:     cfg.ThrottleDelay,
	})

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		calls:       make(map[string]*sharedCall),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs a request with rate limiting, caching and retry.
// Upstream statuses >= 400 are returned as *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: cache; fresh hits never reach upstream
	cacheKey := cache.CacheKey{Endpoint: endpoint, QueryParams: req.URL.Query()}
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		entry, fresh, err := c.cache.Lookup(ctx, cacheKey)
		switch {
		case err == nil && fresh:
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return cache.EntryToResponse(entry), nil
		case err == nil:
			cachedEntry = entry
			cache.AddConditionalHeaders(req, cachedEntry)
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	// Step 2: pace and gate
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "blocked").Inc()
		return nil, ErrRequestBlocked
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 3: request with retry
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.logger, c.retryConfig(), func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &APIError{Class: ErrorClassNetwork, Endpoint: endpoint, Err: reqErr}
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode < 400 {
			return nil
		}

		apiErr := c.statusError(resp, endpoint)
		errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Msg("Upstream request error")
		return apiErr
	})
	if retryErr != nil {
		return nil, retryErr
	}

	// Step 4: 304 revalidation
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		cache.ConditionalRequests.Inc()
		if cachedEntry == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassMalformed, Endpoint: endpoint, Message: "304 without a cached entry"}
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ExpiresFrom(resp.Header)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 5: store
	if c.cache != nil && resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().Str("endpoint", endpoint).Dur("ttl", entry.TTL()).Msg("Cached response")
		}
	}

	return resp, nil
}

// statusError drains resp and builds the error for an upstream status.
func (c *Client) statusError(resp *http.Response, endpoint string) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Class:      classifyStatus(resp.StatusCode),
		Endpoint:   endpoint,
		Message:    strings.TrimSpace(string(body)),
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

func (c *Client) retryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = c.config.MaxRetries + 1
	if c.config.InitialBackoff > 0 {
		cfg.InitialBackoff = c.config.InitialBackoff
	}
	return cfg
}

// Get performs a GET request to an API endpoint such as "/nfts/list".
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	target := c.config.BaseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// PageSize returns the upstream entries window used for pagination.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// Close releases idle connections. The Redis client is owned by the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
