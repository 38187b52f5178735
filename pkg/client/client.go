// Package client fetches vocabulary pages from the Duocards GraphQL API with
// a polite inter-request delay, retries with exponential backoff, and typed
// failure outcomes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/ratelimit"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Duocards client operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duoload_fetch_requests_total",
		Help: "Total Duocards requests by status",
	}, []string{"status"})

	fetchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duoload_fetch_request_duration_seconds",
		Help:    "Duocards request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duoload_fetch_errors_total",
		Help: "Total failed page fetches by kind",
	}, []string{"kind"})
)

const (
	// DefaultEndpoint is the Duocards GraphQL endpoint.
	DefaultEndpoint = "https://api.duocards.com/graphql"

	// DefaultUserAgent identifies duoload to Duocards.
	DefaultUserAgent = "duoload/1.0"

	// DefaultPageSize is the number of cards requested per page.
	DefaultPageSize = 100

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors and GraphQL errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents an unknown deck id.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassParse represents undecodable successful responses.
	ErrorClassParse ErrorClass = "parse"
)

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL URL.
	Endpoint string

	// DeckID is the opaque deck node id. Its existence is only checked by the remote.
	DeckID string

	// UserAgent header sent with every request.
	UserAgent string

	// PageSize is the number of cards requested per page.
	PageSize int

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration

	// PageTimeout bounds all attempts for one page, backoff included.
	PageTimeout time.Duration

	// PoliteDelay spaces consecutive page requests. Ignored when Pacer is set.
	PoliteDelay time.Duration

	// Retry configures the backoff schedule.
	Retry RetryConfig

	// Pacer overrides the in-process polite delay (for example a Redis lease).
	Pacer ratelimit.Pacer

	// Sleeper overrides how backoff delays are waited out.
	Sleeper Sleeper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(deckID string) Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		DeckID:         deckID,
		UserAgent:      DefaultUserAgent,
		PageSize:       DefaultPageSize,
		RequestTimeout: 30 * time.Second,
		PageTimeout:    2 * time.Minute,
		PoliteDelay:    ratelimit.DefaultDelay,
		Retry:          DefaultRetryConfig(),
	}
}

// Client fetches one deck page by page.
type Client struct {
	httpClient *http.Client
	pacer      ratelimit.Pacer
	sleep      Sleeper
	config     Config
	logger     zerolog.Logger

	mu      sync.Mutex
	cursors map[int]string
}

// New creates a new Duocards client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.DeckID) == "" {
		return nil, fmt.Errorf("deck id is required")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}

	if cfg.PageTimeout <= 0 {
		return nil, fmt.Errorf("page_timeout must be > 0 (got %s)", cfg.PageTimeout)
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	logger := logging.NewLogger("client")

	pacer := cfg.Pacer
	if pacer == nil {
		pacer = ratelimit.NewLocalPacer(cfg.PoliteDelay, logger)
	}

	sleep := cfg.Sleeper
	if sleep == nil {
		sleep = ContextSleep
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		pacer:   pacer,
		sleep:   sleep,
		config:  cfg,
		logger:  logger,
		cursors: make(map[int]string),
	}, nil
}

// FetchPage fetches page (1-based). Pages must be requested in order: page N
// continues from the cursor returned with page N-1.
//
// Failures are returned as *FetchError, except cancellation of ctx itself,
// which is returned wrapped as is.
func (c *Client) FetchPage(ctx context.Context, page int) (*vocab.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}

	cursor, err := c.cursorFor(page)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(newCardsRequest(c.config.DeckID, c.config.PageSize, cursor))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, c.config.PageTimeout)
	defer cancel()

	logger := c.logger.With().Int("page", page).Logger()
	logger.Debug().Bool("has_cursor", cursor != nil).Msg("Fetching page")

	var cards *cardConnection
	err = retryWithBackoff(pageCtx, c.config.Retry, c.sleep, logger, func(attempt int) error {
		var attemptErr error
		cards, attemptErr = c.doRequest(pageCtx, body)
		if attemptErr != nil {
			logger.Warn().Err(attemptErr).Int("attempt", attempt).Msg("Page request failed")
		}
		return attemptErr
	})
	if err != nil {
		return nil, c.fetchError(ctx, pageCtx, page, err)
	}

	result, err := c.toPage(page, cards, logger)
	if err != nil {
		return nil, c.fetchError(ctx, pageCtx, page, err)
	}
	return result, nil
}

// Endpoint returns the configured GraphQL endpoint.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) cursorFor(page int) (*string, error) {
	if page == 1 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cursor, ok := c.cursors[page-1]
	if !ok {
		return nil, fmt.Errorf("%w: page %d requested before page %d", ErrPageOrder, page, page-1)
	}
	return &cursor, nil
}

// doRequest performs one HTTP attempt and decodes the card connection.
func (c *Client) doRequest(ctx context.Context, body []byte) (*cardConnection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	fetchRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &attemptError{class: ErrorClassNetwork, err: err}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if errorClass := classifyStatus(resp.StatusCode); errorClass != "" {
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("Error classified")
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		cause := errors.New(resp.Status)
		if errorClass == ErrorClassNotFound {
			cause = fmt.Errorf("%w: %s", ErrDeckNotFound, resp.Status)
		}
		return nil, &attemptError{class: errorClass, statusCode: resp.StatusCode, err: cause}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &attemptError{class: ErrorClassNetwork, statusCode: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}

	return decodeCards(data)
}

// fetchError converts a failed attempt chain into the caller-facing error.
func (c *Client) fetchError(ctx, pageCtx context.Context, page int, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("fetch page %d: %w", page, ctx.Err())
	}

	fe := &FetchError{Page: page, Err: err}

	var ae *attemptError
	if errors.As(err, &ae) {
		fe.StatusCode = ae.statusCode
	}

	switch {
	case errors.Is(pageCtx.Err(), context.DeadlineExceeded):
		fe.Kind = KindTimeout
		fe.Err = fmt.Errorf("%w (%s): %w", ErrPageTimeout, c.config.PageTimeout, err)
	case ae != nil && ae.class == ErrorClassNotFound:
		fe.Kind = KindInvalidCollection
	case ae != nil && ae.class == ErrorClassParse:
		fe.Kind = KindParse
	default:
		fe.Kind = KindNetwork
	}

	fetchErrorsTotal.WithLabelValues(string(fe.Kind)).Inc()
	c.logger.Error().
		Err(err).
		Int("page", page).
		Str("kind", string(fe.Kind)).
		Msg("Page fetch failed")
	return fe
}

// toPage maps the remote card connection to a vocabulary page and remembers
// the cursor for the following page.
func (c *Client) toPage(page int, cards *cardConnection, logger zerolog.Logger) (*vocab.Page, error) {
	info := cards.PageInfo
	if info.HasNextPage && (info.EndCursor == nil || *info.EndCursor == "") {
		return nil, &attemptError{class: ErrorClassParse, err: fmt.Errorf("%w: next page announced without cursor", ErrMalformedResponse)}
	}

	records := make([]vocab.Record, 0, len(cards.Edges))
	for _, edge := range cards.Edges {
		rec := edge.Node.toRecord()
		if err := rec.Validate(); err != nil {
			logger.Warn().Err(err).Str("card_id", edge.Node.ID).Msg("Skipping incomplete card")
			continue
		}
		records = append(records, rec)
	}

	if info.EndCursor != nil {
		c.mu.Lock()
		c.cursors[page] = *info.EndCursor
		c.mu.Unlock()
	}

	result := &vocab.Page{
		Records:     records,
		CurrentPage: page,
		HasNext:     info.HasNextPage,
	}
	if !info.HasNextPage {
		result.TotalPages = page
	}

	logger.Debug().
		Int("records", len(records)).
		Bool("has_next", result.HasNext).
		Msg("Page fetched")
	return result, nil
}

// classifyStatus categorizes an HTTP status. Successful statuses return "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	case status < 200 || status >= 300:
		return ErrorClassClient
	default:
		return ""
	}
}
