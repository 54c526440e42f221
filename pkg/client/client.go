// Package client provides the storefront API client: cached queries,
// uncached mutations and a generic fetch pass-through, all fronted by the
// strategy-driven response cache in pkg/cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quayside/storefront-client/pkg/background"
	"github.com/quayside/storefront-client/pkg/cache"
	"github.com/quayside/storefront-client/pkg/strategy"
)

// Prometheus metrics for storefront client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total upstream requests by operation and status",
	}, []string{"operation", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Upstream request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_errors_total",
		Help: "Total upstream errors by kind",
	}, []string{"kind"}) // "transport", "http", "graphql"
)

// Default header names. All of them can be overridden in Config.
const (
	DefaultAccessTokenHeader  = "X-Storefront-Access-Token"
	DefaultBuyerIPHeader      = "X-Buyer-IP"
	DefaultRequestGroupHeader = "X-Request-Group-ID"

	// requestIDHeader carries the upstream correlation identifier,
	// appended to every raised error message.
	requestIDHeader = "X-Request-ID"
)

// Config holds the client configuration.
type Config struct {
	// APIURL is the upstream GraphQL endpoint (required).
	APIURL string

	// AccessToken authenticates against the upstream API (required).
	AccessToken string

	// AccessTokenHeader overrides the access token header name.
	AccessTokenHeader string

	// BuyerIP, when set, is forwarded on every request and participates
	// in the cache key (per-buyer responses must not be shared).
	BuyerIP string

	// BuyerIPHeader overrides the buyer identity header name.
	BuyerIPHeader string

	// RequestGroupID correlates all requests from this client instance.
	// Generated once per instance when empty.
	RequestGroupID string

	// RequestGroupHeader overrides the correlation header name.
	RequestGroupHeader string

	// HTTPClient overrides the transport. Timeout policy lives here; the
	// cache passes it through unmodified.
	HTTPClient *http.Client

	// Store is the cache backing store. Defaults to an in-memory store.
	Store cache.Store

	// Logger defaults to the global logger.
	Logger *zerolog.Logger

	// MaxRetries enables retrying transport and 5xx failures on the
	// query/fetch path. Zero keeps single-shot semantics. Mutations are
	// never retried.
	MaxRetries int

	// InitialBackoff is the first retry delay (default 500ms).
	InitialBackoff time.Duration
}

// DefaultConfig returns a working configuration for the given endpoint.
func DefaultConfig(apiURL, accessToken string) Config {
	return Config{
		APIURL:      apiURL,
		AccessToken: accessToken,
	}
}

// Client is the storefront API client. Create one per process with New and
// inject it into request-scoped consumers; the cache, in-flight tickets and
// revalidation guards it owns are shared across all requests.
type Client struct {
	httpClient *http.Client
	fetcher    *cache.Fetcher
	runner     *background.Runner
	config     Config
	logger     zerolog.Logger
}

// New creates a storefront client.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	if cfg.AccessTokenHeader == "" {
		cfg.AccessTokenHeader = DefaultAccessTokenHeader
	}
	if cfg.BuyerIPHeader == "" {
		cfg.BuyerIPHeader = DefaultBuyerIPHeader
	}
	if cfg.RequestGroupHeader == "" {
		cfg.RequestGroupHeader = DefaultRequestGroupHeader
	}
	if cfg.RequestGroupID == "" {
		cfg.RequestGroupID = uuid.NewString()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewMemoryStore()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}

	logger := log.With().Str("component", "storefront-client").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "storefront-client").Logger()
	}

	runner := background.NewRunner(logger)
	fetcher := cache.NewFetcher(cfg.Store, runner, logger,
		cache.WithShouldCache(ShouldCacheResponse))

	return &Client{
		httpClient: cfg.HTTPClient,
		fetcher:    fetcher,
		runner:     runner,
		config:     cfg,
		logger:     logger,
	}, nil
}

// RequestOptions customizes a single query or mutation.
type RequestOptions struct {
	// Variables is the GraphQL variables object.
	Variables map[string]interface{}

	// Header entries are merged over the client defaults.
	Header http.Header

	// Strategy selects the caching policy. The zero value is the None
	// strategy: no caching. Ignored by Mutate.
	Strategy strategy.Strategy
}

// gqlRequest is the outgoing wire shape.
type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Query executes a GraphQL query through the response cache and returns the
// payload's data field. The document is normalized before the cache key is
// derived, so formatting differences never cause duplicate upstream calls.
func (c *Client) Query(ctx context.Context, document string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	body, header, err := c.buildRequest(document, opts)
	if err != nil {
		return nil, err
	}

	key := cache.Key{
		URL:            c.config.APIURL,
		Method:         http.MethodPost,
		Body:           body,
		Header:         header,
		TrackedHeaders: []string{c.config.AccessTokenHeader, c.config.BuyerIPHeader},
	}

	res, err := c.fetcher.Do(ctx, key.String(), opts.Strategy, func(ctx context.Context) (*cache.Result, error) {
		return c.doUpstream(ctx, "query", body, header, true)
	})
	if err != nil {
		return nil, err
	}
	return decodeData(res)
}

// Mutate executes a GraphQL mutation. Mutations never consult or write the
// cache and are never coalesced: two identical concurrent mutations produce
// two upstream calls.
func (c *Client) Mutate(ctx context.Context, document string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	body, header, err := c.buildRequest(document, opts)
	if err != nil {
		return nil, err
	}

	res, err := c.doUpstream(ctx, "mutate", body, header, false)
	if err != nil {
		return nil, err
	}
	return decodeData(res)
}

// FetchOptions customizes a generic Fetch call.
type FetchOptions struct {
	// Method defaults to GET.
	Method string

	// Header entries are sent as-is (no client defaults are merged).
	Header http.Header

	// Body is the raw request body, if any.
	Body []byte

	// CacheKey overrides the derived key.
	CacheKey string

	// Strategy selects the caching policy; zero value disables caching.
	Strategy strategy.Strategy
}

// Fetch is a generic pass-through for non-GraphQL upstream calls, reusing
// the same orchestrator. It returns the body alongside the last response.
func (c *Client) Fetch(ctx context.Context, url string, opts *FetchOptions) ([]byte, *http.Response, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	key := opts.CacheKey
	if key == "" {
		key = cache.Key{
			URL:    url,
			Method: method,
			Body:   opts.Body,
			Header: opts.Header,
		}.String()
	}

	res, err := c.fetcher.Do(ctx, key, opts.Strategy, func(ctx context.Context) (*cache.Result, error) {
		return c.doRequest(ctx, "fetch", method, url, opts.Body, opts.Header, true)
	})
	if err != nil {
		return nil, nil, err
	}

	resp := &http.Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       io.NopCloser(bytes.NewReader(res.Body)),
	}
	return res.Body, resp, nil
}

// Invalidate removes the cached entry for an explicit key.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.fetcher.Invalidate(ctx, key)
}

// Close drains outstanding background revalidations. Call it during
// graceful shutdown so detached refreshes are not killed mid-flight.
func (c *Client) Close(ctx context.Context) error {
	return c.runner.Wait(ctx)
}

// buildRequest normalizes the document, serializes the wire body and merges
// default headers with caller-supplied ones (caller wins).
func (c *Client) buildRequest(document string, opts *RequestOptions) ([]byte, http.Header, error) {
	body, err := json.Marshal(gqlRequest{
		Query:     MinifyQuery(document),
		Variables: opts.Variables,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request body: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	header.Set(c.config.AccessTokenHeader, c.config.AccessToken)
	header.Set(c.config.RequestGroupHeader, c.config.RequestGroupID)
	if c.config.BuyerIP != "" {
		header.Set(c.config.BuyerIPHeader, c.config.BuyerIP)
	}
	for name, values := range opts.Header {
		header.Del(name)
		for _, v := range values {
			header.Add(name, v)
		}
	}
	return body, header, nil
}

// doUpstream posts a GraphQL body to the configured API URL.
func (c *Client) doUpstream(ctx context.Context, operation string, body []byte, header http.Header, retryable bool) (*cache.Result, error) {
	return c.doRequest(ctx, operation, http.MethodPost, c.config.APIURL, body, header, retryable)
}

// doRequest executes one upstream HTTP exchange and classifies the outcome.
// Non-2xx statuses and transport failures are errors, never cache entries.
func (c *Client) doRequest(ctx context.Context, operation, method, url string, body []byte, header http.Header, retryable bool) (*cache.Result, error) {
	attempt := func(ctx context.Context) (*cache.Result, error) {
		start := time.Now()
		defer func() {
			requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}()

		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for name, values := range header {
			req.Header[name] = values
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorsTotal.WithLabelValues("transport").Inc()
			requestsTotal.WithLabelValues(operation, "transport_error").Inc()
			c.logger.Error().Err(err).Str("operation", operation).Msg("Upstream request failed")
			return nil, &TransportError{Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues("transport").Inc()
			requestsTotal.WithLabelValues(operation, "transport_error").Inc()
			return nil, &TransportError{Err: err, RequestID: resp.Header.Get(requestIDHeader)}
		}

		requestsTotal.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errorsTotal.WithLabelValues("http").Inc()
			c.logger.Warn().
				Str("operation", operation).
				Int("status_code", resp.StatusCode).
				Msg("Upstream returned error status")
			return nil, &HTTPError{
				StatusCode: resp.StatusCode,
				Messages:   errorMessages(raw),
				RawBody:    raw,
				RequestID:  resp.Header.Get(requestIDHeader),
			}
		}

		return &cache.Result{
			Body:       raw,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
		}, nil
	}

	if retryable && c.config.MaxRetries > 0 {
		return c.withRetry(ctx, operation, attempt)
	}
	return attempt(ctx)
}

// decodeData classifies a successful HTTP exchange: a decodable payload with
// no errors list yields its data field, anything else is raised.
func decodeData(res *cache.Result) (json.RawMessage, error) {
	requestID := ""
	if res.Header != nil {
		requestID = res.Header.Get(requestIDHeader)
	}

	var env envelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		errorsTotal.WithLabelValues("graphql").Inc()
		return nil, &GraphQLError{
			Messages:  []string{fmt.Sprintf("invalid response body: %v", err)},
			RequestID: requestID,
		}
	}
	if len(env.Errors) > 0 {
		errorsTotal.WithLabelValues("graphql").Inc()
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &GraphQLError{Messages: msgs, RequestID: requestID}
	}
	return env.Data, nil
}

// ShouldCacheResponse reports whether an upstream payload may be stored: it
// must decode and carry no errors list. Used as the Fetcher's predicate so
// errored payloads are never served from cache.
func ShouldCacheResponse(res *cache.Result) bool {
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return false
	}
	var env envelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return false
	}
	return len(env.Errors) == 0
}
