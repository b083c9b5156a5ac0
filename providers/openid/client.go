package openid

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultHTTPTimeout bounds every provider request
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultCacheTTL is the lifetime of a cached discovery document
	DefaultCacheTTL = 1 * time.Hour
)

// Config holds configuration for the provider client.
type Config struct {
	// HTTPClient is the HTTP client for all provider requests
	// (nil uses a default client with a 10s timeout)
	HTTPClient *http.Client

	// CacheTTL is the time-to-live for cached discovery documents
	// (0 uses the default of 1 hour)
	CacheTTL time.Duration

	// Logger is the structured logger (nil uses slog.Default())
	Logger *slog.Logger

	// AllowHTTP permits plain-HTTP issuers and endpoints.
	// Only for local development against providers without TLS.
	AllowHTTP bool
}

// Client performs discovery, registration, and token exchange against pod
// providers. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cacheTTL   time.Duration
	logger     *slog.Logger
	allowHTTP  bool

	cache sync.Map // issuer URL -> *cachedConfiguration
}

// New creates a new provider client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
		allowHTTP:  cfg.AllowHTTP,
	}
}
