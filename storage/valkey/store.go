package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/openprofile/factpod-gateway/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "fpg:"

	// DefaultCategoryPageSize bounds a single category listing page
	DefaultCategoryPageSize = 100

	// statePrefixLogLength is the number of characters of a state value to
	// include in logs
	statePrefixLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "fpg:")
	KeyPrefix string

	// CategoryPageSize is the category listing page size (default 100)
	CategoryPageSize int

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of all storage interfaces.
type Store struct {
	client   valkeygo.Client
	prefix   string
	pageSize int
	logger   *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.FactPodConfigStore = (*Store)(nil)
	_ storage.ClientConfigStore  = (*Store)(nil)
	_ storage.StateStore         = (*Store)(nil)
	_ storage.CategoryStore      = (*Store)(nil)
	_ storage.Repository         = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	pageSize := cfg.CategoryPageSize
	if pageSize <= 0 {
		pageSize = DefaultCategoryPageSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:   client,
		prefix:   prefix,
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ============================================================
// Key Helpers
// ============================================================

// factPodKey returns the key for a fact pod config: {prefix}factpod:{site}
func (s *Store) factPodKey(site string) string {
	return fmt.Sprintf("%sfactpod:%s", s.prefix, site)
}

// clientConfigKey returns the key for a client config: {prefix}client:{userID}:{site}
func (s *Store) clientConfigKey(userID, site string) string {
	return fmt.Sprintf("%sclient:%s:%s", s.prefix, userID, site)
}

// stateKey returns the key for an authorization state: {prefix}state:{state}
func (s *Store) stateKey(state string) string {
	return fmt.Sprintf("%sstate:%s", s.prefix, state)
}

// categoryIndexKey returns the key of the sorted-set category index
func (s *Store) categoryIndexKey() string {
	return s.prefix + "categories"
}

// categoryKey returns the key for a category record: {prefix}category:{name}
func (s *Store) categoryKey(name string) string {
	return fmt.Sprintf("%scategory:%s", s.prefix, name)
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================

// luaAtomicGetAndDeleteState atomically retrieves and deletes an
// authorization state. Only ONE concurrent consumer can succeed; any other
// receives NOT_FOUND. The stored expiry is checked against the caller's
// clock so a key lingering past its TTL is still rejected.
//
// KEYS[1] = state key (e.g., "fpg:state:abc123")
// ARGV[1] = current Unix timestamp in seconds
//
// Returns:
//   - Original JSON data if the state existed and was deleted
//   - "NOT_FOUND" if the key doesn't exist in Valkey
//   - "EXPIRED" if the state has expired (the key is deleted as well)
const luaAtomicGetAndDeleteState = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local state = cjson.decode(data)

local now = tonumber(ARGV[1])
local expiresAt = tonumber(state.expires_at)
if expiresAt and now > expiresAt then
    redis.call('DEL', KEYS[1])
    return 'EXPIRED'
end

redis.call('DEL', KEYS[1])
return data
`

// ============================================================
// JSON Representations
// ============================================================

// factPodConfigJSON is the JSON representation of a fact pod config
type factPodConfigJSON struct {
	Site      string            `json:"site"`
	Enabled   bool              `json:"enabled"`
	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}

func toFactPodConfigJSON(cfg *storage.FactPodConfig) *factPodConfigJSON {
	return &factPodConfigJSON{
		Site:      cfg.Site,
		Enabled:   cfg.Enabled,
		Settings:  cfg.Settings,
		CreatedAt: cfg.CreatedAt.Unix(),
		UpdatedAt: cfg.UpdatedAt.Unix(),
	}
}

func fromFactPodConfigJSON(j *factPodConfigJSON) *storage.FactPodConfig {
	if j == nil {
		return nil
	}
	return &storage.FactPodConfig{
		Site:      j.Site,
		Enabled:   j.Enabled,
		Settings:  j.Settings,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		UpdatedAt: time.Unix(j.UpdatedAt, 0),
	}
}

// clientConfigJSON is the JSON representation of a client config
type clientConfigJSON struct {
	UserID       string `json:"user_id"`
	Site         string `json:"site"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func toClientConfigJSON(cfg *storage.ClientConfig) *clientConfigJSON {
	return &clientConfigJSON{
		UserID:       cfg.UserID,
		Site:         cfg.Site,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		CreatedAt:    cfg.CreatedAt.Unix(),
		UpdatedAt:    cfg.UpdatedAt.Unix(),
	}
}

func fromClientConfigJSON(j *clientConfigJSON) *storage.ClientConfig {
	if j == nil {
		return nil
	}
	return &storage.ClientConfig{
		UserID:       j.UserID,
		Site:         j.Site,
		ClientID:     j.ClientID,
		ClientSecret: j.ClientSecret,
		RedirectURL:  j.RedirectURL,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
		UpdatedAt:    time.Unix(j.UpdatedAt, 0),
	}
}

// authStateJSON is the JSON representation of an authorization state.
// The expires_at field name is load-bearing: the consume script reads it.
type authStateJSON struct {
	State     string `json:"state"`
	UserID    string `json:"user_id"`
	Site      string `json:"site"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func toAuthStateJSON(st *storage.AuthState) *authStateJSON {
	return &authStateJSON{
		State:     st.State,
		UserID:    st.UserID,
		Site:      st.Site,
		CreatedAt: st.CreatedAt.Unix(),
		ExpiresAt: st.ExpiresAt.Unix(),
	}
}

func fromAuthStateJSON(j *authStateJSON) *storage.AuthState {
	if j == nil {
		return nil
	}
	return &storage.AuthState{
		State:     j.State,
		UserID:    j.UserID,
		Site:      j.Site,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
	}
}

// categoryJSON is the JSON representation of a category
type categoryJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count"`
}

func toCategoryJSON(c *storage.Category) *categoryJSON {
	return &categoryJSON{
		Name:        c.Name,
		Description: c.Description,
		Count:       c.Count,
	}
}

func fromCategoryJSON(j *categoryJSON) *storage.Category {
	if j == nil {
		return nil
	}
	return &storage.Category{
		Name:        j.Name,
		Description: j.Description,
		Count:       j.Count,
	}
}

// ============================================================
// Helper methods
// ============================================================

// getAndUnmarshal is a generic helper for fetching a key from Valkey,
// unmarshalling the JSON data, and converting to the target type.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// isNilError reports whether err is the Valkey nil reply
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// safeTruncate safely truncates a string to n characters
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// calculateTTL calculates the TTL for a key based on expiry time.
// Returns 0 if the key has already expired.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl
}
