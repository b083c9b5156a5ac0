// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openprofile/factpod-gateway/instrumentation"
	"github.com/openprofile/factpod-gateway/internal/util"
	"github.com/openprofile/factpod-gateway/security"
	"github.com/openprofile/factpod-gateway/storage"
)

const (
	// statePrefixLogLength is the number of characters of a state value to
	// include in logs. Enough for correlation, never the full value.
	statePrefixLogLength = 8

	// defaultCategoryPageSize bounds a single category listing page.
	defaultCategoryPageSize = 100
)

// clientKey identifies a client config by its composite key.
type clientKey struct {
	userID string
	site   string
}

// Store is an in-memory implementation of all storage interfaces.
// All record families live in maps guarded by a single RWMutex; expired
// authorization states are removed lazily on read and periodically by a
// background cleanup goroutine.
type Store struct {
	mu sync.RWMutex

	factPods   map[string]*storage.FactPodConfig
	clients    map[clientKey]*storage.ClientConfig
	authStates map[string]*storage.AuthState

	// Categories are reference data: provisioned once, sorted by name, and
	// only ever read afterwards.
	categories []storage.Category
	pageSize   int

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	factPodsCountAtomic   atomic.Int64
	clientsCountAtomic    atomic.Int64
	authStatesCountAtomic atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.FactPodConfigStore = (*Store)(nil)
	_ storage.ClientConfigStore  = (*Store)(nil)
	_ storage.StateStore         = (*Store)(nil)
	_ storage.CategoryStore      = (*Store)(nil)
	_ storage.Repository         = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// A non-positive interval disables the background cleanup goroutine; expired
// states are still rejected on read.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	s := &Store{
		factPods:        make(map[string]*storage.FactPodConfig),
		clients:         make(map[clientKey]*storage.ClientConfig),
		authStates:      make(map[string]*storage.AuthState),
		pageSize:        defaultCategoryPageSize,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// SetLogger sets a custom logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")

		if err := inst.RegisterStorageSizeCallbacks(
			s.authStatesCountAtomic.Load,
			s.clientsCountAtomic.Load,
			s.factPodsCountAtomic.Load,
		); err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// SetPageSize overrides the category listing page size. Values below 1 are
// ignored.
func (s *Store) SetPageSize(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// SetCategories provisions the category reference data. The slice is copied
// and sorted by name; any previous data is replaced.
func (s *Store) SetCategories(categories []storage.Category) {
	sorted := make([]storage.Category, len(categories))
	copy(sorted, categories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	s.mu.Lock()
	s.categories = sorted
	s.mu.Unlock()
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// GetFactPodConfig retrieves the enablement record for a site
func (s *Store) GetFactPodConfig(ctx context.Context, site string) (*storage.FactPodConfig, error) {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "get_fact_pod_config")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "get_fact_pod_config", err, start) }()

	if site == "" {
		err = storage.NewRepositoryError("get", "fact_pod_config", fmt.Errorf("site cannot be empty"))
		return nil, err
	}

	s.mu.RLock()
	cfg, ok := s.factPods[site]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrFactPodConfigNotFound, site)
		return nil, err
	}

	return copyFactPodConfig(cfg), nil
}

// PutFactPodConfig idempotently upserts an enablement record. CreatedAt is
// assigned on first write and preserved afterwards; UpdatedAt always moves.
func (s *Store) PutFactPodConfig(ctx context.Context, cfg *storage.FactPodConfig) error {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "put_fact_pod_config")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "put_fact_pod_config", err, start) }()

	if cfg == nil || cfg.Site == "" {
		err = storage.NewRepositoryError("put", "fact_pod_config", fmt.Errorf("config and site are required"))
		return err
	}

	now := time.Now()
	stored := copyFactPodConfig(cfg)
	stored.UpdatedAt = now

	s.mu.Lock()
	if existing, ok := s.factPods[cfg.Site]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.factPods[cfg.Site] = stored
	s.factPodsCountAtomic.Store(int64(len(s.factPods)))
	s.mu.Unlock()

	return nil
}

// GetClientConfig retrieves the client registration for a (user, site) pair
func (s *Store) GetClientConfig(ctx context.Context, userID, site string) (*storage.ClientConfig, error) {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "get_client_config")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "get_client_config", err, start) }()

	if userID == "" || site == "" {
		err = storage.NewRepositoryError("get", "client_config", fmt.Errorf("userID and site are required"))
		return nil, err
	}

	s.mu.RLock()
	cfg, ok := s.clients[clientKey{userID: userID, site: site}]
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientConfigNotFound, site)
		return nil, err
	}

	return copyClientConfig(cfg), nil
}

// PutClientConfig upserts a client registration with full-replace semantics
func (s *Store) PutClientConfig(ctx context.Context, cfg *storage.ClientConfig) error {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "put_client_config")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "put_client_config", err, start) }()

	if cfg == nil || cfg.UserID == "" || cfg.Site == "" {
		err = storage.NewRepositoryError("put", "client_config", fmt.Errorf("config, userID and site are required"))
		return err
	}
	if cfg.ClientID == "" {
		err = storage.NewRepositoryError("put", "client_config", fmt.Errorf("clientID is required"))
		return err
	}

	now := time.Now()
	stored := copyClientConfig(cfg)
	stored.UpdatedAt = now

	key := clientKey{userID: cfg.UserID, site: cfg.Site}

	s.mu.Lock()
	if existing, ok := s.clients[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.clients[key] = stored
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.mu.Unlock()

	return nil
}

// PutAuthState inserts a new authorization state. Existing states are never
// overwritten; a colliding state value yields ErrStateConflict so the caller
// can regenerate.
func (s *Store) PutAuthState(ctx context.Context, st *storage.AuthState) error {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "put_auth_state")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "put_auth_state", err, start) }()

	if st == nil || st.State == "" {
		err = storage.NewRepositoryError("put", "auth_state", fmt.Errorf("state value is required"))
		return err
	}
	if st.UserID == "" || st.Site == "" {
		err = storage.NewRepositoryError("put", "auth_state", fmt.Errorf("userID and site are required"))
		return err
	}
	if st.ExpiresAt.IsZero() {
		err = storage.NewRepositoryError("put", "auth_state", fmt.Errorf("expiry is required"))
		return err
	}

	stored := *st

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.authStates[st.State]; ok {
		// An expired leftover does not count as a collision.
		if !security.IsExpired(existing.ExpiresAt) {
			err = storage.NewRepositoryError("put", "auth_state", storage.ErrStateConflict)
			return err
		}
	}

	s.authStates[st.State] = &stored
	s.authStatesCountAtomic.Store(int64(len(s.authStates)))

	return nil
}

// GetAndDeleteAuthState atomically retrieves and deletes an authorization
// state. Both steps happen under a single write lock, so of two concurrent
// callers exactly one gets the record. Expired states are deleted and
// reported as not found.
func (s *Store) GetAndDeleteAuthState(ctx context.Context, state string) (*storage.AuthState, error) {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "get_and_delete_auth_state")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "get_and_delete_auth_state", err, start) }()

	if state == "" {
		err = storage.NewRepositoryError("get", "auth_state", fmt.Errorf("state value is required"))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.authStates[state]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrStateNotFound, util.SafeTruncate(state, statePrefixLogLength))
		return nil, err
	}

	delete(s.authStates, state)
	s.authStatesCountAtomic.Store(int64(len(s.authStates)))

	if security.IsExpired(st.ExpiresAt) {
		s.logger.Debug("Rejected expired authorization state",
			"state_prefix", util.SafeTruncate(state, statePrefixLogLength))
		err = fmt.Errorf("%w: expired", storage.ErrStateNotFound)
		return nil, err
	}

	result := *st
	return &result, nil
}

// ListCategories returns one page of the category listing. The token is the
// encoded name of the last category on the previous page; pages therefore
// cover the sorted data exactly once.
func (s *Store) ListCategories(ctx context.Context, pageToken string) (*storage.CategoryPage, error) {
	start := time.Now()
	ctx, span := s.startStorageSpan(ctx, "list_categories")
	defer span.End()

	var err error
	defer func() { s.recordStorageOperation(ctx, span, "list_categories", err, start) }()

	after, err := storage.DecodePageToken(pageToken)
	if err != nil {
		err = storage.NewRepositoryError("list", "category", err)
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// First index strictly past the exclusive bound.
	from := sort.Search(len(s.categories), func(i int) bool {
		return s.categories[i].Name > after
	})

	to := from + s.pageSize
	if to > len(s.categories) {
		to = len(s.categories)
	}

	page := &storage.CategoryPage{
		Items: make([]storage.Category, to-from),
	}
	copy(page.Items, s.categories[from:to])

	if to < len(s.categories) {
		page.NextPageToken = storage.EncodePageToken(s.categories[to-1].Name)
	}

	return page, nil
}

// cleanupLoop periodically removes expired authorization states
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes expired authorization states in one pass
func (s *Store) cleanup() {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for state, st := range s.authStates {
		if security.IsExpiredAt(st.ExpiresAt, now) {
			delete(s.authStates, state)
			removed++
		}
	}
	s.authStatesCountAtomic.Store(int64(len(s.authStates)))
	remaining := len(s.authStates)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Expired authorization states cleaned up",
			"removed", removed,
			"remaining", remaining)
	}
}

func copyFactPodConfig(cfg *storage.FactPodConfig) *storage.FactPodConfig {
	out := *cfg
	if cfg.Settings != nil {
		out.Settings = make(map[string]string, len(cfg.Settings))
		for k, v := range cfg.Settings {
			out.Settings[k] = v
		}
	}
	return &out
}

func copyClientConfig(cfg *storage.ClientConfig) *storage.ClientConfig {
	out := *cfg
	return &out
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation.
// Returns a context with the span attached and the span itself.
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
