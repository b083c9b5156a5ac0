// Package mock provides a mock implementation of the storage interfaces for
// testing. Each operation delegates to an overridable function field with a
// map-backed default, so tests can inject failures for a single operation
// while the rest keep working.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openprofile/factpod-gateway/storage"
)

type clientKey struct {
	userID string
	site   string
}

// MockRepository is a mock implementation of storage.Repository for testing
type MockRepository struct {
	mu         sync.RWMutex
	factPods   map[string]*storage.FactPodConfig
	clients    map[clientKey]*storage.ClientConfig
	authStates map[string]*storage.AuthState
	categories []storage.Category

	GetFactPodConfigFunc      func(ctx context.Context, site string) (*storage.FactPodConfig, error)
	PutFactPodConfigFunc      func(ctx context.Context, cfg *storage.FactPodConfig) error
	GetClientConfigFunc       func(ctx context.Context, userID, site string) (*storage.ClientConfig, error)
	PutClientConfigFunc       func(ctx context.Context, cfg *storage.ClientConfig) error
	PutAuthStateFunc          func(ctx context.Context, st *storage.AuthState) error
	GetAndDeleteAuthStateFunc func(ctx context.Context, state string) (*storage.AuthState, error)
	ListCategoriesFunc        func(ctx context.Context, pageToken string) (*storage.CategoryPage, error)

	CallCounts map[string]int
}

var _ storage.Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository with working in-memory
// defaults for every operation
func NewMockRepository() *MockRepository {
	m := &MockRepository{
		factPods:   make(map[string]*storage.FactPodConfig),
		clients:    make(map[clientKey]*storage.ClientConfig),
		authStates: make(map[string]*storage.AuthState),
		CallCounts: make(map[string]int),
	}

	m.GetFactPodConfigFunc = func(ctx context.Context, site string) (*storage.FactPodConfig, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		cfg, ok := m.factPods[site]
		if !ok {
			return nil, fmt.Errorf("%w: %s", storage.ErrFactPodConfigNotFound, site)
		}
		out := *cfg
		return &out, nil
	}

	m.PutFactPodConfigFunc = func(ctx context.Context, cfg *storage.FactPodConfig) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored := *cfg
		now := time.Now()
		if existing, ok := m.factPods[cfg.Site]; ok {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		m.factPods[cfg.Site] = &stored
		return nil
	}

	m.GetClientConfigFunc = func(ctx context.Context, userID, site string) (*storage.ClientConfig, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		cfg, ok := m.clients[clientKey{userID, site}]
		if !ok {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientConfigNotFound, site)
		}
		out := *cfg
		return &out, nil
	}

	m.PutClientConfigFunc = func(ctx context.Context, cfg *storage.ClientConfig) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		stored := *cfg
		now := time.Now()
		if existing, ok := m.clients[clientKey{cfg.UserID, cfg.Site}]; ok {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		m.clients[clientKey{cfg.UserID, cfg.Site}] = &stored
		return nil
	}

	m.PutAuthStateFunc = func(ctx context.Context, st *storage.AuthState) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.authStates[st.State]; ok {
			return storage.NewRepositoryError("put", "auth_state", storage.ErrStateConflict)
		}
		stored := *st
		m.authStates[st.State] = &stored
		return nil
	}

	m.GetAndDeleteAuthStateFunc = func(ctx context.Context, state string) (*storage.AuthState, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		st, ok := m.authStates[state]
		if !ok {
			return nil, fmt.Errorf("%w", storage.ErrStateNotFound)
		}
		delete(m.authStates, state)
		if !st.ExpiresAt.IsZero() && time.Now().After(st.ExpiresAt) {
			return nil, fmt.Errorf("%w: expired", storage.ErrStateNotFound)
		}
		out := *st
		return &out, nil
	}

	m.ListCategoriesFunc = func(ctx context.Context, pageToken string) (*storage.CategoryPage, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		page := &storage.CategoryPage{Items: make([]storage.Category, len(m.categories))}
		copy(page.Items, m.categories)
		return page, nil
	}

	return m
}

// SetCategories provisions the category data returned by the default
// ListCategories implementation (single page, no token)
func (m *MockRepository) SetCategories(categories []storage.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = make([]storage.Category, len(categories))
	copy(m.categories, categories)
}

// StateCount returns the number of pending authorization states
func (m *MockRepository) StateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.authStates)
}

func (m *MockRepository) count(op string) {
	m.mu.Lock()
	m.CallCounts[op]++
	m.mu.Unlock()
}

func (m *MockRepository) GetFactPodConfig(ctx context.Context, site string) (*storage.FactPodConfig, error) {
	m.count("GetFactPodConfig")
	return m.GetFactPodConfigFunc(ctx, site)
}

func (m *MockRepository) PutFactPodConfig(ctx context.Context, cfg *storage.FactPodConfig) error {
	m.count("PutFactPodConfig")
	return m.PutFactPodConfigFunc(ctx, cfg)
}

func (m *MockRepository) GetClientConfig(ctx context.Context, userID, site string) (*storage.ClientConfig, error) {
	m.count("GetClientConfig")
	return m.GetClientConfigFunc(ctx, userID, site)
}

func (m *MockRepository) PutClientConfig(ctx context.Context, cfg *storage.ClientConfig) error {
	m.count("PutClientConfig")
	return m.PutClientConfigFunc(ctx, cfg)
}

func (m *MockRepository) PutAuthState(ctx context.Context, st *storage.AuthState) error {
	m.count("PutAuthState")
	return m.PutAuthStateFunc(ctx, st)
}

func (m *MockRepository) GetAndDeleteAuthState(ctx context.Context, state string) (*storage.AuthState, error) {
	m.count("GetAndDeleteAuthState")
	return m.GetAndDeleteAuthStateFunc(ctx, state)
}

func (m *MockRepository) ListCategories(ctx context.Context, pageToken string) (*storage.CategoryPage, error) {
	m.count("ListCategories")
	return m.ListCategoriesFunc(ctx, pageToken)
}
