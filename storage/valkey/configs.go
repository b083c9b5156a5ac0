package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openprofile/factpod-gateway/storage"
)

// ============================================================
// FactPodConfigStore Implementation
// ============================================================

// GetFactPodConfig retrieves the enablement record for a site
func (s *Store) GetFactPodConfig(ctx context.Context, site string) (*storage.FactPodConfig, error) {
	if site == "" {
		return nil, storage.NewRepositoryError("get", "fact_pod_config", fmt.Errorf("site cannot be empty"))
	}

	cfg, err := getAndUnmarshal(ctx, s, s.factPodKey(site), storage.ErrFactPodConfigNotFound, fromFactPodConfigJSON)
	if err != nil {
		if errors.Is(err, storage.ErrFactPodConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrFactPodConfigNotFound, site)
		}
		return nil, storage.NewRepositoryError("get", "fact_pod_config", err)
	}

	return cfg, nil
}

// PutFactPodConfig idempotently upserts an enablement record. CreatedAt is
// taken from the existing record when one is present; UpdatedAt always moves.
func (s *Store) PutFactPodConfig(ctx context.Context, cfg *storage.FactPodConfig) error {
	if cfg == nil || cfg.Site == "" {
		return storage.NewRepositoryError("put", "fact_pod_config", fmt.Errorf("config and site are required"))
	}

	now := time.Now()
	stored := *cfg
	stored.UpdatedAt = now
	stored.CreatedAt = now

	// Preserve the original creation time across upserts. The read and write
	// are not one atomic step, but the service serializes writes per site so
	// the window is harmless.
	if existing, err := getAndUnmarshal(ctx, s, s.factPodKey(cfg.Site), storage.ErrFactPodConfigNotFound, fromFactPodConfigJSON); err == nil {
		stored.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(toFactPodConfigJSON(&stored))
	if err != nil {
		return storage.NewRepositoryError("put", "fact_pod_config", fmt.Errorf("failed to marshal config: %w", err))
	}

	key := s.factPodKey(cfg.Site)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return storage.NewRepositoryError("put", "fact_pod_config", err)
	}

	s.logger.Debug("Saved fact pod config", "site", cfg.Site, "enabled", cfg.Enabled)
	return nil
}

// ============================================================
// ClientConfigStore Implementation
// ============================================================

// GetClientConfig retrieves the client registration for a (user, site) pair
func (s *Store) GetClientConfig(ctx context.Context, userID, site string) (*storage.ClientConfig, error) {
	if userID == "" || site == "" {
		return nil, storage.NewRepositoryError("get", "client_config", fmt.Errorf("userID and site are required"))
	}

	cfg, err := getAndUnmarshal(ctx, s, s.clientConfigKey(userID, site), storage.ErrClientConfigNotFound, fromClientConfigJSON)
	if err != nil {
		if errors.Is(err, storage.ErrClientConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientConfigNotFound, site)
		}
		return nil, storage.NewRepositoryError("get", "client_config", err)
	}

	return cfg, nil
}

// PutClientConfig upserts a client registration with full-replace semantics
func (s *Store) PutClientConfig(ctx context.Context, cfg *storage.ClientConfig) error {
	if cfg == nil || cfg.UserID == "" || cfg.Site == "" {
		return storage.NewRepositoryError("put", "client_config", fmt.Errorf("config, userID and site are required"))
	}
	if cfg.ClientID == "" {
		return storage.NewRepositoryError("put", "client_config", fmt.Errorf("clientID is required"))
	}

	now := time.Now()
	stored := *cfg
	stored.UpdatedAt = now
	stored.CreatedAt = now

	if existing, err := getAndUnmarshal(ctx, s, s.clientConfigKey(cfg.UserID, cfg.Site), storage.ErrClientConfigNotFound, fromClientConfigJSON); err == nil {
		stored.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(toClientConfigJSON(&stored))
	if err != nil {
		return storage.NewRepositoryError("put", "client_config", fmt.Errorf("failed to marshal config: %w", err))
	}

	key := s.clientConfigKey(cfg.UserID, cfg.Site)
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return storage.NewRepositoryError("put", "client_config", err)
	}

	s.logger.Debug("Saved client config", "site", cfg.Site, "client_id", cfg.ClientID)
	return nil
}
