package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openprofile/factpod-gateway/storage"
)

// ============================================================
// StateStore Implementation
// ============================================================

// PutAuthState inserts a new authorization state with a native TTL.
// SET NX guarantees an existing state is never overwritten; a collision
// yields ErrStateConflict so the caller regenerates.
func (s *Store) PutAuthState(ctx context.Context, st *storage.AuthState) error {
	if st == nil || st.State == "" {
		return storage.NewRepositoryError("put", "auth_state", fmt.Errorf("state value is required"))
	}
	if st.UserID == "" || st.Site == "" {
		return storage.NewRepositoryError("put", "auth_state", fmt.Errorf("userID and site are required"))
	}

	ttl := calculateTTL(st.ExpiresAt)
	if ttl <= 0 {
		return storage.NewRepositoryError("put", "auth_state", fmt.Errorf("authorization state already expired"))
	}

	data, err := json.Marshal(toAuthStateJSON(st))
	if err != nil {
		return storage.NewRepositoryError("put", "auth_state", fmt.Errorf("failed to marshal state: %w", err))
	}

	key := s.stateKey(st.State)
	resp := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Nx().Ex(ttl).Build(),
	)
	if err := resp.Error(); err != nil {
		// SET NX replies nil when the key already exists.
		if isNilError(err) {
			return storage.NewRepositoryError("put", "auth_state", storage.ErrStateConflict)
		}
		return storage.NewRepositoryError("put", "auth_state", err)
	}

	s.logger.Debug("Saved authorization state",
		"state_prefix", safeTruncate(st.State, statePrefixLogLength),
		"site", st.Site,
		"expires_at", st.ExpiresAt)
	return nil
}

// GetAndDeleteAuthState atomically retrieves and deletes an authorization
// state via a Lua script. Only one concurrent consumer can win; expired
// states are deleted server-side and reported as not found.
func (s *Store) GetAndDeleteAuthState(ctx context.Context, state string) (*storage.AuthState, error) {
	if state == "" {
		return nil, storage.NewRepositoryError("get", "auth_state", fmt.Errorf("state value is required"))
	}

	key := s.stateKey(state)

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaAtomicGetAndDeleteState).
			Numkeys(1).
			Key(key).
			Arg(fmt.Sprintf("%d", time.Now().Unix())).
			Build(),
	).ToString()
	if err != nil {
		return nil, storage.NewRepositoryError("get", "auth_state", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, fmt.Errorf("%w: %s", storage.ErrStateNotFound, safeTruncate(state, statePrefixLogLength))
	case "EXPIRED":
		s.logger.Debug("Rejected expired authorization state",
			"state_prefix", safeTruncate(state, statePrefixLogLength))
		return nil, fmt.Errorf("%w: expired", storage.ErrStateNotFound)
	}

	var j authStateJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, storage.NewRepositoryError("get", "auth_state", fmt.Errorf("failed to unmarshal state: %w", err))
	}

	s.logger.Debug("Consumed authorization state",
		"state_prefix", safeTruncate(state, statePrefixLogLength),
		"site", j.Site)

	return fromAuthStateJSON(&j), nil
}
