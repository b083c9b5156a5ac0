package storage

import (
	"context"
	"time"
)

// FactPodConfig is the per-site enablement record.
// At most one record exists per site; records are disabled, never deleted,
// so the enablement history survives for audit.
type FactPodConfig struct {
	Site      string
	Enabled   bool
	Settings  map[string]string // provider-specific extension fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientConfig is a user's registered OAuth client for one provider.
// Identity is the (UserID, Site) pair. The secret is written once at
// registration time and only ever replaced wholesale, never merged.
type ClientConfig struct {
	UserID       string
	Site         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthState is the ephemeral CSRF/callback-correlation record.
// The State value is cryptographically random and globally unique at
// issuance time. A state is consumed at most once; expired states behave
// as if they never existed.
type AuthState struct {
	State     string
	UserID    string
	Site      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Category is a coarse site-enablement taxonomy entry, retrievable as a
// paginated listing. Reference data; no mutation path beyond provisioning.
type Category struct {
	Name        string
	Description string
	Count       int
}

// CategoryPage is one page of a category listing. NextPageToken is opaque
// to the caller and round-trips exactly; an empty token means the listing
// is exhausted.
type CategoryPage struct {
	Items         []Category
	NextPageToken string
}

// FactPodConfigStore manages per-site enablement records.
// All methods accept context.Context for tracing and cancellation.
type FactPodConfigStore interface {
	// GetFactPodConfig retrieves the config for a site.
	// Returns ErrFactPodConfigNotFound if the site is unknown.
	GetFactPodConfig(ctx context.Context, site string) (*FactPodConfig, error)

	// PutFactPodConfig idempotently upserts a config. CreatedAt is set only
	// when the record is new; UpdatedAt is always refreshed by the store.
	PutFactPodConfig(ctx context.Context, cfg *FactPodConfig) error
}

// ClientConfigStore manages registered OAuth clients keyed by (user, site).
type ClientConfigStore interface {
	// GetClientConfig retrieves the client config for a (user, site) pair.
	// Returns ErrClientConfigNotFound if no registration exists.
	GetClientConfig(ctx context.Context, userID, site string) (*ClientConfig, error)

	// PutClientConfig upserts a client config with full-replace semantics.
	// CreatedAt is preserved for existing records; UpdatedAt is refreshed.
	PutClientConfig(ctx context.Context, cfg *ClientConfig) error
}

// StateStore manages ephemeral authorization states.
type StateStore interface {
	// PutAuthState inserts a new state record. It never overwrites: if the
	// state value already exists the returned error wraps ErrStateConflict,
	// and the caller regenerates rather than overrides.
	PutAuthState(ctx context.Context, st *AuthState) error

	// GetAndDeleteAuthState atomically retrieves and deletes a state record.
	// The read and delete are indivisible: of two concurrent calls for the
	// same state, exactly one observes the record and the other gets
	// ErrStateNotFound. Expired states are reported as ErrStateNotFound
	// regardless of whether physical deletion has happened yet.
	GetAndDeleteAuthState(ctx context.Context, state string) (*AuthState, error)
}

// CategoryStore provides the paginated category listing.
type CategoryStore interface {
	// ListCategories returns one page of categories. Pass an empty token for
	// the first page and the returned NextPageToken for subsequent pages.
	// Successive pages cover the dataset exactly once with no duplicates.
	ListCategories(ctx context.Context, pageToken string) (*CategoryPage, error)
}

// Repository is the full persistence contract required by the orchestration
// service. The service is the sole writer; the repository never initiates
// writes on its own.
type Repository interface {
	FactPodConfigStore
	ClientConfigStore
	StateStore
	CategoryStore
}
