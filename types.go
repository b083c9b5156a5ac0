package factpod

import (
	"context"

	"github.com/openprofile/factpod-gateway/storage"
)

// Flow status values returned to the front-end layer.
const (
	// StatusRedirectUser means the caller must redirect the user to
	// EnableResult.AuthorizationURL to continue the flow
	StatusRedirectUser = "redirect_user"

	// StatusConnected means the pod is enabled and the flow is complete
	StatusConnected = "connected"

	// StatusDisabled means the pod was disabled; the client registration is
	// retained for a later re-enable
	StatusDisabled = "disabled"
)

// EnableResult is the outcome of EnableFactPod.
type EnableResult struct {
	Status           string
	AuthorizationURL string
	SupportedScopes  []string
}

// CallbackResult is the outcome of a successfully processed callback.
type CallbackResult struct {
	Status string
	UserID string
	Site   string
}

// API is the operation surface consumed by the front-end layer.
type API interface {
	// EnableFactPod starts (or restarts) the enablement flow for a site,
	// returning the authorization URL to redirect the user to.
	EnableFactPod(ctx context.Context, userID, site string) (*EnableResult, error)

	// HandleCallback processes the provider redirect carrying state and
	// code. Returns ErrInvalidState for an unusable state.
	HandleCallback(ctx context.Context, state, code string) (*CallbackResult, error)

	// DisableFactPod disables a site, keeping its client registration.
	DisableFactPod(ctx context.Context, site string) error

	// ListCategories returns one page of the category listing.
	ListCategories(ctx context.Context, pageToken string) (*storage.CategoryPage, error)

	// GetFactPodConfig returns the enablement record for a site.
	GetFactPodConfig(ctx context.Context, site string) (*storage.FactPodConfig, error)
}
