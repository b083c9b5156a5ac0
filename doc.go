// Package factpod orchestrates OAuth-based fact pod enablement for the
// gateway: discovering a pod provider's OpenID endpoints, dynamically
// registering an OAuth client, walking a user through the authorization-code
// grant, and persisting the per-site enablement state.
//
// The package is the core state machine only. It exposes a transport-neutral
// API (EnableFactPod, HandleCallback, DisableFactPod, ListCategories,
// GetFactPodConfig) for a front-end layer to mount however it likes; no HTTP
// handlers live here. Durable state goes through storage.Repository, so the
// Service itself is stateless and safe for any number of concurrent calls.
//
// Basic usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	svc, err := factpod.New(store, openid.New(openid.Config{}), factpod.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	res, err := svc.EnableFactPod(ctx, "user-1", "pod.example")
//	// redirect the user to res.AuthorizationURL; the provider calls back
//	// with ?state=...&code=... which the front end feeds to HandleCallback.
package factpod
