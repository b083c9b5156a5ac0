package factpod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/openprofile/factpod-gateway/providers/openid"
	"github.com/openprofile/factpod-gateway/storage"
	"github.com/openprofile/factpod-gateway/storage/memory"
	"github.com/openprofile/factpod-gateway/storage/mock"
)

// fakePod is an httptest-backed pod provider with discovery, registration,
// and token endpoints.
type fakePod struct {
	srv *httptest.Server

	registrations int
	exchanges     int

	failDiscovery bool
	failExchange  bool
	lastTokenForm url.Values
}

func newFakePod(t *testing.T) *fakePod {
	t.Helper()
	p := &fakePod{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		if p.failDiscovery {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		base := "http://" + r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
			"token_endpoint":         base + "/token",
			"registration_endpoint":  base + "/register",
		})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		p.registrations++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_id":     fmt.Sprintf("client-%d", p.registrations),
			"client_secret": "pod-secret",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.exchanges++
		_ = r.ParseForm()
		p.lastTokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if p.failExchange || r.PostFormValue("code") != "validcode" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"bad code"}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// site returns the provider's address as the fact pod site
func (p *fakePod) site() string {
	return p.srv.URL
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, repo storage.Repository, cfg Config) *Service {
	t.Helper()

	cfg.Logger = quietLogger()
	if cfg.RedirectURLTemplate == "" {
		cfg.RedirectURLTemplate = "https://gateway.test/callback/%s"
	}

	provider := openid.New(openid.Config{AllowHTTP: true, Logger: cfg.Logger})

	svc, err := New(repo, provider, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func newMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)
	return store
}

func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("authorization URL missing state: %s", authURL)
	}
	return state
}

func TestEnableThenCallback(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	res, err := svc.EnableFactPod(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("EnableFactPod failed: %v", err)
	}
	if res.Status != StatusRedirectUser {
		t.Errorf("expected %s status, got %s", StatusRedirectUser, res.Status)
	}
	if len(res.SupportedScopes) != 2 {
		t.Errorf("expected supported scopes, got %v", res.SupportedScopes)
	}

	u, err := url.Parse(res.AuthorizationURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	q := u.Query()
	if q.Get("response_type") != "code" {
		t.Errorf("missing response_type: %s", res.AuthorizationURL)
	}
	if q.Get("client_id") != "client-1" {
		t.Errorf("client_id should match the registered client: %s", q.Get("client_id"))
	}
	if q.Get("scope") != "facts:read facts:make-irrelevant" {
		t.Errorf("wrong scope: %q", q.Get("scope"))
	}
	state := q.Get("state")
	if len(state) < 32 {
		t.Errorf("state looks too short to be 256-bit: %q", state)
	}

	// The pod exists but stays disabled until the callback succeeds.
	cfg, err := svc.GetFactPodConfig(ctx, pod.site())
	if err != nil {
		t.Fatalf("GetFactPodConfig failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("pod should not be enabled before the callback")
	}

	cb, err := svc.HandleCallback(ctx, state, "validcode")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if cb.Status != StatusConnected {
		t.Errorf("expected %s status, got %s", StatusConnected, cb.Status)
	}
	if cb.UserID != "user-1" || cb.Site != pod.site() {
		t.Errorf("callback result should carry the flow identity: %+v", cb)
	}

	cfg, err = svc.GetFactPodConfig(ctx, pod.site())
	if err != nil {
		t.Fatalf("GetFactPodConfig failed: %v", err)
	}
	if !cfg.Enabled {
		t.Error("pod should be enabled after a successful callback")
	}

	// client_secret_post: the secret went in the token request body.
	if got := pod.lastTokenForm.Get("client_secret"); got != "pod-secret" {
		t.Errorf("client secret not sent in token request body: %q", got)
	}
}

func TestHandleCallback_StateConsumedOnce(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	res, err := svc.EnableFactPod(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("EnableFactPod failed: %v", err)
	}
	state := stateFromAuthURL(t, res.AuthorizationURL)

	if _, err := svc.HandleCallback(ctx, state, "validcode"); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}

	_, err = svc.HandleCallback(ctx, state, "validcode")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second callback should fail with ErrInvalidState, got %v", err)
	}
}

func TestHandleCallback_ExpiredState(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	// A state past its expiry, never physically deleted.
	st := &storage.AuthState{
		State:     "expired-state-value",
		UserID:    "user-1",
		Site:      pod.site(),
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-50 * time.Minute),
	}
	if err := store.PutAuthState(ctx, st); err != nil {
		t.Fatalf("PutAuthState failed: %v", err)
	}

	_, err := svc.HandleCallback(ctx, "expired-state-value", "validcode")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expired state should fail with ErrInvalidState, got %v", err)
	}
	if pod.exchanges != 0 {
		t.Error("no token exchange should happen for an expired state")
	}
}

func TestHandleCallback_UnknownState(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), Config{})

	_, err := svc.HandleCallback(context.Background(), "never-issued", "validcode")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("unknown state should fail with ErrInvalidState, got %v", err)
	}
}

func TestEnableFactPod_ReusesClientRegistration(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	if _, err := svc.EnableFactPod(ctx, "user-1", pod.site()); err != nil {
		t.Fatalf("first enable failed: %v", err)
	}
	if _, err := svc.EnableFactPod(ctx, "user-1", pod.site()); err != nil {
		t.Fatalf("second enable failed: %v", err)
	}

	if pod.registrations != 1 {
		t.Errorf("registration should happen once per (user, site), got %d", pod.registrations)
	}
}

func TestEnableFactPod_DiscoveryFailure(t *testing.T) {
	pod := newFakePod(t)
	pod.failDiscovery = true
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	_, err := svc.EnableFactPod(ctx, "user-1", pod.site())

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	var discErr *openid.DiscoveryError
	if !errors.As(err, &discErr) {
		t.Errorf("cause should be a DiscoveryError, got %v", err)
	}

	// Nothing was persisted for the failed flow.
	if _, err := store.GetFactPodConfig(ctx, pod.site()); !errors.Is(err, storage.ErrFactPodConfigNotFound) {
		t.Error("no fact pod config should be created when discovery fails")
	}
	if _, err := store.GetClientConfig(ctx, "user-1", pod.site()); !errors.Is(err, storage.ErrClientConfigNotFound) {
		t.Error("no client config should be created when discovery fails")
	}
}

func TestEnableFactPod_StateConflictRetry(t *testing.T) {
	pod := newFakePod(t)
	repo := mock.NewMockRepository()

	conflicts := 0
	repo.PutAuthStateFunc = func(ctx context.Context, st *storage.AuthState) error {
		conflicts++
		return storage.NewRepositoryError("put", "auth_state", storage.ErrStateConflict)
	}

	svc := newTestService(t, repo, Config{})

	_, err := svc.EnableFactPod(context.Background(), "user-1", pod.site())

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError after exhausted retries, got %v", err)
	}
	if !errors.Is(err, storage.ErrStateConflict) {
		t.Errorf("cause should be the conflict sentinel, got %v", err)
	}
	if conflicts != DefaultStateAttempts {
		t.Errorf("expected %d insert attempts, got %d", DefaultStateAttempts, conflicts)
	}
}

func TestHandleCallback_TokenExchangeFailure(t *testing.T) {
	pod := newFakePod(t)
	pod.failExchange = true
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	res, err := svc.EnableFactPod(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("EnableFactPod failed: %v", err)
	}
	state := stateFromAuthURL(t, res.AuthorizationURL)

	_, err = svc.HandleCallback(ctx, state, "validcode")

	var exchErr *openid.TokenExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("expected TokenExchangeError cause, got %v", err)
	}
	if exchErr.ErrorCode != "invalid_grant" {
		t.Errorf("expected provider error code, got %q", exchErr.ErrorCode)
	}

	cfg, err := store.GetFactPodConfig(ctx, pod.site())
	if err != nil {
		t.Fatalf("GetFactPodConfig failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("pod must not be enabled when the exchange fails")
	}
}

func TestDisableFactPod(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	res, err := svc.EnableFactPod(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("EnableFactPod failed: %v", err)
	}
	if _, err := svc.HandleCallback(ctx, stateFromAuthURL(t, res.AuthorizationURL), "validcode"); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	if err := svc.DisableFactPod(ctx, pod.site()); err != nil {
		t.Fatalf("DisableFactPod failed: %v", err)
	}

	cfg, err := svc.GetFactPodConfig(ctx, pod.site())
	if err != nil {
		t.Fatalf("GetFactPodConfig failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("pod should be disabled")
	}

	// Re-enable must not re-register: the client registration is retained.
	if _, err := store.GetClientConfig(ctx, "user-1", pod.site()); err != nil {
		t.Errorf("client config should survive a disable: %v", err)
	}
	if _, err := svc.EnableFactPod(ctx, "user-1", pod.site()); err != nil {
		t.Fatalf("re-enable failed: %v", err)
	}
	if pod.registrations != 1 {
		t.Errorf("re-enable should not re-register, got %d registrations", pod.registrations)
	}
}

func TestDisableFactPod_UnknownSite(t *testing.T) {
	svc := newTestService(t, newMemoryStore(t), Config{})

	err := svc.DisableFactPod(context.Background(), "unknown.example")

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !errors.Is(err, storage.ErrFactPodConfigNotFound) {
		t.Errorf("cause should be the not-found sentinel, got %v", err)
	}
}

func TestListCategories_WalksAllPages(t *testing.T) {
	store := newMemoryStore(t)
	var seed []storage.Category
	for i := 0; i < 12; i++ {
		seed = append(seed, storage.Category{Name: fmt.Sprintf("cat-%02d", i)})
	}
	store.SetCategories(seed)
	store.SetPageSize(5)

	svc := newTestService(t, store, Config{})
	ctx := context.Background()

	seen := make(map[string]bool)
	token := ""
	for {
		page, err := svc.ListCategories(ctx, token)
		if err != nil {
			t.Fatalf("ListCategories failed: %v", err)
		}
		for _, c := range page.Items {
			if seen[c.Name] {
				t.Errorf("category %s returned twice", c.Name)
			}
			seen[c.Name] = true
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if len(seen) != 12 {
		t.Errorf("expected all 12 categories exactly once, got %d", len(seen))
	}
}

func TestRegistrationRateLimit(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{
		RateLimit: RateLimitConfig{
			RegistrationsPerInterval: 1,
			Interval:                 time.Hour,
			Burst:                    1,
		},
	})
	ctx := context.Background()

	// Different users, same site: each needs its own registration.
	if _, err := svc.EnableFactPod(ctx, "user-1", pod.site()); err != nil {
		t.Fatalf("first enable failed: %v", err)
	}

	_, err := svc.EnableFactPod(ctx, "user-2", pod.site())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected throttled ServiceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("error should mention the rate limit: %v", err)
	}
	if pod.registrations != 1 {
		t.Errorf("second registration should have been throttled, got %d", pod.registrations)
	}
}

func TestClientSecretEncryptedAtRest(t *testing.T) {
	pod := newFakePod(t)
	store := newMemoryStore(t)
	svc := newTestService(t, store, Config{
		Security: SecurityConfig{
			EncryptionPassphrase: "correct horse battery staple",
			EncryptionSalt:       "gateway-test",
		},
	})
	ctx := context.Background()

	res, err := svc.EnableFactPod(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("EnableFactPod failed: %v", err)
	}

	stored, err := store.GetClientConfig(ctx, "user-1", pod.site())
	if err != nil {
		t.Fatalf("GetClientConfig failed: %v", err)
	}
	if stored.ClientSecret == "pod-secret" {
		t.Error("client secret should not be stored in plaintext")
	}

	// The flow still completes: the secret decrypts for the exchange.
	if _, err := svc.HandleCallback(ctx, stateFromAuthURL(t, res.AuthorizationURL), "validcode"); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if got := pod.lastTokenForm.Get("client_secret"); got != "pod-secret" {
		t.Errorf("decrypted secret should reach the provider, got %q", got)
	}
}
