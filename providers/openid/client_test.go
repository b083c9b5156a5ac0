package openid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient() *Client {
	return New(Config{AllowHTTP: true})
}

func discoveryHandler(requests *int, registrationEndpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		if requests != nil {
			*requests++
		}
		base := "http://" + r.Host
		cfg := map[string]any{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
			"token_endpoint":         base + "/token",
		}
		if registrationEndpoint != "" {
			cfg["registration_endpoint"] = base + registrationEndpoint
		}
		_ = json.NewEncoder(w).Encode(cfg)
	}
}

func TestDiscover(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(discoveryHandler(&requests, "/register"))
	defer srv.Close()

	c := newTestClient()

	cfg, err := c.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if cfg.AuthorizationEndpoint != srv.URL+"/authorize" {
		t.Errorf("wrong authorization endpoint: %s", cfg.AuthorizationEndpoint)
	}
	if cfg.TokenEndpoint != srv.URL+"/token" {
		t.Errorf("wrong token endpoint: %s", cfg.TokenEndpoint)
	}
	if cfg.RegistrationEndpoint != srv.URL+"/register" {
		t.Errorf("wrong registration endpoint: %s", cfg.RegistrationEndpoint)
	}

	// Second call must come from the cache.
	if _, err := c.Discover(context.Background(), srv.URL); err != nil {
		t.Fatalf("cached Discover failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 upstream request, got %d", requests)
	}

	c.ClearCache()
	if _, err := c.Discover(context.Background(), srv.URL); err != nil {
		t.Fatalf("Discover after cache clear failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("expected refetch after cache clear, got %d requests", requests)
	}
}

func TestDiscover_MissingTokenEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
		})
	}))
	defer srv.Close()

	_, err := newTestClient().Discover(context.Background(), srv.URL)

	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
}

func TestDiscover_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient().Discover(context.Background(), srv.URL)

	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %v", err)
	}
	if discErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", discErr.StatusCode)
	}
}

func TestDiscover_RequiresHTTPS(t *testing.T) {
	c := New(Config{}) // AllowHTTP not set

	_, err := c.Discover(context.Background(), "http://pod.example")

	var discErr *DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError for plain HTTP issuer, got %v", err)
	}
}

func TestRegisterClient(t *testing.T) {
	var gotReq RegistrationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_id":     "client-123",
			"client_secret": "secret-456",
		})
	}))
	defer srv.Close()

	resp, err := newTestClient().RegisterClient(context.Background(), srv.URL, &RegistrationRequest{
		ClientName:              "Gateway for pod.example",
		RedirectURIs:            []string{"https://gateway.example/oauth/callback"},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "client_secret_post",
		Scope:                   "facts:read facts:make-irrelevant",
	})
	if err != nil {
		t.Fatalf("RegisterClient failed: %v", err)
	}

	if resp.ClientID != "client-123" || resp.ClientSecret != "secret-456" {
		t.Errorf("unexpected registration response: %+v", resp)
	}
	if gotReq.TokenEndpointAuthMethod != "client_secret_post" {
		t.Errorf("auth method not sent: %+v", gotReq)
	}
	if len(gotReq.RedirectURIs) != 1 {
		t.Errorf("redirect URIs not sent: %+v", gotReq)
	}
}

func TestRegisterClient_MissingClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"client_secret": "orphan"})
	}))
	defer srv.Close()

	_, err := newTestClient().RegisterClient(context.Background(), srv.URL, &RegistrationRequest{
		ClientName:   "Gateway for pod.example",
		RedirectURIs: []string{"https://gateway.example/oauth/callback"},
	})

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
}

func TestRegisterClient_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_redirect_uri"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient().RegisterClient(context.Background(), srv.URL, &RegistrationRequest{
		ClientName:   "Gateway for pod.example",
		RedirectURIs: []string{"https://gateway.example/oauth/callback"},
	})

	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
	if regErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", regErr.StatusCode)
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		// client_secret_post: credentials in the body, not basic auth.
		if got := r.PostFormValue("client_secret"); got != "secret-456" {
			t.Errorf("client secret not in body: %q", got)
		}
		if got := r.PostFormValue("code"); got != "code-789" {
			t.Errorf("wrong code: %q", got)
		}
		if got := r.PostFormValue("grant_type"); got != "authorization_code" {
			t.Errorf("wrong grant type: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`)
	}))
	defer srv.Close()

	token, err := newTestClient().ExchangeCode(context.Background(),
		srv.URL+"/token", "client-123", "secret-456",
		"https://gateway.example/oauth/callback", "code-789")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	if token.AccessToken != "at-1" {
		t.Errorf("wrong access token: %s", token.AccessToken)
	}
	if token.RefreshToken != "rt-1" {
		t.Errorf("wrong refresh token: %s", token.RefreshToken)
	}
}

func TestExchangeCode_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"code expired"}`)
	}))
	defer srv.Close()

	_, err := newTestClient().ExchangeCode(context.Background(),
		srv.URL+"/token", "client-123", "secret-456",
		"https://gateway.example/oauth/callback", "code-789")

	var exchErr *TokenExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("expected TokenExchangeError, got %v", err)
	}
	if exchErr.ErrorCode != "invalid_grant" {
		t.Errorf("expected invalid_grant error code, got %q", exchErr.ErrorCode)
	}
	if exchErr.ErrorDescription != "code expired" {
		t.Errorf("expected error description, got %q", exchErr.ErrorDescription)
	}
}
