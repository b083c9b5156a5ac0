package openid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Configuration represents a provider's OpenID configuration document as
// served from /.well-known/openid-configuration.
type Configuration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	JWKSUri                           string   `json:"jwks_uri,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// cachedConfiguration holds a configuration with its fetch timestamp.
type cachedConfiguration struct {
	config    *Configuration
	fetchedAt time.Time
}

// Discover fetches the OpenID configuration for an issuer, validating that
// the mandatory endpoints are present and HTTPS. Results are cached per
// issuer for the configured TTL.
func (c *Client) Discover(ctx context.Context, issuerURL string) (*Configuration, error) {
	if err := c.validateURL("issuer", issuerURL); err != nil {
		return nil, &DiscoveryError{Issuer: issuerURL, Err: err}
	}

	if cached, ok := c.cache.Load(issuerURL); ok {
		entry := cached.(*cachedConfiguration)
		if time.Since(entry.fetchedAt) < c.cacheTTL {
			c.logger.Debug("OpenID discovery cache hit", "issuer", issuerURL)
			return entry.config, nil
		}
		c.logger.Debug("OpenID discovery cache expired", "issuer", issuerURL)
	}

	discoveryURL := strings.TrimSuffix(issuerURL, "/") + "/.well-known/openid-configuration"

	c.logger.Debug("Fetching OpenID configuration", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuerURL, Err: fmt.Errorf("failed to create discovery request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuerURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{
			Issuer:     issuerURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected discovery response"),
		}
	}

	var config Configuration
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, &DiscoveryError{Issuer: issuerURL, Err: fmt.Errorf("failed to decode configuration: %w", err)}
	}

	if err := c.validateConfiguration(&config); err != nil {
		return nil, &DiscoveryError{Issuer: issuerURL, Err: err}
	}

	c.cache.Store(issuerURL, &cachedConfiguration{
		config:    &config,
		fetchedAt: time.Now(),
	})

	c.logger.Info("OpenID discovery successful",
		"issuer", issuerURL,
		"authorization_endpoint", config.AuthorizationEndpoint,
		"token_endpoint", config.TokenEndpoint,
		"registration_endpoint", config.RegistrationEndpoint)

	return &config, nil
}

// validateConfiguration checks the mandatory endpoints. A configuration
// without an authorization or token endpoint cannot drive the code flow and
// is rejected outright; the registration endpoint stays optional because a
// client config may already exist for the site.
func (c *Client) validateConfiguration(config *Configuration) error {
	required := []struct {
		name string
		url  string
	}{
		{"authorization_endpoint", config.AuthorizationEndpoint},
		{"token_endpoint", config.TokenEndpoint},
	}

	for _, endpoint := range required {
		if endpoint.url == "" {
			return fmt.Errorf("%s is required but missing", endpoint.name)
		}
		if err := c.validateURL(endpoint.name, endpoint.url); err != nil {
			return err
		}
	}

	optional := []struct {
		name string
		url  string
	}{
		{"registration_endpoint", config.RegistrationEndpoint},
		{"userinfo_endpoint", config.UserInfoEndpoint},
		{"jwks_uri", config.JWKSUri},
	}

	for _, endpoint := range optional {
		if endpoint.url == "" {
			continue
		}
		if err := c.validateURL(endpoint.name, endpoint.url); err != nil {
			return err
		}
	}

	return nil
}

// validateURL enforces HTTPS unless AllowHTTP was configured.
func (c *Client) validateURL(name, url string) error {
	if url == "" {
		return fmt.Errorf("%s is required", name)
	}
	if strings.HasPrefix(url, "https://") {
		return nil
	}
	if c.allowHTTP && strings.HasPrefix(url, "http://") {
		return nil
	}
	return fmt.Errorf("%s must use HTTPS: %s", name, url)
}

// ClearCache drops all cached configurations, forcing a refresh on the next
// Discover call.
func (c *Client) ClearCache() {
	count := 0
	c.cache.Range(func(key, value any) bool {
		c.cache.Delete(key)
		count++
		return true
	})
	c.logger.Debug("OpenID discovery cache cleared", "entries_removed", count)
}
