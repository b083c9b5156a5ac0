package openid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxRegistrationResponseSize bounds the registration response body (64KB).
// Providers are untrusted; an oversized body is an error, not a stream.
const maxRegistrationResponseSize = 64 * 1024

// RegistrationRequest is the dynamic client registration request body
// (RFC 7591 subset).
type RegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegistrationResponse is the provider's registration response. Providers
// may include fields beyond this subset; they are ignored.
type RegistrationResponse struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt      int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at,omitempty"`
	RedirectURIs          []string `json:"redirect_uris,omitempty"`
}

// RegisterClient performs dynamic client registration at the given endpoint.
// The response must carry a client_id; anything else is a RegistrationError.
func (c *Client) RegisterClient(ctx context.Context, endpoint string, req *RegistrationRequest) (*RegistrationResponse, error) {
	if err := c.validateURL("registration_endpoint", endpoint); err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, Err: err}
	}
	if req == nil || len(req.RedirectURIs) == 0 {
		return nil, &RegistrationError{Endpoint: endpoint, Err: fmt.Errorf("at least one redirect URI is required")}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, Err: fmt.Errorf("failed to marshal registration request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, Err: fmt.Errorf("failed to create registration request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Registering OAuth client", "endpoint", endpoint, "client_name", req.ClientName)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistrationResponseSize))
	if err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read registration response: %w", err)}
	}

	// RFC 7591 says 201, but providers answer 200 often enough to accept it.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &RegistrationError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected registration response"),
		}
	}

	var reg RegistrationResponse
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, &RegistrationError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode registration response: %w", err)}
	}

	if reg.ClientID == "" {
		return nil, &RegistrationError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("registration response missing client_id")}
	}

	c.logger.Info("OAuth client registered",
		"endpoint", endpoint,
		"client_id", reg.ClientID)

	return &reg, nil
}
