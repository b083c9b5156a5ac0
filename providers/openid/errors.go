package openid

import "fmt"

// DiscoveryError indicates that fetching or validating a provider's
// discovery document failed. StatusCode is zero when the request never got a
// response.
type DiscoveryError struct {
	Issuer     string
	StatusCode int
	Err        error
}

func (e *DiscoveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("openid discovery for %s failed with status %d: %v", e.Issuer, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openid discovery for %s failed: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// RegistrationError indicates that dynamic client registration failed.
type RegistrationError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client registration at %s failed with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client registration at %s failed: %v", e.Endpoint, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// TokenExchangeError indicates that exchanging an authorization code for
// tokens failed. ErrorCode and ErrorDescription carry the provider's OAuth
// error fields when the provider returned a structured error response.
type TokenExchangeError struct {
	StatusCode       int
	ErrorCode        string
	ErrorDescription string
	Err              error
}

func (e *TokenExchangeError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("token exchange failed: %s (%s)", e.ErrorCode, e.ErrorDescription)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("token exchange failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}
