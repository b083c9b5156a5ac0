// Package openid implements the OpenID Connect provider interactions needed
// to enable a fact pod: endpoint discovery, dynamic client registration, and
// authorization code exchange.
//
// The package speaks to arbitrary pod providers, so it trusts nothing about
// them: discovery documents are validated for mandatory endpoints and HTTPS,
// registration responses must carry a client_id, and token exchange failures
// surface the provider's OAuth error code via TokenExchangeError.
//
// Discovery documents are cached per issuer with a TTL. The Client is safe
// for concurrent use.
package openid
