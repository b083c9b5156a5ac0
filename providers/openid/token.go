package openid

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ExchangeCode exchanges an authorization code for tokens at the provider's
// token endpoint. Client credentials are sent in the request body
// (client_secret_post), matching how the client was registered.
//
// Provider-side failures surface as a TokenExchangeError carrying the OAuth
// error code and description when the provider returned them.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint, clientID, clientSecret, redirectURL, code string) (*oauth2.Token, error) {
	if err := c.validateURL("token_endpoint", tokenEndpoint); err != nil {
		return nil, &TokenExchangeError{Err: err}
	}
	if code == "" {
		return nil, &TokenExchangeError{Err: errors.New("authorization code is required")}
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// Route the exchange through our HTTP client so timeouts and transport
	// settings apply to the token request as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			statusCode := 0
			if retrieveErr.Response != nil {
				statusCode = retrieveErr.Response.StatusCode
			}
			return nil, &TokenExchangeError{
				StatusCode:       statusCode,
				ErrorCode:        retrieveErr.ErrorCode,
				ErrorDescription: retrieveErr.ErrorDescription,
				Err:              err,
			}
		}
		return nil, &TokenExchangeError{Err: err}
	}

	c.logger.Debug("Authorization code exchanged",
		"token_endpoint", tokenEndpoint,
		"token_type", token.TokenType,
		"has_refresh_token", token.RefreshToken != "")

	return token, nil
}
