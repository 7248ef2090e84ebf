package oauth2

import (
	"context"
	"net/url"
	"strings"
)

// ClientCredentialsHandler authorizes the client itself with the client_credentials grant.
// The grant issues no refresh token, so refreshing runs the grant again.
type ClientCredentialsHandler struct {
	*RefreshingHandler
	config *Config
	tokens *TokenClient
}

// NewClientCredentialsHandler creates a client credentials handler.
func NewClientCredentialsHandler(config *Config, tokens *TokenClient) *ClientCredentialsHandler {
	h := &ClientCredentialsHandler{config: config, tokens: tokens}
	h.RefreshingHandler = NewRefreshingHandler(config, tokens, h.requestToken)
	return h
}

func (h *ClientCredentialsHandler) requestToken(ctx context.Context) (*State, error) {
	scopes := h.config.GrantedScopes()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", h.config.ClientID)
	form.Set("client_secret", h.config.ClientSecret)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	return h.tokens.RequestToken(ctx, h.config.TokenURL, form, scopes)
}
