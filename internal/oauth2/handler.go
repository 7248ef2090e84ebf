package oauth2

import (
	"context"
	"net/url"

	"restify/internal/common/errors"
)

// Handler obtains and renews authorization for a context.
type Handler interface {
	// StartAuthorization runs the full grant flow.
	StartAuthorization(ctx context.Context) (*State, error)
	// RefreshAuthorization renews current, falling back to a full grant when it cannot be refreshed.
	RefreshAuthorization(ctx context.Context, current *State) (*State, error)
}

// StartFunc runs a grant flow.
type StartFunc func(ctx context.Context) (*State, error)

// RefreshingHandler adds refresh token handling to a grant flow.
type RefreshingHandler struct {
	config *Config
	tokens *TokenClient
	start  StartFunc
}

// NewRefreshingHandler creates a handler starting authorization with start.
func NewRefreshingHandler(config *Config, tokens *TokenClient, start StartFunc) *RefreshingHandler {
	return &RefreshingHandler{config: config, tokens: tokens, start: start}
}

// StartAuthorization runs the wrapped grant flow.
func (h *RefreshingHandler) StartAuthorization(ctx context.Context) (*State, error) {
	return h.start(ctx)
}

// RefreshAuthorization exchanges the refresh token of current for a new State.
// Without a refresh token the full grant flow runs instead. A response that
// does not rotate the refresh token keeps the current one.
func (h *RefreshingHandler) RefreshAuthorization(ctx context.Context, current *State) (*State, error) {
	if current == nil {
		return nil, errors.ValidationError("current state cannot be nil")
	}
	if !current.IsRefreshable() {
		return h.start(ctx)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	form.Set("client_id", h.config.ClientID)
	form.Set("client_secret", h.config.ClientSecret)

	state, err := h.tokens.RequestToken(ctx, h.config.TokenURL, form, h.config.GrantedScopes())
	if err != nil {
		return nil, err
	}
	if state.RefreshToken == "" {
		state.RefreshToken = current.RefreshToken
	}
	return state, nil
}

// NullHandler grants nothing. A context using it can never become authorized.
type NullHandler struct{}

func (NullHandler) StartAuthorization(context.Context) (*State, error) { return nil, nil }

func (NullHandler) RefreshAuthorization(context.Context, *State) (*State, error) { return nil, nil }
