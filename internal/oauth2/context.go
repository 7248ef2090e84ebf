package oauth2

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"restify/internal/common/errors"
	"restify/internal/common/logging"
	"restify/internal/rest"
)

// NeedsAuthorization is implemented by requests that must be sent with a bearer token.
// Requests that do not implement it are sent without authorization.
type NeedsAuthorization interface {
	NeededScopes() []string
}

// InsufficientAuthorizationError reports scopes a request needs but the context was not granted.
type InsufficientAuthorizationError struct {
	MissingScopes []string
	Request       any
}

func (e *InsufficientAuthorizationError) Error() string {
	return fmt.Sprintf("the authorization context needs grant on '%s' for request '%v'",
		strings.Join(e.MissingScopes, ", "), e.Request)
}

// Unwrap classifies the error as errors.ErrTypeInsufficientScope.
func (e *InsufficientAuthorizationError) Unwrap() error {
	return errors.InsufficientScopeError("missing scopes").
		WithContext("missing", strings.Join(e.MissingScopes, " "))
}

// Context tracks the authorization of one configured client against one authorization server.
//
// A Context starts unauthorized. StartAuthorization restores a stored State or
// runs the handler's grant flow; RevokeAuthorization and ClearAuthorization
// return it to unauthorized. Transitions are serialized, including the network
// calls they make, so concurrent callers observe them in call order.
type Context struct {
	config  *Config
	handler Handler
	store   Store
	tokens  *TokenClient
	locker  Locker
	shared  bool
	logger  logging.Logger

	mu    sync.Mutex
	state contextState
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithTokenClient sets the client used for revocation.
func WithTokenClient(tokens *TokenClient) ContextOption {
	return func(c *Context) {
		c.tokens = tokens
	}
}

// WithLocker makes grant flows hold a lock shared with other processes using
// the same store. A refresh then adopts a State another process stored meanwhile.
func WithLocker(locker Locker) ContextOption {
	return func(c *Context) {
		c.locker = locker
		c.shared = locker != nil
	}
}

// WithContextLogger sets the logger.
func WithContextLogger(logger logging.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// NewContext creates an unauthorized context.
func NewContext(config *Config, handler Handler, store Store, opts ...ContextOption) (*Context, error) {
	if config == nil {
		return nil, errors.ValidationError("authorization config is required")
	}
	if handler == nil {
		return nil, errors.ValidationError("authorization handler is required")
	}
	if store == nil {
		return nil, errors.ValidationError("authorization store is required")
	}

	c := &Context{
		config:  config,
		handler: handler,
		store:   store,
		locker:  nopLocker{},
		logger:  logging.GetGlobalLogger(),
		state:   unauthorizedState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewTokenClient(nil, nil)
	}
	if c.locker == nil {
		c.locker = nopLocker{}
	}
	c.logger = c.logger.WithFields(logging.Field{Key: "authorization_context", Value: config.Name})

	return c, nil
}

// Name returns the configured context name.
func (c *Context) Name() string {
	return c.config.Name
}

// Config returns the static configuration.
func (c *Context) Config() *Config {
	return c.config
}

// IsAuthorized reports whether the context holds an authorization.
func (c *Context) IsAuthorized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase == phaseAuthorized
}

// StartAuthorization authorizes the context, preferring a stored unexpired State over a new grant.
// It fails with errors.ErrTypeInvalidOperation when the context is already authorized.
func (c *Context) StartAuthorization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase == phaseUnauthorized {
		unlock, err := c.locker.Lock(ctx, c.config.Name)
		if err != nil {
			return err
		}
		defer unlock()
	}

	state, restored, err := c.state.start(ctx, c)
	if err != nil {
		return err
	}
	c.state = authorizedState(state, c.config)

	c.logger.Info("Authorization started",
		logging.Field{Key: "restored", Value: restored},
		logging.Field{Key: "scopes", Value: state.Scopes},
		logging.Field{Key: "expires_at", Value: state.ExpiresAt},
	)
	return nil
}

// RestoreAuthorization authorizes the context from the store without running
// the grant flow. It reports whether a usable State was found.
func (c *Context) RestoreAuthorization(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.state.restore(ctx, c)
	if err != nil || state == nil {
		return false, err
	}
	c.state = authorizedState(state, c.config)

	c.logger.Info("Authorization restored", logging.Field{Key: "expires_at", Value: state.ExpiresAt})
	return true, nil
}

// EnsureAuthorization checks that req can be sent. Requests that do not
// implement NeedsAuthorization always pass. Otherwise the context must be
// authorized and granted every needed scope; a missing scope yields
// *InsufficientAuthorizationError.
func (c *Context) EnsureAuthorization(req any) error {
	if req == nil {
		return errors.ValidationError("request cannot be nil")
	}

	needs, ok := req.(NeedsAuthorization)
	if !ok {
		return nil
	}

	c.mu.Lock()
	missing, err := c.state.missingScopes(needs.NeededScopes())
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		return &InsufficientAuthorizationError{MissingScopes: missing, Request: req}
	}
	return nil
}

// RevokeAuthorization revokes the authorization at the authorization server,
// clears the store and returns the context to unauthorized.
func (c *Context) RevokeAuthorization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.state.revoke(ctx, c); err != nil {
		return err
	}
	c.state = unauthorizedState()

	c.logger.Info("Authorization revoked")
	return nil
}

// RefreshAuthorization renews the held State through the handler.
func (c *Context) RefreshAuthorization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase == phaseAuthorized {
		unlock, err := c.locker.Lock(ctx, c.config.Name)
		if err != nil {
			return err
		}
		defer unlock()

		if c.shared && c.adoptStored(ctx) {
			c.logger.Info("Authorization refreshed by another process",
				logging.Field{Key: "expires_at", Value: c.state.authorized.state.ExpiresAt},
			)
			return nil
		}
	}

	if err := c.state.refresh(ctx, c); err != nil {
		return err
	}

	c.logger.Info("Authorization refreshed",
		logging.Field{Key: "expires_at", Value: c.state.authorized.state.ExpiresAt},
	)
	return nil
}

// adoptStored replaces the live State with the stored one when the store holds
// a different, unexpired access token.
func (c *Context) adoptStored(ctx context.Context) bool {
	stored, ok, err := c.store.TryRestore(ctx)
	if err != nil {
		c.logger.Warn("Failed to read stored authorization before refresh", logging.Err(err))
		return false
	}
	live := c.state.authorized.state
	if !ok || stored == nil || stored.IsExpired() || stored.AccessToken == live.AccessToken {
		return false
	}
	live.Dispose()
	c.state.authorized.state = stored
	return true
}

// CreateBearer returns the Authorization header for the held access token.
func (c *Context) CreateBearer() (rest.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.createBearer()
}

// ClearAuthorization revokes the authorization if there is one, clears the
// store and returns the context to unauthorized. The transition happens even
// when revocation fails; the first error is returned.
func (c *Context) ClearAuthorization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clear(ctx)
}

func (c *Context) clear(ctx context.Context) error {
	var revokeErr error
	if c.state.phase == phaseAuthorized {
		revokeErr = c.state.revoke(ctx, c)
		if revokeErr != nil {
			c.logger.Warn("Revocation failed while clearing authorization", logging.Err(revokeErr))
			c.state.authorized.state.Dispose()
		}
	}
	c.state = unauthorizedState()

	clearErr := c.store.Clear(ctx)

	c.logger.Info("Authorization cleared")
	if revokeErr != nil {
		return revokeErr
	}
	return clearErr
}

// Close clears the authorization of an authorized context. Closing an
// unauthorized context does nothing, so repeated calls are safe.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.phase == phaseUnauthorized {
		return nil
	}
	return c.clear(ctx)
}

// Bind hands c to factory, producing a service that authorizes through c.
func Bind[S any](c *Context, factory func(*Context) S) S {
	return factory(c)
}
