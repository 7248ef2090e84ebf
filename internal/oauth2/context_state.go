package oauth2

import (
	"context"
	"fmt"

	"restify/internal/common/errors"
	"restify/internal/rest"
)

type phase int

const (
	phaseUnauthorized phase = iota
	phaseAuthorized
)

func (p phase) String() string {
	switch p {
	case phaseUnauthorized:
		return "unauthorized"
	case phaseAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// authorized is the payload of the authorized phase. It owns the live State.
type authorized struct {
	state  *State
	config *Config
}

// contextState is the state of an authorization context: either unauthorized
// or authorized with a live State. It is replaced wholesale on transition.
type contextState struct {
	phase      phase
	authorized *authorized
}

func unauthorizedState() contextState {
	return contextState{phase: phaseUnauthorized}
}

func authorizedState(state *State, config *Config) contextState {
	return contextState{
		phase:      phaseAuthorized,
		authorized: &authorized{state: state, config: config},
	}
}

func invalidPhase(p phase) string {
	return fmt.Sprintf("unknown authorization phase %v", p)
}

// start restores a usable State from the store or runs the handler.
func (s contextState) start(ctx context.Context, c *Context) (*State, bool, error) {
	switch s.phase {
	case phaseUnauthorized:
		restored, err := s.restore(ctx, c)
		if err != nil {
			return nil, false, err
		}
		if restored != nil {
			return restored, true, nil
		}

		state, err := c.handler.StartAuthorization(ctx)
		if err != nil {
			return nil, false, err
		}
		if state == nil {
			return nil, false, errors.AuthError("authorization handler granted no authorization")
		}
		if err := c.store.Store(ctx, state); err != nil {
			return nil, false, err
		}
		return state, false, nil
	case phaseAuthorized:
		return nil, false, errors.InvalidOperationError("the authorization context is already authorized")
	default:
		panic(invalidPhase(s.phase))
	}
}

// restore returns the stored State when it is still usable, nil otherwise.
func (s contextState) restore(ctx context.Context, c *Context) (*State, error) {
	switch s.phase {
	case phaseUnauthorized:
		restored, ok, err := c.store.TryRestore(ctx)
		if err != nil {
			return nil, err
		}
		if !ok || restored == nil || restored.IsExpired() {
			return nil, nil
		}
		return restored, nil
	case phaseAuthorized:
		return nil, errors.InvalidOperationError("the authorization context is already authorized")
	default:
		panic(invalidPhase(s.phase))
	}
}

// revoke revokes the live State at the revocation endpoint, scrubs it and clears the store.
func (s contextState) revoke(ctx context.Context, c *Context) error {
	switch s.phase {
	case phaseUnauthorized:
		return errors.InvalidOperationError("the authorization can not be revoked due the lack of authorization")
	case phaseAuthorized:
		if s.authorized.config.RevocationURL != "" {
			if err := c.tokens.Revoke(ctx, s.authorized.config.RevocationURL, s.authorized.state.AccessToken); err != nil {
				return err
			}
		}
		s.authorized.state.Dispose()
		return c.store.Clear(ctx)
	default:
		panic(invalidPhase(s.phase))
	}
}

func (s contextState) createBearer() (rest.Header, error) {
	switch s.phase {
	case phaseUnauthorized:
		return rest.Header{}, errors.InvalidOperationError("a bearer header can not be created due the lack of authorization")
	case phaseAuthorized:
		return rest.Header{Name: "Authorization", Value: "Bearer " + s.authorized.state.AccessToken}, nil
	default:
		panic(invalidPhase(s.phase))
	}
}

// refresh replaces the live State with the one the handler returns.
func (s contextState) refresh(ctx context.Context, c *Context) error {
	switch s.phase {
	case phaseUnauthorized:
		return errors.InvalidOperationError("the authorization can not be refreshed due the lack of authorization")
	case phaseAuthorized:
		state, err := c.handler.RefreshAuthorization(ctx, s.authorized.state)
		if err != nil {
			return err
		}
		if state == nil {
			return errors.AuthError("authorization handler granted no authorization")
		}
		if err := c.store.Store(ctx, state); err != nil {
			return err
		}
		s.authorized.state = state
		return nil
	default:
		panic(invalidPhase(s.phase))
	}
}

// missingScopes returns the required scopes the live State was not granted.
func (s contextState) missingScopes(required []string) ([]string, error) {
	switch s.phase {
	case phaseUnauthorized:
		return nil, errors.InvalidOperationError("the request needs authorization but the authorization context is not authorized")
	case phaseAuthorized:
		return s.authorized.state.HasScopes(required...), nil
	default:
		panic(invalidPhase(s.phase))
	}
}
