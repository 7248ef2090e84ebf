package oauth2

import (
	"context"
	"net/http"

	"restify/internal/common/logging"
	"restify/internal/rest"
)

// SelfAuthorizingStrategy authorizes the context on demand before sending a request.
type SelfAuthorizingStrategy struct {
	context   *Context
	processor rest.Processor
}

// NewSelfAuthorizingStrategy creates a strategy authorizing c before handing requests to processor.
func NewSelfAuthorizingStrategy(c *Context, processor rest.Processor) *SelfAuthorizingStrategy {
	return &SelfAuthorizingStrategy{context: c, processor: processor}
}

func (s *SelfAuthorizingStrategy) Execute(ctx context.Context, req rest.Request, out any) error {
	if err := preflight(ctx, s.context, req); err != nil {
		return err
	}
	return s.processor.Process(ctx, req, out)
}

// RetryingStrategy behaves like SelfAuthorizingStrategy and additionally
// re-authorizes once when the server answers 401 Unauthorized. A second 401,
// or any other failure, is returned unchanged.
type RetryingStrategy struct {
	context   *Context
	processor rest.Processor
	logger    logging.Logger
}

// NewRetryingStrategy creates a strategy authorizing c before handing requests to processor.
func NewRetryingStrategy(c *Context, processor rest.Processor) *RetryingStrategy {
	return &RetryingStrategy{context: c, processor: processor, logger: c.logger}
}

func (s *RetryingStrategy) Execute(ctx context.Context, req rest.Request, out any) error {
	if err := preflight(ctx, s.context, req); err != nil {
		return err
	}

	err := s.processor.Process(ctx, req, out)
	if !rest.IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	s.logger.Info("Request was rejected as unauthorized, authorizing again",
		logging.Field{Key: "method", Value: req.Method()},
		logging.Field{Key: "path", Value: req.Path()},
	)

	if err := s.context.RevokeAuthorization(ctx); err != nil {
		return err
	}
	if err := s.context.StartAuthorization(ctx); err != nil {
		return err
	}
	if err := s.context.EnsureAuthorization(req); err != nil {
		return err
	}

	return s.processor.Process(ctx, req, out)
}

func preflight(ctx context.Context, c *Context, req rest.Request) error {
	if !c.IsAuthorized() {
		if err := c.StartAuthorization(ctx); err != nil {
			return err
		}
	}
	return c.EnsureAuthorization(req)
}

// AuthorizingHeaderCollector adds the bearer header of a context to requests that need authorization.
type AuthorizingHeaderCollector struct {
	context *Context
}

// NewAuthorizingHeaderCollector creates a collector for c.
func NewAuthorizingHeaderCollector(c *Context) *AuthorizingHeaderCollector {
	return &AuthorizingHeaderCollector{context: c}
}

func (a *AuthorizingHeaderCollector) CollectHeaders(req rest.Request, collected *rest.Headers) error {
	if _, ok := req.(NeedsAuthorization); !ok {
		return nil
	}

	bearer, err := a.context.CreateBearer()
	if err != nil {
		return err
	}
	collected.Add(bearer)
	return nil
}
