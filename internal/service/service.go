package service

import (
	"context"

	"restify/internal/common/errors"
	"restify/internal/rest"
)

// PreProcessFunc may rewrite a request before it is executed.
type PreProcessFunc func(ctx context.Context, req rest.Request) (rest.Request, error)

// PostProcessFunc inspects or adjusts a decoded response.
type PostProcessFunc func(ctx context.Context, req rest.Request, out any) error

// Service is the base for API clients: it executes requests through a
// strategy with optional hooks around each call.
type Service struct {
	strategy    Strategy
	preProcess  []PreProcessFunc
	postProcess []PostProcessFunc
}

// Option configures a Service.
type Option func(*Service)

// WithPreProcess appends a pre-processing hook. Hooks run in order.
func WithPreProcess(hook PreProcessFunc) Option {
	return func(s *Service) {
		s.preProcess = append(s.preProcess, hook)
	}
}

// WithPostProcess appends a post-processing hook. Hooks run in order.
func WithPostProcess(hook PostProcessFunc) Option {
	return func(s *Service) {
		s.postProcess = append(s.postProcess, hook)
	}
}

// New creates a Service executing requests with strategy.
func New(strategy Strategy, opts ...Option) *Service {
	s := &Service{strategy: strategy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strategy returns the execution strategy.
func (s *Service) Strategy() Strategy {
	return s.strategy
}

// Process runs the pre hooks, executes the request and runs the post hooks.
func (s *Service) Process(ctx context.Context, req rest.Request, out any) error {
	if req == nil {
		return errors.ValidationError("request cannot be nil")
	}

	for _, hook := range s.preProcess {
		next, err := hook(ctx, req)
		if err != nil {
			return err
		}
		if next != nil {
			req = next
		}
	}

	if err := s.strategy.Execute(ctx, req, out); err != nil {
		return err
	}

	for _, hook := range s.postProcess {
		if err := hook(ctx, req, out); err != nil {
			return err
		}
	}
	return nil
}

// Execute lets a Service act as the Strategy of another Service.
func (s *Service) Execute(ctx context.Context, req rest.Request, out any) error {
	return s.Process(ctx, req, out)
}
