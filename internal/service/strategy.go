// Package service runs typed requests through execution strategies.
package service

import (
	"context"

	"restify/internal/rest"
)

// Strategy decides how a request is executed.
type Strategy interface {
	Execute(ctx context.Context, req rest.Request, out any) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, req rest.Request, out any) error

// Execute calls f.
func (f StrategyFunc) Execute(ctx context.Context, req rest.Request, out any) error {
	return f(ctx, req, out)
}

// DefaultStrategy hands the request straight to the processor.
type DefaultStrategy struct {
	processor rest.Processor
}

// NewDefaultStrategy creates a strategy that calls processor once.
func NewDefaultStrategy(processor rest.Processor) *DefaultStrategy {
	return &DefaultStrategy{processor: processor}
}

func (s *DefaultStrategy) Execute(ctx context.Context, req rest.Request, out any) error {
	return s.processor.Process(ctx, req, out)
}

// Execute runs req through s and returns the decoded response.
func Execute[T any](ctx context.Context, s Strategy, req rest.Request) (*T, error) {
	out := new(T)
	if err := s.Execute(ctx, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
