// Package rest maps typed requests onto HTTP calls: URL building, declarative
// headers, payload encoding, error mapping and response decoding.
package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"restify/internal/circuitbreaker"
	"restify/internal/common/errors"
	"restify/internal/common/logging"
)

// Processor sends a request and decodes the response into out.
type Processor interface {
	Process(ctx context.Context, req Request, out any) error
}

// HTTPProcessor is the net/http backed Processor.
type HTTPProcessor struct {
	client    *http.Client
	urls      URLBuilder
	headers   *HeaderFactory
	formatter DataFormatter
	breaker   *circuitbreaker.GoBreakerAdapter
	logger    logging.Logger
}

// ProcessorOption configures an HTTPProcessor.
type ProcessorOption func(*HTTPProcessor)

// WithHeaderFactory replaces the default header factory.
func WithHeaderFactory(factory *HeaderFactory) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.headers = factory
	}
}

// WithFormatter replaces the JSON formatter.
func WithFormatter(formatter DataFormatter) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.formatter = formatter
	}
}

// WithBreaker guards every call with breaker. 5xx answers count as failures.
func WithBreaker(breaker *circuitbreaker.GoBreakerAdapter) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.breaker = breaker
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ProcessorOption {
	return func(p *HTTPProcessor) {
		p.logger = logger
	}
}

// NewHTTPProcessor creates a processor sending requests with client to URLs built by urls.
func NewHTTPProcessor(client *http.Client, urls URLBuilder, opts ...ProcessorOption) *HTTPProcessor {
	p := &HTTPProcessor{
		client:    client,
		urls:      urls,
		headers:   DefaultHeaderFactory(),
		formatter: JSONFormatter{},
		logger:    logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

// HeaderFactory returns the factory used to collect request headers.
func (p *HTTPProcessor) HeaderFactory() *HeaderFactory {
	return p.headers
}

// Process sends req and decodes the response into out.
//
// out may be nil to discard the body, a *RawResponse to receive it undecoded,
// or any value the formatter can decode into. Non-2xx answers yield *HTTPError.
func (p *HTTPProcessor) Process(ctx context.Context, req Request, out any) error {
	if req == nil {
		return errors.ValidationError("request cannot be nil")
	}

	httpReq, err := p.buildRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		statusCode int
		header     http.Header
		body       []byte
	)

	send := func() error {
		resp, err := p.client.Do(httpReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return errors.ConnectionError("request failed", err).WithContext("method", httpReq.Method)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.ConnectionError("failed to read response body", err)
		}
		statusCode, header = resp.StatusCode, resp.Header

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return NewHTTPError(resp.StatusCode, body)
		}
		return nil
	}

	if p.breaker != nil {
		err = p.breaker.Execute(ctx, send)
	} else {
		err = send()
	}

	p.logger.Debug("Request processed",
		logging.Field{Key: "method", Value: httpReq.Method},
		logging.Field{Key: "path", Value: httpReq.URL.Path},
		logging.Field{Key: "status", Value: statusCode},
		logging.Field{Key: "duration", Value: time.Since(start)},
	)

	if err != nil {
		return err
	}

	return p.decode(statusCode, header, body, out)
}

func (p *HTTPProcessor) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := p.urls.Build(req)
	if err != nil {
		return nil, err
	}

	method := req.Method()
	var payload io.Reader
	hasBody := false
	if method != http.MethodGet && method != http.MethodHead {
		if br, ok := req.(BodyRequest); ok && br.Body() != nil {
			data, err := p.formatter.Marshal(br.Body())
			if err != nil {
				return nil, errors.ValidationError("failed to encode request body").WithCause(err)
			}
			payload = bytes.NewReader(data)
			hasBody = true
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, errors.ValidationError("failed to create request").WithCause(err)
	}

	headers, err := p.headers.CreateHeaders(req)
	if err != nil {
		return nil, err
	}
	headers.Apply(httpReq.Header)

	if hasBody && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", p.formatter.ContentType())
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", p.formatter.ContentType())
	}

	return httpReq, nil
}

func (p *HTTPProcessor) decode(statusCode int, header http.Header, body []byte, out any) error {
	headers := HeadersFrom(header)

	switch target := out.(type) {
	case nil:
		return nil
	case *RawResponse:
		target.StatusCode = statusCode
		target.Headers = headers
		target.Body = body
		return nil
	}

	if len(bytes.TrimSpace(body)) > 0 && statusCode != http.StatusNoContent {
		if err := p.formatter.Unmarshal(body, out); err != nil {
			return errors.ValidationError("failed to decode response body").WithCause(err)
		}
	}

	MapResponseHeaders(out, headers)
	return nil
}
