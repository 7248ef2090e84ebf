package rest

import (
	"net/url"
	"strings"

	"restify/internal/common/errors"
)

// URLBuilder turns a request into an absolute URL.
type URLBuilder interface {
	Build(req Request) (string, error)
}

// DefaultURLBuilder joins a base URL with the request path and merges query parameters.
// DefaultQuery holds parameters sent with every request, such as an API key.
type DefaultURLBuilder struct {
	BaseURL      string
	DefaultQuery url.Values
}

// NewURLBuilder creates a builder for baseURL.
func NewURLBuilder(baseURL string) *DefaultURLBuilder {
	return &DefaultURLBuilder{BaseURL: baseURL, DefaultQuery: url.Values{}}
}

// WithAPIKey sends key as the "key" query parameter. An empty key is ignored.
func (b *DefaultURLBuilder) WithAPIKey(key string) *DefaultURLBuilder {
	if key != "" {
		b.DefaultQuery.Set("key", key)
	}
	return b
}

// Build returns the absolute URL for req. An absolute request path replaces the base URL.
func (b *DefaultURLBuilder) Build(req Request) (string, error) {
	path := req.Path()

	var target *url.URL
	ref, err := url.Parse(path)
	if err != nil {
		return "", errors.ValidationError("invalid request path").WithCause(err).WithContext("path", path)
	}

	if ref.IsAbs() {
		target = ref
	} else {
		if b.BaseURL == "" {
			return "", errors.ConfigError("base URL is required for relative request paths").WithContext("path", path)
		}
		base, err := url.Parse(strings.TrimRight(b.BaseURL, "/") + "/")
		if err != nil {
			return "", errors.ConfigError("invalid base URL").WithCause(err)
		}
		target = base.ResolveReference(&url.URL{Path: strings.TrimLeft(ref.Path, "/"), RawQuery: ref.RawQuery})
	}

	query := target.Query()
	for key, values := range b.DefaultQuery {
		if _, set := query[key]; !set {
			query[key] = append([]string(nil), values...)
		}
	}
	if qr, ok := req.(QueryRequest); ok {
		for key, values := range qr.QueryParams() {
			query[key] = append([]string(nil), values...)
		}
	}
	target.RawQuery = query.Encode()

	return target.String(), nil
}
