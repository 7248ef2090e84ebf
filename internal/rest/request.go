package rest

import (
	"net/http"
	"net/url"
)

// Request is the minimum a typed request provides: the verb and the path
// relative to the service base URL.
type Request interface {
	Method() string
	Path() string
}

// QueryRequest is implemented by requests that carry query parameters.
type QueryRequest interface {
	QueryParams() url.Values
}

// BodyRequest is implemented by requests that send a payload.
// The payload is ignored for GET and HEAD.
type BodyRequest interface {
	Body() any
}

// HeaderRequest is implemented by requests that carry per-instance headers.
type HeaderRequest interface {
	RequestHeaders() Headers
}

// FixedHeaderRequest is implemented by request types that always send the same headers.
type FixedHeaderRequest interface {
	FixedHeaders() []Header
}

// BasicRequest is a general purpose Request for callers that do not need a dedicated type.
type BasicRequest struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers Headers
	scopes  []string
}

// NewRequest creates a request for method and path.
func NewRequest(method, path string) *BasicRequest {
	return &BasicRequest{method: method, path: path, query: url.Values{}}
}

// Get creates a GET request for path.
func Get(path string) *BasicRequest {
	return NewRequest(http.MethodGet, path)
}

// WithQuery adds a query parameter.
func (r *BasicRequest) WithQuery(key, value string) *BasicRequest {
	r.query.Add(key, value)
	return r
}

// WithBody sets the payload.
func (r *BasicRequest) WithBody(body any) *BasicRequest {
	r.body = body
	return r
}

// WithHeader adds a header.
func (r *BasicRequest) WithHeader(name, value string) *BasicRequest {
	r.headers.Add(Header{Name: name, Value: value})
	return r
}

// WithScopes declares the scopes the request needs.
func (r *BasicRequest) WithScopes(scopes ...string) *BasicRequest {
	r.scopes = append(r.scopes, scopes...)
	return r
}

func (r *BasicRequest) Method() string          { return r.method }
func (r *BasicRequest) Path() string            { return r.path }
func (r *BasicRequest) QueryParams() url.Values { return r.query }
func (r *BasicRequest) Body() any               { return r.body }
func (r *BasicRequest) RequestHeaders() Headers { return r.headers }

// NeededScopes returns the declared scopes. A BasicRequest built without
// scopes still opts into authorization with an empty requirement.
func (r *BasicRequest) NeededScopes() []string { return r.scopes }

func (r *BasicRequest) String() string {
	return r.method + " " + r.path
}
