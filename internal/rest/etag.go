package rest

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"restify/internal/common/cache"
)

// ErrNoETag is returned when a server answers 304 Not Modified to a request
// for which no cached response exists.
var ErrNoETag = stderrors.New("response does not provide a cached entity for ETag revalidation")

type cachedEntity struct {
	etag   string
	header http.Header
	body   []byte
}

// ETagTransport revalidates GET requests with If-None-Match and replays the
// cached body when the server answers 304 Not Modified. Entities expire after
// the cache TTL; an expired entity is fetched again without If-None-Match.
type ETagTransport struct {
	next  http.RoundTripper
	cache cache.Cache
	ttl   time.Duration
}

// ETagOption configures an ETagTransport.
type ETagOption func(*ETagTransport)

// WithETagCache stores entities in c instead of a private local cache.
func WithETagCache(c cache.Cache) ETagOption {
	return func(t *ETagTransport) {
		t.cache = c
	}
}

// WithETagTTL sets how long an entity is kept. The default is cache.DefaultTTL.
func WithETagTTL(ttl time.Duration) ETagOption {
	return func(t *ETagTransport) {
		t.ttl = ttl
	}
}

// NewETagTransport wraps next, or http.DefaultTransport when next is nil.
func NewETagTransport(next http.RoundTripper, opts ...ETagOption) *ETagTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	t := &ETagTransport{next: next}
	for _, opt := range opts {
		opt(t)
	}
	if t.ttl <= 0 {
		t.ttl = cache.DefaultTTL
	}
	if t.cache == nil {
		t.cache = cache.NewLocalCache(t.ttl, cache.DefaultCleanupInterval)
	}
	return t
}

func (t *ETagTransport) lookup(ctx context.Context, key string) (cachedEntity, bool) {
	value, ok := t.cache.Get(ctx, key)
	if !ok {
		return cachedEntity{}, false
	}
	entity, ok := value.(cachedEntity)
	return entity, ok
}

// RoundTrip implements http.RoundTripper.
func (t *ETagTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	key := req.URL.String()
	entity, cached := t.lookup(req.Context(), key)

	if cached && req.Header.Get("If-None-Match") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("If-None-Match", entity.etag)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		resp.Body.Close()
		if !cached {
			return nil, fmt.Errorf("%w: %s", ErrNoETag, key)
		}
		return replay(req, resp, entity), nil

	case resp.StatusCode == http.StatusOK && resp.Header.Get("ETag") != "":
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		entity := cachedEntity{etag: resp.Header.Get("ETag"), header: resp.Header.Clone(), body: body}
		if err := t.cache.Set(req.Context(), key, entity, t.ttl); err != nil {
			return nil, err
		}

		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	return resp, nil
}

func replay(req *http.Request, notModified *http.Response, entity cachedEntity) *http.Response {
	header := entity.header.Clone()
	for name, values := range notModified.Header {
		header[name] = values
	}
	header.Set("Content-Length", strconv.Itoa(len(entity.body)))

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         notModified.Proto,
		ProtoMajor:    notModified.ProtoMajor,
		ProtoMinor:    notModified.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entity.body)),
		ContentLength: int64(len(entity.body)),
		Request:       req,
	}
}

// Forget drops every cached entity.
func (t *ETagTransport) Forget(ctx context.Context) error {
	return t.cache.Clear(ctx)
}
