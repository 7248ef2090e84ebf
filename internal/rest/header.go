package rest

import (
	"net/http"
	"sort"
	"strings"
)

// Header is a single HTTP header.
type Header struct {
	Name  string
	Value string
}

func (h Header) String() string {
	return h.Name + ": " + h.Value
}

// Headers is a set of headers keyed by canonical name.
// Adding a header whose name is already present replaces it.
// The zero value is ready to use.
type Headers struct {
	m map[string]Header
}

// NewHeaders returns a collection holding headers, later entries replacing earlier ones.
func NewHeaders(headers ...Header) Headers {
	var h Headers
	for _, header := range headers {
		h.Add(header)
	}
	return h
}

// HeadersFrom converts net/http headers. Multiple values are joined with ", ".
func HeadersFrom(src http.Header) Headers {
	var h Headers
	for name, values := range src {
		h.Add(Header{Name: name, Value: strings.Join(values, ", ")})
	}
	return h
}

// Add inserts header, replacing any header of the same name.
func (h *Headers) Add(header Header) {
	if h.m == nil {
		h.m = make(map[string]Header)
	}
	header.Name = http.CanonicalHeaderKey(header.Name)
	h.m[header.Name] = header
}

// Merge adds every header of other.
func (h *Headers) Merge(other Headers) {
	for _, header := range other.All() {
		h.Add(header)
	}
}

// Remove deletes the header named name and reports whether it was present.
func (h *Headers) Remove(name string) bool {
	key := http.CanonicalHeaderKey(name)
	if _, ok := h.m[key]; !ok {
		return false
	}
	delete(h.m, key)
	return true
}

// Get returns the value of the header named name.
func (h Headers) Get(name string) (string, bool) {
	header, ok := h.m[http.CanonicalHeaderKey(name)]
	return header.Value, ok
}

// Len returns the number of headers.
func (h Headers) Len() int {
	return len(h.m)
}

// All returns the headers sorted by name.
func (h Headers) All() []Header {
	names := make([]string, 0, len(h.m))
	for name := range h.m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(names))
	for _, name := range names {
		out = append(out, h.m[name])
	}
	return out
}

// Apply sets every header on dst, overwriting existing values.
func (h Headers) Apply(dst http.Header) {
	for _, header := range h.m {
		dst.Set(header.Name, header.Value)
	}
}
