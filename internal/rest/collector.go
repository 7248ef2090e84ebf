package rest

import (
	"fmt"
	"reflect"
)

// HeaderCollector contributes headers for a request.
type HeaderCollector interface {
	CollectHeaders(req Request, collected *Headers) error
}

// HeaderCollectorFunc adapts a function to HeaderCollector.
type HeaderCollectorFunc func(req Request, collected *Headers) error

// CollectHeaders calls f.
func (f HeaderCollectorFunc) CollectHeaders(req Request, collected *Headers) error {
	return f(req, collected)
}

// DefaultHeaderCollector copies the request's own headers.
type DefaultHeaderCollector struct{}

func (DefaultHeaderCollector) CollectHeaders(req Request, collected *Headers) error {
	if hr, ok := req.(HeaderRequest); ok {
		collected.Merge(hr.RequestHeaders())
	}
	return nil
}

// FixedHeaderCollector copies the headers a request type always sends.
type FixedHeaderCollector struct{}

func (FixedHeaderCollector) CollectHeaders(req Request, collected *Headers) error {
	if fr, ok := req.(FixedHeaderRequest); ok {
		for _, header := range fr.FixedHeaders() {
			collected.Add(header)
		}
	}
	return nil
}

// MappedHeaderCollector sends string fields tagged `header:"Name"` as headers.
// Empty fields are skipped. A tag of "-" or an empty name uses the field name.
type MappedHeaderCollector struct{}

func (MappedHeaderCollector) CollectHeaders(req Request, collected *Headers) error {
	v := reflect.ValueOf(req)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, ok := field.Tag.Lookup("header")
		if !ok {
			continue
		}
		if field.Type.Kind() != reflect.String {
			return fmt.Errorf("header field %s.%s must be a string", t.Name(), field.Name)
		}
		value := v.Field(i).String()
		if value == "" {
			continue
		}
		if name == "" || name == "-" {
			name = field.Name
		}
		collected.Add(Header{Name: name, Value: value})
	}
	return nil
}

// StaticHeaderCollector adds the same headers to every request.
type StaticHeaderCollector []Header

func (s StaticHeaderCollector) CollectHeaders(_ Request, collected *Headers) error {
	for _, header := range s {
		collected.Add(header)
	}
	return nil
}

// HeaderFactory runs collectors in order. A later collector overrides headers of an earlier one.
type HeaderFactory struct {
	collectors []HeaderCollector
}

// NewHeaderFactory creates a factory running collectors in the given order.
func NewHeaderFactory(collectors ...HeaderCollector) *HeaderFactory {
	return &HeaderFactory{collectors: collectors}
}

// DefaultHeaderFactory collects fixed, mapped and per-request headers, in that order.
func DefaultHeaderFactory() *HeaderFactory {
	return NewHeaderFactory(FixedHeaderCollector{}, MappedHeaderCollector{}, DefaultHeaderCollector{})
}

// With returns a copy of the factory with collectors appended.
func (f *HeaderFactory) With(collectors ...HeaderCollector) *HeaderFactory {
	all := make([]HeaderCollector, 0, len(f.collectors)+len(collectors))
	all = append(all, f.collectors...)
	all = append(all, collectors...)
	return &HeaderFactory{collectors: all}
}

// CreateHeaders returns the headers for req. The first collector error aborts collection.
func (f *HeaderFactory) CreateHeaders(req Request) (Headers, error) {
	var collected Headers
	for _, collector := range f.collectors {
		if err := collector.CollectHeaders(req, &collected); err != nil {
			return Headers{}, err
		}
	}
	return collected, nil
}
