package rest

import (
	"reflect"
)

// RawResponse receives the undecoded response when passed as the output of Process.
type RawResponse struct {
	StatusCode int
	Headers    Headers
	Body       []byte
}

// ResponseHeaderMapper is implemented by response types that read response headers themselves.
type ResponseHeaderMapper interface {
	MapHeaders(headers Headers)
}

// MapResponseHeaders delivers headers to out. Types implementing
// ResponseHeaderMapper receive them directly. Otherwise string fields tagged
// `header:"Name"` are set from the matching header when it is present and non-empty.
func MapResponseHeaders(out any, headers Headers) {
	if out == nil {
		return
	}
	if mapper, ok := out.(ResponseHeaderMapper); ok {
		mapper.MapHeaders(headers)
		return
	}

	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, ok := field.Tag.Lookup("header")
		if !ok || field.Type.Kind() != reflect.String || !v.Field(i).CanSet() {
			continue
		}
		if name == "" || name == "-" {
			name = field.Name
		}
		if value, found := headers.Get(name); found && value != "" {
			v.Field(i).SetString(value)
		}
	}
}
