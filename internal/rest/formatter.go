package rest

import (
	"encoding/json"
)

// DataFormatter encodes request payloads and decodes response bodies.
type DataFormatter interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONFormatter is the default DataFormatter.
type JSONFormatter struct{}

func (JSONFormatter) ContentType() string {
	return "application/json"
}

func (JSONFormatter) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONFormatter) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
