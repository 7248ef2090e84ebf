package rest

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is a response with a non-success status code.
// Code and Description come from an OAuth2 style error body when one is present.
type HTTPError struct {
	StatusCode  int
	Status      string
	Body        []byte
	Code        string
	Description string
	Cause       error
}

// NewHTTPError creates an HTTPError for statusCode, decoding Code and
// Description from body when it holds an error document.
func NewHTTPError(statusCode int, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       body,
	}
	e.Code, e.Description = decodeErrorBody(body)
	return e
}

// decodeErrorBody understands {"error": "code", "error_description": "..."}
// and {"error": {"status": "...", "message": "..."}}.
func decodeErrorBody(body []byte) (code, description string) {
	var doc struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if len(body) == 0 || json.Unmarshal(body, &doc) != nil || len(doc.Error) == 0 {
		return "", ""
	}

	if err := json.Unmarshal(doc.Error, &code); err == nil {
		return code, doc.ErrorDescription
	}

	var nested struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(doc.Error, &nested); err == nil {
		return nested.Status, nested.Message
	}
	return "", ""
}

func (e *HTTPError) Error() string {
	parts := []string{fmt.Sprintf("HTTP %d %s", e.StatusCode, e.Status)}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code. The circuit breaker uses it to ignore client errors.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// AsHTTPError returns the HTTPError in err's chain, if any.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsStatus reports whether err's chain holds an HTTPError with status code.
func IsStatus(err error, code int) bool {
	httpErr, ok := AsHTTPError(err)
	return ok && httpErr.StatusCode == code
}
