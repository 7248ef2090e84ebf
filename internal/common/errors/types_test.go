package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeInvalidOperation,
				Message: "already authorized",
			},
			want: "invalid_operation: already authorized",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeUpstream,
				Message: "revocation failed",
				Code:    "server_error",
			},
			want: "upstream: revocation failed: code=server_error",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeConnection,
				Message: "token request failed",
				Cause:   errors.New("network timeout"),
			},
			want: "connection: token request failed: cause=network timeout",
		},
		{
			name: "error with context is rendered in key order",
			appError: &AppError{
				Type:    ErrTypeInsufficientScope,
				Message: "missing scopes",
				Context: map[string]interface{}{
					"request": "ListFiles",
					"missing": "drive.read",
				},
			},
			want: "insufficient_scope: missing scopes: context={missing=drive.read, request=ListFiles}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appError := InternalError("wrapper error", cause)

	if appError.Unwrap() != cause {
		t.Errorf("AppError.Unwrap() = %v, want %v", appError.Unwrap(), cause)
	}

	if ConfigError("no cause").Unwrap() != nil {
		t.Error("AppError.Unwrap() without cause should be nil")
	}
}

func TestAppError_Builders(t *testing.T) {
	cause := errors.New("boom")
	appError := UpstreamError("token endpoint", nil).
		WithCode("invalid_grant").
		WithContext("status", 400).
		WithCause(cause)

	if appError.Code != "invalid_grant" {
		t.Errorf("Code = %v, want invalid_grant", appError.Code)
	}
	if appError.Context["status"] != 400 {
		t.Errorf("Context[status] = %v, want 400", appError.Context["status"])
	}
	if !errors.Is(appError, cause) {
		t.Error("WithCause should make the cause reachable through errors.Is")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		errType ErrorType
		message string
	}{
		{"validation", ValidationError("client_id is required"), ErrTypeValidation, "client_id is required"},
		{"config", ConfigError("bad config"), ErrTypeConfig, "bad config"},
		{"auth", AuthError("denied"), ErrTypeAuth, "denied"},
		{"not found", NotFoundError("context default"), ErrTypeNotFound, "context default not found"},
		{"timeout", TimeoutError("token request"), ErrTypeTimeout, "timeout during token request"},
		{"invalid operation", InvalidOperationError("not authorized"), ErrTypeInvalidOperation, "not authorized"},
		{"insufficient scope", InsufficientScopeError("missing b"), ErrTypeInsufficientScope, "missing b"},
		{"upstream", UpstreamError("status 500", nil), ErrTypeUpstream, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.errType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.errType)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %v, want %v", tt.err.Message, tt.message)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{
			name:    "matching type",
			err:     InvalidOperationError("test"),
			errType: ErrTypeInvalidOperation,
			want:    true,
		},
		{
			name:    "non-matching type",
			err:     ConfigError("test"),
			errType: ErrTypeAuth,
			want:    false,
		},
		{
			name:    "wrapped with fmt",
			err:     fmt.Errorf("start: %w", InvalidOperationError("test")),
			errType: ErrTypeInvalidOperation,
			want:    true,
		},
		{
			name:    "type found further down the cause chain",
			err:     InternalError("outer", ConnectionError("inner", nil)),
			errType: ErrTypeConnection,
			want:    true,
		},
		{
			name:    "non-app error",
			err:     errors.New("regular error"),
			errType: ErrTypeConfig,
			want:    false,
		},
		{
			name:    "nil error",
			err:     nil,
			errType: ErrTypeConfig,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsType(tt.err, tt.errType)
			if got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"app error", ConfigError("test"), ErrTypeConfig},
		{"wrapped app error", fmt.Errorf("x: %w", UpstreamError("y", nil)), ErrTypeUpstream},
		{"regular error", errors.New("regular error"), ErrTypeInternal},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetType(tt.err)
			if got != tt.want {
				t.Errorf("GetType() = %v, want %v", got, tt.want)
			}
		})
	}
}
