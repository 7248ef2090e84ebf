package logging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel("Error"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	config := envConfig()

	assert.Equal(t, InfoLevel, config.Level)
	assert.Nil(t, config.Output)
	assert.Equal(t, time.RFC3339, config.TimeFormat)

	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, WarnLevel, envConfig().Level)
}

func newBufferLogger(t *testing.T, level LogLevel) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{
		Level:      level,
		Output:     &buf,
		TimeFormat: "2006-01-02 15:04:05",
		Prefix:     "restify",
	})
	require.NoError(t, err)
	return logger, &buf
}

func TestZapAdapter_LogLevels(t *testing.T) {
	logger, buf := newBufferLogger(t, DebugLevel)

	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name: "debug log",
			logFunc: func() {
				logger.Debug("restoring state", Field{"context", "default"})
			},
			contains: []string{"DEBUG", "restoring state", "default", "restify"},
		},
		{
			name: "info log",
			logFunc: func() {
				logger.Info("authorized", Field{"expires_in", 3600})
			},
			contains: []string{"INFO", "authorized", "3600"},
		},
		{
			name: "warn log",
			logFunc: func() {
				logger.Warn("token expired", Field{"refreshable", true})
			},
			contains: []string{"WARN", "token expired", "true"},
		},
		{
			name: "error log",
			logFunc: func() {
				logger.Error("revocation failed", errors.New("status 500"), Field{"status", 500})
			},
			contains: []string{"ERROR", "revocation failed", "status 500", "500"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			output := buf.String()
			for _, contains := range tt.contains {
				assert.Contains(t, output, contains)
			}
		})
	}
}

func TestZapAdapter_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", errors.New("test error"))

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestZapAdapter_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel)

	scoped := logger.WithFields(Field{"token_url", "https://auth.example.com/token"})
	scoped.Info("refreshing")

	assert.Contains(t, buf.String(), "https://auth.example.com/token")
	assert.Same(t, logger, logger.WithFields())
}

func TestZapAdapter_WithContext(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, ContextNameKey, "drive")
	logger.WithContext(ctx).Info("executing request")

	output := buf.String()
	assert.Contains(t, output, "req-123")
	assert.Contains(t, output, "drive")

	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Debug("x")
		logger.Info("x")
		logger.Warn("x")
		logger.Error("x", errors.New("y"))
		logger.WithFields(Err(errors.New("z"))).Info("x")
	})
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger, buf := newBufferLogger(t, DebugLevel)
	SetGlobalLogger(logger)

	GetGlobalLogger().Debug("global debug", Field{"scopes", []string{"a", "b"}})
	Warn("global warn", Err(errors.New("boom")))
	WithContext(context.Background()).Info("with context")

	output := buf.String()
	for _, msg := range []string{"global debug", "global warn", "boom", "with context"} {
		assert.Contains(t, output, msg)
	}
	assert.NotPanics(t, MustSync)
}

func TestInitGlobalLogger_File(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	path := filepath.Join(t.TempDir(), "restify.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_LEVEL", "debug")

	closer, err := InitGlobalLogger()
	require.NoError(t, err)

	GetGlobalLogger().Info("written to file")
	MustSync()
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestInitGlobalLogger_BadFile(t *testing.T) {
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "missing", "dir", "restify.log"))

	_, err := InitGlobalLogger()
	assert.Error(t, err)
}
