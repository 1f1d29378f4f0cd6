package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  config.LoggerConfig
		wantErr bool
	}{
		{
			name: "valid json config",
			config: config.LoggerConfig{
				Level:  "debug",
				Format: "json",
			},
			wantErr: false,
		},
		{
			name: "valid console config",
			config: config.LoggerConfig{
				Level:  "info",
				Format: "console",
			},
			wantErr: false,
		},
		{
			name: "invalid level",
			config: config.LoggerConfig{
				Level:  "invalid",
				Format: "json",
			},
			wantErr: true,
		},
		{
			name:    "empty config uses defaults",
			config:  config.LoggerConfig{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.Info("test info message")
	logger.Infow("test structured info", "key", "value", "number", 42)
	logger.Debugw("test structured debug", "key", "value")
	logger.Warnw("test structured warn", "key", "value")
	logger.Errorw("test structured error", "key", "value")

	logger.Goodw("found credentials", "username", "alice")
	logger.Badw("authentication failed", "username", "bob")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)

	logger.Goodw("discarded")
	logger.WithComponent("nop").Infow("discarded")
	logger.LogError(context.Background(), errors.New("boom"), "nop.test")
}

func TestWithFields(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	fieldLogger := logger.WithFields("component", "test", "version", "1.0")
	assert.NotNil(t, fieldLogger)
	fieldLogger.Info("test from field logger")

	assert.NotNil(t, logger.WithComponent("resolver"))
	assert.NotNil(t, logger.WithTarget("contoso.com"))
	assert.NotNil(t, logger.WithRunID("run-12345"))
	assert.NotNil(t, logger.WithUsername("alice@contoso.com"))
}

func TestStartAndFinishOperation(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx, span := logger.StartOperation(context.Background(), "owa.recon", "target", "contoso.com")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	logger.FinishOperation(ctx, span, "owa.recon", time.Now(), nil)

	ctx, span = logger.StartOperation(context.Background(), "owa.recon")
	logger.FinishOperation(ctx, span, "owa.recon", time.Now(), errors.New("no endpoint"))
}

func TestLogHTTPRequest(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	logger.LogHTTPRequest(context.Background(), "GET", "https://autodiscover.contoso.com/autodiscover/autodiscover.xml", 401, 15*time.Millisecond)
	logger.LogDuration(context.Background(), "owa.spray", time.Now().Add(-time.Second))
}

func TestStatusLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Goodw("Found credentials: alice:x")
	l.Badw("Authentication failed: bob:x (Invalid credentials)")
	l.Failw("Error during authentication", "error", "connection refused")

	entries := logs.All()
	require.Len(t, entries, 3)

	tests := []struct {
		level  zapcore.Level
		status string
	}{
		{zapcore.InfoLevel, StatusGood},
		{zapcore.InfoLevel, StatusBad},
		{zapcore.ErrorLevel, StatusBad},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.level, entries[i].Level, entries[i].Message)
		assert.Equal(t, tt.status, entries[i].ContextMap()["status"], entries[i].Message)
	}
	assert.Equal(t, "connection refused", entries[2].ContextMap()["error"])
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewNop()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestLoggerConcurrency(t *testing.T) {
	logger, err := New(config.LoggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Infow("concurrent log", "goroutine", id)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
