package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerConfig(t *testing.T) {
	config := LoggerConfig{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"stdout", "stderr"},
	}

	assert.Equal(t, "debug", config.Level)
	assert.Equal(t, "json", config.Format)
	assert.Contains(t, config.OutputPaths, "stdout")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logger.Level)
	assert.Equal(t, "console", config.Logger.Format)
	assert.Equal(t, []string{"stderr"}, config.Logger.OutputPaths)
	assert.True(t, config.HTTP.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, config.HTTP.Timeout)
	assert.Empty(t, config.HTTP.Proxy)
	assert.Equal(t, "owa_valid_accounts.txt", config.Spray.OutputFile)
	assert.False(t, config.Spray.ForceO365)
	assert.False(t, config.DNS.Enabled)
	assert.NotEmpty(t, config.DNS.Resolvers)
	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, "owaspray", config.Telemetry.ServiceName)
}

func TestSprayConfig(t *testing.T) {
	config := SprayConfig{
		ForceO365:     true,
		Delay:         2 * time.Second,
		Attempts:      3,
		Interval:      30 * time.Minute,
		StopOnSuccess: true,
		OutputFile:    "valid.txt",
	}

	assert.True(t, config.ForceO365)
	assert.Equal(t, 2*time.Second, config.Delay)
	assert.Equal(t, 3, config.Attempts)
	assert.Equal(t, 30*time.Minute, config.Interval)
	assert.Equal(t, "valid.txt", config.OutputFile)
}

func TestHTTPConfig(t *testing.T) {
	config := HTTPConfig{
		Proxy:              "socks5://127.0.0.1:1080",
		Timeout:            10 * time.Second,
		InsecureSkipVerify: true,
	}

	assert.Equal(t, "socks5://127.0.0.1:1080", config.Proxy)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.True(t, config.InsecureSkipVerify)
}
