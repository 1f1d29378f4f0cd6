package config

import (
	"time"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Spray     SprayConfig     `mapstructure:"spray"`
	DNS       DNSConfig       `mapstructure:"dns"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// HTTPConfig is applied uniformly to every request the sprayer makes.
type HTTPConfig struct {
	Proxy              string        `mapstructure:"proxy"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure"`
	FollowRedirects    bool          `mapstructure:"follow_redirects"`
	UserAgent          string        `mapstructure:"user_agent"`
}

type SprayConfig struct {
	ForceO365     bool          `mapstructure:"force_o365"`
	Delay         time.Duration `mapstructure:"delay"`
	Attempts      int           `mapstructure:"attempts"`
	Interval      time.Duration `mapstructure:"interval"`
	StopOnSuccess bool          `mapstructure:"stop_on_success"`
	OutputFile    string        `mapstructure:"output_file"`
}

type DNSConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Resolvers []string      `mapstructure:"resolvers"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// DefaultConfig mirrors the viper defaults registered in cmd/root.go.
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		HTTP: HTTPConfig{
			Timeout:            30 * time.Second,
			InsecureSkipVerify: true,
			FollowRedirects:    true,
		},
		Spray: SprayConfig{
			Delay:      0,
			Attempts:   0,
			Interval:   0,
			OutputFile: "owa_valid_accounts.txt",
		},
		DNS: DNSConfig{
			Enabled:   false,
			Resolvers: []string{"8.8.8.8:53", "1.1.1.1:53"},
			Timeout:   2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			BurstSize:         1,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "owaspray",
			ExporterType: "otlp",
			Endpoint:     "localhost:4318",
			SampleRate:   1.0,
		},
	}
}
