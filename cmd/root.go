package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/config"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/results"
)

var (
	cfg      *config.Config
	log      *logger.Logger
	recorder telemetry.Recorder
)

var rootCmd = &cobra.Command{
	Use:   "owaspray",
	Short: "Password spraying against Exchange and Office 365 autodiscover",
	Long: `owaspray validates credentials against Exchange/Office 365 for authorized
penetration tests.

Given a domain it finds the autodiscover endpoint, works out whether
authentication is hosted on-premises (NTLM) or in Office 365 (basic auth),
pulls the internal NetBIOS domain from the NTLM challenge, and then tries
credentials. A full https:// URL may be given instead of a domain to skip
discovery.

COMMANDS:
  owaspray recon <domain|url>                     - Discover endpoint and tenancy
  owaspray spray <domain|url> -U users -P pwds    - Spray credentials

Valid credentials are appended to owa_valid_accounts.txt.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		recorder, err = telemetry.New(cmd.Context(), cfg.Telemetry)
		if err != nil {
			log.Warnw("Telemetry disabled", "error", err)
			recorder = telemetry.NewNoop()
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to flush telemetry: %v\n", err)
			}
		}
		if log != nil {
			// Sync errors on stdout/stderr are expected on Linux.
			if err := log.Sync(); err != nil {
				if err.Error() != "sync /dev/stdout: invalid argument" && err.Error() != "sync /dev/stderr: invalid argument" {
					fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
				}
			}
		}
	},
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Logging configuration
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (json, console)")
	viper.BindPFlag("logger.level", flags.Lookup("log-level"))
	viper.BindPFlag("logger.format", flags.Lookup("log-format"))

	// Transport
	flags.String("proxy", "", "proxy URL for every request (http://, https://, socks5://)")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Bool("insecure", true, "skip TLS certificate verification")
	flags.String("user-agent", "", "User-Agent header for every request")
	viper.BindPFlag("http.proxy", flags.Lookup("proxy"))
	viper.BindPFlag("http.timeout", flags.Lookup("timeout"))
	viper.BindPFlag("http.insecure", flags.Lookup("insecure"))
	viper.BindPFlag("http.user_agent", flags.Lookup("user-agent"))
	viper.BindEnv("http.proxy", "OWASPRAY_PROXY", "HTTPS_PROXY")

	flags.Bool("force-o365", false, "treat the target as Office 365 regardless of recon")
	viper.BindPFlag("spray.force_o365", flags.Lookup("force-o365"))

	// Rate limiting
	flags.Float64("rate-limit", 0, "maximum attempts per second (0 for unlimited)")
	flags.Int("rate-burst", 1, "rate limit burst size")
	viper.BindPFlag("rate_limit.requests_per_second", flags.Lookup("rate-limit"))
	viper.BindPFlag("rate_limit.burst_size", flags.Lookup("rate-burst"))

	// DNS recon
	flags.Bool("dns", false, "look up MX and autodiscover CNAME records during recon")
	flags.StringSlice("dns-resolvers", []string{"8.8.8.8:53", "1.1.1.1:53"}, "DNS resolvers for recon")
	viper.BindPFlag("dns.enabled", flags.Lookup("dns"))
	viper.BindPFlag("dns.resolvers", flags.Lookup("dns-resolvers"))

	// Telemetry
	flags.Bool("telemetry", false, "export traces and metrics over OTLP")
	flags.String("telemetry-endpoint", "localhost:4318", "OTLP HTTP endpoint")
	viper.BindPFlag("telemetry.enabled", flags.Lookup("telemetry"))
	viper.BindPFlag("telemetry.endpoint", flags.Lookup("telemetry-endpoint"))

	defaults := config.DefaultConfig()
	viper.SetDefault("logger.output_paths", defaults.Logger.OutputPaths)
	viper.SetDefault("http.follow_redirects", defaults.HTTP.FollowRedirects)
	viper.SetDefault("spray.output_file", defaults.Spray.OutputFile)
	viper.SetDefault("dns.timeout", defaults.DNS.Timeout)
	viper.SetDefault("telemetry.service_name", defaults.Telemetry.ServiceName)
	viper.SetDefault("telemetry.exporter_type", defaults.Telemetry.ExporterType)
	viper.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)
}

func initConfig() error {
	// No config files - flags and OWASPRAY_* env vars only
	viper.SetEnvPrefix("OWASPRAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg = config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Spray.OutputFile == "" {
		cfg.Spray.OutputFile = config.DefaultConfig().Spray.OutputFile
	}

	return nil
}

// openSprayer wires the configured transport, logger and telemetry into an
// owa.Sprayer and runs recon.
func openSprayer(ctx context.Context, target owa.Target, sink results.Sink, l *logger.Logger) (*owa.Sprayer, error) {
	factory, err := httpclient.NewFactory(httpclient.Config{
		Timeout:            cfg.HTTP.Timeout,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		Proxy:              cfg.HTTP.Proxy,
		FollowRedirects:    cfg.HTTP.FollowRedirects,
		MaxRedirects:       httpclient.DefaultConfig().MaxRedirects,
		UserAgent:          cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	opts := owa.Options{
		Target:     target,
		ForceCloud: cfg.Spray.ForceO365,
		HTTP:       factory,
		Sink:       sink,
		Logger:     l,
		Telemetry:  recorder,
	}
	if cfg.DNS.Enabled {
		opts.DNS = owa.NewDNSRecon(cfg.DNS.Resolvers, cfg.DNS.Timeout)
	}

	return owa.Open(ctx, opts)
}
