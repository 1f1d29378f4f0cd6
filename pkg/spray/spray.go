// Package spray drives an Authenticator over user and password lists while
// respecting lockout windows.
package spray

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
)

var ErrNothingToSpray = errors.New("no credentials to try")

// Authenticator tries a single credential.
type Authenticator interface {
	Authenticate(ctx context.Context, cred owa.Credential, opts owa.AttemptOptions) owa.Outcome
	Cloud() bool
}

// Plan describes one spray run.
type Plan struct {
	Users     []string
	Passwords []string
	// Pairs are tried after the user/password matrix.
	Pairs []owa.Credential

	Delay time.Duration
	Proxy string

	// Attempts passwords are tried per Interval. Zero disables the window.
	Attempts int
	Interval time.Duration

	StopOnSuccess bool

	Limiter   *ratelimit.Limiter
	Telemetry telemetry.Recorder
	Logger    *logger.Logger

	// OnAttempt is called after every attempt.
	OnAttempt func(cred owa.Credential, outcome owa.Outcome)
}

// Summary counts attempts by outcome.
type Summary struct {
	Attempts        int           `json:"attempts" yaml:"attempts"`
	Valid           int           `json:"valid" yaml:"valid"`
	ValidBlocked    int           `json:"valid_blocked" yaml:"valid_blocked"`
	Invalid         int           `json:"invalid" yaml:"invalid"`
	TransportErrors int           `json:"transport_errors" yaml:"transport_errors"`
	Skipped         int           `json:"skipped" yaml:"skipped"`
	Stopped         bool          `json:"stopped_on_success" yaml:"stopped_on_success"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Found is the number of credentials that authenticated.
func (s Summary) Found() int {
	return s.Valid + s.ValidBlocked
}

func (s *Summary) add(outcome owa.Outcome) {
	s.Attempts++
	switch outcome {
	case owa.Valid:
		s.Valid++
	case owa.ValidBlocked:
		s.ValidBlocked++
	case owa.TransportError:
		s.TransportErrors++
	default:
		s.Invalid++
	}
}

var errStop = errors.New("stop on success")

type runner struct {
	auth  Authenticator
	plan  Plan
	log   *logger.Logger
	found map[string]bool
	sum   Summary
}

// Run tries every password against every user, one password at a time, then
// the explicit pairs. Users that authenticate are not tried again. When ctx is
// cancelled the partial summary is returned with ctx.Err().
func Run(ctx context.Context, auth Authenticator, plan Plan) (Summary, error) {
	if (len(plan.Users) == 0 || len(plan.Passwords) == 0) && len(plan.Pairs) == 0 {
		return Summary{}, ErrNothingToSpray
	}
	if plan.Logger == nil {
		plan.Logger = logger.NewNop()
	}
	if plan.Telemetry == nil {
		plan.Telemetry = telemetry.NewNoop()
	}

	r := &runner{
		auth:  auth,
		plan:  plan,
		log:   plan.Logger.WithComponent("spray"),
		found: make(map[string]bool),
	}

	start := time.Now()
	err := r.run(ctx)
	r.sum.Duration = time.Since(start)

	if errors.Is(err, errStop) {
		r.sum.Stopped = true
		err = nil
	}

	fields := []interface{}{
		"attempts", r.sum.Attempts,
		"found", r.sum.Found(),
		"skipped", r.sum.Skipped,
		"stopped_on_success", r.sum.Stopped,
	}
	if plan.Limiter != nil {
		fields = append(fields, "rate_limit_waits", plan.Limiter.GetStats().Waits)
	}
	r.log.LogDuration(ctx, "spray.run", start, fields...)

	return r.sum, err
}

func (r *runner) run(ctx context.Context) error {
	if len(r.plan.Users) > 0 {
		for i, password := range r.plan.Passwords {
			if i > 0 && r.plan.Attempts > 0 && r.plan.Interval > 0 && i%r.plan.Attempts == 0 {
				r.log.Infow(fmt.Sprintf("Reached %d passwords, sleeping for %s before the next round", r.plan.Attempts, r.plan.Interval),
					"status", logger.StatusInfo)
				if err := sleep(ctx, r.plan.Interval); err != nil {
					return err
				}
			}

			r.log.Infow("Spraying password", "status", logger.StatusInfo, "round", i+1, "users", len(r.plan.Users))
			for _, user := range r.plan.Users {
				if err := r.try(ctx, owa.Credential{Username: user, Password: password}); err != nil {
					return err
				}
			}
		}
	}

	for _, cred := range r.plan.Pairs {
		if err := r.try(ctx, cred); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) try(ctx context.Context, cred owa.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.found[cred.Username] {
		r.sum.Skipped++
		return nil
	}
	if r.plan.Limiter != nil {
		if err := r.plan.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	outcome := r.auth.Authenticate(ctx, cred, owa.AttemptOptions{Delay: r.plan.Delay, Proxy: r.plan.Proxy})
	r.plan.Telemetry.RecordAttempt(outcome.String(), r.auth.Cloud(), time.Since(start))

	// A request torn down by cancellation is not an attempt.
	if outcome == owa.TransportError && ctx.Err() != nil {
		return ctx.Err()
	}

	r.sum.add(outcome)
	if r.plan.OnAttempt != nil {
		r.plan.OnAttempt(cred, outcome)
	}

	if outcome.Recorded() {
		r.found[cred.Username] = true
		if r.plan.StopOnSuccess {
			return errStop
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
