// Package owa discovers an Exchange autodiscover endpoint, works out whether
// the tenant authenticates on-premises or in Office 365, and validates
// credentials against it.
package owa

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrEmptyTarget is returned by ParseTarget for blank input.
	ErrEmptyTarget = errors.New("target is empty")
	// ErrNoEndpoint means recon found nothing to authenticate against.
	ErrNoEndpoint = errors.New("no autodiscover endpoint found")
	// ErrDomainExtraction wraps every failure to read the NTLM challenge.
	ErrDomainExtraction = errors.New("could not extract internal domain name")
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Target is either a bare domain or an explicit endpoint URL.
type Target struct {
	Domain string
	URL    string
}

// ParseTarget treats anything starting with http:// or https:// as a URL
// override and everything else as a domain.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrEmptyTarget
	}
	if strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://") {
		return Target{URL: raw}, nil
	}
	return Target{Domain: strings.TrimSuffix(raw, ".")}, nil
}

func (t Target) IsURL() bool {
	return t.URL != ""
}

func (t Target) String() string {
	if t.IsURL() {
		return t.URL
	}
	return t.Domain
}

// Tenancy is where authentication for a domain is hosted.
type Tenancy string

const (
	TenancyUnknown Tenancy = "unknown"
	TenancyOnPrem  Tenancy = "onprem"
	TenancyCloud   Tenancy = "cloud"
)

// Mode selects the authentication scheme.
type Mode int

const (
	// ModeOnPrem authenticates with NTLM.
	ModeOnPrem Mode = iota
	// ModeCloud authenticates with HTTP Basic.
	ModeCloud
)

func (m Mode) String() string {
	if m == ModeCloud {
		return "basic"
	}
	return "ntlm"
}

// Outcome is the result of one authentication attempt.
type Outcome int

const (
	Invalid Outcome = iota
	Valid
	ValidBlocked
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case ValidBlocked:
		return "valid_blocked"
	case TransportError:
		return "transport_error"
	default:
		return "invalid"
	}
}

// Recorded reports whether the outcome belongs in the results file.
func (o Outcome) Recorded() bool {
	return o == Valid || o == ValidBlocked
}

// StatusBlocked is returned by Office 365 for correct credentials that cannot
// sign in (MFA, lockout, conditional access).
const StatusBlocked = 456

// Classify maps an authentication response status to an Outcome.
func Classify(status int, mode Mode) Outcome {
	switch {
	case status == http.StatusOK:
		return Valid
	case status == StatusBlocked && mode == ModeCloud:
		return ValidBlocked
	default:
		return Invalid
	}
}

// Credential is a username/password pair.
type Credential struct {
	Username string
	Password string
}

func (c Credential) String() string {
	return c.Username + ":" + c.Password
}

// CredentialResult is a recorded successful attempt.
type CredentialResult struct {
	Username string
	Password string
	Outcome  Outcome
}

// String renders the result as one line of the results file.
func (r CredentialResult) String() string {
	line := fmt.Sprintf("%s:%s", r.Username, r.Password)
	if r.Outcome == ValidBlocked {
		line += " - check manually"
	}
	return line
}
