package owa

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
)

// Endpoints holds the fixed Microsoft URLs used during recon.
type Endpoints struct {
	// OpenIDConfiguration is a format string taking the domain.
	OpenIDConfiguration string
	CloudAutodiscover   string
}

// DefaultEndpoints are the public Microsoft URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		OpenIDConfiguration: "https://login.microsoftonline.com/%s/.well-known/openid-configuration",
		CloudAutodiscover:   "https://autodiscover-s.outlook.com/autodiscover/autodiscover.xml",
	}
}

// OpenIDURL is the openid-configuration URL for domain.
func (e Endpoints) OpenIDURL(domain string) string {
	return fmt.Sprintf(e.OpenIDConfiguration, domain)
}

func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.OpenIDConfiguration == "" {
		e.OpenIDConfiguration = d.OpenIDConfiguration
	}
	if e.CloudAutodiscover == "" {
		e.CloudAutodiscover = d.CloudAutodiscover
	}
	return e
}

// CandidateURLs lists autodiscover locations for domain in probe order.
func CandidateURLs(domain string) []string {
	return []string{
		fmt.Sprintf("https://autodiscover.%s/autodiscover/autodiscover.xml", domain),
		fmt.Sprintf("http://autodiscover.%s/autodiscover/autodiscover.xml", domain),
		fmt.Sprintf("https://%s/autodiscover/autodiscover.xml", domain),
	}
}

// ResolveEndpoint returns the first candidate that demands authentication
// (401 or 403). Unreachable candidates are skipped.
func ResolveEndpoint(ctx context.Context, client Doer, domain string) (string, bool) {
	log := logger.FromContext(ctx)

	for _, candidate := range CandidateURLs(domain) {
		if ctx.Err() != nil {
			return "", false
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
		if err != nil {
			log.Debugw("Skipping malformed candidate", "url", candidate, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "text/xml")

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			log.Debugw("Autodiscover candidate unreachable", "url", candidate, "error", err)
			continue
		}
		httpclient.CloseBody(resp)
		log.LogHTTPRequest(ctx, req.Method, candidate, resp.StatusCode, time.Since(start))

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return candidate, true
		}
	}

	return "", false
}

// ClassifyTenancy asks the Microsoft identity platform whether it knows the
// domain behind openIDURL. 400 means on-premises, 200 means Office 365.
func ClassifyTenancy(ctx context.Context, client Doer, openIDURL string) (Tenancy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openIDURL, nil)
	if err != nil {
		return TenancyUnknown, fmt.Errorf("failed to build tenancy request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return TenancyUnknown, fmt.Errorf("tenancy check failed: %w", err)
	}
	defer httpclient.CloseBody(resp)
	logger.FromContext(ctx).LogHTTPRequest(ctx, req.Method, openIDURL, resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return TenancyOnPrem, nil
	case http.StatusOK:
		return TenancyCloud, nil
	default:
		return TenancyUnknown, nil
	}
}
