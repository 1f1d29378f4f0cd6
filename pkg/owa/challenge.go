package owa

import (
	"context"
	"fmt"
	"net/http"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm"
)

// ProbeChallenge sends a bare NTLM negotiate message to endpoint and decodes
// the challenge the server answers with. Every failure wraps
// ErrDomainExtraction.
func ProbeChallenge(ctx context.Context, client Doer, endpoint string) (*ntlm.ChallengeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomainExtraction, err)
	}
	req.Header.Set("Authorization", ntlm.ProbeHeader)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomainExtraction, err)
	}
	defer httpclient.CloseBody(resp)

	if resp.StatusCode != http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: status %d", ErrDomainExtraction, resp.StatusCode)
	}

	info, err := ntlm.DecodeHeader(resp.Header.Values("WWW-Authenticate"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomainExtraction, err)
	}
	if info.NetBIOSDomainName == "" {
		return info, fmt.Errorf("%w: challenge carries no NetBIOS domain name", ErrDomainExtraction)
	}

	return info, nil
}
