package owa

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/owaspray/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/owaspray/internal/logger"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm/ntlmtest"
)

type handlerFunc func(req *http.Request) (*http.Response, error)

// stubTransport routes requests by URL. Unknown URLs fail like an unreachable
// host.
type stubTransport struct {
	mu       sync.Mutex
	routes   map[string]handlerFunc
	requests []*http.Request
}

func newStub() *stubTransport {
	return &stubTransport{routes: make(map[string]handlerFunc)}
}

func (s *stubTransport) handle(url string, h handlerFunc) *stubTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[url] = h
	return s
}

func (s *stubTransport) status(url string, code int, headers ...string) *stubTransport {
	return s.handle(url, func(*http.Request) (*http.Response, error) {
		return respond(code, headers...), nil
	})
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req.Clone(req.Context()))
	h, ok := s.routes[req.URL.String()]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("dial tcp %s: connection refused", req.URL.Host)
	}
	return h(req)
}

func (s *stubTransport) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, req := range s.requests {
		out = append(out, req.Method+" "+req.URL.String())
	}
	return out
}

func (s *stubTransport) last() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *stubTransport) factory(t *testing.T) *httpclient.Factory {
	t.Helper()
	f, err := httpclient.NewFactory(httpclient.DefaultConfig(),
		httpclient.WithRoundTripper(func() http.RoundTripper { return s }))
	require.NoError(t, err)
	return f
}

func respond(code int, headers ...string) *http.Response {
	resp := &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     make(http.Header),
		Body:       http.NoBody,
	}
	for i := 0; i+1 < len(headers); i += 2 {
		resp.Header.Add(headers[i], headers[i+1])
	}
	return resp
}

// ntlmEndpoint emulates IIS with Windows authentication. Type-3 messages for
// users in valid get a 200.
func ntlmEndpoint(challenge ntlmtest.Challenge, valid ...string) handlerFunc {
	return func(req *http.Request) (*http.Response, error) {
		scheme, token, _ := strings.Cut(req.Header.Get("Authorization"), " ")
		if scheme != "NTLM" && scheme != "Negotiate" {
			return respond(http.StatusUnauthorized, "WWW-Authenticate", "NTLM"), nil
		}

		switch ntlmtest.MessageType(token) {
		case ntlm.NtLmNegotiate:
			return respond(http.StatusUnauthorized, "WWW-Authenticate", scheme+" "+base64.StdEncoding.EncodeToString(challenge.Bytes())), nil
		case ntlm.NtLmAuthenticate:
			raw, _ := base64.StdEncoding.DecodeString(token)
			user, err := ntlmtest.AuthenticateUser(raw)
			if err == nil {
				for _, v := range valid {
					if strings.EqualFold(v, user) {
						return respond(http.StatusOK), nil
					}
				}
			}
		}
		return respond(http.StatusUnauthorized, "WWW-Authenticate", "NTLM"), nil
	}
}

func quietContext() context.Context {
	return logger.WithLogger(context.Background(), logger.NewNop())
}
