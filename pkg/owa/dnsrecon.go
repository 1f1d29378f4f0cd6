package owa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DNSInfo is what public DNS says about a domain's mail hosting.
type DNSInfo struct {
	MX                []string `json:"mx,omitempty" yaml:"mx,omitempty"`
	AutodiscoverCNAME string   `json:"autodiscover_cname,omitempty" yaml:"autodiscover_cname,omitempty"`
	MicrosoftHosted   bool     `json:"microsoft_hosted" yaml:"microsoft_hosted"`
}

const (
	exchangeOnlineMX    = "mail.protection.outlook.com."
	exchangeOnlineCNAME = "autodiscover.outlook.com."
)

// DNSRecon looks up MX and autodiscover CNAME records.
type DNSRecon struct {
	resolvers []string
	client    *dns.Client
}

// NewDNSRecon queries resolvers in order. Empty arguments fall back to public
// resolvers and a two second timeout.
func NewDNSRecon(resolvers []string, timeout time.Duration) *DNSRecon {
	if len(resolvers) == 0 {
		resolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSRecon{
		resolvers: resolvers,
		client: &dns.Client{
			Timeout: timeout,
		},
	}
}

// Lookup runs the MX and CNAME queries concurrently.
func (r *DNSRecon) Lookup(ctx context.Context, domain string) (*DNSInfo, error) {
	info := &DNSInfo{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		answers, err := r.query(gctx, domain, dns.TypeMX)
		if err != nil {
			return fmt.Errorf("MX lookup: %w", err)
		}
		for _, ans := range answers {
			if mx, ok := ans.(*dns.MX); ok {
				info.MX = append(info.MX, strings.ToLower(mx.Mx))
			}
		}
		sort.Strings(info.MX)
		return nil
	})

	g.Go(func() error {
		answers, err := r.query(gctx, "autodiscover."+domain, dns.TypeCNAME)
		if err != nil {
			return fmt.Errorf("CNAME lookup: %w", err)
		}
		for _, ans := range answers {
			if cname, ok := ans.(*dns.CNAME); ok {
				info.AutodiscoverCNAME = strings.ToLower(cname.Target)
				break
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if info.AutodiscoverCNAME == exchangeOnlineCNAME {
		info.MicrosoftHosted = true
	}
	for _, mx := range info.MX {
		if strings.HasSuffix(mx, exchangeOnlineMX) {
			info.MicrosoftHosted = true
		}
	}

	return info, nil
}

// query asks each resolver in turn until one answers.
func (r *DNSRecon) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	var lastErr error
	for _, resolver := range r.resolvers {
		resp, _, err := r.client.ExchangeContext(ctx, m, resolver)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("%s answered %s", resolver, dns.RcodeToString[resp.Rcode])
			continue
		}
		return resp.Answer, nil
	}

	return nil, lastErr
}
