package recon

import (
	"context"
	"fmt"
	"iter"

	"github.com/miekg/dns"
	"github.com/vulnverified/certscan/internal/engine"
)

// Nameservers returns the NS hostnames of domain without trailing dots.
// An answer without NS records is an error.
func (c *DNSClient) Nameservers(ctx context.Context, domain string) ([]string, error) {
	domain, err := engine.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	resp, err := c.query(ctx, domain, dns.TypeNS)
	if err != nil {
		return nil, fmt.Errorf("NS lookup for %s: %w", domain, err)
	}

	var hosts []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			hosts = append(hosts, trimDot(ns.Ns))
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no NS records for %s", domain)
	}
	return hosts, nil
}

// ResolveNameservers yields one success entry per nameserver of domain, the
// message being the hostname. It is the first half of the DNS pipeline, so
// progress runs from 0 to 50. If the lookup fails, progress drops to 0 and a
// single error entry is yielded. Every iteration resolves again.
func (c *DNSClient) ResolveNameservers(ctx context.Context, domain string, progress engine.ProgressSink) iter.Seq[engine.LogEntry] {
	return func(yield func(engine.LogEntry) bool) {
		hosts, err := c.Nameservers(ctx, domain)
		if err != nil {
			progress.Report(0)
			yield(engine.Errorf("Failed to get NS records: %v", err))
			return
		}

		total := len(hosts)
		for i, host := range hosts {
			progress.Report((i + 1) * 50 / total)
			if !yield(engine.LogEntry{Message: host, Severity: engine.SeveritySuccess}) {
				return
			}
		}
	}
}
