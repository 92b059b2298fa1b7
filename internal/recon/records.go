package recon

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/vulnverified/certscan/internal/engine"
)

// RecordTypes are the record types supported by LookupRecords.
var RecordTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"MX":    dns.TypeMX,
	"TXT":   dns.TypeTXT,
	"CNAME": dns.TypeCNAME,
}

// LookupRecords resolves one record type for domain. Each value comes back
// as a success entry; any failure, an empty answer included, comes back as
// a single error entry.
func (c *DNSClient) LookupRecords(ctx context.Context, domain string, qtype uint16) []engine.LogEntry {
	label := dns.TypeToString[qtype]

	values, err := c.recordValues(ctx, domain, qtype)
	if err != nil {
		return []engine.LogEntry{engine.Errorf("Failed to query %s records: %v", label, err)}
	}

	entries := make([]engine.LogEntry, 0, len(values))
	for _, v := range values {
		entries = append(entries, engine.LogEntry{Message: v, Severity: engine.SeveritySuccess})
	}
	return entries
}

func (c *DNSClient) ARecords(ctx context.Context, domain string) []engine.LogEntry {
	return c.LookupRecords(ctx, domain, dns.TypeA)
}

func (c *DNSClient) AAAARecords(ctx context.Context, domain string) []engine.LogEntry {
	return c.LookupRecords(ctx, domain, dns.TypeAAAA)
}

// MXRecords returns the mail exchanger hostnames.
func (c *DNSClient) MXRecords(ctx context.Context, domain string) []engine.LogEntry {
	return c.LookupRecords(ctx, domain, dns.TypeMX)
}

// TXTRecords returns one entry per TXT record, its strings concatenated.
func (c *DNSClient) TXTRecords(ctx context.Context, domain string) []engine.LogEntry {
	return c.LookupRecords(ctx, domain, dns.TypeTXT)
}

func (c *DNSClient) CNAMERecords(ctx context.Context, domain string) []engine.LogEntry {
	return c.LookupRecords(ctx, domain, dns.TypeCNAME)
}

func (c *DNSClient) recordValues(ctx context.Context, domain string, qtype uint16) ([]string, error) {
	domain, err := engine.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	resp, err := c.query(ctx, domain, qtype)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, rr := range resp.Answer {
		// A CNAME chain may precede the requested records.
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch r := rr.(type) {
		case *dns.A:
			values = append(values, r.A.String())
		case *dns.AAAA:
			values = append(values, r.AAAA.String())
		case *dns.MX:
			values = append(values, trimDot(r.Mx))
		case *dns.TXT:
			values = append(values, strings.Join(r.Txt, ""))
		case *dns.CNAME:
			values = append(values, trimDot(r.Target))
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no %s records for %s", dns.TypeToString[qtype], domain)
	}
	return values, nil
}
