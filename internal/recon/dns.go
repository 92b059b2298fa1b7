package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	resolvConfPath = "/etc/resolv.conf"
	dnsTimeout     = 5 * time.Second
)

var fallbackResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSClient sends single queries to a list of recursive resolvers, trying
// each in turn until one answers.
type DNSClient struct {
	// Servers are host:port addresses.
	Servers []string
	Client  *dns.Client
}

// NewDNSClient returns a client for servers, or for the system resolvers
// when servers is empty.
func NewDNSClient(servers []string, timeout time.Duration) *DNSClient {
	if len(servers) == 0 {
		servers = SystemResolvers()
	}
	if timeout <= 0 {
		timeout = dnsTimeout
	}
	addrs := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		addrs = append(addrs, s)
	}
	return &DNSClient{
		Servers: addrs,
		Client:  &dns.Client{Timeout: timeout},
	}
}

// SystemResolvers reads the resolvers from /etc/resolv.conf, falling back
// to public resolvers when the file is missing or empty.
func SystemResolvers() []string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return fallbackResolvers
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

// query asks each server in turn. NXDOMAIN is authoritative and returned
// immediately; other failures move on to the next server.
func (c *DNSClient) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, srv := range c.Servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, _, err := c.client().ExchangeContext(ctx, msg, srv)
		if err == nil && resp != nil && resp.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: c.client().Timeout}
			resp, _, err = tcp.ExchangeContext(ctx, msg, srv)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("%s does not exist (NXDOMAIN)", name)
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s answered %s", srv, dns.RcodeToString[resp.Rcode])
			continue
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no resolvers configured")
	}
	return nil, lastErr
}

func (c *DNSClient) client() *dns.Client {
	if c.Client == nil {
		c.Client = &dns.Client{Timeout: dnsTimeout}
	}
	return c.Client
}

func trimDot(name string) string {
	return strings.TrimSuffix(name, ".")
}
