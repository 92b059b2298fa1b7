// Package recon implements the certscan lookups: crt.sh certificate discovery,
// DNS record queries and zone transfer attempts.
package recon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/metrics"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	crtshBaseURL = "https://crt.sh"
	crtshTimeout = 10 * time.Second
	crtshMaxBody = 20 * 1024 * 1024 // 20MB

	opSearch = "search"
	opDetail = "detail"
)

// CrtshClient performs one request/parse cycle per lookup against the crt.sh
// HTML front-end. It never retries; that is left to the caller.
type CrtshClient struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds each request, body included. Zero means 10s.
	Timeout time.Duration
	// Limiter paces requests across all goroutines sharing the client.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
}

// NewCrtshClient returns a client for the public crt.sh instance.
func NewCrtshClient(userAgent string) *CrtshClient {
	return &CrtshClient{
		BaseURL:    crtshBaseURL,
		HTTPClient: http.DefaultClient,
		UserAgent:  userAgent,
		Timeout:    crtshTimeout,
	}
}

// SearchCertificateIDs lists the IDs of certificates issued for domain and
// its subdomains. A page without results yields an empty slice and no error.
func (c *CrtshClient) SearchCertificateIDs(ctx context.Context, domain string, log engine.LogSink) ([]string, error) {
	domain, err := engine.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/?q=%%25.%s", c.baseURL(), url.QueryEscape(domain))
	log.Emit(engine.Infof("Certificate search URL: %s", u))

	start := time.Now()
	body, err := c.fetch(ctx, u)
	if err != nil {
		c.Metrics.ObserveLookup(opSearch, outcomeOf(err), time.Since(start))
		return nil, err
	}

	ids, found, err := ParseCertificateIDs(bytes.NewReader(body))
	if err != nil || !found {
		log.Emit(engine.Warnf("No certificate table found for %s", domain))
		ids = []string{}
	}

	outcome := metrics.OutcomeOK
	if len(ids) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	c.Metrics.ObserveLookup(opSearch, outcome, time.Since(start))

	log.Emit(engine.Successf("Found %d certificates for %s", len(ids), domain))
	return ids, nil
}

// FetchCertificateDetail fetches the text of one certificate page. A page
// without the certificate cell fails with engine.ErrNotFound.
func (c *CrtshClient) FetchCertificateDetail(ctx context.Context, id string, log engine.LogSink) (engine.CertificateRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return engine.CertificateRecord{}, fmt.Errorf("%w: empty certificate id", engine.ErrInput)
	}

	u := fmt.Sprintf("%s/?id=%s", c.baseURL(), url.QueryEscape(id))
	log.Emit(engine.Infof("Certificate detail URL: %s", u))

	start := time.Now()
	body, err := c.fetch(ctx, u)
	if err != nil {
		c.Metrics.ObserveLookup(opDetail, outcomeOf(err), time.Since(start))
		return engine.CertificateRecord{}, err
	}

	details, err := ParseCertificateDetails(bytes.NewReader(body))
	if err != nil {
		fe := &engine.FetchError{Kind: engine.ErrNotFound, URL: u}
		if !errors.Is(err, engine.ErrNotFound) {
			fe.Err = err
		}
		c.Metrics.ObserveLookup(opDetail, metrics.OutcomeNotFound, time.Since(start))
		return engine.CertificateRecord{}, fe
	}

	c.Metrics.ObserveLookup(opDetail, metrics.OutcomeOK, time.Since(start))
	log.Emit(engine.Successf("Fetched details for certificate %s", id))
	return engine.CertificateRecord{ID: id, Details: details}, nil
}

func (c *CrtshClient) fetch(ctx context.Context, u string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, &engine.FetchError{Kind: engine.ErrTransport, URL: u, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &engine.FetchError{Kind: engine.ErrTransport, URL: u, Err: err}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &engine.FetchError{Kind: engine.ErrTransport, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &engine.FetchError{Kind: engine.ErrHTTPStatus, URL: u, StatusCode: resp.StatusCode}
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, crtshMaxBody), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &engine.FetchError{Kind: engine.ErrTransport, URL: u, Err: err}
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, &engine.FetchError{Kind: engine.ErrTransport, URL: u, Err: fmt.Errorf("read body: %w", err)}
	}

	return body, nil
}

func (c *CrtshClient) baseURL() string {
	if c.BaseURL == "" {
		return crtshBaseURL
	}
	return strings.TrimSuffix(c.BaseURL, "/")
}

func (c *CrtshClient) timeout() time.Duration {
	if c.Timeout <= 0 {
		return crtshTimeout
	}
	return c.Timeout
}

func (c *CrtshClient) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, engine.ErrHTTPStatus):
		return metrics.OutcomeHTTPStatus
	case errors.Is(err, engine.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeTransport
	}
}
