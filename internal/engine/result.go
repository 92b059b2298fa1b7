// Package engine holds the certscan data model and the batch certificate scan.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// ScanResult maps a subdomain to the certificate IDs found for it.
type ScanResult map[string][]string

// CertificateRecord is one certificate as returned by a detail lookup.
// Details is the raw text of the certificate page and is not parsed further.
type CertificateRecord struct {
	ID      string `json:"id"`
	Details string `json:"details"`
}

// Severity tags a log entry for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// LogEntry is one human-readable line emitted during a scan.
type LogEntry struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Infof, Successf, Warnf and Errorf build tagged entries.
func Infof(format string, args ...any) LogEntry {
	return LogEntry{Message: fmt.Sprintf(format, args...), Severity: SeverityInfo}
}

func Successf(format string, args ...any) LogEntry {
	return LogEntry{Message: fmt.Sprintf(format, args...), Severity: SeveritySuccess}
}

func Warnf(format string, args ...any) LogEntry {
	return LogEntry{Message: fmt.Sprintf(format, args...), Severity: SeverityWarn}
}

func Errorf(format string, args ...any) LogEntry {
	return LogEntry{Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// LogSink receives log entries. The engine serializes its calls to a sink,
// so implementations need no locking of their own.
type LogSink func(LogEntry)

// ProgressSink receives an integer percentage in [0,100].
type ProgressSink func(int)

// Emit calls the sink if it is set.
func (s LogSink) Emit(e LogEntry) {
	if s != nil {
		s(e)
	}
}

// Report calls the sink if it is set.
func (s ProgressSink) Report(pct int) {
	if s != nil {
		s(pct)
	}
}

// Percent returns floor(done*100/total), or 0 when total is not positive.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// NormalizeDomain turns a raw subdomain entry into a query key. Entries
// copied from a resolved-host list look like "www.example.com 93.184.216.34",
// so only the first whitespace-separated token is kept.
func NormalizeDomain(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty domain %q", ErrInput, raw)
	}
	domain := strings.TrimSuffix(strings.ToLower(fields[0]), ".")
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain %q", ErrInput, raw)
	}
	return domain, nil
}

// CertificateSearcher finds certificate IDs for a single domain.
type CertificateSearcher interface {
	SearchCertificateIDs(ctx context.Context, domain string, log LogSink) ([]string, error)
}

// CertificateFetcher fetches the details of a single certificate.
type CertificateFetcher interface {
	FetchCertificateDetail(ctx context.Context, id string, log LogSink) (CertificateRecord, error)
}
