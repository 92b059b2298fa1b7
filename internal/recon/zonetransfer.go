package recon

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/metrics"
)

const (
	axfrDialTimeout = 10 * time.Second
	axfrReadTimeout = 30 * time.Second
)

// dig exits 0 even when the server refuses the transfer.
const digRefusedMarker = "; Transfer failed."

// dig prints these per address and moves on to the next one, so they only
// mean failure when no records follow.
var digConnectionMarkers = []string{
	"communications error",
	"connection refused",
	"couldn't get address",
}

// Transferer performs one AXFR of domain against nameserver and returns the
// zone as text. Any error means the transfer was refused.
type Transferer interface {
	Transfer(ctx context.Context, domain, nameserver string) ([]byte, error)
}

// DigTransferer shells out to `dig axfr <domain> @<nameserver>`.
type DigTransferer struct {
	Path   string
	Runner CommandRunner
}

func (d *DigTransferer) Transfer(ctx context.Context, domain, nameserver string) ([]byte, error) {
	path := d.Path
	if path == "" {
		path = "dig"
	}
	runner := d.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}

	out, err := runner.Run(ctx, path, "axfr", domain, "@"+nameserver)
	if err != nil {
		return nil, fmt.Errorf("%w: %s axfr %s @%s: %v", engine.ErrProcess, path, domain, nameserver, err)
	}
	if bytes.Contains(out, []byte(digRefusedMarker)) {
		return nil, fmt.Errorf("%w: %s axfr %s @%s: %s", engine.ErrProcess, path, domain, nameserver, strings.TrimPrefix(digRefusedMarker, "; "))
	}
	if !hasZoneRecords(out) {
		for _, marker := range digConnectionMarkers {
			if bytes.Contains(out, []byte(marker)) {
				return nil, fmt.Errorf("%w: %s axfr %s @%s: %s", engine.ErrProcess, path, domain, nameserver, marker)
			}
		}
	}
	return out, nil
}

// hasZoneRecords reports whether dig output carries at least one resource
// record. dig prefixes everything else with ';'.
func hasZoneRecords(out []byte) bool {
	for line := range bytes.Lines(out) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 && line[0] != ';' {
			return true
		}
	}
	return false
}

// NativeTransferer performs the AXFR in process and renders one record per
// line, in the same presentation format dig uses.
type NativeTransferer struct {
	// Port defaults to 53.
	Port string
}

func (n *NativeTransferer) Transfer(ctx context.Context, domain, nameserver string) ([]byte, error) {
	transfer := &dns.Transfer{
		DialTimeout: axfrDialTimeout,
		ReadTimeout: axfrReadTimeout,
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < transfer.ReadTimeout {
			transfer.DialTimeout = min(d, transfer.DialTimeout)
			transfer.ReadTimeout = d
		}
	}

	msg := new(dns.Msg)
	msg.SetAxfr(dns.Fqdn(domain))

	port := n.Port
	if port == "" {
		port = "53"
	}

	channel, err := transfer.In(msg, net.JoinHostPort(nameserver, port))
	if err != nil {
		return nil, fmt.Errorf("AXFR to %s: %w", nameserver, err)
	}

	var buf bytes.Buffer
	for envelope := range channel {
		if envelope.Error != nil {
			return nil, fmt.Errorf("AXFR envelope from %s: %w", nameserver, envelope.Error)
		}
		for _, rr := range envelope.RR {
			buf.WriteString(rr.String())
			buf.WriteByte('\n')
		}
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("AXFR from %s returned no records", nameserver)
	}

	return buf.Bytes(), nil
}

// ZoneTransferRunner tries an AXFR against each nameserver of a domain and
// keeps a per-domain log file of every attempt.
type ZoneTransferRunner struct {
	// LogDir is the root of the per-domain log folders.
	LogDir     string
	Transferer Transferer
	// Timeout bounds each transfer. Zero means no bound beyond ctx.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// LogPath returns the log file for outputFolder:
// LogDir/<outputFolder>/<base of outputFolder>.txt.
func (r *ZoneTransferRunner) LogPath(outputFolder string) string {
	folder := filepath.Join(r.LogDir, outputFolder)
	return filepath.Join(folder, filepath.Base(folder)+".txt")
}

// AttemptZoneTransfers yields, for each nameserver in order, an info entry
// for the attempt followed by a success or error entry for its outcome.
// Progress runs from 50 to 100 as the second half of the DNS pipeline. The
// log file is appended to, never truncated. If it cannot be opened a single
// error entry is yielded and no transfer is attempted.
func (r *ZoneTransferRunner) AttemptZoneTransfers(ctx context.Context, domain string, nameservers []string, outputFolder string, progress engine.ProgressSink) iter.Seq[engine.LogEntry] {
	return func(yield func(engine.LogEntry) bool) {
		domain, err := engine.NormalizeDomain(domain)
		if err != nil {
			yield(engine.Errorf("Zone transfer not attempted: %v", err))
			return
		}
		if len(nameservers) == 0 {
			yield(engine.Warnf("No nameservers to try for %s", domain))
			return
		}

		path := r.LogPath(outputFolder)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			yield(engine.Errorf("Failed to create log directory: %v", err))
			return
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			yield(engine.Errorf("Failed to open log file: %v", err))
			return
		}
		defer f.Close()
		logFile := &appendLog{f: f}

		total := len(nameservers)
		for i, ns := range nameservers {
			if ctx.Err() != nil {
				yield(engine.Warnf("Zone transfer stopped: %v", ctx.Err()))
				return
			}

			ns = trimDot(strings.TrimSpace(ns))
			checking := engine.Infof("Checking zone transfer for %s on %s", domain, ns)
			logFile.line(checking.Message)
			if !yield(checking) {
				return
			}

			var outcome engine.LogEntry
			out, err := r.transfer(ctx, domain, ns)
			if err != nil {
				logFile.line(fmt.Sprintf("Zone transfer failed for %s", ns))
				outcome = engine.Errorf("Zone transfer failed for %s: %v", ns, err)
				r.Metrics.ObserveTransfer(metrics.OutcomeFailed)
			} else {
				logFile.write(out)
				outcome = engine.Successf("Zone transfer succeeded for %s", ns)
				r.Metrics.ObserveTransfer(metrics.OutcomeOK)
			}

			progress.Report(50 + (i+1)*50/total)
			if !yield(outcome) {
				return
			}

			if err := logFile.takeErr(); err != nil {
				if !yield(engine.Errorf("Failed to write %s: %v", path, err)) {
					return
				}
			}
		}
	}
}

func (r *ZoneTransferRunner) transfer(ctx context.Context, domain, ns string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	t := r.Transferer
	if t == nil {
		t = &DigTransferer{}
	}
	return t.Transfer(ctx, domain, ns)
}

// appendLog stops writing after the first error and reports it once.
type appendLog struct {
	f        *os.File
	err      error
	reported bool
}

func (l *appendLog) line(s string) {
	l.write([]byte(s + "\n"))
}

func (l *appendLog) write(b []byte) {
	if l.err != nil {
		return
	}
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b[:len(b):len(b)], '\n')
	}
	_, l.err = l.f.Write(b)
}

func (l *appendLog) takeErr() error {
	if l.err == nil || l.reported {
		return nil
	}
	l.reported = true
	return l.err
}
