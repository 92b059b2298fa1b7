package engine

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultConcurrency keeps the number of in-flight lookups low enough for
// crt.sh not to start throttling.
const DefaultConcurrency = 4

// ScanConfig holds the runtime configuration for a certificate scan.
type ScanConfig struct {
	Concurrency int
	// Logger receives diagnostic logs. Nil discards them.
	Logger logrus.FieldLogger
}

type workUnit struct {
	domain    string
	subdomain string
}

type unitOutcome struct {
	unit workUnit
	ids  []string
	err  error
}

// ScanCertificates looks up certificate IDs for every subdomain in input,
// keyed by parent domain, using a fixed pool of workers.
//
// Workers only return outcomes; this goroutine alone writes the result map
// and reports progress. Raising cancel stops dispatching new subdomains, lets
// in-flight lookups finish and returns what was collected so far. A subdomain
// whose lookup failed is logged with SeverityError and left out of the result.
func ScanCertificates(
	ctx context.Context,
	cfg ScanConfig,
	input map[string][]string,
	searcher CertificateSearcher,
	log LogSink,
	progress ProgressSink,
	cancel *Canceller,
) ScanResult {
	result := make(ScanResult)
	sink := serialize(log)

	units := planUnits(input, sink)
	total := len(units)
	if total == 0 {
		sink.Emit(Warnf("No subdomains to scan"))
		return result
	}

	workers := cfg.Concurrency
	if workers < 1 {
		workers = DefaultConcurrency
	}
	if workers > total {
		workers = total
	}

	runLog := fieldLogger(cfg.Logger).WithFields(logrus.Fields{
		"run_id":  uuid.NewString(),
		"units":   total,
		"workers": workers,
	})
	runLog.Info("Certificate scan started")
	start := time.Now()

	jobs := make(chan workUnit)
	outcomes := make(chan unitOutcome)
	dispatched := make(chan int, 1)
	stopped := func() bool { return cancel.Cancelled() || ctx.Err() != nil }
	warnStopped := sync.OnceFunc(func() { sink.Emit(Warnf("Scan stopped by user")) })

	go func() {
		defer close(jobs)
		n := 0
		defer func() { dispatched <- n }()
		for _, u := range units {
			if stopped() {
				warnStopped()
				return
			}
			select {
			case jobs <- u:
				n++
			case <-cancel.Done():
				warnStopped()
				return
			case <-ctx.Done():
				warnStopped()
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				// The send above may win against a cancel raised at the same time.
				if stopped() {
					warnStopped()
					continue
				}
				ids, err := searcher.SearchCertificateIDs(ctx, u.subdomain, sink)
				outcomes <- unitOutcome{unit: u, ids: ids, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	processed, failed := 0, 0
	for o := range outcomes {
		processed++
		if o.err != nil {
			failed++
			sink.Emit(Errorf("Failed to get certificates for %s: %v", o.unit.subdomain, o.err))
		} else {
			if o.ids == nil {
				o.ids = []string{}
			}
			result[o.unit.subdomain] = o.ids
		}
		progress.Report(Percent(processed, total))
	}

	runLog.WithFields(logrus.Fields{
		"dispatched": <-dispatched,
		"processed":  processed,
		"failed":     failed,
		"found":      len(result),
		"duration":   time.Since(start).String(),
	}).Info("Certificate scan finished")

	return result
}

// FetchCertificateDetails fetches details for each ID one at a time. It is a
// separate, explicit pass over IDs produced by ScanCertificates. Failed IDs
// are logged and skipped.
func FetchCertificateDetails(
	ctx context.Context,
	ids []string,
	fetcher CertificateFetcher,
	log LogSink,
	progress ProgressSink,
	cancel *Canceller,
) []CertificateRecord {
	records := make([]CertificateRecord, 0, len(ids))
	for i, id := range ids {
		if cancel.Cancelled() || ctx.Err() != nil {
			log.Emit(Warnf("Scan stopped by user"))
			break
		}
		rec, err := fetcher.FetchCertificateDetail(ctx, id, log)
		if err != nil {
			log.Emit(Errorf("Failed to get details for certificate %s: %v", id, err))
		} else {
			records = append(records, rec)
		}
		progress.Report(Percent(i+1, len(ids)))
	}
	return records
}

// planUnits flattens input into work units. Domains are visited in sorted
// order, subdomains in input order. Malformed entries are skipped with a
// warning and a subdomain listed twice is only scanned once.
func planUnits(input map[string][]string, log LogSink) []workUnit {
	domains := make([]string, 0, len(input))
	for d := range input {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	seen := make(map[string]bool)
	var units []workUnit
	for _, d := range domains {
		for _, raw := range input[d] {
			sub, err := NormalizeDomain(raw)
			if err != nil {
				log.Emit(Warnf("Skipped malformed subdomain %q of %s", raw, d))
				continue
			}
			if seen[sub] {
				continue
			}
			seen[sub] = true
			units = append(units, workUnit{domain: d, subdomain: sub})
		}
	}
	return units
}

func serialize(log LogSink) LogSink {
	if log == nil {
		return nil
	}
	var mu sync.Mutex
	return func(e LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		log(e)
	}
}

func fieldLogger(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
