package output

import (
	"fmt"
	"io"

	"github.com/vulnverified/certscan/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// WriteHeader prints the certscan banner.
func WriteHeader(w io.Writer, noColor bool) {
	if noColor {
		fmt.Fprintf(w, "certscan %s\n\n", Version)
	} else {
		fmt.Fprintf(w, "\033[1mcertscan %s\033[0m\n\n", Version)
	}
}

// WriteScanSummary prints the totals of a certificate scan.
func WriteScanSummary(w io.Writer, result engine.ScanResult, failed int, noColor bool) {
	certs := 0
	for _, ids := range result {
		certs += len(ids)
	}

	fmt.Fprintln(w)
	if noColor {
		fmt.Fprintf(w, "Subdomains: %d resolved, %d failed\n", len(result), failed)
		fmt.Fprintf(w, "Certificates: %d\n", certs)
	} else {
		fmt.Fprintf(w, "\033[1mSubdomains:\033[0m %d resolved, %d failed\n", len(result), failed)
		fmt.Fprintf(w, "\033[1mCertificates:\033[0m %d\n", certs)
	}
}

// WriteTransferSummary prints which nameservers allowed a zone transfer.
func WriteTransferSummary(w io.Writer, domain string, vulnerable []string, total int, noColor bool) {
	fmt.Fprintln(w)
	if len(vulnerable) == 0 {
		fmt.Fprintf(w, "Zone transfer refused by all %d nameservers of %s\n", total, domain)
		return
	}

	if noColor {
		fmt.Fprintf(w, "! Zone transfer enabled (%d of %d nameservers vulnerable)\n", len(vulnerable), total)
	} else {
		fmt.Fprintf(w, "\033[33m!\033[0m Zone transfer enabled (%d of %d nameservers vulnerable)\n", len(vulnerable), total)
	}
	for _, ns := range vulnerable {
		fmt.Fprintf(w, "  %s\n", ns)
	}
}
