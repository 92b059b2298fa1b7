package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulnverified/certscan/internal/store"
)

const crtshPage = `<html><body>
<table><tr><td>crt.sh</td></tr></table>
<table><tr><th>Certificates</th><td>
  <table>
    <tr><th>crt.sh ID</th></tr>
    <tr><td style="text-align:center"><a href="?id=42">42</a></td></tr>
  </table>
</td></tr></table>
</body></html>`

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(newApp(&stdout, &stderr))
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCertsCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "%.www.example.com" {
			w.Write([]byte(crtshPage))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	t.Setenv("CERTSCAN_CRTSH_BASE_URL", srv.URL)
	t.Setenv("CERTSCAN_CRTSH_RATE", "0")

	input := writeTemp(t, "input.json", `{"example.com": ["www.example.com", "down.example.com"]}`)
	out := filepath.Join(t.TempDir(), "certs.json")

	stdout, _, err := run(t, "certs", input, "--json", "--out", out)
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, map[string][]string{"www.example.com": {"42"}}, got)

	saved, err := store.LoadCertificateFile(out)
	require.NoError(t, err)
	assert.Equal(t, got, saved)
}

func TestShowAndValidateCommands(t *testing.T) {
	t.Chdir(t.TempDir())

	certs := writeTemp(t, "certs.json", `{"www.example.com": ["1", "2"]}`)
	stdout, _, err := run(t, "show", certs)
	require.NoError(t, err)
	assert.Contains(t, stdout, "www.example.com")
	assert.Contains(t, stdout, "1, 2")

	tree := writeTemp(t, "tree.json", `{"active_subdomains": [], "inactive_subdomains": ["a"], "domains": ["example.com"]}`)
	stdout, _, err = run(t, "validate", tree)
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 active subdomains, 1 inactive subdomains, 1 domains")

	bad := writeTemp(t, "bad.json", `{"domains": []}`)
	_, _, err = run(t, "validate", bad)
	assert.ErrorIs(t, err, store.ErrSchema)
}

// startDNSServer serves zone answers for example.com on a loopback UDP port
// and returns its address.
func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, NotifyStartedFunc: func() { close(started) }, Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		var records []string
		switch r.Question[0].Qtype {
		case dns.TypeA:
			records = []string{"example.com. 60 IN A 192.0.2.1"}
		case dns.TypeNS:
			records = []string{"example.com. 60 IN NS ns1.example.com.", "example.com. 60 IN NS ns2.example.com."}
		}
		for _, s := range records {
			rr, _ := dns.NewRR(s)
			m.Answer = append(m.Answer, rr)
		}
		w.WriteMsg(m)
	})}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

// fakeTransferer answers AXFR attempts from a fixed table.
type fakeTransferer struct {
	mu     sync.Mutex
	zones  map[string]string
	calls  []string
	onCall func(nameserver string)
}

func (f *fakeTransferer) Transfer(ctx context.Context, domain, nameserver string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, nameserver)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(nameserver)
	}
	zone, ok := f.zones[nameserver]
	if !ok {
		return nil, errors.New("transfer refused")
	}
	return []byte(zone), nil
}

func runApp(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return a.stdout.(*bytes.Buffer).String(), err
}

func TestRecordsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CERTSCAN_DNS_SERVERS", startDNSServer(t))

	stdout, _, err := run(t, "records", "example.com", "--type", "a,mx", "--json")
	require.NoError(t, err)

	var got map[string][]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, map[string][]string{"A": {"192.0.2.1"}}, got)

	_, _, err = run(t, "records", "example.com", "--type", "SRV")
	assert.ErrorContains(t, err, "unsupported record type")
}

func TestNSCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CERTSCAN_DNS_SERVERS", startDNSServer(t))

	stdout, _, err := run(t, "ns", "example.com", "--json")
	require.NoError(t, err)

	var got []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, got)
}

func TestAXFRCommand_ReportsVulnerableNameservers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CERTSCAN_DNS_SERVERS", startDNSServer(t))
	logDir := t.TempDir()
	t.Setenv("CERTSCAN_DNS_LOG_DIR", logDir)

	transferer := &fakeTransferer{zones: map[string]string{
		"ns2.example.com": "www.example.com.\t60\tIN\tA\t192.0.2.1\n",
	}}
	a := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	a.transferer = transferer

	stdout, err := runApp(t, a, "axfr", "example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, transferer.calls)
	assert.Contains(t, stdout, "Zone transfer enabled (1 of 2 nameservers vulnerable)")
	assert.Contains(t, stdout, "  ns2.example.com\n")
	assert.NotContains(t, stdout, "  ns1.example.com\n")

	data, err := os.ReadFile(filepath.Join(logDir, "example.com", "example.com.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Zone transfer failed for ns1.example.com")
	assert.Contains(t, string(data), "192.0.2.1")
}

func TestAXFRCommand_StopsBetweenNameservers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CERTSCAN_DNS_SERVERS", startDNSServer(t))
	t.Setenv("CERTSCAN_DNS_LOG_DIR", t.TempDir())

	a := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	transferer := &fakeTransferer{
		zones:  map[string]string{"ns1.example.com": "www.example.com.\t60\tIN\tA\t192.0.2.1\n"},
		onCall: func(string) { a.cancel.Cancel() },
	}
	a.transferer = transferer

	stdout, err := runApp(t, a, "axfr", "example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"ns1.example.com"}, transferer.calls, "the second nameserver is never tried")
	assert.Contains(t, stdout, "  ns1.example.com\n")
}

func TestConfigErrorStopsCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CERTSCAN_SCAN_CONCURRENCY", "-1")

	_, _, err := run(t, "show", "whatever.json")
	assert.ErrorContains(t, err, "scan.concurrency")
}
