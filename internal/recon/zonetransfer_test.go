package recon

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/metrics"
)

const zoneDump = `example.com.	3600	IN	SOA	ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600
www.example.com.	3600	IN	A	93.184.216.34
example.com.	3600	IN	SOA	ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600
`

// fakeRunner answers dig invocations by nameserver.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs map[string]string
	block   bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ns := strings.TrimPrefix(args[len(args)-1], "@")
	out, ok := f.outputs[ns]
	if !ok {
		return nil, errors.New("exit status 9")
	}
	return []byte(out), nil
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestZoneTransferRunner_LogPath(t *testing.T) {
	r := &ZoneTransferRunner{LogDir: "/var/log/certscan"}
	assert.Equal(t, "/var/log/certscan/example.com/example.com.txt", r.LogPath("example.com"))
	assert.Equal(t, "/var/log/certscan/scans/example.com/example.com.txt", r.LogPath("scans/example.com"))
}

func TestAttemptZoneTransfers_AllRefused(t *testing.T) {
	runner := &fakeRunner{}
	m := metrics.New()
	r := &ZoneTransferRunner{
		LogDir:     t.TempDir(),
		Transferer: &DigTransferer{Runner: runner},
		Metrics:    m,
	}

	var progress []int
	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com",
		[]string{"ns1.example.com.", "ns2.example.com"}, "example.com", func(p int) {
			progress = append(progress, p)
		}))

	require.Len(t, entries, 4)
	assert.Equal(t, engine.SeverityInfo, entries[0].Severity)
	assert.Equal(t, engine.SeverityError, entries[1].Severity)
	assert.Contains(t, entries[1].Message, "ns1.example.com")
	assert.Equal(t, engine.SeverityInfo, entries[2].Severity)
	assert.Equal(t, engine.SeverityError, entries[3].Severity)
	assert.Contains(t, entries[3].Message, "ns2.example.com")
	assert.Equal(t, []int{75, 100}, progress)

	assert.Equal(t, []string{
		"Checking zone transfer for example.com on ns1.example.com",
		"Zone transfer failed for ns1.example.com",
		"Checking zone transfer for example.com on ns2.example.com",
		"Zone transfer failed for ns2.example.com",
	}, readLog(t, r.LogPath("example.com")))

	assert.Equal(t, [][]string{
		{"dig", "axfr", "example.com", "@ns1.example.com"},
		{"dig", "axfr", "example.com", "@ns2.example.com"},
	}, runner.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues(metrics.OutcomeFailed)))
}

func TestAttemptZoneTransfers_Success(t *testing.T) {
	r := &ZoneTransferRunner{
		LogDir: t.TempDir(),
		Transferer: &DigTransferer{Runner: &fakeRunner{outputs: map[string]string{
			"ns1.example.com": zoneDump,
		}}},
	}

	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com",
		[]string{"ns1.example.com", "ns2.example.com"}, "example.com", nil))

	require.Len(t, entries, 4)
	assert.Equal(t, engine.SeveritySuccess, entries[1].Severity)
	assert.Equal(t, engine.SeverityError, entries[3].Severity)

	data, err := os.ReadFile(r.LogPath("example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "www.example.com.\t3600\tIN\tA\t93.184.216.34")
}

func TestAttemptZoneTransfers_AppendsToExistingLog(t *testing.T) {
	r := &ZoneTransferRunner{LogDir: t.TempDir(), Transferer: &DigTransferer{Runner: &fakeRunner{}}}

	for range 2 {
		collect(r.AttemptZoneTransfers(context.Background(), "example.com", []string{"ns1.example.com"}, "example.com", nil))
	}

	assert.Len(t, readLog(t, r.LogPath("example.com")), 4)
}

func TestAttemptZoneTransfers_DigReportsFailureInOutput(t *testing.T) {
	r := &ZoneTransferRunner{
		LogDir: t.TempDir(),
		Transferer: &DigTransferer{Runner: &fakeRunner{outputs: map[string]string{
			"ns1.example.com": "; <<>> DiG 9.18 <<>> axfr example.com @ns1.example.com\n; Transfer failed.\n",
		}}},
	}

	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com", []string{"ns1.example.com"}, "example.com", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, engine.SeverityError, entries[1].Severity)
	assert.Contains(t, entries[1].Message, "Transfer failed")
}

func TestAttemptZoneTransfers_DigRetriesNextAddress(t *testing.T) {
	out := ";; communications error to 2001:db8::1#53: connection refused\n" +
		"; <<>> DiG 9.18 <<>> axfr example.com @ns1.example.com\n" +
		zoneDump +
		";; XFR size: 3 records (messages 1, bytes 180)\n"
	r := &ZoneTransferRunner{
		LogDir:     t.TempDir(),
		Transferer: &DigTransferer{Runner: &fakeRunner{outputs: map[string]string{"ns1.example.com": out}}},
	}

	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com", []string{"ns1.example.com"}, "example.com", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, engine.SeveritySuccess, entries[1].Severity)

	data, err := os.ReadFile(r.LogPath("example.com"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "www.example.com.\t3600\tIN\tA\t93.184.216.34")
}

func TestDigTransferer_ConnectionErrorWithoutRecords(t *testing.T) {
	d := &DigTransferer{Runner: &fakeRunner{outputs: map[string]string{
		"ns1.example.com": "; <<>> DiG 9.18 <<>> axfr example.com @ns1.example.com\n;; communications error to 192.0.2.1#53: connection refused\n",
	}}}

	_, err := d.Transfer(context.Background(), "example.com", "ns1.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProcess)
	assert.Contains(t, err.Error(), "communications error")
}

func TestAttemptZoneTransfers_Timeout(t *testing.T) {
	r := &ZoneTransferRunner{
		LogDir:     t.TempDir(),
		Transferer: &DigTransferer{Runner: &fakeRunner{block: true}},
		Timeout:    20 * time.Millisecond,
	}

	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com", []string{"ns1.example.com"}, "example.com", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, engine.SeverityError, entries[1].Severity)
	assert.Contains(t, entries[1].Message, "deadline exceeded")
}

func TestAttemptZoneTransfers_UnwritableLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	runner := &fakeRunner{}
	r := &ZoneTransferRunner{LogDir: blocker, Transferer: &DigTransferer{Runner: runner}}

	var progress []int
	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com", []string{"ns1.example.com"}, "example.com", func(p int) {
		progress = append(progress, p)
	}))

	require.Len(t, entries, 1)
	assert.Equal(t, engine.SeverityError, entries[0].Severity)
	assert.Empty(t, runner.calls)
	assert.Empty(t, progress)
}

func TestAttemptZoneTransfers_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	r := &ZoneTransferRunner{LogDir: t.TempDir(), Transferer: &DigTransferer{Runner: runner}}

	entries := collect(r.AttemptZoneTransfers(ctx, "example.com", []string{"ns1.example.com"}, "example.com", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, engine.SeverityWarn, entries[0].Severity)
	assert.Empty(t, runner.calls)
}

func TestAttemptZoneTransfers_NoNameservers(t *testing.T) {
	r := &ZoneTransferRunner{LogDir: t.TempDir()}

	entries := collect(r.AttemptZoneTransfers(context.Background(), "example.com", nil, "example.com", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, engine.SeverityWarn, entries[0].Severity)
}

// startAXFRServer serves handler over TCP and returns the port.
func startAXFRServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{Listener: ln, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port
}

func TestNativeTransferer(t *testing.T) {
	soa, err := dns.NewRR("example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600")
	require.NoError(t, err)
	a, err := dns.NewRR("www.example.com. 3600 IN A 93.184.216.34")
	require.NoError(t, err)

	port := startAXFRServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = []dns.RR{soa, a, soa}
		w.WriteMsg(m)
	})

	out, err := (&NativeTransferer{Port: port}).Transfer(context.Background(), "example.com", "127.0.0.1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, a.String(), lines[1])
}

func TestNativeTransferer_Refused(t *testing.T) {
	port := startAXFRServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeRefused)
		w.WriteMsg(m)
	})

	_, err := (&NativeTransferer{Port: port}).Transfer(context.Background(), "example.com", "127.0.0.1")
	assert.Error(t, err)
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &ExecRunner{}

	out, err := r.Run(context.Background(), "sh", "-c", "echo zone")
	require.NoError(t, err)
	assert.Equal(t, "zone\n", string(out))

	_, err = r.Run(context.Background(), "sh", "-c", "echo refused >&2; exit 9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
