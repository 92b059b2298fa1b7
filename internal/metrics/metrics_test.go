package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveLookup(t *testing.T) {
	m := New()
	m.ObserveLookup("search", OutcomeOK, 120*time.Millisecond)
	m.ObserveLookup("search", OutcomeOK, 80*time.Millisecond)
	m.ObserveLookup("detail", OutcomeNotFound, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("search", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("detail", OutcomeNotFound)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveLookup("search", OutcomeOK, time.Second)
	m.ObserveTransfer(OutcomeFailed)
	m.SetProgress("certs", 50)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveTransfer(OutcomeFailed)
	m.SetProgress("dns", 75)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `certscan_zone_transfers_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), `certscan_scan_progress{kind="dns"} 75`)
}

func TestServe_StopsWithContext(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	assert.Error(t, New().Serve(context.Background(), "not-an-address"))
}
