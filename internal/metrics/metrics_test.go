package metrics

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

func TestObserveResult_SeparatesZeroFromThrottled(t *testing.T) {
	m := New()
	q := model.ChainQuery{Chain: model.ChainBTC, Address: "1abc"}

	m.ObserveResult(model.Result(q, "blockchain.info", model.Success, big.NewInt(0), nil))
	m.ObserveResult(model.Result(q, "blockchain.info", model.Throttled, nil, errors.New("429")))
	m.ObserveResult(model.Result(q, "blockchain.info", model.Throttled, nil, errors.New("429")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.zero.WithLabelValues("btc")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("btc", "blockchain.info", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("btc", "blockchain.info", "success")))
}

func TestGovernorObserver(t *testing.T) {
	m := New()
	m.InFlight(3)
	m.Delay(model.ChainETH, 1500*time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.delay.WithLabelValues("eth")))
}

func TestCandidate(t *testing.T) {
	m := New()
	q := model.ChainQuery{Chain: model.ChainETH, Address: "0xabc"}
	m.Candidate(model.ScanRecord{Results: []model.BalanceResult{model.Result(q, "p", model.Success, big.NewInt(1), nil)}})
	m.Candidate(model.ScanRecord{Results: []model.BalanceResult{model.Result(q, "p", model.Success, big.NewInt(0), nil)}})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.candidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interesting))
}

func TestServer_Endpoints(t *testing.T) {
	m := New()
	m.Dropped()
	s := NewServer(m, "127.0.0.1:0", time.Second, time.Second, time.Second)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "scanner_sink_dropped_total 1")
}

type failures int64

func (f *failures) Failed() int64 { return int64(*f) }

func TestWatchSinkFailures(t *testing.T) {
	m := New()
	n := failures(0)
	require.NoError(t, m.WatchSinkFailures(&n))
	n = 3

	count, err := testutil.GatherAndCount(m.Registry(), "scanner_sink_failed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ts := httptest.NewServer(NewServer(m, "", time.Second, time.Second, time.Second).Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "scanner_sink_failed_total 3")
}

func TestServer_ListenFailsOnTakenPort(t *testing.T) {
	m := New()
	first := NewServer(m, "127.0.0.1:0", time.Second, time.Second, time.Second)
	require.NoError(t, first.Listen())

	done := make(chan error, 1)
	go func() { done <- first.Serve() }()

	resp, err := http.Get("http://" + first.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	second := NewServer(m, first.Addr(), time.Second, time.Second, time.Second)
	assert.Error(t, second.Listen())

	require.NoError(t, first.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
