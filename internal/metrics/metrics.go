// Package metrics exports scanner telemetry. Throttled and failed lookups
// are counted separately from genuine zero balances.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

type Metrics struct {
	reg *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	zero        *prometheus.CounterVec
	delay       *prometheus.GaugeVec
	inFlight    prometheus.Gauge
	candidates  prometheus.Counter
	interesting prometheus.Counter
	dropped     prometheus.Counter
}

// New registers all collectors on a private registry so tests can build
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "requests_total",
		Help:      "Balance lookups by chain, provider and outcome",
	}, []string{"chain", "provider", "outcome"})
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scanner",
		Name:      "request_duration_seconds",
		Help:      "Balance lookup latency including governor wait",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"chain"})
	m.zero = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "zero_balance_total",
		Help:      "Successful lookups that returned a zero balance",
	}, []string{"chain"})
	m.delay = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scanner",
		Name:      "governor_delay_seconds",
		Help:      "Current adaptive delay per chain",
	}, []string{"chain"})
	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scanner",
		Name:      "governor_in_flight",
		Help:      "Requests currently holding a governor permit",
	})
	m.candidates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "candidates_total",
		Help:      "Candidates verified",
	})
	m.interesting = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "interesting_total",
		Help:      "Candidates with at least one positive balance",
	})
	m.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "sink_dropped_total",
		Help:      "Interesting records dropped because the sink buffer was full",
	})
	m.reg.MustRegister(
		m.requests, m.duration, m.zero, m.delay, m.inFlight,
		m.candidates, m.interesting, m.dropped,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveResult implements engine.Observer.
func (m *Metrics) ObserveResult(r model.BalanceResult) {
	m.requests.WithLabelValues(r.Chain.String(), r.Provider, r.Outcome.String()).Inc()
	m.duration.WithLabelValues(r.Chain.String()).Observe(r.Latency.Seconds())
	if r.Outcome == model.Success && r.Balance != nil && r.Balance.Sign() == 0 {
		m.zero.WithLabelValues(r.Chain.String()).Inc()
	}
}

// InFlight and Delay implement governor.Observer.
func (m *Metrics) InFlight(n int) { m.inFlight.Set(float64(n)) }

func (m *Metrics) Delay(c model.Chain, d time.Duration) {
	m.delay.WithLabelValues(c.String()).Set(d.Seconds())
}

func (m *Metrics) Candidate(rec model.ScanRecord) {
	m.candidates.Inc()
	if rec.Interesting() {
		m.interesting.Inc()
	}
}

func (m *Metrics) Dropped() { m.dropped.Inc() }

// FailureCounter is implemented by sink.Async.
type FailureCounter interface {
	Failed() int64
}

// WatchSinkFailures exports f's running count of records the sink could not
// write as scanner_sink_failed_total.
func (m *Metrics) WatchSinkFailures(f FailureCounter) error {
	return m.reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      "sink_failed_total",
		Help:      "Records the sink accepted but could not write",
	}, func() float64 { return float64(f.Failed()) }))
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func NewServer(m *Metrics, addr string, readTO, writeTO, idleTO time.Duration) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Listen binds the listen address. Call it before Serve so a taken port
// is reported at startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address once Listen succeeded, else the configured one.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Serve blocks until Shutdown; it binds first if Listen was not called.
func (s *Server) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.srv.Serve(s.ln)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
