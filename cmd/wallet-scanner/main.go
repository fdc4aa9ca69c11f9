package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/chain"
	"github.com/9TreyRP/CryptoScanner/internal/config"
	"github.com/9TreyRP/CryptoScanner/internal/display"
	"github.com/9TreyRP/CryptoScanner/internal/engine"
	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/metrics"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/scan"
	"github.com/9TreyRP/CryptoScanner/internal/sink"
	"github.com/9TreyRP/CryptoScanner/internal/source"
	"github.com/9TreyRP/CryptoScanner/internal/store"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("wallet-scanner: %v", err)
	}
}

func run() error {
	var (
		cfgPath  = flag.String("config", "", "path to YAML config (defaults only when empty)")
		mode     = flag.String("mode", "", "test or live; overrides argument, TESTMODE and config")
		once     = flag.Bool("once", false, "run a single pass then exit")
		maxScans = flag.Int("max-scans", -1, "stop after this many candidates (overrides config when >= 0)")
		verbose  = flag.Bool("verbose", false, "enable verbose logging")
		noClear  = flag.Bool("no-clear", false, "do not clear the screen between candidates")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	testMode, err := config.ResolveTestMode(*mode, flag.Args(), os.Getenv, cfg.Mode)
	if err != nil {
		return err
	}
	if *once {
		cfg.Scan.Passes = 1
	}
	if *maxScans >= 0 {
		cfg.Scan.MaxScans = *maxScans
	}

	delays := map[model.Chain]time.Duration{
		model.ChainBTC: cfg.Chains.BTC.BaseDelay,
		model.ChainETH: cfg.Chains.ETH.BaseDelay,
	}
	gov := governor.New(governor.Config{
		MaxInFlight: cfg.Governor.MaxInFlight,
		BaseDelay:   delays,
		Factor:      cfg.Governor.BackoffFactor,
		MaxDelay:    cfg.Governor.MaxDelay,
		Decay:       cfg.Governor.Decay,
	})
	pool := transport.New(transport.Options{
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxConns:       gov.MaxInFlight(),
		UserAgent:      cfg.HTTP.UserAgent,
	})
	pool.OnClose(gov)
	defer pool.Close()

	m := metrics.New()
	gov.SetObserver(m)

	clients, err := chain.FromConfig(cfg.Chains, pool, gov, testMode)
	if err != nil {
		return err
	}
	eng, err := engine.New(clients,
		engine.WithQueryTimeout(cfg.Scan.QueryTimeout),
		engine.WithObserver(m),
		engine.WithVerbose(*verbose),
	)
	if err != nil {
		return err
	}
	log.Printf("verifying chains %v (ceiling=%d, request timeout=%s)", eng.Chains(), gov.MaxInFlight(), pool.Timeout())

	src, err := source.NewFromConfig(cfg.Source)
	if err != nil {
		return err
	}
	log.Printf("configured source: %s", src.Name())

	out, err := sink.NewFromConfig(cfg.Sink, testMode)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("close sink %s: %v", out.Name(), err)
		}
	}()
	if a, ok := out.(*sink.Async); ok {
		if err := m.WatchSinkFailures(a); err != nil {
			return err
		}
	}

	var recent *store.Recent
	if cfg.Dedup.Enable {
		recent = store.NewRecent(cfg.Dedup.MaxKeys, cfg.Dedup.TTL)
		log.Printf("dedup enabled: max=%d ttl=%s", cfg.Dedup.MaxKeys, cfg.Dedup.TTL)
	}

	if cfg.Metrics.Enable {
		srv := metrics.NewServer(m, cfg.Metrics.ListenAddress,
			cfg.Metrics.ReadTimeout, cfg.Metrics.WriteTimeout, cfg.Metrics.IdleTimeout)
		if err := srv.Listen(); err != nil {
			return err
		}
		go func() {
			log.Printf("serving /metrics on %s", srv.Addr())
			if err := srv.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := display.NewConsole(os.Stdout, !*noClear)
	console.Banner(testMode, Version)

	pace := cfg.Scan.LivePace
	if testMode {
		pace = cfg.Scan.TestPace
	}
	d := &scan.Driver{
		Engine:   eng,
		Source:   src,
		Sink:     out,
		Display:  console,
		Metrics:  m,
		Recent:   recent,
		Workers:  cfg.Scan.Workers,
		MaxScans: cfg.Scan.MaxScans,
		Passes:   cfg.Scan.Passes,
		Interval: cfg.Scan.Interval,
		Pace:     pace,
		Verbose:  *verbose,
	}
	totals, err := d.Run(ctx)
	if err != nil {
		return err
	}

	reason := "Scan complete."
	if ctx.Err() != nil {
		reason = "Scan interrupted."
	}
	console.Summary(totals, reason)
	return nil
}
