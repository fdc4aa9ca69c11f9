// Package engine verifies one candidate by querying every supported chain
// concurrently and joining all results into a ScanRecord.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/9TreyRP/CryptoScanner/internal/chain"
	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// Observer is told about every finished query, e.g. for metrics.
type Observer interface {
	ObserveResult(r model.BalanceResult)
}

type Engine struct {
	clients      []chain.Client
	queryTimeout time.Duration
	obs          Observer
	verbose      bool
}

type Option func(*Engine)

// WithQueryTimeout bounds each query, including the wait for a governor
// permit. Zero leaves only the transport timeouts in place.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) { e.queryTimeout = d }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.obs = o }
}

func WithVerbose(v bool) Option {
	return func(e *Engine) { e.verbose = v }
}

// New keeps clients in the given order; that order is the record order.
func New(clients []chain.Client, opts ...Option) (*Engine, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("engine: no chain clients")
	}
	seen := make(map[model.Chain]bool, len(clients))
	for _, c := range clients {
		if seen[c.Chain()] {
			return nil, fmt.Errorf("engine: duplicate client for chain %s", c.Chain())
		}
		seen[c.Chain()] = true
	}
	e := &Engine{clients: clients}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Chains returns the supported chains in record order.
func (e *Engine) Chains() []model.Chain {
	out := make([]model.Chain, len(e.clients))
	for i, c := range e.clients {
		out[i] = c.Chain()
	}
	return out
}

// Verify queries every chain concurrently and waits for all of them. The
// record always holds one result per chain; nothing is retried.
func (e *Engine) Verify(ctx context.Context, cand model.Candidate) model.ScanRecord {
	rec := model.ScanRecord{
		ID:        uuid.NewString(),
		Candidate: cand,
		Results:   make([]model.BalanceResult, len(e.clients)),
	}

	var deadline time.Time
	if e.queryTimeout > 0 {
		deadline = time.Now().Add(e.queryTimeout)
	}

	// Missing addresses never reach a client, so they are kept out of
	// request telemetry.
	queried := make([]bool, len(e.clients))
	var wg sync.WaitGroup
	for i, c := range e.clients {
		q := model.ChainQuery{Chain: c.Chain(), Address: cand.Addresses[c.Chain()], Deadline: deadline}
		if q.Address == "" {
			rec.Results[i] = model.Result(q, c.Name(), model.Failed, nil, fmt.Errorf("candidate has no %s address", q.Chain))
			continue
		}
		queried[i] = true
		wg.Add(1)
		go func(i int, c chain.Client) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					rec.Results[i] = model.Result(q, c.Name(), model.Failed, nil, fmt.Errorf("panic: %v", r))
				}
			}()
			rec.Results[i] = c.Fetch(ctx, q)
		}(i, c)
	}
	wg.Wait()
	rec.CheckedAt = time.Now()

	for i, r := range rec.Results {
		if e.obs != nil && queried[i] {
			e.obs.ObserveResult(r)
		}
		if e.verbose && r.Outcome != model.Success {
			log.Printf("engine: %s %s via %s: %s (%s)", r.Chain, r.Address, r.Provider, r.Outcome, r.Err)
		}
	}
	return rec
}

// Interesting is the single verdict derived from a record.
func Interesting(rec model.ScanRecord) bool { return rec.Interesting() }
