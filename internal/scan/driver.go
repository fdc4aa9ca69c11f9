// Package scan drives the verification loop: it pulls candidates from a
// source, verifies them and routes records to the sinks.
package scan

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/display"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/sink"
	"github.com/9TreyRP/CryptoScanner/internal/source"
	"github.com/9TreyRP/CryptoScanner/internal/store"
)

type Verifier interface {
	Verify(ctx context.Context, c model.Candidate) model.ScanRecord
}

type Renderer interface {
	Render(rec model.ScanRecord, t display.Totals)
}

// Telemetry is optional; see metrics.Metrics.
type Telemetry interface {
	Candidate(rec model.ScanRecord)
	Dropped()
}

type Driver struct {
	Engine   Verifier
	Source   source.Source
	Sink     sink.Recorder
	Display  Renderer      // optional
	Metrics  Telemetry     // optional
	Recent   *store.Recent // optional
	Workers  int
	MaxScans int           // 0 = unbounded
	Passes   int           // 0 = until cancelled
	Interval time.Duration // between passes
	Pace     time.Duration // per worker, between candidates
	Verbose  bool

	mu     sync.Mutex
	totals display.Totals
	claims atomic.Int64
}

// Run blocks until every pass is done, MaxScans is reached or ctx is
// cancelled. A cancelled context is not an error.
func (d *Driver) Run(ctx context.Context) (display.Totals, error) {
	if d.Engine == nil || d.Source == nil || d.Sink == nil {
		return display.Totals{}, errors.New("scan: engine, source and sink are required")
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}

	for pass := 1; d.Passes <= 0 || pass <= d.Passes; pass++ {
		if pass > 1 {
			d.Source.Reset()
			if !sleep(ctx, d.Interval) {
				break
			}
		}
		if d.Verbose {
			log.Printf("scan: pass %d from %s with %d worker(s)", pass, d.Source.Name(), workers)
		}

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.work(ctx)
			}()
		}
		wg.Wait()

		if ctx.Err() != nil || d.limitReached() {
			break
		}
	}
	return d.Totals(), nil
}

func (d *Driver) work(ctx context.Context) {
	first := true
	for {
		if d.limitReached() {
			return
		}
		c, ok := d.Source.Next(ctx)
		if !ok {
			return
		}
		if d.Recent != nil && d.Recent.Seen(c) {
			if d.Verbose {
				log.Printf("scan: %s checked recently, skipping", c.Label)
			}
			continue
		}
		if !first && !sleep(ctx, d.Pace) {
			return
		}
		first = false
		if d.MaxScans > 0 && d.claims.Add(1) > int64(d.MaxScans) {
			return
		}

		rec := d.Engine.Verify(ctx, c)
		if ctx.Err() != nil {
			// An interrupted record only counts if some chain already
			// answered with funds; the rest are cancellations.
			if rec.Interesting() {
				d.handle(context.WithoutCancel(ctx), rec)
			}
			return
		}
		d.handle(ctx, rec)
	}
}

// handle must not be given a cancelled ctx: the sink write has to happen.
func (d *Driver) handle(ctx context.Context, rec model.ScanRecord) {
	d.mu.Lock()
	d.totals.Add(rec)
	t := d.totals
	if d.Display != nil {
		d.Display.Render(rec, t)
	}
	d.mu.Unlock()

	if d.Metrics != nil {
		d.Metrics.Candidate(rec)
	}
	if rec.Interesting() {
		if err := d.Sink.Record(ctx, rec); err != nil {
			log.Printf("scan: persist %s via %s: %v", rec.ID, d.Sink.Name(), err)
			if errors.Is(err, sink.ErrFull) && d.Metrics != nil {
				d.Metrics.Dropped()
			}
		}
	}
	if d.Recent != nil && allSucceeded(rec) {
		d.Recent.Mark(rec.Candidate)
	}
}

func (d *Driver) limitReached() bool {
	if d.MaxScans <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals.Scanned >= d.MaxScans
}

// Totals returns a snapshot of the running counters.
func (d *Driver) Totals() display.Totals {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals
}

func allSucceeded(rec model.ScanRecord) bool {
	for _, r := range rec.Results {
		if r.Outcome != model.Success {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
