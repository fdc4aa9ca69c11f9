// Package governor bounds in-flight upstream requests across all chain
// clients and keeps an adaptive delay per chain.
package governor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// ErrClosed is returned by Acquire once the governor has been shut down.
var ErrClosed = errors.New("governor: closed")

const minStep = 100 * time.Millisecond

type Config struct {
	MaxInFlight int                           // global ceiling, default 10
	BaseDelay   map[model.Chain]time.Duration // initial per-chain delay
	Factor      float64                       // multiplier on Throttled, default 1.5
	MaxDelay    time.Duration                 // cap, default 10s
	Decay       float64                       // 0 disables; in (0,1) shrinks delay on Success
}

// Observer receives state changes, e.g. to export them as metrics.
type Observer interface {
	InFlight(n int)
	Delay(chain model.Chain, d time.Duration)
}

type Governor struct {
	cfg   Config
	slots chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	delays   map[model.Chain]time.Duration
	inFlight int
	closed   bool
	obs      Observer
}

func New(cfg Config) *Governor {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 10
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 1.5
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Decay < 0 || cfg.Decay >= 1 {
		cfg.Decay = 0
	}
	delays := make(map[model.Chain]time.Duration, len(cfg.BaseDelay))
	for c, d := range cfg.BaseDelay {
		delays[c] = d
	}
	return &Governor{
		cfg:    cfg,
		slots:  make(chan struct{}, cfg.MaxInFlight),
		done:   make(chan struct{}),
		delays: delays,
	}
}

// SetObserver attaches o; nil detaches.
func (g *Governor) SetObserver(o Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.obs = o
	if o != nil {
		for c, d := range g.delays {
			o.Delay(c, d)
		}
	}
}

// Permit is one admitted request. Release must be called exactly once;
// further calls are no-ops.
type Permit struct {
	g     *Governor
	chain model.Chain
	once  sync.Once
}

func (p *Permit) Chain() model.Chain { return p.chain }

// Release returns the slot and feeds the outcome into the chain's delay.
func (p *Permit) Release(outcome model.Outcome) {
	p.once.Do(func() { p.g.release(p.chain, outcome) })
}

// Acquire blocks until fewer than MaxInFlight permits are outstanding, then
// waits the chain's current delay while holding the slot. It fails only when
// ctx is done or the governor is closed.
func (g *Governor) Acquire(ctx context.Context, chain model.Chain) (*Permit, error) {
	select {
	case <-g.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	select {
	case g.slots <- struct{}{}:
	case <-g.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		<-g.slots
		return nil, ErrClosed
	}
	g.inFlight++
	delay := g.delays[chain]
	g.notifyInFlight()
	g.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-g.done:
			t.Stop()
			g.giveBack()
			return nil, ErrClosed
		case <-ctx.Done():
			t.Stop()
			g.giveBack()
			return nil, ctx.Err()
		}
	}

	// Close may have raced the delay timer.
	select {
	case <-g.done:
		g.giveBack()
		return nil, ErrClosed
	default:
	}
	return &Permit{g: g, chain: chain}, nil
}

func (g *Governor) giveBack() {
	g.mu.Lock()
	g.inFlight--
	g.notifyInFlight()
	g.mu.Unlock()
	<-g.slots
}

func (g *Governor) release(chain model.Chain, outcome model.Outcome) {
	g.mu.Lock()
	g.inFlight--
	g.notifyInFlight()
	cur := g.delays[chain]
	next := cur
	switch outcome {
	case model.Throttled:
		next = max(time.Duration(float64(cur)*g.cfg.Factor), minStep)
		if next > g.cfg.MaxDelay {
			next = g.cfg.MaxDelay
		}
	case model.Success:
		if g.cfg.Decay > 0 {
			next = time.Duration(float64(cur) * g.cfg.Decay)
			if base := g.cfg.BaseDelay[chain]; next < base {
				next = base
			}
		}
	}
	if next != cur {
		g.delays[chain] = next
		if g.obs != nil {
			g.obs.Delay(chain, next)
		}
	}
	g.mu.Unlock()
	<-g.slots
}

func (g *Governor) notifyInFlight() {
	if g.obs != nil {
		g.obs.InFlight(g.inFlight)
	}
}

// Delay returns the chain's current adaptive delay.
func (g *Governor) Delay(chain model.Chain) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delays[chain]
}

// InFlight returns the number of outstanding permits.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Governor) MaxInFlight() int { return g.cfg.MaxInFlight }

// Close stops issuing permits. Outstanding permits may still be released.
func (g *Governor) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.done)
}

func (g *Governor) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
