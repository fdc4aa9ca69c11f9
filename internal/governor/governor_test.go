package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

func TestAcquire_NeverExceedsCeiling(t *testing.T) {
	for _, burst := range []int{1, 2, 7, 40} {
		g := New(Config{MaxInFlight: 2})

		var cur, peak int64
		var wg sync.WaitGroup
		for i := 0; i < burst; i++ {
			chain := model.ChainBTC
			if i%2 == 1 {
				chain = model.ChainETH
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := g.Acquire(context.Background(), chain)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt64(&cur, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&cur, -1)
				p.Release(model.Success)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2), "burst=%d", burst)
		assert.Equal(t, 0, g.InFlight())
	}
}

// admit takes a slot without the chain delay so release can be driven directly.
func admit(g *Governor) {
	g.slots <- struct{}{}
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()
}

func TestRelease_ThrottledBacksOffOnlyThatChain(t *testing.T) {
	g := New(Config{
		MaxInFlight: 4,
		BaseDelay: map[model.Chain]time.Duration{
			model.ChainBTC: 0,
			model.ChainETH: 20 * time.Millisecond,
		},
	})
	ctx := context.Background()

	beforeBTC := g.Delay(model.ChainBTC)
	beforeETH := g.Delay(model.ChainETH)

	p, err := g.Acquire(ctx, model.ChainBTC)
	require.NoError(t, err)
	p.Release(model.Throttled)

	assert.Greater(t, g.Delay(model.ChainBTC), beforeBTC)
	assert.Equal(t, beforeETH, g.Delay(model.ChainETH))

	p, err = g.Acquire(ctx, model.ChainETH)
	require.NoError(t, err)
	p.Release(model.Throttled)
	assert.Greater(t, g.Delay(model.ChainETH), beforeETH)
}

func TestRelease_MultiplicativeAndCapped(t *testing.T) {
	g := New(Config{
		MaxInFlight: 1,
		MaxDelay:    time.Second,
		BaseDelay:   map[model.Chain]time.Duration{model.ChainBTC: 400 * time.Millisecond},
	})
	admit(g)
	g.release(model.ChainBTC, model.Throttled)
	assert.Equal(t, 600*time.Millisecond, g.Delay(model.ChainBTC))
	admit(g)
	g.release(model.ChainBTC, model.Throttled)
	assert.Equal(t, 900*time.Millisecond, g.Delay(model.ChainBTC))
	admit(g)
	g.release(model.ChainBTC, model.Throttled)
	assert.Equal(t, time.Second, g.Delay(model.ChainBTC))
}

func TestRelease_SmallDelayGrowsToMinStep(t *testing.T) {
	g := New(Config{BaseDelay: map[model.Chain]time.Duration{model.ChainETH: 50 * time.Millisecond}})
	admit(g)
	g.release(model.ChainETH, model.Throttled)
	assert.Equal(t, minStep, g.Delay(model.ChainETH))

	admit(g)
	g.release(model.ChainETH, model.Throttled)
	assert.Equal(t, 150*time.Millisecond, g.Delay(model.ChainETH))
}

func TestRelease_OtherOutcomesKeepDelay(t *testing.T) {
	g := New(Config{BaseDelay: map[model.Chain]time.Duration{model.ChainETH: 300 * time.Millisecond}})
	for _, o := range []model.Outcome{model.Success, model.Failed, model.TimedOut} {
		admit(g)
		g.release(model.ChainETH, o)
		assert.Equal(t, 300*time.Millisecond, g.Delay(model.ChainETH), o.String())
	}
}

func TestRelease_DecayFloorsAtBase(t *testing.T) {
	g := New(Config{
		Decay:     0.5,
		BaseDelay: map[model.Chain]time.Duration{model.ChainBTC: 500 * time.Millisecond},
	})
	admit(g)
	g.release(model.ChainBTC, model.Throttled)
	require.Equal(t, 750*time.Millisecond, g.Delay(model.ChainBTC))

	admit(g)
	g.release(model.ChainBTC, model.Success)
	assert.Equal(t, 500*time.Millisecond, g.Delay(model.ChainBTC))
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	g := New(Config{MaxInFlight: 1})
	p, err := g.Acquire(context.Background(), model.ChainBTC)
	require.NoError(t, err)
	p.Release(model.Throttled)
	p.Release(model.Throttled)
	assert.Equal(t, 0, g.InFlight())
	assert.Equal(t, minStep, g.Delay(model.ChainBTC))
}

func TestAcquire_WaitsChainDelay(t *testing.T) {
	g := New(Config{BaseDelay: map[model.Chain]time.Duration{model.ChainETH: 30 * time.Millisecond}})
	start := time.Now()
	p, err := g.Acquire(context.Background(), model.ChainETH)
	require.NoError(t, err)
	defer p.Release(model.Success)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAcquire_CancelledWhileBlocked(t *testing.T) {
	g := New(Config{MaxInFlight: 1})
	p, err := g.Acquire(context.Background(), model.ChainBTC)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, model.ChainBTC)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(model.Success)
	assert.Equal(t, 0, g.InFlight())
}

func TestClose_NoFurtherPermits(t *testing.T) {
	g := New(Config{MaxInFlight: 1})
	held, err := g.Acquire(context.Background(), model.ChainBTC)
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background(), model.ChainETH)
		blocked <- err
	}()

	g.Close()
	g.Close()
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Acquire did not observe Close")
	}

	held.Release(model.Success)
	_, err = g.Acquire(context.Background(), model.ChainBTC)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, g.Closed())
	assert.Equal(t, 0, g.InFlight())
}

type recordingObserver struct {
	mu     sync.Mutex
	peak   int
	delays map[model.Chain]time.Duration
}

func (r *recordingObserver) InFlight(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.peak {
		r.peak = n
	}
}

func (r *recordingObserver) Delay(c model.Chain, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays[c] = d
}

func TestObserver_SeesStateChanges(t *testing.T) {
	g := New(Config{MaxInFlight: 3})
	obs := &recordingObserver{delays: map[model.Chain]time.Duration{}}
	g.SetObserver(obs)

	p1, err := g.Acquire(context.Background(), model.ChainBTC)
	require.NoError(t, err)
	p2, err := g.Acquire(context.Background(), model.ChainETH)
	require.NoError(t, err)
	p1.Release(model.Success)
	p2.Release(model.Throttled)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 2, obs.peak)
	assert.Equal(t, minStep, obs.delays[model.ChainETH])
}
