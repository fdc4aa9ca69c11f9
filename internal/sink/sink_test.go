package sink

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9TreyRP/CryptoScanner/internal/config"
	"github.com/9TreyRP/CryptoScanner/internal/model"
)

func record() model.ScanRecord {
	btc := model.ChainQuery{Chain: model.ChainBTC, Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}
	eth := model.ChainQuery{Chain: model.ChainETH, Address: "0x000000000000000000000000000000000000dEaD"}
	return model.ScanRecord{
		ID:        "rec-1",
		Candidate: model.Candidate{Label: "genesis"},
		CheckedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local),
		Results: []model.BalanceResult{
			model.Result(btc, "blockchain.info", model.Success, big.NewInt(150000000), nil),
			model.Result(eth, "etherscan", model.Throttled, nil, nil),
		},
	}
}

func TestFile_AppendsBlocks(t *testing.T) {
	p := filepath.Join(t.TempDir(), "found.txt")
	f, err := NewFile(p)
	require.NoError(t, err)
	require.NoError(t, f.Record(context.Background(), record()))
	require.NoError(t, f.Record(context.Background(), record()))
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Record(context.Background(), record()), ErrClosed)

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	out := string(b)
	assert.Equal(t, 2, strings.Count(out, "FOUND WALLET"))
	assert.Contains(t, out, "[2024-01-02 03:04:05] FOUND WALLET")
	assert.Contains(t, out, "BTC: 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa - Balance: 1.5 (success via blockchain.info)")
	assert.Contains(t, out, "ETH: 0x000000000000000000000000000000000000dEaD - Balance: 0 (throttled via etherscan)")
	assert.Contains(t, out, "Label: genesis")
	assert.Contains(t, out, strings.Repeat("-", 70))
}

func TestSQLite_Record(t *testing.T) {
	p := filepath.Join(t.TempDir(), "found.db")
	s, err := NewSQLite(p)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, record()))
	n, err := s.Count(ctx, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same record id twice violates the append-only key.
	assert.Error(t, s.Record(ctx, record()))
}

type slowRecorder struct {
	mu     sync.Mutex
	gate   chan struct{}
	got    []string
	closed bool
}

func (s *slowRecorder) Name() string { return "slow" }

func (s *slowRecorder) Record(_ context.Context, rec model.ScanRecord) error {
	<-s.gate
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, rec.ID)
	return nil
}

func (s *slowRecorder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestAsync_NeverBlocksAndDrains(t *testing.T) {
	slow := &slowRecorder{gate: make(chan struct{})}
	a := NewAsync(slow, 2)

	done := make(chan struct{})
	var errs []error
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			rec := record()
			rec.ID = string(rune('a' + i))
			errs = append(errs, a.Record(context.Background(), rec))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow recorder")
	}

	var full int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrFull)
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 2)
	assert.Equal(t, int64(full), a.Dropped())

	close(slow.gate)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.True(t, slow.closed)
	assert.Len(t, slow.got, 5-full)
	assert.ErrorIs(t, a.Record(context.Background(), record()), ErrClosed)
}

type brokenRecorder struct{ Noop }

func (brokenRecorder) Record(context.Context, model.ScanRecord) error { return errors.New("disk full") }

func TestAsync_CountsFailedWrites(t *testing.T) {
	a := NewAsync(brokenRecorder{}, 4)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Record(context.Background(), record()))
	}
	require.NoError(t, a.Close())
	assert.Equal(t, int64(3), a.Failed())
	assert.Equal(t, int64(0), a.Dropped())
}

func TestNewFromConfig(t *testing.T) {
	r, err := NewFromConfig(config.Sink{Type: "file", Path: filepath.Join(t.TempDir(), "x.txt")}, true)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, r)

	r, err = NewFromConfig(config.Sink{Type: "file", Path: filepath.Join(t.TempDir(), "x.txt")}, false)
	require.NoError(t, err)
	assert.IsType(t, &Async{}, r)
	require.NoError(t, r.Close())

	_, err = NewFromConfig(config.Sink{Type: "s3"}, false)
	assert.Error(t, err)
}
