package chain

import (
	"testing"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

const (
	btcAddr = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	ethAddr = "0x000000000000000000000000000000000000dEaD"
)

func newDeps(t *testing.T, timeout time.Duration) (*transport.Pool, *governor.Governor) {
	t.Helper()
	gov := governor.New(governor.Config{MaxInFlight: 4})
	pool := transport.New(transport.Options{RequestTimeout: timeout, UserAgent: "scanner-test"})
	pool.OnClose(gov)
	t.Cleanup(pool.Close)
	return pool, gov
}
