package model

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_NonSuccessIsZero(t *testing.T) {
	q := ChainQuery{Chain: ChainBTC, Address: "1abc"}
	r := Result(q, "test", Throttled, big.NewInt(500), errors.New("rate limited"))
	assert.Equal(t, int64(0), r.Balance.Int64())
	assert.Equal(t, Throttled, r.Outcome)
	assert.Equal(t, "rate limited", r.Err)
	assert.Equal(t, 8, r.Decimals)

	r = Result(q, "test", Success, nil, nil)
	assert.NotNil(t, r.Balance)
	assert.False(t, r.Positive())
}

func TestScanRecord_Interesting(t *testing.T) {
	btc := ChainQuery{Chain: ChainBTC, Address: "1abc"}
	eth := ChainQuery{Chain: ChainETH, Address: "0xabc"}

	rec := ScanRecord{Results: []BalanceResult{
		Result(btc, "p", Success, big.NewInt(0), nil),
		Result(eth, "p", Failed, nil, errors.New("boom")),
	}}
	assert.False(t, rec.Interesting())

	rec.Results[1] = Result(eth, "p", Success, big.NewInt(1), nil)
	assert.True(t, rec.Interesting())

	r, ok := rec.Result(ChainETH)
	assert.True(t, ok)
	assert.Equal(t, "0xabc", r.Address)
}

func TestOutcome_Terminal(t *testing.T) {
	assert.False(t, Pending.Terminal())
	for _, o := range []Outcome{Success, Throttled, Failed, TimedOut} {
		assert.True(t, o.Terminal(), o.String())
	}
}
