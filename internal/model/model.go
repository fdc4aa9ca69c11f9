package model

import (
	"math/big"
	"time"
)

// Chain identifies one supported ledger.
type Chain string

const (
	ChainBTC Chain = "btc"
	ChainETH Chain = "eth"
)

func (c Chain) String() string { return string(c) }

// Decimals returns the chain-native precision of one whole coin.
func (c Chain) Decimals() int {
	switch c {
	case ChainBTC:
		return 8
	case ChainETH:
		return 18
	default:
		return 0
	}
}

// Outcome is the terminal state of a single ChainQuery.
type Outcome int

const (
	Pending Outcome = iota
	Success
	Throttled
	Failed
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (o Outcome) Terminal() bool { return o != Pending }

// ChainQuery is consumed by exactly one client call.
type ChainQuery struct {
	Chain    Chain
	Address  string
	Deadline time.Time
}

// BalanceResult is produced once per ChainQuery and never mutated afterwards.
type BalanceResult struct {
	Chain    Chain
	Address  string
	Provider string
	Balance  *big.Int // minor units (satoshi, wei), never nil
	Decimals int
	Outcome  Outcome
	Err      string // diagnostic only
	Latency  time.Duration
}

// Result builds a terminal result. A nil balance is stored as zero.
func Result(q ChainQuery, provider string, outcome Outcome, balance *big.Int, err error) BalanceResult {
	if balance == nil || outcome != Success {
		balance = new(big.Int)
	}
	r := BalanceResult{
		Chain:    q.Chain,
		Address:  q.Address,
		Provider: provider,
		Balance:  balance,
		Decimals: q.Chain.Decimals(),
		Outcome:  outcome,
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Positive reports a successful lookup with funds.
func (r BalanceResult) Positive() bool {
	return r.Outcome == Success && r.Balance != nil && r.Balance.Sign() > 0
}

// Amount returns the balance normalized to whole coins.
func (r BalanceResult) Amount() *big.Rat { return Normalize(r.Balance, r.Decimals) }

// Candidate is one set of per-chain addresses evaluated once.
type Candidate struct {
	Label     string // opaque key material or operator-supplied label
	Addresses map[Chain]string
}

// ScanRecord holds exactly one result per supported chain, in engine order.
type ScanRecord struct {
	ID        string
	Candidate Candidate
	Results   []BalanceResult
	CheckedAt time.Time
}

// Interesting is true iff at least one chain succeeded with a positive balance.
func (s ScanRecord) Interesting() bool {
	for _, r := range s.Results {
		if r.Positive() {
			return true
		}
	}
	return false
}

// Result returns the result for chain c, if the record has one.
func (s ScanRecord) Result(c Chain) (BalanceResult, bool) {
	for _, r := range s.Results {
		if r.Chain == c {
			return r, true
		}
	}
	return BalanceResult{}, false
}
