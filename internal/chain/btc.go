package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

const (
	DefaultBlockchainInfoURL = "https://blockchain.info"
	DefaultBlockstreamURL    = "https://blockstream.info/api"
)

func btcValidator(params *chaincfg.Params) func(string) error {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return func(address string) error {
		a, err := btcutil.DecodeAddress(address, params)
		if err != nil {
			return fmt.Errorf("invalid btc address %q: %w", address, err)
		}
		if !a.IsForNet(params) {
			return fmt.Errorf("btc address %q is not for %s", address, params.Name)
		}
		return nil
	}
}

// BlockchainInfo queries GET {base}/balance?active={addr}.
type BlockchainInfo struct {
	httpClient
	BaseURL string
}

func NewBlockchainInfo(baseURL string, pool *transport.Pool, gov *governor.Governor) *BlockchainInfo {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = DefaultBlockchainInfoURL
	}
	return &BlockchainInfo{
		httpClient: httpClient{
			chain:    model.ChainBTC,
			name:     "blockchain.info",
			pool:     pool,
			gov:      gov,
			validate: btcValidator(nil),
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

type blockchainInfoEntry struct {
	FinalBalance *json.Number `json:"final_balance"`
}

func (p *BlockchainInfo) Fetch(ctx context.Context, q model.ChainQuery) model.BalanceResult {
	return p.fetch(ctx, q, p.request, parseBlockchainInfo)
}

func (p *BlockchainInfo) request(ctx context.Context, address string) (*http.Request, error) {
	u := fmt.Sprintf("%s/balance?active=%s", p.BaseURL, url.QueryEscape(address))
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func parseBlockchainInfo(body []byte, address string) (*big.Int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]blockchainInfoEntry
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	e, ok := out[address]
	if !ok {
		return nil, fmt.Errorf("address %s missing from response", address)
	}
	if e.FinalBalance == nil {
		return nil, errors.New("missing final_balance")
	}
	return parseDecimal(e.FinalBalance.String())
}

// Blockstream queries GET {base}/address/{addr} and sums funded minus spent.
type Blockstream struct {
	httpClient
	BaseURL        string
	IncludeMempool bool
}

func NewBlockstream(baseURL string, includeMempool bool, pool *transport.Pool, gov *governor.Governor) *Blockstream {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = DefaultBlockstreamURL
	}
	return &Blockstream{
		httpClient: httpClient{
			chain:    model.ChainBTC,
			name:     "blockstream",
			pool:     pool,
			gov:      gov,
			validate: btcValidator(nil),
		},
		BaseURL:        strings.TrimRight(baseURL, "/"),
		IncludeMempool: includeMempool,
	}
}

type blockstreamStats struct {
	FundedTxoSum *uint64 `json:"funded_txo_sum"`
	SpentTxoSum  *uint64 `json:"spent_txo_sum"`
}

type blockstreamAddressResp struct {
	ChainStats   blockstreamStats `json:"chain_stats"`
	MempoolStats blockstreamStats `json:"mempool_stats"`
}

func (p *Blockstream) Fetch(ctx context.Context, q model.ChainQuery) model.BalanceResult {
	return p.fetch(ctx, q, p.request, p.parse)
}

func (p *Blockstream) request(ctx context.Context, address string) (*http.Request, error) {
	u := fmt.Sprintf("%s/address/%s", p.BaseURL, url.PathEscape(address))
	return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
}

func (p *Blockstream) parse(body []byte, _ string) (*big.Int, error) {
	var ar blockstreamAddressResp
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, err
	}
	total, err := ar.ChainStats.net()
	if err != nil {
		return nil, fmt.Errorf("chain_stats: %w", err)
	}
	if !p.IncludeMempool {
		return total, nil
	}
	mempool, err := ar.MempoolStats.net()
	if err != nil {
		return nil, fmt.Errorf("mempool_stats: %w", err)
	}
	return total.Add(total, mempool), nil
}

func (s blockstreamStats) net() (*big.Int, error) {
	if s.FundedTxoSum == nil || s.SpentTxoSum == nil {
		return nil, errors.New("missing funded/spent sums")
	}
	n := new(big.Int).SetUint64(*s.FundedTxoSum)
	return n.Sub(n, new(big.Int).SetUint64(*s.SpentTxoSum)), nil
}
