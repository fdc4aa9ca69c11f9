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
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

const (
	DefaultEtherscanURL = "https://api.etherscan.io/v2/api"
	DefaultEVMRPC       = "https://cloudflare-eth.com"
)

func ethValidator(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid eth address %q", address)
	}
	return nil
}

// Etherscan queries the account/balance action. Etherscan reports its own
// rate limit inside a 200 body, which is classified as Throttled.
type Etherscan struct {
	httpClient
	BaseURL string
	APIKey  string
	ChainID int64 // sent as chainid when > 0
}

func NewEtherscan(baseURL, apiKey string, chainID int64, pool *transport.Pool, gov *governor.Governor) *Etherscan {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = DefaultEtherscanURL
	}
	return &Etherscan{
		httpClient: httpClient{
			chain:    model.ChainETH,
			name:     "etherscan",
			pool:     pool,
			gov:      gov,
			validate: ethValidator,
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		ChainID: chainID,
	}
}

type etherscanResp struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (p *Etherscan) Fetch(ctx context.Context, q model.ChainQuery) model.BalanceResult {
	return p.fetch(ctx, q, p.request, parseEtherscan)
}

func (p *Etherscan) request(ctx context.Context, address string) (*http.Request, error) {
	q := url.Values{}
	if p.ChainID > 0 {
		q.Set("chainid", strconv.FormatInt(p.ChainID, 10))
	}
	q.Set("module", "account")
	q.Set("action", "balance")
	q.Set("address", address)
	q.Set("tag", "latest")
	if p.APIKey != "" {
		q.Set("apikey", p.APIKey)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"?"+q.Encode(), nil)
}

func parseEtherscan(body []byte, _ string) (*big.Int, error) {
	var r etherscanResp
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	var result string
	if len(r.Result) > 0 {
		if err := json.Unmarshal(r.Result, &result); err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
	}
	if r.Status != "1" {
		msg := strings.TrimSpace(r.Message + " " + result)
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return nil, fmt.Errorf("etherscan: %s: %w", msg, errRateLimited)
		}
		return nil, fmt.Errorf("status %q: %s", r.Status, msg)
	}
	return parseDecimal(result)
}

// JSONRPC queries eth_getBalance on any EVM node.
type JSONRPC struct {
	httpClient
	RPCURL string
}

func NewJSONRPC(rpcURL string, pool *transport.Pool, gov *governor.Governor) *JSONRPC {
	if !strings.HasPrefix(rpcURL, "http") {
		rpcURL = DefaultEVMRPC
	}
	return &JSONRPC{
		httpClient: httpClient{
			chain:    model.ChainETH,
			name:     "jsonrpc",
			pool:     pool,
			gov:      gov,
			validate: ethValidator,
		},
		RPCURL: rpcURL,
	}
}

type rpcReq struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResp struct {
	Result *string   `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// limitExceeded is the JSON-RPC error code public nodes use for throttling.
const limitExceeded = -32005

func (p *JSONRPC) Fetch(ctx context.Context, q model.ChainQuery) model.BalanceResult {
	return p.fetch(ctx, q, p.request, parseJSONRPC)
}

func (p *JSONRPC) request(ctx context.Context, address string) (*http.Request, error) {
	raw, err := json.Marshal(rpcReq{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_getBalance",
		Params:  []any{address, "latest"},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RPCURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func parseJSONRPC(body []byte, _ string) (*big.Int, error) {
	var out rpcResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		err := fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
		if out.Error.Code == limitExceeded {
			return nil, fmt.Errorf("%w: %w", errRateLimited, err)
		}
		return nil, err
	}
	if out.Result == nil {
		return nil, errors.New("empty result")
	}
	return hexutil.DecodeBig(*out.Result)
}
