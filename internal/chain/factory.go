package chain

import (
	"fmt"

	"github.com/9TreyRP/CryptoScanner/internal/config"
	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

// NewFromConfig builds the client for chain c. In test mode the provider
// settings are ignored and no network client is created.
func NewFromConfig(c model.Chain, pc config.Provider, pool *transport.Pool, gov *governor.Governor, testMode bool) (Client, error) {
	if testMode {
		return NewTestMode(c), nil
	}
	switch c {
	case model.ChainBTC:
		switch pc.Type {
		case "blockchain.info", "":
			return NewBlockchainInfo(pc.BaseURL, pool, gov), nil
		case "blockstream":
			return NewBlockstream(pc.BaseURL, pc.IncludeMempool, pool, gov), nil
		}
	case model.ChainETH:
		switch pc.Type {
		case "etherscan", "":
			return NewEtherscan(pc.BaseURL, pc.APIKey, pc.ChainID, pool, gov), nil
		case "jsonrpc":
			return NewJSONRPC(pc.BaseURL, pool, gov), nil
		}
	default:
		return nil, fmt.Errorf("unsupported chain: %s", c)
	}
	return nil, fmt.Errorf("unknown %s provider: %s", c, pc.Type)
}

// FromConfig builds clients for every enabled chain in the fixed order BTC, ETH.
func FromConfig(cs config.Chains, pool *transport.Pool, gov *governor.Governor, testMode bool) ([]Client, error) {
	var out []Client
	for _, e := range []struct {
		chain model.Chain
		cfg   config.Chain
	}{
		{model.ChainBTC, cs.BTC},
		{model.ChainETH, cs.ETH},
	} {
		if e.cfg.Disabled {
			continue
		}
		cl, err := NewFromConfig(e.chain, e.cfg.Provider, pool, gov, testMode)
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no chains enabled")
	}
	return out, nil
}
