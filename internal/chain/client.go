// Package chain holds one balance client per supported ledger. Every client
// classifies its own transport and parse conditions into a model.Outcome;
// nothing is returned as a Go error.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/governor"
	"github.com/9TreyRP/CryptoScanner/internal/model"
	"github.com/9TreyRP/CryptoScanner/internal/transport"
)

// Client fetches the balance of one address on one chain.
type Client interface {
	Chain() model.Chain
	Name() string
	Fetch(ctx context.Context, q model.ChainQuery) model.BalanceResult
}

// errRateLimited marks an upstream throttling signal carried in a 200 body.
var errRateLimited = errors.New("rate limited")

const maxBody = 2 << 20

// httpClient is the shared request/classify loop used by every live provider.
type httpClient struct {
	chain    model.Chain
	name     string
	pool     *transport.Pool
	gov      *governor.Governor
	validate func(address string) error
}

type buildFunc func(ctx context.Context, address string) (*http.Request, error)

// parseFunc turns a 200 body into minor units. Returning errRateLimited
// (possibly wrapped) classifies the result as Throttled.
type parseFunc func(body []byte, address string) (*big.Int, error)

func (h *httpClient) Chain() model.Chain { return h.chain }
func (h *httpClient) Name() string       { return h.name }

func (h *httpClient) fetch(ctx context.Context, q model.ChainQuery, build buildFunc, parse parseFunc) (res model.BalanceResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: recovered from panic for %s: %v", h.name, q.Address, r)
			res = model.Result(q, h.name, model.Failed, nil, fmt.Errorf("panic: %v", r))
		}
		res.Latency = time.Since(start)
	}()

	q.Chain = h.chain
	if h.validate != nil {
		if err := h.validate(q.Address); err != nil {
			return model.Result(q, h.name, model.Failed, nil, err)
		}
	}
	if !q.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, q.Deadline)
		defer cancel()
	}

	permit, err := h.gov.Acquire(ctx, h.chain)
	if err != nil {
		return model.Result(q, h.name, classifyErr(err), nil, err)
	}
	outcome := model.Failed
	defer func() { permit.Release(outcome) }()

	bal, outcome, err := h.roundTrip(ctx, q.Address, build, parse)
	return model.Result(q, h.name, outcome, bal, err)
}

func (h *httpClient) roundTrip(ctx context.Context, address string, build buildFunc, parse parseFunc) (*big.Int, model.Outcome, error) {
	req, err := build(ctx, address)
	if err != nil {
		return nil, model.Failed, fmt.Errorf("build request: %w", err)
	}
	if ua := h.pool.UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := h.pool.Client().Do(req)
	if err != nil {
		return nil, classifyErr(err), err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, classifyErr(err), fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, model.Throttled, fmt.Errorf("%s: http %d", h.name, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.Failed, fmt.Errorf("%s: http %d: %s", h.name, resp.StatusCode, snippet(b))
	}
	bal, err := parse(b, address)
	if errors.Is(err, errRateLimited) {
		return nil, model.Throttled, err
	}
	if err != nil {
		return nil, model.Failed, fmt.Errorf("%s: decode: %w", h.name, err)
	}
	if bal == nil || bal.Sign() < 0 {
		return nil, model.Failed, fmt.Errorf("%s: invalid balance %v", h.name, bal)
	}
	return bal, model.Success, nil
}

func classifyErr(err error) model.Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.TimedOut
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.TimedOut
	}
	return model.Failed
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// parseDecimal reads a base-10 integer without going through float64.
func parseDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}
