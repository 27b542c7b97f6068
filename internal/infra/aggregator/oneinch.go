package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/trade"
)

// DefaultOneInchURL is the 1inch developer portal gateway.
const DefaultOneInchURL = "https://api.1inch.dev"

// OneInch is the EVM swap aggregator client (API v6).
type OneInch struct {
	baseURL string
	apiKey  string
	retry   RetryConfig
}

// SetRetry replaces the retry policy.
func (o *OneInch) SetRetry(rc RetryConfig) { o.retry = rc }

// NewOneInch creates a client authenticating with a bearer apiKey.
func NewOneInch(baseURL, apiKey string) *OneInch {
	if baseURL == "" {
		baseURL = DefaultOneInchURL
	}
	return &OneInch{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, retry: DefaultRetryConfig()}
}

type oneInchSwap struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      uint64 `json:"gas"`
		GasPrice string `json:"gasPrice"`
	} `json:"tx"`
}

// Swap asks for a ready-to-sign swap transaction.
func (o *OneInch) Swap(ctx context.Context, hc *http.Client, req trade.SwapRequest) (trade.SwapTx, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return trade.SwapTx{}, fmt.Errorf("1inch swap: amount must be positive")
	}

	q := url.Values{}
	q.Set("src", req.Src)
	q.Set("dst", req.Dst)
	q.Set("amount", req.Amount.String())
	q.Set("from", req.From)
	q.Set("origin", req.Origin)
	q.Set("slippage", decimal.New(int64(req.Slippage), -2).String())

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	var resp oneInchSwap
	err := do(ctx, hc, o.retry, call{
		aggregator: "1inch",
		endpoint:   "swap",
		method:     http.MethodGet,
		url:        fmt.Sprintf("%s/swap/v6.0/%d/swap?%s", o.baseURL, req.ChainID, q.Encode()),
		header:     header,
	}, &resp)
	if err != nil {
		return trade.SwapTx{}, err
	}

	tx := trade.SwapTx{
		From: resp.Tx.From,
		To:   resp.Tx.To,
		Data: common.FromHex(resp.Tx.Data),
		Gas:  resp.Tx.Gas,
	}
	if tx.DstAmount, err = parseInt("dstAmount", resp.DstAmount); err != nil {
		return trade.SwapTx{}, err
	}
	if tx.Value, err = parseInt("value", resp.Tx.Value); err != nil {
		return trade.SwapTx{}, err
	}
	if tx.GasPrice, err = parseInt("gasPrice", resp.Tx.GasPrice); err != nil {
		return trade.SwapTx{}, err
	}
	if tx.To == "" || len(tx.Data) == 0 {
		return trade.SwapTx{}, fmt.Errorf("%w: 1inch swap: response has no transaction", domain.ErrAggregator)
	}
	return tx, nil
}

func parseInt(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: 1inch swap: bad %s %q", domain.ErrAggregator, field, s)
	}
	return v, nil
}
