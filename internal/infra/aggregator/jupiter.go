package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/tide-labs/tide/internal/infra/trade"
)

// DefaultJupiterURL is the public Jupiter swap API.
const DefaultJupiterURL = "https://quote-api.jup.ag/v6"

// Jupiter is the Solana route aggregator client.
type Jupiter struct {
	baseURL string
	retry   RetryConfig
}

// SetRetry replaces the retry policy.
func (j *Jupiter) SetRetry(rc RetryConfig) { j.retry = rc }

// NewJupiter creates a client for the API at baseURL.
func NewJupiter(baseURL string) *Jupiter {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	return &Jupiter{baseURL: strings.TrimRight(baseURL, "/"), retry: DefaultRetryConfig()}
}

type jupQuote struct {
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
}

// Quote asks for the best route of req.Amount input tokens.
func (j *Jupiter) Quote(ctx context.Context, hc *http.Client, req trade.QuoteRequest) (trade.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	if req.OnlyDirectRoutes {
		q.Set("onlyDirectRoutes", "true")
	}

	var raw jsoniter.RawMessage
	err := do(ctx, hc, j.retry, call{
		aggregator: "jupiter",
		endpoint:   "quote",
		method:     http.MethodGet,
		url:        j.baseURL + "/quote?" + q.Encode(),
	}, &raw)
	if err != nil {
		return trade.Quote{}, err
	}

	var parsed jupQuote
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return trade.Quote{}, fmt.Errorf("decode jupiter quote: %w", err)
	}
	return trade.Quote{InAmount: parsed.InAmount, OutAmount: parsed.OutAmount, Raw: raw}, nil
}

type jupSwapRequest struct {
	QuoteResponse     jsoniter.RawMessage `json:"quoteResponse"`
	UserPublicKey     string              `json:"userPublicKey"`
	WrapAndUnwrapSol  bool                `json:"wrapAndUnwrapSol"`
	UseSharedAccounts bool                `json:"useSharedAccounts"`
}

type jupSwapInstructions struct {
	Error                       string              `json:"error"`
	SetupInstructions           []trade.Instruction `json:"setupInstructions"`
	SwapInstruction             *trade.Instruction  `json:"swapInstruction"`
	CleanupInstruction          *trade.Instruction  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string            `json:"addressLookupTableAddresses"`
}

// SwapInstructions turns a quote into the instructions user must sign.
// The aggregator's own compute-budget instructions are discarded; the
// executor sets limit and price itself.
func (j *Jupiter) SwapInstructions(ctx context.Context, hc *http.Client, quote trade.Quote, user string) (trade.SwapInstructions, error) {
	var resp jupSwapInstructions
	err := do(ctx, hc, j.retry, call{
		aggregator: "jupiter",
		endpoint:   "swap-instructions",
		method:     http.MethodPost,
		url:        j.baseURL + "/swap-instructions",
		body: jupSwapRequest{
			QuoteResponse:     jsoniter.RawMessage(quote.Raw),
			UserPublicKey:     user,
			WrapAndUnwrapSol:  true,
			UseSharedAccounts: false,
		},
	}, &resp)
	if err != nil {
		return trade.SwapInstructions{}, err
	}
	if resp.Error != "" {
		return trade.SwapInstructions{}, fmt.Errorf("jupiter swap-instructions: %s", resp.Error)
	}
	if resp.SwapInstruction == nil {
		return trade.SwapInstructions{}, fmt.Errorf("jupiter swap-instructions: response has no swap instruction")
	}
	return trade.SwapInstructions{
		Setup:        resp.SetupInstructions,
		Swap:         *resp.SwapInstruction,
		Cleanup:      resp.CleanupInstruction,
		LookupTables: resp.AddressLookupTableAddresses,
	}, nil
}
