package trade

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"sync"

	"github.com/tide-labs/tide/internal/domain"
)

// ─── Shared fakes ───────────────────────────────────────────────────────────

type staticProxies struct{}

func (staticProxies) Acquire() (string, *http.Client) { return "no proxy", http.DefaultClient }

type narration struct {
	mu   sync.Mutex
	msgs []string
}

func (n *narration) cycle(cfg domain.TradeConfig) Cycle {
	return Cycle{TaskID: "t1", WorkerID: 0, Config: cfg, Narrate: func(m string) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.msgs = append(n.msgs, m)
	}}
}

func (n *narration) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// fixed returns a policy RNG that always yields v (clamped to n-1).
func fixed(v int) func(int) int {
	return func(n int) int {
		if v >= n {
			return n - 1
		}
		return v
	}
}

// ─── Solana fakes ───────────────────────────────────────────────────────────

type fakeSolana struct {
	lamports uint64
	tokens   uint64
	statuses []SignatureStatus
	statusFn func() (SignatureStatus, error)

	mu      sync.Mutex
	sent    [][]Instruction
	budgets []ComputeBudget
	polled  int
}

func (f *fakeSolana) Wallet(key domain.PrivateKey) (string, error) { return "owner-" + string(key), nil }

func (f *fakeSolana) AssociatedTokenAccount(owner, mint string) (string, error) {
	return owner + "/" + mint, nil
}

func (f *fakeSolana) Balance(context.Context, string) (uint64, error) { return f.lamports, nil }

func (f *fakeSolana) TokenAccountBalance(context.Context, string) (uint64, error) {
	return f.tokens, nil
}

func (f *fakeSolana) AddressLookupTables(_ context.Context, addrs []string) ([]LookupTable, error) {
	out := make([]LookupTable, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, LookupTable{Key: a})
	}
	return out, nil
}

func (f *fakeSolana) SendVersioned(_ context.Context, _ domain.PrivateKey, budget ComputeBudget, ixs []Instruction, _ []LookupTable) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ixs)
	f.budgets = append(f.budgets, budget)
	return "sig1", nil
}

func (f *fakeSolana) SignatureStatus(context.Context, string) (SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled++
	if f.statusFn != nil {
		return f.statusFn()
	}
	if len(f.statuses) == 0 {
		return SignatureStatus{}, nil
	}
	st := f.statuses[0]
	f.statuses = f.statuses[1:]
	return st, nil
}

type fakeJupiter struct {
	quotes   []QuoteRequest
	quoteErr error
}

func (f *fakeJupiter) Quote(_ context.Context, _ *http.Client, req QuoteRequest) (Quote, error) {
	f.quotes = append(f.quotes, req)
	if f.quoteErr != nil {
		return Quote{}, f.quoteErr
	}
	return Quote{InAmount: "1", OutAmount: "2", Raw: []byte(`{"inAmount":"1"}`)}, nil
}

func (f *fakeJupiter) SwapInstructions(context.Context, *http.Client, Quote, string) (SwapInstructions, error) {
	cleanup := Instruction{ProgramID: "cleanup"}
	return SwapInstructions{
		Setup:        []Instruction{{ProgramID: "setup"}},
		Swap:         Instruction{ProgramID: "swap"},
		Cleanup:      &cleanup,
		LookupTables: []string{"alt1"},
	}, nil
}

// ─── EVM fakes ──────────────────────────────────────────────────────────────

type fakeEVM struct {
	native    *big.Int
	token     *big.Int
	allowance *big.Int

	approveOK bool
	swapOK    bool

	approvals []*big.Int
	sent      []SwapTx
}

func (f *fakeEVM) Wallet(key domain.PrivateKey) (string, error) { return "0xowner" + string(key), nil }

func (f *fakeEVM) Balance(context.Context, string) (*big.Int, error) { return f.native, nil }

func (f *fakeEVM) TokenBalance(context.Context, string, string) (*big.Int, error) {
	return f.token, nil
}

func (f *fakeEVM) Allowance(context.Context, string, string, string) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeEVM) Approve(_ context.Context, _ domain.PrivateKey, _, _ string, amount *big.Int) (Receipt, error) {
	f.approvals = append(f.approvals, amount)
	return Receipt{TxHash: "0xapprove", Success: f.approveOK}, nil
}

func (f *fakeEVM) SendTransaction(_ context.Context, _ domain.PrivateKey, tx SwapTx) (Receipt, error) {
	f.sent = append(f.sent, tx)
	return Receipt{TxHash: "0xswap", Success: f.swapOK}, nil
}

type fakeOneInch struct {
	reqs []SwapRequest
	tx   SwapTx
	err  error
}

func (f *fakeOneInch) Swap(_ context.Context, _ *http.Client, req SwapRequest) (SwapTx, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return SwapTx{}, f.err
	}
	return f.tx, nil
}

var errAggregatorDown = errors.New("aggregator down")
