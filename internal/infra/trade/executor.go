// Package trade implements one trade cycle for a leased wallet: choose a
// direction and amount, ask a swap aggregator for a route, sign, submit and
// confirm. Two strategies exist, selected once per task by chain family:
//   - SolanaExecutor: instruction-based (Jupiter swap-instructions, v0 tx)
//   - EVMExecutor:    signed-transaction-based (1inch swap payload)
//
// Chain and aggregator access sit behind the interfaces below so the
// strategies can be exercised without a network.
package trade

import (
	"context"
	"math/big"
	"net/http"

	"github.com/tide-labs/tide/internal/domain"
)

// Cycle carries the per-cycle identity and the worker's config snapshot.
type Cycle struct {
	TaskID   string
	WorkerID uint32
	Config   domain.TradeConfig

	// Narrate publishes an intermediate progress message for observers.
	Narrate func(msg string)
}

func (c Cycle) narrate(msg string) {
	if c.Narrate != nil {
		c.Narrate(msg)
	}
}

// ProxyPool hands out HTTP clients for aggregator requests in rotation.
type ProxyPool interface {
	Acquire() (label string, client *http.Client)
}

// ─── Solana ─────────────────────────────────────────────────────────────────

// AccountMeta is one account reference of an instruction.
type AccountMeta struct {
	PubKey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// Instruction is a chain-agnostic Solana instruction.
type Instruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// LookupTable is a resolved address lookup table.
type LookupTable struct {
	Key       string
	Addresses []string
}

// ComputeBudget prices a Solana transaction: a compute-unit ceiling and a
// priority fee in micro-lamports per unit.
type ComputeBudget struct {
	UnitLimit uint32
	UnitPrice uint64
}

// SignatureStatus is the confirmation state of a submitted transaction.
// Found is false while the cluster has not seen the signature land.
type SignatureStatus struct {
	Found bool
	Err   string
}

// SolanaClient is the subset of Solana RPC the Solana strategy needs.
// Implemented by infra/solana.Client.
type SolanaClient interface {
	Wallet(key domain.PrivateKey) (string, error)
	AssociatedTokenAccount(owner, mint string) (string, error)
	Balance(ctx context.Context, account string) (uint64, error)
	// TokenAccountBalance returns 0 when the token account does not exist.
	TokenAccountBalance(ctx context.Context, account string) (uint64, error)
	AddressLookupTables(ctx context.Context, addrs []string) ([]LookupTable, error)
	// SendVersioned compiles a v0 transaction paid by key, with the compute
	// budget instructions ahead of ixs, signs and submits it.
	SendVersioned(ctx context.Context, key domain.PrivateKey, budget ComputeBudget, ixs []Instruction, tables []LookupTable) (string, error)
	SignatureStatus(ctx context.Context, sig string) (SignatureStatus, error)
}

// QuoteRequest asks the route aggregator for a swap quote.
type QuoteRequest struct {
	InputMint        string
	OutputMint       string
	Amount           uint64
	SlippageBps      uint16
	OnlyDirectRoutes bool
}

// Quote is an aggregator route. Raw is echoed back verbatim when asking
// for the swap instructions.
type Quote struct {
	InAmount  string
	OutAmount string
	Raw       []byte
}

// SwapInstructions is the instruction set of one routed swap.
type SwapInstructions struct {
	Setup        []Instruction
	Swap         Instruction
	Cleanup      *Instruction
	LookupTables []string
}

// RouteQuoter is an instruction-returning aggregator (Jupiter).
type RouteQuoter interface {
	Quote(ctx context.Context, hc *http.Client, req QuoteRequest) (Quote, error)
	SwapInstructions(ctx context.Context, hc *http.Client, q Quote, user string) (SwapInstructions, error)
}

// ─── EVM ────────────────────────────────────────────────────────────────────

// Receipt is the mined outcome of an EVM transaction.
type Receipt struct {
	TxHash  string
	Success bool
}

// SwapRequest asks the aggregator for a ready-to-sign swap transaction.
type SwapRequest struct {
	ChainID  uint64
	Src      string
	Dst      string
	Amount   *big.Int
	From     string
	Origin   string
	Slippage uint16 // basis points
}

// SwapTx is the aggregator-provided transaction payload.
type SwapTx struct {
	DstAmount *big.Int
	From      string
	To        string
	Data      []byte
	Value     *big.Int
	GasPrice  *big.Int
	Gas       uint64
}

// Cost is the most the transaction can spend: gasPrice × gas + value.
func (tx SwapTx) Cost() *big.Int {
	cost := new(big.Int).Mul(orZero(tx.GasPrice), new(big.Int).SetUint64(tx.Gas))
	return cost.Add(cost, orZero(tx.Value))
}

// SwapBuilder is a transaction-returning aggregator (1inch).
type SwapBuilder interface {
	Swap(ctx context.Context, hc *http.Client, req SwapRequest) (SwapTx, error)
}

// EVMClient is the subset of EVM RPC the EVM strategy needs.
// Implemented by infra/evm.Client. Approve and SendTransaction block until
// the transaction is mined or ctx ends.
type EVMClient interface {
	Wallet(key domain.PrivateKey) (string, error)
	Balance(ctx context.Context, owner string) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	Approve(ctx context.Context, key domain.PrivateKey, token, spender string, amount *big.Int) (Receipt, error)
	SendTransaction(ctx context.Context, key domain.PrivateKey, tx SwapTx) (Receipt, error)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
