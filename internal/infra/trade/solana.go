package trade

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
)

const (
	// WrappedSOLMint is the mint the route aggregator uses for native SOL.
	WrappedSOLMint = "So11111111111111111111111111111111111111112"

	solDecimals = 9

	DefaultComputeUnitLimit uint32 = 600_000
	DefaultPollInterval            = 2 * time.Second
	DefaultConfirmTimeout          = 120 * time.Second
)

// SolanaOptions tunes the Solana strategy.
type SolanaOptions struct {
	ComputeUnitLimit uint32
	PollInterval     time.Duration
	ConfirmTimeout   time.Duration
	Policy           *Policy
}

// SolanaExecutor runs trade cycles on Solana through an
// instruction-returning aggregator.
type SolanaExecutor struct {
	rpc     SolanaClient
	quoter  RouteQuoter
	proxies ProxyPool
	policy  Policy
	log     *zap.Logger

	cuLimit        uint32
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewSolanaExecutor creates the Solana strategy. Zero options take defaults.
func NewSolanaExecutor(rpc SolanaClient, quoter RouteQuoter, proxies ProxyPool, logger *zap.Logger, opts SolanaOptions) *SolanaExecutor {
	e := &SolanaExecutor{
		rpc:            rpc,
		quoter:         quoter,
		proxies:        proxies,
		policy:         DefaultPolicy(),
		log:            logger,
		cuLimit:        opts.ComputeUnitLimit,
		pollInterval:   opts.PollInterval,
		confirmTimeout: opts.ConfirmTimeout,
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	}
	if e.cuLimit == 0 {
		e.cuLimit = DefaultComputeUnitLimit
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.confirmTimeout <= 0 {
		e.confirmTimeout = DefaultConfirmTimeout
	}
	return e
}

// Chain reports the network this executor trades on.
func (e *SolanaExecutor) Chain() domain.Chain { return domain.ChainSolana }

// Execute performs one full trade cycle with the leased key.
func (e *SolanaExecutor) Execute(ctx context.Context, key domain.PrivateKey, c Cycle) error {
	cfg := c.Config

	owner, err := e.rpc.Wallet(key)
	if err != nil {
		return fmt.Errorf("solana wallet: %w", err)
	}
	ata, err := e.rpc.AssociatedTokenAccount(owner, cfg.Token.Address)
	if err != nil {
		return fmt.Errorf("associated token account: %w", err)
	}

	lamports, err := e.rpc.Balance(ctx, owner)
	if err != nil {
		return fmt.Errorf("get balance of %s: %w", owner, err)
	}
	tokens, err := e.rpc.TokenAccountBalance(ctx, ata)
	if err != nil {
		return fmt.Errorf("get token balance of %s: %w", ata, err)
	}

	intent := e.intent(cfg, lamports, tokens)
	c.narrate(fmt.Sprintf("choose account %s %s", owner, describeSolana(intent, cfg.Token)))
	if intent.Amount.Sign() == 0 {
		return fmt.Errorf("%w: input amount is 0", domain.ErrSkipTrade)
	}

	label, hc := e.proxies.Acquire()
	c.narrate(fmt.Sprintf("use proxy: %s to request jup", label))

	quote, err := e.quoter.Quote(ctx, hc, QuoteRequest{
		InputMint:        intent.Input,
		OutputMint:       intent.Output,
		Amount:           intent.Amount.Uint64(),
		SlippageBps:      cfg.Slippage,
		OnlyDirectRoutes: true,
	})
	if err != nil {
		return err
	}
	swap, err := e.quoter.SwapInstructions(ctx, hc, quote, owner)
	if err != nil {
		return err
	}

	tables, err := e.rpc.AddressLookupTables(ctx, swap.LookupTables)
	if err != nil {
		return fmt.Errorf("load address lookup tables: %w", err)
	}

	ixs := make([]Instruction, 0, len(swap.Setup)+2)
	ixs = append(ixs, swap.Setup...)
	ixs = append(ixs, swap.Swap)
	if swap.Cleanup != nil {
		ixs = append(ixs, *swap.Cleanup)
	}
	budget := ComputeBudget{UnitLimit: e.cuLimit, UnitPrice: uint64(cfg.GasPrice)}

	sig, err := e.rpc.SendVersioned(ctx, key, budget, ixs, tables)
	if err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	c.narrate(fmt.Sprintf("transaction %s has been sent, confirming now ...", sig))
	e.log.Debug("solana tx submitted",
		zap.String("task", c.TaskID),
		zap.Uint32("worker", c.WorkerID),
		zap.String("sig", sig),
	)

	return e.confirm(ctx, sig, c)
}

// confirm polls the signature until it lands, fails, or times out.
func (e *SolanaExecutor) confirm(ctx context.Context, sig string, c Cycle) error {
	deadline := time.Now().Add(e.confirmTimeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		st, err := e.rpc.SignatureStatus(ctx, sig)
		if err != nil {
			return fmt.Errorf("get signature status: %w", err)
		}
		if !st.Found {
			if time.Now().After(deadline) {
				return fmt.Errorf("%w: transaction %s was dropped, please increase priority fee", domain.ErrTxDropped, sig)
			}
			continue
		}
		if st.Err != "" {
			return fmt.Errorf("%w: transaction %s landed but failed, error is: %s", domain.ErrTxFailed, sig, st.Err)
		}
		c.narrate(fmt.Sprintf("transaction %s landed and succeeded", sig))
		return nil
	}
}

func (e *SolanaExecutor) intent(cfg domain.TradeConfig, lamports, tokens uint64) domain.TradeIntent {
	native := new(big.Int).SetUint64(lamports)
	token := new(big.Int).SetUint64(tokens)
	dir := e.policy.Direction(cfg.Mode, native, token)
	pct := e.policy.Percentage(cfg.Percentage)

	if dir == domain.Buy {
		return domain.TradeIntent{
			Direction: dir,
			Amount:    ApplyPercentage(native, pct),
			Input:     WrappedSOLMint,
			Output:    cfg.Token.Address,
		}
	}
	return domain.TradeIntent{
		Direction: dir,
		Amount:    ApplyPercentage(token, pct),
		Input:     cfg.Token.Address,
		Output:    WrappedSOLMint,
	}
}

func describeSolana(in domain.TradeIntent, token domain.TokenInfo) string {
	if in.Direction == domain.Buy {
		return fmt.Sprintf("use %s SOL to buy %s", FormatUnits(in.Amount, solDecimals), token.Symbol)
	}
	return fmt.Sprintf("to sell %s %s", FormatUnits(in.Amount, token.Decimals), token.Symbol)
}
