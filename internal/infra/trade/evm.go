package trade

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/domain"
)

// NativeTokenAddress is the placeholder 1inch uses for the chain's native coin.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// MaxUint256 is the allowance granted to the router on approval.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EVMChain describes one EVM network the executor trades on.
type EVMChain struct {
	Chain        domain.Chain
	ChainID      uint64
	Router       string // aggregator router, the approval spender
	NativeSymbol string
}

// EVMExecutor runs trade cycles on an EVM chain through a
// transaction-returning aggregator.
type EVMExecutor struct {
	net     EVMChain
	rpc     EVMClient
	swaps   SwapBuilder
	proxies ProxyPool
	policy  Policy
	log     *zap.Logger
}

// NewEVMExecutor creates the EVM strategy for one network.
func NewEVMExecutor(net EVMChain, rpc EVMClient, swaps SwapBuilder, proxies ProxyPool, logger *zap.Logger, policy *Policy) *EVMExecutor {
	e := &EVMExecutor{
		net:     net,
		rpc:     rpc,
		swaps:   swaps,
		proxies: proxies,
		policy:  DefaultPolicy(),
		log:     logger,
	}
	if policy != nil {
		e.policy = *policy
	}
	if e.net.NativeSymbol == "" {
		e.net.NativeSymbol = "ETH"
	}
	return e
}

// Chain reports the network this executor trades on.
func (e *EVMExecutor) Chain() domain.Chain { return e.net.Chain }

// Execute performs one full trade cycle with the leased key.
func (e *EVMExecutor) Execute(ctx context.Context, key domain.PrivateKey, c Cycle) error {
	cfg := c.Config

	owner, err := e.rpc.Wallet(key)
	if err != nil {
		return fmt.Errorf("evm wallet: %w", err)
	}
	native, err := e.rpc.Balance(ctx, owner)
	if err != nil {
		return fmt.Errorf("get balance of %s: %w", owner, err)
	}
	token, err := e.rpc.TokenBalance(ctx, cfg.Token.Address, owner)
	if err != nil {
		return fmt.Errorf("get token balance of %s: %w", owner, err)
	}

	intent := e.intent(cfg, native, token)
	c.narrate(fmt.Sprintf("choose account %s %s", owner, e.describe(intent, cfg.Token)))
	if intent.Amount.Sign() == 0 {
		return fmt.Errorf("%w: input amount is 0", domain.ErrSkipTrade)
	}

	if intent.Direction == domain.Sell {
		if err := e.ensureAllowance(ctx, key, owner, cfg.Token.Address, intent.Amount, c); err != nil {
			return err
		}
	}

	label, hc := e.proxies.Acquire()
	c.narrate(fmt.Sprintf("use proxy: %s to request 1inch", label))

	tx, err := e.swaps.Swap(ctx, hc, SwapRequest{
		ChainID:  e.net.ChainID,
		Src:      intent.Input,
		Dst:      intent.Output,
		Amount:   intent.Amount,
		From:     owner,
		Origin:   owner,
		Slippage: cfg.Slippage,
	})
	if err != nil {
		return err
	}

	if cost := tx.Cost(); native.Cmp(cost) < 0 {
		return fmt.Errorf("%w: wallet %s holds %s %s, swap needs %s %s",
			domain.ErrInsufficientBalance, owner,
			FormatUnits(native, 18), e.net.NativeSymbol,
			FormatUnits(cost, 18), e.net.NativeSymbol)
	}

	receipt, err := e.rpc.SendTransaction(ctx, key, tx)
	if err != nil {
		return fmt.Errorf("send swap transaction: %w", err)
	}
	if !receipt.Success {
		return fmt.Errorf("%w: swap transaction failed, tx_id: %s", domain.ErrTxFailed, receipt.TxHash)
	}
	c.narrate(fmt.Sprintf("swap transaction succeeded, tx_id: %s", receipt.TxHash))
	e.log.Debug("evm swap mined",
		zap.String("chain", string(e.net.Chain)),
		zap.String("task", c.TaskID),
		zap.Uint32("worker", c.WorkerID),
		zap.String("tx", receipt.TxHash),
	)
	return nil
}

func (e *EVMExecutor) ensureAllowance(ctx context.Context, key domain.PrivateKey, owner, token string, amount *big.Int, c Cycle) error {
	allowance, err := e.rpc.Allowance(ctx, token, owner, e.net.Router)
	if err != nil {
		return fmt.Errorf("get allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	c.narrate("allowance not enough, adjust it ....")
	receipt, err := e.rpc.Approve(ctx, key, token, e.net.Router, MaxUint256)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrApproveFailed, err)
	}
	if !receipt.Success {
		return fmt.Errorf("%w: tx_id: %s", domain.ErrApproveFailed, receipt.TxHash)
	}
	c.narrate(fmt.Sprintf("adjust allowance succeeded, tx_id: %s", receipt.TxHash))
	return nil
}

func (e *EVMExecutor) intent(cfg domain.TradeConfig, native, token *big.Int) domain.TradeIntent {
	dir := e.policy.Direction(cfg.Mode, native, token)
	pct := e.policy.Percentage(cfg.Percentage)

	if dir == domain.Buy {
		return domain.TradeIntent{
			Direction: dir,
			Amount:    ApplyPercentage(native, pct),
			Input:     NativeTokenAddress,
			Output:    cfg.Token.Address,
		}
	}
	return domain.TradeIntent{
		Direction: dir,
		Amount:    ApplyPercentage(token, pct),
		Input:     cfg.Token.Address,
		Output:    NativeTokenAddress,
	}
}

func (e *EVMExecutor) describe(in domain.TradeIntent, token domain.TokenInfo) string {
	if in.Direction == domain.Buy {
		return fmt.Sprintf("use %s %s to buy %s", FormatUnits(in.Amount, 18), e.net.NativeSymbol, token.Symbol)
	}
	return fmt.Sprintf("to sell %s %s", FormatUnits(in.Amount, token.Decimals), token.Symbol)
}
