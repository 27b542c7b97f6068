// Package domain holds the trading-task types shared by every layer.
// A Task binds one wallet group and one chain to a trade configuration:
// create → start → stop → (stopped) → remove.
package domain

import (
	"fmt"
	"math/big"
	"time"
)

// TaskState tracks the task lifecycle.
type TaskState string

const (
	TaskCreated  TaskState = "Created"
	TaskRunning  TaskState = "Running"
	TaskStopping TaskState = "Stopping"
	TaskStopped  TaskState = "Stopped"
)

// validTransitions lists the lifecycle edges. Stopping never returns to Running.
var validTransitions = map[TaskState][]TaskState{
	TaskCreated:  {TaskRunning},
	TaskRunning:  {TaskStopping},
	TaskStopping: {TaskStopped},
	TaskStopped:  {TaskRunning},
}

// CanTransition reports whether the lifecycle allows from → to.
func CanTransition(from, to TaskState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Removable is true for states a task may be deleted from.
func (s TaskState) Removable() bool {
	return s == TaskCreated || s == TaskStopped
}

// TradeMode restricts which directions a worker may trade.
type TradeMode string

const (
	TradeBoth     TradeMode = "Both"
	TradeBuyOnly  TradeMode = "BuyOnly"
	TradeSellOnly TradeMode = "SellOnly"
)

// Valid reports whether m is a known mode.
func (m TradeMode) Valid() bool {
	switch m {
	case TradeBoth, TradeBuyOnly, TradeSellOnly:
		return true
	}
	return false
}

// TradeDirection is the side of one trade cycle.
type TradeDirection string

const (
	Buy  TradeDirection = "Buy"
	Sell TradeDirection = "Sell"
)

// Chain identifies the network a wallet group lives on.
type Chain string

const (
	ChainSolana Chain = "Solana"
	ChainBase   Chain = "Base"
	ChainBsc    Chain = "Bsc"
)

// IsEVM is true for account-based chains driven through the EVM executor.
func (c Chain) IsEVM() bool {
	return c == ChainBase || c == ChainBsc
}

// TokenInfo identifies the traded token.
type TokenInfo struct {
	Chain    Chain  `json:"chain"`
	Address  string `json:"addr"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// TradeConfig is the per-task trade configuration. Workers copy it at spawn.
type TradeConfig struct {
	Token        TokenInfo `json:"token"`
	Mode         TradeMode `json:"trade_mode"`
	Percentage   [2]uint32 `json:"percentage"` // inclusive [min, max] of the balance to trade
	Slippage     uint16    `json:"slippage"`   // basis points
	GasPrice     uint32    `json:"gas_price"`  // compute-unit price on Solana
	IntervalSecs uint64    `json:"interval_secs"`
}

// Interval returns the pause between two trade cycles of one worker.
func (c TradeConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// TaskSpec is a task creation request.
type TaskSpec struct {
	ID            string `json:"id,omitempty"`
	WalletGroupID string `json:"wallet_grp_id"`
	WorkersCnt    uint32 `json:"workers_cnt"`
	TradeConfig
}

// Validate checks the request before any wallet group lookup.
func (s TaskSpec) Validate() error {
	if s.WalletGroupID == "" {
		return fmt.Errorf("%w: wallet_grp_id is required", ErrInvalidTaskSpec)
	}
	if s.WorkersCnt == 0 {
		return fmt.Errorf("%w: workers_cnt must be positive", ErrInvalidTaskSpec)
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown trade mode %q", ErrInvalidTaskSpec, s.Mode)
	}
	lo, hi := s.Percentage[0], s.Percentage[1]
	if lo > hi || hi > 100 {
		return fmt.Errorf("%w: percentage range [%d, %d] must satisfy min <= max <= 100", ErrInvalidTaskSpec, lo, hi)
	}
	if s.Token.Address == "" {
		return fmt.Errorf("%w: token address is required", ErrInvalidTaskSpec)
	}
	return nil
}

// TaskInfo is a point-in-time view of a task, safe to hand to callers.
type TaskInfo struct {
	ID             string    `json:"id"`
	WalletGroupID  string    `json:"wallet_grp_id"`
	Chain          Chain     `json:"chain"`
	WorkersCnt     uint32    `json:"workers_cnt"`
	RunningWorkers uint32    `json:"running_workers"`
	State          TaskState `json:"task_state"`
	Wallets        int       `json:"wallets"`
	LeasedKeys     int       `json:"leased_keys"`
	CreatedAt      time.Time `json:"created_at"`
	TradeConfig
}

// TradeIntent is what one cycle decided to do.
type TradeIntent struct {
	Direction TradeDirection
	Amount    *big.Int
	Input     string
	Output    string
}
