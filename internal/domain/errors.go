package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Control errors: returned to the caller of create/start/stop/remove.
	ErrWalletGroupNotFound = errors.New("wallet group not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrTaskExists          = errors.New("task already exists")
	ErrTaskRunning         = errors.New("task is running")
	ErrTaskStopping        = errors.New("task is stopping")
	ErrInvalidTaskSpec     = errors.New("invalid task spec")
	ErrUnsupportedChain    = errors.New("no executor configured for chain")
	ErrEmptyWalletGroup    = errors.New("wallet group has no keys")

	// Trade cycle errors: reduced to an event message, never stop a worker.
	ErrSkipTrade           = errors.New("skip this trade")
	ErrInsufficientBalance = errors.New("balance too low")
	ErrApproveFailed       = errors.New("adjust allowance failed")
	ErrTxDropped           = errors.New("transaction dropped")
	ErrTxFailed            = errors.New("transaction failed")
	ErrAggregator          = errors.New("aggregator request failed")

	// Keystore errors
	ErrKeystoreLocked = errors.New("keystore passphrase not set")
	ErrKeyCorrupted   = errors.New("sealed key failed authentication")
)
