// Package chain submits redemption transactions for the settlement engine.
// Two Executor implementations exist: MockExecutor for non-production runs
// and LiveExecutor, which signs with the relayer key and waits for receipts.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

var (
	// ErrNotConfigured is returned by Validate when live-mode credentials or
	// contract settings are missing.
	ErrNotConfigured = errors.New("executor not configured")

	// ErrExecutionTimeout marks an executor call that exceeded its deadline.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrReverted is returned when the redemption transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
)

// ExecuteRequest is one on-chain redemption.
type ExecuteRequest struct {
	ChainPoolID uint64
	Investor    common.Address
	Shares      *big.Int
	// NavPerShare is the pool NAV at submission time.
	NavPerShare int64
	// OnSubmitted, if set, is called once the transaction has been broadcast
	// and before waiting for the receipt.
	OnSubmitted func(txHash string)
}

// ExecuteResult is a settled redemption.
type ExecuteResult struct {
	TxHash string
	Amount *big.Int
}

// ReceiptStatus is the observed state of a previously submitted transaction.
type ReceiptStatus struct {
	Found   bool
	Success bool
	Amount  *big.Int
}

// Executor performs redemptions on chain.
type Executor interface {
	Mode() string
	// Validate reports configuration problems without touching the chain.
	Validate() error
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	// Lookup reports the receipt state of a transaction this executor submitted.
	Lookup(ctx context.Context, txHash string) (ReceiptStatus, error)
}
