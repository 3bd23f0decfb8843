package model

import (
	"math/big"
	"time"
)

// SwapStatus is the lifecycle state of a pool-to-pool swap attempt.
type SwapStatus string

const (
	SwapPending   SwapStatus = "PENDING"
	SwapExecuting SwapStatus = "EXECUTING"
	SwapCompleted SwapStatus = "COMPLETED"
	SwapFailed    SwapStatus = "FAILED"
	SwapStale     SwapStatus = "STALE"
)

// Live reports whether the swap is still in flight.
func (s SwapStatus) Live() bool {
	return s == SwapPending || s == SwapExecuting
}

// SwapRequest records an atomic swap between two pools.
type SwapRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	FromPoolID string     `json:"from_pool_id"`
	ToPoolID   string     `json:"to_pool_id"`
	Shares     *big.Int   `json:"shares"`
	Status     SwapStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
