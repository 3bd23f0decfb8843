package model

import (
	"math/big"
	"time"
)

// NavUpdateResult describes one applied NAV accrual.
type NavUpdateResult struct {
	PoolID       string    `json:"pool_id"`
	PoolName     string    `json:"pool_name"`
	PreviousNav  int64     `json:"previous_nav"`
	NewNav       int64     `json:"new_nav"`
	HoursElapsed int64     `json:"hours_elapsed"`
	GrowthAmount int64     `json:"growth_amount"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FeeAccrualResult is the per-pool summary of a fee accrual run.
type FeeAccrualResult struct {
	PoolID   string   `json:"pool_id"`
	PoolName string   `json:"pool_name"`
	FeeType  string   `json:"fee_type"`
	Amount   *big.Int `json:"amount"`
	Period   string   `json:"period"`
}

// SettlementResult is the outcome of processing one redemption entry.
type SettlementResult struct {
	EntryID   string           `json:"entry_id"`
	PoolID    string           `json:"pool_id"`
	PoolName  string           `json:"pool_name"`
	Shares    *big.Int         `json:"shares"`
	Status    RedemptionStatus `json:"status"`
	TxHash    string           `json:"tx_hash,omitempty"`
	Amount    *big.Int         `json:"amount,omitempty"`
	Error     string           `json:"error,omitempty"`
	Executed  bool             `json:"executed"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// PositionValue is the mark-to-NAV valuation of a share position.
type PositionValue struct {
	Shares         *big.Int `json:"shares"`
	CostBasis      *big.Int `json:"cost_basis"`
	CurrentValue   *big.Int `json:"current_value"`
	UnrealizedGain *big.Int `json:"unrealized_gain"`
}
