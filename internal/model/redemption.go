package model

import (
	"math/big"
	"time"
)

// RedemptionStatus is the state of a redemption queue entry.
type RedemptionStatus string

const (
	RedemptionPending    RedemptionStatus = "PENDING"
	RedemptionEligible   RedemptionStatus = "ELIGIBLE"
	RedemptionProcessing RedemptionStatus = "PROCESSING"
	RedemptionSettled    RedemptionStatus = "SETTLED"
	RedemptionFailed     RedemptionStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionSettled || s == RedemptionFailed
}

// RedemptionQueueEntry is a FIFO redemption request within a pool.
type RedemptionQueueEntry struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	PoolID          string           `json:"pool_id"`
	InvestorAddress string           `json:"investor_address"`
	InvestmentID    string           `json:"investment_id,omitempty"`
	Shares          *big.Int         `json:"shares"`
	QueuePosition   int64            `json:"queue_position"`
	Status          RedemptionStatus `json:"status"`
	RequestedAt     time.Time        `json:"requested_at"`
	EligibleAt      time.Time        `json:"eligible_at"`
	ProcessingAt    *time.Time       `json:"processing_at,omitempty"`
	SettledAt       *time.Time       `json:"settled_at,omitempty"`
	TxHash          string           `json:"tx_hash,omitempty"`
	Amount          *big.Int         `json:"amount,omitempty"`
	Error           string           `json:"error,omitempty"`
}
