package model

import (
	"math/big"
	"time"
)

// InvestmentType distinguishes deposits from redemptions.
type InvestmentType string

const (
	InvestmentInvest InvestmentType = "INVEST"
	InvestmentRedeem InvestmentType = "REDEEM"
)

// InvestmentStatus is the settlement state of an investment record.
type InvestmentStatus string

const (
	InvestmentPending   InvestmentStatus = "PENDING"
	InvestmentConfirmed InvestmentStatus = "CONFIRMED"
	InvestmentFailed    InvestmentStatus = "FAILED"
)

// Investment is a single investor action against a pool.
type Investment struct {
	ID     string         `json:"id"`
	UserID string         `json:"user_id"`
	PoolID string         `json:"pool_id"`
	Type   InvestmentType `json:"type"`
	Shares *big.Int       `json:"shares"`
	// SharePriceAtPurchase is nil when the price was not captured.
	SharePriceAtPurchase *int64           `json:"share_price_at_purchase,omitempty"`
	Status               InvestmentStatus `json:"status"`
	TxHash               string           `json:"tx_hash,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}
