package model

import (
	"math/big"
	"time"
)

// FeeTypeManagement is the periodic management fee.
const FeeTypeManagement = "MANAGEMENT"

// FeeAccrual is a ledger-visible fee charge for one pool and period.
type FeeAccrual struct {
	ID        string    `json:"id"`
	PoolID    string    `json:"pool_id"`
	FeeType   string    `json:"fee_type"`
	Period    string    `json:"period"`
	TVL       *big.Int  `json:"tvl"`
	RateBps   int64     `json:"rate_bps"`
	Amount    *big.Int  `json:"amount"`
	AccruedAt time.Time `json:"accrued_at"`
}
