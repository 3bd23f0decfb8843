package model

import "time"

// PoolStatus is the lifecycle state of a pool.
type PoolStatus string

const (
	PoolActive PoolStatus = "ACTIVE"
	PoolPaused PoolStatus = "PAUSED"
	PoolClosed PoolStatus = "CLOSED"
)

// Pool is a tokenized asset pool whose share price floats with its NAV.
type Pool struct {
	ID               string     `json:"id"`
	ChainPoolID      uint64     `json:"chain_pool_id"`
	Name             string     `json:"name"`
	Status           PoolStatus `json:"status"`
	YieldRateBps     int64      `json:"yield_rate_bps"`
	NavPerShare      int64      `json:"nav_per_share"`
	LastNavUpdate    time.Time  `json:"last_nav_update"`
	MinInvestment    string     `json:"min_investment"`
	MaxInvestment    string     `json:"max_investment"`
	LockupSeconds    int64      `json:"lockup_seconds"`
	ManagementFeeBps int64      `json:"management_fee_bps"`
	LastFeePeriod    string     `json:"last_fee_period"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Lockup returns the redemption cooling period of the pool.
func (p Pool) Lockup() time.Duration {
	if p.LockupSeconds <= 0 {
		return 0
	}
	return time.Duration(p.LockupSeconds) * time.Second
}
