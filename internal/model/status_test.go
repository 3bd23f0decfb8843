package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedemptionStatusTerminal(t *testing.T) {
	assert.True(t, RedemptionSettled.Terminal())
	assert.True(t, RedemptionFailed.Terminal())
	assert.False(t, RedemptionPending.Terminal())
	assert.False(t, RedemptionEligible.Terminal())
	assert.False(t, RedemptionProcessing.Terminal())
}

func TestSwapStatusLive(t *testing.T) {
	assert.True(t, SwapPending.Live())
	assert.True(t, SwapExecuting.Live())
	assert.False(t, SwapCompleted.Live())
	assert.False(t, SwapFailed.Live())
	assert.False(t, SwapStale.Live())
}

func TestPoolLockup(t *testing.T) {
	assert.Equal(t, time.Duration(0), Pool{}.Lockup())
	assert.Equal(t, time.Duration(0), Pool{LockupSeconds: -5}.Lockup())
	assert.Equal(t, 48*time.Hour, Pool{LockupSeconds: 172800}.Lockup())
}
