package agent

import (
	"context"
	"testing"

	"github.com/mgpu-project/mgpu/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProberReportsIdleGPUs(t *testing.T) {
	p := NewStaticProber(4, 16000)
	gpus, err := p.Inventory(context.Background())
	require.NoError(t, err)
	require.Len(t, gpus, 4)
	for i, g := range gpus {
		assert.Equal(t, i, g.Index)
		assert.Equal(t, int64(16000), g.TotalMemMB)
		assert.Equal(t, int64(0), g.UsedMemMB)
	}
}

func TestStaticProberInventoryIsACopy(t *testing.T) {
	p := NewStaticProber(2, 1000)
	gpus, _ := p.Inventory(context.Background())
	gpus[0].UsedMemMB = 999

	fresh, _ := p.Inventory(context.Background())
	assert.Equal(t, int64(0), fresh[0].UsedMemMB, "mutating a returned inventory must not affect the prober's state")
}

func TestUtilizationFraction(t *testing.T) {
	assert.Equal(t, 0.5, UtilizationFraction(wire.GPUInfo{TotalMemMB: 100, UsedMemMB: 50}))
	assert.Equal(t, 0.0, UtilizationFraction(wire.GPUInfo{TotalMemMB: 0, UsedMemMB: 50}), "zero total must not divide by zero")
}

func TestInitialAvailableAppliesThreshold(t *testing.T) {
	gpus := []wire.GPUInfo{
		{Index: 0, TotalMemMB: 100, UsedMemMB: 0},  // 0% used
		{Index: 1, TotalMemMB: 100, UsedMemMB: 5},  // 5% used
		{Index: 2, TotalMemMB: 100, UsedMemMB: 50}, // 50% used
	}

	avail := InitialAvailable(gpus, 0.10)
	assert.Equal(t, []int{0, 1}, avail, "only GPUs under the 10% threshold are initially available")
}

func TestInitialAvailableWithNoIdleGPUsReturnsEmpty(t *testing.T) {
	gpus := []wire.GPUInfo{{Index: 0, TotalMemMB: 100, UsedMemMB: 90}}
	avail := InitialAvailable(gpus, 0.10)
	assert.Empty(t, avail)
}
