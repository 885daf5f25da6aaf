package agent

import (
	"context"

	"github.com/mgpu-project/mgpu/internal/wire"
)

// Prober is the abstract GPU inventory probe spec.md §1 leaves external
// ("nvidia-smi invocation is specified only as the abstract 'GPU inventory
// probe'"). Implementations report every local GPU with its current
// utilization so the agent can decide which indices start out available.
type Prober interface {
	Inventory(ctx context.Context) ([]wire.GPUInfo, error)
}

// StaticProber reports a fixed, caller-supplied inventory. It is the only
// Prober this module ships: a real nvidia-smi-backed implementation is an
// external collaborator per spec.md §1 and is intentionally not built here.
type StaticProber struct {
	GPUs []wire.GPUInfo
}

// NewStaticProber builds a StaticProber with n GPUs, each reporting
// totalMemMB total and 0 used, i.e. fully idle.
func NewStaticProber(n int, totalMemMB int64) *StaticProber {
	gpus := make([]wire.GPUInfo, n)
	for i := 0; i < n; i++ {
		gpus[i] = wire.GPUInfo{Index: i, TotalMemMB: totalMemMB, UsedMemMB: 0}
	}
	return &StaticProber{GPUs: gpus}
}

// Inventory implements Prober.
func (p *StaticProber) Inventory(ctx context.Context) ([]wire.GPUInfo, error) {
	out := make([]wire.GPUInfo, len(p.GPUs))
	copy(out, p.GPUs)
	return out, nil
}

// UtilizationFraction returns used/total memory, or 0 if total is 0.
func UtilizationFraction(g wire.GPUInfo) float64 {
	if g.TotalMemMB <= 0 {
		return 0
	}
	return float64(g.UsedMemMB) / float64(g.TotalMemMB)
}

// InitialAvailable returns the indices whose utilization is below
// threshold (spec.md §4.6: "default 10% of total memory in use", a
// configurable knob per spec.md §9 Open Questions).
func InitialAvailable(gpus []wire.GPUInfo, threshold float64) []int {
	var avail []int
	for _, g := range gpus {
		if UtilizationFraction(g) < threshold {
			avail = append(avail, g.Index)
		}
	}
	return avail
}
