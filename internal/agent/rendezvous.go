package agent

import (
	"fmt"

	"github.com/mgpu-project/mgpu/internal/wire"
)

// BuildEnv constructs the environment a launched job's process sees,
// combining CUDA_VISIBLE_DEVICES with the distributed-training rendezvous
// variables spec.md §4.8 specifies. req.DistributedType == "" or
// DistributedSingle adds nothing beyond the base variables.
func BuildEnv(base []string, req wire.RunRequest) []string {
	env := make([]string, 0, len(base)+6)
	env = append(env, base...)
	env = append(env, fmt.Sprintf("CUDA_VISIBLE_DEVICES=%s", visibleDevices(req.GPUs)))
	env = append(env, fmt.Sprintf("MGPU_JOB_ID=%s", req.JobID))

	switch req.DistributedType {
	case wire.DistributedPyTorch:
		env = append(env,
			fmt.Sprintf("RANK=%d", req.Rank),
			fmt.Sprintf("WORLD_SIZE=%d", req.WorldSize),
			fmt.Sprintf("MASTER_ADDR=%s", req.MasterNode),
			"MASTER_PORT=29500",
		)
	case wire.DistributedMPI:
		// spec.md §4.8: mpi jobs get no additional rendezvous vars beyond
		// CUDA_VISIBLE_DEVICES/MGPU_JOB_ID; the command is assumed to be
		// `mpirun ...` and does its own rank/host distribution.
	}

	return env
}

func visibleDevices(gpus []int) string {
	out := ""
	for i, g := range gpus {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", g)
	}
	return out
}
