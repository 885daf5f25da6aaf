package agent

import (
	"testing"

	"github.com/mgpu-project/mgpu/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestBuildEnvSingleJobHasNoRendezvousVars(t *testing.T) {
	req := wire.RunRequest{JobID: "job-1", GPUs: []int{0, 2}}
	env := BuildEnv(nil, req)

	assert.Contains(t, env, "CUDA_VISIBLE_DEVICES=0,2")
	assert.Contains(t, env, "MGPU_JOB_ID=job-1")
	assert.NotContains(t, env, "RANK=0")
}

func TestBuildEnvPyTorchAddsRendezvousVars(t *testing.T) {
	req := wire.RunRequest{
		JobID:           "job-2",
		GPUs:            []int{0},
		DistributedType: wire.DistributedPyTorch,
		Rank:            1,
		WorldSize:       4,
		MasterNode:      "10.0.0.1",
	}
	env := BuildEnv(nil, req)

	assert.Contains(t, env, "RANK=1")
	assert.Contains(t, env, "WORLD_SIZE=4")
	assert.Contains(t, env, "MASTER_ADDR=10.0.0.1")
	assert.Contains(t, env, "MASTER_PORT=29500")
}

func TestBuildEnvMPIAddsNoRendezvousVars(t *testing.T) {
	req := wire.RunRequest{
		JobID:           "job-3",
		GPUs:            []int{0, 1},
		DistributedType: wire.DistributedMPI,
		Rank:            0,
		WorldSize:       2,
	}
	env := BuildEnv(nil, req)

	assert.Contains(t, env, "CUDA_VISIBLE_DEVICES=0,1")
	assert.Contains(t, env, "MGPU_JOB_ID=job-3")
	assert.Len(t, env, 2, "mpi jobs get no rendezvous vars beyond the base two; the command is assumed to be mpirun")
}

func TestBuildEnvPreservesBaseEntries(t *testing.T) {
	req := wire.RunRequest{JobID: "job-4", GPUs: []int{0}}
	env := BuildEnv([]string{"PATH=/usr/bin"}, req)
	assert.Contains(t, env, "PATH=/usr/bin")
}
