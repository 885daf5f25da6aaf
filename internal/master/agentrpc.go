package master

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/mgpu-project/mgpu/internal/retry"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// dispatchRun sends a run RPC to node's agent for job's assignment on that
// node, through the shared retry combinator (spec.md §9: "a single attempt
// with deadline, backoff, cap combinator used uniformly for all agent
// RPCs"). Each node in a multi-node assignment gets its own rank/world_size.
func dispatchRun(ctx context.Context, addr string, req wire.RunRequest) error {
	cfg := retry.DefaultDispatchConfig()
	cfg.MaxAttempts = 1 // the scheduler itself owns the cross-cycle retry budget
	return retry.Attempt(ctx, cfg, "dispatch_run:"+req.JobID, func(ctx context.Context, attempt int) error {
		conn, err := wire.Dial(addr, 5*time.Second)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := wire.WriteJSON(conn, req, 10*time.Second); err != nil {
			return err
		}
		var resp wire.StatusMessageResponse
		if err := wire.ReadJSON(conn, &resp, 10*time.Second); err != nil {
			return err
		}
		if resp.Status != wire.StatusOK {
			return fmt.Errorf("agent rejected run: %s", resp.Message)
		}
		return nil
	})
}

// dispatchCancel sends a cancel RPC to node's agent for jobID.
func dispatchCancel(ctx context.Context, addr, jobID string) error {
	conn, err := wire.Dial(addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := wire.AgentCancelRequest{Cmd: wire.CmdCancel, JobID: jobID}
	if err := wire.WriteJSON(conn, req, 10*time.Second); err != nil {
		return err
	}
	var resp wire.StatusMessageResponse
	if err := wire.ReadJSON(conn, &resp, 10*time.Second); err != nil {
		return err
	}
	if resp.Status != wire.StatusOK {
		return fmt.Errorf("agent rejected cancel: %s", resp.Message)
	}
	return nil
}

// buildRunRequests expands job's assignment into one RunRequest per node,
// filling in rendezvous fields for distributed jobs (spec.md §4.8). Caller
// must hold m.mu (node hostnames are read from the registry).
func (m *Master) buildRunRequests(job *model.Job) map[string]wire.RunRequest {
	assign := job.Assignment
	nodeIDs := make([]string, 0, len(assign))
	for id := range assign {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	distType := wire.DistributedSingle
	if job.Distributed.Type != "" {
		distType = job.Distributed.Type
	}

	masterNode := ""
	if len(nodeIDs) > 0 {
		if n, ok := m.nodes[nodeIDs[0]]; ok {
			masterNode = n.Host
		}
	}

	reqs := make(map[string]wire.RunRequest, len(assign))
	for rank, nodeID := range nodeIDs {
		reqs[nodeID] = wire.RunRequest{
			Cmd:             wire.CmdRun,
			JobID:           job.JobID,
			Command:         job.Command,
			User:            job.User,
			GPUs:            assign[nodeID],
			Interactive:     job.Interactive,
			Rank:            rank,
			WorldSize:       len(nodeIDs),
			MasterNode:      masterNode,
			DistributedType: distType,
		}
	}
	return reqs
}
