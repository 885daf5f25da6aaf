package master

import (
	"net"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// handleNodeRegister implements spec.md §4.5: creates or updates a Node
// entry and resets failure_count.
func (m *Master) handleNodeRegister(conn net.Conn, req wire.NodeRegisterRequest) {
	total := make([]int, req.GPUCount)
	for i := range total {
		total[i] = i
	}
	if len(req.GPUInfo) > 0 {
		total = total[:0]
		for _, g := range req.GPUInfo {
			total = append(total, g.Index)
		}
	}

	m.mu.Lock()
	node, exists := m.nodes[req.NodeID]
	if !exists {
		node = model.NewNode(req.NodeID, req.Host, req.Port, total)
		m.nodes[req.NodeID] = node
	} else {
		node.Host = req.Host
		node.Port = req.Port
	}
	node.FailureCount = 0
	node.LastHeartbeat = time.Now()
	m.mu.Unlock()

	logging.Log.WithField("node_id", req.NodeID).WithField("gpus", req.GPUCount).
		Info("node registered")

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}

// handleNodeHeartbeat implements spec.md §4.5: the master trusts the
// agent's reported available_gpus and overwrites its own view, reconciling
// drift (e.g. processes killed externally outside the agent's knowledge).
func (m *Master) handleNodeHeartbeat(conn net.Conn, req wire.NodeHeartbeatRequest) {
	m.mu.Lock()
	if node, ok := m.nodes[req.NodeID]; ok {
		node.Available = model.NewIntSet(req.AvailableGPUs...)
		node.RunningJobs = make(map[string]struct{}, len(req.RunningJobs))
		for _, jid := range req.RunningJobs {
			node.RunningJobs[jid] = struct{}{}
		}
		node.LastHeartbeat = time.Now()
		// Per spec.md §9 Open Questions, failure_count reset policy is
		// ambiguous in the source; this implementation resets on heartbeat
		// too, so a node that is merely slow to dispatch (rather than truly
		// unreachable) recovers once it resumes talking to the master.
		node.FailureCount = 0
	}
	m.mu.Unlock()

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}

// handleJobOutput implements spec.md §4.3: append to the output buffer and
// fan out to an interactive attachment if present.
func (m *Master) handleJobOutput(conn net.Conn, req wire.JobOutputRequest) {
	m.emitOutput(req.JobID, req.Data)
	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}

// handleJobComplete implements spec.md §4.2/§4.3: finalize the job,
// release its GPUs, and notify any interactive attachment.
func (m *Master) handleJobComplete(conn net.Conn, req wire.JobCompleteRequest) {
	m.mu.Lock()
	job, ok := m.running[req.JobID]
	if ok {
		for nodeID, gpus := range job.Assignment {
			if n, ok := m.nodes[nodeID]; ok {
				n.Available.Add(gpus...)
			}
		}
		status := model.StatusCompleted
		if req.ExitCode != 0 {
			status = model.StatusFailed
		}
		m.finalizeLocked(job, status, req.ExitCode, "")
	}
	m.mu.Unlock()

	if ok {
		m.emitCompletion(req.JobID, req.ExitCode)
	}

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}
