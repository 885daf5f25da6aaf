package master

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/metrics"
	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// handleSubmit implements spec.md §4.1. For interactive submissions the
// connection is retained as the job's output sink and the caller must not
// close it; for non-interactive submissions the caller closes after the
// response is written.
func (m *Master) handleSubmit(conn net.Conn, req wire.SubmitRequest) {
	if req.User == "" || req.Command == "" {
		writeErr(conn, "bad_request: user and command are required")
		return
	}

	resourceReq, err := parseResourceRequest(req)
	if err != nil {
		writeErr(conn, "bad_request: "+err.Error())
		return
	}

	m.mu.Lock()
	job := &model.Job{
		JobID:       m.nextJobID(),
		User:        req.User,
		Command:     req.Command,
		Request:     resourceReq,
		Priority:    req.Priority,
		Interactive: req.Interactive,
		Distributed: model.DistributedSpec{Type: req.Distributed},
		Status:      model.StatusQueued,
		SubmitTime:  time.Now(),
	}
	m.queue = append(m.queue, job)
	m.mu.Unlock()

	metrics.RecordJobSubmission(requestKindLabel(resourceReq.Kind))

	if req.Interactive {
		m.attachInteractive(job.JobID, conn)
	}

	wire.WriteJSON(conn, wire.SubmitResponse{
		Status:      wire.StatusOK,
		JobID:       job.JobID,
		Interactive: req.Interactive,
	}, 5*time.Second)
}

// parseResourceRequest maps a SubmitRequest's resource fields onto one of
// the three ResourceRequest shapes (spec.md §3).
func parseResourceRequest(req wire.SubmitRequest) (model.ResourceRequest, error) {
	switch {
	case len(req.NodeGPUIDs) > 0:
		return model.ResourceRequest{Kind: model.KindPinned, Pinned: req.NodeGPUIDs}, nil
	case req.NodeCount > 0 && req.GPUsPerNode > 0:
		return model.ResourceRequest{
			Kind:         model.KindShaped,
			NodeCount:    req.NodeCount,
			GPUsPerNode:  req.GPUsPerNode,
			IncludeNodes: req.IncludeNode,
			ExcludeNodes: req.ExcludeNode,
		}, nil
	case req.GPUs > 0:
		return model.ResourceRequest{Kind: model.KindFlat, GPUsNeeded: req.GPUs}, nil
	default:
		return model.ResourceRequest{}, fmt.Errorf("no resource request specified (gpus, node_gpu_ids, or node_count+gpus_per_node)")
	}
}

// handleQueue implements spec.md §6's queue listing.
func (m *Master) handleQueue(conn net.Conn) {
	wire.WriteJSON(conn, m.Snapshot(), 5*time.Second)
}

// Snapshot builds the same queue/running/node view handleQueue answers a
// client with. Exported so internal/admin can mirror it to dashboards
// without duplicating the locking and summarization logic.
func (m *Master) Snapshot() wire.QueueResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp := wire.QueueResponse{
		Status: wire.StatusOK,
		Nodes:  make(map[string]wire.NodeSnapshot, len(m.nodes)),
	}
	for _, j := range m.queue {
		resp.Queue = append(resp.Queue, summarize(j))
	}
	for _, j := range m.running {
		resp.Running = append(resp.Running, summarize(j))
	}
	for id, n := range m.nodes {
		jobs := make([]string, 0, len(n.RunningJobs))
		for jid := range n.RunningJobs {
			jobs = append(jobs, jid)
		}
		resp.Nodes[id] = wire.NodeSnapshot{
			AvailableGPUs: n.Available.Slice(),
			TotalGPUs:     n.Total.Slice(),
			RunningJobs:   jobs,
			LastHeartbeat: n.LastHeartbeat.Unix(),
		}
	}
	return resp
}

// requestKindLabel maps a resource request shape onto a metrics label.
func requestKindLabel(k model.RequestKind) string {
	switch k {
	case model.KindPinned:
		return "pinned"
	case model.KindShaped:
		return "shaped"
	case model.KindFlat:
		return "flat"
	default:
		return "unknown"
	}
}

func summarize(j *model.Job) wire.JobSummary {
	s := wire.JobSummary{
		JobID:      j.JobID,
		User:       j.User,
		Command:    j.Command,
		Priority:   j.Priority,
		SubmitTime: j.SubmitTime.Unix(),
	}
	for nodeID := range j.Assignment {
		s.AssignedNode = nodeID
		break
	}
	return s
}

// handleCancel implements spec.md §4.4's three-case resolution.
func (m *Master) handleCancel(ctx context.Context, conn net.Conn, req wire.CancelRequest) {
	m.mu.Lock()
	for i, j := range m.queue {
		if j.JobID == req.JobID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.finalizeLocked(j, model.StatusCancelled, 0, "")
			m.mu.Unlock()
			m.emitCompletionSuppressed(req.JobID)
			wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
			return
		}
	}
	job, running := m.running[req.JobID]
	var addr string
	var assign model.Assignment
	if running {
		for nodeID := range job.Assignment {
			if n, ok := m.nodes[nodeID]; ok {
				addr = n.Addr()
			}
			break
		}
		assign = job.Assignment
	}
	m.mu.Unlock()

	if !running {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: "not_found"}, 5*time.Second)
		return
	}

	if err := dispatchCancel(ctx, addr, req.JobID); err != nil {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: err.Error()}, 5*time.Second)
		return
	}

	m.mu.Lock()
	// Re-check the job is still the one we cancelled: a completion report
	// could have raced in and already finalized it (spec.md §5: "the ack is
	// authoritative... if the subsequent completion message arrives, it is
	// discarded"). Only finalize here if it is still running.
	if current, ok := m.running[req.JobID]; ok && current == job {
		for nodeID, gpus := range assign {
			if n, ok := m.nodes[nodeID]; ok {
				n.Available.Add(gpus...)
			}
		}
		m.finalizeLocked(job, model.StatusCancelled, 0, "")
	}
	m.mu.Unlock()
	m.emitCompletionSuppressed(req.JobID)

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}

// emitCompletionSuppressed drops a cancelled job's interactive attachment
// without sending a completion event (spec.md §8 scenario 4: "no completion
// event forwarded to queue listeners").
func (m *Master) emitCompletionSuppressed(jobID string) {
	m.mu.Lock()
	att := m.interactive[jobID]
	delete(m.interactive, jobID)
	m.mu.Unlock()
	if att != nil {
		att.conn.Close()
	}
}

// handleFlush cancels every queued and running job (spec.md §4.4).
func (m *Master) handleFlush(ctx context.Context, conn net.Conn) {
	m.mu.Lock()
	var queued []*model.Job
	queued = append(queued, m.queue...)
	m.queue = nil
	for _, j := range queued {
		m.finalizeLocked(j, model.StatusCancelled, 0, "")
	}

	type runningCancel struct {
		jobID string
		addr  string
	}
	var toCancel []runningCancel
	for id, j := range m.running {
		for nodeID := range j.Assignment {
			if n, ok := m.nodes[nodeID]; ok {
				toCancel = append(toCancel, runningCancel{jobID: id, addr: n.Addr()})
			}
			break
		}
	}
	m.mu.Unlock()

	for _, j := range queued {
		m.emitCompletionSuppressed(j.JobID)
	}

	for _, rc := range toCancel {
		if err := dispatchCancel(ctx, rc.addr, rc.jobID); err != nil {
			logging.Log.WithField("job_id", rc.jobID).WithError(err).Warn("flush: cancel RPC failed")
			continue
		}
		m.mu.Lock()
		if job, ok := m.running[rc.jobID]; ok {
			for nodeID, gpus := range job.Assignment {
				if n, ok := m.nodes[nodeID]; ok {
					n.Available.Add(gpus...)
				}
			}
			m.finalizeLocked(job, model.StatusCancelled, 0, "")
		}
		m.mu.Unlock()
		m.emitCompletionSuppressed(rc.jobID)
	}

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK, Message: "flushed"}, 5*time.Second)
}

// handleGetJobOutput implements spec.md §6's polling endpoint. Unknown job
// ids return status ok with job_status "unknown" (resolving the Open
// Question in spec.md §9 in favor of uniformity with polling clients).
func (m *Master) handleGetJobOutput(conn net.Conn, req wire.GetJobOutputRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := wire.JobUnknown
	exitCode := 0

	if _, ok := m.running[req.JobID]; ok {
		status = wire.JobRunning
	} else if j, ok := m.done[req.JobID]; ok {
		status = string(j.Status)
		exitCode = j.ExitCode
	} else {
		for _, j := range m.queue {
			if j.JobID == req.JobID {
				status = wire.JobQueued
				break
			}
		}
	}

	var output []string
	if lines, ok := m.output[req.JobID]; ok {
		if req.FromLine < len(lines) {
			output = lines[req.FromLine:]
		}
	}

	wire.WriteJSON(conn, wire.GetJobOutputResponse{
		Status:    wire.StatusOK,
		JobStatus: status,
		Output:    output,
		ExitCode:  exitCode,
	}, 5*time.Second)
}

func writeErr(conn net.Conn, msg string) {
	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: msg}, 5*time.Second)
}
