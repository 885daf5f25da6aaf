package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/gammazero/workerpool"
	"github.com/mgpu-project/mgpu/internal/metrics"
	"github.com/mgpu-project/mgpu/internal/model"
)

// RunNodeMonitor sweeps the node registry every cfg.SweepEvery, dropping
// nodes whose heartbeat has aged past cfg.DeadAfter (spec.md §4.5 default
// 60s). Placement uses a separate, fixed check, model.Node.Healthy
// (heartbeat age under 300s and failure count under 3), so cfg.DeadAfter
// affects only eviction.
// Per-node health checks fan out through a small bounded worker pool so one
// slow node can't stall the sweep of the rest of the registry.
func (m *Master) RunNodeMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepEvery)
	defer ticker.Stop()

	pool := workerpool.New(4)
	defer pool.StopWait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(pool)
		}
	}
}

func (m *Master) sweepOnce(pool *workerpool.WorkerPool) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		nodeID := id
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			m.checkNode(nodeID)
		})
	}
	wg.Wait()

	m.updateClusterGauges()
}

// updateClusterGauges refreshes the point-in-time Prometheus gauges from a
// single consistent snapshot (SPEC_FULL.md §4.12).
func (m *Master) updateClusterGauges() {
	now := time.Now()
	m.mu.Lock()
	queueDepth := len(m.queue)
	running := len(m.running)
	healthy, registered, avail, total := 0, 0, 0, 0
	for _, n := range m.nodes {
		registered++
		if n.Healthy(now) {
			healthy++
		}
		avail += len(n.Available.Slice())
		total += len(n.Total.Slice())
	}
	m.mu.Unlock()

	metrics.SetClusterGauges(queueDepth, running, healthy, registered, avail, total)
}

// checkNode evicts nodeID if its heartbeat is too old, finalizing any job
// still assigned to it as failed (spec.md §4.5, §7).
func (m *Master) checkNode(nodeID string) {
	now := time.Now()

	m.mu.Lock()
	node, ok := m.nodes[nodeID]
	if !ok || now.Sub(node.LastHeartbeat) < m.cfg.DeadAfter {
		m.mu.Unlock()
		return
	}
	delete(m.nodes, nodeID)

	var orphaned []*model.Job
	for id, job := range m.running {
		if _, assigned := job.Assignment[nodeID]; assigned {
			orphaned = append(orphaned, job)
			delete(m.running, id)
		}
	}
	m.mu.Unlock()

	metrics.RecordNodeEviction(nodeID)
	logging.Log.WithField("node_id", nodeID).
		Warn("node heartbeat expired, evicting and failing its jobs")

	for _, job := range orphaned {
		msg := fmt.Sprintf("node %s failed: heartbeat expired", nodeID)
		m.mu.Lock()
		// finalizeLocked already appends msg to the output buffer; only
		// stream it to an interactive attachment here, to avoid double-
		// appending the node-failure line (spec.md §4.5/§8 scenario 5).
		m.finalizeLocked(job, model.StatusFailed, -1, msg)
		m.mu.Unlock()
		m.streamOutput(job.JobID, msg)
		m.emitCompletion(job.JobID, -1)
	}
}
