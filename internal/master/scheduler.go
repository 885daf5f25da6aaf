package master

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/archive"
	"github.com/mgpu-project/mgpu/internal/metrics"
	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/mgpu-project/mgpu/internal/retry"
)

const (
	maxDispatchFailures    = 5  // spec.md §4.2: "after 5 consecutive dispatch failures"
	maxNoPlacementCycles   = 10 // spec.md §4.2: "after 10 consecutive no-placement cycles"
	diagnosisEveryNCycles  = 5  // spec.md §4.9: "on every 5th consecutive no-placement cycle"
)

// RunScheduler runs the scheduling loop until ctx is cancelled: a 1-second
// tick (spec.md §4.2) that scans the queue in priority-descending,
// submit-time-ascending order and attempts to place each job in turn.
func (m *Master) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScheduleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scheduleOnce(ctx)
		}
	}
}

// scheduleOnce makes one pass over the queue, placing every job it can.
func (m *Master) scheduleOnce(ctx context.Context) {
	counted := make(map[string]bool)
	for {
		job, assign, finalizedID, finalizedExit, ok := m.tryPlaceNext(counted)
		if !ok {
			return
		}
		if finalizedID != "" {
			// A job reached a no-placement cycle limit and was finalized
			// in-lock; notify any interactive attachment outside the lock,
			// then keep scanning the rest of the queue.
			m.emitCompletion(finalizedID, finalizedExit)
			continue
		}
		m.dispatchAssignment(ctx, job, assign)
	}
}

// tryPlaceNext scans the queue once, in priority order, for the first job
// that can be placed. Jobs that exceed their no-placement budget are
// finalized as failed in place and reported via finalizedJobID/
// finalizedExitCode so the caller can notify interactive attachments outside
// the lock. Jobs still waiting out a dispatch backoff (SubmitTime in the
// future) are skipped. counted holds the jobs whose no-placement counter has
// already advanced in this scheduling cycle, so each job's counter moves at
// most once per cycle however many times the queue is rescanned. Returns
// ok=false when nothing more can happen this cycle (no placeable job, queue
// exhausted).
func (m *Master) tryPlaceNext(counted map[string]bool) (job *model.Job, assign model.Assignment, finalizedJobID string, finalizedExitCode int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	order := append([]*model.Job(nil), m.queue...)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Priority != order[j].Priority {
			return order[i].Priority > order[j].Priority
		}
		return order[i].SubmitTime.Before(order[j].SubmitTime)
	})

	for _, candidate := range order {
		if candidate.SubmitTime.After(now) {
			continue
		}
		assignment, why := m.findPlacement(candidate, now)
		if assignment != nil {
			m.removeFromQueueLocked(candidate.JobID)
			for nodeID, gpus := range assignment {
				m.nodes[nodeID].Available.Remove(gpus...)
			}
			candidate.Assignment = assignment
			candidate.Status = model.StatusRunning
			candidate.StartTime = now
			candidate.NoPlacementCycles = 0
			m.running[candidate.JobID] = candidate
			return candidate, assignment, "", 0, true
		}

		if !counted[candidate.JobID] {
			counted[candidate.JobID] = true
			candidate.NoPlacementCycles++
			if candidate.NoPlacementCycles%diagnosisEveryNCycles == 0 {
				logging.Log.WithField("job_id", candidate.JobID).WithField("reason", why).
					Debug("no placement available this cycle")
			}
		}
		if candidate.NoPlacementCycles >= maxNoPlacementCycles {
			candidate.Diagnosis = fmt.Sprintf("no placement found after %d cycles: %s", candidate.NoPlacementCycles, why)
			m.finalizeLocked(candidate, model.StatusFailed, -2, candidate.Diagnosis)
			return nil, nil, candidate.JobID, -2, true
		}
	}
	return nil, nil, "", 0, false
}

// removeFromQueueLocked deletes jobID from the queue slice. Caller holds mu.
func (m *Master) removeFromQueueLocked(jobID string) {
	for i, j := range m.queue {
		if j.JobID == jobID {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// finalizeLocked transitions job to a terminal state, appends a final
// output line when msg is non-empty, and moves it to the completed map.
// Caller holds mu. It does NOT release GPUs — callers that finalize a
// running job must do that themselves, since the set of GPUs to release
// depends on why finalization happened (completion vs. node death vs.
// dispatch exhaustion all reach this from different call sites).
func (m *Master) finalizeLocked(job *model.Job, status model.Status, exitCode int, msg string) {
	job.Status = status
	job.ExitCode = exitCode
	job.EndTime = time.Now()
	if msg != "" {
		m.output[job.JobID] = append(m.output[job.JobID], msg)
	}
	delete(m.running, job.JobID)
	m.removeFromQueueLocked(job.JobID)
	m.done[job.JobID] = job

	duration := 0.0
	if !job.StartTime.IsZero() {
		duration = job.EndTime.Sub(job.StartTime).Seconds()
	}
	metrics.RecordJobFinalized(string(status), duration)

	lines := append([]string(nil), m.output[job.JobID]...)
	archiver := m.archiver
	go archiveJobOutput(archiver, job.JobID, lines)
}

// archiveJobOutput is the sole call site for the best-effort output mirror
// (SPEC_FULL.md §4.11): it never touches master state and its result never
// affects a job's outcome.
func archiveJobOutput(store archive.Store, jobID string, lines []string) {
	if store == nil {
		return
	}
	data := strings.Join(lines, "\n")
	err := store.Put(context.Background(), archive.JobKey(jobID), bytes.NewReader([]byte(data)), "text/plain")
	metrics.RecordArchiveWrite(err == nil)
	if err != nil {
		logging.Log.WithField("job_id", jobID).WithError(err).Warn("output archive write failed")
	}
}

// dispatchAssignment issues run RPCs for job's newly committed assignment
// outside the master lock (spec.md §5: "RPCs to agents are issued without
// holding the lock"). A successful dispatch resets the failure count of
// every assigned node. On failure it increments the failing node's failure
// count, restores GPUs, increments the job's retry counter, and reinserts it
// at its queue position; after maxDispatchFailures it is finalized failed
// with exit code -1.
func (m *Master) dispatchAssignment(ctx context.Context, job *model.Job, assign model.Assignment) {
	m.mu.Lock()
	reqs := m.buildRunRequests(job)
	addrs := make(map[string]string, len(assign))
	for nodeID := range assign {
		if n, ok := m.nodes[nodeID]; ok {
			addrs[nodeID] = n.Addr()
		}
	}
	m.mu.Unlock()

	var dispatchErr error
	var failedNode string
	for nodeID, req := range reqs {
		addr, ok := addrs[nodeID]
		if !ok {
			dispatchErr = fmt.Errorf("node %s vanished before dispatch", nodeID)
			break
		}
		if err := dispatchRun(ctx, addr, req); err != nil {
			dispatchErr = fmt.Errorf("node %s: %w", nodeID, err)
			failedNode = nodeID
			break
		}
	}

	if dispatchErr == nil {
		m.mu.Lock()
		for nodeID := range assign {
			if n, ok := m.nodes[nodeID]; ok {
				n.FailureCount = 0
			}
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if n, ok := m.nodes[failedNode]; ok {
		n.FailureCount++
	}

	logging.Log.WithField("job_id", job.JobID).WithError(dispatchErr).
		Warn("dispatch failed, restoring gpus and retrying")

	for nodeID, gpus := range assign {
		if n, ok := m.nodes[nodeID]; ok {
			n.Available.Add(gpus...)
		}
	}
	delete(m.running, job.JobID)
	job.Assignment = nil
	job.RetryCount++

	if job.RetryCount >= maxDispatchFailures {
		job.Diagnosis = fmt.Sprintf("dispatch failed %d times: %v", job.RetryCount, dispatchErr)
		job.Status = model.StatusFailed
		m.finalizeLocked(job, model.StatusFailed, -1, job.Diagnosis)
		m.mu.Unlock()
		m.emitCompletion(job.JobID, -1)
		return
	}

	job.Status = model.StatusQueued
	backoff := retry.Backoff(job.RetryCount, retry.DefaultDispatchConfig())
	job.SubmitTime = time.Now().Add(backoff)
	m.queue = append(m.queue, job)
	metrics.RecordDispatchRetry()
	m.mu.Unlock()
}
