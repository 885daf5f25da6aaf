// Package model holds the master's in-memory job and node types and the
// invariants spec.md §3 places on them. Nothing here talks to the network;
// internal/master owns the locking and transition logic around these types.
package model

import "time"

// Status is a job's lifecycle state: queued -> running -> {completed,
// failed, cancelled}.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RequestKind distinguishes the three resource request shapes of spec.md §3.
type RequestKind int

const (
	// KindPinned is an exact {node_id -> [gpu_index,...]} mapping.
	KindPinned RequestKind = iota
	// KindShaped is (node_count, gpus_per_node) with optional include/exclude.
	KindShaped
	// KindFlat is a single gpus_needed count, any one node.
	KindFlat
)

// ResourceRequest is one of the three shapes a submission can take. Only the
// fields matching Kind are meaningful.
type ResourceRequest struct {
	Kind RequestKind

	// KindPinned
	Pinned map[string][]int

	// KindShaped
	NodeCount     int
	GPUsPerNode   int
	IncludeNodes  []string
	ExcludeNodes  []string

	// KindFlat
	GPUsNeeded int
}

// Assignment is the concrete placement the scheduler committed to for a job:
// node id -> the specific GPU indices reserved on that node.
type Assignment map[string][]int

// TotalGPUs returns the number of GPU indices across all nodes in the
// assignment.
func (a Assignment) TotalGPUs() int {
	n := 0
	for _, gpus := range a {
		n += len(gpus)
	}
	return n
}

// DistributedSpec carries the rendezvous parameters for multi-host jobs
// (spec.md §4.8). Zero value means a single-process job.
type DistributedSpec struct {
	Type string // "single", "pytorch", "mpi"
}

// Job is one submission accepted by the master. Exactly one of {queue,
// Master.running, Master.done} holds a given JobID at any instant
// (spec.md §3 invariant).
type Job struct {
	JobID   string
	User    string
	Command string
	Request ResourceRequest

	Priority    int
	Interactive bool
	Distributed DistributedSpec

	Status Status

	SubmitTime time.Time
	StartTime  time.Time
	EndTime    time.Time

	ExitCode   int
	Assignment Assignment

	RetryCount        int
	NoPlacementCycles int

	// Diagnosis is populated only when the job is finalized failed on
	// retry/placement exhaustion (spec.md §4.9); it is appended verbatim to
	// the output buffer.
	Diagnosis string
}

// IsTerminal reports whether the job has reached a state get_job_output
// will never see transition away from.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
