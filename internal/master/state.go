// Package master implements the cluster scheduler daemon: job ingestion,
// placement, node liveness, interactive output fan-out, and the agent RPC
// client. State lives in one *Master guarded by a single sync.Mutex, which
// is not re-entrant (spec.md §4.2): every mutation takes the lock, and any RPC a
// mutation needs to make happens after a snapshot is taken and the lock
// released, never while holding it.
package master

import (
	"fmt"
	"sync"
	"time"

	"github.com/mgpu-project/mgpu/internal/archive"
	"github.com/mgpu-project/mgpu/internal/model"
)

// Master holds all cluster state in memory. Nothing here is durable across
// a restart (spec.md §1 Non-goals: "job state need not survive a master
// restart").
type Master struct {
	mu sync.Mutex

	counter int
	queue   []*model.Job          // queued jobs, in submit order
	running map[string]*model.Job // job_id -> job, while running
	done    map[string]*model.Job // job_id -> job, terminal state

	output map[string][]string // job_id -> buffered output lines (spec.md §4.6)

	nodes map[string]*model.Node // node_id -> node

	interactive map[string]*attachment // job_id -> attached client socket, if any

	archiver archive.Store // best-effort output mirror, SPEC_FULL.md §4.11

	cfg Config
}

// Config controls cluster-wide scheduling policy.
type Config struct {
	AcceptableJitter time.Duration // unused placeholder for future jitter tuning, kept at zero
	DeadAfter        time.Duration // heartbeat age past which the node monitor drops a node, default 60s
	SweepEvery       time.Duration // node liveness sweep interval, spec.md §4.2 default 10s
	ScheduleEvery    time.Duration // scheduling loop tick, spec.md §4.2 default 1s
}

// DefaultConfig matches spec.md §4.2's stated defaults.
func DefaultConfig() Config {
	return Config{
		DeadAfter:     60 * time.Second,
		SweepEvery:    10 * time.Second,
		ScheduleEvery: 1 * time.Second,
	}
}

// New builds an empty Master with output archival disabled. Use
// SetArchiver to enable it.
func New(cfg Config) *Master {
	m := &Master{
		running:     make(map[string]*model.Job),
		done:        make(map[string]*model.Job),
		output:      make(map[string][]string),
		nodes:       make(map[string]*model.Node),
		interactive: make(map[string]*attachment),
		cfg:         cfg,
	}
	m.archiver, _ = archive.New(archive.Config{Type: "none"})
	return m
}

// SetArchiver swaps in a configured output-archive backend.
func (m *Master) SetArchiver(s archive.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiver = s
}

// nextJobID returns the next job_NNNNNN identifier. Caller must hold mu.
func (m *Master) nextJobID() string {
	m.counter++
	return fmt.Sprintf("job_%06d", m.counter)
}
