package agent

import (
	"context"
	"io"
)

// IsolationBackend is the seam spec.md §9 asks for: "the agent interface
// should leave room for an isolation backend strategy" beyond
// CUDA_VISIBLE_DEVICES, which is soft enforcement a user can override.
// ProcessBackend is the only implementation shipped; it is exactly
// spec.md §4.7's documented behavior. A stronger backend (cgroups, MIG
// partitions, a container runtime) can implement this interface without
// touching the supervisor's output-capture or completion-reporting logic.
type IsolationBackend interface {
	// Launch starts cmdline as the named user with env applied, and returns
	// a handle whose Wait/Kill/Output drive the rest of the job's lifecycle.
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// LaunchSpec is everything a backend needs to start one job's process.
type LaunchSpec struct {
	JobID   string
	User    string
	Command string
	Env     []string
}

// Process is a running (or exited) job process abstracted from the
// mechanism that launched it.
type Process interface {
	// Output returns a reader of the process's merged stdout/stderr.
	Output() io.Reader
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// Kill force-terminates the process and everything in its process
	// group (spec.md §4.7: "enumerates the process group (including
	// descendants), and sends a force-kill signal").
	Kill() error
}
