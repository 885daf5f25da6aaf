// Package wire defines the JSON-over-TCP request/response messages and the
// newline-delimited event stream exchanged between clients, the master, and
// node agents.
package wire

// Command names carried in the "cmd" field of every request.
const (
	CmdSubmit        = "submit"
	CmdQueue         = "queue"
	CmdCancel        = "cancel"
	CmdFlush         = "flush"
	CmdGetJobOutput  = "get_job_output"
	CmdNodeRegister  = "node_register"
	CmdNodeHeartbeat = "node_heartbeat"
	CmdNodeStatus    = "node_status"
	CmdJobOutput     = "job_output"
	CmdJobComplete   = "job_complete"
	CmdRun           = "run"
	CmdGetResources  = "get_resources"
)

// Status values carried in every response's "status" field.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Job status values reported by get_job_output and queue.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
	JobUnknown   = "unknown"
)

// Distributed job rendezvous types, per spec.md §4.8.
const (
	DistributedSingle  = "single"
	DistributedPyTorch = "pytorch"
	DistributedMPI     = "mpi"
)

// SubmitRequest is a client->master submit message.
type SubmitRequest struct {
	Cmd         string              `json:"cmd"`
	User        string              `json:"user"`
	Command     string              `json:"command"`
	GPUs        int                 `json:"gpus,omitempty"`
	NodeGPUIDs  map[string][]int    `json:"node_gpu_ids,omitempty"`
	NodeCount   int                 `json:"node_count,omitempty"`
	GPUsPerNode int                 `json:"gpus_per_node,omitempty"`
	IncludeNode []string            `json:"include_nodes,omitempty"`
	ExcludeNode []string            `json:"exclude_nodes,omitempty"`
	Priority    int                 `json:"priority,omitempty"`
	Interactive bool                `json:"interactive,omitempty"`
	Distributed string              `json:"distributed_type,omitempty"`
}

// SubmitResponse is the master's reply to a submit request.
type SubmitResponse struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`
	Message     string `json:"message,omitempty"`
}

// QueueRequest requests a snapshot of queue/running/node state.
type QueueRequest struct {
	Cmd string `json:"cmd"`
}

// NodeSnapshot describes one registered node in a queue response.
type NodeSnapshot struct {
	AvailableGPUs []int    `json:"available_gpus"`
	TotalGPUs     []int    `json:"total_gpus"`
	RunningJobs   []string `json:"running_jobs"`
	LastHeartbeat int64    `json:"last_heartbeat"`
}

// QueueResponse is the master's reply to a queue request.
type QueueResponse struct {
	Status  string                  `json:"status"`
	Queue   []JobSummary            `json:"queue"`
	Running []JobSummary            `json:"running"`
	Nodes   map[string]NodeSnapshot `json:"nodes"`
}

// JobSummary is the compact job representation used in queue listings.
type JobSummary struct {
	JobID        string `json:"job_id"`
	User         string `json:"user"`
	Command      string `json:"command"`
	Priority     int    `json:"priority"`
	AssignedNode string `json:"assigned_node,omitempty"`
	SubmitTime   int64  `json:"submit_time"`
}

// CancelRequest is a client->master cancel message.
type CancelRequest struct {
	Cmd   string `json:"cmd"`
	JobID string `json:"job_id"`
}

// FlushRequest is a client->master flush message.
type FlushRequest struct {
	Cmd string `json:"cmd"`
}

// StatusMessageResponse is a generic {status, message} reply used by cancel
// and flush.
type StatusMessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// GetJobOutputRequest polls for a job's buffered output.
type GetJobOutputRequest struct {
	Cmd      string `json:"cmd"`
	JobID    string `json:"job_id"`
	FromLine int    `json:"from_line"`
}

// GetJobOutputResponse returns buffered lines from a given offset.
type GetJobOutputResponse struct {
	Status    string   `json:"status"`
	JobStatus string   `json:"job_status"`
	Output    []string `json:"output"`
	ExitCode  int      `json:"exit_code"`
}

// NodeRegisterRequest is sent by an agent on startup.
type NodeRegisterRequest struct {
	Cmd      string    `json:"cmd"`
	NodeID   string    `json:"node_id"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	GPUCount int       `json:"gpu_count"`
	GPUInfo  []GPUInfo `json:"gpu_info,omitempty"`
}

// GPUInfo describes one GPU as reported by the inventory probe.
type GPUInfo struct {
	Index       int   `json:"index"`
	TotalMemMB  int64 `json:"total_mem_mb"`
	UsedMemMB   int64 `json:"used_mem_mb"`
}

// NodeHeartbeatRequest is sent by an agent every heartbeat interval.
type NodeHeartbeatRequest struct {
	Cmd           string `json:"cmd"`
	NodeID        string `json:"node_id"`
	AvailableGPUs []int  `json:"available_gpus"`
	RunningJobs   []string `json:"running_jobs"`
}

// JobOutputRequest carries one captured output line from agent to master.
type JobOutputRequest struct {
	Cmd         string `json:"cmd"`
	JobID       string `json:"job_id"`
	Data        string `json:"data"`
	Interactive bool   `json:"interactive"`
	NodeID      string `json:"node_id"`
}

// JobCompleteRequest carries the final exit code from agent to master.
type JobCompleteRequest struct {
	Cmd      string `json:"cmd"`
	JobID    string `json:"job_id"`
	ExitCode int    `json:"exit_code"`
	NodeID   string `json:"node_id"`
}

// RunRequest is sent by the master to dispatch a job onto an agent.
type RunRequest struct {
	Cmd            string `json:"cmd"`
	JobID          string `json:"job_id"`
	Command        string `json:"command"`
	User           string `json:"user"`
	GPUs           []int  `json:"gpus"`
	Interactive    bool   `json:"interactive"`
	Rank           int    `json:"rank,omitempty"`
	WorldSize      int    `json:"world_size,omitempty"`
	MasterNode     string `json:"master_node,omitempty"`
	DistributedType string `json:"distributed_type,omitempty"`
}

// AgentCancelRequest is sent by the master to cancel a running job.
type AgentCancelRequest struct {
	Cmd   string `json:"cmd"`
	JobID string `json:"job_id"`
}

// GetResourcesRequest asks an agent for its current resource view.
type GetResourcesRequest struct {
	Cmd string `json:"cmd"`
}

// GetResourcesResponse reports an agent's current GPU inventory.
type GetResourcesResponse struct {
	Status        string `json:"status"`
	AvailableGPUs []int  `json:"available_gpus"`
	GPUCount      int    `json:"gpu_count"`
}

// StreamOutputEvent is one line of the newline-delimited interactive stream
// pushed from master to an attached client socket.
type StreamOutputEvent struct {
	Type string `json:"type"` // "output"
	Data string `json:"data"`
}

// StreamCompletionEvent terminates an interactive stream successfully.
type StreamCompletionEvent struct {
	Type     string `json:"type"` // "completion"
	ExitCode int    `json:"exit_code"`
}

// StreamErrorEvent terminates an interactive stream abnormally.
type StreamErrorEvent struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
