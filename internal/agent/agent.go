package agent

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/model"
	"github.com/mgpu-project/mgpu/internal/retry"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// Config controls one Agent instance.
type Config struct {
	NodeID         string
	Host           string // advertised host, reachable from the master
	Port           int    // agent's own listener port
	MasterAddr     string
	GPUType        string
	RunAsUser      string // if set, every job launches as this OS user regardless of submitter
	AvailThreshold float64
	HeartbeatEvery time.Duration
}

// Agent is the node-side daemon: it owns this node's GPU bookkeeping,
// accepts run/cancel/get_resources RPCs from the master, and reports
// registration/heartbeats/output/completion back to it. Mirrors spec.md
// §4's SimpleNode responsibilities.
type Agent struct {
	cfg     Config
	prober  Prober
	backend IsolationBackend
	sup     *Supervisor

	mu        sync.Mutex
	total     model.IntSet
	available model.IntSet
	running   map[string]Process // job_id -> handle, for cancellation
}

// New builds an Agent. Call Start to register with the master and begin
// serving.
func New(cfg Config, prober Prober, backend IsolationBackend) *Agent {
	if cfg.AvailThreshold <= 0 {
		cfg.AvailThreshold = 0.10
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 10 * time.Second
	}
	return &Agent{
		cfg:     cfg,
		prober:  prober,
		backend: backend,
		sup:     NewSupervisor(cfg.MasterAddr, cfg.NodeID),
		running: make(map[string]Process),
	}
}

// Start probes local GPUs, registers with the master, opens the RPC
// listener, and launches the heartbeat loop. It blocks serving connections
// until ctx is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	gpus, err := a.prober.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("probe GPU inventory: %w", err)
	}
	avail := InitialAvailable(gpus, a.cfg.AvailThreshold)
	total := make([]int, len(gpus))
	for i, g := range gpus {
		total[i] = g.Index
	}

	a.mu.Lock()
	a.total = model.NewIntSet(total...)
	a.available = model.NewIntSet(avail...)
	a.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", a.cfg.Port, err)
	}
	defer ln.Close()

	if err := a.register(ctx, gpus); err != nil {
		return fmt.Errorf("register with master: %w", err)
	}

	go a.heartbeatLoop(ctx)

	logging.Log.WithFields(hostFields()).WithField("node_id", a.cfg.NodeID).WithField("port", a.cfg.Port).
		Info("agent listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Log.WithError(err).Warn("accept error")
			continue
		}
		go a.handleConn(ctx, conn)
	}
}

func (a *Agent) register(ctx context.Context, gpus []wire.GPUInfo) error {
	cfg := retry.DefaultDispatchConfig()
	return retry.Attempt(ctx, cfg, "node_register", func(ctx context.Context, attempt int) error {
		conn, err := wire.Dial(a.cfg.MasterAddr, 5*time.Second)
		if err != nil {
			return err
		}
		defer conn.Close()

		req := wire.NodeRegisterRequest{
			Cmd:      wire.CmdNodeRegister,
			NodeID:   a.cfg.NodeID,
			Host:     a.cfg.Host,
			Port:     a.cfg.Port,
			GPUCount: len(gpus),
			GPUInfo:  gpus,
		}
		if err := wire.WriteJSON(conn, req, 5*time.Second); err != nil {
			return err
		}
		var resp wire.StatusMessageResponse
		if err := wire.ReadJSON(conn, &resp, 5*time.Second); err != nil {
			return err
		}
		if resp.Status != wire.StatusOK {
			return fmt.Errorf("master rejected registration: %s", resp.Message)
		}
		return nil
	})
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sendHeartbeat(); err != nil {
				logging.Log.WithField("node_id", a.cfg.NodeID).WithError(err).
					Warn("heartbeat failed")
			}
		}
	}
}

func (a *Agent) sendHeartbeat() error {
	a.mu.Lock()
	avail := a.available.Slice()
	jobs := make([]string, 0, len(a.running))
	for id := range a.running {
		jobs = append(jobs, id)
	}
	a.mu.Unlock()

	conn, err := wire.Dial(a.cfg.MasterAddr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := wire.NodeHeartbeatRequest{
		Cmd:           wire.CmdNodeHeartbeat,
		NodeID:        a.cfg.NodeID,
		AvailableGPUs: avail,
		RunningJobs:   jobs,
	}
	if err := wire.WriteJSON(conn, req, 5*time.Second); err != nil {
		return err
	}
	var resp wire.StatusMessageResponse
	return wire.ReadJSON(conn, &resp, 5*time.Second)
}

func (a *Agent) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	cmd, raw, err := wire.PeekCmd(conn, 5*time.Second)
	if err != nil {
		return
	}

	switch cmd {
	case wire.CmdRun:
		a.handleRun(ctx, conn, raw)
	case wire.CmdCancel:
		a.handleCancel(conn, raw)
	case wire.CmdGetResources:
		a.handleGetResources(conn, raw)
	default:
		wire.WriteJSON(conn, wire.StatusMessageResponse{
			Status: wire.StatusError, Message: "unknown command: " + cmd,
		}, 5*time.Second)
	}
}

func (a *Agent) handleRun(ctx context.Context, conn net.Conn, raw []byte) {
	var req wire.RunRequest
	if err := wire.UnmarshalInto(raw, &req); err != nil {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: err.Error()}, 5*time.Second)
		return
	}

	user := req.User
	if a.cfg.RunAsUser != "" {
		user = a.cfg.RunAsUser
	}

	a.mu.Lock()
	if !a.available.ContainsAll(req.GPUs) {
		a.mu.Unlock()
		wire.WriteJSON(conn, wire.StatusMessageResponse{
			Status: wire.StatusError, Message: "requested gpus not all available",
		}, 5*time.Second)
		return
	}
	a.available.Remove(req.GPUs...)
	a.mu.Unlock()

	env := BuildEnv([]string{}, req)
	launch := LaunchSpec{JobID: req.JobID, User: user, Command: req.Command, Env: env}

	proc, err := a.backend.Launch(ctx, launch)
	if err != nil {
		a.mu.Lock()
		a.available.Add(req.GPUs...)
		a.mu.Unlock()
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: err.Error()}, 5*time.Second)
		return
	}

	a.mu.Lock()
	a.running[req.JobID] = proc
	a.mu.Unlock()

	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)

	go a.supervise(req.JobID, req.GPUs, req.Interactive, proc)
}

// supervise streams proc's output and reports completion, then releases the
// job's GPUs back to availability. Once a job's process has launched, this
// is the only path that frees its GPUs (spec.md §4.7), including for jobs
// that were cancelled; handleRun frees them itself only when launch fails.
func (a *Agent) supervise(jobID string, gpus []int, interactive bool, proc Process) {
	a.sup.runProcess(jobID, interactive, proc)

	a.mu.Lock()
	a.available.Add(gpus...)
	delete(a.running, jobID)
	a.mu.Unlock()
}

func (a *Agent) handleCancel(conn net.Conn, raw []byte) {
	var req wire.AgentCancelRequest
	if err := wire.UnmarshalInto(raw, &req); err != nil {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: err.Error()}, 5*time.Second)
		return
	}

	a.mu.Lock()
	proc, ok := a.running[req.JobID]
	a.mu.Unlock()

	if !ok {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: "job not running on this node"}, 5*time.Second)
		return
	}

	if err := proc.Kill(); err != nil {
		wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusError, Message: err.Error()}, 5*time.Second)
		return
	}
	wire.WriteJSON(conn, wire.StatusMessageResponse{Status: wire.StatusOK}, 5*time.Second)
}

func (a *Agent) handleGetResources(conn net.Conn, raw []byte) {
	a.mu.Lock()
	avail := a.available.Slice()
	count := len(a.total)
	a.mu.Unlock()

	wire.WriteJSON(conn, wire.GetResourcesResponse{
		Status:        wire.StatusOK,
		AvailableGPUs: avail,
		GPUCount:      count,
	}, 5*time.Second)
}
