package cmd

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/catalystcommunity/app-utils-go/logging"
	agentsrv "github.com/mgpu-project/mgpu/internal/agent"
	"github.com/mgpu-project/mgpu/internal/config"
	"github.com/urfave/cli/v2"
)

var (
	agentNodeID     string
	agentHost       string
	agentPort       int
	agentMasterAddr string
	agentGPUCount   int
	agentGPUType    string
	agentRunAsUser  string
)

// AgentCommand starts the node-side daemon that owns local GPUs and
// supervises job processes.
var AgentCommand = &cli.Command{
	Name:  "agent",
	Usage: "Run the mgpu node agent",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "node-id",
			Usage:       "This node's identifier, must match the cluster config",
			EnvVars:     []string{"MGPU_NODE_ID"},
			Destination: &agentNodeID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "host",
			Value:       "127.0.0.1",
			Usage:       "Host address the master should use to reach this agent",
			EnvVars:     []string{"MGPU_NODE_HOST"},
			Destination: &agentHost,
		},
		&cli.IntFlag{
			Name:        "port",
			Value:       9511,
			Usage:       "Port this agent's RPC listener binds",
			EnvVars:     []string{"MGPU_NODE_PORT"},
			Destination: &agentPort,
		},
		&cli.StringFlag{
			Name:        "master-addr",
			Value:       config.MasterAddr,
			Usage:       "Address of the master's wire-protocol listener",
			EnvVars:     []string{"MGPU_MASTER_ADDR"},
			Destination: &agentMasterAddr,
		},
		&cli.IntFlag{
			Name:        "gpu-count",
			Value:       1,
			Usage:       "Number of GPUs this node exposes (fed to the static inventory probe)",
			EnvVars:     []string{"MGPU_GPU_COUNT"},
			Destination: &agentGPUCount,
		},
		&cli.StringFlag{
			Name:        "gpu-type",
			Usage:       "Informational GPU model string",
			EnvVars:     []string{"MGPU_GPU_TYPE"},
			Destination: &agentGPUType,
		},
		&cli.StringFlag{
			Name:        "run-as-user",
			Usage:       "If set, jobs launch as this OS user regardless of the submitting user",
			EnvVars:     []string{"MGPU_RUN_AS_USER"},
			Destination: &agentRunAsUser,
		},
	},
	Action: func(c *cli.Context) error {
		return RunAgent(c.Context)
	},
}

// RunAgent builds and starts an Agent until interrupted.
func RunAgent(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	threshold, err := strconv.ParseFloat(config.AvailThreshold, 64)
	if err != nil {
		threshold = 0.10
	}

	cfg := agentsrv.Config{
		NodeID:         agentNodeID,
		Host:           agentHost,
		Port:           agentPort,
		MasterAddr:     agentMasterAddr,
		GPUType:        agentGPUType,
		RunAsUser:      agentRunAsUser,
		AvailThreshold: threshold,
	}

	prober := agentsrv.NewStaticProber(agentGPUCount, 16*1024)
	backend := agentsrv.NewProcessBackend()
	a := agentsrv.New(cfg, prober, backend)

	logging.Log.WithField("node_id", agentNodeID).Info("starting mgpu-agent")
	return a.Start(ctx)
}
