package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/admin"
	"github.com/mgpu-project/mgpu/internal/archive"
	"github.com/mgpu-project/mgpu/internal/config"
	mastersrv "github.com/mgpu-project/mgpu/internal/master"
	"github.com/urfave/cli/v2"
)

var clusterConfigPath string
var masterListenAddr string

// MasterCommand starts the cluster scheduler daemon.
var MasterCommand = &cli.Command{
	Name:  "master",
	Usage: "Run the mgpu cluster scheduler",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "cluster-config",
			Aliases:     []string{"c"},
			Usage:       "Path to the cluster YAML config (optional, single-node localhost default if absent)",
			EnvVars:     []string{"MGPU_CLUSTER_CONFIG"},
			Destination: &clusterConfigPath,
		},
		&cli.StringFlag{
			Name:        "listen",
			Value:       "0.0.0.0:9411",
			Usage:       "Address for the master's wire-protocol listener",
			EnvVars:     []string{"MGPU_MASTER_LISTEN"},
			Destination: &masterListenAddr,
		},
	},
	Action: func(c *cli.Context) error {
		return RunMaster(c.Context)
	},
}

// RunMaster loads cluster config (informational only until agents
// self-register) and runs the master's accept loop, scheduler, and node
// monitor until interrupted.
func RunMaster(ctx context.Context) error {
	cluster, err := config.LoadClusterConfig(clusterConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := mastersrv.New(mastersrv.DefaultConfig())

	if store, err := archiveStoreFrom(cluster.Archive); err != nil {
		logging.Log.WithError(err).Warn("archive backend disabled: init failed")
	} else {
		m.SetArchiver(store)
	}

	go m.RunScheduler(ctx)
	go m.RunNodeMonitor(ctx)

	if cluster.Admin != nil && cluster.Admin.Enabled {
		addr := cluster.Admin.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", config.NodeAdminPort)
		}
		adminSrv := admin.New(m, 0)
		go func() {
			if err := adminSrv.Serve(ctx, addr); err != nil {
				logging.Log.WithError(err).Warn("admin surface stopped")
			}
		}()
	}

	logging.Log.WithField("addr", masterListenAddr).Info("starting mgpu-master")
	return m.Serve(ctx, masterListenAddr)
}

// archiveStoreFrom builds the configured output-archive backend, defaulting
// to a disabled no-op store when the cluster config omits the block.
func archiveStoreFrom(block *config.ArchiveBlock) (archive.Store, error) {
	if block == nil {
		return archive.New(archive.Config{Type: "none"})
	}
	return archive.New(archive.Config{
		Type:    block.Backend,
		BaseDir: block.BaseDir,
		Bucket:  block.Bucket,
		Prefix:  block.Prefix,
	})
}
