package config

import (
	"fmt"
	"os"

	"github.com/catalystcommunity/app-utils-go/env"
	"gopkg.in/yaml.v3"
)

// Daemon-wide settings sourced from the environment, in the style the
// teacher repo uses for package-level config vars.
var (
	MasterAddr     = env.GetEnvOrDefault("MGPU_MASTER_ADDR", "127.0.0.1:9411")
	NodeAdminPort  = env.GetEnvAsIntOrDefault("MGPU_ADMIN_PORT", "9412")
	AvailThreshold = env.GetEnvOrDefault("MGPU_AVAIL_THRESHOLD", "0.10")

	ArchiveBackend = env.GetEnvOrDefault("MGPU_ARCHIVE_BACKEND", "memory") // memory, filesystem, s3
	ArchiveBucket  = env.GetEnvOrDefault("MGPU_ARCHIVE_BUCKET", "mgpu-job-output")
	ArchiveBase    = env.GetEnvOrDefault("MGPU_ARCHIVE_BASE_PATH", "./archive")
)

// NodeSpec is one entry of the cluster YAML's nodes list (spec.md §6).
type NodeSpec struct {
	NodeID   string `yaml:"node_id"`
	Hostname string `yaml:"hostname"`
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	GPUCount int    `yaml:"gpu_count"`
	GPUType  string `yaml:"gpu_type"`
}

// ClusterConfig is the top-level shape of the cluster YAML file, extended
// with optional archive/admin sections beyond spec.md's base shape.
type ClusterConfig struct {
	Nodes   []NodeSpec    `yaml:"nodes"`
	Archive *ArchiveBlock `yaml:"archive,omitempty"`
	Admin   *AdminBlock   `yaml:"admin,omitempty"`
}

// ArchiveBlock configures the optional completed-job output mirror.
type ArchiveBlock struct {
	Backend string `yaml:"type"` // none, filesystem, s3 (memory also accepted, for tests)
	Bucket  string `yaml:"bucket,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
	BaseDir string `yaml:"base_path,omitempty"`
}

// AdminBlock configures the optional read-only observability surface.
type AdminBlock struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// defaultClusterConfig is used when no config file is present (spec.md §6:
// "a default single-node localhost entry is used if absent").
func defaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Nodes: []NodeSpec{
			{NodeID: "n1", Hostname: "localhost", IP: "127.0.0.1", Port: 9511, GPUCount: 1},
		},
	}
}

// LoadClusterConfig reads and parses the cluster YAML at path. An empty or
// missing path returns the single-node localhost default.
func LoadClusterConfig(path string) (ClusterConfig, error) {
	if path == "" {
		return defaultClusterConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultClusterConfig(), nil
		}
		return ClusterConfig{}, fmt.Errorf("read cluster config %s: %w", path, err)
	}

	var cfg ClusterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ClusterConfig{}, fmt.Errorf("parse cluster config %s: %w", path, err)
	}
	if len(cfg.Nodes) == 0 {
		return defaultClusterConfig(), nil
	}
	return cfg, nil
}
