package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClusterConfigDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := LoadClusterConfig("")
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 1)
	assert.Equal(t, "n1", cfg.Nodes[0].NodeID)
}

func TestLoadClusterConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadClusterConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Len(t, cfg.Nodes, 1)
}

func TestLoadClusterConfigParsesNodesAndArchive(t *testing.T) {
	yamlContent := `
nodes:
  - node_id: gpu-a
    hostname: gpu-a.internal
    ip: 10.0.0.2
    port: 9511
    gpu_count: 8
    gpu_type: A100
archive:
  type: filesystem
  base_path: /var/lib/mgpu/archive
admin:
  enabled: true
  addr: ":9412"
`
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := LoadClusterConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Nodes, 1)
	assert.Equal(t, "gpu-a", cfg.Nodes[0].NodeID)
	assert.Equal(t, 8, cfg.Nodes[0].GPUCount)

	require.NotNil(t, cfg.Archive)
	assert.Equal(t, "filesystem", cfg.Archive.Backend)
	assert.Equal(t, "/var/lib/mgpu/archive", cfg.Archive.BaseDir)

	require.NotNil(t, cfg.Admin)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, ":9412", cfg.Admin.Addr)
}

func TestLoadClusterConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: [this is not valid"), 0644))

	_, err := LoadClusterConfig(path)
	assert.Error(t, err)
}
