package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultRelation, cfg.Relation)
	assert.Equal(t, defaultRelationSize, cfg.RelationSize)
	assert.Equal(t, defaultFrames, cfg.Frames)
	assert.Equal(t, []string{"forward", "backward", "random"}, cfg.Orders)
	assert.Equal(t, filepath.Join(defaultDataDir, "log"), cfg.Log.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clockdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/clockdb
relation_size: 1200
orders: [random]
buffer_frames: 12
leaf_capacity: 8
storage_backend: mmap
log:
  level: debug
  max_size: 5
`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/clockdb", cfg.DataDir)
	assert.Equal(t, 1200, cfg.RelationSize)
	assert.Equal(t, []string{"random"}, cfg.Orders)
	assert.Equal(t, 12, cfg.Frames)
	assert.Equal(t, 8, cfg.LeafCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Log.MaxSize)
	assert.Equal(t, "/var/lib/clockdb/log", cfg.Log.Dir)

	opts, err := cfg.storageOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, body := range map[string]string{
		"order":   "orders: [sideways]",
		"backend": "storage_backend: tape",
		"level":   "log: {level: loud}",
		"yaml":    "orders: [",
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
