package coordinator_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/coordinator"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	contents := "retry_max_elapsed: 10s\nfailure_threshold: 5\nsync_interval: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := coordinator.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.RetryMaxElapsed)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2*time.Second, cfg.SyncInterval)
}

func TestLoadConfigFallsBackToDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("failure_threshold: 7\n"), 0o644))

	cfg, err := coordinator.LoadConfig(path)
	require.NoError(t, err)

	def := coordinator.DefaultConfig()
	assert.Equal(t, def.RetryMaxElapsed, cfg.RetryMaxElapsed)
	assert.Equal(t, def.SyncInterval, cfg.SyncInterval)
	assert.Equal(t, 7, cfg.FailureThreshold)
}
