package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("CYCLE_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
	assert.Equal(t, 10, cfg.CycleBatchSize)
	assert.Equal(t, 300*time.Second, cfg.RetryBase)
	assert.Equal(t, time.Hour, cfg.RetryCap)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("PACE_MIN", "1s")
	t.Setenv("PACE_MAX", "2s")
	t.Setenv("PUBLIC_BASE_URL", "https://mail.example.com/")
	t.Setenv("EMBEDDED_WORKER", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, time.Second, cfg.PaceMin)
	assert.Equal(t, 2*time.Second, cfg.PaceMax)
	assert.Equal(t, "https://mail.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.EmbeddedWorker)
}

func TestLoad_RejectsInvertedWindows(t *testing.T) {
	t.Setenv("PACE_MIN", "20s")
	t.Setenv("PACE_MAX", "5s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PACE_MIN")
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("CYCLE_BATCH_SIZE", "lots")
	t.Setenv("CYCLE_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.CycleBatchSize)
	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
}
