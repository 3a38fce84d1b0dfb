package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/logger"
)

func TestBuild_MemoryDriver(t *testing.T) {
	rt, err := Build(context.Background(), config.Config{
		StorageDriver:  "memory",
		CycleInterval:  time.Second,
		CycleBatchSize: 5,
		RetryBase:      time.Minute,
		RetryCap:       time.Hour,
	}, logger.Nop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.DB)
	require.NotNil(t, rt.Store)
	assert.NotNil(t, rt.Executor)
	assert.NotNil(t, rt.Scheduler)
	assert.NoError(t, rt.Ping(context.Background()))

	w := rt.NewWorker()
	assert.Equal(t, time.Second, w.Interval)

	res, err := rt.Scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Due)
}

func TestBuild_PostgresNeedsURL(t *testing.T) {
	_, err := Build(context.Background(), config.Config{StorageDriver: "postgres"}, logger.Nop())
	assert.Error(t, err)
}
