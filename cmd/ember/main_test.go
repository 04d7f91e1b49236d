package main

import (
	"context"
	"testing"

	"github.com/cuemby/ember/pkg/config"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/health"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"simulate"},
		{"worker", "ls"},
		{"worker", "add"},
		{"worker", "rm"},
		{"worker", "state"},
		{"submit"},
		{"complete"},
		{"cancel"},
		{"history"},
		{"events"},
		{"cluster", "info"},
		{"cluster", "token"},
		{"cluster", "rm"},
		{"migrate"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.NotEqual(t, rootCmd, cmd, path)
	}
}

func TestRegisterWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = []config.WorkerConfig{
		{ID: "w1", Environment: types.Environment{Target: "python"}},
		{
			ID:          "w2",
			Environment: types.Environment{Target: "go"},
			Probe:       &health.Spec{Type: health.CheckTypeTCP, Target: "127.0.0.1:1"},
		},
	}
	schedCfg, err := cfg.BalancerConfig()
	require.NoError(t, err)

	initial, err := dispatcher.LoadState(context.Background(), nil, schedCfg)
	require.NoError(t, err)
	local := dispatcher.NewLocal(initial, nil)
	local.Start()
	t.Cleanup(local.Stop)
	d := dispatcher.New(local)

	ctx := context.Background()
	require.NoError(t, registerWorkers(ctx, d, cfg, nil))
	// a restart sees the same workers and adds nothing
	require.NoError(t, registerWorkers(ctx, d, cfg, nil))

	workers, err := d.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, types.WorkerID("w1"), workers[0].ID)
	assert.Equal(t, types.WorkerStatusReady, workers[0].State)
	assert.Equal(t, types.WorkerStatusStarting, workers[1].State)
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, config.DriverNone, driverName(""))
	assert.Equal(t, config.DriverBolt, driverName(config.DriverBolt))
}

func TestParseLocation(t *testing.T) {
	cfg, err := parseLocation("bolt:./data/ember.db", "k")
	require.NoError(t, err)
	assert.Equal(t, config.StorageConfig{Driver: config.DriverBolt, Path: "./data/ember.db", Key: "k"}, cfg)

	cfg, err = parseLocation("redis:redis://localhost:6379/0", "k")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.URL)

	for _, bad := range []string{"bolt", "bolt:", "etcd:/x", "none:x"} {
		_, err := parseLocation(bad, "k")
		assert.Error(t, err, bad)
	}
}
