package main

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stats_memory "github.com/code-payments/keys-server/pkg/keys/data/stats/memory"
	"github.com/code-payments/keys-server/pkg/keys/stats"
)

func TestSetupStatsWriter(t *testing.T) {
	ctx := context.Background()
	log := logrus.NewEntry(logrus.New())

	sink := stats.NewStoreSink(stats_memory.New())

	// The allow-list is left alone unless registration is asked for
	require.NoError(t, setupStatsWriter(ctx, log, sink, "keys-market", false))
	isWriter, err := sink.IsWriter(ctx, "keys-market")
	require.NoError(t, err)
	assert.False(t, isWriter)

	require.NoError(t, setupStatsWriter(ctx, log, sink, "keys-market", true))
	isWriter, err = sink.IsWriter(ctx, "keys-market")
	require.NoError(t, err)
	assert.True(t, isWriter)
}

func TestDefaultConfig(t *testing.T) {
	assert.False(t, defaultConfig.RegisterStatsWriter)
}
