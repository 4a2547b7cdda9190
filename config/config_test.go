package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/config"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, config.Default().Valid())
}

func TestPresets_AreAllValid(t *testing.T) {
	for _, name := range config.PresetNames() {
		c, err := config.ByName(name)
		require.NoError(t, err, name)
		require.NoError(t, c.Valid(), name)
	}
}

func TestByName_UnknownPresetErrors(t *testing.T) {
	_, err := config.ByName("nonexistent")
	require.Error(t, err)
}

func TestValid_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(config.Config) config.Config
		wantErr error
	}{
		{"zero workers", func(c config.Config) config.Config { c.Workers = 0; return c }, config.ErrInvalidWorkerCount},
		{"shards below workers", func(c config.Config) config.Config { c.Shards = c.Workers - 1; return c }, config.ErrInvalidShardCount},
		{"zero provenance window", func(c config.Config) config.Config { c.ProvenanceWindow = 0; return c }, config.ErrInvalidProvenanceWindow},
		{"zero receipt cache", func(c config.Config) config.Config { c.ReceiptCacheSize = 0; return c }, config.ErrInvalidReceiptCacheSize},
		{"zero checkpoint interval", func(c config.Config) config.Config { c.CheckpointInterval = 0; return c }, config.ErrInvalidCheckpointPeriod},
		{"zero frame retention", func(c config.Config) config.Config { c.ChannelFrameRetention = 0; return c }, config.ErrInvalidFrameRetention},
		{"zero atom write window", func(c config.Config) config.Config { c.AtomWriteWindow = 0; return c }, config.ErrInvalidAtomWriteWindow},
		{"bad guard mode", func(c config.Config) config.Config { c.GuardMode = 99; return c }, config.ErrInvalidGuardMode},
		{"bad channel policy", func(c config.Config) config.Config { c.DefaultChannelPolicy = "bogus"; return c }, config.ErrInvalidDefaultChannelPol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(config.Default()).Valid()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWithWorkers_OverridesWorkerCount(t *testing.T) {
	c := config.Default().WithWorkers(4)
	require.Equal(t, 4, c.Workers)
	require.NoError(t, c.Valid())
}
