package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/decay"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "validator.yaml")

	cfg := Default()
	cfg.Network.ChallengeID = "chal-1"
	cfg.Network.ValidatorHotkey = "5Validator"
	cfg.Storage.Backend = "disk"
	cfg.Competitions = append(cfg.Competitions, CompetitionDecayConfig{
		CompetitionID: "comp-1",
		Decay:         decay.DefaultConfig(),
	})

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Network.ChallengeID, loaded.Network.ChallengeID)
	require.Equal(t, cfg.Storage.Backend, loaded.Storage.Backend)
	require.Len(t, loaded.Competitions, 1)
}

func TestDecayConfigForFallsBackToDefault(t *testing.T) {
	cfg := Default()
	got := cfg.DecayConfigFor("unknown-competition")
	require.Equal(t, decay.DefaultConfig(), got)
}

func TestDecayConfigForReturnsConfiguredEntry(t *testing.T) {
	cfg := Default()
	custom := decay.DefaultConfig()
	custom.GraceEpochs = 42
	cfg.Competitions = []CompetitionDecayConfig{{CompetitionID: "comp-1", Decay: custom}}

	got := cfg.DecayConfigFor("comp-1")
	require.Equal(t, uint64(42), got.GraceEpochs)
}

func TestEnsureInitializedCreatesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLATFORM_HOME", dir)

	cfg, err := EnsureInitialized()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Storage.Backend)

	path, err := Path()
	require.NoError(t, err)
	require.FileExists(t, path)
}
