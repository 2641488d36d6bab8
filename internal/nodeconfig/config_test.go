package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{SubnetPath: "bloom-560m"}
	ApplyDefaults(cfg)

	assert.Equal(t, ScoringBlockWeight, cfg.ScoringMode)
	assert.Equal(t, "tmp/subnet-initial-peers", cfg.BootstrapFile)
	require.NotNil(t, cfg.BlockSecs)
	assert.Equal(t, 6*time.Second, *cfg.BlockSecs)
	require.NotNil(t, cfg.AttestationQuorum)
	assert.Equal(t, 0.875, *cfg.AttestationQuorum)
	require.NotNil(t, cfg.MaxAttestChecks)
	assert.Equal(t, 3, *cfg.MaxAttestChecks)
	require.NotNil(t, cfg.RPSConcurrency)
	assert.Equal(t, 4, *cfg.RPSConcurrency)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	blockSecs := 9 * time.Second
	cfg := &Config{ScoringMode: ScoringBlockAndRPS, BlockSecs: &blockSecs}
	ApplyDefaults(cfg)

	assert.Equal(t, ScoringBlockAndRPS, cfg.ScoringMode)
	assert.Equal(t, 9*time.Second, *cfg.BlockSecs)
}

func TestApplyDefaultsNilConfigDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestLoadDecodesTOMLAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	body := "SubnetPath = \"bloom-560m\"\nScoringMode = \"block-rps\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bloom-560m", cfg.SubnetPath)
	assert.Equal(t, ScoringBlockAndRPS, cfg.ScoringMode)
	require.NotNil(t, cfg.MaxAttestChecks)
	assert.Equal(t, 3, *cfg.MaxAttestChecks)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
