package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archon72.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Conclave.DebateRounds)
	require.Equal(t, 2, cfg.Conclave.SupermajorityNumerator)
	require.Equal(t, 3, cfg.Conclave.SupermajorityDenominator)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestValidateRejectsBadSupermajority(t *testing.T) {
	cfg := Default()
	cfg.Conclave.SupermajorityNumerator = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Conclave.SupermajorityNumerator = cfg.Conclave.SupermajorityDenominator + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveMaxAttempts(t *testing.T) {
	cfg := Default()
	cfg.JobQueue.MaxAttempts = 0
	require.Error(t, cfg.Validate())
}
