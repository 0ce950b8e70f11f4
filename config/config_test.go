package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidelity/loyalty-engine/config"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loyalty.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9090
database = ":memory:"
code_prefix = "M"
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, "M", cfg.CodePrefix)
	// Untouched keys keep their defaults.
	assert.Equal(t, config.Default().CodeWidth, cfg.CodeWidth)
	assert.Equal(t, config.Default().AdminCode, cfg.AdminCode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/loyalty.toml")
	assert.Error(t, err)
}
