package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	sub := filepath.Join(dir, "appleport")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "config.toml"), []byte(body), 0o644))
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Preserve)
	assert.Nil(t, cfg.Defaults.Verify)
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, `
[defaults]
preserve = "naps"
verify = true
maczip = true
overwrite = "never"
`)
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.Preserve)
	assert.Equal(t, "naps", *cfg.Defaults.Preserve)
	require.NotNil(t, cfg.Defaults.Verify)
	assert.True(t, *cfg.Defaults.Verify)
	require.NotNil(t, cfg.Defaults.Overwrite)
	assert.Equal(t, "never", *cfg.Defaults.Overwrite)
	assert.Nil(t, cfg.Defaults.Compress)
}

func TestLoadRejectsBadMode(t *testing.T) {
	writeConfig(t, `
[defaults]
preserve = "shadow"
`)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preserve mode")
}

func TestLoadRejectsBadOverwrite(t *testing.T) {
	writeConfig(t, `
[defaults]
overwrite = "sometimes"
`)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite")
}
