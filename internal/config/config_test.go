package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "datasteward", cfg.App.Name)
	assert.Equal(t, 500, cfg.TeamChat.ReplyDelayMS)
	assert.Equal(t, 2000, cfg.TeamChat.TypingDelayMS)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9090

[catalog]
chunk_size = 250
preview_items = 3

[storage]
bucket = "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_BUCKET", "from-env")
	t.Setenv("STORAGE_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 250, cfg.Catalog.ChunkSize)
	assert.Equal(t, 3, cfg.Catalog.PreviewItems)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UseSSL)
	// untouched keys keep their defaults
	assert.Equal(t, 2000, cfg.Catalog.PreviewChars)
}

func TestMalformedEnvKeepsValue(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("APP_PORT", "not-a-port")
	t.Setenv("STORAGE_USE_SSL", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.False(t, cfg.Storage.UseSSL)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app\nport = "), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.User = "steward"
	cfg.MySQL.Password = "pw"
	assert.Equal(t,
		"steward:pw@tcp(127.0.0.1:3306)/datasteward?parseTime=true&loc=Local&charset=utf8mb4",
		cfg.MySQLDSN(),
	)
}
