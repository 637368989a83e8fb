package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/rise-fleet/rise/internal/config"
)

func resetViper() {
	viper.Reset()
}

func TestLoadConfig_EmptyCandidate_TreatedAsNotFound(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	cfgDir := filepath.Join(tmp, "rise")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	emptyPath := filepath.Join(cfgDir, "rise.yaml")
	f, err := os.Create(emptyPath)
	require.NoError(t, err)
	f.Close()

	resetViper()
	defer resetViper()

	defaults := map[string]any{"database.type": "sqlite", "database.dsn": "./rise.db", "language": "en"}
	_, err = cfg.LoadConfig[cfg.Config](&cobra.Command{}, defaults, nil)
	require.Error(t, err)
	_, ok := err.(viper.ConfigFileNotFoundError)
	assert.True(t, ok, "expected ConfigFileNotFoundError, got %T", err)
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	resetViper()
	defer resetViper()

	c := cfg.Config{}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./rise.db"
	c.Language = "en"

	require.NoError(t, cfg.WriteConfigFile(&c, false))

	path, err := cfg.GetConfigPath(false)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadConfig_ReadsExplicitFile(t *testing.T) {
	tmp := t.TempDir()
	yaml := "database:\n  type: postgres\n  dsn: postgresql://user@/db\nlanguage: de\ncontent_source_url: https://content.rise.example/\n"
	file := filepath.Join(tmp, "cfg.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))

	resetViper()
	defer resetViper()

	defaults := map[string]any{"database.type": "sqlite", "database.dsn": "./rise.db", "language": "en"}
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, defaults, &file)
	require.NoError(t, err)
	assert.Equal(t, "postgres", got.Database.Type)
	assert.Equal(t, "de", got.Language)
	assert.Equal(t, "https://content.rise.example/", got.ContentSourceURL)
}
