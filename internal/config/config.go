// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v3"

	"github.com/rise-fleet/rise/internal/logging"
)

// Config holds the application's configuration, resolved with the standard
// default -> file -> environment -> command-flag precedence.
type Config struct {
	Database struct {
		Type string `mapstructure:"type"`
		Dsn  string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Language string `mapstructure:"language"`

	// ContentSourceURL is the HTTPS root serving manifest.json, program
	// binaries, localization bundles, and the ports database (§6).
	ContentSourceURL string `mapstructure:"content_source_url"`
	// CacheRoot overrides the platform default cache directory.
	CacheRoot string `mapstructure:"cache_root"`
	// AutoUpdatePrograms controls whether a manifest-detected program
	// version bump is pushed to every configured host automatically (§4.10).
	AutoUpdatePrograms bool `mapstructure:"auto_update_programs"`
	// SyncInterval is how often the background scheduler re-checks the
	// manifest. Defaults to 6h.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

const (
	configFileName       = "rise.yaml"
	legacyConfigFileName = ".rise.yaml"
)

// GetConfigPath returns the full path to the user- or system-scoped
// configuration file for the current OS.
func GetConfigPath(system bool) (string, error) {
	if system {
		var dir string
		switch runtime.GOOS {
		case "windows":
			dir = filepath.Join(os.Getenv("ProgramData"), "RISE")
		default:
			dir = "/etc/rise"
		}
		return filepath.Join(dir, configFileName), nil
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve user config directory: %w", err)
		}
	}
	return filepath.Join(dir, "rise", configFileName), nil
}

// candidatePaths returns the files LoadConfig considers, in priority order.
// An explicit override short-circuits discovery entirely, matching --config.
func candidatePaths(override *string) []string {
	if override != nil {
		return []string{*override}
	}
	var paths []string
	if p, err := GetConfigPath(false); err == nil {
		paths = append(paths, p)
	}
	if p, err := GetConfigPath(true); err == nil {
		paths = append(paths, p)
	}
	return append(paths, "./"+configFileName)
}

// firstUsable returns the first candidate that exists and is non-empty.
// A zero-length file is treated as absent rather than fed to the YAML
// decoder, which would otherwise fail on it.
func firstUsable(paths []string) (path string, sawEmpty bool) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if fi.Size() == 0 {
			sawEmpty = true
			continue
		}
		return p, sawEmpty
	}
	return "", sawEmpty
}

// LoadConfig resolves a T from defaults, an on-disk YAML file (explicit
// override, else user config, system config, or ./rise.yaml in that
// order), environment variables prefixed RISE_, and cmd's bound flags,
// each overriding the last. A viper.ConfigFileNotFoundError return is not
// a failure: it tells the caller no file was found, so defaults alone
// were used.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.SetConfigType("yaml")

	var readErr error
	if used, sawEmpty := firstUsable(candidatePaths(additionalConfigFilePath)); used != "" {
		viper.SetConfigFile(used)
		if err := viper.ReadInConfig(); err != nil {
			return c, fmt.Errorf("config: read %s: %w", used, err)
		}
		logging.Debugf("config: using %s", used)
	} else {
		readErr = viper.ConfigFileNotFoundError{}
		if sawEmpty {
			logging.Debugf("config: every candidate was empty, falling back to defaults")
		} else {
			logging.Debugf("config: no candidate file found, falling back to defaults")
		}
	}

	mergeLegacyConfig(viper.GetViper())

	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvPrefix("rise")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return c, fmt.Errorf("config: bind flags: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		logging.Debugf("config: unmarshal failed (file %q): %v", viper.ConfigFileUsed(), err)
		return c, fmt.Errorf("config: unmarshal: %w", err)
	}

	return c, readErr
}

// mergeLegacyConfig merges a pre-rename `.rise.yaml` left in the working
// directory into an already-loaded configuration, if one is present.
func mergeLegacyConfig(v *viper.Viper) {
	if _, err := os.Stat(legacyConfigFileName); err != nil {
		return
	}
	v.SetConfigFile(legacyConfigFileName)
	defer v.SetConfigFile("")
	if err := v.MergeInConfig(); err != nil {
		logging.Debugf("config: merge legacy %s: %v", legacyConfigFileName, err)
		return
	}
	logging.Debugf("config: merged legacy %s", legacyConfigFileName)
}

// WriteConfigFile persists c as YAML at the user- or system-scoped config
// path, creating parent directories as needed.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}

	// 0600: the database DSN can carry embedded credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Save re-serializes viper's current state (file, environment, and flag
// overlay already merged by a prior LoadConfig call) back to the
// user-scoped config file.
func Save() error {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal for save: %w", err)
	}
	return WriteConfigFile(&c, false)
}
