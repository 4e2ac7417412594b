package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/agentx-labs/capreg/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Dir returns the path to the user config directory (~/.capreg/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the user config file.
func FilePath() string {
	if v := os.Getenv(branding.EnvVar("CONFIG")); v != "" {
		return v
	}
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the directory holding the user config file.
func EnsureDir() error {
	dir := filepath.Dir(FilePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// UserDefaultKeys are the user settings that seed every corpus config.
// A corpus config file or a CAPREG_* variable still wins over them.
var UserDefaultKeys = []string{"mode", "log_level", "metrics_file", "workers", "cache.store", "cache.read_mode"}

// Load initializes Viper to read user settings from the config file and
// environment. Values set earlier in the process are dropped.
func Load() {
	viper.Reset()
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Get returns a user config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// UserDefaults returns the UserDefaultKeys present in the user config file.
// Load must have run.
func UserDefaults() map[string]any {
	out := make(map[string]any)
	for _, k := range UserDefaultKeys {
		if viper.InConfig(k) {
			out[k] = viper.Get(k)
		}
	}
	return out
}

// Keys returns every user config key currently set.
func Keys() []string {
	return viper.AllKeys()
}

// Set writes a user config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
