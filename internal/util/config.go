package util

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Configuration holds host-level settings for the bridge. Values come from
// the optional TOML config file, overridden by command-line flags.
type Configuration struct {
	Version   string `toml:"-"`
	BuildDate string `toml:"-"`
	Commit    string `toml:"-"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// Plugin preference store. Driver is one of the registered
	// database/sql drivers: sqlite3, mysql, postgres.
	PrefsDriver string `toml:"prefs_driver"`
	PrefsDSN    string `toml:"prefs_dsn"`

	// Capacity of the main-thread event queue.
	QueueSize int `toml:"queue_size"`
}

// DefaultConfiguration returns the settings used when no config file exists.
func DefaultConfiguration() Configuration {
	return Configuration{
		LogLevel:    "error",
		PrefsDriver: "sqlite3",
		PrefsDSN:    "file:quill_prefs.db",
		QueueSize:   64,
	}
}

// LoadConfiguration reads a TOML config file over the defaults. A missing
// file is not an error; a malformed one is.
func LoadConfiguration(path string) (Configuration, error) {
	cfg := DefaultConfiguration()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	return cfg, nil
}
