package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// configFileName is the default config file name, looked for in the
// current directory.
const configFileName = ".persist.json"

// config holds the CLI's configuration, loadable from a HuJSON file.
type config struct {
	TablePath string `json:"table_path"` //nolint:tagliatelle // snake_case config file
	SyncOnWrite bool `json:"sync_on_write,omitempty"` //nolint:tagliatelle
}

func defaultConfig() config {
	return config{TablePath: "table.persist", SyncOnWrite: false}
}

// loadConfig reads path (or configFileName if path is empty) and merges
// it over the defaults. A missing file is not an error.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = configFileName
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is user-controlled CLI input
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return config{}, fmt.Errorf("invalid JSONC in %q: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return config{}, fmt.Errorf("invalid JSON in %q: %w", path, err)
	}

	return cfg, nil
}

// writeDefaultConfig atomically writes a fresh default config file at
// path, failing if one already exists.
func writeDefaultConfig(path string) error {
	if path == "" {
		path = configFileName
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %q already exists", path)
	}

	data, err := json.MarshalIndent(defaultConfig(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	return atomic.WriteFile(path, strings.NewReader(string(data)))
}
