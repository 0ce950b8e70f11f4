// Package config loads server configuration from an optional TOML file.
// Flags in cmd/server override whatever the file provides.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds everything the server needs at startup.
type Config struct {
	// Port the HTTP server listens on.
	Port int `toml:"port"`

	// Database is the SQLite path; ":memory:" for an in-memory database.
	Database string `toml:"database"`

	// AdminCode and AdminSecret bootstrap the single administrator
	// account on first run. The engine stores the secret opaquely; it
	// never verifies it.
	AdminCode   string `toml:"admin_code"`
	AdminSecret string `toml:"admin_secret"`

	// CodePrefix and CodeWidth control customer code formatting
	// ("CL" + zero-padded 3 digits by default).
	CodePrefix string `toml:"code_prefix"`
	CodeWidth  int    `toml:"code_width"`

	// AllowedOrigins for CORS.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Port:           8080,
		Database:       "loyalty.db",
		AdminCode:      "admin",
		AdminSecret:    "admin",
		CodePrefix:     "CL",
		CodeWidth:      3,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load reads a TOML config file over the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}
