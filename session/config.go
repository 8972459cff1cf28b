// Package session handles tether.toml configuration and the lifecycle
// of a bridge session: locating the runtime's socket, connecting to it,
// and resolving root objects.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents a tether.toml configuration.
type Config struct {
	Endpoint Endpoint `toml:"endpoint"`
	Trace    Trace    `toml:"trace"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the tether.toml file (set at load time).
	Dir string `toml:"-"`
}

// Endpoint configures where the runtime's socket lives.
type Endpoint struct {
	Dir       string `toml:"dir"`
	Base      string `toml:"base"`
	TimeoutMS int    `toml:"timeout-ms"`
}

// Trace configures call recording.
type Trace struct {
	Path string `toml:"path"`
}

// Log configures logging output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Timeout returns the connect timeout as a duration.
func (e Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// SocketPath returns the socket path for a runtime process ID.
func (e Endpoint) SocketPath(pid int) string {
	return filepath.Join(e.Dir, fmt.Sprintf("%s-%d.sock", e.Base, pid))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint: Endpoint{
			Dir:       os.TempDir(),
			Base:      "tether",
			TimeoutMS: 5000,
		},
	}
}

// Load parses a tether.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "tether.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindAndLoad walks up from startDir to find a tether.toml file, then
// loads and returns the config. Returns the defaults if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "tether.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Endpoint.Dir == "" {
		cfg.Endpoint.Dir = os.TempDir()
	}
	if cfg.Endpoint.Base == "" {
		cfg.Endpoint.Base = "tether"
	}
	if cfg.Endpoint.TimeoutMS <= 0 {
		cfg.Endpoint.TimeoutMS = 5000
	}
}

// TracePath returns the absolute path of the trace database, or ""
// when tracing is off.
func (c *Config) TracePath() string {
	if c.Trace.Path == "" {
		return ""
	}
	if filepath.IsAbs(c.Trace.Path) || c.Dir == "" {
		return c.Trace.Path
	}
	return filepath.Join(c.Dir, c.Trace.Path)
}
