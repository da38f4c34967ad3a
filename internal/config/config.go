// Package config loads sandboxx settings from a YAML file.
//
// Every field has a default, so a missing file is not an error: Load
// returns Default() and the caller decides whether that is acceptable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMinIO  = "minio"
)

// Config is the top-level configuration.
type Config struct {
	// BaseDir holds the durable state of the file and sqlite backends and
	// the isolator work directories.
	BaseDir  string   `yaml:"baseDir"`
	LogLevel string   `yaml:"logLevel"`
	Store    Store    `yaml:"store"`
	Isolator Isolator `yaml:"isolator"`
}

// Store selects and configures the state store backend.
type Store struct {
	Backend string `yaml:"backend"`

	// Dir is the root of the file backend. Defaults to BaseDir.
	Dir    string `yaml:"dir"`
	SQLite SQLite `yaml:"sqlite"`
	Redis  Redis  `yaml:"redis"`
	MinIO  MinIO  `yaml:"minio"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Bucket    string `yaml:"bucket"`
}

// Isolator configures the local command runner.
type Isolator struct {
	// WorkDir is the parent of per-session work directories. Defaults to
	// <BaseDir>/sandboxes.
	WorkDir string        `yaml:"workDir"`
	Timeout time.Duration `yaml:"timeout"`

	// Filesystem is "dir" for direct file I/O or "shell" to run file
	// operations as shell commands in the work directory.
	Filesystem string `yaml:"filesystem"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BaseDir:  "~/.sandboxx",
		LogLevel: "info",
		Store: Store{
			Backend: BackendFile,
			Redis:   Redis{Addr: "localhost:6379", Prefix: "sandboxx:"},
			MinIO:   MinIO{Bucket: "sandboxx"},
		},
		Isolator: Isolator{Timeout: 30 * time.Second, Filesystem: "dir"},
	}
}

// Load reads path over Default(), expands "~" and fills derived paths.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolve expands home-relative paths and derives unset paths from BaseDir.
func (c *Config) resolve() error {
	var err error
	if c.BaseDir, err = ExpandHome(c.BaseDir); err != nil {
		return err
	}
	if c.Store.Dir == "" {
		c.Store.Dir = c.BaseDir
	} else if c.Store.Dir, err = ExpandHome(c.Store.Dir); err != nil {
		return err
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = filepath.Join(c.BaseDir, "state.db")
	} else if c.Store.SQLite.Path, err = ExpandHome(c.Store.SQLite.Path); err != nil {
		return err
	}
	if c.Isolator.WorkDir == "" {
		c.Isolator.WorkDir = filepath.Join(c.BaseDir, "sandboxes")
	} else if c.Isolator.WorkDir, err = ExpandHome(c.Isolator.WorkDir); err != nil {
		return err
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel %q: must be debug, info, warn or error", c.LogLevel)
	}
	if c.Isolator.Timeout < 0 {
		return fmt.Errorf("isolator.timeout must not be negative")
	}
	switch c.Isolator.Filesystem {
	case "dir", "shell":
	default:
		return fmt.Errorf("isolator.filesystem %q: must be dir or shell", c.Isolator.Filesystem)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required")
		}
	case BackendMinIO:
		m := c.Store.MinIO
		if m.Endpoint == "" || m.AccessKey == "" || m.SecretKey == "" {
			return fmt.Errorf("store.minio endpoint, accessKey and secretKey are required")
		}
		if m.Bucket == "" {
			return fmt.Errorf("store.minio.bucket is required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
