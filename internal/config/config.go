// Package config loads scratchpad settings from an optional YAML file.
//
// Every field has a default, so an empty or missing file is valid. Command
// line flags are layered on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/hostfunc"
)

// Config is the full set of tunables for the CLI and server.
type Config struct {
	Timeout time.Duration `yaml:"timeout"`
	Memory  string        `yaml:"memory"`
	NoCache bool          `yaml:"no_cache"`
	Timers  Timers        `yaml:"timers"`
	Modules Modules       `yaml:"modules"`
	Limits  Limits        `yaml:"limits"`
	History History       `yaml:"history"`
	Serve   Serve         `yaml:"serve"`
}

// Timers bounds the delays guest timers are clamped to.
type Timers struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Modules controls the optional capabilities guest code can require.
type Modules struct {
	AllowHosts []string `yaml:"allow_hosts"`
	Mounts     []string `yaml:"mounts"`
	KV         bool     `yaml:"kv"`
}

type Limits struct {
	HTTPMaxURL  int   `yaml:"http_max_url"`
	HTTPMaxBody int64 `yaml:"http_max_body"`
	FSMaxFile   int64 `yaml:"fs_max_file"`
	FSMaxWrite  int64 `yaml:"fs_max_write"`
	FSMaxPath   int   `yaml:"fs_max_path"`
}

type History struct {
	File  string `yaml:"file"`
	Limit int    `yaml:"limit"`
}

type Serve struct {
	Port       int           `yaml:"port"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Timeout: executor.DefaultTimeout,
		Memory:  "256mb",
		Timers: Timers{
			Min: executor.DefaultTimerMin,
			Max: executor.DefaultTimerMax,
		},
		Limits: Limits{
			HTTPMaxURL:  hostfunc.DefaultMaxURLLength,
			HTTPMaxBody: hostfunc.DefaultMaxBodySize,
			FSMaxFile:   hostfunc.DefaultMaxFileSize,
			FSMaxWrite:  hostfunc.DefaultMaxWriteSize,
			FSMaxPath:   hostfunc.DefaultMaxPathLength,
		},
		History: History{
			File:  defaultHistoryFile(),
			Limit: 1000,
		},
		Serve: Serve{
			Port:       8080,
			SessionTTL: 15 * time.Minute,
		},
	}
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".scratchpad_history")
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	if err := decode(file, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	if c.Timers.Min <= 0 || c.Timers.Max < c.Timers.Min {
		return fmt.Errorf("invalid timer bounds [%v, %v]", c.Timers.Min, c.Timers.Max)
	}
	if _, err := ParseMemory(c.Memory); err != nil {
		return err
	}
	for _, spec := range c.Modules.Mounts {
		if _, err := hostfunc.ParseMount(spec); err != nil {
			return err
		}
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history limit must not be negative, got %d", c.History.Limit)
	}
	return nil
}

// ParseMemory maps a size name to a page count. An empty string means no
// limit.
func ParseMemory(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return 0, nil
	case "16mb":
		return executor.MemoryLimit16MB, nil
	case "64mb":
		return executor.MemoryLimit64MB, nil
	case "256mb":
		return executor.MemoryLimit256MB, nil
	case "1gb":
		return executor.MemoryLimit1GB, nil
	}
	return 0, fmt.Errorf("invalid memory limit %q (want 16mb, 64mb, 256mb or 1gb)", s)
}

// ExecutorOptions translates the runtime-wide settings.
func (c Config) ExecutorOptions() ([]executor.ExecutorOption, error) {
	var opts []executor.ExecutorOption
	if !c.NoCache {
		opts = append(opts, executor.WithDiskCache())
	}
	pages, err := ParseMemory(c.Memory)
	if err != nil {
		return nil, err
	}
	if pages > 0 {
		opts = append(opts, executor.WithMemoryLimit(pages))
	}
	return opts, nil
}

// SessionOptions translates the per-context settings.
func (c Config) SessionOptions() ([]executor.SessionOption, error) {
	opts := []executor.SessionOption{
		executor.WithSessionTimeout(c.Timeout),
		executor.WithTimerBounds(c.Timers.Min, c.Timers.Max),
	}

	if len(c.Modules.AllowHosts) > 0 {
		opts = append(opts,
			executor.WithSessionAllowedHosts(c.Modules.AllowHosts),
			executor.WithSessionHTTPMaxURLLength(c.Limits.HTTPMaxURL),
			executor.WithSessionHTTPMaxBodySize(c.Limits.HTTPMaxBody),
		)
	}

	for _, spec := range c.Modules.Mounts {
		m, err := hostfunc.ParseMount(spec)
		if err != nil {
			return nil, err
		}
		opts = append(opts, executor.WithSessionMount(m.VirtualPath, m.HostPath, m.Mode))
	}
	if len(c.Modules.Mounts) > 0 {
		opts = append(opts,
			executor.WithSessionFSMaxFileSize(c.Limits.FSMaxFile),
			executor.WithSessionFSMaxWriteSize(c.Limits.FSMaxWrite),
			executor.WithSessionFSMaxPathLength(c.Limits.FSMaxPath),
		)
	}

	if c.Modules.KV {
		opts = append(opts, executor.WithSessionKV())
	}
	return opts, nil
}
