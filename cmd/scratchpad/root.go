package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/hostfunc"
	"github.com/caffeineduck/scratchpad/internal/config"
	"github.com/caffeineduck/scratchpad/language/javascript"
)

var rootCmd = &cobra.Command{
	Use:   "scratchpad [file]",
	Short: "Live-evaluating JavaScript scratchpad in a WebAssembly sandbox",
	Long: `scratchpad - Evaluate JavaScript line by line and see every value.

Each submission runs in a persistent context inside a WebAssembly
sandbox. Assignments, return values and bare expressions are traced
with the line that produced them. Guest code has no access to the
filesystem, network or other system resources unless enabled with flags.`,
	Args:         cobra.MaximumNArgs(1),
	RunE:         runRun, // Default to run command behavior
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")

	addRunFlags(rootCmd)
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", name)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}

// loadConfig reads --config and lets every flag the user set explicitly
// win over the file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if changed("timer-min") {
		cfg.Timers.Min, _ = flags.GetDuration("timer-min")
	}
	if changed("timer-max") {
		cfg.Timers.Max, _ = flags.GetDuration("timer-max")
	}
	if changed("memory") {
		cfg.Memory, _ = flags.GetString("memory")
	}
	if changed("no-cache") {
		cfg.NoCache, _ = flags.GetBool("no-cache")
	}
	if changed("kv") {
		cfg.Modules.KV, _ = flags.GetBool("kv")
	}
	if changed("allow-host") {
		cfg.Modules.AllowHosts, _ = flags.GetStringSlice("allow-host")
	}
	if changed("mount") {
		cfg.Modules.Mounts, _ = flags.GetStringSlice("mount")
	}
	if changed("http-max-url") {
		cfg.Limits.HTTPMaxURL, _ = flags.GetInt("http-max-url")
	}
	if changed("http-max-body") {
		cfg.Limits.HTTPMaxBody, _ = flags.GetInt64("http-max-body")
	}
	if changed("fs-max-file") {
		cfg.Limits.FSMaxFile, _ = flags.GetInt64("fs-max-file")
	}
	if changed("fs-max-write") {
		cfg.Limits.FSMaxWrite, _ = flags.GetInt64("fs-max-write")
	}
	if changed("fs-max-path") {
		cfg.Limits.FSMaxPath, _ = flags.GetInt("fs-max-path")
	}
	if changed("history") {
		cfg.History.File, _ = flags.GetString("history")
	}
	if changed("port") {
		cfg.Serve.Port, _ = flags.GetInt("port")
	}
	if changed("session-ttl") {
		cfg.Serve.SessionTTL, _ = flags.GetDuration("session-ttl")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func addSessionFlags(flags *pflag.FlagSet) {
	def := config.Default()
	flags.Duration("timeout", def.Timeout, "Per-submission timeout")
	flags.Duration("timer-min", def.Timers.Min, "Minimum guest timer delay")
	flags.Duration("timer-max", def.Timers.Max, "Maximum guest timer delay")
	flags.Bool("kv", false, "Enable require('kv')")
	flags.StringSlice("allow-host", nil, "Allow fetch to host (repeatable)")
	flags.StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	flags.String("memory", def.Memory, "Memory limit: 16mb, 64mb, 256mb, 1gb")

	// Security limits
	flags.Int("http-max-url", def.Limits.HTTPMaxURL, "Max HTTP URL length")
	flags.Int64("http-max-body", def.Limits.HTTPMaxBody, "Max HTTP response body size")
	flags.Int64("fs-max-file", def.Limits.FSMaxFile, "Max file read size")
	flags.Int64("fs-max-write", def.Limits.FSMaxWrite, "Max file write size")
	flags.Int("fs-max-path", def.Limits.FSMaxPath, "Max path length")
}

// newExecutor builds the executor shared by every context of a command.
func newExecutor(cfg config.Config, logger *slog.Logger) (*executor.Executor, error) {
	opts, err := cfg.ExecutorOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		executor.WithPrecompile(javascript.New()),
		executor.WithLogger(logger),
	)
	return executor.New(hostfunc.NewRegistry(), opts...)
}

// setup is the common prologue of every command.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, *executor.Executor, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	exec, err := newExecutor(cfg, logger)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("start executor: %w", err)
	}
	return cfg, logger, exec, nil
}
