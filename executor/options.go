package executor

import (
	"log/slog"
	"time"

	"github.com/caffeineduck/scratchpad/hostfunc"
)

// DefaultTimeout bounds a single submission.
const DefaultTimeout = 5 * time.Second

// Guest timer delays are clamped to [DefaultTimerMin, DefaultTimerMax].
const (
	DefaultTimerMin = 100 * time.Millisecond
	DefaultTimerMax = 5 * time.Second
)

const defaultStartTimeout = 30 * time.Second

type sessionConfig struct {
	timeout          time.Duration
	startTimeout     time.Duration
	allowedHosts     []string
	mounts           []hostfunc.Mount
	httpMaxURLLength int
	httpMaxBodySize  int64
	httpTimeout      time.Duration
	fsOptions        []hostfunc.FSOption
	kvEnabled        bool
	kvStore          *hostfunc.KV
	kvOptions        []hostfunc.KVOption
	timerMin         time.Duration
	timerMax         time.Duration
	env              map[string]string
	logger           *slog.Logger
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:      DefaultTimeout,
		startTimeout: defaultStartTimeout,
		timerMin:     DefaultTimerMin,
		timerMax:     DefaultTimerMax,
		env:          make(map[string]string),
	}
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithSessionTimeout sets the maximum time a single Run may take. Zero
// disables the limit.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithStartTimeout bounds how long the guest may take to become ready.
func WithStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithSessionAllowedHosts sets the hosts fetch may reach. An empty list
// leaves fetch undefined.
func WithSessionAllowedHosts(hosts []string) SessionOption {
	return func(c *sessionConfig) {
		c.allowedHosts = hosts
	}
}

// Mount permission modes (re-exported from hostfunc for convenience).
const (
	MountReadOnly        = hostfunc.MountReadOnly
	MountReadWrite       = hostfunc.MountReadWrite
	MountReadWriteCreate = hostfunc.MountReadWriteCreate
)

// WithSessionMount adds a filesystem mount point with the specified
// permissions. The virtual path is what guest code sees; host path is the
// actual location. Any mount makes require('fs') available.
//
// Examples:
//
//	executor.WithSessionMount("/data", "./input", executor.MountReadOnly)
//	executor.WithSessionMount("/output", "./results", executor.MountReadWrite)
func WithSessionMount(virtualPath, hostPath string, mode hostfunc.MountMode) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, hostfunc.Mount{
			VirtualPath: virtualPath,
			HostPath:    hostPath,
			Mode:        mode,
		})
	}
}

func WithSessionHTTPTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.httpTimeout = d
	}
}

func WithSessionHTTPMaxURLLength(size int) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxURLLength = size
	}
}

func WithSessionHTTPMaxBodySize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.httpMaxBodySize = size
	}
}

func WithSessionFSMaxFileSize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxFileSize(size))
	}
}

func WithSessionFSMaxWriteSize(size int64) SessionOption {
	return func(c *sessionConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxWriteSize(size))
	}
}

func WithSessionFSMaxPathLength(length int) SessionOption {
	return func(c *sessionConfig) {
		c.fsOptions = append(c.fsOptions, hostfunc.WithMaxPathLength(length))
	}
}

// WithSessionKV enables require('kv') backed by a store private to the
// session.
func WithSessionKV(opts ...hostfunc.KVOption) SessionOption {
	return func(c *sessionConfig) {
		c.kvEnabled = true
		c.kvOptions = append(c.kvOptions, opts...)
	}
}

// WithSessionKVStore enables require('kv') backed by kv, which may outlive
// the session.
func WithSessionKVStore(kv *hostfunc.KV) SessionOption {
	return func(c *sessionConfig) {
		c.kvEnabled = true
		c.kvStore = kv
	}
}

// WithTimerBounds sets the range guest timer delays are clamped to.
func WithTimerBounds(lo, hi time.Duration) SessionOption {
	return func(c *sessionConfig) {
		if lo > hi {
			lo, hi = hi, lo
		}
		c.timerMin = lo
		c.timerMax = hi
	}
}

// WithSessionEnv sets an environment variable visible to the interpreter.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}

// WithSessionLogger sets the logger for session lifecycle and host call
// diagnostics. Defaults to the executor's logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
	logger           *slog.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/scratchpad
// or XDG_CACHE_HOME/scratchpad.
//
// Examples:
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the logger used by the executor and its sessions.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
