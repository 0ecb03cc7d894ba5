// Package hostfunc provides the host side of the capability modules that
// sandboxed guest code reaches through require and fetch.
//
// Guest code has no implicit access to system resources. Each capability is
// a set of [Func] values installed into a [Registry]; the executor answers
// guest calls by name from that registry.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// # Built-in Capabilities
//
// Filesystem: mount-based access via [FS] and [Mount], backing require('fs').
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/data", HostPath: "./input", Mode: hostfunc.MountReadOnly},
//	})
//	fs.Register(registry)
//
// HTTP: host allow-listed requests via [HTTP], backing fetch.
//
// Key-value store: bounded in-memory storage via [KV], backing require('kv').
//
// Path, crypto and os: [Path], [Crypto] and [OSInfo] back the modules of the
// same name. [OSInfo] describes a fixed virtual machine, never the host.
//
// # Security Model
//
//   - HTTP requests are limited to explicitly allowed hosts
//   - Filesystem access is restricted to mounted paths with specific permissions
//   - Every operation has a size limit
package hostfunc
