// Package executor runs untrusted JavaScript inside a WebAssembly sandbox.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution.
// A [Session] is one long-lived interpreter instance whose global scope
// persists across runs; [Executor.Run] is a one-shot convenience that
// creates a session, runs code once and discards it.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, javascript.New(), `console.log("hello")`)
//	fmt.Println(result.Output)
//
// # Sessions
//
// Sessions maintain state across multiple executions. Each run is a list
// of batches evaluated in order; events stream to the handler as they are
// produced:
//
//	session, err := exec.NewSession(javascript.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, []executor.Batch{{Code: `const x = 42`}}, nil)
//	session.Run(ctx, []executor.Batch{{Code: `console.log(x)`}}, handler)
//
// A run that exceeds its timeout kills the instance. Every later run on the
// session fails with [ErrSessionClosed].
//
// # Capabilities
//
// By default, guest code can require path, util, os and crypto, all backed
// by host functions with no access to the host system. Everything else is
// enabled explicitly:
//
//	session, _ := exec.NewSession(javascript.New(),
//	    executor.WithSessionAllowedHosts([]string{"api.example.com"}),
//	    executor.WithSessionMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithSessionKV(),
//	)
//
// # Protocol
//
// The guest reports over stderr with NUL-delimited frames: a ready signal,
// events, host calls and one done frame per run. Host call responses and
// exec commands are JSON lines on stdin. Frames carry the id of the run
// that produced them and frames from any other run are dropped.
package executor
