// Package scratchpad evaluates JavaScript line by line inside a WebAssembly
// sandbox and reports the value every line produced.
//
// # Overview
//
// A submission is split into statements, rewritten so assignments, return
// values and bare expressions emit traces tagged with their source line, and
// evaluated in a persistent context with zero default capabilities.
// Declarations run first, so code may call a function defined further down.
//
// # Basic Usage
//
//	exec, _ := executor.New(hostfunc.NewRegistry())
//	defer exec.Close()
//
//	m := repl.New(exec)
//	defer m.Close()
//
//	res := m.Submit(ctx, "const r = 5 + 3;\nr * 2", func(ev executor.Event) {
//	    fmt.Printf("%d: %s = %s\n", ev.Line, ev.Label, ev.Text())
//	})
//	fmt.Println(res.Value) // 16
//
//	m.Reset(ctx) // discard every binding
//
// # Enabling Capabilities
//
//	m := repl.New(exec, repl.WithSessionOptions(
//	    executor.WithSessionAllowedHosts([]string{"api.example.com"}),
//	    executor.WithSessionMount("/data", "./input", hostfunc.MountReadOnly),
//	    executor.WithSessionKV(),
//	))
//
// See the [repl], [instrument], [executor], [hostfunc] and
// [language/javascript] packages for detailed API documentation.
package scratchpad
