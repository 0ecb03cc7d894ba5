// Package javascript runs JavaScript sessions on the QuickJS interpreter
// compiled to WASI.
package javascript

import (
	_ "embed"

	quickjswasi "github.com/paralin/go-quickjs-wasi"
)

//go:embed stdlib.js
var stdlib string

// JavaScript implements the executor.Language interface for JavaScript.
type JavaScript struct{}

// New returns a JavaScript language adapter.
func New() *JavaScript {
	return &JavaScript{}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Module returns the QuickJS WASM binary.
func (j *JavaScript) Module() []byte {
	return quickjswasi.QuickJSWASM
}

// Runtime returns the session program: timers, require, console and the
// instrumentation sink, followed by the command loop.
func (j *JavaScript) Runtime() string {
	return stdlib
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (j *JavaScript) Args(program string) []string {
	return []string{"qjs", "--std", "-e", program}
}
