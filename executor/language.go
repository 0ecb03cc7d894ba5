package executor

// Language defines a WASM interpreter that can host a session.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "javascript").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the language interpreter.
	Module() []byte

	// Runtime returns the guest program that drives a session. It must emit
	// the ready frame, read exec commands from stdin and report each one
	// with a done frame.
	Runtime() string

	// Args returns the command-line arguments to pass to the WASM module.
	// For QuickJS: []string{"qjs", "--std", "-e", program}
	Args(program string) []string
}
