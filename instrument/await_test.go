package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTopLevelAwait(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"await x", true},
		{"(await a) + 1", true},
		{"if (a) { await x }", true},
		{"for (const x of xs) { await x }", true},
		{"f(async i => await i, await y)", true},
		{"f(async i => await i)", false},
		{"xs.map(async (i) => { return await i; })", false},
		{"async () => { await x }", false},
		{"async function g() { await x }", false},
		{"async function* g() { await x }", false},
		{"({ async m() { await x } })", false},
		{"class A { async m() { await x } }", false},
		{"'await'", false},
		{"`await ${x}`", false},
		{"// await\nx", false},
		{"awaiting()", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, hasTopLevelAwait(tt.code))
		})
	}
}
