package instrument

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		src  string
		want Kind
	}{
		{"", KindBlank},
		{"   ", KindBlank},
		{"// note", KindComment},
		{"/* note */", KindComment},
		{"function f() {}", KindControlFlow},
		{"async function f() {}", KindControlFlow},
		{"class A {}", KindControlFlow},
		{"for (let i = 0; i < 3; i++) {}", KindControlFlow},
		{"} else {", KindControlFlow},
		{"return x;", KindReturn},
		{"return;", KindReturn},
		{"const f = () => 1;", KindDeclaration},
		{"let g = async x => x;", KindDeclaration},
		{"var h = function() {};", KindDeclaration},
		{"const K = class {};", KindDeclaration},
		{"const n = 42;", KindAssignment},
		{"const o = {a: 1, b: 2};", KindAssignment},
		{"count = count + 1;", KindReassignment},
		{"x == 1", KindOpaque},
		{"Math.max(1, 2)", KindExpression},
		{"await sleep(10)", KindExpression},
		{"x", KindExpression},
		{"obj.field", KindExpression},
		{"obj.field = 3", KindOpaque},
		{"console.log(1)", KindOpaque},
		{"let a = 1, b = 2;", KindOpaque},
		{"const fs = require('fs');", KindOpaque},
		{"throw new Error('x')", KindOpaque},
		{"outer: for (;;) {}", KindOpaque},
		{"x++", KindOpaque},
		{"format(x)", KindExpression},
		{"documentation = 1", KindReassignment},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.src))
		})
	}
}

func TestKindTraced(t *testing.T) {
	assert.True(t, KindReturn.Traced())
	assert.True(t, KindAssignment.Traced())
	assert.True(t, KindReassignment.Traced())
	assert.True(t, KindExpression.Traced())
	assert.False(t, KindDeclaration.Traced())
	assert.False(t, KindOpaque.Traced())
	assert.Equal(t, "control-flow", KindControlFlow.String())
}

func rewrite(t *testing.T, src string) string {
	t.Helper()
	stmts := Segment(src)
	require.Len(t, stmts, 1, "want a single statement from %q", src)
	return Rewrite(stmts[0]).Rewritten
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "return",
			src:  "return a + b;",
			want: `__repl.line(1); return (() => { const __v = (a + b); __repl.value("return", __v, 1); return __v; })();`,
		},
		{
			name: "bare return untouched",
			src:  "return;",
			want: `__repl.line(1); return;`,
		},
		{
			name: "await return",
			src:  "return await fetch(u);",
			want: `__repl.line(1); return await (async () => { const __v = (await fetch(u)); __repl.value("return", __v, 1); return __v; })();`,
		},
		{
			name: "declaration assignment",
			src:  "const r = add(5, 3);",
			want: `__repl.line(1); const r = (() => { const __v = (add(5, 3)); __repl.value("r", __v, 1); return __v; })();`,
		},
		{
			name: "await assignment",
			src:  "let data = await load();",
			want: `__repl.line(1); let data = await (async () => { const __v = (await load()); __repl.value("data", __v, 1); return __v; })();`,
		},
		{
			name: "reassignment keeps comment",
			src:  "x = 5; // five",
			want: `__repl.line(1); x = (() => { const __v = (5); __repl.value("x", __v, 1); return __v; })(); // five`,
		},
		{
			name: "bare expression",
			src:  "Math.max(10, 20, 15);",
			want: `__repl.line(1); { const __v = (Math.max(10, 20, 15)); __repl.value("expression", __v, 1); }`,
		},
		{
			name: "string holding comment marker",
			src:  `const s = "a // b";`,
			want: `__repl.line(1); const s = (() => { const __v = ("a // b"); __repl.value("s", __v, 1); return __v; })();`,
		},
		{
			name: "opaque gets line only",
			src:  "console.log('hi');",
			want: `__repl.line(1); console.log('hi');`,
		},
		{
			name: "indentation kept",
			src:  "    y = 2",
			want: `    __repl.line(1); y = (() => { const __v = (2); __repl.value("y", __v, 1); return __v; })();`,
		},
		{
			name: "directive untouched",
			src:  `"use strict";`,
			want: `"use strict";`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewrite(t, tt.src))
		})
	}
}

func TestRewriteFunctionBody(t *testing.T) {
	got := rewrite(t, "function add(a,b){return a+b;}")
	assert.Equal(t, `function add(a,b){__repl.line(1); return (() => { const __v = (a+b); __repl.value("return", __v, 1); return __v; })();}`, got)
}

func TestRewriteArrowDeclarationBody(t *testing.T) {
	src := "const f = (a) => {\n  return a * 2;\n};"
	want := "__repl.line(1); const f = (a) => {\n" +
		`  __repl.line(2); return (() => { const __v = (a * 2); __repl.value("return", __v, 2); return __v; })();` +
		"\n};"
	assert.Equal(t, want, rewrite(t, src))
}

func TestRewriteNestedAsyncCallbackStaysSync(t *testing.T) {
	src := "function f(xs) {\n  const x = xs.map(async i => await i);\n  return x.length;\n}"
	got := rewrite(t, src)
	assert.Contains(t, got, `const x = (() => { const __v = (xs.map(async i => await i));`)
	assert.NotContains(t, got, "await (async")
}

func TestRewriteAwaitInAsyncBody(t *testing.T) {
	src := "async function load(u) {\n  const r = await get(u);\n  return r;\n}"
	got := rewrite(t, src)
	assert.Contains(t, got, `const r = await (async () => { const __v = (await get(u));`)
}

func TestRewriteArrowObjectBodiesUntouched(t *testing.T) {
	src := "const f = (a) => a ? {x: 1} : {y: 2};"
	assert.Equal(t, "__repl.line(1); "+src, rewrite(t, src))
}

func TestRewriteControlFlowObjectLiteralUntouched(t *testing.T) {
	src := "if (ok) cfg = {a: 1};"
	assert.Equal(t, src, rewrite(t, src))
}

func TestRewriteClassMembers(t *testing.T) {
	src := "class Counter {\n  inc() {\n    return ++this.n;\n  }\n}"
	got := rewrite(t, src)
	assert.Contains(t, got, `__repl.value("return", __v, 3)`)
	assert.NotContains(t, got, "__repl.line(2)")
	assert.True(t, strings.HasPrefix(got, "class Counter {\n  inc() {"))
}

func TestRewriteNestedLines(t *testing.T) {
	src := strings.Join([]string{
		"for (const x of xs) {",
		"  if (x > 1) {",
		"    total = total + x;",
		"  } else {",
		"    skipped++;",
		"  }",
		"}",
	}, "\n")
	got := rewrite(t, src)
	assert.Contains(t, got, `__repl.line(3); total = (() => { const __v = (total + x); __repl.value("total", __v, 3); return __v; })();`)
	assert.Contains(t, got, "__repl.line(5); skipped++;")
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(got, "\n"))
}

func TestRewritePreservesLineCount(t *testing.T) {
	src := strings.Join([]string{
		"const cfg = {",
		"  retries: 3,",
		"};",
		"async function load(n) {",
		"  // fetch it",
		"  const res = await fetch(`/item/${n}`);",
		"  return res",
		"    .json();",
		"}",
		"switch (cfg.retries) {",
		"  case 3:",
		"    go();",
		"    break;",
		"  default:",
		"    stop();",
		"}",
	}, "\n")
	for _, st := range Segment(src) {
		is := Rewrite(st)
		assert.Equal(t, strings.Count(st.Text, "\n"), strings.Count(is.Rewritten, "\n"), "statement %q", st.Text)
	}
}
