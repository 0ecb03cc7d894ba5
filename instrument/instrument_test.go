package instrument

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHoistsDeclarations(t *testing.T) {
	src := "function add(a,b){return a+b;}\nconst r = add(5,3);\nMath.max(10,20,15);"
	p := Instrument(src)

	batches := p.Batches()
	require.Len(t, batches, 2)

	assert.Equal(t,
		`function add(a,b){__repl.line(1); return (() => { const __v = (a+b); __repl.value("return", __v, 1); return __v; })();}`,
		batches[0].Code)
	assert.Equal(t, "\n"+
		`__repl.line(2); const r = (() => { const __v = (add(5,3)); __repl.value("r", __v, 2); return __v; })();`+"\n"+
		`__repl.line(3); { const __v = (Math.max(10,20,15)); __repl.value("expression", __v, 3); }`,
		batches[1].Code)
	assert.False(t, batches[0].Async)
	assert.False(t, batches[1].Async)
}

func TestInstrumentUseBeforeDeclaration(t *testing.T) {
	src := "const msg = greet('x');\nconst greet = (n) => 'hi ' + n;"
	p := Instrument(src)

	require.False(t, p.Declarations.Empty())
	assert.True(t, strings.HasPrefix(p.Declarations.Code, "\n__repl.line(2); const greet"))
	assert.True(t, strings.HasPrefix(p.Rest.Code, "__repl.line(1); const msg"))
}

func TestInstrumentKeepsSourceLines(t *testing.T) {
	src := strings.Join([]string{
		"let total = 0;",
		"",
		"function bump(n) {",
		"  total += n;",
		"  return total;",
		"}",
		"bump(2);",
		"class Box {}",
		"throw new Error('boom');",
	}, "\n")
	p := Instrument(src)

	lines := strings.Split(p.Rest.Code, "\n")
	require.Len(t, lines, 9)
	assert.Contains(t, lines[8], "throw new Error('boom');")
	assert.Contains(t, lines[6], `__repl.value("expression", __v, 7)`)

	decl := strings.Split(p.Declarations.Code, "\n")
	assert.Contains(t, decl[2], "function bump(n) {")
	assert.Contains(t, decl[7], "class Box {}")
	assert.Contains(t, decl[4], `__repl.value("return", __v, 5)`)
}

func TestInstrumentAsyncBatch(t *testing.T) {
	p := Instrument("const v = await Promise.resolve(3);\nv")
	assert.True(t, p.Rest.Async)
	assert.True(t, p.Declarations.Empty())
	assert.Len(t, p.Batches(), 1)
}

func TestInstrumentAsyncOnlyForOwnAwaits(t *testing.T) {
	p := Instrument("async function load() { return await get(); }\nconst f = async () => await load();\nf")
	assert.False(t, p.Declarations.Async)
	assert.False(t, p.Rest.Async)

	p = Instrument("for (const u of us) {\n  await load(u);\n}")
	assert.True(t, p.Rest.Async)
}

func TestInstrumentNormalizesLineEndings(t *testing.T) {
	p := Instrument("a = 1;\r\nb = 2;")
	assert.NotContains(t, p.Rest.Code, "\r")
	assert.Contains(t, p.Rest.Code, `__repl.value("b", __v, 2)`)
}

func TestInstrumentStatements(t *testing.T) {
	p := Instrument("// c\nx = 1")
	require.Len(t, p.Statements, 2)
	assert.Equal(t, KindComment, p.Statements[0].Original.Kind)
	assert.Equal(t, "// c", p.Statements[0].Rewritten)
	assert.Equal(t, KindReassignment, p.Statements[1].Original.Kind)
}

func TestHoistPreservesOrder(t *testing.T) {
	stmts := []Statement{
		{Text: "a()", Kind: KindExpression},
		{Text: "function b() {}", Kind: KindControlFlow},
		{Text: "if (x) {}", Kind: KindControlFlow},
		{Text: "const c = () => 1", Kind: KindDeclaration},
		{Text: "async function d() {}", Kind: KindControlFlow},
	}
	decls, rest := Hoist(stmts)
	assert.Equal(t, []Statement{stmts[1], stmts[3], stmts[4]}, decls)
	assert.Equal(t, []Statement{stmts[0], stmts[2]}, rest)
}
