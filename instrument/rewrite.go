package instrument

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Names the guest runtime binds before any user code runs.
const (
	runtimeObject = "__repl"
	valueVar      = "__v"
)

// ExpressionLabel labels traces of bare expressions.
const ExpressionLabel = "expression"

// InstrumentedStatement pairs a statement with its rewritten text. The
// rewrite spans exactly the lines of the original.
type InstrumentedStatement struct {
	Original  Statement
	Rewritten string
}

// Rewrite instruments a single statement. Statements nested in its blocks
// are instrumented too.
func Rewrite(st Statement) InstrumentedStatement {
	return InstrumentedStatement{Original: st, Rewritten: rewriteStatement(st)}
}

// blockOpenerRe matches the code before a brace that opens a statement
// block rather than an object literal.
var blockOpenerRe = regexp.MustCompile(`(?:^|[)]|=>|\b(?:else|try|finally|do|static|catch))$`)

var (
	classHeaderRe = regexp.MustCompile(`^(?:(?:const|let|var)\s+[A-Za-z_$][\w$]*\s*=\s*)?class\b`)
	directiveRe   = regexp.MustCompile(`^(?:"use [a-z]+"|'use [a-z]+');?$`)
)

func linePrefix(n int) string {
	return fmt.Sprintf("%s.line(%d); ", runtimeObject, n)
}

func rewriteStatement(st Statement) string {
	switch st.Kind {
	case KindBlank, KindComment:
		return st.Text
	case KindControlFlow:
		return instrumentBlocks(st.Text, st.StartLine, false)
	case KindOpaque:
		if directiveRe.MatchString(strings.TrimSpace(st.Text)) {
			return st.Text
		}
		return withLine(st.Text, st.StartLine, func(body string) string { return body })
	case KindDeclaration:
		return withLine(st.Text, st.StartLine, func(body string) string {
			return instrumentBlocks(body, st.StartLine, true)
		})
	}
	return withLine(st.Text, st.StartLine, func(body string) string {
		code, comment := splitComment(body)
		traced, ok := traceValue(st.Kind, strings.TrimSpace(code), st.StartLine)
		if !ok {
			return body
		}
		if comment != "" {
			return traced + " " + comment
		}
		return traced
	})
}

// withLine keeps the whitespace around a statement intact and prefixes the
// body with the current-line update.
func withLine(text string, line int, fn func(body string) string) string {
	body := strings.TrimLeft(text, " \t\r\n")
	lead := text[:len(text)-len(body)]
	trimmed := strings.TrimRight(body, " \t\r\n")
	trail := body[len(trimmed):]
	return lead + linePrefix(line) + fn(trimmed) + trail
}

var (
	returnExprRe = regexp.MustCompile(`(?s)^return\s*(.*)$`)
	assignExprRe = regexp.MustCompile(`(?s)^(const|let|var)\s+([A-Za-z_$][\w$]*)\s*=(.*)$`)
	reassignExpr = regexp.MustCompile(`(?s)^([A-Za-z_$][\w$]*)\s*=(.*)$`)
)

// traceValue builds the traced form of code. It reports false when the code
// should run unchanged.
func traceValue(kind Kind, code string, line int) (string, bool) {
	switch kind {
	case KindReturn:
		expr := trimStatementEnd(returnExprRe.FindStringSubmatch(code)[1])
		if expr == "" {
			return "", false
		}
		return "return " + wrapValue("return", expr, line) + ";", true
	case KindAssignment:
		m := assignExprRe.FindStringSubmatch(code)
		expr, ok := assignedExpr(m[3])
		if !ok {
			return "", false
		}
		return m[1] + " " + m[2] + " = " + wrapValue(m[2], expr, line) + ";", true
	case KindReassignment:
		m := reassignExpr.FindStringSubmatch(code)
		expr, ok := assignedExpr(m[2])
		if !ok {
			return "", false
		}
		return m[1] + " = " + wrapValue(m[1], expr, line) + ";", true
	case KindExpression:
		expr := trimStatementEnd(code)
		return fmt.Sprintf("{ const %s = (%s); %s }", valueVar, expr, emitValue(ExpressionLabel, line)), true
	}
	return "", false
}

// wrapValue evaluates expr once inside a closure that records and returns
// its value. Expressions that await at their own level get an async closure
// that is awaited; awaits inside nested functions do not count.
func wrapValue(label, expr string, line int) string {
	body := fmt.Sprintf("{ const %s = (%s); %s return %s; }", valueVar, expr, emitValue(label, line), valueVar)
	if hasTopLevelAwait(expr) {
		return "await (async () => " + body + ")()"
	}
	return "(() => " + body + ")()"
}

func emitValue(label string, line int) string {
	return fmt.Sprintf("%s.value(%s, %s, %d);", runtimeObject, strconv.Quote(label), valueVar, line)
}

// instrumentText instruments every statement of a block interior whose first
// line is base.
func instrumentText(text string, base int, classBody bool) string {
	stmts := segmentFrom(text, base)
	out := make([]InstrumentedStatement, 0, len(stmts))
	for _, st := range stmts {
		switch {
		case classBody && st.Kind != KindBlank && st.Kind != KindComment:
			out = append(out, InstrumentedStatement{Original: st, Rewritten: instrumentBlocks(st.Text, st.StartLine, false)})
		default:
			out = append(out, Rewrite(st))
		}
	}
	return assemble(out, base)
}

// instrumentBlocks rewrites the interior of each statement block in text and
// leaves everything else as written. With first set only the first block is
// considered, which is the body of a function or class expression.
func instrumentBlocks(text string, line int, first bool) string {
	marks, _ := scan(text)
	var b strings.Builder
	prev := 0
	for i := 0; i < len(marks); i++ {
		open := marks[i]
		if open.c != '{' || open.depth != 0 {
			continue
		}
		closer := -1
		for j := i + 1; j < len(marks); j++ {
			if marks[j].c == '}' && marks[j].depth == 0 {
				closer = j
				break
			}
		}
		if closer < 0 {
			break
		}
		header := text[prev:open.pos]
		before, _ := splitComment(strings.TrimRight(text[:open.pos], " \t\r\n"))
		before = strings.TrimSpace(before)
		class := prev == 0 && classHeaderRe.MatchString(strings.TrimSpace(header))
		if !class && !blockOpenerRe.MatchString(before) {
			if first {
				break
			}
			i = closer
			continue
		}
		end := marks[closer].pos
		interior := text[open.pos+1 : end]
		b.WriteString(text[prev : open.pos+1])
		b.WriteString(instrumentText(interior, line+strings.Count(text[:open.pos], "\n"), class))
		b.WriteByte('}')
		prev = end + 1
		i = closer
		if first {
			break
		}
	}
	b.WriteString(text[prev:])
	return b.String()
}

// assemble lays statements out so that each starts on its own line number,
// counting from base.
func assemble(stmts []InstrumentedStatement, base int) string {
	var b strings.Builder
	cur := base
	for _, st := range stmts {
		for cur < st.Original.StartLine {
			b.WriteByte('\n')
			cur++
		}
		b.WriteString(st.Rewritten)
		cur = st.Original.EndLine
	}
	return b.String()
}
