package instrument

import (
	"regexp"
	"strings"
)

var hoistedRe = regexp.MustCompile(`^(?:async\s+)?(?:function|class)\b`)

// Hoist partitions statements into declarations, which run first, and the
// rest. Relative order is preserved within each part.
func Hoist(stmts []Statement) (decls, rest []Statement) {
	for _, st := range stmts {
		if isHoisted(st) {
			decls = append(decls, st)
		} else {
			rest = append(rest, st)
		}
	}
	return decls, rest
}

func isHoisted(st Statement) bool {
	switch st.Kind {
	case KindDeclaration:
		return true
	case KindControlFlow:
		return hoistedRe.MatchString(strings.TrimSpace(st.Text))
	}
	return false
}

// Batch is one unit evaluated by the guest. Line n of Code holds the
// rewritten text of source line n, so guest error lines are source lines.
type Batch struct {
	Code  string
	Async bool
}

// Empty reports whether the batch holds no code worth evaluating.
func (b Batch) Empty() bool { return strings.TrimSpace(b.Code) == "" }

// Program is the instrumented form of a submission.
type Program struct {
	Statements   []InstrumentedStatement
	Declarations Batch
	Rest         Batch
}

// Batches returns the non-empty batches in evaluation order.
func (p Program) Batches() []Batch {
	var out []Batch
	if !p.Declarations.Empty() {
		out = append(out, p.Declarations)
	}
	if !p.Rest.Empty() {
		out = append(out, p.Rest)
	}
	return out
}

// Instrument segments, classifies, rewrites and hoists src.
func Instrument(src string) Program {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	stmts := Segment(src)
	decls, rest := Hoist(stmts)

	var p Program
	for _, st := range stmts {
		p.Statements = append(p.Statements, Rewrite(st))
	}
	p.Declarations = newBatch(rewriteAll(decls))
	p.Rest = newBatch(rewriteAll(rest))
	return p
}

func rewriteAll(stmts []Statement) []InstrumentedStatement {
	out := make([]InstrumentedStatement, len(stmts))
	for i, st := range stmts {
		out[i] = Rewrite(st)
	}
	return out
}

// newBatch assembles stmts. The batch is async when a statement awaits
// outside the functions it declares.
func newBatch(stmts []InstrumentedStatement) Batch {
	b := Batch{Code: assemble(stmts, 1)}
	for _, st := range stmts {
		if hasTopLevelAwait(st.Original.Text) {
			b.Async = true
			break
		}
	}
	return b
}
