package instrument

import (
	"regexp"
	"strings"
)

// Kind classifies a top-level statement.
type Kind int

const (
	KindBlank Kind = iota
	KindComment
	KindControlFlow
	KindReturn
	// KindDeclaration is a binding whose value is a function or class
	// expression. It is hoisted with function declarations and its value is
	// not traced, since wrapping it would change the inferred function name.
	KindDeclaration
	// KindAssignment is `const|let|var name = expr`.
	KindAssignment
	// KindReassignment is `name = expr`.
	KindReassignment
	KindExpression
	// KindOpaque is any statement no rewrite pattern matches.
	KindOpaque
)

var kindNames = [...]string{
	KindBlank:        "blank",
	KindComment:      "comment",
	KindControlFlow:  "control-flow",
	KindReturn:       "return",
	KindDeclaration:  "declaration",
	KindAssignment:   "assignment",
	KindReassignment: "reassignment",
	KindExpression:   "expression",
	KindOpaque:       "opaque",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Traced reports whether statements of this kind emit a value trace.
func (k Kind) Traced() bool {
	switch k {
	case KindReturn, KindAssignment, KindReassignment, KindExpression:
		return true
	}
	return false
}

// Statement is a segment of source with its 1-based line span.
type Statement struct {
	Text      string
	StartLine int
	EndLine   int
	Kind      Kind
}

var (
	controlFlowRe = regexp.MustCompile(`^(?:(?:try|catch|finally|if|else|for|while|do|switch|case|default|function|class)\b|async\s+function\b|[{}])`)
	returnRe      = regexp.MustCompile(`^return(?:$|[^\w$])`)
	declarationRe = regexp.MustCompile(`^(?:const|let|var)\s+[A-Za-z_$][\w$]*\s*=\s*(?:async\s+)?(?:function\b|class\b|\([^()]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)
	assignmentRe  = regexp.MustCompile(`(?s)^(const|let|var)\s+([A-Za-z_$][\w$]*)\s*=(.*)$`)
	reassignRe    = regexp.MustCompile(`(?s)^([A-Za-z_$][\w$]*)\s*=(.*)$`)
	callRe        = regexp.MustCompile("(?s)^[A-Za-z0-9_$\"'`\\[(][^=]*\\(")
	identPathRe   = regexp.MustCompile(`^[A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*$`)
	labelRe       = regexp.MustCompile(`^[A-Za-z_$][\w$]*\s*:`)
	firstWordRe   = regexp.MustCompile(`^[A-Za-z_$][\w$]*`)
	awaitRe       = regexp.MustCompile(`\bawait\b`)
	requireRe     = regexp.MustCompile(`\brequire\s*\(`)
)

// statementKeywords start statements that are never bare expressions.
var statementKeywords = map[string]bool{
	"const": true, "let": true, "var": true, "throw": true, "break": true,
	"continue": true, "import": true, "export": true, "debugger": true,
	"return": true, "yield": true, "with": true, "super": true,
}

// Classify assigns a Kind to statement text. Classification looks only at
// the code before any trailing line comment.
func Classify(text string) Kind {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return KindBlank
	}
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") {
		return KindComment
	}
	code, _ := splitComment(trimmed)
	code = strings.TrimSpace(code)
	if code == "" {
		return KindComment
	}
	switch {
	case controlFlowRe.MatchString(code):
		return KindControlFlow
	case returnRe.MatchString(code):
		return KindReturn
	case declarationRe.MatchString(code):
		return KindDeclaration
	case assignmentRe.MatchString(code):
		if _, ok := assignedExpr(assignmentRe.FindStringSubmatch(code)[3]); ok {
			return KindAssignment
		}
		return KindOpaque
	case reassignRe.MatchString(code):
		if statementKeywords[firstWordRe.FindString(code)] {
			return KindOpaque
		}
		if _, ok := assignedExpr(reassignRe.FindStringSubmatch(code)[2]); ok {
			return KindReassignment
		}
		return KindOpaque
	case isBareExpression(code):
		return KindExpression
	}
	return KindOpaque
}

// assignedExpr extracts the right-hand side of an assignment, rejecting
// comparisons and arrows that only look like one.
func assignedExpr(rest string) (string, bool) {
	if strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ">") {
		return "", false
	}
	expr := trimStatementEnd(rest)
	if expr == "" || requireRe.MatchString(expr) || hasTopLevelComma(expr) {
		return "", false
	}
	return expr, true
}

func isBareExpression(code string) bool {
	if strings.HasPrefix(code, "console.") || strings.Contains(code, "__repl") {
		return false
	}
	if statementKeywords[firstWordRe.FindString(code)] {
		return false
	}
	if labelRe.MatchString(code) {
		return false
	}
	expr := trimStatementEnd(code)
	if expr == "" || requireRe.MatchString(expr) || hasTopLevelComma(expr) {
		return false
	}
	return callRe.MatchString(expr) || identPathRe.MatchString(expr)
}

// trimStatementEnd drops surrounding space and a trailing semicolon.
func trimStatementEnd(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

func hasTopLevelComma(expr string) bool {
	marks, _ := scan(expr)
	for _, m := range marks {
		if m.c == ',' && m.depth == 0 {
			return true
		}
	}
	return false
}

// splitComment separates a trailing line comment on the last line of text.
func splitComment(text string) (code, comment string) {
	_, comments := scan(text)
	if len(comments) == 0 {
		return text, ""
	}
	last := comments[len(comments)-1]
	if strings.LastIndexByte(text, '\n') > last {
		return text, ""
	}
	return text[:last], text[last:]
}
