package instrument

import (
	"regexp"
	"strings"
)

var (
	// A code line ending in one of these leaves the statement open.
	trailingOperatorRe = regexp.MustCompile(`(?:=>|&&|\|\||\?\?|[-+*%=&|^<>?,.])$`)
	// A following line starting with one of these continues the statement.
	leadingOperatorRe = regexp.MustCompile(`^(?:\?\.|\?\?|&&|\|\||=>|\.[^.]|[?:,*%|&^]|=|\+[^+]|-[^-]|[+-]$)`)
	// A following line opening with one of these is a call, index or tagged
	// template on the previous line unless that line ended a statement.
	leadingOpenerRe = regexp.MustCompile("^[(\\[`]")
	// Clauses that attach to a preceding control-flow statement.
	clauseRe = regexp.MustCompile(`^(?:else|catch|finally)\b`)
	doRe     = regexp.MustCompile(`^do\b`)
)

// Segment splits source into statements with their line spans. Every line
// of src belongs to exactly one statement, and concatenating the statement
// texts with the line breaks between them reproduces src.
func Segment(src string) []Statement {
	return segmentFrom(src, 1)
}

func segmentFrom(src string, base int) []Statement {
	lines := strings.Split(src, "\n")
	var (
		out     []Statement
		buf     []string
		start   int
		tr      Tracker
		comment bool
	)
	emit := func(st Statement) {
		out = append(out, st)
	}
	for i, line := range lines {
		n := base + i
		trimmed := strings.TrimSpace(line)
		if len(buf) == 0 {
			switch {
			case trimmed == "":
				emit(Statement{Text: line, StartLine: n, EndLine: n, Kind: KindBlank})
				continue
			case strings.HasPrefix(trimmed, "//"):
				emit(Statement{Text: line, StartLine: n, EndLine: n, Kind: KindComment})
				continue
			case strings.HasPrefix(trimmed, "/*"):
				comment = true
			}
			start = n
		}
		buf = append(buf, line)
		tr.Feed(line)
		if comment {
			if !tr.InComment() {
				emit(Statement{Text: strings.Join(buf, "\n"), StartLine: start, EndLine: n, Kind: KindComment})
				buf, comment = nil, false
				tr.Reset()
			}
			continue
		}
		if !tr.Complete() || continues(strings.Join(buf, "\n"), lines[i+1:]) {
			continue
		}
		out = append(out, split(strings.Join(buf, "\n"), start)...)
		buf = nil
		tr.Reset()
	}
	if len(buf) > 0 {
		kind := KindOpaque
		if comment {
			kind = KindComment
		}
		emit(Statement{Text: strings.Join(buf, "\n"), StartLine: start, EndLine: start + len(buf) - 1, Kind: kind})
	}
	return out
}

// continues reports whether a balanced statement carries on past its last
// line, either because that line ends in an operator or because the next code
// line starts with one. An unterminated line followed by `(`, `[` or a
// backtick joins the next line the way the language does without semicolons.
// A line ending in `}` does not, so blocks followed by a bracket stay apart.
func continues(stmt string, rest []string) bool {
	code := lastCode(stmt)
	if strings.HasSuffix(code, "++") || strings.HasSuffix(code, "--") {
		return false
	}
	if trailingOperatorRe.MatchString(code) {
		return true
	}
	next := nextCodeLine(rest)
	if next == "" {
		return false
	}
	if leadingOperatorRe.MatchString(next) {
		return true
	}
	if leadingOpenerRe.MatchString(next) && code != "" && !strings.HasSuffix(code, ";") && !strings.HasSuffix(code, "}") {
		return true
	}
	head := strings.TrimSpace(stmt)
	if controlFlowRe.MatchString(head) && clauseRe.MatchString(next) {
		return true
	}
	return doRe.MatchString(head) && strings.HasPrefix(next, "while")
}

// lastCode returns the code of the last line of stmt that has any, trimmed
// and without its trailing comment.
func lastCode(stmt string) string {
	lines := strings.Split(stmt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		code, _ := splitComment(lines[i])
		if code = strings.TrimSpace(code); code != "" {
			return code
		}
	}
	return ""
}

// nextCodeLine returns the first following line that is not blank or a line
// comment, trimmed.
func nextCodeLine(rest []string) string {
	for _, l := range rest {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "//") {
			continue
		}
		return t
	}
	return ""
}

// split breaks a balanced statement at top-level semicolons. A remainder
// holding only whitespace or a comment stays with the piece before it, and
// leading line breaks stay with the previous piece so each piece starts on the
// line of its first character.
func split(text string, startLine int) []Statement {
	marks, _ := scan(text)
	var cuts []int
	for _, m := range marks {
		if m.c == ';' && m.depth == 0 && m.pos+1 < len(text) {
			cuts = append(cuts, m.pos+1)
		}
	}
	var pieces []string
	prev := 0
	for _, c := range cuts {
		rest := text[c:]
		if code, _ := splitComment(rest); strings.TrimSpace(code) == "" {
			break
		}
		pieces = append(pieces, text[prev:c])
		prev = c
	}
	pieces = append(pieces, text[prev:])

	for i := 1; i < len(pieces); i++ {
		p := pieces[i]
		lead := len(p) - len(strings.TrimLeft(p, " \t\r\n"))
		nl := strings.LastIndexByte(p[:lead], '\n')
		if nl < 0 {
			continue
		}
		pieces[i-1] += p[:nl+1]
		pieces[i] = p[nl+1:]
	}

	out := make([]Statement, 0, len(pieces))
	line := startLine
	for _, p := range pieces {
		end := line + strings.Count(p, "\n")
		out = append(out, Statement{Text: p, StartLine: line, EndLine: end, Kind: Classify(p)})
		line = end
	}
	return out
}
