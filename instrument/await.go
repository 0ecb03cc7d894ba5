package instrument

import "strings"

// Keywords whose parenthesised head is followed by a statement block, not a
// function body.
var blockHeads = map[string]bool{
	"if":     true,
	"for":    true,
	"while":  true,
	"switch": true,
	"catch":  true,
	"with":   true,
}

// hasTopLevelAwait reports whether code awaits outside every function it
// contains. An await inside a nested arrow or function body belongs to that
// function.
func hasTopLevelAwait(code string) bool {
	masked := maskLiterals(code)
	locs := awaitRe.FindAllStringIndex(masked, -1)
	if len(locs) == 0 {
		return false
	}
	spans := functionSpans(masked)
	for _, loc := range locs {
		if !inSpans(spans, loc[0]) {
			return true
		}
	}
	return false
}

func inSpans(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos <= s[1] {
			return true
		}
	}
	return false
}

// maskLiterals blanks strings, template literals and comments, keeping
// offsets and line breaks.
func maskLiterals(text string) string {
	b := []byte(text)
	var (
		quote       byte
		comment     bool
		lineComment bool
	)
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == '\n' {
			lineComment = false
			continue
		}
		switch {
		case lineComment:
			b[i] = ' '
		case comment:
			b[i] = ' '
			if c == '*' && i+1 < len(b) && b[i+1] == '/' {
				b[i+1] = ' '
				comment = false
				i++
			}
		case quote != 0:
			b[i] = ' '
			if c == '\\' && i+1 < len(b) {
				if b[i+1] != '\n' {
					b[i+1] = ' '
				}
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
			b[i] = ' '
		case c == '/' && i+1 < len(b) && b[i+1] == '/':
			lineComment = true
			b[i] = ' '
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			comment = true
			b[i], b[i+1] = ' ', ' '
			i++
		}
	}
	return string(b)
}

// functionSpans returns the offset ranges of function bodies in masked
// text: braced bodies of functions, methods and arrows, and concise arrow
// bodies, which run to the next comma or semicolon at their own depth or to
// the bracket that encloses them.
func functionSpans(masked string) [][2]int {
	type opener struct {
		pos  int
		body bool
	}
	type arrow struct {
		start int
		depth int
	}
	var (
		stack  []opener
		arrows []arrow
		spans  [][2]int
		parens = map[int]int{} // ')' offset to its '(' offset
	)
	endArrows := func(depth, pos int) {
		for len(arrows) > 0 && arrows[len(arrows)-1].depth >= depth {
			spans = append(spans, [2]int{arrows[len(arrows)-1].start, pos})
			arrows = arrows[:len(arrows)-1]
		}
	}
	for i := 0; i < len(masked); i++ {
		switch c := masked[i]; c {
		case '(', '[':
			stack = append(stack, opener{pos: i})
		case '{':
			stack = append(stack, opener{pos: i, body: opensFunction(masked[:i], parens)})
		case ')', ']', '}':
			endArrows(len(stack), i)
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch {
			case c == ')':
				parens[i] = top.pos
			case c == '}' && top.body:
				spans = append(spans, [2]int{top.pos, i})
			}
		case ',', ';':
			endArrows(len(stack), i)
		case '=':
			if i+1 >= len(masked) || masked[i+1] != '>' {
				continue
			}
			i++
			j := i + 1
			for j < len(masked) && strings.IndexByte(" \t\r\n", masked[j]) >= 0 {
				j++
			}
			if j < len(masked) && masked[j] != '{' {
				arrows = append(arrows, arrow{start: j, depth: len(stack)})
			}
		}
	}
	endArrows(0, len(masked))
	return spans
}

// opensFunction reports whether a brace preceded by before opens a function
// body: it follows an arrow, or a parameter list whose head is not a
// control-flow keyword.
func opensFunction(before string, parens map[int]int) bool {
	head := strings.TrimRight(before, " \t\r\n")
	if strings.HasSuffix(head, "=>") {
		return true
	}
	if !strings.HasSuffix(head, ")") {
		return false
	}
	open, ok := parens[len(head)-1]
	if !ok {
		return false
	}
	name := strings.TrimRight(before[:open], " \t\r\n")
	if strings.HasSuffix(name, "*") {
		return true
	}
	word := trailingIdent(name)
	return word != "" && !blockHeads[word]
}

func trailingIdent(s string) string {
	i := len(s)
	for i > 0 && isIdentByte(s[i-1]) {
		i--
	}
	return s[i:]
}

func isIdentByte(c byte) bool {
	switch {
	case c == '_', c == '$':
		return true
	case '0' <= c && c <= '9', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	}
	return false
}
