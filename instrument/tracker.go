package instrument

// Tracker follows bracket depth, string state and block comments across
// lines of source. The zero value is ready to use.
//
// Depths may go negative while text is fed; only zero-at-completion matters.
type Tracker struct {
	Paren   int
	Brace   int
	Bracket int

	quote   byte // open string delimiter, 0 outside strings
	comment bool // inside /* */
}

// Feed advances the tracker over one line. A line comment ends the line.
func (t *Tracker) Feed(line string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case t.comment:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				t.comment = false
				i++
			}
		case t.quote != 0:
			if c == '\\' {
				i++
				continue
			}
			if c == t.quote {
				t.quote = 0
			}
		default:
			switch c {
			case '\\':
				i++
			case '"', '\'', '`':
				t.quote = c
			case '/':
				if i+1 < len(line) {
					switch line[i+1] {
					case '/':
						return
					case '*':
						t.comment = true
						i++
					}
				}
			case '(':
				t.Paren++
			case ')':
				t.Paren--
			case '{':
				t.Brace++
			case '}':
				t.Brace--
			case '[':
				t.Bracket++
			case ']':
				t.Bracket--
			}
		}
	}
}

// Complete reports whether everything fed so far forms a balanced unit.
func (t *Tracker) Complete() bool {
	return t.Paren == 0 && t.Brace == 0 && t.Bracket == 0 && t.quote == 0 && !t.comment
}

// InString reports whether a string or template literal is open.
func (t *Tracker) InString() bool { return t.quote != 0 }

// InComment reports whether a block comment is open.
func (t *Tracker) InComment() bool { return t.comment }

// Reset returns the tracker to its zero state.
func (t *Tracker) Reset() { *t = Tracker{} }

// mark is a structural character seen outside strings and comments.
// For openers depth is the nesting before the character; for closers it is
// the nesting after it, so a matched pair reports the same depth.
type mark struct {
	pos   int
	c     byte
	depth int
}

// scan walks text with the same lexical rules as Tracker and returns the
// structural marks plus the offsets where line comments begin.
func scan(text string) (marks []mark, lineComments []int) {
	var (
		depth   int
		quote   byte
		comment bool
		skipEOL bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			skipEOL = false
			continue
		}
		switch {
		case skipEOL:
		case comment:
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				comment = false
				i++
			}
		case quote != 0:
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
		default:
			switch c {
			case '\\':
				i++
			case '"', '\'', '`':
				quote = c
			case '/':
				if i+1 < len(text) {
					switch text[i+1] {
					case '/':
						lineComments = append(lineComments, i)
						skipEOL = true
					case '*':
						comment = true
						i++
					}
				}
			case '(', '{', '[':
				marks = append(marks, mark{pos: i, c: c, depth: depth})
				depth++
			case ')', '}', ']':
				depth--
				marks = append(marks, mark{pos: i, c: c, depth: depth})
			case ';', ',', '=':
				marks = append(marks, mark{pos: i, c: c, depth: depth})
			}
		}
	}
	return marks, lineComments
}
