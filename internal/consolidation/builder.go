package consolidation

import (
	"strings"
)

// indentUnit is one level of block indentation in emitted scripts
const indentUnit = "  "

// statement is one logical output line. Raw lines are written exactly as
// given, without indentation.
type statement struct {
	depth int
	text  string
	raw   bool
}

// scriptBuilder collects statements and renders them in a single pass so
// indentation and escaping can be tested apart from step ordering.
type scriptBuilder struct {
	stmts []statement
}

func (b *scriptBuilder) line(depth int, text string) {
	b.stmts = append(b.stmts, statement{depth: depth, text: text})
}

func (b *scriptBuilder) blank() {
	b.stmts = append(b.stmts, statement{raw: true})
}

// comment emits a single-line comment; embedded line breaks are folded
func (b *scriptBuilder) comment(depth int, text string) {
	b.line(depth, "// "+commentText(text))
}

// block emits a multi-line code fragment at depth. Non-blank lines get the
// indent prefix; blank lines pass through untouched.
func (b *scriptBuilder) block(depth int, code string) {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.Trim(code, "\n")
	for _, l := range strings.Split(code, "\n") {
		if strings.TrimSpace(l) == "" {
			b.stmts = append(b.stmts, statement{text: l, raw: true})
			continue
		}
		b.line(depth, l)
	}
}

func (b *scriptBuilder) String() string {
	var sb strings.Builder
	for _, s := range b.stmts {
		if !s.raw {
			sb.WriteString(strings.Repeat(indentUnit, s.depth))
		}
		sb.WriteString(s.text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// escapeJS escapes s for a single-quoted JavaScript string literal.
// Backslash, quote, CR, LF and tab are escaped; nothing else is touched.
func escapeJS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

// quoteJS returns s as a single-quoted JavaScript string literal
func quoteJS(s string) string {
	return "'" + escapeJS(s) + "'"
}

// commentText makes s safe to place after "//" on a single line
func commentText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
