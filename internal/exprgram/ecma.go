package exprgram

import "strings"

// The ECMAScript grammar covers the practical expression subset CWL tools
// use inside "$(...)": primary, member, call, unary, binary, ternary and
// assignment expressions with array/object/function-expression literals.
// "${...}" bodies are matched as function bodies: a balanced brace scan
// that is aware of strings, templates and comments, so a "}" inside a
// string literal does not close the block.

// Expr finds the first "$(expression)" whose body parses under the
// ECMAScript expression grammar.
func Expr(text string) (Match, bool) {
	from := 0
	for {
		open := findOpen(text, '(', from)
		if open < 0 {
			return Match{}, false
		}
		lx := &lexer{s: text, pos: open + 2}
		if lx.parseExpression() {
			lx.skipSpace()
			if lx.pos < len(lx.s) && lx.s[lx.pos] == ')' {
				return Match{
					Pre:  text[:open],
					Body: text[open+2 : lx.pos],
					Post: text[lx.pos+1:],
				}, true
			}
		}
		from = open + 2
	}
}

// FuncBody finds the first "${...}" function body.
func FuncBody(text string) (Match, bool) {
	open := findOpen(text, '{', 0)
	if open < 0 {
		return Match{}, false
	}
	lx := &lexer{s: text, pos: open + 2}
	depth := 1
	for lx.pos < len(lx.s) {
		lx.skipSpace()
		if lx.pos >= len(lx.s) {
			break
		}
		switch c := lx.s[lx.pos]; c {
		case '{':
			depth++
			lx.pos++
		case '}':
			depth--
			if depth == 0 {
				return Match{
					Pre:  text[:open],
					Body: text[open+2 : lx.pos],
					Post: text[lx.pos+1:],
				}, true
			}
			lx.pos++
		case '\'', '"', '`':
			if !lx.scanString(c) {
				return Match{}, false
			}
		default:
			lx.pos++
		}
	}
	return Match{}, false
}

type lexer struct {
	s   string
	pos int
}

// skipSpace advances over whitespace and comments.
func (l *lexer) skipSpace() {
	for l.pos < len(l.s) {
		c := l.s[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '/' && l.pos+1 < len(l.s) && l.s[l.pos+1] == '/':
			for l.pos < len(l.s) && l.s[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.pos+1 < len(l.s) && l.s[l.pos+1] == '*':
			end := strings.Index(l.s[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.s)
				return
			}
			l.pos += 2 + end + 2
		default:
			return
		}
	}
}

// op consumes the given operator if present, longest candidates first at
// the call sites.
func (l *lexer) op(o string) bool {
	l.skipSpace()
	if strings.HasPrefix(l.s[l.pos:], o) {
		l.pos += len(o)
		return true
	}
	return false
}

// keyword consumes an identifier-boundary keyword.
func (l *lexer) keyword(kw string) bool {
	l.skipSpace()
	if !strings.HasPrefix(l.s[l.pos:], kw) {
		return false
	}
	end := l.pos + len(kw)
	if end < len(l.s) && isIdentPart(l.s[end]) {
		return false
	}
	l.pos = end
	return true
}

func (l *lexer) ident() bool {
	l.skipSpace()
	if l.pos >= len(l.s) || !isIdentStart(l.s[l.pos]) {
		return false
	}
	for l.pos < len(l.s) && isIdentPart(l.s[l.pos]) {
		l.pos++
	}
	return true
}

func (l *lexer) number() bool {
	l.skipSpace()
	start := l.pos
	i := l.pos
	for i < len(l.s) && isDigit(l.s[i]) {
		i++
	}
	if i < len(l.s) && l.s[i] == '.' {
		i++
		for i < len(l.s) && isDigit(l.s[i]) {
			i++
		}
	}
	if i == start || (i == start+1 && l.s[start] == '.') {
		return false
	}
	// Exponent part.
	if i < len(l.s) && (l.s[i] == 'e' || l.s[i] == 'E') {
		j := i + 1
		if j < len(l.s) && (l.s[j] == '+' || l.s[j] == '-') {
			j++
		}
		if j < len(l.s) && isDigit(l.s[j]) {
			for j < len(l.s) && isDigit(l.s[j]) {
				j++
			}
			i = j
		}
	}
	l.pos = i
	return true
}

// scanString consumes a string or template literal starting at the opening
// quote. Template literals may nest "${...}" substitutions.
func (l *lexer) scanString(quote byte) bool {
	l.pos++ // opening quote
	for l.pos < len(l.s) {
		c := l.s[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
		case c == quote:
			l.pos++
			return true
		case quote == '`' && c == '$' && l.pos+1 < len(l.s) && l.s[l.pos+1] == '{':
			l.pos += 2
			depth := 1
			for l.pos < len(l.s) && depth > 0 {
				switch l.s[l.pos] {
				case '{':
					depth++
					l.pos++
				case '}':
					depth--
					l.pos++
				case '\'', '"', '`':
					if !l.scanString(l.s[l.pos]) {
						return false
					}
				default:
					l.pos++
				}
			}
		default:
			l.pos++
		}
	}
	return false
}

// parseExpression := assign (',' assign)*
func (l *lexer) parseExpression() bool {
	if !l.parseAssign() {
		return false
	}
	for l.op(",") {
		if !l.parseAssign() {
			return false
		}
	}
	return true
}

var assignOps = []string{
	">>>=", "<<=", ">>=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
}

// parseAssign := ternary (assignOp assign)?
func (l *lexer) parseAssign() bool {
	if !l.parseTernary() {
		return false
	}
	for _, o := range assignOps {
		if l.op(o) {
			return l.parseAssign()
		}
	}
	// Bare '=' must not match '==' or arrow.
	l.skipSpace()
	if l.pos < len(l.s) && l.s[l.pos] == '=' &&
		(l.pos+1 >= len(l.s) || (l.s[l.pos+1] != '=' && l.s[l.pos+1] != '>')) {
		l.pos++
		return l.parseAssign()
	}
	return true
}

// parseTernary := binary ('?' assign ':' assign)?
func (l *lexer) parseTernary() bool {
	if !l.parseBinary(0) {
		return false
	}
	l.skipSpace()
	if l.pos < len(l.s) && l.s[l.pos] == '?' {
		l.pos++
		if !l.parseAssign() || !l.op(":") || !l.parseAssign() {
			return false
		}
	}
	return true
}

// binaryOps in descending-precedence tiers. Longer operators appear before
// their prefixes so "===" wins over "==".
var binaryOps = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"^"},
	{"&"},
	{"===", "!==", "==", "!="},
	{"<=", ">=", "<<", ">>>", ">>", "<", ">"},
	{"+", "-"},
	{"*", "/", "%"},
}

// shift operators share a tier with comparisons above for simplicity; CWL
// expressions never rely on their relative precedence since validation, not
// evaluation, is the job here.

func (l *lexer) parseBinary(tier int) bool {
	if tier >= len(binaryOps) {
		return l.parseUnary()
	}
	if !l.parseBinary(tier + 1) {
		return false
	}
	for {
		l.skipSpace()
		matched := false
		for _, o := range binaryOps[tier] {
			if l.tryBinaryOp(o) {
				if !l.parseBinary(tier + 1) {
					return false
				}
				matched = true
				break
			}
		}
		if !matched {
			// Word operators bind like comparisons.
			if tier == 6 && (l.keyword("instanceof") || l.keyword("in")) {
				if !l.parseBinary(tier + 1) {
					return false
				}
				continue
			}
			return true
		}
	}
}

// tryBinaryOp consumes o unless it is a prefix of a longer operator that
// changes meaning ("|" vs "||", "&" vs "&&", "<" vs "<<" is fine since both
// are binary).
func (l *lexer) tryBinaryOp(o string) bool {
	l.skipSpace()
	if !strings.HasPrefix(l.s[l.pos:], o) {
		return false
	}
	rest := l.s[l.pos+len(o):]
	switch o {
	case "|", "&":
		if strings.HasPrefix(rest, o) {
			return false
		}
	case "=":
		return false
	}
	// Reject compound assignment ("+=") claimed as binary "+".
	if len(o) == 1 && strings.ContainsAny(o, "+-*/%&|^") && strings.HasPrefix(rest, "=") {
		return false
	}
	// "==" must not claim the prefix of "===".
	if (o == "==" || o == "!=") && strings.HasPrefix(rest, "=") {
		return false
	}
	l.pos += len(o)
	return true
}

var unaryOps = []string{"++", "--", "!", "~", "+", "-"}

func (l *lexer) parseUnary() bool {
	l.skipSpace()
	for _, o := range unaryOps {
		if l.op(o) {
			return l.parseUnary()
		}
	}
	if l.keyword("typeof") || l.keyword("void") || l.keyword("delete") || l.keyword("new") {
		return l.parseUnary()
	}
	return l.parsePostfix()
}

// parsePostfix := primary ('.' ident | '[' expr ']' | '(' args ')' | '++' | '--')*
func (l *lexer) parsePostfix() bool {
	if !l.parsePrimary() {
		return false
	}
	for {
		l.skipSpace()
		if l.pos >= len(l.s) {
			return true
		}
		switch l.s[l.pos] {
		case '.':
			l.pos++
			if !l.ident() {
				return false
			}
		case '[':
			l.pos++
			if !l.parseExpression() || !l.op("]") {
				return false
			}
		case '(':
			l.pos++
			l.skipSpace()
			if l.pos < len(l.s) && l.s[l.pos] == ')' {
				l.pos++
				continue
			}
			if !l.parseAssign() {
				return false
			}
			for l.op(",") {
				if !l.parseAssign() {
					return false
				}
			}
			if !l.op(")") {
				return false
			}
		default:
			if l.op("++") || l.op("--") {
				continue
			}
			return true
		}
	}
}

func (l *lexer) parsePrimary() bool {
	l.skipSpace()
	if l.pos >= len(l.s) {
		return false
	}
	switch c := l.s[l.pos]; {
	case c == '(':
		l.pos++
		return l.parseExpression() && l.op(")")
	case c == '[':
		l.pos++
		l.skipSpace()
		if l.pos < len(l.s) && l.s[l.pos] == ']' {
			l.pos++
			return true
		}
		if !l.parseAssign() {
			return false
		}
		for l.op(",") {
			l.skipSpace()
			if l.pos < len(l.s) && l.s[l.pos] == ']' {
				break // trailing comma
			}
			if !l.parseAssign() {
				return false
			}
		}
		return l.op("]")
	case c == '{':
		return l.parseObjectLiteral()
	case c == '\'' || c == '"' || c == '`':
		return l.scanString(c)
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.s) && isDigit(l.s[l.pos+1])):
		return l.number()
	case isIdentStart(c):
		if l.keyword("function") {
			return l.parseFunctionExpr()
		}
		return l.ident()
	default:
		return false
	}
}

// parseObjectLiteral := '{' (key ':' assign (',' key ':' assign)* ','?)? '}'
func (l *lexer) parseObjectLiteral() bool {
	l.pos++ // '{'
	l.skipSpace()
	if l.pos < len(l.s) && l.s[l.pos] == '}' {
		l.pos++
		return true
	}
	for {
		l.skipSpace()
		if l.pos >= len(l.s) {
			return false
		}
		switch c := l.s[l.pos]; {
		case c == '\'' || c == '"':
			if !l.scanString(c) {
				return false
			}
		case isDigit(c):
			if !l.number() {
				return false
			}
		case isIdentStart(c):
			if !l.ident() {
				return false
			}
		case c == '[':
			l.pos++
			if !l.parseAssign() || !l.op("]") {
				return false
			}
		default:
			return false
		}
		if !l.op(":") || !l.parseAssign() {
			return false
		}
		if !l.op(",") {
			break
		}
		l.skipSpace()
		if l.pos < len(l.s) && l.s[l.pos] == '}' {
			break // trailing comma
		}
	}
	if l.pos < len(l.s) && l.s[l.pos] == '}' {
		l.pos++
		return true
	}
	return false
}

// parseFunctionExpr := 'function' ident? '(' params ')' balancedBody
func (l *lexer) parseFunctionExpr() bool {
	l.skipSpace()
	if l.pos < len(l.s) && isIdentStart(l.s[l.pos]) {
		l.ident()
	}
	if !l.op("(") {
		return false
	}
	l.skipSpace()
	if l.pos < len(l.s) && l.s[l.pos] != ')' {
		if !l.ident() {
			return false
		}
		for l.op(",") {
			if !l.ident() {
				return false
			}
		}
	}
	if !l.op(")") {
		return false
	}
	l.skipSpace()
	if l.pos >= len(l.s) || l.s[l.pos] != '{' {
		return false
	}
	// The body is matched like a ${...} block: balanced braces with
	// string/comment awareness.
	l.pos++
	depth := 1
	for l.pos < len(l.s) && depth > 0 {
		l.skipSpace()
		if l.pos >= len(l.s) {
			break
		}
		switch c := l.s[l.pos]; c {
		case '{':
			depth++
			l.pos++
		case '}':
			depth--
			l.pos++
		case '\'', '"', '`':
			if !l.scanString(c) {
				return false
			}
		default:
			l.pos++
		}
	}
	return depth == 0
}
