package exprgram

// The parameter-reference grammar:
//
//	ref     := '$(' ident segment* ')'
//	segment := '.' ident
//	         | '[' digits ']'
//	         | '[' '"' chars '"' ']'
//	         | '[' '\'' chars '\'' ']'
//	ident   := [A-Za-z_] [A-Za-z0-9_]*
//
// A "$(" whose body does not conform is not a parameter reference; search
// continues after it so the ECMAScript grammar (when enabled) can claim it.

// Segment is one step of a reference path: a field name or a sequence
// index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// RefMatch is a matched parameter reference plus its parsed path.
type RefMatch struct {
	Match
	Segments []Segment
}

// ParamRef finds the first parameter reference in text.
func ParamRef(text string) (RefMatch, bool) {
	from := 0
	for {
		open := findOpen(text, '(', from)
		if open < 0 {
			return RefMatch{}, false
		}
		segs, end, ok := parseRefBody(text, open+2)
		if ok {
			return RefMatch{
				Match: Match{
					Pre:  text[:open],
					Body: text[open+2 : end],
					Post: text[end+1:],
				},
				Segments: segs,
			}, true
		}
		from = open + 2
	}
}

// parseRefBody parses "ident segment*" starting at i and requires a closing
// ')'. Returns the segments and the index of the ')'.
func parseRefBody(s string, i int) ([]Segment, int, bool) {
	name, i, ok := parseIdent(s, i)
	if !ok {
		return nil, 0, false
	}
	segs := []Segment{{Key: name}}
	for i < len(s) {
		switch s[i] {
		case ')':
			return segs, i, true
		case '.':
			var field string
			field, i, ok = parseIdent(s, i+1)
			if !ok {
				return nil, 0, false
			}
			segs = append(segs, Segment{Key: field})
		case '[':
			var seg Segment
			seg, i, ok = parseBracket(s, i+1)
			if !ok {
				return nil, 0, false
			}
			segs = append(segs, seg)
		default:
			return nil, 0, false
		}
	}
	return nil, 0, false
}

func parseIdent(s string, i int) (string, int, bool) {
	start := i
	if i >= len(s) || !isIdentStart(s[i]) {
		return "", 0, false
	}
	i++
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return s[start:i], i, true
}

// parseBracket parses the remainder of a bracket segment after '['.
func parseBracket(s string, i int) (Segment, int, bool) {
	if i >= len(s) {
		return Segment{}, 0, false
	}
	switch {
	case s[i] == '\'' || s[i] == '"':
		quote := s[i]
		i++
		start := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) || i+1 >= len(s) || s[i+1] != ']' {
			return Segment{}, 0, false
		}
		return Segment{Key: s[start:i]}, i + 2, true
	case isDigit(s[i]):
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != ']' {
			return Segment{}, 0, false
		}
		n := 0
		for _, c := range s[start:i] {
			n = n*10 + int(c-'0')
		}
		return Segment{Index: n, IsIndex: true}, i + 1, true
	default:
		return Segment{}, 0, false
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
