// Package exprgram holds the two grammars for expressions embedded in CWL
// strings: the restricted parameter-reference form, always available, and
// the ECMAScript form enabled by InlineJavascriptRequirement.
//
// Both grammars share the same contract: find the first embedded expression
// and decompose the string into the literal text before it, the matched
// body, and the text after it. "No match" is an ordinary result, not an
// error.
package exprgram

// Match is the pre/body/post decomposition of a string around the first
// embedded expression. Body excludes the "$(", "${" and closing delimiter.
type Match struct {
	Pre  string
	Body string
	Post string
}

// findOpen locates the next unescaped occurrence of "$" followed by the
// given delimiter byte ('(' or '{'), starting at from. A preceding
// backslash escapes the sequence per the CWL spec.
func findOpen(s string, delim byte, from int) int {
	for i := from; i+1 < len(s); i++ {
		if s[i] == '$' && s[i+1] == delim && (i == 0 || s[i-1] != '\\') {
			return i
		}
	}
	return -1
}

// Unescape rewrites literal "\$(" and "\${" sequences to their unescaped
// form. Applied to text that contained no (further) expression matches.
func Unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+2 < len(s) && s[i+1] == '$' && (s[i+2] == '(' || s[i+2] == '{') {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
