package cwl

import "fmt"

// ParseError reports a malformed document. Path is the dotted position of
// the offending node.
type ParseError struct {
	Path string
	Msg  string
}

// NewParseError builds a ParseError at a document position.
func NewParseError(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return e.Path + ": " + e.Msg
}

// EvaluationError reports a failed expression evaluation, carrying the
// original expression text for diagnostics.
type EvaluationError struct {
	Expr    string
	Msg     string
	Timeout bool
}

func (e *EvaluationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("expression %q: evaluation timed out", e.Expr)
	}
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Msg)
}

// TypeMismatch reports a job value that does not fit its declared schema.
type TypeMismatch struct {
	Name string
	Want string
	Got  string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Name, e.Want, e.Got)
}

// ResourceUnsatisfiable reports a required resource minimum the host
// cannot meet.
type ResourceUnsatisfiable struct {
	Resource string
	Min      string
	Have     string
}

func (e *ResourceUnsatisfiable) Error() string {
	return fmt.Sprintf("resource %s: requires at least %s, host has %s", e.Resource, e.Min, e.Have)
}
