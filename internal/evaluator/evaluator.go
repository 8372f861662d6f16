// Package evaluator resolves CWL expressions embedded in document strings.
// Parameter references are resolved locally by walking the evaluation
// context; ECMAScript expressions are handed to the jsbox sandbox. The
// evaluator is pure: it never mutates the context it is given.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/me/cwlinspect/internal/exprgram"
	"github.com/me/cwlinspect/internal/jsbox"
	"github.com/me/cwlinspect/pkg/cwl"
)

// Context is the evaluation context: the three root objects a CWL
// expression may reference.
type Context struct {
	Inputs  map[string]cwl.Value
	Self    cwl.Value
	Runtime *cwl.RuntimeContext
}

// NewContext creates a context over bound inputs.
func NewContext(inputs map[string]cwl.Value, rt *cwl.RuntimeContext) *Context {
	return &Context{Inputs: inputs, Runtime: rt}
}

// WithSelf returns a copy of the context with self bound (for valueFrom and
// outputEval).
func (c *Context) WithSelf(self cwl.Value) *Context {
	return &Context{Inputs: c.Inputs, Self: self, Runtime: c.Runtime}
}

// symbolic reports whether the context carries any uninstantiated input,
// i.e. inspection is running without a job.
func (c *Context) symbolic() bool {
	for _, v := range c.Inputs {
		if _, ok := v.(cwl.Uninstantiated); ok {
			return true
		}
	}
	return false
}

// Evaluator evaluates expressions with a fixed grammar choice: the
// ECMAScript flavor is enabled by InlineJavascriptRequirement, the
// parameter-reference grammar is always available.
type Evaluator struct {
	js      bool
	sandbox *jsbox.Sandbox
}

// New creates an Evaluator. A nil requirement leaves only the
// parameter-reference grammar enabled.
func New(ijr *cwl.InlineJavascriptRequirement) *Evaluator {
	e := &Evaluator{}
	if ijr != nil {
		e.js = true
		e.sandbox = jsbox.New(ijr.ExpressionLib)
	}
	return e
}

// Sandbox exposes the JS sandbox for configuration (timeout). Nil when the
// ECMAScript flavor is disabled.
func (e *Evaluator) Sandbox() *jsbox.Sandbox { return e.sandbox }

// match is one located expression with its evaluation thunk.
type match struct {
	pre  string
	body string
	post string
	kind matchKind
	segs []exprgram.Segment
}

type matchKind int

const (
	kindParamRef matchKind = iota
	kindJSExpr
	kindJSBody
)

// next locates the earliest expression in text under the enabled grammars.
func (e *Evaluator) next(text string) (match, bool) {
	if ref, ok := exprgram.ParamRef(text); ok {
		m := match{pre: ref.Pre, body: ref.Body, post: ref.Post, kind: kindParamRef, segs: ref.Segments}
		if !e.js {
			return m, true
		}
		// The ECMAScript grammar may claim an earlier "$(...)" whose
		// body is not a plain reference, or a "${...}" block before
		// the reference.
		best := m
		if expr, ok := exprgram.Expr(text); ok && len(expr.Pre) < len(best.pre) {
			best = match{pre: expr.Pre, body: expr.Body, post: expr.Post, kind: kindJSExpr}
		}
		if body, ok := exprgram.FuncBody(text); ok && len(body.Pre) < len(best.pre) {
			best = match{pre: body.Pre, body: body.Body, post: body.Post, kind: kindJSBody}
		}
		return best, true
	}
	if !e.js {
		return match{}, false
	}
	if expr, ok := exprgram.Expr(text); ok {
		best := match{pre: expr.Pre, body: expr.Body, post: expr.Post, kind: kindJSExpr}
		if body, ok := exprgram.FuncBody(text); ok && len(body.Pre) < len(best.pre) {
			best = match{pre: body.Pre, body: body.Body, post: body.Post, kind: kindJSBody}
		}
		return best, true
	}
	if body, ok := exprgram.FuncBody(text); ok {
		return match{pre: body.Pre, body: body.Body, post: body.Post, kind: kindJSBody}, true
	}
	return match{}, false
}

// Eval resolves every embedded expression in expr. A string that is exactly
// one expression returns the raw decoded value, which may be of any kind; a
// mixed string stringifies each match and concatenates it with the literal
// text around it.
func (e *Evaluator) Eval(expr cwl.Expression, ctx *Context) (cwl.Value, error) {
	text := string(expr)

	m, ok := e.next(text)
	if !ok {
		return cwl.Scalar{V: exprgram.Unescape(text)}, nil
	}

	// Sole-match fast path: the match consumes the entire string.
	if m.pre == "" && m.post == "" {
		return e.evalMatch(m, ctx)
	}

	var b strings.Builder
	for {
		b.WriteString(exprgram.Unescape(m.pre))
		v, err := e.evalMatch(m, ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(v.JSON()))
		text = m.post
		m, ok = e.next(text)
		if !ok {
			b.WriteString(exprgram.Unescape(text))
			return cwl.Scalar{V: b.String()}, nil
		}
	}
}

// EvalString evaluates and renders the result as command-line text.
func (e *Evaluator) EvalString(expr cwl.Expression, ctx *Context) (string, error) {
	v, err := e.Eval(expr, ctx)
	if err != nil {
		return "", err
	}
	return Stringify(v.JSON()), nil
}

// EvalInt evaluates an expression expected to yield an integer (resource
// bounds).
func (e *Evaluator) EvalInt(expr cwl.Expression, ctx *Context) (int64, error) {
	v, err := e.Eval(expr, ctx)
	if err != nil {
		return 0, err
	}
	switch n := cwl.Unwrap(v).(type) {
	case cwl.Scalar:
		switch num := n.V.(type) {
		case int64:
			return num, nil
		case float64:
			return int64(num), nil
		}
	}
	return 0, &cwl.EvaluationError{Expr: string(expr), Msg: "expected an integer result"}
}

func (e *Evaluator) evalMatch(m match, ctx *Context) (cwl.Value, error) {
	switch m.kind {
	case kindParamRef:
		return e.evalRef(m, ctx)
	case kindJSExpr:
		return e.evalJS(m.body, "("+m.body+")", ctx)
	default:
		return e.evalJS(m.body, "(function() { "+m.body+" })()", ctx)
	}
}

// evalRef resolves a parameter reference by walking the context.
func (e *Evaluator) evalRef(m match, ctx *Context) (cwl.Value, error) {
	root := m.segs[0]
	var cur any
	switch root.Key {
	case "inputs":
		if len(m.segs) < 2 {
			cur = projectInputs(ctx.Inputs)
			break
		}
		name := m.segs[1].Key
		v, ok := ctx.Inputs[name]
		if !ok {
			return nil, &cwl.EvaluationError{Expr: m.body, Msg: fmt.Sprintf("no such input %q", name)}
		}
		if _, ok := v.(cwl.Uninstantiated); ok {
			return cwl.Scalar{V: "evaled(" + m.body + ")"}, nil
		}
		if inv, ok := v.(cwl.Invalid); ok {
			return nil, &cwl.EvaluationError{Expr: m.body, Msg: fmt.Sprintf("input %q is not declared by the tool", inv.Name)}
		}
		return walkPath(v.JSON(), m.segs[2:], m.body)
	case "self":
		if ctx.Self == nil {
			return nil, &cwl.EvaluationError{Expr: m.body, Msg: "self is not defined in this context"}
		}
		if _, ok := ctx.Self.(cwl.Uninstantiated); ok {
			return cwl.Scalar{V: "evaled(" + m.body + ")"}, nil
		}
		return walkPath(ctx.Self.JSON(), m.segs[1:], m.body)
	case "runtime":
		if ctx.Runtime == nil {
			return nil, &cwl.EvaluationError{Expr: m.body, Msg: "runtime is not defined in this context"}
		}
		cur = ctx.Runtime.JSON()
		return walkPath(cur, m.segs[1:], m.body)
	default:
		// Identifiers outside the reference roots belong to the
		// ECMAScript flavor.
		if e.js {
			return e.evalJS(m.body, "("+m.body+")", ctx)
		}
		return nil, &cwl.EvaluationError{Expr: m.body, Msg: fmt.Sprintf("unknown reference root %q", root.Key)}
	}
	return walkPath(cur, m.segs[1:], m.body)
}

// walkPath follows dotted/bracketed segments through a JSON projection.
func walkPath(cur any, segs []exprgram.Segment, expr string) (cwl.Value, error) {
	for _, seg := range segs {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index >= len(arr) {
				return nil, &cwl.EvaluationError{Expr: expr, Msg: fmt.Sprintf("no such index %d", seg.Index)}
			}
			cur = arr[seg.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &cwl.EvaluationError{Expr: expr, Msg: fmt.Sprintf("cannot access field %q on %T", seg.Key, cur)}
		}
		v, ok := m[seg.Key]
		if !ok {
			return nil, &cwl.EvaluationError{Expr: expr, Msg: fmt.Sprintf("no such field %q", seg.Key)}
		}
		cur = v
	}
	return cwl.FromJSON(cur), nil
}

// evalJS hands an expression to the sandbox, unless the context is symbolic
// and the expression touches inputs or self, in which case the placeholder
// form is returned so job-less inspection can proceed.
func (e *Evaluator) evalJS(body, wrapped string, ctx *Context) (cwl.Value, error) {
	if ctx.symbolic() && referencesContext(body) {
		return cwl.Scalar{V: "evaled(" + body + ")"}, nil
	}
	if _, ok := ctx.Self.(cwl.Uninstantiated); ok && referencesContext(body) {
		return cwl.Scalar{V: "evaled(" + body + ")"}, nil
	}
	var selfJSON any
	if ctx.Self != nil {
		selfJSON = ctx.Self.JSON()
	}
	var runtimeJSON map[string]any
	if ctx.Runtime != nil {
		runtimeJSON = ctx.Runtime.JSON()
	}
	result, err := e.sandbox.Eval(wrapped, projectInputs(ctx.Inputs), selfJSON, runtimeJSON)
	if err != nil {
		return nil, err
	}
	return cwl.FromJSON(result), nil
}

// referencesContext reports whether the expression body mentions the inputs
// or self objects as identifiers.
func referencesContext(body string) bool {
	for _, ident := range []string{"inputs", "self"} {
		idx := 0
		for {
			i := strings.Index(body[idx:], ident)
			if i < 0 {
				break
			}
			i += idx
			before := i == 0 || !isWordByte(body[i-1])
			after := i+len(ident) >= len(body) || !isWordByte(body[i+len(ident)])
			if before && after {
				return true
			}
			idx = i + len(ident)
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func projectInputs(inputs map[string]cwl.Value) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if _, ok := v.(cwl.Invalid); ok {
			continue
		}
		out[k] = v.JSON()
	}
	return out
}

// HasExpression reports whether text contains any embedded expression under
// the given grammar choice.
func HasExpression(text string, js bool) bool {
	if _, ok := exprgram.ParamRef(text); ok {
		return true
	}
	if !js {
		return false
	}
	if _, ok := exprgram.Expr(text); ok {
		return true
	}
	_, ok := exprgram.FuncBody(text)
	return ok
}
