// Package jsbox evaluates ECMAScript expression bodies in a sandboxed goja
// runtime. It speaks the same protocol an external evaluator process would:
// the request is a self-contained script embedding the expression and the
// runtime/inputs/self context as JSON, and the script yields exactly one
// JSON value: either the expression result or an exception object
// {"class": "exception", "message": "<Name>: <msg>"}.
package jsbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/me/cwlinspect/pkg/cwl"
)

// DefaultTimeout bounds a single evaluation. The original design had none;
// an unbounded expression would hang the whole inspection.
const DefaultTimeout = 30 * time.Second

// Sandbox runs expression bodies against a fresh JS runtime per call, so
// concurrent evaluations never share state.
type Sandbox struct {
	// Timeout aborts an evaluation that runs too long. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// ExpressionLib is JavaScript source loaded before each evaluation,
	// from InlineJavascriptRequirement.expressionLib.
	ExpressionLib []string
}

// New creates a Sandbox with the given expression library.
func New(expressionLib []string) *Sandbox {
	return &Sandbox{Timeout: DefaultTimeout, ExpressionLib: expressionLib}
}

// Eval runs code (a complete JS expression, already wrapped by the caller
// for the ${...} form) and decodes its JSON result. inputs, self and
// runtime are JSON projections of the evaluation context.
func (s *Sandbox) Eval(code string, inputs map[string]any, self any, runtime map[string]any) (any, error) {
	script, err := buildScript(code, inputs, self, runtime)
	if err != nil {
		return nil, &cwl.EvaluationError{Expr: code, Msg: err.Error()}
	}

	vm := goja.New()
	for i, lib := range s.ExpressionLib {
		if _, err := vm.RunString(lib); err != nil {
			return nil, &cwl.EvaluationError{Expr: code, Msg: fmt.Sprintf("expressionLib[%d]: %v", i, err)}
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("evaluation timed out")
	})
	defer timer.Stop()

	val, err := vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, &cwl.EvaluationError{Expr: code, Msg: timeout.String(), Timeout: true}
		}
		return nil, &cwl.EvaluationError{Expr: code, Msg: err.Error()}
	}

	out, ok := val.Export().(string)
	if !ok {
		// JSON.stringify(undefined) is undefined, not a string: the
		// expression produced no value.
		return nil, &cwl.EvaluationError{Expr: code, Msg: "expression returned undefined"}
	}
	result, err := decodeJSON(out)
	if err != nil {
		return nil, &cwl.EvaluationError{Expr: code, Msg: fmt.Sprintf("invalid result JSON: %v", err)}
	}
	if m, ok := result.(map[string]any); ok && m["class"] == "exception" {
		msg, _ := m["message"].(string)
		return nil, &cwl.EvaluationError{Expr: code, Msg: msg}
	}
	return result, nil
}

// buildScript assembles the self-contained request script.
func buildScript(code string, inputs map[string]any, self any, runtime map[string]any) (string, error) {
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	selfJSON, err := json.Marshal(self)
	if err != nil {
		return "", fmt.Errorf("marshal self: %w", err)
	}
	runtimeJSON, err := json.Marshal(runtime)
	if err != nil {
		return "", fmt.Errorf("marshal runtime: %w", err)
	}
	var b strings.Builder
	b.WriteString("'use strict';\n")
	fmt.Fprintf(&b, "var runtime = %s;\n", runtimeJSON)
	fmt.Fprintf(&b, "var inputs = %s;\n", inputsJSON)
	fmt.Fprintf(&b, "var self = %s;\n", selfJSON)
	fmt.Fprintf(&b, `(function() {
  try {
    return JSON.stringify((%s));
  } catch (e) {
    return JSON.stringify({"class": "exception", "message": e.name + ": " + e.message});
  }
})()`, code)
	return b.String(), nil
}

// decodeJSON parses a JSON value keeping integral numbers as int64.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}
