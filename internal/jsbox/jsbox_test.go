package jsbox

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/me/cwlinspect/pkg/cwl"
)

func TestEval_Arithmetic(t *testing.T) {
	s := New(nil)
	got, err := s.Eval("(1 + 2)", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(3) {
		t.Errorf("got %#v, want int64 3", got)
	}
}

func TestEval_ContextObjects(t *testing.T) {
	s := New(nil)
	inputs := map[string]any{"n": int64(5)}
	runtime := map[string]any{"cores": 4}
	got, err := s.Eval("(inputs.n * runtime.cores)", inputs, nil, runtime)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(20) {
		t.Errorf("got %#v, want int64 20", got)
	}
}

func TestEval_Self(t *testing.T) {
	s := New(nil)
	self := []any{map[string]any{"basename": "a.txt"}}
	got, err := s.Eval("(self[0].basename)", nil, self, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.txt" {
		t.Errorf("got %#v", got)
	}
}

func TestEval_CompoundResult(t *testing.T) {
	s := New(nil)
	got, err := s.Eval(`({"a": [1, 2]})`, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"a": []any{int64(1), int64(2)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestEval_ExceptionBecomesError(t *testing.T) {
	s := New(nil)
	_, err := s.Eval(`(function() { throw new RangeError("bad index"); })()`, nil, nil, nil)
	var evalErr *cwl.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("err = %v, want EvaluationError", err)
	}
	if evalErr.Msg != "RangeError: bad index" {
		t.Errorf("msg = %q", evalErr.Msg)
	}
}

func TestEval_UndefinedResult(t *testing.T) {
	s := New(nil)
	_, err := s.Eval("(function() {})()", nil, nil, nil)
	var evalErr *cwl.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("err = %v, want EvaluationError", err)
	}
}

func TestEval_Timeout(t *testing.T) {
	s := New(nil)
	s.Timeout = 100 * time.Millisecond
	_, err := s.Eval("(function() { while (true) {} })()", nil, nil, nil)
	var evalErr *cwl.EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("err = %v, want EvaluationError", err)
	}
	if !evalErr.Timeout {
		t.Errorf("Timeout flag not set: %v", evalErr)
	}
}

func TestEval_ExpressionLib(t *testing.T) {
	s := New([]string{"function greet(n) { return 'hi ' + n; }"})
	got, err := s.Eval(`(greet("there"))`, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hi there" {
		t.Errorf("got %#v", got)
	}
}

func TestEval_NullResult(t *testing.T) {
	s := New(nil)
	got, err := s.Eval("(null)", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %#v, want nil", got)
	}
}
