package evaluator

import (
	"errors"
	"testing"

	"github.com/me/cwlinspect/pkg/cwl"
)

func testContext() *Context {
	rt := &cwl.RuntimeContext{OutDir: "/out", TmpDir: "/tmp", Cores: 4, RAM: 2048}
	inputs := map[string]cwl.Value{
		"threads": cwl.Scalar{V: int64(8)},
		"name":    cwl.Scalar{V: "sample"},
		"reads": cwl.FileValue{
			Location: "file:///data/reads.fq",
			Path:     "/data/reads.fq",
			Basename: "reads.fq",
			Nameroot: "reads",
			Nameext:  ".fq",
		},
	}
	return NewContext(inputs, rt)
}

func TestEval_PlainText(t *testing.T) {
	e := New(nil)
	v, err := e.Eval("no expressions", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != "no expressions" {
		t.Errorf("got %v", v.JSON())
	}
}

func TestEval_WholeStringReturnsRawValue(t *testing.T) {
	e := New(nil)
	v, err := e.Eval("$(inputs.threads)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	s, ok := v.(cwl.Scalar)
	if !ok || s.V != int64(8) {
		t.Errorf("got %#v, want int64 8", v)
	}
}

func TestEval_WholeStringFileValue(t *testing.T) {
	e := New(nil)
	v, err := e.Eval("$(inputs.reads)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	f, ok := v.(cwl.FileValue)
	if !ok {
		t.Fatalf("got %T, want FileValue", v)
	}
	if f.Basename != "reads.fq" {
		t.Errorf("basename = %q", f.Basename)
	}
}

func TestEval_Concatenation(t *testing.T) {
	e := New(nil)
	v, err := e.Eval("-t $(inputs.threads) -o $(runtime.outdir)/out.bam", testContext())
	if err != nil {
		t.Fatal(err)
	}
	want := "-t 8 -o /out/out.bam"
	if s, _ := v.(cwl.Scalar); s.V != want {
		t.Errorf("got %v, want %q", v.JSON(), want)
	}
}

func TestEval_FieldPath(t *testing.T) {
	e := New(nil)
	v, err := e.Eval("$(inputs.reads.nameroot).bam", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != "reads.bam" {
		t.Errorf("got %v", v.JSON())
	}
}

func TestEval_MissingPathErrors(t *testing.T) {
	e := New(nil)
	for _, expr := range []string{
		"$(inputs.nosuch)",
		"$(inputs.reads.nosuch)",
		"$(runtime.nosuch)",
	} {
		_, err := e.Eval(cwl.Expression(expr), testContext())
		var evalErr *cwl.EvaluationError
		if !errors.As(err, &evalErr) {
			t.Errorf("Eval(%q): err = %v, want EvaluationError", expr, err)
		}
	}
}

func TestEval_SymbolicPlaceholder(t *testing.T) {
	e := New(nil)
	ctx := NewContext(map[string]cwl.Value{
		"sample": cwl.Uninstantiated{Name: "sample", Nullable: true},
	}, nil)
	v, err := e.Eval("$(inputs.sample)", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != "evaled(inputs.sample)" {
		t.Errorf("got %v", v.JSON())
	}
}

func TestEval_SymbolicNeverHitsSandbox(t *testing.T) {
	// With an uninstantiated input in scope, a JS expression must not
	// reach the sandbox; an infinite loop would otherwise hang.
	e := New(&cwl.InlineJavascriptRequirement{})
	ctx := NewContext(map[string]cwl.Value{
		"n": cwl.Uninstantiated{Name: "n", Nullable: false},
	}, nil)
	v, err := e.Eval("$((function() { while (true) {} })() + inputs.n)", ctx)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := v.(cwl.Scalar)
	got, _ := s.V.(string)
	if got == "" || got[:7] != "evaled(" {
		t.Errorf("got %v, want evaled(...) placeholder", v.JSON())
	}
}

func TestEval_JSExpression(t *testing.T) {
	e := New(&cwl.InlineJavascriptRequirement{})
	v, err := e.Eval("$(inputs.threads * 2)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != int64(16) {
		t.Errorf("got %#v, want int64 16", v)
	}
}

func TestEval_JSFunctionBody(t *testing.T) {
	e := New(&cwl.InlineJavascriptRequirement{})
	v, err := e.Eval(`${ return inputs.name.toUpperCase(); }`, testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != "SAMPLE" {
		t.Errorf("got %v", v.JSON())
	}
}

func TestEval_ExpressionLib(t *testing.T) {
	e := New(&cwl.InlineJavascriptRequirement{
		ExpressionLib: []string{"function double(x) { return x * 2; }"},
	})
	v, err := e.Eval("$(double(inputs.threads))", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != int64(16) {
		t.Errorf("got %#v", v)
	}
}

func TestEval_JSDisabledLeavesESAlone(t *testing.T) {
	// Without InlineJavascriptRequirement only the reference grammar
	// applies; arbitrary ES text stays literal.
	e := New(nil)
	v, err := e.Eval("$(1 + 1)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.(cwl.Scalar); s.V != "$(1 + 1)" {
		t.Errorf("got %v, want the literal text", v.JSON())
	}
}

func TestEvalString(t *testing.T) {
	e := New(nil)
	got, err := e.EvalString("$(runtime.cores)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if got != "4" {
		t.Errorf("got %q, want 4", got)
	}
}

func TestEvalInt(t *testing.T) {
	e := New(nil)
	n, err := e.EvalInt("$(inputs.threads)", testContext())
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Errorf("got %d, want 8", n)
	}
	if _, err := e.EvalInt("$(inputs.name)", testContext()); err == nil {
		t.Error("expected an error for a string result")
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"s", "s"},
		{true, "true"},
		{int64(3), "3"},
		{3.5, "3.5"},
		{4.0, "4"},
		{[]any{int64(1), "a"}, `[1,"a"]`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
