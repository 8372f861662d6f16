package exprgram

import (
	"reflect"
	"testing"
)

func TestParamRef_Simple(t *testing.T) {
	m, ok := ParamRef("$(inputs.reads)")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Pre != "" || m.Post != "" {
		t.Errorf("pre=%q post=%q, want empty", m.Pre, m.Post)
	}
	if m.Body != "inputs.reads" {
		t.Errorf("body = %q, want inputs.reads", m.Body)
	}
	want := []Segment{{Key: "inputs"}, {Key: "reads"}}
	if !reflect.DeepEqual(m.Segments, want) {
		t.Errorf("segments = %v, want %v", m.Segments, want)
	}
}

func TestParamRef_Surrounded(t *testing.T) {
	m, ok := ParamRef("prefix $(runtime.cores) suffix")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Pre != "prefix " {
		t.Errorf("pre = %q", m.Pre)
	}
	if m.Post != " suffix" {
		t.Errorf("post = %q", m.Post)
	}
}

func TestParamRef_BracketSegments(t *testing.T) {
	m, ok := ParamRef(`$(inputs["my file"].secondaryFiles[0])`)
	if !ok {
		t.Fatal("expected a match")
	}
	want := []Segment{
		{Key: "inputs"},
		{Key: "my file"},
		{Key: "secondaryFiles"},
		{Index: 0, IsIndex: true},
	}
	if !reflect.DeepEqual(m.Segments, want) {
		t.Errorf("segments = %v, want %v", m.Segments, want)
	}
}

func TestParamRef_SingleQuoteBracket(t *testing.T) {
	m, ok := ParamRef("$(inputs['in.file'])")
	if !ok {
		t.Fatal("expected a match")
	}
	want := []Segment{{Key: "inputs"}, {Key: "in.file"}}
	if !reflect.DeepEqual(m.Segments, want) {
		t.Errorf("segments = %v, want %v", m.Segments, want)
	}
}

func TestParamRef_NoMatch(t *testing.T) {
	for _, text := range []string{
		"plain text",
		"$(1 + 1)",
		"$(inputs.a + 1)",
		`\$(inputs.escaped)`,
		"$(unclosed",
		"${body}",
	} {
		if _, ok := ParamRef(text); ok {
			t.Errorf("ParamRef(%q) matched, want no match", text)
		}
	}
}

func TestParamRef_SkipsNonConforming(t *testing.T) {
	// The first "$(" is not a valid reference; the scan continues.
	m, ok := ParamRef("$(1+1) then $(inputs.x)")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Body != "inputs.x" {
		t.Errorf("body = %q, want inputs.x", m.Body)
	}
	if m.Pre != "$(1+1) then " {
		t.Errorf("pre = %q", m.Pre)
	}
}

func TestExpr_FullExpression(t *testing.T) {
	for _, text := range []string{
		"$(1 + 1)",
		"$(inputs.n * 2)",
		"$(inputs.file.basename.split('.')[0])",
		`$(inputs.flag ? "yes" : "no")`,
		"$([1, 2, 3].length)",
		`$({"a": 1}.a)`,
		"$(Math.max(inputs.a, inputs.b))",
		"$(!inputs.flag)",
		`$("quoted )(" + inputs.x)`,
	} {
		m, ok := Expr(text)
		if !ok {
			t.Errorf("Expr(%q): no match", text)
			continue
		}
		if m.Pre != "" || m.Post != "" {
			t.Errorf("Expr(%q): pre=%q post=%q, want empty", text, m.Pre, m.Post)
		}
	}
}

func TestExpr_NoMatch(t *testing.T) {
	for _, text := range []string{
		"no expressions here",
		"$(unbalanced",
		"$()",
		`\$(escaped)`,
	} {
		if _, ok := Expr(text); ok {
			t.Errorf("Expr(%q) matched, want no match", text)
		}
	}
}

func TestFuncBody(t *testing.T) {
	m, ok := FuncBody("${ return inputs.n + 1; }")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Body != " return inputs.n + 1; " {
		t.Errorf("body = %q", m.Body)
	}
}

func TestFuncBody_NestedBraces(t *testing.T) {
	m, ok := FuncBody(`${ var o = {"a": {"b": 1}}; return o; }`)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Post != "" {
		t.Errorf("post = %q, want empty", m.Post)
	}
}

func TestFuncBody_BraceInString(t *testing.T) {
	m, ok := FuncBody(`${ return "}"; } tail`)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Post != " tail" {
		t.Errorf("post = %q, want \" tail\"", m.Post)
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\$(not an expression)`, "$(not an expression)"},
		{`\${not a body}`, "${not a body}"},
		{"plain", "plain"},
		{`back\slash stays`, `back\slash stays`},
	}
	for _, tt := range tests {
		if got := Unescape(tt.in); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
