package cmdsynth

import (
	"reflect"
	"strings"
	"testing"

	"github.com/me/cwlinspect/internal/binder"
	"github.com/me/cwlinspect/pkg/cwl"
)

func boolPtr(b bool) *bool { return &b }

func optionalString() cwl.SchemaType {
	return &cwl.UnionType{Alternatives: []cwl.SchemaType{cwl.Null, cwl.String}}
}

func testRuntime() *cwl.RuntimeContext {
	return &cwl.RuntimeContext{OutDir: "/run/out", TmpDir: "/run/tmp", Cores: 1, RAM: 1024, InvocationID: "inv"}
}

func TestParts_SortTieBreak(t *testing.T) {
	// At equal position the arguments index (int) sorts before the
	// input id (string), so the argument comes first even though "a"
	// would sort before it alphabetically.
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"run"},
		Arguments: []cwl.CommandLineBinding{
			{Position: 0, ValueFrom: "from-argument"},
		},
		Inputs: []cwl.InputParameter{
			{ID: "a", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{Position: 0}},
		},
	}
	job := map[string]cwl.Value{"a": cwl.Scalar{V: "from-input"}}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run", "from-argument", "from-input"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_PositionOrdering(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "z", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{Position: 1}},
			{ID: "a", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{Position: 2}},
			{ID: "m", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{Position: 1}},
		},
	}
	job := map[string]cwl.Value{
		"z": cwl.Scalar{V: "Z"}, "a": cwl.Scalar{V: "A"}, "m": cwl.Scalar{V: "M"},
	}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	// Equal positions fall back to id order.
	want := []string{"tool", "M", "Z", "A"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_BooleanPrefix(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "on", Type: cwl.Boolean, InputBinding: &cwl.CommandLineBinding{Prefix: "--on"}},
			{ID: "off", Type: cwl.Boolean, InputBinding: &cwl.CommandLineBinding{Prefix: "--off"}},
		},
	}
	job := map[string]cwl.Value{
		"on":  cwl.Scalar{V: true},
		"off": cwl.Scalar{V: false},
	}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "--on"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_PrefixSeparate(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "a", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{Position: 1, Prefix: "-a"}},
			{ID: "b", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{Position: 2, Prefix: "-b", Separate: boolPtr(false)}},
		},
	}
	job := map[string]cwl.Value{"a": cwl.Scalar{V: int64(1)}, "b": cwl.Scalar{V: int64(2)}}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "-a", "1", "-b2"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_ItemSeparator(t *testing.T) {
	items := cwl.ArrayValue{Items: []cwl.Value{
		cwl.Scalar{V: "one"}, cwl.Scalar{V: "two"}, cwl.Scalar{V: "three"},
	}}
	arrType := &cwl.ArrayType{Items: cwl.String}

	// separate default (true): prefix, then the joined block.
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "l", Type: arrType, InputBinding: &cwl.CommandLineBinding{Prefix: "-I", ItemSeparator: ","}},
		},
	}
	argv, err := New(tool).Parts(map[string]cwl.Value{"l": items}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "-I", "one,two,three"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}

	// separate false: prefix concatenated, no space.
	tool.Inputs[0].InputBinding.Separate = boolPtr(false)
	argv, err = New(tool).Parts(map[string]cwl.Value{"l": items}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"tool", "-Ione,two,three"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_ArrayDefaultSeparatorAndEmpty(t *testing.T) {
	arrType := &cwl.ArrayType{Items: cwl.String}
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "l", Type: arrType, InputBinding: &cwl.CommandLineBinding{}},
		},
	}
	argv, err := New(tool).Parts(map[string]cwl.Value{
		"l": cwl.ArrayValue{Items: []cwl.Value{cwl.Scalar{V: "x"}, cwl.Scalar{V: "y"}}},
	}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "x y"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}

	argv, err = New(tool).Parts(map[string]cwl.Value{"l": cwl.ArrayValue{}}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"tool"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("empty array argv = %v, want %v", argv, want)
	}
}

func TestParts_ArrayItemBinding(t *testing.T) {
	// The array schema's own inputBinding applies per element, so the
	// item prefix repeats.
	arrType := &cwl.ArrayType{
		Items:        cwl.String,
		InputBinding: &cwl.CommandLineBinding{Prefix: "-f"},
	}
	items := cwl.ArrayValue{Items: []cwl.Value{cwl.Scalar{V: "a"}, cwl.Scalar{V: "b"}}}

	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "files", Type: arrType},
		},
	}
	argv, err := New(tool).Parts(map[string]cwl.Value{"files": items}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "-f a -f b"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}

	// A parameter-level binding still wraps the element-wise block.
	tool.Inputs[0].InputBinding = &cwl.CommandLineBinding{Prefix: "--files"}
	argv, err = New(tool).Parts(map[string]cwl.Value{"files": items}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"tool", "--files", "-f a -f b"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_ArrayItemsTraversedIndividually(t *testing.T) {
	// Without a binding on the parameter or the array schema, items
	// whose own type binds are collected one by one, and their array
	// index is an integer tiebreak that sorts before input ids.
	recType := &cwl.RecordType{Name: "p", Fields: []cwl.Field{
		{Name: "v", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{Prefix: "-p"}},
	}}
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "alpha", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{}},
			{ID: "pairs", Type: &cwl.ArrayType{Items: recType}},
		},
	}
	job := map[string]cwl.Value{
		"alpha": cwl.Scalar{V: "A"},
		"pairs": cwl.ArrayValue{Items: []cwl.Value{
			cwl.RecordValue{Fields: map[string]cwl.Value{"v": cwl.Scalar{V: int64(1)}}},
			cwl.RecordValue{Fields: map[string]cwl.Value{"v": cwl.Scalar{V: int64(2)}}},
		}},
	}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "-p 1", "-p 2", "A"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_RecordBlock(t *testing.T) {
	recType := &cwl.RecordType{Name: "pair", Fields: []cwl.Field{
		{Name: "min", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{Prefix: "--min"}},
		{Name: "max", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{Prefix: "--max"}},
	}}
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "range", Type: recType, InputBinding: &cwl.CommandLineBinding{}},
		},
	}
	job := map[string]cwl.Value{"range": cwl.RecordValue{Fields: map[string]cwl.Value{
		"min": cwl.Scalar{V: int64(1)},
		"max": cwl.Scalar{V: int64(9)},
	}}}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "--min 1 --max 9"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_ValueFrom(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "n", Type: cwl.Int, InputBinding: &cwl.CommandLineBinding{ValueFrom: "$(self)x"}},
		},
	}
	job := map[string]cwl.Value{"n": cwl.Scalar{V: int64(7)}}
	argv, err := New(tool).Parts(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool", "7x"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestParts_NullRendersNothing(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Inputs: []cwl.InputParameter{
			{ID: "o", Type: optionalString(), InputBinding: &cwl.CommandLineBinding{Prefix: "-o"}},
		},
	}
	argv, err := New(tool).Parts(map[string]cwl.Value{"o": cwl.Scalar{}}, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tool"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func whalesayTool() *cwl.CommandLineTool {
	return &cwl.CommandLineTool{
		BaseCommand: []string{"cowsay"},
		Inputs: []cwl.InputParameter{
			{ID: "input", Type: optionalString(), InputBinding: &cwl.CommandLineBinding{Position: 0}},
		},
		Requirements: cwl.ReqList{&cwl.DockerRequirement{DockerPull: "docker/whalesay"}},
	}
}

func TestSynthesize_DockerSymbolic(t *testing.T) {
	tool := whalesayTool()
	bound, err := binder.Bind(tool.Inputs, nil, binder.Options{})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := New(tool).Synthesize(bound, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cmd, "docker run --rm -i --read-only") {
		t.Errorf("cmd = %q, want docker run prefix", cmd)
	}
	if !strings.HasSuffix(cmd, "docker/whalesay cowsay [input]") {
		t.Errorf("cmd = %q, want symbolic placeholder tail", cmd)
	}
}

func TestSynthesize_DockerWithJob(t *testing.T) {
	tool := whalesayTool()
	bound, err := binder.Bind(tool.Inputs, cwl.Tree{"input": "Hello!"}, binder.Options{})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := New(tool).Synthesize(bound, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(cmd, "docker/whalesay cowsay 'Hello!'") {
		t.Errorf("cmd = %q, want quoted literal tail", cmd)
	}
	if !strings.Contains(cmd, "--mount type=bind,source=/run/out,target=/var/spool/cwl") {
		t.Errorf("cmd = %q, missing output mount", cmd)
	}
}

func TestSynthesize_NoContainerShellWrap(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"echo"},
		Inputs: []cwl.InputParameter{
			{ID: "msg", Type: cwl.String, InputBinding: &cwl.CommandLineBinding{}},
		},
	}
	job := map[string]cwl.Value{"msg": cwl.Scalar{V: "hi"}}
	cmd, err := New(tool).Synthesize(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := "/bin/sh -c 'cd /run/out && echo hi'"
	if cmd != want {
		t.Errorf("cmd = %q, want %q", cmd, want)
	}
}

func TestSynthesize_EnvVars(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"tool"},
		Requirements: cwl.ReqList{&cwl.EnvVarRequirement{EnvDef: []cwl.EnvironmentDef{
			{EnvName: "MYVAR", EnvValue: "abc"},
			{EnvName: "WORKDIR", EnvValue: "$(runtime.outdir)"},
		}}},
	}
	cmd, err := New(tool).Synthesize(nil, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	want := "/bin/sh -c 'cd /run/out && env MYVAR=abc WORKDIR=/run/out tool'"
	if cmd != want {
		t.Errorf("cmd = %q, want %q", cmd, want)
	}
}

func TestSynthesize_EnvVarsInContainer(t *testing.T) {
	tool := whalesayTool()
	tool.Requirements = append(tool.Requirements,
		&cwl.EnvVarRequirement{EnvDef: []cwl.EnvironmentDef{
			{EnvName: "MYVAR", EnvValue: "abc"},
		}})
	job := map[string]cwl.Value{"msg": cwl.Scalar{V: "hi"}}
	cmd, err := New(tool).Synthesize(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, "-e MYVAR=abc") {
		t.Errorf("cmd = %q, missing environment flag", cmd)
	}
}

func TestSynthesize_Redirections(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"wc", "-l"},
		Stdin:       "$(inputs.data.path)",
		Stdout:      "count.txt",
		Inputs: []cwl.InputParameter{
			{ID: "data", Type: cwl.File},
		},
	}
	job := map[string]cwl.Value{
		"data": cwl.FileValue{Path: "/data/in.txt", Basename: "in.txt"},
	}
	cmd, err := New(tool).Synthesize(job, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, "wc -l < /data/in.txt > count.txt") {
		t.Errorf("cmd = %q", cmd)
	}
}

func TestSynthesize_StdoutTypeGeneratesName(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: []string{"echo", "hi"},
		Outputs: []cwl.OutputParameter{
			{ID: "captured", Type: cwl.Stdout},
		},
	}
	cmd, err := New(tool).Synthesize(nil, testRuntime())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, "> inv.stdout") {
		t.Errorf("cmd = %q, want generated stdout capture", cmd)
	}
}

func TestShQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"/a/b.txt", "/a/b.txt"},
		{"Hello!", "'Hello!'"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shQuote(tt.in); got != tt.want {
			t.Errorf("shQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
