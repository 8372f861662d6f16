package outputs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/me/cwlinspect/pkg/cwl"
)

func runtimeFor(t *testing.T) *cwl.RuntimeContext {
	t.Helper()
	return &cwl.RuntimeContext{OutDir: t.TempDir(), TmpDir: t.TempDir(), Cores: 1, RAM: 1024, InvocationID: "inv"}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCollect_GlobSingleFile(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "result.bam", "data")

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{
			ID:            "bam",
			Type:          cwl.File,
			OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"*.bam"}},
		}},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := got["bam"].(cwl.FileValue)
	if !ok {
		t.Fatalf("bam = %#v, want FileValue", got["bam"])
	}
	if f.Basename != "result.bam" {
		t.Errorf("basename = %q", f.Basename)
	}
	if !f.HasSize || f.Size != 4 {
		t.Errorf("size = %d, want 4", f.Size)
	}
	if f.Checksum == "" {
		t.Error("checksum not computed")
	}
}

func TestCollect_GlobArraySortedByBasename(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "b.txt", "b")
	writeFile(t, rt.OutDir, "a.txt", "a")
	writeFile(t, rt.OutDir, "c.txt", "c")

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{
			ID:            "texts",
			Type:          &cwl.ArrayType{Items: cwl.File},
			OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"*.txt"}},
		}},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	arr := got["texts"].(cwl.ArrayValue)
	var names []string
	for _, item := range arr.Items {
		names = append(names, item.(cwl.FileValue).Basename)
	}
	want := []string{"a.txt", "b.txt", "c.txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestCollect_GlobFromInputExpression(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "sample.out", "x")

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{
			ID:            "out",
			Type:          cwl.File,
			OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"$(inputs.name).out"}},
		}},
	}
	inputs := map[string]cwl.Value{"name": cwl.Scalar{V: "sample"}}
	got, err := New(tool).Collect(inputs, rt)
	if err != nil {
		t.Fatal(err)
	}
	if f := got["out"].(cwl.FileValue); f.Basename != "sample.out" {
		t.Errorf("basename = %q", f.Basename)
	}
}

func TestCollect_NoMatchOptionalIsNull(t *testing.T) {
	rt := runtimeFor(t)
	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{
			ID:            "maybe",
			Type:          &cwl.UnionType{Alternatives: []cwl.SchemaType{cwl.Null, cwl.File}},
			OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"*.none"}},
		}},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	if !cwl.IsNull(got["maybe"]) {
		t.Errorf("maybe = %#v, want null", got["maybe"])
	}
}

func TestCollect_NoMatchRequiredErrors(t *testing.T) {
	rt := runtimeFor(t)
	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{
			ID:            "needed",
			Type:          cwl.File,
			OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"*.none"}},
		}},
	}
	if _, err := New(tool).Collect(nil, rt); err == nil {
		t.Fatal("expected an error for a required output with no matches")
	}
}

func TestCollect_SentinelShortCircuits(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "real.txt", "contents")
	// The sentinel takes precedence over any glob configuration.
	writeFile(t, rt.OutDir, SentinelFile,
		`{"count": 42, "report": {"class": "File", "path": "real.txt"}}`)

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{
			{ID: "count", Type: cwl.Int},
			{ID: "report", Type: cwl.File,
				OutputBinding: &cwl.OutputBinding{Glob: []cwl.Expression{"*.none"}}},
		},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	if got["count"].(cwl.Scalar).V != int64(42) {
		t.Errorf("count = %#v", got["count"])
	}
	f := got["report"].(cwl.FileValue)
	if f.Basename != "real.txt" {
		t.Errorf("report = %+v", f)
	}
	if f.Path != filepath.Join(rt.OutDir, "real.txt") {
		t.Errorf("path = %q, want under outdir", f.Path)
	}
}

func TestCollect_SentinelTypeMismatch(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, SentinelFile, `{"count": "not a number"}`)

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{ID: "count", Type: cwl.Int}},
	}
	if _, err := New(tool).Collect(nil, rt); err == nil {
		t.Fatal("expected a type mismatch from the sentinel file")
	}
}

func TestCollect_OutputEval(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "n.txt", "7\n")

	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.InlineJavascriptRequirement{}},
		Outputs: []cwl.OutputParameter{{
			ID:   "n",
			Type: cwl.Int,
			OutputBinding: &cwl.OutputBinding{
				Glob:         []cwl.Expression{"n.txt"},
				LoadContents: true,
				OutputEval:   "$(parseInt(self[0].contents))",
			},
		}},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	if got["n"].(cwl.Scalar).V != int64(7) {
		t.Errorf("n = %#v, want 7", got["n"])
	}
}

func TestCollect_StdoutOutput(t *testing.T) {
	rt := runtimeFor(t)
	writeFile(t, rt.OutDir, "inv.stdout", "captured")

	tool := &cwl.CommandLineTool{
		Outputs: []cwl.OutputParameter{{ID: "log", Type: cwl.Stdout}},
	}
	got, err := New(tool).Collect(nil, rt)
	if err != nil {
		t.Fatal(err)
	}
	f := got["log"].(cwl.FileValue)
	if f.Basename != "inv.stdout" {
		t.Errorf("basename = %q", f.Basename)
	}
	if f.Size != 8 {
		t.Errorf("size = %d", f.Size)
	}
}
