package resources

import (
	"errors"
	"testing"

	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/pkg/cwl"
)

func negotiate(t *testing.T, tool *cwl.CommandLineTool, host Host) (Allocation, error) {
	t.Helper()
	eval := evaluator.New(tool.InlineJavascript())
	ctx := evaluator.NewContext(nil, &cwl.RuntimeContext{OutDir: "/out", TmpDir: "/tmp"})
	return Negotiate(tool, host, eval, ctx)
}

func TestNegotiate_Defaults(t *testing.T) {
	alloc, err := negotiate(t, &cwl.CommandLineTool{}, Host{Cores: 8, RAMMiB: 16384})
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Cores != DefaultCores || alloc.RAMMiB != DefaultRAMMiB {
		t.Errorf("alloc = %+v, want defaults", alloc)
	}
}

func TestNegotiate_ClampsToMax(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.ResourceRequirement{
			CoresMin: 2, CoresMax: 16, RAMMin: 1024, RAMMax: 8192,
		}},
	}
	alloc, err := negotiate(t, tool, Host{Cores: 4, RAMMiB: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Cores != 4 {
		t.Errorf("cores = %d, want host maximum 4", alloc.Cores)
	}
	if alloc.RAMMiB != 4096 {
		t.Errorf("ram = %d, want host maximum 4096", alloc.RAMMiB)
	}
}

func TestNegotiate_GrantsMaxWithinHost(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.ResourceRequirement{
			CoresMin: 1, CoresMax: 2, RAMMin: 512, RAMMax: 1024,
		}},
	}
	alloc, err := negotiate(t, tool, Host{Cores: 8, RAMMiB: 16384})
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Cores != 2 || alloc.RAMMiB != 1024 {
		t.Errorf("alloc = %+v, want cores 2 ram 1024", alloc)
	}
}

func TestNegotiate_RequiredUnsatisfiable(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.ResourceRequirement{CoresMin: 64}},
	}
	_, err := negotiate(t, tool, Host{Cores: 4, RAMMiB: 4096})
	var ru *cwl.ResourceUnsatisfiable
	if !errors.As(err, &ru) {
		t.Fatalf("err = %v, want ResourceUnsatisfiable", err)
	}
	if ru.Resource != "cores" {
		t.Errorf("resource = %q", ru.Resource)
	}
}

func TestNegotiate_HintDegrades(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Hints: cwl.ReqList{&cwl.ResourceRequirement{CoresMin: 64, RAMMin: 1 << 20}},
	}
	alloc, err := negotiate(t, tool, Host{Cores: 4, RAMMiB: 4096})
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Cores != 4 {
		t.Errorf("cores = %d, want degraded to host 4", alloc.Cores)
	}
	if alloc.RAMMiB != 4096 {
		t.Errorf("ram = %d, want degraded to host 4096", alloc.RAMMiB)
	}
}

func TestNegotiate_ExpressionBound(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.ResourceRequirement{
			CoresMin: "$(runtime.cores)",
		}},
	}
	eval := evaluator.New(nil)
	rt := &cwl.RuntimeContext{OutDir: "/out", TmpDir: "/tmp", Cores: 2}
	alloc, err := Negotiate(tool, Host{Cores: 8, RAMMiB: 8192}, eval, evaluator.NewContext(nil, rt))
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Cores != 2 {
		t.Errorf("cores = %d, want 2", alloc.Cores)
	}
}

func TestDetectHost(t *testing.T) {
	h := DetectHost()
	if h.Cores < 1 {
		t.Errorf("cores = %d", h.Cores)
	}
	if h.RAMMiB < 1 {
		t.Errorf("ram = %d", h.RAMMiB)
	}
}
