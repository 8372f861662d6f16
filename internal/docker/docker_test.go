package docker

import (
	"strings"
	"testing"

	"github.com/me/cwlinspect/pkg/cwl"
)

func TestPlan_NoRequirement(t *testing.T) {
	inv, inputs, err := Plan(&cwl.CommandLineTool{}, nil, map[string]cwl.Value{
		"x": cwl.Scalar{V: "y"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv != nil {
		t.Errorf("inv = %+v, want nil", inv)
	}
	if inputs["x"].(cwl.Scalar).V != "y" {
		t.Error("inputs changed without a container")
	}
}

func TestPlan_RequirementWithoutImage(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.DockerRequirement{}},
	}
	if _, _, err := Plan(tool, nil, nil); err == nil {
		t.Fatal("expected an error for a DockerRequirement without an image")
	}
}

func TestPlan_MountsAndRewrites(t *testing.T) {
	tool := &cwl.CommandLineTool{
		Requirements: cwl.ReqList{&cwl.DockerRequirement{DockerPull: "ubuntu:22.04"}},
	}
	rt := &cwl.RuntimeContext{OutDir: "/host/out", TmpDir: "/host/tmp"}
	inputs := map[string]cwl.Value{
		"reads": cwl.FileValue{
			Path:     "/host/data/reads.fq",
			Basename: "reads.fq",
			Dirname:  "/host/data",
			SecondaryFiles: []cwl.Value{
				cwl.FileValue{Path: "/host/data/reads.fq.idx", Basename: "reads.fq.idx"},
			},
		},
		"threads": cwl.Scalar{V: int64(4)},
	}

	inv, rewritten, err := Plan(tool, rt, inputs)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Image != "ubuntu:22.04" {
		t.Errorf("image = %q", inv.Image)
	}

	f := rewritten["reads"].(cwl.FileValue)
	if !strings.HasPrefix(f.Path, InputsDir+"/") || !strings.HasSuffix(f.Path, "/reads.fq") {
		t.Errorf("rewritten path = %q", f.Path)
	}
	if f.Location != cwl.PathToLocation(f.Path) {
		t.Errorf("rewritten location = %q, want container-side %q", f.Location, cwl.PathToLocation(f.Path))
	}
	sec := f.SecondaryFiles[0].(cwl.FileValue)
	if sec.Path != f.Dirname+"/reads.fq.idx" {
		t.Errorf("secondary path = %q, want next to primary %q", sec.Path, f.Dirname)
	}
	if sec.Location != cwl.PathToLocation(sec.Path) {
		t.Errorf("secondary location = %q", sec.Location)
	}
	if rewritten["threads"].(cwl.Scalar).V != int64(4) {
		t.Error("scalar input changed")
	}

	// The original values stay untouched.
	orig := inputs["reads"].(cwl.FileValue)
	if orig.Path != "/host/data/reads.fq" || orig.Location != "" {
		t.Errorf("original mutated: path %q location %q", orig.Path, orig.Location)
	}
	if orig.SecondaryFiles[0].(cwl.FileValue).Path != "/host/data/reads.fq.idx" {
		t.Error("original secondary mutated")
	}

	var haveOut, haveTmp, haveInput bool
	for _, m := range inv.Mounts {
		switch {
		case m.Source == "/host/out" && m.Target == WorkDir && !m.ReadOnly:
			haveOut = true
		case m.Source == "/host/tmp" && m.Target == TmpDir && !m.ReadOnly:
			haveTmp = true
		case m.Source == "/host/data/reads.fq" && m.ReadOnly:
			haveInput = true
		}
	}
	if !haveOut || !haveTmp || !haveInput {
		t.Errorf("mounts = %+v", inv.Mounts)
	}
}

func TestPlan_HintWithoutDaemonSkipsContainer(t *testing.T) {
	if Available() {
		t.Skip("docker client on PATH")
	}
	tool := &cwl.CommandLineTool{
		Hints: cwl.ReqList{&cwl.DockerRequirement{DockerPull: "ubuntu:22.04"}},
	}
	inv, _, err := Plan(tool, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if inv != nil {
		t.Errorf("inv = %+v, want nil without a docker client", inv)
	}
}

func TestInvocationArgs(t *testing.T) {
	inv := &Invocation{
		Image: "img",
		User:  "1000:1000",
		Env:   map[string]string{"HOME": WorkDir, "TMPDIR": TmpDir},
		Mounts: []Mount{
			{Source: "/o", Target: WorkDir},
			{Source: "/d/f", Target: InputsDir + "/0/f", ReadOnly: true},
		},
	}
	got := strings.Join(inv.Args(), " ")
	want := "docker run --rm -i --read-only" +
		" --mount type=bind,source=/o,target=/var/spool/cwl" +
		" --mount type=bind,source=/d/f,target=/var/lib/cwl/inputs/0/f,readonly" +
		" -e HOME=/var/spool/cwl -e TMPDIR=/tmp" +
		" --user 1000:1000 --workdir /var/spool/cwl img"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}
