// Package docker plans container invocations for tools that declare a
// DockerRequirement. Planning is static: it produces the docker run prefix
// and the container-side rewrite of File/Directory inputs without talking
// to a daemon.
package docker

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/me/cwlinspect/pkg/cwl"
)

// Container-side layout. Inputs are mounted read-only under InputsDir, the
// output directory is the working directory.
const (
	WorkDir   = "/var/spool/cwl"
	TmpDir    = "/tmp"
	InputsDir = "/var/lib/cwl/inputs"
)

// Mount is one bind mount of the docker run invocation.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Invocation is a planned docker run prefix.
type Invocation struct {
	Image  string
	Mounts []Mount
	Env    map[string]string
	User   string
}

// Available reports whether a docker client is on PATH.
func Available() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}

// Plan decides whether the tool runs in a container and, if so, builds the
// invocation and rewrites File/Directory inputs to their container paths.
// A DockerRequirement among requirements always containerizes; among hints
// it containerizes only when a docker client is available. The returned
// input map is a rewritten copy; the original is untouched.
func Plan(tool *cwl.CommandLineTool, rt *cwl.RuntimeContext, inputs map[string]cwl.Value) (*Invocation, map[string]cwl.Value, error) {
	req, fromHints := findDocker(tool)
	if req == nil {
		return nil, inputs, nil
	}
	if fromHints && !Available() {
		return nil, inputs, nil
	}
	image := req.Image()
	if image == "" {
		return nil, nil, cwl.NewParseError("requirements.DockerRequirement",
			"DockerRequirement needs dockerPull or dockerImageId")
	}

	inv := &Invocation{
		Image: image,
		Env: map[string]string{
			"TMPDIR": TmpDir,
			"HOME":   WorkDir,
		},
		User: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	if rt != nil {
		if rt.OutDir != "" {
			inv.Mounts = append(inv.Mounts, Mount{Source: rt.OutDir, Target: WorkDir})
		}
		if rt.TmpDir != "" {
			inv.Mounts = append(inv.Mounts, Mount{Source: rt.TmpDir, Target: TmpDir})
		}
	}

	rw := &rewriter{inv: inv}
	rewritten := make(map[string]cwl.Value, len(inputs))
	for _, id := range sortedKeys(inputs) {
		rewritten[id] = rw.rewrite(inputs[id])
	}
	return inv, rewritten, nil
}

// Args renders the docker run prefix as argv tokens, without the tool
// command itself.
func (inv *Invocation) Args() []string {
	args := []string{"docker", "run", "--rm", "-i", "--read-only"}
	for _, m := range inv.Mounts {
		spec := fmt.Sprintf("type=bind,source=%s,target=%s", m.Source, m.Target)
		if m.ReadOnly {
			spec += ",readonly"
		}
		args = append(args, "--mount", spec)
	}
	for _, k := range sortedKeys(inv.Env) {
		args = append(args, "-e", k+"="+inv.Env[k])
	}
	args = append(args, "--user", inv.User, "--workdir", WorkDir, inv.Image)
	return args
}

func findDocker(tool *cwl.CommandLineTool) (req *cwl.DockerRequirement, fromHints bool) {
	if r := tool.Requirements.Find("DockerRequirement"); r != nil {
		return r.(*cwl.DockerRequirement), false
	}
	if r := tool.Hints.Find("DockerRequirement"); r != nil {
		if d, ok := r.(*cwl.DockerRequirement); ok {
			return d, true
		}
	}
	return nil, false
}

// rewriter relocates host paths into the container inputs tree, one
// numbered directory per primary file so basenames cannot collide.
type rewriter struct {
	inv *Invocation
	n   int
}

func (rw *rewriter) rewrite(v cwl.Value) cwl.Value {
	switch x := v.(type) {
	case cwl.FileValue:
		return rw.rewriteFile(x)
	case cwl.DirectoryValue:
		return rw.rewriteDir(x)
	case cwl.ArrayValue:
		items := make([]cwl.Value, len(x.Items))
		for i, item := range x.Items {
			items[i] = rw.rewrite(item)
		}
		return cwl.ArrayValue{Items: items}
	case cwl.RecordValue:
		fields := make(map[string]cwl.Value, len(x.Fields))
		for k, f := range x.Fields {
			fields[k] = rw.rewrite(f)
		}
		return cwl.RecordValue{Fields: fields}
	case cwl.UnionValue:
		return cwl.UnionValue{Chosen: x.Chosen, Inner: rw.rewrite(x.Inner)}
	default:
		return v
	}
}

func (rw *rewriter) rewriteFile(f cwl.FileValue) cwl.FileValue {
	if f.Path == "" {
		return f
	}
	dir := rw.nextDir()
	target := dir + "/" + f.Basename
	rw.inv.Mounts = append(rw.inv.Mounts, Mount{Source: f.Path, Target: target, ReadOnly: true})
	out := f
	out.Path = target
	out.Location = cwl.PathToLocation(target)
	out.Dirname = dir
	out.SecondaryFiles = append([]cwl.Value(nil), f.SecondaryFiles...)
	for i, sec := range f.SecondaryFiles {
		// Secondary files live next to their primary.
		switch s := sec.(type) {
		case cwl.FileValue:
			st := dir + "/" + s.Basename
			rw.inv.Mounts = append(rw.inv.Mounts, Mount{Source: s.Path, Target: st, ReadOnly: true})
			r := s
			r.Path = st
			r.Location = cwl.PathToLocation(st)
			r.Dirname = dir
			out.SecondaryFiles[i] = r
		case cwl.DirectoryValue:
			st := dir + "/" + s.Basename
			rw.inv.Mounts = append(rw.inv.Mounts, Mount{Source: s.Path, Target: st, ReadOnly: true})
			r := s
			r.Path = st
			r.Location = cwl.PathToLocation(st)
			out.SecondaryFiles[i] = r
		}
	}
	return out
}

func (rw *rewriter) rewriteDir(d cwl.DirectoryValue) cwl.DirectoryValue {
	if d.Path == "" {
		return d
	}
	dir := rw.nextDir()
	target := dir + "/" + d.Basename
	rw.inv.Mounts = append(rw.inv.Mounts, Mount{Source: d.Path, Target: target, ReadOnly: true})
	out := d
	out.Path = target
	out.Location = cwl.PathToLocation(target)
	return out
}

func (rw *rewriter) nextDir() string {
	dir := fmt.Sprintf("%s/%d", InputsDir, rw.n)
	rw.n++
	return dir
}

func sortedKeys[M map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
