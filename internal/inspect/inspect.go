// Package inspect answers positional queries against a loaded document:
// dotted-path navigation, key listing, command-line synthesis for the root
// tool or a workflow step, and output listing after a run.
package inspect

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/me/cwlinspect/internal/binder"
	"github.com/me/cwlinspect/internal/cmdsynth"
	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/internal/outputs"
	"github.com/me/cwlinspect/internal/resources"
	"github.com/me/cwlinspect/pkg/cwl"
)

// Inspector serves queries against one loaded document.
type Inspector struct {
	doc    *cwl.Document
	logger *slog.Logger
}

func New(doc *cwl.Document, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{doc: doc, logger: logger}
}

// Request is one inspection query. A nil Job selects symbolic mode.
type Request struct {
	Pos     string
	Job     cwl.Tree
	Runtime *cwl.RuntimeContext
}

// Inspect dispatches on the query form:
//
//	.a.b.0           navigate the normalized document
//	keys(.a.b)       list keys at a position
//	commandline      synthesize the root tool's command line
//	commandline(s)   synthesize the command line of workflow step s
//	ls(.outputs.x)   resolve output x from the output directory
func (ins *Inspector) Inspect(req Request) (any, error) {
	pos := strings.TrimSpace(req.Pos)
	switch {
	case pos == "commandline":
		return ins.commandline(req, "")
	case strings.HasPrefix(pos, "commandline(") && strings.HasSuffix(pos, ")"):
		step := pos[len("commandline(") : len(pos)-1]
		return ins.commandline(req, strings.TrimSpace(step))
	case strings.HasPrefix(pos, "keys(") && strings.HasSuffix(pos, ")"):
		inner := strings.TrimSpace(pos[len("keys(") : len(pos)-1])
		return ins.keys(inner)
	case strings.HasPrefix(pos, "ls(") && strings.HasSuffix(pos, ")"):
		inner := strings.TrimSpace(pos[len("ls(") : len(pos)-1])
		return ins.ls(req, inner)
	case pos == "." || strings.HasPrefix(pos, "."):
		return ins.navigate(pos)
	default:
		return nil, cwl.NewParseError(pos, "unrecognized position; want a dotted path, keys(...), commandline or ls(...)")
	}
}

// navigate walks a dotted path over the normalized (saved) document tree,
// so shorthand forms appear in their canonical encoding.
func (ins *Inspector) navigate(pos string) (any, error) {
	cur := ins.doc.Root.Save()
	if pos == "." {
		return cur, nil
	}
	segs := strings.Split(strings.TrimPrefix(pos, "."), ".")
	walked := ""
	for _, seg := range segs {
		walked += "." + seg
		next, err := descend(cur, seg)
		if err != nil {
			return nil, cwl.NewParseError(walked, "%v", err)
		}
		cur = next
	}
	return cur, nil
}

// descend resolves one path segment: a map key, a sequence index, or an
// id lookup in a sequence of identified entries.
func descend(cur any, seg string) (any, error) {
	switch x := cur.(type) {
	case map[string]any:
		v, ok := x[seg]
		if !ok {
			return nil, fmt.Errorf("no such field %q", seg)
		}
		return v, nil
	case []any:
		if idx, err := strconv.Atoi(seg); err == nil {
			if idx < 0 || idx >= len(x) {
				return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(x))
			}
			return x[idx], nil
		}
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				if id, _ := m["id"].(string); shortName(id) == seg {
					return item, nil
				}
			}
		}
		return nil, fmt.Errorf("no entry with id %q", seg)
	default:
		return nil, fmt.Errorf("cannot descend into %T", cur)
	}
}

// keys lists the field names (or indices) at a position, sorted.
func (ins *Inspector) keys(pos string) (any, error) {
	if pos == "" {
		pos = "."
	}
	v, err := ins.navigate(pos)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	case []any:
		idx := make([]any, len(x))
		for i := range x {
			idx[i] = i
		}
		return idx, nil
	default:
		return nil, cwl.NewParseError(pos, "position holds a %T, not a mapping or sequence", v)
	}
}

// commandline synthesizes the command line for the root tool, or for a
// named step of a root workflow.
func (ins *Inspector) commandline(req Request, step string) (string, error) {
	tool, job, err := ins.resolveTool(req, step)
	if err != nil {
		return "", err
	}
	eval := evaluator.New(tool.InlineJavascript())
	bound, err := binder.Bind(tool.Inputs, job, binder.Options{
		Runtime: req.Runtime,
		Strict:  job != nil,
		Eval:    eval,
	})
	if err != nil {
		return "", err
	}
	if err := ins.applyResources(tool, eval, bound, req.Runtime); err != nil {
		return "", err
	}
	return cmdsynth.New(tool).Synthesize(bound, req.Runtime)
}

// applyResources folds the negotiated grant into the runtime context so
// $(runtime.cores) and $(runtime.ram) see real numbers.
func (ins *Inspector) applyResources(tool *cwl.CommandLineTool, eval *evaluator.Evaluator, bound map[string]cwl.Value, rt *cwl.RuntimeContext) error {
	if rt == nil {
		return nil
	}
	alloc, err := resources.Negotiate(tool, resources.DetectHost(), eval, evaluator.NewContext(bound, rt))
	if err != nil {
		return err
	}
	rt.Cores = alloc.Cores
	rt.RAM = alloc.RAMMiB
	ins.logger.Debug("resources negotiated", "cores", alloc.Cores, "ram_mib", alloc.RAMMiB)
	return nil
}

// ls resolves one declared output (position .outputs.<id>) against the
// output directory.
func (ins *Inspector) ls(req Request, pos string) (any, error) {
	const prefix = ".outputs."
	if !strings.HasPrefix(pos, prefix) {
		return nil, cwl.NewParseError(pos, "ls wants a position of the form .outputs.<id>")
	}
	id := pos[len(prefix):]

	tool, job, err := ins.resolveTool(req, "")
	if err != nil {
		return nil, err
	}
	if tool.Output(id) == nil {
		return nil, cwl.NewParseError(pos, "no such output %q", id)
	}
	eval := evaluator.New(tool.InlineJavascript())
	bound, err := binder.Bind(tool.Inputs, job, binder.Options{Runtime: req.Runtime, Strict: job != nil, Eval: eval})
	if err != nil {
		return nil, err
	}
	collected, err := outputs.New(tool).Collect(bound, req.Runtime)
	if err != nil {
		return nil, err
	}
	v, ok := collected[id]
	if !ok {
		return nil, cwl.NewParseError(pos, "output %q was not collected", id)
	}
	return cwl.NormalizeForOutput(v.JSON()), nil
}

// resolveTool picks the CommandLineTool a query targets: the root process,
// or the run of a named workflow step with the job remapped through the
// step's in clauses.
func (ins *Inspector) resolveTool(req Request, step string) (*cwl.CommandLineTool, cwl.Tree, error) {
	if step == "" {
		tool, ok := ins.doc.Root.(*cwl.CommandLineTool)
		if !ok {
			if _, isWF := ins.doc.Root.(*cwl.Workflow); isWF {
				return nil, nil, cwl.NewParseError("commandline", "root process is a workflow; use commandline(<step>)")
			}
			return nil, nil, cwl.NewParseError("commandline", "root process is a %s, not a CommandLineTool", ins.doc.Root.NodeClass())
		}
		return tool, req.Job, nil
	}

	wf, ok := ins.doc.Root.(*cwl.Workflow)
	if !ok {
		return nil, nil, cwl.NewParseError("commandline("+step+")", "root process is not a workflow")
	}
	st := wf.Step(step)
	if st == nil {
		return nil, nil, cwl.NewParseError("commandline("+step+")", "no such step")
	}
	run := st.RunNode
	if run == nil && st.RunRef != "" {
		run = ins.doc.Process(st.RunRef)
	}
	tool, ok := run.(*cwl.CommandLineTool)
	if !ok {
		return nil, nil, cwl.NewParseError("commandline("+step+")", "step run is not a CommandLineTool")
	}
	job, err := ins.stepJob(st, req)
	if err != nil {
		return nil, nil, err
	}
	return tool, job, nil
}

// stepJob remaps a workflow-level job onto a step's inputs: each in clause
// takes its source's value (or default), then valueFrom rewrites it with
// self bound to the sourced value.
func (ins *Inspector) stepJob(st *cwl.WorkflowStep, req Request) (cwl.Tree, error) {
	if req.Job == nil {
		return nil, nil
	}
	wf := ins.doc.Root.(*cwl.Workflow)
	eval := evaluator.New(wf.InlineJavascript())

	job := cwl.Tree{}
	for _, in := range st.In {
		var raw any
		found := false
		for _, src := range in.Source {
			if v, ok := req.Job[shortName(src)]; ok {
				raw = v
				found = true
				break
			}
		}
		if !found {
			if in.Default == nil {
				continue
			}
			raw = in.Default
		}
		if in.ValueFrom != "" {
			ctx := evaluator.NewContext(nil, req.Runtime).WithSelf(cwl.FromJSON(raw))
			v, err := eval.Eval(in.ValueFrom, ctx)
			if err != nil {
				return nil, fmt.Errorf("step %s input %s: %w", st.ID, in.ID, err)
			}
			raw = v.JSON()
		}
		job[in.ID] = raw
	}
	return job, nil
}

func shortName(id string) string {
	if i := strings.LastIndexAny(id, "#/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
