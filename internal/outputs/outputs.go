// Package outputs resolves a tool's declared outputs after execution. A
// cwl.output.json file in the output directory short-circuits collection;
// otherwise each output is globbed, optionally run through outputEval, and
// coerced to its declared type.
package outputs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/cwlinspect/internal/binder"
	"github.com/me/cwlinspect/internal/cmdsynth"
	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/pkg/cwl"
)

// SentinelFile is the output map a tool may write itself instead of
// relying on glob collection.
const SentinelFile = "cwl.output.json"

// Collector resolves outputs for one tool against one output directory.
type Collector struct {
	tool *cwl.CommandLineTool
	eval *evaluator.Evaluator
}

func New(tool *cwl.CommandLineTool) *Collector {
	return &Collector{tool: tool, eval: evaluator.New(tool.InlineJavascript())}
}

// Collect resolves every declared output. inputs is the bound job the tool
// ran with; expression forms in globs and outputEval see it.
func (c *Collector) Collect(inputs map[string]cwl.Value, rt *cwl.RuntimeContext) (map[string]cwl.Value, error) {
	ctx := evaluator.NewContext(inputs, rt)
	opts := binder.Options{Runtime: rt, Strict: true, Eval: c.eval}

	if m, ok, err := c.readSentinel(rt, opts); err != nil {
		return nil, err
	} else if ok {
		return m, nil
	}

	out := make(map[string]cwl.Value, len(c.tool.Outputs))
	for _, param := range c.tool.Outputs {
		v, err := c.collectOne(param, ctx, opts)
		if err != nil {
			return nil, err
		}
		out[param.ID] = v
	}
	return out, nil
}

// readSentinel loads cwl.output.json when present, type-checking each
// declared output against it.
func (c *Collector) readSentinel(rt *cwl.RuntimeContext, opts binder.Options) (map[string]cwl.Value, bool, error) {
	path := filepath.Join(rt.OutDir, SentinelFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, cwl.NewParseError(SentinelFile, "invalid JSON: %v", err)
	}
	out := make(map[string]cwl.Value, len(c.tool.Outputs))
	for _, param := range c.tool.Outputs {
		rv, present := raw[param.ID]
		if !present || rv == nil {
			if cwl.IsNullable(param.Type) {
				out[param.ID] = cwl.Scalar{}
				continue
			}
			return nil, false, &cwl.TypeMismatch{Name: param.ID, Want: param.Type.TypeName(), Got: "missing"}
		}
		v, err := binder.Coerce(param.ID, param.Type, relocate(rv, rt.OutDir), opts)
		if err != nil {
			return nil, false, err
		}
		out[param.ID] = v
	}
	return out, true, nil
}

// relocate resolves relative File/Directory paths in a sentinel entry
// against the output directory.
func relocate(raw any, outdir string) any {
	switch x := raw.(type) {
	case map[string]any:
		class, _ := x["class"].(string)
		if class == "File" || class == "Directory" {
			m := make(map[string]any, len(x))
			for k, v := range x {
				m[k] = v
			}
			if p, ok := m["path"].(string); ok && p != "" && !filepath.IsAbs(p) {
				m["path"] = filepath.Join(outdir, p)
			}
			if l, ok := m["location"].(string); ok && l != "" &&
				!strings.Contains(l, "://") && !filepath.IsAbs(l) {
				m["location"] = filepath.Join(outdir, l)
			}
			return m
		}
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = relocate(v, outdir)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = relocate(v, outdir)
		}
		return out
	default:
		return raw
	}
}

func (c *Collector) collectOne(param cwl.OutputParameter, ctx *evaluator.Context, opts binder.Options) (cwl.Value, error) {
	if p, ok := param.Type.(cwl.Primitive); ok && (p == cwl.Stdout || p == cwl.Stderr) {
		return c.collectStream(param, p, ctx, opts)
	}

	ob := param.OutputBinding
	if ob == nil {
		if cwl.IsNullable(param.Type) {
			return cwl.Scalar{}, nil
		}
		return nil, &cwl.TypeMismatch{Name: param.ID, Want: param.Type.TypeName(), Got: "no outputBinding"}
	}

	matched, err := c.globMatches(ob, ctx, opts)
	if err != nil {
		return nil, err
	}
	if ob.LoadContents {
		for i := range matched {
			if f, ok := matched[i].(cwl.FileValue); ok {
				if err := loadFileContents(&f); err != nil {
					return nil, err
				}
				matched[i] = f
			}
		}
	}

	var result cwl.Value
	if ob.OutputEval != "" {
		self := cwl.ArrayValue{Items: matched}
		v, err := c.eval.Eval(ob.OutputEval, ctx.WithSelf(self))
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", param.ID, err)
		}
		return binder.Coerce(param.ID, param.Type, v.JSON(), opts)
	}
	result, err = shapeToType(param, matched)
	if err != nil {
		return nil, err
	}
	return c.attachSecondary(param, result, opts)
}

func (c *Collector) collectStream(param cwl.OutputParameter, stream cwl.Primitive, ctx *evaluator.Context, opts binder.Options) (cwl.Value, error) {
	var name string
	var err error
	if stream == cwl.Stdout {
		name, err = cmdsynth.StdoutName(c.tool, c.eval, ctx)
	} else {
		name, err = cmdsynth.StderrName(c.tool, c.eval, ctx)
	}
	if err != nil {
		return nil, err
	}
	path := filepath.Join(ctx.Runtime.OutDir, name)
	return binder.Coerce(param.ID, cwl.File, map[string]any{"class": "File", "path": path}, opts)
}

// globMatches evaluates the glob expressions and resolves them against the
// output directory, sorted by basename.
func (c *Collector) globMatches(ob *cwl.OutputBinding, ctx *evaluator.Context, opts binder.Options) ([]cwl.Value, error) {
	var patterns []string
	for _, g := range ob.Glob {
		v, err := c.eval.Eval(g, ctx)
		if err != nil {
			return nil, err
		}
		switch x := cwl.Unwrap(v).(type) {
		case cwl.Scalar:
			if s, ok := x.V.(string); ok {
				patterns = append(patterns, s)
			}
		case cwl.ArrayValue:
			for _, item := range x.Items {
				if sc, ok := item.(cwl.Scalar); ok {
					if s, ok := sc.V.(string); ok {
						patterns = append(patterns, s)
					}
				}
			}
		}
	}

	outdir := ctx.Runtime.OutDir
	var paths []string
	seen := map[string]bool{}
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(outdir, pat))
		if err != nil {
			return nil, cwl.NewParseError("outputBinding.glob", "bad pattern %q: %v", pat, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})

	values := make([]cwl.Value, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		class := "File"
		if st.IsDir() {
			class = "Directory"
		}
		v, err := binder.Coerce(filepath.Base(p), cwl.Primitive(class),
			map[string]any{"class": class, "path": p}, opts)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// shapeToType fits the matched values to the declared output type: a File
// or Directory output takes the first match, array outputs take them all.
func shapeToType(param cwl.OutputParameter, matched []cwl.Value) (cwl.Value, error) {
	t := param.Type
	if ut, ok := t.(*cwl.UnionType); ok {
		for _, alt := range ut.Alternatives {
			if alt != cwl.Null {
				t = alt
				break
			}
		}
	}
	switch t.(type) {
	case cwl.Primitive:
		if len(matched) == 0 {
			if cwl.IsNullable(param.Type) {
				return cwl.Scalar{}, nil
			}
			return nil, &cwl.TypeMismatch{Name: param.ID, Want: param.Type.TypeName(), Got: "no matches"}
		}
		return matched[0], nil
	case *cwl.ArrayType:
		return cwl.ArrayValue{Items: matched}, nil
	default:
		return nil, &cwl.TypeMismatch{Name: param.ID, Want: param.Type.TypeName(), Got: fmt.Sprintf("%d glob matches", len(matched))}
	}
}

// attachSecondary applies output secondaryFiles schemas to every collected
// file. Missing output secondary files are tolerated unless the schema
// marks them required.
func (c *Collector) attachSecondary(param cwl.OutputParameter, v cwl.Value, opts binder.Options) (cwl.Value, error) {
	if len(param.SecondaryFiles) == 0 {
		return v, nil
	}
	schemas := outputSchemas(param.SecondaryFiles)
	switch x := v.(type) {
	case cwl.FileValue:
		if err := binder.AttachSecondaryFiles(&x, schemas, opts); err != nil {
			return nil, err
		}
		return x, nil
	case cwl.ArrayValue:
		for i, item := range x.Items {
			if f, ok := item.(cwl.FileValue); ok {
				if err := binder.AttachSecondaryFiles(&f, schemas, opts); err != nil {
					return nil, err
				}
				x.Items[i] = f
			}
		}
		return x, nil
	default:
		return v, nil
	}
}

// outputSchemas downgrades unset required flags: output secondary files
// default to optional, unlike inputs.
func outputSchemas(in []cwl.SecondaryFileSchema) []cwl.SecondaryFileSchema {
	out := make([]cwl.SecondaryFileSchema, len(in))
	for i, s := range in {
		out[i] = s
		if s.Required == nil {
			out[i].Required = false
		}
	}
	return out
}

func loadFileContents(f *cwl.FileValue) error {
	if f.HasContents || f.Path == "" {
		return nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	if len(data) > 64*1024 {
		data = data[:64*1024]
	}
	f.Contents = string(data)
	f.HasContents = true
	return nil
}
