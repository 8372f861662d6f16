// Package loader converts a preprocessed CWL document tree into typed nodes.
// Loading is a pure transform: it fails closed on unknown fields or invalid
// shapes and never coerces silently.
package loader

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/cwlinspect/pkg/cwl"
)

// Loader builds typed CWL nodes from plain map/sequence/scalar trees.
type Loader struct {
	logger *slog.Logger

	// typedefs collects SchemaDefRequirement types so parameter types can
	// reference them by name.
	typedefs map[string]cwl.SchemaType
}

// New creates a Loader with the given logger.
func New(logger *slog.Logger) *Loader {
	return &Loader{
		logger:   logger.With("component", "loader"),
		typedefs: make(map[string]cwl.SchemaType),
	}
}

// LoadYAML parses raw YAML/JSON bytes and loads the document.
func (l *Loader) LoadYAML(data []byte) (*cwl.Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return l.Load(raw)
}

// Load converts a document tree into a Document with its fragment index and
// namespace table.
func (l *Loader) Load(tree cwl.Tree) (*cwl.Document, error) {
	doc := &cwl.Document{
		Fragments:  make(map[string]cwl.Node),
		Namespaces: make(map[string]string),
	}

	if ns, ok := tree["$namespaces"].(map[string]any); ok {
		for prefix, iri := range ns {
			if s, ok := iri.(string); ok {
				doc.Namespaces[prefix] = s
			}
		}
	}

	if graphRaw, ok := tree["$graph"]; ok {
		entries, ok := graphRaw.([]any)
		if !ok {
			return nil, cwl.NewParseError("$graph", "expected a sequence, got %T", graphRaw)
		}
		var main cwl.Node
		for i, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, cwl.NewParseError(fmt.Sprintf("$graph[%d]", i), "expected a map, got %T", entry)
			}
			node, err := l.loadProcess(m, fmt.Sprintf("$graph[%d]", i))
			if err != nil {
				return nil, err
			}
			id := nodeID(node)
			if id == "" {
				return nil, cwl.NewParseError(fmt.Sprintf("$graph[%d]", i), "graph entry missing id")
			}
			frag := strings.TrimPrefix(id, "#")
			doc.Fragments[frag] = node
			if frag == "main" || main == nil {
				main = node
			}
		}
		if main == nil {
			return nil, cwl.NewParseError("$graph", "empty graph")
		}
		doc.Root = main
		l.logger.Debug("loaded packed document", "fragments", len(doc.Fragments))
		return doc, nil
	}

	node, err := l.loadProcess(tree, "")
	if err != nil {
		return nil, err
	}
	doc.Root = node
	if id := nodeID(node); id != "" {
		doc.Fragments[strings.TrimPrefix(id, "#")] = node
	}
	return doc, nil
}

func nodeID(n cwl.Node) string {
	switch v := n.(type) {
	case *cwl.CommandLineTool:
		return v.ID
	case *cwl.ExpressionTool:
		return v.ID
	case *cwl.Workflow:
		return v.ID
	}
	return ""
}

// loadProcess dispatches on the class tag. Loading rejects unknown classes;
// there is no catch-all node kind.
func (l *Loader) loadProcess(m map[string]any, path string) (cwl.Node, error) {
	class, _ := m["class"].(string)
	switch class {
	case "CommandLineTool":
		return l.loadTool(m, path)
	case "ExpressionTool":
		return l.loadExpressionTool(m, path)
	case "Workflow":
		return l.loadWorkflow(m, path)
	case "":
		return nil, cwl.NewParseError(join(path, "class"), "missing class field")
	default:
		return nil, cwl.NewParseError(join(path, "class"), "unsupported class %q", class)
	}
}

var toolFields = fieldSet(
	"class", "id", "cwlVersion", "doc", "label", "baseCommand",
	"inputs", "outputs", "requirements", "hints", "arguments",
	"stdin", "stdout", "stderr",
	"successCodes", "temporaryFailCodes", "permanentFailCodes",
)

func (l *Loader) loadTool(m map[string]any, path string) (*cwl.CommandLineTool, error) {
	ext, err := checkFields(m, toolFields, path)
	if err != nil {
		return nil, err
	}

	tool := &cwl.CommandLineTool{
		ID:         stringField(m, "id"),
		CWLVersion: stringField(m, "cwlVersion"),
		Doc:        docField(m),
		Label:      stringField(m, "label"),
		Stdin:      cwl.Expression(stringField(m, "stdin")),
		Stdout:     cwl.Expression(stringField(m, "stdout")),
		Stderr:     cwl.Expression(stringField(m, "stderr")),
		Extensions: ext,
	}

	if bc, ok := m["baseCommand"]; ok {
		cmds, err := stringSeq(bc, join(path, "baseCommand"))
		if err != nil {
			return nil, err
		}
		tool.BaseCommand = cmds
	}

	// Requirements come first so SchemaDef types are visible to the
	// parameter loaders.
	if tool.Requirements, err = l.loadRequirements(m["requirements"], join(path, "requirements"), false); err != nil {
		return nil, err
	}
	if tool.Hints, err = l.loadRequirements(m["hints"], join(path, "hints"), true); err != nil {
		return nil, err
	}

	if tool.Inputs, err = l.loadInputs(m["inputs"], join(path, "inputs")); err != nil {
		return nil, err
	}
	if tool.Outputs, err = l.loadOutputs(m["outputs"], join(path, "outputs")); err != nil {
		return nil, err
	}

	if args, ok := m["arguments"]; ok {
		seq, ok := args.([]any)
		if !ok {
			return nil, cwl.NewParseError(join(path, "arguments"), "expected a sequence, got %T", args)
		}
		for i, a := range seq {
			argPath := fmt.Sprintf("%s[%d]", join(path, "arguments"), i)
			switch arg := a.(type) {
			case string:
				tool.Arguments = append(tool.Arguments, cwl.CommandLineBinding{ValueFrom: cwl.Expression(arg)})
			case map[string]any:
				b, err := l.loadCommandLineBinding(arg, argPath)
				if err != nil {
					return nil, err
				}
				tool.Arguments = append(tool.Arguments, *b)
			default:
				return nil, cwl.NewParseError(argPath, "argument must be a string or CommandLineBinding, got %T", a)
			}
		}
	}

	for _, key := range []string{"successCodes", "temporaryFailCodes", "permanentFailCodes"} {
		if raw, ok := m[key]; ok {
			codes, err := intSeq(raw, join(path, key))
			if err != nil {
				return nil, err
			}
			switch key {
			case "successCodes":
				tool.SuccessCodes = codes
			case "temporaryFailCodes":
				tool.TemporaryFailCodes = codes
			case "permanentFailCodes":
				tool.PermanentFailCodes = codes
			}
		}
	}

	return tool, nil
}

var exprToolFields = fieldSet(
	"class", "id", "cwlVersion", "doc", "label",
	"inputs", "outputs", "requirements", "hints", "expression",
)

func (l *Loader) loadExpressionTool(m map[string]any, path string) (*cwl.ExpressionTool, error) {
	ext, err := checkFields(m, exprToolFields, path)
	if err != nil {
		return nil, err
	}
	expr, ok := m["expression"].(string)
	if !ok {
		return nil, cwl.NewParseError(join(path, "expression"), "ExpressionTool requires a string expression")
	}
	tool := &cwl.ExpressionTool{
		ID:         stringField(m, "id"),
		CWLVersion: stringField(m, "cwlVersion"),
		Doc:        docField(m),
		Label:      stringField(m, "label"),
		Expression: cwl.Expression(expr),
		Extensions: ext,
	}
	if tool.Requirements, err = l.loadRequirements(m["requirements"], join(path, "requirements"), false); err != nil {
		return nil, err
	}
	if tool.Hints, err = l.loadRequirements(m["hints"], join(path, "hints"), true); err != nil {
		return nil, err
	}
	if tool.Inputs, err = l.loadInputs(m["inputs"], join(path, "inputs")); err != nil {
		return nil, err
	}
	if tool.Outputs, err = l.loadOutputs(m["outputs"], join(path, "outputs")); err != nil {
		return nil, err
	}
	return tool, nil
}

var workflowFields = fieldSet(
	"class", "id", "cwlVersion", "doc", "label",
	"inputs", "outputs", "requirements", "hints", "steps",
)

func (l *Loader) loadWorkflow(m map[string]any, path string) (*cwl.Workflow, error) {
	ext, err := checkFields(m, workflowFields, path)
	if err != nil {
		return nil, err
	}
	wf := &cwl.Workflow{
		ID:         stringField(m, "id"),
		CWLVersion: stringField(m, "cwlVersion"),
		Doc:        docField(m),
		Label:      stringField(m, "label"),
		Extensions: ext,
	}
	if wf.Requirements, err = l.loadRequirements(m["requirements"], join(path, "requirements"), false); err != nil {
		return nil, err
	}
	if wf.Hints, err = l.loadRequirements(m["hints"], join(path, "hints"), true); err != nil {
		return nil, err
	}
	if wf.Inputs, err = l.loadInputs(m["inputs"], join(path, "inputs")); err != nil {
		return nil, err
	}
	if wf.Outputs, err = l.loadOutputs(m["outputs"], join(path, "outputs")); err != nil {
		return nil, err
	}

	stepEntries, err := idTaggedSeq(m["steps"], join(path, "steps"))
	if err != nil {
		return nil, err
	}
	for _, entry := range stepEntries {
		step, err := l.loadStep(entry.body, entry.id, entry.path)
		if err != nil {
			return nil, err
		}
		wf.Steps = append(wf.Steps, *step)
	}
	return wf, nil
}

var stepFields = fieldSet(
	"id", "doc", "label", "run", "in", "out",
	"requirements", "hints", "scatter", "scatterMethod", "when",
)

/// "type" is the idTaggedSeq slot the map shorthand "id: source" lands in.
var stepInFields = fieldSet("source", "default", "valueFrom", "type")

func (l *Loader) loadStep(m map[string]any, id, path string) (*cwl.WorkflowStep, error) {
	if _, err := checkFields(m, stepFields, path); err != nil {
		return nil, err
	}
	step := &cwl.WorkflowStep{
		ID:            id,
		Doc:           docField(m),
		Label:         stringField(m, "label"),
		ScatterMethod: stringField(m, "scatterMethod"),
	}
	var err error
	if step.Requirements, err = l.loadRequirements(m["requirements"], join(path, "requirements"), false); err != nil {
		return nil, err
	}
	if step.Hints, err = l.loadRequirements(m["hints"], join(path, "hints"), true); err != nil {
		return nil, err
	}

	switch run := m["run"].(type) {
	case string:
		step.RunRef = run
	case map[string]any:
		node, err := l.loadProcess(run, join(path, "run"))
		if err != nil {
			return nil, err
		}
		step.RunNode = node
	default:
		return nil, cwl.NewParseError(join(path, "run"), "run must be a reference or an embedded process, got %T", m["run"])
	}

	inEntries, err := idTaggedSeq(m["in"], join(path, "in"))
	if err != nil {
		return nil, err
	}
	for _, entry := range inEntries {
		if _, err := checkFields(entry.body, stepInFields, entry.path); err != nil {
			return nil, err
		}
		si := cwl.StepInput{ID: entry.id, Default: entry.body["default"]}
		switch src := entry.body["source"].(type) {
		case nil:
			// Map shorthand: "id: source".
			if s, ok := entry.body["type"].(string); ok {
				si.Source = []string{s}
			}
		case string:
			si.Source = []string{src}
		case []any:
			for _, s := range src {
				str, ok := s.(string)
				if !ok {
					return nil, cwl.NewParseError(join(entry.path, "source"), "expected string sources, got %T", s)
				}
				si.Source = append(si.Source, str)
			}
		default:
			return nil, cwl.NewParseError(join(entry.path, "source"), "expected string or sequence, got %T", src)
		}
		if vf, ok := entry.body["valueFrom"].(string); ok {
			si.ValueFrom = cwl.Expression(vf)
		}
		step.In = append(step.In, si)
	}

	if out, ok := m["out"]; ok {
		seq, ok := out.([]any)
		if !ok {
			return nil, cwl.NewParseError(join(path, "out"), "expected a sequence, got %T", out)
		}
		for i, o := range seq {
			switch v := o.(type) {
			case string:
				step.Out = append(step.Out, v)
			case map[string]any:
				oid, ok := v["id"].(string)
				if !ok {
					return nil, cwl.NewParseError(fmt.Sprintf("%s[%d]", join(path, "out"), i), "step output missing id")
				}
				step.Out = append(step.Out, oid)
			default:
				return nil, cwl.NewParseError(fmt.Sprintf("%s[%d]", join(path, "out"), i), "expected string or map, got %T", o)
			}
		}
	}

	if sc, ok := m["scatter"]; ok {
		names, err := stringSeq(sc, join(path, "scatter"))
		if err != nil {
			return nil, err
		}
		step.Scatter = names
	}
	return step, nil
}

// idTagged is a normalized inputs/outputs/steps entry: sequence-of-object
// and map-keyed-by-id encodings both reduce to this.
type idTagged struct {
	id   string
	body map[string]any
	path string
}

// idTaggedSeq normalizes the two legal encodings of id-keyed blocks. Map
// form iterates in sorted key order for determinism; a shorthand scalar
// entry ("inp: string") becomes {type: string}.
func idTaggedSeq(raw any, path string) ([]idTagged, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]idTagged, 0, len(v))
		for i, e := range v {
			entryPath := fmt.Sprintf("%s[%d]", path, i)
			m, ok := e.(map[string]any)
			if !ok {
				return nil, cwl.NewParseError(entryPath, "expected a map, got %T", e)
			}
			id, ok := m["id"].(string)
			if !ok {
				if id, ok = m["name"].(string); !ok {
					return nil, cwl.NewParseError(entryPath, "entry missing id")
				}
			}
			body := make(map[string]any, len(m))
			for k, val := range m {
				if k == "id" || k == "name" {
					continue
				}
				body[k] = val
			}
			out = append(out, idTagged{id: strings.TrimPrefix(id, "#"), body: body, path: entryPath})
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]idTagged, 0, len(keys))
		for _, k := range keys {
			entryPath := join(path, k)
			switch body := v[k].(type) {
			case map[string]any:
				out = append(out, idTagged{id: k, body: body, path: entryPath})
			case string:
				// Shorthand: "id: <type>".
				out = append(out, idTagged{id: k, body: map[string]any{"type": body}, path: entryPath})
			case []any:
				out = append(out, idTagged{id: k, body: map[string]any{"type": body}, path: entryPath})
			default:
				return nil, cwl.NewParseError(entryPath, "expected a map or type shorthand, got %T", v[k])
			}
		}
		return out, nil
	default:
		return nil, cwl.NewParseError(path, "expected a map or sequence, got %T", raw)
	}
}

var inputFields = fieldSet(
	"type", "doc", "label", "default", "inputBinding", "secondaryFiles",
	"format", "streamable", "loadContents", "loadListing",
)

func (l *Loader) loadInputs(raw any, path string) ([]cwl.InputParameter, error) {
	entries, err := idTaggedSeq(raw, path)
	if err != nil {
		return nil, err
	}
	params := make([]cwl.InputParameter, 0, len(entries))
	for _, entry := range entries {
		if _, err := checkFields(entry.body, inputFields, entry.path); err != nil {
			return nil, err
		}
		p := cwl.InputParameter{
			ID:         entry.id,
			Doc:        docField(entry.body),
			Label:      stringField(entry.body, "label"),
			Default:    entry.body["default"],
			Streamable: boolField(entry.body, "streamable"),
		}
		p.Type, err = l.loadType(entry.body["type"], join(entry.path, "type"))
		if err != nil {
			return nil, err
		}
		if ib, ok := entry.body["inputBinding"].(map[string]any); ok {
			b, err := l.loadCommandLineBinding(ib, join(entry.path, "inputBinding"))
			if err != nil {
				return nil, err
			}
			p.InputBinding = b
			p.LoadContents = p.LoadContents || b.LoadContents
		}
		if p.SecondaryFiles, err = loadSecondaryFiles(entry.body["secondaryFiles"], join(entry.path, "secondaryFiles")); err != nil {
			return nil, err
		}
		if p.Format, err = exprSeq(entry.body["format"], join(entry.path, "format")); err != nil {
			return nil, err
		}
		p.LoadContents = p.LoadContents || boolField(entry.body, "loadContents")
		params = append(params, p)
	}
	return params, nil
}

var outputFields = fieldSet(
	"type", "doc", "label", "outputBinding", "secondaryFiles",
	"format", "streamable", "outputSource",
)

func (l *Loader) loadOutputs(raw any, path string) ([]cwl.OutputParameter, error) {
	entries, err := idTaggedSeq(raw, path)
	if err != nil {
		return nil, err
	}
	params := make([]cwl.OutputParameter, 0, len(entries))
	for _, entry := range entries {
		if _, err := checkFields(entry.body, outputFields, entry.path); err != nil {
			return nil, err
		}
		p := cwl.OutputParameter{
			ID:         entry.id,
			Doc:        docField(entry.body),
			Label:      stringField(entry.body, "label"),
			Streamable: boolField(entry.body, "streamable"),
		}
		p.Type, err = l.loadType(entry.body["type"], join(entry.path, "type"))
		if err != nil {
			return nil, err
		}
		if ob, ok := entry.body["outputBinding"].(map[string]any); ok {
			b, err := loadOutputBinding(ob, join(entry.path, "outputBinding"))
			if err != nil {
				return nil, err
			}
			p.OutputBinding = b
		}
		if p.SecondaryFiles, err = loadSecondaryFiles(entry.body["secondaryFiles"], join(entry.path, "secondaryFiles")); err != nil {
			return nil, err
		}
		if p.Format, err = exprSeq(entry.body["format"], join(entry.path, "format")); err != nil {
			return nil, err
		}
		if src, ok := entry.body["outputSource"]; ok {
			if p.OutputSource, err = stringSeq(src, join(entry.path, "outputSource")); err != nil {
				return nil, err
			}
		}
		params = append(params, p)
	}
	return params, nil
}
