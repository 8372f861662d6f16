// Package cmdsynth turns a CommandLineTool plus bound inputs into the
// command line it would execute. Arguments and input bindings are flattened
// into one sortable list, ordered by the CWL position/tie-break rule, and
// rendered per declared type. Uninstantiated inputs render as symbolic
// placeholders so a tool can be inspected without a job.
package cmdsynth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/cwlinspect/internal/docker"
	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/pkg/cwl"
)

// Synthesizer renders command lines for one tool.
type Synthesizer struct {
	tool *cwl.CommandLineTool
	eval *evaluator.Evaluator
}

func New(tool *cwl.CommandLineTool) *Synthesizer {
	return &Synthesizer{tool: tool, eval: evaluator.New(tool.InlineJavascript())}
}

// token is one argv word plus whether shell rendering may quote it.
type token struct {
	text  string
	quote bool
}

// binding is a sortable unit: one arguments entry or one bound input.
type binding struct {
	pos    int
	intKey int
	strKey string
	useInt bool
	clb    *cwl.CommandLineBinding
	value  cwl.Value
	typ    cwl.SchemaType
	isArg  bool
}

// Synthesize renders the full command string: container prefix, base
// command, sorted bindings, redirections, and shell wrapping.
func (s *Synthesizer) Synthesize(job map[string]cwl.Value, rt *cwl.RuntimeContext) (string, error) {
	inv, inputs, err := docker.Plan(s.tool, rt, job)
	if err != nil {
		return "", err
	}
	ctx := evaluator.NewContext(inputs, rt)

	tokens, err := s.commandTokens(ctx)
	if err != nil {
		return "", err
	}
	redir, err := s.redirections(ctx)
	if err != nil {
		return "", err
	}
	envs, err := s.envDefs(ctx)
	if err != nil {
		return "", err
	}

	cmd := renderTokens(tokens) + redir
	shellR, _ := s.tool.Requirement("ShellCommandRequirement")
	shellReq := shellR != nil

	switch {
	case inv != nil:
		// Inside a container the definitions ride on docker's -e flags.
		for _, e := range envs {
			inv.Env[e.name] = e.value
		}
		if shellReq {
			return strings.Join(inv.Args(), " ") + " /bin/sh -c " + singleQuote(cmd), nil
		}
		return strings.Join(inv.Args(), " ") + " " + cmd, nil
	default:
		if len(envs) > 0 {
			cmd = envWrap(envs) + " " + cmd
		}
		if rt != nil && rt.OutDir != "" {
			cmd = "cd " + shQuote(rt.OutDir) + " && " + cmd
		}
		return "/bin/sh -c " + singleQuote(cmd), nil
	}
}

// envAssign is one evaluated EnvVarRequirement definition.
type envAssign struct {
	name  string
	value string
}

// envDefs evaluates the tool's EnvVarRequirement definitions against the
// binding context, in declared order.
func (s *Synthesizer) envDefs(ctx *evaluator.Context) ([]envAssign, error) {
	r, _ := s.tool.Requirement("EnvVarRequirement")
	evr, ok := r.(*cwl.EnvVarRequirement)
	if !ok {
		return nil, nil
	}
	envs := make([]envAssign, 0, len(evr.EnvDef))
	for _, d := range evr.EnvDef {
		v, err := s.eval.EvalString(d.EnvValue, ctx)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", d.EnvName, err)
		}
		envs = append(envs, envAssign{name: d.EnvName, value: v})
	}
	return envs, nil
}

// envWrap renders env(1) prefixing for the containerless shell form.
func envWrap(envs []envAssign) string {
	parts := make([]string, 0, len(envs)+1)
	parts = append(parts, "env")
	for _, e := range envs {
		parts = append(parts, shQuote(e.name+"="+e.value))
	}
	return strings.Join(parts, " ")
}

// Parts renders the bare argv (base command plus sorted bindings) with no
// container prefix, quoting, or redirections.
func (s *Synthesizer) Parts(job map[string]cwl.Value, rt *cwl.RuntimeContext) ([]string, error) {
	ctx := evaluator.NewContext(job, rt)
	tokens, err := s.commandTokens(ctx)
	if err != nil {
		return nil, err
	}
	argv := make([]string, len(tokens))
	for i, t := range tokens {
		argv[i] = t.text
	}
	return argv, nil
}

func (s *Synthesizer) commandTokens(ctx *evaluator.Context) ([]token, error) {
	var tokens []token
	for _, base := range s.tool.BaseCommand {
		tokens = append(tokens, token{text: base, quote: true})
	}
	bindings := s.collect(ctx)
	sortBindings(bindings)
	for _, b := range bindings {
		ts, err := s.render(b, ctx)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, ts...)
	}
	return tokens, nil
}

// collect flattens arguments and bound inputs into sortable bindings. The
// tiebreak is the arguments index for arguments and the input id for
// inputs.
func (s *Synthesizer) collect(ctx *evaluator.Context) []binding {
	var out []binding
	for i := range s.tool.Arguments {
		arg := &s.tool.Arguments[i]
		out = append(out, binding{
			pos:    arg.Position,
			intKey: i,
			useInt: true,
			clb:    arg,
			isArg:  true,
		})
	}
	for i := range s.tool.Inputs {
		p := &s.tool.Inputs[i]
		clb := p.InputBinding
		if clb == nil && !typeBinds(p.Type) {
			continue
		}
		// An array with no binding of its own whose items bind deeper
		// is traversed element-wise, the array index as tiebreak.
		if clb == nil {
			if at, ok := p.Type.(*cwl.ArrayType); ok && at.InputBinding == nil {
				if av, ok := arrayOf(ctx.Inputs[p.ID]); ok {
					for j, item := range av.Items {
						out = append(out, binding{
							intKey: j,
							useInt: true,
							value:  item,
							typ:    at.Items,
						})
					}
					continue
				}
			}
		}
		out = append(out, binding{
			pos:    bindingPosition(clb),
			strKey: p.ID,
			clb:    clb,
			value:  ctx.Inputs[p.ID],
			typ:    p.Type,
		})
	}
	return out
}

func arrayOf(v cwl.Value) (cwl.ArrayValue, bool) {
	switch x := v.(type) {
	case cwl.ArrayValue:
		return x, true
	case cwl.UnionValue:
		return arrayOf(x.Inner)
	}
	return cwl.ArrayValue{}, false
}

// typeBinds reports whether a schema carries its own command-line binding
// even when the parameter declares none.
func typeBinds(t cwl.SchemaType) bool {
	switch st := t.(type) {
	case *cwl.ArrayType:
		return st.InputBinding != nil || typeBinds(st.Items)
	case *cwl.EnumType:
		return st.InputBinding != nil
	case *cwl.RecordType:
		for _, f := range st.Fields {
			if f.InputBinding != nil || typeBinds(f.Type) {
				return true
			}
		}
		return false
	case *cwl.UnionType:
		for _, alt := range st.Alternatives {
			if typeBinds(alt) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func bindingPosition(clb *cwl.CommandLineBinding) int {
	if clb == nil {
		return 0
	}
	return clb.Position
}

// sortBindings orders ascending by position; at equal position integer
// tiebreaks come before string tiebreaks, same-kind tiebreaks in natural
// order.
func sortBindings(bs []binding) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.useInt != b.useInt {
			return a.useInt
		}
		if a.useInt {
			return a.intKey < b.intKey
		}
		return a.strKey < b.strKey
	})
}

// render turns one binding into argv tokens.
func (s *Synthesizer) render(b binding, ctx *evaluator.Context) ([]token, error) {
	value := b.value
	typ := b.typ

	// valueFrom replaces the value, with self bound to the original.
	// Arguments always evaluate it; inputs skip it when the value is null.
	if b.clb != nil && b.clb.ValueFrom != "" {
		if b.isArg || !cwl.IsNull(value) {
			v, err := s.eval.Eval(b.clb.ValueFrom, ctx.WithSelf(value))
			if err != nil {
				return nil, fmt.Errorf("rendering %s: %w", b.describe(), err)
			}
			value = v
			typ = nil
		}
	}
	if value == nil {
		return nil, nil
	}
	return s.renderValue(value, typ, b.clb, ctx)
}

func (b binding) describe() string {
	if b.useInt {
		return fmt.Sprintf("arguments[%d]", b.intKey)
	}
	return "input " + b.strKey
}

func (s *Synthesizer) renderValue(v cwl.Value, t cwl.SchemaType, clb *cwl.CommandLineBinding, ctx *evaluator.Context) ([]token, error) {
	if u, ok := v.(cwl.UnionValue); ok {
		return s.renderValue(u.Inner, u.Chosen, clb, ctx)
	}
	if _, ok := t.(*cwl.UnionType); ok {
		// The binder records the chosen alternative on the value; a
		// bare union type here means the value carries no alternative
		// and renders from its own shape.
		t = nil
	}

	switch x := v.(type) {
	case cwl.Uninstantiated:
		return applyPrefix(clb, x.Placeholder(), false), nil
	case cwl.Invalid:
		return nil, &cwl.EvaluationError{Expr: x.Name, Msg: fmt.Sprintf("input %q is not declared by the tool", x.Name)}
	case cwl.Scalar:
		return s.renderScalar(x, t, clb)
	case cwl.FileValue:
		return applyPrefix(clb, pathOf(x.Path, x.Location), quoted(clb)), nil
	case cwl.DirectoryValue:
		return applyPrefix(clb, pathOf(x.Path, x.Location), quoted(clb)), nil
	case cwl.ArrayValue:
		return s.renderArray(x, t, clb, ctx)
	case cwl.RecordValue:
		return s.renderRecord(x, t, clb, ctx)
	default:
		return applyPrefix(clb, evaluator.Stringify(v.JSON()), quoted(clb)), nil
	}
}

func (s *Synthesizer) renderScalar(x cwl.Scalar, t cwl.SchemaType, clb *cwl.CommandLineBinding) ([]token, error) {
	if x.IsNull() {
		return nil, nil
	}
	if b, ok := x.V.(bool); ok {
		if !b || clb == nil || clb.Prefix == "" {
			return nil, nil
		}
		return []token{{text: clb.Prefix}}, nil
	}
	text := evaluator.Stringify(x.V)
	// An enum schema may carry its own binding, applied to the symbol
	// before the parameter's binding.
	if et, ok := t.(*cwl.EnumType); ok && et.InputBinding != nil {
		inner := applyPrefix(et.InputBinding, text, quoted(et.InputBinding))
		parts := make([]string, len(inner))
		for i, tk := range inner {
			parts[i] = tk.text
		}
		text = strings.Join(parts, " ")
	}
	_, isString := x.V.(string)
	return applyPrefix(clb, text, isString && quoted(clb)), nil
}

// renderArray joins the items with itemSeparator (default one space) and
// applies the array binding's prefix rule to the joined block. When the
// array schema carries its own per-item inputBinding, each item is rendered
// through it first, so an item prefix repeats per element. An empty array
// renders as nothing.
func (s *Synthesizer) renderArray(x cwl.ArrayValue, t cwl.SchemaType, clb *cwl.CommandLineBinding, ctx *evaluator.Context) ([]token, error) {
	if len(x.Items) == 0 {
		return nil, nil
	}
	sep := " "
	if clb != nil && clb.ItemSeparator != "" {
		sep = string(clb.ItemSeparator)
	}
	at, _ := t.(*cwl.ArrayType)
	var parts []string
	for _, item := range x.Items {
		if at != nil && at.InputBinding != nil {
			ts, err := s.renderValue(item, at.Items, at.InputBinding, ctx)
			if err != nil {
				return nil, err
			}
			for _, tk := range ts {
				parts = append(parts, tk.text)
			}
			continue
		}
		parts = append(parts, itemText(item))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return applyPrefix(clb, strings.Join(parts, sep), quoted(clb)), nil
}

// renderRecord renders each field per its own binding, space-joined into
// one block under the record binding's prefix.
func (s *Synthesizer) renderRecord(x cwl.RecordValue, t cwl.SchemaType, clb *cwl.CommandLineBinding, ctx *evaluator.Context) ([]token, error) {
	var fields []cwl.Field
	if rt, ok := t.(*cwl.RecordType); ok {
		fields = rt.Fields
	} else {
		for _, name := range x.FieldNames() {
			fields = append(fields, cwl.Field{Name: name})
		}
	}
	var parts []string
	for _, f := range fields {
		fv, ok := x.Fields[f.Name]
		if !ok || cwl.IsNull(fv) {
			continue
		}
		ts, err := s.renderValue(fv, f.Type, f.InputBinding, ctx)
		if err != nil {
			return nil, err
		}
		for _, tk := range ts {
			parts = append(parts, tk.text)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return applyPrefix(clb, strings.Join(parts, " "), quoted(clb)), nil
}

func itemText(v cwl.Value) string {
	switch x := v.(type) {
	case cwl.FileValue:
		return pathOf(x.Path, x.Location)
	case cwl.DirectoryValue:
		return pathOf(x.Path, x.Location)
	case cwl.Uninstantiated:
		return x.Placeholder()
	case cwl.UnionValue:
		return itemText(x.Inner)
	default:
		return evaluator.Stringify(v.JSON())
	}
}

func pathOf(path, location string) string {
	if path != "" {
		return path
	}
	return location
}

// applyPrefix attaches a binding's prefix: a separate token when separate
// is true (the default), concatenated otherwise.
func applyPrefix(clb *cwl.CommandLineBinding, text string, quote bool) []token {
	if clb == nil || clb.Prefix == "" {
		return []token{{text: text, quote: quote}}
	}
	if clb.Separated() {
		return []token{{text: clb.Prefix}, {text: text, quote: quote}}
	}
	return []token{{text: clb.Prefix + text, quote: quote}}
}

func quoted(clb *cwl.CommandLineBinding) bool {
	return clb == nil || clb.Quoted()
}

// redirections renders stdin/stdout/stderr clauses, evaluating expression
// forms against the same context as the bindings.
func (s *Synthesizer) redirections(ctx *evaluator.Context) (string, error) {
	var b strings.Builder
	if s.tool.Stdin != "" {
		path, err := s.eval.EvalString(s.tool.Stdin, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(" < " + shQuote(path))
	}
	stdout, err := s.stdoutTarget(ctx)
	if err != nil {
		return "", err
	}
	if stdout != "" {
		b.WriteString(" > " + shQuote(stdout))
	}
	stderr, err := s.stderrTarget(ctx)
	if err != nil {
		return "", err
	}
	if stderr != "" {
		b.WriteString(" 2> " + shQuote(stderr))
	}
	return b.String(), nil
}

// stdoutTarget resolves the stdout capture name: the declared stdout field,
// or a generated name when an output declares type stdout without one.
func (s *Synthesizer) stdoutTarget(ctx *evaluator.Context) (string, error) {
	if s.tool.Stdout != "" {
		return s.eval.EvalString(s.tool.Stdout, ctx)
	}
	if outputUsesStream(s.tool, cwl.Stdout) {
		return generatedStreamName(ctx.Runtime, "stdout"), nil
	}
	return "", nil
}

func (s *Synthesizer) stderrTarget(ctx *evaluator.Context) (string, error) {
	if s.tool.Stderr != "" {
		return s.eval.EvalString(s.tool.Stderr, ctx)
	}
	if outputUsesStream(s.tool, cwl.Stderr) {
		return generatedStreamName(ctx.Runtime, "stderr"), nil
	}
	return "", nil
}

func outputUsesStream(tool *cwl.CommandLineTool, stream cwl.Primitive) bool {
	for _, out := range tool.Outputs {
		if p, ok := out.Type.(cwl.Primitive); ok && p == stream {
			return true
		}
	}
	return false
}

// generatedStreamName is deterministic per invocation so the output
// collector can find the capture file again.
func generatedStreamName(rt *cwl.RuntimeContext, stream string) string {
	if rt != nil && rt.InvocationID != "" {
		return rt.InvocationID + "." + stream
	}
	return "out." + stream
}

// StdoutName resolves the stdout capture filename for output collection.
func StdoutName(tool *cwl.CommandLineTool, eval *evaluator.Evaluator, ctx *evaluator.Context) (string, error) {
	s := &Synthesizer{tool: tool, eval: eval}
	return s.stdoutTarget(ctx)
}

// StderrName resolves the stderr capture filename for output collection.
func StderrName(tool *cwl.CommandLineTool, eval *evaluator.Evaluator, ctx *evaluator.Context) (string, error) {
	s := &Synthesizer{tool: tool, eval: eval}
	return s.stderrTarget(ctx)
}

// renderTokens joins tokens into shell text, quoting tokens that allow it.
func renderTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if t.quote {
			parts[i] = shQuote(t.text)
		} else {
			parts[i] = t.text
		}
	}
	return strings.Join(parts, " ")
}

// shQuote single-quotes text when it contains characters the shell would
// interpret; plain words pass through unchanged.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	if isPlainWord(s) {
		return s
	}
	return singleQuote(s)
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isPlainWord(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '_' || c == '-' || c == '.' || c == '/' || c == ':' ||
			c == '@' || c == '%' || c == '+' || c == '=' || c == ',':
		default:
			return false
		}
	}
	return true
}
