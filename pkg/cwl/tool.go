package cwl

// Node is a loaded CWL document entity. Nodes are immutable after loading
// and safe to share across goroutines; all evaluation produces new values
// instead of mutating the document.
type Node interface {
	// NodeClass is the CWL class of the node ("CommandLineTool",
	// "Workflow", "ExpressionTool").
	NodeClass() string

	// Save re-serializes the node to a document tree. Reloading the saved
	// tree yields an equal node, modulo normalized fields (a scalar
	// baseCommand saves as a one-element sequence).
	Save() any
}

// CommandLineTool is a typed CWL CommandLineTool.
// See https://www.commonwl.org/v1.2/CommandLineTool.html
type CommandLineTool struct {
	ID         string
	CWLVersion string
	Doc        string
	Label      string

	// BaseCommand is always a sequence; a scalar in the document is
	// normalized to one element.
	BaseCommand []string

	Inputs  []InputParameter
	Outputs []OutputParameter

	Requirements ReqList
	Hints        ReqList

	// Arguments are bindings not tied to any input parameter. An entry
	// that was a bare string/expression in the document loads as a
	// CommandLineBinding whose ValueFrom carries it.
	Arguments []CommandLineBinding

	Stdin  Expression
	Stdout Expression
	Stderr Expression

	SuccessCodes       []int
	TemporaryFailCodes []int
	PermanentFailCodes []int

	// Extensions keeps dollar-prefixed top-level fields verbatim.
	Extensions map[string]any
}

// NodeClass implements Node.
func (*CommandLineTool) NodeClass() string { return "CommandLineTool" }

// Input returns the input parameter with the given id, or nil.
func (t *CommandLineTool) Input(id string) *InputParameter {
	for i := range t.Inputs {
		if t.Inputs[i].ID == id {
			return &t.Inputs[i]
		}
	}
	return nil
}

// Output returns the output parameter with the given id, or nil.
func (t *CommandLineTool) Output(id string) *OutputParameter {
	for i := range t.Outputs {
		if t.Outputs[i].ID == id {
			return &t.Outputs[i]
		}
	}
	return nil
}

// Requirement resolves a class from requirements first, then hints.
// The second result reports whether the match was mandatory (a requirement
// rather than a hint).
func (t *CommandLineTool) Requirement(class string) (Requirement, bool) {
	if r := t.Requirements.Find(class); r != nil {
		return r, true
	}
	return t.Hints.Find(class), false
}

// InlineJavascript returns the InlineJavascriptRequirement if declared in
// requirements or hints.
func (t *CommandLineTool) InlineJavascript() *InlineJavascriptRequirement {
	r, _ := t.Requirement("InlineJavascriptRequirement")
	if r == nil {
		return nil
	}
	ijr, _ := r.(*InlineJavascriptRequirement)
	return ijr
}

// Save implements Node.
func (t *CommandLineTool) Save() any {
	m := map[string]any{
		"class":   t.NodeClass(),
		"inputs":  saveInputs(t.Inputs),
		"outputs": saveOutputs(t.Outputs),
	}
	setIf(m, "id", t.ID)
	setIf(m, "cwlVersion", t.CWLVersion)
	setIf(m, "doc", t.Doc)
	setIf(m, "label", t.Label)
	if len(t.BaseCommand) > 0 {
		bc := make([]any, len(t.BaseCommand))
		for i, s := range t.BaseCommand {
			bc[i] = s
		}
		m["baseCommand"] = bc
	}
	if len(t.Requirements) > 0 {
		m["requirements"] = t.Requirements.Save()
	}
	if len(t.Hints) > 0 {
		m["hints"] = t.Hints.Save()
	}
	if len(t.Arguments) > 0 {
		args := make([]any, len(t.Arguments))
		for i := range t.Arguments {
			args[i] = t.Arguments[i].Save()
		}
		m["arguments"] = args
	}
	setIf(m, "stdin", string(t.Stdin))
	setIf(m, "stdout", string(t.Stdout))
	setIf(m, "stderr", string(t.Stderr))
	saveCodes(m, "successCodes", t.SuccessCodes)
	saveCodes(m, "temporaryFailCodes", t.TemporaryFailCodes)
	saveCodes(m, "permanentFailCodes", t.PermanentFailCodes)
	for k, v := range t.Extensions {
		m[k] = v
	}
	return m
}

// ExpressionTool is a typed CWL ExpressionTool.
// See https://www.commonwl.org/v1.2/Workflow.html#ExpressionTool
type ExpressionTool struct {
	ID         string
	CWLVersion string
	Doc        string
	Label      string

	Inputs  []InputParameter
	Outputs []OutputParameter

	Requirements ReqList
	Hints        ReqList

	Expression Expression

	Extensions map[string]any
}

// NodeClass implements Node.
func (*ExpressionTool) NodeClass() string { return "ExpressionTool" }

// Save implements Node.
func (t *ExpressionTool) Save() any {
	m := map[string]any{
		"class":      t.NodeClass(),
		"inputs":     saveInputs(t.Inputs),
		"outputs":    saveOutputs(t.Outputs),
		"expression": string(t.Expression),
	}
	setIf(m, "id", t.ID)
	setIf(m, "cwlVersion", t.CWLVersion)
	setIf(m, "doc", t.Doc)
	setIf(m, "label", t.Label)
	if len(t.Requirements) > 0 {
		m["requirements"] = t.Requirements.Save()
	}
	if len(t.Hints) > 0 {
		m["hints"] = t.Hints.Save()
	}
	for k, v := range t.Extensions {
		m[k] = v
	}
	return m
}

// InputParameter is a declared tool or workflow input.
type InputParameter struct {
	ID    string
	Doc   string
	Label string

	Type    SchemaType
	Default any

	InputBinding *CommandLineBinding

	SecondaryFiles []SecondaryFileSchema

	// Format holds one or more format IRIs or expressions; a scalar in
	// the document normalizes to one element.
	Format []Expression

	Streamable   bool
	LoadContents bool
}

// Optional reports whether the input may be omitted from a job: its type
// admits null or a default is declared.
func (p *InputParameter) Optional() bool {
	return p.Default != nil || IsNullable(p.Type)
}

func (p *InputParameter) save() map[string]any {
	m := map[string]any{
		"id":   p.ID,
		"type": p.Type.Save(),
	}
	setIf(m, "doc", p.Doc)
	setIf(m, "label", p.Label)
	if p.Default != nil {
		m["default"] = p.Default
	}
	if p.InputBinding != nil {
		m["inputBinding"] = p.InputBinding.Save()
	}
	if len(p.SecondaryFiles) > 0 {
		sf := make([]any, len(p.SecondaryFiles))
		for i, s := range p.SecondaryFiles {
			sf[i] = s.Save()
		}
		m["secondaryFiles"] = sf
	}
	if len(p.Format) > 0 {
		fm := make([]any, len(p.Format))
		for i, f := range p.Format {
			fm[i] = string(f)
		}
		m["format"] = fm
	}
	if p.Streamable {
		m["streamable"] = true
	}
	if p.LoadContents {
		m["loadContents"] = true
	}
	return m
}

// OutputParameter is a declared tool or workflow output.
type OutputParameter struct {
	ID    string
	Doc   string
	Label string

	Type SchemaType

	OutputBinding  *OutputBinding
	SecondaryFiles []SecondaryFileSchema
	Format         []Expression
	Streamable     bool

	// OutputSource names the step outputs feeding a workflow output.
	OutputSource []string
}

func (p *OutputParameter) save() map[string]any {
	m := map[string]any{
		"id":   p.ID,
		"type": p.Type.Save(),
	}
	setIf(m, "doc", p.Doc)
	setIf(m, "label", p.Label)
	if p.OutputBinding != nil {
		m["outputBinding"] = p.OutputBinding.Save()
	}
	if len(p.SecondaryFiles) > 0 {
		sf := make([]any, len(p.SecondaryFiles))
		for i, s := range p.SecondaryFiles {
			sf[i] = s.Save()
		}
		m["secondaryFiles"] = sf
	}
	if len(p.Format) > 0 {
		fm := make([]any, len(p.Format))
		for i, f := range p.Format {
			fm[i] = string(f)
		}
		m["format"] = fm
	}
	if p.Streamable {
		m["streamable"] = true
	}
	if len(p.OutputSource) > 0 {
		src := make([]any, len(p.OutputSource))
		for i, s := range p.OutputSource {
			src[i] = s
		}
		m["outputSource"] = src
	}
	return m
}

func saveInputs(params []InputParameter) []any {
	out := make([]any, len(params))
	for i := range params {
		out[i] = params[i].save()
	}
	return out
}

func saveOutputs(params []OutputParameter) []any {
	out := make([]any, len(params))
	for i := range params {
		out[i] = params[i].save()
	}
	return out
}

func saveCodes(m map[string]any, key string, codes []int) {
	if len(codes) == 0 {
		return
	}
	out := make([]any, len(codes))
	for i, c := range codes {
		out[i] = c
	}
	m[key] = out
}
