package cwl

// Workflow is a typed CWL Workflow. Only per-step command synthesis is
// supported; graph orchestration is out of scope.
// See https://www.commonwl.org/v1.2/Workflow.html
type Workflow struct {
	ID         string
	CWLVersion string
	Doc        string
	Label      string

	Inputs  []InputParameter
	Outputs []OutputParameter

	Requirements ReqList
	Hints        ReqList

	Steps []WorkflowStep

	Extensions map[string]any
}

// NodeClass implements Node.
func (*Workflow) NodeClass() string { return "Workflow" }

// Step returns the step with the given id, or nil.
func (w *Workflow) Step(id string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// Input returns the workflow input with the given id, or nil.
func (w *Workflow) Input(id string) *InputParameter {
	for i := range w.Inputs {
		if w.Inputs[i].ID == id {
			return &w.Inputs[i]
		}
	}
	return nil
}

// InlineJavascript returns the InlineJavascriptRequirement if declared in
// requirements or hints.
func (w *Workflow) InlineJavascript() *InlineJavascriptRequirement {
	r := w.Requirements.Find("InlineJavascriptRequirement")
	if r == nil {
		r = w.Hints.Find("InlineJavascriptRequirement")
	}
	ijr, _ := r.(*InlineJavascriptRequirement)
	return ijr
}

// Save implements Node.
func (w *Workflow) Save() any {
	steps := make([]any, len(w.Steps))
	for i := range w.Steps {
		steps[i] = w.Steps[i].save()
	}
	m := map[string]any{
		"class":   w.NodeClass(),
		"inputs":  saveInputs(w.Inputs),
		"outputs": saveOutputs(w.Outputs),
		"steps":   steps,
	}
	setIf(m, "id", w.ID)
	setIf(m, "cwlVersion", w.CWLVersion)
	setIf(m, "doc", w.Doc)
	setIf(m, "label", w.Label)
	if len(w.Requirements) > 0 {
		m["requirements"] = w.Requirements.Save()
	}
	if len(w.Hints) > 0 {
		m["hints"] = w.Hints.Save()
	}
	for k, v := range w.Extensions {
		m[k] = v
	}
	return m
}

// WorkflowStep is one step of a Workflow.
type WorkflowStep struct {
	ID    string
	Doc   string
	Label string

	// Run is either a reference ("tool.cwl", "#fragment") or an embedded
	// process. Exactly one of RunRef/RunNode is set.
	RunRef  string
	RunNode Node

	In  []StepInput
	Out []string

	Requirements ReqList
	Hints        ReqList

	Scatter       []string
	ScatterMethod string
}

// StepInput wires one tool input to workflow sources.
type StepInput struct {
	ID      string
	Source  []string
	Default any

	// ValueFrom recomputes the value; requires
	// StepInputExpressionRequirement.
	ValueFrom Expression
}

func (s *WorkflowStep) save() map[string]any {
	in := make([]any, len(s.In))
	for i, si := range s.In {
		im := map[string]any{"id": si.ID}
		if len(si.Source) > 0 {
			src := make([]any, len(si.Source))
			for j, v := range si.Source {
				src[j] = v
			}
			im["source"] = src
		}
		if si.Default != nil {
			im["default"] = si.Default
		}
		if si.ValueFrom != "" {
			im["valueFrom"] = string(si.ValueFrom)
		}
		in[i] = im
	}
	out := make([]any, len(s.Out))
	for i, o := range s.Out {
		out[i] = o
	}
	m := map[string]any{
		"id":  s.ID,
		"in":  in,
		"out": out,
	}
	if s.RunNode != nil {
		m["run"] = s.RunNode.Save()
	} else {
		m["run"] = s.RunRef
	}
	setIf(m, "doc", s.Doc)
	setIf(m, "label", s.Label)
	if len(s.Requirements) > 0 {
		m["requirements"] = s.Requirements.Save()
	}
	if len(s.Hints) > 0 {
		m["hints"] = s.Hints.Save()
	}
	if len(s.Scatter) > 0 {
		sc := make([]any, len(s.Scatter))
		for i, v := range s.Scatter {
			sc[i] = v
		}
		m["scatter"] = sc
	}
	setIf(m, "scatterMethod", s.ScatterMethod)
	return m
}
