package cwl

// Requirement is the closed set of document feature flags. Entries under
// "requirements" are mandatory; the same entries under "hints" are best
// effort. Loading rejects unknown requirement classes but keeps unknown
// hints as UnknownRequirement.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#Requirements_and_hints
type Requirement interface {
	// Class is the CWL requirement class tag, e.g. "DockerRequirement".
	Class() string

	// Save re-serializes the requirement to its document tree form.
	Save() any
}

// DockerRequirement requests container execution.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#DockerRequirement
type DockerRequirement struct {
	DockerPull            string
	DockerLoad            string
	DockerFile            string
	DockerImport          string
	DockerImageID         string
	DockerOutputDirectory string
}

// Class implements Requirement.
func (*DockerRequirement) Class() string { return "DockerRequirement" }

// Save implements Requirement.
func (r *DockerRequirement) Save() any {
	m := map[string]any{"class": r.Class()}
	setIf(m, "dockerPull", r.DockerPull)
	setIf(m, "dockerLoad", r.DockerLoad)
	setIf(m, "dockerFile", r.DockerFile)
	setIf(m, "dockerImport", r.DockerImport)
	setIf(m, "dockerImageId", r.DockerImageID)
	setIf(m, "dockerOutputDirectory", r.DockerOutputDirectory)
	return m
}

// Image returns the image reference to run: the explicit image id when
// present, the pull spec otherwise.
func (r *DockerRequirement) Image() string {
	if r.DockerImageID != "" {
		return r.DockerImageID
	}
	return r.DockerPull
}

// InlineJavascriptRequirement enables the ECMAScript expression flavor.
type InlineJavascriptRequirement struct {
	// ExpressionLib is JavaScript code loaded before every evaluation.
	ExpressionLib []string
}

// Class implements Requirement.
func (*InlineJavascriptRequirement) Class() string { return "InlineJavascriptRequirement" }

// Save implements Requirement.
func (r *InlineJavascriptRequirement) Save() any {
	m := map[string]any{"class": r.Class()}
	if len(r.ExpressionLib) > 0 {
		lib := make([]any, len(r.ExpressionLib))
		for i, s := range r.ExpressionLib {
			lib[i] = s
		}
		m["expressionLib"] = lib
	}
	return m
}

// SchemaDefRequirement declares named types referenced by parameters.
type SchemaDefRequirement struct {
	Types []SchemaType
}

// Class implements Requirement.
func (*SchemaDefRequirement) Class() string { return "SchemaDefRequirement" }

// Save implements Requirement.
func (r *SchemaDefRequirement) Save() any {
	types := make([]any, len(r.Types))
	for i, t := range r.Types {
		types[i] = t.Save()
	}
	return map[string]any{"class": r.Class(), "types": types}
}

// ResourceRequirement declares compute resource bounds. Each bound may be a
// number or an expression; nil means undeclared.
type ResourceRequirement struct {
	CoresMin any
	CoresMax any
	RAMMin   any
	RAMMax   any

	TmpdirMin any
	TmpdirMax any
	OutdirMin any
	OutdirMax any
}

// Class implements Requirement.
func (*ResourceRequirement) Class() string { return "ResourceRequirement" }

// Save implements Requirement.
func (r *ResourceRequirement) Save() any {
	m := map[string]any{"class": r.Class()}
	setIfAny(m, "coresMin", r.CoresMin)
	setIfAny(m, "coresMax", r.CoresMax)
	setIfAny(m, "ramMin", r.RAMMin)
	setIfAny(m, "ramMax", r.RAMMax)
	setIfAny(m, "tmpdirMin", r.TmpdirMin)
	setIfAny(m, "tmpdirMax", r.TmpdirMax)
	setIfAny(m, "outdirMin", r.OutdirMin)
	setIfAny(m, "outdirMax", r.OutdirMax)
	return m
}

// InitialWorkDirRequirement stages files into the working directory.
type InitialWorkDirRequirement struct {
	// Listing entries are Dirent values, File/Directory literals
	// (map[string]any), or expressions.
	Listing []any
}

// Class implements Requirement.
func (*InitialWorkDirRequirement) Class() string { return "InitialWorkDirRequirement" }

// Save implements Requirement.
func (r *InitialWorkDirRequirement) Save() any {
	listing := make([]any, len(r.Listing))
	for i, e := range r.Listing {
		if d, ok := e.(Dirent); ok {
			dm := map[string]any{"entry": d.Entry}
			if d.Entryname != "" {
				dm["entryname"] = string(d.Entryname)
			}
			if d.Writable {
				dm["writable"] = true
			}
			listing[i] = dm
			continue
		}
		listing[i] = e
	}
	return map[string]any{"class": r.Class(), "listing": listing}
}

// EnvVarRequirement sets environment variables for the tool process.
type EnvVarRequirement struct {
	EnvDef []EnvironmentDef
}

// Class implements Requirement.
func (*EnvVarRequirement) Class() string { return "EnvVarRequirement" }

// Save implements Requirement.
func (r *EnvVarRequirement) Save() any {
	defs := make([]any, len(r.EnvDef))
	for i, d := range r.EnvDef {
		defs[i] = map[string]any{"envName": d.EnvName, "envValue": string(d.EnvValue)}
	}
	return map[string]any{"class": r.Class(), "envDef": defs}
}

// ShellCommandRequirement enables shell interpretation of the command line.
type ShellCommandRequirement struct{}

// Class implements Requirement.
func (*ShellCommandRequirement) Class() string { return "ShellCommandRequirement" }

// Save implements Requirement.
func (r *ShellCommandRequirement) Save() any { return map[string]any{"class": r.Class()} }

// SubworkflowFeatureRequirement enables nested workflows.
type SubworkflowFeatureRequirement struct{}

// Class implements Requirement.
func (*SubworkflowFeatureRequirement) Class() string { return "SubworkflowFeatureRequirement" }

// Save implements Requirement.
func (r *SubworkflowFeatureRequirement) Save() any { return map[string]any{"class": r.Class()} }

// ScatterFeatureRequirement enables scatter on workflow steps.
type ScatterFeatureRequirement struct{}

// Class implements Requirement.
func (*ScatterFeatureRequirement) Class() string { return "ScatterFeatureRequirement" }

// Save implements Requirement.
func (r *ScatterFeatureRequirement) Save() any { return map[string]any{"class": r.Class()} }

// MultipleInputFeatureRequirement enables multi-source step inputs.
type MultipleInputFeatureRequirement struct{}

// Class implements Requirement.
func (*MultipleInputFeatureRequirement) Class() string { return "MultipleInputFeatureRequirement" }

// Save implements Requirement.
func (r *MultipleInputFeatureRequirement) Save() any { return map[string]any{"class": r.Class()} }

// StepInputExpressionRequirement enables valueFrom on step inputs.
type StepInputExpressionRequirement struct{}

// Class implements Requirement.
func (*StepInputExpressionRequirement) Class() string { return "StepInputExpressionRequirement" }

// Save implements Requirement.
func (r *StepInputExpressionRequirement) Save() any { return map[string]any{"class": r.Class()} }

// UnknownRequirement preserves a hint whose class this model does not know.
// Under "requirements" an unknown class is a ParseError instead.
type UnknownRequirement struct {
	ClassName string
	Body      map[string]any
}

// Class implements Requirement.
func (r *UnknownRequirement) Class() string { return r.ClassName }

// Save implements Requirement.
func (r *UnknownRequirement) Save() any {
	m := map[string]any{"class": r.ClassName}
	for k, v := range r.Body {
		m[k] = v
	}
	return m
}

// ReqList is an ordered requirement list with class lookup.
type ReqList []Requirement

// Find returns the requirement with the given class, or nil.
func (l ReqList) Find(class string) Requirement {
	for _, r := range l {
		if r.Class() == class {
			return r
		}
	}
	return nil
}

// Save re-serializes the list to its document tree form.
func (l ReqList) Save() any {
	out := make([]any, len(l))
	for i, r := range l {
		out[i] = r.Save()
	}
	return out
}

func setIf(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func setIfAny(m map[string]any, key string, val any) {
	if val != nil {
		m[key] = val
	}
}
