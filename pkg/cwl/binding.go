package cwl

// Expression is a raw string that may carry embedded CWL expressions in
// either flavor: parameter references "$(inputs.x)" or, under
// InlineJavascriptRequirement, ECMAScript "$(...)" / "${...}" forms.
// It is kept unparsed until evaluation.
type Expression string

// CommandLineBinding describes how a value becomes command-line text.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#CommandLineBinding
type CommandLineBinding struct {
	// Position determines the relative ordering on the command line.
	// Bindings with lower positions appear first. Defaults to 0.
	Position int

	// Prefix is prepended to the rendered value (e.g. "--input").
	Prefix string

	// Separate controls whether prefix and value are separate arguments.
	// nil means the default, true.
	Separate *bool

	// ItemSeparator joins array items into a single argument.
	ItemSeparator string

	// ValueFrom computes the value to bind instead of the input value.
	// For arguments it is the argument value itself.
	ValueFrom Expression

	// ShellQuote controls quoting of the rendered value under shell
	// wrapping. nil means the default, true.
	ShellQuote *bool

	// LoadContents loads the first 64 KiB of a File input into its
	// contents field before evaluation.
	LoadContents bool
}

// Separated reports the effective separate flag (default true).
func (b *CommandLineBinding) Separated() bool {
	return b == nil || b.Separate == nil || *b.Separate
}

// Quoted reports the effective shellQuote flag (default true).
func (b *CommandLineBinding) Quoted() bool {
	return b == nil || b.ShellQuote == nil || *b.ShellQuote
}

// Save re-serializes the binding to its document tree form.
func (b *CommandLineBinding) Save() any {
	// Position is always written so the normalized form shows the
	// effective ordering even when the document omitted it.
	m := map[string]any{"position": b.Position}
	if b.Prefix != "" {
		m["prefix"] = b.Prefix
	}
	if b.Separate != nil {
		m["separate"] = *b.Separate
	}
	if b.ItemSeparator != "" {
		m["itemSeparator"] = b.ItemSeparator
	}
	if b.ValueFrom != "" {
		m["valueFrom"] = string(b.ValueFrom)
	}
	if b.ShellQuote != nil {
		m["shellQuote"] = *b.ShellQuote
	}
	if b.LoadContents {
		m["loadContents"] = true
	}
	return m
}

// OutputBinding describes how a declared output is collected after the tool
// ran. See https://www.commonwl.org/v1.2/CommandLineTool.html#CommandOutputBinding
type OutputBinding struct {
	// Glob holds one or more patterns (each possibly an expression)
	// matched relative to the output directory. A scalar in the document
	// normalizes to a one-element slice.
	Glob []Expression

	// LoadContents reads the first 64 KiB of each matched file into the
	// file object's contents field.
	LoadContents bool

	// OutputEval transforms the collected files; self is bound to the
	// glob result.
	OutputEval Expression
}

// Save re-serializes the binding to its document tree form.
func (b *OutputBinding) Save() any {
	m := map[string]any{}
	if len(b.Glob) > 0 {
		globs := make([]any, len(b.Glob))
		for i, g := range b.Glob {
			globs[i] = string(g)
		}
		m["glob"] = globs
	}
	if b.LoadContents {
		m["loadContents"] = true
	}
	if b.OutputEval != "" {
		m["outputEval"] = string(b.OutputEval)
	}
	return m
}

// SecondaryFileSchema names auxiliary files implicitly associated with a
// primary File. A leading "^" in a suffix pattern strips one extension from
// the primary basename per caret.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#SecondaryFileSchema
type SecondaryFileSchema struct {
	Pattern Expression

	// Required may be a bool or an expression; nil means the CWL default
	// (required for inputs, optional for outputs).
	Required any
}

// Save re-serializes the schema to its document tree form.
func (s SecondaryFileSchema) Save() any {
	if s.Required == nil {
		return string(s.Pattern)
	}
	return map[string]any{
		"pattern":  string(s.Pattern),
		"required": s.Required,
	}
}

// EnvironmentDef defines one environment variable for EnvVarRequirement.
type EnvironmentDef struct {
	EnvName  string
	EnvValue Expression
}

// Dirent is one entry of an InitialWorkDirRequirement listing.
type Dirent struct {
	// Entryname names the staged file or directory; may be an expression.
	Entryname Expression

	// Entry is file content, a File/Directory literal, or an expression.
	Entry any

	// Writable stages a copy instead of a read-only link.
	Writable bool
}
