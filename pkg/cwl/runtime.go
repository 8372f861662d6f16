package cwl

import (
	"github.com/google/uuid"
)

// RuntimeContext is the runtime object visible to expressions and consumed
// read-only by the command synthesizer and output collector.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#Runtime_environment
type RuntimeContext struct {
	// OutDir is the designated output directory.
	OutDir string

	// TmpDir is the designated temporary directory.
	TmpDir string

	// Cores is the number of CPU cores allocated.
	Cores int

	// RAM is the allocated RAM in mebibytes.
	RAM int64

	// DocDir lists directories searched when resolving relative File and
	// Directory locations, the document's directory first.
	DocDir []string

	// InvocationID isolates container-side paths between concurrent
	// synthesis calls against the same document.
	InvocationID string
}

// NewRuntimeContext returns a RuntimeContext with defaults and a fresh
// invocation id.
func NewRuntimeContext(outDir, tmpDir string) *RuntimeContext {
	return &RuntimeContext{
		OutDir:       outDir,
		TmpDir:       tmpDir,
		Cores:        1,
		RAM:          1024,
		InvocationID: uuid.NewString(),
	}
}

// JSON projects the runtime object for expression evaluation.
func (r *RuntimeContext) JSON() map[string]any {
	return map[string]any{
		"outdir": r.OutDir,
		"tmpdir": r.TmpDir,
		"cores":  r.Cores,
		"ram":    r.RAM,
	}
}
