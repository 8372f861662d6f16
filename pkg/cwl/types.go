package cwl

import (
	"strings"
)

// SchemaType is the closed sum of CWL schema types. A document's "type"
// field always loads into exactly one variant; the shorthand forms "T?" and
// "T[]" normalize to UnionType and ArrayType respectively.
type SchemaType interface {
	// TypeName is the CWL name of the type, e.g. "string", "File[]",
	// "record". Used in diagnostics and inspection output.
	TypeName() string

	// Save re-serializes the type to its document tree form.
	Save() any
}

// Primitive CWL types.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#CWLType
type Primitive string

const (
	Null      Primitive = "null"
	Boolean   Primitive = "boolean"
	Int       Primitive = "int"
	Long      Primitive = "long"
	Float     Primitive = "float"
	Double    Primitive = "double"
	String    Primitive = "string"
	File      Primitive = "File"
	Directory Primitive = "Directory"
	Any       Primitive = "Any"

	// Stdout and Stderr are output-only shorthands that collect the
	// captured stream as a File.
	Stdout Primitive = "stdout"
	Stderr Primitive = "stderr"
)

// TypeName implements SchemaType.
func (p Primitive) TypeName() string { return string(p) }

// Save implements SchemaType.
func (p Primitive) Save() any { return string(p) }

// IsPrimitiveName reports whether s names a CWL primitive type.
func IsPrimitiveName(s string) bool {
	switch Primitive(s) {
	case Null, Boolean, Int, Long, Float, Double, String, File, Directory, Any, Stdout, Stderr:
		return true
	}
	return false
}

// ArrayType is a CWL array schema.
type ArrayType struct {
	Items SchemaType

	// InputBinding is the per-item binding declared on the array schema
	// itself, applied element-wise during command synthesis.
	InputBinding *CommandLineBinding
}

// TypeName implements SchemaType.
func (a *ArrayType) TypeName() string { return a.Items.TypeName() + "[]" }

// Save implements SchemaType.
func (a *ArrayType) Save() any {
	m := map[string]any{
		"type":  "array",
		"items": a.Items.Save(),
	}
	if a.InputBinding != nil {
		m["inputBinding"] = a.InputBinding.Save()
	}
	return m
}

// RecordType is a CWL record schema.
type RecordType struct {
	Name   string
	Fields []Field
}

// Field is one field of a record schema. For command inputs the field may
// carry its own inputBinding; for outputs its own outputBinding.
type Field struct {
	Name           string
	Type           SchemaType
	Doc            string
	Label          string
	InputBinding   *CommandLineBinding
	OutputBinding  *OutputBinding
	SecondaryFiles []SecondaryFileSchema
}

// TypeName implements SchemaType.
func (r *RecordType) TypeName() string {
	if r.Name != "" {
		return r.Name
	}
	return "record"
}

// Save implements SchemaType.
func (r *RecordType) Save() any {
	fields := make([]any, 0, len(r.Fields))
	for _, f := range r.Fields {
		fm := map[string]any{
			"name": f.Name,
			"type": f.Type.Save(),
		}
		if f.Doc != "" {
			fm["doc"] = f.Doc
		}
		if f.Label != "" {
			fm["label"] = f.Label
		}
		if f.InputBinding != nil {
			fm["inputBinding"] = f.InputBinding.Save()
		}
		if f.OutputBinding != nil {
			fm["outputBinding"] = f.OutputBinding.Save()
		}
		fields = append(fields, fm)
	}
	m := map[string]any{
		"type":   "record",
		"fields": fields,
	}
	if r.Name != "" {
		m["name"] = r.Name
	}
	return m
}

// FieldByName returns the field with the given name, or nil.
func (r *RecordType) FieldByName(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// EnumType is a CWL enum schema.
type EnumType struct {
	Name    string
	Symbols []string

	// InputBinding declared on the enum schema applies to the matched
	// symbol rendered as a string.
	InputBinding *CommandLineBinding
}

// TypeName implements SchemaType.
func (e *EnumType) TypeName() string {
	if e.Name != "" {
		return e.Name
	}
	return "enum"
}

// Save implements SchemaType.
func (e *EnumType) Save() any {
	m := map[string]any{
		"type":    "enum",
		"symbols": append([]string(nil), e.Symbols...),
	}
	if e.Name != "" {
		m["name"] = e.Name
	}
	if e.InputBinding != nil {
		m["inputBinding"] = e.InputBinding.Save()
	}
	return m
}

// HasSymbol reports whether s is one of the enum's symbols. Symbols may be
// declared with a fragment prefix ("#scheme/sym"); only the final segment is
// compared.
func (e *EnumType) HasSymbol(s string) bool {
	for _, sym := range e.Symbols {
		if sym == s || sym[strings.LastIndexByte(sym, '/')+1:] == s {
			return true
		}
	}
	return false
}

// UnionType is a CWL union of alternative types. Optional fields are a
// UnionType containing Null; "T?" and ["T","null"] normalize to the same
// value.
type UnionType struct {
	Alternatives []SchemaType
}

// TypeName implements SchemaType.
func (u *UnionType) TypeName() string {
	names := make([]string, len(u.Alternatives))
	for i, a := range u.Alternatives {
		names[i] = a.TypeName()
	}
	return "(" + strings.Join(names, "|") + ")"
}

// Save implements SchemaType.
func (u *UnionType) Save() any {
	out := make([]any, len(u.Alternatives))
	for i, a := range u.Alternatives {
		out[i] = a.Save()
	}
	return out
}

// Nullable reports whether the union admits null.
func (u *UnionType) Nullable() bool {
	for _, a := range u.Alternatives {
		if p, ok := a.(Primitive); ok && p == Null {
			return true
		}
	}
	return false
}

// Optional wraps t in a UnionType admitting null. A union gains a null
// alternative instead of nesting.
func Optional(t SchemaType) SchemaType {
	if u, ok := t.(*UnionType); ok {
		if u.Nullable() {
			return u
		}
		return &UnionType{Alternatives: append([]SchemaType{Null}, u.Alternatives...)}
	}
	return &UnionType{Alternatives: []SchemaType{Null, t}}
}

// IsNullable reports whether t admits a null value.
func IsNullable(t SchemaType) bool {
	switch v := t.(type) {
	case Primitive:
		return v == Null || v == Any
	case *UnionType:
		return v.Nullable()
	}
	return false
}
