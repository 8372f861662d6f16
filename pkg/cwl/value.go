package cwl

import (
	"sort"
)

// Value is the runtime-typed counterpart of SchemaType, produced by the job
// binder. Values are owned by the binder call that created them and are
// never shared between jobs.
type Value interface {
	// JSON projects the value to the plain JSON form seen by expressions
	// and emitted in output maps.
	JSON() any
}

// Scalar wraps a primitive runtime value: nil, bool, int64, float64 or
// string.
type Scalar struct {
	V any
}

// JSON implements Value.
func (s Scalar) JSON() any { return s.V }

// IsNull reports whether the scalar is the null value.
func (s Scalar) IsNull() bool { return s.V == nil }

// FileValue is a resolved CWL File.
// Checksum, Size and Contents are populated only when the underlying path
// existed on disk at bind time.
type FileValue struct {
	Location string
	Path     string
	Basename string
	Dirname  string
	Nameroot string
	Nameext  string

	Checksum string
	Size     int64
	HasSize  bool

	Contents    string
	HasContents bool

	Format string

	SecondaryFiles []Value
}

// JSON implements Value.
func (f FileValue) JSON() any {
	m := map[string]any{"class": "File"}
	setIf(m, "location", f.Location)
	setIf(m, "path", f.Path)
	setIf(m, "basename", f.Basename)
	setIf(m, "dirname", f.Dirname)
	setIf(m, "nameroot", f.Nameroot)
	if f.Nameext != "" {
		m["nameext"] = f.Nameext
	}
	setIf(m, "checksum", f.Checksum)
	if f.HasSize {
		m["size"] = f.Size
	}
	if f.HasContents {
		m["contents"] = f.Contents
	}
	setIf(m, "format", f.Format)
	if len(f.SecondaryFiles) > 0 {
		sf := make([]any, len(f.SecondaryFiles))
		for i, s := range f.SecondaryFiles {
			sf[i] = s.JSON()
		}
		m["secondaryFiles"] = sf
	}
	return m
}

// DirectoryValue is a resolved CWL Directory.
type DirectoryValue struct {
	Location string
	Path     string
	Basename string
	Listing  []Value
}

// JSON implements Value.
func (d DirectoryValue) JSON() any {
	m := map[string]any{"class": "Directory"}
	setIf(m, "location", d.Location)
	setIf(m, "path", d.Path)
	setIf(m, "basename", d.Basename)
	if len(d.Listing) > 0 {
		ls := make([]any, len(d.Listing))
		for i, e := range d.Listing {
			ls[i] = e.JSON()
		}
		m["listing"] = ls
	}
	return m
}

// RecordValue is a bound record.
type RecordValue struct {
	Fields map[string]Value
}

// JSON implements Value.
func (r RecordValue) JSON() any {
	m := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		m[k] = v.JSON()
	}
	return m
}

// FieldNames returns the record's field names in sorted order.
func (r RecordValue) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ArrayValue is a bound array.
type ArrayValue struct {
	Items []Value
}

// JSON implements Value.
func (a ArrayValue) JSON() any {
	out := make([]any, len(a.Items))
	for i, v := range a.Items {
		out[i] = v.JSON()
	}
	return out
}

// UnionValue records which union alternative the binder selected, so the
// command synthesizer can render the inner value against the chosen type.
type UnionValue struct {
	Chosen SchemaType
	Inner  Value
}

// JSON implements Value.
func (u UnionValue) JSON() any { return u.Inner.JSON() }

// Uninstantiated is the sentinel bound to every input in symbolic (job-less)
// inspection. It renders as a placeholder on the command line and
// short-circuits expression evaluation.
type Uninstantiated struct {
	Name string

	// Nullable selects the bracketed placeholder form.
	Nullable bool
}

// JSON implements Value.
func (u Uninstantiated) JSON() any { return u.Placeholder() }

// Placeholder is the symbolic command-line rendering: bracketed for
// optional inputs, bare otherwise.
func (u Uninstantiated) Placeholder() string {
	if u.Nullable {
		return "[" + u.Name + "]"
	}
	return u.Name
}

// Invalid marks a job key that does not name any declared input. The entry
// is kept so later access fails loudly instead of silently dropping data.
type Invalid struct {
	Name string
}

// JSON implements Value.
func (i Invalid) JSON() any { return nil }

// IsNull reports whether v is a null scalar.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	s, ok := v.(Scalar)
	return ok && s.IsNull()
}

// Unwrap strips UnionValue wrappers.
func Unwrap(v Value) Value {
	for {
		u, ok := v.(UnionValue)
		if !ok {
			return v
		}
		v = u.Inner
	}
}

// FromJSON converts a plain JSON-shaped value (sandbox result, job literal,
// cwl.output.json entry) into a Value. Maps tagged class: File/Directory
// become FileValue/DirectoryValue; other maps become records.
func FromJSON(v any) Value {
	switch val := v.(type) {
	case nil, bool, string:
		return Scalar{V: val}
	case int:
		return Scalar{V: int64(val)}
	case int64, float64:
		return Scalar{V: val}
	case map[string]any:
		switch val["class"] {
		case "File":
			return fileFromJSON(val)
		case "Directory":
			return directoryFromJSON(val)
		}
		fields := make(map[string]Value, len(val))
		for k, item := range val {
			fields[k] = FromJSON(item)
		}
		return RecordValue{Fields: fields}
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromJSON(item)
		}
		return ArrayValue{Items: items}
	default:
		return Scalar{V: val}
	}
}

func fileFromJSON(m map[string]any) FileValue {
	f := FileValue{
		Location: str(m["location"]),
		Path:     str(m["path"]),
		Basename: str(m["basename"]),
		Dirname:  str(m["dirname"]),
		Nameroot: str(m["nameroot"]),
		Nameext:  str(m["nameext"]),
		Checksum: str(m["checksum"]),
		Format:   str(m["format"]),
	}
	if sz, ok := toInt64(m["size"]); ok {
		f.Size = sz
		f.HasSize = true
	}
	if c, ok := m["contents"].(string); ok {
		f.Contents = c
		f.HasContents = true
	}
	if sf, ok := m["secondaryFiles"].([]any); ok {
		for _, e := range sf {
			f.SecondaryFiles = append(f.SecondaryFiles, FromJSON(e))
		}
	}
	return f
}

func directoryFromJSON(m map[string]any) DirectoryValue {
	d := DirectoryValue{
		Location: str(m["location"]),
		Path:     str(m["path"]),
		Basename: str(m["basename"]),
	}
	if ls, ok := m["listing"].([]any); ok {
		for _, e := range ls {
			d.Listing = append(d.Listing, FromJSON(e))
		}
	}
	return d
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
