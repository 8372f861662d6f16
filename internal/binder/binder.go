// Package binder matches a job order against a tool's declared inputs and
// produces the typed values expression evaluation and command synthesis run
// on. Without a job it produces uninstantiated sentinels so inspection can
// still render a command line.
package binder

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/pkg/cwl"
)

// contentsLimit caps how much of a file loadContents reads.
const contentsLimit = 64 * 1024

// Options controls how values are bound.
type Options struct {
	// Runtime supplies document search roots for relative file locations.
	Runtime *cwl.RuntimeContext
	// Strict touches the filesystem: files named by the job must exist and
	// get size, checksum and (when requested) contents filled in. Lenient
	// binding only derives name metadata.
	Strict bool
	// Eval resolves secondaryFiles patterns that are expressions. May be
	// nil, in which case only literal patterns apply.
	Eval *evaluator.Evaluator
}

// Bind resolves job values against the declared parameters. A nil job
// yields an Uninstantiated sentinel per parameter; job keys that match no
// parameter are recorded as Invalid so later references to them fail loudly
// rather than silently.
func Bind(params []cwl.InputParameter, job cwl.Tree, opts Options) (map[string]cwl.Value, error) {
	bound := make(map[string]cwl.Value, len(params))

	if job == nil {
		for _, p := range params {
			bound[p.ID] = cwl.Uninstantiated{Name: p.ID, Nullable: p.Optional()}
		}
		return bound, nil
	}

	for _, p := range params {
		raw, present := job[p.ID]
		if !present {
			if p.Default != nil {
				raw = p.Default
			} else if p.Optional() {
				bound[p.ID] = cwl.Scalar{}
				continue
			} else {
				return nil, &cwl.TypeMismatch{Name: p.ID, Want: p.Type.TypeName(), Got: "missing"}
			}
		}
		v, err := bindValue(p.ID, p.Type, raw, opts)
		if err != nil {
			return nil, err
		}
		if f, ok := v.(cwl.FileValue); ok {
			if err := AttachSecondaryFiles(&f, p.SecondaryFiles, opts); err != nil {
				return nil, err
			}
			if p.LoadContents && !f.HasContents && opts.Strict {
				if err := loadContents(&f); err != nil {
					return nil, err
				}
			}
			v = f
		}
		bound[p.ID] = v
	}

	var unknown []string
	for k := range job {
		if strings.HasPrefix(k, "cwl:") || strings.HasPrefix(k, "$") {
			continue
		}
		if _, ok := bound[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		bound[k] = cwl.Invalid{Name: k}
	}
	return bound, nil
}

// Coerce type-checks a raw JSON value against a schema. Output collection
// uses it for cwl.output.json and outputEval results.
func Coerce(name string, t cwl.SchemaType, raw any, opts Options) (cwl.Value, error) {
	return bindValue(name, t, raw, opts)
}

// bindValue coerces a raw job value to the declared schema.
func bindValue(name string, t cwl.SchemaType, raw any, opts Options) (cwl.Value, error) {
	switch st := t.(type) {
	case cwl.Primitive:
		return bindPrimitive(name, st, raw, opts)
	case *cwl.ArrayType:
		items, ok := raw.([]any)
		if !ok {
			return nil, mismatch(name, t, raw)
		}
		out := cwl.ArrayValue{Items: make([]cwl.Value, 0, len(items))}
		for i, item := range items {
			v, err := bindValue(fmt.Sprintf("%s[%d]", name, i), st.Items, item, opts)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		return out, nil
	case *cwl.RecordType:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, mismatch(name, t, raw)
		}
		rec := cwl.RecordValue{Fields: make(map[string]cwl.Value, len(st.Fields))}
		for _, f := range st.Fields {
			fr, present := m[f.Name]
			if !present {
				if cwl.IsNullable(f.Type) {
					rec.Fields[f.Name] = cwl.Scalar{}
					continue
				}
				return nil, &cwl.TypeMismatch{Name: name + "." + f.Name, Want: f.Type.TypeName(), Got: "missing"}
			}
			v, err := bindValue(name+"."+f.Name, f.Type, fr, opts)
			if err != nil {
				return nil, err
			}
			rec.Fields[f.Name] = v
		}
		return rec, nil
	case *cwl.EnumType:
		s, ok := raw.(string)
		if !ok || !st.HasSymbol(s) {
			return nil, mismatch(name, t, raw)
		}
		return cwl.Scalar{V: s}, nil
	case *cwl.UnionType:
		if raw == nil && st.Nullable() {
			return cwl.Scalar{}, nil
		}
		for _, alt := range st.Alternatives {
			if alt == cwl.Null {
				continue
			}
			v, err := bindValue(name, alt, raw, opts)
			if err == nil {
				return cwl.UnionValue{Chosen: alt, Inner: v}, nil
			}
		}
		return nil, mismatch(name, t, raw)
	default:
		return nil, mismatch(name, t, raw)
	}
}

func bindPrimitive(name string, p cwl.Primitive, raw any, opts Options) (cwl.Value, error) {
	switch p {
	case cwl.Null:
		if raw == nil {
			return cwl.Scalar{}, nil
		}
	case cwl.Boolean:
		if b, ok := raw.(bool); ok {
			return cwl.Scalar{V: b}, nil
		}
	case cwl.Int, cwl.Long:
		if n, ok := asInt64(raw); ok {
			return cwl.Scalar{V: n}, nil
		}
	case cwl.Float, cwl.Double:
		switch n := raw.(type) {
		case float64:
			return cwl.Scalar{V: n}, nil
		case int:
			return cwl.Scalar{V: float64(n)}, nil
		case int64:
			return cwl.Scalar{V: float64(n)}, nil
		}
	case cwl.String:
		if s, ok := raw.(string); ok {
			return cwl.Scalar{V: s}, nil
		}
	case cwl.File:
		if m, ok := classMap(raw, "File"); ok {
			return bindFile(name, m, opts)
		}
	case cwl.Directory:
		if m, ok := classMap(raw, "Directory"); ok {
			return bindDirectory(name, m, opts)
		}
	case cwl.Any:
		if raw == nil {
			return nil, &cwl.TypeMismatch{Name: name, Want: "Any", Got: "null"}
		}
		return bindInferred(name, raw, opts)
	}
	return nil, mismatch(name, p, raw)
}

// bindInferred types an Any value from its JSON shape.
func bindInferred(name string, raw any, opts Options) (cwl.Value, error) {
	if m, ok := classMap(raw, "File"); ok {
		return bindFile(name, m, opts)
	}
	if m, ok := classMap(raw, "Directory"); ok {
		return bindDirectory(name, m, opts)
	}
	switch x := raw.(type) {
	case []any:
		out := cwl.ArrayValue{Items: make([]cwl.Value, 0, len(x))}
		for i, item := range x {
			v, err := bindInferred(fmt.Sprintf("%s[%d]", name, i), item, opts)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		return out, nil
	case map[string]any:
		rec := cwl.RecordValue{Fields: make(map[string]cwl.Value, len(x))}
		for k, fr := range x {
			v, err := bindInferred(name+"."+k, fr, opts)
			if err != nil {
				return nil, err
			}
			rec.Fields[k] = v
		}
		return rec, nil
	default:
		return cwl.FromJSON(raw), nil
	}
}

// bindFile builds a FileValue, deriving name metadata lexically and, under
// strict binding, checksum and size from the filesystem.
func bindFile(name string, m map[string]any, opts Options) (cwl.Value, error) {
	f := cwl.FileValue{
		Location: str(m["location"]),
		Path:     str(m["path"]),
		Format:   str(m["format"]),
	}
	if c, ok := m["contents"].(string); ok {
		f.Contents = c
		f.HasContents = true
	}
	if f.Path == "" && f.Location != "" {
		f.Path = cwl.LocationToPath(f.Location)
	}
	if f.Path != "" {
		var roots []string
		if opts.Runtime != nil {
			roots = opts.Runtime.DocDir
		}
		f.Path = cwl.ResolvePath(f.Path, roots)
	}
	if f.Location == "" && f.Path != "" {
		f.Location = cwl.PathToLocation(f.Path)
	}
	base := str(m["basename"])
	if base == "" {
		base, _, _, _ = cwl.SplitBasename(f.Path)
	}
	f.Basename = base
	_, f.Dirname, f.Nameroot, f.Nameext = cwl.SplitBasename(f.Path)
	if f.Nameroot == "" && base != "" {
		f.Nameroot, f.Nameext = splitExt(base)
	}

	if opts.Strict && f.Path != "" {
		st, err := os.Stat(f.Path)
		if err != nil {
			return nil, &cwl.TypeMismatch{Name: name, Want: "File", Got: fmt.Sprintf("unreadable path %s", f.Path)}
		}
		f.Size = st.Size()
		f.HasSize = true
		sum, err := checksum(f.Path)
		if err != nil {
			return nil, err
		}
		f.Checksum = sum
	} else if sz, ok := asInt64(m["size"]); ok {
		f.Size = sz
		f.HasSize = true
	}
	if f.HasContents && !f.HasSize {
		f.Size = int64(len(f.Contents))
		f.HasSize = true
	}

	if sec, ok := m["secondaryFiles"].([]any); ok {
		for i, s := range sec {
			sv, err := bindInferred(fmt.Sprintf("%s.secondaryFiles[%d]", name, i), s, opts)
			if err != nil {
				return nil, err
			}
			f.SecondaryFiles = append(f.SecondaryFiles, sv)
		}
	}
	return f, nil
}

func bindDirectory(name string, m map[string]any, opts Options) (cwl.Value, error) {
	d := cwl.DirectoryValue{
		Location: str(m["location"]),
		Path:     str(m["path"]),
	}
	if d.Path == "" && d.Location != "" {
		d.Path = cwl.LocationToPath(d.Location)
	}
	if d.Path != "" {
		var roots []string
		if opts.Runtime != nil {
			roots = opts.Runtime.DocDir
		}
		d.Path = cwl.ResolvePath(d.Path, roots)
		d.Basename = filepath.Base(d.Path)
	}
	if d.Location == "" && d.Path != "" {
		d.Location = cwl.PathToLocation(d.Path)
	}
	if b := str(m["basename"]); b != "" {
		d.Basename = b
	}
	if opts.Strict && d.Path != "" {
		if st, err := os.Stat(d.Path); err != nil || !st.IsDir() {
			return nil, &cwl.TypeMismatch{Name: name, Want: "Directory", Got: fmt.Sprintf("unreadable path %s", d.Path)}
		}
	}
	if listing, ok := m["listing"].([]any); ok {
		for i, item := range listing {
			v, err := bindInferred(fmt.Sprintf("%s.listing[%d]", name, i), item, opts)
			if err != nil {
				return nil, err
			}
			d.Listing = append(d.Listing, v)
		}
	}
	return d, nil
}

// AttachSecondaryFiles resolves declared secondaryFiles patterns against a
// bound file. Literal patterns apply suffix rules; expression patterns run
// with self bound to the file.
func AttachSecondaryFiles(f *cwl.FileValue, schemas []cwl.SecondaryFileSchema, opts Options) error {
	for _, s := range schemas {
		pattern := string(s.Pattern)
		if evaluator.HasExpression(pattern, true) {
			if opts.Eval == nil {
				continue
			}
			ctx := evaluator.NewContext(nil, opts.Runtime).WithSelf(*f)
			rendered, err := opts.Eval.EvalString(s.Pattern, ctx)
			if err != nil {
				return err
			}
			pattern = rendered
		}
		path := ApplySuffixPattern(f.Path, pattern)
		if path == "" {
			continue
		}
		if opts.Strict {
			if _, err := os.Stat(path); err != nil {
				if required(s.Required) {
					return &cwl.TypeMismatch{Name: f.Basename, Want: "secondary file " + pattern, Got: "missing"}
				}
				continue
			}
		}
		sv, err := bindFile(pattern, map[string]any{"class": "File", "path": path}, opts)
		if err != nil {
			return err
		}
		f.SecondaryFiles = append(f.SecondaryFiles, sv)
	}
	return nil
}

// ApplySuffixPattern applies a secondaryFiles suffix to a primary path.
// Each leading "^" strips one extension from the primary name before the
// remainder is appended.
func ApplySuffixPattern(primary, pattern string) string {
	if primary == "" || pattern == "" {
		return ""
	}
	if filepath.IsAbs(pattern) || strings.Contains(pattern, "/") {
		return pattern
	}
	p := primary
	for strings.HasPrefix(pattern, "^") {
		pattern = pattern[1:]
		ext := filepath.Ext(p)
		p = strings.TrimSuffix(p, ext)
	}
	return p + pattern
}

func required(r any) bool {
	if b, ok := r.(bool); ok {
		return b
	}
	// Unset defaults to required for inputs.
	return r == nil
}

func loadContents(f *cwl.FileValue) error {
	if f.Path == "" {
		return nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer fh.Close()
	buf := make([]byte, contentsLimit)
	n, err := io.ReadFull(fh, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	f.Contents = string(buf[:n])
	f.HasContents = true
	return nil
}

func checksum(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha1.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return "sha1$" + hex.EncodeToString(h.Sum(nil)), nil
}

func classMap(raw any, class string) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	return m, str(m["class"]) == class
}

func mismatch(name string, t cwl.SchemaType, raw any) error {
	got := "null"
	if raw != nil {
		got = fmt.Sprintf("%T", raw)
		if m, ok := raw.(map[string]any); ok {
			if c := str(m["class"]); c != "" {
				got = c
			}
		}
	}
	return &cwl.TypeMismatch{Name: name, Want: t.TypeName(), Got: got}
}

func asInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func splitExt(base string) (root, ext string) {
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}
