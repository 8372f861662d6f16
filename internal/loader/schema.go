package loader

import (
	"fmt"
	"strings"

	"github.com/me/cwlinspect/pkg/cwl"
)

// loadType converts a document "type" field into the closed SchemaType sum.
// Accepted shapes: a type name (with "?" optional and "[]" array
// shorthands), a sequence of alternatives, or an array/record/enum schema
// map.
func (l *Loader) loadType(raw any, path string) (cwl.SchemaType, error) {
	switch v := raw.(type) {
	case nil:
		return nil, cwl.NewParseError(path, "missing type")
	case string:
		return l.loadTypeName(v, path)
	case []any:
		alts := make([]cwl.SchemaType, 0, len(v))
		for i, alt := range v {
			t, err := l.loadType(alt, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			alts = append(alts, t)
		}
		if len(alts) == 1 {
			return alts[0], nil
		}
		return &cwl.UnionType{Alternatives: alts}, nil
	case map[string]any:
		return l.loadTypeSchema(v, path)
	default:
		return nil, cwl.NewParseError(path, "type must be a name, sequence, or schema map, got %T", raw)
	}
}

func (l *Loader) loadTypeName(name, path string) (cwl.SchemaType, error) {
	if strings.HasSuffix(name, "?") {
		inner, err := l.loadTypeName(strings.TrimSuffix(name, "?"), path)
		if err != nil {
			return nil, err
		}
		return cwl.Optional(inner), nil
	}
	if strings.HasSuffix(name, "[]") {
		inner, err := l.loadTypeName(strings.TrimSuffix(name, "[]"), path)
		if err != nil {
			return nil, err
		}
		return &cwl.ArrayType{Items: inner}, nil
	}
	if cwl.IsPrimitiveName(name) {
		return cwl.Primitive(name), nil
	}
	// Named types come from SchemaDefRequirement; references may carry a
	// fragment prefix.
	ref := strings.TrimPrefix(name, "#")
	if t, ok := l.typedefs[ref]; ok {
		return t, nil
	}
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		if t, ok := l.typedefs[ref[i+1:]]; ok {
			return t, nil
		}
	}
	return nil, cwl.NewParseError(path, "unknown type %q", name)
}

var arraySchemaFields = fieldSet("type", "items", "inputBinding", "label", "doc", "name")
var recordSchemaFields = fieldSet("type", "fields", "label", "doc", "name")
var enumSchemaFields = fieldSet("type", "symbols", "inputBinding", "label", "doc", "name")
var fieldFields = fieldSet("name", "type", "doc", "label", "inputBinding", "outputBinding", "secondaryFiles", "format")

func (l *Loader) loadTypeSchema(m map[string]any, path string) (cwl.SchemaType, error) {
	kind, _ := m["type"].(string)
	switch kind {
	case "array":
		if _, err := checkFields(m, arraySchemaFields, path); err != nil {
			return nil, err
		}
		items, err := l.loadType(m["items"], join(path, "items"))
		if err != nil {
			return nil, err
		}
		arr := &cwl.ArrayType{Items: items}
		if ib, ok := m["inputBinding"].(map[string]any); ok {
			b, err := l.loadCommandLineBinding(ib, join(path, "inputBinding"))
			if err != nil {
				return nil, err
			}
			arr.InputBinding = b
		}
		return arr, nil

	case "record":
		if _, err := checkFields(m, recordSchemaFields, path); err != nil {
			return nil, err
		}
		rec := &cwl.RecordType{Name: shortName(stringField(m, "name"))}
		entries, err := idTaggedSeq(m["fields"], join(path, "fields"))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if _, err := checkFields(entry.body, fieldFields, entry.path); err != nil {
				return nil, err
			}
			f := cwl.Field{
				Name:  shortName(entry.id),
				Doc:   docField(entry.body),
				Label: stringField(entry.body, "label"),
			}
			if f.Type, err = l.loadType(entry.body["type"], join(entry.path, "type")); err != nil {
				return nil, err
			}
			if ib, ok := entry.body["inputBinding"].(map[string]any); ok {
				if f.InputBinding, err = l.loadCommandLineBinding(ib, join(entry.path, "inputBinding")); err != nil {
					return nil, err
				}
			}
			if ob, ok := entry.body["outputBinding"].(map[string]any); ok {
				if f.OutputBinding, err = loadOutputBinding(ob, join(entry.path, "outputBinding")); err != nil {
					return nil, err
				}
			}
			if f.SecondaryFiles, err = loadSecondaryFiles(entry.body["secondaryFiles"], join(entry.path, "secondaryFiles")); err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, f)
		}
		return rec, nil

	case "enum":
		if _, err := checkFields(m, enumSchemaFields, path); err != nil {
			return nil, err
		}
		symbols, err := stringSeq(m["symbols"], join(path, "symbols"))
		if err != nil {
			return nil, err
		}
		enum := &cwl.EnumType{Name: shortName(stringField(m, "name")), Symbols: symbols}
		if ib, ok := m["inputBinding"].(map[string]any); ok {
			if enum.InputBinding, err = l.loadCommandLineBinding(ib, join(path, "inputBinding")); err != nil {
				return nil, err
			}
		}
		return enum, nil

	default:
		return nil, cwl.NewParseError(join(path, "type"), "unknown schema kind %q", kind)
	}
}

var bindingFields = fieldSet(
	"position", "prefix", "separate", "itemSeparator",
	"valueFrom", "shellQuote", "loadContents",
)

func (l *Loader) loadCommandLineBinding(m map[string]any, path string) (*cwl.CommandLineBinding, error) {
	if _, err := checkFields(m, bindingFields, path); err != nil {
		return nil, err
	}
	b := &cwl.CommandLineBinding{
		Prefix:        stringField(m, "prefix"),
		ItemSeparator: stringField(m, "itemSeparator"),
		ValueFrom:     cwl.Expression(stringField(m, "valueFrom")),
		LoadContents:  boolField(m, "loadContents"),
	}
	if pos, ok := m["position"]; ok {
		n, ok := asInt(pos)
		if !ok {
			return nil, cwl.NewParseError(join(path, "position"), "position must be an integer, got %T", pos)
		}
		b.Position = n
	}
	if sep, ok := m["separate"]; ok {
		v, ok := sep.(bool)
		if !ok {
			return nil, cwl.NewParseError(join(path, "separate"), "separate must be a boolean, got %T", sep)
		}
		b.Separate = &v
	}
	if sq, ok := m["shellQuote"]; ok {
		v, ok := sq.(bool)
		if !ok {
			return nil, cwl.NewParseError(join(path, "shellQuote"), "shellQuote must be a boolean, got %T", sq)
		}
		b.ShellQuote = &v
	}
	return b, nil
}

var outputBindingFields = fieldSet("glob", "loadContents", "loadListing", "outputEval")

func loadOutputBinding(m map[string]any, path string) (*cwl.OutputBinding, error) {
	if _, err := checkFields(m, outputBindingFields, path); err != nil {
		return nil, err
	}
	b := &cwl.OutputBinding{
		LoadContents: boolField(m, "loadContents"),
		OutputEval:   cwl.Expression(stringField(m, "outputEval")),
	}
	if g, ok := m["glob"]; ok {
		globs, err := exprSeq(g, join(path, "glob"))
		if err != nil {
			return nil, err
		}
		b.Glob = globs
	}
	return b, nil
}

func loadSecondaryFiles(raw any, path string) ([]cwl.SecondaryFileSchema, error) {
	if raw == nil {
		return nil, nil
	}
	seq, ok := raw.([]any)
	if !ok {
		// A bare scalar normalizes to a one-element sequence.
		seq = []any{raw}
	}
	out := make([]cwl.SecondaryFileSchema, 0, len(seq))
	for i, e := range seq {
		entryPath := fmt.Sprintf("%s[%d]", path, i)
		switch v := e.(type) {
		case string:
			out = append(out, cwl.SecondaryFileSchema{Pattern: cwl.Expression(v)})
		case map[string]any:
			pattern, ok := v["pattern"].(string)
			if !ok {
				return nil, cwl.NewParseError(entryPath, "secondaryFiles entry missing pattern")
			}
			out = append(out, cwl.SecondaryFileSchema{
				Pattern:  cwl.Expression(pattern),
				Required: v["required"],
			})
		default:
			return nil, cwl.NewParseError(entryPath, "expected a pattern or map, got %T", e)
		}
	}
	return out, nil
}

// loadRequirements normalizes map and sequence encodings and dispatches on
// the class tag. Unknown classes are rejected under requirements but kept
// as UnknownRequirement under hints.
func (l *Loader) loadRequirements(raw any, path string, lenient bool) (cwl.ReqList, error) {
	if raw == nil {
		return nil, nil
	}
	var entries []idTagged
	switch v := raw.(type) {
	case []any:
		for i, e := range v {
			entryPath := fmt.Sprintf("%s[%d]", path, i)
			m, ok := e.(map[string]any)
			if !ok {
				return nil, cwl.NewParseError(entryPath, "expected a map, got %T", e)
			}
			class, ok := m["class"].(string)
			if !ok {
				return nil, cwl.NewParseError(entryPath, "requirement missing class")
			}
			body := make(map[string]any, len(m))
			for k, val := range m {
				if k != "class" {
					body[k] = val
				}
			}
			entries = append(entries, idTagged{id: class, body: body, path: entryPath})
		}
	case map[string]any:
		var err error
		entries, err = idTaggedSeq(v, path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, cwl.NewParseError(path, "expected a map or sequence, got %T", raw)
	}

	list := make(cwl.ReqList, 0, len(entries))
	for _, entry := range entries {
		req, err := l.loadRequirement(entry.id, entry.body, entry.path, lenient)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, nil
}

func (l *Loader) loadRequirement(class string, m map[string]any, path string, lenient bool) (cwl.Requirement, error) {
	switch class {
	case "DockerRequirement":
		return &cwl.DockerRequirement{
			DockerPull:            stringField(m, "dockerPull"),
			DockerLoad:            stringField(m, "dockerLoad"),
			DockerFile:            stringField(m, "dockerFile"),
			DockerImport:          stringField(m, "dockerImport"),
			DockerImageID:         stringField(m, "dockerImageId"),
			DockerOutputDirectory: stringField(m, "dockerOutputDirectory"),
		}, nil

	case "InlineJavascriptRequirement":
		r := &cwl.InlineJavascriptRequirement{}
		if lib, ok := m["expressionLib"]; ok {
			code, err := stringSeq(lib, join(path, "expressionLib"))
			if err != nil {
				return nil, err
			}
			r.ExpressionLib = code
		}
		return r, nil

	case "SchemaDefRequirement":
		r := &cwl.SchemaDefRequirement{}
		types, ok := m["types"].([]any)
		if !ok {
			return nil, cwl.NewParseError(join(path, "types"), "SchemaDefRequirement requires a types sequence")
		}
		for i, t := range types {
			typePath := fmt.Sprintf("%s[%d]", join(path, "types"), i)
			tm, ok := t.(map[string]any)
			if !ok {
				return nil, cwl.NewParseError(typePath, "expected a schema map, got %T", t)
			}
			st, err := l.loadTypeSchema(tm, typePath)
			if err != nil {
				return nil, err
			}
			r.Types = append(r.Types, st)
			if name := shortName(stringField(tm, "name")); name != "" {
				l.typedefs[name] = st
			}
		}
		return r, nil

	case "ResourceRequirement":
		return &cwl.ResourceRequirement{
			CoresMin:  m["coresMin"],
			CoresMax:  m["coresMax"],
			RAMMin:    m["ramMin"],
			RAMMax:    m["ramMax"],
			TmpdirMin: m["tmpdirMin"],
			TmpdirMax: m["tmpdirMax"],
			OutdirMin: m["outdirMin"],
			OutdirMax: m["outdirMax"],
		}, nil

	case "InitialWorkDirRequirement":
		r := &cwl.InitialWorkDirRequirement{}
		switch listing := m["listing"].(type) {
		case []any:
			for _, e := range listing {
				if em, ok := e.(map[string]any); ok {
					if _, isDirent := em["entry"]; isDirent {
						r.Listing = append(r.Listing, cwl.Dirent{
							Entryname: cwl.Expression(stringField(em, "entryname")),
							Entry:     em["entry"],
							Writable:  boolField(em, "writable"),
						})
						continue
					}
				}
				r.Listing = append(r.Listing, e)
			}
		case string:
			r.Listing = []any{listing}
		case nil:
			return nil, cwl.NewParseError(join(path, "listing"), "InitialWorkDirRequirement requires a listing")
		default:
			return nil, cwl.NewParseError(join(path, "listing"), "expected a sequence or expression, got %T", m["listing"])
		}
		return r, nil

	case "EnvVarRequirement":
		r := &cwl.EnvVarRequirement{}
		entries, err := idTaggedSeq(m["envDef"], join(path, "envDef"))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			name := entry.id
			if n := stringField(entry.body, "envName"); n != "" {
				name = n
			}
			value := stringField(entry.body, "envValue")
			if value == "" {
				if v, ok := entry.body["type"].(string); ok {
					// Map shorthand: envName: envValue.
					value = v
				}
			}
			r.EnvDef = append(r.EnvDef, cwl.EnvironmentDef{
				EnvName:  name,
				EnvValue: cwl.Expression(value),
			})
		}
		return r, nil

	case "ShellCommandRequirement":
		return &cwl.ShellCommandRequirement{}, nil
	case "SubworkflowFeatureRequirement":
		return &cwl.SubworkflowFeatureRequirement{}, nil
	case "ScatterFeatureRequirement":
		return &cwl.ScatterFeatureRequirement{}, nil
	case "MultipleInputFeatureRequirement":
		return &cwl.MultipleInputFeatureRequirement{}, nil
	case "StepInputExpressionRequirement":
		return &cwl.StepInputExpressionRequirement{}, nil

	default:
		if lenient {
			l.logger.Debug("keeping unknown hint", "class", class)
			return &cwl.UnknownRequirement{ClassName: class, Body: m}, nil
		}
		return nil, cwl.NewParseError(path, "unknown requirement class %q", class)
	}
}

// shortName strips fragment and scope prefixes from a schema name:
// "#types.yml/paired" becomes "paired".
func shortName(name string) string {
	name = strings.TrimPrefix(name, "#")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// checkFields enforces closed-world validation: unknown fields are a
// ParseError, except dollar-prefixed extension fields, which are returned
// for the node to keep verbatim.
func checkFields(m map[string]any, allowed map[string]bool, path string) (map[string]any, error) {
	var ext map[string]any
	for k := range m {
		if allowed[k] {
			continue
		}
		if strings.HasPrefix(k, "$") {
			if ext == nil {
				ext = make(map[string]any)
			}
			ext[k] = m[k]
			continue
		}
		return nil, cwl.NewParseError(path, "unknown field %q", k)
	}
	return ext, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// docField accepts both string and sequence-of-string doc values.
func docField(m map[string]any) string {
	switch v := m["doc"].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// stringSeq normalizes a scalar or sequence of scalars to []string.
func stringSeq(raw any, path string) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, cwl.NewParseError(fmt.Sprintf("%s[%d]", path, i), "expected a string, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, cwl.NewParseError(path, "expected a string or sequence, got %T", raw)
	}
}

// exprSeq normalizes a scalar or sequence to []Expression.
func exprSeq(raw any, path string) ([]cwl.Expression, error) {
	if raw == nil {
		return nil, nil
	}
	strs, err := stringSeq(raw, path)
	if err != nil {
		return nil, err
	}
	out := make([]cwl.Expression, len(strs))
	for i, s := range strs {
		out[i] = cwl.Expression(s)
	}
	return out, nil
}

func intSeq(raw any, path string) ([]int, error) {
	seq, ok := raw.([]any)
	if !ok {
		return nil, cwl.NewParseError(path, "expected a sequence, got %T", raw)
	}
	out := make([]int, 0, len(seq))
	for i, e := range seq {
		n, ok := asInt(e)
		if !ok {
			return nil, cwl.NewParseError(fmt.Sprintf("%s[%d]", path, i), "expected an integer, got %T", e)
		}
		out = append(out, n)
	}
	return out, nil
}
