package cwl

import "strings"

// Tree is the preprocessed document form consumed by the loader: a plain
// nested map/sequence/scalar structure with $import/$include/$mixin already
// resolved by the (external) preprocessor.
type Tree = map[string]any

// Document is a loaded CWL document: the root node plus the fragment index
// and namespace table produced by the preprocessor.
type Document struct {
	Root Node

	// Fragments indexes processes by fragment id, without the leading
	// "#". A $graph packed document contributes every graph entry.
	Fragments map[string]Node

	// Namespaces maps prefix to IRI from $namespaces.
	Namespaces map[string]string
}

// Process resolves a run reference: "#frag" or "frag" through the fragment
// index, and the bare root for "" or the root's own id.
func (d *Document) Process(ref string) Node {
	if ref == "" {
		return d.Root
	}
	frag := strings.TrimPrefix(ref, "#")
	if n, ok := d.Fragments[frag]; ok {
		return n
	}
	return nil
}

// ExpandFormat resolves a namespace-prefixed format like "edam:format_1929"
// against the namespace table. Unprefixed values pass through.
func (d *Document) ExpandFormat(format string) string {
	prefix, rest, ok := strings.Cut(format, ":")
	if !ok {
		return format
	}
	if iri, ok := d.Namespaces[prefix]; ok {
		return iri + rest
	}
	return format
}
