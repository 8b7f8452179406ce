package catalog

import (
	"strings"

	"github.com/orneryd/ontologia/pkg/storage"
)

// Normalizer turns raw terms into short display strings.
//
// Literals become their lexical value. IRIs lose the ontology namespace, or
// everything up to the last '#' when they live elsewhere. Anything else is
// returned unchanged. A local name under the namespace is kept whole, so
// IRI(CleanString(s)) == s for every s in the namespace.
type Normalizer struct {
	Base string
}

// Clean returns the display form of t.
func (n Normalizer) Clean(t storage.Term) string {
	if t.IsLiteral() {
		return t.Value
	}
	return n.CleanString(t.Value)
}

// CleanString applies the IRI rules to a raw string.
func (n Normalizer) CleanString(s string) string {
	if rest, ok := strings.CutPrefix(s, n.Base); ok && n.Base != "" {
		return rest
	}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// IRI rebuilds the full identifier of a short name.
func (n Normalizer) IRI(name string) storage.Term {
	return storage.NewIRI(n.Base + name)
}

// InNamespace reports whether t is an IRI under the ontology namespace.
func (n Normalizer) InNamespace(t storage.Term) bool {
	return t.IsIRI() && n.Base != "" && strings.HasPrefix(t.Value, n.Base)
}
