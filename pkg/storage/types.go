// Package storage provides the triple store behind the ontology API.
//
// The store is loaded once at boot from a single ontology file and is read-only
// afterwards. Callers only see the narrow Engine interface (add at boot, count,
// pattern match), so the engine underneath can be swapped without touching the
// catalog or the HTTP layer.
//
// Two engines are provided:
//   - MemoryEngine: map indexes over interned term ids (default)
//   - BadgerEngine: dictionary-encoded keys in BadgerDB, in-memory or on disk
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	result, err := storage.LoadFile(ctx, engine, "ontologia.rdf", "")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("loaded %d triples\n", result.Triples)
//
//	// Every individual typed as Procesador
//	procs, _ := storage.Subjects(engine,
//		storage.NewIRI(vocabulary.RdfType),
//		storage.NewIRI(base+"Procesador"))
package storage

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrStorageClosed     = errors.New("storage closed")
	ErrInvalidTerm       = errors.New("invalid term")
	ErrUnsupportedFormat = errors.New("unsupported ontology format")
	ErrIterationStopped  = errors.New("iteration stopped")
)

// TermKind tells IRIs, blank nodes and literals apart.
type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindBlank
	KindLiteral
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "uri"
	case KindBlank:
		return "bnode"
	case KindLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Term is a node of the RDF graph.
//
// For IRIs and blank nodes only Value is set. For literals Value holds the
// lexical form and Datatype/Lang carry the annotation (at most one of them is
// non-empty). Term is a comparable value type and can be used as a map key.
type Term struct {
	Kind     TermKind `json:"kind"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Lang     string   `json:"lang,omitempty"`
}

// NewIRI returns an IRI term.
func NewIRI(iri string) Term {
	return Term{Kind: KindIRI, Value: iri}
}

// NewBlank returns a blank node term.
func NewBlank(id string) Term {
	return Term{Kind: KindBlank, Value: id}
}

// NewLiteral returns a plain literal.
func NewLiteral(lexical string) Term {
	return Term{Kind: KindLiteral, Value: lexical}
}

// NewTypedLiteral returns a literal annotated with a datatype IRI.
func NewTypedLiteral(lexical, datatype string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

// NewLangLiteral returns a language-tagged literal.
func NewLangLiteral(lexical, lang string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Lang: lang}
}

// IsIRI reports whether the term is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsLiteral reports whether the term is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// IsBlank reports whether the term is a blank node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// Validate checks that the term can be stored.
func (t Term) Validate() error {
	switch t.Kind {
	case KindIRI, KindBlank:
		if t.Value == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidTerm, t.Kind)
		}
		return nil
	case KindLiteral:
		if t.Datatype != "" && t.Lang != "" {
			return fmt.Errorf("%w: literal with both datatype and language", ErrInvalidTerm)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidTerm, t.Kind)
	}
}

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := fmt.Sprintf("%q", t.Value)
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return "?"
	}
}

// Triple is a single subject-predicate-object statement.
type Triple struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
}

func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String() + " ."
}

// Validate checks the positional constraints of RDF: subjects are IRIs or blank
// nodes, predicates are IRIs.
func (t Triple) Validate() error {
	if err := t.Subject.Validate(); err != nil {
		return err
	}
	if err := t.Predicate.Validate(); err != nil {
		return err
	}
	if err := t.Object.Validate(); err != nil {
		return err
	}
	if t.Subject.IsLiteral() {
		return fmt.Errorf("%w: literal subject", ErrInvalidTerm)
	}
	if !t.Predicate.IsIRI() {
		return fmt.Errorf("%w: predicate must be an IRI", ErrInvalidTerm)
	}
	return nil
}

// Pattern selects triples. A nil position is a wildcard.
type Pattern struct {
	Subject   *Term
	Predicate *Term
	Object    *Term
}

// Matches reports whether the triple satisfies the pattern.
func (p Pattern) Matches(t Triple) bool {
	if p.Subject != nil && *p.Subject != t.Subject {
		return false
	}
	if p.Predicate != nil && *p.Predicate != t.Predicate {
		return false
	}
	if p.Object != nil && *p.Object != t.Object {
		return false
	}
	return true
}

// TripleVisitor receives matches. Returning false stops the iteration.
type TripleVisitor func(Triple) bool

// Engine is the read-only view of the loaded ontology plus the bulk loader
// used at boot.
//
// Implementations must be safe for concurrent readers. Add is only called
// before the engine is shared with request handlers.
type Engine interface {
	// Add inserts triples, ignoring ones already present.
	Add(triples []Triple) error

	// Len returns the number of distinct triples.
	Len() int

	// HasSubject reports whether any triple has s as its subject.
	HasSubject(s Term) (bool, error)

	// Match calls fn for every triple matching p, in the engine's iteration
	// order, until fn returns false.
	Match(p Pattern, fn TripleVisitor) error

	// Close releases resources. Further calls return ErrStorageClosed.
	Close() error
}

// Subjects returns the distinct subjects of triples (?, p, o).
func Subjects(e Engine, p, o Term) ([]Term, error) {
	seen := make(map[Term]struct{})
	var out []Term
	err := e.Match(Pattern{Predicate: &p, Object: &o}, func(t Triple) bool {
		if _, ok := seen[t.Subject]; !ok {
			seen[t.Subject] = struct{}{}
			out = append(out, t.Subject)
		}
		return true
	})
	return out, err
}

// Objects returns the objects of triples (s, p, ?).
func Objects(e Engine, s, p Term) ([]Term, error) {
	var out []Term
	err := e.Match(Pattern{Subject: &s, Predicate: &p}, func(t Triple) bool {
		out = append(out, t.Object)
		return true
	})
	return out, err
}

// PredicateObject is one (predicate, object) pair of a subject.
type PredicateObject struct {
	Predicate Term
	Object    Term
}

// PredicateObjects returns every (predicate, object) pair attached to s.
func PredicateObjects(e Engine, s Term) ([]PredicateObject, error) {
	var out []PredicateObject
	err := e.Match(Pattern{Subject: &s}, func(t Triple) bool {
		out = append(out, PredicateObject{Predicate: t.Predicate, Object: t.Object})
		return true
	})
	return out, err
}

// All returns every triple in iteration order.
func All(e Engine) ([]Triple, error) {
	out := make([]Triple, 0, e.Len())
	err := e.Match(Pattern{}, func(t Triple) bool {
		out = append(out, t)
		return true
	})
	return out, err
}
