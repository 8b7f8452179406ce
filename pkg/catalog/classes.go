package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// Classes returns the domain classes declared in the ontology, sorted.
//
// A class is any IRI typed owl:Class or rdfs:Class. Anonymous classes and the
// names reserved by RDF/RDFS/OWL are left out.
func (c *Catalog) Classes(ctx context.Context) ([]string, error) {
	typ := storage.NewIRI(vocabulary.RdfType)
	seen := make(map[string]struct{})
	out := []string{}

	for _, decl := range vocabulary.ClassDeclarations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		subjects, err := storage.Subjects(c.engine, typ, storage.NewIRI(decl))
		if err != nil {
			return nil, fmt.Errorf("listing classes: %w", err)
		}
		for _, s := range subjects {
			if !s.IsIRI() {
				continue
			}
			name := c.norm.Clean(s)
			if name == "" || vocabulary.IsReservedClass(name) {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	sort.Strings(out)
	return out, nil
}

// Listing is the outcome of Individuals.
type Listing struct {
	Class string
	Names []string
	// Suggestions is filled only when Names is empty and some subject has a
	// type whose identifier mentions the class name.
	Suggestions []string
}

// Individuals lists the short names of the subjects typed exactly as class.
// An empty class selects the default class.
func (c *Catalog) Individuals(ctx context.Context, class string) (*Listing, error) {
	if class == "" {
		class = c.defaultClass
	}
	typ := storage.NewIRI(vocabulary.RdfType)

	subjects, err := storage.Subjects(c.engine, typ, c.norm.IRI(class))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", class, err)
	}
	l := &Listing{Class: class, Names: make([]string, 0, len(subjects))}
	for _, s := range subjects {
		l.Names = append(l.Names, c.norm.Clean(s))
	}
	if len(l.Names) > 0 {
		return l, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	err = c.engine.Match(storage.Pattern{Predicate: &typ}, func(t storage.Triple) bool {
		if !strings.Contains(t.Object.Value, class) {
			return true
		}
		name := c.norm.Clean(t.Subject)
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			l.Suggestions = append(l.Suggestions, name)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", class, err)
	}
	return l, nil
}
