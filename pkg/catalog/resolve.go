package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// bookkeeping predicates and values that never show up in entity data
var bookkeeping = map[string]struct{}{
	"type":            {},
	"NamedIndividual": {},
}

// PropertyValues holds the values of one data property in store order.
// A single value encodes as a JSON string, several as a list.
type PropertyValues []string

// First returns the first value or "".
func (v PropertyValues) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (v PropertyValues) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

func (v *PropertyValues) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*v = PropertyValues{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*v = many
	return nil
}

// Relation links an entity to another entity of the ontology.
type Relation struct {
	Predicate string `json:"predicate"`
	Target    string `json:"target"`
}

// Entity is the resolved view of one individual.
type Entity struct {
	ID        string                    `json:"id"`
	Data      map[string]PropertyValues `json:"data"`
	Relations []Relation                `json:"relations"`

	// Types are the normalized rdf:type values, bookkeeping removed.
	Types []string `json:"-"`
}

// Empty reports whether the entity carries neither data nor relations.
func (e *Entity) Empty() bool {
	return len(e.Data) == 0 && len(e.Relations) == 0
}

// Relation returns the first target of predicate.
func (e *Entity) Relation(predicate string) (string, bool) {
	for _, r := range e.Relations {
		if r.Predicate == predicate {
			return r.Target, true
		}
	}
	return "", false
}

// Resolve assembles the entity with short name name.
//
// It returns ErrNotFound when the rebuilt identifier is not the subject of any
// triple. Objects that are IRIs under the ontology namespace become relations,
// everything else is data. rdf:type values are collected into Types.
func (c *Catalog) Resolve(ctx context.Context, name string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := c.norm.IRI(name)
	pos, err := storage.PredicateObjects(c.engine, subject)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	if len(pos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	e := &Entity{
		ID:        name,
		Data:      make(map[string]PropertyValues),
		Relations: []Relation{},
	}
	for _, po := range pos {
		if po.Predicate.Value == vocabulary.RdfType {
			if t := c.norm.Clean(po.Object); !isBookkeeping(t) {
				e.Types = append(e.Types, t)
			}
			continue
		}

		pred := c.norm.Clean(po.Predicate)
		if isBookkeeping(pred) {
			continue
		}
		if c.norm.InNamespace(po.Object) {
			e.Relations = append(e.Relations, Relation{Predicate: pred, Target: c.norm.Clean(po.Object)})
			continue
		}
		e.Data[pred] = append(e.Data[pred], c.norm.Clean(po.Object))
	}
	return e, nil
}

// Detail resolves name and treats an entity with neither data nor relations
// as missing.
func (c *Catalog) Detail(ctx context.Context, name string) (*Entity, error) {
	e, err := c.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if e.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

func isBookkeeping(name string) bool {
	_, ok := bookkeeping[name]
	return ok
}
