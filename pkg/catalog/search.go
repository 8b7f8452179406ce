package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/orneryd/ontologia/pkg/cache"
	"github.com/orneryd/ontologia/pkg/query"
	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// Summary field names.
const (
	FieldNombre     = "nombre"
	FieldFuente     = "fuente"
	FieldFrecuencia = "frecuencia"
	FieldProceso    = "proceso"
	FieldFabricante = "fabricante"
)

// SummaryFields maps each summary field to the property names it is read
// from, in priority order. A candidate first matches a property with exactly
// that name; when none does, the alphabetically first property starting with
// any candidate (ignoring case) is used.
type SummaryFields map[string][]string

// DefaultSummaryFields returns the candidates for the processor ontology.
func DefaultSummaryFields() SummaryFields {
	return SummaryFields{
		FieldNombre:     {"nombre", "label", "nombre_comercial"},
		FieldFuente:     {"fuente", "source", "seeAlso"},
		FieldFrecuencia: {"frecuencia_max_GHz", "frecuencia"},
		FieldProceso:    {"proceso_nm", "proceso_fabricacion_nm", "proceso"},
		FieldFabricante: {"fabricadoPor", "fabricante", "tieneFabricante"},
	}
}

// merge returns the defaults overridden by every non-empty entry of o.
func (s SummaryFields) merge(o map[string][]string) SummaryFields {
	out := make(SummaryFields, len(s))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		if len(v) > 0 {
			out[k] = v
		}
	}
	return out
}

// SearchHit is one search result: a few convenience fields and the full
// resolved entity.
type SearchHit struct {
	ID         string                    `json:"id"`
	Nombre     string                    `json:"nombre"`
	Clase      string                    `json:"clase"`
	Fuente     string                    `json:"fuente"`
	Frecuencia string                    `json:"frecuencia"`
	Proceso    string                    `json:"proceso"`
	Fabricante string                    `json:"fabricante"`
	Data       map[string]PropertyValues `json:"data"`
	Relations  []Relation                `json:"relations"`
}

// Search finds the individuals of class whose short name contains q, ignoring
// case, in store order and at most the configured limit. An empty q matches
// every individual of the class; an empty class selects the default class.
//
// Results are cached and shared between callers.
func (c *Catalog) Search(ctx context.Context, q, class string) ([]SearchHit, error) {
	if class == "" {
		class = c.defaultClass
	}

	key := cache.Key("buscar", q, class)
	v, err := c.cache.GetOrCompute(key, func() (any, error) {
		return c.search(ctx, q, class)
	})
	if err != nil {
		return nil, err
	}
	return v.([]SearchHit), nil
}

func (c *Catalog) search(ctx context.Context, q, class string) ([]SearchHit, error) {
	needle := strings.ToLower(q)
	bq := &query.Query{
		Vars:     []string{"s"},
		Distinct: true,
		Where: []query.TriplePattern{
			{Subject: query.V("s"), Predicate: query.T(storage.NewIRI(vocabulary.RdfType)), Object: query.V("t")},
		},
		Filters: []query.Filter{
			query.Func{Var: "t", Fn: func(t storage.Term) bool {
				return t.IsIRI() && c.norm.Clean(t) == class
			}},
			// Detail only rebuilds identifiers under the namespace, so
			// foreign subjects are dropped before the limit applies.
			query.Func{Var: "s", Fn: func(t storage.Term) bool {
				return c.norm.InNamespace(t) && strings.Contains(strings.ToLower(c.norm.Clean(t)), needle)
			}},
		},
		Limit: c.limit,
	}

	res, err := query.Execute(ctx, c.engine, bq)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, res.Len())
	for _, s := range res.Column("s") {
		e, err := c.Resolve(ctx, c.norm.Clean(s))
		if err != nil {
			return nil, err
		}
		hits = append(hits, c.summarize(e, class))
	}
	return hits, nil
}

func (c *Catalog) summarize(e *Entity, class string) SearchHit {
	h := SearchHit{
		ID:         e.ID,
		Clase:      class,
		Nombre:     c.summaryValue(e, FieldNombre),
		Fuente:     c.summaryValue(e, FieldFuente),
		Frecuencia: c.summaryValue(e, FieldFrecuencia),
		Proceso:    c.summaryValue(e, FieldProceso),
		Fabricante: c.summaryValue(e, FieldFabricante),
		Data:       e.Data,
		Relations:  e.Relations,
	}
	if h.Nombre == "" {
		h.Nombre = strings.ReplaceAll(e.ID, "_", " ")
	}
	return h
}

// summaryValue reads field from the entity data, then from its relations.
func (c *Catalog) summaryValue(e *Entity, field string) string {
	candidates := c.summary[field]

	for _, name := range candidates {
		if v, ok := e.Data[name]; ok && len(v) > 0 {
			return v.First()
		}
		if t, ok := e.Relation(name); ok {
			return t
		}
	}

	var keys []string
	for k := range e.Data {
		keys = append(keys, k)
	}
	for _, r := range e.Relations {
		keys = append(keys, r.Predicate)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		for _, name := range candidates {
			if !strings.HasPrefix(lk, strings.ToLower(name)) {
				continue
			}
			if v, ok := e.Data[k]; ok && len(v) > 0 {
				return v.First()
			}
			if t, ok := e.Relation(k); ok {
				return t
			}
		}
	}
	return ""
}
