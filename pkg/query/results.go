package query

import (
	"encoding/json"

	"github.com/orneryd/ontologia/pkg/storage"
)

// JSONTerm is one RDF term in the SPARQL 1.1 query results JSON format.
type JSONTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// JSONResults is the SPARQL 1.1 query results JSON document.
type JSONResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]JSONTerm `json:"bindings"`
	} `json:"results"`
}

// NewJSONTerm converts a storage term.
func NewJSONTerm(t storage.Term) JSONTerm {
	return JSONTerm{
		Type:     t.Kind.String(),
		Value:    t.Value,
		Datatype: t.Datatype,
		Lang:     t.Lang,
	}
}

// JSON converts the result to the SPARQL JSON document. Unbound variables are
// omitted from their binding object.
func (r *Result) JSON() *JSONResults {
	out := &JSONResults{}
	out.Head.Vars = append([]string{}, r.Vars...)
	out.Results.Bindings = make([]map[string]JSONTerm, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		row := make(map[string]JSONTerm, len(b))
		for _, v := range r.Vars {
			t, ok := b[v]
			if !ok || t.Kind == 0 {
				continue
			}
			row[v] = NewJSONTerm(t)
		}
		out.Results.Bindings = append(out.Results.Bindings, row)
	}
	return out
}

// MarshalJSON encodes the result in the SPARQL JSON format.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.JSON())
}
