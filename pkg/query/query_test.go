package query_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ontologia/pkg/query"
	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/testutil"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

var (
	rdfType      = storage.NewIRI(vocabulary.RdfType)
	fabricadoPor = testutil.IRI("fabricadoPor")
)

func localNames(terms []storage.Term) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.Value[len(testutil.Base):])
	}
	return out
}

func TestExecute_SinglePattern(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	q := &query.Query{
		Vars: []string{"s"},
		Where: []query.TriplePattern{
			{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.T(testutil.IRI("Procesador"))},
		},
	}

	res, err := query.Execute(context.Background(), e, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"s"}, res.Vars)
	assert.Equal(t, testutil.Processors, localNames(res.Column("s")))
}

func TestExecute_Join(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	q := &query.Query{
		Where: []query.TriplePattern{
			{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.T(testutil.IRI("Procesador"))},
			{Subject: query.V("s"), Predicate: query.T(fabricadoPor), Object: query.V("f")},
			{Subject: query.V("f"), Predicate: query.T(testutil.IRI("pais")), Object: query.V("pais")},
		},
	}

	res, err := query.Execute(context.Background(), e, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "f", "pais"}, res.Vars)
	assert.Equal(t, []string{"Apple_A16_Bionic", "Apple_M2"}, localNames(res.Column("s")))
	for _, b := range res.Bindings {
		assert.Equal(t, "USA", b["pais"].Value)
	}
}

func TestExecute_Filters(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	where := []query.TriplePattern{
		{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.T(testutil.IRI("Procesador"))},
	}

	re, err := query.NewRegex("s", "#apple_", true)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter query.Filter
		want   []string
	}{
		{"contains insensitive", query.Contains{Var: "s", Substring: "APPLE", CaseInsensitive: true}, []string{"Apple_A16_Bionic", "Apple_M2"}},
		{"contains sensitive", query.Contains{Var: "s", Substring: "APPLE"}, nil},
		{"regex", re, []string{"Apple_A16_Bionic", "Apple_M2"}},
		{"equals", query.Equals{Var: "s", Term: testutil.IRI("Apple_M2")}, []string{"Apple_M2"}},
		{"func", query.Func{Var: "s", Fn: func(t storage.Term) bool { return len(t.Value) > len(testutil.Base)+16 }}, []string{"Snapdragon_8_Gen_2", "Intel_Core_i9_13900K"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := query.Execute(context.Background(), e, &query.Query{Where: where, Filters: []query.Filter{tt.filter}})
			require.NoError(t, err)
			if tt.want == nil {
				assert.Equal(t, 0, res.Len())
				return
			}
			assert.Equal(t, tt.want, localNames(res.Column("s")))
		})
	}
}

func TestExecute_DistinctAndLimit(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	where := []query.TriplePattern{
		{Subject: query.V("s"), Predicate: query.T(fabricadoPor), Object: query.V("f")},
	}

	res, err := query.Execute(context.Background(), e, &query.Query{Vars: []string{"f"}, Where: where})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Len())

	res, err = query.Execute(context.Background(), e, &query.Query{Vars: []string{"f"}, Distinct: true, Where: where})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Qualcomm", "Intel", "NVIDIA"}, localNames(res.Column("f")))

	res, err = query.Execute(context.Background(), e, &query.Query{Vars: []string{"f"}, Distinct: true, Where: where, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Qualcomm"}, localNames(res.Column("f")))
}

func TestExecute_RepeatedVariable(t *testing.T) {
	e := storage.NewMemoryEngine()
	defer e.Close()
	a, p, b := testutil.IRI("a"), testutil.IRI("p"), testutil.IRI("b")
	require.NoError(t, e.Add([]storage.Triple{
		{Subject: a, Predicate: p, Object: a},
		{Subject: a, Predicate: p, Object: b},
	}))

	res, err := query.Execute(context.Background(), e, &query.Query{
		Where: []query.TriplePattern{{Subject: query.V("x"), Predicate: query.T(p), Object: query.V("x")}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, a, res.Bindings[0]["x"])
}

func TestExecute_Errors(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	where := []query.TriplePattern{
		{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.V("t")},
	}

	_, err := query.Execute(context.Background(), e, &query.Query{})
	assert.ErrorIs(t, err, query.ErrEmptyPattern)

	_, err = query.Execute(context.Background(), e, &query.Query{Vars: []string{"nope"}, Where: where})
	assert.ErrorIs(t, err, query.ErrUnboundProjection)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = query.Execute(ctx, e, &query.Query{Where: where})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_EnginesAgree(t *testing.T) {
	q := &query.Query{
		Distinct: true,
		Vars:     []string{"t"},
		Where: []query.TriplePattern{
			{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.V("t")},
		},
	}
	mem, err := query.Execute(context.Background(), testutil.NewMemoryEngine(t), q)
	require.NoError(t, err)
	bdg, err := query.Execute(context.Background(), testutil.NewBadgerEngine(t), q)
	require.NoError(t, err)
	assert.ElementsMatch(t, mem.Column("t"), bdg.Column("t"))
}

func TestResult_JSON(t *testing.T) {
	res := &query.Result{
		Vars: []string{"s", "v", "missing"},
		Bindings: []query.Binding{
			{"s": testutil.IRI("Apple_A16_Bionic"), "v": storage.NewTypedLiteral("3.46", vocabulary.XsdDecimal)},
			{"s": storage.NewBlank("b0"), "v": storage.NewLangLiteral("hola", "es")},
		},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{"s", "v", "missing"}, doc["head"].(map[string]any)["vars"])

	bindings := doc["results"].(map[string]any)["bindings"].([]any)
	require.Len(t, bindings, 2)

	first := bindings[0].(map[string]any)
	assert.Equal(t, map[string]any{"type": "uri", "value": testutil.Base + "Apple_A16_Bionic"}, first["s"])
	assert.Equal(t, map[string]any{"type": "literal", "value": "3.46", "datatype": vocabulary.XsdDecimal}, first["v"])
	assert.NotContains(t, first, "missing")

	second := bindings[1].(map[string]any)
	assert.Equal(t, "bnode", second["s"].(map[string]any)["type"])
	assert.Equal(t, "es", second["v"].(map[string]any)["xml:lang"])
}
