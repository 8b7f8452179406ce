package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ontologia/pkg/query"
	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/testutil"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

var ontoPrefixes = map[string]string{"onto": testutil.Base, "": testutil.Base}

func TestParse_Select(t *testing.T) {
	q, err := query.Parse(`
		# processors and their manufacturers
		SELECT DISTINCT ?s ?f WHERE {
			?s a onto:Procesador ;
			   onto:fabricadoPor ?f .
		} LIMIT 10`, ontoPrefixes)
	require.NoError(t, err)

	assert.True(t, q.Distinct)
	assert.Equal(t, []string{"s", "f"}, q.Vars)
	assert.Equal(t, 10, q.Limit)
	require.Len(t, q.Where, 2)
	assert.Equal(t, query.T(storage.NewIRI(vocabulary.RdfType)), q.Where[0].Predicate)
	assert.Equal(t, query.T(testutil.IRI("Procesador")), q.Where[0].Object)
	assert.Equal(t, query.V("s"), q.Where[1].Subject)
	assert.Equal(t, query.T(testutil.IRI("fabricadoPor")), q.Where[1].Predicate)
}

func TestParse_PrefixAndObjectList(t *testing.T) {
	q, err := query.Parse(`PREFIX ex: <http://example.org/>
		SELECT * { ex:a ex:p ex:b, "x"@es, "3.46"^^xsd:decimal, 42, 1.5 , :Local }`, ontoPrefixes)
	require.NoError(t, err)

	assert.Empty(t, q.Vars)
	require.Len(t, q.Where, 6)
	objects := make([]storage.Term, 0, 6)
	for _, tp := range q.Where {
		assert.Equal(t, query.T(storage.NewIRI("http://example.org/a")), tp.Subject)
		objects = append(objects, tp.Object.Term)
	}
	assert.Equal(t, []storage.Term{
		storage.NewIRI("http://example.org/b"),
		storage.NewLangLiteral("x", "es"),
		storage.NewTypedLiteral("3.46", vocabulary.XsdDecimal),
		storage.NewTypedLiteral("42", vocabulary.XsdInteger),
		storage.NewTypedLiteral("1.5", vocabulary.XsdDecimal),
		testutil.IRI("Local"),
	}, objects)
}

func TestParse_PrefixOverride(t *testing.T) {
	q, err := query.Parse(`PREFIX onto: <http://other/> SELECT ?s { ?s a onto:X }`, ontoPrefixes)
	require.NoError(t, err)
	assert.Equal(t, "http://other/X", q.Where[0].Object.Term.Value)
}

func TestParse_Filters(t *testing.T) {
	e := testutil.NewMemoryEngine(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"regex str insensitive", `SELECT ?s { ?s a onto:Procesador . FILTER regex(str(?s), "apple", "i") }`, []string{"Apple_A16_Bionic", "Apple_M2"}},
		{"regex sensitive", `SELECT ?s { ?s a onto:Procesador FILTER(regex(?s, "apple")) }`, nil},
		{"contains lcase", `SELECT ?s { ?s a onto:Procesador . FILTER(contains(lcase(str(?s)), "snapdragon")) }`, []string{"Snapdragon_8_Gen_2"}},
		{"contains lcase upper needle", `SELECT ?s { ?s a onto:Procesador . FILTER contains(lcase(str(?s)), "Snapdragon") }`, nil},
		{"contains", `SELECT ?s { ?s a onto:Procesador . FILTER contains(str(?s), "Intel") }`, []string{"Intel_Core_i9_13900K"}},
		{"equals", `SELECT ?s { ?s onto:fabricadoPor ?f . FILTER (?f = onto:Qualcomm) }`, []string{"Snapdragon_8_Gen_2"}},
		{"literal object", `SELECT ?s { ?s onto:frecuencia_max_GHz "3.46"^^xsd:decimal }`, []string{"Apple_A16_Bionic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := query.Parse(tt.query, ontoPrefixes)
			require.NoError(t, err)
			res, err := query.Execute(context.Background(), e, q)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Equal(t, 0, res.Len())
				return
			}
			assert.Equal(t, tt.want, localNames(res.Column("s")))
		})
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	bad := []string{
		``,
		`SELECT`,
		`SELECT ?s`,
		`SELECT ?s { }`,
		`SELECT ?s { ?s a onto:X`,
		`SELECT ?s { ?s a nope:X }`,
		`SELECT ?s { "lit" a onto:X }`,
		`SELECT ?s { ?s "lit" onto:X }`,
		`SELECT ?s { ?s a onto:X } LIMIT -1`,
		`SELECT ?s { ?s a onto:X } LIMIT ten`,
		`SELECT ?s { ?s a onto:X } extra`,
		`SELECT ?s { ?s a "unterminated }`,
		`SELECT ?s { ?s a <bad iri> }`,
		`SELECT ?s { ?s a onto:X . FILTER regex(?s, "(") }`,
		`SELECT ?s { ?s a onto:X . FILTER regex(?s, "a", "x") }`,
		`SELECT ?s { ?s a onto:X . FILTER bound(?s) }`,
		`SELECT ?s { ?s a onto:X . FILTER (?s = ?t) }`,
		`DESCRIBE ?s`,
	}
	for _, text := range bad {
		_, err := query.Parse(text, ontoPrefixes)
		assert.ErrorIs(t, err, query.ErrSyntax, text)
	}
}

func TestParse_ErrorReportsOffset(t *testing.T) {
	_, err := query.Parse(`SELECT ?s { ?s a nope:X }`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 17")
	assert.Contains(t, err.Error(), `unknown prefix "nope"`)
}
