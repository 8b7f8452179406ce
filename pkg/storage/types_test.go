package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerm_String(t *testing.T) {
	assert.Equal(t, "<http://x#a>", NewIRI("http://x#a").String())
	assert.Equal(t, "_:b1", NewBlank("b1").String())
	assert.Equal(t, `"hola"`, NewLiteral("hola").String())
	assert.Equal(t, `"hola"@es`, NewLangLiteral("hola", "es").String())
	assert.Equal(t, `"3.46"^^<http://www.w3.org/2001/XMLSchema#decimal>`,
		NewTypedLiteral("3.46", "http://www.w3.org/2001/XMLSchema#decimal").String())
}

func TestTerm_Validate(t *testing.T) {
	assert.NoError(t, NewIRI("http://x#a").Validate())
	assert.NoError(t, NewLiteral("").Validate())
	assert.ErrorIs(t, NewIRI("").Validate(), ErrInvalidTerm)
	assert.ErrorIs(t, NewBlank("").Validate(), ErrInvalidTerm)
	assert.ErrorIs(t, Term{}.Validate(), ErrInvalidTerm)
	assert.ErrorIs(t, Term{Kind: KindLiteral, Value: "x", Datatype: "d", Lang: "es"}.Validate(), ErrInvalidTerm)
}

func TestTermKind_String(t *testing.T) {
	assert.Equal(t, "uri", KindIRI.String())
	assert.Equal(t, "bnode", KindBlank.String())
	assert.Equal(t, "literal", KindLiteral.String())
	assert.Equal(t, "unknown", TermKind(0).String())
}

func TestPattern_Matches(t *testing.T) {
	s, p, o := NewIRI("s"), NewIRI("p"), NewLiteral("o")
	tr := Triple{Subject: s, Predicate: p, Object: o}

	other := NewIRI("other")
	assert.True(t, Pattern{}.Matches(tr))
	assert.True(t, Pattern{Subject: &s, Object: &o}.Matches(tr))
	assert.False(t, Pattern{Predicate: &other}.Matches(tr))
}

func TestIndexKeyRoundTrip(t *testing.T) {
	for _, prefix := range []byte{prefixSPO, prefixPOS, prefixOSP} {
		var key []byte
		switch prefix {
		case prefixSPO:
			key = indexKey(prefix, 1, 2, 3)
		case prefixPOS:
			key = indexKey(prefix, 2, 3, 1)
		case prefixOSP:
			key = indexKey(prefix, 3, 1, 2)
		}
		s, p, o := decodeIndexKey(key)
		assert.Equal(t, [3]uint64{1, 2, 3}, [3]uint64{s, p, o}, "prefix %x", prefix)
	}
}
