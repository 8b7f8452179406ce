// Tests shared by every Engine implementation.
package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/testutil"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

type engineFactory struct {
	name string
	make func(t *testing.T) storage.Engine
}

var engines = []engineFactory{
	{"memory", func(t *testing.T) storage.Engine {
		e := storage.NewMemoryEngine()
		t.Cleanup(func() { e.Close() })
		return e
	}},
	{"badger", func(t *testing.T) storage.Engine {
		e, err := storage.NewBadgerEngineInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { e.Close() })
		return e
	}},
}

func loaded(t *testing.T, f engineFactory) storage.Engine {
	t.Helper()
	e := f.make(t)
	require.NoError(t, e.Add(testutil.ProcessorTriples()))
	return e
}

func TestEngine_AddDeduplicates(t *testing.T) {
	for _, f := range engines {
		t.Run(f.name, func(t *testing.T) {
			e := loaded(t, f)
			want := len(testutil.ProcessorTriples())
			assert.Equal(t, want, e.Len())

			// adding everything again changes nothing
			require.NoError(t, e.Add(testutil.ProcessorTriples()))
			assert.Equal(t, want, e.Len())

			all, err := storage.All(e)
			require.NoError(t, err)
			assert.Len(t, all, want)
		})
	}
}

func TestEngine_AddRejectsInvalidTriples(t *testing.T) {
	bad := []storage.Triple{
		{Subject: storage.NewLiteral("x"), Predicate: testutil.IRI("p"), Object: testutil.IRI("o")},
		{Subject: testutil.IRI("s"), Predicate: storage.NewBlank("b"), Object: testutil.IRI("o")},
		{Subject: storage.NewIRI(""), Predicate: testutil.IRI("p"), Object: testutil.IRI("o")},
		{Subject: testutil.IRI("s"), Predicate: testutil.IRI("p"), Object: storage.Term{}},
	}
	for _, f := range engines {
		t.Run(f.name, func(t *testing.T) {
			e := f.make(t)
			for _, tr := range bad {
				err := e.Add([]storage.Triple{tr})
				assert.ErrorIs(t, err, storage.ErrInvalidTerm, tr.String())
			}
			assert.Equal(t, 0, e.Len())
		})
	}
}

func TestEngine_Match(t *testing.T) {
	typ := storage.NewIRI(vocabulary.RdfType)
	proc := testutil.IRI("Procesador")
	a16 := testutil.IRI("Apple_A16_Bionic")
	freq := testutil.IRI("frecuencia_max_GHz")

	for _, f := range engines {
		t.Run(f.name, func(t *testing.T) {
			e := loaded(t, f)

			t.Run("subjects by type", func(t *testing.T) {
				subs, err := storage.Subjects(e, typ, proc)
				require.NoError(t, err)
				var names []string
				for _, s := range subs {
					names = append(names, s.Value[len(testutil.Base):])
				}
				assert.ElementsMatch(t, testutil.Processors, names)
			})

			t.Run("objects of subject and predicate", func(t *testing.T) {
				objs, err := storage.Objects(e, a16, freq)
				require.NoError(t, err)
				require.Len(t, objs, 1)
				assert.Equal(t, "3.46", objs[0].Value)
				assert.Equal(t, vocabulary.XsdDecimal, objs[0].Datatype)
			})

			t.Run("predicate objects", func(t *testing.T) {
				pos, err := storage.PredicateObjects(e, a16)
				require.NoError(t, err)
				assert.Len(t, pos, 8)
			})

			t.Run("subject and object bound", func(t *testing.T) {
				n := 0
				err := e.Match(storage.Pattern{Subject: &a16, Object: &proc}, func(tr storage.Triple) bool {
					assert.Equal(t, typ, tr.Predicate)
					n++
					return true
				})
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("fully bound", func(t *testing.T) {
				n := 0
				err := e.Match(storage.Pattern{Subject: &a16, Predicate: &typ, Object: &proc}, func(storage.Triple) bool {
					n++
					return true
				})
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("unknown term matches nothing", func(t *testing.T) {
				ghost := testutil.IRI("NoExiste")
				called := false
				err := e.Match(storage.Pattern{Subject: &ghost}, func(storage.Triple) bool {
					called = true
					return true
				})
				require.NoError(t, err)
				assert.False(t, called)
			})

			t.Run("visitor can stop early", func(t *testing.T) {
				n := 0
				err := e.Match(storage.Pattern{Predicate: &typ}, func(storage.Triple) bool {
					n++
					return n < 3
				})
				require.NoError(t, err)
				assert.Equal(t, 3, n)
			})
		})
	}
}

func TestEngine_HasSubject(t *testing.T) {
	for _, f := range engines {
		t.Run(f.name, func(t *testing.T) {
			e := loaded(t, f)

			ok, err := e.HasSubject(testutil.IRI("Apple_A16_Bionic"))
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = e.HasSubject(testutil.IRI("Fantasma"))
			require.NoError(t, err)
			assert.True(t, ok)

			// appears only as an object
			ok, err = e.HasSubject(testutil.IRI("fabricadoPor_inexistente"))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = e.HasSubject(storage.NewIRI(vocabulary.OwlNamedIndividual))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestEngine_Close(t *testing.T) {
	for _, f := range engines {
		t.Run(f.name, func(t *testing.T) {
			e := loaded(t, f)
			require.NoError(t, e.Close())
			require.NoError(t, e.Close())

			_, err := e.HasSubject(testutil.IRI("Apple"))
			assert.ErrorIs(t, err, storage.ErrStorageClosed)
			assert.ErrorIs(t, e.Add(testutil.ProcessorTriples()), storage.ErrStorageClosed)
		})
	}
}

func TestMemoryEngine_InsertionOrder(t *testing.T) {
	e := testutil.NewMemoryEngine(t)
	all, err := storage.All(e)
	require.NoError(t, err)
	assert.Equal(t, testutil.ProcessorTriples(), all)
}

func TestBadgerEngine_OnDiskIsRebuilt(t *testing.T) {
	dir := t.TempDir()

	e, err := storage.NewBadgerEngine(dir)
	require.NoError(t, err)
	require.NoError(t, e.Add(testutil.ProcessorTriples()))
	require.NoError(t, e.Close())

	// reopening drops what the previous process wrote
	e, err = storage.NewBadgerEngine(dir)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 0, e.Len())
	ok, err := e.HasSubject(testutil.IRI("Apple_A16_Bionic"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerEngine_RequiresDataDir(t *testing.T) {
	_, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{})
	assert.Error(t, err)
}
