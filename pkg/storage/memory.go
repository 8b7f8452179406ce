package storage

import (
	"sync"
)

// termID is the interned id of a Term inside one MemoryEngine.
type termID uint32

type tripleKey [3]termID

// MemoryEngine is an in-memory triple store with subject, predicate and object
// indexes.
//
// Terms are interned once; triples are kept as id triples in insertion order and
// every index stores positions into that slice, so all lookups preserve the
// order in which the ontology file listed the statements.
//
// Example:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	engine.Add([]storage.Triple{{
//		Subject:   storage.NewIRI(base + "Apple_A16_Bionic"),
//		Predicate: storage.NewIRI(base + "frecuencia_max_GHz"),
//		Object:    storage.NewTypedLiteral("3.46", vocabulary.XsdDecimal),
//	}})
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
type MemoryEngine struct {
	mu sync.RWMutex

	terms []Term
	ids   map[Term]termID

	triples []tripleKey
	present map[tripleKey]struct{}

	// position lists into triples
	bySubject   map[termID][]int
	byPredicate map[termID][]int
	byObject    map[termID][]int

	closed bool
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		ids:         make(map[Term]termID),
		present:     make(map[tripleKey]struct{}),
		bySubject:   make(map[termID][]int),
		byPredicate: make(map[termID][]int),
		byObject:    make(map[termID][]int),
	}
}

// Add inserts the triples that are not already present. Invalid triples abort
// the whole batch before anything is written.
func (m *MemoryEngine) Add(triples []Triple) error {
	for _, t := range triples {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	for _, t := range triples {
		key := tripleKey{m.intern(t.Subject), m.intern(t.Predicate), m.intern(t.Object)}
		if _, dup := m.present[key]; dup {
			continue
		}
		pos := len(m.triples)
		m.triples = append(m.triples, key)
		m.present[key] = struct{}{}
		m.bySubject[key[0]] = append(m.bySubject[key[0]], pos)
		m.byPredicate[key[1]] = append(m.byPredicate[key[1]], pos)
		m.byObject[key[2]] = append(m.byObject[key[2]], pos)
	}
	return nil
}

// intern must be called with the write lock held.
func (m *MemoryEngine) intern(t Term) termID {
	if id, ok := m.ids[t]; ok {
		return id
	}
	id := termID(len(m.terms))
	m.terms = append(m.terms, t)
	m.ids[t] = id
	return id
}

// Len returns the number of distinct triples.
func (m *MemoryEngine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.triples)
}

// HasSubject reports whether s has at least one triple.
func (m *MemoryEngine) HasSubject(s Term) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrStorageClosed
	}
	id, ok := m.ids[s]
	if !ok {
		return false, nil
	}
	return len(m.bySubject[id]) > 0, nil
}

// Match visits the triples matching p in insertion order.
func (m *MemoryEngine) Match(p Pattern, fn TripleVisitor) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrStorageClosed
	}

	var want [3]termID
	var bound [3]bool
	for i, term := range []*Term{p.Subject, p.Predicate, p.Object} {
		if term == nil {
			continue
		}
		id, ok := m.ids[*term]
		if !ok {
			// A term that was never interned cannot match anything.
			return nil
		}
		want[i] = id
		bound[i] = true
	}

	positions := m.candidates(want, bound)
	visit := func(pos int) bool {
		key := m.triples[pos]
		for i := range key {
			if bound[i] && key[i] != want[i] {
				return true
			}
		}
		return fn(Triple{
			Subject:   m.terms[key[0]],
			Predicate: m.terms[key[1]],
			Object:    m.terms[key[2]],
		})
	}

	if positions == nil {
		for pos := range m.triples {
			if !visit(pos) {
				return nil
			}
		}
		return nil
	}
	for _, pos := range positions {
		if !visit(pos) {
			return nil
		}
	}
	return nil
}

// candidates picks the shortest index list among the bound positions. A nil
// result means a full scan.
func (m *MemoryEngine) candidates(want [3]termID, bound [3]bool) []int {
	indexes := [3]map[termID][]int{m.bySubject, m.byPredicate, m.byObject}
	var best []int
	found := false
	for i := range indexes {
		if !bound[i] {
			continue
		}
		list := indexes[i][want[i]]
		if !found || len(list) < len(best) {
			best = list
			found = true
		}
	}
	if found && best == nil {
		return []int{}
	}
	return best
}

// Close drops all data.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.terms = nil
	m.ids = nil
	m.triples = nil
	m.present = nil
	m.bySubject = nil
	m.byPredicate = nil
	m.byObject = nil
	return nil
}
