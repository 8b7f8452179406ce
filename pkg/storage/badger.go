// Package storage provides storage engine implementations for the ontology API.
//
// BadgerEngine keeps the triple set in BadgerDB. Terms are dictionary-encoded to
// 8-byte ids and each triple is written under three fixed-width index keys, so
// any pattern with at least one bound position is a single prefix scan.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Key prefixes for BadgerDB storage organization
const (
	prefixSPO      = byte(0x01) // s:p:o -> empty
	prefixPOS      = byte(0x02) // p:o:s -> empty
	prefixOSP      = byte(0x03) // o:s:p -> empty
	prefixTermToID = byte(0x10) // JSON(term) -> id
	prefixIDToTerm = byte(0x11) // id -> JSON(term)
)

// addChunkSize bounds the number of triples written per transaction to stay
// below badger's transaction size limit.
const addChunkSize = 1000

// BadgerEngine provides triple storage on BadgerDB.
//
// Key Structure:
//   - Dictionary: 0x10 + JSON(term) -> id, 0x11 + id -> JSON(term)
//   - SPO index:  0x01 + s + p + o -> empty
//   - POS index:  0x02 + p + o + s -> empty
//   - OSP index:  0x03 + o + s + p -> empty
//
// Ids are big-endian uint64 assigned in first-seen order, so a full scan
// groups triples by subject in the order subjects appeared in the file.
//
// Example:
//
//	engine, err := storage.NewBadgerEngineInMemory()
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	nextID atomic.Uint64
	count  atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for the database files. Ignored when InMemory.
	DataDir string

	// InMemory runs BadgerDB without touching disk.
	InMemory bool

	// Logger receives BadgerDB's internal logging. Nil silences it.
	Logger *zap.Logger
}

// NewBadgerEngine opens an on-disk engine in dataDir. Existing contents are
// dropped: the ontology file is the only source of truth and is reloaded on
// every boot.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory creates an engine backed by an in-memory BadgerDB.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("badger engine: data dir required when not in memory")
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{opts.Logger.Named("badger").Sugar()})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	// The whole ontology is a few thousand triples; keep badger's buffers small.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	if !opts.InMemory {
		if err := db.DropAll(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to reset BadgerDB: %w", err)
		}
	}

	return &BadgerEngine{db: db}, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func indexKey(prefix byte, a, b, c uint64) []byte {
	key := make([]byte, 25)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], a)
	binary.BigEndian.PutUint64(key[9:], b)
	binary.BigEndian.PutUint64(key[17:], c)
	return key
}

func indexPrefix(prefix byte, ids ...uint64) []byte {
	key := make([]byte, 1, 1+8*len(ids))
	key[0] = prefix
	for _, id := range ids {
		key = append(key, encodeID(id)...)
	}
	return key
}

// decodeIndexKey returns the ids of an index key in s, p, o order.
func decodeIndexKey(key []byte) (s, p, o uint64) {
	a := binary.BigEndian.Uint64(key[1:9])
	b := binary.BigEndian.Uint64(key[9:17])
	c := binary.BigEndian.Uint64(key[17:25])
	switch key[0] {
	case prefixPOS:
		return c, a, b
	case prefixOSP:
		return b, c, a
	default:
		return a, b, c
	}
}

func termKey(t Term) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return append([]byte{prefixTermToID}, data...), nil
}

func idKey(id uint64) []byte {
	return append([]byte{prefixIDToTerm}, encodeID(id)...)
}

// ============================================================================
// Engine implementation
// ============================================================================

// Add inserts the triples that are not already present.
func (b *BadgerEngine) Add(triples []Triple) error {
	for _, t := range triples {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}

	for start := 0; start < len(triples); start += addChunkSize {
		end := min(start+addChunkSize, len(triples))
		var added int64
		err := b.db.Update(func(txn *badger.Txn) error {
			added = 0
			for _, t := range triples[start:end] {
				s, err := b.termID(txn, t.Subject, true)
				if err != nil {
					return err
				}
				p, err := b.termID(txn, t.Predicate, true)
				if err != nil {
					return err
				}
				o, err := b.termID(txn, t.Object, true)
				if err != nil {
					return err
				}

				spo := indexKey(prefixSPO, s, p, o)
				if _, err := txn.Get(spo); err == nil {
					continue
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}

				for _, key := range [][]byte{spo, indexKey(prefixPOS, p, o, s), indexKey(prefixOSP, o, s, p)} {
					if err := txn.Set(key, nil); err != nil {
						return err
					}
				}
				added++
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("badger add: %w", err)
		}
		b.count.Add(added)
	}
	return nil
}

// termID looks up (and with create, assigns) the dictionary id of t.
// A zero id with a nil error means the term is unknown.
func (b *BadgerEngine) termID(txn *badger.Txn, t Term, create bool) (uint64, error) {
	key, err := termKey(t)
	if err != nil {
		return 0, err
	}

	item, err := txn.Get(key)
	switch {
	case err == nil:
		var id uint64
		err = item.Value(func(val []byte) error {
			id = binary.BigEndian.Uint64(val)
			return nil
		})
		return id, err
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	case !create:
		return 0, nil
	}

	id := b.nextID.Add(1)
	if err := txn.Set(key, encodeID(id)); err != nil {
		return 0, err
	}
	if err := txn.Set(idKey(id), key[1:]); err != nil {
		return 0, err
	}
	return id, nil
}

func (b *BadgerEngine) lookupTerm(txn *badger.Txn, id uint64, cache map[uint64]Term) (Term, error) {
	if t, ok := cache[id]; ok {
		return t, nil
	}
	item, err := txn.Get(idKey(id))
	if err != nil {
		return Term{}, fmt.Errorf("dictionary id %d: %w", id, err)
	}
	var t Term
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	}); err != nil {
		return Term{}, err
	}
	cache[id] = t
	return t, nil
}

// Len returns the number of distinct triples.
func (b *BadgerEngine) Len() int {
	return int(b.count.Load())
}

// HasSubject reports whether s has at least one triple.
func (b *BadgerEngine) HasSubject(s Term) (bool, error) {
	found := false
	err := b.Match(Pattern{Subject: &s}, func(Triple) bool {
		found = true
		return false
	})
	return found, err
}

// Match visits the triples matching p. The index is chosen from the bound
// positions: subject first, then predicate, then object.
func (b *BadgerEngine) Match(p Pattern, fn TripleVisitor) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrStorageClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		var ids [3]uint64
		var bound [3]bool
		for i, term := range []*Term{p.Subject, p.Predicate, p.Object} {
			if term == nil {
				continue
			}
			id, err := b.termID(txn, *term, false)
			if err != nil {
				return err
			}
			if id == 0 {
				return nil
			}
			ids[i], bound[i] = id, true
		}

		var prefix []byte
		switch {
		case bound[0] && bound[1] && bound[2]:
			prefix = indexPrefix(prefixSPO, ids[0], ids[1], ids[2])
		case bound[0] && bound[1]:
			prefix = indexPrefix(prefixSPO, ids[0], ids[1])
		case bound[0]:
			prefix = indexPrefix(prefixSPO, ids[0])
		case bound[1] && bound[2]:
			prefix = indexPrefix(prefixPOS, ids[1], ids[2])
		case bound[1]:
			prefix = indexPrefix(prefixPOS, ids[1])
		case bound[2]:
			prefix = indexPrefix(prefixOSP, ids[2])
		default:
			prefix = indexPrefix(prefixSPO)
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		cache := make(map[uint64]Term)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			s, pr, o := decodeIndexKey(it.Item().Key())
			got := [3]uint64{s, pr, o}
			skip := false
			for i := range got {
				if bound[i] && got[i] != ids[i] {
					skip = true
					break
				}
			}
			if skip {
				continue
			}

			var t Triple
			var err error
			if t.Subject, err = b.lookupTerm(txn, s, cache); err != nil {
				return err
			}
			if t.Predicate, err = b.lookupTerm(txn, pr, cache); err != nil {
				return err
			}
			if t.Object, err = b.lookupTerm(txn, o, cache); err != nil {
				return err
			}
			if !fn(t) {
				return nil
			}
		}
		return nil
	})
}

// Close closes the BadgerDB database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
