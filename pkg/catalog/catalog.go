// Package catalog answers the questions the HTTP API asks of the ontology.
//
// A Catalog wraps a loaded storage.Engine and exposes four read-only views:
//
//   - Classes: the domain classes declared in the ontology
//   - Individuals: the members of one class (legacy listing)
//   - Search: members of a class whose name contains a fragment, with a
//     summary of their most common properties
//   - Detail / Resolve: every data property and relation of one individual
//
// plus Query for ad-hoc SPARQL-style SELECT queries.
//
// Open builds the engine and loads the ontology file. A file that cannot be
// read or parsed does not make Open fail: the failure is logged, recorded in
// Status and the catalog serves an empty store, so every lookup reports not
// found.
//
// Example:
//
//	cat, err := catalog.Open(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer cat.Close()
//
//	hits, err := cat.Search(ctx, "apple", "Procesador")
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/ontologia/pkg/cache"
	"github.com/orneryd/ontologia/pkg/config"
	"github.com/orneryd/ontologia/pkg/query"
	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// ErrNotFound is returned for identifiers with nothing to show.
var ErrNotFound = errors.New("entity not found")

// Options configures a Catalog built with New.
type Options struct {
	// Base is the ontology namespace. Defaults to vocabulary.DefaultBase.
	Base string
	// SearchLimit caps Search results. Defaults to 20.
	SearchLimit int
	// DefaultClass is used when a listing or search names no class.
	DefaultClass string
	// SummaryFields override DefaultSummaryFields entry by entry.
	SummaryFields map[string][]string
	// Cache memoises Search and Query. Nil disables caching.
	Cache *cache.ResultCache
}

// Status describes the loaded ontology.
type Status struct {
	Loaded       bool       `json:"loaded"`
	TripleCount  int        `json:"triple_count"`
	Namespace    string     `json:"namespace"`
	Engine       string     `json:"engine"`
	Source       string     `json:"source,omitempty"`
	Format       string     `json:"format,omitempty"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	LoadedAt     *time.Time `json:"loaded_at,omitempty"`
	LoadDuration string     `json:"load_duration,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Catalog is safe for concurrent use once loaded.
type Catalog struct {
	engine       storage.Engine
	norm         Normalizer
	logger       *zap.Logger
	cache        *cache.ResultCache
	limit        int
	defaultClass string
	summary      SummaryFields
	prefixes     map[string]string

	mu     sync.RWMutex
	status Status
}

// New wraps an engine that is already loaded.
func New(engine storage.Engine, opts Options, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Base == "" {
		opts.Base = vocabulary.DefaultBase
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	if opts.DefaultClass == "" {
		opts.DefaultClass = "Procesador"
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(1, 0)
		opts.Cache.SetEnabled(false)
	}

	c := &Catalog{
		engine:       engine,
		norm:         Normalizer{Base: opts.Base},
		logger:       logger,
		cache:        opts.Cache,
		limit:        opts.SearchLimit,
		defaultClass: opts.DefaultClass,
		summary:      DefaultSummaryFields().merge(opts.SummaryFields),
		prefixes:     map[string]string{"onto": opts.Base, "": opts.Base},
	}
	c.status = Status{
		Loaded:    engine.Len() > 0,
		Namespace: opts.Base,
		Engine:    engineName(engine),
	}
	return c
}

// Open creates the configured engine and loads the ontology file into it.
// Only engine construction errors are returned.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := newEngine(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	var rc *cache.ResultCache
	if cfg.Cache.Enabled {
		rc = cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}
	c := New(engine, Options{
		Base:          cfg.Ontology.Base,
		SearchLimit:   cfg.Search.Limit,
		DefaultClass:  cfg.Search.DefaultClass,
		SummaryFields: cfg.Search.SummaryFields,
		Cache:         rc,
	}, logger)

	if err := c.load(ctx, cfg); err != nil {
		engine.Close()
		return nil, err
	}
	return c, nil
}

func newEngine(cfg config.StorageConfig, logger *zap.Logger) (storage.Engine, error) {
	switch cfg.Engine {
	case config.EngineMemory, "":
		return storage.NewMemoryEngine(), nil
	case config.EngineBadger:
		e, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:  cfg.DataDir,
			InMemory: cfg.DataDir == "",
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening badger engine: %w", err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown storage engine: %q", cfg.Engine)
}

func engineName(e storage.Engine) string {
	switch e.(type) {
	case *storage.MemoryEngine:
		return config.EngineMemory
	case *storage.BadgerEngine:
		return config.EngineBadger
	}
	return fmt.Sprintf("%T", e)
}

// load fills the engine from the ontology file. Parse failures leave the
// catalog empty and are only recorded; a failure to rebuild the empty engine
// is returned.
func (c *Catalog) load(ctx context.Context, cfg *config.Config) error {
	path := cfg.Ontology.Path
	res, err := storage.LoadFile(ctx, c.engine, path, cfg.Ontology.Format)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Source = path

	if err != nil {
		c.logger.Error("ontology load failed, serving an empty store",
			zap.String("path", path),
			zap.Error(err),
		)
		c.status.Loaded = false
		c.status.Error = err.Error()
		if c.engine.Len() > 0 {
			// drop whatever the parser added before failing
			c.engine.Close()
			engine, nerr := newEngine(cfg.Storage, c.logger)
			if nerr != nil {
				return nerr
			}
			c.engine = engine
		}
		return nil
	}

	c.status.Loaded = true
	c.status.Format = res.Format
	c.status.Fingerprint = res.Fingerprint
	now := time.Now().UTC()
	c.status.LoadedAt = &now
	c.status.LoadDuration = res.Duration.String()
	c.logger.Info("ontology loaded",
		zap.String("path", path),
		zap.String("format", res.Format),
		zap.Int("triples", res.Triples),
		zap.Int("statements", res.Parsed),
		zap.String("fingerprint", res.Fingerprint),
		zap.Duration("duration", res.Duration),
	)
	return nil
}

// Status returns a snapshot of the load state.
func (c *Catalog) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	s.TripleCount = c.engine.Len()
	return s
}

// Len returns the number of triples in the store.
func (c *Catalog) Len() int { return c.engine.Len() }

// Namespace returns the ontology base namespace.
func (c *Catalog) Namespace() string { return c.norm.Base }

// DefaultClass returns the class used when none is given.
func (c *Catalog) DefaultClass() string { return c.defaultClass }

// Fingerprint identifies the loaded file, or "" when nothing was loaded.
func (c *Catalog) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.Fingerprint
}

// CacheStats reports the result cache statistics.
func (c *Catalog) CacheStats() cache.Stats { return c.cache.Stats() }

// Query parses and runs a SELECT query. The prefixes onto: and : are bound
// to the ontology namespace.
func (c *Catalog) Query(ctx context.Context, text string) (*query.Result, error) {
	v, err := c.cache.GetOrCompute(cache.Key("sparql", text), func() (any, error) {
		q, err := query.Parse(text, c.prefixes)
		if err != nil {
			return nil, err
		}
		return query.Execute(ctx, c.engine, q)
	})
	if err != nil {
		return nil, err
	}
	return v.(*query.Result), nil
}

// Close releases the engine.
func (c *Catalog) Close() error {
	return c.engine.Close()
}
