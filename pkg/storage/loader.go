// Package storage provides storage implementations and ontology file loading.
//
// This file parses the ontology file into triples and bulk-loads them into an
// Engine. RDF/XML is decoded with encoding/xml (rdfxml.go); Turtle and
// N-Triples are delegated to github.com/knakk/rdf.
//
// Supported Formats:
//   - RDF/XML (.rdf, .owl, .xml) - what Protégé writes by default
//   - Turtle (.ttl)
//   - N-Triples (.nt)
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	result, err := storage.LoadFile(ctx, engine, "ontologia.rdf", "")
//	if err != nil {
//		log.Printf("ontology not loaded: %v", err)
//	}
package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knakk/rdf"
	"golang.org/x/crypto/blake2b"
)

// Format names accepted by LoadFile and the configuration.
const (
	FormatRDFXML   = "xml"
	FormatTurtle   = "turtle"
	FormatNTriples = "nt"
)

// loadBatchSize is the number of parsed triples handed to Engine.Add at once.
const loadBatchSize = 1000

// LoadResult describes a completed load.
type LoadResult struct {
	Path        string        `json:"path"`
	Format      string        `json:"format"`
	Triples     int           `json:"triples"`
	Parsed      int           `json:"parsed"`
	Fingerprint string        `json:"fingerprint"`
	Duration    time.Duration `json:"duration"`
}

// DetectFormat maps a file extension to a format name.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rdf", ".owl", ".xml":
		return FormatRDFXML, nil
	case ".ttl":
		return FormatTurtle, nil
	case ".nt":
		return FormatNTriples, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// decodeFunc decodes a document and hands each statement to emit.
type decodeFunc func(r io.Reader, emit func(Triple) error) error

func decoderFor(format string) (decodeFunc, error) {
	switch format {
	case FormatRDFXML, "rdfxml", "rdf/xml":
		return decodeRDFXML, nil
	case FormatTurtle, "ttl":
		return knakkDecoder(rdf.Turtle), nil
	case FormatNTriples, "ntriples", "n-triples":
		return knakkDecoder(rdf.NTriples), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func knakkDecoder(f rdf.Format) decodeFunc {
	return func(r io.Reader, emit func(Triple) error) error {
		dec := rdf.NewTripleDecoder(r, f)
		for {
			tr, err := dec.Decode()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			t, err := convertTriple(tr)
			if err != nil {
				return err
			}
			if err := emit(t); err != nil {
				return err
			}
		}
	}
}

// Fingerprint returns the hex BLAKE2b-256 digest of data.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadFile parses the ontology at path and adds its triples to engine.
//
// format may be empty, in which case it is derived from the file extension.
// Triples are added in batches; ctx is checked between batches.
//
// Returns:
//   - *LoadResult with the number of distinct triples now in the engine
//   - error wrapping os.ErrNotExist when the file is missing, or the parser
//     error for malformed files. Nothing is guaranteed about the engine
//     contents after a parse error.
func LoadFile(ctx context.Context, engine Engine, path, format string) (*LoadResult, error) {
	start := time.Now()

	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ontology: %w", err)
	}

	parsed, err := Load(ctx, engine, bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &LoadResult{
		Path:        path,
		Format:      format,
		Triples:     engine.Len(),
		Parsed:      parsed,
		Fingerprint: Fingerprint(data),
		Duration:    time.Since(start),
	}, nil
}

// Load decodes triples from r and adds them to engine. It returns the number
// of statements read, duplicates included.
func Load(ctx context.Context, engine Engine, r io.Reader, format string) (int, error) {
	decode, err := decoderFor(format)
	if err != nil {
		return 0, err
	}

	batch := make([]Triple, 0, loadBatchSize)
	parsed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := engine.Add(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err = decode(r, func(t Triple) error {
		batch = append(batch, t)
		parsed++
		if len(batch) == loadBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return parsed, err
	}
	return parsed, flush()
}

func convertTriple(tr rdf.Triple) (Triple, error) {
	s, err := convertTerm(tr.Subj)
	if err != nil {
		return Triple{}, err
	}
	p, err := convertTerm(tr.Pred)
	if err != nil {
		return Triple{}, err
	}
	o, err := convertTerm(tr.Obj)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: s, Predicate: p, Object: o}, nil
}

func convertTerm(term rdf.Term) (Term, error) {
	switch v := term.(type) {
	case rdf.IRI:
		return NewIRI(v.String()), nil
	case rdf.Blank:
		return NewBlank(strings.TrimPrefix(v.String(), "_:")), nil
	case rdf.Literal:
		if lang := v.Lang(); lang != "" {
			return NewLangLiteral(v.String(), lang), nil
		}
		return NewTypedLiteral(v.String(), v.DataType.String()), nil
	default:
		return Term{}, fmt.Errorf("%w: %T", ErrInvalidTerm, term)
	}
}
