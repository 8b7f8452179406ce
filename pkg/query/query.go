// Package query evaluates SPARQL-style SELECT queries over a storage.Engine.
//
// Only basic graph patterns are supported: a list of triple patterns joined on
// shared variables, a set of filters and an optional LIMIT. That is all the
// ontology API needs, and it keeps evaluation a plain nested-loop join driven
// by the engine's pattern index.
//
// Queries can be built in Go:
//
//	q := &query.Query{
//		Vars: []string{"s"},
//		Where: []query.TriplePattern{
//			{Subject: query.V("s"), Predicate: query.T(rdfType), Object: query.T(procesador)},
//		},
//		Filters: []query.Filter{query.Contains{Var: "s", Substring: "apple", CaseInsensitive: true}},
//		Limit:   20,
//	}
//	res, err := query.Execute(ctx, engine, q)
//
// or parsed from text with Parse.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/orneryd/ontologia/pkg/storage"
)

// Errors returned by Parse and Execute.
var (
	ErrSyntax            = errors.New("query syntax error")
	ErrUnboundProjection = errors.New("projected variable not used in pattern")
	ErrEmptyPattern      = errors.New("query has no triple patterns")
)

// Node is a position of a triple pattern: a variable or a constant term.
type Node struct {
	Var  string
	Term storage.Term
}

// V returns a variable node. The name is given without '?'.
func V(name string) Node { return Node{Var: name} }

// T returns a constant node.
func T(term storage.Term) Node { return Node{Term: term} }

// IsVar reports whether the node is a variable.
func (n Node) IsVar() bool { return n.Var != "" }

func (n Node) String() string {
	if n.IsVar() {
		return "?" + n.Var
	}
	return n.Term.String()
}

// TriplePattern is one line of a WHERE block.
type TriplePattern struct {
	Subject   Node
	Predicate Node
	Object    Node
}

func (tp TriplePattern) nodes() [3]Node {
	return [3]Node{tp.Subject, tp.Predicate, tp.Object}
}

// Binding maps variable names to the terms they are bound to.
type Binding map[string]storage.Term

func (b Binding) clone() Binding {
	out := make(Binding, len(b)+3)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Query is a SELECT over a basic graph pattern.
type Query struct {
	// Vars to project. Empty means every variable, in order of appearance.
	Vars     []string
	Distinct bool
	Where    []TriplePattern
	Filters  []Filter
	// Limit caps the number of solutions. Zero means unlimited.
	Limit int
}

// Variables returns the variables used in Where, in order of first appearance.
func (q *Query) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tp := range q.Where {
		for _, n := range tp.nodes() {
			if !n.IsVar() {
				continue
			}
			if _, ok := seen[n.Var]; !ok {
				seen[n.Var] = struct{}{}
				out = append(out, n.Var)
			}
		}
	}
	return out
}

// Result holds the solutions of a query.
type Result struct {
	Vars     []string
	Bindings []Binding
}

// Len returns the number of solutions.
func (r *Result) Len() int { return len(r.Bindings) }

// Column returns the values bound to name, one per solution.
func (r *Result) Column(name string) []storage.Term {
	out := make([]storage.Term, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		if t, ok := b[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Filter restricts solutions.
type Filter interface {
	// Vars lists the variables the filter reads.
	Vars() []string
	// Eval reports whether the binding passes. Unbound variables fail.
	Eval(Binding) bool
}

// Str returns the SPARQL str() of a term: the IRI, the blank node label or
// the lexical form of a literal.
func Str(t storage.Term) string {
	return t.Value
}

// Regex passes when str(?Var) matches the expression.
type Regex struct {
	Var string
	Re  *regexp.Regexp
}

// NewRegex compiles pattern. With caseInsensitive the "i" flag is applied.
func NewRegex(variable, pattern string, caseInsensitive bool) (Regex, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Regex{}, fmt.Errorf("%w: invalid regex: %v", ErrSyntax, err)
	}
	return Regex{Var: variable, Re: re}, nil
}

func (f Regex) Vars() []string { return []string{f.Var} }

func (f Regex) Eval(b Binding) bool {
	t, ok := b[f.Var]
	return ok && f.Re.MatchString(Str(t))
}

// Contains passes when str(?Var) contains Substring.
type Contains struct {
	Var             string
	Substring       string
	CaseInsensitive bool
}

func (f Contains) Vars() []string { return []string{f.Var} }

func (f Contains) Eval(b Binding) bool {
	t, ok := b[f.Var]
	if !ok {
		return false
	}
	if f.CaseInsensitive {
		return strings.Contains(strings.ToLower(Str(t)), strings.ToLower(f.Substring))
	}
	return strings.Contains(Str(t), f.Substring)
}

// Equals passes when ?Var is bound to Term.
type Equals struct {
	Var  string
	Term storage.Term
}

func (f Equals) Vars() []string { return []string{f.Var} }

func (f Equals) Eval(b Binding) bool {
	t, ok := b[f.Var]
	return ok && t == f.Term
}

// Func adapts a Go predicate over one variable.
type Func struct {
	Var string
	Fn  func(storage.Term) bool
}

func (f Func) Vars() []string { return []string{f.Var} }

func (f Func) Eval(b Binding) bool {
	t, ok := b[f.Var]
	return ok && f.Fn(t)
}

// Execute evaluates q against engine.
//
// Patterns are joined in the order given; each filter runs as soon as all of
// its variables are bound. ctx is checked before every pattern lookup.
func Execute(ctx context.Context, engine storage.Engine, q *Query) (*Result, error) {
	if len(q.Where) == 0 {
		return nil, ErrEmptyPattern
	}

	all := q.Variables()
	// level at which each variable becomes bound
	known := make(map[string]int, len(all))
	for level, tp := range q.Where {
		for _, n := range tp.nodes() {
			if n.IsVar() {
				if _, ok := known[n.Var]; !ok {
					known[n.Var] = level
				}
			}
		}
	}

	vars := q.Vars
	if len(vars) == 0 {
		vars = all
	}
	for _, v := range vars {
		if _, ok := known[v]; !ok {
			return nil, fmt.Errorf("%w: ?%s", ErrUnboundProjection, v)
		}
	}

	// filters grouped by the level after which they can run
	byLevel := make([][]Filter, len(q.Where))
	last := len(q.Where) - 1
	for _, f := range q.Filters {
		level := 0
		for _, v := range f.Vars() {
			l, ok := known[v]
			if !ok {
				l = last
			}
			level = max(level, l)
		}
		byLevel[level] = append(byLevel[level], f)
	}

	ev := &evaluator{
		ctx:     ctx,
		engine:  engine,
		q:       q,
		vars:    vars,
		filters: byLevel,
		seen:    make(map[string]struct{}),
		result:  &Result{Vars: vars},
	}
	if _, err := ev.solve(0, Binding{}); err != nil {
		return nil, err
	}
	return ev.result, nil
}

type evaluator struct {
	ctx     context.Context
	engine  storage.Engine
	q       *Query
	vars    []string
	filters [][]Filter
	seen    map[string]struct{}
	result  *Result
}

// solve extends b with the matches of pattern level. It returns false once
// the limit is reached.
func (ev *evaluator) solve(level int, b Binding) (bool, error) {
	if level == len(ev.q.Where) {
		return ev.emit(b), nil
	}
	if err := ev.ctx.Err(); err != nil {
		return false, err
	}

	tp := ev.q.Where[level]
	var pat storage.Pattern
	slots := [3]**storage.Term{&pat.Subject, &pat.Predicate, &pat.Object}
	for i, n := range tp.nodes() {
		switch {
		case !n.IsVar():
			term := n.Term
			*slots[i] = &term
		default:
			if bound, ok := b[n.Var]; ok {
				term := bound
				*slots[i] = &term
			}
		}
	}

	// Collect first so no engine lock is held while recursing.
	var matches []storage.Triple
	if err := ev.engine.Match(pat, func(t storage.Triple) bool {
		matches = append(matches, t)
		return true
	}); err != nil {
		return false, err
	}

	for _, t := range matches {
		next, ok := extend(b, tp, t)
		if !ok || !passes(ev.filters[level], next) {
			continue
		}
		more, err := ev.solve(level+1, next)
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}

// extend binds the variables of tp to t. It fails when a variable repeated in
// the pattern would get two different values.
func extend(b Binding, tp TriplePattern, t storage.Triple) (Binding, bool) {
	next := b.clone()
	values := [3]storage.Term{t.Subject, t.Predicate, t.Object}
	for i, n := range tp.nodes() {
		if !n.IsVar() {
			continue
		}
		if cur, ok := next[n.Var]; ok {
			if cur != values[i] {
				return nil, false
			}
			continue
		}
		next[n.Var] = values[i]
	}
	return next, true
}

func passes(filters []Filter, b Binding) bool {
	for _, f := range filters {
		if !f.Eval(b) {
			return false
		}
	}
	return true
}

func (ev *evaluator) emit(b Binding) bool {
	row := make(Binding, len(ev.vars))
	for _, v := range ev.vars {
		row[v] = b[v]
	}

	if ev.q.Distinct {
		var key strings.Builder
		for _, v := range ev.vars {
			key.WriteString(row[v].String())
			key.WriteByte(0)
		}
		if _, dup := ev.seen[key.String()]; dup {
			return true
		}
		ev.seen[key.String()] = struct{}{}
	}

	ev.result.Bindings = append(ev.result.Bindings, row)
	return ev.q.Limit <= 0 || len(ev.result.Bindings) < ev.q.Limit
}
