package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// Parse reads a SELECT query in the supported SPARQL subset.
//
// prefixes are available without a PREFIX declaration; declarations in the
// text override them. The rdf, rdfs, owl and xsd prefixes are always known.
//
// Supported:
//
//	PREFIX p: <iri>
//	SELECT [DISTINCT] ?a ?b | *
//	[WHERE] { s p o . s p o ; p o , o . FILTER(...) }
//	LIMIT n
//
// FILTER accepts regex(?v|str(?v), "re" [, "i"]),
// contains(?v|str(?v)|lcase(str(?v)), "x") and (?v = term).
func Parse(text string, prefixes map[string]string) (*Query, error) {
	p := &parser{
		lex:      &lexer{src: text},
		prefixes: vocabulary.StandardPrefixes(),
	}
	for k, v := range prefixes {
		p.prefixes[k] = v
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokNumber
	tokLang
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokIRI:
		return "<" + t.text + ">"
	case tokVar:
		return "?" + t.text
	case tokString:
		return fmt.Sprintf("%q", t.text)
	case tokLang:
		return "@" + t.text
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

type lexer struct {
	src string
	pos int
}

func isNameChar(r byte) bool {
	return r == '_' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= 0x80
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

func (l *lexer) next() (token, error) {
	// whitespace and comments
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if !unicode.IsSpace(rune(c)) {
			break
		}
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '<':
		end := strings.IndexByte(l.src[l.pos+1:], '>')
		if end < 0 {
			return token{}, l.errorf(start, "unterminated IRI")
		}
		iri := l.src[l.pos+1 : l.pos+1+end]
		if strings.ContainsAny(iri, " \t\n\"{}") {
			return token{}, l.errorf(start, "invalid IRI %q", iri)
		}
		l.pos += end + 2
		return token{kind: tokIRI, text: iri, pos: start}, nil

	case c == '?' || c == '$':
		l.pos++
		for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
			l.pos++
		}
		name := l.src[start+1 : l.pos]
		if name == "" {
			return token{}, l.errorf(start, "empty variable name")
		}
		return token{kind: tokVar, text: name, pos: start}, nil

	case c == '"' || c == '\'':
		return l.readString(c)

	case c == '@':
		l.pos++
		for l.pos < len(l.src) && (isNameChar(l.src[l.pos])) {
			l.pos++
		}
		if l.pos == start+1 {
			return token{}, l.errorf(start, "empty language tag")
		}
		return token{kind: tokLang, text: l.src[start+1 : l.pos], pos: start}, nil

	case c == '^':
		if strings.HasPrefix(l.src[l.pos:], "^^") {
			l.pos += 2
			return token{kind: tokPunct, text: "^^", pos: start}, nil
		}
		return token{}, l.errorf(start, "unexpected '^'")

	case c >= '0' && c <= '9' || (c == '-' || c == '+') && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9':
		l.pos++
		dot := false
		for l.pos < len(l.src) {
			d := l.src[l.pos]
			if d >= '0' && d <= '9' {
				l.pos++
				continue
			}
			if d == '.' && !dot && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
				dot = true
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil

	case strings.IndexByte("{}().;,=*", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil

	case c == ':' || isNameChar(c):
		colon := false
	scan:
		for l.pos < len(l.src) {
			d := l.src[l.pos]
			switch {
			case isNameChar(d):
				l.pos++
			case d == ':' && !colon:
				colon = true
				l.pos++
			case d == '.' && colon && l.pos+1 < len(l.src) && isNameChar(l.src[l.pos+1]):
				l.pos++
			default:
				break scan
			}
		}
		word := l.src[start:l.pos]
		if colon {
			return token{kind: tokPName, text: word, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character %q", c)
}

func (l *lexer) readString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return token{}, l.errorf(start, "unterminated string")
			}
			switch e := l.src[l.pos+1]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\'', '\\':
				b.WriteByte(e)
			default:
				return token{}, l.errorf(l.pos, "unknown escape \\%c", e)
			}
			l.pos += 2
		case '\n':
			return token{}, l.errorf(start, "newline in string")
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, l.errorf(start, "unterminated string")
}

type parser struct {
	lex      *lexer
	tok      token
	prefixes map[string]string
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return p.lex.errorf(p.tok.pos, format, args...)
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) isPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errorf("expected %s, found %s", kw, p.tok)
	}
	return p.advance()
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.errorf("expected %q, found %s", s, p.tok)
	}
	return p.advance()
}

func (p *parser) parseQuery() (*Query, error) {
	for p.isKeyword("PREFIX") {
		if err := p.parsePrefix(); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	q := &Query{}
	if p.isKeyword("DISTINCT") {
		q.Distinct = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	switch {
	case p.isPunct("*"):
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.tok.kind == tokVar:
		for p.tok.kind == tokVar {
			q.Vars = append(q.Vars, p.tok.text)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, p.errorf("expected projection, found %s", p.tok)
	}

	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.parseGroup(q); err != nil {
		return nil, err
	}

	if p.isKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(p.tok.text)
		if p.tok.kind != tokNumber || err != nil || n < 0 || strings.HasPrefix(p.tok.text, "+") {
			return nil, p.errorf("expected non-negative integer after LIMIT, found %s", p.tok)
		}
		q.Limit = n
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.tok)
	}
	if len(q.Where) == 0 {
		return nil, p.errorf("empty WHERE block")
	}
	return q, nil
}

func (p *parser) parsePrefix() error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokPName || !strings.HasSuffix(p.tok.text, ":") {
		return p.errorf("expected prefix name, found %s", p.tok)
	}
	name := strings.TrimSuffix(p.tok.text, ":")
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokIRI {
		return p.errorf("expected IRI for prefix %s, found %s", name, p.tok)
	}
	p.prefixes[name] = p.tok.text
	return p.advance()
}

func (p *parser) parseGroup(q *Query) error {
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for {
		switch {
		case p.isPunct("}"):
			return p.advance()
		case p.isPunct("."):
			if err := p.advance(); err != nil {
				return err
			}
		case p.isKeyword("FILTER"):
			if err := p.advance(); err != nil {
				return err
			}
			f, err := p.parseFilter()
			if err != nil {
				return err
			}
			q.Filters = append(q.Filters, f)
		case p.tok.kind == tokEOF:
			return p.errorf("unterminated group")
		default:
			if err := p.parseTriples(q); err != nil {
				return err
			}
		}
	}
}

func (p *parser) parseTriples(q *Query) error {
	subject, err := p.parseNode(false)
	if err != nil {
		return err
	}
	if !subject.IsVar() && subject.Term.IsLiteral() {
		return p.errorf("literal subject")
	}
	for {
		predicate, err := p.parseVerb()
		if err != nil {
			return err
		}
		for {
			object, err := p.parseNode(true)
			if err != nil {
				return err
			}
			q.Where = append(q.Where, TriplePattern{Subject: subject, Predicate: predicate, Object: object})
			if !p.isPunct(",") {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
		if !p.isPunct(";") {
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
		// trailing ';' before '.' or '}'
		if p.isPunct(".") || p.isPunct("}") {
			return nil
		}
	}
}

func (p *parser) parseVerb() (Node, error) {
	if p.tok.kind == tokIdent && p.tok.text == "a" {
		return T(storage.NewIRI(vocabulary.RdfType)), p.advance()
	}
	n, err := p.parseNode(false)
	if err != nil {
		return Node{}, err
	}
	if !n.IsVar() && !n.Term.IsIRI() {
		return Node{}, p.errorf("predicate must be an IRI or variable")
	}
	return n, nil
}

// parseNode reads a variable, IRI, prefixed name or, when allowed, a literal.
func (p *parser) parseNode(literals bool) (Node, error) {
	switch p.tok.kind {
	case tokVar:
		n := V(p.tok.text)
		return n, p.advance()
	case tokIRI, tokPName:
		iri, err := p.resolveIRI()
		if err != nil {
			return Node{}, err
		}
		return T(storage.NewIRI(iri)), p.advance()
	case tokString, tokNumber:
		if !literals {
			return Node{}, p.errorf("literal not allowed here")
		}
		t, err := p.parseLiteral()
		if err != nil {
			return Node{}, err
		}
		return T(t), nil
	}
	return Node{}, p.errorf("expected term, found %s", p.tok)
}

func (p *parser) resolveIRI() (string, error) {
	if p.tok.kind == tokIRI {
		return p.tok.text, nil
	}
	prefix, local, _ := strings.Cut(p.tok.text, ":")
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", p.errorf("unknown prefix %q", prefix)
	}
	return ns + local, nil
}

func (p *parser) parseLiteral() (storage.Term, error) {
	if p.tok.kind == tokNumber {
		text := p.tok.text
		dt := vocabulary.XsdInteger
		if strings.Contains(text, ".") {
			dt = vocabulary.XsdDecimal
		}
		return storage.NewTypedLiteral(text, dt), p.advance()
	}

	value := p.tok.text
	if err := p.advance(); err != nil {
		return storage.Term{}, err
	}
	switch {
	case p.tok.kind == tokLang:
		lang := p.tok.text
		return storage.NewLangLiteral(value, lang), p.advance()
	case p.isPunct("^^"):
		if err := p.advance(); err != nil {
			return storage.Term{}, err
		}
		if p.tok.kind != tokIRI && p.tok.kind != tokPName {
			return storage.Term{}, p.errorf("expected datatype IRI, found %s", p.tok)
		}
		dt, err := p.resolveIRI()
		if err != nil {
			return storage.Term{}, err
		}
		return storage.NewTypedLiteral(value, dt), p.advance()
	}
	return storage.NewLiteral(value), nil
}

func (p *parser) parseFilter() (Filter, error) {
	if p.isPunct("(") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var f Filter
		var err error
		if p.tok.kind == tokVar {
			f, err = p.parseEquals()
		} else {
			f, err = p.parseBuiltin()
		}
		if err != nil {
			return nil, err
		}
		return f, p.expectPunct(")")
	}
	return p.parseBuiltin()
}

func (p *parser) parseEquals() (Filter, error) {
	name := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	n, err := p.parseNode(true)
	if err != nil {
		return nil, err
	}
	if n.IsVar() {
		return nil, p.errorf("comparing two variables is not supported")
	}
	return Equals{Var: name, Term: n.Term}, nil
}

func (p *parser) parseBuiltin() (Filter, error) {
	switch {
	case p.isKeyword("regex"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		name, _, err := p.parseStrArg(false)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		pattern, err := p.parseStringArg()
		if err != nil {
			return nil, err
		}
		insensitive := false
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			flags, err := p.parseStringArg()
			if err != nil {
				return nil, err
			}
			for _, fl := range flags {
				if fl != 'i' {
					return nil, p.errorf("unsupported regex flag %q", fl)
				}
				insensitive = true
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return NewRegex(name, pattern, insensitive)

	case p.isKeyword("contains"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		name, lower, err := p.parseStrArg(true)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		sub, err := p.parseStringArg()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		if lower {
			return Func{Var: name, Fn: func(t storage.Term) bool {
				return strings.Contains(strings.ToLower(Str(t)), sub)
			}}, nil
		}
		return Contains{Var: name, Substring: sub}, nil
	}
	return nil, p.errorf("unsupported filter %s", p.tok)
}

// parseStrArg reads ?v, str(?v) or, when allowed, lcase(...) around either.
func (p *parser) parseStrArg(allowLcase bool) (name string, lower bool, err error) {
	if allowLcase && p.isKeyword("lcase") {
		if err = p.advance(); err != nil {
			return
		}
		if err = p.expectPunct("("); err != nil {
			return
		}
		name, _, err = p.parseStrArg(false)
		if err != nil {
			return
		}
		return name, true, p.expectPunct(")")
	}
	if p.isKeyword("str") {
		if err = p.advance(); err != nil {
			return
		}
		if err = p.expectPunct("("); err != nil {
			return
		}
		if p.tok.kind != tokVar {
			return "", false, p.errorf("expected variable, found %s", p.tok)
		}
		name = p.tok.text
		if err = p.advance(); err != nil {
			return
		}
		return name, false, p.expectPunct(")")
	}
	if p.tok.kind != tokVar {
		return "", false, p.errorf("expected variable, found %s", p.tok)
	}
	name = p.tok.text
	return name, false, p.advance()
}

func (p *parser) parseStringArg() (string, error) {
	if p.tok.kind != tokString {
		return "", p.errorf("expected string, found %s", p.tok)
	}
	s := p.tok.text
	return s, p.advance()
}
