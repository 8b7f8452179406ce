package storage

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// ErrMalformedRDFXML is returned for documents that are well-formed XML but
// not valid RDF/XML, and for truncated documents.
var ErrMalformedRDFXML = errors.New("malformed RDF/XML")

const (
	xmlNamespace  = "http://www.w3.org/XML/1998/namespace"
	rdfXMLLiteral = vocabulary.RDF + "XMLLiteral"
	rdfStatement  = vocabulary.RDF + "Statement"
	rdfFirst      = vocabulary.RDF + "first"
	rdfRest       = vocabulary.RDF + "rest"
	rdfNil        = vocabulary.RDF + "nil"
)

// entityDecl matches the internal entity declarations Protégé writes in the
// DOCTYPE, e.g. <!ENTITY owl "http://www.w3.org/2002/07/owl#" >.
var entityDecl = regexp.MustCompile(`<!ENTITY\s+([^\s%]+)\s+(?:"([^"]*)"|'([^']*)')\s*>`)

// scope is the inherited xml:base and xml:lang of an element.
type scope struct {
	base string
	lang string
}

func (sc scope) enter(start xml.StartElement) scope {
	for _, a := range start.Attr {
		if !isXMLAttr(a.Name) {
			continue
		}
		switch a.Name.Local {
		case "base":
			sc.base = resolveIRI(sc.base, a.Value)
		case "lang":
			sc.lang = a.Value
		}
	}
	return sc
}

func (sc scope) iri(ref string) Term {
	return NewIRI(resolveIRI(sc.base, ref))
}

func (sc scope) literal(lexical string) Term {
	if sc.lang != "" {
		return NewLangLiteral(lexical, sc.lang)
	}
	return NewTypedLiteral(lexical, vocabulary.XsdString)
}

// rdfxmlDecoder walks an RDF/XML document with encoding/xml and hands every
// statement to emit in document order.
type rdfxmlDecoder struct {
	dec    *xml.Decoder
	emit   func(Triple) error
	blanks int
}

// decodeRDFXML decodes the RDF/XML document in r. Both an rdf:RDF root and a
// single node element root are accepted.
func decodeRDFXML(r io.Reader, emit func(Triple) error) error {
	d := &rdfxmlDecoder{dec: xml.NewDecoder(r), emit: emit}

	for {
		tok, err := d.dec.Token()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no root element", ErrMalformedRDFXML)
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.Directive:
			d.entities(t)
		case xml.StartElement:
			if isRDF(t.Name, "RDF") {
				return d.nodeElements(scope{}.enter(t))
			}
			_, err := d.nodeElement(t, scope{})
			return err
		}
	}
}

// token is dec.Token with end of input inside an element reported as an error.
func (d *rdfxmlDecoder) token() (xml.Token, error) {
	tok, err := d.dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected end of document", ErrMalformedRDFXML)
	}
	return tok, err
}

func (d *rdfxmlDecoder) entities(dir xml.Directive) {
	for _, m := range entityDecl.FindAllSubmatch(dir, -1) {
		if d.dec.Entity == nil {
			d.dec.Entity = make(map[string]string)
		}
		value := string(m[2])
		if len(m[3]) > 0 {
			value = string(m[3])
		}
		d.dec.Entity[string(m[1])] = value
	}
}

func (d *rdfxmlDecoder) newBlank() Term {
	d.blanks++
	return NewBlank("genid" + strconv.Itoa(d.blanks))
}

func (d *rdfxmlDecoder) triple(s, p, o Term) error {
	return d.emit(Triple{Subject: s, Predicate: p, Object: o})
}

// statement emits s p o and, when id is set, its reification.
func (d *rdfxmlDecoder) statement(s, p, o Term, id string, sc scope) error {
	if err := d.triple(s, p, o); err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	r := sc.iri("#" + id)
	for _, t := range []Triple{
		{Subject: r, Predicate: NewIRI(vocabulary.RdfType), Object: NewIRI(rdfStatement)},
		{Subject: r, Predicate: NewIRI(vocabulary.RDF + "subject"), Object: s},
		{Subject: r, Predicate: NewIRI(vocabulary.RDF + "predicate"), Object: p},
		{Subject: r, Predicate: NewIRI(vocabulary.RDF + "object"), Object: o},
	} {
		if err := d.emit(t); err != nil {
			return err
		}
	}
	return nil
}

// nodeElements decodes sibling node elements up to the parent's end tag.
func (d *rdfxmlDecoder) nodeElements(sc scope) error {
	for {
		tok, err := d.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if _, err := d.nodeElement(t, sc); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

// nodeElement decodes one node element and returns its subject.
func (d *rdfxmlDecoder) nodeElement(start xml.StartElement, parent scope) (Term, error) {
	sc := parent.enter(start)

	var subject Term
	named := false
	for _, a := range start.Attr {
		if a.Name.Space != vocabulary.RDF {
			continue
		}
		switch a.Name.Local {
		case "about":
			subject, named = sc.iri(a.Value), true
		case "ID":
			subject, named = sc.iri("#"+a.Value), true
		case "nodeID":
			subject, named = NewBlank(a.Value), true
		}
	}
	if !named {
		subject = d.newBlank()
	}

	if !isRDF(start.Name, "Description") {
		if err := d.triple(subject, NewIRI(vocabulary.RdfType), NewIRI(elementIRI(start.Name))); err != nil {
			return Term{}, err
		}
	}

	var props []xml.Attr
	for _, a := range start.Attr {
		if skipAttr(a.Name) {
			continue
		}
		if a.Name.Space == vocabulary.RDF {
			switch a.Name.Local {
			case "about", "ID", "nodeID":
				continue
			}
		}
		props = append(props, a)
	}
	if err := d.propertyAttrs(subject, props, sc); err != nil {
		return Term{}, err
	}

	return subject, d.propertyElements(subject, sc)
}

// propertyAttrs emits one statement per property attribute of a node.
func (d *rdfxmlDecoder) propertyAttrs(subject Term, attrs []xml.Attr, sc scope) error {
	for _, a := range attrs {
		var obj Term
		if isRDF(a.Name, "type") {
			obj = sc.iri(a.Value)
		} else {
			obj = sc.literal(a.Value)
		}
		if err := d.triple(subject, NewIRI(elementIRI(a.Name)), obj); err != nil {
			return err
		}
	}
	return nil
}

// propertyElements decodes the property elements of subject up to the
// enclosing end tag.
func (d *rdfxmlDecoder) propertyElements(subject Term, sc scope) error {
	li := 0
	for {
		tok, err := d.token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := d.propertyElement(subject, t, sc, &li); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (d *rdfxmlDecoder) propertyElement(subject Term, start xml.StartElement, parent scope, li *int) error {
	sc := parent.enter(start)

	pred := NewIRI(elementIRI(start.Name))
	if isRDF(start.Name, "li") {
		*li++
		pred = NewIRI(vocabulary.RDF + "_" + strconv.Itoa(*li))
	}

	var (
		resource, nodeID, datatype, parseType, id string
		hasResource, hasNodeID                    bool
		props                                     []xml.Attr
	)
	for _, a := range start.Attr {
		if skipAttr(a.Name) {
			continue
		}
		if a.Name.Space == vocabulary.RDF {
			switch a.Name.Local {
			case "resource":
				resource, hasResource = a.Value, true
				continue
			case "nodeID":
				nodeID, hasNodeID = a.Value, true
				continue
			case "datatype":
				datatype = a.Value
				continue
			case "parseType":
				parseType = a.Value
				continue
			case "ID":
				id = a.Value
				continue
			}
		}
		props = append(props, a)
	}

	switch parseType {
	case "":
	case "Resource":
		obj := d.newBlank()
		if err := d.statement(subject, pred, obj, id, sc); err != nil {
			return err
		}
		return d.propertyElements(obj, sc)
	case "Collection":
		head, err := d.collection(sc)
		if err != nil {
			return err
		}
		return d.statement(subject, pred, head, id, sc)
	default:
		lit, err := d.xmlLiteral()
		if err != nil {
			return err
		}
		return d.statement(subject, pred, NewTypedLiteral(lit, rdfXMLLiteral), id, sc)
	}

	text, node, err := d.content(sc)
	if err != nil {
		return err
	}

	var obj Term
	resourceObject := true
	switch {
	case node != nil:
		obj = *node
	case hasResource:
		obj = sc.iri(resource)
	case hasNodeID:
		obj = NewBlank(nodeID)
	case len(props) > 0:
		obj = d.newBlank()
	case datatype != "":
		obj, resourceObject = NewTypedLiteral(text, datatype), false
	default:
		obj, resourceObject = sc.literal(text), false
	}

	if err := d.statement(subject, pred, obj, id, sc); err != nil {
		return err
	}
	if resourceObject && node == nil {
		return d.propertyAttrs(obj, props, sc)
	}
	return nil
}

// content reads a property element body: either text or a single nested
// node element, whose subject is returned.
func (d *rdfxmlDecoder) content(sc scope) (string, *Term, error) {
	var text strings.Builder
	var node *Term
	for {
		tok, err := d.token()
		if err != nil {
			return "", nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if node != nil {
				return "", nil, fmt.Errorf("%w: property element %s holds more than one node", ErrMalformedRDFXML, t.Name.Local)
			}
			subject, err := d.nodeElement(t, sc)
			if err != nil {
				return "", nil, err
			}
			node = &subject
		case xml.EndElement:
			return text.String(), node, nil
		}
	}
}

// collection decodes a parseType="Collection" body into an rdf:List and
// returns its head.
func (d *rdfxmlDecoder) collection(sc scope) (Term, error) {
	var items []Term
	for done := false; !done; {
		tok, err := d.token()
		if err != nil {
			return Term{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			item, err := d.nodeElement(t, sc)
			if err != nil {
				return Term{}, err
			}
			items = append(items, item)
		case xml.EndElement:
			done = true
		}
	}

	head := NewIRI(rdfNil)
	for i := len(items) - 1; i >= 0; i-- {
		cell := d.newBlank()
		if err := d.triple(cell, NewIRI(rdfFirst), items[i]); err != nil {
			return Term{}, err
		}
		if err := d.triple(cell, NewIRI(rdfRest), head); err != nil {
			return Term{}, err
		}
		head = cell
	}
	return head, nil
}

// xmlLiteral re-encodes the body of a parseType="Literal" element.
func (d *rdfxmlDecoder) xmlLiteral() (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	depth := 0
	for {
		tok, err := d.token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			attrs := t.Attr[:0:0]
			for _, a := range t.Attr {
				if !isNamespaceDecl(a.Name) {
					attrs = append(attrs, a)
				}
			}
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return "", err
				}
				return buf.String(), nil
			}
			depth--
		case xml.ProcInst, xml.Directive:
			continue
		}
		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", err
		}
	}
}

func elementIRI(n xml.Name) string {
	return n.Space + n.Local
}

func isRDF(n xml.Name, local string) bool {
	return n.Space == vocabulary.RDF && n.Local == local
}

func isXMLAttr(n xml.Name) bool {
	return n.Space == "xml" || n.Space == xmlNamespace
}

func isNamespaceDecl(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}

// skipAttr reports attributes that never become statements: namespace
// declarations, xml:* and unqualified attributes.
func skipAttr(n xml.Name) bool {
	return n.Space == "" || isNamespaceDecl(n) || isXMLAttr(n)
}

// resolveIRI resolves ref against base. Absolute IRIs and fragment
// references are handled textually so non-ASCII local names stay unescaped.
func resolveIRI(base, ref string) string {
	if base == "" || isAbsoluteIRI(ref) {
		return ref
	}
	doc, _, _ := strings.Cut(base, "#")
	if ref == "" || strings.HasPrefix(ref, "#") {
		return doc + ref
	}
	b, err := url.Parse(doc)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func isAbsoluteIRI(ref string) bool {
	i := strings.IndexAny(ref, ":/?#")
	return i > 0 && ref[i] == ':'
}
