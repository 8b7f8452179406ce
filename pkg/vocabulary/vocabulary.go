// Package vocabulary holds the W3C namespace IRIs consulted when reading the
// processor ontology.
//
// Only the handful of terms the catalog actually looks at are declared here:
// class membership (rdf:type), class declarations (owl:Class, rdfs:Class) and the
// OWL bookkeeping terms that must never be reported as domain classes.
//
// References:
//   - RDF 1.1: https://www.w3.org/TR/rdf11-concepts/
//   - RDF Schema: https://www.w3.org/TR/rdf-schema/
//   - OWL 2: https://www.w3.org/TR/owl2-overview/
package vocabulary

// Namespace IRIs.
const (
	RDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS = "http://www.w3.org/2000/01/rdf-schema#"
	OWL  = "http://www.w3.org/2002/07/owl#"
	XSD  = "http://www.w3.org/2001/XMLSchema#"
)

// DefaultBase is the namespace of the processor ontology exported by Protégé.
// Every individual, class and property of the domain lives under it.
const DefaultBase = "http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26#"

// RDF / RDFS terms
const (
	RdfType      = RDF + "type"
	RdfProperty  = RDF + "Property"
	RdfsClass    = RDFS + "Class"
	RdfsLabel    = RDFS + "label"
	RdfsComment  = RDFS + "comment"
	RdfsSubClass = RDFS + "subClassOf"
)

// OWL terms
const (
	OwlClass            = OWL + "Class"
	OwlThing            = OWL + "Thing"
	OwlNothing          = OWL + "Nothing"
	OwlNamedIndividual  = OWL + "NamedIndividual"
	OwlOntology         = OWL + "Ontology"
	OwlObjectProperty   = OWL + "ObjectProperty"
	OwlDatatypeProperty = OWL + "DatatypeProperty"
)

// XSD datatypes the loader and query parser recognise for bare numeric literals.
const (
	XsdString  = XSD + "string"
	XsdInteger = XSD + "integer"
	XsdDecimal = XSD + "decimal"
	XsdDouble  = XSD + "double"
	XsdBoolean = XSD + "boolean"
)

// ClassDeclarations are the types whose instances are classes.
var ClassDeclarations = []string{OwlClass, RdfsClass}

// reservedClasses are local names owned by RDF/RDFS/OWL. They show up as
// rdf:type objects in any Protégé export but are not domain classes.
var reservedClasses = map[string]struct{}{
	"Class":              {},
	"Thing":              {},
	"Nothing":            {},
	"NamedIndividual":    {},
	"Ontology":           {},
	"ObjectProperty":     {},
	"DatatypeProperty":   {},
	"AnnotationProperty": {},
	"Restriction":        {},
	"Datatype":           {},
	"AllDisjointClasses": {},
	"Resource":           {},
	"Literal":            {},
	"Property":           {},
}

// IsReservedClass reports whether a normalized class name belongs to the
// vocabulary itself rather than to the domain.
func IsReservedClass(name string) bool {
	_, ok := reservedClasses[name]
	return ok
}

// ReservedClasses returns the denylist in no particular order.
func ReservedClasses() []string {
	out := make([]string, 0, len(reservedClasses))
	for name := range reservedClasses {
		out = append(out, name)
	}
	return out
}

// StandardPrefixes maps the conventional prefixes to their namespaces.
func StandardPrefixes() map[string]string {
	return map[string]string{
		"rdf":  RDF,
		"rdfs": RDFS,
		"owl":  OWL,
		"xsd":  XSD,
	}
}
