// Package testutil provides shared fixtures for the ontology API tests.
//
// Two fixtures describe the same small processor ontology:
//
//   - ProcessorTriples: Go triples covering every case the catalog handles
//     (classes, anonymous classes, individuals of several classes, repeated data
//     properties, relations, external IRIs, an individual with no properties)
//   - ProcessorRDFXML: a Protégé-style RDF/XML document used by loader and
//     end-to-end tests
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    engine := testutil.NewMemoryEngine(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/ontologia/pkg/storage"
	"github.com/orneryd/ontologia/pkg/vocabulary"
)

// Base is the namespace used by every fixture.
const Base = vocabulary.DefaultBase

// OntologyIRI is the ontology header subject (the base without '#').
const OntologyIRI = "http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26"

// IRI returns the full IRI of a local name under Base.
func IRI(name string) storage.Term {
	return storage.NewIRI(Base + name)
}

func std(iri string) storage.Term {
	return storage.NewIRI(iri)
}

func triple(s, p, o storage.Term) storage.Triple {
	return storage.Triple{Subject: s, Predicate: p, Object: o}
}

func decimal(v string) storage.Term {
	return storage.NewTypedLiteral(v, vocabulary.XsdDecimal)
}

func integer(v string) storage.Term {
	return storage.NewTypedLiteral(v, vocabulary.XsdInteger)
}

func str(v string) storage.Term {
	return storage.NewTypedLiteral(v, vocabulary.XsdString)
}

// Processors of class Procesador in ProcessorTriples, in file order.
var Processors = []string{"Apple_A16_Bionic", "Snapdragon_8_Gen_2", "Intel_Core_i9_13900K", "Apple_M2"}

// Classes declared in ProcessorTriples, sorted.
var Classes = []string{"Arquitectura", "Fabricante", "GPU", "Procesador"}

// ProcessorTriples returns the Go fixture. Each call returns a fresh slice.
func ProcessorTriples() []storage.Triple {
	typ := std(vocabulary.RdfType)
	ind := std(vocabulary.OwlNamedIndividual)
	fab := IRI("fabricadoPor")
	freq := IRI("frecuencia_max_GHz")

	return []storage.Triple{
		triple(std(OntologyIRI), typ, std(vocabulary.OwlOntology)),

		// classes
		triple(IRI("Procesador"), typ, std(vocabulary.OwlClass)),
		triple(IRI("GPU"), typ, std(vocabulary.OwlClass)),
		triple(IRI("Fabricante"), typ, std(vocabulary.OwlClass)),
		triple(IRI("Arquitectura"), typ, std(vocabulary.RdfsClass)),
		triple(std(vocabulary.OwlThing), typ, std(vocabulary.OwlClass)),
		triple(storage.NewBlank("restriction1"), typ, std(vocabulary.OwlClass)),
		triple(IRI("GPU"), std(vocabulary.RdfsSubClass), IRI("Procesador")),

		// properties
		triple(fab, typ, std(vocabulary.OwlObjectProperty)),
		triple(IRI("tieneArquitectura"), typ, std(vocabulary.OwlObjectProperty)),
		triple(freq, typ, std(vocabulary.OwlDatatypeProperty)),
		triple(IRI("nucleos"), typ, std(vocabulary.OwlDatatypeProperty)),

		// processors
		triple(IRI("Apple_A16_Bionic"), typ, ind),
		triple(IRI("Apple_A16_Bionic"), typ, IRI("Procesador")),
		triple(IRI("Apple_A16_Bionic"), fab, IRI("Apple")),
		triple(IRI("Apple_A16_Bionic"), freq, decimal("3.46")),
		triple(IRI("Apple_A16_Bionic"), IRI("nucleos"), integer("6")),
		triple(IRI("Apple_A16_Bionic"), IRI("proceso_nm"), integer("4")),
		triple(IRI("Apple_A16_Bionic"), IRI("fuente"), str("Apple Newsroom")),
		triple(IRI("Apple_A16_Bionic"), IRI("nombre"), str("Apple A16 Bionic")),

		triple(IRI("Snapdragon_8_Gen_2"), typ, ind),
		triple(IRI("Snapdragon_8_Gen_2"), typ, IRI("Procesador")),
		triple(IRI("Snapdragon_8_Gen_2"), fab, IRI("Qualcomm")),
		triple(IRI("Snapdragon_8_Gen_2"), IRI("tieneArquitectura"), IRI("ARMv9")),
		triple(IRI("Snapdragon_8_Gen_2"), freq, decimal("3.2")),
		triple(IRI("Snapdragon_8_Gen_2"), IRI("nucleo_tipo"), str("Cortex-X3")),
		triple(IRI("Snapdragon_8_Gen_2"), IRI("nucleo_tipo"), str("Cortex-A715")),
		triple(IRI("Snapdragon_8_Gen_2"), IRI("nucleo_tipo"), str("Cortex-A510")),

		triple(IRI("Intel_Core_i9_13900K"), typ, ind),
		triple(IRI("Intel_Core_i9_13900K"), typ, IRI("Procesador")),
		triple(IRI("Intel_Core_i9_13900K"), fab, IRI("Intel")),
		triple(IRI("Intel_Core_i9_13900K"), freq, decimal("5.8")),
		triple(IRI("Intel_Core_i9_13900K"), IRI("proceso_fabricacion_nm"), integer("10")),
		triple(IRI("Intel_Core_i9_13900K"), std(vocabulary.RdfsLabel), storage.NewLangLiteral("Intel Core i9-13900K", "es")),
		triple(IRI("Intel_Core_i9_13900K"), std(vocabulary.RDFS+"seeAlso"), std("https://ark.intel.com/content/www/us/en/ark/products/230496.html")),

		triple(IRI("Apple_M2"), typ, ind),
		triple(IRI("Apple_M2"), typ, IRI("Procesador")),
		triple(IRI("Apple_M2"), fab, IRI("Apple")),
		triple(IRI("Apple_M2"), freq, decimal("3.49")),

		// gpu
		triple(IRI("NVIDIA_RTX_4090"), typ, ind),
		triple(IRI("NVIDIA_RTX_4090"), typ, IRI("GPU")),
		triple(IRI("NVIDIA_RTX_4090"), fab, IRI("NVIDIA")),
		triple(IRI("NVIDIA_RTX_4090"), freq, decimal("2.52")),

		// manufacturers
		triple(IRI("Apple"), typ, ind),
		triple(IRI("Apple"), typ, IRI("Fabricante")),
		triple(IRI("Apple"), IRI("pais"), str("USA")),
		triple(IRI("Qualcomm"), typ, ind),
		triple(IRI("Qualcomm"), typ, IRI("Fabricante")),
		triple(IRI("Intel"), typ, ind),
		triple(IRI("Intel"), typ, IRI("Fabricante")),
		triple(IRI("NVIDIA"), typ, ind),
		triple(IRI("NVIDIA"), typ, IRI("Fabricante")),

		triple(IRI("ARMv9"), typ, ind),
		triple(IRI("ARMv9"), typ, IRI("Arquitectura")),

		// declared but never described
		triple(IRI("Fantasma"), typ, ind),
	}
}

// ProcessorRDFXML is a Protégé-style export: DOCTYPE entities, xml:base
// relative IRIs, an anonymous restriction nested in rdfs:subClassOf and an
// owl:AllDisjointClasses axiom over a collection. It holds RDFXMLStatements
// statements, one of which repeats, so it loads as RDFXMLTriples distinct
// triples.
const ProcessorRDFXML = `<?xml version="1.0"?>
<!DOCTYPE rdf:RDF [
    <!ENTITY owl "http://www.w3.org/2002/07/owl#" >
    <!ENTITY xsd "http://www.w3.org/2001/XMLSchema#" >
]>
<rdf:RDF xmlns="http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26#"
     xml:base="http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26"
     xmlns:owl="http://www.w3.org/2002/07/owl#"
     xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
     xmlns:xsd="http://www.w3.org/2001/XMLSchema#"
     xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#">
    <owl:Ontology rdf:about="http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26"/>
    <owl:ObjectProperty rdf:about="#fabricadoPor"/>
    <owl:DatatypeProperty rdf:about="#frecuencia_max_GHz"/>
    <owl:Class rdf:about="#Procesador">
        <rdfs:subClassOf>
            <owl:Restriction>
                <owl:onProperty rdf:resource="#fabricadoPor"/>
                <owl:someValuesFrom rdf:resource="#Fabricante"/>
            </owl:Restriction>
        </rdfs:subClassOf>
    </owl:Class>
    <owl:Class rdf:about="http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26#Fabricante"/>
    <rdf:Description>
        <rdf:type rdf:resource="&owl;AllDisjointClasses"/>
        <owl:members rdf:parseType="Collection">
            <rdf:Description rdf:about="#Fabricante"/>
            <rdf:Description rdf:about="#Procesador"/>
        </owl:members>
    </rdf:Description>
    <owl:NamedIndividual rdf:about="#Apple_A16_Bionic">
        <rdf:type rdf:resource="#Procesador"/>
        <rdf:type rdf:resource="http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26#Procesador"/>
        <fabricadoPor rdf:resource="#Apple"/>
        <frecuencia_max_GHz rdf:datatype="&xsd;decimal">3.46</frecuencia_max_GHz>
        <nucleos_tipo>Everest</nucleos_tipo>
        <nucleos_tipo>Sawtooth</nucleos_tipo>
    </owl:NamedIndividual>
    <owl:NamedIndividual rdf:about="#Apple">
        <rdf:type rdf:resource="#Fabricante"/>
        <pais>USA</pais>
    </owl:NamedIndividual>
</rdf:RDF>
`

// Counts for ProcessorRDFXML.
const (
	RDFXMLStatements = 25
	RDFXMLTriples    = 24
)

// ProcessorTurtle is a three-statement Turtle document.
const ProcessorTurtle = `@prefix : <http://www.semanticweb.org/usuario/ontologies/2025/9/untitled-ontology-26#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .

:Procesador rdf:type owl:Class .
:Apple_A16_Bionic rdf:type :Procesador .
:Apple_A16_Bionic :frecuencia_max_GHz "3.46" .
`

// WriteFile writes content to name inside a test temp dir and returns the path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// NewMemoryEngine returns a memory engine loaded with ProcessorTriples.
func NewMemoryEngine(t *testing.T) *storage.MemoryEngine {
	t.Helper()
	engine := storage.NewMemoryEngine()
	require.NoError(t, engine.Add(ProcessorTriples()))
	t.Cleanup(func() { engine.Close() })
	return engine
}

// NewBadgerEngine returns an in-memory badger engine loaded with
// ProcessorTriples.
func NewBadgerEngine(t *testing.T) *storage.BadgerEngine {
	t.Helper()
	engine, err := storage.NewBadgerEngineInMemory()
	require.NoError(t, err)
	require.NoError(t, engine.Add(ProcessorTriples()))
	t.Cleanup(func() { engine.Close() })
	return engine
}
