package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/ontologia/pkg/testutil"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// keep a developer's .env and environment out of the way
	t.Chdir(t.TempDir())
	t.Setenv("ONTOLOGIA_STORAGE_ENGINE", "memory")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "ontologia v"+version+" ("+commit+")\n", out)
}

func TestInspect(t *testing.T) {
	path := testutil.WriteFile(t, "ontologia.rdf", testutil.ProcessorRDFXML)

	for _, engine := range []string{"memory", "badger"} {
		t.Run(engine, func(t *testing.T) {
			out, err := run(t, "", "inspect", "--ontology", path, "--engine", engine)
			require.NoError(t, err)
			assert.Contains(t, out, "Triples:     24\n")
			assert.Contains(t, out, "Engine:      "+engine)
			assert.Contains(t, out, "Format:      xml")
			assert.Regexp(t, `Procesador\s+1 individuals`, out)
			assert.Regexp(t, `Fabricante\s+1 individuals`, out)
		})
	}
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := run(t, "", "inspect", "--ontology", filepath.Join(t.TempDir(), "nope.rdf"))
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	path := testutil.WriteFile(t, "ontologia.rdf", testutil.ProcessorRDFXML)
	q := `SELECT ?s ?f WHERE { ?s a :Procesador ; :frecuencia_max_GHz ?f }`

	out, err := run(t, "", "query", "--ontology", path, q)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^s\s+f$`, lines[0])
	assert.Regexp(t, `^Apple_A16_Bionic\s+3\.46$`, lines[1])
	assert.Equal(t, "1 row(s)", lines[3])

	out, err = run(t, q, "query", "--ontology", path, "--file", "-", "--short=false")
	require.NoError(t, err)
	assert.Contains(t, out, "<"+testutil.Base+"Apple_A16_Bionic>")
}

func TestQuery_Errors(t *testing.T) {
	path := testutil.WriteFile(t, "ontologia.rdf", testutil.ProcessorRDFXML)

	_, err := run(t, "", "query", "--ontology", path)
	assert.Error(t, err)

	_, err = run(t, "", "query", "--ontology", path, "SELECT ?s WHERE {")
	assert.Error(t, err)
}
