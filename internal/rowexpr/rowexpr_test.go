package rowexpr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dnaufal/presensi/internal/sheet"
)

func compile(t *testing.T, expr string) Program {
	t.Helper()
	env, err := NewEnvironment()
	require.NoError(t, err)
	prg, err := env.Compile(expr)
	require.NoError(t, err)
	return prg
}

func TestKeepEvaluatesRecordFields(t *testing.T) {
	prg := compile(t, `record.teacher != "Test Account"`)

	require.True(t, prg.Keep(sheet.Record{Teacher: "Andi"}))
	require.False(t, prg.Keep(sheet.Record{Teacher: "Test Account"}))
}

func TestKeepSupportsStringFunctions(t *testing.T) {
	prg := compile(t, `!record.student.startsWith("zz-")`)

	require.True(t, prg.Keep(sheet.Record{Student: "Budi"}))
	require.False(t, prg.Keep(sheet.Record{Student: "zz-dummy"}))
}

func TestCompileRejectsNonBooleanExpressions(t *testing.T) {
	env, err := NewEnvironment()
	require.NoError(t, err)

	_, err = env.Compile(`record.teacher`)
	require.Error(t, err)

	_, err = env.Compile(`record.teacher ==`)
	require.Error(t, err)
}

func TestZeroProgramKeepsEverything(t *testing.T) {
	var prg Program
	require.True(t, prg.Keep(sheet.Record{Teacher: "Andi"}))
}

func TestEvaluationErrorKeepsTheRecord(t *testing.T) {
	// An absent map key errors at evaluation time; the record survives.
	prg := compile(t, `record["missing"] == "x"`)
	require.True(t, prg.Keep(sheet.Record{Teacher: "Andi"}))
}

func TestSourceRoundtrips(t *testing.T) {
	prg := compile(t, `record.duration != ""`)
	require.Equal(t, `record.duration != ""`, prg.Source())
}
