package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_UnknownTable(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: x
description: y
table: diputados
assertions: [{type: count, count: 0}]
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown table "diputados"`)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: failing
description: wrong expectations
table: comisiones
initial:
  - {id: 1, tipo: Senado, nombre: Hacienda}
steps:
  - update: {id: 1, tipo: Senado, nombre: Turismo}
assertions:
  - type: order
    labels: [Hacienda]
  - type: count
    count: 2
  - type: notified
    kinds: [success]
  - type: record
    id: 1
    fields: {nombre: Hacienda}
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Assertion failed: order")
	assert.Contains(t, result.Errors[0], "[Turismo]")
	assert.Contains(t, result.Errors[2], "[info]")
}

func TestRun_TraceRecordsEveryStep(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "FETCH", result.Trace[0].Event)
	assert.Empty(t, result.Trace[0].Order)
	assert.Equal(t, "INSERT", result.Trace[1].Event)
	assert.Equal(t, []string{"Hacienda"}, result.Trace[1].Order)
	require.Len(t, result.Trace[1].Notifications, 1)
	require.Len(t, result.Final, 1)
	assert.Equal(t, int64(1), result.Final[0].ID)
}

func TestRun_InvalidLocale(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	s.Locale = "not a locale!"

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse locale")
}
