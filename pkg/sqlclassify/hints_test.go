package sqlclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

func TestExtractHintsNoHint(t *testing.T) {
	sql := "SELECT * FROM orders"
	cleaned, hints := ExtractHints(sql)
	assert.Equal(t, sql, cleaned)
	assert.Equal(t, types.Hints{}, hints)
}

func TestExtractHintsStrong(t *testing.T) {
	cleaned, hints := ExtractHints("/*+ strong */ SELECT * FROM orders")
	assert.Equal(t, types.ConsistencyStrong, hints.Consistency)
	assert.NotContains(t, cleaned, "/*+")
}

func TestExtractHintsWeak(t *testing.T) {
	_, hints := ExtractHints("SELECT * FROM orders /*+ weak */")
	assert.Equal(t, types.ConsistencyCached, hints.Consistency)
}

func TestExtractHintsBoundedWithMS(t *testing.T) {
	_, hints := ExtractHints("SELECT * FROM orders /*+ bounded=500 */")
	assert.Equal(t, types.ConsistencyBounded, hints.Consistency)
	assert.Equal(t, uint64(500), hints.BoundedMS)
}

func TestExtractHintsBoundedWithoutMS(t *testing.T) {
	_, hints := ExtractHints("SELECT * FROM orders /*+ bounded */")
	assert.Equal(t, types.ConsistencyBounded, hints.Consistency)
	assert.Equal(t, uint64(0), hints.BoundedMS)
}

func TestExtractHintsLastWins(t *testing.T) {
	_, hints := ExtractHints("/*+ strong */ SELECT * FROM orders /*+ weak */")
	assert.Equal(t, types.ConsistencyCached, hints.Consistency)
}

func TestExtractHintsPreservesLiteralWhitespace(t *testing.T) {
	cleaned, _ := ExtractHints("SELECT '  a  b  ' FROM orders /*+ strong */")
	assert.Contains(t, cleaned, "'  a  b  '")
}
