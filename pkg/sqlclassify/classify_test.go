package sqlclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

func TestClassifyBasicKinds(t *testing.T) {
	cases := map[string]types.StatementKind{
		"SELECT * FROM orders WHERE id = ?":     types.KindSelect,
		"insert into orders (id) values (?)":    types.KindInsert,
		"REPLACE INTO orders (id) VALUES (?)":   types.KindInsert,
		"UPDATE orders SET status = ? WHERE id = ?": types.KindUpdate,
		"DELETE FROM orders WHERE id = ?":       types.KindDelete,
		"CREATE TABLE orders (id INT)":          types.KindDDL,
		"ALTER TABLE orders ADD COLUMN x INT":   types.KindDDL,
		"DROP TABLE orders":                     types.KindDDL,
		"TRUNCATE TABLE orders":                 types.KindDDL,
		"RENAME TABLE orders TO orders_old":     types.KindDDL,
	}

	for sql, want := range cases {
		got, err := Classify(sql)
		require.NoError(t, err, sql)
		assert.Equal(t, want, got, sql)
	}
}

func TestClassifyStripsHintBeforeKeywordCheck(t *testing.T) {
	kind, err := Classify("/*+ strong */ SELECT * FROM orders")
	require.NoError(t, err)
	assert.Equal(t, types.KindSelect, kind)
}

func TestClassifyRejectsEmptyStatement(t *testing.T) {
	_, err := Classify("   ")
	require.Error(t, err)
}

func TestClassifyRejectsUnknownKeyword(t *testing.T) {
	_, err := Classify("VACUUM orders")
	require.Error(t, err)
}
