package sqlclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTableBasicForms(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM orders WHERE id = ?":               "orders",
		"SELECT * FROM `orders` WHERE id = ?":              "orders",
		"SELECT * FROM shop.orders WHERE id = ?":           "orders",
		"INSERT INTO orders (id) VALUES (?)":               "orders",
		"UPDATE orders SET status = ?":                     "orders",
		"DELETE FROM orders WHERE id = ?":                   "orders",
		"SELECT o.id FROM orders o JOIN items i ON 1=1":    "orders",
		"CREATE TABLE orders (id INT)":                      "orders",
	}

	for sql, want := range cases {
		assert.Equal(t, want, ExtractTable(sql), sql)
	}
}

func TestExtractTableIgnoresMatchesInLiterals(t *testing.T) {
	sql := "SELECT '-- FROM fake_table' AS note FROM orders"
	assert.Equal(t, "orders", ExtractTable(sql))
}

func TestExtractTableIgnoresMatchesInComments(t *testing.T) {
	sql := "SELECT * /* FROM fake_table */ FROM orders"
	assert.Equal(t, "orders", ExtractTable(sql))
}

func TestExtractTableUnknownWhenNoKeywordMatches(t *testing.T) {
	assert.Equal(t, "unknown", ExtractTable("SELECT 1"))
}
