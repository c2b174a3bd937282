package sqlclassify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

func TestTranspileConcat(t *testing.T) {
	out := Transpile("SELECT CONCAT(first, ' ', last) FROM users").SQL
	assert.Equal(t, "SELECT first || ' ' || last FROM users", out)
}

func TestTranspileConcatNested(t *testing.T) {
	out := Transpile("SELECT CONCAT(CONCAT(a, b), c) FROM t").SQL
	assert.Equal(t, "SELECT a || b || c FROM t", out)
}

func TestTranspileNow(t *testing.T) {
	out := Transpile("INSERT INTO t (created_at) VALUES (NOW())").SQL
	assert.Equal(t, "INSERT INTO t (created_at) VALUES (DATETIME('now'))", out)
}

func TestTranspileCurdate(t *testing.T) {
	out := Transpile("SELECT * FROM t WHERE d = CURDATE()").SQL
	assert.Equal(t, "SELECT * FROM t WHERE d = DATE('now')", out)
}

func TestTranspileYearMonthDay(t *testing.T) {
	out := Transpile("SELECT YEAR(d), MONTH(d), DAY(d) FROM t").SQL
	assert.Equal(t, "SELECT STRFTIME('%Y', d), STRFTIME('%m', d), STRFTIME('%d', d) FROM t", out)
}

func TestTranspileCeilToCeiling(t *testing.T) {
	out := Transpile("SELECT CEIL(price) FROM t").SQL
	assert.Equal(t, "SELECT CEILING(price) FROM t", out)
}

func TestTranspilePassthroughFunctions(t *testing.T) {
	sql := "SELECT IFNULL(x, 0), LENGTH(x), SUBSTR(x, 1, 2), UPPER(x), LOWER(x), ABS(x), ROUND(x), FLOOR(x) FROM t"
	assert.Equal(t, sql, Transpile(sql).SQL)
}

func TestTranspileTypesInCreateTable(t *testing.T) {
	sql := "CREATE TABLE t (id BIGINT, small TINYINT, n INT, name VARCHAR(255), body TEXT, ts TIMESTAMP, dt DATETIME, price FLOAT, score DOUBLE, amount DECIMAL(10,2), active BOOLEAN, PRIMARY KEY (id) AUTO_INCREMENT)"
	out := Transpile(sql).SQL
	assert.Contains(t, out, "id INTEGER")
	assert.Contains(t, out, "small INTEGER")
	assert.Contains(t, out, "n INTEGER")
	assert.Contains(t, out, "name TEXT")
	assert.Contains(t, out, "body TEXT")
	assert.Contains(t, out, "ts TEXT")
	assert.Contains(t, out, "dt TEXT")
	assert.Contains(t, out, "price REAL")
	assert.Contains(t, out, "score REAL")
	assert.Contains(t, out, "amount REAL")
	assert.Contains(t, out, "active INTEGER")
	assert.Contains(t, out, "AUTOINCREMENT")
}

func TestTranspileStripsEngineAndCharset(t *testing.T) {
	sql := "CREATE TABLE t (id INT) ENGINE=InnoDB DEFAULT CHARSET=utf8"
	out := Transpile(sql).SQL
	assert.NotContains(t, out, "ENGINE")
	assert.NotContains(t, out, "CHARSET")
}

func TestTranspileLimitOffset(t *testing.T) {
	out := Transpile("SELECT * FROM t LIMIT 20, 10").SQL
	assert.Equal(t, "SELECT * FROM t LIMIT 10 OFFSET 20", out)
}

func TestTranspileStartTransaction(t *testing.T) {
	assert.Equal(t, "BEGIN TRANSACTION", Transpile("START TRANSACTION").SQL)
	assert.Equal(t, "BEGIN TRANSACTION", Transpile("BEGIN").SQL)
}

func TestTranspileDoesNotTouchLiteralsOrComments(t *testing.T) {
	sql := "SELECT 'NOW() CONCAT(a,b) ENGINE=InnoDB' AS note -- CURDATE() trailing\nFROM t"
	out := Transpile(sql).SQL
	assert.Contains(t, out, "'NOW() CONCAT(a,b) ENGINE=InnoDB'")
}

func TestTranspileExtractsHints(t *testing.T) {
	result := Transpile("/*+ bounded=250 */ SELECT * FROM t")
	assert.Equal(t, types.ConsistencyBounded, result.Hints.Consistency)
	assert.Equal(t, uint64(250), result.Hints.BoundedMS)
}

func TestTranspileIsIdempotent(t *testing.T) {
	stmts := []string{
		"SELECT CONCAT(first, ' ', last) FROM users WHERE d = NOW() AND c = CURDATE()",
		"CREATE TABLE t (id BIGINT AUTO_INCREMENT, name VARCHAR(255), ts DATETIME) ENGINE=InnoDB DEFAULT CHARSET=utf8",
		"SELECT YEAR(d), CEIL(price) FROM t LIMIT 20, 10",
		"START TRANSACTION",
	}

	for _, sql := range stmts {
		once := Transpile(sql).SQL
		twice := Transpile(once).SQL
		assert.Equal(t, once, twice, sql)
	}
}
