package sqlclassify

import (
	"regexp"
	"strings"
)

// tableKeyword matches one of the keywords after which the next
// identifier names the target table, followed
// by an optionally backtick-quoted, optionally schema-qualified
// identifier.
var tableKeyword = regexp.MustCompile(
	"(?i)\\b(FROM|INTO|UPDATE|JOIN|TABLE|INDEX)\\b\\s+`?([A-Za-z_][A-Za-z0-9_]*)`?(?:\\.`?([A-Za-z_][A-Za-z0-9_]*)`?)?",
)

// ExtractTable performs best-effort first-table extraction, returning a
// lowercased name or "unknown". Matches inside
// string literals or comments are ignored.
func ExtractTable(sql string) string {
	mask := codeMask(sql)

	for _, m := range tableKeyword.FindAllStringSubmatchIndex(sql, -1) {
		kwStart, kwEnd := m[2], m[3]
		if !inCode(mask, kwStart, kwEnd) {
			continue
		}

		name := sql[m[4]:m[5]]
		if m[6] != -1 {
			// schema.table — the table segment is the real name.
			name = sql[m[6]:m[7]]
		}
		return strings.ToLower(name)
	}

	return "unknown"
}
