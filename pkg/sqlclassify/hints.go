package sqlclassify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// hintPattern matches /*+ strong */, /*+ bounded */, /*+ bounded=500 */ and
// /*+ weak */ comments, case-insensitively.
var hintPattern = regexp.MustCompile(`(?i)/\*\+\s*(strong|bounded(?:\s*=\s*(\d+))?|weak)\s*\*/`)

// ExtractHints removes every /*+ ... */ hint comment from sql and returns
// the cleaned SQL plus the parsed hint. When multiple hints are present,
// the last one wins. A query with no hint comment returns a
// zero-value Hints (Consistency == "").
func ExtractHints(sql string) (string, types.Hints) {
	matches := hintPattern.FindAllStringSubmatchIndex(sql, -1)
	if len(matches) == 0 {
		return sql, types.Hints{}
	}

	var hints types.Hints
	for _, m := range matches {
		kw := strings.ToLower(sql[m[2]:m[3]])
		switch {
		case strings.HasPrefix(kw, "strong"):
			hints = types.Hints{Consistency: types.ConsistencyStrong}
		case strings.HasPrefix(kw, "weak"):
			hints = types.Hints{Consistency: types.ConsistencyCached}
		case strings.HasPrefix(kw, "bounded"):
			hints = types.Hints{Consistency: types.ConsistencyBounded}
			if m[4] != -1 {
				if ms, err := strconv.ParseUint(sql[m[4]:m[5]], 10, 64); err == nil {
					hints.BoundedMS = ms
				}
			}
		}
	}

	cleaned := hintPattern.ReplaceAllString(sql, " ")
	return cleaned, hints
}
