package sqlclassify

import (
	"regexp"
	"strings"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
	"github.com/healthfees-org/workersql-sub002/pkg/workerr"
)

var leadingKeyword = regexp.MustCompile(`^([A-Za-z]+)`)

var ddlKeywords = map[string]bool{
	"CREATE":   true,
	"ALTER":    true,
	"DROP":     true,
	"TRUNCATE": true,
	"RENAME":   true,
}

// Classify determines the statement kind of sql by its leading keyword
// after whitespace and hint-comment stripping. Unknown leading
// keywords are rejected with InvalidSQL.
func Classify(sql string) (types.StatementKind, error) {
	stripped, _ := ExtractHints(sql)
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return "", workerr.New(workerr.InvalidSQL, "empty statement")
	}

	m := leadingKeyword.FindStringSubmatch(stripped)
	if m == nil {
		return "", workerr.New(workerr.InvalidSQL, "statement does not begin with a keyword")
	}

	kw := strings.ToUpper(m[1])
	switch kw {
	case "SELECT":
		return types.KindSelect, nil
	case "INSERT", "REPLACE":
		return types.KindInsert, nil
	case "UPDATE":
		return types.KindUpdate, nil
	case "DELETE":
		return types.KindDelete, nil
	}

	if ddlKeywords[kw] {
		return types.KindDDL, nil
	}

	return "", workerr.New(workerr.InvalidSQL, "unrecognized leading keyword: "+kw)
}
