package sqlclassify

import (
	"regexp"
	"strings"

	"github.com/healthfees-org/workersql-sub002/pkg/types"
)

// Transpiled is the result of rewriting a MySQL-dialect statement into its
// SQLite-dialect equivalent.
type Transpiled struct {
	SQL   string
	Hints types.Hints
}

// simpleRewrite is one dialect rule applied outside string literals and
// comments. guard, when non-nil, excludes a match whose immediately
// following text satisfies the pattern (used to keep BEGIN ->
// BEGIN TRANSACTION idempotent and to leave DATETIME('now') calls alone).
type simpleRewrite struct {
	pattern *regexp.Regexp
	replace string
	guard   *regexp.Regexp
}

// rewrites is the dialect rewrite table, applied in order. Every pattern
// uses \b word boundaries so a rewrite's own output never matches its own
// input pattern again, making transpilation idempotent.
var rewrites = []simpleRewrite{
	// functions
	{pattern: regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`), replace: `DATETIME('now')`},
	{pattern: regexp.MustCompile(`(?i)\bCURDATE\s*\(\s*\)`), replace: `DATE('now')`},
	{pattern: regexp.MustCompile(`(?i)\bYEAR\s*\(`), replace: `STRFTIME('%Y', `},
	{pattern: regexp.MustCompile(`(?i)\bMONTH\s*\(`), replace: `STRFTIME('%m', `},
	{pattern: regexp.MustCompile(`(?i)\bDAY\s*\(`), replace: `STRFTIME('%d', `},
	{pattern: regexp.MustCompile(`(?i)\bCEIL\b`), replace: `CEILING`},

	// types
	{pattern: regexp.MustCompile(`(?i)\bBIGINT\b`), replace: `INTEGER`},
	{pattern: regexp.MustCompile(`(?i)\bTINYINT\b`), replace: `INTEGER`},
	{pattern: regexp.MustCompile(`(?i)\bINT\b`), replace: `INTEGER`},
	{pattern: regexp.MustCompile(`(?i)\bVARCHAR\s*\(\s*\d+\s*\)`), replace: `TEXT`},
	// The guards exclude the DATETIME('now') call this table itself
	// introduces above, so a type keyword is only rewritten when it is
	// not being used as a function call (keeps the pass idempotent).
	{pattern: regexp.MustCompile(`(?i)\bTIMESTAMP\b`), replace: `TEXT`, guard: regexp.MustCompile(`^\s*\(`)},
	{pattern: regexp.MustCompile(`(?i)\bDATETIME\b`), replace: `TEXT`, guard: regexp.MustCompile(`^\s*\(`)},
	{pattern: regexp.MustCompile(`(?i)\bFLOAT\b`), replace: `REAL`},
	{pattern: regexp.MustCompile(`(?i)\bDOUBLE\b`), replace: `REAL`},
	{pattern: regexp.MustCompile(`(?i)\bDECIMAL\b(\s*\([^)]*\))?`), replace: `REAL`},
	{pattern: regexp.MustCompile(`(?i)\bBOOLEAN\b`), replace: `INTEGER`},
	{pattern: regexp.MustCompile(`(?i)\bAUTO_INCREMENT\b`), replace: `AUTOINCREMENT`},

	// DDL noise
	{pattern: regexp.MustCompile(`(?i)\bENGINE\s*=\s*\w+`), replace: ``},
	{pattern: regexp.MustCompile(`(?i)\bDEFAULT\s+CHARSET\s*=\s*\w+`), replace: ``},
	{pattern: regexp.MustCompile(`(?i)\bCHARSET\s*=\s*\w+`), replace: ``},

	// transaction control
	{pattern: regexp.MustCompile(`(?i)\bSTART\s+TRANSACTION\b`), replace: `BEGIN TRANSACTION`},
	{pattern: regexp.MustCompile(`(?i)\bBEGIN\b`), replace: `BEGIN TRANSACTION`, guard: regexp.MustCompile(`(?i)^\s+TRANSACTION\b`)},
}

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*,\s*(\d+)`)

// Transpile rewrites sql from MySQL dialect to SQLite dialect and extracts
// its consistency hints. Transpilation is total: it never
// errors on syntactically-valid-looking input. Parameter placeholders and
// string/comment content are preserved verbatim.
func Transpile(sql string) Transpiled {
	cleaned, hints := ExtractHints(sql)

	out := rewriteConcat(cleaned)
	out = applyMaskedRewrites(out, limitPattern, func(m []string) string {
		return "LIMIT " + m[2] + " OFFSET " + m[1]
	})

	for _, r := range rewrites {
		out = applyRegexRewrite(out, r)
	}

	return Transpiled{SQL: out, Hints: hints}
}

// applyRegexRewrite replaces every code-region match of r.pattern with
// r.replace, skipping matches inside string literals or comments and
// matches excluded by r.guard.
func applyRegexRewrite(sql string, r simpleRewrite) string {
	mask := codeMask(sql)
	matches := r.pattern.FindAllStringSubmatchIndex(sql, -1)
	if len(matches) == 0 {
		return sql
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if !inCode(mask, start, end) {
			continue
		}
		if r.guard != nil && r.guard.MatchString(sql[end:]) {
			continue
		}
		b.WriteString(sql[last:start])
		b.WriteString(string(r.pattern.ExpandString(nil, r.replace, sql, m)))
		last = end
	}
	b.WriteString(sql[last:])
	return b.String()
}

// applyMaskedRewrites is like applyRegexRewrite but hands the caller the
// full submatch slice (Go's []string captured groups) to build a custom
// replacement, used for LIMIT n,m -> LIMIT m OFFSET n.
func applyMaskedRewrites(sql string, pattern *regexp.Regexp, build func(m []string) string) string {
	mask := codeMask(sql)
	idx := pattern.FindAllStringSubmatchIndex(sql, -1)
	if len(idx) == 0 {
		return sql
	}

	var b strings.Builder
	last := 0
	for _, m := range idx {
		start, end := m[0], m[1]
		if !inCode(mask, start, end) {
			continue
		}
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] == -1 {
				continue
			}
			groups[i] = sql[m[2*i]:m[2*i+1]]
		}
		b.WriteString(sql[last:start])
		b.WriteString(build(groups))
		last = end
	}
	b.WriteString(sql[last:])
	return b.String()
}

var concatStart = regexp.MustCompile(`(?i)\bCONCAT\s*\(`)

// rewriteConcat rewrites CONCAT(a, b, ...) into a chained a || b || ...,
// recursing into nested CONCAT calls and respecting nested parens and
// string literals when splitting arguments.
func rewriteConcat(sql string) string {
	mask := codeMask(sql)
	var loc []int
	for _, m := range concatStart.FindAllStringIndex(sql, -1) {
		if inCode(mask, m[0], m[1]) {
			loc = m
			break
		}
	}
	if loc == nil {
		return sql
	}

	openParen := loc[1] - 1
	closeParen := matchParen(sql, openParen)
	if closeParen == -1 {
		return sql
	}

	inner := sql[openParen+1 : closeParen]
	args := splitTopLevelArgs(inner)
	for i, a := range args {
		args[i] = rewriteConcat(strings.TrimSpace(a))
	}

	replacement := strings.Join(args, " || ")
	rewritten := sql[:loc[0]] + replacement + sql[closeParen+1:]

	// Continue past the replacement to catch any sibling CONCAT calls.
	tailStart := loc[0] + len(replacement)
	if tailStart < len(rewritten) {
		return rewritten[:tailStart] + rewriteConcat(rewritten[tailStart:])
	}
	return rewritten
}

// matchParen returns the index of the ')' matching the '(' at open,
// respecting nested parens and string literals, or -1 if unbalanced.
func matchParen(sql string, open int) int {
	depth := 0
	i := open
	for i < len(sql) {
		switch sql[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '\'', '"', '`':
			quote := sql[i]
			i++
			for i < len(sql) && sql[i] != quote {
				if sql[i] == '\\' && i+1 < len(sql) {
					i++
				}
				i++
			}
		}
		i++
	}
	return -1
}

// splitTopLevelArgs splits s on commas that are not nested inside parens
// or string literals.
func splitTopLevelArgs(s string) []string {
	var args []string
	depth := 0
	last := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '\'', '"', '`':
			quote := s[i]
			i++
			for i < len(s) && s[i] != quote {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				i++
			}
		case ',':
			if depth == 0 {
				args = append(args, s[last:i])
				last = i + 1
			}
		}
		i++
	}
	args = append(args, s[last:])
	return args
}
