package sqlclassify

// codeMask computes, for every byte offset in sql, whether that offset
// lies inside executable SQL text (true) as opposed to a string literal,
// quoted identifier, or comment (false). Rewrites and table extraction
// consult the mask so they never touch text "inside string literals or
// comments".
func codeMask(sql string) []bool {
	mask := make([]bool, len(sql))
	for i := range mask {
		mask[i] = true
	}

	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			start := i
			quote := c
			mask[i] = false
			i++
			for i < n {
				mask[i] = false
				if sql[i] == quote {
					// MySQL/SQLite allow doubling the quote char to escape it.
					if i+1 < n && sql[i+1] == quote {
						mask[i+1] = false
						i += 2
						continue
					}
					i++
					break
				}
				if sql[i] == '\\' && i+1 < n {
					mask[i+1] = false
					i += 2
					continue
				}
				i++
			}
			_ = start
		case c == '-' && i+1 < n && sql[i+1] == '-':
			mask[i] = false
			mask[i+1] = false
			i += 2
			for i < n && sql[i] != '\n' {
				mask[i] = false
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			mask[i] = false
			mask[i+1] = false
			i += 2
			for i < n {
				mask[i] = false
				if sql[i] == '*' && i+1 < n && sql[i+1] == '/' {
					mask[i+1] = false
					i += 2
					break
				}
				i++
			}
		default:
			i++
		}
	}

	return mask
}

// inCode reports whether the half-open range [start,end) lies entirely in
// code (not a literal or comment).
func inCode(mask []bool, start, end int) bool {
	if start < 0 || end > len(mask) || start >= end {
		return false
	}
	for i := start; i < end; i++ {
		if !mask[i] {
			return false
		}
	}
	return true
}
