package envlayers

import "strings"

// Parse reads KEY=VALUE lines. Blank lines, #-comments and lines without
// '=' are skipped. The value may contain '='; one pair of matching single
// or double quotes around it is removed.
func Parse(content string) map[string]string {
	vars := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		vars[key] = unquote(strings.TrimSpace(value))
	}

	return vars
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}
	return value
}
