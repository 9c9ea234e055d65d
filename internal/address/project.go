package address

import (
	"path"
	"strings"
)

// ProjectDirectory derives the project directory from a root-relative page
// path. With a group pattern, the shortest leading directory matching the
// pattern wins (group/proj/x.html -> group/proj for "{group,set}/*").
// Otherwise the first path segment is the project, and a page sitting
// directly under the root has no project.
func ProjectDirectory(pagePath, groupPattern string) string {
	parts := splitPath(pagePath)
	if len(parts) == 0 {
		return ""
	}
	name := parts[len(parts)-1]
	first := parts[0]

	if groupPattern != "" {
		patterns := ExpandBraces(groupPattern)
		cur := first
		for i := 1; i < len(parts); i++ {
			if matchAny(patterns, cur) {
				return cur
			}
			cur += "/" + parts[i]
		}
	}

	if len(parts) == 1 || first == name {
		return ""
	}
	return first
}

func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	parts := raw[:0]
	for _, s := range raw {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ExpandBraces expands {a,b} alternatives, including nested groups, into
// plain path.Match patterns.
func ExpandBraces(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}

	depth := 0
	closeIdx := -1
	var commas []int
	for i := open; i < len(pattern) && closeIdx < 0; i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				closeIdx = i
			}
		case ',':
			if depth == 1 {
				commas = append(commas, i)
			}
		}
	}
	if closeIdx < 0 {
		return []string{pattern}
	}

	prefix, suffix := pattern[:open], pattern[closeIdx+1:]
	var alternatives []string
	start := open + 1
	for _, c := range commas {
		alternatives = append(alternatives, pattern[start:c])
		start = c + 1
	}
	alternatives = append(alternatives, pattern[start:closeIdx])

	var out []string
	for _, alt := range alternatives {
		out = append(out, ExpandBraces(prefix+alt+suffix)...)
	}
	return out
}
