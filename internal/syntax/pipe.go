package syntax

import (
	"strings"
)

// pipeHelper is the synthetic helper a filter pipeline is rewritten to
// before the source reaches the Handlebars parser.
const pipeHelper = "__pipe__"

// rewritePipes turns every {{ value | f1 | f2 k=v }} mustache into
// {{__pipe__ value (f1) (f2 k=v)}}. Rewrites never add or remove newlines,
// so line numbers reported by the parser stay accurate.
func rewritePipes(src string) string {
	if !strings.Contains(src, "|") {
		return src
	}

	var b strings.Builder
	b.Grow(len(src) + 32)

	i := 0
	for i < len(src) {
		open := strings.Index(src[i:], "{{")
		if open < 0 {
			b.WriteString(src[i:])
			break
		}
		open += i
		b.WriteString(src[i:open])

		// \{{ escapes a mustache
		if open > 0 && src[open-1] == '\\' {
			b.WriteString("{{")
			i = open + 2
			continue
		}

		end := mustacheEnd(src, open)
		if end < 0 {
			b.WriteString(src[open:])
			break
		}

		b.WriteString(rewriteMustache(src[open:end]))
		i = end
	}

	return b.String()
}

// mustacheEnd returns the index just past the mustache starting at open,
// or -1 if it is unterminated.
func mustacheEnd(src string, open int) int {
	rest := src[open:]
	switch {
	case strings.HasPrefix(rest, "{{!--"):
		if idx := strings.Index(rest, "--}}"); idx >= 0 {
			return open + idx + 4
		}
		return -1
	case strings.HasPrefix(rest, "{{{{"):
		if idx := strings.Index(rest, "}}}}"); idx >= 0 {
			return open + idx + 4
		}
		return -1
	case strings.HasPrefix(rest, "{{{"):
		if idx := indexOutsideQuotes(rest[3:], "}}}"); idx >= 0 {
			return open + 3 + idx + 3
		}
		return -1
	}
	if idx := indexOutsideQuotes(rest[2:], "}}"); idx >= 0 {
		return open + 2 + idx + 2
	}
	return -1
}

func indexOutsideQuotes(s, needle string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case strings.HasPrefix(s[i:], needle):
			return i
		}
	}
	return -1
}

// rewriteMustache rewrites a single plain {{ }} mustache if it contains a
// top-level pipe. Blocks, partials, comments and triple-stash mustaches are
// returned unchanged.
func rewriteMustache(m string) string {
	if strings.HasPrefix(m, "{{{") || len(m) < 4 {
		return m
	}

	inner := m[2 : len(m)-2]
	openTilde, closeTilde := "", ""
	if strings.HasPrefix(inner, "~") {
		openTilde = "~"
		inner = inner[1:]
	}
	if strings.HasSuffix(inner, "~") {
		closeTilde = "~"
		inner = inner[:len(inner)-1]
	}

	trimmed := strings.TrimLeft(inner, " \t")
	if trimmed == "" || strings.ContainsRune("#/>!^&", rune(trimmed[0])) || strings.HasPrefix(trimmed, "else") {
		return m
	}

	segments := splitTopLevel(inner, '|')
	if len(segments) < 2 {
		return m
	}

	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(openTilde)
	b.WriteString(pipeHelper)
	if value := strings.TrimSpace(segments[0]); value != "" {
		b.WriteByte(' ')
		b.WriteString(value)
	}
	for _, seg := range segments[1:] {
		b.WriteString(" (")
		b.WriteString(strings.TrimSpace(seg))
		b.WriteByte(')')
	}
	b.WriteString(strings.Repeat("\n", strings.Count(inner, "\n")))
	b.WriteString(closeTilde)
	b.WriteString("}}")
	return b.String()
}

// splitTopLevel splits s on sep, ignoring separators inside quotes or
// parentheses.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		quote byte
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
