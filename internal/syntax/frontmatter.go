package syntax

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var frontMatterRe = regexp.MustCompile(`^\s*-{3}([\s\S]+?)-{3}[ \t]*\r?\n?`)

// SplitFrontMatter separates a leading --- delimited YAML block from the
// template body. It returns the raw YAML, the body and the number of lines
// the header occupied. When there is no header, yml is empty and body is
// src.
func SplitFrontMatter(src string) (yml, body string, lines int) {
	loc := frontMatterRe.FindStringSubmatchIndex(src)
	if loc == nil {
		return "", src, 0
	}
	header := src[:loc[1]]
	return src[loc[2]:loc[3]], src[loc[1]:], strings.Count(header, "\n")
}

// ParseFrontMatter decodes the front matter of src, if any.
func ParseFrontMatter(src string) (map[string]any, string, int, error) {
	yml, body, lines := SplitFrontMatter(src)
	if strings.TrimSpace(yml) == "" {
		return nil, body, lines, nil
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(yml), &meta); err != nil {
		return nil, body, lines, fmt.Errorf("front matter: %w", err)
	}
	return meta, body, lines, nil
}
