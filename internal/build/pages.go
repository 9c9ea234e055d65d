package build

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/quilt/internal/address"
	"github.com/conneroisu/quilt/internal/config"
)

// Pages lists the root-relative paths of the pages to build, sorted.
//
// A pattern starting with "!" excludes what it matches. Patterns use
// path.Match syntax per segment plus "**" for any number of segments and
// {a,b} alternatives. Hidden directories, the shared directory and the
// helper, data, partial and layout directories never hold pages.
func Pages(t *config.Template, patterns []string) ([]string, error) {
	var include, exclude []string
	for _, p := range patterns {
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, address.ExpandBraces(rest)...)
			continue
		}
		include = append(include, address.ExpandBraces(p)...)
	}

	skip := map[string]bool{t.Shared: true}
	for _, kind := range []config.Kind{config.KindHelper, config.KindData, config.KindPartial, config.KindLayout} {
		if dir := t.Dir(kind); dir != "" {
			skip[dir] = true
		}
	}

	root := filepath.FromSlash(t.Root)
	var pages []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (strings.HasPrefix(d.Name(), ".") || skip[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != t.TemplateExt || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchAnyGlob(include, rel) && !matchAnyGlob(exclude, rel) {
			pages = append(pages, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(pages)
	return pages, nil
}

func matchAnyGlob(patterns []string, name string) bool {
	for _, p := range patterns {
		if matchGlob(strings.Split(strings.Trim(p, "/"), "/"), strings.Split(name, "/")) {
			return true
		}
	}
	return false
}

// matchGlob matches path segments against pattern segments, where a "**"
// segment consumes zero or more path segments.
func matchGlob(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchGlob(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], name[0]); err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
