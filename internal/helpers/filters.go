package helpers

import (
	"encoding/json"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var builtinFilters = map[string]FilterFunc{
	"upper":    caseFilter(func() cases.Caser { return cases.Upper(language.Und) }),
	"lower":    caseFilter(func() cases.Caser { return cases.Lower(language.Und) }),
	"title":    caseFilter(func() cases.Caser { return cases.Title(language.Und) }),
	"default":  defaultFilter,
	"json":     jsonFilter,
	"truncate": truncateFilter,
	"join":     joinFilter,
}

// caseFilter builds a fresh Caser per call; a Caser is not safe for
// concurrent use.
func caseFilter(caser func() cases.Caser) FilterFunc {
	return func(value any, _ map[string]any) (any, error) {
		return caser().String(Str(value)), nil
	}
}

// defaultFilter replaces a falsy value with hash["value"].
func defaultFilter(value any, hash map[string]any) (any, error) {
	if Truthy(value, true) {
		return value, nil
	}
	return hash["value"], nil
}

// jsonFilter encodes value as JSON, indented by hash["indent"] spaces.
func jsonFilter(value any, hash map[string]any) (any, error) {
	var (
		b   []byte
		err error
	)
	if n, ok := toInt(hash["indent"]); ok && n > 0 {
		b, err = json.MarshalIndent(value, "", strings.Repeat(" ", n))
	} else {
		b, err = json.Marshal(value)
	}
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// truncateFilter shortens a string to hash["length"] runes (default 30),
// appending hash["suffix"] (default "...") when it cut anything.
func truncateFilter(value any, hash map[string]any) (any, error) {
	limit := 30
	if n, ok := toInt(hash["length"]); ok && n >= 0 {
		limit = n
	}
	suffix := "..."
	if s, ok := hash["suffix"]; ok {
		suffix = Str(s)
	}

	runes := []rune(Str(value))
	if len(runes) <= limit {
		return string(runes), nil
	}
	return string(runes[:limit]) + suffix, nil
}

// joinFilter joins a list with hash["sep"] (default ", ").
func joinFilter(value any, hash map[string]any) (any, error) {
	sep := ", "
	if s, ok := hash["sep"]; ok {
		sep = Str(s)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Str(value), nil
	}
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = Str(rv.Index(i).Interface())
	}
	return strings.Join(parts, sep), nil
}
