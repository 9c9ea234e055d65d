package ctyconv

import (
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the function table available to HCL data files and
// helper modules.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":         stdlib.UpperFunc,
		"lower":         stdlib.LowerFunc,
		"title":         stdlib.TitleFunc,
		"trimspace":     stdlib.TrimSpaceFunc,
		"trim":          stdlib.TrimFunc,
		"replace":       stdlib.ReplaceFunc,
		"regex_replace": stdlib.RegexReplaceFunc,
		"strlen":        stdlib.StrlenFunc,
		"substr":        stdlib.SubstrFunc,
		"split":         stdlib.SplitFunc,
		"join":          stdlib.JoinFunc,
		"format":        stdlib.FormatFunc,
		"length":        stdlib.LengthFunc,
		"concat":        stdlib.ConcatFunc,
		"coalesce":      stdlib.CoalesceFunc,
		"contains":      stdlib.ContainsFunc,
		"keys":          stdlib.KeysFunc,
		"lookup":        stdlib.LookupFunc,
		"merge":         stdlib.MergeFunc,
		"jsonencode":    stdlib.JSONEncodeFunc,
		"jsondecode":    stdlib.JSONDecodeFunc,
		"min":           stdlib.MinFunc,
		"max":           stdlib.MaxFunc,
		"abs":           stdlib.AbsoluteFunc,
		"floor":         stdlib.FloorFunc,
		"ceil":          stdlib.CeilFunc,
		"range":         stdlib.RangeFunc,
		"reverse":       stdlib.ReverseListFunc,
		"sort":          stdlib.SortFunc,
		"formatdate":    stdlib.FormatDateFunc,
	}
}
