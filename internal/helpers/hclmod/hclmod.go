// Package hclmod loads helper and filter modules written in HCL.
//
// A module file declares what it provides and a single output expression:
//
//	kind   = "helper"            # or "filter"; defaults to helper
//	escape = false               # helpers only; defaults to true
//	output = "<b>${upper(value)}</b>"
//
// Helper expressions see value (first argument), args, hash, this (the
// current context), root, block and inverse (the rendered block body and
// else branch). Filter expressions see value and hash. Both may call the
// functions in ctyconv.Functions.
package hclmod

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/conneroisu/quilt/internal/content"
	"github.com/conneroisu/quilt/internal/ctyconv"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/scope"
)

type moduleFile struct {
	Kind   string         `hcl:"kind,optional"`
	Escape *bool          `hcl:"escape,optional"`
	Output hcl.Expression `hcl:"output"`
}

var moduleSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "output", Required: true}},
}

// Loader reads module files through a content store.
type Loader struct {
	store content.Store
}

// NewLoader returns a Loader over store.
func NewLoader(store content.Store) *Loader {
	return &Loader{store: store}
}

// Load implements helpers.Loader.
func (l *Loader) Load(ctx context.Context, address string) (*helpers.Module, error) {
	src, err := l.store.Read(ctx, address)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(src), address)
}

// Parse decodes a module file. The module is named after the file.
func Parse(src []byte, address string) (*helpers.Module, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, address)
	if diags.HasErrors() {
		return nil, diags
	}

	// gohcl leaves a missing expression attribute as a null expression.
	if _, _, diags := file.Body.PartialContent(moduleSchema); diags.HasErrors() {
		return nil, diags
	}

	var mf moduleFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mf); diags.HasErrors() {
		return nil, diags
	}

	m := &helpers.Module{
		Name:    strings.TrimSuffix(path.Base(address), path.Ext(address)),
		Address: address,
	}

	switch helpers.ModuleKind(mf.Kind) {
	case "", helpers.ModuleHelper:
		m.Kind = helpers.ModuleHelper
		escape := mf.Escape == nil || *mf.Escape
		m.Helper = helperFunc(mf.Output, escape)
	case helpers.ModuleFilter:
		m.Kind = helpers.ModuleFilter
		m.Filter = filterFunc(mf.Output)
	default:
		return nil, fmt.Errorf("%s: unknown module kind %q", address, mf.Kind)
	}
	return m, nil
}

func helperFunc(output hcl.Expression, escape bool) helpers.Func {
	return func(s *scope.Scope, value any, opts *helpers.Options) (any, error) {
		args := make([]cty.Value, len(opts.Args))
		for i, a := range opts.Args {
			args[i] = ctyconv.FromGo(a)
		}
		argsVal := cty.EmptyTupleVal
		if len(args) > 0 {
			argsVal = cty.TupleVal(args)
		}

		vars := map[string]cty.Value{
			"value":   ctyconv.FromGo(value),
			"args":    argsVal,
			"hash":    ctyconv.FromGo(opts.Hash),
			"this":    ctyconv.FromGo(s.Data()),
			"root":    ctyconv.FromGo(s.Root().Data()),
			"block":   cty.StringVal(opts.Fn.Call(s)),
			"inverse": cty.StringVal(opts.Inverse.Call(s)),
		}

		out, err := evaluate(output, vars)
		if err != nil {
			return nil, err
		}
		if !escape {
			return raymond.SafeString(helpers.Str(out)), nil
		}
		return out, nil
	}
}

func filterFunc(output hcl.Expression) helpers.FilterFunc {
	return func(value any, hash map[string]any) (any, error) {
		return evaluate(output, map[string]cty.Value{
			"value": ctyconv.FromGo(value),
			"hash":  ctyconv.FromGo(hash),
		})
	}
}

func evaluate(expr hcl.Expression, vars map[string]cty.Value) (any, error) {
	evalCtx := &hcl.EvalContext{
		Variables: vars,
		Functions: ctyconv.Functions(),
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	return ctyconv.ToGo(val)
}
