package syntax

import (
	"fmt"
	"regexp"

	"github.com/aymerick/raymond/ast"
	"github.com/aymerick/raymond/parser"
)

var doctypeRe = regexp.MustCompile(`(?i)^\s*<!doctype\s+`)

// ParseError reports a syntax error and the line it occurred on, when the
// parser exposes one.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses template source, including any front matter, into a Tree.
// The returned tree has no address.
func Parse(source string) (*Tree, error) {
	meta, body, lines, err := ParseFrontMatter(source)
	if err != nil {
		return nil, &ParseError{Line: 1, Err: err}
	}

	program, err := parser.Parse(rewritePipes(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	c := converter{lineOffset: lines}
	nodes, err := c.program(program)
	if err != nil {
		return nil, err
	}

	return &Tree{
		Meta:    meta,
		Doctype: doctypeRe.MatchString(body),
		Nodes:   nodes,
		Source:  source,
	}, nil
}

// MustParse is like Parse but panics on error. It is meant for templates
// embedded in the binary.
func MustParse(source string) *Tree {
	t, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return t
}

type converter struct {
	lineOffset int
}

func (c *converter) pos(loc ast.Loc) Pos {
	return Pos{Offset: loc.Pos, Line: loc.Line + c.lineOffset}
}

func (c *converter) errorf(loc ast.Loc, format string, args ...any) error {
	return &ParseError{Line: loc.Line + c.lineOffset, Err: fmt.Errorf(format, args...)}
}

func (c *converter) program(p *ast.Program) ([]Node, error) {
	if p == nil {
		return nil, nil
	}
	if len(p.BlockParams) > 0 {
		return nil, c.errorf(p.Loc, "block parameters are not supported")
	}

	nodes := make([]Node, 0, len(p.Body))
	for _, stmt := range p.Body {
		n, err := c.statement(stmt)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func (c *converter) statement(stmt ast.Node) (Node, error) {
	switch s := stmt.(type) {
	case *ast.ContentStatement:
		if s.Value == "" {
			return nil, nil
		}
		return &TextNode{Pos: c.pos(s.Loc), Text: s.Value}, nil

	case *ast.CommentStatement:
		return nil, nil

	case *ast.MustacheStatement:
		return c.mustache(s)

	case *ast.BlockStatement:
		return c.block(s)

	case *ast.PartialStatement:
		return c.partial(s)
	}
	return nil, c.errorf(stmt.Location(), "unsupported statement %T", stmt)
}

func (c *converter) mustache(s *ast.MustacheStatement) (Node, error) {
	expr := s.Expression
	pos := c.pos(s.Loc)

	if name, ok := helperName(expr); ok && name == pipeHelper {
		return c.filter(pos, expr)
	}

	if len(expr.Params) == 0 && expr.Hash == nil {
		value, err := c.arg(expr.Path)
		if err != nil {
			return nil, err
		}
		return &ValueNode{Pos: pos, Value: value, Escaped: !s.Unescaped}, nil
	}

	h, err := c.helper(pos, expr)
	if err != nil {
		return nil, err
	}
	h.Escaped = !s.Unescaped
	return h, nil
}

func (c *converter) block(s *ast.BlockStatement) (Node, error) {
	h, err := c.helper(c.pos(s.Loc), s.Expression)
	if err != nil {
		return nil, err
	}
	h.Block = true

	if h.Body, err = c.program(s.Program); err != nil {
		return nil, err
	}
	if h.Else, err = c.program(s.Inverse); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *converter) partial(s *ast.PartialStatement) (Node, error) {
	p := &PartialNode{Pos: c.pos(s.Loc)}

	switch name := s.Name.(type) {
	case *ast.PathExpression:
		p.Ref = name.Original
	case *ast.StringLiteral:
		p.Ref = name.Value
	default:
		return nil, c.errorf(s.Loc, "dynamic partial names are not supported")
	}

	if len(s.Params) > 1 {
		return nil, c.errorf(s.Loc, "partial %s takes at most one context argument", p.Ref)
	}
	if len(s.Params) == 1 {
		a, err := c.arg(s.Params[0])
		if err != nil {
			return nil, err
		}
		p.Param = &a
	}

	hash, err := c.hash(s.Hash)
	if err != nil {
		return nil, err
	}
	p.Hash = hash
	return p, nil
}

func (c *converter) helper(pos Pos, expr *ast.Expression) (*HelperNode, error) {
	name, ok := helperName(expr)
	if !ok {
		return nil, &ParseError{Line: pos.Line, Err: fmt.Errorf("helper name must be an identifier")}
	}

	h := &HelperNode{Pos: pos, Name: name, Escaped: true}
	for _, param := range expr.Params {
		a, err := c.arg(param)
		if err != nil {
			return nil, err
		}
		h.Params = append(h.Params, a)
	}

	hash, err := c.hash(expr.Hash)
	if err != nil {
		return nil, err
	}
	h.Hash = hash
	return h, nil
}

func (c *converter) filter(pos Pos, expr *ast.Expression) (Node, error) {
	f := &FilterNode{Pos: pos}
	params := expr.Params

	if len(params) > 0 {
		if _, isSub := params[0].(*ast.SubExpression); !isSub {
			value, err := c.arg(params[0])
			if err != nil {
				return nil, err
			}
			f.Value = value
			params = params[1:]
		}
	}

	for _, param := range params {
		sub, ok := param.(*ast.SubExpression)
		if !ok {
			return nil, c.errorf(param.Location(), "malformed filter pipeline")
		}
		name, ok := helperName(sub.Expression)
		if !ok {
			return nil, c.errorf(sub.Loc, "filter name must be an identifier")
		}
		if len(sub.Expression.Params) > 0 {
			return nil, c.errorf(sub.Loc, "filter %s takes named arguments only", name)
		}
		hash, err := c.hash(sub.Expression.Hash)
		if err != nil {
			return nil, err
		}
		f.Filters = append(f.Filters, FilterCall{Pos: c.pos(sub.Loc), Name: name, Hash: hash})
	}

	return f, nil
}

func (c *converter) arg(n ast.Node) (Arg, error) {
	switch v := n.(type) {
	case *ast.PathExpression:
		return Arg{Path: ParsePath(v.Original)}, nil
	case *ast.StringLiteral:
		return Arg{Literal: v.Value}, nil
	case *ast.NumberLiteral:
		return Arg{Literal: v.Number()}, nil
	case *ast.BooleanLiteral:
		return Arg{Literal: v.Value}, nil
	case *ast.SubExpression:
		h, err := c.helper(c.pos(v.Loc), v.Expression)
		if err != nil {
			return Arg{}, err
		}
		if h.Name == pipeHelper {
			return Arg{}, c.errorf(v.Loc, "filter pipelines cannot be nested")
		}
		return Arg{Sub: h}, nil
	}
	return Arg{}, c.errorf(n.Location(), "unsupported argument %T", n)
}

func (c *converter) hash(h *ast.Hash) (map[string]Arg, error) {
	if h == nil || len(h.Pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]Arg, len(h.Pairs))
	for _, pair := range h.Pairs {
		a, err := c.arg(pair.Val)
		if err != nil {
			return nil, err
		}
		out[pair.Key] = a
	}
	return out, nil
}

func helperName(expr *ast.Expression) (string, bool) {
	if p, ok := expr.Path.(*ast.PathExpression); ok {
		return p.Original, true
	}
	return "", false
}
