// Package syntax parses template text into the node tree consumed by the
// dependency collector and the render engine.
//
// Templates use Handlebars mustaches, parsed with raymond, plus a filter
// pipeline form:
//
//	{{ title | upper | truncate length=20 }}
//
// An optional YAML front matter block delimited by --- lines may open the
// file; it is decoded into Tree.Meta.
package syntax

import (
	"strings"
)

// Pos locates a node in its template source. Line is 1-based and counts
// the front matter block.
type Pos struct {
	Offset int
	Line   int
}

// Position returns p so that embedding Pos satisfies part of Node.
func (p Pos) Position() Pos { return p }

// Node is one element of a parsed template.
type Node interface {
	Position() Pos
	node()
}

// TextNode is literal template text.
type TextNode struct {
	Pos
	Text string
}

// ValueNode prints a context value or literal, HTML escaped unless Escaped
// is false ({{{ }}}).
type ValueNode struct {
	Pos
	Value   Arg
	Escaped bool
}

// FilterCall is one stage of a filter pipeline.
type FilterCall struct {
	Pos
	Name string
	Hash map[string]Arg
}

// FilterNode pipes Value through Filters left to right. The result is
// always HTML escaped.
type FilterNode struct {
	Pos
	Value   Arg
	Filters []FilterCall
}

// HelperNode is a helper invocation. Block helpers ({{#name}}) carry Body
// and an optional Else branch; inline helpers carry neither.
type HelperNode struct {
	Pos
	Name    string
	Params  []Arg
	Hash    map[string]Arg
	Block   bool
	Escaped bool
	Body    []Node
	Else    []Node
}

// PartialNode includes another template. Ref is the raw reference as
// written; Param optionally supplies the partial's context.
type PartialNode struct {
	Pos
	Ref   string
	Param *Arg
	Hash  map[string]Arg
}

func (*TextNode) node()    {}
func (*ValueNode) node()   {}
func (*FilterNode) node()  {}
func (*HelperNode) node()  {}
func (*PartialNode) node() {}

// Arg is a helper, filter or partial argument: a context path, a literal or
// a sub-expression helper call. Exactly one field is set, except that a
// literal nil is represented by the zero Arg.
type Arg struct {
	Path    *Path
	Literal any
	Sub     *HelperNode
}

// IsZero reports whether a carries nothing at all.
func (a Arg) IsZero() bool {
	return a.Path == nil && a.Literal == nil && a.Sub == nil
}

// Path is a context lookup such as foo.bar, ../title, this or @index.
type Path struct {
	Original string
	Parts    []string
	// Depth counts leading ../ segments.
	Depth int
	// Data marks @-prefixed private variables.
	Data bool
}

// IsThis reports whether p names the current context itself.
func (p *Path) IsThis() bool {
	return len(p.Parts) == 0
}

func (p *Path) String() string {
	return p.Original
}

// ParsePath parses a Handlebars path expression.
func ParsePath(s string) *Path {
	p := &Path{Original: s}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "@") {
		p.Data = true
		s = s[1:]
	}

	for {
		switch {
		case strings.HasPrefix(s, "../"):
			p.Depth++
			s = s[3:]
			continue
		case s == "..":
			p.Depth++
			s = ""
		}
		break
	}

	switch {
	case s == "this" || s == ".":
		s = ""
	case strings.HasPrefix(s, "this.") || strings.HasPrefix(s, "this/"):
		s = s[5:]
	case strings.HasPrefix(s, "./"):
		s = s[2:]
	}

	if s == "" {
		return p
	}
	p.Parts = strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '/' })
	for i, part := range p.Parts {
		if len(part) > 1 && part[0] == '[' && part[len(part)-1] == ']' {
			p.Parts[i] = part[1 : len(part)-1]
		}
	}
	return p
}

// Tree is a parsed template.
type Tree struct {
	// Address is the resource address the tree was loaded from. It is set
	// per use through WithAddress and is empty on cached instances.
	Address string
	// Meta holds the decoded front matter, or nil.
	Meta map[string]any
	// Doctype is true when the body opens with <!DOCTYPE.
	Doctype bool
	Nodes   []Node
	Source  string
}

// WithAddress returns a shallow copy of t tagged with address. Trees are
// shared between renders through the content keyed cache, so the cached
// instance is never tagged in place.
func (t *Tree) WithAddress(address string) *Tree {
	c := *t
	c.Address = address
	return &c
}
