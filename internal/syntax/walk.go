package syntax

// A Visitor's Visit method is invoked for each node encountered by Walk.
// If the result visitor w is not nil, Walk visits each of the children of
// node with w.
type Visitor interface {
	Visit(node Node) (w Visitor)
}

// Walk traverses nodes depth-first in source order. Sub-expression helper
// calls inside arguments are visited as HelperNodes, before the block body.
func Walk(v Visitor, nodes []Node) {
	for _, n := range nodes {
		walkNode(v, n)
	}
}

func walkNode(v Visitor, n Node) {
	w := v.Visit(n)
	if w == nil {
		return
	}

	switch n := n.(type) {
	case *HelperNode:
		walkArgs(w, n.Params, n.Hash)
		Walk(w, n.Body)
		Walk(w, n.Else)
	case *FilterNode:
		walkArg(w, n.Value)
		for _, f := range n.Filters {
			walkArgs(w, nil, f.Hash)
		}
	case *PartialNode:
		if n.Param != nil {
			walkArg(w, *n.Param)
		}
		walkArgs(w, nil, n.Hash)
	case *ValueNode:
		walkArg(w, n.Value)
	}
}

func walkArgs(v Visitor, params []Arg, hash map[string]Arg) {
	for _, a := range params {
		walkArg(v, a)
	}
	for _, a := range hash {
		walkArg(v, a)
	}
}

func walkArg(v Visitor, a Arg) {
	if a.Sub != nil {
		walkNode(v, a.Sub)
	}
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses nodes depth-first, calling f for each node. If f
// returns false, the children of that node are skipped.
func Inspect(nodes []Node, f func(Node) bool) {
	Walk(inspector(f), nodes)
}
