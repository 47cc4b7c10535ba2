// Package query builds boolean query trees from typed field predicates.
//
// Every node renders itself in RediSearch dialect-2 syntax and can also be
// evaluated in process against a Document.
package query

import "strings"

// Document exposes the indexed values of one stored record by alias.
// Tag fields are already split into their individual values.
type Document interface {
	Values(alias string) []string
}

// Node is an element of a query tree.
type Node interface {
	String() string
	Match(doc Document) bool
}

// All matches every record.
var All Node = allNode{}

type allNode struct{}

func (allNode) String() string        { return "*" }
func (allNode) Match(_ Document) bool { return true }

// Intersect matches records matched by every child.
type Intersect struct {
	Children []Node
}

func (n *Intersect) String() string {
	switch len(n.Children) {
	case 0:
		return "*"
	case 1:
		return n.Children[0].String()
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Match implements Node.
func (n *Intersect) Match(doc Document) bool {
	for _, c := range n.Children {
		if !c.Match(doc) {
			return false
		}
	}
	return true
}

// Union matches records matched by any child.
type Union struct {
	Children []Node
}

func (n *Union) String() string {
	if len(n.Children) == 1 {
		return n.Children[0].String()
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

// Match implements Node.
func (n *Union) Match(doc Document) bool {
	for _, c := range n.Children {
		if c.Match(doc) {
			return true
		}
	}
	return false
}

// Not negates its child.
type Not struct {
	Child Node
}

func (n *Not) String() string {
	return "-" + n.Child.String()
}

// Match implements Node.
func (n *Not) Match(doc Document) bool {
	return !n.Child.Match(doc)
}

// And intersects nodes. Nested intersections are flattened and All is the
// identity element.
func And(nodes ...Node) Node {
	var children []Node
	for _, n := range nodes {
		switch v := n.(type) {
		case nil, allNode:
		case *Intersect:
			children = append(children, v.Children...)
		default:
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return All
	case 1:
		return children[0]
	}
	return &Intersect{Children: children}
}

// Or unions nodes. Nested unions are flattened and All absorbs everything.
func Or(nodes ...Node) Node {
	var children []Node
	for _, n := range nodes {
		switch v := n.(type) {
		case nil:
		case allNode:
			return All
		case *Union:
			children = append(children, v.Children...)
		default:
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return All
	case 1:
		return children[0]
	}
	return &Union{Children: children}
}

// Negate wraps n in a negation.
func Negate(n Node) Node {
	return &Not{Child: n}
}
