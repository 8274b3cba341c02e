package suite

import (
	"fmt"
	"path"
)

// Node is a *Test or a *Group.
type Node interface {
	nodeName() string
}

// Test is a leaf: a named body run against a fresh Context.
type Test struct {
	Name string
	Body func(*Context) error
}

// Group is an ordered list of tests and groups.
type Group struct {
	Name     string
	Children []Node
}

func (t *Test) nodeName() string  { return t.Name }
func (g *Group) nodeName() string { return g.Name }

// Add appends children and returns g.
func (g *Group) Add(children ...Node) *Group {
	g.Children = append(g.Children, children...)
	return g
}

// Count returns the number of tests under n.
func Count(n Node) int {
	total := 0
	_ = Walk(n, func(string, *Test) error {
		total++
		return nil
	})
	return total
}

// Walk calls fn for every test under root in order, with the slash-joined
// names of its enclosing groups and itself. An error from fn stops the walk.
func Walk(root Node, fn func(path string, t *Test) error) error {
	return walk("", root, fn)
}

func walk(prefix string, n Node, fn func(string, *Test) error) error {
	switch n := n.(type) {
	case *Test:
		return fn(path.Join(prefix, n.Name), n)
	case *Group:
		p := path.Join(prefix, n.Name)
		for _, c := range n.Children {
			if err := walk(p, c, fn); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("suite: unknown node type %T", n)
	}
}
