// Package nstree turns the flat class paths of registered containers into
// one hierarchical namespace tree.
//
// The tree has a synthetic root ("Classes") with one child per container.
// Below each container root, package nodes mirror the path segments and
// class nodes are the leaves. Children are ordered packages first, then
// classes, each group by case-sensitive name.
//
// Construction is two-pass. AddContainer first materializes one node per
// distinct path prefix using a per-container prefix→node index, then links
// every new node to the node of its parent prefix. Because the index is
// scoped to one container, equal package or class names in different
// containers always produce distinct nodes.
package nstree

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shinji-kodama/classlens/internal/model"
)

// classKeySuffix marks index keys of class nodes so a class "a/Foo" and a
// package "a/Foo" never share a key.
const classKeySuffix = model.ClassSuffix

// containerIndex is the prefix→node index of one container subtree.
type containerIndex struct {
	root  *Node
	nodes map[string]*Node
}

// Builder builds and holds the namespace tree. It is not safe for
// concurrent use; browser.Session guards it with its own lock.
type Builder struct {
	root    *Node
	indexes map[string]*containerIndex

	// attached tracks which container roots are linked under root.
	attached map[string]bool
}

// NewBuilder creates a builder holding an empty tree.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Clear()
	return b
}

// Root returns the synthetic root. It has no children when no container
// was added since the last Clear.
func (b *Builder) Root() *Node {
	return b.root
}

// Clear discards the whole tree, global root included, and starts over
// with an empty root.
func (b *Builder) Clear() {
	b.root = newPackage(RootName)
	b.indexes = make(map[string]*containerIndex)
	b.attached = make(map[string]bool)
}

// Build clears the tree and adds every container in order.
func (b *Builder) Build(containers []*model.Container) *Node {
	b.Clear()
	for _, c := range containers {
		b.AddContainer(c)
	}
	return b.root
}

// AddContainer merges the classes of c into the tree. Calling it again for
// the same container only materializes prefixes not seen before, and the
// container root is attached to the global root once.
func (b *Builder) AddContainer(c *model.Container) {
	idx, ok := b.indexes[c.Name]
	if !ok {
		display := b.uniqueDisplay(c.DisplayName())
		root := newPackage(display)
		idx = &containerIndex{
			root:  root,
			nodes: map[string]*Node{display: root},
		}
		b.indexes[c.Name] = idx
	}

	// Pass 1: materialize nodes for unseen prefixes.
	var fresh []string
	for _, ce := range c.Classes {
		segments := splitClassPath(idx.root.Name, ce.Path)
		if len(segments) < 2 {
			continue
		}
		for i := 2; i <= len(segments); i++ {
			prefix := strings.Join(segments[:i], model.PathSeparator)
			if i == len(segments) {
				key := prefix + classKeySuffix
				if _, seen := idx.nodes[key]; !seen {
					idx.nodes[key] = newClass(c.Name, ce.Path, segments)
					fresh = append(fresh, key)
				}
				continue
			}
			if _, seen := idx.nodes[prefix]; !seen {
				idx.nodes[prefix] = newPackage(segments[i-1])
				fresh = append(fresh, prefix)
			}
		}
	}

	// Pass 2: link each new node to its parent prefix.
	touched := make(map[*Node]struct{})
	for _, key := range fresh {
		parent := idx.nodes[parentKey(key)]
		if parent == nil {
			continue
		}
		if parent.addChild(idx.nodes[key]) {
			touched[parent] = struct{}{}
		}
	}
	for parent := range touched {
		parent.sortChildren()
	}

	if !b.attached[c.Name] {
		b.root.Children = append(b.root.Children, idx.root)
		b.attached[c.Name] = true
	}
}

// uniqueDisplay returns display, or display with a "~N" suffix when
// another container root already uses it ("lib.jar" and "lib-jar" both
// display as "lib-jar").
func (b *Builder) uniqueDisplay(display string) string {
	taken := func(name string) bool {
		for _, n := range b.root.Children {
			if n.Name == name {
				return true
			}
		}
		return false
	}
	if !taken(display) {
		return display
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s~%d", display, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// splitClassPath returns the display segments of a class path: the
// container display name, every package segment and the simple class name.
// Empty segments from doubled or leading separators are dropped.
func splitClassPath(containerDisplay, path string) []string {
	trimmed := strings.TrimSuffix(path, model.ClassSuffix)
	segments := []string{containerDisplay}
	for _, s := range strings.Split(trimmed, model.PathSeparator) {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// parentKey strips the trailing segment of an index key.
func parentKey(key string) string {
	key = strings.TrimSuffix(key, classKeySuffix)
	if i := strings.LastIndex(key, model.PathSeparator); i != -1 {
		return key[:i]
	}
	return ""
}

// ContainerCount returns the number of container subtrees in the tree.
func (b *Builder) ContainerCount() int {
	return len(b.root.Children)
}

// Find follows display names (or bare names) from the root, e.g.
// Find("lib-jar", "com", "acme", "A.class"). It returns nil when any
// segment is missing.
func (b *Builder) Find(segments ...string) *Node {
	n := b.root
	for _, s := range segments {
		n = n.Child(s)
		if n == nil {
			return nil
		}
	}
	return n
}

// Classes returns every class node in display order.
func (b *Builder) Classes() []*Node {
	var out []*Node
	Walk(b.root, func(n *Node, _ int) bool {
		if n.IsClass() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Filter returns a copy of the tree holding only classes whose archive
// path matches the doublestar pattern (e.g. "com/acme/**"). Packages and
// containers left without classes are pruned; the root is always kept.
func (b *Builder) Filter(pattern string) (*Node, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid filter pattern %q", pattern)
	}
	filtered := prune(b.root, func(n *Node) bool {
		ok, _ := doublestar.Match(pattern, n.Path)
		return ok
	})
	if filtered == nil {
		filtered = newPackage(RootName)
	}
	return filtered, nil
}

// prune copies n keeping the classes accepted by keep. It returns nil when
// nothing below n is kept.
func prune(n *Node, keep func(*Node) bool) *Node {
	if n.IsClass() {
		if !keep(n) {
			return nil
		}
		cp := *n
		return &cp
	}
	cp := &Node{Kind: n.Kind, Name: n.Name}
	for _, c := range n.Children {
		if kept := prune(c, keep); kept != nil {
			cp.Children = append(cp.Children, kept)
		}
	}
	if len(cp.Children) == 0 {
		return nil
	}
	return cp
}
