package nstree

import (
	"fmt"
	"sort"

	"github.com/shinji-kodama/classlens/internal/model"
)

// RootName is the display name of the synthetic root above all containers.
const RootName = "Classes"

// Kind tags the payload carried by a Node.
type Kind int

const (
	// KindPackage nodes group children: the root, container roots and
	// package segments.
	KindPackage Kind = iota

	// KindClass nodes are leaves that resolve to one class of one container.
	KindClass
)

// String returns "package" or "class".
func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindClass:
		return "class"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name for JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "package":
		*k = KindPackage
	case "class":
		*k = KindClass
	default:
		return fmt.Errorf("unknown node kind %q", text)
	}
	return nil
}

// Node is one element of the namespace tree.
//
// It is a tagged union: Kind selects which fields are meaningful.
// Package nodes use Name and Children. Class nodes use Name (the simple
// class name without suffix), Segments, Container and Path, and never have
// children.
type Node struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`

	// Package payload.
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	// Class payload. Segments are the display segments from the container
	// root down to the class, container display name inclusive
	// (["lib-jar", "com", "acme", "A"]). Container and Path resolve the
	// node back to its registry entry.
	Segments  []string `json:"segments,omitempty" yaml:"segments,omitempty"`
	Container string   `json:"container,omitempty" yaml:"container,omitempty"`
	Path      string   `json:"path,omitempty" yaml:"path,omitempty"`
}

func newPackage(name string) *Node {
	return &Node{Kind: KindPackage, Name: name}
}

func newClass(container, path string, segments []string) *Node {
	return &Node{
		Kind:      KindClass,
		Name:      segments[len(segments)-1],
		Segments:  segments,
		Container: container,
		Path:      path,
	}
}

// IsClass reports whether n is a class leaf.
func (n *Node) IsClass() bool {
	return n.Kind == KindClass
}

// Display returns the label shown for the node. Classes carry the class
// suffix ("A.class") so they stand out from packages of the same name.
func (n *Node) Display() string {
	if n.Kind == KindClass {
		return n.Name + model.ClassSuffix
	}
	return n.Name
}

// Entry returns the (container, path) pair a class node resolves to.
func (n *Node) Entry() (model.ClassEntry, bool) {
	if n.Kind != KindClass {
		return model.ClassEntry{}, false
	}
	return model.ClassEntry{Path: n.Path, Container: n.Container}, true
}

// Child returns the direct child with the given display name or, failing
// that, the given bare name.
func (n *Node) Child(name string) *Node {
	var byName *Node
	for _, c := range n.Children {
		if c.Display() == name {
			return c
		}
		if byName == nil && c.Name == name {
			byName = c
		}
	}
	return byName
}

// addChild links child under n unless it is already linked. Children are
// unique by display name.
func (n *Node) addChild(child *Node) bool {
	for _, c := range n.Children {
		if c == child || c.Display() == child.Display() {
			return false
		}
	}
	n.Children = append(n.Children, child)
	return true
}

// sortChildren orders packages before classes and each group by name,
// case-sensitively.
func (n *Node) sortChildren() {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Kind != b.Kind {
			return a.Kind == KindPackage
		}
		return a.Name < b.Name
	})
}

// Walk visits n and its descendants depth-first in child order. depth is 0
// for n itself. Returning false from fn skips the node's children.
func Walk(n *Node, fn func(node *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}

// CountClasses returns the number of class leaves below n.
func CountClasses(n *Node) int {
	count := 0
	Walk(n, func(node *Node, _ int) bool {
		if node.IsClass() {
			count++
		}
		return true
	})
	return count
}
