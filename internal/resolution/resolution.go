// SPDX-License-Identifier: MPL-2.0

// Package resolution tracks, per root load request, which module is being
// resolved on behalf of which. Each node owns its children; the parent link is
// a plain back reference used for ancestor queries and cycle checks.
package resolution

import (
	"slices"
	"strings"
	"sync"

	"github.com/invowk/lazyload/pkg/modident"
)

type (
	// Node is one module resolution within a load tree.
	Node struct {
		identity modident.Identity
		parent   *Node

		mu       sync.Mutex
		children []*Node
	}
)

// NewRoot starts a tree for a top-level load request.
func NewRoot(id modident.Identity) *Node {
	return &Node{identity: id}
}

// NewScope creates a child node for resolving id on behalf of n. Safe for
// concurrent use by sibling dependency loads.
func (n *Node) NewScope(id modident.Identity) *Node {
	child := &Node{identity: id, parent: n}
	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()
	return child
}

// Identity returns the module this node resolves.
func (n *Node) Identity() modident.Identity { return n.identity }

// Parent returns the requesting node, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a snapshot of the child nodes in creation order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.children)
}

// Root walks up to the tree root.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Depth is the number of edges between n and the root.
func (n *Node) Depth() int {
	d := 0
	for cur := n.parent; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

// Path returns the identities from the root down to n.
func (n *Node) Path() []modident.Identity {
	path := make([]modident.Identity, 0, n.Depth()+1)
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur.identity)
	}
	slices.Reverse(path)
	return path
}

// HasAncestor reports whether id appears strictly above n.
func (n *Node) HasAncestor(id modident.Identity, cmp modident.Comparer) bool {
	for cur := n.parent; cur != nil; cur = cur.parent {
		if cmp.Equal(cur.identity, id) {
			return true
		}
	}
	return false
}

// String renders the path as "a > b > c".
func (n *Node) String() string {
	path := n.Path()
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.String()
	}
	return strings.Join(parts, " > ")
}
