package provider

import (
	"sort"

	"github.com/matsen/bipcite/internal/reference"
)

// CollectionNode is a node of a provider's collection forest. A node whose
// Collection is nil is a placeholder for a parent that was referenced but
// never listed.
type CollectionNode struct {
	Key        string
	Collection *reference.Collection
	Children   []*CollectionNode
}

// Placeholder reports whether the node stands in for an unseen parent.
func (n *CollectionNode) Placeholder() bool { return n.Collection == nil }

// BuildCollectionForest builds a forest from a flat collection list in any
// order. Parents seen after their children back-fill the placeholder
// created for them. Roots and children are sorted by name, then key.
func BuildCollectionForest(collections []reference.Collection) []*CollectionNode {
	nodes := make(map[string]*CollectionNode)
	node := func(key string) *CollectionNode {
		n, ok := nodes[key]
		if !ok {
			n = &CollectionNode{Key: key}
			nodes[key] = n
		}
		return n
	}

	hasParent := make(map[string]bool)
	for i := range collections {
		c := collections[i]
		n := node(c.Key)
		n.Collection = &c
		if c.ParentKey != "" && c.ParentKey != c.Key {
			parent := node(c.ParentKey)
			parent.Children = append(parent.Children, n)
			hasParent[c.Key] = true
		}
	}

	var roots []*CollectionNode
	for key, n := range nodes {
		if !hasParent[key] {
			roots = append(roots, n)
		}
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*CollectionNode) {
	sort.Slice(nodes, func(i, j int) bool {
		ni, nj := nodeName(nodes[i]), nodeName(nodes[j])
		if ni != nj {
			return ni < nj
		}
		return nodes[i].Key < nodes[j].Key
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

func nodeName(n *CollectionNode) string {
	if n.Collection != nil {
		return n.Collection.Name
	}
	return ""
}

// Walk visits every node depth-first, passing its depth.
func Walk(forest []*CollectionNode, fn func(n *CollectionNode, depth int)) {
	var visit func([]*CollectionNode, int)
	visit = func(nodes []*CollectionNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(forest, 0)
}
