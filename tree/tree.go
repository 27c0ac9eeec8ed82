// Package tree implements the label tree: an arena of nodes addressed by
// index, its construction (complete, random and balanced k-means), binary
// persistence, per-node training set assembly and best-first prediction.
//
// Node indices are assigned in creation order. The classifier for node i is
// element i of the base classifier collection, so indices must survive a
// save/load round trip unchanged.
package tree

import (
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Sentinel marks "no label" on internal nodes and "no parent" on the root.
const Sentinel = -1

// Node is one decision point of the tree.
type Node struct {
	Index    int
	Label    int
	Parent   int
	Children []int
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Tree owns all nodes. The zero value is an empty tree; use the Build
// functions or Load to obtain a usable one.
type Tree struct {
	nodes  []*Node
	leaves map[int]int // label -> node index
	root   int
	k      int
}

func newTree(capacity int) *Tree {
	return &Tree{
		nodes:  make([]*Node, 0, capacity),
		leaves: make(map[int]int),
		root:   Sentinel,
	}
}

// addNode appends a node under parent (Sentinel for the root) and returns it.
func (t *Tree) addNode(parent, label int) *Node {
	n := &Node{Index: len(t.nodes), Label: label, Parent: parent}
	t.nodes = append(t.nodes, n)
	if parent == Sentinel {
		t.root = n.Index
	} else {
		p := t.nodes[parent]
		p.Children = append(p.Children, n.Index)
	}
	if label != Sentinel {
		t.leaves[label] = n.Index
		if label+1 > t.k {
			t.k = label + 1
		}
	}
	return n
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.nodes[t.root] }

// Node returns node i.
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

// Nodes returns all nodes in index order. The slice must not be modified.
func (t *Tree) Nodes() []*Node { return t.nodes }

// Size returns the number of nodes, t.
func (t *Tree) Size() int { return len(t.nodes) }

// Labels returns the number of labels (leaves), k.
func (t *Tree) Labels() int { return t.k }

// Leaf returns the node of label, or nil if the label is unknown.
func (t *Tree) Leaf(label int) *Node {
	i, ok := t.leaves[label]
	if !ok {
		return nil
	}
	return t.nodes[i]
}

// Path returns the node indices from the root down to the leaf of label.
func (t *Tree) Path(label int) []int {
	leaf := t.Leaf(label)
	if leaf == nil {
		return nil
	}
	var path []int
	for i := leaf.Index; i != Sentinel; i = t.nodes[i].Parent {
		path = append(path, i)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := 0
	var walk func(i, d int)
	walk = func(i, d int) {
		n := t.nodes[i]
		if n.IsLeaf() && d > depth {
			depth = d
		}
		for _, c := range n.Children {
			walk(c, d+1)
		}
	}
	if len(t.nodes) > 0 {
		walk(t.root, 0)
	}
	return depth
}

// LeavesUnder returns the labels of all leaves in the subtree of node i, in
// depth-first order.
func (t *Tree) LeavesUnder(i int) []int {
	var labels []int
	stack := []int{i}
	for len(stack) > 0 {
		n := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			labels = append(labels, n.Label)
			continue
		}
		for c := len(n.Children) - 1; c >= 0; c-- {
			stack = append(stack, n.Children[c])
		}
	}
	return labels
}

// Validate checks that the nodes form one rooted tree: a single root,
// consistent parent and child links, no cycles, every node reachable, at
// least two children per internal node and unique leaf labels in [0, k).
func (t *Tree) Validate() error {
	const op = "tree.Validate"
	n := len(t.nodes)
	if n == 0 {
		return errors.NewStructuralError(op, "tree has no nodes")
	}

	roots := 0
	for i, node := range t.nodes {
		if node == nil {
			return errors.NewStructuralError(op, "node %d is missing", i)
		}
		if node.Index != i {
			return errors.NewStructuralError(op, "node at position %d has index %d", i, node.Index)
		}
		if node.Parent == Sentinel {
			roots++
			continue
		}
		if node.Parent < 0 || node.Parent >= n {
			return errors.NewStructuralError(op, "node %d has parent %d out of range", i, node.Parent)
		}
		links := 0
		for _, c := range t.nodes[node.Parent].Children {
			if c == i {
				links++
			}
		}
		if links != 1 {
			return errors.NewStructuralError(op, "node %d is listed %d times by its parent %d", i, links, node.Parent)
		}
	}
	if roots != 1 {
		return errors.NewStructuralError(op, "expected exactly one root, found %d", roots)
	}
	if t.root < 0 || t.root >= n || t.nodes[t.root].Parent != Sentinel {
		return errors.NewStructuralError(op, "root index %d does not point at the root", t.root)
	}

	seenLabels := make(map[int]bool)
	for i, node := range t.nodes {
		for _, c := range node.Children {
			if c < 0 || c >= n {
				return errors.NewStructuralError(op, "node %d has child %d out of range", i, c)
			}
			if t.nodes[c].Parent != i {
				return errors.NewStructuralError(op, "node %d lists child %d whose parent is %d", i, c, t.nodes[c].Parent)
			}
		}
		if node.IsLeaf() {
			if node.Label < 0 || node.Label >= t.k {
				return errors.NewStructuralError(op, "leaf %d has label %d outside [0, %d)", i, node.Label, t.k)
			}
			if seenLabels[node.Label] {
				return errors.NewStructuralError(op, "label %d appears on more than one leaf", node.Label)
			}
			seenLabels[node.Label] = true
			if t.leaves[node.Label] != i {
				return errors.NewStructuralError(op, "leaf lookup for label %d is stale", node.Label)
			}
			continue
		}
		if node.Label != Sentinel {
			return errors.NewStructuralError(op, "internal node %d carries label %d", i, node.Label)
		}
		if len(node.Children) < 2 {
			return errors.NewStructuralError(op, "internal node %d has %d children", i, len(node.Children))
		}
	}
	if len(seenLabels) != t.k {
		return errors.NewStructuralError(op, "tree has %d leaves for %d labels", len(seenLabels), t.k)
	}
	if len(t.leaves) != t.k {
		return errors.NewStructuralError(op, "leaf lookup holds %d labels, want %d", len(t.leaves), t.k)
	}

	visited := make([]bool, n)
	stack := []int{t.root}
	reached := 0
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[i] {
			return errors.NewStructuralError(op, "cycle through node %d", i)
		}
		visited[i] = true
		reached++
		stack = append(stack, t.nodes[i].Children...)
	}
	if reached != n {
		return errors.NewStructuralError(op, "%d of %d nodes are unreachable from the root", n-reached, n)
	}
	return nil
}
