package tree

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Render draws the tree top-down. Subtrees deeper than maxDepth are elided;
// maxDepth <= 0 draws everything.
func (t *Tree) Render(maxDepth int) string {
	root := t.Root()
	out := treeprint.NewWithRoot(t.describe(root))
	t.render(out, root, 1, maxDepth)
	return out.String()
}

func (t *Tree) render(out treeprint.Tree, n *Node, depth, maxDepth int) {
	for _, c := range n.Children {
		child := t.nodes[c]
		if child.IsLeaf() {
			out.AddNode(t.describe(child))
			continue
		}
		branch := out.AddBranch(t.describe(child))
		if maxDepth > 0 && depth >= maxDepth {
			branch.AddNode(fmt.Sprintf("… %d labels", len(t.LeavesUnder(c))))
			continue
		}
		t.render(branch, child, depth+1, maxDepth)
	}
}

func (t *Tree) describe(n *Node) string {
	if n.IsLeaf() {
		return fmt.Sprintf("[%d] label %d", n.Index, n.Label)
	}
	return fmt.Sprintf("[%d] %d children", n.Index, len(n.Children))
}
