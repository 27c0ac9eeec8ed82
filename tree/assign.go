package tree

import (
	"sort"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Target is one (node, label) training target produced for an example.
type Target struct {
	Node  int
	Label float64
}

// PLTTargets returns the node targets of one example with the given labels.
// Every node on the path of a known label is positive; children of positive
// nodes that are not positive themselves are negative. An example without
// known labels only trains the root, negatively. Positives come first, both
// groups in ascending node order.
func (t *Tree) PLTTargets(labels []int) []Target {
	positive := make(map[int]bool)
	for _, l := range labels {
		leaf, ok := t.leaves[l]
		if !ok {
			continue
		}
		for i := leaf; i != Sentinel && !positive[i]; i = t.nodes[i].Parent {
			positive[i] = true
		}
	}
	if len(positive) == 0 {
		return []Target{{Node: t.root, Label: 0}}
	}

	pos := sortedKeys(positive)
	targets := make([]Target, 0, len(pos)*2)
	for _, i := range pos {
		targets = append(targets, Target{Node: i, Label: 1})
	}
	var neg []int
	for _, i := range pos {
		for _, c := range t.nodes[i].Children {
			if !positive[c] {
				neg = append(neg, c)
			}
		}
	}
	sort.Ints(neg)
	for _, i := range neg {
		targets = append(targets, Target{Node: i, Label: 0})
	}
	return targets
}

// HSMTargets returns the node targets of one example of class label. Each
// node on the path below the root is trained against its siblings: all
// children of its parent receive the example, the on-path child as a
// positive. Unknown labels yield no targets.
func (t *Tree) HSMTargets(label int) []Target {
	path := t.Path(label)
	if len(path) < 2 {
		return nil
	}
	var targets []Target
	for _, i := range path[1:] {
		for _, c := range t.nodes[t.nodes[i].Parent].Children {
			y := 0.0
			if c == i {
				y = 1
			}
			targets = append(targets, Target{Node: c, Label: y})
		}
	}
	return targets
}

// AssignPLT builds one training job per node, in node index order, for a
// probabilistic label tree.
func (t *Tree) AssignPLT(labels *sparse.LabelMatrix, features *sparse.Matrix) ([]base.Job, error) {
	if err := checkRows("tree.AssignPLT", labels, features); err != nil {
		return nil, err
	}
	jobs := make([]base.Job, len(t.nodes))
	for r := 0; r < labels.Rows(); r++ {
		row := features.Row(r)
		for _, tg := range t.PLTTargets(labels.Row(r)) {
			jobs[tg.Node].Labels = append(jobs[tg.Node].Labels, tg.Label)
			jobs[tg.Node].Features = append(jobs[tg.Node].Features, row)
		}
	}
	return jobs, nil
}

// AssignHSM builds one training job per node for hierarchical softmax. Only
// the first label of each example is used; examples without labels are
// skipped. The root job stays empty since the root always has probability 1.
func (t *Tree) AssignHSM(labels *sparse.LabelMatrix, features *sparse.Matrix) ([]base.Job, error) {
	if err := checkRows("tree.AssignHSM", labels, features); err != nil {
		return nil, err
	}
	jobs := make([]base.Job, len(t.nodes))
	for r := 0; r < labels.Rows(); r++ {
		ls := labels.Row(r)
		if len(ls) == 0 {
			continue
		}
		row := features.Row(r)
		for _, tg := range t.HSMTargets(ls[0]) {
			jobs[tg.Node].Labels = append(jobs[tg.Node].Labels, tg.Label)
			jobs[tg.Node].Features = append(jobs[tg.Node].Features, row)
		}
	}
	return jobs, nil
}

func checkRows(op string, labels *sparse.LabelMatrix, features *sparse.Matrix) error {
	if labels.Rows() != features.Rows() {
		return errors.NewDimensionError(op, features.Rows(), labels.Rows(), 0)
	}
	return nil
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
