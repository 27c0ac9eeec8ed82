package tree

import (
	"container/heap"
	"math"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// NodeValue is a frontier entry of the best-first search. seq orders entries
// with equal scores: the one pushed first is popped first.
type NodeValue struct {
	Node  int
	Score float64 // log probability
	seq   int
}

type frontier []NodeValue

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].Score != f[j].Score {
		return f[i].Score > f[j].Score
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x interface{}) { *f = append(*f, x.(NodeValue)) }
func (f *frontier) Pop() interface{} {
	old := *f
	n := len(old)
	v := old[n-1]
	*f = old[:n-1]
	return v
}

// childScorer writes the log probability of each child of n, conditioned on
// reaching n, into dst.
type childScorer func(n *Node, row sparse.Row, classifiers []*base.Classifier, dst []float64) []float64

func pltChildren(n *Node, row sparse.Row, classifiers []*base.Classifier, dst []float64) []float64 {
	dst = dst[:0]
	for _, c := range n.Children {
		dst = append(dst, classifiers[c].PredictLog(row))
	}
	return dst
}

// hsmChildren normalizes the children of n over their siblings.
func hsmChildren(n *Node, row sparse.Row, classifiers []*base.Classifier, dst []float64) []float64 {
	dst = pltChildren(n, row, classifiers, dst)
	z := errors.LogSumExp(dst)
	for i := range dst {
		dst[i] -= z
	}
	return dst
}

// Predict returns up to k labels of row in descending probability using a
// best-first search over the tree. Nodes whose probability falls below
// threshold are never expanded. k <= 0 returns every leaf above threshold.
func (t *Tree) Predict(row sparse.Row, classifiers []*base.Classifier, k int, threshold float64) []model.Prediction {
	return t.search(row, classifiers, k, threshold, classifiers[t.root].PredictLog(row), pltChildren)
}

// PredictHSM is Predict for hierarchical softmax: the root has probability
// 1 and the children of every node are normalized to sum to 1.
func (t *Tree) PredictHSM(row sparse.Row, classifiers []*base.Classifier, k int, threshold float64) []model.Prediction {
	return t.search(row, classifiers, k, threshold, 0, hsmChildren)
}

func (t *Tree) search(row sparse.Row, classifiers []*base.Classifier, k int, threshold float64, rootScore float64, children childScorer) []model.Prediction {
	minScore := math.Inf(-1)
	if threshold > 0 {
		minScore = math.Log(threshold)
	}
	if rootScore < minScore {
		return nil
	}

	var (
		preds  []model.Prediction
		scores []float64
		seq    int
	)
	f := frontier{{Node: t.root, Score: rootScore}}
	for f.Len() > 0 {
		v := heap.Pop(&f).(NodeValue)
		n := t.nodes[v.Node]
		if n.IsLeaf() {
			preds = append(preds, model.Prediction{Label: n.Label, Value: math.Exp(v.Score)})
			if k > 0 && len(preds) >= k {
				break
			}
			continue
		}
		scores = children(n, row, classifiers, scores)
		for i, c := range n.Children {
			s := v.Score + scores[i]
			if s < minScore {
				continue
			}
			seq++
			heap.Push(&f, NodeValue{Node: c, Score: s, seq: seq})
		}
	}
	return preds
}

// LabelProbability returns the probability of label for row: the product of
// the node probabilities along its path. Unknown labels score 0.
func (t *Tree) LabelProbability(label int, row sparse.Row, classifiers []*base.Classifier) float64 {
	path := t.Path(label)
	if path == nil {
		return 0
	}
	score := 0.0
	for _, i := range path {
		score += classifiers[i].PredictLog(row)
	}
	return math.Exp(score)
}

// LabelProbabilityHSM is LabelProbability under sibling normalization.
func (t *Tree) LabelProbabilityHSM(label int, row sparse.Row, classifiers []*base.Classifier) float64 {
	path := t.Path(label)
	if path == nil {
		return 0
	}
	var (
		score  float64
		scores []float64
	)
	for d := 1; d < len(path); d++ {
		parent := t.nodes[path[d-1]]
		scores = hsmChildren(parent, row, classifiers, scores)
		for i, c := range parent.Children {
			if c == path[d] {
				score += scores[i]
				break
			}
		}
	}
	return math.Exp(score)
}

// NodeProbabilitiesHSM returns the probability of reaching every node of an
// hierarchical softmax tree for row, indexed by node.
func (t *Tree) NodeProbabilitiesHSM(row sparse.Row, classifiers []*base.Classifier) []float64 {
	probs := make([]float64, len(t.nodes))
	probs[t.root] = 1
	var scores []float64
	stack := []int{t.root}
	for len(stack) > 0 {
		n := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			continue
		}
		scores = hsmChildren(n, row, classifiers, scores)
		for i, c := range n.Children {
			probs[c] = probs[n.Index] * math.Exp(scores[i])
			stack = append(stack, c)
		}
	}
	return probs
}

// CheckClassifiers reports a structural error unless there is exactly one
// classifier per node.
func (t *Tree) CheckClassifiers(classifiers []*base.Classifier) error {
	if len(classifiers) != len(t.nodes) {
		return errors.NewStructuralError("tree.CheckClassifiers", "%d classifiers for %d nodes", len(classifiers), len(t.nodes))
	}
	return nil
}
