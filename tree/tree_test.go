package tree

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// clusteredData returns examples whose labels fall into groups sharing
// distinct feature blocks.
func clusteredData(k, rows, dims int, seed int64) (*sparse.LabelMatrix, *sparse.Matrix) {
	rng := rand.New(rand.NewSource(seed))
	labels := sparse.NewLabelMatrix(k)
	features := sparse.NewMatrix(dims)
	groups := 4
	for r := 0; r < rows; r++ {
		l := rng.Intn(k)
		g := l % groups
		block := dims / groups
		var fs []sparse.Feature
		for j := 0; j < 3; j++ {
			fs = append(fs, sparse.Feature{Index: g*block + rng.Intn(block), Value: 1 + rng.Float64()})
		}
		fs = append(fs, sparse.Feature{Index: rng.Intn(dims), Value: 0.1})
		labels.AppendRow([]int{l})
		features.AppendRow(sparse.NewRow(fs...))
	}
	return labels, features
}

func assertWellFormed(t *testing.T, tr *Tree, k int) {
	t.Helper()
	require.NoError(t, tr.Validate())
	assert.Equal(t, k, tr.Labels())
	for l := 0; l < k; l++ {
		leaf := tr.Leaf(l)
		require.NotNil(t, leaf, "label %d", l)
		assert.True(t, leaf.IsLeaf())
		path := tr.Path(l)
		assert.Equal(t, tr.Root().Index, path[0])
		assert.Equal(t, leaf.Index, path[len(path)-1])
	}
}

func TestBuildCompleteShape(t *testing.T) {
	tr, err := BuildComplete(10, 2, nil)
	require.NoError(t, err)
	assertWellFormed(t, tr, 10)
	assert.Equal(t, 19, tr.Size())
	assert.Equal(t, 4, tr.Depth())
	for l := 0; l < 10; l++ {
		assert.Equal(t, 9+l, tr.Leaf(l).Index)
	}
}

func TestBuildCompleteSizes(t *testing.T) {
	for _, arity := range []int{2, 3, 5, 16} {
		for _, k := range []int{1, 2, 3, 7, 10, 33, 100} {
			tr, err := BuildComplete(k, arity, nil)
			require.NoError(t, err, "k=%d arity=%d", k, arity)
			assertWellFormed(t, tr, k)
			assert.Equal(t, CompleteSize(k, arity), tr.Size())
			for _, n := range tr.Nodes() {
				assert.LessOrEqual(t, len(n.Children), arity)
			}
		}
	}
}

func TestBuildCompleteSingleLabel(t *testing.T) {
	tr, err := BuildComplete(1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Size())
	assert.True(t, tr.Root().IsLeaf())
	assert.Equal(t, 0, tr.Root().Label)
}

func TestBuildCompleteRejectsBadInput(t *testing.T) {
	_, err := BuildComplete(0, 2, nil)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = BuildComplete(5, 1, nil)
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, "arity", verr.ParamName)
}

func TestBuildRandomIsSeeded(t *testing.T) {
	a, err := BuildComplete(50, 3, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := BuildComplete(50, 3, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	c, err := BuildComplete(50, 3, rand.New(rand.NewSource(8)))
	require.NoError(t, err)
	assertWellFormed(t, a, 50)

	leafOrder := func(tr *Tree) []int {
		var ls []int
		for _, n := range tr.Nodes() {
			if n.IsLeaf() {
				ls = append(ls, n.Label)
			}
		}
		return ls
	}
	assert.Equal(t, leafOrder(a), leafOrder(b))
	assert.NotEqual(t, leafOrder(a), leafOrder(c))
}

func TestBuildKMeans(t *testing.T) {
	labels, features := clusteredData(40, 400, 40, 1)
	opts := KMeansOptions{Arity: 2, MaxLeaves: 3, Distance: config.Cosine, Eps: 1e-4, MaxIter: 50, Seed: 1, Threads: 1}

	tr, err := BuildKMeans(context.Background(), labels, features, opts)
	require.NoError(t, err)
	assertWellFormed(t, tr, 40)
	for _, n := range tr.Nodes() {
		assert.LessOrEqual(t, len(n.Children), 3)
	}
}

func TestBuildKMeansIndependentOfThreads(t *testing.T) {
	labels, features := clusteredData(60, 500, 48, 2)
	for _, d := range []config.Distance{config.Cosine, config.Euclidean} {
		opts := KMeansOptions{Arity: 3, MaxLeaves: 4, Distance: d, Eps: 1e-4, MaxIter: 30, Seed: 5, Threads: 1}
		want, err := BuildKMeans(context.Background(), labels, features, opts)
		require.NoError(t, err)
		var wantBuf bytes.Buffer
		require.NoError(t, want.Save(&wantBuf))

		for _, threads := range []int{2, 8} {
			opts.Threads = threads
			got, err := BuildKMeans(context.Background(), labels, features, opts)
			require.NoError(t, err)
			var gotBuf bytes.Buffer
			require.NoError(t, got.Save(&gotBuf))
			assert.Equal(t, wantBuf.Bytes(), gotBuf.Bytes(), "distance=%s threads=%d", d, threads)
		}
	}
}

func TestBuildKMeansSmallLabelSets(t *testing.T) {
	labels, features := clusteredData(1, 10, 8, 3)
	tr, err := BuildKMeans(context.Background(), labels, features, KMeansOptions{Arity: 2, MaxLeaves: 1, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Size())

	labels, features = clusteredData(5, 30, 8, 3)
	tr, err = BuildKMeans(context.Background(), labels, features, KMeansOptions{Arity: 2, MaxLeaves: 10, Seed: 1})
	require.NoError(t, err)
	assertWellFormed(t, tr, 5)
	assert.Equal(t, 6, tr.Size())
	assert.Equal(t, 1, tr.Depth())
}

func TestBalancedAssignmentSizes(t *testing.T) {
	assert.Equal(t, []int{4, 3, 3}, targetSizes(10, 3))
	assert.Equal(t, []int{2, 2}, targetSizes(4, 2))
}

func TestBuildDispatch(t *testing.T) {
	labels, features := clusteredData(12, 120, 16, 4)
	for _, tt := range []config.TreeType{config.TreeComplete, config.TreeRandom, config.TreeKMeans} {
		cfg := config.New(config.WithTree(tt, 2, 2))
		tr, err := Build(context.Background(), cfg, labels, features)
		require.NoError(t, err, tt)
		assertWellFormed(t, tr, 12)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	labels, features := clusteredData(25, 200, 20, 5)
	kmeans, err := BuildKMeans(context.Background(), labels, features, KMeansOptions{Arity: 4, MaxLeaves: 2, Seed: 3, MaxIter: 20})
	require.NoError(t, err)
	complete, err := BuildComplete(25, 3, nil)
	require.NoError(t, err)

	for name, tr := range map[string]*Tree{"kmeans": kmeans, "complete": complete} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, tr.SaveFile(path))
			got, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tr.Size(), got.Size())
			assert.Equal(t, tr.Labels(), got.Labels())
			assert.Equal(t, tr.Root().Index, got.Root().Index)
			for i, n := range tr.Nodes() {
				assert.Equal(t, *n, *got.Node(i))
			}
		})
	}
}

func encodeInts(vs ...int) []byte {
	var buf bytes.Buffer
	for _, v := range vs {
		_ = binary.Write(&buf, binary.LittleEndian, int32(v))
	}
	return buf.Bytes()
}

func TestLoadMalformed(t *testing.T) {
	valid := encodeInts(3, 2,
		0, -1, -1, 2, 1, 2,
		1, 0, 0, 0,
		2, 1, 0, 0)
	tr, err := Load(bytes.NewReader(valid))
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Size())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", valid[:len(valid)-2]},
		{"no nodes", encodeInts(0, 0)},
		{"more labels than nodes", encodeInts(1, 2, 0, 0, -1, 0)},
		{"index out of order", encodeInts(3, 2, 1, -1, -1, 2, 1, 2, 0, 0, 0, 0, 2, 1, 0, 0)},
		{"child out of range", encodeInts(3, 2, 0, -1, -1, 2, 1, 7, 1, 0, 0, 0, 2, 1, 0, 0)},
		{"two roots", encodeInts(3, 2, 0, -1, -1, 1, 1, 1, 0, 0, 0, 2, 1, -1, 0)},
		{"duplicate label", encodeInts(3, 2, 0, -1, -1, 2, 1, 2, 1, 0, 0, 0, 2, 0, 0, 0)},
		{"child pointing at root", encodeInts(3, 2, 0, 2, -1, 2, 1, 2, 1, 0, 0, 0, 2, 1, 0, 1, 0)},
		{"parent mismatch", encodeInts(3, 2, 0, -1, -1, 2, 1, 2, 1, 0, 2, 0, 2, 1, 0, 0)},
		{"huge child count", encodeInts(2000000000, 1, 0, -1, -1, 1999999999, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.Nil(t, got)
			var serr *errors.StructuralError
			assert.True(t, errors.As(err, &serr), "%v", err)
		})
	}
}

func TestPLTTargets(t *testing.T) {
	// 0 -> {1, 2}; 1 -> {3, 4}; 2 -> {5, 6}; leaves 3..6 carry labels 0..3
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)

	targets := tr.PLTTargets([]int{0})
	assert.Equal(t, []Target{{0, 1}, {1, 1}, {3, 1}, {2, 0}, {4, 0}}, targets)

	targets = tr.PLTTargets([]int{0, 1, 99})
	assert.Equal(t, []Target{{0, 1}, {1, 1}, {3, 1}, {4, 1}, {2, 0}}, targets)

	assert.Equal(t, []Target{{0, 0}}, tr.PLTTargets(nil))
	assert.Equal(t, []Target{{0, 0}}, tr.PLTTargets([]int{42}))
}

func TestHSMTargets(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []Target{{1, 0}, {2, 1}, {5, 0}, {6, 1}}, tr.HSMTargets(3))
	assert.Nil(t, tr.HSMTargets(9))
}

func TestAssignPLT(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	labels := sparse.NewLabelMatrix(4)
	features := sparse.NewMatrix(3)
	labels.AppendRow([]int{0})
	features.AppendRow(sparse.NewRow(sparse.Feature{Index: 0, Value: 1}))
	labels.AppendRow([]int{3})
	features.AppendRow(sparse.NewRow(sparse.Feature{Index: 2, Value: 1}))
	labels.AppendRow(nil)
	features.AppendRow(sparse.NewRow(sparse.Feature{Index: 1, Value: 1}))

	jobs, err := tr.AssignPLT(labels, features)
	require.NoError(t, err)
	require.Len(t, jobs, tr.Size())
	assert.Equal(t, []float64{1, 1, 0}, jobs[0].Labels)
	assert.Equal(t, []float64{1, 0}, jobs[1].Labels)
	assert.Equal(t, []float64{0, 1}, jobs[2].Labels)
	assert.Equal(t, []float64{1}, jobs[3].Labels)
	assert.Equal(t, []float64{0}, jobs[4].Labels)
	assert.Equal(t, []float64{0}, jobs[5].Labels)
	assert.Equal(t, []float64{1}, jobs[6].Labels)
	for i, j := range jobs {
		assert.Len(t, j.Features, len(j.Labels), "node %d", i)
	}

	labels.AppendRow([]int{1})
	_, err = tr.AssignPLT(labels, features)
	var derr *errors.DimensionError
	assert.True(t, errors.As(err, &derr))
}

func TestAssignHSMUsesFirstLabel(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	labels := sparse.NewLabelMatrix(4)
	features := sparse.NewMatrix(2)
	labels.AppendRow([]int{1, 2})
	features.AppendRow(sparse.NewRow(sparse.Feature{Index: 0, Value: 1}))
	labels.AppendRow(nil)
	features.AppendRow(sparse.NewRow(sparse.Feature{Index: 1, Value: 1}))

	jobs, err := tr.AssignHSM(labels, features)
	require.NoError(t, err)
	assert.Empty(t, jobs[0].Labels)
	assert.Equal(t, []float64{1}, jobs[1].Labels)
	assert.Equal(t, []float64{0}, jobs[2].Labels)
	assert.Equal(t, []float64{0}, jobs[3].Labels)
	assert.Equal(t, []float64{1}, jobs[4].Labels)
	assert.Empty(t, jobs[5].Labels)
}

// constants returns one constant classifier per node.
func constants(ps ...float64) []*base.Classifier {
	cs := make([]*base.Classifier, len(ps))
	for i, p := range ps {
		cs[i] = base.NewConstant(p)
	}
	return cs
}

func TestPredictBestFirst(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	cs := constants(1, 0.6, 0.4, 0.5, 0.9, 0.8, 0.1)

	preds := tr.Predict(nil, cs, 4, 0)
	require.Len(t, preds, 4)
	assert.Equal(t, []int{1, 2, 0, 3}, []int{preds[0].Label, preds[1].Label, preds[2].Label, preds[3].Label})
	assert.InDelta(t, 0.54, preds[0].Value, 1e-9)
	assert.InDelta(t, 0.32, preds[1].Value, 1e-9)
	assert.InDelta(t, 0.30, preds[2].Value, 1e-9)
	assert.InDelta(t, 0.04, preds[3].Value, 1e-9)

	assert.InDelta(t, 0.32, tr.LabelProbability(2, nil, cs), 1e-9)
	assert.Zero(t, tr.LabelProbability(17, nil, cs))
}

func TestPredictThreshold(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	cs := constants(1, 0.6, 0.4, 0.5, 0.9, 0.8, 0.1)

	preds := tr.Predict(nil, cs, 0, 0.31)
	require.Len(t, preds, 2)
	assert.Equal(t, 1, preds[0].Label)
	assert.Equal(t, 2, preds[1].Label)

	assert.Empty(t, tr.Predict(nil, constants(0.2, 1, 1, 1, 1, 1, 1), 3, 0.5))
}

func TestPredictTiesFavorEarlierPush(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	cs := constants(1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)
	preds := tr.Predict(nil, cs, 4, 0)
	require.Len(t, preds, 4)
	for i, p := range preds {
		assert.Equal(t, i, p.Label)
	}
}

func TestPredictTopKPrefix(t *testing.T) {
	_, features := clusteredData(30, 300, 24, 6)
	tr, err := BuildComplete(30, 3, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))
	cs := make([]*base.Classifier, tr.Size())
	for i := range cs {
		cs[i] = base.NewConstant(rng.Float64())
	}

	for r := 0; r < 5; r++ {
		row := features.Row(r)
		all := tr.Predict(row, cs, 0, 0)
		require.Len(t, all, 30)
		for k := 1; k <= 30; k += 7 {
			assert.Equal(t, all[:k], tr.Predict(row, cs, k, 0))
		}
		for i := 1; i < len(all); i++ {
			assert.GreaterOrEqual(t, all[i-1].Value, all[i].Value)
		}
	}
}

func TestPredictHSMNormalizes(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	cs := constants(0, 0.6, 0.2, 0.5, 0.5, 0.9, 0.3)

	preds := tr.PredictHSM(nil, cs, 0, 0)
	require.Len(t, preds, 4)
	sum := 0.0
	for _, p := range preds {
		sum += p.Value
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.InDelta(t, 0.375, preds[0].Value, 1e-9)

	for _, p := range preds {
		assert.InDelta(t, p.Value, tr.LabelProbabilityHSM(p.Label, nil, cs), 1e-9)
	}

	probs := tr.NodeProbabilitiesHSM(nil, cs)
	assert.Equal(t, 1.0, probs[0])
	assert.InDelta(t, 0.75, probs[1], 1e-9)
	assert.InDelta(t, 0.25*0.75, probs[5], 1e-9)
	assert.False(t, math.IsNaN(probs[6]))
}

func TestCheckClassifiers(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	assert.NoError(t, tr.CheckClassifiers(constants(1, 1, 1, 1, 1, 1, 1)))
	var serr *errors.StructuralError
	assert.True(t, errors.As(tr.CheckClassifiers(constants(1, 1)), &serr))
}

func TestRender(t *testing.T) {
	tr, err := BuildComplete(4, 2, nil)
	require.NoError(t, err)
	out := tr.Render(0)
	assert.True(t, strings.HasPrefix(out, "[0] 2 children"))
	assert.Contains(t, out, "label 3")

	shallow := tr.Render(1)
	assert.Contains(t, shallow, "… 2 labels")
	assert.NotContains(t, shallow, "label 3")
}
