package tree

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/parallel"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// KMeansOptions configure the hierarchical balanced k-means build.
type KMeansOptions struct {
	Arity     int             // clusters per split
	MaxLeaves int             // partitions of at most this many labels become leaves
	Distance  config.Distance // cosine or euclidean
	Eps       float64         // stop when the mean similarity improves by less than Eps
	MaxIter   int             // iteration cap per split
	Seed      int64           // split of node i uses Seed+i
	Threads   int             // <= 0 means GOMAXPROCS
}

// partition is a label subset waiting to be split under an internal node.
type partition struct {
	node   int
	labels []int
}

// BuildKMeans builds a tree top-down by recursively splitting the label set
// with balanced k-means over label representations (see
// LabelRepresentations). All partitions of one level are clustered in
// parallel; nodes are then created in partition order, so the result does
// not depend on the number of threads.
func BuildKMeans(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, opts KMeansOptions) (*Tree, error) {
	if opts.Arity < 2 {
		return nil, errors.NewValidationError("arity", "must be at least 2", opts.Arity)
	}
	if opts.MaxLeaves < 1 {
		return nil, errors.NewValidationError("maxLeaves", "must be positive", opts.MaxLeaves)
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}
	if labels.Rows() != features.Rows() {
		return nil, errors.NewDimensionError("tree.BuildKMeans", labels.Rows(), features.Rows(), 0)
	}
	k := labels.Cols()
	if k < 1 {
		return nil, errors.NewValidationError("labels", "tree needs at least one label", k)
	}

	t := newTree(2 * k)
	if k == 1 {
		t.addNode(Sentinel, 0)
		t.k = 1
		return t, t.Validate()
	}

	points := LabelRepresentations(labels, features)
	dims := features.Cols()

	all := make([]int, k)
	for i := range all {
		all[i] = i
	}
	root := t.addNode(Sentinel, Sentinel)
	level := []partition{{node: root.Index, labels: all}}

	for len(level) > 0 {
		var big []int
		for i, p := range level {
			if len(p.labels) > opts.MaxLeaves {
				big = append(big, i)
			}
		}

		clusters := make([][][]int, len(level))
		err := parallel.ParallelizeErr(ctx, len(big), opts.Threads, func(ctx context.Context, start, end int) error {
			km := newBalancedKMeans(opts, dims)
			for _, bi := range big[start:end] {
				if err := ctx.Err(); err != nil {
					return err
				}
				p := level[bi]
				rng := rand.New(rand.NewSource(opts.Seed + int64(p.node)))
				clusters[bi] = km.cluster(points, p.labels, rng)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "k-means tree")
		}

		var next []partition
		for i, p := range level {
			if clusters[i] == nil {
				for _, l := range p.labels {
					t.addNode(p.node, l)
				}
				continue
			}
			for _, c := range clusters[i] {
				if len(c) == 1 {
					t.addNode(p.node, c[0])
					continue
				}
				child := t.addNode(p.node, Sentinel)
				next = append(next, partition{node: child.Index, labels: c})
			}
		}
		level = next
	}
	t.k = k

	if err := t.Validate(); err != nil {
		return nil, errors.Wrap(err, "k-means tree")
	}
	return t, nil
}

// LabelRepresentations returns, per label, the unit-normalized sum of the
// unit-normalized feature rows of the examples carrying that label.
// Labels without examples get an empty row.
func LabelRepresentations(labels *sparse.LabelMatrix, features *sparse.Matrix) []sparse.Row {
	k := labels.Cols()
	acc := make([]map[int]float64, k)
	for r := 0; r < labels.Rows(); r++ {
		unit := features.Row(r).Unit()
		for _, l := range labels.Row(r) {
			if l < 0 || l >= k {
				continue
			}
			if acc[l] == nil {
				acc[l] = make(map[int]float64)
			}
			for _, f := range unit {
				acc[l][f.Index] += f.Value
			}
		}
	}

	points := make([]sparse.Row, k)
	for l, m := range acc {
		fs := make([]sparse.Feature, 0, len(m))
		for idx, v := range m {
			fs = append(fs, sparse.Feature{Index: idx, Value: v})
		}
		points[l] = sparse.NewRow(fs...).Unit()
	}
	return points
}

// balancedKMeans は1つのワーカーが使うバッファを保持する
type balancedKMeans struct {
	arity    int
	distance config.Distance
	eps      float64
	maxIter  int
	dims     int

	centroids [][]float64
}

func newBalancedKMeans(opts KMeansOptions, dims int) *balancedKMeans {
	return &balancedKMeans{
		arity:    opts.Arity,
		distance: opts.Distance,
		eps:      opts.Eps,
		maxIter:  opts.MaxIter,
		dims:     dims,
	}
}

type candidate struct {
	point   int
	cluster int
	sim     float64
}

// cluster splits members into min(arity, len(members)) clusters whose sizes
// differ by at most one. Each cluster lists labels in members order.
func (km *balancedKMeans) cluster(points []sparse.Row, members []int, rng *rand.Rand) [][]int {
	n := len(members)
	a := km.arity
	if a > n {
		a = n
	}
	for len(km.centroids) < a {
		km.centroids = append(km.centroids, make([]float64, km.dims))
	}
	centroids := km.centroids[:a]

	// 初期セントロイドは重複しないランダムなラベル
	perm := rng.Perm(n)
	for c := range centroids {
		zero(centroids[c])
		points[members[perm[c]]].AddTo(centroids[c], 1)
	}

	sizes := targetSizes(n, a)
	assign := make([]int, n)
	sims := make([]float64, n*a)
	pairs := make([]candidate, 0, n*a)
	sqNorms := make([]float64, a)
	prev := math.Inf(-1)

	for iter := 0; iter < km.maxIter; iter++ {
		if km.distance == config.Euclidean {
			for c, centroid := range centroids {
				sqNorms[c] = floats.Dot(centroid, centroid)
			}
		}
		for i, m := range members {
			p := points[m]
			for c, centroid := range centroids {
				s := p.Dot(centroid)
				if km.distance == config.Euclidean {
					// ||p-c||^2 = ||p||^2 - 2p.c + ||c||^2, ||p||^2 is constant per point
					s = 2*s - sqNorms[c]
				}
				sims[i*a+c] = s
			}
		}

		objective := assignBalanced(sims, n, a, sizes, assign, pairs)
		km.updateCentroids(points, members, assign, sizes, centroids)

		if objective-prev < km.eps {
			break
		}
		prev = objective
	}

	clusters := make([][]int, a)
	for c := range clusters {
		clusters[c] = make([]int, 0, sizes[c])
	}
	for i, m := range members {
		clusters[assign[i]] = append(clusters[assign[i]], m)
	}
	return clusters
}

// assignBalanced greedily assigns the most similar (point, cluster) pairs
// first while respecting the exact cluster sizes, and returns the mean
// similarity of the assignment.
func assignBalanced(sims []float64, n, a int, sizes, assign []int, pairs []candidate) float64 {
	pairs = pairs[:0]
	for i := 0; i < n; i++ {
		assign[i] = -1
		for c := 0; c < a; c++ {
			pairs = append(pairs, candidate{point: i, cluster: c, sim: sims[i*a+c]})
		}
	}
	sort.Slice(pairs, func(x, y int) bool {
		px, py := pairs[x], pairs[y]
		if px.sim != py.sim {
			return px.sim > py.sim
		}
		if px.point != py.point {
			return px.point < py.point
		}
		return px.cluster < py.cluster
	})

	filled := make([]int, a)
	total := 0.0
	for _, p := range pairs {
		if assign[p.point] >= 0 || filled[p.cluster] >= sizes[p.cluster] {
			continue
		}
		assign[p.point] = p.cluster
		filled[p.cluster]++
		total += p.sim
	}
	return total / float64(n)
}

func (km *balancedKMeans) updateCentroids(points []sparse.Row, members, assign, sizes []int, centroids [][]float64) {
	for _, c := range centroids {
		zero(c)
	}
	for i, m := range members {
		points[m].AddTo(centroids[assign[i]], 1)
	}
	for c, centroid := range centroids {
		if km.distance == config.Cosine {
			if norm := floats.Norm(centroid, 2); norm > 0 {
				floats.Scale(1/norm, centroid)
			}
			continue
		}
		floats.Scale(1/float64(sizes[c]), centroid)
	}
}

// targetSizes returns a sizes summing to n: n/a each, plus one for the
// first n%a clusters.
func targetSizes(n, a int) []int {
	sizes := make([]int, a)
	for c := range sizes {
		sizes[c] = n / a
		if c < n%a {
			sizes[c]++
		}
	}
	return sizes
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
