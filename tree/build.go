package tree

import (
	"context"
	"math/rand"
	"time"

	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
)

// CompleteSize returns the node count of a complete tree with k leaves and
// the given arity: ceil((arity*k - 1) / (arity - 1)).
func CompleteSize(k, arity int) int {
	return (arity*k - 1 + arity - 2) / (arity - 1)
}

// BuildComplete builds the complete tree over labels 0..k-1 in heap layout:
// node i > 0 hangs under node (i-1)/arity and the last k nodes are the
// leaves. With rng set, labels are assigned to leaves in a random order;
// otherwise in label order.
func BuildComplete(k, arity int, rng *rand.Rand) (*Tree, error) {
	if k < 1 {
		return nil, errors.NewValidationError("labels", "tree needs at least one label", k)
	}
	if arity < 2 {
		return nil, errors.NewValidationError("arity", "must be at least 2", arity)
	}

	size := CompleteSize(k, arity)
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(k, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	t := newTree(size)
	firstLeaf := size - k
	for i := 0; i < size; i++ {
		parent := Sentinel
		if i > 0 {
			parent = (i - 1) / arity
		}
		label := Sentinel
		if i >= firstLeaf {
			label = order[i-firstLeaf]
		}
		t.addNode(parent, label)
	}
	t.k = k

	if err := t.Validate(); err != nil {
		return nil, errors.Wrap(err, "complete tree")
	}
	return t, nil
}

// Build constructs the tree selected by cfg.TreeType. The label count is
// taken from labels.Cols(); features are only read by the k-means build.
func Build(ctx context.Context, cfg *config.Config, labels *sparse.LabelMatrix, features *sparse.Matrix) (*Tree, error) {
	logger := log.GetLoggerWithName("tree").With(log.TreeTypeKey, string(cfg.TreeType))
	start := time.Now()

	k := labels.Cols()
	var (
		t   *Tree
		err error
	)
	switch cfg.TreeType {
	case config.TreeComplete:
		t, err = BuildComplete(k, cfg.Arity, nil)
	case config.TreeRandom:
		t, err = BuildComplete(k, cfg.Arity, rand.New(rand.NewSource(cfg.Seed)))
	case config.TreeKMeans:
		t, err = BuildKMeans(ctx, labels, features, KMeansOptions{
			Arity:     cfg.Arity,
			MaxLeaves: cfg.MaxLeaves,
			Distance:  cfg.KMeansDistance,
			Eps:       cfg.KMeansEps,
			MaxIter:   cfg.KMeansMaxIter,
			Seed:      cfg.Seed,
			Threads:   cfg.Threads,
		})
	default:
		return nil, errors.NewValidationError("treeType", "must be complete, random or kmeans", cfg.TreeType)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Tree built",
		log.OperationKey, log.OperationBuild,
		log.TreeNodesKey, t.Size(),
		log.TreeLabelsKey, t.Labels(),
		log.TreeDepthKey, t.Depth(),
		log.ArityKey, cfg.Arity,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return t, nil
}
