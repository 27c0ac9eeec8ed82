package models

import (
	"context"
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/metrics"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
	"github.com/YuminosukeSato/xclf/tree"
)

// predictMode selects how a loaded model turns classifier outputs into a
// ranking.
type predictMode int

const (
	modePLT predictMode = iota
	modeHSM
	modeUBOPHSM
	modeRBOP
	modeBR
	modeOVR
	modeUBOP
)

// treeModel is a label tree with one base classifier per node. It serves
// plt, oplt, hsm, ubopHsm and rbop.
type treeModel struct {
	*model.StateManager
	kind   config.ModelType
	mode   predictMode
	online bool

	tree       *tree.Tree
	bases      []*base.Classifier
	args       *config.Config
	leafCounts []int
}

func newTreeModel(kind config.ModelType, mode predictMode) *treeModel {
	return &treeModel{
		StateManager: model.NewStateManager(string(kind)),
		kind:         kind,
		mode:         mode,
	}
}

// sibling normalized probabilities
func (m *treeModel) hsm() bool { return m.mode != modePLT }

func (m *treeModel) Train(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) error {
	if err := m.write(ctx, cfg.Output, labels, features, cfg); err != nil {
		return err
	}
	modelsTrained.WithLabelValues(string(m.kind)).Inc()
	return m.Load(cfg.Output)
}

// write trains the model and commits it to dir without loading it.
func (m *treeModel) write(ctx context.Context, dir string, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) error {
	if err := checkRows("models.Train", labels, features); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("models").With(log.ModelNameKey, string(m.kind))
	start := time.Now()
	logger.Info("Starting training",
		log.OperationKey, log.OperationTrain,
		log.SamplesKey, features.Rows(),
		log.FeaturesKey, features.Cols(),
		log.LabelsKey, labels.Cols(),
		log.RandomSeedKey, cfg.Seed,
	)

	t, err := m.buildTree(ctx, labels, features, cfg)
	if err != nil {
		return err
	}

	err = stage(dir, cfg, func(st *model.Staging) error {
		if err := st.WriteFile(tree.FileName, t.Save); err != nil {
			return err
		}
		if m.online {
			bases, err := trainOnline(ctx, t, labels, features, cfg)
			if err != nil {
				return err
			}
			return st.WriteFile(WeightsFile, func(w io.Writer) error {
				return base.SaveBases(w, bases, cfg.WeightsThreshold)
			})
		}

		var jobs []base.Job
		if m.hsm() {
			jobs, err = t.AssignHSM(labels, features)
		} else {
			jobs, err = t.AssignPLT(labels, features)
		}
		if err != nil {
			return err
		}
		return st.WriteFile(WeightsFile, func(w io.Writer) error {
			return base.TrainBases(ctx, w, features.Cols(), jobs, base.OptionsFromConfig(cfg), cfg.Threads)
		})
	})
	if err != nil {
		return errors.Wrapf(err, "training %s", m.kind)
	}

	logger.Info("Model trained",
		log.PathKey, dir,
		log.TreeNodesKey, t.Size(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (m *treeModel) buildTree(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) (*tree.Tree, error) {
	if !m.online {
		return tree.Build(ctx, cfg, labels, features)
	}
	// オンライン学習ではラベル表現が事前に得られないので完全木を使う
	var rng *rand.Rand
	if cfg.TreeType == config.TreeRandom {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	return tree.BuildComplete(labels.Cols(), cfg.Arity, rng)
}

// trainOnline updates one logistic classifier per node example by example,
// in row order, for cfg.Epochs passes.
func trainOnline(ctx context.Context, t *tree.Tree, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]*base.Classifier, error) {
	logger := log.GetLoggerWithName("models").With(log.ModelNameKey, string(config.OPLT))
	bases := make([]*base.Classifier, t.Size())
	for i := range bases {
		bases[i] = base.NewLogistic(features.Cols())
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for r := 0; r < labels.Rows(); r++ {
			if r%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, errors.Wrap(err, "online training cancelled")
				}
			}
			row := features.Row(r)
			for _, tg := range t.PLTTargets(labels.Row(r)) {
				bases[tg.Node].Update(row, tg.Label, cfg.Eta, cfg.L2)
			}
		}
		logger.Info("Online epoch finished",
			log.OperationKey, log.OperationOnline,
			log.EpochKey, epoch+1,
			log.SamplesKey, labels.Rows(),
		)
	}
	return bases, nil
}

func (m *treeModel) Load(dir string) error {
	args, err := config.Load(filepath.Join(dir, config.ArgsFile))
	if err != nil {
		return err
	}
	t, err := tree.LoadFile(filepath.Join(dir, tree.FileName))
	if err != nil {
		return err
	}
	bases, err := loadBasesFile(filepath.Join(dir, WeightsFile))
	if err != nil {
		return err
	}
	if err := t.CheckClassifiers(bases); err != nil {
		return err
	}

	m.tree, m.bases, m.args = t, bases, args
	if m.mode == modeRBOP {
		m.leafCounts = leafCounts(t)
	}
	m.SetLoaded(maxDims(bases), t.Labels())

	log.GetLoggerWithName("models").Debug("Model loaded",
		log.ModelNameKey, string(m.kind),
		log.OperationKey, log.OperationLoad,
		log.PathKey, dir,
		log.TreeNodesKey, t.Size(),
	)
	return nil
}

func (m *treeModel) Save(dir string) error {
	if err := m.RequireLoaded("Save"); err != nil {
		return err
	}
	return stage(dir, m.args, func(st *model.Staging) error {
		if err := st.WriteFile(tree.FileName, m.tree.Save); err != nil {
			return err
		}
		return st.WriteFile(WeightsFile, func(w io.Writer) error {
			return base.SaveBases(w, m.bases, m.args.WeightsThreshold)
		})
	})
}

func (m *treeModel) Predict(row sparse.Row, cfg *config.Config) ([]model.Prediction, error) {
	if err := m.RequireLoaded("Predict"); err != nil {
		return nil, err
	}
	switch m.mode {
	case modeHSM:
		return m.tree.PredictHSM(row, m.bases, cfg.TopK, cfg.Threshold), nil
	case modeUBOPHSM:
		return bestPrefix(m.tree.PredictHSM(row, m.bases, 0, 0), cfg.Delta, cfg.Gamma), nil
	case modeRBOP:
		return m.rbop(row, cfg), nil
	}
	return m.tree.Predict(row, m.bases, cfg.TopK, cfg.Threshold), nil
}

// LabelProbability scores a single label, used by ensembles for labels a
// member did not rank.
func (m *treeModel) LabelProbability(label int, row sparse.Row) float64 {
	if m.hsm() {
		return m.tree.LabelProbabilityHSM(label, row, m.bases)
	}
	return m.tree.LabelProbability(label, row, m.bases)
}

// rbop returns the leaves of the node maximizing g(|leaves|)·P(node).
func (m *treeModel) rbop(row sparse.Row, cfg *config.Config) []model.Prediction {
	probs := m.tree.NodeProbabilitiesHSM(row, m.bases)
	best, bestU := m.tree.Root().Index, math.Inf(-1)
	for i, p := range probs {
		if u := utility(m.leafCounts[i], cfg.Delta, cfg.Gamma) * p; u > bestU {
			best, bestU = i, u
		}
	}

	labels := m.tree.LeavesUnder(best)
	preds := make([]model.Prediction, len(labels))
	for i, l := range labels {
		preds[i] = model.Prediction{Label: l, Value: probs[m.tree.Leaf(l).Index]}
	}
	model.SortPredictions(preds)
	return preds
}

func (m *treeModel) Test(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]metrics.Result, error) {
	return evaluate(ctx, m, labels, features, cfg)
}

func (m *treeModel) OutputSize() int {
	if m.tree == nil {
		return 0
	}
	return m.tree.Labels()
}

// leafCounts returns the number of leaves below every node.
func leafCounts(t *tree.Tree) []int {
	counts := make([]int, t.Size())
	order := make([]int, 0, t.Size())
	stack := []int{t.Root().Index}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, i)
		stack = append(stack, t.Node(i).Children...)
	}
	for j := len(order) - 1; j >= 0; j-- {
		n := t.Node(order[j])
		if n.IsLeaf() {
			counts[n.Index] = 1
			continue
		}
		for _, c := range n.Children {
			counts[n.Index] += counts[c]
		}
	}
	return counts
}
