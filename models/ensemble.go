package models

import (
	"context"
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/metrics"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
)

// Ensemble averages the label scores of several tree models of the same
// family, each trained with its own seed.
type Ensemble struct {
	*model.StateManager
	kind    config.ModelType
	members []*treeModel
	args    *config.Config
}

// NewEnsemble returns an empty ensemble of plt or hsm members.
func NewEnsemble(kind config.ModelType) (*Ensemble, error) {
	if _, err := newMember(kind); err != nil {
		return nil, err
	}
	return &Ensemble{StateManager: model.NewStateManager("ensemble-" + string(kind)), kind: kind}, nil
}

func newMember(kind config.ModelType) (*treeModel, error) {
	switch kind {
	case config.PLT:
		return newTreeModel(kind, modePLT), nil
	case config.HSM:
		return newTreeModel(kind, modeHSM), nil
	}
	return nil, errors.NewModelError("models.NewEnsemble", "unsupported model",
		errors.Newf("ensemble of %q is not supported, only plt and hsm", kind))
}

func memberDir(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("member_%d", i))
}

// Train trains cfg.EnsembleSize members with seeds cfg.Seed+i into
// member_i subdirectories of cfg.Output.
func (e *Ensemble) Train(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) error {
	logger := log.GetLoggerWithName("models").With(log.ModelNameKey, e.Name())
	err := stage(cfg.Output, cfg, func(st *model.Staging) error {
		for i := 0; i < cfg.EnsembleSize; i++ {
			mcfg := cfg.Clone()
			mcfg.EnsembleSize = 0
			mcfg.Seed = cfg.Seed + int64(i)
			mcfg.Output = memberDir(cfg.Output, i)

			logger.Info("Training ensemble member",
				log.MemberKey, i,
				log.RandomSeedKey, mcfg.Seed,
			)
			member, err := newMember(e.kind)
			if err != nil {
				return err
			}
			if err := member.write(ctx, memberDir(st.Dir(), i), labels, features, mcfg); err != nil {
				return errors.Wrapf(err, "ensemble member %d", i)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	modelsTrained.WithLabelValues(e.Name()).Inc()
	return e.Load(cfg.Output)
}

func (e *Ensemble) Load(dir string) error {
	args, err := config.Load(filepath.Join(dir, config.ArgsFile))
	if err != nil {
		return err
	}
	if args.EnsembleSize < 1 {
		return errors.NewValidationError("ensembleSize", "stored ensemble has no members", args.EnsembleSize)
	}

	members := make([]*treeModel, args.EnsembleSize)
	nFeatures, nLabels := 0, 0
	for i := range members {
		m, err := newMember(e.kind)
		if err != nil {
			return err
		}
		if err := m.Load(memberDir(dir, i)); err != nil {
			return errors.Wrapf(err, "ensemble member %d", i)
		}
		f, l := m.Dimensions()
		nFeatures, nLabels = max(nFeatures, f), max(nLabels, l)
		members[i] = m
	}
	e.members, e.args = members, args
	e.SetLoaded(nFeatures, nLabels)
	return nil
}

func (e *Ensemble) Save(dir string) error {
	if err := e.RequireLoaded("Save"); err != nil {
		return err
	}
	return stage(dir, e.args, func(st *model.Staging) error {
		for i, m := range e.members {
			if err := m.Save(memberDir(st.Dir(), i)); err != nil {
				return errors.Wrapf(err, "ensemble member %d", i)
			}
		}
		return nil
	})
}

// Predict averages member scores over the union of the members' top-k
// labels. A label missing from a member's ranking scores 0 for that member,
// or its exact probability when cfg.EnsMissingScores is set.
func (e *Ensemble) Predict(row sparse.Row, cfg *config.Config) ([]model.Prediction, error) {
	if err := e.RequireLoaded("Predict"); err != nil {
		return nil, err
	}

	ranked := make([][]model.Prediction, len(e.members))
	index := make(map[int]int)
	var labels []int
	for i, m := range e.members {
		p, err := m.Predict(row, cfg)
		if err != nil {
			return nil, err
		}
		ranked[i] = p
		for _, pr := range p {
			if _, ok := index[pr.Label]; !ok {
				index[pr.Label] = len(labels)
				labels = append(labels, pr.Label)
			}
		}
	}

	scores := make([]float64, len(labels))
	member := make([]float64, len(labels))
	seen := make([]bool, len(labels))
	for i, m := range e.members {
		for j := range member {
			member[j], seen[j] = 0, false
		}
		for _, pr := range ranked[i] {
			j := index[pr.Label]
			member[j], seen[j] = pr.Value, true
		}
		if cfg.EnsMissingScores {
			for j, l := range labels {
				if !seen[j] {
					member[j] = m.LabelProbability(l, row)
				}
			}
		}
		floats.Add(scores, member)
	}
	floats.Scale(1/float64(len(e.members)), scores)

	preds := make([]model.Prediction, len(labels))
	for j, l := range labels {
		preds[j] = model.Prediction{Label: l, Value: scores[j]}
	}
	return model.TopK(preds, cfg.TopK), nil
}

func (e *Ensemble) Test(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]metrics.Result, error) {
	return evaluate(ctx, e, labels, features, cfg)
}

// OutputSize returns the largest member label space.
func (e *Ensemble) OutputSize() int {
	n := 0
	for _, m := range e.members {
		n = max(n, m.OutputSize())
	}
	return n
}
