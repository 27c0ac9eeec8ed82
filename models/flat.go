package models

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/metrics"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
)

// flatModel keeps one classifier per label, all trained on the same rows.
// It serves br, ovr and ubop.
type flatModel struct {
	*model.StateManager
	kind config.ModelType
	mode predictMode

	bases []*base.Classifier
	args  *config.Config
}

func newFlatModel(kind config.ModelType, mode predictMode) *flatModel {
	return &flatModel{
		StateManager: model.NewStateManager(string(kind)),
		kind:         kind,
		mode:         mode,
	}
}

// multiClass reports whether only the first label of an example counts.
func (m *flatModel) multiClass() bool { return m.mode != modeBR }

func (m *flatModel) Train(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) error {
	if err := checkRows("models.Train", labels, features); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("models").With(log.ModelNameKey, string(m.kind))
	start := time.Now()
	k := labels.Cols()
	logger.Info("Starting training",
		log.OperationKey, log.OperationTrain,
		log.SamplesKey, features.Rows(),
		log.FeaturesKey, features.Cols(),
		log.LabelsKey, k,
	)

	targets := make([][]float64, k)
	for l := range targets {
		targets[l] = make([]float64, labels.Rows())
	}
	for r := 0; r < labels.Rows(); r++ {
		ls := labels.Row(r)
		if m.multiClass() && len(ls) > 1 {
			ls = ls[:1]
		}
		for _, l := range ls {
			targets[l][r] = 1
		}
	}

	err := stage(cfg.Output, cfg, func(st *model.Staging) error {
		return st.WriteFile(WeightsFile, func(w io.Writer) error {
			return base.TrainBasesWithSameFeatures(ctx, w, features.Cols(), targets, features.RowSlice(), nil, base.OptionsFromConfig(cfg), cfg.Threads)
		})
	})
	if err != nil {
		return errors.Wrapf(err, "training %s", m.kind)
	}
	modelsTrained.WithLabelValues(string(m.kind)).Inc()
	logger.Info("Model trained",
		log.PathKey, cfg.Output,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m.Load(cfg.Output)
}

func (m *flatModel) Load(dir string) error {
	args, err := config.Load(filepath.Join(dir, config.ArgsFile))
	if err != nil {
		return err
	}
	bases, err := loadBasesFile(filepath.Join(dir, WeightsFile))
	if err != nil {
		return err
	}
	m.bases, m.args = bases, args
	m.SetLoaded(maxDims(bases), len(bases))
	return nil
}

func (m *flatModel) Save(dir string) error {
	if err := m.RequireLoaded("Save"); err != nil {
		return err
	}
	return stage(dir, m.args, func(st *model.Staging) error {
		return st.WriteFile(WeightsFile, func(w io.Writer) error {
			return base.SaveBases(w, m.bases, m.args.WeightsThreshold)
		})
	})
}

func (m *flatModel) Predict(row sparse.Row, cfg *config.Config) ([]model.Prediction, error) {
	if err := m.RequireLoaded("Predict"); err != nil {
		return nil, err
	}
	preds := make([]model.Prediction, 0, len(m.bases))
	sum := 0.0
	for l, b := range m.bases {
		p := b.Predict(row)
		sum += p
		if m.mode != modeUBOP && cfg.Threshold > 0 && p < cfg.Threshold {
			continue
		}
		preds = append(preds, model.Prediction{Label: l, Value: p})
	}

	if m.mode == modeUBOP {
		if sum > 0 {
			for i := range preds {
				preds[i].Value /= sum
			}
		}
		return bestPrefix(model.TopK(preds, 0), cfg.Delta, cfg.Gamma), nil
	}
	return model.TopK(preds, cfg.TopK), nil
}

func (m *flatModel) Test(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]metrics.Result, error) {
	return evaluate(ctx, m, labels, features, cfg)
}

func (m *flatModel) OutputSize() int { return len(m.bases) }
