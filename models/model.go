// Package models dispatches training, prediction and evaluation to the model
// families selected by config.ModelType.
//
// Every model is persisted as a directory holding args.json and its binary
// parts. Training writes into a staging directory next to cfg.Output and
// renames it into place on success, then loads the result.
package models

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/xclf/base"
	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/core/parallel"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/metrics"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
)

// WeightsFile holds the base classifiers of a model directory.
const WeightsFile = "weights.bin"

// Model is implemented by every model family and by Ensemble.
type Model interface {
	model.Persistable
	model.OutputSizer

	// Train fits the model, persists it to cfg.Output and loads it.
	Train(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) error

	// Test predicts every row and evaluates cfg.Measures.
	Test(ctx context.Context, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]metrics.Result, error)

	// Predict ranks labels for one row using cfg.TopK and cfg.Threshold.
	Predict(row sparse.Row, cfg *config.Config) ([]model.Prediction, error)
}

// New returns an untrained model for cfg. Unknown model types and
// ensembles of anything but plt or hsm are rejected here.
func New(cfg *config.Config) (Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsEnsemble() {
		e, err := NewEnsemble(cfg.ModelType)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return newSingle(cfg.ModelType)
}

func newSingle(t config.ModelType) (Model, error) {
	switch t {
	case config.PLT:
		return newTreeModel(t, modePLT), nil
	case config.HSM:
		return newTreeModel(t, modeHSM), nil
	case config.OPLT:
		tm := newTreeModel(t, modePLT)
		tm.online = true
		return tm, nil
	case config.UBOPHSM:
		return newTreeModel(t, modeUBOPHSM), nil
	case config.RBOP:
		return newTreeModel(t, modeRBOP), nil
	case config.BR:
		return newFlatModel(t, modeBR), nil
	case config.OVR:
		return newFlatModel(t, modeOVR), nil
	case config.UBOP:
		return newFlatModel(t, modeUBOP), nil
	}
	return nil, errors.NewModelError("models.New", "unsupported model", errors.Newf("unknown model type %q", t))
}

// Load opens the model directory dir using the args.json stored inside it.
func Load(dir string) (Model, *config.Config, error) {
	cfg, err := config.Load(filepath.Join(dir, config.ArgsFile))
	if err != nil {
		return nil, nil, err
	}
	m, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Load(dir); err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// PredictBatch predicts every row of features. Rows are split into
// cfg.Threads contiguous blocks; each worker fills only its own slots.
func PredictBatch(ctx context.Context, m Model, features *sparse.Matrix, cfg *config.Config) ([][]model.Prediction, error) {
	start := time.Now()
	preds := make([][]model.Prediction, features.Rows())
	err := parallel.ParallelizeErr(ctx, features.Rows(), cfg.Threads, func(ctx context.Context, s, e int) error {
		for r := s; r < e; r++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := m.Predict(features.Row(r), cfg)
			if err != nil {
				return errors.Wrapf(err, "predicting row %d", r)
			}
			preds[r] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rowsPredicted.WithLabelValues(string(cfg.ModelType)).Add(float64(features.Rows()))
	batchLatency.Observe(time.Since(start).Seconds())
	return preds, nil
}

// evaluate is the shared Test implementation.
func evaluate(ctx context.Context, m Model, labels *sparse.LabelMatrix, features *sparse.Matrix, cfg *config.Config) ([]metrics.Result, error) {
	if err := checkRows("models.Test", labels, features); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("models").With(log.ModelNameKey, string(cfg.ModelType))
	logger.Info("Starting testing",
		log.OperationKey, log.OperationTest,
		log.SamplesKey, features.Rows(),
		log.ThreadsKey, cfg.Workers(),
	)

	measures, err := metrics.Factory(cfg.Measures, m.OutputSize())
	if err != nil {
		return nil, err
	}
	preds, err := PredictBatch(ctx, m, features, cfg)
	if err != nil {
		return nil, err
	}
	truth := make([][]int, labels.Rows())
	for i := range truth {
		truth[i] = labels.Row(i)
	}
	for _, ms := range measures {
		if err := ms.Accumulate(truth, preds); err != nil {
			return nil, err
		}
	}

	results := metrics.Results(measures)
	for _, r := range results {
		logger.Info("Test result",
			log.PhaseKey, log.PhaseEvaluation,
			log.MeasureKey, r.Name,
			log.ValueKey, r.Value,
		)
	}
	return results, nil
}

func checkRows(op string, labels *sparse.LabelMatrix, features *sparse.Matrix) error {
	if labels.Rows() != features.Rows() {
		return errors.NewDimensionError(op, features.Rows(), labels.Rows(), 0)
	}
	if features.Rows() == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	return nil
}

// stage writes args.json plus whatever write adds into a staging area for
// dir and commits it.
func stage(dir string, cfg *config.Config, write func(st *model.Staging) error) error {
	if dir == "" {
		return errors.NewValidationError("output", "model output directory is required", dir)
	}
	st, err := model.NewStaging(dir)
	if err != nil {
		return err
	}
	defer func() { _ = st.Abort() }()

	if err := st.WriteFile(config.ArgsFile, cfg.Write); err != nil {
		return err
	}
	if err := write(st); err != nil {
		return err
	}
	return st.Commit()
}

func loadBasesFile(path string) ([]*base.Classifier, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bases, err := base.LoadBases(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return bases, nil
}

func maxDims(bases []*base.Classifier) int {
	d := 0
	for _, b := range bases {
		if b.Dims() > d {
			d = b.Dims()
		}
	}
	return d
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return f, nil
}
