package metrics

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// PlotPrecisionCurve saves a line plot of precision@k and recall@k for
// k = 1..maxK to path. The image format follows the file extension (png,
// svg, pdf, ...).
func PlotPrecisionCurve(path string, labels [][]int, preds [][]model.Prediction, maxK int) error {
	if maxK < 1 {
		return errors.NewValidationError("maxK", "must be positive", maxK)
	}
	precision := make(plotter.XYs, maxK)
	recall := make(plotter.XYs, maxK)
	for k := 1; k <= maxK; k++ {
		p := &PrecisionAtK{K: k}
		r := &RecallAtK{K: k}
		if err := p.Accumulate(labels, preds); err != nil {
			return err
		}
		if err := r.Accumulate(labels, preds); err != nil {
			return err
		}
		precision[k-1] = plotter.XY{X: float64(k), Y: p.Value()}
		recall[k-1] = plotter.XY{X: float64(k), Y: r.Value()}
	}

	p := plot.New()
	p.Title.Text = "Precision and recall at k"
	p.X.Label.Text = "k"
	p.Y.Label.Text = "value"
	p.Y.Min, p.Y.Max = 0, 1
	if err := plotutil.AddLinePoints(p, "precision@k", precision, "recall@k", recall); err != nil {
		return errors.Wrap(err, "failed to add plot lines")
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}
