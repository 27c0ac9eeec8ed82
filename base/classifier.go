// Package base implements the binary classifier trained at every tree node
// and the engine that trains many of them concurrently while writing them
// in submission order.
package base

import (
	"math"

	"github.com/YuminosukeSato/xclf/config"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Kind tags the serialized form of a Classifier.
type Kind uint8

const (
	// KindConstant always predicts the same probability.
	KindConstant Kind = 0
	// KindLogistic is a sparse logistic regression.
	KindLogistic Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindLogistic:
		return "logistic"
	default:
		return "unknown"
	}
}

// Options control training of a single classifier.
type Options struct {
	Eta              float64 // base learning rate
	Iter             int     // maximum gradient descent iterations
	L2               float64 // L2 regularization strength
	Tol              float64 // stop when the largest gradient component is below Tol
	WeightsThreshold float64 // weights with smaller magnitude are dropped on save
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig extracts the base classifier options.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Eta:              c.Eta,
		Iter:             c.Iter,
		L2:               c.L2,
		Tol:              c.Tol,
		WeightsThreshold: c.WeightsThreshold,
	}
}

// Classifier is a binary probabilistic predictor over sparse rows.
//
// A trained or online classifier keeps dense weights; a loaded one keeps the
// sparse weights that survived thresholding.
type Classifier struct {
	kind Kind
	prob float64

	bias   float64
	dims   int
	dense  []float64
	sparse sparse.Row

	iters     int
	converged bool
}

// NewConstant returns a classifier that always predicts p.
func NewConstant(p float64) *Classifier {
	return &Classifier{kind: KindConstant, prob: p, converged: true}
}

// NewLogistic returns an untrained logistic classifier with zero weights.
// It predicts 0.5 until updated.
func NewLogistic(dims int) *Classifier {
	return &Classifier{kind: KindLogistic, dims: dims, dense: make([]float64, dims)}
}

// Kind returns the classifier kind.
func (c *Classifier) Kind() Kind { return c.kind }

// Dims returns the feature dimensionality of a logistic classifier.
func (c *Classifier) Dims() int { return c.dims }

// Converged reports whether training stopped on the tolerance.
func (c *Classifier) Converged() bool { return c.converged }

// Iterations returns the number of gradient steps taken by Train.
func (c *Classifier) Iterations() int { return c.iters }

// Train fits a classifier for labels (values > 0.5 are positive) on rows.
// weights may be nil. Empty or single-class input yields a constant
// classifier instead of an error.
func Train(dims int, labels []float64, rows []sparse.Row, weights []float64, opts Options) (*Classifier, error) {
	if len(rows) != len(labels) {
		return nil, errors.NewDimensionError("base.Train", len(labels), len(rows), 0)
	}
	if weights != nil && len(weights) != len(labels) {
		return nil, errors.NewDimensionError("base.Train", len(labels), len(weights), 0)
	}

	pos, neg := 0, 0
	for _, y := range labels {
		if y > 0.5 {
			pos++
		} else {
			neg++
		}
	}
	switch {
	case pos == 0:
		return NewConstant(0), nil
	case neg == 0:
		return NewConstant(1), nil
	}

	c := NewLogistic(dims)
	c.fit(labels, rows, weights, opts)
	return c, nil
}

// fit runs batch gradient descent with a decaying learning rate. When a step
// makes the weights non-finite, the last finite iterate is restored and the
// classifier is left unconverged.
func (c *Classifier) fit(labels []float64, rows []sparse.Row, weights []float64, opts Options) {
	total := float64(len(labels))
	if weights != nil {
		total = 0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			total = 1
		}
	}

	grad := make([]float64, c.dims)
	prev := make([]float64, c.dims)
	for iter := 0; iter < opts.Iter; iter++ {
		copy(prev, c.dense)
		prevBias := c.bias
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i, row := range rows {
			y := 0.0
			if labels[i] > 0.5 {
				y = 1
			}
			e := sigmoid(c.bias+row.Dot(c.dense)) - y
			if weights != nil {
				e *= weights[i]
			}
			gradBias += e
			row.AddTo(grad, e)
		}

		gradBias /= total
		for j := range grad {
			grad[j] = grad[j]/total + opts.L2*c.dense[j]
		}

		learningRate := opts.Eta / (1.0 + 0.1*float64(iter))
		maxGrad := math.Abs(gradBias)
		for j, g := range grad {
			c.dense[j] -= learningRate * g
			if a := math.Abs(g); a > maxGrad {
				maxGrad = a
			}
		}
		c.bias -= learningRate * gradBias

		if errors.CheckNumericalStability("base.Train", c.dense, iter) != nil ||
			errors.CheckScalar("base.Train", c.bias, iter) != nil {
			copy(c.dense, prev)
			c.bias = prevBias
			break
		}
		c.iters = iter + 1

		if maxGrad < opts.Tol {
			c.converged = true
			break
		}
	}
}

// Update performs one stochastic gradient step on a single example. The
// weight vector grows when row references unseen features. Constant
// classifiers are not updated.
func (c *Classifier) Update(row sparse.Row, label float64, eta, l2 float64) {
	if c.kind != KindLogistic {
		return
	}
	if c.dense == nil {
		c.densify()
	}
	if m := row.MaxIndex() + 1; m > len(c.dense) {
		grown := make([]float64, m)
		copy(grown, c.dense)
		c.dense = grown
		c.dims = m
	}

	y := 0.0
	if label > 0.5 {
		y = 1
	}
	e := sigmoid(c.bias+row.Dot(c.dense)) - y
	for _, f := range row {
		c.dense[f.Index] -= eta * (e*f.Value + l2*c.dense[f.Index])
	}
	c.bias -= eta * e
	c.iters++
}

func (c *Classifier) densify() {
	c.dense = make([]float64, c.dims)
	for _, f := range c.sparse {
		c.dense[f.Index] = f.Value
	}
	c.sparse = nil
}

// Predict returns the probability of the positive class for row.
func (c *Classifier) Predict(row sparse.Row) float64 {
	if c.kind == KindConstant {
		return c.prob
	}
	return sigmoid(c.bias + c.dot(row))
}

// PredictLog returns the clamped log of Predict.
func (c *Classifier) PredictLog(row sparse.Row) float64 {
	return errors.StabilizeLog(c.Predict(row))
}

func (c *Classifier) dot(row sparse.Row) float64 {
	if c.dense != nil {
		return row.Dot(c.dense)
	}
	return row.DotRow(c.sparse)
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}
