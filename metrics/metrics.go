// Package metrics evaluates top-k label predictions against ground truth.
//
// Measures are created from a comma separated list such as
// "p@1,p@3,r@5,c@5,ndcg@5,acc" and fed batches of rows; Value reports the
// aggregate over everything accumulated so far.
package metrics

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Measure accumulates an evaluation measure over rows.
type Measure interface {
	// Accumulate adds rows; labels[i] is the ground truth of preds[i].
	Accumulate(labels [][]int, preds [][]model.Prediction) error
	// Value returns the aggregate over all accumulated rows.
	Value() float64
	// Name returns the measure name as written in the measure list.
	Name() string
}

// Result is the value of one named measure.
type Result struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Results collects the current value of every measure.
func Results(measures []Measure) []Result {
	out := make([]Result, len(measures))
	for i, m := range measures {
		out[i] = Result{Name: m.Name(), Value: m.Value()}
	}
	return out
}

// Factory parses a comma separated measure list. outputSize is the size of the
// label space the predictions come from.
func Factory(spec string, outputSize int) ([]Measure, error) {
	var measures []Measure
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		m, err := parse(tok, outputSize)
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	if len(measures) == 0 {
		return nil, errors.NewValueError("metrics.Factory", "no measures in "+strconv.Quote(spec))
	}
	return measures, nil
}

func parse(tok string, outputSize int) (Measure, error) {
	name, arg, hasK := strings.Cut(strings.ToLower(tok), "@")
	if !hasK {
		switch name {
		case "acc", "accuracy":
			return &Accuracy{}, nil
		}
		return nil, errors.NewValueError("metrics.Factory", "unknown measure "+strconv.Quote(tok))
	}

	k, err := strconv.Atoi(arg)
	if err != nil || k < 1 {
		return nil, errors.NewValueError("metrics.Factory", "invalid k in "+strconv.Quote(tok))
	}
	switch name {
	case "p", "precision":
		return &PrecisionAtK{K: k}, nil
	case "r", "recall":
		return &RecallAtK{K: k}, nil
	case "c", "coverage":
		return NewCoverageAtK(k, outputSize), nil
	case "ndcg":
		return &NDCGAtK{K: k}, nil
	}
	return nil, errors.NewValueError("metrics.Factory", "unknown measure "+strconv.Quote(tok))
}

// mean is the running average shared by the per-row measures.
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.count++
}

func (m *mean) value(name string) float64 {
	if m.count == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(name, "no rows", 0))
		return 0
	}
	return m.sum / float64(m.count)
}

func checkRows(name string, labels [][]int, preds [][]model.Prediction) error {
	if len(labels) != len(preds) {
		return errors.NewDimensionError("metrics."+name, len(labels), len(preds), 0)
	}
	return nil
}

// hits counts predictions among the first k that are true labels.
func hits(truth []int, preds []model.Prediction, k int) int {
	n := 0
	for i := 0; i < k && i < len(preds); i++ {
		if contains(truth, preds[i].Label) {
			n++
		}
	}
	return n
}

func contains(labels []int, l int) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}
