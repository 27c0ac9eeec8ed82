package metrics

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/xclf/core/model"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// PrecisionAtK is the mean fraction of the top K predictions that are true
// labels. Missing predictions count as misses.
type PrecisionAtK struct {
	K int
	m mean
}

func (p *PrecisionAtK) Name() string { return fmt.Sprintf("p@%d", p.K) }

func (p *PrecisionAtK) Accumulate(labels [][]int, preds [][]model.Prediction) error {
	if err := checkRows(p.Name(), labels, preds); err != nil {
		return err
	}
	for i := range labels {
		p.m.add(float64(hits(labels[i], preds[i], p.K)) / float64(p.K))
	}
	return nil
}

func (p *PrecisionAtK) Value() float64 { return p.m.value(p.Name()) }

// RecallAtK is the mean fraction of true labels found in the top K
// predictions. Rows without labels are skipped.
type RecallAtK struct {
	K int
	m mean
}

func (r *RecallAtK) Name() string { return fmt.Sprintf("r@%d", r.K) }

func (r *RecallAtK) Accumulate(labels [][]int, preds [][]model.Prediction) error {
	if err := checkRows(r.Name(), labels, preds); err != nil {
		return err
	}
	for i := range labels {
		if len(labels[i]) == 0 {
			continue
		}
		r.m.add(float64(hits(labels[i], preds[i], r.K)) / float64(len(labels[i])))
	}
	return nil
}

func (r *RecallAtK) Value() float64 { return r.m.value(r.Name()) }

// CoverageAtK is the fraction of distinct ground truth labels that were
// correctly predicted in the top K at least once.
type CoverageAtK struct {
	K       int
	seen    []bool
	covered []bool
}

// NewCoverageAtK returns a coverage measure for a label space of the given
// size. The space grows if larger labels show up.
func NewCoverageAtK(k, outputSize int) *CoverageAtK {
	return &CoverageAtK{K: k, seen: make([]bool, outputSize), covered: make([]bool, outputSize)}
}

func (c *CoverageAtK) Name() string { return fmt.Sprintf("c@%d", c.K) }

func (c *CoverageAtK) Accumulate(labels [][]int, preds [][]model.Prediction) error {
	if err := checkRows(c.Name(), labels, preds); err != nil {
		return err
	}
	for i, truth := range labels {
		for _, l := range truth {
			if l < 0 {
				continue
			}
			c.grow(l)
			c.seen[l] = true
		}
		for j := 0; j < c.K && j < len(preds[i]); j++ {
			if l := preds[i][j].Label; contains(truth, l) && l >= 0 {
				c.covered[l] = true
			}
		}
	}
	return nil
}

func (c *CoverageAtK) grow(l int) {
	for l >= len(c.seen) {
		c.seen = append(c.seen, false)
		c.covered = append(c.covered, false)
	}
}

func (c *CoverageAtK) Value() float64 {
	seen, covered := 0, 0
	for l := range c.seen {
		if c.seen[l] {
			seen++
			if c.covered[l] {
				covered++
			}
		}
	}
	if seen == 0 {
		var empty mean
		return empty.value(c.Name())
	}
	return float64(covered) / float64(seen)
}

// NDCGAtK is the mean normalized discounted cumulative gain of the top K
// predictions with binary relevance. Rows without labels are skipped.
type NDCGAtK struct {
	K int
	m mean
}

func (n *NDCGAtK) Name() string { return fmt.Sprintf("ndcg@%d", n.K) }

func (n *NDCGAtK) Accumulate(labels [][]int, preds [][]model.Prediction) error {
	if err := checkRows(n.Name(), labels, preds); err != nil {
		return err
	}
	for i, truth := range labels {
		if len(truth) == 0 {
			continue
		}
		var dcg, idcg float64
		for j := 0; j < n.K && j < len(preds[i]); j++ {
			if contains(truth, preds[i][j].Label) {
				dcg += 1 / math.Log2(float64(j+2))
			}
		}
		for j := 0; j < n.K && j < len(truth); j++ {
			idcg += 1 / math.Log2(float64(j+2))
		}
		n.m.add(errors.SafeDivide(dcg, idcg))
	}
	return nil
}

func (n *NDCGAtK) Value() float64 { return n.m.value(n.Name()) }

// Accuracy is the fraction of rows whose best prediction is a true label.
type Accuracy struct {
	m mean
}

func (a *Accuracy) Name() string { return "acc" }

func (a *Accuracy) Accumulate(labels [][]int, preds [][]model.Prediction) error {
	if err := checkRows(a.Name(), labels, preds); err != nil {
		return err
	}
	for i := range labels {
		v := 0.0
		if len(preds[i]) > 0 && contains(labels[i], preds[i][0].Label) {
			v = 1
		}
		a.m.add(v)
	}
	return nil
}

func (a *Accuracy) Value() float64 { return a.m.value(a.Name()) }
