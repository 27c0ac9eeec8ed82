package model

import (
	"sort"
)

// Prediction is one ranked label with its score.
type Prediction struct {
	Label int
	Value float64
}

// SortPredictions orders by descending value, ties by ascending label.
func SortPredictions(p []Prediction) {
	sort.SliceStable(p, func(i, j int) bool {
		if p[i].Value != p[j].Value {
			return p[i].Value > p[j].Value
		}
		return p[i].Label < p[j].Label
	})
}

// TopK sorts p and truncates it to k entries. k <= 0 keeps everything.
func TopK(p []Prediction, k int) []Prediction {
	SortPredictions(p)
	if k > 0 && len(p) > k {
		p = p[:k]
	}
	return p
}

// Persistable is implemented by everything saved as a model directory.
type Persistable interface {
	// Save writes the model into dir.
	Save(dir string) error

	// Load replaces the model state with the contents of dir.
	Load(dir string) error
}

// OutputSizer reports the label-space cardinality.
type OutputSizer interface {
	OutputSize() int
}
