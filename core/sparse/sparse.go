// Package sparse holds the sparse feature and label containers shared by
// the tree, the base classifiers and the data reader.
package sparse

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Feature is one non-zero entry of a feature row.
type Feature struct {
	Index int
	Value float64
}

// Row is a sparse feature vector sorted by ascending Index.
type Row []Feature

// NewRow copies features into a Row, sorting by index and summing duplicates.
func NewRow(features ...Feature) Row {
	r := make(Row, len(features))
	copy(r, features)
	sort.SliceStable(r, func(i, j int) bool { return r[i].Index < r[j].Index })

	out := r[:0]
	for _, f := range r {
		if n := len(out); n > 0 && out[n-1].Index == f.Index {
			out[n-1].Value += f.Value
			continue
		}
		out = append(out, f)
	}
	return out
}

// Dot returns the inner product with a dense weight vector. Indices outside
// w are ignored.
func (r Row) Dot(w []float64) float64 {
	var s float64
	for _, f := range r {
		if f.Index >= 0 && f.Index < len(w) {
			s += f.Value * w[f.Index]
		}
	}
	return s
}

// DotRow returns the inner product of two sorted rows.
func (r Row) DotRow(o Row) float64 {
	var s float64
	i, j := 0, 0
	for i < len(r) && j < len(o) {
		switch {
		case r[i].Index == o[j].Index:
			s += r[i].Value * o[j].Value
			i++
			j++
		case r[i].Index < o[j].Index:
			i++
		default:
			j++
		}
	}
	return s
}

// Norm returns the L2 norm.
func (r Row) Norm() float64 {
	var s float64
	for _, f := range r {
		s += f.Value * f.Value
	}
	return math.Sqrt(s)
}

// Unit returns a copy scaled to unit L2 norm. A zero row is returned as is.
func (r Row) Unit() Row {
	n := r.Norm()
	out := make(Row, len(r))
	copy(out, r)
	if n == 0 {
		return out
	}
	for i := range out {
		out[i].Value /= n
	}
	return out
}

// AddTo adds scale*r into the dense vector dst.
func (r Row) AddTo(dst []float64, scale float64) {
	for _, f := range r {
		if f.Index >= 0 && f.Index < len(dst) {
			dst[f.Index] += scale * f.Value
		}
	}
}

// MaxIndex returns the largest feature index, or -1 for an empty row.
func (r Row) MaxIndex() int {
	if len(r) == 0 {
		return -1
	}
	return r[len(r)-1].Index
}

// ToDense expands the row into a dense vector of length n.
func (r Row) ToDense(n int) []float64 {
	out := make([]float64, n)
	r.AddTo(out, 1)
	return out
}

// FromDenseVector keeps the non-zero entries of v.
func FromDenseVector(v []float64) Row {
	var r Row
	for i, x := range v {
		if x != 0 {
			r = append(r, Feature{Index: i, Value: x})
		}
	}
	return r
}

// Matrix is a row-major sparse feature matrix.
type Matrix struct {
	rows []Row
	cols int
}

// NewMatrix returns an empty matrix with at least cols columns.
func NewMatrix(cols int) *Matrix {
	return &Matrix{cols: cols}
}

// AppendRow adds a row and widens the matrix when needed.
func (m *Matrix) AppendRow(r Row) {
	m.rows = append(m.rows, r)
	if c := r.MaxIndex() + 1; c > m.cols {
		m.cols = c
	}
}

// Row returns row i. The row is shared, not copied.
func (m *Matrix) Row(i int) Row { return m.rows[i] }

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.rows) }

// Cols returns the number of columns (max index + 1).
func (m *Matrix) Cols() int { return m.cols }

// Cells returns the number of stored entries.
func (m *Matrix) Cells() int {
	n := 0
	for _, r := range m.rows {
		n += len(r)
	}
	return n
}

// RowSlice returns all rows.
func (m *Matrix) RowSlice() []Row { return m.rows }

// FromDense converts a gonum matrix, dropping zero entries.
func FromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	m := NewMatrix(c)
	buf := make([]float64, c)
	for i := 0; i < r; i++ {
		m.AppendRow(FromDenseVector(mat.Row(buf, i, d)))
	}
	return m
}

// LabelMatrix holds one label set per example.
type LabelMatrix struct {
	rows [][]int
	cols int
}

// NewLabelMatrix returns an empty label matrix with at least cols labels.
func NewLabelMatrix(cols int) *LabelMatrix {
	return &LabelMatrix{cols: cols}
}

// AppendRow adds the label set of one example.
func (l *LabelMatrix) AppendRow(labels []int) {
	l.rows = append(l.rows, labels)
	for _, lb := range labels {
		if lb+1 > l.cols {
			l.cols = lb + 1
		}
	}
}

// Row returns the labels of example i.
func (l *LabelMatrix) Row(i int) []int { return l.rows[i] }

// Rows returns the number of examples.
func (l *LabelMatrix) Rows() int { return len(l.rows) }

// Cols returns the size of the label space (max label + 1).
func (l *LabelMatrix) Cols() int { return l.cols }

// Cells returns the total number of label assignments.
func (l *LabelMatrix) Cells() int {
	n := 0
	for _, r := range l.rows {
		n += len(r)
	}
	return n
}
