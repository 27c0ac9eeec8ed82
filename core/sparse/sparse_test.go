package sparse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewRowSortsAndMerges(t *testing.T) {
	r := NewRow(Feature{3, 1}, Feature{1, 2}, Feature{3, 0.5})

	require.Len(t, r, 2)
	assert.Equal(t, Feature{1, 2}, r[0])
	assert.Equal(t, Feature{3, 1.5}, r[1])
	assert.Equal(t, 3, r.MaxIndex())
}

func TestRowArithmetic(t *testing.T) {
	r := Row{{0, 3}, {2, 4}}

	assert.InDelta(t, 5.0, r.Norm(), 1e-12)
	assert.InDelta(t, 3.0, r.Dot([]float64{1, 9}), 1e-12, "index 2 is outside w")
	assert.InDelta(t, 11.0, r.Dot([]float64{1, 9, 2}), 1e-12)
	assert.InDelta(t, 8.0, r.DotRow(Row{{1, 5}, {2, 2}}), 1e-12)

	u := r.Unit()
	assert.InDelta(t, 1.0, u.Norm(), 1e-12)
	assert.InDelta(t, 3.0, r[0].Value, 1e-12, "Unit must not modify the receiver")

	assert.Equal(t, []float64{3, 0, 4, 0}, r.ToDense(4))
	assert.Equal(t, r, FromDenseVector([]float64{3, 0, 4}))

	var empty Row
	assert.Equal(t, -1, empty.MaxIndex())
	assert.Len(t, empty.Unit(), 0)
}

func TestMatrix(t *testing.T) {
	m := NewMatrix(0)
	m.AppendRow(Row{{0, 1}})
	m.AppendRow(Row{{1, 2}, {4, 1}})
	m.AppendRow(nil)

	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, 5, m.Cols())
	assert.Equal(t, 3, m.Cells())
	assert.Equal(t, Row{{1, 2}, {4, 1}}, m.Row(1))
}

func TestFromDenseGonum(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{0, 1, 0, 2, 0, math.Pi})
	m := FromDense(d)

	assert.Equal(t, Row{{1, 1}}, m.Row(0))
	assert.Equal(t, Row{{0, 2}, {2, math.Pi}}, m.Row(1))
	assert.Equal(t, 3, m.Cols())
}

func TestLabelMatrix(t *testing.T) {
	l := NewLabelMatrix(0)
	l.AppendRow([]int{0, 2})
	l.AppendRow(nil)
	l.AppendRow([]int{5})

	assert.Equal(t, 3, l.Rows())
	assert.Equal(t, 6, l.Cols())
	assert.Equal(t, 3, l.Cells())
	assert.Equal(t, []int{0, 2}, l.Row(0))
}
