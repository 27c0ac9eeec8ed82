package base

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

func separable() ([]float64, []sparse.Row) {
	labels := []float64{1, 1, 0, 0}
	rows := []sparse.Row{
		{{Index: 0, Value: 1}, {Index: 2, Value: 0.5}},
		{{Index: 0, Value: 0.8}},
		{{Index: 1, Value: 1}},
		{{Index: 1, Value: 0.9}, {Index: 2, Value: 0.5}},
	}
	return labels, rows
}

func testOptions() Options {
	return Options{Eta: 1, Iter: 200, L2: 0, Tol: 1e-6, WeightsThreshold: 0}
}

func TestTrainSeparable(t *testing.T) {
	labels, rows := separable()

	c, err := Train(3, labels, rows, nil, testOptions())
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, c.Kind())
	assert.Greater(t, c.Iterations(), 0)

	for i, row := range rows {
		p := c.Predict(row)
		if labels[i] > 0.5 {
			assert.Greater(t, p, 0.5, "row %d", i)
		} else {
			assert.Less(t, p, 0.5, "row %d", i)
		}
	}
}

func TestTrainDegenerate(t *testing.T) {
	_, rows := separable()

	tests := []struct {
		name   string
		labels []float64
		rows   []sparse.Row
		want   float64
	}{
		{"all negative", []float64{0, 0, 0, 0}, rows, 0},
		{"all positive", []float64{1, 1, 1, 1}, rows, 1},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Train(3, tt.labels, tt.rows, nil, testOptions())
			require.NoError(t, err)
			assert.Equal(t, KindConstant, c.Kind())
			assert.Equal(t, tt.want, c.Predict(sparse.Row{{Index: 0, Value: 1}}))
		})
	}
}

func TestTrainInstanceWeights(t *testing.T) {
	labels := []float64{1, 0}
	row := sparse.Row{{Index: 0, Value: 1}}
	rows := []sparse.Row{row, row}

	favourPositive, err := Train(1, labels, rows, []float64{9, 1}, testOptions())
	require.NoError(t, err)
	favourNegative, err := Train(1, labels, rows, []float64{1, 9}, testOptions())
	require.NoError(t, err)

	assert.Greater(t, favourPositive.Predict(row), 0.5)
	assert.Less(t, favourNegative.Predict(row), 0.5)
}

func TestTrainDimensionMismatch(t *testing.T) {
	_, err := Train(3, []float64{1}, nil, nil, testOptions())
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	labels, rows := separable()
	_, err = Train(3, labels, rows, []float64{1}, testOptions())
	assert.True(t, errors.As(err, &dimErr))
}

func TestUpdateMovesTowardLabel(t *testing.T) {
	c := NewLogistic(1)
	row := sparse.Row{{Index: 3, Value: 1}}
	assert.InDelta(t, 0.5, c.Predict(row), 1e-12)

	for i := 0; i < 40; i++ {
		c.Update(row, 1, 0.5, 0)
	}
	assert.Greater(t, c.Predict(row), 0.9)
	assert.Equal(t, 4, c.Dims(), "weights grow to cover new features")

	constant := NewConstant(0.3)
	constant.Update(row, 1, 0.5, 0)
	assert.Equal(t, 0.3, constant.Predict(row))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	labels, rows := separable()
	c, err := Train(3, labels, rows, nil, testOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, 0))
	require.NoError(t, NewConstant(1).Encode(&buf, 0))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, got.Kind())
	assert.Equal(t, 3, got.Dims())
	for _, row := range rows {
		assert.InDelta(t, c.Predict(row), got.Predict(row), 1e-12)
	}

	constant, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindConstant, constant.Kind())
	assert.Equal(t, 1.0, constant.Predict(nil))
	assert.Zero(t, buf.Len())

	// a decoded classifier can keep learning online
	before := got.Predict(rows[0])
	got.Update(rows[0], 1, 0.5, 0)
	assert.Greater(t, got.Predict(rows[0]), before)
}

func TestEncodeDropsSmallWeights(t *testing.T) {
	c := NewLogistic(3)
	c.dense = []float64{0.05, -2, 0.5}
	c.bias = 0.25

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, 0.1))
	// kind + bias + dims + nnz + 2 * (index + value)
	assert.Equal(t, 1+8+4+4+2*12, buf.Len())

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, sparse.Row{{Index: 1, Value: -2}, {Index: 2, Value: 0.5}}, got.sparse)
}

func TestDecodeMalformed(t *testing.T) {
	var full bytes.Buffer
	c := NewLogistic(2)
	c.dense = []float64{1, 2}
	require.NoError(t, c.Encode(&full, 0))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown kind", []byte{7}},
		{"truncated constant", []byte{0, 1, 2}},
		{"truncated weights", full.Bytes()[:full.Len()-3]},
		{"bad constant", append([]byte{0}, 0, 0, 0, 0, 0, 0, 0xf0, 0x7f)},
		{"huge weight count", hugeLogisticHeader()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			var se *errors.StructuralError
			assert.True(t, errors.As(err, &se), "got %v", err)
		})
	}
}

// hugeLogisticHeader claims two billion weights and carries none.
func hugeLogisticHeader() []byte {
	b := []byte{byte(KindLogistic)}
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 2000000000)
	return binary.LittleEndian.AppendUint32(b, 2000000000)
}

func TestTrainDivergingKeepsFiniteIterate(t *testing.T) {
	labels, rows := separable()
	opts := Options{Eta: 1e6, Iter: 100, L2: 1, Tol: 0}

	c, err := Train(3, labels, rows, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, c.Kind())
	assert.False(t, c.Converged())
	for _, r := range rows {
		p := c.Predict(r)
		assert.False(t, math.IsNaN(p))
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}
