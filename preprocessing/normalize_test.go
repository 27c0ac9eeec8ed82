package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

func TestNormalizer(t *testing.T) {
	tests := []struct {
		norm Norm
		want []float64
	}{
		{L2, []float64{0.6, -0.8}},
		{L1, []float64{3.0 / 7, -4.0 / 7}},
		{Max, []float64{0.75, -1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.norm), func(t *testing.T) {
			n, err := NewNormalizer(tt.norm)
			require.NoError(t, err)
			m := sparse.NewMatrix(5)
			m.AppendRow(sparse.NewRow(sparse.Feature{Index: 1, Value: 3}, sparse.Feature{Index: 4, Value: -4}))
			m.AppendRow(sparse.Row{})
			n.Transform(m)
			row := m.Row(0)
			assert.InDelta(t, tt.want[0], row[0].Value, 1e-12)
			assert.InDelta(t, tt.want[1], row[1].Value, 1e-12)
			assert.Empty(t, m.Row(1))
		})
	}
}

func TestNewNormalizerRejectsUnknown(t *testing.T) {
	_, err := NewNormalizer("l3")
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}
