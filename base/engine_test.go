package base

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
)

func randomJobs(n, rows, dims int, seed int64) []Job {
	rng := rand.New(rand.NewSource(seed))
	jobs := make([]Job, n)
	for j := range jobs {
		for r := 0; r < rows; r++ {
			row := sparse.NewRow(
				sparse.Feature{Index: rng.Intn(dims), Value: rng.Float64()},
				sparse.Feature{Index: rng.Intn(dims), Value: rng.Float64()},
			)
			jobs[j].Features = append(jobs[j].Features, row)
			jobs[j].Labels = append(jobs[j].Labels, float64(rng.Intn(2)))
		}
	}
	// a couple of degenerate jobs
	jobs[1].Labels = make([]float64, rows)
	jobs[n-1] = Job{}
	return jobs
}

func TestTrainBasesDeterministicAcrossThreads(t *testing.T) {
	jobs := randomJobs(40, 12, 16, 7)
	opts := Options{Eta: 0.5, Iter: 30, L2: 1e-3, Tol: 1e-8, WeightsThreshold: 0}

	var outputs [][]byte
	for _, threads := range []int{1, 2, 8} {
		var buf bytes.Buffer
		require.NoError(t, TrainBases(context.Background(), &buf, 16, jobs, opts, threads))
		outputs = append(outputs, buf.Bytes())
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])

	classifiers, err := LoadBases(bytes.NewReader(outputs[0]))
	require.NoError(t, err)
	require.Len(t, classifiers, len(jobs))
	assert.Equal(t, KindConstant, classifiers[1].Kind())
	assert.Equal(t, KindConstant, classifiers[len(jobs)-1].Kind())
}

func TestTrainBasesDegenerateBatchCompletes(t *testing.T) {
	row := sparse.Row{{Index: 0, Value: 1}}
	jobs := []Job{
		{Labels: []float64{0, 0}, Features: []sparse.Row{row, row}},
		{Labels: []float64{1, 1}, Features: []sparse.Row{row, row}},
		{},
	}
	before := testutil.ToFloat64(degenerateJobs)

	var buf bytes.Buffer
	require.NoError(t, TrainBases(context.Background(), &buf, 1, jobs, DefaultOptions(), 2))

	classifiers, err := LoadBases(&buf)
	require.NoError(t, err)
	require.Len(t, classifiers, 3)
	assert.Equal(t, 0.0, classifiers[0].Predict(row))
	assert.Equal(t, 1.0, classifiers[1].Predict(row))
	assert.Equal(t, 0.0, classifiers[2].Predict(row))
	assert.Equal(t, before+3, testutil.ToFloat64(degenerateJobs))
}

func TestTrainBasesWithSameFeatures(t *testing.T) {
	labels0, rows := separable()
	labels := [][]float64{labels0, {0, 0, 1, 1}, {0, 0, 0, 0}}

	var a, b bytes.Buffer
	require.NoError(t, TrainBasesWithSameFeatures(context.Background(), &a, 3, labels, rows, nil, testOptions(), 1))
	require.NoError(t, TrainBasesWithSameFeatures(context.Background(), &b, 3, labels, rows, nil, testOptions(), 4))
	assert.Equal(t, a.Bytes(), b.Bytes())

	classifiers, err := LoadBases(&a)
	require.NoError(t, err)
	require.Len(t, classifiers, 3)
	assert.Greater(t, classifiers[0].Predict(rows[0]), 0.5)
	assert.Greater(t, classifiers[1].Predict(rows[2]), 0.5)
	assert.Equal(t, KindConstant, classifiers[2].Kind())

	err = TrainBasesWithSameFeatures(context.Background(), &a, 3, labels, rows, [][]float64{nil}, testOptions(), 1)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestTrainOrderedCapturesPanic(t *testing.T) {
	var started int32
	var buf bytes.Buffer
	err := trainOrdered(context.Background(), &buf, 30, DefaultOptions(), 4, func(i int) (*Classifier, error) {
		atomic.AddInt32(&started, 1)
		if i == 5 {
			panic("corrupt node")
		}
		return NewConstant(0.5), nil
	})

	require.Error(t, err)
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr), "got %v", err)
	assert.Equal(t, "corrupt node", panicErr.PanicValue)
	assert.Contains(t, err.Error(), "training base classifier 5")
	assert.Less(t, atomic.LoadInt32(&started), int32(30), "submission stops after the failure is seen")
}

func TestTrainOrderedReportsFirstError(t *testing.T) {
	var buf bytes.Buffer
	err := trainOrdered(context.Background(), &buf, 10, DefaultOptions(), 3, func(i int) (*Classifier, error) {
		if i == 2 || i == 7 {
			return nil, fmt.Errorf("job %d failed", i)
		}
		return NewConstant(0), nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 2 failed")
	assert.NotContains(t, err.Error(), "job 7 failed")
}

func TestTrainBasesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := TrainBases(ctx, &buf, 1, randomJobs(5, 3, 4, 1), DefaultOptions(), 2)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSaveBasesMatchesTrainBases(t *testing.T) {
	jobs := randomJobs(6, 5, 8, 3)
	opts := testOptions()
	opts.WeightsThreshold = 0.01

	var trained bytes.Buffer
	require.NoError(t, TrainBases(context.Background(), &trained, 8, jobs, opts, 2))

	classifiers := make([]*Classifier, len(jobs))
	for i, j := range jobs {
		c, err := Train(8, j.Labels, j.Features, j.Weights, opts)
		require.NoError(t, err)
		classifiers[i] = c
	}
	var saved bytes.Buffer
	require.NoError(t, SaveBases(&saved, classifiers, opts.WeightsThreshold))
	assert.Equal(t, trained.Bytes(), saved.Bytes())
}

func TestLoadBasesMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no count", []byte{1, 0}},
		{"negative count", []byte{0xff, 0xff, 0xff, 0xff}},
		{"missing classifiers", []byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"huge count", binary.LittleEndian.AppendUint32(nil, 2000000000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBases(bytes.NewReader(tt.data))
			var se *errors.StructuralError
			assert.True(t, errors.As(err, &se), "got %v", err)
		})
	}
}

func TestTrainBasesDivergingJobCompletes(t *testing.T) {
	row0 := sparse.Row{{Index: 0, Value: 1}}
	row1 := sparse.Row{{Index: 1, Value: 1}}
	jobs := []Job{
		{Labels: []float64{1, 0}, Features: []sparse.Row{row0, row1}},
		{Labels: []float64{0, 1}, Features: []sparse.Row{row0, row1}},
		{},
	}
	opts := Options{Eta: 1e6, Iter: 100, L2: 1, Tol: 0}

	before := testutil.ToFloat64(notConverged)
	var buf bytes.Buffer
	require.NoError(t, TrainBases(context.Background(), &buf, 2, jobs, opts, 2))
	assert.Equal(t, before+2, testutil.ToFloat64(notConverged))

	classifiers, err := LoadBases(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, classifiers, len(jobs))
	for i, c := range classifiers {
		for _, r := range []sparse.Row{row0, row1} {
			p := c.Predict(r)
			assert.False(t, math.IsNaN(p), "classifier %d", i)
		}
	}
}
