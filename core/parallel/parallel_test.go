package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xclf/pkg/errors"
)

func TestRanges(t *testing.T) {
	tests := []struct {
		items, workers int
		want           [][2]int
	}{
		{0, 4, nil},
		{10, 3, [][2]int{{0, 4}, {4, 8}, {8, 10}}},
		{2, 8, [][2]int{{0, 1}, {1, 2}}},
		{5, 1, [][2]int{{0, 5}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.items, tt.workers), func(t *testing.T) {
			assert.Equal(t, tt.want, Ranges(tt.items, tt.workers))
		})
	}
}

func TestParallelizeNCoversEverySlotOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 7, 64} {
		out := make([]int32, 100)
		ParallelizeN(len(out), workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&out[i], 1)
			}
		})
		for i, v := range out {
			require.Equal(t, int32(1), v, "slot %d with %d workers", i, workers)
		}
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, int32(1), calls)
}

func TestParallelizeErrReturnsPanic(t *testing.T) {
	err := ParallelizeErr(context.Background(), 8, 4, func(_ context.Context, start, end int) error {
		if start == 0 {
			panic("bad block")
		}
		return nil
	})

	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr), "got %v", err)
	assert.Equal(t, "bad block", panicErr.PanicValue)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	var running, peak int32
	futures := make([]*Future[int], 20)
	for i := range futures {
		i := i
		futures[i] = Submit(p, func() (int, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			return i * i, nil
		})
	}

	for i, f := range futures {
		v, err := f.Wait()
		require.NoError(t, err)
		assert.Equal(t, i*i, v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, 3, p.Size())
}

func TestPoolCapturesFailures(t *testing.T) {
	p := NewPool(2)

	failed := Submit(p, func() (string, error) { return "", errors.New("job failed") })
	panicked := Submit(p, func() (string, error) { panic("worker crashed") })
	ok := Submit(p, func() (string, error) { return "fine", nil })

	_, err := failed.Wait()
	assert.EqualError(t, err, "job failed")

	_, err = panicked.Wait()
	var panicErr *errors.PanicError
	assert.True(t, errors.As(err, &panicErr))

	v, err := ok.Wait()
	require.NoError(t, err)
	assert.Equal(t, "fine", v)

	p.Close()
	assert.Equal(t, int64(3), p.Completed())
}

func TestSubmitAfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()
	p.Close()

	f := Submit(p, func() (int, error) { return 1, nil })
	select {
	case <-f.Done():
	default:
		t.Fatal("future of a rejected job should already be resolved")
	}
	_, err := f.Wait()
	assert.True(t, errors.Is(err, errors.ErrPoolClosed))
}
