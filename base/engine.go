package base

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/YuminosukeSato/xclf/core/parallel"
	"github.com/YuminosukeSato/xclf/core/sparse"
	"github.com/YuminosukeSato/xclf/pkg/errors"
	"github.com/YuminosukeSato/xclf/pkg/log"
)

// Job is the training set of one classifier.
type Job struct {
	Labels   []float64
	Features []sparse.Row
	Weights  []float64
}

// TrainBases trains one classifier per job, each on its own rows, and
// writes the int32 job count followed by the classifiers in job order.
func TrainBases(ctx context.Context, w io.Writer, dims int, jobs []Job, opts Options, threads int) error {
	return trainOrdered(ctx, w, len(jobs), opts, threads, func(i int) (*Classifier, error) {
		j := jobs[i]
		return Train(dims, j.Labels, j.Features, j.Weights, opts)
	})
}

// TrainBasesWithSameFeatures trains one classifier per label vector, all
// against the same rows. weights may be nil, or hold one vector per job
// (entries may be nil).
func TrainBasesWithSameFeatures(ctx context.Context, w io.Writer, dims int, labels [][]float64, features []sparse.Row, weights [][]float64, opts Options, threads int) error {
	if weights != nil && len(weights) != len(labels) {
		return errors.NewDimensionError("base.TrainBasesWithSameFeatures", len(labels), len(weights), 0)
	}
	return trainOrdered(ctx, w, len(labels), opts, threads, func(i int) (*Classifier, error) {
		var wi []float64
		if weights != nil {
			wi = weights[i]
		}
		return Train(dims, labels[i], features, wi, opts)
	})
}

// trainOrdered runs train for every index on a pool and writes results in
// index order. The writer waits on each future in turn, so the output only
// depends on submission order. Submission runs at most a few pool widths
// ahead of the writer.
//
// After the first failure no more jobs are submitted, every job already
// submitted is still awaited, and the first failure is returned.
func trainOrdered(ctx context.Context, w io.Writer, n int, opts Options, threads int, train func(i int) (*Classifier, error)) error {
	logger := log.GetLoggerWithName("base")
	start := time.Now()

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, byteOrder, int32(n)); err != nil {
		return errors.Wrap(err, "failed to write classifier count")
	}

	pool := parallel.NewPool(threads)
	defer pool.Close()

	logger.Info("Training base classifiers",
		log.JobsKey, n,
		log.ThreadsKey, pool.Size(),
	)

	var (
		firstErr error
		next     int
		degen    int
		stalled  int
	)
	written := xsync.NewCounter()
	step := progressStep(n)
	window := 4 * pool.Size()
	pending := make([]*parallel.Future[*Classifier], 0, window)

	drainOne := func(f *parallel.Future[*Classifier]) {
		idx := next
		next++
		c, jobErr := f.Wait()
		if firstErr != nil {
			return
		}
		if jobErr != nil {
			firstErr = errors.Wrapf(jobErr, "training base classifier %d", idx)
			return
		}
		if err := c.Encode(bw, opts.WeightsThreshold); err != nil {
			firstErr = errors.Wrapf(err, "writing base classifier %d", idx)
			return
		}

		classifiersTrained.WithLabelValues(c.Kind().String()).Inc()
		if c.Kind() == KindConstant {
			degen++
			degenerateJobs.Inc()
			logger.Debug("Degenerate job produced a constant classifier", "node", idx, "prob", c.prob)
		} else if !c.Converged() {
			stalled++
			notConverged.Inc()
		}

		written.Inc()
		if done := written.Value(); done%step == 0 || done == int64(n) {
			logger.Info("Training progress",
				log.CompletedKey, done,
				log.JobsKey, n,
			)
		}
	}

	for i := 0; i < n && firstErr == nil; i++ {
		if cerr := ctx.Err(); cerr != nil {
			firstErr = errors.Wrap(cerr, "training cancelled")
			break
		}
		i := i
		pending = append(pending, parallel.Submit(pool, func() (c *Classifier, err error) {
			defer errors.Recover(&err, fmt.Sprintf("base.train[%d]", i))
			return train(i)
		}))
		if len(pending) >= window {
			drainOne(pending[0])
			pending = pending[1:]
		}
	}
	for _, f := range pending {
		drainOne(f)
	}

	if firstErr != nil {
		failedBatches.Inc()
		logger.Error("Base classifier training failed", firstErr, log.CompletedKey, written.Value())
		return firstErr
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush classifiers")
	}

	batchDuration.Observe(time.Since(start).Seconds())
	if stalled > 0 {
		errors.Warn(errors.NewConvergenceWarning("logistic", opts.Iter,
			fmt.Sprintf("%d of %d base classifiers", stalled, n)))
	}
	logger.Info("Base classifiers trained",
		log.JobsKey, n,
		"degenerate", degen,
		log.NotConvergedKey, stalled,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func progressStep(n int) int64 {
	step := int64(n / 10)
	if step < 1 {
		step = 1
	}
	return step
}

// SaveBases writes an already trained collection in the TrainBases format.
func SaveBases(w io.Writer, classifiers []*Classifier, threshold float64) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, byteOrder, int32(len(classifiers))); err != nil {
		return errors.Wrap(err, "failed to write classifier count")
	}
	for i, c := range classifiers {
		if err := c.Encode(bw, threshold); err != nil {
			return errors.Wrapf(err, "writing base classifier %d", i)
		}
	}
	return errors.Wrap(bw.Flush(), "failed to flush classifiers")
}

// LoadBases reads a collection written by TrainBases or SaveBases.
func LoadBases(r io.Reader) ([]*Classifier, error) {
	br := bufio.NewReader(r)
	var n int32
	if err := binary.Read(br, byteOrder, &n); err != nil {
		return nil, structural(err, "classifier count")
	}
	if n < 0 {
		return nil, errors.NewStructuralError("base.LoadBases", "negative classifier count %d", n)
	}

	classifiers := make([]*Classifier, 0, min(int(n), maxPrealloc))
	for i := int32(0); i < n; i++ {
		c, err := Decode(br)
		if err != nil {
			return nil, errors.Wrapf(err, "loading base classifier %d of %d", i, n)
		}
		classifiers = append(classifiers, c)
	}
	return classifiers, nil
}
