package parallel

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/YuminosukeSato/xclf/pkg/errors"
)

// Pool is a fixed set of goroutines consuming submitted jobs. At most
// Size() jobs run at once; Submit blocks while the queue is full.
type Pool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	size      int
	completed *xsync.Counter
}

// NewPool starts workers goroutines. workers <= 0 means GOMAXPROCS.
func NewPool(workers int) *Pool {
	workers = Workers(workers)
	p := &Pool{
		tasks:     make(chan func(), workers),
		size:      workers,
		completed: xsync.NewCounter(),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.completed.Inc()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Completed returns how many jobs have finished, successfully or not.
func (p *Pool) Completed() int64 { return p.completed.Value() }

// Close stops accepting jobs and waits for queued and running jobs to finish.
// Calling Close more than once is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Future is the completion handle of one submitted job.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the job has finished and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Done is closed when the job has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Submit queues fn on p. A panic in fn is reported through the Future as
// *errors.PanicError. Submitting to a closed pool returns a Future that
// already holds errors.ErrPoolClosed.
func Submit[T any](p *Pool, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		f.err = errors.WithStack(errors.ErrPoolClosed)
		close(f.done)
		return f
	}

	p.tasks <- func() {
		defer close(f.done)
		f.err = errors.SafeExecute("parallel.job", func() error {
			var err error
			f.value, err = fn()
			return err
		})
	}
	return f
}
