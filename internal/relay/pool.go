package relay

import (
	"context"
	"errors"
	"net"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultQueueCapacity mirrors the original thread pool's task queue
// size.
const DefaultQueueCapacity = 20000

// ShutdownTimeout bounds how long Stop waits for the dispatcher and
// worker goroutines to exit after they've been signaled, mirroring the
// timeout_ms parameter of
// _examples/original_source/src/Thread/thread_pool.c's
// thread_pool_stop, left unimplemented there ("TODO: implement timed
// wait logic") but required here.
const ShutdownTimeout = 5 * time.Second

// ErrShutdownTimeout is returned by Stop when the worker pool does not
// finish draining within ShutdownTimeout.
var ErrShutdownTimeout = errors.New("relay: worker pool did not stop within timeout")

// MinWorkers and MaxWorkers bound the worker pool size.
const (
	MinWorkers = 1
	MaxWorkers = 31
)

// NumWorkers picks a worker count of roughly 1.5x the available CPU
// cores, bounded to [MinWorkers, MaxWorkers].
func NumWorkers() int {
	n := runtime.NumCPU() * 3 / 2
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Pool supervises one Dispatcher and its worker goroutines through an
// errgroup, in place of funkyd's golang.org/x/sync/semaphore-based
// connection limiter. Stop waits on the group and returns the
// dispatcher's error, if any; the group's derived context is not used,
// so an error in one goroutine does not stop the others.
type Pool struct {
	dispatcher *Dispatcher
	workers    []*Worker
	group      *errgroup.Group
}

// NewPool builds a Pool with NumWorkers workers reading from a
// DefaultQueueCapacity queue, all bound to ctx and conn.
func NewPool(ctx *Context, conn *net.UDPConn) *Pool {
	capacity := ctx.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	numWorkers := ctx.NumWorkers
	if numWorkers <= 0 {
		numWorkers = NumWorkers()
	}

	queue := NewQueue(capacity)
	dispatcher := NewDispatcher(ctx, queue, conn, numWorkers)
	workers := make([]*Worker, numWorkers)
	for i := range workers {
		workers[i] = NewWorker(ctx, queue, conn, i)
	}

	return &Pool{dispatcher: dispatcher, workers: workers}
}

// Start launches the dispatcher and every worker in their own
// goroutines, returning immediately.
func (p *Pool) Start(ctx context.Context) {
	p.group, _ = errgroup.WithContext(ctx)
	p.group.Go(p.dispatcher.Run)
	for _, w := range p.workers {
		worker := w
		p.group.Go(func() error {
			worker.Run()
			return nil
		})
	}
}

// Stop signals the dispatcher to wind down, which in turn wakes every
// worker, then waits up to ShutdownTimeout for all goroutines to exit.
// A worker stuck in handle() (e.g. a slow WriteToUDP) no longer blocks
// shutdown forever: Stop returns ErrShutdownTimeout instead.
func (p *Pool) Stop() error {
	p.dispatcher.Stop()

	done := make(chan error, 1)
	go func() {
		done <- p.group.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(ShutdownTimeout):
		return ErrShutdownTimeout
	}
}
