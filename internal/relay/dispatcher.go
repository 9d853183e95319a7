package relay

import (
	"net"
	"time"

	"github.com/foxglove-dns/relay/internal/metrics"
)

// ReadTimeout bounds how long the dispatcher waits for the socket to
// become readable before it re-checks the sweep/status/shutdown
// timers.
const ReadTimeout = 1 * time.Second

// SweepInterval is how often the dispatcher reclaims expired
// transactions and cache entries.
const SweepInterval = 10 * time.Second

// StatusInterval is how often the dispatcher logs a status snapshot.
const StatusInterval = 30 * time.Second

// MaxDatagramSize is large enough for any UDP DNS message this relay
// forwards (EDNS(0) size negotiation is out of scope).
const MaxDatagramSize = 4096

// Dispatcher owns the single UDP socket: it reads, classifies, and
// enqueues datagrams for the worker pool, and drives the periodic
// sweep/status ticks.
type Dispatcher struct {
	ctx        *Context
	queue      *Queue
	conn       *net.UDPConn
	numWorkers int

	shutdown chan struct{}
	done     chan struct{}
}

// NewDispatcher builds a Dispatcher bound to conn, feeding queue.
// numWorkers is used to enqueue exactly that many Shutdown tasks when
// Stop is called, so every worker observes one and exits.
func NewDispatcher(ctx *Context, queue *Queue, conn *net.UDPConn, numWorkers int) *Dispatcher {
	return &Dispatcher{
		ctx:        ctx,
		queue:      queue,
		conn:       conn,
		numWorkers: numWorkers,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drives the dispatcher loop until Stop is called. It is meant to
// run in its own goroutine, supervised by an errgroup.
func (d *Dispatcher) Run() error {
	defer close(d.done)

	lastSweep := time.Now()
	lastStatus := time.Now()
	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-d.shutdown:
			return nil
		default:
		}

		if err := d.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return err
		}

		d.drain(buf)

		now := time.Now()
		if now.Sub(lastSweep) >= SweepInterval {
			d.sweep()
			lastSweep = now
		}
		if now.Sub(lastStatus) >= StatusInterval {
			d.logStatus()
			lastStatus = now
		}
	}
}

// drain reads datagrams until a read fails, normally because the read
// deadline set by Run has passed, classifying and enqueueing each one.
func (d *Dispatcher) drain(buf []byte) {
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		kind := ClientRequest
		if d.ctx.Upstreams.Contains(addr.String()) {
			kind = UpstreamResponse
		}

		task := Task{Data: data, Source: addr, Kind: kind, CreatedAt: time.Now()}
		if !d.queue.Push(task) {
			metrics.QueueDrops.Inc()
			d.ctx.Log.Warn().Str("source", addr.String()).Msg("dropping datagram: queue full")
		}
	}
}

func (d *Dispatcher) sweep() {
	timeout := d.ctx.RequestTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	expired := d.ctx.Inflight.SweepExpired(timeout)
	evicted := d.ctx.Cache.SweepExpired()
	d.ctx.Log.Debug().Int("transactions_expired", expired).Int("cache_evicted", evicted).Msg("periodic sweep")
}

func (d *Dispatcher) logStatus() {
	stats := d.ctx.Cache.Stats()
	d.ctx.Log.Info().
		Int64("inflight", d.ctx.Inflight.Registered()).
		Uint64("cache_hits", stats.Hits).
		Uint64("cache_misses", stats.Misses).
		Int("cache_size", stats.Size).
		Int("queue_depth", d.queue.Len()).
		Msg("status")
}

// Stop signals the dispatcher to exit its loop, enqueues a Shutdown
// task per worker, and closes the queue so any worker still blocked on
// an empty queue wakes up.
func (d *Dispatcher) Stop() {
	close(d.shutdown)
	<-d.done
	for i := 0; i < d.numWorkers; i++ {
		d.queue.Push(Task{Kind: Shutdown, CreatedAt: time.Now()})
	}
	d.queue.Close()
}
