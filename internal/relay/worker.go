package relay

import (
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/foxglove-dns/relay/internal/metrics"
	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/wire"
)

// PopTimeout bounds how long a worker blocks on an empty queue before
// looping to re-check for shutdown.
const PopTimeout = 100 * time.Millisecond

// Sender is the minimal socket surface a worker needs to reply; an
// *net.UDPConn satisfies it directly. Parameterized so tests can stub
// sends without a real socket.
type Sender interface {
	WriteToUDP([]byte, *net.UDPAddr) (int, error)
}

// Worker pops tasks off a shared Queue and runs the decision logic
// against a Context until the queue is closed.
type Worker struct {
	ctx   *Context
	queue *Queue
	conn  Sender
	index int
}

// NewWorker builds a Worker bound to ctx, reading from queue and
// writing replies through conn.
func NewWorker(ctx *Context, queue *Queue, conn Sender, index int) *Worker {
	return &Worker{ctx: ctx, queue: queue, conn: conn, index: index}
}

// Run drains the queue until it observes a Shutdown task or the queue
// closes and drains empty.
func (w *Worker) Run() {
	for {
		task, ok := w.queue.Pop(PopTimeout)
		if !ok {
			if w.queue.isClosed() {
				return
			}
			continue
		}
		if task.Kind == Shutdown {
			return
		}
		w.handle(task)
	}
}

func (w *Worker) handle(task Task) {
	msg, err := wire.Parse(task.Data)
	if err != nil {
		metrics.ParseErrors.Inc()
		w.ctx.Log.Warn().Err(err).Str("source", task.Source.String()).Msg("dropping unparseable datagram")
		return
	}

	switch task.Kind {
	case ClientRequest:
		metrics.ClientQueries.Inc()
		w.handleClientRequest(msg, task.Source)
	case UpstreamResponse:
		metrics.UpstreamReplies.Inc()
		w.handleUpstreamResponse(msg)
	}
}

// handleClientRequest implements the override -> cache -> upstream
// decision chain for a query arriving from a client address.
func (w *Worker) handleClientRequest(msg *dns.Msg, source *net.UDPAddr) {
	q, ok := wire.FirstQuestion(msg)
	if !ok {
		metrics.ParseErrors.Inc()
		return
	}
	clientID := wire.TransactionID(msg)

	if res, address := w.ctx.Overrides.Lookup(q.Name, q.Qtype); res != override.NotFound {
		w.replyFromOverride(msg, q, address, source)
		return
	}

	if cached, hit := w.ctx.Cache.Lookup(q.Name, q.Qtype); hit {
		reply := wire.StampReply(cached, clientID, msg.Question[0])
		w.send(reply, source)
		return
	}

	upstreamID, err := w.ctx.Inflight.Register(clientID, source)
	if err != nil {
		w.ctx.Log.Warn().Err(err).Str("domain", q.Name).Msg("dropping client query: could not register transaction")
		return
	}

	endpoint, err := w.ctx.Upstreams.Next()
	if err != nil {
		w.ctx.Log.Warn().Err(err).Msg("dropping client query: upstream pool empty")
		return
	}
	upstreamAddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		w.ctx.Log.Warn().Err(err).Str("endpoint", endpoint).Msg("dropping client query: bad upstream address")
		return
	}

	wire.SetTransactionID(msg, upstreamID)
	w.send(msg, upstreamAddr)
}

func (w *Worker) replyFromOverride(req *dns.Msg, q wire.Question, address string, source *net.UDPAddr) {
	reply, err := wire.BuildOverrideAnswer(req, q, address, wire.DefaultTTL)
	if err != nil {
		w.ctx.Log.Warn().Err(err).Str("domain", q.Name).Str("address", address).Msg("dropping client query: could not build override answer")
		return
	}
	w.send(reply, source)
}

// handleUpstreamResponse correlates a reply with its registered
// transaction, restores the client's original ID, forwards it, and
// caches the answer.
func (w *Worker) handleUpstreamResponse(msg *dns.Msg) {
	upstreamID := wire.TransactionID(msg)
	transaction, ok := w.ctx.Inflight.Take(upstreamID)
	if !ok {
		return
	}

	wire.SetTransactionID(msg, transaction.OriginalID)
	w.send(msg, transaction.ClientAddr)

	q, ok := wire.FirstQuestion(msg)
	if !ok {
		return
	}
	ttl := wire.FirstAnswerTTL(msg)
	w.ctx.Cache.Insert(q.Name, q.Qtype, wire.CloneAnswer(msg), secondsToDuration(ttl))
}

func secondsToDuration(seconds uint32) time.Duration {
	return time.Duration(seconds) * time.Second
}

func (w *Worker) send(msg *dns.Msg, addr *net.UDPAddr) {
	buf, err := wire.Pack(msg)
	if err != nil {
		w.ctx.Log.Warn().Err(err).Msg("dropping reply: could not pack message")
		return
	}
	if _, err := w.conn.WriteToUDP(buf, addr); err != nil {
		metrics.SendErrors.Inc()
		w.ctx.Log.Warn().Err(err).Str("dest", addr.String()).Msg("send failed")
	}
}
