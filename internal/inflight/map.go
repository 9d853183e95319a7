// Package inflight implements the in-flight transaction map: it
// multiplexes many concurrent client queries onto one upstream-facing
// ID space, correlating each upstream reply back to the client that
// originated it.
//
// Grounded on _examples/original_source/include/idmapping/idmapping.h
// (the original unsegmented, linearly-scanned table) for the data
// tracked per transaction, redesigned here into a segmented arena with
// a shared ID stack for concurrent access from many worker goroutines.
package inflight

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/foxglove-dns/relay/internal/metrics"
)

// DefaultNumSegments is the default segment count.
const DefaultNumSegments = 64

// DefaultBucketsPerSegment sizes each segment's bucket array.
const DefaultBucketsPerSegment = 64

// DefaultCapacity is the default transaction arena size.
const DefaultCapacity = 50000

// DefaultTimeout is the default upstream reply wait before a
// transaction is considered abandoned and reclaimed by a sweep.
const DefaultTimeout = 4 * time.Second

// ErrNoFreeID is returned by Register when the shared ID stack is
// exhausted.
var ErrNoFreeID = errors.New("inflight: no free upstream id")

// ErrArenaExhausted is returned by Register when the entry arena is full.
var ErrArenaExhausted = errors.New("inflight: entry arena exhausted")

// Transaction is what Take returns: the client-return context a
// matching Register call stored.
type Transaction struct {
	OriginalID uint16
	ClientAddr *net.UDPAddr
}

// Map is the segmented in-flight transaction map.
type Map struct {
	arena   *arena
	ids     *idStack
	segments []*segment

	numSegments uint32
	numBuckets  uint32

	registered atomic.Int64
	now        func() time.Time
}

// Option configures a Map at construction.
type Option func(*Map)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Map) { m.now = now }
}

// New builds a Map with the given entry-arena capacity and segment
// count (numSegments must be a power of two).
func New(capacity, numSegments int, opts ...Option) *Map {
	if numSegments <= 0 {
		numSegments = DefaultNumSegments
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	m := &Map{
		arena:       newArena(capacity),
		ids:         newIDStack(),
		numSegments: uint32(numSegments),
		numBuckets:  uint32(DefaultBucketsPerSegment),
		now:         time.Now,
	}
	m.segments = make([]*segment, numSegments)
	for i := range m.segments {
		m.segments[i] = newSegment(DefaultBucketsPerSegment)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Map) segmentFor(upstreamID uint16) (*segment, uint32) {
	segIdx := uint32(upstreamID) & (m.numSegments - 1)
	bucket := (uint32(upstreamID) >> bitsFor(m.numSegments)) & (m.numBuckets - 1)
	return m.segments[segIdx], bucket
}

// bitsFor returns log2(n) for a power-of-two n, used to take the next
// slice of upstreamID's bits for bucket routing after the low bits
// already picked the segment.
func bitsFor(n uint32) uint32 {
	bits := uint32(0)
	for n > 1 {
		n >>= 1
		bits++
	}
	return bits
}

// Register allocates a free upstream ID and records the client context.
// Lock order is arena mutex -> ID stack mutex -> segment write lock.
// Any resource acquired before a failure is released before returning
// the error.
func (m *Map) Register(clientID uint16, clientAddr *net.UDPAddr) (uint16, error) {
	idx, ok := m.arena.alloc()
	if !ok {
		metrics.InflightRegisterFailures.Inc()
		return 0, ErrArenaExhausted
	}

	upstreamID, ok := m.ids.pop()
	if !ok {
		m.arena.free(idx)
		metrics.InflightRegisterFailures.Inc()
		return 0, ErrNoFreeID
	}

	e := m.arena.get(idx)
	*e = entry{
		inUse:      true,
		originalID: clientID,
		upstreamID: upstreamID,
		clientAddr: clientAddr,
		timestamp:  m.now().Unix(),
	}

	seg, bucket := m.segmentFor(upstreamID)
	seg.mu.Lock()
	seg.linkBucket(m.arena, bucket, idx)
	seg.fifoAppend(m.arena, idx)
	seg.size++
	seg.mu.Unlock()

	m.registered.Add(1)
	metrics.InflightRegistered.Inc()
	metrics.InflightSize.Inc()
	return upstreamID, nil
}

// Take atomically looks up and removes the entry for upstreamID,
// returning the stored client context. A miss is a normal event (a
// stale or forged reply) and is not an error.
//
// Lock discipline: segment write lock -> arena mutex (return slot) ->
// ID stack mutex (return ID), each pair released before the next is
// acquired.
func (m *Map) Take(upstreamID uint16) (Transaction, bool) {
	seg, bucket := m.segmentFor(upstreamID)

	seg.mu.Lock()
	idx, found := seg.findByUpstreamID(m.arena, bucket, upstreamID)
	if !found {
		seg.mu.Unlock()
		metrics.InflightUnknown.Inc()
		return Transaction{}, false
	}
	seg.unlinkBucket(m.arena, bucket, idx)
	seg.fifoRemove(m.arena, idx)
	seg.size--
	e := m.arena.get(idx)
	ctx := Transaction{OriginalID: e.originalID, ClientAddr: e.clientAddr}
	seg.mu.Unlock()

	m.arena.free(idx)
	m.ids.push(upstreamID)

	m.registered.Add(-1)
	metrics.InflightTaken.Inc()
	metrics.InflightSize.Dec()
	return ctx, true
}

// SweepExpired reclaims transactions older than timeout, returning the
// count reclaimed. Each segment's FIFO is walked from the head (oldest)
// and at most CleanupBatchSize entries are removed per segment per
// call.
const CleanupBatchSize = 100

func (m *Map) SweepExpired(timeout time.Duration) int {
	now := m.now().Unix()
	removed := 0
	for _, seg := range m.segments {
		removed += m.sweepSegment(seg, now, timeout)
	}
	return removed
}

func (m *Map) sweepSegment(seg *segment, now int64, timeout time.Duration) int {
	timeoutSecs := int64(timeout / time.Second)

	// Collect expired indices under the segment lock, then release
	// before touching the arena/ID-stack locks, per the mandated
	// pairwise-release discipline.
	seg.mu.Lock()
	var expired []int32
	var expiredIDs []uint16
	idx := seg.fifoHead
	for idx != nilIndex && len(expired) < CleanupBatchSize {
		e := m.arena.get(idx)
		if now-e.timestamp <= timeoutSecs {
			break
		}
		next := e.fifoNext
		bucket := (uint32(e.upstreamID) >> bitsFor(m.numSegments)) & (m.numBuckets - 1)
		seg.unlinkBucket(m.arena, bucket, idx)
		seg.fifoRemove(m.arena, idx)
		seg.size--
		expired = append(expired, idx)
		expiredIDs = append(expiredIDs, e.upstreamID)
		idx = next
	}
	seg.mu.Unlock()

	for _, i := range expired {
		m.arena.free(i)
	}
	for _, id := range expiredIDs {
		m.ids.push(id)
	}
	if n := len(expired); n > 0 {
		m.registered.Add(-int64(n))
		metrics.InflightExpired.Add(float64(n))
		metrics.InflightSize.Sub(float64(n))
	}
	return len(expired)
}

// Registered returns the current count of live transactions.
func (m *Map) Registered() int64 {
	return m.registered.Load()
}

// FreeIDs returns the current count of unallocated upstream IDs.
// Registered()+FreeIDs() == 65535 at all times.
func (m *Map) FreeIDs() int {
	return m.ids.size()
}
