// Package cache implements a segmented DNS answer cache: a fixed arena
// of entry slots sharded across a power-of-two number of segments, each
// with its own RWMutex, bucket array, and intrusive LRU list, giving
// O(1) lookup/insert/promote/evict under concurrent access from many
// worker goroutines.
//
// Grounded on _examples/original_source/include/DNScache/relayBuild.h
// (dns_lru_cache_t / dns_cache_segment_t) for the segmented-arena shape,
// and on mostfunkyduck-funkyd/cache.go for the Go-idiomatic
// Get/Add/Clean surface and TTL bookkeeping this replaces.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/miekg/dns"

	"github.com/foxglove-dns/relay/internal/metrics"
)

const (
	// DefaultTTLIfZero is substituted when an insert's ttl is zero.
	DefaultTTLIfZero = 300 * time.Second

	// CleanupBatchSize bounds how many expired entries sweepExpired
	// removes per segment per call, so a caller can amortize sweeping.
	CleanupBatchSize = 100

	// DefaultNumSegments is the default segment count.
	DefaultNumSegments = 64

	// DefaultBucketsPerSegment sizes each segment's own bucket array.
	DefaultBucketsPerSegment = 64

	// DefaultCapacity is the default total arena size.
	DefaultCapacity = 20000
)

// Stats is the snapshot returned by Cache.Stats().
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Cache is a segmented, TTL- and LRU-bounded answer cache.
type Cache struct {
	arena    *arena
	segments []*segment

	numSegments uint32
	numBuckets  uint32 // per-segment bucket count

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	now func() time.Time
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a Cache with the given total capacity and segment count.
// numSegments must be a power of two; capacity is divided evenly
// across segments.
func New(capacity, numSegments int, opts ...Option) *Cache {
	if numSegments <= 0 {
		numSegments = DefaultNumSegments
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	perSegment := capacity / numSegments
	if perSegment < 1 {
		perSegment = 1
	}

	c := &Cache{
		arena:       newArena(perSegment * numSegments),
		numSegments: uint32(numSegments),
		numBuckets:  uint32(DefaultBucketsPerSegment),
		now:         time.Now,
	}
	c.segments = make([]*segment, numSegments)
	for i := range c.segments {
		c.segments[i] = newSegment(DefaultBucketsPerSegment, perSegment)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) route(fp fingerprint) (*segment, uint32, uint64) {
	h := fp.hash64()
	seg := c.segments[segmentIndex(h, c.numSegments)]
	bucket := bucketIndex(h, c.numBuckets)
	return seg, bucket, h
}

// Lookup returns the cached answer for (domain, qtype) if a live entry
// exists: a read-lock walk followed by a write-lock promote-to-head on
// hit.
func (c *Cache) Lookup(domain string, qtype uint16) (*dns.Msg, bool) {
	fp := fingerprint{name: domain, qtype: qtype}
	seg, bucket, _ := c.route(fp)

	seg.mu.RLock()
	idx, found := seg.findInBucket(c.arena, bucket, fp)
	if !found {
		seg.mu.RUnlock()
		c.recordMiss()
		return nil, false
	}
	seg.mu.RUnlock()

	seg.mu.Lock()
	defer seg.mu.Unlock()

	// Re-verify: another writer may have evicted or refreshed this
	// fingerprint between the unlock above and taking the write lock.
	idx, found = seg.findInBucket(c.arena, bucket, fp)
	if !found {
		c.recordMiss()
		return nil, false
	}
	e := c.arena.get(idx)
	now := c.now().Unix()
	if e.expiry < now {
		c.recordMiss()
		return nil, false
	}

	e.access = now
	seg.lruPromote(c.arena, idx)
	c.recordHit()
	return e.answer.Copy(), true
}

// Insert inserts or refreshes the answer for (domain, qtype). A zero
// ttl is replaced with DefaultTTLIfZero. Arena exhaustion is silent:
// the insert becomes a no-op and a counter is incremented.
func (c *Cache) Insert(domain string, qtype uint16, answer *dns.Msg, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTLIfZero
	}
	fp := fingerprint{name: domain, qtype: qtype}
	seg, bucket, _ := c.route(fp)
	now := c.now().Unix()
	expiry := c.now().Add(ttl).Unix()

	seg.mu.Lock()
	defer seg.mu.Unlock()

	if idx, found := seg.findInBucket(c.arena, bucket, fp); found {
		e := c.arena.get(idx)
		e.answer = answer.Copy()
		e.expiry = expiry
		e.access = now
		seg.lruPromote(c.arena, idx)
		return
	}

	if seg.size >= seg.capacity {
		c.evictTail(seg, bucket)
	}

	idx, ok := c.arena.alloc()
	if !ok {
		metrics.CacheInsertFailures.Inc()
		return
	}

	e := c.arena.get(idx)
	*e = entry{
		inUse:  true,
		fp:     fp,
		answer: answer.Copy(),
		expiry: expiry,
		access: now,
	}
	seg.linkBucket(c.arena, bucket, idx)
	seg.lruPushHead(c.arena, idx)
	seg.size++
	metrics.CacheSize.Inc()
}

// evictTail removes the segment's LRU tail entry to make room for a new
// insert. Caller must hold the segment write lock. The second
// parameter is unused: the evicted entry may be in any bucket, so its
// bucket is recomputed from its own fingerprint.
func (c *Cache) evictTail(seg *segment, _ uint32) {
	idx := seg.lruTail
	if idx == nilIndex {
		return
	}
	e := c.arena.get(idx)
	tailBucket := bucketIndex(e.fp.hash64(), c.numBuckets)
	seg.unlinkBucket(c.arena, tailBucket, idx)
	seg.lruUnlink(c.arena, idx)
	seg.size--
	c.arena.free(idx)
	c.evictions.Add(1)
	metrics.CacheEvictions.Inc()
	metrics.CacheSize.Dec()
}

// SweepExpired walks each segment's LRU tail forward while entries are
// expired, removing up to CleanupBatchSize per segment.
func (c *Cache) SweepExpired() int {
	now := c.now().Unix()
	removed := 0
	for _, seg := range c.segments {
		removed += c.sweepSegment(seg, now)
	}
	return removed
}

func (c *Cache) sweepSegment(seg *segment, now int64) int {
	seg.mu.Lock()
	defer seg.mu.Unlock()

	removed := 0
	idx := seg.lruTail
	for idx != nilIndex && removed < CleanupBatchSize {
		e := c.arena.get(idx)
		if e.expiry >= now {
			break
		}
		prev := e.lruPrev
		bucket := bucketIndex(e.fp.hash64(), c.numBuckets)
		seg.unlinkBucket(c.arena, bucket, idx)
		seg.lruUnlink(c.arena, idx)
		seg.size--
		c.arena.free(idx)
		removed++
		c.evictions.Add(1)
		metrics.CacheEvictions.Inc()
		metrics.CacheSize.Dec()
		idx = prev
	}
	return removed
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	metrics.CacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	metrics.CacheMisses.Inc()
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	size := 0
	for _, seg := range c.segments {
		seg.mu.RLock()
		size += seg.size
		seg.mu.RUnlock()
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
	}
}

// Capacity returns the arena's total slot count.
func (c *Cache) Capacity() int {
	return c.arena.capacity()
}
