// Package override implements a segmented local override table: a
// static, admin-loaded name -> records map with ad-block semantics,
// sharded the same way as internal/cache.
//
// Grounded on _examples/original_source/include/DNScache/relayBuild.h's
// domain_table_t/domain_entry_t (hash table + is_blocked flag) for the
// data model, generalized from one flat hash table to many segments.
package override

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"

	"github.com/foxglove-dns/relay/internal/metrics"
	"github.com/foxglove-dns/relay/internal/wire"
)

// DefaultNumSegments is the default segment count.
const DefaultNumSegments = 64

// DefaultBucketsPerSegment sizes each segment's bucket array.
const DefaultBucketsPerSegment = 16

// Result is the outcome of a Table.Lookup call.
type Result int

const (
	NotFound Result = iota
	Blocked
	Address
)

// record is one (qtype, address) pair for a domain.
type record struct {
	qtype   uint16
	address string
}

// entry is one immutable override entry, created at load and never
// mutated for the life of a run.
type entry struct {
	domain  string
	records []record
	next    *entry // hash bucket chain within the owning segment
}

type segment struct {
	mu      sync.RWMutex
	buckets []*entry
	count   int
}

// Table is the segmented override table.
type Table struct {
	segments    []*segment
	numSegments uint32
	numBuckets  uint32
}

// New builds an empty Table with numSegments segments (power of two).
func New(numSegments int) *Table {
	if numSegments <= 0 {
		numSegments = DefaultNumSegments
	}
	t := &Table{numSegments: uint32(numSegments), numBuckets: DefaultBucketsPerSegment}
	t.segments = make([]*segment, numSegments)
	for i := range t.segments {
		t.segments[i] = &segment{buckets: make([]*entry, DefaultBucketsPerSegment)}
	}
	return t
}

func hashDomain(domain string) uint64 {
	return xxhash.Sum64String(domain)
}

func (t *Table) route(domain string) (*segment, uint32) {
	h := hashDomain(domain)
	seg := t.segments[uint32(h)&(t.numSegments-1)]
	bucket := uint32(h>>32) & (t.numBuckets - 1)
	return seg, bucket
}

// Lookup returns the first matching address of qtype for domain, or
// Blocked if that address is the block sentinel, or NotFound if the
// domain is absent or has no record of that qtype.
func (t *Table) Lookup(domain string, qtype uint16) (Result, string) {
	domain = dns.CanonicalName(domain)
	seg, bucket := t.route(domain)

	seg.mu.RLock()
	defer seg.mu.RUnlock()

	for e := seg.buckets[bucket]; e != nil; e = e.next {
		if e.domain != domain {
			continue
		}
		for _, r := range e.records {
			if r.qtype != qtype {
				continue
			}
			if wire.IsBlockSentinel(qtype, r.address) {
				metrics.OverrideBlocked.Inc()
				return Blocked, r.address
			}
			metrics.OverrideHits.Inc()
			return Address, r.address
		}
		return NotFound, ""
	}
	return NotFound, ""
}

// add inserts one (qtype, address) record for domain, merging into an
// existing entry for that domain if present. Used only by the loader,
// both at startup and during a hot reload while readers are active; it
// holds the segment write lock for the update.
func (t *Table) add(domain string, qtype uint16, address string) {
	domain = dns.CanonicalName(domain)
	seg, bucket := t.route(domain)

	seg.mu.Lock()
	defer seg.mu.Unlock()

	for e := seg.buckets[bucket]; e != nil; e = e.next {
		if e.domain == domain {
			e.records = append(e.records, record{qtype: qtype, address: address})
			return
		}
	}

	e := &entry{
		domain:  domain,
		records: []record{{qtype: qtype, address: address}},
		next:    seg.buckets[bucket],
	}
	seg.buckets[bucket] = e
	seg.count++
	metrics.OverrideEntries.Inc()
}

// Reset clears every segment, used before a hot reload repopulates the
// table from a changed override file so stale entries don't linger
// alongside the new ones.
func (t *Table) Reset() {
	for _, seg := range t.segments {
		seg.mu.Lock()
		metrics.OverrideEntries.Sub(float64(seg.count))
		seg.buckets = make([]*entry, t.numBuckets)
		seg.count = 0
		seg.mu.Unlock()
	}
}

// Len returns the total number of distinct domains loaded.
func (t *Table) Len() int {
	n := 0
	for _, seg := range t.segments {
		seg.mu.RLock()
		n += seg.count
		seg.mu.RUnlock()
	}
	return n
}
