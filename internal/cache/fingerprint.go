package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// fingerprint is the cache key: a normalized (lowercased) domain name
// paired with a query type.
type fingerprint struct {
	name  string
	qtype uint16
}

// hash64 mixes the name and qtype into one stable 64-bit hash, grounded
// on semihalev-sdns's cache sharding, by hashing "<name>:<qtype>".
func (fp fingerprint) hash64() uint64 {
	return xxhash.Sum64String(fp.name + ":" + strconv.FormatUint(uint64(fp.qtype), 10))
}

// segmentIndex and bucketIndex derive from disjoint halves of the same
// 64-bit hash so that distinct fingerprints routed to the same segment
// still spread across that segment's buckets.
func segmentIndex(h uint64, numSegments uint32) uint32 {
	return uint32(h) & (numSegments - 1)
}

func bucketIndex(h uint64, numBuckets uint32) uint32 {
	return uint32(h>>32) & (numBuckets - 1)
}
