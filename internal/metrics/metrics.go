// Package metrics collects the relay's Prometheus counters and gauges.
//
// Grounded on funkyd/prom.go (promauto-registered counters/gauges served
// over an HTTP mux), generalized from funkyd's recursive-resolver metrics
// to this relay's cache/override/inflight/dispatcher counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_hits_total",
		Help: "Answer cache lookups that hit a live entry.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_misses_total",
		Help: "Answer cache lookups that missed or found an expired entry.",
	})
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_evictions_total",
		Help: "Entries evicted from the answer cache (LRU tail or expiry sweep).",
	})
	CacheInsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_insert_failures_total",
		Help: "Cache inserts dropped because the arena had no free slot.",
	})
	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_cache_entries",
		Help: "Live entries currently held by the answer cache.",
	})

	OverrideHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_override_hits_total",
		Help: "Override-table lookups that matched an address.",
	})
	OverrideBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_override_blocked_total",
		Help: "Override-table lookups that matched a blocked sentinel.",
	})
	OverrideEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_override_entries",
		Help: "Domains currently loaded into the override table.",
	})
	OverrideLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_override_load_errors_total",
		Help: "Malformed override file lines skipped at load.",
	})

	InflightRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inflight_registered_total",
		Help: "Transactions successfully registered for an upstream forward.",
	})
	InflightRegisterFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inflight_register_failures_total",
		Help: "Register calls that failed (no free ID or arena exhausted).",
	})
	InflightTaken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inflight_taken_total",
		Help: "Upstream replies matched to a registered transaction.",
	})
	InflightUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inflight_unknown_total",
		Help: "Upstream replies with no matching transaction (dropped).",
	})
	InflightExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inflight_expired_total",
		Help: "Transactions reclaimed by the periodic expiry sweep.",
	})
	InflightSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_inflight_entries",
		Help: "Transactions currently awaiting an upstream reply.",
	})

	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_queue_drops_total",
		Help: "Datagrams dropped because the task queue was full.",
	})
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_parse_errors_total",
		Help: "Datagrams dropped because they failed to parse as DNS messages.",
	})
	ClientQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_client_queries_total",
		Help: "Datagrams classified as client queries.",
	})
	UpstreamReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_upstream_replies_total",
		Help: "Datagrams classified as upstream replies.",
	})
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_errors_total",
		Help: "Datagram sends (replies or upstream forwards) that returned an error.",
	})
)
