// Package admin serves the relay's HTTP admin surface: Prometheus
// metrics plus a small JSON status/config/shutdown API, grounded on
// mostfunkyduck-funkyd's http.go/prom.go (same gorilla/mux router and
// promhttp.Handler wiring), generalized to report this relay's live
// subsystem stats instead of funkyd's static version/config payloads.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/foxglove-dns/relay/internal/cache"
	"github.com/foxglove-dns/relay/internal/inflight"
	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/upstream"
)

// Status is the payload served at /v1/status.
type Status struct {
	CacheHits        uint64   `json:"cache_hits"`
	CacheMisses      uint64   `json:"cache_misses"`
	CacheEvictions   uint64   `json:"cache_evictions"`
	CacheSize        int      `json:"cache_size"`
	CacheCapacity    int      `json:"cache_capacity"`
	OverrideEntries  int      `json:"override_entries"`
	InflightSize     int64    `json:"inflight_size"`
	InflightFreeIDs  int      `json:"inflight_free_ids"`
	UpstreamPoolSize int      `json:"upstream_pool_size"`
	Upstreams        []string `json:"upstreams"`
}

// Config is the payload served at /v1/config.
type Config struct {
	HTTPPort    int    `json:"http_port"`
	DNSPort     int    `json:"dns_port"`
	UpstreamSet int    `json:"upstream_count"`
	OverrideSet int    `json:"override_entry_count"`
	LogLevel    string `json:"log_level"`
}

// ShutdownFunc is called by the /v1/shutdown handler to begin graceful
// shutdown; it returns immediately and does not block the response.
type ShutdownFunc func()

// Server is the relay's admin HTTP server.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// Deps bundles the subsystems the admin API reports on.
type Deps struct {
	Cache      *cache.Cache
	Overrides  *override.Table
	Inflight   *inflight.Map
	Upstreams  *upstream.Pool
	DNSPort    int
	LogLevel   string
	OnShutdown ShutdownFunc
}

// New builds a Server listening on ":port", not yet started.
func New(port int, deps Deps, log zerolog.Logger) *Server {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(setContentTypeHeader)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/v1/status", statusHandler(deps, log))
	router.HandleFunc("/v1/config", configHandler(deps, log))
	router.HandleFunc("/v1/shutdown", shutdownHandler(deps, log))

	return &Server{
		http: &http.Server{Handler: router, Addr: fmt.Sprintf(":%d", port)},
		log:  log,
	}
}

// Start runs the server in its own goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("admin http server stopped")
		}
	}()
}

// Shutdown stops the server at once, closing its listener and any
// open connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func setContentTypeHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func statusHandler(deps Deps, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := deps.Cache.Stats()
		status := Status{
			CacheHits:        stats.Hits,
			CacheMisses:      stats.Misses,
			CacheEvictions:   stats.Evictions,
			CacheSize:        stats.Size,
			CacheCapacity:    deps.Cache.Capacity(),
			OverrideEntries:  deps.Overrides.Len(),
			InflightSize:     deps.Inflight.Registered(),
			InflightFreeIDs:  deps.Inflight.FreeIDs(),
			UpstreamPoolSize: deps.Upstreams.Len(),
			Upstreams:        deps.Upstreams.Endpoints(),
		}
		writeJSON(w, log, status)
	}
}

func configHandler(deps Deps, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := Config{
			DNSPort:     deps.DNSPort,
			UpstreamSet: deps.Upstreams.Len(),
			OverrideSet: deps.Overrides.Len(),
			LogLevel:    deps.LogLevel,
		}
		writeJSON(w, log, cfg)
	}
}

func shutdownHandler(deps Deps, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"shutting down"}`))
		if deps.OnShutdown != nil {
			go deps.OnShutdown()
		}
	}
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("admin: failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
