package relay

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/foxglove-dns/relay/internal/cache"
	"github.com/foxglove-dns/relay/internal/inflight"
	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/upstream"
)

// Context bundles the relay's shared subsystems as an explicit
// singleton passed to the dispatcher and every worker, replacing the
// module-level globals funkyd and the original C source both use.
// Tests construct independent contexts so subsystem state never leaks
// between test cases.
type Context struct {
	Cache     *cache.Cache
	Overrides *override.Table
	Inflight  *inflight.Map
	Upstreams *upstream.Pool
	Log       zerolog.Logger

	QueueCapacity  int
	NumWorkers     int
	RequestTimeout time.Duration
}

// NewContext builds a Context from already-constructed subsystems.
func NewContext(c *cache.Cache, o *override.Table, i *inflight.Map, u *upstream.Pool, log zerolog.Logger) *Context {
	return &Context{
		Cache:     c,
		Overrides: o,
		Inflight:  i,
		Upstreams: u,
		Log:       log,
	}
}
