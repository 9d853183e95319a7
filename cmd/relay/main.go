// Command relay runs the DNS relay: a segmented cache and override
// table in front of an upstream resolver pool, with a worker-pool UDP
// dispatcher and an admin HTTP API, following mostfunkyduck-funkyd's
// main.go for the overall wiring order (config, then server, then
// listen) generalized to this relay's extra subsystems.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/foxglove-dns/relay/internal/admin"
	"github.com/foxglove-dns/relay/internal/cache"
	"github.com/foxglove-dns/relay/internal/config"
	"github.com/foxglove-dns/relay/internal/inflight"
	"github.com/foxglove-dns/relay/internal/logging"
	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/relay"
	"github.com/foxglove-dns/relay/internal/upstream"
)

func main() {
	if err := config.Parse(os.Args[1:], run); err != nil {
		os.Exit(1)
	}
}

func run(opts config.Options) error {
	logging.Init(os.Stderr, config.ResolveLevel(opts))
	log := logging.For("main")
	log.Info().Str("options", opts.String()).Msg("starting relay")

	upstreams := upstream.New()
	if opts.UpstreamFile != "" {
		n, err := upstream.Load(upstreams, opts.UpstreamFile, logging.For("upstream"))
		if err != nil {
			log.Error().Err(err).Str("path", opts.UpstreamFile).Msg("could not load upstream pool")
			return err
		}
		log.Info().Int("count", n).Msg("loaded upstream pool")
	}
	if upstreams.Len() == 0 {
		log.Warn().Msg("no upstream resolvers configured; all cache/override misses will fail")
	}

	overrides := override.New(override.DefaultNumSegments)
	if opts.OverrideFile != "" {
		if err := override.Load(overrides, opts.OverrideFile, logging.For("override")); err != nil {
			log.Error().Err(err).Str("path", opts.OverrideFile).Msg("could not load override table")
			return err
		}
		log.Info().Int("domains", overrides.Len()).Msg("loaded override table")
	}

	answerCache := cache.New(cache.DefaultCapacity, cache.DefaultNumSegments)
	transactions := inflight.New(inflight.DefaultCapacity, inflight.DefaultNumSegments)

	watcher, err := config.NewWatcher(opts.OverrideFile, opts.UpstreamFile, overrides, upstreams, logging.For("watcher"))
	if err != nil {
		log.Error().Err(err).Msg("could not start config file watcher")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher stopped")
		}
	}()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: opts.DNSPort})
	if err != nil {
		log.Error().Err(err).Int("port", opts.DNSPort).Msg("could not bind DNS listener")
		return err
	}
	defer conn.Close()

	relayCtx := relay.NewContext(answerCache, overrides, transactions, upstreams, logging.For("relay"))
	pool := relay.NewPool(relayCtx, conn)
	pool.Start(ctx)
	log.Info().Int("port", opts.DNSPort).Msg("DNS relay listening")

	adminServer := admin.New(opts.HTTPPort, admin.Deps{
		Cache:      answerCache,
		Overrides:  overrides,
		Inflight:   transactions,
		Upstreams:  upstreams,
		DNSPort:    opts.DNSPort,
		LogLevel:   opts.LogLevel,
		OnShutdown: func() { cancel() },
	}, logging.For("admin"))
	adminServer.Start()
	log.Info().Int("port", opts.HTTPPort).Msg("admin HTTP API listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("shutdown requested via admin API")
	}

	cancel()
	if err := adminServer.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown error")
	}
	if err := pool.Stop(); err != nil {
		log.Warn().Err(err).Msg("worker pool shutdown error")
	}
	if err := watcher.Close(); err != nil {
		log.Warn().Err(err).Msg("config watcher close error")
	}
	log.Info().Msg("relay stopped")
	return nil
}
