package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/upstream"
)

func TestWatcherReloadsOverrideTableOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.conf")
	require.NoError(t, os.WriteFile(path, []byte("1.2.3.4 one.test\n"), 0644))

	table := override.New(4)
	require.NoError(t, override.Load(table, path, zerolog.Nop()))
	require.Equal(t, 1, table.Len())

	w, err := NewWatcher(path, "", table, nil, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("5.6.7.8 two.test\n"), 0644))

	require.Eventually(t, func() bool {
		res, _ := table.Lookup("two.test.", 1)
		return res == override.Address && table.Len() == 1
	}, time.Second, 10*time.Millisecond)

	result, addr := table.Lookup("two.test.", 1)
	assert.Equal(t, override.Address, result)
	assert.Equal(t, "5.6.7.8", addr)
}

func TestWatcherReloadsUpstreamPoolOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upstreams.conf")
	require.NoError(t, os.WriteFile(path, []byte("9.9.9.9\n"), 0644))

	pool := upstream.New()
	_, err := upstream.Load(pool, path, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, pool.Len())

	w, err := NewWatcher("", path, nil, pool, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("1.1.1.1\n8.8.8.8\n"), 0644))

	require.Eventually(t, func() bool {
		return pool.Len() == 2
	}, time.Second, 10*time.Millisecond)
}
