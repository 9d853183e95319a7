package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxglove-dns/relay/internal/logging"
)

func TestParseDefaults(t *testing.T) {
	var got Options
	err := Parse([]string{}, func(o Options) error {
		got = o
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultDNSPort, got.DNSPort)
	assert.Equal(t, DefaultHTTPPort, got.HTTPPort)
	assert.Equal(t, "info", got.LogLevel)
}

func TestParseOverridesFlags(t *testing.T) {
	var got Options
	err := Parse([]string{
		"-p", "5300",
		"--http-port", "9090",
		"-c", "/etc/relay/upstreams.conf",
		"-r", "/etc/relay/rules.conf",
	}, func(o Options) error {
		got = o
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5300, got.DNSPort)
	assert.Equal(t, 9090, got.HTTPPort)
	assert.Equal(t, "/etc/relay/upstreams.conf", got.UpstreamFile)
	assert.Equal(t, "/etc/relay/rules.conf", got.OverrideFile)
}

func TestDDFlagForcesDebugLevel(t *testing.T) {
	var got Options
	err := Parse([]string{"--dd"}, func(o Options) error {
		got = o
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, logging.LevelDebug, ResolveLevel(got))
}

func TestResolveLevelFallsBackToInfoOnUnrecognizedValue(t *testing.T) {
	opts := Options{LogLevel: "not-a-level"}
	assert.Equal(t, logging.LevelInfo, ResolveLevel(opts))
}

func TestRunErrorPropagatesFromParse(t *testing.T) {
	sentinel := assert.AnError
	err := Parse([]string{}, func(Options) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
