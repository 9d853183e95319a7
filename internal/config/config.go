// Package config parses the relay's CLI surface and watches its
// override/upstream files for changes.
//
// Grounded on joshuapare-hivekit/cmd/hivectl's root.go and
// semihalev-sdns's cmd package for the github.com/spf13/cobra flag-first
// style, used here instead of mostfunkyduck-funkyd's JSON-file
// Configuration because the CLI surface is flag-shaped, not file-shaped.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxglove-dns/relay/internal/logging"
)

// Options holds every flag the relay accepts.
type Options struct {
	DNSPort       int
	HTTPPort      int
	LogLevel      string
	Debug         bool
	UpstreamFile  string
	OverrideFile  string
}

// DefaultDNSPort and DefaultHTTPPort match the reference CLI surface.
const (
	DefaultDNSPort  = 53
	DefaultHTTPPort = 8080
)

// Parse builds a cobra root command and runs it against args. run is
// invoked with the parsed Options once flags are parsed successfully;
// Parse returns the command's error, which includes run's error.
func Parse(args []string, run func(Options) error) error {
	opts := Options{}

	root := &cobra.Command{
		Use:   "relay",
		Short: "A segmented-cache, ad-blocking DNS relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Debug {
				opts.LogLevel = "debug"
			}
			return run(opts)
		},
		SilenceUsage: true,
	}

	root.Flags().IntVarP(&opts.DNSPort, "port", "p", DefaultDNSPort, "UDP port to listen for DNS queries on")
	root.Flags().IntVar(&opts.HTTPPort, "http-port", DefaultHTTPPort, "port to serve the admin HTTP API on")
	root.Flags().StringVarP(&opts.LogLevel, "debug-level", "d", "info", "log level: error|warn|info|debug")
	root.Flags().BoolVar(&opts.Debug, "dd", false, "shorthand for -d debug")
	root.Flags().StringVarP(&opts.UpstreamFile, "config", "c", "", "upstream pool configuration file")
	root.Flags().StringVarP(&opts.OverrideFile, "rules", "r", "", "override table file")

	root.SetArgs(args)
	return root.Execute()
}

// ResolveLevel resolves opts.LogLevel into a logging.Level, defaulting
// to LevelInfo on an unrecognized value.
func ResolveLevel(opts Options) logging.Level {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

func (o Options) String() string {
	return fmt.Sprintf("port=%d http_port=%d log_level=%s upstream_file=%q override_file=%q",
		o.DNSPort, o.HTTPPort, o.LogLevel, o.UpstreamFile, o.OverrideFile)
}
