package override

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/foxglove-dns/relay/internal/metrics"
)

// Load populates t from a UTF-8/ASCII, line-oriented override file:
// blank lines and "#" comments are ignored, each data line is
// "<ip> <domain>", and 0.0.0.0/:: mark a domain blocked for A/AAAA.
// Malformed lines are skipped with a warning; a missing file is
// returned as an error for the caller to decide whether that's fatal
// for startup.
//
// Grounded on _examples/original_source/src/DNScache/relayBuild.c's
// domain_table_load_from_file.
func Load(t *Table, path string, log zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open override file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("skipping malformed override line")
			metrics.OverrideLoadErrors.Inc()
			continue
		}

		ipStr, domain := fields[0], fields[1]
		qtype, ok := qtypeForAddress(ipStr)
		if !ok {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("skipping override line with unparseable address")
			metrics.OverrideLoadErrors.Inc()
			continue
		}

		t.add(domain, qtype, ipStr)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading override file %q: %w", path, err)
	}
	return nil
}

// qtypeForAddress classifies an address string as A or AAAA, so the
// block sentinels (0.0.0.0, ::) are recognized even though net.ParseIP
// alone can't distinguish an IPv4-mapped form from a genuine AAAA.
func qtypeForAddress(address string) (uint16, bool) {
	if address == "0.0.0.0" {
		return dns.TypeA, true
	}
	if address == "::" {
		return dns.TypeAAAA, true
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return 0, false
	}
	if ip.To4() != nil {
		return dns.TypeA, true
	}
	return dns.TypeAAAA, true
}
