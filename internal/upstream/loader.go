package upstream

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Load populates p from a line-oriented file of one IPv4/IPv6 address
// per non-comment line, following
// _examples/original_source/src/websocket/upstream_config.c's
// upstream_pool_load_from_file: blank lines and "#" comments are
// skipped, malformed or duplicate lines are skipped with a warning
// rather than aborting the load.
func Load(p *Pool, path string, log zerolog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open upstream config %q: %w", path, err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.Add(line); err != nil {
			log.Warn().Int("line", lineNo).Str("text", line).Err(err).Msg("skipping upstream config line")
			continue
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("reading upstream config %q: %w", path, err)
	}
	return loaded, nil
}
