package override

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrideFile(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestEmptyOverrideFileAlwaysNotFound(t *testing.T) {
	path := writeOverrideFile(t, "\n# just comments\n\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, _ := table.Lookup("example.test.", dns.TypeA)
	assert.Equal(t, NotFound, res)
}

func TestLocalOverrideHitA(t *testing.T) {
	path := writeOverrideFile(t, "1.2.3.4 example.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, addr := table.Lookup("example.test.", dns.TypeA)
	assert.Equal(t, Address, res)
	assert.Equal(t, "1.2.3.4", addr)
}

func TestBlockedDomain(t *testing.T) {
	path := writeOverrideFile(t, "0.0.0.0 ads.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, addr := table.Lookup("ads.test.", dns.TypeA)
	assert.Equal(t, Blocked, res)
	assert.Equal(t, "0.0.0.0", addr)
}

func TestBlockedDomainAAAA(t *testing.T) {
	path := writeOverrideFile(t, ":: ads.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, _ := table.Lookup("ads.test.", dns.TypeAAAA)
	assert.Equal(t, Blocked, res)
}

func TestDomainCaseInsensitive(t *testing.T) {
	path := writeOverrideFile(t, "1.2.3.4 Example.TEST\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, _ := table.Lookup("example.test.", dns.TypeA)
	assert.Equal(t, Address, res)
}

// TestDomainWithoutRequestedRecordTypeFallsThrough: domain
// exists but no qtype match -> NotFound.
func TestDomainWithoutRequestedRecordTypeFallsThrough(t *testing.T) {
	path := writeOverrideFile(t, "1.2.3.4 dual.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, _ := table.Lookup("dual.test.", dns.TypeAAAA)
	assert.Equal(t, NotFound, res)
}

func TestDomainCanHaveBothAAndAAAA(t *testing.T) {
	path := writeOverrideFile(t, "1.2.3.4 dual.test\n::1 dual.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	res, addr := table.Lookup("dual.test.", dns.TypeA)
	assert.Equal(t, Address, res)
	assert.Equal(t, "1.2.3.4", addr)

	res, addr = table.Lookup("dual.test.", dns.TypeAAAA)
	assert.Equal(t, Address, res)
	assert.Equal(t, "::1", addr)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	path := writeOverrideFile(t, "not-an-ip example.test\n1.2.3.4\n1.2.3.4 good.test\n")
	table := New(8)
	require.NoError(t, Load(table, path, zerolog.Nop()))

	assert.Equal(t, 1, table.Len())
	res, _ := table.Lookup("good.test.", dns.TypeA)
	assert.Equal(t, Address, res)
}

func TestLoadMissingFileReturnsErrorNonFatally(t *testing.T) {
	table := New(8)
	err := Load(table, "/nonexistent/path/overrides.txt", zerolog.Nop())
	assert.Error(t, err)
	assert.Equal(t, 0, table.Len())
}
