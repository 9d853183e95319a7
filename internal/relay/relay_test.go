package relay

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxglove-dns/relay/internal/cache"
	"github.com/foxglove-dns/relay/internal/inflight"
	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/upstream"
)

type sentPacket struct {
	msg  *dns.Msg
	addr *net.UDPAddr
}

type fakeSender struct {
	sent []sentPacket
}

func (f *fakeSender) WriteToUDP(buf []byte, addr *net.UDPAddr) (int, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return 0, err
	}
	f.sent = append(f.sent, sentPacket{msg: m, addr: addr})
	return len(buf), nil
}

func newTestContext(t *testing.T) (*Context, *upstream.Pool) {
	up := upstream.New()
	require.NoError(t, up.Add("9.9.9.1:53"))
	require.NoError(t, up.Add("9.9.9.2:53"))

	ctx := NewContext(cache.New(64, 4), override.New(8), inflight.New(64, 4), up, zerolog.Nop())
	return ctx, up
}

func query(name string, qtype uint16, id uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.Id = id
	return m
}

// S1: a local override hit returns the overridden address without
// touching the upstream pool.
func TestLocalOverrideHitReturnsAddress(t *testing.T) {
	ctx, _ := newTestContext(t)
	require.NoError(t, overrideLoadLines(ctx.Overrides, "1.2.3.4 example.test\n"))

	sender := &fakeSender{}
	w := NewWorker(ctx, NewQueue(1), sender, 0)

	source := udpAddr(t, "10.0.0.5:9000")
	w.handleClientRequest(query("example.test.", dns.TypeA, 0x1234), source)

	require.Len(t, sender.sent, 1)
	reply := sender.sent[0].msg
	assert.Equal(t, uint16(0x1234), reply.Id)
	require.Len(t, reply.Answer, 1)
	a := reply.Answer[0].(*dns.A)
	assert.Equal(t, "1.2.3.4", a.A.String())
}

// S2: a blocked domain returns the block sentinel address.
func TestBlockedDomainReturnsSentinel(t *testing.T) {
	ctx, _ := newTestContext(t)
	require.NoError(t, overrideLoadLines(ctx.Overrides, "0.0.0.0 ads.test\n"))

	sender := &fakeSender{}
	w := NewWorker(ctx, NewQueue(1), sender, 0)

	source := udpAddr(t, "10.0.0.5:9000")
	w.handleClientRequest(query("ads.test.", dns.TypeA, 0x5555), source)

	require.Len(t, sender.sent, 1)
	reply := sender.sent[0].msg
	assert.Equal(t, uint16(0x5555), reply.Id)
	a := reply.Answer[0].(*dns.A)
	assert.Equal(t, "0.0.0.0", a.A.String())
}

// S3: a cache miss forwards upstream with a rewritten ID; the upstream
// reply is relayed back to the client and cached; a second client
// query is served from cache without touching upstream again.
func TestCacheMissThenHitServesFromCache(t *testing.T) {
	ctx, _ := newTestContext(t)
	sender := &fakeSender{}
	w := NewWorker(ctx, NewQueue(1), sender, 0)

	clientAddr := udpAddr(t, "10.0.0.1:4000")
	w.handleClientRequest(query("a.test.", dns.TypeA, 0xAAAA), clientAddr)

	require.Len(t, sender.sent, 1, "miss should forward to an upstream")
	forwarded := sender.sent[0].msg
	upstreamID := forwarded.Id
	assert.NotEqual(t, uint16(0xAAAA), upstreamID)

	upstreamReply := new(dns.Msg)
	upstreamReply.SetQuestion("a.test.", dns.TypeA)
	upstreamReply.Id = upstreamID
	upstreamReply.Response = true
	upstreamReply.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "a.test.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.ParseIP("9.9.9.9").To4(),
	}}
	w.handleUpstreamResponse(upstreamReply)

	require.Len(t, sender.sent, 2, "upstream reply should be relayed to the client")
	relayed := sender.sent[1].msg
	assert.Equal(t, uint16(0xAAAA), relayed.Id)
	assert.Equal(t, "9.9.9.9", relayed.Answer[0].(*dns.A).A.String())

	w.handleClientRequest(query("a.test.", dns.TypeA, 0xBBBB), clientAddr)
	require.Len(t, sender.sent, 3, "second query should be served from cache")
	cached := sender.sent[2].msg
	assert.Equal(t, uint16(0xBBBB), cached.Id)
	assert.Equal(t, "9.9.9.9", cached.Answer[0].(*dns.A).A.String())
}

// S4: two clients sharing a client-supplied transaction ID get routed
// back to their own addresses.
func TestIDCollisionAcrossClientsRoutesIndependently(t *testing.T) {
	ctx, _ := newTestContext(t)
	sender := &fakeSender{}
	w := NewWorker(ctx, NewQueue(1), sender, 0)

	addrX := udpAddr(t, "10.0.0.1:1111")
	addrY := udpAddr(t, "10.0.0.2:2222")

	w.handleClientRequest(query("q.test.", dns.TypeA, 0x1000), addrX)
	w.handleClientRequest(query("q.test.", dns.TypeA, 0x1000), addrY)
	require.Len(t, sender.sent, 2)

	upstreamIDX := sender.sent[0].msg.Id
	upstreamIDY := sender.sent[1].msg.Id
	assert.NotEqual(t, upstreamIDX, upstreamIDY)

	replyFor := func(upstreamID uint16, ip string) *dns.Msg {
		m := new(dns.Msg)
		m.SetQuestion("q.test.", dns.TypeA)
		m.Id = upstreamID
		m.Answer = []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: "q.test.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 30},
			A:   net.ParseIP(ip).To4(),
		}}
		return m
	}

	w.handleUpstreamResponse(replyFor(upstreamIDY, "2.2.2.2"))
	w.handleUpstreamResponse(replyFor(upstreamIDX, "1.1.1.1"))

	require.Len(t, sender.sent, 4)
	toY := sender.sent[2]
	toX := sender.sent[3]
	assert.Equal(t, uint16(0x1000), toY.msg.Id)
	assert.Equal(t, addrY.String(), toY.addr.String())
	assert.Equal(t, uint16(0x1000), toX.msg.Id)
	assert.Equal(t, addrX.String(), toX.addr.String())
}

// Unknown upstream ID in a reply is dropped without a crash or a send.
func TestUnknownUpstreamIDIsDroppedSilently(t *testing.T) {
	ctx, _ := newTestContext(t)
	sender := &fakeSender{}
	w := NewWorker(ctx, NewQueue(1), sender, 0)

	reply := new(dns.Msg)
	reply.SetQuestion("nowhere.test.", dns.TypeA)
	reply.Id = 0xBEEF
	w.handleUpstreamResponse(reply)

	assert.Empty(t, sender.sent)
}

func udpAddr(t *testing.T, s string) *net.UDPAddr {
	addr, err := net.ResolveUDPAddr("udp", s)
	require.NoError(t, err)
	return addr
}

func overrideLoadLines(t *override.Table, contents string) error {
	dir, err := os.MkdirTemp("", "override")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "overrides.txt")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return err
	}
	return override.Load(t, path, zerolog.Nop())
}
