// Package wire is the relay's only dependency on the DNS wire format.
// It wraps github.com/miekg/dns so the rest of the relay never touches
// raw bytes directly.
package wire

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// DefaultTTL is returned by FirstAnswerTTL when an upstream answer
// carries no answer records, and is the TTL stamped onto synthesized
// override answers.
const DefaultTTL = 300

// BlockSentinelA is the address that marks an A override entry blocked.
const BlockSentinelA = "0.0.0.0"

// BlockSentinelAAAA is the address that marks an AAAA override entry blocked.
const BlockSentinelAAAA = "::"

// Question is the first (and per this relay, only relevant) question of
// a DNS message, normalized for cache/override lookups.
type Question struct {
	// Name is the lowercase, dot-terminated domain name; FirstQuestion
	// case-folds dns.Msg.Question[0].Name into this form.
	Name  string
	Qtype uint16
}

// Parse decodes a raw UDP datagram into a *dns.Msg.
func Parse(buf []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return nil, fmt.Errorf("unpack dns message: %w", err)
	}
	return m, nil
}

// Pack serializes a message back to wire bytes.
func Pack(m *dns.Msg) ([]byte, error) {
	return m.Pack()
}

// FirstQuestion returns the first question of a message, or false if the
// message has none (a malformed or non-query datagram).
func FirstQuestion(m *dns.Msg) (Question, bool) {
	if m == nil || len(m.Question) == 0 {
		return Question{}, false
	}
	q := m.Question[0]
	return Question{Name: normalizeName(q.Name), Qtype: q.Qtype}, true
}

// normalizeName case-folds a domain name to lowercase ASCII, matching
// the form cache and override lookups key on.
func normalizeName(name string) string {
	return dns.CanonicalName(name)
}

// SetTransactionID rewrites the 16-bit DNS header ID in place.
func SetTransactionID(m *dns.Msg, id uint16) {
	m.Id = id
}

// TransactionID reads the 16-bit DNS header ID.
func TransactionID(m *dns.Msg) uint16 {
	return m.Id
}

// FirstAnswerTTL returns the TTL of the first answer record, or
// DefaultTTL if the message carries no answers. When an answer set
// mixes TTLs across RRs, the first RR's TTL governs the cache entry.
func FirstAnswerTTL(m *dns.Msg) uint32 {
	if m == nil || len(m.Answer) == 0 {
		return DefaultTTL
	}
	return m.Answer[0].Header().Ttl
}

// CloneAnswer returns an independent deep copy of a message, so the
// cache can own a value whose lifetime isn't tied to the response that
// was just sent to a client.
func CloneAnswer(m *dns.Msg) *dns.Msg {
	return m.Copy()
}

// StampReply rewrites cached's transaction ID and question section to
// match the client's original request, for serving a cache hit.
func StampReply(cached *dns.Msg, clientID uint16, question dns.Question) *dns.Msg {
	reply := cached.Copy()
	reply.Id = clientID
	reply.Response = true
	if len(reply.Question) == 0 {
		reply.Question = []dns.Question{question}
	} else {
		reply.Question[0] = question
	}
	return reply
}

// BuildOverrideAnswer synthesizes a reply carrying a single A/AAAA
// record for an override hit.
func BuildOverrideAnswer(req *dns.Msg, q Question, address string, ttl uint32) (*dns.Msg, error) {
	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Authoritative = false
	reply.RecursionAvailable = true

	rr, err := buildRR(q.Name, q.Qtype, address, ttl)
	if err != nil {
		return nil, err
	}
	reply.Answer = []dns.RR{rr}
	return reply, nil
}

func buildRR(name string, qtype uint16, address string, ttl uint32) (dns.RR, error) {
	hdr := dns.RR_Header{Name: name, Rrtype: qtype, Class: dns.ClassINET, Ttl: ttl}
	switch qtype {
	case dns.TypeA:
		ip := net.ParseIP(address)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q for A record", address)
		}
		return &dns.A{Hdr: hdr, A: ip.To4()}, nil
	case dns.TypeAAAA:
		ip := net.ParseIP(address)
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv6 address %q for AAAA record", address)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil
	default:
		return nil, fmt.Errorf("unsupported qtype %d for override answer", qtype)
	}
}

// IsBlockSentinel reports whether address is the block sentinel for qtype.
func IsBlockSentinel(qtype uint16, address string) bool {
	switch qtype {
	case dns.TypeA:
		return address == BlockSentinelA
	case dns.TypeAAAA:
		return address == BlockSentinelAAAA
	default:
		return false
	}
}
