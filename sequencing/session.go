// Package sequencing turns an unreliable datagram transport into reliable FIFO channels, one per peer.
//
// Losses are detected by the receiver and repaired with NACKs. Every record carries the sender's
// receive progress for the reverse direction, which is how the send side learns what it may forget.
// Peers are created on first contact and evicted purely by counting rounds without traffic.
//
// A session is not safe for concurrent use. It is driven by one event loop that calls Send, Receive
// and Round one at a time.
package sequencing

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/metrics"
	"bjoernblessin.de/groupstack/util/assert"
	"bjoernblessin.de/groupstack/util/logger"
)

// Lower is the datagram transport below the session.
type Lower interface {
	SendTo(addr netip.AddrPort, data []byte) error
}

// Upper receives everything the session reports to the application.
type Upper interface {
	Deliver(d Delivery)
	Fail(f Failure)
}

// Clock seeds the sequence bases of new streams.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Delivery is one in-order payload from a peer.
// Passthrough deliveries bypassed sequencing and have no Seq.
type Delivery struct {
	From        netip.AddrPort
	Seq         uint64
	Payload     []byte
	Passthrough bool
}

// Failure reports a payload that will not reach Dest.
type Failure struct {
	Dest    netip.AddrPort
	Payload []byte
	Err     error
}

// Destination is a single peer, a group of peers or a raw IP multicast address.
type Destination []netip.AddrPort

func To(addrs ...netip.AddrPort) Destination {
	return Destination(addrs)
}

// IsRawMulticast reports whether the destination is a single IP multicast address.
// Such payloads are sent once, flagged to be ignored by sequencing.
func (d Destination) IsRawMulticast() bool {
	return len(d) == 1 && d[0].Addr().IsMulticast()
}

// unique returns the addresses of d without repetitions, keeping their order.
func (d Destination) unique() []netip.AddrPort {
	seen := make(map[netip.AddrPort]struct{}, len(d))
	out := make([]netip.AddrPort, 0, len(d))
	for _, addr := range d {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

type Outcome int

const (
	OutcomeDiscarded   Outcome = iota // Malformed, unexpected or from an unsynchronized stream
	OutcomeDelivered                  // Delivered, possibly together with buffered successors
	OutcomeBuffered                   // Held back until the gap before it is filled
	OutcomeDuplicate                  // Already delivered or already buffered
	OutcomePassthrough                // Ignore-flagged, delivered without sequencing
	OutcomeControl                    // Protocol record, nothing to deliver by itself
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeBuffered:
		return "buffered"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePassthrough:
		return "passthrough"
	case OutcomeControl:
		return "control"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var (
	ErrNoDestination    = errors.New("no destination")
	ErrPeerIdle         = errors.New("peer evicted after rounds without application traffic")
	ErrPeerUnresponsive = errors.New("peer evicted after rounds without receiving anything")
	ErrBridgeFailed     = errors.New("could not bridge the peer to the current group sequence")
)

// Session is implemented by UnicastSession and MulticastSession.
type Session interface {
	Send(payload []byte, dest Destination) error
	Receive(data []byte, from netip.AddrPort) Outcome
	Round()
	Snapshot() Snapshot
}

// Options are optional collaborators. Zero values fall back to the wall clock and no metrics.
type Options struct {
	Clock   Clock
	Metrics *metrics.Metrics
}

// core holds what unicast and multicast sessions share: the peer table, the receive path and housekeeping.
type core struct {
	cfg     common.Config
	lower   Lower
	upper   Upper
	clock   Clock
	metrics *metrics.Metrics

	peers map[netip.AddrPort]*Peer
	round uint64

	multicast bool
	groupBase uint64 // multicast: sequence before the first group message
	groupLast uint64 // multicast: last sequence assigned to a group message
}

func newCore(cfg common.Config, lower Lower, upper Upper, opts Options) *core {
	assert.IsNil(cfg.Validate())
	assert.IsNotNil(lower, "lower layer must be set")
	assert.IsNotNil(upper, "upper layer must be set")

	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}

	return &core{
		cfg:     cfg,
		lower:   lower,
		upper:   upper,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		peers:   make(map[netip.AddrPort]*Peer),
	}
}

// seedBase returns a time derived sequence base so that a restarted sender does not reuse old numbers.
func (s *core) seedBase() uint64 {
	us := s.clock.Now().UnixMicro()
	if us <= 0 {
		return 1
	}
	return uint64(us)
}

func (s *core) getOrCreatePeer(addr netip.AddrPort) *Peer {
	if p, ok := s.peers[addr]; ok {
		return p
	}

	base := s.groupBase
	if !s.multicast {
		base = s.seedBase()
	}

	p := newPeer(addr, base)
	s.peers[addr] = p
	s.metrics.IncPeerCreated()
	logger.Debugf("PEER %s created, send base %d", addr, base)
	return p
}

// sortedPeers returns all peers ordered by address so housekeeping is deterministic.
func (s *core) sortedPeers() []*Peer {
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Peer) int { return a.addr.Compare(b.addr) })
	return out
}

func (s *core) deliver(p *Peer, seq uint64, payload []byte) {
	assert.Assert(seq == p.lastDelivered+1, "delivering %d from %s but lastDelivered is %d", seq, p.addr, p.lastDelivered)

	p.lastDelivered = seq
	s.metrics.IncDelivered()
	s.upper.Deliver(Delivery{From: p.addr, Seq: seq, Payload: payload})
}

func (s *core) fail(dest netip.AddrPort, payload []byte, err error) {
	s.metrics.IncFailure()
	logger.Warnf("FAIL %d bytes to %s: %v", len(payload), dest, err)
	s.upper.Fail(Failure{Dest: dest, Payload: payload, Err: err})
}
