package sequencing

import (
	"net/netip"
	"slices"

	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/util/assert"
)

// Peer is the bookkeeping for one remote endpoint.
// The send side tracks our stream towards the peer, the receive side tracks the peer's stream towards us.
type Peer struct {
	addr netip.AddrPort

	firstSent     uint64  // Sequence before the first one ever sent to the peer
	lastSent      uint64  // Highest sequence sent (data or Update)
	lastConfirmed uint64  // Highest sequence the peer confirmed
	unconfirmed   []entry // Covers exactly (lastConfirmed, lastSent], oldest first
	announced     bool    // Our stream position was advertised with a Resync record

	lastDelivered   uint64  // Highest sequence of the peer's stream handed upwards or skipped
	highestSeen     uint64  // Highest sequence the peer is known to have sent
	pending         []entry // Out-of-order records, sorted by first, all > lastDelivered
	gap             *gap    // Outstanding NACK
	synced          bool    // A Resync from the peer was applied
	lastConfirmSent uint64  // lastDelivered as of the last confirmation sent

	roundsSinceSend    int
	roundsSinceReceive int
	roundsSinceTraffic int

	resyncSent    bool // Reset every round
	syncRequested bool // Reset every round
}

// entry is a queued record. Data entries cover a single sequence, Update entries a range.
type entry struct {
	first   uint64
	last    uint64
	kind    pkt.Kind
	payload []byte
}

func (e entry) span() uint64 {
	return e.last - e.first + 1
}

type gap struct {
	first uint64
	last  uint64
	age   int
}

func newPeer(addr netip.AddrPort, base uint64) *Peer {
	return &Peer{
		addr:          addr,
		firstSent:     base,
		lastSent:      base,
		lastConfirmed: base,
	}
}

// enqueueSent appends a transmitted record and advances lastSent.
func (p *Peer) enqueueSent(e entry) {
	assert.Assert(e.first == p.lastSent+1, "sent record %d..%d does not follow lastSent %d", e.first, e.last, p.lastSent)
	assert.Assert(e.first <= e.last, "sent record has invalid span %d..%d", e.first, e.last)

	p.unconfirmed = append(p.unconfirmed, e)
	p.lastSent = e.last
}

// confirm drops everything up to and including c from the unconfirmed queue.
// c must lie in [lastConfirmed, lastSent].
func (p *Peer) confirm(c uint64) {
	assert.Assert(c >= p.lastConfirmed && c <= p.lastSent, "confirm %d outside [%d, %d]", c, p.lastConfirmed, p.lastSent)

	i := 0
	for i < len(p.unconfirmed) && p.unconfirmed[i].last <= c {
		i++
	}
	p.unconfirmed = p.unconfirmed[i:]
	if len(p.unconfirmed) > 0 && p.unconfirmed[0].first <= c {
		// partially confirmed Update range
		p.unconfirmed[0].first = c + 1
	}
	if len(p.unconfirmed) == 0 {
		p.unconfirmed = nil
	}
	p.lastConfirmed = c

	p.checkSendQueue()
}

func (p *Peer) checkSendQueue() {
	if len(p.unconfirmed) == 0 {
		assert.Assert(p.lastConfirmed == p.lastSent, "empty queue but lastConfirmed %d != lastSent %d", p.lastConfirmed, p.lastSent)
		return
	}
	assert.Assert(p.unconfirmed[0].first == p.lastConfirmed+1, "queue head %d does not follow lastConfirmed %d", p.unconfirmed[0].first, p.lastConfirmed)
	assert.Assert(p.unconfirmed[len(p.unconfirmed)-1].last == p.lastSent, "queue tail %d != lastSent %d", p.unconfirmed[len(p.unconfirmed)-1].last, p.lastSent)
}

// unconfirmedSlots counts the sequence numbers held by the unconfirmed queue.
func (p *Peer) unconfirmedSlots() uint64 {
	var n uint64
	for _, e := range p.unconfirmed {
		n += e.span()
	}
	return n
}

// overlapping returns the queued records that intersect [first, last].
func (p *Peer) overlapping(first, last uint64) []entry {
	var out []entry
	for _, e := range p.unconfirmed {
		if e.last < first {
			continue
		}
		if e.first > last {
			break
		}
		out = append(out, e)
	}
	return out
}

// insertPending stores an out-of-order record. It returns false if a record with the same first sequence is already buffered.
func (p *Peer) insertPending(e entry) bool {
	assert.Assert(e.first > p.lastDelivered+1, "record %d is not ahead of lastDelivered %d", e.first, p.lastDelivered)

	i, found := slices.BinarySearchFunc(p.pending, e.first, func(x entry, first uint64) int {
		switch {
		case x.first < first:
			return -1
		case x.first > first:
			return 1
		}
		return 0
	})
	if found {
		return false
	}
	p.pending = slices.Insert(p.pending, i, e)
	return true
}

// resetReceive forgets everything about the peer's stream and continues after seq.
func (p *Peer) resetReceive(seq uint64) {
	p.synced = true
	p.lastDelivered = seq
	p.highestSeen = seq
	p.lastConfirmSent = seq
	p.pending = nil
	p.gap = nil
}
