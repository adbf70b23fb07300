package sequencing

import (
	"net/netip"

	"bjoernblessin.de/groupstack/pkt"
)

// PeerSnapshot is a copy of one peer's bookkeeping.
type PeerSnapshot struct {
	Addr netip.AddrPort `json:"addr"`

	FirstSent        uint64 `json:"first_sent"`
	LastSent         uint64 `json:"last_sent"`
	LastConfirmed    uint64 `json:"last_confirmed"`
	Unconfirmed      int    `json:"unconfirmed"`
	UnconfirmedSlots uint64 `json:"unconfirmed_slots"`
	Announced        bool   `json:"announced"`

	LastDelivered uint64     `json:"last_delivered"`
	HighestSeen   uint64     `json:"highest_seen"`
	Pending       int        `json:"pending"`
	Gap           *pkt.Range `json:"gap,omitempty"`
	GapAge        int        `json:"gap_age"`
	Synced        bool       `json:"synced"`

	RoundsSinceSend    int `json:"rounds_since_send"`
	RoundsSinceReceive int `json:"rounds_since_receive"`
	RoundsSinceTraffic int `json:"rounds_since_traffic"`
}

// Snapshot is a read-only view of a session, sorted by peer address.
type Snapshot struct {
	Multicast     bool           `json:"multicast"`
	Round         uint64         `json:"round"`
	GroupSequence uint64         `json:"group_sequence,omitempty"`
	Peers         []PeerSnapshot `json:"peers"`
}

func (s *core) Snapshot() Snapshot {
	snap := Snapshot{
		Multicast: s.multicast,
		Round:     s.round,
		Peers:     make([]PeerSnapshot, 0, len(s.peers)),
	}
	if s.multicast {
		snap.GroupSequence = s.groupLast
	}

	for _, p := range s.sortedPeers() {
		snap.Peers = append(snap.Peers, p.snapshot())
	}
	return snap
}

func (p *Peer) snapshot() PeerSnapshot {
	ps := PeerSnapshot{
		Addr:               p.addr,
		FirstSent:          p.firstSent,
		LastSent:           p.lastSent,
		LastConfirmed:      p.lastConfirmed,
		Unconfirmed:        len(p.unconfirmed),
		UnconfirmedSlots:   p.unconfirmedSlots(),
		Announced:          p.announced,
		LastDelivered:      p.lastDelivered,
		HighestSeen:        p.highestSeen,
		Pending:            len(p.pending),
		Synced:             p.synced,
		RoundsSinceSend:    p.roundsSinceSend,
		RoundsSinceReceive: p.roundsSinceReceive,
		RoundsSinceTraffic: p.roundsSinceTraffic,
	}
	if p.gap != nil {
		ps.Gap = &pkt.Range{First: p.gap.first, Last: p.gap.last}
		ps.GapAge = p.gap.age
	}
	return ps
}

// Find returns the snapshot of the peer at addr.
func (s Snapshot) Find(addr netip.AddrPort) (PeerSnapshot, bool) {
	for _, p := range s.Peers {
		if p.Addr == addr {
			return p, true
		}
	}
	return PeerSnapshot{}, false
}
