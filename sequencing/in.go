package sequencing

import (
	"net/netip"

	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/util/logger"
)

// Receive processes one datagram from the transport.
// Malformed datagrams are dropped silently; the returned Outcome says what happened to it.
func (s *core) Receive(data []byte, from netip.AddrPort) Outcome {
	env, err := pkt.ParseEnvelope(data)
	if err != nil {
		logger.Tracef("DROP datagram from %s: %v", from, err)
		return s.discard()
	}

	if env.IsIgnore() {
		s.metrics.IncPassthrough()
		s.upper.Deliver(Delivery{From: from, Payload: env.Payload, Passthrough: true})
		return OutcomePassthrough
	}

	kind := env.Kind()
	p, ok := s.peers[from]
	if !ok {
		if !s.opensStream(kind) {
			logger.Tracef("DROP %s from unknown peer %s", kind, from)
			return s.discard()
		}
		p = s.getOrCreatePeer(from)
	}
	p.roundsSinceReceive = 0

	if env.HasConfirm() {
		s.onConfirm(p, pkt.DecodeSeq(env.ConfirmedSeq, p.lastConfirmed))
	}

	switch kind {
	case pkt.KindData, pkt.KindPing, pkt.KindUpdate:
		if !p.synced {
			logger.Debugf("DROP %s from %s, stream not synchronized", kind, from)
			s.requestSync(p)
			return s.discard()
		}
	}

	switch kind {
	case pkt.KindData:
		return s.onData(p, pkt.DecodeSeq(env.DataSeq, p.lastDelivered), env.Payload)

	case pkt.KindPing:
		s.learnStreamEnd(p, pkt.DecodeSeq(env.DataSeq, p.lastDelivered))
		s.checkGap(p)
		return OutcomeControl

	case pkt.KindNack:
		r, err := pkt.UnmarshalRange(env.Payload)
		if err != nil || !r.Valid() {
			logger.Debugf("DROP malformed NACK from %s", from)
			return s.discard()
		}
		s.onNack(p, r)
		return OutcomeControl

	case pkt.KindResync:
		seq, err := pkt.UnmarshalSeq(env.Payload)
		if err != nil {
			return s.discard()
		}
		return s.onResync(p, seq)

	case pkt.KindUpdate:
		if !s.multicast {
			return s.discard()
		}
		r, err := pkt.UnmarshalRange(env.Payload)
		if err != nil || !r.Valid() {
			return s.discard()
		}
		return s.onUpdate(p, r)

	case pkt.KindConfirm:
		if !s.multicast {
			return s.discard()
		}
		seq, err := pkt.UnmarshalSeq(env.Payload)
		if err != nil {
			return s.discard()
		}
		s.metrics.IncConfirm()
		s.onConfirm(p, seq)
		return OutcomeControl
	}

	return s.discard()
}

// opensStream reports whether a record from an unknown address creates a peer.
// NACKs and confirmations only make sense for peers we already know. A keepalive from an
// unknown sender creates the peer so that it can be asked to resync.
func (s *core) opensStream(kind pkt.Kind) bool {
	switch kind {
	case pkt.KindData, pkt.KindResync, pkt.KindPing:
		return true
	case pkt.KindUpdate:
		return s.multicast
	}
	return false
}

func (s *core) discard() Outcome {
	s.metrics.IncDiscarded()
	return OutcomeDiscarded
}

// onConfirm handles the peer's receive progress for our stream.
func (s *core) onConfirm(p *Peer, c uint64) {
	switch {
	case c >= p.lastConfirmed && c <= p.lastSent:
		p.confirm(c)
	case c >= p.firstSent && c < p.lastConfirmed:
		// stale, a newer confirmation already arrived
	default:
		logger.Debugf("CONFIRM %s of %d outside [%d, %d]", p.addr, c, p.firstSent, p.lastSent)
		s.resync(p)
	}
}

func (s *core) onData(p *Peer, seq uint64, payload []byte) Outcome {
	p.roundsSinceTraffic = 0

	if seq <= p.lastDelivered {
		s.metrics.IncDuplicate()
		return OutcomeDuplicate
	}
	s.learnStreamEnd(p, seq)

	if seq == p.lastDelivered+1 {
		s.deliver(p, seq, payload)
		s.drain(p)
		s.checkGap(p)
		return OutcomeDelivered
	}

	if !p.insertPending(entry{first: seq, last: seq, kind: pkt.KindData, payload: payload}) {
		s.metrics.IncDuplicate()
		return OutcomeDuplicate
	}
	s.metrics.IncBuffered()
	s.checkGap(p)
	return OutcomeBuffered
}

// onUpdate applies a range placeholder: the sender sent nothing to us in [r.First, r.Last].
func (s *core) onUpdate(p *Peer, r pkt.Range) Outcome {
	if r.Last <= p.lastDelivered {
		s.metrics.IncDuplicate()
		return OutcomeDuplicate
	}
	s.learnStreamEnd(p, r.Last)

	if r.First <= p.lastDelivered+1 {
		logger.Debugf("UPDATE %s skips to %d", p.addr, r.Last)
		p.lastDelivered = r.Last
		s.drain(p)
		s.checkGap(p)
		return OutcomeControl
	}

	if !p.insertPending(entry{first: r.First, last: r.Last, kind: pkt.KindUpdate}) {
		s.metrics.IncDuplicate()
		return OutcomeDuplicate
	}
	s.metrics.IncBuffered()
	s.checkGap(p)
	return OutcomeBuffered
}

// onResync continues the peer's stream after seq. Resyncs never move backwards.
func (s *core) onResync(p *Peer, seq uint64) Outcome {
	if p.synced && seq <= p.lastDelivered {
		logger.Tracef("RESYNC %s to %d ignored, already at %d", p.addr, seq, p.lastDelivered)
		return OutcomeDuplicate
	}

	logger.Debugf("RESYNC %s continues after %d", p.addr, seq)
	p.resetReceive(seq)
	return OutcomeControl
}

func (s *core) learnStreamEnd(p *Peer, seq uint64) {
	if seq > p.highestSeen {
		p.highestSeen = seq
	}
}

// drain delivers buffered records that became contiguous.
func (s *core) drain(p *Peer) {
	for len(p.pending) > 0 && p.pending[0].first <= p.lastDelivered+1 {
		e := p.pending[0]
		p.pending = p.pending[1:]

		if e.last <= p.lastDelivered {
			continue
		}
		if e.kind == pkt.KindData {
			s.deliver(p, e.first, e.payload)
		} else {
			p.lastDelivered = e.last
		}
	}
	if len(p.pending) == 0 {
		p.pending = nil
	}
}

// checkGap clears a repaired gap and NACKs a new one if none is outstanding.
// The NACKed range ends before the first buffered record, or at the highest sequence the peer announced.
func (s *core) checkGap(p *Peer) {
	if p.gap != nil && p.gap.last <= p.lastDelivered {
		p.gap = nil
	}
	if p.gap != nil {
		return
	}

	var last uint64
	switch {
	case len(p.pending) > 0:
		last = p.pending[0].first - 1
	case p.highestSeen > p.lastDelivered:
		last = p.highestSeen
	default:
		return
	}

	first := p.lastDelivered + 1
	p.gap = &gap{first: first, last: last}
	s.sendNack(p, first, last)
}
