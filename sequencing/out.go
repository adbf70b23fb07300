package sequencing

import (
	"fmt"
	"net/netip"

	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/util/assert"
	"bjoernblessin.de/groupstack/util/logger"
)

// transmit wraps a record into an envelope carrying our receive progress for the peer and sends it.
func (s *core) transmit(p *Peer, kind pkt.Kind, seq uint64, body []byte) error {
	env := pkt.NewEnvelope(kind, p.synced, p.lastDelivered, seq, body)

	err := s.lower.SendTo(p.addr, env.ToByteArray())
	if err != nil {
		logger.Debugf("SEND %s %s failed: %v", kind, p.addr, err)
		return fmt.Errorf("send %s to %s: %w", kind, p.addr, err)
	}

	logger.Tracef("SENT %s %s seq %d", p.addr, env, seq)
	p.roundsSinceSend = 0
	if p.synced {
		p.lastConfirmSent = p.lastDelivered
	}
	return nil
}

// announce advertises our stream position before the first sequenced record reaches the peer.
func (s *core) announce(p *Peer) {
	if p.announced {
		return
	}
	if err := s.sendResync(p); err == nil {
		p.announced = true
	}
}

func (s *core) sendResync(p *Peer) error {
	s.metrics.IncResync()
	logger.Debugf("RESYNC %s from %d", p.addr, p.lastConfirmed)
	return s.transmit(p, pkt.KindResync, p.lastSent, pkt.MarshalSeq(p.lastConfirmed))
}

// resync tells the peer to skip to our lastConfirmed and retransmits everything after it.
// Happens at most once per round per peer.
func (s *core) resync(p *Peer) {
	if p.resyncSent {
		return
	}
	p.resyncSent = true

	if err := s.sendResync(p); err != nil {
		return
	}
	p.announced = true

	for _, e := range p.unconfirmed {
		s.retransmit(p, e)
	}
}

// sendData assigns seq to payload and sends it. On transport failure the sequence is not consumed.
func (s *core) sendData(p *Peer, seq uint64, payload []byte) {
	s.announce(p)
	p.roundsSinceTraffic = 0

	if err := s.transmit(p, pkt.KindData, seq, payload); err != nil {
		s.fail(p.addr, payload, err)
		return
	}

	s.metrics.IncSent()
	p.enqueueSent(entry{first: seq, last: seq, kind: pkt.KindData, payload: payload})
}

func (s *core) retransmit(p *Peer, e entry) {
	var err error
	switch e.kind {
	case pkt.KindData:
		err = s.transmit(p, pkt.KindData, e.first, e.payload)
	case pkt.KindUpdate:
		err = s.transmit(p, pkt.KindUpdate, e.last, pkt.MarshalRange(pkt.Range{First: e.first, Last: e.last}))
	default:
		assert.Never("unexpected record kind %s in send queue", e.kind)
	}
	if err == nil {
		s.metrics.IncRetransmit()
		logger.Debugf("RETRANSMIT %s %s [%d, %d]", p.addr, e.kind, e.first, e.last)
	}
}

// sendNack asks the peer to retransmit [first, last] of its stream.
func (s *core) sendNack(p *Peer, first, last uint64) {
	assert.Assert(first <= last, "NACK with first %d > last %d for %s", first, last, p.addr)

	s.metrics.IncNackSent()
	logger.Debugf("NACK %s [%d, %d]", p.addr, first, last)
	_ = s.transmit(p, pkt.KindNack, p.lastSent, pkt.MarshalRange(pkt.Range{First: first, Last: last}))
}

// requestSync asks a peer whose stream we cannot interpret to resync. At most once per round.
func (s *core) requestSync(p *Peer) {
	if p.syncRequested {
		return
	}
	p.syncRequested = true
	s.sendNack(p, 0, 0)
}

// ping is the keepalive. Its sequence field tells the peer how far our stream goes.
func (s *core) ping(p *Peer) {
	s.announce(p)
	s.metrics.IncPing()
	_ = s.transmit(p, pkt.KindPing, s.streamEnd(p), nil)
}

// streamEnd is the highest sequence the peer should expect from us.
func (s *core) streamEnd(p *Peer) uint64 {
	if s.multicast {
		return s.groupLast
	}
	return p.lastSent
}

// bridge covers (p.lastSent, to] with a single Update record so the peer can skip group messages not addressed to it.
func (s *core) bridge(p *Peer, to uint64) error {
	if p.lastSent >= to {
		return nil
	}
	r := pkt.Range{First: p.lastSent + 1, Last: to}

	s.announce(p)
	if err := s.transmit(p, pkt.KindUpdate, r.Last, pkt.MarshalRange(r)); err != nil {
		return err
	}

	s.metrics.IncUpdate()
	logger.Debugf("UPDATE %s %s", p.addr, r)
	p.enqueueSent(entry{first: r.First, last: r.Last, kind: pkt.KindUpdate})
	return nil
}

// onNack retransmits the requested part of our stream.
func (s *core) onNack(p *Peer, r pkt.Range) {
	s.metrics.IncNackRecv()

	if r.First <= p.firstSent {
		// asks for something before our stream started, the peer lost track of it
		s.resync(p)
		return
	}

	first := max(r.First, p.lastConfirmed+1)
	last := r.Last
	if last > p.lastSent {
		genuine := p.lastSent
		if s.multicast && s.groupLast > p.lastSent {
			if err := s.bridge(p, s.groupLast); err != nil {
				logger.Debugf("NACK %s beyond %d, bridging failed: %v", p.addr, genuine, err)
			}
		} else {
			logger.Warnf("NACK %s %s reaches beyond last sent %d", p.addr, r, p.lastSent)
		}
		last = genuine
	}
	if first > last {
		return
	}

	for _, e := range p.overlapping(first, last) {
		s.retransmit(p, e)
	}
}

// sendPassthrough sends payload once to a raw multicast address, outside of any stream.
func (s *core) sendPassthrough(payload []byte, addr netip.AddrPort) {
	data := pkt.NewIgnoreEnvelope(payload).ToByteArray()
	if err := s.lower.SendTo(addr, data); err != nil {
		s.fail(addr, payload, fmt.Errorf("send passthrough to %s: %w", addr, err))
		return
	}
	s.metrics.IncSent()
}
