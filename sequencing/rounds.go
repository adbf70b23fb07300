package sequencing

import (
	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/util/logger"
)

// Round runs the periodic housekeeping. It must be called once per round period.
func (s *core) Round() {
	s.round++

	for _, p := range s.sortedPeers() {
		p.roundsSinceSend++
		p.roundsSinceReceive++
		p.roundsSinceTraffic++
		p.resyncSent = false
		p.syncRequested = false

		if p.gap != nil {
			p.gap.age++
			if p.gap.age >= s.cfg.ResendThresholdRounds {
				s.renack(p)
			}
		} else if p.roundsSinceTraffic > s.cfg.MaxNoTrafficRounds {
			s.evict(p, ErrPeerIdle)
			continue
		}

		if p.roundsSinceReceive > s.cfg.MaxNoReceiveRounds {
			s.evict(p, ErrPeerUnresponsive)
			continue
		}

		if p.roundsSinceSend > s.cfg.MaxNoSendRounds {
			s.ping(p)
		}

		if s.multicast && s.round%uint64(s.cfg.ConfirmIntervalRounds) == 0 {
			s.sendConfirm(p)
		}
	}
}

// renack narrows an aged gap to what is still missing and asks again.
func (s *core) renack(p *Peer) {
	first := p.lastDelivered + 1
	last := p.gap.last
	p.gap = nil

	if first > last {
		s.checkGap(p)
		return
	}

	p.gap = &gap{first: first, last: last}
	s.sendNack(p, first, last)
}

// sendConfirm sends a standalone confirmation if the peer has not seen our latest progress yet.
func (s *core) sendConfirm(p *Peer) {
	if !p.synced || p.lastDelivered <= p.lastConfirmSent {
		return
	}

	s.metrics.IncConfirm()
	logger.Debugf("CONFIRM %s up to %d", p.addr, p.lastDelivered)
	_ = s.transmit(p, pkt.KindConfirm, s.streamEnd(p), pkt.MarshalSeq(p.lastDelivered))
}

// evict forgets the peer. Every data record still waiting for confirmation is reported as failed.
func (s *core) evict(p *Peer, reason error) {
	delete(s.peers, p.addr)
	s.metrics.IncPeerEvicted()
	logger.Infof("EVICT %s: %v (%d unconfirmed)", p.addr, reason, len(p.unconfirmed))

	for _, e := range p.unconfirmed {
		if e.kind != pkt.KindData {
			continue
		}
		s.fail(p.addr, e.payload, reason)
	}
	p.unconfirmed = nil
}
