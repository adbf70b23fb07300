package sequencing

import (
	"fmt"

	"bjoernblessin.de/groupstack/common"
)

// MulticastSession numbers every group message from one shared sequence space.
// A member that missed numbers because it was not addressed is bridged with a single Update record,
// and receivers confirm their progress with a standalone Confirm every few rounds.
type MulticastSession struct {
	*core
}

func NewMulticastSession(cfg common.Config, lower Lower, upper Upper, opts Options) *MulticastSession {
	c := newCore(cfg, lower, upper, opts)
	c.multicast = true
	c.groupBase = c.seedBase()
	c.groupLast = c.groupBase
	return &MulticastSession{core: c}
}

// Send assigns the next group sequence to payload and sends it to every member of dest.
func (s *MulticastSession) Send(payload []byte, dest Destination) error {
	if len(dest) == 0 {
		return ErrNoDestination
	}
	if dest.IsRawMulticast() {
		s.sendPassthrough(payload, dest[0])
		return nil
	}

	s.groupLast++
	seq := s.groupLast

	for _, addr := range dest.unique() {
		p := s.getOrCreatePeer(addr)
		if err := s.bridge(p, seq-1); err != nil {
			s.fail(addr, payload, fmt.Errorf("%w: %w", ErrBridgeFailed, err))
			continue
		}
		s.sendData(p, seq, payload)
	}
	return nil
}

// GroupSequence returns the last sequence assigned to a group message.
func (s *MulticastSession) GroupSequence() uint64 {
	return s.groupLast
}
