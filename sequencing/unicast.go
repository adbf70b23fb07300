package sequencing

import (
	"bjoernblessin.de/groupstack/common"
)

// UnicastSession keeps one sequence space per destination.
// A group destination is sent as one independently sequenced copy per member.
type UnicastSession struct {
	*core
}

func NewUnicastSession(cfg common.Config, lower Lower, upper Upper, opts Options) *UnicastSession {
	return &UnicastSession{core: newCore(cfg, lower, upper, opts)}
}

// Send queues payload for reliable delivery to every address in dest.
// Transport errors are reported through Upper.Fail per address, not returned.
func (s *UnicastSession) Send(payload []byte, dest Destination) error {
	if len(dest) == 0 {
		return ErrNoDestination
	}
	if dest.IsRawMulticast() {
		s.sendPassthrough(payload, dest[0])
		return nil
	}

	for _, addr := range dest.unique() {
		p := s.getOrCreatePeer(addr)
		s.sendData(p, p.lastSent+1, payload)
	}
	return nil
}
