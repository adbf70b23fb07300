package stack

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/round"
	"bjoernblessin.de/groupstack/sequencing"
	"bjoernblessin.de/groupstack/sock"
	"bjoernblessin.de/groupstack/util/observer"
)

var (
	addrA = netip.MustParseAddrPort("10.0.0.1:4000")
	addrB = netip.MustParseAddrPort("10.0.0.2:4000")
	addrC = netip.MustParseAddrPort("10.0.0.3:4000")
)

const waitTimeout = 2 * time.Second

func testConfig() common.Config {
	return common.Config{
		RoundPeriod:           time.Millisecond,
		ResendThresholdRounds: 2,
		MaxNoTrafficRounds:    20,
		MaxNoReceiveRounds:    10,
		MaxNoSendRounds:       3,
		ConfirmIntervalRounds: 2,
	}
}

// hub connects mock sockets by address. Datagrams to unknown addresses vanish.
type hub struct {
	mu    sync.Mutex
	ports map[netip.AddrPort]*observer.Observable[*sock.Packet]
}

func newHub() *hub {
	return &hub{ports: make(map[netip.AddrPort]*observer.Observable[*sock.Packet])}
}

type mockSocket struct {
	hub  *hub
	self netip.AddrPort
	obs  *observer.Observable[*sock.Packet]
}

func (h *hub) attach(addr netip.AddrPort) *mockSocket {
	h.mu.Lock()
	defer h.mu.Unlock()
	obs := observer.NewObservable[*sock.Packet](common.SOCKET_RECEIVE_BUFFER_SIZE)
	h.ports[addr] = obs
	return &mockSocket{hub: h, self: addr, obs: obs}
}

func (m *mockSocket) SendTo(addr netip.AddrPort, data []byte) error {
	m.hub.mu.Lock()
	target, ok := m.hub.ports[addr]
	m.hub.mu.Unlock()
	if ok {
		target.NotifyObservers(&sock.Packet{Addr: m.self, Data: slices.Clone(data)})
	}
	return nil
}

func (m *mockSocket) Subscribe() chan *sock.Packet     { return m.obs.Subscribe() }
func (m *mockSocket) Unsubscribe(ch chan *sock.Packet) { m.obs.Unsubscribe(ch) }

func TestChannelsExchangeMessages(t *testing.T) {
	h := newHub()
	a := New(testConfig(), h.attach(addrA), Options{Timer: round.NewManual()})
	defer a.Close()
	b := New(testConfig(), h.attach(addrB), Options{Timer: round.NewManual()})
	defer b.Close()

	received := b.Deliveries()

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, a.Send([]byte(msg), sequencing.To(addrB)))
	}

	var got []string
	for len(got) < 3 {
		select {
		case d := <-received:
			assert.Equal(t, addrA, d.From)
			got = append(got, string(d.Payload))
		case <-time.After(waitTimeout):
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)

	snap, err := a.Snapshot()
	require.NoError(t, err)
	ps, ok := snap.Find(addrB)
	require.True(t, ok)
	assert.Equal(t, 3, ps.Unconfirmed, "nothing flows back without rounds")
	assert.Equal(t, uint64(3), ps.LastSent-ps.LastConfirmed)
	assert.Equal(t, uint64(3), a.Metrics().Snapshot().Send.Sent)
}

func TestUnreachablePeerIsReportedAfterRounds(t *testing.T) {
	h := newHub()
	timer := round.NewManual()
	a := New(testConfig(), h.attach(addrA), Options{Timer: timer})
	defer a.Close()

	failures := a.Failures()
	require.NoError(t, a.Send([]byte("lost"), sequencing.To(addrC)))

	for range testConfig().MaxNoReceiveRounds + 2 {
		require.True(t, timer.Tick())
	}

	select {
	case f := <-failures:
		assert.Equal(t, addrC, f.Dest)
		assert.Equal(t, "lost", string(f.Payload))
		assert.ErrorIs(t, f.Err, sequencing.ErrPeerUnresponsive)
	case <-time.After(waitTimeout):
		t.Fatal("no failure reported")
	}

	snap, err := a.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Peers)
}

func TestClosedChannelRejectsCalls(t *testing.T) {
	h := newHub()
	c := New(testConfig(), h.attach(addrA), Options{Multicast: true, Timer: round.NewManual()})
	deliveries := c.Deliveries()
	assert.Equal(t, "multicast", c.Mode())
	assert.NotEmpty(t, c.ID())

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send([]byte("x"), sequencing.To(addrB)), ErrClosed)
	_, err := c.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)

	_, open := <-deliveries
	assert.False(t, open)
}

func TestBurstDrainDeliversEverything(t *testing.T) {
	const count = 400
	const base = uint64(1000)

	h := newHub()
	b := New(testConfig(), h.attach(addrB), Options{Timer: round.NewManual()})
	defer b.Close()
	received := b.Deliveries()

	src := h.attach(addrA)
	send := func(env *pkt.Envelope) {
		require.NoError(t, src.SendTo(addrB, env.ToByteArray()))
	}

	send(pkt.NewEnvelope(pkt.KindResync, false, 0, base, pkt.MarshalSeq(base)))
	// everything but the first record, which then releases the whole buffer at once
	for seq := base + 2; seq <= base+count; seq++ {
		send(pkt.NewEnvelope(pkt.KindData, false, 0, seq, []byte(fmt.Sprintf("M%d", seq-base))))
	}
	send(pkt.NewEnvelope(pkt.KindData, false, 0, base+1, []byte("M1")))

	require.Eventually(t, func() bool {
		snap, err := b.Snapshot()
		if err != nil {
			return false
		}
		ps, ok := snap.Find(addrA)
		return ok && ps.LastDelivered == base+count
	}, waitTimeout, time.Millisecond)

	for i := uint64(1); i <= count; i++ {
		select {
		case d := <-received:
			require.Equal(t, base+i, d.Seq)
			require.Equal(t, fmt.Sprintf("M%d", i), string(d.Payload))
		case <-time.After(waitTimeout):
			t.Fatalf("delivery %d of %d missing", i, count)
		}
	}
}
