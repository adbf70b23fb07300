package cmd

import (
	"bytes"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/connection"
	"bjoernblessin.de/groupstack/pkt"
	"bjoernblessin.de/groupstack/round"
	"bjoernblessin.de/groupstack/sequencing"
	"bjoernblessin.de/groupstack/sock"
	"bjoernblessin.de/groupstack/stack"
	"bjoernblessin.de/groupstack/util/logger"
)

type sentDatagram struct {
	to   netip.AddrPort
	data []byte
}

// recordingSocket keeps everything sent and never receives anything.
type recordingSocket struct {
	sock.Socket
	mu     sync.Mutex
	sent   []sentDatagram
	joined []netip.Addr
}

func (r *recordingSocket) SendTo(addr netip.AddrPort, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentDatagram{to: addr, data: slices.Clone(data)})
	return nil
}

func (r *recordingSocket) Subscribe() chan *sock.Packet     { return make(chan *sock.Packet) }
func (r *recordingSocket) Unsubscribe(ch chan *sock.Packet) {}

func (r *recordingSocket) JoinGroup(group netip.Addr, ifname string) error {
	if !group.IsMulticast() {
		return sock.ErrNotMulticast
	}
	r.joined = append(r.joined, group)
	return nil
}

// dataPayloads returns the payloads of all DATA records sent to addr.
func (r *recordingSocket) dataPayloads(t *testing.T, addr netip.AddrPort) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	var payloads []string
	for _, d := range r.sent {
		if d.to != addr {
			continue
		}
		env, err := pkt.ParseEnvelope(d.data)
		require.NoError(t, err)
		if env.Kind() == pkt.KindData || env.IsIgnore() {
			payloads = append(payloads, string(env.Payload))
		}
	}
	return payloads
}

func setup(t *testing.T, multicast bool) (*recordingSocket, *bytes.Buffer) {
	t.Helper()
	s := &recordingSocket{}
	c := stack.New(common.DefaultConfig(), s, stack.Options{Multicast: multicast, Timer: round.NewManual()})
	t.Cleanup(c.Close)

	SetGlobalVars(s, c, connection.NewDirectory())

	buf := &bytes.Buffer{}
	out = buf
	return s, buf
}

func TestHandleSend(t *testing.T) {
	s, buf := setup(t, false)
	peer := netip.MustParseAddrPort("10.0.0.2:4000")

	HandleSend([]string{"10.0.0.2:4000", "hello", "world"})
	assert.Equal(t, []string{"hello world"}, s.dataPayloads(t, peer))

	HandleSend([]string{"nonsense", "x"})
	assert.Contains(t, buf.String(), "Invalid peer address")
}

func TestSendChunksSplitsLongMessages(t *testing.T) {
	s, _ := setup(t, false)
	peer := netip.MustParseAddrPort("10.0.0.2:4000")

	msg := bytes.Repeat([]byte("x"), 2*common.MAX_PAYLOAD_SIZE_BYTES+1)
	assert.Equal(t, 3, sendChunks(msg, sequencing.To(peer)))

	payloads := s.dataPayloads(t, peer)
	require.Len(t, payloads, 3)
	assert.Len(t, payloads[2], 1)
}

func TestGroupAndMulticast(t *testing.T) {
	s, buf := setup(t, true)
	b := netip.MustParseAddrPort("10.0.0.2:4000")
	c := netip.MustParseAddrPort("10.0.0.3:4000")

	HandleGroup([]string{"add", "team", "10.0.0.2:4000,", "10.0.0.3:4000"})
	HandleGroup([]string{"ls"})
	assert.Contains(t, buf.String(), "team: [10.0.0.2:4000 10.0.0.3:4000]")

	HandleMulticast([]string{"team", "hi", "all"})
	assert.Equal(t, []string{"hi all"}, s.dataPayloads(t, b))
	assert.Equal(t, []string{"hi all"}, s.dataPayloads(t, c))

	raw := netip.MustParseAddrPort("239.1.1.1:5000")
	HandleMulticast([]string{"239.1.1.1:5000", "beacon"})
	assert.Equal(t, []string{"beacon"}, s.dataPayloads(t, raw))

	HandleGroup([]string{"rm", "team"})
	HandleMulticast([]string{"team", "gone"})
	assert.Contains(t, buf.String(), connection.ErrUnknownGroup.Error())
}

func TestHandleJoin(t *testing.T) {
	s, buf := setup(t, true)

	HandleJoin([]string{"239.1.1.1"})
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("239.1.1.1")}, s.joined)

	HandleJoin([]string{"10.0.0.1"})
	assert.Contains(t, buf.String(), sock.ErrNotMulticast.Error())
}

func TestHandleLogLevel(t *testing.T) {
	_, buf := setup(t, false)
	previous := logger.GetLogLevel()
	t.Cleanup(func() { logger.SetLogLevel(previous) })

	HandleLogLevel([]string{"debug"})
	assert.Equal(t, logger.Debug, logger.GetLogLevel())

	HandleLogLevel([]string{"loud"})
	assert.Contains(t, buf.String(), "Invalid log level: loud")
	assert.Equal(t, logger.Debug, logger.GetLogLevel())
}

func TestRenderPeers(t *testing.T) {
	snap := sequencing.Snapshot{
		Multicast:     true,
		Round:         12,
		GroupSequence: 40,
		Peers: []sequencing.PeerSnapshot{
			{Addr: netip.MustParseAddrPort("10.0.0.2:4000"), Synced: true, LastDelivered: 7},
			{Addr: netip.MustParseAddrPort("10.0.0.3:4000"), Gap: &pkt.Range{First: 3, Last: 5}, GapAge: 2},
		},
	}

	text := renderPeers(snap)
	assert.Contains(t, text, "group sequence 40")
	assert.Contains(t, text, "10.0.0.2:4000")
	assert.Contains(t, text, "missing [3, 5] for 2 rounds")

	assert.Contains(t, renderPeers(sequencing.Snapshot{}), "No known peers.")
}

func TestParseMode(t *testing.T) {
	multicast, err := parseMode("multicast")
	require.NoError(t, err)
	assert.True(t, multicast)

	_, err = parseMode("broadcast")
	assert.Error(t, err)
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "a,b,c", joinArgs([]string{"a,", "b", ",c"}))
	assert.Equal(t, "a", joinArgs([]string{"a"}))
}
