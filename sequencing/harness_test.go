package sequencing

import (
	"errors"
	"math/rand"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/metrics"
	"bjoernblessin.de/groupstack/pkt"
)

var (
	addrA = netip.MustParseAddrPort("10.0.0.1:4000")
	addrB = netip.MustParseAddrPort("10.0.0.2:4000")
	addrC = netip.MustParseAddrPort("10.0.0.3:4000")
	addrD = netip.MustParseAddrPort("10.0.0.4:4000")
	addrX = netip.MustParseAddrPort("10.0.0.9:4000")
)

var errLinkDown = errors.New("link down")

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

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

type datagram struct {
	from, to netip.AddrPort
	data     []byte
}

func (d datagram) envelope(t *testing.T) *pkt.Envelope {
	t.Helper()
	env, err := pkt.ParseEnvelope(d.data)
	require.NoError(t, err)
	return env
}

// network is an in-memory datagram transport. Nothing moves until the test hands datagrams to a session.
type network struct {
	queue []datagram
	down  map[netip.AddrPort]bool
}

func newNetwork() *network {
	return &network{down: make(map[netip.AddrPort]bool)}
}

type netLower struct {
	n    *network
	self netip.AddrPort
}

func (l *netLower) SendTo(to netip.AddrPort, data []byte) error {
	if l.n.down[to] {
		return errLinkDown
	}
	l.n.queue = append(l.n.queue, datagram{from: l.self, to: to, data: slices.Clone(data)})
	return nil
}

// take removes and returns the queued datagrams from -> to, keeping their order.
func (n *network) take(from, to netip.AddrPort) []datagram {
	var taken, rest []datagram
	for _, d := range n.queue {
		if d.from == from && d.to == to {
			taken = append(taken, d)
		} else {
			rest = append(rest, d)
		}
	}
	n.queue = rest
	return taken
}

type recorder struct {
	deliveries []Delivery
	failures   []Failure
}

func (r *recorder) Deliver(d Delivery) { r.deliveries = append(r.deliveries, d) }
func (r *recorder) Fail(f Failure)     { r.failures = append(r.failures, f) }

func (r *recorder) payloads() []string {
	out := make([]string, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, string(d.Payload))
	}
	return out
}

type node struct {
	addr    netip.AddrPort
	session Session
	rec     *recorder
	metrics *metrics.Metrics
}

func newNode(t *testing.T, n *network, addr netip.AddrPort, cfg common.Config, multicast bool, baseMicros int64) *node {
	t.Helper()
	rec := &recorder{}
	m := metrics.New(addr.String())
	opts := Options{Clock: fixedClock{t: time.UnixMicro(baseMicros)}, Metrics: m}
	lower := &netLower{n: n, self: addr}

	var s Session
	if multicast {
		s = NewMulticastSession(cfg, lower, rec, opts)
	} else {
		s = NewUnicastSession(cfg, lower, rec, opts)
	}
	return &node{addr: addr, session: s, rec: rec, metrics: m}
}

func (nd *node) receive(d datagram) Outcome {
	return nd.session.Receive(d.data, d.from)
}

func (nd *node) receiveAll(ds []datagram) []Outcome {
	out := make([]Outcome, 0, len(ds))
	for _, d := range ds {
		out = append(out, nd.receive(d))
	}
	return out
}

func (nd *node) peer(t *testing.T, addr netip.AddrPort) PeerSnapshot {
	t.Helper()
	ps, ok := nd.session.Snapshot().Find(addr)
	require.True(t, ok, "%s has no state for %s", nd.addr, addr)
	return ps
}

func (nd *node) rounds(n int) {
	for range n {
		nd.session.Round()
	}
}

func kinds(t *testing.T, ds []datagram) []pkt.Kind {
	t.Helper()
	out := make([]pkt.Kind, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.envelope(t).Kind())
	}
	return out
}

// ranges returns the bodies of all NACK or Update records in ds.
func ranges(t *testing.T, ds []datagram, kind pkt.Kind) []pkt.Range {
	t.Helper()
	var out []pkt.Range
	for _, d := range ds {
		env := d.envelope(t)
		if env.Kind() != kind {
			continue
		}
		r, err := pkt.UnmarshalRange(env.Payload)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func countKind(t *testing.T, ds []datagram, kind pkt.Kind) int {
	t.Helper()
	n := 0
	for _, k := range kinds(t, ds) {
		if k == kind {
			n++
		}
	}
	return n
}

// pump delivers everything in flight in random order, dropping and duplicating datagrams at the given rates,
// then runs one round on every node.
func (n *network) pump(rng *rand.Rand, nodes []*node, drop, dup float64) {
	batch := n.queue
	n.queue = nil
	rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })

	byAddr := make(map[netip.AddrPort]*node, len(nodes))
	for _, nd := range nodes {
		byAddr[nd.addr] = nd
	}

	for _, d := range batch {
		if rng.Float64() < drop {
			continue
		}
		target, ok := byAddr[d.to]
		if !ok {
			continue
		}
		target.receive(d)
		if rng.Float64() < dup {
			target.receive(d)
		}
	}

	for _, nd := range nodes {
		nd.session.Round()
	}
}
