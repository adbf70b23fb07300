// Package stack runs a sequencing session on top of a datagram socket.
//
// A Channel owns one event loop goroutine. Datagrams from the socket, round ticks and calls from
// other goroutines are all handled on that loop, so the session itself never sees concurrent access.
package stack

import (
	"errors"
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"bjoernblessin.de/groupstack/common"
	"bjoernblessin.de/groupstack/metrics"
	"bjoernblessin.de/groupstack/round"
	"bjoernblessin.de/groupstack/sequencing"
	"bjoernblessin.de/groupstack/sock"
	"bjoernblessin.de/groupstack/util/logger"
	"bjoernblessin.de/groupstack/util/observer"
)

var ErrClosed = errors.New("channel is closed")

// Transport is the part of sock.Socket a channel needs.
type Transport interface {
	SendTo(addr netip.AddrPort, data []byte) error
	Subscribe() chan *sock.Packet
	Unsubscribe(ch chan *sock.Packet)
}

type Options struct {
	Multicast bool
	Timer     round.Timer      // Defaults to a wall clock ticker with the configured round period
	Clock     sequencing.Clock // Defaults to the wall clock
}

type Channel struct {
	id        string
	multicast bool
	session   sequencing.Session
	transport Transport
	timer     round.Timer
	metrics   *metrics.Metrics

	packets chan *sock.Packet
	calls   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	deliveries *observer.Observable[sequencing.Delivery]
	failures   *observer.Observable[sequencing.Failure]
}

// New creates the session and starts the event loop.
func New(cfg common.Config, transport Transport, opts Options) *Channel {
	id := uuid.NewString()

	timer := opts.Timer
	if timer == nil {
		timer = round.NewTicker(cfg.RoundPeriod)
	}

	c := &Channel{
		id:         id,
		multicast:  opts.Multicast,
		transport:  transport,
		timer:      timer,
		metrics:    metrics.New(id),
		packets:    transport.Subscribe(),
		calls:      make(chan func()),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		deliveries: observer.NewQueuedObservable[sequencing.Delivery](),
		failures:   observer.NewQueuedObservable[sequencing.Failure](),
	}

	sessionOpts := sequencing.Options{Clock: opts.Clock, Metrics: c.metrics}
	if opts.Multicast {
		c.session = sequencing.NewMulticastSession(cfg, transport, c, sessionOpts)
	} else {
		c.session = sequencing.NewUnicastSession(cfg, transport, c, sessionOpts)
	}

	logger.Infof("CHANNEL %s started, %s mode", id, c.Mode())

	go c.loop()
	return c
}

func (c *Channel) loop() {
	defer close(c.stopped)

	for {
		select {
		case <-c.done:
			return
		case packet, ok := <-c.packets:
			if !ok {
				logger.Warnf("CHANNEL %s lost its socket subscription", c.id)
				c.packets = nil
				continue
			}
			outcome := c.session.Receive(packet.Data, packet.Addr)
			logger.Tracef("RECV %d bytes from %s: %s", len(packet.Data), packet.Addr, outcome)
		case <-c.timer.C():
			c.session.Round()
		case fn := <-c.calls:
			fn()
		}
	}
}

// call runs fn on the event loop and waits for it to finish.
func (c *Channel) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.calls <- func() { fn(); close(finished) }:
	case <-c.stopped:
		return ErrClosed
	}
	<-finished
	return nil
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Mode() string {
	if c.multicast {
		return "multicast"
	}
	return "unicast"
}

func (c *Channel) Metrics() *metrics.Metrics {
	return c.metrics
}

// Send hands payload to the session. Delivery problems found later are published on Failures.
func (c *Channel) Send(payload []byte, dest sequencing.Destination) error {
	var err error
	if callErr := c.call(func() { err = c.session.Send(payload, dest) }); callErr != nil {
		return callErr
	}
	return err
}

func (c *Channel) Snapshot() (sequencing.Snapshot, error) {
	var snap sequencing.Snapshot
	err := c.call(func() { snap = c.session.Snapshot() })
	return snap, err
}

// Deliveries subscribes to in-order payloads from all peers.
// Nothing is dropped for a slow subscriber, deliveries queue up until they are received.
func (c *Channel) Deliveries() chan sequencing.Delivery {
	return c.deliveries.Subscribe()
}

// Failures subscribes to payloads that will not reach their destination.
func (c *Channel) Failures() chan sequencing.Failure {
	return c.failures.Subscribe()
}

// Deliver is called by the session on the event loop.
func (c *Channel) Deliver(d sequencing.Delivery) {
	c.deliveries.NotifyObservers(d)
}

// Fail is called by the session on the event loop.
func (c *Channel) Fail(f sequencing.Failure) {
	c.failures.NotifyObservers(f)
}

// Close stops the event loop. Subscriptions are closed after their queued events were received.
// It is safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		<-c.stopped

		c.timer.Stop()
		if c.packets != nil {
			c.transport.Unsubscribe(c.packets)
		}
		c.deliveries.Close()
		c.failures.Close()

		logger.Infof("CHANNEL %s closed", c.id)
	})
}
