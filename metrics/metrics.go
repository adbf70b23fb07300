// Package metrics counts protocol events of a channel.
package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	ChannelID   string         `json:"channel_id"`
	Receive     ReceiveMetrics `json:"receive"`
	Send        SendMetrics    `json:"send"`
	Peers       PeerMetrics    `json:"peers"`
}

type ReceiveMetrics struct {
	Delivered   uint64 `json:"delivered"`
	Buffered    uint64 `json:"buffered"`
	Duplicate   uint64 `json:"duplicate"`
	Discarded   uint64 `json:"discarded"`
	Passthrough uint64 `json:"passthrough"`
	NacksRecv   uint64 `json:"nacks_received"`
}

type SendMetrics struct {
	Sent        uint64 `json:"sent"`
	Retransmits uint64 `json:"retransmits"`
	NacksSent   uint64 `json:"nacks_sent"`
	Resyncs     uint64 `json:"resyncs"`
	Pings       uint64 `json:"pings"`
	Updates     uint64 `json:"updates"`
	Confirms    uint64 `json:"confirms"`
	Failures    uint64 `json:"failures"`
}

type PeerMetrics struct {
	Created uint64 `json:"created"`
	Evicted uint64 `json:"evicted"`
}

// Metrics is safe for concurrent use. A nil *Metrics ignores all increments.
type Metrics struct {
	delivered   atomic.Uint64
	buffered    atomic.Uint64
	duplicate   atomic.Uint64
	discarded   atomic.Uint64
	passthrough atomic.Uint64
	nacksRecv   atomic.Uint64

	sent        atomic.Uint64
	retransmits atomic.Uint64
	nacksSent   atomic.Uint64
	resyncs     atomic.Uint64
	pings       atomic.Uint64
	updates     atomic.Uint64
	confirms    atomic.Uint64
	failures    atomic.Uint64

	peersCreated atomic.Uint64
	peersEvicted atomic.Uint64

	channelID string
}

func New(channelID string) *Metrics {
	return &Metrics{channelID: channelID}
}

func inc(m *Metrics, c func(*Metrics) *atomic.Uint64) {
	if m == nil {
		return
	}
	c(m).Add(1)
}

func (m *Metrics) IncDelivered()   { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.delivered }) }
func (m *Metrics) IncBuffered()    { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.buffered }) }
func (m *Metrics) IncDuplicate()   { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.duplicate }) }
func (m *Metrics) IncDiscarded()   { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.discarded }) }
func (m *Metrics) IncPassthrough() { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.passthrough }) }
func (m *Metrics) IncNackRecv()    { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.nacksRecv }) }
func (m *Metrics) IncSent()        { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.sent }) }
func (m *Metrics) IncRetransmit()  { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.retransmits }) }
func (m *Metrics) IncNackSent()    { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.nacksSent }) }
func (m *Metrics) IncResync()      { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.resyncs }) }
func (m *Metrics) IncPing()        { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.pings }) }
func (m *Metrics) IncUpdate()      { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.updates }) }
func (m *Metrics) IncConfirm()     { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.confirms }) }
func (m *Metrics) IncFailure()     { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.failures }) }
func (m *Metrics) IncPeerCreated() { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.peersCreated }) }
func (m *Metrics) IncPeerEvicted() { inc(m, func(m *Metrics) *atomic.Uint64 { return &m.peersEvicted }) }

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		ChannelID:   m.channelID,
		Receive: ReceiveMetrics{
			Delivered:   m.delivered.Load(),
			Buffered:    m.buffered.Load(),
			Duplicate:   m.duplicate.Load(),
			Discarded:   m.discarded.Load(),
			Passthrough: m.passthrough.Load(),
			NacksRecv:   m.nacksRecv.Load(),
		},
		Send: SendMetrics{
			Sent:        m.sent.Load(),
			Retransmits: m.retransmits.Load(),
			NacksSent:   m.nacksSent.Load(),
			Resyncs:     m.resyncs.Load(),
			Pings:       m.pings.Load(),
			Updates:     m.updates.Load(),
			Confirms:    m.confirms.Load(),
			Failures:    m.failures.Load(),
		},
		Peers: PeerMetrics{
			Created: m.peersCreated.Load(),
			Evicted: m.peersEvicted.Load(),
		},
	}
}

// WriteSnapshot stores the current snapshot as indented JSON. An empty path is a no-op.
func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
