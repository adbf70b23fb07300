// Package round provides the periodic tick that drives session housekeeping.
// Everything time-based in a session is counted in these ticks.
package round

import (
	"sync"
	"time"

	"bjoernblessin.de/groupstack/util/assert"
)

// Timer delivers one value on C per round until Stop is called.
type Timer interface {
	C() <-chan time.Time
	Stop()
}

type Ticker struct {
	ticker *time.Ticker
}

// NewTicker starts a wall clock round timer with the given period.
func NewTicker(period time.Duration) *Ticker {
	assert.Assert(period > 0, "round period must be positive, got %s", period)
	return &Ticker{ticker: time.NewTicker(period)}
}

func (t *Ticker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *Ticker) Stop() {
	t.ticker.Stop()
}

// Manual is a Timer that only ticks when told to. Used by tests and simulations.
type Manual struct {
	ch   chan time.Time
	stop chan struct{}
	once sync.Once
}

func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time), stop: make(chan struct{})}
}

func (m *Manual) C() <-chan time.Time {
	return m.ch
}

// Tick blocks until the owner of the timer has received the tick or the timer is stopped.
// It returns false if the timer was stopped.
func (m *Manual) Tick() bool {
	select {
	case <-m.stop:
		return false
	default:
	}

	select {
	case m.ch <- time.Now():
		return true
	case <-m.stop:
		return false
	}
}

func (m *Manual) Stop() {
	m.once.Do(func() { close(m.stop) })
}
