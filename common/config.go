package common

import (
	"fmt"
	"time"
)

const DEFAULT_ROUND_PERIOD = 250 * time.Millisecond // Duration of one housekeeping round
const DEFAULT_RESEND_THRESHOLD_ROUNDS = 2          // Rounds a NACK stays unanswered before it is sent again
const DEFAULT_MAX_NO_TRAFFIC_ROUNDS = 240          // Rounds without application traffic before an idle peer is forgotten
const DEFAULT_MAX_NO_RECEIVE_ROUNDS = 40           // Rounds without any datagram from a peer before it is declared unresponsive
const DEFAULT_MAX_NO_SEND_ROUNDS = 8               // Rounds without sending to a peer before a keepalive Ping is sent
const DEFAULT_CONFIRM_INTERVAL_ROUNDS = 4          // Multicast only: rounds between standalone Confirm records

const UDP_BUFFER_SIZE_BYTES = 1500     // Number of bytes read from the socket per datagram; larger datagrams are truncated
const SOCKET_RECEIVE_BUFFER_SIZE = 500 // Number of datagrams buffered between the socket reader and the channel loop
const MAX_PAYLOAD_SIZE_BYTES = 1200    // Largest payload the CLI puts into a single message

// Config holds the immutable settings of one reliability session.
// All bounds are counted in rounds of RoundPeriod.
type Config struct {
	RoundPeriod           time.Duration
	ResendThresholdRounds int
	MaxNoTrafficRounds    int
	MaxNoReceiveRounds    int
	MaxNoSendRounds       int
	ConfirmIntervalRounds int
}

// DefaultConfig returns the settings used when no flags override them.
func DefaultConfig() Config {
	return Config{
		RoundPeriod:           DEFAULT_ROUND_PERIOD,
		ResendThresholdRounds: DEFAULT_RESEND_THRESHOLD_ROUNDS,
		MaxNoTrafficRounds:    DEFAULT_MAX_NO_TRAFFIC_ROUNDS,
		MaxNoReceiveRounds:    DEFAULT_MAX_NO_RECEIVE_ROUNDS,
		MaxNoSendRounds:       DEFAULT_MAX_NO_SEND_ROUNDS,
		ConfirmIntervalRounds: DEFAULT_CONFIRM_INTERVAL_ROUNDS,
	}
}

// Validate checks that every bound is usable.
func (c Config) Validate() error {
	if c.RoundPeriod <= 0 {
		return ErrInvalidRoundPeriod
	}
	if c.ResendThresholdRounds < 1 {
		return fmt.Errorf("%w: resend threshold %d", ErrInvalidRounds, c.ResendThresholdRounds)
	}
	if c.MaxNoTrafficRounds < 1 {
		return fmt.Errorf("%w: max no traffic %d", ErrInvalidRounds, c.MaxNoTrafficRounds)
	}
	if c.MaxNoReceiveRounds < 1 {
		return fmt.Errorf("%w: max no receive %d", ErrInvalidRounds, c.MaxNoReceiveRounds)
	}
	if c.MaxNoSendRounds < 1 {
		return fmt.Errorf("%w: max no send %d", ErrInvalidRounds, c.MaxNoSendRounds)
	}
	if c.ConfirmIntervalRounds < 1 {
		return fmt.Errorf("%w: confirm interval %d", ErrInvalidRounds, c.ConfirmIntervalRounds)
	}
	if c.MaxNoSendRounds >= c.MaxNoReceiveRounds {
		return ErrKeepaliveTooSlow
	}
	return nil
}
