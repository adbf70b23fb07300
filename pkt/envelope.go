// Package pkt defines the wire format of the reliability layer.
package pkt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"bjoernblessin.de/groupstack/util/assert"
)

// Envelope is prepended to every payload sent by a reliability session.
// Format:
//
//	+--------+--------+--------+--------+--------+--------+--------+--------+--------+
//	|  Kind  | Rsvd |C|I|                                                            |
//	|(4 bits)|(2 b) | | |     Confirmed Seq (32 bits)     |    Data Seq (32 bits)    |
//	+--------+--------+--------+--------+--------+--------+--------+--------+--------+
//	|                                Payload ...                                     |
//	+--------+--------+--------+--------+--------+--------+--------+--------+--------+
//
//	I: ignore, the datagram is a raw multicast passthrough and carries no sequence fields
//	C: confirm valid, Confirmed Seq holds the sender's receive progress for this stream
//
// Total size: 9 bytes, or 1 byte for ignore-flagged datagrams.
type Envelope struct {
	Flags        byte
	ConfirmedSeq [4]byte
	DataSeq      [4]byte
	Payload      []byte
}

type Kind byte

const (
	KindData    Kind = 0x0
	KindNack    Kind = 0x1
	KindResync  Kind = 0x2 // "Ignore" record: skip everything up to the advertised sequence
	KindPing    Kind = 0x3
	KindUpdate  Kind = 0x4
	KindConfirm Kind = 0x5
)

const (
	FlagIgnore       = 0b01
	FlagConfirmValid = 0b10
)

const EnvelopeSize = 9

var (
	ErrEmptyDatagram = errors.New("datagram is empty")
	ErrShortEnvelope = errors.New("datagram is shorter than the 9 byte envelope")
	ErrUnknownKind   = errors.New("unknown record kind")
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindNack:
		return "NACK"
	case KindResync:
		return "RESYNC"
	case KindPing:
		return "PING"
	case KindUpdate:
		return "UPDATE"
	case KindConfirm:
		return "CONFIRM"
	}
	return fmt.Sprintf("KIND(0x%X)", byte(k))
}

// MakeFlags creates the flags byte of an envelope.
// - Bits 4-7: record kind
// - Bit 1: confirm valid
// - Bit 0: ignore
func MakeFlags(kind Kind, confirmValid bool, ignore bool) byte {
	assert.Assert(kind <= 0b1111, "kind must be 4 bits (0-15)")

	flags := byte(kind) << 4
	if confirmValid {
		flags |= FlagConfirmValid
	}
	if ignore {
		flags |= FlagIgnore
	}
	return flags
}

// NewEnvelope builds a sequenced envelope. Sequence numbers are truncated to 32 bits.
func NewEnvelope(kind Kind, confirmValid bool, confirmed uint64, seq uint64, payload []byte) *Envelope {
	return &Envelope{
		Flags:        MakeFlags(kind, confirmValid, false),
		ConfirmedSeq: EncodeSeq(confirmed),
		DataSeq:      EncodeSeq(seq),
		Payload:      payload,
	}
}

// NewIgnoreEnvelope wraps a payload that bypasses sequencing entirely.
func NewIgnoreEnvelope(payload []byte) *Envelope {
	return &Envelope{
		Flags:   MakeFlags(KindData, false, true),
		Payload: payload,
	}
}

// ParseEnvelope decodes a datagram. The returned payload is a copy.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDatagram
	}

	flags := data[0]
	if flags&FlagIgnore != 0 {
		payload := make([]byte, len(data)-1)
		copy(payload, data[1:])
		return &Envelope{Flags: flags, Payload: payload}, nil
	}

	if len(data) < EnvelopeSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortEnvelope, len(data))
	}

	env := &Envelope{
		Flags:        flags,
		ConfirmedSeq: [4]byte{data[1], data[2], data[3], data[4]},
		DataSeq:      [4]byte{data[5], data[6], data[7], data[8]},
	}
	if env.Kind() > KindConfirm {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnknownKind, byte(env.Kind()))
	}

	env.Payload = make([]byte, len(data)-EnvelopeSize)
	copy(env.Payload, data[EnvelopeSize:])

	return env, nil
}

// ToByteArray serializes the envelope followed by its payload into a new byte slice.
func (e *Envelope) ToByteArray() []byte {
	if e.IsIgnore() {
		data := make([]byte, 0, 1+len(e.Payload))
		data = append(data, e.Flags)
		return append(data, e.Payload...)
	}

	data := make([]byte, 0, EnvelopeSize+len(e.Payload))
	data = append(data, e.Flags)
	data = append(data, e.ConfirmedSeq[:]...)
	data = append(data, e.DataSeq[:]...)
	return append(data, e.Payload...)
}

func (e *Envelope) Kind() Kind {
	return Kind(e.Flags >> 4)
}

func (e *Envelope) IsIgnore() bool {
	return e.Flags&FlagIgnore != 0
}

func (e *Envelope) HasConfirm() bool {
	return e.Flags&FlagConfirmValid != 0
}

func (e *Envelope) String() string {
	if e.IsIgnore() {
		return fmt.Sprintf("{ IGNORE Len:%d }", len(e.Payload))
	}
	return "{ " +
		fmt.Sprintf("Kind:%s ", e.Kind()) +
		fmt.Sprintf("ConfirmValid:%t ", e.HasConfirm()) +
		fmt.Sprintf("Confirmed:%d ", binary.BigEndian.Uint32(e.ConfirmedSeq[:])) +
		fmt.Sprintf("Seq:%d ", binary.BigEndian.Uint32(e.DataSeq[:])) +
		fmt.Sprintf("Len:%d ", len(e.Payload)) +
		"}"
}
