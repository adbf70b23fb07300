package pkt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Range is the body of NACK and Update records. Both ends are inclusive.
//
//	+--------+--------+--------+--------+--------+--------+--------+--------+
//	|                          First (64 bits)                              |
//	+--------+--------+--------+--------+--------+--------+--------+--------+
//	|                          Last (64 bits)                               |
//	+--------+--------+--------+--------+--------+--------+--------+--------+
type Range struct {
	First uint64
	Last  uint64
}

const RangeSize = 16
const SeqSize = 8

var ErrShortRecord = errors.New("control record body too short")

func (r Range) Valid() bool {
	return r.First <= r.Last
}

// Len returns the number of sequence numbers covered by r.
func (r Range) Len() uint64 {
	if !r.Valid() {
		return 0
	}
	return r.Last - r.First + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.First, r.Last)
}

func MarshalRange(r Range) []byte {
	b := make([]byte, RangeSize)
	binary.BigEndian.PutUint64(b[:8], r.First)
	binary.BigEndian.PutUint64(b[8:], r.Last)
	return b
}

// UnmarshalRange reads a range. Ordering of First and Last is not checked here.
func UnmarshalRange(b []byte) (Range, error) {
	if len(b) < RangeSize {
		return Range{}, fmt.Errorf("%w: range needs %d bytes, got %d", ErrShortRecord, RangeSize, len(b))
	}
	return Range{
		First: binary.BigEndian.Uint64(b[:8]),
		Last:  binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// MarshalSeq encodes the body of Resync and Confirm records.
func MarshalSeq(seq uint64) []byte {
	b := make([]byte, SeqSize)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func UnmarshalSeq(b []byte) (uint64, error) {
	if len(b) < SeqSize {
		return 0, fmt.Errorf("%w: sequence needs %d bytes, got %d", ErrShortRecord, SeqSize, len(b))
	}
	return binary.BigEndian.Uint64(b[:SeqSize]), nil
}
