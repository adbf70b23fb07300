package pkt

import "encoding/binary"

// EncodeSeq returns the low 32 bits of seq in network byte order.
func EncodeSeq(seq uint64) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(seq))
	return b
}

// DecodeSeq reconstructs the 64-bit sequence number closest to base whose low 32 bits equal b.
// The result is exact for every seq within (base - 2^31, base + 2^31).
// Values that would fall below zero are resolved upwards instead.
func DecodeSeq(b [4]byte, base uint64) uint64 {
	d := int32(binary.BigEndian.Uint32(b[:]) - uint32(base))
	if d < 0 && uint64(-int64(d)) > base {
		return base + uint64(uint32(d))
	}
	return base + uint64(int64(d))
}
