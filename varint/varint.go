// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package varint implements the base-128 integer encodings used inside
// geodatabase rows and geometry blobs.
//
// Unsigned values use 7 data bits per byte, least significant group first,
// with 0x80 as the continuation bit. Signed coordinate deltas use a
// sign-magnitude form: the first byte carries 6 data bits, 0x40 as the sign
// and 0x80 as the continuation bit; subsequent bytes carry 7 data bits each.
//
// Every decoder comes in two flavours. The Read* functions return a coded
// error describing the failure. The Peek* functions report failure with n == 0
// and never allocate, for use in hot loops where the caller has already
// validated the enclosing extent.
package varint

import (
	"github.com/featurebasedb/filegdb/errors"
)

// MaxLen64 is the longest encoding of a 64-bit value.
const MaxLen64 = 10

// PeekUint64 decodes an unsigned varint from the front of b. n is the number
// of bytes consumed, or 0 if b ends before the value or the value overflows.
func PeekUint64(b []byte) (v uint64, n int) {
	v, n, _ = decodeUint(b, 64)
	return v, n
}

// PeekUint32 is PeekUint64 for values that must fit in 32 bits.
func PeekUint32(b []byte) (v uint32, n int) {
	u, n, _ := decodeUint(b, 32)
	return uint32(u), n
}

// ReadUint64 decodes an unsigned varint from the front of b.
func ReadUint64(b []byte) (uint64, int, error) {
	v, n, overflow := decodeUint(b, 64)
	if n == 0 {
		return 0, 0, failure(overflow)
	}
	return v, n, nil
}

// ReadUint32 decodes an unsigned varint that must fit in 32 bits.
func ReadUint32(b []byte) (uint32, int, error) {
	v, n, overflow := decodeUint(b, 32)
	if n == 0 {
		return 0, 0, failure(overflow)
	}
	return uint32(v), n, nil
}

func decodeUint(b []byte, bits uint) (v uint64, n int, overflow bool) {
	var shift uint
	for i, c := range b {
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, false
		}
		shift += 7
		if shift >= bits {
			return 0, 0, true
		}
	}
	return 0, 0, false
}

func failure(overflow bool) error {
	if overflow {
		return errors.New(errors.ErrStructuralCorruption, "varint overflows its width")
	}
	return errors.New(errors.ErrTruncatedRead, "varint runs past end of buffer")
}

// PeekInt64 decodes a sign-magnitude varint delta from the front of b.
func PeekInt64(b []byte) (v int64, n int) {
	v, n, _ = decodeInt(b)
	return v, n
}

// ReadInt64 decodes a sign-magnitude varint delta from the front of b.
func ReadInt64(b []byte) (int64, int, error) {
	v, n, overflow := decodeInt(b)
	if n == 0 {
		return 0, 0, failure(overflow)
	}
	return v, n, nil
}

func decodeInt(b []byte) (v int64, n int, overflow bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	c := b[0]
	u := uint64(c & 0x3f)
	neg := c&0x40 != 0
	n = 1
	if c&0x80 != 0 {
		shift := uint(6)
		for {
			if n >= len(b) {
				return 0, 0, false
			}
			c = b[n]
			n++
			u |= uint64(c&0x7f) << shift
			if c&0x80 == 0 {
				break
			}
			shift += 7
			if shift >= 64 {
				return 0, 0, true
			}
		}
	}
	if neg {
		return -int64(u), n, false
	}
	return int64(u), n, false
}

// Skip advances past count unsigned varints and returns the number of bytes
// skipped.
func Skip(b []byte, count int) (int, error) {
	pos := 0
	for i := 0; i < count; i++ {
		for {
			if pos >= len(b) {
				return 0, errors.New(errors.ErrTruncatedRead, "varint runs past end of buffer")
			}
			c := b[pos]
			pos++
			if c&0x80 == 0 {
				break
			}
		}
	}
	return pos, nil
}

// AppendUint64 appends the unsigned varint encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendInt64 appends the sign-magnitude delta encoding of v to dst.
func AppendInt64(dst []byte, v int64) []byte {
	var u uint64
	var sign byte
	if v < 0 {
		u, sign = uint64(-v), 0x40
	} else {
		u = uint64(v)
	}
	first := byte(u&0x3f) | sign
	u >>= 6
	if u == 0 {
		return append(dst, first)
	}
	dst = append(dst, first|0x80)
	return AppendUint64(dst, u)
}
