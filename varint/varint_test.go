// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package varint_test

import (
	"math"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
	"github.com/stretchr/testify/require"
)

func TestUint64(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 10001, 20001, 1 << 35, math.MaxUint64} {
		buf := varint.AppendUint64(nil, v)
		got, n, err := varint.ReadUint64(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}

	t.Run("Known", func(t *testing.T) {
		require.Equal(t, []byte{0xac, 0x02}, varint.AppendUint64(nil, 300))
	})

	t.Run("Truncated", func(t *testing.T) {
		_, _, err := varint.ReadUint64([]byte{0x80, 0x80})
		require.True(t, errors.Is(err, errors.ErrTruncatedRead), "%v", err)
		_, n := varint.PeekUint64([]byte{0xff})
		require.Zero(t, n)
	})

	t.Run("Overflow32", func(t *testing.T) {
		buf := varint.AppendUint64(nil, 1<<40)
		_, _, err := varint.ReadUint32(buf)
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
		v, n, err := varint.ReadUint32(varint.AppendUint64(nil, math.MaxUint32))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.Equal(t, uint32(math.MaxUint32), v)
	})
}

func TestInt64(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -63, 64, -64, 1000, -123456789, math.MaxInt64 >> 1} {
		buf := varint.AppendInt64(nil, v)
		got, n, err := varint.ReadInt64(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}

	// first byte: 6 data bits, sign in 0x40.
	require.Equal(t, []byte{0x45}, varint.AppendInt64(nil, -5))
	require.Equal(t, []byte{0x80, 0x01}, varint.AppendInt64(nil, 64))

	_, _, err := varint.ReadInt64([]byte{0xc1})
	require.True(t, errors.Is(err, errors.ErrTruncatedRead))
}

func TestSkip(t *testing.T) {
	var buf []byte
	buf = varint.AppendUint64(buf, 5)
	buf = varint.AppendUint64(buf, 1<<20)
	buf = varint.AppendUint64(buf, 7)
	n, err := varint.Skip(buf, 2)
	require.NoError(t, err)
	v, _, err := varint.ReadUint64(buf[n:])
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	_, err = varint.Skip(buf, 4)
	require.True(t, errors.Is(err, errors.ErrTruncatedRead))
}
