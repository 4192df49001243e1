// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table_test

import (
	"bytes"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/gdbtest"
	"github.com/featurebasedb/filegdb/table"
	"github.com/stretchr/testify/require"
)

// sparseTable has rows in blocks 0 and 2 only.
func sparseTable(n int) *gdbtest.Table {
	tbl := &gdbtest.Table{
		Sparse: true,
		Fields: []*table.Field{
			gdbtest.ObjectIDField("OBJECTID"),
			gdbtest.NewField("v", table.FieldInt32, false),
		},
	}
	for i := 0; i < n; i++ {
		row := gdbtest.Row{Values: []interface{}{nil, i}}
		if i >= table.BlockSize && i < 2*table.BlockSize {
			row.Absent = true
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func TestLocator_Sparse(t *testing.T) {
	tbl := sparseTable(2100)
	enc, err := tbl.Encode()
	require.NoError(t, err)

	l, err := table.ReadLocator(bytes.NewReader(enc.Locator))
	require.NoError(t, err)
	require.True(t, l.Sparse())
	require.Equal(t, int64(2100), l.TotalRecordCount())
	require.True(t, l.BlockPresent(0))
	require.False(t, l.BlockPresent(1))
	require.True(t, l.BlockPresent(2))

	for _, row := range []int64{0, 5, 1023, 1024, 1500, 2047, 2048, 2099, 7} {
		off, err := l.OffsetForRow(row)
		require.NoError(t, err)
		require.Equal(t, enc.Offsets[row], off, "row %d", row)
	}
	_, err = l.OffsetForRow(2100)
	require.True(t, errors.Is(err, errors.ErrInvalidArgument), "%v", err)
}

func TestReader_NextNonEmptyRow(t *testing.T) {
	path := sparseTable(2100).Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{})
	require.Equal(t, int64(2100-table.BlockSize), r.ValidRecordCount())

	row, err := r.NextNonEmptyRow(1000)
	require.NoError(t, err)
	require.Equal(t, int64(1000), row)

	row, err = r.NextNonEmptyRow(1024)
	require.NoError(t, err)
	require.Equal(t, int64(2048), row)
	v, ok, err := r.GetFieldValue(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(2048), v.Int)

	ok, err = r.SelectRow(1500)
	require.NoError(t, err)
	require.False(t, ok)

	var count int
	for row := int64(0); row >= 0 && row < r.TotalRecordCount(); row++ {
		row, err = r.NextNonEmptyRow(row)
		require.NoError(t, err)
		if row < 0 {
			break
		}
		count++
	}
	require.Equal(t, 2100-table.BlockSize, count)
}

func TestLocator_Dense(t *testing.T) {
	enc, err := sparseTable(1500).Encode()
	require.NoError(t, err)
	tbl := sparseTable(1500)
	tbl.Sparse = false
	dense, err := tbl.Encode()
	require.NoError(t, err)

	l, err := table.ReadLocator(bytes.NewReader(dense.Locator))
	require.NoError(t, err)
	require.False(t, l.Sparse())
	require.True(t, l.BlockPresent(1))
	off, err := l.OffsetForRow(1200)
	require.NoError(t, err)
	require.Zero(t, off)
	off, err = l.OffsetForRow(3)
	require.NoError(t, err)
	require.Equal(t, enc.Offsets[3], off)
}

func TestLocator_Corrupt(t *testing.T) {
	enc, err := sparseTable(2100).Encode()
	require.NoError(t, err)
	const size = 5
	trailer := 16 + 2*table.BlockSize*size

	t.Run("BitmapPopcount", func(t *testing.T) {
		b := append([]byte(nil), enc.Locator...)
		// mark the absent block present
		b[trailer+16] |= 1 << 1
		_, err := table.ReadLocator(bytes.NewReader(b))
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("TrailerBlockCount", func(t *testing.T) {
		b := append([]byte(nil), enc.Locator...)
		b[trailer+8] = 7
		_, err := table.ReadLocator(bytes.NewReader(b))
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("OffsetSize", func(t *testing.T) {
		b := append([]byte(nil), enc.Locator...)
		b[12] = 9
		_, err := table.ReadLocator(bytes.NewReader(b))
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("NoBlocks", func(t *testing.T) {
		b := append([]byte(nil), enc.Locator...)
		b[4] = 0
		_, err := table.ReadLocator(bytes.NewReader(b))
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := table.ReadLocator(bytes.NewReader(enc.Locator[:trailer+4]))
		require.True(t, errors.Is(err, errors.ErrTruncatedRead), "%v", err)
	})
}
