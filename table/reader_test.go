// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table_test

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/gdbtest"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/featurebasedb/filegdb/table"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testGUID = "{2AA27F10-3C5B-4A44-9E0C-6A3C8C1E2B7F}"

var testWhen = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

// threeRows has a live row, a deleted row and a live row with nulls.
func threeRows() *gdbtest.Table {
	return &gdbtest.Table{
		Fields: []*table.Field{
			gdbtest.ObjectIDField("OBJECTID"),
			gdbtest.NewField("name", table.FieldString, true),
			gdbtest.NewField("count", table.FieldInt32, false),
			gdbtest.NewField("ratio", table.FieldFloat64, true),
			gdbtest.NewField("when", table.FieldDateTime, true),
			gdbtest.NewField("gid", table.FieldGlobalID, true),
		},
		Rows: []gdbtest.Row{
			{Values: []interface{}{nil, "alpha", 1, 0.5, testWhen, testGUID}},
			{Values: []interface{}{nil, "beta", 2, nil, nil, nil}, Deleted: true},
			{Values: []interface{}{nil, nil, 3, 2.25, nil, nil}},
		},
	}
}

func mustOpen(t *testing.T, path string, opt table.Options) *table.Reader {
	t.Helper()
	r, err := table.Open(path, opt)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func fieldText(t *testing.T, r *table.Reader, col int) (string, bool) {
	t.Helper()
	v, ok, err := r.GetFieldValue(col)
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

func TestReader_Rows(t *testing.T) {
	path := threeRows().Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{})

	require.Equal(t, int64(3), r.TotalRecordCount())
	require.Equal(t, int64(2), r.ValidRecordCount())
	require.Equal(t, 6, r.FieldCount())
	require.Equal(t, 0, r.Schema().ObjectIDIndex)
	require.Equal(t, -1, r.GeomFieldIndex())
	require.True(t, r.Schema().StringsAreUTF8)
	require.False(t, r.Recovered())

	ok, err := r.SelectRow(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), r.FID(0))

	_, ok = fieldText(t, r, 0)
	require.False(t, ok, "ObjectID has no stored value")
	s, ok := fieldText(t, r, 1)
	require.True(t, ok)
	require.Equal(t, "alpha", s)

	v, ok, err := r.GetFieldValue(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(1), v.Int)

	v, ok, err = r.GetFieldValue(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0.5, v.Float)

	v, ok, err = r.GetFieldValue(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, testWhen.Equal(v.Time), "got %v", v.Time)

	s, ok = fieldText(t, r, 5)
	require.True(t, ok)
	require.Equal(t, testGUID, s)

	ok, err = r.SelectRow(1)
	require.NoError(t, err)
	require.False(t, ok, "deleted row")
	require.Equal(t, int64(-1), r.CurrentRow())
	off, err := r.RowOffset(1)
	require.NoError(t, err)
	require.Zero(t, off)

	ok, err = r.SelectRow(2)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = fieldText(t, r, 1)
	require.False(t, ok, "null name")
	v, ok, err = r.GetFieldValue(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(3), v.Int)
	_, ok = fieldText(t, r, 5)
	require.False(t, ok)

	_, err = r.SelectRow(3)
	require.True(t, errors.Is(err, errors.ErrInvalidArgument), "%v", err)
}

func TestReader_AnyColumnOrder(t *testing.T) {
	path := threeRows().Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{})
	ok, err := r.SelectRow(0)
	require.NoError(t, err)
	require.True(t, ok)

	read := func(cols ...int) []string {
		var out []string
		for _, c := range cols {
			s, _ := fieldText(t, r, c)
			out = append(out, s)
		}
		return out
	}
	forward := read(1, 2, 3, 4, 5)
	backward := read(5, 4, 3, 2, 1)
	for i, j := 0, len(backward)-1; i < j; i, j = i+1, j-1 {
		backward[i], backward[j] = backward[j], backward[i]
	}
	if diff := cmp.Diff(forward, backward); diff != "" {
		t.Fatalf("column order changed values (-forward +backward):\n%s", diff)
	}
	require.Equal(t, forward, read(1, 2, 3, 4, 5), "decoding is idempotent")
	require.Equal(t, []string{"1", "alpha", "1"}, read(2, 1, 2))
	require.Equal(t, 2, r.Cursor().LastCol)
}

func TestReader_UTF16AndDefaults(t *testing.T) {
	name := gdbtest.NewField("name", table.FieldString, true)
	name.HasDefault = true
	name.Default = table.Value{Type: table.FieldString, Str: "none"}
	small := gdbtest.NewField("small", table.FieldInt16, true)
	small.HasDefault = true
	small.Default = table.Value{Type: table.FieldInt16, Int: -7}
	tbl := &gdbtest.Table{
		UTF16: true,
		Fields: []*table.Field{
			gdbtest.ObjectIDField("FID"),
			name,
			small,
			gdbtest.NewField("f32", table.FieldFloat32, true),
			gdbtest.NewField("blob", table.FieldBinary, true),
		},
		Rows: []gdbtest.Row{
			{Values: []interface{}{nil, "héllo wörld", 42, float32(1.5), []byte{1, 2, 3}}},
		},
	}
	r := mustOpen(t, tbl.Write(t, t.TempDir()), table.Options{})
	require.False(t, r.Schema().StringsAreUTF8)

	f := r.Field(1)
	require.True(t, f.HasDefault)
	require.Equal(t, "none", f.Default.Str)
	require.True(t, r.Field(2).HasDefault)
	require.Equal(t, int32(-7), r.Field(2).Default.Int)

	ok, err := r.SelectRow(0)
	require.NoError(t, err)
	require.True(t, ok)
	v, ok, err := r.GetFieldValue(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "héllo wörld", v.Str)
	v, _, err = r.GetFieldValue(2)
	require.NoError(t, err)
	require.Equal(t, int32(42), v.Int)
	v, _, err = r.GetFieldValue(3)
	require.NoError(t, err)
	require.Equal(t, 1.5, v.Float)
	v, _, err = r.GetFieldValue(4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, v.Bytes)
	require.Equal(t, []byte{1, 2, 3}, v.Clone().Bytes)
}

func TestReader_OffsetSizes(t *testing.T) {
	for _, size := range []int{4, 5, 6} {
		tbl := threeRows()
		tbl.OffsetSize = size
		r := mustOpen(t, tbl.Write(t, t.TempDir()), table.Options{})
		require.Equal(t, size, r.Locator().OffsetSize())
		ok, err := r.SelectRow(2)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestReader_CorruptHeader(t *testing.T) {
	enc, err := threeRows().Encode()
	require.NoError(t, err)

	t.Run("NegativeValidCount", func(t *testing.T) {
		b := append([]byte(nil), enc.Table...)
		binary.LittleEndian.PutUint32(b[4:], 0xfffffff0)
		path := writeEncoded(t, b, enc.Locator)
		_, err := table.Open(path, table.Options{})
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("DescriptorLength", func(t *testing.T) {
		b := append([]byte(nil), enc.Table...)
		binary.LittleEndian.PutUint32(b[table.HeaderSize:], 3)
		path := writeEncoded(t, b, enc.Locator)
		_, err := table.Open(path, table.Options{})
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("DescriptorOffsetPastEOF", func(t *testing.T) {
		b := append([]byte(nil), enc.Table...)
		binary.LittleEndian.PutUint64(b[32:], uint64(len(b)+10))
		path := writeEncoded(t, b, enc.Locator)
		_, err := table.Open(path, table.Options{})
		require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
	})

	t.Run("ShortFile", func(t *testing.T) {
		path := writeEncoded(t, enc.Table[:20], enc.Locator)
		_, err := table.Open(path, table.Options{})
		require.True(t, errors.Is(err, errors.ErrTruncatedRead), "%v", err)
	})
}

func TestReader_TruncatedRow(t *testing.T) {
	enc, err := threeRows().Encode()
	require.NoError(t, err)
	path := writeEncoded(t, enc.Table[:len(enc.Table)-3], enc.Locator)
	r := mustOpen(t, path, table.Options{})

	_, err = r.SelectRow(2)
	require.True(t, errors.Is(err, errors.ErrTruncatedRead), "%v", err)
	require.Error(t, r.Err())
	_, _, err = r.GetFieldValue(2)
	require.Error(t, err)

	ok, err := r.SelectRow(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.Err())
}

func TestReader_MaxRowSize(t *testing.T) {
	path := threeRows().Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{MaxRowSize: 8})
	_, err := r.SelectRow(0)
	require.True(t, errors.Is(err, errors.ErrAllocationFailure), "%v", err)
}

func TestReader_ValidCountClamped(t *testing.T) {
	tbl := threeRows()
	n := int32(10)
	tbl.ValidCount = &n
	log := logger.NewBufferLogger()
	r := mustOpen(t, tbl.Write(t, t.TempDir()), table.Options{Logger: log})
	require.Equal(t, int64(3), r.ValidRecordCount())
	require.Contains(t, log.String(), "using the latter")
}

func TestReader_RequireLocator(t *testing.T) {
	tbl := threeRows()
	tbl.NoLocator = true
	path := tbl.Write(t, t.TempDir())
	_, err := table.Open(path, table.Options{RequireLocator: true})
	require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
}

func TestReader_Close(t *testing.T) {
	path := threeRows().Write(t, t.TempDir())
	r, err := table.Open(path, table.Options{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func writeEncoded(t *testing.T, tbl, locator []byte) string {
	t.Helper()
	return writeEncodedDir(t.TempDir(), t, tbl, locator)
}

func writeEncodedDir(dir string, t testing.TB, tbl, locator []byte) string {
	t.Helper()
	path := filepath.Join(dir, gdbtest.DefaultName+".gdbtable")
	gdbtest.WriteFile(t, path, tbl)
	if locator != nil {
		gdbtest.WriteFile(t, filepath.Join(dir, gdbtest.DefaultName+".gdbtablx"), locator)
	}
	return path
}

func TestOpen_Missing(t *testing.T) {
	_, err := table.Open(filepath.Join(t.TempDir(), "nope.gdbtable"), table.Options{})
	require.Error(t, err)
	require.True(t, os.IsNotExist(errors.Cause(err)), "%v", err)
}

// Arbitrary bytes in place of row data must fail cleanly, never panic or
// read outside the row buffer.
func FuzzSelectRow(f *testing.F) {
	enc, err := threeRows().Encode()
	if err != nil {
		f.Fatal(err)
	}
	r, err := table.Open(writeEncodedDir(f.TempDir(), f, enc.Table, enc.Locator), table.Options{})
	if err != nil {
		f.Fatal(err)
	}
	start, err := r.RowOffset(0)
	r.Close()
	if err != nil {
		f.Fatal(err)
	}

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		seed := make([]byte, rng.Intn(40)+4)
		_, _ = rng.Read(seed)
		f.Add(seed)
	}
	f.Add([]byte{0xff, 0xff, 0xff, 0x7f})
	f.Add([]byte{2, 0, 0, 0, 0xff, 0x80})

	f.Fuzz(func(t *testing.T, data []byte) {
		b := append([]byte(nil), enc.Table...)
		copy(b[start:], data)
		r, err := table.Open(writeEncoded(t, b, enc.Locator), table.Options{})
		if err != nil {
			return
		}
		defer r.Close()
		for row := int64(0); row < r.TotalRecordCount(); row++ {
			ok, err := r.SelectRow(row)
			if err != nil {
				require.Error(t, r.Err())
				continue
			} else if !ok {
				continue
			}
			for col := 0; col < r.FieldCount(); col++ {
				if _, _, err := r.GetFieldValue(col); err != nil {
					break
				}
			}
		}
	})
}
