// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table_test

import (
	"math/rand"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/featurebasedb/filegdb/table"
	"github.com/stretchr/testify/require"
)

func TestRecovery_MissingLocator(t *testing.T) {
	tbl := threeRows()
	tbl.NoLocator = true
	enc, err := tbl.Encode()
	require.NoError(t, err)
	path := writeEncoded(t, enc.Table, nil)

	log := logger.NewBufferLogger()
	r := mustOpen(t, path, table.Options{Logger: log})
	require.True(t, r.Recovered())
	require.Nil(t, r.Locator())
	require.Contains(t, log.String(), "could not be found")
	require.Equal(t, int64(3), r.TotalRecordCount())
	require.Equal(t, int64(2), r.ValidRecordCount())

	for row, want := range enc.Offsets {
		off, err := r.RowOffset(int64(row))
		require.NoError(t, err)
		require.Equal(t, want, off, "row %d", row)
	}

	ok, err := r.SelectRow(1)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.SelectRow(2)
	require.NoError(t, err)
	require.True(t, ok)
	v, ok, err := r.GetFieldValue(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int32(3), v.Int)
}

func TestRecovery_ReportDeleted(t *testing.T) {
	tbl := threeRows()
	path := tbl.Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{IgnoreLocator: true, ReportDeleted: true})
	require.True(t, r.Recovered())
	require.Equal(t, int64(3), r.ValidRecordCount())

	ok, err := r.SelectRow(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, r.IsDeleted())
	s, ok := fieldText(t, r, 1)
	require.True(t, ok)
	require.Equal(t, "beta", s)

	ok, err = r.SelectRow(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, r.IsDeleted())
}

func TestRecovery_MatchesLocator(t *testing.T) {
	tbl := sparseTable(1100)
	path := tbl.Write(t, t.TempDir())
	withLocator := mustOpen(t, path, table.Options{})
	scanned := mustOpen(t, path, table.Options{IgnoreLocator: true})

	require.Equal(t, withLocator.ValidRecordCount(), scanned.ValidRecordCount())
	// Absent rows leave no trace in the table file, so the scan numbers
	// live rows consecutively.
	require.Equal(t, withLocator.ValidRecordCount(), scanned.TotalRecordCount())

	var row int64
	for i := int64(0); i < withLocator.TotalRecordCount(); i++ {
		ok, err := withLocator.SelectRow(i)
		require.NoError(t, err)
		if !ok {
			continue
		}
		want, _, err := withLocator.GetFieldValue(1)
		require.NoError(t, err)
		ok, err = scanned.SelectRow(row)
		require.NoError(t, err)
		require.True(t, ok)
		got, _, err := scanned.GetFieldValue(1)
		require.NoError(t, err)
		require.Equal(t, want.Int, got.Int)
		row++
	}
}

func TestRecovery_GuessAgain(t *testing.T) {
	path := threeRows().Write(t, t.TempDir())
	r := mustOpen(t, path, table.Options{})
	require.False(t, r.Recovered())
	require.NoError(t, r.GuessFeatureLocations())
	require.True(t, r.Recovered())
	require.Equal(t, int64(3), r.TotalRecordCount())
}

func TestRecovery_NoRows(t *testing.T) {
	tbl := threeRows()
	tbl.Rows = nil
	tbl.NoLocator = true
	n := int32(4)
	tbl.ValidCount = &n
	_, err := table.Open(tbl.Write(t, t.TempDir()), table.Options{})
	require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
}

// Random bytes after the header must never make the scan panic or report
// rows that fail to decode.
func TestRecovery_Garbage(t *testing.T) {
	tbl := threeRows()
	tbl.Rows = nil
	tbl.NoLocator = true
	enc, err := tbl.Encode()
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		junk := make([]byte, 64+rnd.Intn(512))
		rnd.Read(junk)
		b := append(append([]byte(nil), enc.Table...), junk...)
		// claim one valid row so the scan runs
		b[4] = 1
		r, err := table.Open(writeEncoded(t, b, nil), table.Options{})
		if err != nil {
			require.True(t, errors.Is(err, errors.ErrStructuralCorruption), "%v", err)
			continue
		}
		for row := int64(0); row < r.TotalRecordCount(); row++ {
			ok, err := r.SelectRow(row)
			if err != nil || !ok {
				continue
			}
			for col := 0; col < r.FieldCount(); col++ {
				_, _, err := r.GetFieldValue(col)
				require.NoError(t, err, "row %d col %d", row, col)
			}
		}
		r.Close()
	}
}
