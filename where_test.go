// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb_test

import (
	"testing"
	"time"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/gdbtest"
	"github.com/featurebasedb/filegdb/geom"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTable(t *testing.T, path string, c *filegdb.Config) *filegdb.Table {
	t.Helper()
	tbl, err := filegdb.OpenTable(path, c, logger.NewLogfLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

// selectRows runs where against tbl and returns the matching rows and the
// plan.
func selectRows(t *testing.T, tbl *filegdb.Table, where string) ([]int64, string) {
	t.Helper()
	var w *filegdb.Where
	if where != "" {
		var err error
		w, err = filegdb.ParseWhere(where)
		require.NoError(t, err)
	}
	rs, err := tbl.Select(w)
	require.NoError(t, err)
	defer rs.Close()

	var rows []int64
	for {
		ok, err := rs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, rs.Row(), tbl.CurrentRow())
		rows = append(rows, rs.Row())
	}
	cnt, err := rs.Count()
	require.NoError(t, err)
	require.Equal(t, int64(len(rows)), cnt)
	return rows, rs.Plan()
}

func TestParseWhere_Errors(t *testing.T) {
	for _, s := range []string{
		"",
		"   ",
		"n >",
		"n = = 1",
		"n IN ()",
		"n BETWEEN 1",
		"n IS NOT",
		"(n = 1",
		"n LIKE 'x'",
		"= 3",
	} {
		_, err := filegdb.ParseWhere(s)
		require.Error(t, err, s)
		require.True(t, errors.Is(err, errors.ErrInvalidArgument), s)
	}

	w, err := filegdb.ParseWhere("  n = 1 ")
	require.NoError(t, err)
	require.Equal(t, "n = 1", w.String())
}

func TestTable_Select(t *testing.T) {
	const n = 50
	path := writeTable(t, parcelTable(n))
	tbl := openTable(t, path, nil)
	noIndex := filegdb.NewConfig()
	noIndex.Index.Enabled = false
	scan := openTable(t, path, noIndex)

	score := func(p parcel) (float64, bool) {
		s, ok := p.score.(float64)
		return s, ok
	}
	day := func(d int) time.Time { return baseTime.Add(time.Duration(d) * 24 * time.Hour) }

	for _, tt := range []struct {
		where string
		pred  func(i int, p parcel) bool
		plan  string
	}{
		{
			where: "n = 3",
			pred:  func(_ int, p parcel) bool { return p.n == 3 },
			plan:  "INDEX(n =)",
		},
		{
			where: "n >= 2 AND n < 4",
			pred:  func(_ int, p parcel) bool { return p.n >= 2 && p.n < 4 },
			plan:  "AND(INDEX(n >=), INDEX(n <))",
		},
		{
			where: "n BETWEEN 1 AND 2 OR score > 20",
			pred: func(_ int, p parcel) bool {
				s, ok := score(p)
				return (p.n >= 1 && p.n <= 2) || (ok && s > 20)
			},
			plan: "OR(AND(INDEX(n >=), INDEX(n <=)), INDEX(score >))",
		},
		{
			where: "n IN (0, 4, 5)",
			pred:  func(_ int, p parcel) bool { return p.n == 0 || p.n == 4 || p.n == 5 },
			plan:  "OR(OR(INDEX(n =), INDEX(n =)), INDEX(n =))",
		},
		{
			where: "n <> 2",
			pred:  func(_ int, p parcel) bool { return p.n != 2 },
			plan:  "XOR(INDEX(n <), INDEX(n >))",
		},
		{
			where: "score != 3",
			pred: func(_ int, p parcel) bool {
				s, ok := score(p)
				return ok && s != 3
			},
			plan: "XOR(INDEX(score <), INDEX(score >))",
		},
		{
			where: "name IS NULL",
			pred:  func(_ int, p parcel) bool { return p.name == nil },
			plan:  "NOT(INDEX(name IS NOT NULL))",
		},
		{
			where: "name is not null and n = 1",
			pred:  func(_ int, p parcel) bool { return p.name != nil && p.n == 1 },
			plan:  "AND(INDEX(name IS NOT NULL), INDEX(n =))",
		},
		{
			where: "NOT (n < 3) AND score IS NOT NULL",
			pred: func(_ int, p parcel) bool {
				_, ok := score(p)
				return p.n >= 3 && ok
			},
			plan: "AND(NOT(INDEX(n <)), INDEX(score IS NOT NULL))",
		},
		{
			where: "name >= 'p40'",
			pred: func(_ int, p parcel) bool {
				s, ok := p.name.(string)
				return ok && s >= "p40"
			},
			plan: "INDEX(name >=)",
		},
		{
			where: `name = "p11"`,
			pred:  func(i int, p parcel) bool { return i == 11 },
			plan:  "INDEX(name =)",
		},
		{
			where: "when = '2021-03-02'",
			pred:  func(_ int, p parcel) bool { return p.when == day(1) },
			plan:  "INDEX(when =)",
		},
		{
			where: "when < '2021/03/03 00:00:00'",
			pred: func(_ int, p parcel) bool {
				w, ok := p.when.(time.Time)
				return ok && w.Before(day(2))
			},
			plan: "INDEX(when <)",
		},
		{
			where: "code > 60",
			pred:  func(_ int, p parcel) bool { return p.code > 60 },
			plan:  "SCAN FILTER code > 60",
		},
		{
			where: "n = 1 AND code < 90",
			pred:  func(_ int, p parcel) bool { return p.n == 1 && p.code < 90 },
			plan:  "INDEX(n =) FILTER (n = 1) AND (code < 90)",
		},
		{
			where: "n = 1 OR code < 9",
			pred:  func(_ int, p parcel) bool { return p.n == 1 || p.code < 9 },
			plan:  "SCAN FILTER (n = 1) OR (code < 9)",
		},
		{
			where: "label = 'L1'",
			pred:  func(_ int, p parcel) bool { return p.label == "L1" },
			plan:  "SCAN FILTER label = L1",
		},
		{
			where: "label IS NOT NULL AND n = 2",
			pred:  func(_ int, p parcel) bool { return p.n == 2 },
			plan:  "AND(INDEX(label IS NOT NULL), INDEX(n =))",
		},
		{
			where: "OBJECTID <= 6",
			pred:  func(i int, p parcel) bool { return i < 6 },
			plan:  "SCAN FILTER OBJECTID <= 6",
		},
		{
			where: "NAME = 'p01' or N in (2)",
			pred:  func(i int, p parcel) bool { return i == 1 || p.n == 2 },
			plan:  "OR(INDEX(name =), INDEX(n =))",
		},
	} {
		t.Run(tt.where, func(t *testing.T) {
			exp := want(n, tt.pred)
			rows, plan := selectRows(t, tbl, tt.where)
			require.Equal(t, exp, rows)
			assert.Equal(t, tt.plan, plan)

			rows, plan = selectRows(t, scan, tt.where)
			require.Equal(t, exp, rows, "scan")
			assert.Contains(t, plan, "SCAN FILTER")
		})
	}
}

func TestTable_SelectAll(t *testing.T) {
	tbl := openTable(t, writeTable(t, parcelTable(30)), nil)
	rows, plan := selectRows(t, tbl, "")
	require.Equal(t, want(30, func(int, parcel) bool { return true }), rows)
	require.Equal(t, "SCAN", plan)
}

func TestTable_SelectBindErrors(t *testing.T) {
	tbl := openTable(t, writeTable(t, parcelTable(10)), nil)
	for _, s := range []string{
		"missing = 1",
		"n = 'x'",
		"n = 1.5",
		"score = 'x'",
		"name = 3",
		"when = 'yesterday'",
		"SHAPE IS NULL AND SHAPE = 1",
	} {
		w, err := filegdb.ParseWhere(s)
		require.NoError(t, err, s)
		_, err = tbl.Select(w)
		require.Error(t, err, s)
	}
}

func TestTable_SpatialFilter(t *testing.T) {
	const n = 30
	tbl := openTable(t, writeTable(t, parcelTable(n)), nil)

	require.NoError(t, tbl.SetSpatialFilter(&geom.Envelope{MinX: 9.5, MinY: 9.5, MaxX: 20.5, MaxY: 20.5}))
	rows, plan := selectRows(t, tbl, "")
	require.Equal(t, want(n, func(i int, _ parcel) bool { return i >= 10 && i <= 20 }), rows)
	require.Equal(t, "SCAN ENVELOPE", plan)

	rows, _ = selectRows(t, tbl, "n = 0")
	require.Equal(t, want(n, func(i int, p parcel) bool { return i >= 10 && i <= 20 && p.n == 0 }), rows)

	require.NoError(t, tbl.SetSpatialFilter(nil))
	rows, _ = selectRows(t, tbl, "")
	require.Len(t, rows, n-2)
}

func TestTable_Geometry(t *testing.T) {
	tbl := openTable(t, writeTable(t, parcelTable(5)), nil)
	ok, err := tbl.SelectRow(3)
	require.NoError(t, err)
	require.True(t, ok)
	g, ok, err := tbl.Geometry()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, geom.Envelope{MinX: 3, MinY: 3, MaxX: 3, MaxY: 3}, g.Envelope())
}

func TestTable_Stats(t *testing.T) {
	const n = 40
	tbl := openTable(t, writeTable(t, parcelTable(n)), nil)

	st, err := tbl.Stats("score")
	require.NoError(t, err)
	var sum float64
	var cnt int64
	lo, hi := 1e9, -1e9
	for _, row := range want(n, func(_ int, p parcel) bool { return p.score != nil }) {
		s := parcelAt(int(row)).score.(float64)
		sum += s
		cnt++
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	require.Equal(t, cnt, st.Count)
	require.Equal(t, lo, st.Min.Float)
	require.Equal(t, hi, st.Max.Float)
	require.NotNil(t, st.Aggregate)
	require.Equal(t, sum, st.Aggregate.Sum)
	require.Equal(t, cnt, st.Aggregate.Count)

	st, err = tbl.Stats("name")
	require.NoError(t, err)
	require.Nil(t, st.Aggregate)
	require.Equal(t, "p00", st.Min.Str)
	require.Equal(t, "p39", st.Max.Str)

	_, err = tbl.Stats("code")
	require.True(t, errors.Is(err, errors.ErrNoIndex))
	_, err = tbl.Stats("nope")
	require.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestTable_CorruptIndexAborts(t *testing.T) {
	tbl := parcelTable(20)
	path := writeTable(t, tbl)
	ft := openTable(t, path, nil)
	// Truncate the n index to half a page.
	idx := ft.Field(colN).Index()
	require.NotNil(t, idx)
	gdbtest.WriteFile(t, ft.IndexPath(idx), make([]byte, 100))

	w, err := filegdb.ParseWhere("n = 1")
	require.NoError(t, err)
	_, err = ft.Select(w)
	require.Error(t, err)
	require.False(t, errors.Is(err, errors.ErrNoIndex))
}
