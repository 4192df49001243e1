// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package filegdb reads tables of an Esri File Geodatabase. The table
// package decodes rows, atx reads attribute indexes and geom decodes
// geometry blobs; this package ties them together behind Table, which
// answers where clauses with index iterators when it can and with a scan
// when it cannot.
package filegdb

import (
	"github.com/featurebasedb/filegdb/atx"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/geom"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/featurebasedb/filegdb/table"
)

// Table is an open table. The embedded Reader exposes the row-level API.
type Table struct {
	*table.Reader

	config  *Config
	spatial bool
	decoder *geom.Decoder
}

// OpenTable opens the .gdbtable file at path. A nil config means
// NewConfig().
func OpenTable(path string, c *Config, l logger.Logger) (*Table, error) {
	if c == nil {
		c = NewConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	if l == nil {
		l = logger.NopLogger
	}
	r, err := table.Open(path, c.TableOptions(l))
	if err != nil {
		return nil, err
	}
	t := &Table{Reader: r, config: c}
	if g := r.Schema().GeomField(); g != nil {
		t.decoder = geom.NewDecoder(g.Geom.Quantization())
	}
	return t, nil
}

// SetSpatialFilter restricts Select to rows whose geometry bounding box
// intersects e. A nil envelope removes the filter.
func (t *Table) SetSpatialFilter(e *geom.Envelope) error {
	if err := t.InstallFilterEnvelope(e); err != nil {
		return err
	}
	t.spatial = e != nil
	return nil
}

// Geometry decodes the geometry of the selected row. ok is false for a
// null geometry.
func (t *Table) Geometry() (g geom.Geometry, ok bool, err error) {
	if t.decoder == nil {
		return nil, false, errors.New(errors.ErrInvalidArgument, "table has no geometry field")
	}
	v, ok, err := t.GetFieldValue(t.GeomFieldIndex())
	if err != nil || !ok {
		return nil, false, err
	}
	g, err = t.decoder.Decode(v.Bytes)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "row %d", t.CurrentRow())
	}
	return g, true, nil
}

// fallback reports whether a failure to build an index iterator should be
// answered by scanning instead.
func fallback(err error) bool {
	switch errors.CodeOf(err) {
	case errors.ErrNoIndex, errors.ErrUnsupported, errors.ErrInvalidArgument:
		return true
	}
	return false
}

// Select returns a cursor over the rows matching where, in row order. A nil
// where selects every live row.
func (t *Table) Select(where *Where) (*Rows, error) {
	rs := &Rows{t: t, row: -1}
	if where == nil {
		return rs, nil
	}
	c, err := where.bind(t.Reader)
	if err != nil {
		return nil, err
	}
	rs.itr, rs.filter, err = t.plan(c)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// plan picks an iterator for c and the part of c the iterator does not
// answer, which Rows evaluates row by row.
func (t *Table) plan(c *cond) (Iterator, *cond, error) {
	if !t.config.Index.Enabled {
		return nil, c, nil
	}
	itr, err := c.iterator(t.Reader)
	if err == nil {
		return itr, nil, nil
	} else if !fallback(err) {
		return nil, nil, err
	}
	t.Logger().Debugf("scanning for %s: %v", c, err)
	if c.kind != condAnd {
		return nil, c, nil
	}

	// Narrow the scan to the conjuncts an index can answer.
	for _, arg := range c.args {
		sub, err := arg.iterator(t.Reader)
		if err != nil {
			if !fallback(err) {
				if itr != nil {
					itr.Close()
				}
				return nil, nil, err
			}
			continue
		}
		if itr == nil {
			itr = sub
		} else {
			itr = BuildAnd(itr, sub)
		}
	}
	return itr, c, nil
}

// FieldStats summarizes the attribute index of one field.
type FieldStats struct {
	Field    *table.Field
	Count    int64
	Min, Max table.Value

	// Aggregate is set for numeric and datetime fields.
	Aggregate *atx.Aggregate
}

// Stats reads the extremes and, where the type allows, the sum of the
// indexed values of the named field.
func (t *Table) Stats(name string) (FieldStats, error) {
	col := t.FieldIndex(name)
	if col < 0 {
		return FieldStats{}, errors.Newf(errors.ErrInvalidArgument, "unknown field %q", name)
	}
	itr, err := BuildIsNotNull(t.Reader, col, true)
	if err != nil {
		return FieldStats{}, err
	}
	defer itr.Close()

	var index *IndexIterator
	switch itr := itr.(type) {
	case *TrivialIterator:
		index = itr.Index()
	case *IndexIterator:
		index = itr
	}
	st := FieldStats{Field: index.Field()}
	if st.Count, err = itr.RowCount(); err != nil {
		return FieldStats{}, err
	}
	if st.Min, _, err = index.MinValue(); err != nil {
		return FieldStats{}, err
	}
	if st.Max, _, err = index.MaxValue(); err != nil {
		return FieldStats{}, err
	}
	if st.Field.Type.Numeric() || st.Field.Type == table.FieldDateTime {
		a, err := index.MinMaxSumCount()
		if err != nil {
			return FieldStats{}, err
		}
		st.Aggregate = &a
	}
	return st, nil
}

// Rows is a cursor over selected rows. Next makes each row current on the
// table.
type Rows struct {
	t      *Table
	itr    Iterator
	filter *cond

	next int64
	row  int64
	done bool
}

// Next selects the next matching row. It returns false once the rows are
// exhausted.
func (rs *Rows) Next() (bool, error) {
	for !rs.done {
		row, err := rs.nextCandidate()
		if err != nil {
			return false, err
		} else if row < 0 {
			rs.done = true
			break
		}
		if ok, err := rs.accept(); err != nil {
			return false, err
		} else if ok {
			rs.row = row
			return true, nil
		}
	}
	rs.row = -1
	return false, nil
}

// nextCandidate selects the next row produced by the iterator, or by a scan
// when there is none.
func (rs *Rows) nextCandidate() (int64, error) {
	if rs.itr != nil {
		for {
			row, err := rs.itr.NextRowSortedByFID()
			if err != nil || row < 0 {
				return -1, err
			}
			if ok, err := rs.t.SelectRow(row); err != nil {
				return -1, err
			} else if ok {
				return row, nil
			}
		}
	}
	if rs.next >= rs.t.TotalRecordCount() {
		return -1, nil
	}
	row, err := rs.t.NextNonEmptyRow(rs.next)
	if err != nil || row < 0 {
		return -1, err
	}
	rs.next = row + 1
	return row, nil
}

// accept applies the spatial filter and the residual where clause to the
// selected row.
func (rs *Rows) accept() (bool, error) {
	if rs.t.spatial {
		v, ok, err := rs.t.GetFieldValue(rs.t.GeomFieldIndex())
		if err != nil {
			return false, err
		} else if !ok || !rs.t.DoesGeometryIntersectsFilterEnvelope(v.Bytes) {
			return false, nil
		}
	}
	if rs.filter == nil {
		return true, nil
	}
	return rs.filter.match(rs.t.Reader)
}

// Row returns the current row, or -1.
func (rs *Rows) Row() int64 { return rs.row }

// Reset rewinds the cursor.
func (rs *Rows) Reset() {
	if rs.itr != nil {
		rs.itr.Reset()
	}
	rs.next = 0
	rs.row = -1
	rs.done = false
}

// Count returns the number of matching rows. The cursor is rewound.
func (rs *Rows) Count() (int64, error) {
	defer rs.Reset()
	if rs.itr != nil && rs.filter == nil && !rs.t.spatial {
		return rs.itr.RowCount()
	}
	rs.Reset()
	var n int64
	for {
		ok, err := rs.Next()
		if err != nil {
			return 0, err
		} else if !ok {
			return n, nil
		}
		n++
	}
}

// Plan describes how rows are found: an iterator tree, a scan, or both.
func (rs *Rows) Plan() string {
	s := "SCAN"
	if rs.itr != nil {
		s = Describe(rs.itr)
	}
	if rs.filter != nil {
		s += " FILTER " + rs.filter.String()
	}
	if rs.t.spatial {
		s += " ENVELOPE"
	}
	return s
}

// Close releases the iterator. The table stays open.
func (rs *Rows) Close() error {
	if rs.itr == nil {
		return nil
	}
	err := rs.itr.Close()
	rs.itr = nil
	return err
}
