// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb

import (
	"fmt"

	"github.com/featurebasedb/filegdb/atx"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
)

// Iterator yields the row numbers of a table that satisfy a predicate, in
// ascending order. NextRowSortedByFID returns -1 once the iterator is
// exhausted and keeps returning -1 until Reset. Compound iterators own
// their children: closing the parent closes them.
//
// The set of implementations is closed: *TrivialIterator, *NotIterator,
// *AndIterator, *OrIterator and *IndexIterator.
type Iterator interface {
	NextRowSortedByFID() (int64, error)
	Reset()
	RowCount() (int64, error)
	Table() *table.Reader
	Close() error

	iterator()
}

// countRows counts the rows of itr by a full pass. itr is rewound before
// and after.
func countRows(itr Iterator) (int64, error) {
	itr.Reset()
	defer itr.Reset()
	var n int64
	for {
		row, err := itr.NextRowSortedByFID()
		if err != nil {
			return 0, err
		} else if row < 0 {
			return n, nil
		}
		n++
	}
}

// IndexIterator yields the rows matched by an attribute index.
type IndexIterator struct {
	*atx.Iterator
}

func (itr *IndexIterator) iterator() {}

// TrivialIterator yields every row of a table that has no holes. It keeps
// the index it replaced so aggregates can still be answered.
type TrivialIterator struct {
	index *IndexIterator
	total int64
	row   int64
}

func (itr *TrivialIterator) iterator() {}

// NextRowSortedByFID returns the next row, or -1.
func (itr *TrivialIterator) NextRowSortedByFID() (int64, error) {
	if itr.row >= itr.total {
		return -1, nil
	}
	itr.row++
	return itr.row - 1, nil
}

func (itr *TrivialIterator) Reset() { itr.row = 0 }

func (itr *TrivialIterator) RowCount() (int64, error) { return itr.total, nil }

func (itr *TrivialIterator) Table() *table.Reader { return itr.index.Table() }

func (itr *TrivialIterator) Close() error { return itr.index.Close() }

// Index returns the IS NOT NULL index this iterator stands in for.
func (itr *TrivialIterator) Index() *IndexIterator { return itr.index }

// NotIterator yields the live rows its base does not.
type NotIterator struct {
	base    Iterator
	table   *table.Reader
	noHoles bool

	row      int64
	nextBase int64
	primed   bool
	err      error
}

func (itr *NotIterator) iterator() {}

func (itr *NotIterator) Reset() {
	itr.base.Reset()
	itr.row = 0
	itr.nextBase = 0
	itr.primed = false
	itr.err = nil
}

// advanceBase moves to the next base row. An exhausted base is treated as
// ending at the total row count.
func (itr *NotIterator) advanceBase() error {
	row, err := itr.base.NextRowSortedByFID()
	if err != nil {
		return err
	}
	if row < 0 {
		row = itr.table.TotalRecordCount()
	}
	itr.nextBase = row
	return nil
}

// NextRowSortedByFID returns the next row absent from the base, skipping
// rows that were deleted or never written.
func (itr *NotIterator) NextRowSortedByFID() (int64, error) {
	if itr.err != nil {
		return -1, itr.err
	}
	if !itr.primed {
		if err := itr.advanceBase(); err != nil {
			itr.err = err
			return -1, err
		}
		itr.primed = true
	}
	total := itr.table.TotalRecordCount()
	for {
		if itr.row < itr.nextBase {
			row := itr.row
			itr.row++
			if itr.noHoles {
				return row, nil
			}
			off, err := itr.table.RowOffset(row)
			if err != nil {
				itr.err = err
				return -1, err
			} else if off != 0 {
				return row, nil
			}
			continue
		}
		if itr.row >= total {
			return -1, nil
		}
		itr.row++
		if err := itr.advanceBase(); err != nil {
			itr.err = err
			return -1, err
		}
	}
}

// RowCount is the valid row count less the base count.
func (itr *NotIterator) RowCount() (int64, error) {
	n, err := itr.base.RowCount()
	if err != nil {
		return 0, err
	}
	return itr.table.ValidRecordCount() - n, nil
}

func (itr *NotIterator) Table() *table.Reader { return itr.table }

func (itr *NotIterator) Close() error { return itr.base.Close() }

// AndIterator yields the rows present in both children.
type AndIterator struct {
	a, b       Iterator
	rowA, rowB int64
	eof        bool
	err        error
}

func (itr *AndIterator) iterator() {}

func (itr *AndIterator) Reset() {
	itr.a.Reset()
	itr.b.Reset()
	itr.rowA, itr.rowB = -1, -1
	itr.eof = false
	itr.err = nil
}

// NextRowSortedByFID advances whichever child is behind until both agree.
func (itr *AndIterator) NextRowSortedByFID() (row int64, err error) {
	if itr.err != nil {
		return -1, itr.err
	} else if itr.eof {
		return -1, nil
	}
	defer func() {
		if err != nil {
			itr.err = err
		} else if row < 0 {
			itr.eof = true
		}
	}()

	// Equal positions mean the last match was returned, or nothing was.
	if itr.rowA == itr.rowB {
		if itr.rowA, err = itr.a.NextRowSortedByFID(); err != nil {
			return -1, err
		}
		if itr.rowB, err = itr.b.NextRowSortedByFID(); err != nil {
			return -1, err
		}
	}
	for {
		if itr.rowA < 0 || itr.rowB < 0 {
			return -1, nil
		}
		switch {
		case itr.rowA < itr.rowB:
			if itr.rowA, err = itr.a.NextRowSortedByFID(); err != nil {
				return -1, err
			}
		case itr.rowB < itr.rowA:
			if itr.rowB, err = itr.b.NextRowSortedByFID(); err != nil {
				return -1, err
			}
		default:
			return itr.rowA, nil
		}
	}
}

func (itr *AndIterator) RowCount() (int64, error) { return countRows(itr) }

func (itr *AndIterator) Table() *table.Reader { return itr.a.Table() }

func (itr *AndIterator) Close() error {
	errA := itr.a.Close()
	if err := itr.b.Close(); err != nil {
		return err
	}
	return errA
}

// OrIterator yields the rows present in either child, once each.
type OrIterator struct {
	a, b      Iterator
	exclusive bool

	rowA, rowB int64
	primed     bool
	err        error
}

func (itr *OrIterator) iterator() {}

func (itr *OrIterator) Reset() {
	itr.a.Reset()
	itr.b.Reset()
	itr.primed = false
	itr.err = nil
}

// Exclusive reports whether the children were declared disjoint.
func (itr *OrIterator) Exclusive() bool { return itr.exclusive }

// NextRowSortedByFID returns the smaller of the two pending rows. A row
// found in both children of an exclusive Or is reported once and logged.
func (itr *OrIterator) NextRowSortedByFID() (row int64, err error) {
	if itr.err != nil {
		return -1, itr.err
	}
	defer func() {
		if err != nil {
			itr.err = err
		}
	}()

	if !itr.primed {
		if itr.rowA, err = itr.a.NextRowSortedByFID(); err != nil {
			return -1, err
		}
		if itr.rowB, err = itr.b.NextRowSortedByFID(); err != nil {
			return -1, err
		}
		itr.primed = true
	}

	switch {
	case itr.rowA < 0 && itr.rowB < 0:
		return -1, nil
	case itr.rowA < 0 || (itr.rowB >= 0 && itr.rowB < itr.rowA):
		row = itr.rowB
		if itr.rowB, err = itr.b.NextRowSortedByFID(); err != nil {
			return -1, err
		}
		return row, nil
	case itr.rowB < 0 || itr.rowA < itr.rowB:
		row = itr.rowA
		if itr.rowA, err = itr.a.NextRowSortedByFID(); err != nil {
			return -1, err
		}
		return row, nil
	}

	row = itr.rowA
	if itr.exclusive {
		itr.Table().Logger().Errorf("%s: row %d matched by both sides of an exclusive OR",
			errors.ErrLogicInconsistency, row)
	}
	if itr.rowA, err = itr.a.NextRowSortedByFID(); err != nil {
		return -1, err
	}
	if itr.rowB, err = itr.b.NextRowSortedByFID(); err != nil {
		return -1, err
	}
	return row, nil
}

// RowCount sums the children when they are exclusive and otherwise counts
// by a full pass.
func (itr *OrIterator) RowCount() (int64, error) {
	if !itr.exclusive {
		return countRows(itr)
	}
	a, err := itr.a.RowCount()
	if err != nil {
		return 0, err
	}
	b, err := itr.b.RowCount()
	if err != nil {
		return 0, err
	}
	return a + b, nil
}

func (itr *OrIterator) Table() *table.Reader { return itr.a.Table() }

func (itr *OrIterator) Close() error {
	errA := itr.a.Close()
	if err := itr.b.Close(); err != nil {
		return err
	}
	return errA
}

// Build returns an iterator over the rows whose field col compares to v by
// op, using the field's attribute index.
func Build(r *table.Reader, col int, ascending bool, op atx.Op, v table.Value) (Iterator, error) {
	if op == atx.OpIsNotNull {
		return BuildIsNotNull(r, col, ascending)
	}
	it, err := atx.Build(r, col, ascending, op, v)
	if err != nil {
		return nil, err
	}
	return &IndexIterator{Iterator: it}, nil
}

// BuildIsNotNull returns an iterator over the rows where field col is not
// null. When every row of the table qualifies, the cheaper TrivialIterator
// is returned.
func BuildIsNotNull(r *table.Reader, col int, ascending bool) (Iterator, error) {
	it, err := atx.Build(r, col, ascending, atx.OpIsNotNull, table.Value{})
	if err != nil {
		return nil, err
	}
	n, err := it.RowCount()
	if err != nil {
		it.Close()
		return nil, err
	}
	index := &IndexIterator{Iterator: it}
	if n == r.TotalRecordCount() {
		return &TrivialIterator{index: index, total: n}, nil
	}
	return index, nil
}

// BuildNot returns the complement of base among the live rows of its table.
func BuildNot(base Iterator) *NotIterator {
	r := base.Table()
	return &NotIterator{
		base:    base,
		table:   r,
		noHoles: r.ValidRecordCount() == r.TotalRecordCount(),
	}
}

// BuildAnd returns the intersection of a and b.
func BuildAnd(a, b Iterator) *AndIterator {
	return &AndIterator{a: a, b: b, rowA: -1, rowB: -1}
}

// BuildOr returns the union of a and b. exclusive declares that no row
// matches both, which makes RowCount a sum.
func BuildOr(a, b Iterator, exclusive bool) *OrIterator {
	return &OrIterator{a: a, b: b, exclusive: exclusive}
}

// Describe renders the shape of an iterator tree.
func Describe(itr Iterator) string {
	switch itr := itr.(type) {
	case *TrivialIterator:
		return fmt.Sprintf("ALL(%s)", itr.index.Field().Name)
	case *NotIterator:
		return fmt.Sprintf("NOT(%s)", Describe(itr.base))
	case *AndIterator:
		return fmt.Sprintf("AND(%s, %s)", Describe(itr.a), Describe(itr.b))
	case *OrIterator:
		if itr.exclusive {
			return fmt.Sprintf("XOR(%s, %s)", Describe(itr.a), Describe(itr.b))
		}
		return fmt.Sprintf("OR(%s, %s)", Describe(itr.a), Describe(itr.b))
	case *IndexIterator:
		if itr.Op() == atx.OpIsNotNull {
			return fmt.Sprintf("INDEX(%s IS NOT NULL)", itr.Field().Name)
		}
		return fmt.Sprintf("INDEX(%s %s)", itr.Field().Name, itr.Op())
	}
	panic(fmt.Sprintf("unknown iterator %T", itr))
}
