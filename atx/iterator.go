// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package atx

import (
	"os"
	"strings"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/featurebasedb/filegdb/table"
	"golang.org/x/exp/slices"
)

// level is the traversal state of one interior level of the tree.
// [first, last] is the range of child slots that can hold matches and cur
// the slot being visited.
type level struct {
	page        []byte
	subCount    int
	first, last int
	cur         int

	// lastChild is the child page most recently descended into.
	lastChild uint32
}

// Iterator enumerates the rows whose indexed field satisfies one
// comparison.
//
// NextRow returns rows in value order. NextRowSortedByFID returns them in
// ascending row order, which for anything but an ascending equality search
// means reading every match once and sorting them.
type Iterator struct {
	table   *table.Reader
	field   *table.Field
	f       *os.File
	path    string
	logger  logger.Logger
	trailer Trailer

	op        Op
	ascending bool
	key       key

	// alwaysFalse is set when the search value cannot match anything.
	alwaysFalse bool

	levels [MaxDepth - 1]level

	leaf      []byte
	leafCount int
	leafCur   int
	rootRead  bool

	eof bool
	err error

	sorted     []int64
	sortedDone bool
	sortedPos  int
}

// Build opens the attribute index of field col and positions an iterator
// on the rows for which "field op v" holds. v is ignored for OpIsNotNull.
func Build(r *table.Reader, col int, ascending bool, op Op, v table.Value) (_ *Iterator, err error) {
	defer func() {
		if err != nil {
			CounterIndexBuildFailures.WithLabelValues(string(errors.CodeOf(err))).Inc()
		}
	}()
	if col < 0 || col >= r.FieldCount() {
		return nil, errors.Newf(errors.ErrInvalidArgument, "field %d out of range [0,%d)", col, r.FieldCount())
	}
	if op < OpLT || op > OpIsNotNull {
		return nil, errors.Newf(errors.ErrInvalidArgument, "invalid operator %v", op)
	}
	fld := r.Field(col)
	idx := fld.Index()
	if idx == nil {
		return nil, errors.Newf(errors.ErrNoIndex, "field %s has no attribute index", fld.Name)
	}
	if !indexable(fld.Type) {
		return nil, errors.Newf(errors.ErrUnsupported, "cannot use index on %s field %s", fld.Type, fld.Name)
	}
	// A LOWER() index holds folded values, which only an IS NOT NULL
	// search can use.
	if fld.Type == table.FieldString && op != OpIsNotNull && strings.HasPrefix(strings.ToUpper(idx.Expression), "LOWER(") {
		return nil, errors.Newf(errors.ErrUnsupported, "index %s on %s only supports IS NOT NULL", idx.Name, idx.Expression)
	}

	it := &Iterator{
		table:     r,
		field:     fld,
		path:      r.IndexPath(idx),
		logger:    r.Logger(),
		op:        op,
		ascending: ascending,
		leaf:      make([]byte, PageSize),
	}
	if it.f, err = os.Open(it.path); err != nil {
		return nil, errors.Wrapf(err, "opening index %s", idx.Name)
	}
	if err := it.init(v); err != nil {
		it.Close()
		return nil, errors.WithMessagef(err, "index %s", idx.Name)
	}
	CounterIndexBuilds.WithLabelValues(op.String()).Inc()
	if op == OpIsNotNull {
		it.logger.Debugf("using index on field %s (%s)", fld.Name, op)
	} else {
		it.logger.Debugf("using index on field %s (%s %s)", fld.Name, op, v.Text())
	}
	return it, nil
}

func (it *Iterator) init(v table.Value) error {
	fi, err := it.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	if it.trailer, err = ReadTrailer(it.f, fi.Size()); err != nil {
		return err
	}
	if it.trailer.ValueCount > it.table.ValidRecordCount() {
		return errors.Newf(errors.ErrStructuralCorruption, "index holds %d values but the table has %d valid records",
			it.trailer.ValueCount, it.table.ValidRecordCount())
	}
	if err := checkValueSize(it.field.Type, it.trailer.ValueSize); err != nil {
		return err
	}
	if it.op != OpIsNotNull {
		if it.key, it.alwaysFalse, err = newKey(it.field.Type, it.trailer.ValueSize, it.op, v); err != nil {
			return err
		}
	}

	if it.trailer.ValueCount > 0 {
		if it.trailer.Depth == 1 {
			it.levels[0].first, it.levels[0].last = 0, 0
		} else {
			it.levels[0].page = make([]byte, PageSize)
			if err := it.findPages(0, 1); err != nil {
				return err
			}
		}
	}
	it.Reset()
	return nil
}

// Close releases the index file.
func (it *Iterator) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}

// Table returns the table the index belongs to.
func (it *Iterator) Table() *table.Reader { return it.table }

// Field returns the indexed field.
func (it *Iterator) Field() *table.Field { return it.field }

// Op returns the comparison the iterator evaluates.
func (it *Iterator) Op() Op { return it.op }

// Ascending reports whether NextRow walks values upward.
func (it *Iterator) Ascending() bool { return it.ascending }

// Trailer returns the decoded index trailer.
func (it *Iterator) Trailer() Trailer { return it.trailer }

// Err returns the error that stopped the iterator, if any.
func (it *Iterator) Err() error { return it.err }

// Reset rewinds the iterator. Rows already sorted by NextRowSortedByFID
// are kept.
func (it *Iterator) Reset() {
	l0 := &it.levels[0]
	if it.ascending {
		l0.cur = l0.first - 1
	} else {
		l0.cur = l0.last + 1
	}
	l0.lastChild = 0
	for i := 1; i < len(it.levels); i++ {
		l := &it.levels[i]
		l.first, l.last, l.cur = -1, -1, -1
		l.lastChild = 0
	}
	it.leafCount, it.leafCur = 0, 0
	it.rootRead = false
	it.sortedPos = 0
	it.err = nil
	it.eof = it.trailer.ValueCount == 0 || it.alwaysFalse
}

func (it *Iterator) readPage(pgno uint32, page []byte) error {
	if pgno < 1 || pgno > it.trailer.PageCount {
		return errors.Newf(errors.ErrStructuralCorruption, "page %d out of range [1,%d]", pgno, it.trailer.PageCount)
	}
	if err := readAt(it.f, page, int64(pgno-1)*PageSize); err != nil {
		return errors.WithMessagef(err, "reading page %d", pgno)
	}
	CounterIndexPagesRead.Inc()
	return nil
}

func (it *Iterator) checkSubCount(n uint32, pgno uint32) error {
	if n == 0 || n > uint32(it.trailer.MaxPerPage) {
		return errors.Newf(errors.ErrStructuralCorruption, "page %d declares %d sub pages, expected [1,%d]", pgno, n, it.trailer.MaxPerPage)
	}
	return nil
}

// findPages loads interior page pgno at level lvl and records which of its
// children can hold matching values.
func (it *Iterator) findPages(lvl int, pgno uint32) error {
	l := &it.levels[lvl]
	if l.page == nil {
		l.page = make([]byte, PageSize)
	}
	if err := it.readPage(pgno, l.page); err != nil {
		return err
	}
	n := readSubCount(l.page)
	if err := it.checkSubCount(n, pgno); err != nil {
		return err
	}
	l.subCount = int(n)
	if it.trailer.Depth == 2 && it.trailer.ValueCount > int64(it.trailer.MaxPerPage)*int64(l.subCount+1) {
		return errors.Newf(errors.ErrStructuralCorruption, "%d values cannot fit below %d leaves", it.trailer.ValueCount, l.subCount+1)
	}

	if it.op == OpIsNotNull {
		l.first, l.last = 0, l.subCount
		return nil
	}

	l.first, l.last = -1, -1
	vs, off := it.trailer.ValueSize, it.trailer.FirstValueOffset
scan:
	for i := 0; i < l.subCount; i++ {
		c := it.key.compare(l.page[off+i*vs : off+(i+1)*vs])
		switch it.op {
		case OpLT, OpLE:
			if l.first < 0 {
				l.first, l.last = i, i
			} else {
				l.last = i
				if c < 0 {
					break scan
				}
			}
		case OpEQ:
			if l.first < 0 {
				if c <= 0 {
					l.first, l.last = i, i
				}
			} else if c == 0 {
				l.last = i
			} else {
				break scan
			}
		case OpGE:
			if c <= 0 {
				l.first, l.last = i, l.subCount
				break scan
			}
		case OpGT:
			if c < 0 {
				l.first, l.last = i, l.subCount
				break scan
			}
		}
	}
	if l.first < 0 {
		// Only the last child, which has no key, can still match.
		l.first, l.last = l.subCount, l.subCount
	} else if l.last < l.subCount {
		l.last++
	}
	return nil
}

// nextChild moves level lvl to its next child slot, loading the next page
// of the level when the current one is used up. It returns false at the
// end of the level.
func (it *Iterator) nextChild(lvl int) (bool, error) {
	l := &it.levels[lvl]
	if (it.ascending && l.cur == l.last) || (!it.ascending && l.cur == l.first) {
		if lvl == 0 {
			return false, nil
		}
		if ok, err := it.nextChild(lvl - 1); !ok || err != nil {
			return false, err
		}
		pgno, err := it.childPage(lvl - 1)
		if err != nil {
			return false, err
		}
		if err := it.findPages(lvl, pgno); err != nil {
			return false, err
		}
		if it.ascending {
			l.cur = l.first
		} else {
			l.cur = l.last
		}
		return true, nil
	}
	if it.ascending {
		l.cur++
	} else {
		l.cur--
	}
	return true, nil
}

// childPage returns the page number under the current slot of level lvl.
// A slot repeating the page just visited is skipped.
func (it *Iterator) childPage(lvl int) (uint32, error) {
	l := &it.levels[lvl]
	pgno := readChildPage(l.page, l.cur)
	if pgno == l.lastChild {
		ok, err := it.nextChild(lvl)
		if err != nil {
			return 0, err
		} else if !ok {
			return 0, errors.Newf(errors.ErrStructuralCorruption, "level %d ends on a repeated child page %d", lvl, pgno)
		}
		pgno = readChildPage(l.page, l.cur)
	}
	l.lastChild = pgno
	if pgno < 2 {
		return 0, errors.Newf(errors.ErrStructuralCorruption, "invalid child page %d at level %d", pgno, lvl)
	}
	return pgno, nil
}

// nextLeaf loads the next leaf page in walk order. It returns false when
// there is none, or when the next leaf is empty.
func (it *Iterator) nextLeaf() (bool, error) {
	var pgno uint32
	if it.trailer.Depth == 1 {
		if it.rootRead {
			return false, nil
		}
		it.rootRead = true
		pgno = 1
	} else {
		if ok, err := it.nextChild(it.trailer.Depth - 2); !ok || err != nil {
			return false, err
		}
		var err error
		if pgno, err = it.childPage(it.trailer.Depth - 2); err != nil {
			return false, err
		}
	}

	if err := it.readPage(pgno, it.leaf); err != nil {
		return false, err
	}
	n := readSubCount(it.leaf)
	if n > uint32(it.trailer.MaxPerPage) {
		return false, errors.Newf(errors.ErrStructuralCorruption, "leaf page %d declares %d values, at most %d fit", pgno, n, it.trailer.MaxPerPage)
	}
	it.leafCount = int(n)
	if it.ascending {
		it.leafCur = 0
	} else {
		it.leafCur = it.leafCount - 1
	}
	return n > 0, nil
}

func (it *Iterator) fail(err error) (int64, error) {
	it.eof = true
	it.err = errors.WithMessagef(err, "index on %s", it.field.Name)
	return -1, it.err
}

func (it *Iterator) leafValue(i int) []byte {
	off := it.trailer.FirstValueOffset + i*it.trailer.ValueSize
	return it.leaf[off : off+it.trailer.ValueSize]
}

// NextRow returns the next matching row in value order, or -1 once the
// matches are exhausted. In ascending mode a <, <= or = search stops at the
// first value past the searched one.
func (it *Iterator) NextRow() (int64, error) {
	if it.eof {
		return -1, it.err
	}
	for {
		if it.leafCur < 0 || it.leafCur >= it.leafCount {
			ok, err := it.nextLeaf()
			if err != nil {
				return it.fail(err)
			} else if !ok {
				it.eof = true
				return -1, nil
			}
		}

		i := it.leafCur
		match := true
		if it.op != OpIsNotNull {
			c := it.key.compare(it.leafValue(i))
			switch it.op {
			case OpLT:
				if c <= 0 && it.ascending {
					it.eof = true
					return -1, nil
				}
				match = c > 0
			case OpLE:
				if c < 0 && it.ascending {
					it.eof = true
					return -1, nil
				}
				match = c >= 0
			case OpEQ:
				if c < 0 && it.ascending {
					it.eof = true
					return -1, nil
				}
				match = c == 0
			case OpGE:
				match = c <= 0
			case OpGT:
				match = c < 0
			}
		}
		if it.ascending {
			it.leafCur++
		} else {
			it.leafCur--
		}
		if !match {
			continue
		}
		fid := readLeafFID(it.leaf, i)
		if fid < 1 || int64(fid) > it.table.TotalRecordCount() {
			return it.fail(errors.Newf(errors.ErrStructuralCorruption, "FID %d out of range [1,%d]", fid, it.table.TotalRecordCount()))
		}
		return int64(fid) - 1, nil
	}
}

// NextRowSortedByFID returns the next matching row in ascending row order,
// or -1 once the matches are exhausted.
func (it *Iterator) NextRowSortedByFID() (int64, error) {
	if it.op == OpEQ && it.ascending {
		return it.NextRow()
	}
	if !it.sortedDone {
		if err := it.sortRows(); err != nil {
			return -1, err
		}
	}
	if it.sortedPos < len(it.sorted) {
		row := it.sorted[it.sortedPos]
		it.sortedPos++
		return row, nil
	}
	return -1, nil
}

// sortRows reads every match and sorts them by row.
func (it *Iterator) sortRows() error {
	it.sorted = it.sorted[:0]
	it.Reset()
	for {
		row, err := it.NextRow()
		if err != nil {
			it.sorted = nil
			return err
		} else if row < 0 {
			break
		}
		it.sorted = append(it.sorted, row)
	}
	slices.Sort(it.sorted)
	it.sortedDone = true
	it.sortedPos = 0
	return nil
}

// RowCount returns the number of matching rows and rewinds the iterator.
func (it *Iterator) RowCount() (int64, error) {
	if it.sortedDone {
		return int64(len(it.sorted)), nil
	}
	asc := it.ascending
	it.ascending = true
	defer func() {
		it.ascending = asc
		it.Reset()
	}()
	it.Reset()
	var n int64
	for {
		row, err := it.NextRow()
		if err != nil {
			return 0, err
		} else if row < 0 {
			return n, nil
		}
		n++
	}
}
