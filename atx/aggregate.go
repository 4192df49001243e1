// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package atx

import (
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
)

// MinValue returns the smallest indexed value. ok is false when the index
// is empty. Only IS NOT NULL iterators can answer.
func (it *Iterator) MinValue() (v table.Value, ok bool, err error) {
	return it.extreme(true)
}

// MaxValue returns the largest indexed value.
func (it *Iterator) MaxValue() (v table.Value, ok bool, err error) {
	return it.extreme(false)
}

// extreme descends straight to the first or last leaf.
func (it *Iterator) extreme(min bool) (table.Value, bool, error) {
	if it.op != OpIsNotNull {
		return table.Value{}, false, errors.Newf(errors.ErrInvalidArgument, "min/max need an IS NOT NULL iterator, not %s", it.op)
	}
	if it.trailer.ValueCount == 0 {
		return table.Value{}, false, nil
	}
	page := make([]byte, PageSize)
	pgno := uint32(1)
	for lvl := 0; lvl < it.trailer.Depth-1; lvl++ {
		if err := it.readPage(pgno, page); err != nil {
			return table.Value{}, false, err
		}
		n := readSubCount(page)
		if err := it.checkSubCount(n, pgno); err != nil {
			return table.Value{}, false, err
		}
		if min {
			pgno = readChildPage(page, 0)
		} else {
			pgno = readChildPage(page, int(n))
		}
		if pgno < 2 {
			return table.Value{}, false, errors.Newf(errors.ErrStructuralCorruption, "invalid child page %d at level %d", pgno, lvl)
		}
	}
	if err := it.readPage(pgno, page); err != nil {
		return table.Value{}, false, err
	}
	n := readSubCount(page)
	if err := it.checkSubCount(n, pgno); err != nil {
		return table.Value{}, false, err
	}
	i := 0
	if !min {
		i = int(n) - 1
	}
	off := it.trailer.FirstValueOffset + i*it.trailer.ValueSize
	return decodeValue(it.field.Type, page[off:off+it.trailer.ValueSize]), true, nil
}

// Aggregate holds the result of MinMaxSumCount.
type Aggregate struct {
	Min, Max, Sum float64
	Count         int64
}

// MinMaxSumCount scans every indexed value of a numeric or datetime field.
// The iterator is rewound afterwards.
func (it *Iterator) MinMaxSumCount() (Aggregate, error) {
	var a Aggregate
	if it.op != OpIsNotNull {
		return a, errors.Newf(errors.ErrInvalidArgument, "aggregates need an IS NOT NULL iterator, not %s", it.op)
	}
	if !it.field.Type.Numeric() && it.field.Type != table.FieldDateTime {
		return a, errors.Newf(errors.ErrUnsupported, "cannot aggregate %s field %s", it.field.Type, it.field.Name)
	}

	asc := it.ascending
	it.ascending = true
	defer func() {
		it.ascending = asc
		it.Reset()
	}()
	it.Reset()
	if it.eof {
		return a, nil
	}
	for {
		if it.leafCur >= it.leafCount {
			ok, err := it.nextLeaf()
			if err != nil {
				return Aggregate{}, errors.WithMessagef(err, "index on %s", it.field.Name)
			} else if !ok {
				return a, nil
			}
		}
		v := number(it.field.Type, it.leafValue(it.leafCur))
		if a.Count == 0 {
			a.Min = v
		}
		a.Max = v
		a.Sum += v
		a.Count++
		it.leafCur++
	}
}
