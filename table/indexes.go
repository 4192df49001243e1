// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"os"
	"strings"

	"github.com/featurebasedb/filegdb/errors"
)

const (
	maxIndexListSize = 1 << 20
	maxIndexNameLen  = 1024

	// indexListV9Magic opens a .gdbindexes file in the older layout, which
	// is not supported. Such tables are treated as having no indexes.
	indexListV9Magic = 0x03859813
)

// Index is one entry of a table's .gdbindexes file.
type Index struct {
	Name       string
	Expression string
}

// FieldName returns the field the index is on, with a LOWER(...) wrapper
// removed from the expression.
func (i *Index) FieldName() string {
	e := i.Expression
	if len(e) > len("LOWER()") && strings.EqualFold(e[:len("LOWER(")], "LOWER(") && e[len(e)-1] == ')' {
		return e[len("LOWER(") : len(e)-1]
	}
	return e
}

// IndexCount returns the number of entries in the index list.
func (r *Reader) IndexCount() int { return len(r.indexes) }

// Indexes returns the entries of the index list.
func (r *Reader) Indexes() []*Index { return r.indexes }

// IndexPath returns the path of the .atx file holding idx.
func (r *Reader) IndexPath(idx *Index) string {
	return siblingPath(r.path, "."+idx.Name+".atx")
}

// HasSpatialIndex reports whether a .spx file sits next to the table.
func (r *Reader) HasSpatialIndex() bool {
	_, err := os.Stat(siblingPath(r.path, ".spx"))
	return err == nil
}

// readIndexes loads the .gdbindexes file and attaches each index to the
// field it covers. A missing file means the table has no indexes.
func (r *Reader) readIndexes() error {
	b, err := os.ReadFile(siblingPath(r.path, ".gdbindexes"))
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "reading index list")
	}
	if len(b) > maxIndexListSize {
		return errors.Newf(errors.ErrStructuralCorruption, "index list of %d bytes too large", len(b))
	}
	indexes, err := parseIndexList(b, len(r.schema.Fields))
	if err != nil {
		return err
	}
	r.indexes = indexes

	for _, idx := range indexes {
		if r.schema.ObjectIDIndex >= 0 && idx.Expression == r.schema.ObjectIDName {
			continue
		}
		name := idx.FieldName()
		i := r.schema.FieldIndex(name)
		if i < 0 {
			r.logger.Debugf("index %s defined for field %s that does not exist", idx.Name, name)
			continue
		}
		if f := r.schema.Fields[i]; f.index != nil {
			r.logger.Debugf("there is already one index defined for field %s", name)
		} else {
			f.index = idx
		}
	}
	return nil
}

func parseIndexList(b []byte, fieldCount int) ([]*Index, error) {
	d := &descReader{b: b}
	count := d.uint32("index count")
	if d.err != nil {
		return nil, d.err
	}
	if count == indexListV9Magic {
		return nil, nil
	}
	if uint64(count) >= uint64(fieldCount+1)*10 {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "index count %d implausible for %d fields", count, fieldCount)
	}

	indexes := make([]*Index, 0, count)
	for i := uint32(0); i < count; i++ {
		idx := &Index{}
		n := d.uint32("index name length")
		if n > maxIndexNameLen {
			return nil, errors.Newf(errors.ErrStructuralCorruption, "index name length %d too large", n)
		}
		idx.Name = d.utf16(int(n), "index name")
		d.bytes(12, "index flags")

		n = d.uint32("index expression length")
		if n > maxIndexNameLen {
			return nil, errors.Newf(errors.ErrStructuralCorruption, "index expression length %d too large", n)
		}
		idx.Expression = d.utf16(int(n), "index expression")
		if d.err != nil {
			return nil, errors.WithMessagef(d.err, "index %d", i)
		}
		// The trailing marker of the last entry is sometimes absent.
		if d.remaining() >= 2 {
			d.pos += 2
		} else {
			d.pos = len(d.b)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}
