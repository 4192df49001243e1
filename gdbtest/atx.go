// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package gdbtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/featurebasedb/filegdb/table"
	"golang.org/x/exp/slices"
)

const (
	pageSize    = 4096
	trailerSize = 22

	// maxIndexedChars is the number of UTF-16 units a string index keeps.
	maxIndexedChars = 80
)

// IndexEntry is one value of an attribute index and the 1-based FID of the
// row holding it.
type IndexEntry struct {
	Value []byte
	FID   int32
}

// AttributeIndex describes the content of an .atx file. Entries must be in
// ascending value order.
type AttributeIndex struct {
	ValueSize int
	Entries   []IndexEntry

	// LeafCapacity limits the entries per leaf page. Fanout limits the
	// children per interior page. Both default to what a page can hold,
	// and lowering them produces deeper trees from few values.
	LeafCapacity int
	Fanout       int
}

// MaxPerPage is the number of values of the given size a page holds.
func MaxPerPage(valueSize int) int {
	return (pageSize - 12) / (4 + valueSize)
}

type atxNode struct {
	entries  []IndexEntry
	children []*atxNode
	page     uint32
}

func (n *atxNode) maxValue() []byte {
	for len(n.children) > 0 {
		n = n.children[len(n.children)-1]
	}
	return n.entries[len(n.entries)-1].Value
}

// Depth returns the number of page levels Encode will produce.
func (a *AttributeIndex) Depth() int {
	_, levels := a.build()
	return len(levels)
}

func (a *AttributeIndex) build() (*atxNode, [][]*atxNode) {
	maxPer := MaxPerPage(a.ValueSize)
	leafCap := a.LeafCapacity
	if leafCap <= 0 || leafCap > maxPer {
		leafCap = maxPer
	}
	fanout := a.Fanout
	if fanout <= 1 || fanout > maxPer+1 {
		fanout = maxPer + 1
	}

	var level []*atxNode
	for i := 0; i < len(a.Entries); i += leafCap {
		end := i + leafCap
		if end > len(a.Entries) {
			end = len(a.Entries)
		}
		level = append(level, &atxNode{entries: a.Entries[i:end]})
	}
	if len(level) == 0 {
		level = append(level, &atxNode{})
	}

	levels := [][]*atxNode{level}
	for len(level) > 1 {
		groups := (len(level) + fanout - 1) / fanout
		if len(level) < 2*groups {
			groups = len(level) / 2
		}
		next := make([]*atxNode, groups)
		start := 0
		for g := 0; g < groups; g++ {
			size := len(level) / groups
			if g < len(level)%groups {
				size++
			}
			next[g] = &atxNode{children: level[start : start+size]}
			start += size
		}
		level = next
		levels = append([][]*atxNode{level}, levels...)
	}
	return level[0], levels
}

// Encode returns the .atx file content.
func (a *AttributeIndex) Encode() []byte {
	_, levels := a.build()
	page := uint32(1)
	for _, level := range levels {
		for _, n := range level {
			n.page = page
			page++
		}
	}

	maxPer := MaxPerPage(a.ValueSize)
	firstVal := 12 + 4*maxPer
	out := make([]byte, 0, int(page-1)*pageSize+trailerSize)
	for _, level := range levels {
		for _, n := range level {
			p := make([]byte, pageSize)
			if len(n.children) == 0 {
				binary.LittleEndian.PutUint32(p[4:], uint32(len(n.entries)))
				for i, e := range n.entries {
					binary.LittleEndian.PutUint32(p[12+4*i:], uint32(e.FID))
					copy(p[firstVal+i*a.ValueSize:], e.Value)
				}
			} else {
				binary.LittleEndian.PutUint32(p[4:], uint32(len(n.children)-1))
				for i, c := range n.children {
					binary.LittleEndian.PutUint32(p[8+4*i:], c.page)
					if i < len(n.children)-1 {
						copy(p[firstVal+i*a.ValueSize:], c.maxValue())
					}
				}
			}
			out = append(out, p...)
		}
	}

	t := make([]byte, trailerSize)
	t[0] = byte(a.ValueSize)
	binary.LittleEndian.PutUint32(t[2:], 1)
	binary.LittleEndian.PutUint32(t[6:], uint32(len(levels)))
	binary.LittleEndian.PutUint32(t[10:], uint32(len(a.Entries)))
	return append(out, t...)
}

// Write encodes a to path.
func (a *AttributeIndex) Write(tb testing.TB, path string) {
	tb.Helper()
	WriteFile(tb, path, a.Encode())
}

// IndexInt16 and the functions below return the stored form of an index
// value.
func IndexInt16(v int16) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(v))
}

func IndexInt32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

func IndexFloat32(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

func IndexFloat64(v float64) []byte {
	return appendFloat64(nil, v)
}

func IndexDateTime(t time.Time) []byte {
	return appendFloat64(nil, table.DaysFromDateTime(t))
}

// IndexString pads s with spaces to chars UTF-16 units.
func IndexString(s string, chars int) []byte {
	b := table.EncodeUTF16(s)
	if len(b) > 2*chars {
		b = b[:2*chars]
	}
	for len(b) < 2*chars {
		b = append(b, ' ', 0)
	}
	return b
}

// IndexGUID stores the 38-character braced text of a GUID.
func IndexGUID(s string) []byte {
	return []byte(s)
}

// IndexedChars is the number of UTF-16 units a string index on f keeps.
func IndexedChars(f *table.Field) int {
	if f.MaxWidth > 0 && f.MaxWidth < maxIndexedChars {
		return f.MaxWidth
	}
	return maxIndexedChars
}

// IndexField builds the attribute index of field col over the live, non-null
// values of t.
func IndexField(tb testing.TB, t *Table, col int) *AttributeIndex {
	tb.Helper()
	f := t.Fields[col]
	a := &AttributeIndex{}
	type keyed struct {
		IndexEntry
		num float64
	}
	var entries []keyed
	for i, row := range t.Rows {
		if row.Absent || row.Deleted || col >= len(row.Values) || row.Values[col] == nil {
			continue
		}
		v := row.Values[col]
		k := keyed{IndexEntry: IndexEntry{FID: int32(i + 1)}}
		switch f.Type {
		case table.FieldInt16:
			n, _ := asInt(v)
			k.Value, k.num = IndexInt16(int16(n)), float64(n)
		case table.FieldInt32:
			n, _ := asInt(v)
			k.Value, k.num = IndexInt32(int32(n)), float64(n)
		case table.FieldFloat32:
			x, _ := asFloat(v)
			k.Value, k.num = IndexFloat32(float32(x)), float64(float32(x))
		case table.FieldFloat64:
			x, _ := asFloat(v)
			k.Value, k.num = IndexFloat64(x), x
		case table.FieldDateTime:
			x, ok := asFloat(v)
			if tm, isTime := v.(time.Time); isTime {
				x, ok = table.DaysFromDateTime(tm), true
			}
			if !ok {
				tb.Fatalf("row %d: cannot index %T as datetime", i, v)
			}
			k.Value, k.num = IndexFloat64(x), x
		case table.FieldString:
			k.Value = IndexString(v.(string), IndexedChars(f))
		case table.FieldGUID, table.FieldGlobalID:
			k.Value = IndexGUID(v.(string))
		default:
			tb.Fatalf("cannot index %s field", f.Type)
		}
		entries = append(entries, k)
	}
	switch f.Type {
	case table.FieldString:
		a.ValueSize = 2 * IndexedChars(f)
	case table.FieldGUID, table.FieldGlobalID:
		a.ValueSize = 38
	case table.FieldInt16:
		a.ValueSize = 2
	case table.FieldInt32, table.FieldFloat32:
		a.ValueSize = 4
	default:
		a.ValueSize = 8
	}

	slices.SortStableFunc(entries, func(x, y keyed) bool {
		switch f.Type {
		case table.FieldString:
			return compareUTF16(x.Value, y.Value) < 0
		case table.FieldGUID, table.FieldGlobalID:
			return bytes.Compare(x.Value, y.Value) < 0
		}
		return x.num < y.num
	})
	for _, e := range entries {
		a.Entries = append(a.Entries, e.IndexEntry)
	}
	return a
}

// compareUTF16 orders two stored strings by code unit.
func compareUTF16(a, b []byte) int {
	for i := 0; i+1 < len(a) && i+1 < len(b); i += 2 {
		ca := binary.LittleEndian.Uint16(a[i:])
		cb := binary.LittleEndian.Uint16(b[i:])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// IndexPath returns the path of the .atx file of the named index of the
// table at tablePath.
func IndexPath(tablePath, name string) string {
	return strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + "." + name + ".atx"
}

// WriteIndex writes a as the named index of the table at tablePath and
// returns the path written.
func WriteIndex(tb testing.TB, tablePath, name string, a *AttributeIndex) string {
	tb.Helper()
	path := IndexPath(tablePath, name)
	a.Write(tb, path)
	return path
}

// WriteIndexes writes an attribute index for every entry of t.Indexes that
// names a field other than the ObjectID, unwrapping LOWER(...). tune, when
// set, may adjust each index before it is written.
func WriteIndexes(tb testing.TB, t *Table, tablePath string, tune func(col int, a *AttributeIndex)) {
	tb.Helper()
	for _, d := range t.Indexes {
		expr := strings.TrimSuffix(strings.TrimPrefix(d.Expression, "LOWER("), ")")
		col := -1
		for i, f := range t.Fields {
			if f.Name == expr && f.Type != table.FieldObjectID && f.Type != table.FieldGeometry {
				col = i
			}
		}
		if col < 0 {
			continue
		}
		a := IndexField(tb, t, col)
		if tune != nil {
			tune(col, a)
		}
		WriteIndex(tb, tablePath, d.Name, a)
	}
}
