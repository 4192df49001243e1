// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package gdbtest writes small File Geodatabase tables, row locators, index
// lists and attribute indexes for tests.
package gdbtest

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/featurebasedb/filegdb/table"
	"github.com/featurebasedb/filegdb/varint"
)

// DefaultName is the base name tables are written under.
const DefaultName = "a00000009"

// Row is one row slot of a Table.
type Row struct {
	// Values holds one entry per field. A nil entry is a null value. The
	// ObjectID entry is ignored.
	Values []interface{}

	// Deleted rows are written with a negated length and have no locator
	// offset.
	Deleted bool

	// Absent rows are not written at all.
	Absent bool
}

// IndexDef is one entry of the .gdbindexes file.
type IndexDef struct {
	Name       string
	Expression string
}

// Table describes the content of a table to write.
type Table struct {
	Name string

	Fields       []*table.Field
	GeometryType table.GeometryType
	HasZ, HasM   bool

	// UTF16 stores string values as UTF-16 instead of UTF-8.
	UTF16 bool

	Rows []Row

	// OffsetSize is the width of locator offsets, 5 by default.
	OffsetSize int

	// Sparse writes a block presence bitmap and omits blocks that hold
	// no rows.
	Sparse bool

	// NoLocator skips the .gdbtablx file.
	NoLocator bool

	// ValidCount overrides the valid record count in the header.
	ValidCount *int32

	Indexes []IndexDef
}

// Encoded is the byte content of a table and its sibling files.
type Encoded struct {
	Table     []byte
	Locator   []byte
	IndexList []byte

	// Offsets has the file offset of every row slot, 0 for deleted and
	// absent rows.
	Offsets []uint64
}

// ObjectIDField returns the ObjectID column.
func ObjectIDField(name string) *table.Field {
	return &table.Field{Name: name, Type: table.FieldObjectID}
}

// NewField returns a scalar column.
func NewField(name string, typ table.FieldType, nullable bool) *table.Field {
	f := &table.Field{Name: name, Type: typ, Nullable: nullable}
	if typ == table.FieldString {
		f.MaxWidth = 255
	}
	return f
}

// GeometryField returns a geometry column with the given quantization and a
// single spatial index grid.
func GeometryField(name string, q table.GeomFieldMeta, nullable bool) *table.Field {
	g := q
	if len(g.GridResolutions) == 0 {
		g.GridResolutions = []float64{1000}
	}
	if g.WKT == "" {
		g.WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	}
	return &table.Field{Name: name, Type: table.FieldGeometry, Nullable: nullable, Geom: &g}
}

// Write encodes t into dir and returns the path of the .gdbtable file.
func (t *Table) Write(tb testing.TB, dir string) string {
	tb.Helper()
	enc, err := t.Encode()
	if err != nil {
		tb.Fatalf("encoding table: %v", err)
	}
	name := t.Name
	if name == "" {
		name = DefaultName
	}
	path := filepath.Join(dir, name+".gdbtable")
	WriteFile(tb, path, enc.Table)
	if enc.Locator != nil {
		WriteFile(tb, filepath.Join(dir, name+".gdbtablx"), enc.Locator)
	}
	if enc.IndexList != nil {
		WriteFile(tb, filepath.Join(dir, name+".gdbindexes"), enc.IndexList)
	}
	return path
}

// WriteFile writes b to path, failing the test on error.
func WriteFile(tb testing.TB, path string, b []byte) {
	tb.Helper()
	if err := os.WriteFile(path, b, 0600); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
}

// Encode builds the table file and its siblings.
func (t *Table) Encode() (*Encoded, error) {
	desc, err := t.encodeFieldDescriptors()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, table.HeaderSize, table.HeaderSize+len(desc))
	buf = append(buf, desc...)

	enc := &Encoded{Offsets: make([]uint64, len(t.Rows))}
	var valid int32
	var maxRow int
	for i, row := range t.Rows {
		if row.Absent {
			continue
		}
		blob, err := t.encodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if len(blob) > maxRow {
			maxRow = len(blob)
		}
		length := uint32(len(blob))
		if row.Deleted {
			length = uint32(-int32(length))
		} else {
			enc.Offsets[i] = uint64(len(buf))
			valid++
		}
		buf = binary.LittleEndian.AppendUint32(buf, length)
		buf = append(buf, blob...)
	}
	if t.ValidCount != nil {
		valid = *t.ValidCount
	}

	binary.LittleEndian.PutUint32(buf[0:], 3)
	binary.LittleEndian.PutUint32(buf[4:], uint32(valid))
	binary.LittleEndian.PutUint32(buf[8:], uint32(maxRow))
	binary.LittleEndian.PutUint32(buf[12:], 5)
	binary.LittleEndian.PutUint64(buf[24:], uint64(len(buf)))
	binary.LittleEndian.PutUint64(buf[32:], table.HeaderSize)
	enc.Table = buf

	if !t.NoLocator {
		enc.Locator = t.encodeLocator(enc.Offsets)
	}
	if len(t.Indexes) > 0 {
		enc.IndexList = EncodeIndexList(t.Indexes)
	}
	return enc, nil
}

func (t *Table) encodeFieldDescriptors() ([]byte, error) {
	var body []byte
	for _, f := range t.Fields {
		var err error
		if body, err = t.appendField(body, f); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)+10))
	out = binary.LittleEndian.AppendUint32(out, 4)
	flags := byte(0x02)
	if !t.UTF16 {
		flags |= 0x01
	}
	var geomFlags byte
	if t.HasM {
		geomFlags |= 1 << 6
	}
	if t.HasZ {
		geomFlags |= 1 << 7
	}
	out = append(out, byte(t.GeometryType), flags, 0, geomFlags)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(t.Fields)))
	return append(out, body...), nil
}

func appendName(b []byte, s string) []byte {
	u := table.EncodeUTF16(s)
	b = append(b, byte(len(u)/2))
	return append(b, u...)
}

func (t *Table) appendField(b []byte, f *table.Field) ([]byte, error) {
	b = appendName(b, f.Name)
	b = appendName(b, f.Alias)
	b = append(b, byte(f.Type))

	var flags byte
	if f.Nullable {
		flags |= 0x01
	}
	var def []byte
	if f.HasDefault {
		var err error
		if def, err = t.encodeScalar(f, defaultInterface(f.Default)); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		if f.Type == table.FieldString {
			// Defaults carry no length prefix.
			_, n, _ := varint.ReadUint32(def)
			def = def[n:]
		}
		flags |= 0x04
	}

	switch f.Type {
	case table.FieldString:
		b = binary.LittleEndian.AppendUint32(b, uint32(f.MaxWidth))
		b = append(b, flags)
		b = varint.AppendUint64(b, uint64(len(def)))
		return append(b, def...), nil
	case table.FieldObjectID:
		return append(b, 4, 2), nil
	case table.FieldBinary, table.FieldGUID, table.FieldGlobalID, table.FieldXML:
		return append(b, 0, flags), nil
	case table.FieldGeometry, table.FieldRaster:
		return t.appendGeomField(b, f, flags), nil
	}
	b = append(b, byte(scalarWidth(f.Type)), flags, byte(len(def)))
	return append(b, def...), nil
}

func scalarWidth(typ table.FieldType) int {
	switch typ {
	case table.FieldInt16:
		return 2
	case table.FieldInt32, table.FieldFloat32:
		return 4
	}
	return 8
}

func defaultInterface(v table.Value) interface{} {
	switch v.Type {
	case table.FieldInt16, table.FieldInt32:
		return int(v.Int)
	case table.FieldString:
		return v.Str
	}
	return v.Float
}

func appendFloat64(b []byte, vs ...float64) []byte {
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
	}
	return b
}

func (t *Table) appendGeomField(b []byte, f *table.Field, flags byte) []byte {
	g := f.Geom
	if g == nil {
		g = &table.GeomFieldMeta{XYScale: 1}
	}
	b = append(b, 0, flags)
	if f.Type == table.FieldRaster {
		col := ""
		if f.Raster != nil {
			col = f.Raster.ColumnName
		}
		b = appendName(b, col)
	}
	wkt := table.EncodeUTF16(g.WKT)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(wkt)))
	b = append(b, wkt...)

	geomFlags := byte(0x01)
	if g.HasM {
		geomFlags |= 0x02
	}
	if g.HasZ {
		geomFlags |= 0x04
	}
	b = append(b, geomFlags)
	b = appendFloat64(b, g.XOrigin, g.YOrigin, g.XYScale)
	if g.HasM {
		b = appendFloat64(b, g.MOrigin, g.MScale)
	}
	if g.HasZ {
		b = appendFloat64(b, g.ZOrigin, g.ZScale)
	}
	b = appendFloat64(b, g.XYTolerance)
	if g.HasM {
		b = appendFloat64(b, g.MTolerance)
	}
	if g.HasZ {
		b = appendFloat64(b, g.ZTolerance)
	}

	if f.Type == table.FieldRaster {
		var typ table.RasterType
		if f.Raster != nil {
			typ = f.Raster.Type
		}
		return append(b, byte(typ))
	}

	b = appendFloat64(b, g.XMin, g.YMin, g.XMax, g.YMax)
	if t.HasZ {
		b = appendFloat64(b, g.ZMin, g.ZMax)
	}
	if t.HasM {
		b = appendFloat64(b, g.MMin, g.MMax)
	}
	b = append(b, 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(g.GridResolutions)))
	return appendFloat64(b, g.GridResolutions...)
}

func (t *Table) encodeRow(row Row) ([]byte, error) {
	var nullable int
	for _, f := range t.Fields {
		if f.Nullable {
			nullable++
		}
	}
	blob := make([]byte, (nullable+7)/8)
	bit := 0
	for i, f := range t.Fields {
		var v interface{}
		if i < len(row.Values) {
			v = row.Values[i]
		}
		if f.Type == table.FieldObjectID {
			continue
		}
		if f.Nullable {
			if v == nil {
				blob[bit/8] |= 1 << (bit % 8)
			}
			bit++
		}
		if v == nil {
			if !f.Nullable {
				return nil, fmt.Errorf("null value for non-nullable field %s", f.Name)
			}
			continue
		}
		b, err := t.encodeScalar(f, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		blob = append(blob, b...)
	}
	return blob, nil
}

func lengthPrefixed(b []byte) []byte {
	return append(varint.AppendUint64(nil, uint64(len(b))), b...)
}

// encodeScalar returns the row encoding of one non-null value.
func (t *Table) encodeScalar(f *table.Field, v interface{}) ([]byte, error) {
	switch f.Type {
	case table.FieldInt16:
		n, ok := asInt(v)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(int16(n))), nil
	case table.FieldInt32:
		n, ok := asInt(v)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(n))), nil
	case table.FieldFloat32:
		x, ok := asFloat(v)
		if !ok {
			break
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(x))), nil
	case table.FieldFloat64:
		x, ok := asFloat(v)
		if !ok {
			break
		}
		return appendFloat64(nil, x), nil
	case table.FieldDateTime:
		if tm, ok := v.(time.Time); ok {
			return appendFloat64(nil, table.DaysFromDateTime(tm)), nil
		}
		x, ok := asFloat(v)
		if !ok {
			break
		}
		return appendFloat64(nil, x), nil
	case table.FieldString:
		s, ok := v.(string)
		if !ok {
			break
		}
		if t.UTF16 {
			return lengthPrefixed(table.EncodeUTF16(s)), nil
		}
		return lengthPrefixed([]byte(s)), nil
	case table.FieldXML:
		switch x := v.(type) {
		case string:
			return lengthPrefixed([]byte(x)), nil
		case []byte:
			return lengthPrefixed(x), nil
		}
	case table.FieldGeometry, table.FieldBinary:
		if b, ok := v.([]byte); ok {
			return lengthPrefixed(b), nil
		}
	case table.FieldGUID, table.FieldGlobalID:
		s, ok := v.(string)
		if !ok {
			break
		}
		return table.ParseGUID(s)
	case table.FieldRaster:
		if f.Raster != nil && f.Raster.Type == table.RasterManaged {
			n, ok := asInt(v)
			if !ok {
				break
			}
			return binary.LittleEndian.AppendUint32(nil, uint32(int32(n))), nil
		}
		switch x := v.(type) {
		case string:
			return lengthPrefixed(table.EncodeUTF16(x)), nil
		case []byte:
			return lengthPrefixed(x), nil
		}
	}
	return nil, fmt.Errorf("cannot encode %T as %s", v, f.Type)
}

func asInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

// encodeLocator writes the .gdbtablx content for the given row offsets.
func (t *Table) encodeLocator(offsets []uint64) []byte {
	size := t.OffsetSize
	if size == 0 {
		size = 5
	}
	total := len(offsets)
	nblocks := (total + table.BlockSize - 1) / table.BlockSize

	present := make([]bool, nblocks)
	for i, off := range offsets {
		if off != 0 || !t.Sparse {
			present[i/table.BlockSize] = true
		}
	}
	var stored []int
	for blk, ok := range present {
		if ok {
			stored = append(stored, blk)
		}
	}

	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(out[8:], uint32(total))
	binary.LittleEndian.PutUint32(out[12:], uint32(size))
	var slot [8]byte
	for _, blk := range stored {
		for i := 0; i < table.BlockSize; i++ {
			row := blk*table.BlockSize + i
			var off uint64
			if row < total {
				off = offsets[row]
			}
			binary.LittleEndian.PutUint64(slot[:], off)
			out = append(out, slot[:size]...)
		}
	}

	if !t.Sparse {
		out = binary.LittleEndian.AppendUint32(out, 0)
		out = binary.LittleEndian.AppendUint32(out, uint32(nblocks))
		out = binary.LittleEndian.AppendUint32(out, uint32(len(stored)))
		return binary.LittleEndian.AppendUint32(out, 0)
	}
	words := (nblocks + 31) / 32
	out = binary.LittleEndian.AppendUint32(out, uint32(words))
	out = binary.LittleEndian.AppendUint32(out, uint32(nblocks))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(stored)))
	out = binary.LittleEndian.AppendUint32(out, 0)
	bitmap := make([]byte, 4*words)
	for _, blk := range stored {
		bitmap[blk/8] |= 1 << (blk % 8)
	}
	return append(out, bitmap...)
}

// EncodeIndexList returns the content of a .gdbindexes file.
func EncodeIndexList(defs []IndexDef) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(defs)))
	for _, d := range defs {
		name := table.EncodeUTF16(d.Name)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(name)/2))
		out = append(out, name...)
		out = append(out, make([]byte, 12)...)
		expr := table.EncodeUTF16(d.Expression)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(expr)/2))
		out = append(out, expr...)
		out = append(out, 0, 0)
	}
	return out
}
