// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"encoding/binary"
	"math"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
)

const (
	// HeaderSize is the size of the fixed .gdbtable header.
	HeaderSize = 40

	// fieldDescHeadSize covers the length, version, geometry type, flags
	// and field count that open the field-descriptor section.
	fieldDescHeadSize = 14

	minFieldDescLength = 10
	maxFieldDescLength = 10 << 20
)

// header is the fixed 40-byte .gdbtable header.
type header struct {
	validRecordCount    int32
	headerBufferMaxSize int32
	fieldDescOffset     uint64
}

func decodeHeader(b []byte) (header, error) {
	h := header{
		validRecordCount:    int32(binary.LittleEndian.Uint32(b[4:])),
		headerBufferMaxSize: int32(binary.LittleEndian.Uint32(b[8:])),
		fieldDescOffset:     binary.LittleEndian.Uint64(b[32:]),
	}
	if h.validRecordCount < 0 {
		return h, errors.Newf(errors.ErrStructuralCorruption, "negative valid record count %d", h.validRecordCount)
	}
	return h, nil
}

// fieldDescHead is the start of the field-descriptor section.
type fieldDescHead struct {
	length       uint32
	version      uint32
	geometryType byte
	flags        byte
	geomFlags    byte
	fieldCount   uint16
}

func decodeFieldDescHead(b []byte) (fieldDescHead, error) {
	h := fieldDescHead{
		length:       binary.LittleEndian.Uint32(b[0:]),
		version:      binary.LittleEndian.Uint32(b[4:]),
		geometryType: b[8],
		flags:        b[9],
		geomFlags:    b[11],
		fieldCount:   binary.LittleEndian.Uint16(b[12:]),
	}
	if h.length < minFieldDescLength || h.length > maxFieldDescLength {
		return h, errors.Newf(errors.ErrStructuralCorruption, "field descriptor length %d out of range", h.length)
	}
	return h, nil
}

// descReader walks the field-descriptor section. Every read is checked
// against the bytes remaining; the first failure sticks.
type descReader struct {
	b   []byte
	pos int
	err error
}

func (d *descReader) remaining() int { return len(d.b) - d.pos }

func (d *descReader) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || n > d.remaining() {
		d.err = errors.Newf(errors.ErrStructuralCorruption,
			"truncated reading %s: need %d bytes, %d remain", what, n, d.remaining())
		return false
	}
	return true
}

func (d *descReader) bytes(n int, what string) []byte {
	if !d.need(n, what) {
		return nil
	}
	b := d.b[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *descReader) byte1(what string) byte {
	if b := d.bytes(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (d *descReader) uint16(what string) uint16 {
	if b := d.bytes(2, what); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *descReader) int32(what string) int32 {
	if b := d.bytes(4, what); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (d *descReader) uint32(what string) uint32 {
	if b := d.bytes(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *descReader) float64(what string) float64 {
	if b := d.bytes(8, what); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *descReader) varuint32(what string) uint32 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.ReadUint32(d.b[d.pos:])
	if err != nil {
		d.err = errors.Wrapf(err, "reading %s", what)
		return 0
	}
	d.pos += n
	return v
}

// utf16 reads a character count of the given width followed by that many
// UTF-16 code units.
func (d *descReader) utf16(chars int, what string) string {
	b := d.bytes(2*chars, what)
	if b == nil {
		return ""
	}
	return DecodeUTF16(b)
}

// parseSchema decodes the field descriptors that follow the 14-byte head.
func parseSchema(head fieldDescHead, body []byte) (*Schema, error) {
	s := &Schema{
		Version:        head.version,
		StringsAreUTF8: head.flags&0x01 != 0,
		HasM:           head.geomFlags&(1<<6) != 0,
		HasZ:           head.geomFlags&(1<<7) != 0,
		ObjectIDIndex:  -1,
		GeomIndex:      -1,
	}
	if validGeometryType(head.geometryType) {
		s.GeometryType = GeometryType(head.geometryType)
	}

	d := &descReader{b: body}
	for i := 0; i < int(head.fieldCount); i++ {
		f, err := parseField(d, s)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %d", i)
		}
		switch f.Type {
		case FieldObjectID:
			if s.ObjectIDIndex >= 0 {
				return nil, errors.New(errors.ErrStructuralCorruption, "more than one ObjectID field")
			}
			s.ObjectIDIndex = len(s.Fields)
			s.ObjectIDName = f.Name
		case FieldGeometry:
			if s.GeomIndex >= 0 {
				return nil, errors.New(errors.ErrStructuralCorruption, "more than one geometry field")
			}
			s.GeomIndex = len(s.Fields)
		}
		if f.Nullable {
			s.nullableCount++
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func parseField(d *descReader, s *Schema) (*Field, error) {
	f := &Field{}
	f.Name = d.utf16(int(d.byte1("name length")), "name")
	f.Alias = d.utf16(int(d.byte1("alias length")), "alias")
	typ := d.byte1("type")
	if d.err != nil {
		return nil, d.err
	}
	if typ > byte(FieldXML) {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "unhandled field type %d", typ)
	}
	f.Type = FieldType(typ)

	if f.Type == FieldGeometry || f.Type == FieldRaster {
		if err := parseGeomField(d, s, f); err != nil {
			return nil, err
		}
		return f, nil
	}

	var flags byte
	var defaultLen uint32
	switch f.Type {
	case FieldString:
		if !d.need(6, "string descriptor") {
			return nil, d.err
		}
		f.MaxWidth = int(d.int32("max width"))
		if f.MaxWidth < 0 {
			return nil, errors.Newf(errors.ErrStructuralCorruption, "negative max width %d", f.MaxWidth)
		}
		flags = d.byte1("flags")
		defaultLen = d.varuint32("default length")
	case FieldObjectID, FieldBinary, FieldGUID, FieldGlobalID, FieldXML:
		b := d.bytes(2, "descriptor")
		if b != nil {
			flags = b[1]
		}
	default:
		b := d.bytes(3, "descriptor")
		if b != nil {
			flags = b[1]
			defaultLen = uint32(b[2])
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	if flags&0x04 != 0 {
		raw := d.bytes(int(defaultLen), "default value")
		if d.err != nil {
			return nil, d.err
		}
		f.Default, f.HasDefault = decodeDefault(f.Type, raw, s.StringsAreUTF8)
	}

	if f.Type == FieldObjectID && flags != 2 {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "unexpected ObjectID flags %#x", flags)
	}
	f.Nullable = flags&0x01 != 0
	return f, nil
}

func decodeDefault(typ FieldType, raw []byte, utf8 bool) (Value, bool) {
	v := Value{Type: typ}
	switch {
	case len(raw) == 0:
		return v, false
	case typ == FieldString && utf8:
		v.Str = string(raw)
	case typ == FieldString:
		v.Str = DecodeUTF16(raw)
	case typ == FieldInt16 && len(raw) == 2:
		v.Int = int32(int16(binary.LittleEndian.Uint16(raw)))
	case typ == FieldInt32 && len(raw) == 4:
		v.Int = int32(binary.LittleEndian.Uint32(raw))
	case typ == FieldFloat32 && len(raw) == 4:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case typ == FieldFloat64 && len(raw) == 8:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(raw))
	case typ == FieldDateTime && len(raw) == 8:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(raw))
		v.Time, _ = DateTimeFromDays(v.Float)
	default:
		return v, false
	}
	return v, true
}

func parseGeomField(d *descReader, s *Schema, f *Field) error {
	g := &GeomFieldMeta{}
	f.Geom = g

	if b := d.bytes(2, "descriptor"); b != nil {
		f.Nullable = b[1]&0x01 != 0
	}

	if f.Type == FieldRaster {
		f.Raster = &RasterMeta{}
		n := int(d.byte1("raster column length"))
		if !d.need(2*n+1, "raster column") {
			return d.err
		}
		f.Raster.ColumnName = d.utf16(n, "raster column")
	}

	wktLen := int(d.uint16("wkt length"))
	if !d.need(1+wktLen, "wkt") {
		return d.err
	}
	g.WKT = DecodeUTF16(d.bytes(wktLen, "wkt"))

	geomFlags := d.byte1("geometry flags")
	g.HasM = geomFlags&0x02 != 0
	g.HasZ = geomFlags&0x04 != 0

	if f.Type == FieldGeometry || geomFlags > 0 {
		n := 4
		if f.Type == FieldGeometry {
			n += 4
		}
		if g.HasM {
			n += 3
		}
		if g.HasZ {
			n += 3
		}
		if !d.need(8*n, "origin, scale and tolerance") {
			return d.err
		}
		g.XOrigin = d.float64("x origin")
		g.YOrigin = d.float64("y origin")
		g.XYScale = d.float64("xy scale")
		if !(g.XYScale > 0) {
			return errors.Newf(errors.ErrStructuralCorruption, "xy scale %v must be positive", g.XYScale)
		}
		if g.HasM {
			g.MOrigin = d.float64("m origin")
			g.MScale = d.float64("m scale")
		}
		if g.HasZ {
			g.ZOrigin = d.float64("z origin")
			g.ZScale = d.float64("z scale")
		}
		g.XYTolerance = d.float64("xy tolerance")
		if g.HasM {
			g.MTolerance = d.float64("m tolerance")
		}
		if g.HasZ {
			g.ZTolerance = d.float64("z tolerance")
		}
	}

	if f.Type == FieldRaster {
		f.Raster.Type = RasterType(d.byte1("raster type"))
		return d.err
	}

	if !d.need(32, "extent") {
		return d.err
	}
	g.XMin = d.float64("xmin")
	g.YMin = d.float64("ymin")
	g.XMax = d.float64("xmax")
	g.YMax = d.float64("ymax")
	if s.HasZ {
		g.ZMin = d.float64("zmin")
		g.ZMax = d.float64("zmax")
	}
	if s.HasM {
		g.MMin = d.float64("mmin")
		g.MMax = d.float64("mmax")
	}
	if !d.need(5, "grid count") {
		return d.err
	}
	d.bytes(1, "reserved")
	grids := d.uint32("grid count")
	if grids == 0 || grids > 3 {
		return errors.Newf(errors.ErrStructuralCorruption, "spatial index grid count %d out of range", grids)
	}
	for i := uint32(0); i < grids; i++ {
		g.GridResolutions = append(g.GridResolutions, d.float64("grid resolution"))
	}
	return d.err
}
