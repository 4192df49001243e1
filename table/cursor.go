// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"encoding/binary"
	"math"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
)

// uuidSize is the width of GUID and GlobalID values in a row.
const uuidSize = 16

// DecodeCursor tracks how far decoding of the current row has progressed,
// so that reading columns left to right costs one pass over the blob.
// SelectRow resets it.
type DecodeCursor struct {
	// LastCol is the last column decoded, or -1.
	LastCol int
	// Pos is the offset of the next undecoded value in the row blob.
	Pos int
	// NullBit is the index of the next unconsumed bit in the null mask.
	NullBit int
}

// Reset rewinds the cursor to the first column.
func (c *DecodeCursor) Reset(nullableBytes int) {
	c.LastCol = -1
	c.Pos = nullableBytes
	c.NullBit = 0
}

// Cursor returns the decode cursor of the current row.
func (r *Reader) Cursor() DecodeCursor { return r.cursor }

// GetFieldValue decodes column col of the current row. ok is false when the
// value is null, and for the ObjectID column, whose value is FID(row).
// Columns may be requested in any order.
func (r *Reader) GetFieldValue(col int) (v Value, ok bool, err error) {
	if r.curRow < 0 {
		return Value{}, false, errors.New(errors.ErrInvalidArgument, "no row selected")
	}
	if col < 0 || col >= len(r.schema.Fields) {
		return Value{}, false, errors.Newf(errors.ErrInvalidArgument, "column %d out of range [0,%d)", col, len(r.schema.Fields))
	}
	if r.err != nil {
		return Value{}, false, r.err
	}
	v, ok, err = r.fieldValue(col)
	if err != nil {
		r.err = errors.WithMessagef(err, "row %d column %d", r.curRow, col)
		CounterRowErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return Value{}, false, r.err
	}
	return v, ok, nil
}

func (r *Reader) fieldValue(col int) (Value, bool, error) {
	blob := r.buf[:r.blobLen:r.blobLen]
	c := &r.cursor
	if col <= c.LastCol {
		c.Reset(r.schema.NullableBytes())
	}

	for j := c.LastCol + 1; j < col; j++ {
		f := r.schema.Fields[j]
		if f.Nullable {
			null := testBit(blob, c.NullBit)
			c.NullBit++
			if null {
				continue
			}
		}
		n, err := fieldExtent(f, blob[c.Pos:])
		if err != nil {
			return Value{}, false, errors.WithMessagef(err, "skipping column %d", j)
		}
		c.Pos += n
	}
	c.LastCol = col

	f := r.schema.Fields[col]
	if f.Nullable {
		null := testBit(blob, c.NullBit)
		c.NullBit++
		if null {
			return Value{}, false, nil
		}
	}

	b := blob[c.Pos:]
	v := Value{Type: f.Type}
	switch f.Type {
	case FieldObjectID:
		return Value{}, false, nil

	case FieldString, FieldXML:
		raw, n, err := lengthPrefixed(b)
		if err != nil {
			return Value{}, false, err
		}
		if f.Type == FieldString && !r.schema.StringsAreUTF8 {
			v.Str = DecodeUTF16(raw)
		} else {
			v.Bytes = raw
		}
		c.Pos += n

	case FieldGeometry, FieldBinary:
		raw, n, err := lengthPrefixed(b)
		if err != nil {
			return Value{}, false, err
		}
		v.Bytes = raw
		c.Pos += n

	case FieldRaster:
		if f.Raster.Type == RasterManaged {
			if len(b) < 4 {
				return Value{}, false, truncatedField(f, 4, len(b))
			}
			v.Int = int32(binary.LittleEndian.Uint32(b))
			c.Pos += 4
			break
		}
		raw, n, err := lengthPrefixed(b)
		if err != nil {
			return Value{}, false, err
		}
		if f.Raster.Type == RasterExternal {
			v.Str = DecodeUTF16(raw)
		} else {
			v.Bytes = raw
		}
		c.Pos += n

	case FieldInt16:
		if len(b) < 2 {
			return Value{}, false, truncatedField(f, 2, len(b))
		}
		v.Int = int32(int16(binary.LittleEndian.Uint16(b)))
		c.Pos += 2

	case FieldInt32:
		if len(b) < 4 {
			return Value{}, false, truncatedField(f, 4, len(b))
		}
		v.Int = int32(binary.LittleEndian.Uint32(b))
		c.Pos += 4

	case FieldFloat32:
		if len(b) < 4 {
			return Value{}, false, truncatedField(f, 4, len(b))
		}
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		c.Pos += 4

	case FieldFloat64:
		if len(b) < 8 {
			return Value{}, false, truncatedField(f, 8, len(b))
		}
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
		c.Pos += 8

	case FieldDateTime:
		if len(b) < 8 {
			return Value{}, false, truncatedField(f, 8, len(b))
		}
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
		v.Time, _ = DateTimeFromDays(v.Float)
		c.Pos += 8

	case FieldGUID, FieldGlobalID:
		if len(b) < uuidSize {
			return Value{}, false, truncatedField(f, uuidSize, len(b))
		}
		v.Str = FormatGUID(b[:uuidSize])
		c.Pos += uuidSize
	}
	return v, true, nil
}

// lengthPrefixed reads a varint length and that many bytes. n counts both.
func lengthPrefixed(b []byte) (raw []byte, n int, err error) {
	length, hn, err := varint.ReadUint32(b)
	if err != nil {
		return nil, 0, err
	}
	if uint64(length) > uint64(len(b)-hn) {
		return nil, 0, errors.Newf(errors.ErrTruncatedRead, "value of %d bytes overruns row (%d left)", length, len(b)-hn)
	}
	end := hn + int(length)
	return b[hn:end:end], end, nil
}

// fieldExtent returns the encoded size of a non-null value of f at the
// front of b, without decoding it.
func fieldExtent(f *Field, b []byte) (int, error) {
	var n int
	switch f.Type {
	case FieldObjectID:
		return 0, nil
	case FieldString, FieldXML, FieldGeometry, FieldBinary:
		_, n, err := lengthPrefixed(b)
		return n, err
	case FieldRaster:
		if f.Raster.Type != RasterManaged {
			_, n, err := lengthPrefixed(b)
			return n, err
		}
		n = 4
	case FieldInt16:
		n = 2
	case FieldInt32, FieldFloat32:
		n = 4
	case FieldFloat64, FieldDateTime:
		n = 8
	case FieldGUID, FieldGlobalID:
		n = uuidSize
	}
	if n > len(b) {
		return 0, truncatedField(f, n, len(b))
	}
	return n, nil
}

func truncatedField(f *Field, need, have int) error {
	return errors.Newf(errors.ErrTruncatedRead, "%s field %s needs %d bytes, %d left in row", f.Type, f.Name, need, have)
}
