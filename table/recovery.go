// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
)

// scanChunk is how much of the table file the recovery scan reads at once.
const scanChunk = 1 << 20

// scanWindow is a read-ahead buffer over the table file for the byte-by-byte
// recovery scan.
type scanWindow struct {
	r     io.ReaderAt
	size  int64
	start int64
	buf   []byte
}

// bytes returns n bytes at off, or nil when they extend past end of file.
func (w *scanWindow) bytes(off int64, n int) ([]byte, error) {
	if off < 0 || off+int64(n) > w.size {
		return nil, nil
	}
	if off >= w.start && off+int64(n) <= w.start+int64(len(w.buf)) {
		i := int(off - w.start)
		return w.buf[i : i+n], nil
	}
	chunk := int64(scanChunk)
	if int64(n) > chunk {
		chunk = int64(n)
	}
	if off+chunk > w.size {
		chunk = w.size - off
	}
	if int64(cap(w.buf)) < chunk {
		w.buf = make([]byte, chunk)
	}
	w.buf = w.buf[:chunk]
	if err := readAt(w.r, w.buf, off); err != nil {
		w.buf = w.buf[:0]
		return nil, err
	}
	w.start = off
	return w.buf[:n], nil
}

// GuessFeatureLocations rebuilds the row offsets by scanning the table file
// for byte ranges that decode as plausible rows. It is the degraded mode
// used when the row locator is missing or ignored, and it can both miss rows
// and report garbage ones.
func (r *Reader) GuessFeatureLocations() error {
	r.curRow = -1
	r.locator = nil
	return r.guessFeatureLocations()
}

func (r *Reader) guessFeatureLocations() error {
	CounterRecoveryScans.Inc()
	r.recovered = true
	r.offsets = r.offsets[:0]
	w := &scanWindow{r: r.f, size: r.fileSize}

	off, err := r.recoveryStart(w)
	if err != nil {
		return err
	}
	maxLen := int64(math.MaxInt32 - guardSize)
	if r.validCount > 0 {
		if avg := r.opt.RecoveryRowSizeFactor * (r.fileSize / r.validCount); avg < maxLen {
			maxLen = avg
		}
	}

	var invalid int64
	for off < r.fileSize {
		size, deleted, ok, err := r.likelyRowAt(w, off, maxLen)
		if err != nil {
			return errors.WithMessagef(err, "recovery scan at offset %d", off)
		}
		if !ok {
			off++
			continue
		}
		switch {
		case !deleted:
			r.offsets = append(r.offsets, uint64(off))
		case r.opt.ReportDeleted:
			r.offsets = append(r.offsets, uint64(off)|deletedFlag)
			CounterDeletedRows.Inc()
		default:
			invalid++
			r.offsets = append(r.offsets, 0)
			CounterDeletedRows.Inc()
		}
		off += int64(size)
	}
	r.totalCount = int64(len(r.offsets))
	CounterRecoveredRows.Add(float64(r.totalCount - invalid))

	if found := r.totalCount - invalid; found > r.validCount {
		if !r.opt.ReportDeleted {
			r.logger.Warnf("more features found (%d) than declared number of valid features (%d); deleted features will likely be reported",
				found, r.validCount)
		}
		r.validCount = found
	}
	r.logger.Infof("recovery scan found %d row slots, %d deleted", r.totalCount, invalid)
	if r.totalCount == 0 {
		return errors.New(errors.ErrStructuralCorruption, "recovery scan found no rows")
	}
	return nil
}

// recoveryStart returns the offset the first row can start at. When the
// field descriptors were rewritten elsewhere, a soft-deleted copy of them
// may still sit at the end of the header.
func (r *Reader) recoveryStart(w *scanWindow) (int64, error) {
	if r.hdr.fieldDescOffset == HeaderSize {
		return HeaderSize + int64(r.desc.length), nil
	}
	b, err := w.bytes(HeaderSize, fieldDescHeadSize)
	if err != nil || b == nil {
		return 0, errors.New(errors.ErrTruncatedRead, "reading area after header")
	}
	size := int32(binary.LittleEndian.Uint32(b[0:]))
	version := binary.LittleEndian.Uint32(b[4:])
	if size < 0 && size > -(1<<20) &&
		(version == 3 || version == 4) &&
		validGeometryType(b[8]) &&
		b[9] == 3 && b[10] == 0 && b[11] == 0 {
		return HeaderSize + int64(-size), nil
	}
	return HeaderSize, nil
}

// likelyRowAt reports whether a row plausibly starts at off, and its size
// including the length prefix. A negated length marks a soft-deleted row.
func (r *Reader) likelyRowAt(w *scanWindow, off, maxLen int64) (size uint32, deleted, ok bool, err error) {
	lb, err := w.bytes(off, 4)
	if err != nil || lb == nil {
		return 0, false, false, err
	}
	nullable := uint32(r.schema.NullableBytes())
	plausible := func(l uint32) bool {
		return l >= nullable && int64(l) <= r.fileSize-off && int64(l) <= maxLen
	}
	length := binary.LittleEndian.Uint32(lb)
	if !plausible(length) {
		if length>>31 == 0 || length == 0x80000000 {
			return 0, false, false, nil
		}
		length = uint32(-int32(length))
		if !plausible(length) {
			return 0, false, false, nil
		}
		deleted = true
	}

	blob, err := w.bytes(off+4, int(length))
	if err != nil || blob == nil {
		return 0, false, false, err
	}
	required, ok := r.plausibleBlob(blob)
	if !ok {
		return 0, false, false, nil
	}
	return 4 + required, deleted, required == length, nil
}

// plausibleBlob walks blob as a row of the schema and returns the number of
// bytes the fields account for. Strings must be free of NUL bytes and, when
// the table stores UTF-8, valid UTF-8.
func (r *Reader) plausibleBlob(blob []byte) (uint32, bool) {
	pos := r.schema.NullableBytes()
	nullBit := 0
	for _, f := range r.schema.Fields {
		if f.Nullable {
			null := testBit(blob, nullBit)
			nullBit++
			if null {
				continue
			}
		}
		switch f.Type {
		case FieldString, FieldXML, FieldGeometry, FieldBinary:
			length, n := varint.PeekUint32(blob[pos:])
			if n == 0 || n > 5 || uint64(length) > uint64(len(blob)-pos-n) {
				return 0, false
			}
			pos += n
			s := blob[pos : pos+int(length)]
			pos += int(length)
			if f.Type == FieldXML || (f.Type == FieldString && r.schema.StringsAreUTF8) {
				if !plausibleText(s) {
					return 0, false
				}
			} else if f.Type == FieldString && len(s)%2 != 0 {
				return 0, false
			}
		case FieldRaster:
			if f.Raster.Type != RasterManaged {
				length, n := varint.PeekUint32(blob[pos:])
				if n == 0 || n > 5 || uint64(length) > uint64(len(blob)-pos-n) {
					return 0, false
				}
				pos += n + int(length)
				continue
			}
			pos += 4
		default:
			n, err := fieldExtent(f, blob[pos:])
			if err != nil {
				return 0, false
			}
			pos += n
		}
		if pos > len(blob) {
			return 0, false
		}
	}
	return uint32(pos), true
}

func plausibleText(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return false
		}
	}
	return utf8.Valid(b)
}
