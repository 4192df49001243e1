// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package table reads .gdbtable files: the schema in the field-descriptor
// section, the row locator in the sibling .gdbtablx file, and the encoded
// rows themselves.
//
// A Reader holds exactly one current row. SelectRow overwrites the row
// buffer, which invalidates any Value.Bytes handed out for the previous
// row. A Reader is not safe for concurrent use; open one Reader per
// concurrent scan.
package table

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/logger"
)

// guardSize zero bytes always follow the current row blob in the buffer.
const guardSize = 4

// DefaultMaxRowSize is the largest row blob the reader will allocate.
const DefaultMaxRowSize = math.MaxInt32 - guardSize

// DefaultRecoveryRowSizeFactor bounds a plausible row, during recovery, to
// this many times the average row size of the file.
const DefaultRecoveryRowSizeFactor = 10

// deletedFlag marks a recovered offset whose row carries a negated length.
const deletedFlag = uint64(1) << 63

// Options configure how a table is opened.
type Options struct {
	Logger logger.Logger

	// IgnoreLocator skips the .gdbtablx file and always derives row
	// offsets with the recovery scan.
	IgnoreLocator bool

	// RequireLocator makes a missing .gdbtablx file an error instead of
	// a reason to run the recovery scan.
	RequireLocator bool

	// ReportDeleted makes the recovery scan keep soft-deleted rows, which
	// SelectRow then returns like live ones.
	ReportDeleted bool

	MaxRowSize            int64
	RecoveryRowSizeFactor int64
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = logger.NopLogger
	}
	if o.MaxRowSize <= 0 || o.MaxRowSize > DefaultMaxRowSize {
		o.MaxRowSize = DefaultMaxRowSize
	}
	if o.RecoveryRowSizeFactor <= 0 {
		o.RecoveryRowSizeFactor = DefaultRecoveryRowSizeFactor
	}
}

// Reader is an open .gdbtable file.
type Reader struct {
	path     string
	f        *os.File
	fileSize int64
	opt      Options
	logger   logger.Logger

	hdr    header
	desc   fieldDescHead
	schema *Schema

	validCount int64
	totalCount int64

	// Exactly one of locator and offsets is used. offsets is filled by the
	// recovery scan; its entries may carry deletedFlag.
	locatorFile *os.File
	locator     *Locator
	offsets     []uint64
	recovered   bool

	indexes []*Index

	// State of the current row.
	buf       []byte
	blobLen   int
	curRow    int64
	isDeleted bool
	cursor    DecodeCursor
	err       error

	filter filterEnvelope
}

// Open opens the table file at path together with its row locator and
// index list.
func Open(path string, opt Options) (_ *Reader, err error) {
	opt.setDefaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening table")
	}
	r := &Reader{
		path:   path,
		f:      f,
		opt:    opt,
		logger: opt.Logger.WithPrefix(filepath.Base(path) + ": "),
		curRow: -1,
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()
	if err := r.open(); err != nil {
		return nil, errors.WithMessagef(err, "opening %s", path)
	}
	return r, nil
}

func (r *Reader) open() error {
	fi, err := r.f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	r.fileSize = fi.Size()

	var hb [HeaderSize]byte
	if err := readAt(r.f, hb[:], 0); err != nil {
		return errors.Wrap(err, "reading header")
	}
	if r.hdr, err = decodeHeader(hb[:]); err != nil {
		return err
	}
	r.validCount = int64(r.hdr.validRecordCount)

	if r.validCount > 0 && !r.opt.IgnoreLocator {
		if err := r.openLocator(); err != nil {
			return err
		}
	}

	if r.hdr.fieldDescOffset > uint64(r.fileSize) {
		return errors.Newf(errors.ErrStructuralCorruption, "field descriptor offset %d past end of file", r.hdr.fieldDescOffset)
	}
	var db [fieldDescHeadSize]byte
	if err := readAt(r.f, db[:], int64(r.hdr.fieldDescOffset)); err != nil {
		return errors.Wrap(err, "reading field descriptor head")
	}
	if r.desc, err = decodeFieldDescHead(db[:]); err != nil {
		return err
	}
	if r.locator == nil && r.validCount > 0 && r.desc.fieldCount == 0 {
		return errors.New(errors.ErrStructuralCorruption, "no fields and no row locator")
	}
	body := make([]byte, r.desc.length-(fieldDescHeadSize-4))
	if err := readAt(r.f, body, int64(r.hdr.fieldDescOffset)+fieldDescHeadSize); err != nil {
		return errors.Wrap(err, "reading field descriptors")
	}
	if r.schema, err = parseSchema(r.desc, body); err != nil {
		return err
	}
	for _, fld := range r.schema.Fields {
		if fld.Raster != nil && fld.Raster.Type > RasterInline {
			r.logger.Warnf("unknown raster type %d for field %s", fld.Raster.Type, fld.Name)
		}
	}
	r.buf = make([]byte, len(body)+guardSize)

	if err := r.readIndexes(); err != nil {
		r.logger.Warnf("ignoring index list: %v", err)
		r.indexes = nil
		for _, fld := range r.schema.Fields {
			fld.index = nil
		}
	}

	if r.validCount > 0 && r.locator == nil {
		return r.guessFeatureLocations()
	}
	return nil
}

func (r *Reader) openLocator() error {
	name := siblingPath(r.path, ".gdbtablx")
	lf, err := os.Open(name)
	if os.IsNotExist(err) {
		if r.opt.RequireLocator {
			return errors.Newf(errors.ErrStructuralCorruption, "%s not found", filepath.Base(name))
		}
		r.logger.Warnf("%s could not be found; guessing feature locations, which might fail or return incorrect results", filepath.Base(name))
		return nil
	} else if err != nil {
		return errors.Wrap(err, "opening row locator")
	}
	r.locatorFile = lf
	if r.locator, err = ReadLocator(lf); err != nil {
		return errors.WithMessage(err, "row locator")
	}
	r.totalCount = r.locator.TotalRecordCount()
	if r.validCount > r.totalCount {
		r.logger.Warnf("table declares %d valid records but the row locator declares only %d total records; using the latter",
			r.validCount, r.totalCount)
		r.validCount = r.totalCount
	}
	return nil
}

// siblingPath replaces the extension of path.
func siblingPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// Close releases the underlying files.
func (r *Reader) Close() error {
	var err error
	if r.locatorFile != nil {
		err = r.locatorFile.Close()
		r.locatorFile = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}

// Path returns the path of the table file.
func (r *Reader) Path() string { return r.path }

// Logger returns the logger diagnostics for this table go to.
func (r *Reader) Logger() logger.Logger { return r.logger }

// FileSize is the size of the table file in bytes.
func (r *Reader) FileSize() int64 { return r.fileSize }

// Schema returns the decoded field descriptors.
func (r *Reader) Schema() *Schema { return r.schema }

// FieldCount returns the number of fields, ObjectID included.
func (r *Reader) FieldCount() int { return len(r.schema.Fields) }

// Field returns field i.
func (r *Reader) Field(i int) *Field { return r.schema.Fields[i] }

// FieldIndex returns the position of the named field, or -1.
func (r *Reader) FieldIndex(name string) int { return r.schema.FieldIndex(name) }

// GeomFieldIndex returns the position of the geometry field, or -1.
func (r *Reader) GeomFieldIndex() int { return r.schema.GeomIndex }

// TotalRecordCount is the number of row slots, deleted rows included.
func (r *Reader) TotalRecordCount() int64 { return r.totalCount }

// ValidRecordCount is the number of live rows.
func (r *Reader) ValidRecordCount() int64 { return r.validCount }

// Locator returns the row locator, or nil when offsets were recovered by
// scanning.
func (r *Reader) Locator() *Locator { return r.locator }

// Recovered reports whether row offsets came from the recovery scan.
func (r *Reader) Recovered() bool { return r.recovered }

// Err returns the sticky error of the current row, if any.
func (r *Reader) Err() error { return r.err }

// CurrentRow returns the selected row, or -1.
func (r *Reader) CurrentRow() int64 { return r.curRow }

// FID returns the 1-based feature id of row.
func (r *Reader) FID(row int64) int64 { return row + 1 }

// RowOffset returns the byte offset of row in the table file, or 0 when the
// row is deleted or was never written.
func (r *Reader) RowOffset(row int64) (uint64, error) {
	off, _, err := r.rowOffset(row)
	return off, err
}

func (r *Reader) rowOffset(row int64) (off uint64, deleted bool, err error) {
	if row < 0 || row >= r.totalCount {
		return 0, false, errors.Newf(errors.ErrInvalidArgument, "row %d out of range [0,%d)", row, r.totalCount)
	}
	if r.locator == nil {
		off = r.offsets[row]
		return off &^ deletedFlag, off&deletedFlag != 0, nil
	}
	off, err = r.locator.OffsetForRow(row)
	return off, false, err
}

// SelectRow makes row the current row. It returns false without an error
// when the row is deleted. On failure the error is also kept as the sticky
// error returned by Err until another row is selected successfully.
func (r *Reader) SelectRow(row int64) (bool, error) {
	if row < 0 || row >= r.totalCount {
		r.curRow = -1
		return false, errors.Newf(errors.ErrInvalidArgument, "row %d out of range [0,%d)", row, r.totalCount)
	}
	if row == r.curRow && r.err == nil {
		return true, nil
	}
	ok, err := r.selectRow(row)
	if err != nil {
		r.curRow = -1
		r.err = errors.WithMessagef(err, "row %d", row)
		CounterRowErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return false, r.err
	}
	return ok, nil
}

func (r *Reader) selectRow(row int64) (bool, error) {
	off, deleted, err := r.rowOffset(row)
	if err != nil {
		return false, err
	}
	if off == 0 {
		r.curRow = -1
		return false, nil
	}

	var lb [4]byte
	if err := readAt(r.f, lb[:], int64(off)); err != nil {
		return false, err
	}
	length := binary.LittleEndian.Uint32(lb[:])
	if deleted {
		length = uint32(-int32(length))
	}
	nullable := r.schema.NullableBytes()
	if length < uint32(nullable) {
		return false, errors.Newf(errors.ErrStructuralCorruption, "row length %d shorter than null bitmask", length)
	}
	if int64(off)+4+int64(length) > r.fileSize {
		return false, errors.Newf(errors.ErrTruncatedRead, "row of %d bytes at offset %d runs past end of file", length, off)
	}

	if err := r.grow(int(length)); err != nil {
		return false, err
	}
	if err := readAt(r.f, r.buf[:length], int64(off)+4); err != nil {
		return false, err
	}
	for i := 0; i < guardSize; i++ {
		r.buf[int(length)+i] = 0
	}

	r.blobLen = int(length)
	r.curRow = row
	r.isDeleted = deleted
	r.cursor.Reset(nullable)
	r.err = nil
	CounterRowsSelected.Inc()
	return true, nil
}

// grow makes room for a blob of n bytes plus the guard.
func (r *Reader) grow(n int) error {
	if int64(n) > r.opt.MaxRowSize {
		return errors.Newf(errors.ErrAllocationFailure, "row length %d exceeds limit %d", n, r.opt.MaxRowSize)
	}
	if cap(r.buf) >= n+guardSize {
		r.buf = r.buf[:n+guardSize]
		return nil
	}
	r.buf = make([]byte, n+guardSize)
	return nil
}

// NextNonEmptyRow selects the first row at or after row that is present,
// skipping whole absent blocks of a sparse locator. It returns -1 when no
// such row exists.
func (r *Reader) NextNonEmptyRow(row int64) (int64, error) {
	if row < 0 || row >= r.totalCount {
		r.curRow = -1
		return -1, errors.Newf(errors.ErrInvalidArgument, "row %d out of range [0,%d)", row, r.totalCount)
	}
	for row < r.totalCount {
		if r.locator != nil && r.locator.Sparse() && row%BlockSize == 0 {
			block := int(row / BlockSize)
			if !r.locator.BlockPresent(block) {
				nblocks := int((r.totalCount + BlockSize - 1) / BlockSize)
				for block++; block < nblocks && !r.locator.BlockPresent(block); block++ {
				}
				row = int64(block) * BlockSize
				if row >= r.totalCount {
					return -1, nil
				}
			}
		}
		ok, err := r.SelectRow(row)
		if err != nil {
			return -1, err
		}
		if ok {
			return row, nil
		}
		row++
	}
	return -1, nil
}

// IsDeleted reports whether the current row was found soft-deleted by the
// recovery scan.
func (r *Reader) IsDeleted() bool { return r.isDeleted }

// RowBlob returns the raw bytes of the current row.
func (r *Reader) RowBlob() []byte {
	if r.curRow < 0 {
		return nil
	}
	return r.buf[:r.blobLen:r.blobLen]
}
