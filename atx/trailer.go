// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package atx reads .atx attribute index files.
//
// An attribute index is a tree of 4096-byte pages over the values of one
// field. Interior pages hold child page numbers and the largest value below
// each child; leaf pages hold values and the 1-based FIDs of the rows
// carrying them. The tree is walked with one linear scan per level instead
// of a binary search, so files whose pages are only roughly ordered are
// still read correctly.
package atx

import (
	"encoding/binary"
	"io"

	"github.com/featurebasedb/filegdb/errors"
)

const (
	// PageSize is the size of every page of an index file.
	PageSize = 4096

	// TrailerSize is the size of the trailer that closes an index file.
	TrailerSize = 22

	// MaxDepth is the largest number of page levels, root and leaves
	// included.
	MaxDepth = 4

	// MaxIndexedChars is the number of UTF-16 units a string index keeps
	// per value.
	MaxIndexedChars = 80

	// guidTextLen is the size of a braced GUID stored as ASCII.
	guidTextLen = 38

	pageHeaderSize = 12
	trailerMagic   = 1
)

// Trailer is the decoded tail of an index file.
type Trailer struct {
	// ValueSize is the byte width of one indexed value.
	ValueSize int

	// Depth is the number of page levels, 1 meaning the root is a leaf.
	Depth int

	// ValueCount is the number of indexed (non-null) values.
	ValueCount int64

	// PageCount is the number of whole pages before the trailer.
	PageCount uint32

	// MaxPerPage is the number of values a page can hold, and
	// FirstValueOffset is where the first value sits in a page.
	MaxPerPage       int
	FirstValueOffset int
}

// ReadTrailer decodes the trailer of an index file of the given size.
func ReadTrailer(r io.ReaderAt, size int64) (Trailer, error) {
	var t Trailer
	if size < PageSize+TrailerSize {
		return t, errors.Newf(errors.ErrStructuralCorruption, "index file of %d bytes shorter than one page and a trailer", size)
	}
	var b [TrailerSize]byte
	if err := readAt(r, b[:], size-TrailerSize); err != nil {
		return t, errors.WithMessage(err, "reading index trailer")
	}
	t.PageCount = uint32((size - TrailerSize) / PageSize)
	t.ValueSize = int(b[0])
	t.MaxPerPage = (PageSize - pageHeaderSize) / (4 + t.ValueSize)
	t.FirstValueOffset = pageHeaderSize + 4*t.MaxPerPage

	if magic := binary.LittleEndian.Uint32(b[2:]); magic != trailerMagic {
		return t, errors.Newf(errors.ErrStructuralCorruption, "bad index trailer magic %d", magic)
	}
	depth := binary.LittleEndian.Uint32(b[6:])
	if depth < 1 || depth > MaxDepth {
		return t, errors.Newf(errors.ErrStructuralCorruption, "index depth %d out of range [1,%d]", depth, MaxDepth)
	}
	t.Depth = int(depth)

	count := binary.LittleEndian.Uint32(b[10:])
	if count&(1<<31) != 0 {
		return t, errors.Newf(errors.ErrStructuralCorruption, "negative index value count %d", int32(count))
	}
	switch {
	case count == 0 && t.Depth == 1:
		// Some writers leave the trailer count at zero for single-page
		// indexes; the leaf itself knows how many values it holds.
		var lb [4]byte
		if err := readAt(r, lb[:], 4); err != nil {
			return t, errors.WithMessage(err, "reading root leaf count")
		}
		count = binary.LittleEndian.Uint32(lb[:])
	case int(count) < t.MaxPerPage && t.Depth > 1:
		return t, errors.Newf(errors.ErrStructuralCorruption, "index value count %d too small for depth %d", count, t.Depth)
	}
	t.ValueCount = int64(count)
	return t, nil
}

// readAt fills b from offset off. Anything short of a full buffer is a
// TruncatedRead.
func readAt(r io.ReaderAt, b []byte, off int64) error {
	n, err := r.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Newf(errors.ErrTruncatedRead, "short read at offset %d: got %d of %d bytes", off, n, len(b))
	}
	return errors.WithMessage(errors.Newf(errors.ErrTruncatedRead, "read failed at offset %d", off), err.Error())
}

// Page accessors. Interior pages store subCount keys and subCount+1 child
// page numbers; leaf pages store subCount values and as many FIDs.
func readSubCount(page []byte) uint32         { return binary.LittleEndian.Uint32(page[4:8]) }
func readChildPage(page []byte, i int) uint32 { return binary.LittleEndian.Uint32(page[8+4*i:]) }
func readLeafFID(page []byte, i int) uint32   { return binary.LittleEndian.Uint32(page[12+4*i:]) }
