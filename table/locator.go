// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/featurebasedb/filegdb/errors"
)

const (
	// BlockSize is the number of rows covered by one block of the row
	// locator.
	BlockSize = 1024

	locatorHeaderSize  = 16
	locatorTrailerSize = 16
)

// Locator maps row numbers to byte offsets in the table file using a
// .gdbtablx file. Offsets are stored either densely, or per 1024-row block
// with a presence bitmap that elides empty blocks.
type Locator struct {
	r          io.ReaderAt
	blocks     uint32
	total      int64
	offsetSize int

	// bitmap has one bit per 1024-row block when the file is sparse.
	bitmap []byte

	// Cache of the number of present blocks before lastBlock, so that
	// sequential access does not rescan the bitmap.
	lastBlock       int
	lastBlockBefore int

	buf [8]byte
}

// ReadLocator parses the header and optional trailer of a .gdbtablx file.
func ReadLocator(r io.ReaderAt) (*Locator, error) {
	var h [locatorHeaderSize]byte
	if err := readAt(r, h[:], 0); err != nil {
		return nil, errors.Wrap(err, "reading locator header")
	}
	l := &Locator{
		r:          r,
		blocks:     binary.LittleEndian.Uint32(h[4:]),
		total:      int64(int32(binary.LittleEndian.Uint32(h[8:]))),
		offsetSize: int(binary.LittleEndian.Uint32(h[12:])),
	}
	if l.blocks == 0 && l.total != 0 {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "locator has no blocks but %d records", l.total)
	}
	if l.total < 0 {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "negative total record count %d", l.total)
	}
	if l.offsetSize < 4 || l.offsetSize > 6 {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "offset width %d not in [4,6]", l.offsetSize)
	}
	if l.blocks == 0 {
		return l, nil
	}

	trailerAt := locatorHeaderSize + int64(l.offsetSize)*BlockSize*int64(l.blocks)
	var t [locatorTrailerSize]byte
	if err := readAt(r, t[:], trailerAt); err != nil {
		return nil, errors.Wrap(err, "reading locator trailer")
	}
	bitmapWords := binary.LittleEndian.Uint32(t[0:])
	bitsForMap := binary.LittleEndian.Uint32(t[4:])
	blocksBis := binary.LittleEndian.Uint32(t[8:])
	if bitsForMap > 1+(1<<31-1)/BlockSize {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "block map of %d bits too large", bitsForMap)
	}
	if blocksBis != l.blocks {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "trailer block count %d != header block count %d", blocksBis, l.blocks)
	}

	if bitmapWords == 0 {
		if bitsForMap != l.blocks {
			return nil, errors.Newf(errors.ErrStructuralCorruption, "block map bits %d != block count %d", bitsForMap, l.blocks)
		}
		return l, nil
	}

	if uint64(l.total) > uint64(bitsForMap)*BlockSize {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "%d records do not fit in %d blocks", l.total, bitsForMap)
	}
	l.bitmap = make([]byte, (bitsForMap+7)/8)
	if err := readAt(r, l.bitmap, trailerAt+locatorTrailerSize); err != nil {
		return nil, errors.Wrap(err, "reading locator block map")
	}
	var present uint32
	for i := uint32(0); i < bitsForMap; i++ {
		if testBit(l.bitmap, int(i)) {
			present++
		}
	}
	if present != l.blocks {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "block map has %d blocks set, header declares %d", present, l.blocks)
	}
	return l, nil
}

// TotalRecordCount is the number of row slots, deleted rows included.
func (l *Locator) TotalRecordCount() int64 { return l.total }

// OffsetSize is the width in bytes of each stored offset.
func (l *Locator) OffsetSize() int { return l.offsetSize }

// Sparse reports whether the locator carries a block presence bitmap.
func (l *Locator) Sparse() bool { return l.bitmap != nil }

// BlockPresent reports whether the 1024-row block has stored offsets.
func (l *Locator) BlockPresent(block int) bool {
	if l.bitmap == nil {
		return true
	}
	return block < len(l.bitmap)*8 && testBit(l.bitmap, block)
}

// OffsetForRow returns the table file offset of row, or 0 when the row does
// not exist.
func (l *Locator) OffsetForRow(row int64) (uint64, error) {
	if row < 0 || row >= l.total {
		return 0, errors.Newf(errors.ErrInvalidArgument, "row %d out of range [0,%d)", row, l.total)
	}
	slot := row
	if l.bitmap != nil {
		block := int(row / BlockSize)
		if !testBit(l.bitmap, block) {
			return 0, nil
		}
		slot = int64(l.blocksBefore(block))*BlockSize + row%BlockSize
	}
	b := l.buf[:l.offsetSize]
	if err := readAt(l.r, b, locatorHeaderSize+int64(l.offsetSize)*slot); err != nil {
		return 0, errors.Wrapf(err, "reading locator slot for row %d", row)
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// blocksBefore counts present blocks in [0, block).
func (l *Locator) blocksBefore(block int) int {
	start, n := 0, 0
	if block >= l.lastBlock {
		start, n = l.lastBlock, l.lastBlockBefore
	}
	for i := start; i < block; {
		// whole bytes at a time where possible
		if i%8 == 0 && i+8 <= block {
			n += bits.OnesCount8(l.bitmap[i/8])
			i += 8
			continue
		}
		if testBit(l.bitmap, i) {
			n++
		}
		i++
	}
	l.lastBlock, l.lastBlockBefore = block, n
	return n
}

func testBit(b []byte, i int) bool {
	return b[i/8]&(1<<(uint(i)%8)) != 0
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
