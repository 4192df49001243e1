// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package hash computes content digests of tables and geodatabase
// directories.
package hash

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
	"github.com/zeebo/blake3"
	"golang.org/x/mod/sumdb/dirhash"
)

// DigestSize is the number of bytes of a table digest.
const DigestSize = 16

// Blake3sum16 returns the 16 byte blake3 hash of input as a hexadecimal
// string.
func Blake3sum16(input []byte) string {
	hasher := blake3.New()

	_, _ = hasher.Write(input)
	var buf [DigestSize]byte
	_, _ = hasher.Digest().Read(buf[0:])

	return hex.EncodeToString(buf[:])
}

// TableDigest is the content hash of the live rows of a table.
type TableDigest struct {
	Sum  string
	Rows int64
}

// DigestTable hashes every live row of r in row order. Each row contributes
// its number followed by its encoded bytes, so the digest changes when a row
// moves, but not when the file is compacted or its locator rewritten.
func DigestTable(r *table.Reader) (TableDigest, error) {
	hasher := blake3.New()
	var d TableDigest
	var hdr [12]byte
	total := r.TotalRecordCount()
	for row := int64(0); row < total; row++ {
		next, err := r.NextNonEmptyRow(row)
		if err != nil {
			return TableDigest{}, errors.WithMessagef(err, "digesting %s", r.Path())
		} else if next < 0 {
			break
		}
		row = next
		blob := r.RowBlob()
		binary.LittleEndian.PutUint64(hdr[0:], uint64(row))
		binary.LittleEndian.PutUint32(hdr[8:], uint32(len(blob)))

		// "Write implements part of the hash.Hash interface. It never returns an error."
		_, _ = hasher.Write(hdr[:])
		_, _ = hasher.Write(blob)
		d.Rows++
	}
	var buf [DigestSize]byte
	_, _ = hasher.Digest().Read(buf[:])
	d.Sum = hex.EncodeToString(buf[:])
	return d, nil
}

// HashOfDir returns the hash of every file below the geodatabase directory
// at path.
func HashOfDir(path string) (string, error) {
	h, err := dirhash.HashDir(path, "", dirhash.Hash1)
	if err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return h, nil
}
