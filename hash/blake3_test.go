// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package hash_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/featurebasedb/filegdb/gdbtest"
	"github.com/featurebasedb/filegdb/hash"
	"github.com/featurebasedb/filegdb/table"
	"github.com/stretchr/testify/require"
)

func TestBlake3sum16(t *testing.T) {
	require.Equal(t, "d74981efa70a0c880b8d8c1985d075db", hash.Blake3sum16([]byte("hello world")))
}

func digestTable(n int) *gdbtest.Table {
	tbl := &gdbtest.Table{
		Fields: []*table.Field{
			gdbtest.ObjectIDField("OBJECTID"),
			gdbtest.NewField("name", table.FieldString, true),
			gdbtest.NewField("n", table.FieldInt32, false),
		},
	}
	for i := 0; i < n; i++ {
		tbl.Rows = append(tbl.Rows, gdbtest.Row{Values: []interface{}{nil, "row", i}})
	}
	return tbl
}

func digest(t *testing.T, tbl *gdbtest.Table, opt table.Options) hash.TableDigest {
	t.Helper()
	r, err := table.Open(tbl.Write(t, t.TempDir()), opt)
	require.NoError(t, err)
	defer r.Close()
	d, err := hash.DigestTable(r)
	require.NoError(t, err)
	return d
}

func TestDigestTable(t *testing.T) {
	base := digest(t, digestTable(20), table.Options{})
	require.Equal(t, int64(20), base.Rows)
	require.Len(t, base.Sum, 2*hash.DigestSize)

	// Same content, different locator layout.
	sparse := digestTable(20)
	sparse.Sparse = true
	sparse.OffsetSize = 6
	require.Equal(t, base, digest(t, sparse, table.Options{}))

	// Recovered offsets find the same rows.
	require.Equal(t, base, digest(t, digestTable(20), table.Options{IgnoreLocator: true}))

	changed := digestTable(20)
	changed.Rows[7].Values[2] = 700
	require.NotEqual(t, base.Sum, digest(t, changed, table.Options{}).Sum)

	deleted := digestTable(20)
	deleted.Rows[7].Deleted = true
	d := digest(t, deleted, table.Options{})
	require.Equal(t, int64(19), d.Rows)
	require.NotEqual(t, base.Sum, d.Sum)

	empty := digest(t, digestTable(0), table.Options{})
	require.Zero(t, empty.Rows)
}

func TestHashOfDir(t *testing.T) {
	dir := t.TempDir()
	b := filepath.Join(dir, "A", "B")
	require.NoError(t, os.MkdirAll(b, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(b, "b_content"), []byte("hello B\n"), 0644))

	hsh, err := hash.HashOfDir(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(b, "b_content"), []byte("hello B2\n"), 0644))
	hsh2, err := hash.HashOfDir(dir)
	require.NoError(t, err)
	require.NotEqual(t, hsh, hsh2)

	_, err = hash.HashOfDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
