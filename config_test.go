// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb_test

import (
	"testing"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	c := filegdb.NewConfig()
	require.NoError(t, c.Validate())
	require.True(t, c.Index.Enabled)
	require.Equal(t, int64(table.DefaultMaxRowSize), c.Table.MaxRowSize)
	require.Equal(t, int64(table.DefaultRecoveryRowSizeFactor), c.Table.RecoveryRowSizeFactor)

	opt := c.TableOptions(nil)
	require.False(t, opt.IgnoreLocator)
	require.Equal(t, c.Table.MaxRowSize, opt.MaxRowSize)
}

func TestConfig_Validate(t *testing.T) {
	for name, edit := range map[string]func(c *filegdb.Config){
		"LocatorConflict": func(c *filegdb.Config) {
			c.Table.IgnoreLocator = true
			c.Table.RequireLocator = true
		},
		"ZeroRowSize":   func(c *filegdb.Config) { c.Table.MaxRowSize = 0 },
		"HugeRowSize":   func(c *filegdb.Config) { c.Table.MaxRowSize = 1 << 40 },
		"ZeroRowFactor": func(c *filegdb.Config) { c.Table.RecoveryRowSizeFactor = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := filegdb.NewConfig()
			edit(c)
			err := c.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.ErrInvalidArgument))
		})
	}
}

func TestConfig_TOML(t *testing.T) {
	c := filegdb.NewConfig()
	err := toml.Unmarshal([]byte(`
verbose = true

[table]
ignore-locator = true
report-deleted = true
max-row-size = 4096

[index]
enabled = false
`), c)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.True(t, c.Verbose)
	require.True(t, c.Table.IgnoreLocator)
	require.True(t, c.Table.ReportDeleted)
	require.Equal(t, int64(4096), c.Table.MaxRowSize)
	require.Equal(t, int64(table.DefaultRecoveryRowSizeFactor), c.Table.RecoveryRowSizeFactor)
	require.False(t, c.Index.Enabled)

	// A config written out reads back the same.
	b, err := toml.Marshal(*c)
	require.NoError(t, err)
	back := &filegdb.Config{}
	require.NoError(t, toml.Unmarshal(b, back))
	require.Equal(t, c, back)
}

func TestOpenTable_InvalidConfig(t *testing.T) {
	c := filegdb.NewConfig()
	c.Table.RecoveryRowSizeFactor = -1
	_, err := filegdb.OpenTable("does-not-matter.gdbtable", c, nil)
	require.True(t, errors.Is(err, errors.ErrInvalidArgument))
}
