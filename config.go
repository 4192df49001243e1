// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb

import (
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/logger"
	"github.com/featurebasedb/filegdb/table"
)

// TableConfig controls how table files are opened.
type TableConfig struct {
	// IgnoreLocator skips the .gdbtablx file and always locates rows by
	// scanning the table.
	IgnoreLocator bool `toml:"ignore-locator"`

	// RequireLocator fails instead of scanning when the .gdbtablx file is
	// missing.
	RequireLocator bool `toml:"require-locator"`

	// ReportDeleted makes the recovery scan return soft-deleted rows.
	ReportDeleted bool `toml:"report-deleted"`

	// MaxRowSize caps the row buffer. Rows longer than this fail with an
	// allocation error.
	MaxRowSize int64 `toml:"max-row-size"`

	// RecoveryRowSizeFactor bounds a plausible row during the recovery
	// scan to this multiple of the average row size.
	RecoveryRowSizeFactor int64 `toml:"recovery-row-size-factor"`
}

// IndexConfig controls the use of attribute indexes.
type IndexConfig struct {
	// Enabled lets predicates on indexed fields use the .atx files. When
	// false every predicate is answered by a full scan.
	Enabled bool `toml:"enabled"`
}

// Config represents the configuration for the command line tools.
type Config struct {
	// Verbose toggles verbose logging which can be useful for debugging.
	Verbose bool `toml:"verbose"`

	// LogPath configures where logs are written. Empty means stderr.
	LogPath string `toml:"log-path"`

	Table TableConfig `toml:"table"`
	Index IndexConfig `toml:"index"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	c := &Config{
		// Verbose: false,
		// LogPath: "",
	}
	c.Table.MaxRowSize = table.DefaultMaxRowSize
	c.Table.RecoveryRowSizeFactor = table.DefaultRecoveryRowSizeFactor
	c.Index.Enabled = true
	return c
}

// Validate checks the config for contradictory or out of range options.
func (c *Config) Validate() error {
	if c.Table.IgnoreLocator && c.Table.RequireLocator {
		return errors.New(errors.ErrInvalidArgument, "table.ignore-locator and table.require-locator are mutually exclusive")
	}
	if c.Table.MaxRowSize <= 0 || c.Table.MaxRowSize > table.DefaultMaxRowSize {
		return errors.Newf(errors.ErrInvalidArgument, "table.max-row-size must be in (0,%d], got %d", int64(table.DefaultMaxRowSize), c.Table.MaxRowSize)
	}
	if c.Table.RecoveryRowSizeFactor < 1 {
		return errors.Newf(errors.ErrInvalidArgument, "table.recovery-row-size-factor must be at least 1, got %d", c.Table.RecoveryRowSizeFactor)
	}
	return nil
}

// TableOptions converts the table section into reader options.
func (c *Config) TableOptions(l logger.Logger) table.Options {
	return table.Options{
		Logger:                l,
		IgnoreLocator:         c.Table.IgnoreLocator,
		RequireLocator:        c.Table.RequireLocator,
		ReportDeleted:         c.Table.ReportDeleted,
		MaxRowSize:            c.Table.MaxRowSize,
		RecoveryRowSizeFactor: c.Table.RecoveryRowSizeFactor,
	}
}
