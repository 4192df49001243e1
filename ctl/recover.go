// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
)

// RecoverCommand runs the feature recovery scan on a table and, when the
// table has a row locator, compares the offsets it finds against the
// locator's.
type RecoverCommand struct {
	tableCommand

	// Verbose lists every row whose offsets disagree.
	Verbose bool
}

// NewRecoverCommand returns a new instance of RecoverCommand.
func NewRecoverCommand(stdin io.Reader, stdout, stderr io.Writer) *RecoverCommand {
	return &RecoverCommand{tableCommand: newTableCommand(stdin, stdout, stderr)}
}

// RecoverResult counts how the recovered offsets compare to the locator.
type RecoverResult struct {
	Recovered int64

	// The rest are only set when the table has a row locator.
	HasLocator bool
	Matched    int64
	Missed     int64
	Spurious   int64
	Moved      int64
}

// Run scans the table and prints a summary.
func (cmd *RecoverCommand) Run(ctx context.Context) error {
	res, diffs, err := cmd.compare(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "recovered: %d rows\n", res.Recovered)
	if !res.HasLocator {
		fmt.Fprintln(cmd.Stdout, "locator:   none")
		return nil
	}
	fmt.Fprintf(cmd.Stdout, "matched:   %d\n", res.Matched)
	fmt.Fprintf(cmd.Stdout, "missed:    %d\n", res.Missed)
	fmt.Fprintf(cmd.Stdout, "spurious:  %d\n", res.Spurious)
	fmt.Fprintf(cmd.Stdout, "moved:     %d\n", res.Moved)
	if cmd.Verbose && len(diffs) > 0 {
		writeTable(cmd.Stdout, []interface{}{"fid", "locator", "recovered"}, diffs)
	}
	return nil
}

// Compare is Run without the printing.
func (cmd *RecoverCommand) Compare(ctx context.Context) (RecoverResult, error) {
	res, _, err := cmd.compare(ctx)
	return res, err
}

func (cmd *RecoverCommand) compare(ctx context.Context) (RecoverResult, [][]interface{}, error) {
	conf := filegdb.NewConfig()
	if cmd.Config != nil {
		*conf = *cmd.Config
	}
	conf.Table.RequireLocator = false

	// Recovery first, since the locator is allowed to be missing.
	conf.Table.IgnoreLocator = true
	scan := cmd.tableCommand
	scan.Config = conf
	rt, done, err := scan.open()
	if err != nil {
		return RecoverResult{}, nil, err
	}
	defer done()

	var res RecoverResult
	rows := rt.TotalRecordCount()
	for row := int64(0); row < rows; row++ {
		off, err := rt.RowOffset(row)
		if err != nil {
			return RecoverResult{}, nil, err
		} else if off != 0 {
			res.Recovered++
		}
	}

	lconf := *conf
	lconf.Table.IgnoreLocator = false
	lconf.Table.RequireLocator = true
	if _, err := os.Stat(locatorPath(cmd.Path)); os.IsNotExist(err) {
		return res, nil, nil
	}
	lt, err := filegdb.OpenTable(cmd.Path, &lconf, cmd.Logger())
	if err != nil {
		return RecoverResult{}, nil, errors.WithMessagef(err, "opening %s with its locator", cmd.Path)
	}
	defer lt.Close()
	res.HasLocator = true

	var diffs [][]interface{}
	if lt.TotalRecordCount() > rows {
		rows = lt.TotalRecordCount()
	}
	for row := int64(0); row < rows; row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return RecoverResult{}, nil, err
			}
		}
		want, err := offsetOrZero(lt, row)
		if err != nil {
			return RecoverResult{}, nil, err
		}
		got, err := offsetOrZero(rt, row)
		if err != nil {
			return RecoverResult{}, nil, err
		}
		switch {
		case want == got:
			if want != 0 {
				res.Matched++
			}
			continue
		case got == 0:
			res.Missed++
		case want == 0:
			res.Spurious++
		default:
			res.Moved++
		}
		diffs = append(diffs, []interface{}{lt.FID(row), offsetCell(want), offsetCell(got)})
	}
	return res, diffs, nil
}

// offsetOrZero treats rows past the end of t as absent.
func offsetOrZero(t *filegdb.Table, row int64) (uint64, error) {
	if row >= t.TotalRecordCount() {
		return 0, nil
	}
	return t.RowOffset(row)
}

func offsetCell(off uint64) interface{} {
	if off == 0 {
		return nil
	}
	return off
}

func locatorPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".gdbtablx"
}
