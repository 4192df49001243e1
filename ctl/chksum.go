// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"io"
	"os"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/hash"
	"golang.org/x/sync/errgroup"
)

// ChkSumCommand prints a digital signature of tables and geodatabase
// directories. A table's signature covers its live rows only, so it
// survives compaction; a directory's covers every byte of every file.
type ChkSumCommand struct {
	*filegdb.CmdIO

	// Paths to .gdbtable files or .gdb directories.
	Paths []string

	// Concurrency is the number of paths hashed at once.
	Concurrency int

	Config *filegdb.Config
}

// NewChkSumCommand returns a new instance of ChkSumCommand.
func NewChkSumCommand(stdin io.Reader, stdout, stderr io.Writer) *ChkSumCommand {
	return &ChkSumCommand{
		CmdIO:       filegdb.NewCmdIO(stdin, stdout, stderr),
		Concurrency: 4,
	}
}

// Checksum is the signature of one path.
type Checksum struct {
	Path string
	Rows int64
	Sum  string
}

// Run hashes every path and prints the results in argument order.
func (cmd *ChkSumCommand) Run(ctx context.Context) error {
	sums, err := cmd.Checksums(ctx)
	if err != nil {
		return err
	}
	rows := make([][]interface{}, len(sums))
	for i, s := range sums {
		rows[i] = []interface{}{s.Path, nil, s.Sum}
		if s.Rows >= 0 {
			rows[i][1] = s.Rows
		}
	}
	writeTable(cmd.Stdout, []interface{}{"path", "rows", "checksum"}, rows)
	return nil
}

// Checksums hashes every path. Rows is -1 for directories.
func (cmd *ChkSumCommand) Checksums(ctx context.Context) ([]Checksum, error) {
	if len(cmd.Paths) == 0 {
		return nil, errors.New(errors.ErrInvalidArgument, "at least one path required")
	}
	closeLog, err := cmd.ConfigureLogger(cmd.Config)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeLog() }()

	sums := make([]Checksum, len(cmd.Paths))
	eg, ctx := errgroup.WithContext(ctx)
	if cmd.Concurrency > 0 {
		eg.SetLimit(cmd.Concurrency)
	}
	for i, path := range cmd.Paths {
		i, path := i, path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := cmd.checksum(path)
			if err != nil {
				return errors.WithMessagef(err, "checksumming %s", path)
			}
			sums[i] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func (cmd *ChkSumCommand) checksum(path string) (Checksum, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Checksum{}, errors.Wrap(err, "stat")
	}
	if fi.IsDir() {
		sum, err := hash.HashOfDir(path)
		return Checksum{Path: path, Rows: -1, Sum: sum}, err
	}
	t, err := filegdb.OpenTable(path, cmd.Config, cmd.Logger())
	if err != nil {
		return Checksum{}, err
	}
	defer t.Close()
	d, err := hash.DigestTable(t.Reader)
	if err != nil {
		return Checksum{}, err
	}
	cmd.Logger().Debugf("%s: %d rows", path, d.Rows)
	return Checksum{Path: path, Rows: d.Rows, Sum: d.Sum}, nil
}
