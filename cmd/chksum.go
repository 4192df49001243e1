// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/ctl"
	"github.com/spf13/cobra"
)

func newChkSumCommand(stdin io.Reader, stdout io.Writer, stderr io.Writer, conf *filegdb.Config) *cobra.Command {
	cmd := ctl.NewChkSumCommand(stdin, stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "chksum <path>...",
		Short: "digital signature of tables and geodatabases",
		Long: `
Generates a digital signature of each .gdbtable file or .gdb
directory given. A table's signature covers its live rows and
does not change when the table is compacted.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Paths = args
			cmd.Config = conf
			return cmd.Run(context.Background())
		},
	}

	flags := ccmd.Flags()
	flags.IntVar(&cmd.Concurrency, "concurrency", cmd.Concurrency, "Number of paths hashed at once.")
	return ccmd
}
