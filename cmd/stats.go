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

func newStatsCommand(stdin io.Reader, stdout, stderr io.Writer, conf *filegdb.Config) *cobra.Command {
	c := ctl.NewStatsCommand(stdin, stdout, stderr)
	cmd := &cobra.Command{
		Use:   "stats <path> [field]...",
		Short: "Summarize indexed fields.",
		Long: `
Prints the non-null count, minimum, maximum and, for numeric
fields, the sum of each indexed field, read from the attribute
indexes alone.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Path = args[0]
			c.Fields = args[1:]
			c.Config = conf
			return c.Run(context.Background())
		},
	}
	return cmd
}
