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

func newRecoverCommand(stdin io.Reader, stdout, stderr io.Writer, conf *filegdb.Config) *cobra.Command {
	c := ctl.NewRecoverCommand(stdin, stdout, stderr)
	cmd := &cobra.Command{
		Use:   "recover <path>",
		Short: "Scan a table for rows without its row locator.",
		Long: `
Runs the feature recovery scan on a .gdbtable file and, if its
.gdbtablx row locator exists, reports how the offsets found agree
with it.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Path = args[0]
			c.Config = conf
			return c.Run(context.Background())
		},
	}
	cmd.Flags().BoolVar(&c.Verbose, "diff", false, "List every row whose offsets disagree.")
	return cmd
}
