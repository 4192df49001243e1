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

func newRowsCommand(stdin io.Reader, stdout, stderr io.Writer, conf *filegdb.Config) *cobra.Command {
	c := ctl.NewRowsCommand(stdin, stdout, stderr)
	cmd := &cobra.Command{
		Use:   "rows <path>",
		Short: "Print the rows of a table.",
		Long: `
Prints the rows of a .gdbtable file matching an optional where
clause and bounding box. Where clauses support comparisons, IN,
BETWEEN, IS [NOT] NULL, NOT, AND and OR; attribute indexes answer
them when they can and a scan does otherwise. Use --explain to
see which.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Path = args[0]
			c.Config = conf
			return c.Run(context.Background())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&c.Where, "where", "w", "", "Attribute filter, e.g. \"pop > 1000 AND name IS NOT NULL\".")
	flags.StringVar(&c.Envelope, "envelope", "", "Only rows whose geometry intersects minx,miny,maxx,maxy.")
	flags.StringSliceVarP(&c.Fields, "fields", "f", nil, "Fields to print. All when empty.")
	flags.IntVarP(&c.Limit, "limit", "n", 0, "Print at most this many rows. No limit when 0.")
	flags.BoolVar(&c.Explain, "explain", false, "Print how rows would be found instead of the rows.")
	flags.BoolVar(&c.Count, "count", false, "Print the number of matching rows instead of the rows.")
	flags.BoolVar(&c.Metrics, "metrics", false, "Print the filegdb counters after the rows.")
	return cmd
}
