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

func newSchemaCommand(stdin io.Reader, stdout, stderr io.Writer, conf *filegdb.Config) *cobra.Command {
	c := ctl.NewSchemaCommand(stdin, stdout, stderr)
	cmd := &cobra.Command{
		Use:   "schema <path>",
		Short: "Print the fields of a table.",
		Long: `
Prints the header of a .gdbtable file and a list of its fields
with their types and attribute indexes.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Path = args[0]
			c.Config = conf
			return c.Run(context.Background())
		},
	}
	return cmd
}
