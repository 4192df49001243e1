// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"bytes"
	"context"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/stretchr/testify/require"
)

func TestRowsCommand_Run(t *testing.T) {
	path := writeCityTable(t)
	run := func(t *testing.T, edit func(cmd *RowsCommand)) string {
		t.Helper()
		var stdout, stderr bytes.Buffer
		cmd := NewRowsCommand(bytes.NewReader(nil), &stdout, &stderr)
		cmd.Path = path
		edit(cmd)
		require.NoError(t, cmd.Run(context.Background()))
		return stdout.String()
	}

	t.Run("Where", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop >= 200"
			cmd.Fields = []string{"OBJECTID", "name", "pop"}
		})
		require.Contains(t, out, "| OBJECTID | name | pop |")
		require.Contains(t, out, "NULL")
		require.Contains(t, out, "c4")
		require.Contains(t, out, "500")
		require.NotContains(t, out, "c1")
		require.NotContains(t, out, "c3")
	})

	t.Run("Explain", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop >= 200"
			cmd.Explain = true
		})
		require.Equal(t, "INDEX(pop >=)\n", out)
	})

	t.Run("Count", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop >= 200"
			cmd.Count = true
		})
		require.Equal(t, "3\n", out)
	})

	t.Run("Limit", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop >= 200"
			cmd.Limit = 1
		})
		require.Contains(t, out, "NULL")
		require.NotContains(t, out, "c4")
	})

	t.Run("Envelope", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Envelope = "3.5,3.5,10,10"
			cmd.Count = true
		})
		require.Equal(t, "2\n", out)
	})

	t.Run("Geometry", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop = 100"
			cmd.Fields = []string{"SHAPE"}
		})
		require.Contains(t, out, "POINT (1 1)")
	})

	t.Run("Metrics", func(t *testing.T) {
		out := run(t, func(cmd *RowsCommand) {
			cmd.Where = "pop = 100"
			cmd.Metrics = true
		})
		require.Contains(t, out, "| metric ")
		require.Contains(t, out, "filegdb_rows_selected_total")
		require.Contains(t, out, "filegdb_index_builds_total")
	})
}

func TestRowsCommand_Errors(t *testing.T) {
	path := writeCityTable(t)
	for name, edit := range map[string]func(cmd *RowsCommand){
		"BadWhere":     func(cmd *RowsCommand) { cmd.Where = "pop >" },
		"UnknownField": func(cmd *RowsCommand) { cmd.Fields = []string{"nope"} },
		"BadEnvelope":  func(cmd *RowsCommand) { cmd.Envelope = "1,2" },
		"NegLimit":     func(cmd *RowsCommand) { cmd.Limit = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			cmd := NewRowsCommand(bytes.NewReader(nil), &stdout, &stderr)
			cmd.Path = path
			edit(cmd)
			err := cmd.Run(context.Background())
			require.True(t, errors.Is(err, errors.ErrInvalidArgument), err)
		})
	}
}
