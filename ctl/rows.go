// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
)

// RowsCommand prints the rows of a table matching a where clause.
type RowsCommand struct {
	tableCommand

	// Where is an attribute filter such as "pop > 1000 AND name IS NOT NULL".
	Where string

	// Envelope restricts rows to geometries intersecting "minx,miny,maxx,maxy".
	Envelope string

	// Fields to print. All fields when empty.
	Fields []string

	// Limit on the number of rows printed. No limit when zero.
	Limit int

	// Explain prints the plan instead of the rows.
	Explain bool

	// Count prints the number of matching rows instead of the rows.
	Count bool

	// Metrics prints the filegdb counters after the rows.
	Metrics bool
}

// NewRowsCommand returns a new instance of RowsCommand.
func NewRowsCommand(stdin io.Reader, stdout, stderr io.Writer) *RowsCommand {
	return &RowsCommand{tableCommand: newTableCommand(stdin, stdout, stderr)}
}

// Run selects and prints the rows.
func (cmd *RowsCommand) Run(ctx context.Context) error {
	var where *filegdb.Where
	if cmd.Where != "" {
		w, err := filegdb.ParseWhere(cmd.Where)
		if err != nil {
			return err
		}
		where = w
	}
	if cmd.Limit < 0 {
		return errors.Newf(errors.ErrInvalidArgument, "negative limit %d", cmd.Limit)
	}

	t, done, err := cmd.open()
	if err != nil {
		return err
	}
	defer done()

	cols, err := columns(t, cmd.Fields)
	if err != nil {
		return err
	}
	if cmd.Envelope != "" {
		e, err := ParseEnvelope(cmd.Envelope)
		if err != nil {
			return err
		}
		if err := t.SetSpatialFilter(e); err != nil {
			return err
		}
	}

	rs, err := t.Select(where)
	if err != nil {
		return err
	}
	defer rs.Close()

	switch {
	case cmd.Explain:
		fmt.Fprintln(cmd.Stdout, rs.Plan())
		return nil
	case cmd.Count:
		n, err := rs.Count()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Stdout, n)
		return nil
	}

	header := make([]interface{}, len(cols))
	for i, col := range cols {
		header[i] = t.Field(col).Name
	}
	var rows [][]interface{}
	for cmd.Limit == 0 || len(rows) < cmd.Limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := rs.Next()
		if err != nil {
			return err
		} else if !ok {
			break
		}
		row, err := rowValues(t, cols)
		if err != nil {
			return errors.WithMessagef(err, "row %d", rs.Row())
		}
		rows = append(rows, row)
	}
	writeTable(cmd.Stdout, header, rows)
	if cmd.Metrics {
		return writeMetrics(cmd.Stdout)
	}
	return nil
}

// columns resolves field names to column positions.
func columns(t *filegdb.Table, names []string) ([]int, error) {
	if len(names) == 0 {
		cols := make([]int, t.FieldCount())
		for i := range cols {
			cols[i] = i
		}
		return cols, nil
	}
	cols := make([]int, 0, len(names))
	for _, name := range names {
		col := t.FieldIndex(name)
		if col < 0 {
			return nil, errors.Newf(errors.ErrInvalidArgument, "unknown field %q", name)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// rowValues formats the requested columns of the selected row.
func rowValues(t *filegdb.Table, cols []int) ([]interface{}, error) {
	row := make([]interface{}, len(cols))
	for i, col := range cols {
		switch t.Field(col).Type {
		case table.FieldObjectID:
			row[i] = t.FID(t.CurrentRow())
		case table.FieldGeometry:
			g, ok, err := t.Geometry()
			if err != nil {
				return nil, err
			} else if ok {
				row[i] = g.WKT()
			}
		default:
			v, ok, err := t.GetFieldValue(col)
			if err != nil {
				return nil, err
			} else if ok {
				row[i] = v.Text()
			}
		}
	}
	return row, nil
}
