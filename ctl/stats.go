// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"io"
	"strconv"

	"github.com/featurebasedb/filegdb/errors"
)

// StatsCommand prints what the attribute indexes of a table know about their
// fields, without reading any rows.
type StatsCommand struct {
	tableCommand

	// Fields to summarize. All indexed fields when empty.
	Fields []string
}

// NewStatsCommand returns a new instance of StatsCommand.
func NewStatsCommand(stdin io.Reader, stdout, stderr io.Writer) *StatsCommand {
	return &StatsCommand{tableCommand: newTableCommand(stdin, stdout, stderr)}
}

// Run prints one line per field.
func (cmd *StatsCommand) Run(ctx context.Context) error {
	t, done, err := cmd.open()
	if err != nil {
		return err
	}
	defer done()

	names := cmd.Fields
	if len(names) == 0 {
		for _, f := range t.Schema().Fields {
			if f.Index() != nil {
				names = append(names, f.Name)
			}
		}
	}

	var rows [][]interface{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := t.Stats(name)
		if errors.Is(err, errors.ErrNoIndex) || errors.Is(err, errors.ErrUnsupported) {
			cmd.Logger().Infof("%s: %v", name, err)
			continue
		} else if err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
		row := []interface{}{st.Field.Name, st.Field.Type.String(), st.Count, nil, nil, nil}
		if st.Count > 0 {
			row[3], row[4] = st.Min.Text(), st.Max.Text()
		}
		if st.Aggregate != nil && st.Count > 0 {
			row[5] = strconv.FormatFloat(st.Aggregate.Sum, 'g', -1, 64)
		}
		rows = append(rows, row)
	}
	writeTable(cmd.Stdout, []interface{}{"field", "type", "count", "min", "max", "sum"}, rows)
	return nil
}
