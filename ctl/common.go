// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"io"
	"strconv"
	"strings"

	"github.com/featurebasedb/filegdb"
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/geom"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

// nullString is printed in place of null values.
const nullString = "NULL"

// tableCommand holds what every command that opens a single table shares.
type tableCommand struct {
	*filegdb.CmdIO

	// Path to the .gdbtable file.
	Path string

	// Config is shared with the other commands of a root command. A nil
	// Config means filegdb.NewConfig().
	Config *filegdb.Config
}

func newTableCommand(stdin io.Reader, stdout, stderr io.Writer) tableCommand {
	return tableCommand{CmdIO: filegdb.NewCmdIO(stdin, stdout, stderr)}
}

// open configures logging and opens the table. The returned function closes
// both.
func (c *tableCommand) open() (*filegdb.Table, func(), error) {
	if c.Path == "" {
		return nil, nil, errors.New(errors.ErrInvalidArgument, "table path required")
	}
	closeLog, err := c.ConfigureLogger(c.Config)
	if err != nil {
		return nil, nil, err
	}
	t, err := filegdb.OpenTable(c.Path, c.Config, c.Logger())
	if err != nil {
		_ = closeLog()
		return nil, nil, errors.WithMessagef(err, "opening %s", c.Path)
	}
	return t, func() {
		if err := t.Close(); err != nil {
			c.Logger().Warnf("closing %s: %v", c.Path, err)
		}
		_ = closeLog()
	}, nil
}

// writeTable renders rows under header. Nil cells are printed as NULL.
func writeTable(w io.Writer, header []interface{}, rows [][]interface{}) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row(header))
	for _, row := range rows {
		for i := range row {
			// go-pretty doesn't print nil as anything useful.
			if row[i] == nil {
				row[i] = nullString
			}
		}
		t.AppendRow(table.Row(row))
	}
	t.Render()
}

// ParseEnvelope parses "minx,miny,maxx,maxy".
func ParseEnvelope(s string) (*geom.Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.Newf(errors.ErrInvalidArgument, "envelope %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Newf(errors.ErrInvalidArgument, "envelope %q: %v", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return nil, errors.Newf(errors.ErrInvalidArgument, "envelope %q: min greater than max", s)
	}
	return &geom.Envelope{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}
