// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
)

// SchemaCommand prints the header and field descriptors of a table.
type SchemaCommand struct {
	tableCommand
}

// NewSchemaCommand returns a new instance of SchemaCommand.
func NewSchemaCommand(stdin io.Reader, stdout, stderr io.Writer) *SchemaCommand {
	return &SchemaCommand{tableCommand: newTableCommand(stdin, stdout, stderr)}
}

// Run prints the schema.
func (cmd *SchemaCommand) Run(_ context.Context) error {
	t, done, err := cmd.open()
	if err != nil {
		return err
	}
	defer done()

	s := t.Schema()
	fmt.Fprintf(cmd.Stdout, "path:      %s\n", t.Path())
	fmt.Fprintf(cmd.Stdout, "version:   %d\n", s.Version)
	fmt.Fprintf(cmd.Stdout, "rows:      %d valid, %d total\n", t.ValidRecordCount(), t.TotalRecordCount())
	if l := t.Locator(); l != nil {
		fmt.Fprintf(cmd.Stdout, "locator:   %d byte offsets\n", l.OffsetSize())
	} else {
		fmt.Fprintf(cmd.Stdout, "locator:   recovered\n")
	}
	if g := s.GeomField(); g != nil {
		dims := ""
		if s.HasZ {
			dims += "Z"
		}
		if s.HasM {
			dims += "M"
		}
		e := g.Geom.Extent()
		fmt.Fprintf(cmd.Stdout, "geometry:  %s%s extent (%g %g, %g %g)\n", s.GeometryType, dims, e.MinX, e.MinY, e.MaxX, e.MaxY)
	}

	rows := make([][]interface{}, 0, len(s.Fields))
	for _, f := range s.Fields {
		var width, alias, index, def interface{}
		if f.MaxWidth > 0 {
			width = f.MaxWidth
		}
		if f.Alias != "" && f.Alias != f.Name {
			alias = f.Alias
		}
		if idx := f.Index(); idx != nil {
			index = idx.Name
		}
		if f.HasDefault {
			def = f.Default.Text()
		}
		rows = append(rows, []interface{}{f.Name, f.Type.String(), f.Nullable, width, alias, index, def})
	}
	writeTable(cmd.Stdout, []interface{}{"name", "type", "nullable", "width", "alias", "index", "default"}, rows)
	return nil
}
