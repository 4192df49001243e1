// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table_test

import (
	"path/filepath"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/gdbtest"
	"github.com/featurebasedb/filegdb/geom"
	"github.com/featurebasedb/filegdb/table"
	"github.com/stretchr/testify/require"
)

var testQuantization = table.GeomFieldMeta{
	XOrigin: -400, YOrigin: -400, XYScale: 100,
	XYTolerance: 0.001,
	XMin: 0, YMin: 0, XMax: 1000, YMax: 1000,
}

func shapeTable() *gdbtest.Table {
	shape := gdbtest.Shape{Q: testQuantization.Quantization()}
	square := []geom.Coord{{X: 10, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}, {X: 20, Y: 10}, {X: 10, Y: 10}}
	return &gdbtest.Table{
		GeometryType: table.GeometryPolygon,
		Fields: []*table.Field{
			gdbtest.ObjectIDField("OBJECTID"),
			gdbtest.GeometryField("SHAPE", testQuantization, true),
			gdbtest.NewField("label", table.FieldString, true),
		},
		Rows: []gdbtest.Row{
			{Values: []interface{}{nil, shape.Point(geom.Coord{X: 100, Y: 200}), "point"}},
			{Values: []interface{}{nil, shape.Polygon([][]geom.Coord{square}), "square"}},
			{Values: []interface{}{nil, nil, "null"}},
			{Values: []interface{}{nil, shape.Polyline([][]geom.Coord{{{X: 500, Y: 500}, {X: 600, Y: 550}}}), "line"}},
		},
		Indexes: []gdbtest.IndexDef{
			{Name: "FDO_OBJECTID", Expression: "OBJECTID"},
			{Name: "FDO_SHAPE", Expression: "SHAPE"},
			{Name: "label_idx", Expression: "LOWER(label)"},
			{Name: "orphan", Expression: "missing"},
		},
	}
}

func TestGeometryField(t *testing.T) {
	r := mustOpen(t, shapeTable().Write(t, t.TempDir()), table.Options{})
	require.Equal(t, 1, r.GeomFieldIndex())
	require.Equal(t, table.GeometryPolygon, r.Schema().GeometryType)
	g := r.Schema().GeomField().Geom
	require.Equal(t, 100.0, g.XYScale)
	require.Equal(t, -400.0, g.XOrigin)
	require.Equal(t, []float64{1000}, g.GridResolutions)
	require.Equal(t, geom.Envelope{MaxX: 1000, MaxY: 1000}, g.Extent())
	require.Contains(t, g.WKT, "GCS_WGS_1984")
}

func TestFilterEnvelope(t *testing.T) {
	r := mustOpen(t, shapeTable().Write(t, t.TempDir()), table.Options{})

	matches := func() []string {
		var out []string
		for row := int64(0); row < r.TotalRecordCount(); row++ {
			ok, err := r.SelectRow(row)
			require.NoError(t, err)
			require.True(t, ok)
			v, ok, err := r.GetFieldValue(1)
			require.NoError(t, err)
			if ok && !r.DoesGeometryIntersectsFilterEnvelope(v.Bytes) {
				continue
			}
			s, _ := fieldText(t, r, 2)
			out = append(out, s)
		}
		return out
	}

	require.Equal(t, []string{"point", "square", "null", "line"}, matches())

	require.NoError(t, r.InstallFilterEnvelope(&geom.Envelope{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50}))
	require.Equal(t, []string{"square", "null"}, matches())

	require.NoError(t, r.InstallFilterEnvelope(&geom.Envelope{MinX: 99, MinY: 199, MaxX: 101, MaxY: 201}))
	require.Equal(t, []string{"point", "null"}, matches())

	require.NoError(t, r.InstallFilterEnvelope(&geom.Envelope{MinX: 550, MinY: 0, MaxX: 2000, MaxY: 520}))
	require.Equal(t, []string{"null", "line"}, matches())

	require.NoError(t, r.InstallFilterEnvelope(nil))
	require.Len(t, matches(), 4)
}

func TestGetFeatureExtent(t *testing.T) {
	r := mustOpen(t, shapeTable().Write(t, t.TempDir()), table.Options{})

	extent := func(row int64) (geom.Envelope, bool) {
		ok, err := r.SelectRow(row)
		require.NoError(t, err)
		require.True(t, ok)
		v, ok, err := r.GetFieldValue(1)
		require.NoError(t, err)
		if !ok {
			return geom.Envelope{}, false
		}
		e, ok, err := r.GetFeatureExtent(v.Bytes)
		require.NoError(t, err)
		return e, ok
	}

	e, ok := extent(0)
	require.True(t, ok)
	require.InDelta(t, 100, e.MinX, 1e-9)
	require.InDelta(t, 200, e.MaxY, 1e-9)

	e, ok = extent(1)
	require.True(t, ok)
	require.InDelta(t, 10, e.MinX, 1e-9)
	require.InDelta(t, 10, e.MinY, 1e-9)
	require.InDelta(t, 20, e.MaxX, 1e-9)
	require.InDelta(t, 20, e.MaxY, 1e-9)

	_, ok = extent(2)
	require.False(t, ok)
}

func TestFilterEnvelope_NoGeometry(t *testing.T) {
	r := mustOpen(t, threeRows().Write(t, t.TempDir()), table.Options{})
	err := r.InstallFilterEnvelope(&geom.Envelope{MaxX: 1, MaxY: 1})
	require.True(t, errors.Is(err, errors.ErrInvalidArgument), "%v", err)
	require.True(t, r.DoesGeometryIntersectsFilterEnvelope([]byte{1, 2, 3}))
}

func TestIndexList(t *testing.T) {
	dir := t.TempDir()
	path := shapeTable().Write(t, dir)
	r := mustOpen(t, path, table.Options{})

	require.Equal(t, 4, r.IndexCount())
	require.Nil(t, r.Field(0).Index(), "ObjectID index is not attached")
	require.Equal(t, "FDO_SHAPE", r.Field(1).Index().Name)
	idx := r.Field(2).Index()
	require.NotNil(t, idx)
	require.Equal(t, "label", idx.FieldName())
	require.Equal(t, filepath.Join(dir, gdbtest.DefaultName+".label_idx.atx"), r.IndexPath(idx))

	require.False(t, r.HasSpatialIndex())
	gdbtest.WriteFile(t, filepath.Join(dir, gdbtest.DefaultName+".spx"), []byte{0})
	require.True(t, r.HasSpatialIndex())
}

func TestIndexList_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := shapeTable().Write(t, dir)
	// an implausible count is logged and ignored
	gdbtest.WriteFile(t, filepath.Join(dir, gdbtest.DefaultName+".gdbindexes"), []byte{0xff, 0xff, 0, 0})
	r := mustOpen(t, path, table.Options{})
	require.Zero(t, r.IndexCount())
	require.Nil(t, r.Field(2).Index())
}
