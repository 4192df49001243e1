// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"fmt"

	"github.com/featurebasedb/filegdb/geom"
)

// FieldType is the on-disk type tag of a field descriptor.
type FieldType uint8

const (
	FieldInt16    FieldType = 0
	FieldInt32    FieldType = 1
	FieldFloat32  FieldType = 2
	FieldFloat64  FieldType = 3
	FieldString   FieldType = 4
	FieldDateTime FieldType = 5
	FieldObjectID FieldType = 6
	FieldGeometry FieldType = 7
	FieldBinary   FieldType = 8
	FieldRaster   FieldType = 9
	FieldGUID     FieldType = 10
	FieldGlobalID FieldType = 11
	FieldXML      FieldType = 12
)

var fieldTypeNames = [...]string{
	FieldInt16:    "int16",
	FieldInt32:    "int32",
	FieldFloat32:  "float32",
	FieldFloat64:  "float64",
	FieldString:   "string",
	FieldDateTime: "datetime",
	FieldObjectID: "objectid",
	FieldGeometry: "geometry",
	FieldBinary:   "binary",
	FieldRaster:   "raster",
	FieldGUID:     "guid",
	FieldGlobalID: "globalid",
	FieldXML:      "xml",
}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// Numeric reports whether values of t can be summed.
func (t FieldType) Numeric() bool {
	switch t {
	case FieldInt16, FieldInt32, FieldFloat32, FieldFloat64:
		return true
	}
	return false
}

// GeometryType is the geometry kind declared for the whole table.
type GeometryType uint8

const (
	GeometryNone       GeometryType = 0
	GeometryPoint      GeometryType = 1
	GeometryMultiPoint GeometryType = 2
	GeometryLine       GeometryType = 3
	GeometryPolygon    GeometryType = 4
	GeometryMultiPatch GeometryType = 9
)

func validGeometryType(b byte) bool {
	return b <= byte(GeometryPolygon) || b == byte(GeometryMultiPatch)
}

func (t GeometryType) String() string {
	switch t {
	case GeometryNone:
		return "none"
	case GeometryPoint:
		return "point"
	case GeometryMultiPoint:
		return "multipoint"
	case GeometryLine:
		return "line"
	case GeometryPolygon:
		return "polygon"
	case GeometryMultiPatch:
		return "multipatch"
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(t))
}

// RasterType tells how a raster field stores its value.
type RasterType uint8

const (
	RasterExternal RasterType = 0
	RasterManaged  RasterType = 1
	RasterInline   RasterType = 2
)

// Field is one column descriptor.
type Field struct {
	Name     string
	Alias    string
	Type     FieldType
	Nullable bool

	// MaxWidth is the declared width of string fields.
	MaxWidth int

	// Default holds the default value when HasDefault is set. Only scalar
	// and string fields carry defaults.
	HasDefault bool
	Default    Value

	// Geom is set for geometry and raster fields.
	Geom *GeomFieldMeta

	// Raster is set for raster fields only.
	Raster *RasterMeta

	index *Index
}

// Index returns the attribute index attached to f, or nil.
func (f *Field) Index() *Index {
	return f.index
}

// GeomFieldMeta holds the spatial reference and quantization parameters of a
// geometry (or raster) field.
type GeomFieldMeta struct {
	WKT string

	XOrigin, YOrigin, XYScale float64
	HasM                      bool
	MOrigin, MScale           float64
	HasZ                      bool
	ZOrigin, ZScale           float64

	XYTolerance, MTolerance, ZTolerance float64

	// Cached extent of the layer.
	XMin, YMin, XMax, YMax float64
	ZMin, ZMax, MMin, MMax float64

	GridResolutions []float64
}

// Quantization returns the origin and scale parameters for geometry decoding.
func (g *GeomFieldMeta) Quantization() geom.Quantization {
	return geom.Quantization{
		XOrigin: g.XOrigin, YOrigin: g.YOrigin, XYScale: g.XYScale,
		ZOrigin: g.ZOrigin, ZScale: g.ZScale,
		MOrigin: g.MOrigin, MScale: g.MScale,
	}
}

// Extent returns the cached XY extent of the layer.
func (g *GeomFieldMeta) Extent() geom.Envelope {
	return geom.Envelope{MinX: g.XMin, MinY: g.YMin, MaxX: g.XMax, MaxY: g.YMax}
}

type RasterMeta struct {
	ColumnName string
	Type       RasterType
}

// Schema is the decoded field-descriptor section of a table. Field order is
// fixed for the lifetime of the table.
type Schema struct {
	Version        uint32
	GeometryType   GeometryType
	HasZ, HasM     bool
	StringsAreUTF8 bool

	Fields []*Field

	// ObjectIDName is the name of the implicit ObjectID column. It is also
	// present in Fields at ObjectIDIndex, where it occupies no bytes in a
	// row blob.
	ObjectIDName  string
	ObjectIDIndex int

	// GeomIndex is the position of the geometry field, or -1.
	GeomIndex int

	nullableCount int
}

// NullableBytes is the size of the null bitmask at the start of a row blob.
func (s *Schema) NullableBytes() int {
	return (s.nullableCount + 7) / 8
}

// FieldIndex returns the position of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// GeomField returns the geometry field, or nil.
func (s *Schema) GeomField() *Field {
	if s.GeomIndex < 0 {
		return nil
	}
	return s.Fields[s.GeomIndex]
}
