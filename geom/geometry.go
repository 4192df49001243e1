// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package geom

import (
	"strconv"
	"strings"
)

// Geometry is a decoded shape. It is one of *Point, *MultiPoint,
// *LineString, *MultiLineString, *Polygon or *MultiPolygon.
type Geometry interface {
	// Envelope returns the XY bounding box. Empty geometries return
	// EmptyEnvelope().
	Envelope() Envelope
	// WKT renders the geometry as well-known text.
	WKT() string
	IsEmpty() bool
}

// Dims records which optional ordinates a geometry carries.
type Dims struct {
	HasZ, HasM bool
}

func (d Dims) suffix() string {
	switch {
	case d.HasZ && d.HasM:
		return " ZM"
	case d.HasZ:
		return " Z"
	case d.HasM:
		return " M"
	}
	return ""
}

// Coord is one vertex. Z and M are meaningful only when the enclosing
// geometry's Dims say so.
type Coord struct {
	X, Y, Z, M float64
}

type Point struct {
	Dims
	Coord
	Empty bool
}

type MultiPoint struct {
	Dims
	Points []Coord
}

type LineString struct {
	Dims
	Coords []Coord
}

type MultiLineString struct {
	Dims
	Lines []*LineString
}

// Polygon holds an exterior ring followed by its holes. Rings are closed.
type Polygon struct {
	Dims
	Rings [][]Coord
}

type MultiPolygon struct {
	Dims
	Polygons []*Polygon
}

func (p *Point) Envelope() Envelope {
	if p.Empty {
		return EmptyEnvelope()
	}
	return Envelope{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
}

func (m *MultiPoint) Envelope() Envelope      { return coordsEnvelope(EmptyEnvelope(), m.Points) }
func (l *LineString) Envelope() Envelope      { return coordsEnvelope(EmptyEnvelope(), l.Coords) }
func (m *MultiLineString) Envelope() Envelope { return multiEnvelope(len(m.Lines), func(i int) Geometry { return m.Lines[i] }) }
func (m *MultiPolygon) Envelope() Envelope {
	return multiEnvelope(len(m.Polygons), func(i int) Geometry { return m.Polygons[i] })
}

func (p *Polygon) Envelope() Envelope {
	if len(p.Rings) == 0 {
		return EmptyEnvelope()
	}
	return coordsEnvelope(EmptyEnvelope(), p.Rings[0])
}

func coordsEnvelope(e Envelope, cs []Coord) Envelope {
	for _, c := range cs {
		e.Extend(c.X, c.Y)
	}
	return e
}

func multiEnvelope(n int, part func(int) Geometry) Envelope {
	e := EmptyEnvelope()
	for i := 0; i < n; i++ {
		pe := part(i).Envelope()
		e.Extend(pe.MinX, pe.MinY)
		e.Extend(pe.MaxX, pe.MaxY)
	}
	return e
}

func (p *Point) IsEmpty() bool           { return p.Empty }
func (m *MultiPoint) IsEmpty() bool      { return len(m.Points) == 0 }
func (l *LineString) IsEmpty() bool      { return len(l.Coords) == 0 }
func (m *MultiLineString) IsEmpty() bool { return len(m.Lines) == 0 }
func (p *Polygon) IsEmpty() bool         { return len(p.Rings) == 0 }
func (m *MultiPolygon) IsEmpty() bool    { return len(m.Polygons) == 0 }

func (p *Point) WKT() string {
	var sb strings.Builder
	sb.WriteString("POINT" + p.suffix())
	if p.Empty {
		sb.WriteString(" EMPTY")
		return sb.String()
	}
	sb.WriteString(" (")
	writeCoord(&sb, p.Dims, p.Coord)
	sb.WriteString(")")
	return sb.String()
}

func (m *MultiPoint) WKT() string {
	var sb strings.Builder
	sb.WriteString("MULTIPOINT" + m.suffix())
	if len(m.Points) == 0 {
		sb.WriteString(" EMPTY")
		return sb.String()
	}
	sb.WriteString(" (")
	for i, c := range m.Points {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		writeCoord(&sb, m.Dims, c)
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

func (l *LineString) WKT() string {
	var sb strings.Builder
	sb.WriteString("LINESTRING" + l.suffix())
	writeCoordList(&sb, l.Dims, l.Coords)
	return sb.String()
}

func (m *MultiLineString) WKT() string {
	var sb strings.Builder
	sb.WriteString("MULTILINESTRING" + m.suffix())
	if len(m.Lines) == 0 {
		sb.WriteString(" EMPTY")
		return sb.String()
	}
	sb.WriteString(" (")
	for i, l := range m.Lines {
		if i > 0 {
			sb.WriteString(",")
		}
		writeCoordList(&sb, m.Dims, l.Coords)
	}
	sb.WriteString(")")
	return sb.String()
}

func (p *Polygon) WKT() string {
	var sb strings.Builder
	sb.WriteString("POLYGON" + p.suffix())
	writeRings(&sb, p.Dims, p.Rings)
	return sb.String()
}

func (m *MultiPolygon) WKT() string {
	var sb strings.Builder
	sb.WriteString("MULTIPOLYGON" + m.suffix())
	if len(m.Polygons) == 0 {
		sb.WriteString(" EMPTY")
		return sb.String()
	}
	sb.WriteString(" (")
	for i, p := range m.Polygons {
		if i > 0 {
			sb.WriteString(",")
		}
		writeRings(&sb, m.Dims, p.Rings)
	}
	sb.WriteString(")")
	return sb.String()
}

func writeRings(sb *strings.Builder, d Dims, rings [][]Coord) {
	if len(rings) == 0 {
		sb.WriteString(" EMPTY")
		return
	}
	sb.WriteString(" (")
	for i, r := range rings {
		if i > 0 {
			sb.WriteString(",")
		}
		writeCoordList(sb, d, r)
	}
	sb.WriteString(")")
}

func writeCoordList(sb *strings.Builder, d Dims, cs []Coord) {
	if len(cs) == 0 {
		sb.WriteString(" EMPTY")
		return
	}
	sb.WriteString(" (")
	for i, c := range cs {
		if i > 0 {
			sb.WriteString(",")
		}
		writeCoord(sb, d, c)
	}
	sb.WriteString(")")
}

func writeCoord(sb *strings.Builder, d Dims, c Coord) {
	sb.WriteString(formatOrdinate(c.X))
	sb.WriteString(" ")
	sb.WriteString(formatOrdinate(c.Y))
	if d.HasZ {
		sb.WriteString(" ")
		sb.WriteString(formatOrdinate(c.Z))
	}
	if d.HasM {
		sb.WriteString(" ")
		sb.WriteString(formatOrdinate(c.M))
	}
}

func formatOrdinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
