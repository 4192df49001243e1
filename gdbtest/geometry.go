// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package gdbtest

import (
	"math"

	"github.com/featurebasedb/filegdb/geom"
	"github.com/featurebasedb/filegdb/varint"
)

// Shape encodes geometry blobs with a fixed quantization.
type Shape struct {
	Q    geom.Quantization
	Dims geom.Dims
}

func quantize(v, origin, scale float64) int64 {
	return int64(math.Round((v - origin) * scale))
}

func (s Shape) tag(plain, z, m, zm geom.ShapeType) []byte {
	t := plain
	switch {
	case s.Dims.HasZ && s.Dims.HasM:
		t = zm
	case s.Dims.HasZ:
		t = z
	case s.Dims.HasM:
		t = m
	}
	return varint.AppendUint64(nil, uint64(t))
}

// Null returns the blob of a null geometry.
func (s Shape) Null() []byte {
	return []byte{0}
}

// Point encodes a single point.
func (s Shape) Point(c geom.Coord) []byte {
	b := s.tag(geom.ShapePoint, geom.ShapePointZ, geom.ShapePointM, geom.ShapePointZM)
	b = varint.AppendUint64(b, uint64(quantize(c.X, s.Q.XOrigin, s.Q.XYScale))+1)
	b = varint.AppendUint64(b, uint64(quantize(c.Y, s.Q.YOrigin, s.Q.XYScale))+1)
	if s.Dims.HasZ {
		b = varint.AppendUint64(b, uint64(quantize(c.Z, s.Q.ZOrigin, s.Q.ZScale))+1)
	}
	if s.Dims.HasM {
		b = varint.AppendUint64(b, uint64(quantize(c.M, s.Q.MOrigin, s.Q.MScale))+1)
	}
	return b
}

// EmptyPoint encodes a point with no coordinates.
func (s Shape) EmptyPoint() []byte {
	b := s.tag(geom.ShapePoint, geom.ShapePointZ, geom.ShapePointM, geom.ShapePointZM)
	return append(b, 0, 0)
}

// MultiPoint encodes a multipoint.
func (s Shape) MultiPoint(pts []geom.Coord) []byte {
	b := s.tag(geom.ShapeMultiPoint, geom.ShapeMultiPointZ, geom.ShapeMultiPointM, geom.ShapeMultiPointZM)
	b = varint.AppendUint64(b, uint64(len(pts)))
	if len(pts) == 0 {
		return b
	}
	b = s.appendBBox(b, [][]geom.Coord{pts})
	return s.appendCoords(b, [][]geom.Coord{pts}, s.Dims.HasM)
}

// Polyline encodes one or more paths.
func (s Shape) Polyline(parts [][]geom.Coord) []byte {
	b := s.tag(geom.ShapeArc, geom.ShapeArcZ, geom.ShapeArcM, geom.ShapeArcZM)
	return s.multiPart(b, parts, nil)
}

// Polygon encodes rings in the order given. Rings are written as given, so
// callers close them.
func (s Shape) Polygon(rings [][]geom.Coord) []byte {
	b := s.tag(geom.ShapePolygon, geom.ShapePolygonZ, geom.ShapePolygonM, geom.ShapePolygonZM)
	return s.multiPart(b, rings, nil)
}

// MultiPatch encodes typed parts. Multipatches always carry Z.
func (s Shape) MultiPatch(types []uint32, parts [][]geom.Coord) []byte {
	s.Dims = geom.Dims{HasZ: true}
	b := varint.AppendUint64(nil, uint64(geom.ShapeMultiPatch))
	return s.multiPart(b, parts, types)
}

func (s Shape) multiPart(b []byte, parts [][]geom.Coord, types []uint32) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	b = varint.AppendUint64(b, uint64(n))
	if n == 0 {
		return b
	}
	if types != nil {
		b = append(b, 0)
	}
	b = varint.AppendUint64(b, uint64(len(parts)))
	b = s.appendBBox(b, parts)
	for _, p := range parts[:len(parts)-1] {
		b = varint.AppendUint64(b, uint64(len(p)))
	}
	for _, t := range types {
		b = varint.AppendUint64(b, uint64(t))
	}
	return s.appendCoords(b, parts, s.Dims.HasM && types == nil)
}

func (s Shape) appendBBox(b []byte, parts [][]geom.Coord) []byte {
	e := geom.EmptyEnvelope()
	for _, p := range parts {
		for _, c := range p {
			e.Extend(c.X, c.Y)
		}
	}
	xmin := quantize(e.MinX, s.Q.XOrigin, s.Q.XYScale)
	ymin := quantize(e.MinY, s.Q.YOrigin, s.Q.XYScale)
	xmax := quantize(e.MaxX, s.Q.XOrigin, s.Q.XYScale)
	ymax := quantize(e.MaxY, s.Q.YOrigin, s.Q.XYScale)
	b = varint.AppendUint64(b, uint64(xmin))
	b = varint.AppendUint64(b, uint64(ymin))
	b = varint.AppendUint64(b, uint64(xmax-xmin))
	return varint.AppendUint64(b, uint64(ymax-ymin))
}

// appendCoords writes the XY deltas of all parts, then Z, then M.
func (s Shape) appendCoords(b []byte, parts [][]geom.Coord, withM bool) []byte {
	var px, py int64
	for _, p := range parts {
		for _, c := range p {
			x := quantize(c.X, s.Q.XOrigin, s.Q.XYScale)
			y := quantize(c.Y, s.Q.YOrigin, s.Q.XYScale)
			b = varint.AppendInt64(b, x-px)
			b = varint.AppendInt64(b, y-py)
			px, py = x, y
		}
	}
	if s.Dims.HasZ {
		var pz int64
		for _, p := range parts {
			for _, c := range p {
				z := quantize(c.Z, s.Q.ZOrigin, s.Q.ZScale)
				b = varint.AppendInt64(b, z-pz)
				pz = z
			}
		}
	}
	if withM {
		var pm int64
		for _, p := range parts {
			for _, c := range p {
				m := quantize(c.M, s.Q.MOrigin, s.Q.MScale)
				b = varint.AppendInt64(b, m-pm)
				pm = m
			}
		}
	}
	return b
}
