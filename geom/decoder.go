// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package geom decodes the compact geometry blobs stored in geometry
// fields. Coordinates are quantized integers, delta-coded as varints, and
// restored with value = stored/scale + origin.
package geom

import (
	"math"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
)

// Multipatch part types.
const (
	PartTriangleStrip = 0
	PartTriangleFan   = 1
	PartOuterRing     = 2
	PartInnerRing     = 3
	PartFirstRing     = 4
	PartRing          = 5
	PartTriangles     = 6
)

// Decoder turns geometry blobs into Geometry values. A Decoder reuses its
// scratch buffers and is not safe for concurrent use.
type Decoder struct {
	q Quantization

	// ForceOrganize disables the ring-order fast path for polygons.
	ForceOrganize bool

	partCounts []uint32
}

// NewDecoder returns a decoder for a geometry field with the given
// quantization.
func NewDecoder(q Quantization) *Decoder {
	return &Decoder{q: q.Sanitized()}
}

// blobReader walks a geometry blob. Reads past the end fail with
// TruncatedRead; the first error sticks.
type blobReader struct {
	b   []byte
	pos int
	err error
}

func (r *blobReader) remaining() int { return len(r.b) - r.pos }

func (r *blobReader) uvarint(what string) uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.ReadUint64(r.b[r.pos:])
	if err != nil {
		r.err = errors.Wrapf(err, "reading %s", what)
		return 0
	}
	r.pos += n
	return v
}

func (r *blobReader) uvarint32(what string) uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.ReadUint32(r.b[r.pos:])
	if err != nil {
		r.err = errors.Wrapf(err, "reading %s", what)
		return 0
	}
	r.pos += n
	return v
}

func (r *blobReader) svarint(what string) int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.ReadInt64(r.b[r.pos:])
	if err != nil {
		r.err = errors.Wrapf(err, "reading %s", what)
		return 0
	}
	r.pos += n
	return v
}

func (r *blobReader) skip(count int, what string) {
	if r.err != nil {
		return
	}
	n, err := varint.Skip(r.b[r.pos:], count)
	if err != nil {
		r.err = errors.Wrapf(err, "skipping %s", what)
		return
	}
	r.pos += n
}

// Decode decodes blob. A null geometry returns nil without an error.
// Unknown shape types fail with ErrUnsupported.
func (d *Decoder) Decode(blob []byte) (Geometry, error) {
	r := &blobReader{b: blob}
	t := ParseTag(r.uvarint32("geometry tag"))
	if r.err != nil {
		return nil, r.err
	}
	var g Geometry
	var err error
	switch t.Family {
	case FamilyNull:
		return nil, nil
	case FamilyPoint:
		g, err = d.point(r, t)
	case FamilyMultiPoint:
		g, err = d.multiPoint(r, t)
	case FamilyPolyline:
		g, err = d.polyline(r, t)
	case FamilyPolygon:
		g, err = d.polygon(r, t)
	case FamilyMultiPatch:
		g, err = d.multiPatch(r, t)
	default:
		return nil, errors.Newf(errors.ErrUnsupported, "unhandled geometry type %d", t.Shape)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding shape type %d", t.Shape)
	}
	return g, nil
}

func (d *Decoder) x(v int64) float64 { return float64(v)/d.q.XYScale + d.q.XOrigin }
func (d *Decoder) y(v int64) float64 { return float64(v)/d.q.XYScale + d.q.YOrigin }
func (d *Decoder) z(v int64) float64 { return float64(v)/d.q.ZScale + d.q.ZOrigin }
func (d *Decoder) m(v int64) float64 { return float64(v)/d.q.MScale + d.q.MOrigin }

// point reads 1-biased absolute coordinates. A stored X of 0 marks an empty
// point.
func (d *Decoder) point(r *blobReader, t Tag) (Geometry, error) {
	p := &Point{Dims: Dims{HasZ: t.HasZ, HasM: t.HasM}}
	x := r.uvarint("x")
	y := r.uvarint("y")
	if r.err != nil {
		return nil, r.err
	}
	if x == 0 {
		p.Empty = true
		return p, nil
	}
	p.X = float64(x-1)/d.q.XYScale + d.q.XOrigin
	p.Y = float64(y-1)/d.q.XYScale + d.q.YOrigin
	if t.HasZ {
		z := r.uvarint("z")
		if r.err != nil {
			return nil, r.err
		}
		p.Z = float64(z-1)/d.q.ZScale + d.q.ZOrigin
	}
	if t.HasM {
		m, n := varint.PeekUint64(r.b[r.pos:])
		if n == 0 {
			p.HasM = false
		} else {
			p.M = float64(m-1)/d.q.MScale + d.q.MOrigin
		}
	}
	return p, nil
}

func (d *Decoder) multiPoint(r *blobReader, t Tag) (Geometry, error) {
	mp := &MultiPoint{Dims: Dims{HasZ: t.HasZ, HasM: t.HasM}}
	n := r.uvarint32("point count")
	if r.err != nil {
		return nil, r.err
	}
	if n == 0 {
		return mp, nil
	}
	if int(n) > r.remaining() {
		return nil, errors.Newf(errors.ErrStructuralCorruption, "%d points cannot fit in %d bytes", n, r.remaining())
	}
	r.skip(4, "bounding box")
	mp.Points = make([]Coord, n)
	var dx, dy int64
	d.readXY(r, mp.Points, &dx, &dy)
	if t.HasZ {
		var dz int64
		d.readZ(r, mp.Points, &dz)
	}
	if r.err != nil {
		return nil, r.err
	}
	// A missing M array is sometimes marked by a single byte; only read
	// it when there is room for it.
	if t.HasM {
		if r.remaining() < len(mp.Points) {
			mp.HasM = false
		} else {
			var dm int64
			d.readM(r, mp.Points, &dm)
		}
	}
	return mp, r.err
}

func (d *Decoder) readXY(r *blobReader, cs []Coord, dx, dy *int64) {
	for i := range cs {
		*dx += r.svarint("x delta")
		*dy += r.svarint("y delta")
		if r.err != nil {
			return
		}
		cs[i].X = d.x(*dx)
		cs[i].Y = d.y(*dy)
	}
}

func (d *Decoder) readZ(r *blobReader, cs []Coord, dz *int64) {
	for i := range cs {
		*dz += r.svarint("z delta")
		if r.err != nil {
			return
		}
		cs[i].Z = d.z(*dz)
	}
}

func (d *Decoder) readM(r *blobReader, cs []Coord, dm *int64) {
	for i := range cs {
		*dm += r.svarint("m delta")
		if r.err != nil {
			return
		}
		cs[i].M = d.m(*dm)
	}
}

// partDefs reads the point count, part count, optional curve count,
// bounding box and per-part point counts of a multi-part shape. It returns
// 0 points for empty shapes.
func (d *Decoder) partDefs(r *blobReader, curves, multiPatch bool) (points uint32, err error) {
	d.partCounts = d.partCounts[:0]
	points = r.uvarint32("point count")
	if r.err != nil || points == 0 {
		return 0, r.err
	}
	if int(points) > r.remaining() {
		return 0, errors.Newf(errors.ErrStructuralCorruption, "%d points cannot fit in %d bytes", points, r.remaining())
	}
	if multiPatch {
		r.skip(1, "multipatch header")
	}
	parts := r.uvarint32("part count")
	if r.err != nil {
		return 0, r.err
	}
	if int(parts) > r.remaining() || parts > math.MaxInt32/4 {
		return 0, errors.Newf(errors.ErrStructuralCorruption, "%d parts cannot fit in %d bytes", parts, r.remaining())
	}
	if curves {
		nc := r.uvarint32("curve count")
		if r.err == nil && int(nc) > r.remaining() {
			return 0, errors.Newf(errors.ErrStructuralCorruption, "%d curves cannot fit in %d bytes", nc, r.remaining())
		}
	}
	if parts == 0 {
		return 0, r.err
	}
	r.skip(4, "bounding box")

	var sum uint64
	for i := uint32(0); i < parts-1; i++ {
		c := r.uvarint32("part point count")
		if r.err != nil {
			return 0, r.err
		}
		if int(c) > r.remaining() {
			return 0, errors.Newf(errors.ErrStructuralCorruption, "part of %d points cannot fit in %d bytes", c, r.remaining())
		}
		d.partCounts = append(d.partCounts, c)
		sum += uint64(c)
	}
	if r.err != nil {
		return 0, r.err
	}
	if sum > uint64(points) {
		return 0, errors.Newf(errors.ErrStructuralCorruption, "part point counts sum to %d, more than %d points", sum, points)
	}
	d.partCounts = append(d.partCounts, points-uint32(sum))
	return points, nil
}

// readParts reads the coordinate arrays of all parts. XY deltas run across
// part boundaries, then the Z array, then the optional M array. hasM is
// cleared when the M array is absent.
func (d *Decoder) readParts(r *blobReader, points uint32, hasZ bool, hasM *bool) ([][]Coord, error) {
	all := make([]Coord, points)
	parts := make([][]Coord, len(d.partCounts))
	start := 0
	for i, c := range d.partCounts {
		parts[i] = all[start : start+int(c) : start+int(c)]
		start += int(c)
	}

	var dx, dy int64
	for _, p := range parts {
		d.readXY(r, p, &dx, &dy)
	}
	if hasZ {
		var dz int64
		for _, p := range parts {
			d.readZ(r, p, &dz)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if *hasM {
		var dm int64
		for _, p := range parts {
			if r.remaining() < len(p) {
				*hasM = false
				break
			}
			d.readM(r, p, &dm)
		}
	}
	return parts, r.err
}

func (d *Decoder) polyline(r *blobReader, t Tag) (Geometry, error) {
	dims := Dims{HasZ: t.HasZ, HasM: t.HasM}
	points, err := d.partDefs(r, t.Curves, false)
	if err != nil {
		return nil, err
	}
	if points == 0 {
		return &LineString{Dims: dims}, nil
	}
	parts, err := d.readParts(r, points, t.HasZ, &dims.HasM)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return &LineString{Dims: dims, Coords: parts[0]}, nil
	}
	ml := &MultiLineString{Dims: dims, Lines: make([]*LineString, len(parts))}
	for i, p := range parts {
		ml.Lines[i] = &LineString{Dims: dims, Coords: p}
	}
	return ml, nil
}

func (d *Decoder) polygon(r *blobReader, t Tag) (Geometry, error) {
	dims := Dims{HasZ: t.HasZ, HasM: t.HasM}
	points, err := d.partDefs(r, t.Curves, false)
	if err != nil {
		return nil, err
	}
	if points == 0 {
		return &Polygon{Dims: dims}, nil
	}
	rings, err := d.readParts(r, points, t.HasZ, &dims.HasM)
	if err != nil {
		return nil, err
	}
	if len(rings) == 1 {
		return &Polygon{Dims: dims, Rings: rings}, nil
	}
	if !d.ForceOrganize {
		if g := groupRingsInOrder(dims, rings); g != nil {
			return g, nil
		}
	}
	return OrganizeRings(dims, rings), nil
}

func (d *Decoder) multiPatch(r *blobReader, t Tag) (Geometry, error) {
	dims := Dims{HasZ: t.HasZ}
	points, err := d.partDefs(r, false, true)
	if err != nil {
		return nil, err
	}
	if points == 0 {
		return &Polygon{Dims: dims}, nil
	}
	types := make([]uint32, len(d.partCounts))
	for i := range types {
		types[i] = r.uvarint32("part type")
	}
	if r.err != nil {
		return nil, r.err
	}
	noM := false
	parts, err := d.readParts(r, points, t.HasZ, &noM)
	if err != nil {
		return nil, err
	}
	return assembleMultiPatch(dims, types, parts), nil
}

// assembleMultiPatch converts typed multipatch parts into polygons:
// triangle strips, fans and triangle lists become one polygon per triangle,
// outer and first rings start a polygon, and inner and plain rings become
// holes of the current one.
func assembleMultiPatch(dims Dims, types []uint32, parts [][]Coord) *MultiPolygon {
	mp := &MultiPolygon{Dims: dims}
	var cur *Polygon
	triangle := func(a, b, c Coord) {
		mp.Polygons = append(mp.Polygons, &Polygon{Dims: dims, Rings: [][]Coord{{a, b, c, a}}})
	}
	for i, p := range parts {
		switch types[i] & 0xf {
		case PartTriangleStrip:
			cur = nil
			for j := 2; j < len(p); j++ {
				triangle(p[j-2], p[j-1], p[j])
			}
		case PartTriangleFan:
			cur = nil
			for j := 2; j < len(p); j++ {
				triangle(p[0], p[j-1], p[j])
			}
		case PartTriangles:
			cur = nil
			for j := 0; j+2 < len(p); j += 3 {
				triangle(p[j], p[j+1], p[j+2])
			}
		case PartOuterRing, PartFirstRing:
			cur = &Polygon{Dims: dims, Rings: [][]Coord{closeRing(p)}}
			mp.Polygons = append(mp.Polygons, cur)
		case PartInnerRing, PartRing:
			if cur == nil {
				cur = &Polygon{Dims: dims}
				mp.Polygons = append(mp.Polygons, cur)
			}
			cur.Rings = append(cur.Rings, closeRing(p))
		}
	}
	return mp
}

func closeRing(p []Coord) []Coord {
	if len(p) > 0 && p[0] != p[len(p)-1] {
		return append(p[:len(p):len(p)], p[0])
	}
	return p
}
