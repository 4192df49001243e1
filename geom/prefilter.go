// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package geom

import (
	"math"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/varint"
)

// QuantizedEnvelope is a filter envelope in stored integer units, so that
// bounding boxes can be compared without converting them to real
// coordinates.
type QuantizedEnvelope struct {
	XMin, YMin, XMax, YMax uint64
}

// Quantize converts e to stored units. Bounds below the origin clamp to 0
// and bounds beyond the representable range clamp to MaxUint64.
func Quantize(e Envelope, q Quantization) QuantizedEnvelope {
	return QuantizedEnvelope{
		XMin: quantizeMin(e.MinX, q.XOrigin, q.XYScale),
		YMin: quantizeMin(e.MinY, q.YOrigin, q.XYScale),
		XMax: quantizeMax(e.MaxX, q.XOrigin, q.XYScale),
		YMax: quantizeMax(e.MaxY, q.YOrigin, q.XYScale),
	}
}

func quantizeMin(v, origin, scale float64) uint64 {
	if !(v >= origin) {
		return 0
	}
	return toUint64(0.5 + (v-origin)*scale)
}

func quantizeMax(v, origin, scale float64) uint64 {
	if !(v-origin < math.MaxUint64/scale) {
		return math.MaxUint64
	}
	if v < origin {
		return 0
	}
	return toUint64(0.5 + (v-origin)*scale)
}

func toUint64(f float64) uint64 {
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}

// bboxReader positions a cursor on the bounding box that follows the point
// count of non-point shapes.
type bboxReader struct {
	b   []byte
	pos int
}

func (r *bboxReader) uint64() (uint64, bool) {
	v, n := varint.PeekUint64(r.b[r.pos:])
	if n == 0 {
		return 0, false
	}
	r.pos += n
	return v, true
}

// IntersectsQuantized reports whether the bounding box of the geometry blob
// may intersect f. Only the tag and the bounding box are read. Null, empty,
// unknown and undecodable geometries are never rejected.
func IntersectsQuantized(blob []byte, f QuantizedEnvelope) bool {
	tag, n := varint.PeekUint32(blob)
	if n == 0 {
		return true
	}
	r := &bboxReader{b: blob, pos: n}
	t := ParseTag(tag)
	switch t.Family {
	case FamilyPoint:
		x, ok := r.uint64()
		if !ok {
			return true
		}
		x--
		if x < f.XMin || x > f.XMax {
			return false
		}
		y, ok := r.uint64()
		if !ok {
			return true
		}
		y--
		return y >= f.YMin && y <= f.YMax
	case FamilyMultiPoint, FamilyPolyline, FamilyPolygon, FamilyMultiPatch:
	default:
		return true
	}

	points, ok := r.uint64()
	if !ok || points == 0 {
		return true
	}
	skip, err := varint.Skip(r.b[r.pos:], t.headerSkip())
	if err != nil {
		return true
	}
	r.pos += skip

	xmin, ok := r.uint64()
	if !ok {
		return true
	}
	if xmin > f.XMax {
		return false
	}
	ymin, ok := r.uint64()
	if !ok {
		return true
	}
	if ymin > f.YMax {
		return false
	}
	dx, ok := r.uint64()
	if !ok {
		return true
	}
	if xmin+dx < f.XMin {
		return false
	}
	dy, ok := r.uint64()
	if !ok {
		return true
	}
	return ymin+dy >= f.YMin
}

// BlobExtent returns the XY bounding box stored in a geometry blob. ok is
// false for null geometries and for shape types without a stored box.
// An empty geometry yields ok with an empty envelope.
func BlobExtent(blob []byte, q Quantization) (env Envelope, ok bool, err error) {
	tag, n, err := varint.ReadUint32(blob)
	if err != nil {
		return Envelope{}, false, errors.Wrap(err, "reading geometry tag")
	}
	r := &bboxReader{b: blob, pos: n}
	t := ParseTag(tag)
	switch t.Family {
	case FamilyNull:
		return Envelope{}, false, nil
	case FamilyPoint:
		x, okx := r.uint64()
		y, oky := r.uint64()
		if !okx || !oky {
			return Envelope{}, false, errors.New(errors.ErrTruncatedRead, "point coordinates")
		}
		px := float64(x-1)/q.XYScale + q.XOrigin
		py := float64(y-1)/q.XYScale + q.YOrigin
		return Envelope{MinX: px, MinY: py, MaxX: px, MaxY: py}, true, nil
	case FamilyMultiPoint, FamilyPolyline, FamilyPolygon, FamilyMultiPatch:
	default:
		return Envelope{}, false, nil
	}

	points, okp := r.uint64()
	if !okp {
		return Envelope{}, false, errors.New(errors.ErrTruncatedRead, "point count")
	}
	if points == 0 {
		return EmptyEnvelope(), true, nil
	}
	skip, err := varint.Skip(r.b[r.pos:], t.headerSkip())
	if err != nil {
		return Envelope{}, false, errors.Wrap(err, "skipping part counts")
	}
	r.pos += skip
	var v [4]uint64
	for i := range v {
		var okv bool
		if v[i], okv = r.uint64(); !okv {
			return Envelope{}, false, errors.New(errors.ErrTruncatedRead, "bounding box")
		}
	}
	return Envelope{
		MinX: float64(v[0])/q.XYScale + q.XOrigin,
		MinY: float64(v[1])/q.XYScale + q.YOrigin,
		MaxX: float64(v[0]+v[2])/q.XYScale + q.XOrigin,
		MaxY: float64(v[1]+v[3])/q.XYScale + q.YOrigin,
	}, true, nil
}
