// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package geom

// ShapeType is the low byte of a geometry blob's tag.
type ShapeType uint8

const (
	ShapeNull ShapeType = 0

	ShapePoint   ShapeType = 1
	ShapePointM  ShapeType = 21
	ShapePointZM ShapeType = 11
	ShapePointZ  ShapeType = 9

	ShapeMultiPoint   ShapeType = 8
	ShapeMultiPointM  ShapeType = 28
	ShapeMultiPointZM ShapeType = 18
	ShapeMultiPointZ  ShapeType = 20

	ShapeArc   ShapeType = 3
	ShapeArcM  ShapeType = 23
	ShapeArcZM ShapeType = 13
	ShapeArcZ  ShapeType = 10

	ShapePolygon   ShapeType = 5
	ShapePolygonM  ShapeType = 25
	ShapePolygonZM ShapeType = 15
	ShapePolygonZ  ShapeType = 19

	ShapeMultiPatchM ShapeType = 31
	ShapeMultiPatch  ShapeType = 32

	ShapeGeneralPolyline   ShapeType = 50
	ShapeGeneralPolygon    ShapeType = 51
	ShapeGeneralPoint      ShapeType = 52
	ShapeGeneralMultiPoint ShapeType = 53
	ShapeGeneralMultiPatch ShapeType = 54
)

// Flags carried in the high bits of a geometry tag.
const (
	FlagZ     uint32 = 0x80000000
	FlagM     uint32 = 0x40000000
	FlagCurve uint32 = 0x20000000
)

// Family groups shape types that share one encoding.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyNull
	FamilyPoint
	FamilyMultiPoint
	FamilyPolyline
	FamilyPolygon
	FamilyMultiPatch
)

// Tag is a decoded geometry tag.
type Tag struct {
	Shape  ShapeType
	Family Family
	HasZ   bool
	HasM   bool
	Curves bool
}

// ParseTag interprets the varint tag at the front of a geometry blob. The
// legacy shape codes imply Z and M; the general codes use the flag bits.
func ParseTag(tag uint32) Tag {
	t := Tag{
		Shape:  ShapeType(tag & 0xff),
		HasZ:   tag&FlagZ != 0,
		HasM:   tag&FlagM != 0,
		Curves: tag&FlagCurve != 0,
	}
	switch t.Shape {
	case ShapeNull:
		t.Family = FamilyNull
	case ShapePoint, ShapePointM, ShapePointZ, ShapePointZM, ShapeGeneralPoint:
		t.Family = FamilyPoint
	case ShapeMultiPoint, ShapeMultiPointM, ShapeMultiPointZ, ShapeMultiPointZM, ShapeGeneralMultiPoint:
		t.Family = FamilyMultiPoint
	case ShapeArc, ShapeArcM, ShapeArcZ, ShapeArcZM, ShapeGeneralPolyline:
		t.Family = FamilyPolyline
	case ShapePolygon, ShapePolygonM, ShapePolygonZ, ShapePolygonZM, ShapeGeneralPolygon:
		t.Family = FamilyPolygon
	case ShapeMultiPatch, ShapeMultiPatchM, ShapeGeneralMultiPatch:
		t.Family = FamilyMultiPatch
	}

	switch t.Shape {
	case ShapePointZ, ShapeMultiPointZ, ShapeArcZ, ShapePolygonZ, ShapeMultiPatch, ShapeMultiPatchM:
		t.HasZ = true
	case ShapePointZM, ShapeMultiPointZM, ShapeArcZM, ShapePolygonZM:
		t.HasZ, t.HasM = true, true
	case ShapePointM, ShapeMultiPointM, ShapeArcM, ShapePolygonM:
		t.HasM = true
	}
	// Only general polylines and polygons carry a curve count.
	if t.Shape != ShapeGeneralPolyline && t.Shape != ShapeGeneralPolygon {
		t.Curves = false
	}
	return t
}

// headerSkip is the number of varints between the point count and the
// bounding box.
func (t Tag) headerSkip() int {
	switch t.Family {
	case FamilyPolyline, FamilyPolygon:
		if t.Curves {
			return 2
		}
		return 1
	case FamilyMultiPatch:
		return 2
	}
	return 0
}
