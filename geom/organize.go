// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package geom

import (
	"math"

	"golang.org/x/exp/slices"
)

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []Coord) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return a / 2
}

// Clockwise reports the winding of a closed ring.
func Clockwise(ring []Coord) bool {
	return signedArea(ring) < 0
}

// groupRingsInOrder handles the common layout where every exterior ring is
// clockwise and is immediately followed by its counter-clockwise holes. It
// returns nil when the rings do not look like that, in which case the
// caller must fall back to OrganizeRings.
func groupRingsInOrder(dims Dims, rings [][]Coord) Geometry {
	if !Clockwise(rings[0]) {
		return nil
	}
	var polys []*Polygon
	var cur *Polygon
	var env Envelope
	for _, ring := range rings {
		if len(ring) == 0 {
			return nil
		}
		if Clockwise(ring) {
			cur = &Polygon{Dims: dims, Rings: [][]Coord{ring}}
			polys = append(polys, cur)
			env = coordsEnvelope(EmptyEnvelope(), ring)
			continue
		}
		if !env.Contains(ring[0].X, ring[0].Y) {
			return nil
		}
		cur.Rings = append(cur.Rings, ring)
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return &MultiPolygon{Dims: dims, Polygons: polys}
}

type ringInfo struct {
	ring  []Coord
	env   Envelope
	area  float64
	depth int
	poly  *Polygon
}

// OrganizeRings assigns each ring to a polygon by containment alone,
// ignoring winding and order. Rings are processed largest first; a ring
// nested in an exterior ring becomes its hole, and a ring nested in a hole
// (or in nothing) starts a new polygon.
func OrganizeRings(dims Dims, rings [][]Coord) Geometry {
	infos := make([]*ringInfo, 0, len(rings))
	for _, r := range rings {
		if len(r) == 0 {
			continue
		}
		infos = append(infos, &ringInfo{
			ring: r,
			env:  coordsEnvelope(EmptyEnvelope(), r),
			area: math.Abs(signedArea(r)),
		})
	}
	slices.SortStableFunc(infos, func(a, b *ringInfo) bool { return a.area > b.area })

	var polys []*Polygon
	for i, ri := range infos {
		var parent *ringInfo
		// The smallest enclosing ring processed so far is the direct parent.
		for j := i - 1; j >= 0; j-- {
			cand := infos[j]
			if ringInside(ri, cand) {
				parent = cand
				break
			}
		}
		switch {
		case parent != nil && parent.depth%2 == 0:
			ri.depth = parent.depth + 1
			parent.poly.Rings = append(parent.poly.Rings, ri.ring)
		default:
			if parent != nil {
				ri.depth = parent.depth + 1
			}
			ri.poly = &Polygon{Dims: dims, Rings: [][]Coord{ri.ring}}
			polys = append(polys, ri.poly)
		}
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return &MultiPolygon{Dims: dims, Polygons: polys}
}

// ringInside reports whether inner lies within outer, judged by the first
// vertex of inner that is not on outer's boundary.
func ringInside(inner, outer *ringInfo) bool {
	if inner.env.MinX < outer.env.MinX || inner.env.MaxX > outer.env.MaxX ||
		inner.env.MinY < outer.env.MinY || inner.env.MaxY > outer.env.MaxY {
		return false
	}
	for _, c := range inner.ring {
		switch pointInRing(c, outer.ring) {
		case 1:
			return true
		case -1:
			return false
		}
	}
	return false
}

// pointInRing returns 1 inside, -1 outside and 0 on the boundary.
func pointInRing(p Coord, ring []Coord) int {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if onSegment(p, a, b) {
			return 0
		}
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	if inside {
		return 1
	}
	return -1
}

func onSegment(p, a, b Coord) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}
