// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package geom

import "math"

// Envelope is an axis-aligned XY bounding box.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether e and o share at least one point.
func (e Envelope) Intersects(o Envelope) bool {
	return e.MinX <= o.MaxX && e.MaxX >= o.MinX && e.MinY <= o.MaxY && e.MaxY >= o.MinY
}

// Contains reports whether (x, y) lies inside e, borders included.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// Extend grows e to include (x, y).
func (e *Envelope) Extend(x, y float64) {
	e.MinX = math.Min(e.MinX, x)
	e.MinY = math.Min(e.MinY, y)
	e.MaxX = math.Max(e.MaxX, x)
	e.MaxY = math.Max(e.MaxY, y)
}

// EmptyEnvelope returns an envelope that any Extend call will replace.
func EmptyEnvelope() Envelope {
	return Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// Quantization maps stored integers to real coordinates:
// real = stored / scale + origin.
type Quantization struct {
	XOrigin, YOrigin, XYScale float64
	ZOrigin, ZScale           float64
	MOrigin, MScale           float64
}

// Sanitized returns q with zero scales replaced by the smallest normal
// double so that division never yields Inf for an absent axis.
func (q Quantization) Sanitized() Quantization {
	q.XYScale = sanitizeScale(q.XYScale)
	q.ZScale = sanitizeScale(q.ZScale)
	q.MScale = sanitizeScale(q.MScale)
	return q
}

func sanitizeScale(v float64) float64 {
	if v == 0 {
		return 0x1p-1022
	}
	return v
}
