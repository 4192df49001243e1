// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/geom"
)

type filterEnvelope struct {
	set bool
	q   geom.QuantizedEnvelope
}

// InstallFilterEnvelope sets the envelope DoesGeometryIntersectsFilterEnvelope
// tests against. A nil envelope removes the filter.
func (r *Reader) InstallFilterEnvelope(e *geom.Envelope) error {
	if e == nil {
		r.filter = filterEnvelope{}
		return nil
	}
	g := r.schema.GeomField()
	if g == nil {
		return errors.New(errors.ErrInvalidArgument, "table has no geometry field")
	}
	r.filter = filterEnvelope{set: true, q: geom.Quantize(*e, g.Geom.Quantization())}
	return nil
}

// DoesGeometryIntersectsFilterEnvelope reports whether the bounding box of
// the geometry blob may intersect the installed filter envelope. It returns
// true when no filter is installed.
func (r *Reader) DoesGeometryIntersectsFilterEnvelope(blob []byte) bool {
	if !r.filter.set {
		return true
	}
	return geom.IntersectsQuantized(blob, r.filter.q)
}

// GetFeatureExtent returns the bounding box stored in the geometry blob.
func (r *Reader) GetFeatureExtent(blob []byte) (geom.Envelope, bool, error) {
	g := r.schema.GeomField()
	if g == nil {
		return geom.Envelope{}, false, errors.New(errors.ErrInvalidArgument, "table has no geometry field")
	}
	return geom.BlobExtent(blob, g.Geom.Quantization())
}
