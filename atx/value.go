// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package atx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/table"
)

// Op is a comparison an index can answer.
type Op int

const (
	OpLT Op = iota
	OpLE
	OpEQ
	OpGE
	OpGT
	OpIsNotNull
)

func (op Op) String() string {
	switch op {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpEQ:
		return "="
	case OpGE:
		return ">="
	case OpGT:
		return ">"
	case OpIsNotNull:
		return "IS NOT NULL"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// datetimeTolerance is how far apart, in days, two datetimes may be and
// still compare equal.
const datetimeTolerance = 1e-10

// key is the search value of an iterator in the form its index stores.
type key struct {
	typ  table.FieldType
	i    int32
	f    float64
	text []byte // UTF-16 code units or GUID text, padded to the value size
}

// indexable reports whether an attribute index on a field of type t can be
// read.
func indexable(t table.FieldType) bool {
	switch t {
	case table.FieldInt16, table.FieldInt32, table.FieldFloat32, table.FieldFloat64,
		table.FieldString, table.FieldDateTime, table.FieldGUID, table.FieldGlobalID:
		return true
	}
	return false
}

// checkValueSize verifies the trailer value size against the field type.
func checkValueSize(t table.FieldType, size int) error {
	want := 0
	switch t {
	case table.FieldInt16:
		want = 2
	case table.FieldInt32, table.FieldFloat32:
		want = 4
	case table.FieldFloat64, table.FieldDateTime:
		want = 8
	case table.FieldGUID, table.FieldGlobalID:
		want = guidTextLen
	case table.FieldString:
		if size == 0 || size%2 != 0 || size > 2*MaxIndexedChars {
			return errors.Newf(errors.ErrStructuralCorruption, "string index value size %d invalid", size)
		}
		return nil
	}
	if size != want {
		return errors.Newf(errors.ErrStructuralCorruption, "%s index value size %d, expected %d", t, size, want)
	}
	return nil
}

// newKey converts v to the stored form of an index on a field of type t with
// values of the given size. alwaysFalse is set when no stored value can
// equal v.
func newKey(t table.FieldType, size int, op Op, v table.Value) (k key, alwaysFalse bool, err error) {
	k.typ = t
	switch t {
	case table.FieldInt16, table.FieldInt32:
		if v.Type != table.FieldInt16 && v.Type != table.FieldInt32 {
			return k, false, errors.Newf(errors.ErrInvalidArgument, "cannot compare %s index with %s value", t, v.Type)
		}
		k.i = v.Int

	case table.FieldFloat32, table.FieldFloat64:
		f, ok := v.Number()
		if !ok || v.Type == table.FieldDateTime {
			return k, false, errors.Newf(errors.ErrInvalidArgument, "cannot compare %s index with %s value", t, v.Type)
		}
		k.f = f

	case table.FieldDateTime:
		switch v.Type {
		case table.FieldDateTime:
			k.f = v.Float
			if k.f == 0 && !v.Time.IsZero() {
				k.f = table.DaysFromDateTime(v.Time)
			}
		case table.FieldFloat32, table.FieldFloat64:
			k.f = v.Float
		default:
			return k, false, errors.Newf(errors.ErrInvalidArgument, "cannot compare datetime index with %s value", v.Type)
		}

	case table.FieldString:
		if v.Type != table.FieldString {
			return k, false, errors.Newf(errors.ErrInvalidArgument, "cannot compare string index with %s value", v.Type)
		}
		units := table.EncodeUTF16(v.Text())
		if len(units) > size {
			return k, false, errors.Newf(errors.ErrInvalidArgument, "search string of %d characters longer than the %d indexed", len(units)/2, size/2)
		}
		k.text = make([]byte, size)
		copy(k.text, units)
		for i := len(units); i < size; i += 2 {
			k.text[i] = ' '
		}

	case table.FieldGUID, table.FieldGlobalID:
		var s string
		switch {
		case len(v.Bytes) == 16:
			s = table.FormatGUID(v.Bytes)
		case v.Type == table.FieldString || v.Type == table.FieldGUID || v.Type == table.FieldGlobalID:
			s = v.Text()
		default:
			return k, false, errors.Newf(errors.ErrInvalidArgument, "cannot compare %s index with %s value", t, v.Type)
		}
		k.text = make([]byte, guidTextLen)
		copy(k.text, s)
		alwaysFalse = op == OpEQ && len(s) != guidTextLen
	}
	return k, alwaysFalse, nil
}

func cmpOrdered[T int32 | float64](a, b T) int {
	if a < b {
		return -1
	} else if a == b {
		return 0
	}
	return 1
}

// compareUTF16 orders two stored strings by code unit.
func compareUTF16(a, b []byte) int {
	for i := 0; i+1 < len(a) && i+1 < len(b); i += 2 {
		ca := binary.LittleEndian.Uint16(a[i:])
		cb := binary.LittleEndian.Uint16(b[i:])
		if ca < cb {
			return -1
		} else if ca > cb {
			return 1
		}
	}
	return 0
}

// compare orders the search key against the stored value raw: negative
// when the key sorts first.
func (k *key) compare(raw []byte) int {
	switch k.typ {
	case table.FieldInt16:
		return cmpOrdered(k.i, int32(int16(binary.LittleEndian.Uint16(raw))))
	case table.FieldInt32:
		return cmpOrdered(k.i, int32(binary.LittleEndian.Uint32(raw)))
	case table.FieldFloat32:
		return cmpOrdered(k.f, float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))))
	case table.FieldFloat64:
		return cmpOrdered(k.f, math.Float64frombits(binary.LittleEndian.Uint64(raw)))
	case table.FieldDateTime:
		v := math.Float64frombits(binary.LittleEndian.Uint64(raw))
		if k.f+datetimeTolerance < v {
			return -1
		} else if k.f-datetimeTolerance > v {
			return 1
		}
		return 0
	case table.FieldString:
		return compareUTF16(k.text, raw)
	case table.FieldGUID, table.FieldGlobalID:
		return bytes.Compare(k.text, raw[:guidTextLen])
	}
	return 0
}

// number returns a stored numeric or datetime value as a float64.
func number(t table.FieldType, raw []byte) float64 {
	switch t {
	case table.FieldInt16:
		return float64(int16(binary.LittleEndian.Uint16(raw)))
	case table.FieldInt32:
		return float64(int32(binary.LittleEndian.Uint32(raw)))
	case table.FieldFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw))
}

// decodeValue converts a stored value back to a field value. Padding of
// string values is removed.
func decodeValue(t table.FieldType, raw []byte) table.Value {
	v := table.Value{Type: t}
	switch t {
	case table.FieldInt16, table.FieldInt32:
		v.Int = int32(number(t, raw))
	case table.FieldFloat32, table.FieldFloat64:
		v.Float = number(t, raw)
	case table.FieldDateTime:
		v.Float = number(t, raw)
		v.Time, _ = table.DateTimeFromDays(v.Float)
	case table.FieldString:
		v.Str = strings.TrimRight(table.DecodeUTF16(raw), " ")
	case table.FieldGUID, table.FieldGlobalID:
		v.Str = string(raw[:guidTextLen])
	}
	return v
}
