// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// Value is one decoded field value.
//
// Bytes borrows from the reader's row buffer for string, xml, binary,
// geometry and inline raster values; it is only valid until the next
// SelectRow on the same Reader. Use Text or Clone to keep it longer.
type Value struct {
	Type FieldType

	Int   int32
	Float float64
	Time  time.Time
	Str   string
	Bytes []byte
}

// Text returns the value as a string.
func (v Value) Text() string {
	switch v.Type {
	case FieldInt16, FieldInt32:
		return strconv.FormatInt(int64(v.Int), 10)
	case FieldFloat32:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case FieldFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case FieldDateTime:
		if v.Time.IsZero() {
			return strconv.FormatFloat(v.Float, 'g', -1, 64)
		}
		return v.Time.Format("2006/01/02 15:04:05")
	case FieldString, FieldXML:
		if v.Bytes != nil {
			return string(v.Bytes)
		}
		return v.Str
	case FieldGUID, FieldGlobalID:
		return v.Str
	case FieldRaster:
		if v.Str != "" {
			return v.Str
		}
		if v.Bytes == nil {
			return strconv.FormatInt(int64(v.Int), 10)
		}
	}
	return fmt.Sprintf("<%d bytes>", len(v.Bytes))
}

// Clone returns a copy of v that does not reference the row buffer.
func (v Value) Clone() Value {
	if v.Bytes != nil {
		v.Bytes = append([]byte(nil), v.Bytes...)
	}
	return v
}

// Number returns numeric and datetime values as a float64.
func (v Value) Number() (float64, bool) {
	switch v.Type {
	case FieldInt16, FieldInt32:
		return float64(v.Int), true
	case FieldFloat32, FieldFloat64, FieldDateTime:
		return v.Float, true
	}
	return 0, false
}

// daysTo1970 is the number of days between 1899-12-30 and 1970-01-01.
const daysTo1970 = 25569.0

// DateTimeFromDays converts a count of days since 1899-12-30 to UTC time,
// rounded to the nearest second. ok is false when the value is not finite or
// out of range.
func DateTimeFromDays(days float64) (t time.Time, ok bool) {
	secs := (days - daysTo1970) * 86400
	if math.IsNaN(secs) || secs < math.MinInt64/2 || secs > math.MaxInt64/2 {
		return time.Time{}, false
	}
	return time.Unix(int64(math.Floor(secs+0.5)), 0).UTC(), true
}

// DaysFromDateTime is the inverse of DateTimeFromDays.
func DaysFromDateTime(t time.Time) float64 {
	return float64(t.Unix())/86400 + daysTo1970
}

// FormatGUID renders 16 bytes in Microsoft GUID byte order as
// {XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}.
func FormatGUID(b []byte) string {
	var u uuid.UUID
	copy(u[:], b[:16])
	binary.BigEndian.PutUint32(u[0:], binary.LittleEndian.Uint32(b[0:]))
	binary.BigEndian.PutUint16(u[4:], binary.LittleEndian.Uint16(b[4:]))
	binary.BigEndian.PutUint16(u[6:], binary.LittleEndian.Uint16(b[6:]))
	return "{" + strings.ToUpper(u.String()) + "}"
}

// ParseGUID is the inverse of FormatGUID. Braces are optional.
func ParseGUID(s string) ([]byte, error) {
	u, err := uuid.Parse(strings.Trim(s, "{}"))
	if err != nil {
		return nil, err
	}
	b := make([]byte, 16)
	copy(b, u[:])
	binary.LittleEndian.PutUint32(b[0:], binary.BigEndian.Uint32(u[0:]))
	binary.LittleEndian.PutUint16(b[4:], binary.BigEndian.Uint16(u[4:]))
	binary.LittleEndian.PutUint16(b[6:], binary.BigEndian.Uint16(u[6:]))
	return b, nil
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeUTF16 converts little-endian UTF-16 bytes to a UTF-8 string.
// Unpaired surrogates become U+FFFD.
func DecodeUTF16(b []byte) string {
	out, err := utf16le.NewDecoder().Bytes(b[:len(b)&^1])
	if err != nil {
		return ""
	}
	return string(out)
}

// EncodeUTF16 converts s to little-endian UTF-16 bytes.
func EncodeUTF16(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}
