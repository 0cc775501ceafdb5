package warpdrive

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// cValue is a value converted into the representation of a C type.
type cValue struct {
	data []byte
	// variable values are character or binary data subject to truncation.
	variable bool
	// nul is the width of the terminator of character data.
	nul int
	// warning is the SQLSTATE of a conversion that lost information
	// without failing.
	warning string
}

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05"
	timestampLayout = "2006-01-02 15:04:05"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	dateLayout,
	timeLayout,
	"15:04:05.999999999",
}

// toC converts a backend value into C type cType. sqlType is the column
// type the value comes from; precision and scale apply to SQL_C_NUMERIC.
func toC(v any, cType, sqlType, precision, scale int16) (cValue, error) {
	switch cType {
	case SQL_C_CHAR:
		s, err := charForm(v, sqlType)
		if err != nil {
			return cValue{}, err
		}
		return cValue{data: []byte(s), variable: true, nul: 1}, nil
	case SQL_C_WCHAR:
		s, err := charForm(v, sqlType)
		if err != nil {
			return cValue{}, err
		}
		return cValue{data: encodeUTF16(s), variable: true, nul: 2}, nil
	case SQL_C_BINARY:
		b, err := binaryForm(v, sqlType)
		if err != nil {
			return cValue{}, err
		}
		return cValue{data: b, variable: true}, nil
	case SQL_C_BIT:
		return bitValue(v)
	case SQL_C_STINYINT, SQL_C_TINYINT:
		return intValue(v, math.MinInt8, math.MaxInt8, 1)
	case SQL_C_UTINYINT:
		return intValue(v, 0, math.MaxUint8, 1)
	case SQL_C_SSHORT, SQL_C_SHORT:
		return intValue(v, math.MinInt16, math.MaxInt16, 2)
	case SQL_C_USHORT:
		return intValue(v, 0, math.MaxUint16, 2)
	case SQL_C_SLONG, SQL_C_LONG:
		return intValue(v, math.MinInt32, math.MaxInt32, 4)
	case SQL_C_ULONG:
		return intValue(v, 0, math.MaxUint32, 4)
	case SQL_C_SBIGINT:
		return intValue(v, math.MinInt64, math.MaxInt64, 8)
	case SQL_C_UBIGINT:
		return intValue(v, 0, math.MaxInt64, 8)
	case SQL_C_FLOAT, SQL_C_DOUBLE:
		return floatValue(v, cType == SQL_C_FLOAT)
	case SQL_C_NUMERIC:
		return numericValue(v, precision, scale)
	case SQL_C_DATE, SQL_C_TYPE_DATE, SQL_C_TIME, SQL_C_TYPE_TIME, SQL_C_TIMESTAMP, SQL_C_TYPE_TIMESTAMP:
		return datetimeValue(v, cType)
	case SQL_C_GUID:
		return guidValue(v)
	}
	return cValue{}, unsupportedTypeError(fmt.Sprintf("%T", v), cType)
}

// charForm renders v in character form.
func charForm(v any, sqlType int16) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		if isBinarySQLType(sqlType) {
			return strings.ToUpper(hex.EncodeToString(x)), nil
		}
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if sqlType == SQL_REAL {
			return strconv.FormatFloat(x, 'g', -1, 32), nil
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		switch sqlType {
		case SQL_TYPE_DATE, SQL_DATE:
			return x.Format(dateLayout), nil
		case SQL_TYPE_TIME, SQL_TIME:
			return x.Format(timeLayout), nil
		}
		if x.Nanosecond() != 0 {
			return x.Format("2006-01-02 15:04:05.999999999"), nil
		}
		return x.Format(timestampLayout), nil
	}
	return "", unsupportedTypeError(fmt.Sprintf("%T", v), SQL_C_CHAR)
}

func binaryForm(v any, sqlType int16) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	s, err := charForm(v, sqlType)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func encodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

func decodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

// numberForm reduces v to an integer or, with fraction set, a float.
func numberForm(v any) (i int64, f float64, fraction bool, err error) {
	switch x := v.(type) {
	case int64:
		return x, float64(x), false, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, x, true, errNumericRange
		}
		return int64(x), x, x != math.Trunc(x), nil
	case bool:
		if x {
			return 1, 1, false, nil
		}
		return 0, 0, false, nil
	case []byte:
		return numberForm(string(x))
	case string:
		s := strings.TrimSpace(x)
		if n, perr := strconv.ParseInt(s, 10, 64); perr == nil {
			return n, float64(n), false, nil
		}
		fl, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			var ne *strconv.NumError
			if errors.As(perr, &ne) && ne.Err == strconv.ErrRange {
				return 0, 0, false, fmt.Errorf("%w: %q", errNumericRange, s)
			}
			return 0, 0, false, fmt.Errorf("%w: %q", errInvalidCharValue, s)
		}
		return numberForm(fl)
	}
	return 0, 0, false, unsupportedTypeError(fmt.Sprintf("%T", v), SQL_C_SBIGINT)
}

func intValue(v any, lo, hi int64, size int) (cValue, error) {
	i, f, fraction, err := numberForm(v)
	if err != nil {
		return cValue{}, err
	}
	if f < float64(lo) || f > float64(hi) || i < lo || i > hi {
		return cValue{}, fmt.Errorf("%w: %v", errNumericRange, v)
	}
	cv := cValue{data: make([]byte, size)}
	if fraction {
		cv.warning = stateFractionalTruncated
	}
	switch size {
	case 1:
		cv.data[0] = byte(i)
	case 2:
		binary.LittleEndian.PutUint16(cv.data, uint16(i))
	case 4:
		binary.LittleEndian.PutUint32(cv.data, uint32(i))
	default:
		binary.LittleEndian.PutUint64(cv.data, uint64(i))
	}
	return cv, nil
}

func bitValue(v any) (cValue, error) {
	i, f, fraction, err := numberForm(v)
	if err != nil {
		return cValue{}, err
	}
	if f < 0 || f >= 2 {
		return cValue{}, fmt.Errorf("%w: %v", errNumericRange, v)
	}
	cv := cValue{data: []byte{byte(i)}}
	if fraction {
		cv.warning = stateFractionalTruncated
	}
	return cv, nil
}

func floatValue(v any, single bool) (cValue, error) {
	_, f, _, err := numberForm(v)
	if err != nil {
		return cValue{}, err
	}
	if single {
		if math.Abs(f) > math.MaxFloat32 {
			return cValue{}, fmt.Errorf("%w: %v", errNumericRange, v)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return cValue{data: b}, nil
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	return cValue{data: b}, nil
}

// numericValue encodes v as an SQL_NUMERIC_STRUCT: precision, scale, sign
// (1 positive) and a 16-byte little-endian unscaled magnitude.
func numericValue(v any, precision, scale int16) (cValue, error) {
	r := new(big.Rat)
	switch x := v.(type) {
	case int64:
		r.SetInt64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cValue{}, fmt.Errorf("%w: %v", errNumericRange, x)
		}
		r.SetFloat64(x)
	case bool:
		if x {
			r.SetInt64(1)
		}
	case []byte:
		return numericValue(string(x), precision, scale)
	case string:
		if _, ok := r.SetString(strings.TrimSpace(x)); !ok {
			return cValue{}, fmt.Errorf("%w: %q", errInvalidCharValue, x)
		}
	default:
		return cValue{}, unsupportedTypeError(fmt.Sprintf("%T", v), SQL_C_NUMERIC)
	}
	if precision <= 0 {
		precision = 38
	}

	scaled := new(big.Rat)
	if scale >= 0 {
		scaled.Mul(r, new(big.Rat).SetInt(pow10(int(scale))))
	} else {
		scaled.Quo(r, new(big.Rat).SetInt(pow10(-int(scale))))
	}
	unscaled := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	cv := cValue{data: make([]byte, sizeNumeric)}
	if !scaled.IsInt() {
		cv.warning = stateFractionalTruncated
	}
	sign := byte(1)
	if unscaled.Sign() < 0 {
		sign = 0
		unscaled.Neg(unscaled)
	}
	if unscaled.BitLen() > 8*numericValLen {
		return cValue{}, fmt.Errorf("%w: %v", errNumericRange, v)
	}
	cv.data[0] = byte(precision)
	cv.data[1] = byte(int8(scale))
	cv.data[2] = sign
	be := unscaled.Bytes()
	for i := range be {
		cv.data[3+i] = be[len(be)-1-i]
	}
	return cv, nil
}

// pow10 returns 10^n for n >= 0.
func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func decodeNumeric(p Ptr) string {
	scale := int(p.Add(1).Int8())
	sign := p.Add(2).Uint8()
	le := p.Add(3).Bytes(numericValLen)
	be := make([]byte, numericValLen)
	for i := range le {
		be[numericValLen-1-i] = le[i]
	}
	n := new(big.Int).SetBytes(be)
	if sign == 0 {
		n.Neg(n)
	}
	if scale <= 0 {
		n.Mul(n, pow10(-scale))
		return n.String()
	}
	return new(big.Rat).SetFrac(n, pow10(scale)).FloatString(scale)
}

func timeForm(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return timeForm(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidDatetime, x)
	}
	return time.Time{}, unsupportedTypeError(fmt.Sprintf("%T", v), SQL_C_TYPE_TIMESTAMP)
}

func datetimeValue(v any, cType int16) (cValue, error) {
	t, err := timeForm(v)
	if err != nil {
		return cValue{}, err
	}
	switch cType {
	case SQL_C_DATE, SQL_C_TYPE_DATE:
		cv := cValue{data: make([]byte, sizeDate)}
		putDate(cv.data, t)
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
			cv.warning = stateFractionalTruncated
		}
		return cv, nil
	case SQL_C_TIME, SQL_C_TYPE_TIME:
		cv := cValue{data: make([]byte, sizeTime)}
		binary.LittleEndian.PutUint16(cv.data[0:], uint16(t.Hour()))
		binary.LittleEndian.PutUint16(cv.data[2:], uint16(t.Minute()))
		binary.LittleEndian.PutUint16(cv.data[4:], uint16(t.Second()))
		if t.Nanosecond() != 0 {
			cv.warning = stateFractionalTruncated
		}
		return cv, nil
	}
	cv := cValue{data: make([]byte, sizeTimestamp)}
	putDate(cv.data, t)
	binary.LittleEndian.PutUint16(cv.data[6:], uint16(t.Hour()))
	binary.LittleEndian.PutUint16(cv.data[8:], uint16(t.Minute()))
	binary.LittleEndian.PutUint16(cv.data[10:], uint16(t.Second()))
	binary.LittleEndian.PutUint32(cv.data[12:], uint32(t.Nanosecond()))
	return cv, nil
}

func putDate(b []byte, t time.Time) {
	binary.LittleEndian.PutUint16(b[0:], uint16(int16(t.Year())))
	binary.LittleEndian.PutUint16(b[2:], uint16(t.Month()))
	binary.LittleEndian.PutUint16(b[4:], uint16(t.Day()))
}

// guidValue encodes v as an SQLGUID: Data1 to Data3 little-endian, then
// the eight Data4 bytes.
func guidValue(v any) (cValue, error) {
	var u uuid.UUID
	switch x := v.(type) {
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(x))
		if err != nil {
			return cValue{}, fmt.Errorf("%w: %q", errInvalidCharValue, x)
		}
		u = parsed
	case []byte:
		if len(x) != 16 {
			return guidValue(string(x))
		}
		u = uuid.UUID(x)
	default:
		return cValue{}, unsupportedTypeError(fmt.Sprintf("%T", v), SQL_C_GUID)
	}
	b := make([]byte, sizeGUID)
	binary.LittleEndian.PutUint32(b[0:], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(b[4:], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(b[6:], binary.BigEndian.Uint16(u[6:8]))
	copy(b[8:], u[8:])
	return cValue{data: b}, nil
}

func decodeGUID(p Ptr) string {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], p.Uint32())
	binary.BigEndian.PutUint16(u[4:6], p.Add(4).Uint16())
	binary.BigEndian.PutUint16(u[6:8], p.Add(6).Uint16())
	copy(u[8:], p.Add(8).Bytes(8))
	return u.String()
}

// fromC reads a value of C type cType from caller memory. length is the
// octet length of character and binary data, or SQL_NTS.
func fromC(cType int16, p Ptr, length int64, sqlType int16) (any, error) {
	if p.IsNull() {
		return nil, errInvalidNull
	}
	if size := cTypeSize(cType); size > 0 && int64(p.Cap()) < size {
		return nil, fmt.Errorf("%w: %d bytes for C type %d", errBufferLength, p.Cap(), cType)
	}
	switch cType {
	case SQL_C_CHAR:
		var b []byte
		switch {
		case length == SQL_NTS:
			b = p.cstring(-1)
		case length >= 0 && length <= int64(p.Cap()):
			b = p.Bytes(int(length))
		default:
			return nil, errBufferLength
		}
		if isBinarySQLType(sqlType) {
			out, err := hex.DecodeString(string(b))
			if err != nil {
				return nil, fmt.Errorf("%w: %q", errInvalidCharValue, b)
			}
			return out, nil
		}
		return string(b), nil
	case SQL_C_WCHAR:
		b := p.Bytes(-1)
		switch {
		case length == SQL_NTS:
			n := 0
			for n+1 < len(b) && (b[n] != 0 || b[n+1] != 0) {
				n += 2
			}
			b = b[:n]
		case length >= 0 && length <= int64(len(b)):
			b = b[:length]
		default:
			return nil, errBufferLength
		}
		return decodeUTF16(b), nil
	case SQL_C_BINARY:
		if length < 0 || length > int64(p.Cap()) {
			return nil, errBufferLength
		}
		return append([]byte(nil), p.Bytes(int(length))...), nil
	case SQL_C_BIT:
		return p.Uint8() != 0, nil
	case SQL_C_STINYINT, SQL_C_TINYINT:
		return int64(p.Int8()), nil
	case SQL_C_UTINYINT:
		return int64(p.Uint8()), nil
	case SQL_C_SSHORT, SQL_C_SHORT:
		return int64(p.Int16()), nil
	case SQL_C_USHORT:
		return int64(p.Uint16()), nil
	case SQL_C_SLONG, SQL_C_LONG:
		return int64(p.Int32()), nil
	case SQL_C_ULONG:
		return int64(p.Uint32()), nil
	case SQL_C_SBIGINT:
		return p.Int64(), nil
	case SQL_C_UBIGINT:
		u := p.Uint64()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d", errNumericRange, u)
		}
		return int64(u), nil
	case SQL_C_FLOAT:
		return float64(p.Float32()), nil
	case SQL_C_DOUBLE:
		return p.Float64(), nil
	case SQL_C_NUMERIC:
		return decodeNumeric(p), nil
	case SQL_C_DATE, SQL_C_TYPE_DATE:
		return readDate(p, 0, 0, 0, 0)
	case SQL_C_TIME, SQL_C_TYPE_TIME:
		h, m, s := p.Uint16(), p.Add(2).Uint16(), p.Add(4).Uint16()
		if h > 23 || m > 59 || s > 61 {
			return nil, fmt.Errorf("%w: %02d:%02d:%02d", errInvalidDatetime, h, m, s)
		}
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
	case SQL_C_TIMESTAMP, SQL_C_TYPE_TIMESTAMP:
		return readDate(p, p.Add(6).Uint16(), p.Add(8).Uint16(), p.Add(10).Uint16(), p.Add(12).Uint32())
	case SQL_C_GUID:
		return decodeGUID(p), nil
	}
	return nil, unsupportedTypeError("parameter", cType)
}

func readDate(p Ptr, hour, minute, sec uint16, frac uint32) (any, error) {
	y, mo, d := int(p.Int16()), time.Month(p.Add(2).Uint16()), int(p.Add(4).Uint16())
	t := time.Date(y, mo, d, int(hour), int(minute), int(sec), int(frac), time.UTC)
	if t.Year() != y || t.Month() != mo || t.Day() != d || hour > 23 || minute > 59 || sec > 59 || frac > 999999999 {
		return nil, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d:%02d", errInvalidDatetime, y, mo, d, hour, minute, sec)
	}
	return t, nil
}
