package warpdrive

import "fmt"

// putString copies s into buf following the truncation rule: at most
// len(buf)-1 bytes are copied and the copy is NUL-terminated. strLen, when
// non-nil, receives len(s). It reports whether s was truncated.
func putString(s string, buf []byte, strLen *int32) bool {
	if strLen != nil {
		*strLen = int32(len(s))
	}
	if buf == nil {
		return false
	}
	if len(buf) == 0 {
		return len(s) > 0
	}
	n := copy(buf[:len(buf)-1], s)
	buf[n] = 0
	return n < len(s)
}

// putInteger stores v into an integer destination.
func putInteger(dest any, v int64) error {
	switch d := dest.(type) {
	case *int:
		*d = int(v)
	case *int16:
		*d = int16(v)
	case *int32:
		*d = int32(v)
	case *int64:
		*d = v
	case *uint16:
		*d = uint16(v)
	case *uint32:
		*d = uint32(v)
	case *uint64:
		*d = uint64(v)
	case *any:
		*d = v
	case Ptr:
		if d.IsNull() {
			return errInvalidNull
		}
		d.PutInt64(v)
	case nil:
		return errInvalidNull
	default:
		return fmt.Errorf("%w: integer value into %T", errInvalidAttrValue, dest)
	}
	return nil
}

// putPointer stores p into a pointer destination.
func putPointer(dest any, p Ptr) error {
	switch d := dest.(type) {
	case *Ptr:
		*d = p
	case *any:
		*d = p
	case nil:
		return errInvalidNull
	default:
		return fmt.Errorf("%w: pointer value into %T", errInvalidAttrValue, dest)
	}
	return nil
}

// toInt64 unpacks an integer attribute value.
func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case SQLRETURN:
		return int64(x), nil
	}
	return 0, fmt.Errorf("%w: expected an integer, got %T", errInvalidAttrValue, v)
}

// toPtr unpacks a pointer attribute value. nil is the null pointer.
func toPtr(v any) (Ptr, error) {
	switch x := v.(type) {
	case nil:
		return Ptr{}, nil
	case Ptr:
		return x, nil
	case []byte:
		return NewPtr(x), nil
	}
	return Ptr{}, fmt.Errorf("%w: expected a pointer, got %T", errInvalidAttrValue, v)
}

// toString unpacks a character attribute value.
func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(NewPtr(x).cstring(-1)), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("%w: expected a string, got %T", errInvalidAttrValue, v)
}
