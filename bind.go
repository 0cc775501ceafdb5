package warpdrive

import (
	"fmt"
)

// colBinding is an application row record resolved for transfer.
type colBinding struct {
	col       int
	cType     int16
	sqlType   int16
	precision int16
	scale     int16
	bufLen    int64
	rec       *descRecord
}

// validCType reports whether cType names a C type rows and parameters can
// be transferred as.
func validCType(cType int16) bool {
	switch cType {
	case SQL_C_CHAR, SQL_C_WCHAR, SQL_C_BINARY, SQL_C_BIT, SQL_C_DEFAULT,
		SQL_C_TINYINT, SQL_C_STINYINT, SQL_C_UTINYINT,
		SQL_C_SHORT, SQL_C_SSHORT, SQL_C_USHORT,
		SQL_C_LONG, SQL_C_SLONG, SQL_C_ULONG,
		SQL_C_SBIGINT, SQL_C_UBIGINT, SQL_C_FLOAT, SQL_C_DOUBLE, SQL_C_NUMERIC,
		SQL_C_DATE, SQL_C_TIME, SQL_C_TIMESTAMP,
		SQL_C_TYPE_DATE, SQL_C_TYPE_TIME, SQL_C_TYPE_TIMESTAMP, SQL_C_GUID:
		return true
	}
	return isIntervalType(cType)
}

// BindCol binds column col to caller memory on the active row descriptor.
// Binding a null target and a null indicator unbinds the column.
func (s *Stmt) BindCol(col uint16, cType int16, target Ptr, bufLen int64, strLenOrInd Ptr) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if bufLen < 0 {
			return SQL_ERROR, fmt.Errorf("%w: %d", errBufferLength, bufLen)
		}
		if col == 0 {
			return SQL_SUCCESS, s.bindBookmark(cType, target, bufLen, strLenOrInd)
		}
		if !validCType(cType) {
			return SQL_ERROR, fmt.Errorf("%w: %d", errInvalidBufferType, cType)
		}
		if target.IsNull() && strLenOrInd.IsNull() {
			s.unbindCol(int(col))
			return SQL_SUCCESS, nil
		}
		r := s.ard.record(int(col))
		r.setConciseType(cType)
		r.octetLength = bufLen
		r.length = bufLen
		r.dataPtr = target
		r.indicatorPtr = strLenOrInd
		r.octetLengthPtr = strLenOrInd
		s.ard.changed = true
		return SQL_SUCCESS, nil
	})
}

func (s *Stmt) bindBookmark(cType int16, target Ptr, bufLen int64, ind Ptr) error {
	if s.attrs.useBookmarks == SQL_UB_OFF {
		return fmt.Errorf("%w: bookmarks are off", errInvalidDescIndex)
	}
	switch cType {
	case SQL_C_BOOKMARK, SQL_C_VARBOOKMARK, SQL_C_DEFAULT:
	default:
		return fmt.Errorf("%w: bookmark column as C type %d", errRestrictedConversion, cType)
	}
	b := &s.ard.bookmark
	b.setConciseType(cType)
	b.octetLength = bufLen
	b.dataPtr = target
	b.indicatorPtr = ind
	b.octetLengthPtr = ind
	s.ard.changed = true
	return nil
}

// unbindCol clears record col and drops trailing unbound records.
func (s *Stmt) unbindCol(col int) {
	if r := s.ard.recordAt(col); r != nil {
		r.dataPtr = Ptr{}
		r.indicatorPtr = Ptr{}
		r.octetLengthPtr = Ptr{}
	}
	n := s.ard.count()
	for n > 0 {
		r := s.ard.recordAt(n)
		if !r.dataPtr.IsNull() || !r.indicatorPtr.IsNull() || !r.octetLengthPtr.IsNull() {
			break
		}
		n--
	}
	s.ard.setCount(n)
}

// computeBindings resolves the active row descriptor against the result
// columns. Records past the result column count stay unbound.
func (s *Stmt) computeBindings() []colBinding {
	if s.bindings != nil && !s.ard.changed {
		return s.bindings
	}
	bindings := make([]colBinding, 0, s.ard.count()+1)
	if s.attrs.useBookmarks != SQL_UB_OFF && !s.ard.bookmark.dataPtr.IsNull() {
		cType := s.ard.bookmark.conciseType
		if cType == SQL_C_DEFAULT {
			cType = SQL_C_BOOKMARK
			if s.attrs.useBookmarks == SQL_UB_VARIABLE {
				cType = SQL_C_VARBOOKMARK
			}
		}
		bindings = append(bindings, colBinding{
			col:    0,
			cType:  cType,
			bufLen: bufferLength(cType, s.ard.bookmark.octetLength),
			rec:    &s.ard.bookmark,
		})
	}
	for col := 1; col <= s.ard.count() && col <= s.ird.count(); col++ {
		r := s.ard.recordAt(col)
		if r.dataPtr.IsNull() && r.indicatorPtr.IsNull() && r.octetLengthPtr.IsNull() {
			continue
		}
		ird := s.ird.recordAt(col)
		b := colBinding{col: col, cType: r.conciseType, sqlType: ird.conciseType, rec: r}
		if b.cType == SQL_C_DEFAULT {
			b.cType = defaultCType(ird.conciseType, ird.unsigned == SQL_TRUE, s.odbc2())
		}
		if b.cType == SQL_C_NUMERIC {
			b.precision, b.scale = r.precision, r.scale
		}
		b.bufLen = bufferLength(b.cType, r.octetLength)
		bindings = append(bindings, b)
	}
	s.bindings = bindings
	s.ard.changed = false
	return bindings
}

// element addresses row of the bound buffers of record r, honouring the
// bind type and bind offset of d. stride is the column-wise element size.
func element(d *Desc, r *descRecord, row int, stride int64) (data, ind, octet Ptr) {
	off := int(d.bindOffsetPtr.Len())
	if d.bindType == SQL_BIND_BY_COLUMN {
		data = r.dataPtr.Add(off + row*int(stride))
		ind = r.indicatorPtr.Add(off + row*sizeLen)
		octet = r.octetLengthPtr.Add(off + row*sizeLen)
		return data, ind, octet
	}
	shift := off + row*int(d.bindType)
	return r.dataPtr.Add(shift), r.indicatorPtr.Add(shift), r.octetLengthPtr.Add(shift)
}

// copyOut stores cv into dst of capacity bufLen following the truncation
// rule. It returns the number of data bytes stored and whether the value
// was cut short.
func copyOut(cv cValue, dst Ptr, bufLen int64) (int, bool) {
	if !cv.variable {
		if dst.IsNull() {
			return 0, false
		}
		return copy(dst.Bytes(min(len(cv.data), dst.Cap())), cv.data), false
	}
	if dst.IsNull() || bufLen <= 0 {
		return 0, len(cv.data) > 0
	}
	room := int(min(bufLen, int64(dst.Cap()))) - cv.nul
	if room < 0 {
		return 0, len(cv.data) > 0
	}
	n := min(len(cv.data), room)
	if cv.nul == 2 {
		n &^= 1
	}
	copy(dst.Bytes(n), cv.data[:n])
	for i := 0; i < cv.nul; i++ {
		dst.Add(n + i).PutUint8(0)
	}
	return n, n < len(cv.data)
}

// storeValue writes v into one bound element. The returned warning is the
// SQLSTATE of a non-fatal loss of data.
func (s *Stmt) storeValue(v any, b colBinding, data, ind, octet Ptr) (string, error) {
	if v == nil {
		if ind.IsNull() {
			return "", errIndicatorRequired
		}
		ind.PutLen(SQL_NULL_DATA)
		return "", nil
	}
	cv, err := toC(v, b.cType, b.sqlType, b.precision, b.scale)
	if err != nil {
		return "", err
	}
	if cv.variable && s.attrs.maxLength > 0 && int64(len(cv.data)) > s.attrs.maxLength {
		cv.data = cv.data[:s.attrs.maxLength]
	}
	_, truncated := copyOut(cv, data, b.bufLen)
	length := int64(len(cv.data))
	octet.PutLen(length)
	if !ind.Same(octet) {
		ind.PutLen(0)
	}
	if truncated {
		return stateTruncated, nil
	}
	return cv.warning, nil
}

// transferRow copies row index of the cursor into rowset row pos of the
// bound buffers. Failures and warnings are recorded against the row; the
// returned status is the row's status array entry.
func (s *Stmt) transferRow(pos, index int, values []any, bindings []colBinding) uint16 {
	status := SQL_ROW_SUCCESS
	for _, b := range bindings {
		data, ind, octet := element(s.ard, b.rec, pos, b.bufLen)
		var v any
		switch {
		case b.col == 0 && b.cType == SQL_C_VARBOOKMARK:
			v = s.cursor.bookmark(index, true)
		case b.col == 0:
			v = int64(index + 1)
		default:
			v = values[b.col-1]
		}
		warning, err := s.storeValue(v, b, data, ind, octet)
		if err != nil {
			rec := s.diag.addError(columnError(err, b.col))
			rec.Row = int64(pos + 1)
			rec.Column = int32(b.col)
			status = SQL_ROW_ERROR
			continue
		}
		if warning != "" {
			rec := s.diag.addWarning(warning, fmt.Sprintf("column %d: %s", b.col, warningText(warning)))
			rec.Row = int64(pos + 1)
			rec.Column = int32(b.col)
			if status == SQL_ROW_SUCCESS {
				status = SQL_ROW_SUCCESS_WITH_INFO
			}
		}
	}
	return status
}

func warningText(state string) string {
	switch state {
	case stateTruncated:
		return "string data, right truncated"
	case stateFractionalTruncated:
		return "fractional truncation"
	case stateCursorOpConflict:
		return "cursor operation conflict"
	}
	return "general warning"
}
