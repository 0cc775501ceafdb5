package warpdrive

import (
	"fmt"
)

// getDataState tracks a column retrieved in pieces by GetData.
type getDataState struct {
	col    int
	offset int
	done   bool
}

// GetData retrieves column col of the current row into target. Character
// and binary values longer than bufLen are returned in pieces by repeated
// calls; every piece but the last is reported as truncated. The bookmark
// column is only available through BindCol.
func (s *Stmt) GetData(col uint16, cType int16, target Ptr, bufLen int64, strLenOrInd Ptr) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
		}
		c := s.cursor
		if c == nil || !c.positioned() {
			return SQL_ERROR, fmt.Errorf("%w: no current row", errInvalidCursor)
		}
		if bufLen < 0 {
			return SQL_ERROR, fmt.Errorf("%w: %d", errBufferLength, bufLen)
		}
		if !validCType(cType) {
			return SQL_ERROR, fmt.Errorf("%w: %d", errInvalidBufferType, cType)
		}
		n := int(col)
		if n == 0 || n > len(c.cols) {
			return SQL_ERROR, fmt.Errorf("%w: column %d", errInvalidDescIndex, n)
		}
		index := c.rowsetIndex(max(c.current, 1))
		row := c.rowAt(index)
		if row == nil || row.key.deleted() {
			return SQL_ERROR, fmt.Errorf("%w: row %d is deleted", errCursorPosition, index+1)
		}

		if s.getData.col != n {
			s.getData = getDataState{col: n}
		}
		if s.getData.done {
			return SQL_NO_DATA, nil
		}

		b := colBinding{col: n, cType: cType}
		ird := s.ird.recordAt(n)
		b.sqlType = ird.conciseType
		r := s.ard.recordAt(n)
		if cType == SQL_C_DEFAULT {
			b.cType = defaultCType(ird.conciseType, ird.unsigned == SQL_TRUE, s.odbc2())
			if r != nil && r.conciseType != SQL_C_DEFAULT {
				b.cType = r.conciseType
			}
		}
		if b.cType == SQL_C_NUMERIC && r != nil {
			b.precision, b.scale = r.precision, r.scale
		}
		v := row.values[n-1]
		return s.getPiece(v, b, target, bufLen, strLenOrInd)
	})
}

func (s *Stmt) getPiece(v any, b colBinding, target Ptr, bufLen int64, ind Ptr) (SQLRETURN, error) {
	st := &s.getData
	if v == nil {
		if ind.IsNull() {
			return SQL_ERROR, errIndicatorRequired
		}
		ind.PutLen(SQL_NULL_DATA)
		st.done = true
		return SQL_SUCCESS, nil
	}
	cv, err := toC(v, b.cType, b.sqlType, b.precision, b.scale)
	if err != nil {
		return SQL_ERROR, columnError(err, b.col)
	}
	if !cv.variable {
		copyOut(cv, target, bufLen)
		ind.PutLen(int64(len(cv.data)))
		st.done = true
		if cv.warning != "" {
			s.warn(cv.warning, "column %d: %s", b.col, warningText(cv.warning))
		}
		return SQL_SUCCESS, nil
	}

	if s.attrs.maxLength > 0 && int64(len(cv.data)) > s.attrs.maxLength {
		cv.data = cv.data[:s.attrs.maxLength]
	}
	cv.data = cv.data[min(st.offset, len(cv.data)):]
	n, truncated := copyOut(cv, target, bufLen)
	ind.PutLen(int64(len(cv.data)))
	st.offset += n
	if truncated {
		s.warn(stateTruncated, "column %d: %s", b.col, warningText(stateTruncated))
		return SQL_SUCCESS, nil
	}
	st.done = true
	return SQL_SUCCESS, nil
}
