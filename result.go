package warpdrive

import (
	"fmt"
	"strings"
)

// NumParams reports the number of parameter markers in the statement
// text, or the number of bound parameters when that is higher.
func (s *Stmt) NumParams(count *int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		n, err := s.numParams()
		if err != nil {
			return SQL_ERROR, err
		}
		setIf(count, int16(n))
		return SQL_SUCCESS, nil
	})
}

func (s *Stmt) numParams() (int, error) {
	if s.pending != nil {
		return 0, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
	}
	if s.query == "" {
		return 0, fmt.Errorf("%w: no statement text", errSequence)
	}
	return max(countMarkers(s.query), s.ipd.count()), nil
}

// DescribeParam reports the SQL type, size, decimal digits and
// nullability of parameter num as recorded by BindParameter. A parameter
// that has not been bound is of unknown type.
func (s *Stmt) DescribeParam(num uint16, dataType *int16, paramSize *uint64, decDigits *int16, nullable *int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		n, err := s.numParams()
		if err != nil {
			return SQL_ERROR, err
		}
		if num == 0 || int(num) > n {
			return SQL_ERROR, fmt.Errorf("%w: parameter %d of %d", errInvalidDescIndex, num, n)
		}
		r := s.ipd.recordAt(int(num))
		if r == nil || r.conciseType == SQL_UNKNOWN_TYPE {
			setIf(dataType, SQL_UNKNOWN_TYPE)
			setIf(paramSize, 0)
			setIf(decDigits, 0)
			setIf(nullable, SQL_NULLABLE_UNKNOWN)
			return SQL_SUCCESS, nil
		}
		setIf(dataType, r.conciseType)
		setIf(paramSize, uint64(max(columnSize(r.conciseType, r.length, r.precision), 0)))
		setIf(decDigits, r.scale)
		setIf(nullable, r.nullable)
		return SQL_SUCCESS, nil
	})
}

// countMarkers counts the ? parameter markers of query outside quoted
// text and comments.
func countMarkers(query string) int {
	n := 0
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '?':
			n++
		case c == '\'' || c == '"' || c == '`':
			for i++; i < len(query) && query[i] != c; i++ {
			}
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return n
			}
			i += end + 3
		}
	}
	return n
}

// RowCount reports the update count of the last execution, the rows
// affected by the last positioned or bulk operation, or -1 when the
// statement produced a result set.
func (s *Stmt) RowCount(count *int64) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if count != nil {
			*count = s.rowCount
		}
		return SQL_SUCCESS, nil
	})
}

// NumResultCols reports the number of result columns, excluding the
// bookmark column.
func (s *Stmt) NumResultCols(count *int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
		}
		if count != nil {
			*count = int16(s.ird.count())
		}
		return SQL_SUCCESS, nil
	})
}

// column returns the implementation row record of result column col.
func (s *Stmt) column(col int) (*descRecord, error) {
	if s.pending != nil {
		return nil, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
	}
	if col == 0 {
		if s.attrs.useBookmarks == SQL_UB_OFF {
			return nil, fmt.Errorf("%w: bookmarks are off", errInvalidDescIndex)
		}
		return &s.ird.bookmark, nil
	}
	r := s.ird.recordAt(col)
	if r == nil {
		return nil, fmt.Errorf("%w: column %d of %d", errInvalidDescIndex, col, s.ird.count())
	}
	return r, nil
}

// DescribeCol reports the name, type, size, decimal digits and
// nullability of result column col.
func (s *Stmt) DescribeCol(col uint16, name []byte, nameLen *int16, dataType *int16, colSize *uint64,
	decDigits *int16, nullable *int16,
) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		r, err := s.column(int(col))
		if err != nil {
			return SQL_ERROR, err
		}
		var n int32
		if putString(r.name, name, &n) {
			s.warn(stateTruncated, "column name truncated")
		}
		setIf(nameLen, int16(n))
		setIf(dataType, r.conciseType)
		setIf(colSize, uint64(max(columnSize(r.conciseType, r.length, r.precision), 0)))
		setIf(decDigits, r.scale)
		setIf(nullable, r.nullable)
		return SQL_SUCCESS, nil
	})
}

// ColAttribute reads one attribute of result column col. String values go
// to charAttr, numeric values to numAttr. Besides the descriptor field
// identifiers the ODBC 2 column attribute identifiers are accepted.
func (s *Stmt) ColAttribute(col uint16, field int16, charAttr []byte, strLen *int16, numAttr *int64) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if field == SQL_DESC_COUNT || field == SQL_COLUMN_COUNT {
			setIf(numAttr, int64(s.ird.count()))
			return SQL_SUCCESS, nil
		}
		r, err := s.column(int(col))
		if err != nil {
			return SQL_ERROR, err
		}
		var v any
		switch field {
		case SQL_COLUMN_NAME:
			v = r.name
		case SQL_COLUMN_LENGTH:
			v = r.octetLength
		case SQL_COLUMN_PRECISION:
			v = columnSize(r.conciseType, r.length, r.precision)
		case SQL_COLUMN_SCALE:
			v = int64(r.scale)
		case SQL_COLUMN_NULLABLE:
			v = int64(r.nullable)
		default:
			f, ok := recordFields[field]
			if !ok {
				return SQL_ERROR, fieldError(field)
			}
			v = f.get(r)
		}
		switch x := v.(type) {
		case string:
			var n int32
			if putString(x, charAttr, &n) {
				s.warn(stateTruncated, "attribute value truncated")
			}
			setIf(strLen, int16(n))
		case int64:
			setIf(numAttr, x)
		case Ptr:
			return SQL_ERROR, fmt.Errorf("%w: %d is a pointer field", errInvalidDescField, field)
		}
		return SQL_SUCCESS, nil
	})
}
