package warpdrive

import "strings"

// DiagRecord is one entry of a diagnostics ledger.
type DiagRecord struct {
	SQLState string
	Native   int32
	Message  string
	Row      int64
	Column   int32
}

// diagnostics is the per-handle ledger. It is cleared at the start of
// every call made against the handle.
type diagnostics struct {
	records    []DiagRecord
	returnCode SQLRETURN
	rowCount   int64
}

func (d *diagnostics) clear() {
	d.records = d.records[:0]
	d.returnCode = SQL_SUCCESS
}

func (d *diagnostics) add(state string, native int32, msg string) *DiagRecord {
	d.records = append(d.records, DiagRecord{
		SQLState: state,
		Native:   native,
		Message:  msg,
		Row:      SQL_NO_ROW_NUMBER,
		Column:   SQL_NO_COLUMN_NUMBER,
	})
	return &d.records[len(d.records)-1]
}

func (d *diagnostics) addError(err error) *DiagRecord {
	state, native, msg := classify(err)
	return d.add(state, native, msg)
}

func (d *diagnostics) addWarning(state string, msg string) *DiagRecord {
	return d.add(state, 0, driverErrMsg+": "+msg)
}

func isWarning(state string) bool {
	return strings.HasPrefix(state, "01")
}

func (d *diagnostics) hasError() bool {
	for _, r := range d.records {
		if !isWarning(r.SQLState) {
			return true
		}
	}
	return false
}

func (d *diagnostics) hasWarning() bool {
	for _, r := range d.records {
		if isWarning(r.SQLState) {
			return true
		}
	}
	return false
}

// Records returns a copy of the ledger of h.
func Records(h Handle) []DiagRecord {
	b := handleBase(h)
	if b == nil {
		return nil
	}
	recs := b.diag.records
	out := make([]DiagRecord, len(recs))
	copy(out, recs)
	return out
}

// GetDiagRec copies the SQLSTATE, native code and message text of record
// rec (1-based) of h's ledger. state needs 6 bytes; msg follows the string
// truncation rule and textLen receives the untruncated message length.
func GetDiagRec(h Handle, rec int16, state []byte, native *int32, msg []byte, textLen *int16) SQLRETURN {
	b := handleBase(h)
	if b == nil {
		return SQL_INVALID_HANDLE
	}
	if rec <= 0 {
		return SQL_ERROR
	}
	if int(rec) > len(b.diag.records) {
		return SQL_NO_DATA
	}
	r := b.diag.records[rec-1]
	putString(r.SQLState, state, nil)
	if native != nil {
		*native = r.Native
	}
	var n int32
	truncated := putString(r.Message, msg, &n)
	if textLen != nil {
		*textLen = int16(n)
	}
	if truncated {
		return SQL_SUCCESS_WITH_INFO
	}
	return SQL_SUCCESS
}

// GetDiagField reads one header (rec 0) or record field of h's ledger
// into dest.
func GetDiagField(h Handle, rec int16, field int16, dest any, strLen *int32) SQLRETURN {
	b := handleBase(h)
	if b == nil {
		return SQL_INVALID_HANDLE
	}
	d := &b.diag
	switch field {
	case SQL_DIAG_NUMBER:
		return putDiagInt(dest, int64(len(d.records)))
	case SQL_DIAG_RETURNCODE:
		return putDiagInt(dest, int64(d.returnCode))
	case SQL_DIAG_ROW_COUNT:
		return putDiagInt(dest, d.rowCount)
	}
	if rec <= 0 {
		return SQL_ERROR
	}
	if int(rec) > len(d.records) {
		return SQL_NO_DATA
	}
	r := d.records[rec-1]
	switch field {
	case SQL_DIAG_SQLSTATE:
		return putDiagString(r.SQLState, dest, strLen)
	case SQL_DIAG_NATIVE:
		return putDiagInt(dest, int64(r.Native))
	case SQL_DIAG_MESSAGE_TEXT:
		return putDiagString(r.Message, dest, strLen)
	case SQL_DIAG_CLASS_ORIGIN:
		return putDiagString(origin(r.SQLState[:2]), dest, strLen)
	case SQL_DIAG_SUBCLASS_ORIGIN:
		o := origin(r.SQLState[:2])
		if strings.Contains(r.SQLState[2:], "S") {
			o = "ODBC 3.0"
		}
		return putDiagString(o, dest, strLen)
	case SQL_DIAG_ROW_NUMBER:
		return putDiagInt(dest, r.Row)
	case SQL_DIAG_COLUMN_NUMBER:
		return putDiagInt(dest, int64(r.Column))
	}
	return SQL_ERROR
}

// origin is the standard that defines an SQLSTATE class.
func origin(class string) string {
	if class == "HY" || class == "IM" {
		return "ODBC 3.0"
	}
	return "ISO 9075"
}

func putDiagInt(dest any, v int64) SQLRETURN {
	if err := putInteger(dest, v); err != nil {
		return SQL_ERROR
	}
	return SQL_SUCCESS
}

func putDiagString(s string, dest any, strLen *int32) SQLRETURN {
	buf, ok := dest.([]byte)
	if !ok {
		return SQL_ERROR
	}
	if putString(s, buf, strLen) {
		return SQL_SUCCESS_WITH_INFO
	}
	return SQL_SUCCESS
}
