package warpdrive

// Sizes of the C structures exchanged with the caller.
const (
	sizeDate      = 6
	sizeTime      = 6
	sizeTimestamp = 16
	sizeNumeric   = 19
	sizeGUID      = 16
	sizeInterval  = 28
	sizeLen       = 8

	numericValLen = 16
)

// cTypeSize returns the canonical byte size of a fixed-size C type, or 0
// when the size is given by the declared buffer length.
func cTypeSize(cType int16) int64 {
	switch cType {
	case SQL_C_SSHORT, SQL_C_SHORT, SQL_C_USHORT:
		return 2
	case SQL_C_SLONG, SQL_C_LONG, SQL_C_ULONG:
		return 4
	case SQL_C_SBIGINT, SQL_C_UBIGINT:
		return 8
	case SQL_C_FLOAT:
		return 4
	case SQL_C_DOUBLE:
		return 8
	case SQL_C_BIT, SQL_C_STINYINT, SQL_C_TINYINT, SQL_C_UTINYINT:
		return 1
	case SQL_C_DATE, SQL_C_TYPE_DATE:
		return sizeDate
	case SQL_C_TIME, SQL_C_TYPE_TIME:
		return sizeTime
	case SQL_C_TIMESTAMP, SQL_C_TYPE_TIMESTAMP:
		return sizeTimestamp
	case SQL_C_GUID:
		return sizeGUID
	case SQL_C_NUMERIC:
		return sizeNumeric
	}
	if isIntervalType(cType) {
		return sizeInterval
	}
	return 0
}

// bufferLength is the per-element byte stride of a bound buffer: the
// canonical size for fixed-size C types and the declared length otherwise.
func bufferLength(cType int16, declared int64) int64 {
	if n := cTypeSize(cType); n > 0 && cType != SQL_C_NUMERIC && !isIntervalType(cType) {
		return n
	}
	if declared <= 0 {
		return cTypeSize(cType)
	}
	return declared
}

func isIntervalType(t int16) bool {
	return t >= SQL_INTERVAL_YEAR && t <= SQL_INTERVAL_MINUTE_TO_SECOND
}

func isCharCType(cType int16) bool {
	return cType == SQL_C_CHAR || cType == SQL_C_WCHAR
}

func isVarCType(cType int16) bool {
	return isCharCType(cType) || cType == SQL_C_BINARY
}

func isCharSQLType(t int16) bool {
	switch t {
	case SQL_CHAR, SQL_VARCHAR, SQL_LONGVARCHAR, SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return true
	}
	return false
}

func isBinarySQLType(t int16) bool {
	return t == SQL_BINARY || t == SQL_VARBINARY || t == SQL_LONGVARBINARY
}

// defaultCType maps an SQL type to the C type an application receives
// when it asks for SQL_C_DEFAULT.
func defaultCType(sqlType int16, unsigned bool, odbc2 bool) int16 {
	switch sqlType {
	case SQL_CHAR, SQL_VARCHAR, SQL_LONGVARCHAR, SQL_DECIMAL, SQL_NUMERIC:
		return SQL_C_CHAR
	case SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return SQL_C_WCHAR
	case SQL_BIGINT:
		if unsigned {
			return SQL_C_UBIGINT
		}
		return SQL_C_SBIGINT
	case SQL_BIT:
		return SQL_C_BIT
	case SQL_TINYINT:
		if unsigned {
			return SQL_C_UTINYINT
		}
		return SQL_C_STINYINT
	case SQL_SMALLINT:
		if unsigned {
			return SQL_C_USHORT
		}
		return SQL_C_SSHORT
	case SQL_INTEGER:
		if unsigned {
			return SQL_C_ULONG
		}
		return SQL_C_SLONG
	case SQL_REAL:
		return SQL_C_FLOAT
	case SQL_FLOAT, SQL_DOUBLE:
		return SQL_C_DOUBLE
	case SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return SQL_C_BINARY
	case SQL_DATE, SQL_TYPE_DATE:
		return versionedType(SQL_C_TYPE_DATE, odbc2)
	case SQL_TIME, SQL_TYPE_TIME:
		return versionedType(SQL_C_TYPE_TIME, odbc2)
	case SQL_TIMESTAMP, SQL_TYPE_TIMESTAMP:
		return versionedType(SQL_C_TYPE_TIMESTAMP, odbc2)
	case SQL_GUID:
		return SQL_C_GUID
	}
	if isIntervalType(sqlType) {
		return sqlType
	}
	return SQL_C_CHAR
}

// versionedType returns the date/time type code matching the ODBC version
// the application declared.
func versionedType(t int16, odbc2 bool) int16 {
	switch t {
	case SQL_DATE, SQL_TYPE_DATE:
		if odbc2 {
			return SQL_DATE
		}
		return SQL_TYPE_DATE
	case SQL_TIME, SQL_TYPE_TIME:
		if odbc2 {
			return SQL_TIME
		}
		return SQL_TYPE_TIME
	case SQL_TIMESTAMP, SQL_TYPE_TIMESTAMP:
		if odbc2 {
			return SQL_TIMESTAMP
		}
		return SQL_TYPE_TIMESTAMP
	}
	return t
}

// verboseType splits a concise type into its verbose type and datetime
// or interval subcode.
func verboseType(concise int16) (int16, int16) {
	switch concise {
	case SQL_TYPE_DATE, SQL_C_DATE:
		return SQL_DATETIME, SQL_CODE_DATE
	case SQL_TYPE_TIME, SQL_C_TIME:
		return SQL_DATETIME, SQL_CODE_TIME
	case SQL_TYPE_TIMESTAMP, SQL_C_TIMESTAMP:
		return SQL_DATETIME, SQL_CODE_TIMESTAMP
	}
	if isIntervalType(concise) {
		return SQL_INTERVAL, concise - 100
	}
	return concise, 0
}

// conciseType joins a verbose type and subcode back into a concise type.
func conciseType(verbose int16, code int16) int16 {
	switch verbose {
	case SQL_DATETIME:
		switch code {
		case SQL_CODE_DATE:
			return SQL_TYPE_DATE
		case SQL_CODE_TIME:
			return SQL_TYPE_TIME
		case SQL_CODE_TIMESTAMP:
			return SQL_TYPE_TIMESTAMP
		}
	case SQL_INTERVAL:
		if code > 0 {
			return code + 100
		}
	}
	return verbose
}

// displaySize is the maximum number of characters needed to render a value
// of the column in character form.
func displaySize(sqlType int16, length int64, precision int16, unsigned bool) int64 {
	switch sqlType {
	case SQL_CHAR, SQL_VARCHAR, SQL_LONGVARCHAR, SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return length
	case SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return 2 * length
	case SQL_BIT:
		return 1
	case SQL_TINYINT:
		if unsigned {
			return 3
		}
		return 4
	case SQL_SMALLINT:
		if unsigned {
			return 5
		}
		return 6
	case SQL_INTEGER:
		if unsigned {
			return 10
		}
		return 11
	case SQL_BIGINT:
		return 20
	case SQL_REAL:
		return 14
	case SQL_FLOAT, SQL_DOUBLE:
		return 24
	case SQL_DECIMAL, SQL_NUMERIC:
		return int64(precision) + 2
	case SQL_TYPE_DATE, SQL_DATE:
		return 10
	case SQL_TYPE_TIME, SQL_TIME:
		return 8
	case SQL_TYPE_TIMESTAMP, SQL_TIMESTAMP:
		return 26
	case SQL_GUID:
		return 36
	}
	return length
}

// columnSize returns the ODBC column size of an SQL type.
func columnSize(sqlType int16, length int64, precision int16) int64 {
	switch sqlType {
	case SQL_BIT:
		return 1
	case SQL_TINYINT:
		return 3
	case SQL_SMALLINT:
		return 5
	case SQL_INTEGER:
		return 10
	case SQL_BIGINT:
		return 19
	case SQL_REAL:
		return 7
	case SQL_FLOAT, SQL_DOUBLE:
		return 15
	case SQL_DECIMAL, SQL_NUMERIC:
		return int64(precision)
	case SQL_TYPE_DATE, SQL_DATE:
		return 10
	case SQL_TYPE_TIME, SQL_TIME:
		return 8
	case SQL_TYPE_TIMESTAMP, SQL_TIMESTAMP:
		return 26
	case SQL_GUID:
		return 36
	}
	return length
}

// typeName is the generic type name reported when the backend has none.
func typeName(sqlType int16) string {
	switch sqlType {
	case SQL_CHAR:
		return "CHAR"
	case SQL_VARCHAR:
		return "VARCHAR"
	case SQL_LONGVARCHAR:
		return "TEXT"
	case SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return "NVARCHAR"
	case SQL_BIT:
		return "BOOLEAN"
	case SQL_TINYINT:
		return "TINYINT"
	case SQL_SMALLINT:
		return "SMALLINT"
	case SQL_INTEGER:
		return "INTEGER"
	case SQL_BIGINT:
		return "BIGINT"
	case SQL_REAL:
		return "REAL"
	case SQL_FLOAT, SQL_DOUBLE:
		return "DOUBLE"
	case SQL_DECIMAL, SQL_NUMERIC:
		return "NUMERIC"
	case SQL_BINARY, SQL_VARBINARY, SQL_LONGVARBINARY:
		return "BLOB"
	case SQL_TYPE_DATE, SQL_DATE:
		return "DATE"
	case SQL_TYPE_TIME, SQL_TIME:
		return "TIME"
	case SQL_TYPE_TIMESTAMP, SQL_TIMESTAMP:
		return "TIMESTAMP"
	case SQL_GUID:
		return "UUID"
	}
	return "UNKNOWN"
}
