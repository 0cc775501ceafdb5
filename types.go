package warpdrive

// SQLRETURN is the return code of every call-level entry point.
type SQLRETURN int16

const (
	SQL_SUCCESS           SQLRETURN = 0
	SQL_SUCCESS_WITH_INFO SQLRETURN = 1
	SQL_ERROR             SQLRETURN = -1
	SQL_INVALID_HANDLE    SQLRETURN = -2
	SQL_NEED_DATA         SQLRETURN = 99
	SQL_NO_DATA           SQLRETURN = 100
)

func (rc SQLRETURN) String() string {
	switch rc {
	case SQL_SUCCESS:
		return "SQL_SUCCESS"
	case SQL_SUCCESS_WITH_INFO:
		return "SQL_SUCCESS_WITH_INFO"
	case SQL_ERROR:
		return "SQL_ERROR"
	case SQL_INVALID_HANDLE:
		return "SQL_INVALID_HANDLE"
	case SQL_NEED_DATA:
		return "SQL_NEED_DATA"
	case SQL_NO_DATA:
		return "SQL_NO_DATA"
	}
	return "SQLRETURN(unknown)"
}

// Succeeded reports whether rc is SQL_SUCCESS or SQL_SUCCESS_WITH_INFO.
func Succeeded(rc SQLRETURN) bool {
	return rc == SQL_SUCCESS || rc == SQL_SUCCESS_WITH_INFO
}

// Handle types.
const (
	SQL_HANDLE_ENV  int16 = 1
	SQL_HANDLE_DBC  int16 = 2
	SQL_HANDLE_STMT int16 = 3
	SQL_HANDLE_DESC int16 = 4
)

// Length and indicator values.
const (
	SQL_NULL_DATA            int64 = -1
	SQL_DATA_AT_EXEC         int64 = -2
	SQL_NTS                  int64 = -3
	SQL_NO_TOTAL             int64 = -4
	SQL_DEFAULT_PARAM        int64 = -5
	SQL_COLUMN_IGNORE        int64 = -6
	SQL_LEN_DATA_AT_EXEC_OFF int64 = -100
)

// SQL_LEN_DATA_AT_EXEC returns the indicator value announcing a
// data-at-execution value of the given length.
func SQL_LEN_DATA_AT_EXEC(length int64) int64 {
	return -length + SQL_LEN_DATA_AT_EXEC_OFF
}

func isDataAtExec(ind int64) bool {
	return ind == SQL_DATA_AT_EXEC || ind <= SQL_LEN_DATA_AT_EXEC_OFF
}

// SQL data types.
const (
	SQL_UNKNOWN_TYPE    int16 = 0
	SQL_CHAR            int16 = 1
	SQL_NUMERIC         int16 = 2
	SQL_DECIMAL         int16 = 3
	SQL_INTEGER         int16 = 4
	SQL_SMALLINT        int16 = 5
	SQL_FLOAT           int16 = 6
	SQL_REAL            int16 = 7
	SQL_DOUBLE          int16 = 8
	SQL_DATETIME        int16 = 9
	SQL_DATE            int16 = 9
	SQL_INTERVAL        int16 = 10
	SQL_TIME            int16 = 10
	SQL_TIMESTAMP       int16 = 11
	SQL_VARCHAR         int16 = 12
	SQL_TYPE_DATE       int16 = 91
	SQL_TYPE_TIME       int16 = 92
	SQL_TYPE_TIMESTAMP  int16 = 93
	SQL_LONGVARCHAR     int16 = -1
	SQL_BINARY          int16 = -2
	SQL_VARBINARY       int16 = -3
	SQL_LONGVARBINARY   int16 = -4
	SQL_BIGINT          int16 = -5
	SQL_TINYINT         int16 = -6
	SQL_BIT             int16 = -7
	SQL_WCHAR           int16 = -8
	SQL_WVARCHAR        int16 = -9
	SQL_WLONGVARCHAR    int16 = -10
	SQL_GUID            int16 = -11
	SQL_INTERVAL_YEAR   int16 = 101
	SQL_INTERVAL_MONTH  int16 = 102
	SQL_INTERVAL_DAY    int16 = 103
	SQL_INTERVAL_HOUR   int16 = 104
	SQL_INTERVAL_MINUTE int16 = 105
	SQL_INTERVAL_SECOND int16 = 106

	SQL_INTERVAL_YEAR_TO_MONTH    int16 = 107
	SQL_INTERVAL_DAY_TO_HOUR      int16 = 108
	SQL_INTERVAL_DAY_TO_MINUTE    int16 = 109
	SQL_INTERVAL_DAY_TO_SECOND    int16 = 110
	SQL_INTERVAL_HOUR_TO_MINUTE   int16 = 111
	SQL_INTERVAL_HOUR_TO_SECOND   int16 = 112
	SQL_INTERVAL_MINUTE_TO_SECOND int16 = 113
)

// Datetime subcodes.
const (
	SQL_CODE_DATE      int16 = 1
	SQL_CODE_TIME      int16 = 2
	SQL_CODE_TIMESTAMP int16 = 3
)

// C data types.
const (
	SQL_C_CHAR           int16 = SQL_CHAR
	SQL_C_WCHAR          int16 = SQL_WCHAR
	SQL_C_LONG           int16 = SQL_INTEGER
	SQL_C_SHORT          int16 = SQL_SMALLINT
	SQL_C_FLOAT          int16 = SQL_REAL
	SQL_C_DOUBLE         int16 = SQL_DOUBLE
	SQL_C_NUMERIC        int16 = SQL_NUMERIC
	SQL_C_DEFAULT        int16 = 99
	SQL_C_DATE           int16 = SQL_DATE
	SQL_C_TIME           int16 = SQL_TIME
	SQL_C_TIMESTAMP      int16 = SQL_TIMESTAMP
	SQL_C_TYPE_DATE      int16 = SQL_TYPE_DATE
	SQL_C_TYPE_TIME      int16 = SQL_TYPE_TIME
	SQL_C_TYPE_TIMESTAMP int16 = SQL_TYPE_TIMESTAMP
	SQL_C_BINARY         int16 = SQL_BINARY
	SQL_C_BIT            int16 = SQL_BIT
	SQL_C_TINYINT        int16 = SQL_TINYINT
	SQL_C_SLONG          int16 = -16
	SQL_C_SSHORT         int16 = -15
	SQL_C_STINYINT       int16 = -26
	SQL_C_ULONG          int16 = -18
	SQL_C_USHORT         int16 = -17
	SQL_C_UTINYINT       int16 = -28
	SQL_C_SBIGINT        int16 = -25
	SQL_C_UBIGINT        int16 = -27
	SQL_C_GUID           int16 = SQL_GUID
	SQL_C_BOOKMARK       int16 = SQL_C_ULONG
	SQL_C_VARBOOKMARK    int16 = SQL_C_BINARY

	SQL_C_INTERVAL_YEAR             = SQL_INTERVAL_YEAR
	SQL_C_INTERVAL_MONTH            = SQL_INTERVAL_MONTH
	SQL_C_INTERVAL_DAY              = SQL_INTERVAL_DAY
	SQL_C_INTERVAL_HOUR             = SQL_INTERVAL_HOUR
	SQL_C_INTERVAL_MINUTE           = SQL_INTERVAL_MINUTE
	SQL_C_INTERVAL_SECOND           = SQL_INTERVAL_SECOND
	SQL_C_INTERVAL_YEAR_TO_MONTH    = SQL_INTERVAL_YEAR_TO_MONTH
	SQL_C_INTERVAL_DAY_TO_HOUR      = SQL_INTERVAL_DAY_TO_HOUR
	SQL_C_INTERVAL_DAY_TO_MINUTE    = SQL_INTERVAL_DAY_TO_MINUTE
	SQL_C_INTERVAL_DAY_TO_SECOND    = SQL_INTERVAL_DAY_TO_SECOND
	SQL_C_INTERVAL_HOUR_TO_MINUTE   = SQL_INTERVAL_HOUR_TO_MINUTE
	SQL_C_INTERVAL_HOUR_TO_SECOND   = SQL_INTERVAL_HOUR_TO_SECOND
	SQL_C_INTERVAL_MINUTE_TO_SECOND = SQL_INTERVAL_MINUTE_TO_SECOND
)

// Nullability.
const (
	SQL_NO_NULLS         int16 = 0
	SQL_NULLABLE         int16 = 1
	SQL_NULLABLE_UNKNOWN int16 = 2
)

// Searchability.
const (
	SQL_PRED_NONE  int16 = 0
	SQL_PRED_CHAR  int16 = 1
	SQL_PRED_BASIC int16 = 2
	SQL_SEARCHABLE int16 = 3
)

// Updatability.
const (
	SQL_ATTR_READONLY          int16 = 0
	SQL_ATTR_WRITE             int16 = 1
	SQL_ATTR_READWRITE_UNKNOWN int16 = 2
)

// Parameter types.
const (
	SQL_PARAM_TYPE_UNKNOWN int16 = 0
	SQL_PARAM_INPUT        int16 = 1
	SQL_PARAM_INPUT_OUTPUT int16 = 2
	SQL_PARAM_OUTPUT       int16 = 4
)

// Statement attributes.
const (
	SQL_ATTR_QUERY_TIMEOUT         int32 = 0
	SQL_ATTR_MAX_ROWS              int32 = 1
	SQL_ATTR_NOSCAN                int32 = 2
	SQL_ATTR_MAX_LENGTH            int32 = 3
	SQL_ATTR_ASYNC_ENABLE          int32 = 4
	SQL_ATTR_ROW_BIND_TYPE         int32 = 5
	SQL_ATTR_CURSOR_TYPE           int32 = 6
	SQL_ATTR_CONCURRENCY           int32 = 7
	SQL_ATTR_KEYSET_SIZE           int32 = 8
	SQL_ROWSET_SIZE                int32 = 9
	SQL_ATTR_SIMULATE_CURSOR       int32 = 10
	SQL_ATTR_RETRIEVE_DATA         int32 = 11
	SQL_ATTR_USE_BOOKMARKS         int32 = 12
	SQL_ATTR_ROW_NUMBER            int32 = 14
	SQL_ATTR_ENABLE_AUTO_IPD       int32 = 15
	SQL_ATTR_FETCH_BOOKMARK_PTR    int32 = 16
	SQL_ATTR_PARAM_BIND_OFFSET_PTR int32 = 17
	SQL_ATTR_PARAM_BIND_TYPE       int32 = 18
	SQL_ATTR_PARAM_OPERATION_PTR   int32 = 19
	SQL_ATTR_PARAM_STATUS_PTR      int32 = 20
	SQL_ATTR_PARAMS_PROCESSED_PTR  int32 = 21
	SQL_ATTR_PARAMSET_SIZE         int32 = 22
	SQL_ATTR_ROW_BIND_OFFSET_PTR   int32 = 23
	SQL_ATTR_ROW_OPERATION_PTR     int32 = 24
	SQL_ATTR_ROW_STATUS_PTR        int32 = 25
	SQL_ATTR_ROWS_FETCHED_PTR      int32 = 26
	SQL_ATTR_ROW_ARRAY_SIZE        int32 = 27
	SQL_ATTR_APP_ROW_DESC          int32 = 10010
	SQL_ATTR_APP_PARAM_DESC        int32 = 10011
	SQL_ATTR_IMP_ROW_DESC          int32 = 10012
	SQL_ATTR_IMP_PARAM_DESC        int32 = 10013
	SQL_ATTR_METADATA_ID           int32 = 10014
	SQL_ATTR_CURSOR_SCROLLABLE     int32 = -1
	SQL_ATTR_CURSOR_SENSITIVITY    int32 = -2
)

// Connection and environment attributes.
const (
	SQL_ATTR_AUTOCOMMIT   int32 = 102
	SQL_ATTR_ODBC_VERSION int32 = 200
)

const (
	SQL_OV_ODBC2 int64 = 2
	SQL_OV_ODBC3 int64 = 3

	SQL_AUTOCOMMIT_OFF int64 = 0
	SQL_AUTOCOMMIT_ON  int64 = 1
)

// Attribute values.
const (
	SQL_BIND_BY_COLUMN       uint64 = 0
	SQL_PARAM_BIND_BY_COLUMN        = SQL_BIND_BY_COLUMN

	SQL_CURSOR_FORWARD_ONLY  int64 = 0
	SQL_CURSOR_KEYSET_DRIVEN int64 = 1
	SQL_CURSOR_DYNAMIC       int64 = 2
	SQL_CURSOR_STATIC        int64 = 3

	SQL_CONCUR_READ_ONLY int64 = 1
	SQL_CONCUR_LOCK      int64 = 2
	SQL_CONCUR_ROWVER    int64 = 3
	SQL_CONCUR_VALUES    int64 = 4

	SQL_UB_OFF      int64 = 0
	SQL_UB_FIXED    int64 = 1
	SQL_UB_VARIABLE int64 = 2

	SQL_RD_OFF int64 = 0
	SQL_RD_ON  int64 = 1

	SQL_ASYNC_ENABLE_OFF int64 = 0
	SQL_ASYNC_ENABLE_ON  int64 = 1

	SQL_NONSCROLLABLE int64 = 0
	SQL_SCROLLABLE    int64 = 1

	SQL_UNSPECIFIED int64 = 0
	SQL_INSENSITIVE int64 = 1
	SQL_SENSITIVE   int64 = 2

	SQL_SC_NON_UNIQUE int64 = 0
	SQL_SC_TRY_UNIQUE int64 = 1
	SQL_SC_UNIQUE     int64 = 2
)

// Descriptor header fields.
const (
	SQL_DESC_ARRAY_SIZE         int16 = 20
	SQL_DESC_ARRAY_STATUS_PTR   int16 = 21
	SQL_DESC_BIND_OFFSET_PTR    int16 = 24
	SQL_DESC_BIND_TYPE          int16 = 25
	SQL_DESC_ROWS_PROCESSED_PTR int16 = 34
	SQL_DESC_COUNT              int16 = 1001
	SQL_DESC_ALLOC_TYPE         int16 = 1099
)

// Descriptor record fields.
const (
	SQL_DESC_CONCISE_TYPE                int16 = 2
	SQL_DESC_DISPLAY_SIZE                int16 = 6
	SQL_DESC_UNSIGNED                    int16 = 8
	SQL_DESC_FIXED_PREC_SCALE            int16 = 9
	SQL_DESC_UPDATABLE                   int16 = 10
	SQL_DESC_AUTO_UNIQUE_VALUE           int16 = 11
	SQL_DESC_CASE_SENSITIVE              int16 = 12
	SQL_DESC_SEARCHABLE                  int16 = 13
	SQL_DESC_TYPE_NAME                   int16 = 14
	SQL_DESC_TABLE_NAME                  int16 = 15
	SQL_DESC_SCHEMA_NAME                 int16 = 16
	SQL_DESC_CATALOG_NAME                int16 = 17
	SQL_DESC_LABEL                       int16 = 18
	SQL_DESC_BASE_COLUMN_NAME            int16 = 22
	SQL_DESC_BASE_TABLE_NAME             int16 = 23
	SQL_DESC_DATETIME_INTERVAL_PRECISION int16 = 26
	SQL_DESC_LITERAL_PREFIX              int16 = 27
	SQL_DESC_LITERAL_SUFFIX              int16 = 28
	SQL_DESC_LOCAL_TYPE_NAME             int16 = 29
	SQL_DESC_NUM_PREC_RADIX              int16 = 32
	SQL_DESC_PARAMETER_TYPE              int16 = 33
	SQL_DESC_ROWVER                      int16 = 35
	SQL_DESC_TYPE                        int16 = 1002
	SQL_DESC_LENGTH                      int16 = 1003
	SQL_DESC_OCTET_LENGTH_PTR            int16 = 1004
	SQL_DESC_PRECISION                   int16 = 1005
	SQL_DESC_SCALE                       int16 = 1006
	SQL_DESC_DATETIME_INTERVAL_CODE      int16 = 1007
	SQL_DESC_NULLABLE                    int16 = 1008
	SQL_DESC_INDICATOR_PTR               int16 = 1009
	SQL_DESC_DATA_PTR                    int16 = 1010
	SQL_DESC_NAME                        int16 = 1011
	SQL_DESC_UNNAMED                     int16 = 1012
	SQL_DESC_OCTET_LENGTH                int16 = 1013
)

// ODBC 2 column attribute identifiers accepted by ColAttribute.
const (
	SQL_COLUMN_COUNT     int16 = 0
	SQL_COLUMN_NAME      int16 = 1
	SQL_COLUMN_LENGTH    int16 = 3
	SQL_COLUMN_PRECISION int16 = 4
	SQL_COLUMN_SCALE     int16 = 5
	SQL_COLUMN_NULLABLE  int16 = 7
)

const (
	SQL_DESC_ALLOC_AUTO int16 = 1
	SQL_DESC_ALLOC_USER int16 = 2

	SQL_NAMED   int16 = 0
	SQL_UNNAMED int16 = 1

	SQL_TRUE  int32 = 1
	SQL_FALSE int32 = 0
)

// Row status values.
const (
	SQL_ROW_SUCCESS           uint16 = 0
	SQL_ROW_DELETED           uint16 = 1
	SQL_ROW_UPDATED           uint16 = 2
	SQL_ROW_NOROW             uint16 = 3
	SQL_ROW_ADDED             uint16 = 4
	SQL_ROW_ERROR             uint16 = 5
	SQL_ROW_SUCCESS_WITH_INFO uint16 = 6
)

// Row and parameter operation values.
const (
	SQL_ROW_PROCEED   uint16 = 0
	SQL_ROW_IGNORE    uint16 = 1
	SQL_PARAM_PROCEED uint16 = 0
	SQL_PARAM_IGNORE  uint16 = 1
)

// Parameter status values.
const (
	SQL_PARAM_SUCCESS           uint16 = 0
	SQL_PARAM_SUCCESS_WITH_INFO uint16 = 6
	SQL_PARAM_ERROR             uint16 = 5
	SQL_PARAM_UNUSED            uint16 = 7
	SQL_PARAM_DIAG_UNAVAILABLE  uint16 = 1
)

// Fetch orientations.
const (
	SQL_FETCH_NEXT     int16 = 1
	SQL_FETCH_FIRST    int16 = 2
	SQL_FETCH_LAST     int16 = 3
	SQL_FETCH_PRIOR    int16 = 4
	SQL_FETCH_ABSOLUTE int16 = 5
	SQL_FETCH_RELATIVE int16 = 6
	SQL_FETCH_BOOKMARK int16 = 8
)

// SetPos operations and lock types.
const (
	SQL_POSITION int16 = 0
	SQL_REFRESH  int16 = 1
	SQL_UPDATE   int16 = 2
	SQL_DELETE   int16 = 3
	SQL_ADD      int16 = 4

	SQL_LOCK_NO_CHANGE int16 = 0
	SQL_LOCK_EXCLUSIVE int16 = 1
	SQL_LOCK_UNLOCK    int16 = 2
)

// BulkOperations operations.
const (
	SQL_UPDATE_BY_BOOKMARK int16 = 5
	SQL_DELETE_BY_BOOKMARK int16 = 6
	SQL_FETCH_BY_BOOKMARK  int16 = 7
)

// FreeStmt options.
const (
	SQL_CLOSE        int16 = 0
	SQL_DROP         int16 = 1
	SQL_UNBIND       int16 = 2
	SQL_RESET_PARAMS int16 = 3
)

// EndTran completion types.
const (
	SQL_COMMIT   int16 = 0
	SQL_ROLLBACK int16 = 1
)

// Diagnostic fields.
const (
	SQL_DIAG_RETURNCODE      int16 = 1
	SQL_DIAG_NUMBER          int16 = 2
	SQL_DIAG_ROW_COUNT       int16 = 3
	SQL_DIAG_SQLSTATE        int16 = 4
	SQL_DIAG_NATIVE          int16 = 5
	SQL_DIAG_MESSAGE_TEXT    int16 = 6
	SQL_DIAG_CLASS_ORIGIN    int16 = 8
	SQL_DIAG_SUBCLASS_ORIGIN int16 = 9
	SQL_DIAG_ROW_NUMBER      int16 = -1248
	SQL_DIAG_COLUMN_NUMBER   int16 = -1247

	SQL_NO_ROW_NUMBER    int64 = -1
	SQL_NO_COLUMN_NUMBER int32 = -1
)
