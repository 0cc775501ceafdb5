package warpdrive

import "github.com/warpdrive/go-warpdrive/backend"

// descRecord is one column or parameter record of a descriptor.
type descRecord struct {
	typ               int16
	conciseType       int16
	datetimeCode      int16
	datetimePrecision int32
	length            int64
	octetLength       int64
	precision         int16
	scale             int16
	nullable          int16
	paramType         int16
	name              string
	unnamed           int16

	dataPtr        Ptr
	indicatorPtr   Ptr
	octetLengthPtr Ptr

	autoUnique     int32
	caseSensitive  int32
	fixedPrecScale int32
	unsigned       int32
	searchable     int16
	updatable      int16
	displaySize    int64
	numPrecRadix   int32
	rowVer         int16

	label          string
	baseColumnName string
	baseTableName  string
	catalogName    string
	schemaName     string
	tableName      string
	typeName       string
	localTypeName  string
	literalPrefix  string
	literalSuffix  string
}

func newRecord(kind descKind) descRecord {
	r := descRecord{
		nullable:  SQL_NULLABLE_UNKNOWN,
		paramType: SQL_PARAM_INPUT,
		unnamed:   SQL_UNNAMED,
	}
	switch kind {
	case descApp:
		r.setType(SQL_C_DEFAULT)
	default:
		r.setType(SQL_VARCHAR)
	}
	return r
}

// setType assigns the verbose type, resetting the fields whose defaults
// depend on it.
func (r *descRecord) setType(t int16) {
	r.typ = t
	switch t {
	case SQL_DATETIME, SQL_INTERVAL:
		r.conciseType = conciseType(t, r.datetimeCode)
	default:
		r.conciseType = t
		r.datetimeCode = 0
	}
	switch t {
	case SQL_CHAR, SQL_VARCHAR, SQL_C_WCHAR, SQL_WVARCHAR:
		r.length = 1
		r.precision = 0
	case SQL_DECIMAL, SQL_NUMERIC:
		r.scale = 0
		r.precision = 38
	case SQL_DATETIME:
		if r.datetimeCode == SQL_CODE_TIMESTAMP {
			r.precision = 6
		} else {
			r.precision = 0
		}
	case SQL_INTERVAL:
		r.datetimePrecision = 2
	}
}

func (r *descRecord) setConciseType(t int16) {
	verbose, code := verboseType(t)
	r.datetimeCode = code
	r.setType(verbose)
	r.conciseType = t
}

func (r *descRecord) setDatetimeCode(code int16) {
	r.datetimeCode = code
	if r.typ == SQL_DATETIME || r.typ == SQL_INTERVAL {
		r.conciseType = conciseType(r.typ, code)
	}
}

func boolAttr(b bool) int32 {
	if b {
		return SQL_TRUE
	}
	return SQL_FALSE
}

// recordFromColumn builds an implementation row record from result
// metadata.
func recordFromColumn(c backend.Column, odbc2 bool) descRecord {
	concise := versionedType(c.SQLType, odbc2)
	r := descRecord{
		name:           c.Name,
		label:          c.Label,
		baseColumnName: c.BaseColumn,
		baseTableName:  c.Table,
		tableName:      c.Table,
		schemaName:     c.Schema,
		catalogName:    c.Catalog,
		typeName:       c.TypeName,
		localTypeName:  c.TypeName,
		literalPrefix:  c.LiteralPrefix,
		literalSuffix:  c.LiteralSuffix,
		octetLength:    c.OctetLength,
		nullable:       c.Nullable,
		searchable:     c.Searchable,
		updatable:      c.Updatable,
		displaySize:    c.DisplaySize,
		autoUnique:     boolAttr(c.AutoUnique),
		caseSensitive:  boolAttr(c.CaseSensitive),
		fixedPrecScale: boolAttr(c.FixedPrecScale),
		unsigned:       boolAttr(c.Unsigned),
		paramType:      SQL_PARAM_INPUT,
		rowVer:         int16(SQL_FALSE),
	}
	r.setConciseType(concise)
	r.length = columnSize(c.SQLType, c.Length, c.Precision)
	r.precision = c.Precision
	r.scale = c.Scale
	if r.label == "" {
		r.label = c.Name
	}
	if r.baseColumnName == "" {
		r.baseColumnName = c.Name
	}
	if r.typeName == "" {
		r.typeName = typeName(c.SQLType)
		r.localTypeName = r.typeName
	}
	if r.displaySize == 0 {
		r.displaySize = displaySize(c.SQLType, r.length, c.Precision, c.Unsigned)
	}
	if r.octetLength == 0 {
		r.octetLength = columnOctetLength(c.SQLType, r.length)
	}
	switch c.SQLType {
	case SQL_TINYINT, SQL_SMALLINT, SQL_INTEGER, SQL_BIGINT, SQL_DECIMAL, SQL_NUMERIC:
		r.numPrecRadix = 10
	case SQL_REAL, SQL_FLOAT, SQL_DOUBLE:
		r.numPrecRadix = 2
	}
	if r.name != "" {
		r.unnamed = SQL_NAMED
	} else {
		r.unnamed = SQL_UNNAMED
	}
	return r
}

// bookmarkRecord describes column 0 of a result with bookmarks enabled.
func bookmarkRecord(variable bool) descRecord {
	r := descRecord{
		name:       "",
		unnamed:    SQL_UNNAMED,
		nullable:   SQL_NO_NULLS,
		searchable: SQL_PRED_NONE,
		updatable:  SQL_ATTR_READONLY,
	}
	if variable {
		r.setType(SQL_BINARY)
		r.length = varBookmarkSize
		r.octetLength = varBookmarkSize
	} else {
		r.setType(SQL_INTEGER)
		r.length = 10
		r.octetLength = 4
	}
	r.displaySize = displaySize(r.typ, r.length, 0, true)
	r.unsigned = SQL_TRUE
	return r
}

func columnOctetLength(sqlType int16, length int64) int64 {
	switch sqlType {
	case SQL_WCHAR, SQL_WVARCHAR, SQL_WLONGVARCHAR:
		return 2 * length
	case SQL_BIT, SQL_TINYINT:
		return 1
	case SQL_SMALLINT:
		return 2
	case SQL_INTEGER, SQL_REAL:
		return 4
	case SQL_BIGINT, SQL_FLOAT, SQL_DOUBLE:
		return 8
	case SQL_TYPE_DATE, SQL_DATE:
		return sizeDate
	case SQL_TYPE_TIME, SQL_TIME:
		return sizeTime
	case SQL_TYPE_TIMESTAMP, SQL_TIMESTAMP:
		return sizeTimestamp
	case SQL_GUID:
		return sizeGUID
	}
	return length
}

// fieldClass partitions record field identifiers by who may write them.
type fieldClass int

const (
	// fieldAppWritable fields are writable on application descriptors
	// and the implementation parameter descriptor.
	fieldAppWritable fieldClass = iota
	// fieldMetadata fields are reported from result metadata and are
	// read-only on the implementation row descriptor.
	fieldMetadata
	// fieldParam fields describe parameters and belong to the
	// implementation parameter descriptor.
	fieldParam
	// fieldReadOnly fields are never writable on implementation
	// descriptors.
	fieldReadOnly
)

type recordField struct {
	class fieldClass
	get   func(r *descRecord) any
	set   func(r *descRecord, v any) error
}

func intField[T int16 | int32 | int64](class fieldClass, f func(r *descRecord) *T) recordField {
	return recordField{
		class: class,
		get:   func(r *descRecord) any { return int64(*f(r)) },
		set: func(r *descRecord, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			*f(r) = T(n)
			return nil
		},
	}
}

func stringField(class fieldClass, f func(r *descRecord) *string) recordField {
	return recordField{
		class: class,
		get:   func(r *descRecord) any { return *f(r) },
		set: func(r *descRecord, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			*f(r) = s
			return nil
		},
	}
}

func ptrField(class fieldClass, f func(r *descRecord) *Ptr) recordField {
	return recordField{
		class: class,
		get:   func(r *descRecord) any { return *f(r) },
		set: func(r *descRecord, v any) error {
			p, err := toPtr(v)
			if err != nil {
				return err
			}
			*f(r) = p
			return nil
		},
	}
}

// typeField is a type-valued field whose setter keeps the verbose, concise
// and subcode fields consistent.
func typeField(get func(r *descRecord) int16, set func(r *descRecord, t int16)) recordField {
	return recordField{
		class: fieldAppWritable,
		get:   func(r *descRecord) any { return int64(get(r)) },
		set: func(r *descRecord, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			set(r, int16(n))
			return nil
		},
	}
}

var recordFields = map[int16]recordField{
	SQL_DESC_TYPE: typeField(
		func(r *descRecord) int16 { return r.typ },
		(*descRecord).setType),
	SQL_DESC_CONCISE_TYPE: typeField(
		func(r *descRecord) int16 { return r.conciseType },
		(*descRecord).setConciseType),
	SQL_DESC_DATETIME_INTERVAL_CODE: typeField(
		func(r *descRecord) int16 { return r.datetimeCode },
		(*descRecord).setDatetimeCode),

	SQL_DESC_DATA_PTR:         ptrField(fieldAppWritable, func(r *descRecord) *Ptr { return &r.dataPtr }),
	SQL_DESC_INDICATOR_PTR:    ptrField(fieldAppWritable, func(r *descRecord) *Ptr { return &r.indicatorPtr }),
	SQL_DESC_OCTET_LENGTH_PTR: ptrField(fieldAppWritable, func(r *descRecord) *Ptr { return &r.octetLengthPtr }),

	SQL_DESC_OCTET_LENGTH:                intField(fieldAppWritable, func(r *descRecord) *int64 { return &r.octetLength }),
	SQL_DESC_DATETIME_INTERVAL_PRECISION: intField(fieldAppWritable, func(r *descRecord) *int32 { return &r.datetimePrecision }),
	SQL_DESC_NUM_PREC_RADIX:              intField(fieldAppWritable, func(r *descRecord) *int32 { return &r.numPrecRadix }),
	SQL_DESC_LENGTH:                      intField(fieldMetadata, func(r *descRecord) *int64 { return &r.length }),
	SQL_DESC_PRECISION:                   intField(fieldMetadata, func(r *descRecord) *int16 { return &r.precision }),
	SQL_DESC_SCALE:                       intField(fieldMetadata, func(r *descRecord) *int16 { return &r.scale }),

	SQL_DESC_PARAMETER_TYPE: intField(fieldParam, func(r *descRecord) *int16 { return &r.paramType }),
	SQL_DESC_NAME:           stringField(fieldParam, func(r *descRecord) *string { return &r.name }),
	SQL_DESC_UNNAMED:        intField(fieldParam, func(r *descRecord) *int16 { return &r.unnamed }),

	SQL_DESC_AUTO_UNIQUE_VALUE: intField(fieldReadOnly, func(r *descRecord) *int32 { return &r.autoUnique }),
	SQL_DESC_CASE_SENSITIVE:    intField(fieldReadOnly, func(r *descRecord) *int32 { return &r.caseSensitive }),
	SQL_DESC_FIXED_PREC_SCALE:  intField(fieldReadOnly, func(r *descRecord) *int32 { return &r.fixedPrecScale }),
	SQL_DESC_UNSIGNED:          intField(fieldReadOnly, func(r *descRecord) *int32 { return &r.unsigned }),
	SQL_DESC_DISPLAY_SIZE:      intField(fieldReadOnly, func(r *descRecord) *int64 { return &r.displaySize }),
	SQL_DESC_NULLABLE:          intField(fieldReadOnly, func(r *descRecord) *int16 { return &r.nullable }),
	SQL_DESC_SEARCHABLE:        intField(fieldReadOnly, func(r *descRecord) *int16 { return &r.searchable }),
	SQL_DESC_UPDATABLE:         intField(fieldReadOnly, func(r *descRecord) *int16 { return &r.updatable }),
	SQL_DESC_ROWVER:            intField(fieldReadOnly, func(r *descRecord) *int16 { return &r.rowVer }),

	SQL_DESC_LABEL:            stringField(fieldReadOnly, func(r *descRecord) *string { return &r.label }),
	SQL_DESC_BASE_COLUMN_NAME: stringField(fieldReadOnly, func(r *descRecord) *string { return &r.baseColumnName }),
	SQL_DESC_BASE_TABLE_NAME:  stringField(fieldReadOnly, func(r *descRecord) *string { return &r.baseTableName }),
	SQL_DESC_CATALOG_NAME:     stringField(fieldReadOnly, func(r *descRecord) *string { return &r.catalogName }),
	SQL_DESC_SCHEMA_NAME:      stringField(fieldReadOnly, func(r *descRecord) *string { return &r.schemaName }),
	SQL_DESC_TABLE_NAME:       stringField(fieldReadOnly, func(r *descRecord) *string { return &r.tableName }),
	SQL_DESC_TYPE_NAME:        stringField(fieldReadOnly, func(r *descRecord) *string { return &r.typeName }),
	SQL_DESC_LOCAL_TYPE_NAME:  stringField(fieldReadOnly, func(r *descRecord) *string { return &r.localTypeName }),
	SQL_DESC_LITERAL_PREFIX:   stringField(fieldReadOnly, func(r *descRecord) *string { return &r.literalPrefix }),
	SQL_DESC_LITERAL_SUFFIX:   stringField(fieldReadOnly, func(r *descRecord) *string { return &r.literalSuffix }),
}

// writable reports whether a field of class c may be written on a
// descriptor of the given kind, and which error a rejected write raises.
func (c fieldClass) writable(kind descKind) error {
	switch kind {
	case descApp:
		return nil
	case descIPD:
		if c == fieldReadOnly {
			return errInvalidDescField
		}
		return nil
	}
	if c == fieldReadOnly || c == fieldMetadata {
		return errInvalidDescField
	}
	return errImplDescModify
}
