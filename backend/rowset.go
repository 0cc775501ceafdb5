package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultBatchSize is the number of rows per record batch of a RowSet.
const DefaultBatchSize = 1024

// RowSetBuilder collects the rows of a result before they are
// materialized into arrow record batches.
type RowSetBuilder struct {
	cols      []Column
	table     string
	mem       memory.Allocator
	batchSize int

	ids  []RowID
	rows [][]any
}

// NewRowSetBuilder returns a builder for a result with columns cols. table
// is the base table of an updatable result, or "".
func NewRowSetBuilder(cols []Column, table string) *RowSetBuilder {
	return &RowSetBuilder{
		cols:      cols,
		table:     table,
		mem:       memory.NewGoAllocator(),
		batchSize: DefaultBatchSize,
	}
}

// Append adds one row. values must have one entry per column.
func (b *RowSetBuilder) Append(id RowID, values []any) {
	b.ids = append(b.ids, id)
	b.rows = append(b.rows, values)
}

// Len is the number of rows appended so far.
func (b *RowSetBuilder) Len() int {
	return len(b.rows)
}

// FirstValue returns the first non-nil value appended for column j.
func (b *RowSetBuilder) FirstValue(j int) any {
	for _, row := range b.rows {
		if j < len(row) && row[j] != nil {
			return row[j]
		}
	}
	return nil
}

// Build materializes the appended rows. The builder must not be reused.
func (b *RowSetBuilder) Build() (*RowSet, error) {
	fields := make([]arrow.Field, len(b.cols))
	for j, col := range b.cols {
		fields[j] = arrow.Field{
			Name:     col.Name,
			Type:     b.fieldType(j),
			Nullable: col.Nullable != NoNulls,
		}
	}
	schema := arrow.NewSchema(fields, nil)

	rs := &RowSet{cols: b.cols, table: b.table, schema: schema, ids: b.ids}
	rb := array.NewRecordBuilder(b.mem, schema)
	defer rb.Release()
	for start := 0; start < len(b.rows); start += b.batchSize {
		end := min(start+b.batchSize, len(b.rows))
		for _, row := range b.rows[start:end] {
			for j := range fields {
				var v any
				if j < len(row) {
					v = row[j]
				}
				if err := appendValue(rb.Field(j), v); err != nil {
					rs.Close()
					return nil, fmt.Errorf("column %q: %w", fields[j].Name, err)
				}
			}
		}
		rs.records = append(rs.records, rb.NewRecord())
		rs.offsets = append(rs.offsets, start)
	}
	rs.total = len(b.rows)
	b.rows = nil
	return rs, nil
}

// fieldType picks the arrow type of column j from its SQL type, falling
// back to the Go types of its values when the SQL type is unknown or the
// values do not fit it.
func (b *RowSetBuilder) fieldType(j int) arrow.DataType {
	dt := sqlArrowType(b.cols[j].SQLType)
	if dt == nil {
		dt = b.inferType(j)
	}
	for _, row := range b.rows {
		if j < len(row) && !fits(dt, row[j]) {
			return arrow.BinaryTypes.String
		}
	}
	return dt
}

func (b *RowSetBuilder) inferType(j int) arrow.DataType {
	switch b.FirstValue(j).(type) {
	case int64:
		return arrow.PrimitiveTypes.Int64
	case float64:
		return arrow.PrimitiveTypes.Float64
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case []byte:
		return arrow.BinaryTypes.Binary
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return arrow.BinaryTypes.String
}

func sqlArrowType(t int16) arrow.DataType {
	switch t {
	case TypeBigint, TypeInteger, TypeSmallint, TypeTinyint:
		return arrow.PrimitiveTypes.Int64
	case TypeReal, TypeDouble:
		return arrow.PrimitiveTypes.Float64
	case TypeBit:
		return arrow.FixedWidthTypes.Boolean
	case TypeBinary, TypeVarbinary, TypeLongVarbinary:
		return arrow.BinaryTypes.Binary
	case TypeDate, TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case TypeChar, TypeVarchar, TypeLongVarchar, TypeNumeric, TypeDecimal, TypeTime, TypeGUID:
		return arrow.BinaryTypes.String
	}
	return nil
}

func fits(dt arrow.DataType, v any) bool {
	if v == nil {
		return true
	}
	switch dt.ID() {
	case arrow.INT64:
		_, ok := v.(int64)
		return ok
	case arrow.FLOAT64:
		switch v.(type) {
		case float64, int64:
			return true
		}
		return false
	case arrow.BOOL:
		switch v.(type) {
		case bool, int64:
			return true
		}
		return false
	case arrow.BINARY:
		switch v.(type) {
		case []byte, string:
			return true
		}
		return false
	case arrow.TIMESTAMP:
		_, ok := v.(time.Time)
		return ok
	}
	return true
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		fb.Append(v.(int64))
	case *array.Float64Builder:
		switch x := v.(type) {
		case float64:
			fb.Append(x)
		case int64:
			fb.Append(float64(x))
		}
	case *array.BooleanBuilder:
		switch x := v.(type) {
		case bool:
			fb.Append(x)
		case int64:
			fb.Append(x != 0)
		}
	case *array.BinaryBuilder:
		switch x := v.(type) {
		case []byte:
			fb.Append(x)
		case string:
			fb.Append([]byte(x))
		}
	case *array.TimestampBuilder:
		fb.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	case *array.StringBuilder:
		switch x := v.(type) {
		case string:
			fb.Append(x)
		case []byte:
			fb.Append(string(x))
		case time.Time:
			fb.Append(x.Format(time.RFC3339Nano))
		default:
			fb.Append(fmt.Sprint(x))
		}
	default:
		return fmt.Errorf("unsupported arrow builder %T", b)
	}
	return nil
}

// RowSet is a ResultSet over rows materialized into arrow record batches.
type RowSet struct {
	cols    []Column
	table   string
	schema  *arrow.Schema
	records []arrow.Record
	// offsets holds the first row of every record.
	offsets []int
	ids     []RowID
	total   int
	next    int
}

func (rs *RowSet) Metadata() []Column {
	return rs.cols
}

func (rs *RowSet) Table() string {
	return rs.table
}

// Schema is the arrow schema of the materialized batches.
func (rs *RowSet) Schema() *arrow.Schema {
	return rs.schema
}

// Len is the number of materialized rows.
func (rs *RowSet) Len() int {
	return rs.total
}

func (rs *RowSet) Move(ctx context.Context, n int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rs.records == nil && rs.total > 0 {
		return nil, fmt.Errorf("result set is closed")
	}
	end := min(rs.next+n, rs.total)
	rows := make([]Row, 0, max(end-rs.next, 0))
	batch := 0
	for i := rs.next; i < end; i++ {
		for batch+1 < len(rs.offsets) && rs.offsets[batch+1] <= i {
			batch++
		}
		rec := rs.records[batch]
		pos := i - rs.offsets[batch]
		values := make([]any, rec.NumCols())
		for j := range values {
			values[j] = valueAt(rec.Column(j), pos)
		}
		row := Row{Values: values}
		if i < len(rs.ids) {
			row.ID = rs.ids[i]
		}
		rows = append(rows, row)
	}
	rs.next = max(end, rs.next)
	return rows, nil
}

func valueAt(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...)
	case *array.String:
		return a.Value(i)
	case *array.Timestamp:
		return time.UnixMicro(int64(a.Value(i))).UTC()
	}
	return col.ValueStr(i)
}

func (rs *RowSet) Close() error {
	for _, rec := range rs.records {
		rec.Release()
	}
	rs.records = nil
	return nil
}
