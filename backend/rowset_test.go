package backend

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"
)

func testColumns() []Column {
	return []Column{
		{Name: "id", SQLType: TypeInteger, Nullable: NoNulls},
		{Name: "name", SQLType: TypeVarchar, Nullable: Nullable},
		{Name: "price", SQLType: TypeDouble, Nullable: Nullable},
		{Name: "made", SQLType: TypeTimestamp, Nullable: Nullable},
		{Name: "blob", SQLType: TypeVarbinary, Nullable: Nullable},
		{Name: "expr"},
	}
}

func TestRowSetBuilder(t *testing.T) {
	made := time.Date(2024, 5, 17, 9, 30, 0, 123000, time.UTC)
	b := NewRowSetBuilder(testColumns(), "items")
	b.batchSize = 2
	for i := int64(1); i <= 5; i++ {
		b.Append(RowID{Block: 0, Offset: uint16(i), OID: 7}, []any{i, "n", float64(i) / 2, made, []byte{byte(i)}, true})
	}
	b.Append(RowID{}, []any{int64(6), nil, int64(3), nil, nil, nil})
	require.Equal(t, 6, b.Len())
	require.Equal(t, true, b.FirstValue(5))

	rs, err := b.Build()
	require.NoError(t, err)
	defer rs.Close()
	require.Equal(t, 6, rs.Len())
	require.Equal(t, "items", rs.Table())
	require.Len(t, rs.records, 3)

	t.Run("schema", func(t *testing.T) {
		schema := rs.Schema()
		require.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
		require.False(t, schema.Field(0).Nullable)
		require.Equal(t, arrow.BinaryTypes.String, schema.Field(1).Type)
		require.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(2).Type)
		require.Equal(t, arrow.FixedWidthTypes.Timestamp_us, schema.Field(3).Type)
		require.Equal(t, arrow.BinaryTypes.Binary, schema.Field(4).Type)
		require.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(5).Type)
	})

	t.Run("move across batches", func(t *testing.T) {
		rows, err := rs.Move(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, []any{int64(1), "n", 0.5, made, []byte{1}, true}, rows[0].Values)
		require.Equal(t, RowID{Offset: 3, OID: 7}, rows[2].ID)

		rows, err = rs.Move(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, []any{int64(6), nil, float64(3), nil, nil, nil}, rows[2].Values)
		require.True(t, rows[2].ID.IsZero())

		rows, err = rs.Move(context.Background(), 1)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := rs.Move(ctx, 1)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, rs.Close())
		_, err := rs.Move(context.Background(), 1)
		require.Error(t, err)
	})
}

func TestRowSetTypeFallback(t *testing.T) {
	cols := []Column{{Name: "n", SQLType: TypeInteger, Nullable: Nullable}}
	b := NewRowSetBuilder(cols, "")
	b.Append(RowID{}, []any{int64(1)})
	b.Append(RowID{}, []any{"two"})
	rs, err := b.Build()
	require.NoError(t, err)
	defer rs.Close()

	require.Equal(t, arrow.BinaryTypes.String, rs.Schema().Field(0).Type)
	rows, err := rs.Move(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "1", rows[0].Values[0])
	require.Equal(t, "two", rows[1].Values[0])
}

func TestEmptyRowSet(t *testing.T) {
	rs, err := NewRowSetBuilder(testColumns(), "").Build()
	require.NoError(t, err)
	defer rs.Close()
	rows, err := rs.Move(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Len(t, rs.Metadata(), 6)
}

func TestAttrs(t *testing.T) {
	var a Attrs
	require.NoError(t, a.Set(AttrQueryTimeout, int64(30)))
	require.NoError(t, a.Set(AttrMaxRows, int64(10)))
	require.NoError(t, a.Set(AttrNoScan, int64(1)))
	require.Error(t, a.Set(AttrMaxLength, "ten"))
	require.Error(t, a.Set(Attr(99), int64(1)))

	v, err := a.Get(AttrQueryTimeout)
	require.NoError(t, err)
	require.Equal(t, int64(30), v)
	require.Equal(t, 30*time.Second, a.QueryTimeout)
	require.True(t, a.NoScan)
	_, err = a.Get(Attr(99))
	require.Error(t, err)

	require.Equal(t, int64(10), a.Limit(ExecOptions{}))
	require.Equal(t, int64(4), a.Limit(ExecOptions{MaxRows: 4}))
	require.Equal(t, int64(10), a.Limit(ExecOptions{MaxRows: 40}))
}

func TestRowIDAndError(t *testing.T) {
	require.True(t, RowID{}.IsZero())
	require.Equal(t, "(3,17)", RowID{Block: 3, Offset: 17, OID: 9}.String())
	require.Equal(t, "(281474976710661)", RowID{Key: 1<<48 + 5, OID: 9}.String())

	err := &Error{SQLState: "23000", Native: 2067, Msg: "UNIQUE constraint failed"}
	require.Equal(t, "[23000] UNIQUE constraint failed", err.Error())
	require.Equal(t, "disk full", (&Error{Msg: "disk full"}).Error())
	require.Equal(t, "insert", MutationInsert.String())
}
