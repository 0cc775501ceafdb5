package postgres

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/warpdrive/go-warpdrive/backend"
)

func TestKeysetQuery(t *testing.T) {
	tests := []struct {
		query     string
		table     string
		rewritten string
	}{
		{`SELECT id, label FROM parts`, "parts", `SELECT ctid, tableoid, id, label FROM parts`},
		{`select * from shop.parts where id > $1 order by id`, "shop.parts", `SELECT ctid, tableoid, * FROM shop.parts where id > $1 order by id`},
		{`SELECT label FROM parts FOR UPDATE`, "parts", `SELECT ctid, tableoid, label FROM parts FOR UPDATE`},
		{`SELECT a.id FROM parts a JOIN parts b ON a.id = b.id`, "", ""},
		{`SELECT label FROM parts UNION SELECT label FROM bins`, "", ""},
		{`SELECT now()`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			table, rewritten, ok := keysetQuery(tt.query)
			require.Equal(t, tt.table != "", ok)
			require.Equal(t, tt.table, table)
			require.Equal(t, tt.rewritten, rewritten)
		})
	}
}

func TestDescribe(t *testing.T) {
	col := describe(pgconn.FieldDescription{Name: "price", TableOID: 1234, DataTypeOID: pgtype.NumericOID, TypeModifier: (8<<16 | 2) + 4}, "parts")
	require.Equal(t, backend.TypeNumeric, col.SQLType)
	require.Equal(t, int16(8), col.Precision)
	require.Equal(t, int16(2), col.Scale)
	require.Equal(t, backend.Writable, col.Updatable)

	col = describe(pgconn.FieldDescription{Name: "label", DataTypeOID: pgtype.VarcharOID, TypeModifier: 24}, "parts")
	require.Equal(t, backend.TypeVarchar, col.SQLType)
	require.Equal(t, int64(20), col.Length)
	require.Equal(t, backend.ReadOnly, col.Updatable)

	col = describe(pgconn.FieldDescription{Name: "code", DataTypeOID: pgtype.BPCharOID, TypeModifier: -1}, "")
	require.Equal(t, int64(1), col.Length)

	col = describe(pgconn.FieldDescription{Name: "shape", DataTypeOID: 600}, "")
	require.Equal(t, "unknown", col.TypeName)
}

func TestNormalize(t *testing.T) {
	at := time.Date(2024, 5, 17, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int2", int16(7), int64(7)},
		{"oid", uint32(16384), int64(16384)},
		{"float4", float32(0.5), 0.5},
		{"timestamptz", at, at.UTC()},
		{"uuid", [16]byte{0x12, 0x34}, "12340000-0000-0000-0000-000000000000"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, "123.45"},
		{"small numeric", pgtype.Numeric{Int: big.NewInt(-5), Exp: -3, Valid: true}, "-0.005"},
		{"scaled numeric", pgtype.Numeric{Int: big.NewInt(12), Exp: 2, Valid: true}, "1200"},
		{"nan", pgtype.Numeric{NaN: true, Valid: true}, "NaN"},
		{"null numeric", pgtype.Numeric{}, nil},
		{"time", pgtype.Time{Microseconds: (9*3600 + 5) * 1e6, Valid: true}, "09:00:05"},
		{"text", "gear", "gear"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalize(tt.in))
		})
	}
}

func TestIdentified(t *testing.T) {
	row := identified([]any{pgtype.TID{BlockNumber: 3, OffsetNumber: 9, Valid: true}, uint32(16384), int32(1), "gear"})
	require.Equal(t, backend.RowID{Block: 3, Offset: 9, OID: 16384}, row.ID)
	require.Equal(t, []any{int64(1), "gear"}, row.Values)
	require.Equal(t, `"shop"."parts"`, quoteName("shop.parts"))
	require.Equal(t, `"id", "Label"`, quoteAll([]string{"id", "Label"}))
}

func TestQualify(t *testing.T) {
	target := backend.RowID{Block: 3, Offset: 9, OID: 16384}
	where, args := qualify(backend.Mutation{
		Target:        target,
		ExpectColumns: []string{"label", "made", "price"},
		Expect:        []any{"gear", time.Now(), nil},
	}, 2)
	require.Equal(t, `ctid = $3 AND tableoid = $4 AND "label" IS NOT DISTINCT FROM $5 AND "price" IS NOT DISTINCT FROM $6`, where)
	require.Equal(t, []any{tid(target), uint32(16384), "gear", nil}, args)
}

func TestTranslate(t *testing.T) {
	require.NoError(t, translate(nil))
	err := translate(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	var be *backend.Error
	require.True(t, errors.As(err, &be))
	require.Equal(t, "23505", be.SQLState)
	plain := errors.New("conn closed")
	require.Equal(t, plain, translate(plain))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, interrupted(ctx, plain), context.Canceled)
}

// openServer connects to the server named by WARPDRIVE_PG_DSN.
func openServer(t *testing.T) *Conn {
	t.Helper()
	dsn := os.Getenv("WARPDRIVE_PG_DSN")
	if dsn == "" {
		t.Skip("WARPDRIVE_PG_DSN not set")
	}
	ctx := context.Background()
	bc, err := Open(ctx, backend.Options{Database: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, bc.Close()) })
	c := bc.(*Conn)
	_, err = c.q().Exec(ctx, `CREATE TEMP TABLE parts (id int4 PRIMARY KEY, label varchar(20) NOT NULL, price numeric(8,2))`)
	require.NoError(t, err)
	_, err = c.q().Exec(ctx, `INSERT INTO parts VALUES (1, 'gear', 2.50), (2, 'cog', 1.25)`)
	require.NoError(t, err)
	return c
}

func TestServer(t *testing.T) {
	c := openServer(t)
	ctx := context.Background()
	bs, err := c.NewStatement(ctx)
	require.NoError(t, err)
	defer bs.Close()

	require.NoError(t, bs.Execute(ctx, `SELECT id, label, price FROM parts WHERE id > ? ORDER BY id`, []any{int64(0)}, backend.ExecOptions{Keyset: true}))
	rs := bs.ResultSet()
	require.NotNil(t, rs)
	defer rs.Close()
	require.Equal(t, "parts", rs.Table())
	rows, err := rs.Move(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(1), "gear", "2.50"}, rows[0].Values)
	require.NotZero(t, rows[0].ID.OID)

	t.Run("update in a transaction", func(t *testing.T) {
		require.NoError(t, c.Begin(ctx))
		res, err := c.Mutate(ctx, backend.Mutation{
			Kind:      backend.MutationUpdate,
			Table:     "parts",
			Target:    rows[1].ID,
			Columns:   []string{"label"},
			Values:    []any{"sprocket"},
			Returning: []string{"label"},
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Affected)
		require.Equal(t, []any{"sprocket"}, res.Row.Values)
		require.NoError(t, c.Rollback(ctx))

		row, err := c.Reread(ctx, "parts", rows[1].ID, []string{"label"})
		require.NoError(t, err)
		require.Equal(t, []any{"cog"}, row.Values)
	})

	t.Run("unique violation", func(t *testing.T) {
		err := bs.Execute(ctx, `INSERT INTO parts VALUES (1, 'again', 0)`, nil, backend.ExecOptions{})
		var be *backend.Error
		require.True(t, errors.As(err, &be))
		require.Equal(t, "23505", be.SQLState)
	})
}
