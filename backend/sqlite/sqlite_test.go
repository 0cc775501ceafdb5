package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/warpdrive/go-warpdrive/backend"
)

func openTest(t *testing.T) *Conn {
	t.Helper()
	bc, err := Open(context.Background(), backend.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, bc.Close()) })
	c := bc.(*Conn)
	_, err = c.DB().Exec(`CREATE TABLE parts (id INTEGER PRIMARY KEY, label VARCHAR(20) NOT NULL, price DECIMAL(8,2), made TIMESTAMP)`)
	require.NoError(t, err)
	_, err = c.DB().Exec(`INSERT INTO parts (id, label, price) VALUES (1, 'gear', 2.5), (2, 'cog', 1.25), (70000, 'far', 0)`)
	require.NoError(t, err)
	return c
}

func TestKeysetQuery(t *testing.T) {
	tests := []struct {
		query     string
		table     string
		rewritten string
	}{
		{`SELECT id, label FROM parts`, "parts", `SELECT rowid AS "__warpdrive_rowid", id, label FROM parts`},
		{`select * from "parts" where id > 1 order by id`, "parts", `SELECT rowid AS "__warpdrive_rowid", * FROM "parts" where id > 1 order by id`},
		{`SELECT label FROM parts ORDER BY label;`, "parts", `SELECT rowid AS "__warpdrive_rowid", label FROM parts ORDER BY label;`},
		{`SELECT a.id FROM parts a JOIN parts b ON a.id = b.id`, "", ""},
		{`SELECT DISTINCT label FROM parts`, "", ""},
		{`SELECT count(*) FROM parts GROUP BY label`, "", ""},
		{`SELECT 1`, "", ""},
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

func TestDSN(t *testing.T) {
	require.Equal(t, ":memory:", dsn(backend.Options{}))
	require.Equal(t, "shop.db?_busy_timeout=5000", dsn(backend.Options{
		Database:   "shop.db",
		Properties: map[string]string{"_busy_timeout": "5000", "sslmode": "disable"},
	}))
	require.Equal(t, "file:shop.db?mode=ro&_fk=1", dsn(backend.Options{
		Database:   "file:shop.db?mode=ro",
		Properties: map[string]string{"_fk": "1"},
	}))
}

func TestExecute(t *testing.T) {
	c := openTest(t)
	bs, err := c.NewStatement(context.Background())
	require.NoError(t, err)
	defer bs.Close()

	t.Run("keyset result", func(t *testing.T) {
		err := bs.Execute(context.Background(), `SELECT id, label, price, made FROM parts ORDER BY id`, nil, backend.ExecOptions{Keyset: true})
		require.NoError(t, err)
		rs := bs.ResultSet()
		require.NotNil(t, rs)
		defer rs.Close()
		require.Nil(t, bs.ResultSet())
		require.Equal(t, "parts", rs.Table())

		cols := rs.Metadata()
		require.Len(t, cols, 4)
		require.Equal(t, backend.TypeInteger, cols[0].SQLType)
		require.Equal(t, backend.TypeVarchar, cols[1].SQLType)
		require.Equal(t, int64(20), cols[1].Length)
		require.Equal(t, backend.Writable, cols[1].Updatable)
		require.Equal(t, backend.TypeDecimal, cols[2].SQLType)
		require.Equal(t, int16(8), cols[2].Precision)
		require.Equal(t, int16(2), cols[2].Scale)
		require.Equal(t, backend.TypeTimestamp, cols[3].SQLType)

		rows, err := rs.Move(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, int64(1), rows[0].Values[0])
		require.Equal(t, "gear", rows[0].Values[1])
		require.Nil(t, rows[0].Values[3])

		root, err := c.rootPage(context.Background(), "parts")
		require.NoError(t, err)
		require.Equal(t, backend.RowID{Key: 1, OID: root}, rows[0].ID)
		require.Equal(t, backend.RowID{Key: 70000, OID: root}, rows[2].ID)
		require.Equal(t, int64(70000), rowid(rows[2].ID))
	})

	t.Run("plain result", func(t *testing.T) {
		err := bs.Execute(context.Background(), `SELECT label, 1 + 1 AS two FROM parts WHERE id = ?`, []any{int64(2)}, backend.ExecOptions{})
		require.NoError(t, err)
		rs := bs.ResultSet()
		defer rs.Close()
		require.Empty(t, rs.Table())
		cols := rs.Metadata()
		require.Equal(t, backend.ReadOnly, cols[0].Updatable)
		require.Equal(t, backend.TypeBigint, cols[1].SQLType)
		rows, err := rs.Move(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.True(t, rows[0].ID.IsZero())
		require.Equal(t, []any{"cog", int64(2)}, rows[0].Values)
	})

	t.Run("row limit", func(t *testing.T) {
		require.NoError(t, bs.SetAttribute(backend.AttrMaxRows, int64(2)))
		defer bs.SetAttribute(backend.AttrMaxRows, int64(0))
		require.NoError(t, bs.Execute(context.Background(), `SELECT id FROM parts`, nil, backend.ExecOptions{}))
		rs := bs.ResultSet()
		defer rs.Close()
		rows, err := rs.Move(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
	})

	t.Run("update count", func(t *testing.T) {
		require.NoError(t, bs.Execute(context.Background(), `UPDATE parts SET price = price * 2 WHERE id < 3`, nil, backend.ExecOptions{}))
		require.Nil(t, bs.ResultSet())
		require.Equal(t, int64(2), bs.UpdateCount())
	})

	t.Run("constraint violation", func(t *testing.T) {
		err := bs.Execute(context.Background(), `INSERT INTO parts (id, label) VALUES (1, 'again')`, nil, backend.ExecOptions{})
		var be *backend.Error
		require.True(t, errors.As(err, &be))
		require.Equal(t, "23000", be.SQLState)
		require.Equal(t, int32(sqlite3.ErrConstraintPrimaryKey), be.Native)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := bs.Execute(ctx, `SELECT id FROM parts`, nil, backend.ExecOptions{})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestMutate(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	root, err := c.rootPage(ctx, "parts")
	require.NoError(t, err)
	id := func(n int64) backend.RowID {
		return backend.RowID{Key: n, OID: root}
	}
	returning := []string{"id", "label", "price"}

	t.Run("update", func(t *testing.T) {
		res, err := c.Mutate(ctx, backend.Mutation{
			Kind:      backend.MutationUpdate,
			Table:     "parts",
			Target:    id(2),
			Columns:   []string{"label"},
			Values:    []any{"sprocket"},
			Returning: returning,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Affected)
		require.Equal(t, id(2), res.Row.ID)
		require.Equal(t, []any{int64(2), "sprocket", 1.25}, res.Row.Values)
	})

	t.Run("update of a missing row", func(t *testing.T) {
		res, err := c.Mutate(ctx, backend.Mutation{
			Kind:      backend.MutationUpdate,
			Table:     "parts",
			Target:    id(99),
			Columns:   []string{"label"},
			Values:    []any{"ghost"},
			Returning: returning,
		})
		require.NoError(t, err)
		require.Zero(t, res.Affected)
		require.Nil(t, res.Row)
	})

	t.Run("insert", func(t *testing.T) {
		res, err := c.Mutate(ctx, backend.Mutation{
			Kind:      backend.MutationInsert,
			Table:     "parts",
			Columns:   []string{"label", "price"},
			Values:    []any{"axle", 4.5},
			Returning: returning,
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Affected)
		require.Equal(t, id(70001), res.Row.ID)
		require.Equal(t, []any{int64(70001), "axle", 4.5}, res.Row.Values)
	})

	t.Run("delete", func(t *testing.T) {
		res, err := c.Mutate(ctx, backend.Mutation{Kind: backend.MutationDelete, Table: "parts", Target: id(1)})
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Affected)
		row, err := c.Reread(ctx, "parts", id(1), returning)
		require.NoError(t, err)
		require.Nil(t, row)
	})

	t.Run("rowids beyond 48 bits", func(t *testing.T) {
		for _, n := range []int64{1<<48 + 1, -1 << 40} {
			res, err := c.Mutate(ctx, backend.Mutation{
				Kind:      backend.MutationInsert,
				Table:     "parts",
				Columns:   []string{"id", "label"},
				Values:    []any{n, "wide"},
				Returning: returning,
			})
			require.NoError(t, err)
			require.Equal(t, id(n), res.Row.ID)

			res, err = c.Mutate(ctx, backend.Mutation{
				Kind:    backend.MutationUpdate,
				Table:   "parts",
				Target:  id(n),
				Columns: []string{"label"},
				Values:  []any{"narrow"},
			})
			require.NoError(t, err)
			require.Equal(t, int64(1), res.Affected)
		}
		var labels []string
		require.NoError(t, c.DB().Select(&labels, `SELECT label FROM parts WHERE id = 1 OR label = 'narrow' ORDER BY id`))
		require.Equal(t, []string{"narrow", "narrow"}, labels)
	})

	t.Run("stale expectations", func(t *testing.T) {
		m := backend.Mutation{
			Kind:          backend.MutationUpdate,
			Table:         "parts",
			Target:        id(70001),
			Columns:       []string{"label"},
			Values:        []any{"shaft"},
			ExpectColumns: []string{"label", "price"},
			Expect:        []any{"axle", 9.0},
		}
		res, err := c.Mutate(ctx, m)
		require.NoError(t, err)
		require.Zero(t, res.Affected)

		m.Expect = []any{"axle", 4.5}
		res, err = c.Mutate(ctx, m)
		require.NoError(t, err)
		require.Equal(t, int64(1), res.Affected)

		res, err = c.Mutate(ctx, backend.Mutation{
			Kind:          backend.MutationDelete,
			Table:         "parts",
			Target:        id(70001),
			ExpectColumns: []string{"label"},
			Expect:        []any{"axle"},
		})
		require.NoError(t, err)
		require.Zero(t, res.Affected)
	})

	t.Run("transaction outlives its context", func(t *testing.T) {
		call, cancel := context.WithCancel(ctx)
		require.NoError(t, c.Begin(call))
		cancel()
		_, err := c.Mutate(ctx, backend.Mutation{
			Kind:    backend.MutationUpdate,
			Table:   "parts",
			Target:  id(70001),
			Columns: []string{"label"},
			Values:  []any{"spindle"},
		})
		require.NoError(t, err)
		require.NoError(t, c.Commit(ctx))
		row, err := c.Reread(ctx, "parts", id(70001), []string{"label"})
		require.NoError(t, err)
		require.Equal(t, []any{"spindle"}, row.Values)
	})

	t.Run("transactions", func(t *testing.T) {
		require.NoError(t, c.Begin(ctx))
		require.Error(t, c.Begin(ctx))
		_, err := c.Mutate(ctx, backend.Mutation{Kind: backend.MutationDelete, Table: "parts", Target: id(2)})
		require.NoError(t, err)
		require.NoError(t, c.Rollback(ctx))
		row, err := c.Reread(ctx, "parts", id(2), []string{"label"})
		require.NoError(t, err)
		require.Equal(t, []any{"sprocket"}, row.Values)
		require.NoError(t, c.Commit(ctx))
	})
}
