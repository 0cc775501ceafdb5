package warpdrive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// itemRowset holds the bound buffers of a rowset over items.
type itemRowset struct {
	ids    intCol
	names  charCol
	qtys   intCol
	status Ptr
}

func bindItems(t *testing.T, s *Stmt, rows int) itemRowset {
	t.Helper()
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_ROW_ARRAY_SIZE, rows))
	r := itemRowset{
		ids:    bindInt(t, s, 1, rows),
		names:  bindChar(t, s, 2, 16, rows),
		qtys:   bindInt(t, s, 3, rows),
		status: Alloc(2 * rows),
	}
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_ROW_STATUS_PTR, r.status))
	return r
}

func (r itemRowset) rowStatus(row int) uint16 {
	return r.status.Add(2 * row).Uint16()
}

// put fills buffer row row for an update or insert. The id is left out.
func (r itemRowset) put(row int, name string, qty int64) {
	r.ids.ind.Add(8 * row).PutLen(SQL_COLUMN_IGNORE)
	r.names.set(row, name)
	r.qtys.set(row, qty)
}

const selectItems = `SELECT id, name, qty FROM items ORDER BY id`

func TestSetPosUpdate(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := keysetStmt(t, c, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	r.put(1, "BOLT", 25)
	require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 2, SQL_UPDATE, SQL_LOCK_NO_CHANGE), Records(s))
	require.Equal(t, SQL_ROW_UPDATED, r.rowStatus(1))
	var n int64
	require.Equal(t, SQL_SUCCESS, s.RowCount(&n))
	require.Equal(t, int64(1), n)
	require.Equal(t, [][]string{{"BOLT", "25"}}, queryStrings(t, c, `SELECT name, qty FROM items WHERE id = 2`))

	t.Run("the rowset shows the update", func(t *testing.T) {
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, []uint16{SQL_ROW_SUCCESS, SQL_ROW_UPDATED}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		require.Equal(t, "BOLT", r.names.value(1))
		require.Equal(t, int64(25), r.qtys.value(1))
	})

	t.Run("every row of the rowset but the ignored", func(t *testing.T) {
		ops := Alloc(4)
		ops.PutUint16(SQL_ROW_IGNORE)
		require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_ROW_OPERATION_PTR, ops))
		defer s.SetStmtAttr(SQL_ATTR_ROW_OPERATION_PTR, Ptr{})
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_ABSOLUTE, 3))
		r.put(0, "skipped", 0)
		r.put(1, "DRILL", 44)
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 0, SQL_UPDATE, SQL_LOCK_NO_CHANGE), Records(s))
		require.Equal(t, [][]string{{"crank"}, {"DRILL"}},
			queryStrings(t, c, `SELECT name FROM items WHERE id IN (3, 4) ORDER BY id`))
	})
}

func TestSetPosDelete(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := keysetStmt(t, c, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 1, SQL_DELETE, SQL_LOCK_NO_CHANGE), Records(s))
	require.Equal(t, SQL_ROW_DELETED, r.rowStatus(0))
	require.Equal(t, [][]string{{"2"}, {"3"}, {"4"}, {"5"}}, queryStrings(t, c, `SELECT id FROM items ORDER BY id`))

	t.Run("deleted rows cannot be read", func(t *testing.T) {
		rc := s.GetData(2, SQL_C_CHAR, Alloc(16), 16, Alloc(8))
		requireState(t, s, SQL_ERROR, rc, stateInvalidCursorPos)
	})

	t.Run("deleted rows cannot be deleted again", func(t *testing.T) {
		rc := s.SetPos(context.Background(), 1, SQL_DELETE, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_ERROR, rc, stateInvalidCursorPos)
		require.Equal(t, SQL_ROW_ERROR, r.rowStatus(0))
	})

	t.Run("the keyset keeps the deleted row", func(t *testing.T) {
		r.ids.data.PutInt64(-1)
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, []uint16{SQL_ROW_DELETED, SQL_ROW_SUCCESS}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		require.Equal(t, int64(-1), r.ids.value(0))
		require.Equal(t, int64(2), r.ids.value(1))
	})
}

func TestSetPosAdd(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := keysetStmt(t, c, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	r.put(0, "fuse", 60)
	require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 1, SQL_ADD, SQL_LOCK_NO_CHANGE), Records(s))
	require.Equal(t, SQL_ROW_ADDED, r.rowStatus(0))
	require.Equal(t, [][]string{{"6", "fuse", "60"}}, queryStrings(t, c, `SELECT id, name, qty FROM items WHERE id = 6`))

	require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_LAST, 0))
	require.Equal(t, []uint16{SQL_ROW_SUCCESS, SQL_ROW_ADDED}, []uint16{r.rowStatus(0), r.rowStatus(1)})
	require.Equal(t, int64(6), r.ids.value(1))
	require.Equal(t, "fuse", r.names.value(1))

	t.Run("constraint violations fail the row", func(t *testing.T) {
		r.ids.set(0, 1)
		r.names.set(0, "dup")
		rc := s.SetPos(context.Background(), 1, SQL_ADD, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_ERROR, rc, "23000")
		require.Equal(t, SQL_ROW_ERROR, r.rowStatus(0))
	})
}

func TestSetPosRefresh(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := keysetStmt(t, c, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_ABSOLUTE, 3))
	require.Equal(t, "crank", r.names.value(0))

	execDirect(t, allocStmt(t, c), `UPDATE items SET name = 'winch' WHERE id = 3`)
	execDirect(t, allocStmt(t, c), `DELETE FROM items WHERE id = 4`)

	require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 0, SQL_REFRESH, SQL_LOCK_NO_CHANGE), Records(s))
	require.Equal(t, "winch", r.names.value(0))
	require.Equal(t, SQL_ROW_SUCCESS, r.rowStatus(0))
	require.Equal(t, SQL_ROW_DELETED, r.rowStatus(1))

	t.Run("fetching again sees the refreshed rows", func(t *testing.T) {
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_NEXT, 0))
		require.Equal(t, "winch", r.names.value(0))
		require.Equal(t, SQL_ROW_DELETED, r.rowStatus(1))
	})
}

func TestSetPosConflict(t *testing.T) {
	connStr := tempDatabase(t)
	a := openConn(t, connStr)
	b := openConn(t, connStr)
	seedItems(t, a)

	s := keysetStmt(t, a, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	execDirect(t, allocStmt(t, b), `DELETE FROM items WHERE id = 2`)

	r.put(1, "late", 0)
	rc := s.SetPos(context.Background(), 2, SQL_UPDATE, SQL_LOCK_NO_CHANGE)
	requireState(t, s, SQL_SUCCESS_WITH_INFO, rc, stateCursorOpConflict)
	require.Equal(t, SQL_ROW_SUCCESS_WITH_INFO, r.rowStatus(1))

	require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
	require.Equal(t, SQL_ROW_DELETED, r.rowStatus(1))
	require.Empty(t, queryStrings(t, b, `SELECT id FROM items WHERE name = 'late'`))
}

func TestSetPosTransactions(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	require.Equal(t, SQL_SUCCESS, c.SetConnectAttr(context.Background(), SQL_ATTR_AUTOCOMMIT, SQL_AUTOCOMMIT_OFF))

	s := keysetStmt(t, c, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	t.Run("rollback restores the keyset", func(t *testing.T) {
		r.put(0, "ANVIL", 11)
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 1, SQL_UPDATE, SQL_LOCK_NO_CHANGE), Records(s))
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 2, SQL_DELETE, SQL_LOCK_NO_CHANGE), Records(s))
		r.put(0, "fuse", 60)
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 1, SQL_ADD, SQL_LOCK_NO_CHANGE), Records(s))

		require.Equal(t, SQL_SUCCESS, c.EndTran(context.Background(), SQL_ROLLBACK))

		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, []uint16{SQL_ROW_SUCCESS, SQL_ROW_SUCCESS}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		require.Equal(t, "anvil", r.names.value(0))
		require.Equal(t, int64(10), r.qtys.value(0))
		require.Equal(t, "bolt", r.names.value(1))

		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_LAST, 0))
		require.Equal(t, int64(4), r.ids.value(0))
		require.Equal(t, int64(5), r.ids.value(1))
		require.Equal(t, [][]string{{"5"}}, queryStrings(t, c, `SELECT count(*) FROM items`))
	})

	t.Run("commit keeps the operations", func(t *testing.T) {
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 2, SQL_DELETE, SQL_LOCK_NO_CHANGE), Records(s))
		require.Equal(t, SQL_SUCCESS, c.EndTran(context.Background(), SQL_COMMIT))

		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, SQL_ROW_DELETED, r.rowStatus(1))
		require.Equal(t, SQL_SUCCESS, c.EndTran(context.Background(), SQL_ROLLBACK))
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, SQL_ROW_DELETED, r.rowStatus(1))
		require.Equal(t, [][]string{{"4"}}, queryStrings(t, c, `SELECT count(*) FROM items`))
	})
}

func TestSetPosErrors(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)

	t.Run("read-only cursor", func(t *testing.T) {
		s := allocStmt(t, c)
		require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_CURSOR_TYPE, SQL_CURSOR_STATIC))
		bindItems(t, s, 1)
		require.Equal(t, SQL_SUCCESS, s.ExecDirect(context.Background(), selectItems))
		require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))
		rc := s.SetPos(context.Background(), 1, SQL_UPDATE, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_ERROR, rc, stateInvalidAttribute)
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 1, SQL_REFRESH, SQL_LOCK_NO_CHANGE), Records(s))
	})

	s := keysetStmt(t, c, selectItems)
	bindItems(t, s, 2)

	t.Run("nothing fetched", func(t *testing.T) {
		rc := s.SetPos(context.Background(), 1, SQL_UPDATE, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_ERROR, rc, stateInvalidCursorState)
	})

	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	tests := []struct {
		name  string
		irow  uint64
		op    int16
		lock  int16
		state string
	}{
		{"row past the rowset", 3, SQL_POSITION, SQL_LOCK_NO_CHANGE, stateRowRange},
		{"position on row 0", 0, SQL_POSITION, SQL_LOCK_NO_CHANGE, stateInvalidCursorPos},
		{"locking", 1, SQL_POSITION, SQL_LOCK_EXCLUSIVE, stateNotImplemented},
		{"unknown operation", 1, 9, SQL_LOCK_NO_CHANGE, stateInvalidAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := s.SetPos(context.Background(), tt.irow, tt.op, tt.lock)
			requireState(t, s, SQL_ERROR, rc, tt.state)
		})
	}

	t.Run("bulk operations need bookmarks", func(t *testing.T) {
		rc := s.BulkOperations(context.Background(), SQL_DELETE_BY_BOOKMARK)
		requireState(t, s, SQL_ERROR, rc, stateInvalidAttribute)
	})
}

func TestBulkOperations(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := allocStmt(t, c)
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_CURSOR_TYPE, SQL_CURSOR_KEYSET_DRIVEN))
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_CONCURRENCY, SQL_CONCUR_ROWVER))
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_USE_BOOKMARKS, SQL_UB_FIXED))
	r := bindItems(t, s, 2)
	bm := Alloc(8)
	require.Equal(t, SQL_SUCCESS, s.BindCol(0, SQL_C_BOOKMARK, bm, 4, Alloc(16)))
	processed := Alloc(8)
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_ROWS_FETCHED_PTR, processed))
	require.Equal(t, SQL_SUCCESS, s.ExecDirect(context.Background(), selectItems))
	require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_LAST, 0))
	require.Equal(t, []uint32{4, 5}, []uint32{bm.Uint32(), bm.Add(4).Uint32()})

	setBookmarks := func(a, b uint32) {
		bm.PutUint32(a)
		bm.Add(4).PutUint32(b)
	}

	t.Run("update by bookmark", func(t *testing.T) {
		setBookmarks(1, 3)
		r.put(0, "ANVIL", 11)
		r.put(1, "CRANK", 33)
		require.Equal(t, SQL_SUCCESS, s.BulkOperations(context.Background(), SQL_UPDATE_BY_BOOKMARK), Records(s))
		require.Equal(t, []uint16{SQL_ROW_UPDATED, SQL_ROW_UPDATED}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		require.Equal(t, uint64(2), processed.Uint64())
		require.Equal(t, [][]string{{"ANVIL", "11"}, {"CRANK", "33"}},
			queryStrings(t, c, `SELECT name, qty FROM items WHERE id IN (1, 3) ORDER BY id`))
	})

	t.Run("fetch by bookmark", func(t *testing.T) {
		setBookmarks(3, 2)
		require.Equal(t, SQL_SUCCESS, s.BulkOperations(context.Background(), SQL_FETCH_BY_BOOKMARK), Records(s))
		require.Equal(t, []int64{3, 2}, []int64{r.ids.value(0), r.ids.value(1)})
		require.Equal(t, "CRANK", r.names.value(0))
		require.Equal(t, []uint16{SQL_ROW_UPDATED, SQL_ROW_SUCCESS}, []uint16{r.rowStatus(0), r.rowStatus(1)})
	})

	t.Run("delete by bookmark", func(t *testing.T) {
		setBookmarks(2, 4)
		require.Equal(t, SQL_SUCCESS, s.BulkOperations(context.Background(), SQL_DELETE_BY_BOOKMARK), Records(s))
		require.Equal(t, []uint16{SQL_ROW_DELETED, SQL_ROW_DELETED}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		var n int64
		require.Equal(t, SQL_SUCCESS, s.RowCount(&n))
		require.Equal(t, int64(2), n)
		require.Equal(t, [][]string{{"1"}, {"3"}, {"5"}}, queryStrings(t, c, `SELECT id FROM items ORDER BY id`))
	})

	t.Run("add", func(t *testing.T) {
		r.put(0, "fuse", 60)
		r.put(1, "gear", 70)
		require.Equal(t, SQL_SUCCESS, s.BulkOperations(context.Background(), SQL_ADD), Records(s))
		require.Equal(t, []uint16{SQL_ROW_ADDED, SQL_ROW_ADDED}, []uint16{r.rowStatus(0), r.rowStatus(1)})
		require.Equal(t, [][]string{{"fuse"}, {"gear"}}, queryStrings(t, c, `SELECT name FROM items WHERE id > 5 ORDER BY id`))

		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_LAST, 0))
		require.Equal(t, []int64{6, 7}, []int64{r.ids.value(0), r.ids.value(1)})
		require.Equal(t, []uint32{6, 7}, []uint32{bm.Uint32(), bm.Add(4).Uint32()})
	})

	t.Run("a bad bookmark fails its row", func(t *testing.T) {
		setBookmarks(1, 99)
		r.put(0, "anvil", 1)
		r.put(1, "ghost", 2)
		rc := s.BulkOperations(context.Background(), SQL_UPDATE_BY_BOOKMARK)
		requireState(t, s, SQL_ERROR, rc, stateRowRange)
		require.Equal(t, SQL_ROW_ERROR, r.rowStatus(1))
		require.Equal(t, [][]string{{"ANVIL"}}, queryStrings(t, c, `SELECT name FROM items WHERE id = 1`))
	})
}

func TestSetPosWideRowID(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	execDirect(t, allocStmt(t, c), `INSERT INTO items VALUES (281474976710661, 'target', 2)`)

	s := keysetStmt(t, c, `SELECT id, name, qty FROM items WHERE id > 4 ORDER BY id`)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))
	require.Equal(t, int64(281474976710661), r.ids.value(1))

	r.put(1, "CHANGED", 99)
	require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 2, SQL_UPDATE, SQL_LOCK_NO_CHANGE), Records(s))
	require.Equal(t, [][]string{{"5", "epoxy", "50"}, {"281474976710661", "CHANGED", "99"}},
		queryStrings(t, c, `SELECT id, name, qty FROM items WHERE id > 4 ORDER BY id`))
}

func TestSetPosStaleValues(t *testing.T) {
	connStr := tempDatabase(t)
	a := openConn(t, connStr)
	b := openConn(t, connStr)
	seedItems(t, a)

	s := keysetStmt(t, a, selectItems)
	r := bindItems(t, s, 2)
	require.Equal(t, SQL_SUCCESS, s.Fetch(context.Background()))

	execDirect(t, allocStmt(t, b), `UPDATE items SET qty = 21 WHERE id = 2`)

	t.Run("update", func(t *testing.T) {
		r.put(1, "late", 20)
		rc := s.SetPos(context.Background(), 2, SQL_UPDATE, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_SUCCESS_WITH_INFO, rc, stateCursorOpConflict)
		require.Equal(t, SQL_ROW_SUCCESS_WITH_INFO, r.rowStatus(1))
		require.Equal(t, [][]string{{"bolt", "21"}}, queryStrings(t, b, `SELECT name, qty FROM items WHERE id = 2`))
	})

	t.Run("the row is refreshed", func(t *testing.T) {
		require.Equal(t, SQL_SUCCESS, s.FetchScroll(context.Background(), SQL_FETCH_FIRST, 0))
		require.Equal(t, "bolt", r.names.value(1))
		require.Equal(t, int64(21), r.qtys.value(1))

		r.put(1, "BOLT", 22)
		require.Equal(t, SQL_SUCCESS, s.SetPos(context.Background(), 2, SQL_UPDATE, SQL_LOCK_NO_CHANGE), Records(s))
		require.Equal(t, [][]string{{"BOLT", "22"}}, queryStrings(t, b, `SELECT name, qty FROM items WHERE id = 2`))
	})

	t.Run("delete", func(t *testing.T) {
		execDirect(t, allocStmt(t, b), `UPDATE items SET name = 'ANVIL' WHERE id = 1`)
		rc := s.SetPos(context.Background(), 1, SQL_DELETE, SQL_LOCK_NO_CHANGE)
		requireState(t, s, SQL_SUCCESS_WITH_INFO, rc, stateCursorOpConflict)
		require.Equal(t, [][]string{{"5"}}, queryStrings(t, b, `SELECT count(*) FROM items`))
	})
}
