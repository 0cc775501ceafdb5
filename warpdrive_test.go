package warpdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warpdrive/go-warpdrive/backend/sqlite"
)

func newTestDriver() *Driver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDriver(WithLogger(logger), WithBackend("sqlite3", sqlite.Open))
}

// openConn connects to a private in-memory SQLite database unless connStr
// names another one.
func openConn(t *testing.T, connStr string) *Conn {
	t.Helper()
	env := newTestDriver().AllocEnv()
	c, rc := env.AllocConnect()
	require.Equal(t, SQL_SUCCESS, rc)
	if connStr == "" {
		connStr = "backend=sqlite3"
	}
	rc = c.DriverConnect(context.Background(), connStr)
	require.Equal(t, SQL_SUCCESS, rc, Records(c))
	t.Cleanup(func() {
		FreeHandle(SQL_HANDLE_DBC, c)
		FreeHandle(SQL_HANDLE_ENV, env)
	})
	return c
}

// tempDatabase returns the connection string of a database file shared by
// every connection opened on it.
func tempDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warpdrive.db")
	return fmt.Sprintf("backend=sqlite3;database=%s;_busy_timeout=5000", path)
}

func allocStmt(t *testing.T, c *Conn) *Stmt {
	t.Helper()
	s, rc := c.AllocStmt()
	require.Equal(t, SQL_SUCCESS, rc, Records(c))
	return s
}

func execDirect(t *testing.T, s *Stmt, query string) {
	t.Helper()
	rc := s.ExecDirect(context.Background(), query)
	require.True(t, Succeeded(rc), "%s: %v", query, Records(s))
	require.Equal(t, SQL_SUCCESS, s.FreeStmt(SQL_CLOSE))
}

// requireState asserts the return code of a call and that the ledger of h
// holds a record with the given SQLSTATE.
func requireState(t *testing.T, h Handle, want, got SQLRETURN, state string) {
	t.Helper()
	require.Equal(t, want, got, Records(h))
	states := make([]string, 0)
	for _, r := range Records(h) {
		states = append(states, r.SQLState)
	}
	require.True(t, slices.Contains(states, state), "want %s in %v", state, states)
}

// seedItems creates the items table used by the cursor tests.
func seedItems(t *testing.T, c *Conn) {
	t.Helper()
	s := allocStmt(t, c)
	defer FreeHandle(SQL_HANDLE_STMT, s)
	execDirect(t, s, `CREATE TABLE items (id INTEGER PRIMARY KEY, name VARCHAR(32), qty INTEGER)`)
	execDirect(t, s, `INSERT INTO items (id, name, qty) VALUES (1, 'anvil', 10), (2, 'bolt', 20), (3, 'crank', 30), (4, 'drill', 40), (5, 'epoxy', 50)`)
}

// keysetStmt opens an updatable keyset-driven cursor over items.
func keysetStmt(t *testing.T, c *Conn, query string) *Stmt {
	t.Helper()
	s := allocStmt(t, c)
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_CURSOR_TYPE, SQL_CURSOR_KEYSET_DRIVEN))
	require.Equal(t, SQL_SUCCESS, s.SetStmtAttr(SQL_ATTR_CONCURRENCY, SQL_CONCUR_ROWVER))
	rc := s.ExecDirect(context.Background(), query)
	require.Equal(t, SQL_SUCCESS, rc, Records(s))
	return s
}

// charCol is a bound SQL_C_CHAR column buffer with its indicator.
type charCol struct {
	data Ptr
	ind  Ptr
	size int
}

func bindChar(t *testing.T, s *Stmt, col uint16, size, rows int) charCol {
	t.Helper()
	b := charCol{data: Alloc(size * rows), ind: Alloc(8 * rows), size: size}
	rc := s.BindCol(col, SQL_C_CHAR, b.data, int64(size), b.ind)
	require.Equal(t, SQL_SUCCESS, rc, Records(s))
	return b
}

func (b charCol) value(row int) string {
	return string(b.data.Add(row * b.size).cstring(b.size))
}

func (b charCol) set(row int, v string) {
	buf := b.data.Add(row * b.size).Bytes(b.size)
	clear(buf)
	copy(buf, v)
	b.ind.Add(8 * row).PutLen(SQL_NTS)
}

func (b charCol) indicator(row int) int64 {
	return b.ind.Add(8 * row).Len()
}

// intCol is a bound SQL_C_SBIGINT column buffer.
type intCol struct {
	data Ptr
	ind  Ptr
}

func bindInt(t *testing.T, s *Stmt, col uint16, rows int) intCol {
	t.Helper()
	b := intCol{data: Alloc(8 * rows), ind: Alloc(8 * rows)}
	rc := s.BindCol(col, SQL_C_SBIGINT, b.data, 8, b.ind)
	require.Equal(t, SQL_SUCCESS, rc, Records(s))
	return b
}

func (b intCol) value(row int) int64 {
	return b.data.Add(8 * row).Int64()
}

func (b intCol) set(row int, v int64) {
	b.data.Add(8 * row).PutInt64(v)
	b.ind.Add(8 * row).PutLen(8)
}

// queryStrings reads every row of query as strings through a fresh
// forward-only statement.
func queryStrings(t *testing.T, c *Conn, query string) [][]string {
	t.Helper()
	s := allocStmt(t, c)
	defer FreeHandle(SQL_HANDLE_STMT, s)
	require.Equal(t, SQL_SUCCESS, s.ExecDirect(context.Background(), query), Records(s))
	var n int16
	require.Equal(t, SQL_SUCCESS, s.NumResultCols(&n))
	var out [][]string
	for {
		rc := s.Fetch(context.Background())
		if rc == SQL_NO_DATA {
			return out
		}
		require.Equal(t, SQL_SUCCESS, rc, Records(s))
		row := make([]string, n)
		for j := range row {
			buf := Alloc(256)
			ind := Alloc(8)
			require.True(t, Succeeded(s.GetData(uint16(j+1), SQL_C_CHAR, buf, 256, ind)), Records(s))
			if ind.Len() == SQL_NULL_DATA {
				row[j] = "NULL"
				continue
			}
			row[j] = string(buf.cstring(256))
		}
		out = append(out, row)
	}
}
