package warpdrive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warpdrive/go-warpdrive/backend"
)

func testErrorInternal(t *testing.T, actual DiagRecord, contains []string) {
	for _, msg := range contains {
		require.Contains(t, actual.Message, msg)
	}

	levels := strings.Count(actual.Message, driverErrMsg+":")
	require.Equal(t, 1, levels)
}

func testError(t *testing.T, h Handle, state string, contains ...string) {
	t.Helper()
	recs := Records(h)
	require.NotEmpty(t, recs)
	require.Equal(t, state, recs[0].SQLState)
	testErrorInternal(t, recs[0], contains)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		state  string
		native int32
	}{
		{"driver error", newError("22012", "division by zero"), "22012", 0},
		{"backend error", &backend.Error{SQLState: "23000", Native: 2067, Msg: "UNIQUE constraint failed"}, "23000", 2067},
		{"backend error without state", &backend.Error{Msg: "disk I/O error"}, stateGeneral, 0},
		{"wrapped sentinel", fmt.Errorf("fetching: %w", errFetchTypeRange), stateFetchTypeRange, 0},
		{"column error", columnError(errInvalidDescIndex, 3), stateInvalidDescIndex, 0},
		{"row error", rowError(errLengthMismatch, 2), stateLengthMismatch, 0},
		{"canceled", context.Canceled, stateCancelled, 0},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), stateTimeout, 0},
		{"unknown", errors.New("boom"), stateGeneral, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, native, msg := classify(tt.err)
			require.Equal(t, tt.state, state)
			require.Equal(t, tt.native, native)
			require.True(t, strings.HasPrefix(msg, driverErrMsg+": "), msg)
			require.Equal(t, 1, strings.Count(msg, driverErrMsg+":"))
		})
	}
}

func TestErrConnect(t *testing.T) {
	env := newTestDriver().AllocEnv()
	defer FreeHandle(SQL_HANDLE_ENV, env)

	t.Run(errNoBackend.Error(), func(t *testing.T) {
		c, _ := env.AllocConnect()
		defer FreeHandle(SQL_HANDLE_DBC, c)
		require.Equal(t, SQL_ERROR, c.DriverConnect(context.Background(), "backend=oracle"))
		testError(t, c, "08001", errNoBackend.Error(), "oracle")
	})

	t.Run(errParseConnStr.Error(), func(t *testing.T) {
		c, _ := env.AllocConnect()
		defer FreeHandle(SQL_HANDLE_DBC, c)
		require.Equal(t, SQL_ERROR, c.DriverConnect(context.Background(), "keyset_size=many"))
		testError(t, c, "08001", errParseConnStr.Error())
	})

	t.Run(errNotConnected.Error(), func(t *testing.T) {
		c, _ := env.AllocConnect()
		defer FreeHandle(SQL_HANDLE_DBC, c)
		s, rc := c.AllocStmt()
		require.Nil(t, s)
		require.Equal(t, SQL_ERROR, rc)
		testError(t, c, "08003", errNotConnected.Error())
	})

	t.Run("already connected", func(t *testing.T) {
		c := openConn(t, "")
		require.Equal(t, SQL_ERROR, c.DriverConnect(context.Background(), "backend=sqlite3"))
		testError(t, c, stateSequence, errSequence.Error())
	})
}

func TestErrBackend(t *testing.T) {
	c := openConn(t, "")
	seedItems(t, c)
	s := allocStmt(t, c)

	t.Run("constraint violation", func(t *testing.T) {
		rc := s.ExecDirect(context.Background(), `INSERT INTO items (id, name, qty) VALUES (1, 'again', 0)`)
		require.Equal(t, SQL_ERROR, rc)
		testError(t, s, "23000", "UNIQUE")
		require.NotZero(t, Records(s)[0].Native)
		require.Equal(t, SQL_NO_ROW_NUMBER, Records(s)[0].Row)
		require.NotContains(t, Records(s)[0].Message, rowErrMsg)
	})

	t.Run("syntax error", func(t *testing.T) {
		require.Equal(t, SQL_ERROR, s.ExecDirect(context.Background(), `SELEC 1`))
		testError(t, s, stateGeneral, "syntax error")
	})

	t.Run("ledger is cleared by the next call", func(t *testing.T) {
		require.Equal(t, SQL_ERROR, s.ExecDirect(context.Background(), `SELEC 1`))
		require.NotEmpty(t, Records(s))
		var n int16
		require.Equal(t, SQL_SUCCESS, s.NumResultCols(&n))
		require.Empty(t, Records(s))
	})
}

func TestErrInvalidHandle(t *testing.T) {
	var s *Stmt
	require.Equal(t, SQL_INVALID_HANDLE, s.Fetch(context.Background()))
	require.Equal(t, SQL_INVALID_HANDLE, s.FreeStmt(SQL_DROP))
	require.Equal(t, SQL_INVALID_HANDLE, GetDiagRec(s, 1, nil, nil, nil, nil))
	require.Equal(t, SQL_INVALID_HANDLE, FreeHandle(SQL_HANDLE_STMT, s))
	require.Empty(t, Records(s))
	require.Empty(t, Records((*Conn)(nil)))
	require.Empty(t, Records((*Desc)(nil)))

	c := openConn(t, "")
	live := allocStmt(t, c)
	require.Equal(t, SQL_SUCCESS, FreeHandle(SQL_HANDLE_STMT, live))
	require.Equal(t, SQL_INVALID_HANDLE, live.ExecDirect(context.Background(), `SELECT 1`))
	require.Equal(t, SQL_INVALID_HANDLE, FreeHandle(SQL_HANDLE_DBC, live))
}

func TestGetDiag(t *testing.T) {
	c := openConn(t, "")
	s := allocStmt(t, c)
	require.Equal(t, SQL_ERROR, s.Execute(context.Background()))

	t.Run("record", func(t *testing.T) {
		state := make([]byte, 6)
		msg := make([]byte, 256)
		var native int32
		var textLen int16
		require.Equal(t, SQL_SUCCESS, GetDiagRec(s, 1, state, &native, msg, &textLen))
		require.Equal(t, stateSequence, string(state[:5]))
		require.Contains(t, string(msg[:textLen]), errNotPrepared.Error())
	})

	t.Run("truncated message", func(t *testing.T) {
		msg := make([]byte, 8)
		var textLen int16
		require.Equal(t, SQL_SUCCESS_WITH_INFO, GetDiagRec(s, 1, nil, nil, msg, &textLen))
		require.Greater(t, int(textLen), 8)
		require.Equal(t, "warpdri", string(msg[:7]))
	})

	t.Run("record numbers", func(t *testing.T) {
		require.Equal(t, SQL_ERROR, GetDiagRec(s, 0, nil, nil, nil, nil))
		require.Equal(t, SQL_NO_DATA, GetDiagRec(s, 2, nil, nil, nil, nil))
	})

	t.Run("fields", func(t *testing.T) {
		var n, rc int64
		require.Equal(t, SQL_SUCCESS, GetDiagField(s, 0, SQL_DIAG_NUMBER, &n, nil))
		require.Equal(t, int64(1), n)
		require.Equal(t, SQL_SUCCESS, GetDiagField(s, 0, SQL_DIAG_RETURNCODE, &rc, nil))
		require.Equal(t, int64(SQL_ERROR), rc)

		state := make([]byte, 6)
		require.Equal(t, SQL_SUCCESS, GetDiagField(s, 1, SQL_DIAG_SQLSTATE, state, nil))
		require.Equal(t, stateSequence, string(state[:5]))

		origin := make([]byte, 16)
		var strLen int32
		require.Equal(t, SQL_SUCCESS, GetDiagField(s, 1, SQL_DIAG_CLASS_ORIGIN, origin, &strLen))
		require.Equal(t, "ODBC 3.0", string(origin[:strLen]))

		var row int64
		require.Equal(t, SQL_SUCCESS, GetDiagField(s, 1, SQL_DIAG_ROW_NUMBER, &row, nil))
		require.Equal(t, SQL_NO_ROW_NUMBER, row)
		require.Equal(t, SQL_NO_DATA, GetDiagField(s, 3, SQL_DIAG_SQLSTATE, state, nil))
	})
}
