package warpdrive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConnectionString(t *testing.T) {
	t.Run("keys are lowercased and braces stripped", func(t *testing.T) {
		props, err := ParseConnectionString(`DSN=ignored;Driver={Warpdrive};Backend=sqlite3;Database={C:\data;db};Extra= x `)
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			"backend":  "sqlite3",
			"database": `C:\data;db`,
			"extra":    "x",
		}, props)
	})

	t.Run("empty", func(t *testing.T) {
		props, err := ParseConnectionString("  ")
		require.NoError(t, err)
		require.Empty(t, props)
	})

	t.Run("no pairs", func(t *testing.T) {
		_, err := ParseConnectionString("garbage")
		require.ErrorIs(t, err, errParseConnStr)
	})
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig("")
		require.NoError(t, err)
		require.Equal(t, "sqlite3", cfg.Backend)
		require.True(t, cfg.AutoCommit)
		require.Zero(t, cfg.queryTimeout())
	})

	t.Run("typed fields", func(t *testing.T) {
		cfg, err := ParseConfig("backend=postgres;database=shop;autocommit=0;query_timeout=30;max_rows=100;keyset_size=10;use_bookmarks=1")
		require.NoError(t, err)
		require.Equal(t, "postgres", cfg.Backend)
		require.Equal(t, "shop", cfg.Database)
		require.False(t, cfg.AutoCommit)
		require.Equal(t, 30*time.Second, cfg.queryTimeout())
		require.Equal(t, int64(100), cfg.MaxRows)
		require.Equal(t, int64(10), cfg.KeysetSize)
		require.Equal(t, int64(1), cfg.UseBookmarks)
	})

	t.Run("remaining keys go to the backend", func(t *testing.T) {
		cfg, err := ParseConfig("backend=sqlite3;_busy_timeout=5000;sslmode=disable")
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			"_busy_timeout": "5000",
			"sslmode":       "disable",
		}, cfg.backendProperties())
	})

	t.Run("bad value", func(t *testing.T) {
		_, err := ParseConfig("max_rows=lots")
		require.ErrorIs(t, err, errParseConnStr)
	})
}

func TestConfigSeedsStatements(t *testing.T) {
	c := openConn(t, "backend=sqlite3;max_rows=2;keyset_size=7;use_bookmarks=1")
	s := allocStmt(t, c)

	var maxRows, keysetSize, bookmarks int64
	require.Equal(t, SQL_SUCCESS, s.GetStmtAttr(SQL_ATTR_MAX_ROWS, &maxRows, nil))
	require.Equal(t, SQL_SUCCESS, s.GetStmtAttr(SQL_ATTR_KEYSET_SIZE, &keysetSize, nil))
	require.Equal(t, SQL_SUCCESS, s.GetStmtAttr(SQL_ATTR_USE_BOOKMARKS, &bookmarks, nil))
	require.Equal(t, int64(2), maxRows)
	require.Equal(t, int64(7), keysetSize)
	require.Equal(t, SQL_UB_FIXED, bookmarks)
}
