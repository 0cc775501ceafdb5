// Command warpdrive runs SQL statements through the warpdrive engine and
// prints their results.
//
//	warpdrive "SELECT * FROM users"
//
// Settings are read from warpdrive.yaml in the working directory or in
// ~/.warpdrive, and from WARPDRIVE_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/warpdrive/go-warpdrive"
	"github.com/warpdrive/go-warpdrive/backend/postgres"
	"github.com/warpdrive/go-warpdrive/backend/sqlite"
)

type config struct {
	Backend    string            `mapstructure:"backend"`
	Database   string            `mapstructure:"database"`
	LogLevel   string            `mapstructure:"log_level"`
	Properties map[string]string `mapstructure:"properties"`
	MaxWidth   int               `mapstructure:"max_width"`
}

func loadConfig() (*config, error) {
	v := viper.New()
	v.SetConfigName("warpdrive")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".warpdrive"))
	}
	v.SetEnvPrefix("warpdrive")
	v.AutomaticEnv()

	v.SetDefault("backend", "sqlite3")
	v.SetDefault("database", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("max_width", 4096)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *config) connectionString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend=%s;database={%s}", c.Backend, c.Database)
	for k, v := range c.Properties {
		fmt.Fprintf(&b, ";%s={%s}", k, v)
	}
	return b.String()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: warpdrive STATEMENT...")
		os.Exit(2)
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(context.Background(), cfg, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// diagError renders the diagnostics of h after a failed call.
func diagError(h warpdrive.Handle, rc warpdrive.SQLRETURN) error {
	var msgs []string
	for _, r := range warpdrive.Records(h) {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", r.SQLState, r.Message))
	}
	if len(msgs) == 0 {
		return fmt.Errorf("call failed with return code %d", rc)
	}
	return errors.New(strings.Join(msgs, "\n"))
}

func failed(rc warpdrive.SQLRETURN) bool {
	return rc != warpdrive.SQL_SUCCESS && rc != warpdrive.SQL_SUCCESS_WITH_INFO && rc != warpdrive.SQL_NO_DATA
}

func run(ctx context.Context, cfg *config, statements []string) error {
	logger := newLogger(cfg.LogLevel)
	drv := warpdrive.NewDriver(
		warpdrive.WithLogger(logger),
		warpdrive.WithBackend("sqlite3", sqlite.Open),
		warpdrive.WithBackend("postgres", postgres.Open),
	)
	env := drv.AllocEnv()
	defer warpdrive.FreeHandle(warpdrive.SQL_HANDLE_ENV, env)

	conn, rc := env.AllocConnect()
	if failed(rc) {
		return diagError(env, rc)
	}
	if rc := conn.DriverConnect(ctx, cfg.connectionString()); failed(rc) {
		return diagError(conn, rc)
	}
	defer conn.Disconnect(ctx)

	stmt, rc := conn.AllocStmt()
	if failed(rc) {
		return diagError(conn, rc)
	}
	defer stmt.FreeStmt(warpdrive.SQL_DROP)

	for _, query := range statements {
		if err := runOne(ctx, stmt, query, cfg.MaxWidth); err != nil {
			return err
		}
	}
	return nil
}

func runOne(ctx context.Context, stmt *warpdrive.Stmt, query string, width int) error {
	if rc := stmt.ExecDirect(ctx, query); failed(rc) {
		return diagError(stmt, rc)
	}
	defer stmt.FreeStmt(warpdrive.SQL_CLOSE)

	var cols int16
	stmt.NumResultCols(&cols)
	if cols == 0 {
		var n int64
		stmt.RowCount(&n)
		fmt.Printf("%d rows affected\n", n)
		return nil
	}

	header := make([]string, cols)
	name := make([]byte, 256)
	for i := range header {
		var n int16
		stmt.DescribeCol(uint16(i+1), name, &n, nil, nil, nil, nil)
		header[i] = string(name[:n])
	}
	fmt.Println(strings.Join(header, "\t"))

	buf := warpdrive.Alloc(width + 1)
	ind := warpdrive.Alloc(8)
	fields := make([]string, cols)
	for {
		rc := stmt.Fetch(ctx)
		if rc == warpdrive.SQL_NO_DATA {
			return nil
		}
		if failed(rc) {
			return diagError(stmt, rc)
		}
		for i := range fields {
			rc := stmt.GetData(uint16(i+1), warpdrive.SQL_C_CHAR, buf, int64(width+1), ind)
			if failed(rc) {
				return diagError(stmt, rc)
			}
			switch n := ind.Len(); {
			case n == warpdrive.SQL_NULL_DATA:
				fields[i] = "NULL"
			case n > int64(width):
				fields[i] = string(buf.Bytes(width))
			default:
				fields[i] = string(buf.Bytes(int(n)))
			}
		}
		fmt.Println(strings.Join(fields, "\t"))
	}
}
