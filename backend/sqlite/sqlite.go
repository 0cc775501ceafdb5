// Package sqlite implements the warpdrive backend on SQLite through sqlx and
// go-sqlite3. Physical row identities are derived from the rowid of the
// base table and the root page that stores it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/warpdrive/go-warpdrive/backend"
)

// DriverName is the database/sql driver the backend opens.
const DriverName = "sqlite3"

// Conn is a SQLite backend connection.
type Conn struct {
	db      *sqlx.DB
	tx      *sqlx.Tx
	logger  *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	roots map[string]uint32
}

// Open opens the database file named by opts.Database, or a private
// in-memory database when it is empty. Properties whose key starts with
// an underscore are passed to go-sqlite3 as DSN parameters.
func Open(ctx context.Context, opts backend.Options) (backend.Connection, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn(opts))
	if err != nil {
		return nil, translate(err)
	}
	// One connection keeps an in-memory database and the open transaction
	// visible to every statement.
	db.SetMaxOpenConns(1)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		db:      db,
		logger:  logger.With(slog.String("backend", DriverName)),
		timeout: opts.QueryTimeout,
		roots:   make(map[string]uint32),
	}, nil
}

func dsn(opts backend.Options) string {
	name := opts.Database
	if name == "" {
		name = ":memory:"
	}
	q := url.Values{}
	for k, v := range opts.Properties {
		if strings.HasPrefix(k, "_") {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + q.Encode()
}

// DB exposes the underlying database handle.
func (c *Conn) DB() *sqlx.DB {
	return c.db
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	sqlx.PreparerContext
}

func (c *Conn) ext() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *Conn) NewStatement(ctx context.Context) (backend.Statement, error) {
	return &Stmt{conn: c, attrs: backend.Attrs{QueryTimeout: c.timeout}}, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already open")
	}
	// The transaction outlives the call that opens it; database/sql rolls
	// a transaction back when its context ends.
	tx, err := c.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return translate(err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return translate(tx.Commit())
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return translate(err)
	}
	return nil
}

func (c *Conn) Close() error {
	var errs []error
	if c.tx != nil {
		errs = append(errs, c.tx.Rollback())
		c.tx = nil
	}
	errs = append(errs, c.db.Close())
	return errors.Join(errs...)
}

// rootPage returns the root page of table, which identifies it in row
// identities.
func (c *Conn) rootPage(ctx context.Context, table string) (uint32, error) {
	c.mu.Lock()
	root, ok := c.roots[table]
	c.mu.Unlock()
	if ok {
		return root, nil
	}
	var page int64
	err := sqlx.GetContext(ctx, c.ext(), &page,
		`SELECT rootpage FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table)
	if err != nil {
		return 0, translate(err)
	}
	c.mu.Lock()
	c.roots[table] = uint32(page)
	c.mu.Unlock()
	return uint32(page), nil
}

func (c *Conn) Mutate(ctx context.Context, m backend.Mutation) (backend.MutationResult, error) {
	var (
		query string
		args  []any
	)
	table := quote(m.Table)
	switch m.Kind {
	case backend.MutationUpdate:
		sets := make([]string, len(m.Columns))
		for i, col := range m.Columns {
			sets[i] = quote(col) + " = ?"
		}
		where, wargs := qualify(m)
		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
		args = append(append(args, m.Values...), wargs...)
	case backend.MutationDelete:
		where, wargs := qualify(m)
		query = fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
		args = wargs
	case backend.MutationInsert:
		cols := make([]string, len(m.Columns))
		marks := make([]string, len(m.Columns))
		for i, col := range m.Columns {
			cols[i] = quote(col)
			marks[i] = "?"
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
		args = m.Values
	default:
		return backend.MutationResult{}, fmt.Errorf("unsupported mutation %s", m.Kind)
	}

	res, err := c.ext().ExecContext(ctx, query, args...)
	if err != nil {
		return backend.MutationResult{}, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return backend.MutationResult{}, translate(err)
	}
	c.logger.Debug("mutation", slog.String("kind", m.Kind.String()), slog.String("table", m.Table), slog.Int64("affected", affected))
	out := backend.MutationResult{Affected: affected}
	if affected != 1 || m.Kind == backend.MutationDelete || len(m.Returning) == 0 {
		return out, nil
	}

	id := m.Target
	if m.Kind == backend.MutationInsert {
		last, err := res.LastInsertId()
		if err != nil {
			return out, translate(err)
		}
		if id, err = c.identity(ctx, m.Table, last); err != nil {
			return out, err
		}
	}
	row, err := c.Reread(ctx, m.Table, id, m.Returning)
	if err != nil {
		return out, err
	}
	out.Row = row
	return out, nil
}

func (c *Conn) Reread(ctx context.Context, table string, id backend.RowID, columns []string) (*backend.Row, error) {
	cols := make([]string, len(columns))
	for i, col := range columns {
		cols[i] = quote(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", strings.Join(cols, ", "), quote(table))
	rows, err := c.ext().QueryxContext(ctx, query, rowid(id))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, translate(rows.Err())
	}
	values, err := rows.SliceScan()
	if err != nil {
		return nil, translate(err)
	}
	for i := range values {
		values[i] = normalize(values[i])
	}
	return &backend.Row{ID: id, Values: values}, nil
}

// identity builds the row identity of rowid in table.
func (c *Conn) identity(ctx context.Context, table string, id int64) (backend.RowID, error) {
	root, err := c.rootPage(ctx, table)
	if err != nil {
		return backend.RowID{}, err
	}
	return backend.RowID{Key: id, OID: root}, nil
}

// qualify builds the WHERE clause addressing the target of m: its rowid
// and the expected column values. Timestamps are left out since they do
// not round trip through their stored text exactly.
func qualify(m backend.Mutation) (string, []any) {
	conds := []string{"rowid = ?"}
	args := []any{rowid(m.Target)}
	for i, col := range m.ExpectColumns {
		if _, ok := m.Expect[i].(time.Time); ok {
			continue
		}
		conds = append(conds, quote(col)+" IS ?")
		args = append(args, m.Expect[i])
	}
	return strings.Join(conds, " AND "), args
}

func rowid(id backend.RowID) int64 {
	return id.Key
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Stmt is a SQLite backend statement. Results are read completely on
// execution.
type Stmt struct {
	conn  *Conn
	query string

	attrs backend.Attrs

	mu     sync.Mutex
	cancel context.CancelFunc

	result  *backend.RowSet
	updated int64
}

func (s *Stmt) Prepare(ctx context.Context, query string) ([]backend.Column, error) {
	ps, err := s.conn.ext().PrepareContext(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	if err := ps.Close(); err != nil {
		return nil, translate(err)
	}
	s.query = query
	return nil, nil
}

func (s *Stmt) ExecutePrepared(ctx context.Context, args []any, opts backend.ExecOptions) error {
	return s.Execute(ctx, s.query, args, opts)
}

var queryRegex = regexp.MustCompile(`(?is)^\s*(select|with|values|pragma|explain)\b`)

func (s *Stmt) Execute(ctx context.Context, query string, args []any, opts backend.ExecOptions) error {
	s.closeResult()
	ctx, done := s.track(ctx)
	defer done()

	if !queryRegex.MatchString(query) {
		res, err := s.conn.ext().ExecContext(ctx, query, args...)
		if err != nil {
			return interrupted(ctx, err)
		}
		if s.updated, err = res.RowsAffected(); err != nil {
			return translate(err)
		}
		return nil
	}

	if opts.Keyset {
		if table, rewritten, ok := keysetQuery(query); ok {
			err := s.query0(ctx, rewritten, table, args, opts)
			if err == nil {
				return nil
			}
			// WITHOUT ROWID tables and views reject the rewrite.
			s.conn.logger.Debug("keyset rewrite rejected", slog.String("table", table), slog.Any("error", err))
		}
	}
	return s.query0(ctx, query, "", args, opts)
}

// query0 runs a row-producing query. With table set the first result
// column is the rowid of that table.
func (s *Stmt) query0(ctx context.Context, query, table string, args []any, opts backend.ExecOptions) error {
	var root uint32
	if table != "" {
		var err error
		if root, err = s.conn.rootPage(ctx, table); err != nil {
			return err
		}
	}
	rows, err := s.conn.ext().QueryxContext(ctx, query, args...)
	if err != nil {
		return interrupted(ctx, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return translate(err)
	}
	skip := 0
	if table != "" {
		skip = 1
	}
	cols := make([]backend.Column, 0, len(types)-skip)
	for _, ct := range types[skip:] {
		cols = append(cols, describe(ct, table))
	}

	limit := s.attrs.Limit(opts)
	b := backend.NewRowSetBuilder(cols, table)
	for rows.Next() {
		if limit > 0 && int64(b.Len()) >= limit {
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return translate(err)
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		var id backend.RowID
		if table != "" {
			n, _ := values[0].(int64)
			id = backend.RowID{Key: n, OID: root}
			values = values[1:]
		}
		b.Append(id, values)
	}
	if err := rows.Err(); err != nil {
		return interrupted(ctx, err)
	}
	inferTypes(cols, b)
	rs, err := b.Build()
	if err != nil {
		return err
	}
	s.result = rs
	s.updated = -1
	return nil
}

// track derives the context of one execution and registers its cancel
// function for Cancel.
func (s *Stmt) track(ctx context.Context) (context.Context, func()) {
	var cancel context.CancelFunc
	if t := s.attrs.QueryTimeout; t > 0 {
		ctx, cancel = context.WithTimeout(ctx, t)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}
}

func (s *Stmt) ResultSet() backend.ResultSet {
	if s.result == nil {
		return nil
	}
	// The engine owns the result from here on.
	rs := s.result
	s.result = nil
	return rs
}

func (s *Stmt) UpdateCount() int64 {
	return s.updated
}

func (s *Stmt) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Stmt) Attribute(attr backend.Attr) (any, error) {
	return s.attrs.Get(attr)
}

func (s *Stmt) SetAttribute(attr backend.Attr, value any) error {
	return s.attrs.Set(attr, value)
}

func (s *Stmt) closeResult() {
	if s.result != nil {
		s.result.Close()
		s.result = nil
	}
	s.updated = 0
}

func (s *Stmt) Close() error {
	s.closeResult()
	return nil
}

var (
	selectRegex    = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+([A-Za-z_][A-Za-z0-9_]*|"[^"]+")(\s+(?:where|order\s+by|limit)\b.*|\s*;?\s*)$`)
	notSingleRegex = regexp.MustCompile(`(?i)\b(join|union|intersect|except|group\s+by|distinct)\b`)
)

// keysetQuery rewrites a single-table SELECT to also produce the rowid of
// the table.
func keysetQuery(query string) (table, rewritten string, ok bool) {
	m := selectRegex.FindStringSubmatch(query)
	if m == nil || notSingleRegex.MatchString(query) {
		return "", "", false
	}
	table = strings.Trim(m[2], `"`)
	rewritten = fmt.Sprintf("SELECT rowid AS \"__warpdrive_rowid\", %s FROM %s%s", m[1], m[2], m[3])
	return table, rewritten, true
}

var lengthRegex = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// describe maps a declared column type to a column description following
// the SQLite affinity rules.
func describe(ct *sql.ColumnType, table string) backend.Column {
	decl := strings.ToUpper(ct.DatabaseTypeName())
	col := backend.Column{
		Name:       ct.Name(),
		BaseColumn: ct.Name(),
		Table:      table,
		TypeName:   decl,
		Nullable:   backend.NullableUnknown,
		Searchable: backend.Searchable,
		Updatable:  backend.ReadOnly,
	}
	if table != "" {
		col.Updatable = backend.Writable
	}
	var length, scale int64
	if m := lengthRegex.FindStringSubmatch(decl); m != nil {
		length, _ = strconv.ParseInt(m[1], 10, 64)
		if m[2] != "" {
			scale, _ = strconv.ParseInt(m[2], 10, 64)
		}
	}
	base := decl
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch {
	case base == "":
	case base == "BIGINT" || base == "INT8":
		col.SQLType = backend.TypeBigint
	case base == "SMALLINT" || base == "INT2":
		col.SQLType = backend.TypeSmallint
	case base == "TINYINT":
		col.SQLType = backend.TypeTinyint
	case strings.HasPrefix(base, "BOOL"):
		col.SQLType = backend.TypeBit
	case strings.Contains(base, "INT"):
		col.SQLType = backend.TypeInteger
	case base == "DATE":
		col.SQLType = backend.TypeDate
	case base == "TIME":
		col.SQLType = backend.TypeTime
	case base == "DATETIME" || strings.HasPrefix(base, "TIMESTAMP"):
		col.SQLType = backend.TypeTimestamp
	case strings.Contains(base, "CHAR") && length > 0:
		col.SQLType = backend.TypeVarchar
		if base == "CHAR" || base == "CHARACTER" || base == "NCHAR" {
			col.SQLType = backend.TypeChar
		}
		col.Length = length
	case strings.Contains(base, "CHAR") || strings.Contains(base, "CLOB") || strings.Contains(base, "TEXT"):
		col.SQLType = backend.TypeLongVarchar
		col.Length = 65535
	case strings.Contains(base, "BLOB"):
		col.SQLType = backend.TypeLongVarbinary
		col.Length = 65535
	case strings.Contains(base, "REAL") || strings.Contains(base, "FLOA") || strings.Contains(base, "DOUB"):
		col.SQLType = backend.TypeDouble
	case base == "DECIMAL" || base == "NUMERIC":
		col.SQLType = backend.TypeNumeric
		if base == "DECIMAL" {
			col.SQLType = backend.TypeDecimal
		}
		col.Precision = int16(length)
		col.Scale = int16(scale)
		if col.Precision == 0 {
			col.Precision = 15
		}
	default:
		col.SQLType = backend.TypeNumeric
		col.Precision = 15
	}
	if nullable, ok := ct.Nullable(); ok {
		col.Nullable = backend.NoNulls
		if nullable {
			col.Nullable = backend.Nullable
		}
	}
	return col
}

// inferTypes assigns a SQL type to expression columns from the values
// that were produced for them.
func inferTypes(cols []backend.Column, b *backend.RowSetBuilder) {
	for j := range cols {
		if cols[j].SQLType != 0 {
			continue
		}
		cols[j].SQLType = backend.TypeVarchar
		cols[j].Length = 255
		if v := b.FirstValue(j); v != nil {
			switch v.(type) {
			case int64:
				cols[j].SQLType, cols[j].Length = backend.TypeBigint, 0
			case float64:
				cols[j].SQLType, cols[j].Length = backend.TypeDouble, 0
			case bool:
				cols[j].SQLType, cols[j].Length = backend.TypeBit, 0
			case []byte:
				cols[j].SQLType = backend.TypeVarbinary
			case time.Time:
				cols[j].SQLType, cols[j].Length = backend.TypeTimestamp, 0
			}
		}
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

// interrupted reports the context error of an execution that was
// cancelled or timed out instead of the interrupt SQLite raised for it.
func interrupted(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return translate(err)
}

// translate turns a go-sqlite3 error into a backend error carrying its
// SQLSTATE class.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		state := "HY000"
		switch serr.Code {
		case sqlite3.ErrConstraint:
			state = "23000"
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			state = "HYT00"
		case sqlite3.ErrInterrupt:
			state = "HY008"
		case sqlite3.ErrReadonly:
			state = "25000"
		}
		return &backend.Error{SQLState: state, Native: int32(serr.ExtendedCode), Msg: serr.Error()}
	}
	return err
}
