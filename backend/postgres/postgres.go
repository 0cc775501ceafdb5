// Package postgres implements the warpdrive backend on PostgreSQL through
// pgx. Physical row identities are the ctid and tableoid system columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
	"github.com/warpdrive/go-warpdrive/backend"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
}

// Conn is a PostgreSQL backend connection.
type Conn struct {
	conn    *pgx.Conn
	tx      pgx.Tx
	logger  *slog.Logger
	timeout time.Duration
}

// Open connects to the server addressed by opts.Database, a PostgreSQL
// connection string or URL. Properties are applied as runtime parameters.
func Open(ctx context.Context, opts backend.Options) (backend.Connection, error) {
	cfg, err := pgx.ParseConfig(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	for k, v := range opts.Properties {
		cfg.RuntimeParams[k] = v
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", translate(err))
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping: %w", translate(err))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		conn:    conn,
		logger:  logger.With(slog.String("backend", "postgres")),
		timeout: opts.QueryTimeout,
	}, nil
}

func (c *Conn) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *Conn) NewStatement(ctx context.Context) (backend.Statement, error) {
	return &Stmt{conn: c, attrs: backend.Attrs{QueryTimeout: c.timeout}}, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := c.conn.Begin(context.WithoutCancel(ctx))
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
	return translate(tx.Commit(ctx))
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return translate(err)
	}
	return nil
}

func (c *Conn) Close() error {
	ctx := context.Background()
	var errs []error
	if c.tx != nil {
		errs = append(errs, c.tx.Rollback(ctx))
		c.tx = nil
	}
	errs = append(errs, c.conn.Close(ctx))
	return errors.Join(errs...)
}

func tid(id backend.RowID) pgtype.TID {
	return pgtype.TID{BlockNumber: id.Block, OffsetNumber: id.Offset, Valid: true}
}

func (c *Conn) Mutate(ctx context.Context, m backend.Mutation) (backend.MutationResult, error) {
	returning := ""
	if len(m.Returning) > 0 {
		returning = " RETURNING ctid, tableoid, " + quoteAll(m.Returning)
	}
	var (
		query string
		args  []any
	)
	table := quoteName(m.Table)
	switch m.Kind {
	case backend.MutationUpdate:
		sets := make([]string, len(m.Columns))
		for i, col := range m.Columns {
			sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), i+1)
		}
		args = append(args, m.Values...)
		where, wargs := qualify(m, len(args))
		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s%s", table, strings.Join(sets, ", "), where, returning)
		args = append(args, wargs...)
	case backend.MutationDelete:
		where, wargs := qualify(m, 0)
		query = fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
		args = wargs
	case backend.MutationInsert:
		marks := make([]string, len(m.Columns))
		for i := range m.Columns {
			marks[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
			table, quoteAll(m.Columns), strings.Join(marks, ", "), returning)
		args = m.Values
	default:
		return backend.MutationResult{}, fmt.Errorf("unsupported mutation %s", m.Kind)
	}

	if returning == "" || m.Kind == backend.MutationDelete {
		tag, err := c.q().Exec(ctx, query, args...)
		if err != nil {
			return backend.MutationResult{}, translate(err)
		}
		return backend.MutationResult{Affected: tag.RowsAffected()}, nil
	}

	rows, err := c.q().Query(ctx, query, args...)
	if err != nil {
		return backend.MutationResult{}, translate(err)
	}
	defer rows.Close()
	var out backend.MutationResult
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return out, translate(err)
		}
		out.Affected++
		if out.Affected == 1 {
			row := identified(values)
			out.Row = &row
		} else {
			out.Row = nil
		}
	}
	if err := rows.Err(); err != nil {
		return out, translate(err)
	}
	c.logger.Debug("mutation", slog.String("kind", m.Kind.String()), slog.String("table", m.Table), slog.Int64("affected", out.Affected))
	return out, nil
}

func (c *Conn) Reread(ctx context.Context, table string, id backend.RowID, columns []string) (*backend.Row, error) {
	query := fmt.Sprintf("SELECT ctid, tableoid, %s FROM %s WHERE ctid = $1 AND tableoid = $2", quoteAll(columns), quoteName(table))
	rows, err := c.q().Query(ctx, query, tid(id), id.OID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, translate(rows.Err())
	}
	values, err := rows.Values()
	if err != nil {
		return nil, translate(err)
	}
	row := identified(values)
	return &row, nil
}

// qualify builds the WHERE clause addressing the target of m, numbering
// its parameters after the first n: the ctid and tableoid, then the
// expected column values.
func qualify(m backend.Mutation, n int) (string, []any) {
	conds := []string{fmt.Sprintf("ctid = $%d AND tableoid = $%d", n+1, n+2)}
	args := []any{tid(m.Target), m.Target.OID}
	for i, col := range m.ExpectColumns {
		if _, ok := m.Expect[i].(time.Time); ok {
			continue
		}
		args = append(args, m.Expect[i])
		conds = append(conds, fmt.Sprintf("%s IS NOT DISTINCT FROM $%d", quoteIdent(col), n+len(args)))
	}
	return strings.Join(conds, " AND "), args
}

// identified splits a row whose first two values are ctid and tableoid.
func identified(values []any) backend.Row {
	var id backend.RowID
	if t, ok := values[0].(pgtype.TID); ok && t.Valid {
		id.Block, id.Offset = t.BlockNumber, t.OffsetNumber
	}
	if oid, ok := values[1].(uint32); ok {
		id.OID = oid
	}
	out := make([]any, len(values)-2)
	for i, v := range values[2:] {
		out[i] = normalize(v)
	}
	return backend.Row{ID: id, Values: out}
}

// quoteName quotes a possibly schema qualified table name.
func quoteName(name string) string {
	parts := strings.Split(name, ".")
	return pgx.Identifier(parts).Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Stmt is a PostgreSQL backend statement. Results are read completely on
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

// Prepare parses query on the server and describes its result columns.
func (s *Stmt) Prepare(ctx context.Context, query string) ([]backend.Column, error) {
	sql := sqlx.Rebind(sqlx.DOLLAR, query)
	desc, err := s.conn.q().Prepare(ctx, sql, sql)
	if err != nil {
		return nil, translate(err)
	}
	s.query = query
	if len(desc.Fields) == 0 {
		return nil, nil
	}
	cols := make([]backend.Column, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = describe(f, "")
	}
	return cols, nil
}

func (s *Stmt) ExecutePrepared(ctx context.Context, args []any, opts backend.ExecOptions) error {
	return s.Execute(ctx, s.query, args, opts)
}

func (s *Stmt) Execute(ctx context.Context, query string, args []any, opts backend.ExecOptions) error {
	s.closeResult()
	ctx, done := s.track(ctx)
	defer done()

	sql := sqlx.Rebind(sqlx.DOLLAR, query)
	table := ""
	if opts.Keyset {
		if t, rewritten, ok := keysetQuery(sql); ok {
			plain, err := s.isPlainTable(ctx, t)
			if err != nil {
				return err
			}
			if plain {
				table, sql = t, rewritten
			}
		}
	}

	rows, err := s.conn.q().Query(ctx, sql, args...)
	if err != nil {
		return interrupted(ctx, err)
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	if len(fields) == 0 {
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return interrupted(ctx, err)
		}
		s.updated = rows.CommandTag().RowsAffected()
		return nil
	}

	skip := 0
	if table != "" {
		skip = 2
	}
	cols := make([]backend.Column, 0, len(fields)-skip)
	for _, f := range fields[skip:] {
		cols = append(cols, describe(f, table))
	}
	limit := s.attrs.Limit(opts)
	b := backend.NewRowSetBuilder(cols, table)
	for rows.Next() {
		if limit > 0 && int64(b.Len()) >= limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return interrupted(ctx, err)
		}
		if table != "" {
			row := identified(values)
			b.Append(row.ID, row.Values)
			continue
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		b.Append(backend.RowID{}, values)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return interrupted(ctx, err)
	}
	rs, err := b.Build()
	if err != nil {
		return err
	}
	s.result = rs
	s.updated = -1
	return nil
}

// isPlainTable reports whether name resolves to an ordinary or partitioned
// table, whose rows carry a ctid.
func (s *Stmt) isPlainTable(ctx context.Context, name string) (bool, error) {
	rows, err := s.conn.q().Query(ctx, `SELECT c.relkind::text FROM pg_class c WHERE c.oid = to_regclass($1)`, name)
	if err != nil {
		return false, interrupted(ctx, err)
	}
	kind, err := pgx.CollectOneRow(rows, pgx.RowTo[string])
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, interrupted(ctx, err)
	}
	return kind == "r" || kind == "p", nil
}

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
	rs := s.result
	s.result = nil
	return rs
}

func (s *Stmt) UpdateCount() int64 {
	return s.updated
}

// Cancel cancels the context of the execution in flight; pgx then asks the
// server to cancel the query.
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
	selectRegex    = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+((?:[A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*)(\s+(?:where|order\s+by|limit|offset|for\s+update)\b.*|\s*;?\s*)$`)
	notSingleRegex = regexp.MustCompile(`(?i)\b(join|union|intersect|except|group\s+by|distinct)\b`)
)

// keysetQuery rewrites a single-table SELECT to also produce the ctid and
// tableoid of every row.
func keysetQuery(query string) (table, rewritten string, ok bool) {
	m := selectRegex.FindStringSubmatch(query)
	if m == nil || notSingleRegex.MatchString(query) {
		return "", "", false
	}
	return m[2], fmt.Sprintf("SELECT ctid, tableoid, %s FROM %s%s", m[1], m[2], m[3]), true
}

// describe maps a result field to a column description.
func describe(f pgconn.FieldDescription, table string) backend.Column {
	col := backend.Column{
		Name:       f.Name,
		BaseColumn: f.Name,
		Table:      table,
		Nullable:   backend.NullableUnknown,
		Searchable: backend.Searchable,
		Updatable:  backend.ReadOnly,
	}
	if table != "" && f.TableOID != 0 {
		col.Updatable = backend.Writable
	}
	mod := int64(f.TypeModifier)
	switch f.DataTypeOID {
	case pgtype.Int8OID:
		col.SQLType, col.TypeName = backend.TypeBigint, "int8"
	case pgtype.Int4OID:
		col.SQLType, col.TypeName = backend.TypeInteger, "int4"
	case pgtype.Int2OID:
		col.SQLType, col.TypeName = backend.TypeSmallint, "int2"
	case pgtype.Float4OID:
		col.SQLType, col.TypeName = backend.TypeReal, "float4"
	case pgtype.Float8OID:
		col.SQLType, col.TypeName = backend.TypeDouble, "float8"
	case pgtype.BoolOID:
		col.SQLType, col.TypeName = backend.TypeBit, "bool"
	case pgtype.NumericOID:
		col.SQLType, col.TypeName = backend.TypeNumeric, "numeric"
		col.Precision, col.Scale = 28, 6
		if mod >= 4 {
			col.Precision = int16(((mod - 4) >> 16) & 0xffff)
			col.Scale = int16((mod - 4) & 0xffff)
		}
	case pgtype.BPCharOID:
		col.SQLType, col.TypeName = backend.TypeChar, "bpchar"
		col.Length = max(mod-4, 1)
	case pgtype.VarcharOID:
		col.SQLType, col.TypeName = backend.TypeVarchar, "varchar"
		col.Length = 255
		if mod >= 4 {
			col.Length = mod - 4
		}
	case pgtype.TextOID, pgtype.NameOID:
		col.SQLType, col.TypeName = backend.TypeLongVarchar, "text"
		col.Length = 8190
	case pgtype.ByteaOID:
		col.SQLType, col.TypeName = backend.TypeLongVarbinary, "bytea"
		col.Length = 8190
	case pgtype.DateOID:
		col.SQLType, col.TypeName = backend.TypeDate, "date"
	case pgtype.TimeOID:
		col.SQLType, col.TypeName = backend.TypeTime, "time"
	case pgtype.TimestampOID:
		col.SQLType, col.TypeName = backend.TypeTimestamp, "timestamp"
	case pgtype.TimestamptzOID:
		col.SQLType, col.TypeName = backend.TypeTimestamp, "timestamptz"
	case pgtype.UUIDOID:
		col.SQLType, col.TypeName = backend.TypeGUID, "uuid"
	default:
		col.SQLType, col.TypeName = backend.TypeVarchar, "unknown"
		col.Length = 255
	}
	return col
}

// normalize converts the values pgx decodes into the value set rows carry.
func normalize(v any) any {
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		if x.NaN {
			return "NaN"
		}
		return numericString(x)
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		d := time.Duration(x.Microseconds) * time.Microsecond
		return time.Time{}.Add(d).Format("15:04:05.999999")
	case nil, int64, float64, bool, string, []byte:
		return v
	}
	return fmt.Sprint(v)
}

func numericString(n pgtype.Numeric) string {
	s := n.Int.String()
	if n.Exp >= 0 {
		return s + strings.Repeat("0", int(n.Exp))
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	frac := int(-n.Exp)
	if len(s) <= frac {
		s = strings.Repeat("0", frac-len(s)+1) + s
	}
	s = s[:len(s)-frac] + "." + s[len(s)-frac:]
	if neg {
		s = "-" + s
	}
	return s
}

func interrupted(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return translate(err)
}

// translate carries the SQLSTATE of a server error into a backend error.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{SQLState: pgErr.Code, Msg: pgErr.Message}
	}
	return err
}
