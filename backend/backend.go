// Package backend defines the query-execution capabilities the warpdrive
// engine consumes: a connection with transaction control and positioned
// row mutation, statements that prepare and execute queries, and result
// sets that produce rows together with their physical identity.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RowID is the physical identity of a row: a block/offset pair, or a
// 64-bit row key for backends that address rows by number, plus the
// identifier of the object (table) that owns it.
type RowID struct {
	Block  uint32
	Offset uint16
	Key    int64
	OID    uint32
}

// IsZero reports whether id carries no identity.
func (id RowID) IsZero() bool {
	return id == RowID{}
}

// String formats the block/offset pair as "(block,offset)", or the row
// key as "(key)" when the identity has no block/offset pair.
func (id RowID) String() string {
	if id.Block == 0 && id.Offset == 0 && id.Key != 0 {
		return fmt.Sprintf("(%d)", id.Key)
	}
	return fmt.Sprintf("(%d,%d)", id.Block, id.Offset)
}

// SQL type codes reported in Column.SQLType.
const (
	TypeChar          int16 = 1
	TypeNumeric       int16 = 2
	TypeDecimal       int16 = 3
	TypeInteger       int16 = 4
	TypeSmallint      int16 = 5
	TypeReal          int16 = 7
	TypeDouble        int16 = 8
	TypeVarchar       int16 = 12
	TypeDate          int16 = 91
	TypeTime          int16 = 92
	TypeTimestamp     int16 = 93
	TypeLongVarchar   int16 = -1
	TypeBinary        int16 = -2
	TypeVarbinary     int16 = -3
	TypeLongVarbinary int16 = -4
	TypeBigint        int16 = -5
	TypeTinyint       int16 = -6
	TypeBit           int16 = -7
	TypeGUID          int16 = -11
)

// Nullability, searchability and updatability codes of a Column.
const (
	NoNulls         int16 = 0
	Nullable        int16 = 1
	NullableUnknown int16 = 2

	Unsearchable int16 = 0
	Searchable   int16 = 3

	ReadOnly         int16 = 0
	Writable         int16 = 1
	UpdatableUnknown int16 = 2
)

// Column describes one result column.
type Column struct {
	Name       string
	Label      string
	TypeName   string
	BaseColumn string
	Table      string
	Schema     string
	Catalog    string

	// SQLType is the concise SQL type code of the column.
	SQLType     int16
	Length      int64
	OctetLength int64
	Precision   int16
	Scale       int16
	DisplaySize int64
	Nullable    int16
	Searchable  int16
	Updatable   int16

	Unsigned       bool
	CaseSensitive  bool
	AutoUnique     bool
	FixedPrecScale bool

	LiteralPrefix string
	LiteralSuffix string
}

// Row is one produced row. Values hold nil, int64, float64, bool, string,
// []byte or time.Time.
type Row struct {
	ID     RowID
	Values []any
}

// ExecOptions tune one execution.
type ExecOptions struct {
	// Keyset asks the backend to produce physical row identities.
	Keyset bool
	// MaxRows caps the number of produced rows when positive.
	MaxRows int64
}

// Attr identifies a backend statement attribute.
type Attr int

const (
	AttrQueryTimeout Attr = iota
	AttrMaxRows
	AttrMaxLength
	AttrNoScan
)

// Connection is a session with the backend.
type Connection interface {
	NewStatement(ctx context.Context) (Statement, error)
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Mutate performs a positioned update, delete or insert.
	Mutate(ctx context.Context, m Mutation) (MutationResult, error)
	// Reread returns the current content of the row identified by id, or
	// nil when the row no longer exists.
	Reread(ctx context.Context, table string, id RowID, columns []string) (*Row, error)
	Close() error
}

// Statement is a backend statement handle.
type Statement interface {
	// Prepare stores query for later execution and returns the result
	// columns when the backend can describe them without executing.
	Prepare(ctx context.Context, query string) ([]Column, error)
	Execute(ctx context.Context, query string, args []any, opts ExecOptions) error
	ExecutePrepared(ctx context.Context, args []any, opts ExecOptions) error
	// ResultSet returns the result of the last execution, or nil when it
	// produced no rows.
	ResultSet() ResultSet
	UpdateCount() int64
	// Cancel aborts the execution in flight, if any.
	Cancel() error
	Attribute(attr Attr) (any, error)
	SetAttribute(attr Attr, value any) error
	Close() error
}

// ResultSet is a forward-only producer of rows.
type ResultSet interface {
	Metadata() []Column
	// Table is the single base table the rows come from, or "" when the
	// result cannot be updated by position.
	Table() string
	// Move produces up to n further rows. Fewer than n rows means the
	// result is exhausted.
	Move(ctx context.Context, n int) ([]Row, error)
	Close() error
}

// MutationKind selects the positioned operation of a Mutation.
type MutationKind int

const (
	MutationUpdate MutationKind = iota
	MutationDelete
	MutationInsert
)

func (k MutationKind) String() string {
	switch k {
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	case MutationInsert:
		return "insert"
	}
	return "unknown"
}

// Mutation is a positioned row operation qualified by physical identity.
type Mutation struct {
	Kind   MutationKind
	Table  string
	Target RowID
	// Columns and Values are the assigned columns for update and insert.
	Columns []string
	Values  []any
	// Returning names the columns to re-read after the mutation.
	Returning []string
	// ExpectColumns and Expect hold the values the target row had when it
	// was fetched. An update or delete only affects the row while it
	// still holds them.
	ExpectColumns []string
	Expect        []any
}

// MutationResult reports the outcome of a Mutation.
type MutationResult struct {
	Affected int64
	// Row is the re-read row after an update or insert, when exactly one
	// row was affected.
	Row *Row
}

// Options configure a backend connection.
type Options struct {
	Database     string
	QueryTimeout time.Duration
	Properties   map[string]string
	Logger       *slog.Logger
}

// Opener opens a backend connection.
type Opener func(ctx context.Context, opts Options) (Connection, error)

// Error is a backend-reported failure with its own SQLSTATE.
type Error struct {
	SQLState string
	Native   int32
	Msg      string
}

func (e *Error) Error() string {
	if e.SQLState == "" {
		return e.Msg
	}
	return fmt.Sprintf("[%s] %s", e.SQLState, e.Msg)
}

// Attrs holds the statement attributes a backend honours. Values arrive as
// int64, the query timeout in seconds.
type Attrs struct {
	QueryTimeout time.Duration
	MaxRows      int64
	MaxLength    int64
	NoScan       bool
}

func (a *Attrs) Get(attr Attr) (any, error) {
	switch attr {
	case AttrQueryTimeout:
		return int64(a.QueryTimeout / time.Second), nil
	case AttrMaxRows:
		return a.MaxRows, nil
	case AttrMaxLength:
		return a.MaxLength, nil
	case AttrNoScan:
		return a.NoScan, nil
	}
	return nil, fmt.Errorf("unknown attribute %d", attr)
}

func (a *Attrs) Set(attr Attr, value any) error {
	n, ok := value.(int64)
	if !ok {
		return fmt.Errorf("attribute %d: unsupported value %T", attr, value)
	}
	switch attr {
	case AttrQueryTimeout:
		a.QueryTimeout = time.Duration(n) * time.Second
	case AttrMaxRows:
		a.MaxRows = n
	case AttrMaxLength:
		a.MaxLength = n
	case AttrNoScan:
		a.NoScan = n != 0
	default:
		return fmt.Errorf("unknown attribute %d", attr)
	}
	return nil
}

// Limit combines the row cap of an execution with the MaxRows attribute.
func (a *Attrs) Limit(opts ExecOptions) int64 {
	limit := opts.MaxRows
	if a.MaxRows > 0 && (limit <= 0 || a.MaxRows < limit) {
		limit = a.MaxRows
	}
	return limit
}
