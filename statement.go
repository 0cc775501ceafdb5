package warpdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/warpdrive/go-warpdrive/backend"
)

type stmtState int

const (
	stmtAllocated stmtState = iota
	stmtPrepared
	// stmtExecuted has a result set or an update count.
	stmtExecuted
	// stmtNeedData has a suspended data-at-execution operation.
	stmtNeedData
	// stmtPositioned has a fetched rowset.
	stmtPositioned
)

func (st stmtState) String() string {
	switch st {
	case stmtAllocated:
		return "allocated"
	case stmtPrepared:
		return "prepared"
	case stmtExecuted:
		return "executed"
	case stmtNeedData:
		return "need-data"
	case stmtPositioned:
		return "positioned"
	}
	return "unknown"
}

// Stmt is a statement handle. A statement is not safe for concurrent use,
// except for Cancel.
type Stmt struct {
	handle
	conn *Conn
	bs   backend.Statement

	state      stmtState
	prepared   bool
	closed     bool
	query      string
	cursorName string

	cursor   *cursor
	rowCount int64

	// ard and apd are the active application descriptors; they point to
	// the private defaults unless an explicit descriptor is assigned.
	ard, apd               *Desc
	ird, ipd               *Desc
	defaultARD, defaultAPD *Desc

	attrs    stmtAttrs
	bindings []colBinding
	pending  *suspendedOp
	getData  getDataState

	running   atomic.Bool
	cancelled atomic.Bool
}

func newStmt(c *Conn, bs backend.Statement) *Stmt {
	logger := c.env.driver.logger
	s := &Stmt{
		handle:     newHandle(logger, "stmt"),
		conn:       c,
		bs:         bs,
		rowCount:   -1,
		attrs:      defaultStmtAttrs(c.cfg),
		defaultARD: newDesc(logger, descApp, nil),
		defaultAPD: newDesc(logger, descApp, nil),
		ird:        newDesc(logger, descIRD, nil),
		ipd:        newDesc(logger, descIPD, nil),
	}
	s.ard = s.defaultARD
	s.apd = s.defaultAPD
	return s
}

func (s *Stmt) HandleType() int16 {
	return SQL_HANDLE_STMT
}

func (s *Stmt) odbc2() bool {
	return s.conn.odbc2()
}

// call runs fn at the call boundary of a live statement.
func (s *Stmt) call(fn func() (SQLRETURN, error)) SQLRETURN {
	if s == nil || s.closed {
		return SQL_INVALID_HANDLE
	}
	return s.execute(fn)
}

// begin marks a backend-bound operation as running so that Cancel can
// reach it. The returned function ends the operation.
func (s *Stmt) begin(ctx context.Context) (context.Context, func()) {
	s.cancelled.Store(false)
	s.running.Store(true)
	ctx, release := s.conn.ctxs.start(ctx, s.id)
	return ctx, func() {
		release()
		s.running.Store(false)
	}
}

// checkpoint fails once the running operation has been cancelled.
func (s *Stmt) checkpoint(ctx context.Context) error {
	if s.cancelled.Load() {
		return errCancelled
	}
	return ctx.Err()
}

func (s *Stmt) checkIdle() error {
	if s.pending != nil {
		return getError(errSequence, errors.New("a data-at-execution operation is in progress"))
	}
	if s.cursor != nil {
		return errInvalidCursor
	}
	return nil
}

// Prepare prepares query for later execution and describes its result in
// the implementation row descriptor when the backend can do so.
func (s *Stmt) Prepare(ctx context.Context, query string) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if err := s.checkIdle(); err != nil {
			return SQL_ERROR, err
		}
		ctx, done := s.begin(ctx)
		defer done()
		if err := s.checkpoint(ctx); err != nil {
			return SQL_ERROR, err
		}

		cols, err := s.bs.Prepare(ctx, query)
		if err != nil {
			s.prepared = false
			s.state = stmtAllocated
			return SQL_ERROR, err
		}
		s.query = query
		s.prepared = true
		s.state = stmtPrepared
		s.rowCount = -1
		s.describe(cols)
		s.logger.Debug("prepared", slog.String("query", query), slog.Int("columns", len(cols)))
		return SQL_SUCCESS, nil
	})
}

// Execute runs the prepared statement with the bound parameters.
func (s *Stmt) Execute(ctx context.Context) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if err := s.checkIdle(); err != nil {
			return SQL_ERROR, err
		}
		if !s.prepared {
			return SQL_ERROR, errNotPrepared
		}
		return s.run(ctx)
	})
}

// ExecDirect prepares and runs query in one step. The statement is not
// left prepared.
func (s *Stmt) ExecDirect(ctx context.Context, query string) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if err := s.checkIdle(); err != nil {
			return SQL_ERROR, err
		}
		s.prepared = false
		s.query = query
		s.state = stmtAllocated
		return s.run(ctx)
	})
}

func (s *Stmt) run(ctx context.Context) (SQLRETURN, error) {
	ctx, done := s.begin(ctx)
	defer done()
	if err := s.conn.ensureTx(ctx); err != nil {
		return SQL_ERROR, err
	}
	s.rowCount = -1
	op, err := s.newExecuteOp()
	if err != nil {
		return SQL_ERROR, err
	}
	s.logger.Debug("executing", slog.String("query", s.query), slog.Int("paramset", op.end))
	return s.resume(ctx, op)
}

func (s *Stmt) execOptions() backend.ExecOptions {
	return backend.ExecOptions{
		Keyset:  s.attrs.concurrency != SQL_CONCUR_READ_ONLY || s.attrs.useBookmarks == SQL_UB_VARIABLE,
		MaxRows: s.attrs.maxRows,
	}
}

// executeOnce runs the statement text for one parameter row.
func (s *Stmt) executeOnce(ctx context.Context, args []any) error {
	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	if s.prepared {
		return s.bs.ExecutePrepared(ctx, args, s.execOptions())
	}
	return s.bs.Execute(ctx, s.query, args, s.execOptions())
}

// openResult takes over the result of the last execution: a row producing
// statement gets a cursor, any other reports its update count.
func (s *Stmt) openResult(updated int64) {
	rs := s.bs.ResultSet()
	s.diag.rowCount = updated
	if rs == nil {
		s.rowCount = updated
		s.ird.setCount(0)
		s.state = stmtExecuted
		return
	}
	s.cursor = newCursor(s, rs)
	s.describe(rs.Metadata())
	s.rowCount = -1
	s.state = stmtExecuted
	s.getData = getDataState{}
}

// describe refreshes the implementation row descriptor from result
// metadata.
func (s *Stmt) describe(cols []backend.Column) {
	if cols == nil {
		s.ird.setCount(0)
	} else {
		s.ird.populateFromResultMetadata(cols, s.odbc2())
	}
	s.ird.bookmark = bookmarkRecord(s.attrs.useBookmarks == SQL_UB_VARIABLE)
	s.bindings = nil
}

// CloseCursor closes the open cursor. It fails when there is none.
func (s *Stmt) CloseCursor() SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, getError(errSequence, errors.New("a data-at-execution operation is in progress"))
		}
		return SQL_SUCCESS, s.closeCursor(false)
	})
}

// MoreResults moves to the next result of the statement. Every statement
// produces at most one result, so the current one is closed and
// SQL_NO_DATA returned.
func (s *Stmt) MoreResults(ctx context.Context) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, getError(errSequence, errors.New("a data-at-execution operation is in progress"))
		}
		if err := s.closeCursor(true); err != nil {
			return SQL_ERROR, err
		}
		return SQL_NO_DATA, nil
	})
}

// maxCursorNameLen bounds the length of a cursor name.
const maxCursorNameLen = 18

// name reports the cursor name, generating the default on first use.
func (s *Stmt) name() string {
	if s.cursorName == "" {
		s.cursorName = fmt.Sprintf("SQL_CUR%X", s.id[:4])
	}
	return s.cursorName
}

// SetCursorName names the cursor of s. Names are unique among the
// statements of a connection, compared without regard to case.
func (s *Stmt) SetCursorName(name string) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.cursor != nil {
			return SQL_ERROR, errInvalidCursor
		}
		upper := strings.ToUpper(name)
		if name == "" || len(name) > maxCursorNameLen ||
			strings.HasPrefix(upper, "SQLCUR") || strings.HasPrefix(upper, "SQL_CUR") {
			return SQL_ERROR, fmt.Errorf("%w: %q", errInvalidCursorName, name)
		}
		for _, other := range s.conn.statements() {
			if other != s && strings.EqualFold(other.cursorName, name) {
				return SQL_ERROR, fmt.Errorf("%w: %q", errDuplicateCursorName, name)
			}
		}
		s.cursorName = name
		return SQL_SUCCESS, nil
	})
}

// GetCursorName copies the cursor name into buf.
func (s *Stmt) GetCursorName(buf []byte, nameLen *int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		var n int32
		if putString(s.name(), buf, &n) {
			s.warn(stateTruncated, "cursor name truncated")
		}
		setIf(nameLen, int16(n))
		return SQL_SUCCESS, nil
	})
}

// closeCursor releases the current result. With suppress set a missing
// cursor is not an error.
func (s *Stmt) closeCursor(suppress bool) error {
	if s.cursor == nil {
		if suppress {
			return nil
		}
		return errInvalidCursor
	}
	err := s.cursor.close()
	s.cursor = nil
	s.getData = getDataState{}
	if s.prepared {
		s.state = stmtPrepared
	} else {
		s.state = stmtAllocated
	}
	return err
}

// FreeStmt closes the cursor, unbinds columns, resets parameters or
// drops the statement.
func (s *Stmt) FreeStmt(option int16) SQLRETURN {
	if option == SQL_DROP {
		if s == nil || s.closed {
			return SQL_INVALID_HANDLE
		}
		s.diag.clear()
		s.drop()
		return SQL_SUCCESS
	}
	return s.call(func() (SQLRETURN, error) {
		switch option {
		case SQL_CLOSE:
			if err := s.discardPending(context.Background()); err != nil {
				return SQL_ERROR, err
			}
			return SQL_SUCCESS, s.closeCursor(true)
		case SQL_UNBIND:
			s.ard.setCount(0)
			s.ard.bookmark.dataPtr = Ptr{}
			s.ard.bookmark.indicatorPtr = Ptr{}
			s.ard.bookmark.octetLengthPtr = Ptr{}
			return SQL_SUCCESS, nil
		case SQL_RESET_PARAMS:
			s.apd.setCount(0)
			s.ipd.setCount(0)
			return SQL_SUCCESS, nil
		}
		return SQL_ERROR, attributeError(int32(option))
	})
}

// drop releases every resource of s and unlinks it from its connection.
func (s *Stmt) drop() {
	if s.closed {
		return
	}
	if err := s.discardPending(context.Background()); err != nil {
		s.logger.Warn("discarding suspended operation", slog.Any("error", err))
	}
	if err := s.closeCursor(true); err != nil {
		s.logger.Warn("closing cursor", slog.Any("error", err))
	}
	if s.ard != s.defaultARD {
		s.ard.detach(s, false)
	}
	if s.apd != s.defaultAPD {
		s.apd.detach(s, true)
	}
	if err := s.bs.Close(); err != nil {
		s.logger.Warn("closing backend statement", slog.Any("error", err))
	}
	s.conn.removeStmt(s)
	s.closed = true
	s.logger.Debug("statement dropped")
}

// Cancel cancels the operation running on s, or discards a suspended
// data-at-execution operation. Cancel may be called from another goroutine
// while an operation runs.
func (s *Stmt) Cancel() SQLRETURN {
	if s == nil || s.closed {
		return SQL_INVALID_HANDLE
	}
	if s.running.Load() {
		s.cancelled.Store(true)
		s.conn.ctxs.cancel(s.id)
		if err := s.bs.Cancel(); err != nil {
			s.logger.Debug("backend cancel", slog.Any("error", err))
		}
		return SQL_SUCCESS
	}
	return s.execute(func() (SQLRETURN, error) {
		return SQL_SUCCESS, s.discardPending(context.Background())
	})
}

// revertDescriptor makes the private default the active application
// descriptor of one side.
func (s *Stmt) revertDescriptor(isParam bool) {
	if isParam {
		s.apd = s.defaultAPD
		s.apd.changed = true
		return
	}
	s.ard = s.defaultARD
	s.ard.changed = true
	s.bindings = nil
}

// copyAttributesFrom takes over the inheritable attributes of t.
func (s *Stmt) copyAttributesFrom(t *Stmt) error {
	s.attrs.metadataID = t.attrs.metadataID
	s.attrs.maxLength = t.attrs.maxLength
	s.attrs.noScan = t.attrs.noScan
	s.attrs.queryTimeout = t.attrs.queryTimeout
	s.ard.bindType = t.ard.bindType
	return s.syncBackendAttrs()
}

// syncBackendAttrs forwards the attributes the backend honours.
func (s *Stmt) syncBackendAttrs() error {
	return errors.Join(
		s.bs.SetAttribute(backend.AttrQueryTimeout, s.attrs.queryTimeout),
		s.bs.SetAttribute(backend.AttrMaxRows, s.attrs.maxRows),
		s.bs.SetAttribute(backend.AttrMaxLength, s.attrs.maxLength),
		s.bs.SetAttribute(backend.AttrNoScan, s.attrs.noScan),
	)
}
