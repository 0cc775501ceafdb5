package warpdrive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warpdrive/go-warpdrive/backend"
)

func mutating(op int16) bool {
	switch op {
	case SQL_UPDATE, SQL_DELETE, SQL_ADD, SQL_UPDATE_BY_BOOKMARK, SQL_DELETE_BY_BOOKMARK:
		return true
	}
	return false
}

// checkMutable fails when the cursor cannot take positioned mutations.
func (s *Stmt) checkMutable() error {
	if s.attrs.concurrency == SQL_CONCUR_READ_ONLY {
		return errReadOnlyCursor
	}
	if !s.cursor.updatable() {
		return errNotUpdatable
	}
	return nil
}

// SetPos positions the cursor on row irow of the rowset and refreshes,
// updates, deletes or inserts through it. irow 0 applies op to every row
// of the rowset the row operation array does not ignore.
func (s *Stmt) SetPos(ctx context.Context, irow uint64, op, lock int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
		}
		switch op {
		case SQL_POSITION, SQL_REFRESH, SQL_UPDATE, SQL_DELETE, SQL_ADD:
		default:
			return SQL_ERROR, fmt.Errorf("%w: operation %d", errInvalidAttribute, op)
		}
		if lock != SQL_LOCK_NO_CHANGE {
			return SQL_ERROR, fmt.Errorf("%w: lock type %d", errNotImplemented, lock)
		}
		c := s.cursor
		if c == nil {
			return SQL_ERROR, fmt.Errorf("%w: no result set", errSequence)
		}
		if !c.positioned() && op != SQL_ADD {
			return SQL_ERROR, fmt.Errorf("%w: no rowset fetched", errInvalidCursor)
		}
		rows := c.lastSize
		if op == SQL_ADD {
			rows = int(max(s.ard.arraySize, 1))
		}
		if irow > uint64(rows) {
			return SQL_ERROR, fmt.Errorf("%w: row %d of a %d row rowset", errRowRange, irow, rows)
		}
		if op == SQL_POSITION {
			if irow == 0 {
				return SQL_ERROR, fmt.Errorf("%w: cannot position on row 0", errCursorPosition)
			}
			c.current = int(irow)
			s.getData = getDataState{}
			return SQL_SUCCESS, nil
		}
		if mutating(op) {
			if err := s.checkMutable(); err != nil {
				return SQL_ERROR, err
			}
		}

		sop := &suspendedOp{kind: opSetPos, op: op, prevState: s.state, cur: -1}
		first, last := 1, rows
		if irow != 0 {
			first, last = int(irow), int(irow)
		}
		rowOps := s.ard.arrayStatusPtr
		for i := first; i <= last; i++ {
			r := opRow{buf: i - 1, target: c.rowsetIndex(i)}
			if op == SQL_ADD {
				r.target = -1
			}
			if irow == 0 && !rowOps.IsNull() && rowOps.Add(2*(i-1)).Uint16() == SQL_ROW_IGNORE {
				r.ignore = true
			}
			sop.rows = append(sop.rows, r)
		}
		sop.end = len(sop.rows)
		if irow != 0 && op != SQL_ADD {
			c.current = int(irow)
		}
		s.getData = getDataState{}

		ctx, done := s.begin(ctx)
		defer done()
		if err := s.checkpoint(ctx); err != nil {
			return SQL_ERROR, err
		}
		if mutating(op) {
			implicit, err := s.conn.beginImplicit(ctx)
			if err != nil {
				return SQL_ERROR, err
			}
			sop.implicit = implicit
		}
		return s.resume(ctx, sop)
	})
}

// BulkOperations adds rows from the bound buffers, or updates, deletes or
// fetches the rows whose bookmarks are bound to column 0.
func (s *Stmt) BulkOperations(ctx context.Context, op int16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if s.pending != nil {
			return SQL_ERROR, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
		}
		switch op {
		case SQL_ADD, SQL_UPDATE_BY_BOOKMARK, SQL_DELETE_BY_BOOKMARK, SQL_FETCH_BY_BOOKMARK:
		default:
			return SQL_ERROR, fmt.Errorf("%w: operation %d", errInvalidAttribute, op)
		}
		c := s.cursor
		if c == nil {
			return SQL_ERROR, fmt.Errorf("%w: no result set", errSequence)
		}
		if op != SQL_ADD && s.attrs.useBookmarks == SQL_UB_OFF {
			return SQL_ERROR, fmt.Errorf("%w: bookmarks are off", errInvalidAttribute)
		}
		if mutating(op) {
			if err := s.checkMutable(); err != nil {
				return SQL_ERROR, err
			}
		}

		bop := &suspendedOp{kind: opBulk, op: op, prevState: s.state, cur: -1}
		rowOps := s.ard.arrayStatusPtr
		for i := 0; i < int(max(s.ard.arraySize, 1)); i++ {
			r := opRow{buf: i, target: -1}
			if !rowOps.IsNull() && rowOps.Add(2*i).Uint16() == SQL_ROW_IGNORE {
				r.ignore = true
			}
			bop.rows = append(bop.rows, r)
		}
		bop.end = len(bop.rows)

		ctx, done := s.begin(ctx)
		defer done()
		if err := s.checkpoint(ctx); err != nil {
			return SQL_ERROR, err
		}
		if mutating(op) {
			implicit, err := s.conn.beginImplicit(ctx)
			if err != nil {
				return SQL_ERROR, err
			}
			bop.implicit = implicit
		}
		return s.resume(ctx, bop)
	})
}

// bookmarkAt decodes the bookmark bound for buffer row buf.
func (s *Stmt) bookmarkAt(buf int) (int, backend.RowID, error) {
	bindings := s.computeBindings()
	if len(bindings) == 0 || bindings[0].col != 0 {
		return 0, backend.RowID{}, fmt.Errorf("%w: bookmark column is not bound", errInvalidDescIndex)
	}
	b := bindings[0]
	data, _, _ := element(s.ard, b.rec, buf, b.bufLen)
	return decodeBookmark(data, b.cType == SQL_C_VARBOOKMARK)
}

// performRow runs a positioned or bulk operation for one collected row.
func (s *Stmt) performRow(ctx context.Context, op *suspendedOp, r opRow) {
	index, id := r.target, r.id
	if op.kind == opBulk && op.op != SQL_ADD {
		var err error
		if index, id, err = s.bookmarkAt(r.buf); err != nil {
			s.rowFailed(op, r, err)
			return
		}
	}

	var st uint16
	var err error
	switch op.op {
	case SQL_UPDATE, SQL_UPDATE_BY_BOOKMARK:
		st, err = s.posUpdate(ctx, index, id, op.columns, append([]any(nil), op.values...))
	case SQL_DELETE, SQL_DELETE_BY_BOOKMARK:
		st, err = s.posDelete(ctx, index, id)
	case SQL_ADD:
		st, err = s.posAdd(ctx, append([]string(nil), op.columns...), append([]any(nil), op.values...))
	case SQL_REFRESH:
		if st, err = s.posRefresh(ctx, index); err == nil {
			st = s.retransfer(r.buf, index, st)
		}
	case SQL_FETCH_BY_BOOKMARK:
		st, err = s.fetchBookmarked(ctx, r.buf, index)
	}
	if err != nil {
		s.rowFailed(op, r, err)
		return
	}
	switch st {
	case SQL_ROW_UPDATED, SQL_ROW_DELETED, SQL_ROW_ADDED:
		if mutating(op.op) {
			op.affected++
		}
	}
	op.succeeded++
	s.setOpStatus(op, r, st)
}

// retransfer copies a refreshed row back into buffer row buf.
func (s *Stmt) retransfer(buf, index int, st uint16) uint16 {
	row := s.cursor.rowAt(index)
	if row == nil || row.key.deleted() || s.attrs.retrieveData == SQL_RD_OFF {
		return st
	}
	if rs := s.transferRow(buf, index, row.values, s.computeBindings()); rs != SQL_ROW_SUCCESS {
		return rs
	}
	return st
}

// fetchBookmarked transfers the row a bookmark addresses into buffer row
// buf.
func (s *Stmt) fetchBookmarked(ctx context.Context, buf, index int) (uint16, error) {
	c := s.cursor
	if index < 0 {
		return SQL_ROW_ERROR, fmt.Errorf("%w: bookmark %d", errRowRange, index+1)
	}
	if err := c.ensure(ctx, index+1); err != nil {
		return SQL_ROW_ERROR, err
	}
	row := c.rowAt(index)
	if row == nil {
		return SQL_ROW_ERROR, fmt.Errorf("%w: bookmark %d", errRowRange, index+1)
	}
	st := row.key.public()
	if row.key.deleted() {
		return st, nil
	}
	if rs := s.transferRow(buf, index, row.values, s.computeBindings()); rs != SQL_ROW_SUCCESS {
		return rs, nil
	}
	return st, nil
}

// finishRows completes a positioned or bulk operation: the transaction it
// began is committed when every row succeeded and rolled back otherwise.
func (s *Stmt) finishRows(ctx context.Context, op *suspendedOp) (SQLRETURN, error) {
	var err error
	rolledBack := false
	if op.implicit {
		err = s.conn.endTran(ctx, !op.failed)
		rolledBack = op.failed
		op.implicit = false
	}
	s.state = op.prevState
	if s.state == stmtNeedData {
		s.state = stmtPositioned
	}
	if mutating(op.op) {
		s.rowCount = op.affected
		s.diag.rowCount = op.affected
	}
	s.logger.Debug("row operation finished",
		slog.String("kind", op.kind.String()),
		slog.Int("op", int(op.op)),
		slog.Int("processed", op.processed),
		slog.Int64("affected", op.affected),
		slog.Bool("failed", op.failed))
	if op.kind == opBulk {
		if p := s.ird.rowsProcessedPtr; !p.IsNull() {
			p.PutUint64(uint64(op.processed))
		}
		if op.processed == 0 {
			return SQL_ERROR, fmt.Errorf("%w: no rows processed", errRowRange)
		}
	}
	switch {
	case err != nil:
		return SQL_ERROR, err
	case op.failed && (op.succeeded == 0 || rolledBack):
		return SQL_ERROR, nil
	case op.failed:
		return SQL_SUCCESS_WITH_INFO, nil
	}
	return SQL_SUCCESS, nil
}
