package warpdrive

import (
	"context"
	"fmt"
	"log/slog"
)

// SQL_ROW_NUMBER_UNKNOWN is reported by ROW_NUMBER when the cursor is not
// on a row.
const SQL_ROW_NUMBER_UNKNOWN int64 = 0

// Fetch fetches the next rowset.
func (s *Stmt) Fetch(ctx context.Context) SQLRETURN {
	return s.FetchScroll(ctx, SQL_FETCH_NEXT, 0)
}

// FetchScroll positions the cursor on the rowset orient and offset select
// and transfers it into the bound buffers. The rowset size is the row
// array size of the active row descriptor.
func (s *Stmt) FetchScroll(ctx context.Context, orient int16, offset int64) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		size := int(s.ard.arraySize)
		statusPtr := s.ird.arrayStatusPtr
		fetched := s.ird.rowsProcessedPtr
		n, rc, err := s.fetch(ctx, orient, offset, size, func(i int, st uint16) {
			if !statusPtr.IsNull() {
				statusPtr.Add(2 * i).PutUint16(st)
			}
		})
		if err != nil {
			return SQL_ERROR, err
		}
		if !fetched.IsNull() {
			fetched.PutUint64(uint64(n))
		}
		return rc, nil
	})
}

// ExtendedFetch is the ODBC 2 fetch: the rowset size is ROWSET_SIZE and
// the row count and status array are arguments.
func (s *Stmt) ExtendedFetch(ctx context.Context, orient int16, offset int64, rowCount *uint64, rowStatus []uint16) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		size := int(s.attrs.rowsetSize)
		n, rc, err := s.fetch(ctx, orient, offset, size, func(i int, st uint16) {
			if i < len(rowStatus) {
				rowStatus[i] = st
			}
		})
		if err != nil {
			return SQL_ERROR, err
		}
		if rowCount != nil {
			*rowCount = uint64(n)
		}
		return rc, nil
	})
}

func (s *Stmt) fetch(ctx context.Context, orient int16, offset int64, size int, status func(int, uint16)) (int, SQLRETURN, error) {
	if s.pending != nil {
		return 0, SQL_ERROR, fmt.Errorf("%w: a data-at-execution operation is in progress", errSequence)
	}
	c := s.cursor
	if c == nil {
		return 0, SQL_ERROR, fmt.Errorf("%w: no result set", errSequence)
	}
	switch orient {
	case SQL_FETCH_NEXT, SQL_FETCH_PRIOR, SQL_FETCH_FIRST, SQL_FETCH_LAST,
		SQL_FETCH_ABSOLUTE, SQL_FETCH_RELATIVE, SQL_FETCH_BOOKMARK:
	default:
		return 0, SQL_ERROR, fmt.Errorf("%w: %d", errFetchTypeRange, orient)
	}
	if orient != SQL_FETCH_NEXT && c.forwardOnly() {
		return 0, SQL_ERROR, fmt.Errorf("%w: forward-only cursor", errFetchTypeRange)
	}
	if orient == SQL_FETCH_BOOKMARK && s.attrs.useBookmarks == SQL_UB_OFF {
		return 0, SQL_ERROR, fmt.Errorf("%w: bookmarks are off", errFetchTypeRange)
	}
	if size < 1 {
		size = 1
	}

	ctx, done := s.begin(ctx)
	defer done()

	prevStart, prevSize := c.start, c.lastSize
	n, err := c.position(ctx, orient, offset, size)
	if err != nil {
		return 0, SQL_ERROR, err
	}
	c.markRowset(prevStart, prevSize)
	s.getData = getDataState{}
	if n == 0 {
		for i := 0; i < size; i++ {
			status(i, SQL_ROW_NOROW)
		}
		s.state = stmtExecuted
		return 0, SQL_NO_DATA, nil
	}

	failed := 0
	err = s.transferRowset(ctx, c, n, size, func(i int, st uint16) {
		if st == SQL_ROW_ERROR {
			failed++
		}
		status(i, st)
	})
	if err != nil {
		return n, SQL_ERROR, err
	}
	s.state = stmtPositioned
	s.logger.Debug("fetched", slog.Int("start", c.start), slog.Int("rows", n), slog.Int("failed", failed))
	switch {
	case failed == n:
		return n, SQL_ERROR, nil
	case failed > 0:
		// Errors of single rows do not fail the rowset.
		return n, SQL_SUCCESS_WITH_INFO, nil
	}
	return n, SQL_SUCCESS, nil
}

// transferRowset copies the current rowset into the bound buffers and
// reports each row's status. Deleted rows are not transferred.
func (s *Stmt) transferRowset(ctx context.Context, c *cursor, n, size int, status func(int, uint16)) error {
	bindings := s.computeBindings()
	for i := 0; i < size; i++ {
		if i >= n {
			status(i, SQL_ROW_NOROW)
			continue
		}
		index := c.start - 1 + i
		row := c.rowAt(index)
		if row.key.status&keyNeedsReread != 0 && c.updatable() {
			if err := s.refreshRow(ctx, index); err != nil {
				return err
			}
		}
		st := row.key.public()
		if !row.key.deleted() && s.attrs.retrieveData == SQL_RD_ON {
			switch rs := s.transferRow(i, index, row.values, bindings); {
			case rs == SQL_ROW_ERROR:
				st = rs
			case rs != SQL_ROW_SUCCESS && st == SQL_ROW_SUCCESS:
				st = rs
			}
		}
		status(i, st)
	}
	return nil
}

// position moves the cursor to the rowset orient and offset select and
// returns the number of rows in it, 0 when the cursor ends up before the
// start or after the end.
func (c *cursor) position(ctx context.Context, orient int16, offset int64, size int) (int, error) {
	var target int64
	cur := int64(c.start)
	rows := int64(size)
	beforeStart := c.start == 0 && !c.afterEnd

	switch orient {
	case SQL_FETCH_NEXT:
		switch {
		case beforeStart:
			target = 1
		case c.afterEnd:
			return c.toAfterEnd(), nil
		default:
			target = cur + int64(max(c.lastSize, 1))
		}
	case SQL_FETCH_PRIOR:
		switch {
		case beforeStart:
			return c.toBeforeStart(), nil
		case c.afterEnd:
			if err := c.ensureAll(ctx); err != nil {
				return 0, err
			}
			last := int64(c.count())
			if last < rows {
				target = 1
				c.stmt.warn(stateRowsetRange, "rowset overlaps the start of the result")
			} else {
				target = last - rows + 1
			}
		case cur == 1:
			return c.toBeforeStart(), nil
		case cur <= rows:
			target = 1
			c.stmt.warn(stateRowsetRange, "rowset overlaps the start of the result")
		default:
			target = cur - rows
		}
	case SQL_FETCH_RELATIVE:
		switch {
		case beforeStart && offset > 0, c.afterEnd && offset < 0:
			return c.position(ctx, SQL_FETCH_ABSOLUTE, offset, size)
		case beforeStart:
			return c.toBeforeStart(), nil
		case c.afterEnd:
			return c.toAfterEnd(), nil
		case cur+offset < 1:
			if cur == 1 || -offset > rows {
				return c.toBeforeStart(), nil
			}
			target = 1
			c.stmt.warn(stateRowsetRange, "rowset overlaps the start of the result")
		default:
			target = cur + offset
		}
	case SQL_FETCH_ABSOLUTE:
		switch {
		case offset < 0:
			if err := c.ensureAll(ctx); err != nil {
				return 0, err
			}
			last := int64(c.count())
			switch {
			case -offset <= last:
				target = last + offset + 1
			case -offset > rows:
				return c.toBeforeStart(), nil
			default:
				target = 1
				c.stmt.warn(stateRowsetRange, "rowset overlaps the start of the result")
			}
		case offset == 0:
			return c.toBeforeStart(), nil
		default:
			target = offset
		}
	case SQL_FETCH_FIRST:
		target = 1
	case SQL_FETCH_LAST:
		if err := c.ensureAll(ctx); err != nil {
			return 0, err
		}
		last := int64(c.count())
		if last <= rows {
			target = 1
		} else {
			target = last - rows + 1
		}
	case SQL_FETCH_BOOKMARK:
		index, _, err := decodeBookmark(c.stmt.attrs.fetchBookmarkPtr, c.stmt.attrs.useBookmarks == SQL_UB_VARIABLE)
		if err != nil {
			return 0, err
		}
		target = int64(index) + 1 + offset
		if target < 1 {
			return c.toBeforeStart(), nil
		}
	}

	if err := c.ensure(ctx, int(target+rows-1)); err != nil {
		return 0, err
	}
	count := int64(c.count())
	if target > count {
		return c.toAfterEnd(), nil
	}
	if target <= int64(c.base) {
		return 0, fmt.Errorf("%w: row %d has left the forward-only window", errRowRange, target)
	}
	c.start = int(target)
	c.afterEnd = false
	c.lastSize = int(min(rows, count-target+1))
	c.current = 1
	c.slide(c.start - 1)
	return c.lastSize, nil
}

func (c *cursor) toBeforeStart() int {
	c.start, c.afterEnd, c.lastSize, c.current = 0, false, 0, 0
	return 0
}

func (c *cursor) toAfterEnd() int {
	c.start, c.afterEnd, c.lastSize, c.current = 0, true, 0, 0
	return 0
}

// rowNumber is the 1-based result position of the current row.
func (s *Stmt) rowNumber() int64 {
	c := s.cursor
	if c == nil || !c.positioned() {
		return SQL_ROW_NUMBER_UNKNOWN
	}
	return int64(c.start + max(c.current, 1) - 1)
}
