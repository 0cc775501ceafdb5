package warpdrive

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/warpdrive/go-warpdrive/backend"
)

// target resolves the keyset slot a positioned operation on row index
// addresses. fallback is the identity a variable bookmark carried, used
// when the row is neither cached nor logged.
func (c *cursor) target(index int, fallback backend.RowID) (keyEntry, *cachedRow, error) {
	k, err := c.resolve(index)
	if err != nil {
		if fallback.IsZero() {
			return keyEntry{}, nil, err
		}
		k = keyEntry{id: fallback}
	}
	if k.deleted() {
		return k, nil, fmt.Errorf("%w: row %d is deleted", errCursorPosition, index+1)
	}
	if k.id.IsZero() {
		return k, nil, fmt.Errorf("%w: row %d has no physical identity", errNotUpdatable, index+1)
	}
	return k, c.rowAt(index), nil
}

// journal records the state of row index before a positioned operation
// when the connection is inside a transaction.
func (c *cursor) journal(index int, op int16, prior *cachedRow, added bool) {
	if !c.stmt.conn.inTx {
		return
	}
	c.log.mark(index, op, prior, added)
}

// posUpdate assigns values to columns of row index.
func (s *Stmt) posUpdate(ctx context.Context, index int, fallback backend.RowID, columns []string, values []any) (uint16, error) {
	c := s.cursor
	k, row, err := c.target(index, fallback)
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	if len(columns) == 0 {
		return SQL_ROW_ERROR, errNoColumns
	}
	names := c.columnNames()
	expectCols, expect := c.expectation(row)
	res, err := s.conn.be.Mutate(ctx, backend.Mutation{
		Kind:          backend.MutationUpdate,
		Table:         c.table,
		Target:        k.id,
		Columns:       columns,
		Values:        values,
		Returning:     names,
		ExpectColumns: expectCols,
		Expect:        expect,
	})
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	s.logger.Debug("positioned update", slog.Int("row", index+1), slog.String("id", k.id.String()), slog.Int64("affected", res.Affected))

	switch {
	case res.Affected == 0:
		return s.conflict(ctx, index, k, row)
	case res.Affected > 1:
		return s.ambiguous(index, row)
	}

	id, tuple := k.id, merge(names, rowValues(row, len(names)), columns, values)
	if res.Row != nil {
		if !res.Row.ID.IsZero() {
			id = res.Row.ID
		}
		if res.Row.Values != nil {
			tuple = res.Row.Values
		}
	}
	c.journal(index, SQL_UPDATE, row, false)
	c.log.updated = append(c.log.updated, updatedEntry{index: index, id: id, values: tuple})
	if row != nil {
		row.key.id = id
		row.key.status |= keySelfUpdating
		row.key.setPublic(SQL_ROW_UPDATED)
		row.values = tuple
	}
	return SQL_ROW_UPDATED, nil
}

// posDelete deletes row index.
func (s *Stmt) posDelete(ctx context.Context, index int, fallback backend.RowID) (uint16, error) {
	c := s.cursor
	k, row, err := c.target(index, fallback)
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	expectCols, expect := c.expectation(row)
	res, err := s.conn.be.Mutate(ctx, backend.Mutation{
		Kind:          backend.MutationDelete,
		Table:         c.table,
		Target:        k.id,
		ExpectColumns: expectCols,
		Expect:        expect,
	})
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	s.logger.Debug("positioned delete", slog.Int("row", index+1), slog.String("id", k.id.String()), slog.Int64("affected", res.Affected))

	switch {
	case res.Affected == 0:
		return s.conflict(ctx, index, k, row)
	case res.Affected > 1:
		return s.ambiguous(index, row)
	}
	c.journal(index, SQL_DELETE, row, false)
	c.log.addDeleted(index, k.id)
	if row != nil {
		row.key.status |= keySelfDeleting
		row.key.setPublic(SQL_ROW_DELETED)
	}
	return SQL_ROW_DELETED, nil
}

// posAdd inserts a row and appends it to the cursor. The result is read
// to its end first so the new row follows every produced row.
func (s *Stmt) posAdd(ctx context.Context, columns []string, values []any) (uint16, error) {
	c := s.cursor
	if len(columns) == 0 {
		return SQL_ROW_ERROR, errNoColumns
	}
	if err := c.ensureAll(ctx); err != nil {
		return SQL_ROW_ERROR, err
	}
	names := c.columnNames()
	res, err := s.conn.be.Mutate(ctx, backend.Mutation{
		Kind:      backend.MutationInsert,
		Table:     c.table,
		Columns:   columns,
		Values:    values,
		Returning: names,
	})
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	if res.Affected != 1 {
		s.warn(stateCursorOpConflict, "insert affected %d rows", res.Affected)
		return SQL_ROW_SUCCESS_WITH_INFO, nil
	}

	index := c.count()
	key := keyEntry{status: SQL_ROW_ADDED | keySelfAdding}
	tuple := merge(names, make([]any, len(names)), columns, values)
	if res.Row != nil {
		key.id = res.Row.ID
		if res.Row.Values != nil {
			tuple = res.Row.Values
		}
	}
	c.journal(index, SQL_ADD, nil, true)
	c.log.added = append(c.log.added, addedEntry{index: index, id: key.id})
	c.rows = append(c.rows, cachedRow{key: key, values: tuple})
	s.logger.Debug("positioned insert", slog.Int("row", index+1), slog.String("id", key.id.String()))
	return SQL_ROW_ADDED, nil
}

// posRefresh rereads row index from the backend.
func (s *Stmt) posRefresh(ctx context.Context, index int) (uint16, error) {
	c := s.cursor
	row := c.rowAt(index)
	if row == nil {
		return SQL_ROW_ERROR, fmt.Errorf("%w: row %d is not cached", errRowRange, index+1)
	}
	if c.table == "" || row.key.id.IsZero() || row.key.deleted() {
		return row.key.public(), nil
	}
	r, err := s.conn.be.Reread(ctx, c.table, row.key.id, c.columnNames())
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	row.key.status &^= keyNeedsReread
	if r == nil {
		row.key.status |= keyOtherDeleted
		row.key.setPublic(SQL_ROW_DELETED)
		return SQL_ROW_DELETED, nil
	}
	if !r.ID.IsZero() {
		row.key.id = r.ID
	}
	row.values = r.Values
	return row.key.public(), nil
}

// refreshRow rereads a row flagged by an ambiguous mutation before it is
// transferred again.
func (s *Stmt) refreshRow(ctx context.Context, index int) error {
	_, err := s.posRefresh(ctx, index)
	return err
}

// conflict handles a mutation that affected no row: the target row was
// changed or removed by someone else since it was fetched. The row is
// reread to learn which.
func (s *Stmt) conflict(ctx context.Context, index int, k keyEntry, row *cachedRow) (uint16, error) {
	s.warn(stateCursorOpConflict, "row %d was changed or deleted since it was fetched", index+1)
	if row == nil {
		return SQL_ROW_SUCCESS_WITH_INFO, nil
	}
	r, err := s.conn.be.Reread(ctx, s.cursor.table, k.id, s.cursor.columnNames())
	if err != nil {
		return SQL_ROW_ERROR, err
	}
	if r == nil {
		row.key.status |= keyOtherDeleted
		row.key.setPublic(SQL_ROW_DELETED)
	} else {
		row.values = r.Values
	}
	return SQL_ROW_SUCCESS_WITH_INFO, nil
}

// ambiguous handles a mutation that affected more than one row.
func (s *Stmt) ambiguous(index int, row *cachedRow) (uint16, error) {
	s.warn(stateCursorOpConflict, "positioned operation on row %d affected more than one row", index+1)
	if row != nil {
		row.key.status |= keyNeedsReread
	}
	return SQL_ROW_SUCCESS_WITH_INFO, nil
}

// expectation lists the writable columns of row whose fetched values
// compare exactly against the stored ones. A positioned update or delete
// only applies while the row still holds them.
func (c *cursor) expectation(row *cachedRow) ([]string, []any) {
	if row == nil || len(row.values) != len(c.cols) {
		return nil, nil
	}
	names := c.columnNames()
	var (
		cols   []string
		values []any
	)
	for i, col := range c.cols {
		if col.Updatable != backend.Writable || !exactType(col.SQLType) {
			continue
		}
		cols = append(cols, names[i])
		values = append(values, row.values[i])
	}
	return cols, values
}

// exactType reports whether values of t keep their stored form through a
// fetch. Floating point, padded and temporal values do not.
func exactType(t int16) bool {
	switch t {
	case backend.TypeChar, backend.TypeReal, backend.TypeDouble,
		backend.TypeDate, backend.TypeTime, backend.TypeTimestamp:
		return false
	}
	return true
}

func rowValues(row *cachedRow, n int) []any {
	if row == nil {
		return make([]any, n)
	}
	return slices.Clone(row.values)
}

// merge assigns values to the named columns of tuple.
func merge(names []string, tuple []any, columns []string, values []any) []any {
	for i, col := range columns {
		if j := slices.Index(names, col); j >= 0 && j < len(tuple) {
			tuple[j] = values[i]
		}
	}
	return tuple
}
