package warpdrive

import (
	"context"
	"log/slog"

	"github.com/warpdrive/go-warpdrive/backend"
)

// cachedRow is one row of the cursor cache together with its keyset slot.
type cachedRow struct {
	key    keyEntry
	values []any
}

// cursor is the open result of a statement. Scrollable cursors cache every
// row they produced; forward-only cursors only keep the current rowset,
// rows[0] being row base.
type cursor struct {
	stmt  *Stmt
	rs    backend.ResultSet
	cols  []backend.Column
	table string

	rows      []cachedRow
	base      int
	produced  int64
	exhausted bool

	// start is the 1-based first row of the current rowset, 0 when the
	// cursor is before the start or, with afterEnd set, after the end.
	start    int
	afterEnd bool
	lastSize int
	// current is the 1-based row of the rowset GetData and SetPos
	// default to.
	current int

	log keysetLog
}

func newCursor(s *Stmt, rs backend.ResultSet) *cursor {
	return &cursor{
		stmt:  s,
		rs:    rs,
		cols:  rs.Metadata(),
		table: rs.Table(),
	}
}

func (c *cursor) forwardOnly() bool {
	return !c.stmt.attrs.scrollable()
}

// updatable reports whether positioned operations can address the rows
// of c by physical identity.
func (c *cursor) updatable() bool {
	return c.table != "" && c.stmt.attrs.concurrency != SQL_CONCUR_READ_ONLY
}

// count is the number of rows known so far, including added rows.
func (c *cursor) count() int {
	return c.base + len(c.rows)
}

// rowAt returns the cached row at 0-based index, or nil when the row is
// not in the cache.
func (c *cursor) rowAt(index int) *cachedRow {
	i := index - c.base
	if i < 0 || i >= len(c.rows) {
		return nil
	}
	return &c.rows[i]
}

// columnNames are the base column names positioned operations assign to.
func (c *cursor) columnNames() []string {
	names := make([]string, len(c.cols))
	for i, col := range c.cols {
		names[i] = col.BaseColumn
		if names[i] == "" {
			names[i] = col.Name
		}
	}
	return names
}

// ensure produces rows until n rows are known or the result is exhausted.
func (c *cursor) ensure(ctx context.Context, n int) error {
	for !c.exhausted && c.count() < n {
		if err := c.stmt.checkpoint(ctx); err != nil {
			return err
		}
		want := n - c.count()
		if ks := int(c.stmt.attrs.keysetSize); ks > want {
			want = ks
		}
		if limit := c.stmt.attrs.maxRows; limit > 0 {
			if remaining := int(limit - c.produced); remaining < want {
				want = remaining
			}
			if want <= 0 {
				c.exhausted = true
				break
			}
		}
		batch, err := c.rs.Move(ctx, want)
		if err != nil {
			return err
		}
		for _, r := range batch {
			c.rows = append(c.rows, cachedRow{key: keyEntry{id: r.ID}, values: r.Values})
		}
		c.produced += int64(len(batch))
		if len(batch) < want {
			c.exhausted = true
		}
	}
	return nil
}

func (c *cursor) ensureAll(ctx context.Context) error {
	for !c.exhausted {
		if err := c.ensure(ctx, c.count()+max(int(c.stmt.ard.arraySize), 64)); err != nil {
			return err
		}
	}
	return nil
}

// slide drops the cached rows before index on a forward-only cursor.
func (c *cursor) slide(index int) {
	if !c.forwardOnly() || index <= c.base {
		return
	}
	drop := min(index-c.base, len(c.rows))
	c.rows = append(c.rows[:0], c.rows[drop:]...)
	c.base += drop
}

// markRowset moves the in-rowset bit to the rows of the current rowset.
func (c *cursor) markRowset(prevStart, prevSize int) {
	for i := 0; i < prevSize; i++ {
		if row := c.rowAt(prevStart - 1 + i); row != nil {
			row.key.status &^= keyInRowset
		}
	}
	for i := 0; i < c.lastSize; i++ {
		if row := c.rowAt(c.start - 1 + i); row != nil {
			row.key.status |= keyInRowset
		}
	}
}

// rowsetIndex maps a 1-based rowset row to its 0-based result index.
func (c *cursor) rowsetIndex(irow int) int {
	return c.start - 1 + irow - 1
}

func (c *cursor) positioned() bool {
	return c.start > 0 && !c.afterEnd
}

func (c *cursor) close() error {
	if c.rs == nil {
		return nil
	}
	err := c.rs.Close()
	c.rs = nil
	c.rows = nil
	c.stmt.logger.Debug("cursor closed", slog.Int64("produced", c.produced))
	return err
}
