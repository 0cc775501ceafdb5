package warpdrive

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"

	"github.com/warpdrive/go-warpdrive/backend"
)

// Keyset status bits. The low bits hold the public SQL_ROW_* value; the
// committed bits are the pending bits shifted left by three.
const (
	keyPublicMask uint16 = 0x07

	keySelfAdding   uint16 = 1 << 3
	keySelfDeleting uint16 = 1 << 4
	keySelfUpdating uint16 = 1 << 5
	keySelfAdded    uint16 = keySelfAdding << 3
	keySelfDeleted  uint16 = keySelfDeleting << 3
	keySelfUpdated  uint16 = keySelfUpdating << 3

	keyNeedsReread  uint16 = 1 << 9
	keyInRowset     uint16 = 1 << 10
	keyOtherDeleted uint16 = 1 << 11

	keyPending = keySelfAdding | keySelfDeleting | keySelfUpdating
	keyDeleted = keySelfDeleting | keySelfDeleted | keyOtherDeleted
)

// keyEntry is the keyset slot of one row.
type keyEntry struct {
	id     backend.RowID
	status uint16
}

func (k keyEntry) public() uint16 {
	return k.status & keyPublicMask
}

func (k keyEntry) deleted() bool {
	return k.status&keyDeleted != 0 || k.public() == SQL_ROW_DELETED
}

// setPublic replaces the public status value, keeping the private bits.
func (k *keyEntry) setPublic(v uint16) {
	k.status = k.status&^keyPublicMask | v
}

type addedEntry struct {
	index int
	id    backend.RowID
}

type updatedEntry struct {
	index  int
	id     backend.RowID
	values []any
}

type deletedEntry struct {
	index int
	id    backend.RowID
}

// journalEntry records the state of a row before one positioned
// operation of the open transaction.
type journalEntry struct {
	index  int
	op     int16
	id     backend.RowID
	status uint16
	values []any
	// added rows only exist because of the operation.
	added bool

	nAdded, nUpdated, nDeleted int
}

// keysetLog holds what positioned operations did to the rows of a cursor.
// The deleted log is kept sorted by row index.
type keysetLog struct {
	added   []addedEntry
	updated []updatedEntry
	deleted []deletedEntry
	journal []journalEntry
}

func (l *keysetLog) mark(index int, op int16, prior *cachedRow, added bool) {
	e := journalEntry{
		index:    index,
		op:       op,
		added:    added,
		nAdded:   len(l.added),
		nUpdated: len(l.updated),
		nDeleted: len(l.deleted),
	}
	if prior != nil {
		e.id = prior.key.id
		e.status = prior.key.status
		e.values = slices.Clone(prior.values)
	}
	l.journal = append(l.journal, e)
}

func (l *keysetLog) addDeleted(index int, id backend.RowID) {
	i, found := slices.BinarySearchFunc(l.deleted, index, func(e deletedEntry, idx int) int {
		return e.index - idx
	})
	if found {
		l.deleted[i].id = id
		return
	}
	l.deleted = slices.Insert(l.deleted, i, deletedEntry{index: index, id: id})
}

// lookup finds the most recent identity the logs hold for row index.
func (l *keysetLog) lookup(index int) (keyEntry, bool) {
	for i := len(l.updated) - 1; i >= 0; i-- {
		if l.updated[i].index == index {
			return keyEntry{id: l.updated[i].id, status: SQL_ROW_UPDATED}, true
		}
	}
	if i, found := slices.BinarySearchFunc(l.deleted, index, func(e deletedEntry, idx int) int {
		return e.index - idx
	}); found {
		return keyEntry{id: l.deleted[i].id, status: SQL_ROW_DELETED | keySelfDeleted}, true
	}
	for i := len(l.added) - 1; i >= 0; i-- {
		if l.added[i].index == index {
			return keyEntry{id: l.added[i].id, status: SQL_ROW_ADDED}, true
		}
	}
	return keyEntry{}, false
}

// discardRollback promotes the pending status bits of every cached row to
// committed and forgets the journal.
func (c *cursor) discardRollback() {
	for i := range c.rows {
		k := &c.rows[i].key
		if k.status&keyPending != 0 {
			k.status = k.status&^keyPending | (k.status&keyPending)<<3
		}
	}
	if n := len(c.log.journal); n > 0 {
		c.stmt.logger.Debug("keyset committed", slog.Int("operations", n))
	}
	c.log.journal = c.log.journal[:0]
}

// undoRollback replays the journal in reverse, restoring the identity,
// status and cached tuple of every row touched in the transaction and
// dropping rows that only existed because of an uncommitted insert.
func (c *cursor) undoRollback() {
	n := len(c.log.journal)
	for i := n - 1; i >= 0; i-- {
		e := c.log.journal[i]
		if e.added {
			if pos := e.index - c.base; pos >= 0 && pos < len(c.rows) {
				c.rows = c.rows[:pos]
			}
		} else if row := c.rowAt(e.index); row != nil {
			row.key.id = e.id
			row.key.status = e.status
			row.values = e.values
		}
		c.log.added = c.log.added[:e.nAdded]
		c.log.updated = c.log.updated[:e.nUpdated]
		c.log.deleted = c.log.deleted[:e.nDeleted]
	}
	c.log.journal = c.log.journal[:0]
	if count := c.count(); c.start > count {
		c.start = 0
		c.afterEnd = true
		c.lastSize = 0
	}
	if n > 0 {
		c.stmt.logger.Debug("keyset rolled back", slog.Int("operations", n))
	}
}

// resolve returns the keyset slot of row index: the cached slot, or the
// most recent logged one when the row has left the cache window.
func (c *cursor) resolve(index int) (keyEntry, error) {
	if row := c.rowAt(index); row != nil {
		return row.key, nil
	}
	if k, ok := c.log.lookup(index); ok {
		return k, nil
	}
	return keyEntry{}, fmt.Errorf("%w: row %d is not in the keyset", errRowRange, index+1)
}

const (
	bookmarkSize    = 4
	varBookmarkSize = 24
)

// bookmark encodes the bookmark of row index.
func (c *cursor) bookmark(index int, variable bool) []byte {
	if !variable {
		b := make([]byte, bookmarkSize)
		binary.LittleEndian.PutUint32(b, uint32(int32(index+1)))
		return b
	}
	b := make([]byte, varBookmarkSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(int32(index+1)))
	if k, err := c.resolve(index); err == nil {
		binary.LittleEndian.PutUint32(b[4:], k.id.Block)
		binary.LittleEndian.PutUint16(b[8:], k.id.Offset)
		binary.LittleEndian.PutUint32(b[12:], k.id.OID)
		binary.LittleEndian.PutUint64(b[16:], uint64(k.id.Key))
	}
	return b
}

// decodeBookmark returns the row index a bookmark addresses and, for a
// variable bookmark, the identity it carries.
func decodeBookmark(p Ptr, variable bool) (int, backend.RowID, error) {
	if p.IsNull() {
		return 0, backend.RowID{}, fmt.Errorf("%w: bookmark not bound", errInvalidNull)
	}
	if !variable {
		if p.Cap() < bookmarkSize {
			return 0, backend.RowID{}, errBufferLength
		}
		return int(p.Int32()) - 1, backend.RowID{}, nil
	}
	if p.Cap() < varBookmarkSize {
		return 0, backend.RowID{}, errBufferLength
	}
	id := backend.RowID{
		Block:  p.Add(4).Uint32(),
		Offset: p.Add(8).Uint16(),
		OID:    p.Add(12).Uint32(),
		Key:    p.Add(16).Int64(),
	}
	return int(p.Int32()) - 1, id, nil
}
