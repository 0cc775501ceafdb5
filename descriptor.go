package warpdrive

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/warpdrive/go-warpdrive/backend"
)

type descKind int

const (
	// descApp is an application row or parameter descriptor. Which role
	// it plays depends on the statement slot it is assigned to.
	descApp descKind = iota
	descIRD
	descIPD
)

func (k descKind) String() string {
	switch k {
	case descApp:
		return "app"
	case descIRD:
		return "ird"
	case descIPD:
		return "ipd"
	}
	return "unknown"
}

// Desc is a descriptor handle: header fields plus an ordered list of
// records, record 0 being the bookmark record.
type Desc struct {
	handle
	kind descKind
	// conn is set for descriptors allocated explicitly on a connection.
	conn *Conn

	bookmark descRecord
	records  []descRecord

	arraySize        uint64
	arrayStatusPtr   Ptr
	bindOffsetPtr    Ptr
	bindType         uint64
	rowsProcessedPtr Ptr

	// changed is set whenever a binding-relevant field is written and
	// cleared once the bindings have been recomputed.
	changed bool

	mu   sync.Mutex
	refs map[uuid.UUID]*descRef
}

// descRef records in which application slots a statement uses a shared
// descriptor.
type descRef struct {
	stmt    *Stmt
	asRow   bool
	asParam bool
}

func newDesc(logger *slog.Logger, kind descKind, conn *Conn) *Desc {
	d := &Desc{
		handle:    newHandle(logger, "desc"),
		kind:      kind,
		conn:      conn,
		arraySize: 1,
		bookmark:  newRecord(kind),
		refs:      make(map[uuid.UUID]*descRef),
	}
	return d
}

func (d *Desc) HandleType() int16 {
	return SQL_HANDLE_DESC
}

func (d *Desc) allocType() int16 {
	if d.conn != nil {
		return SQL_DESC_ALLOC_USER
	}
	return SQL_DESC_ALLOC_AUTO
}

func (d *Desc) count() int {
	return len(d.records)
}

// setCount grows or shrinks the record list to n records.
func (d *Desc) setCount(n int) {
	for len(d.records) < n {
		d.records = append(d.records, newRecord(d.kind))
	}
	d.records = d.records[:n]
	d.changed = true
}

// record returns record rec, growing the record list when rec is past the
// current count. Record 0 is the bookmark record.
func (d *Desc) record(rec int) *descRecord {
	if rec == 0 {
		return &d.bookmark
	}
	if rec > len(d.records) {
		d.setCount(rec)
	}
	return &d.records[rec-1]
}

// recordAt returns record rec without growing, or nil past the count.
func (d *Desc) recordAt(rec int) *descRecord {
	if rec == 0 {
		return &d.bookmark
	}
	if rec < 0 || rec > len(d.records) {
		return nil
	}
	return &d.records[rec-1]
}

// boundCount is the highest record number with a bound data pointer.
func (d *Desc) boundCount() int {
	for i := len(d.records) - 1; i >= 0; i-- {
		if !d.records[i].dataPtr.IsNull() {
			return i + 1
		}
	}
	return 0
}

func isHeaderField(id int16) bool {
	switch id {
	case SQL_DESC_ALLOC_TYPE, SQL_DESC_ARRAY_SIZE, SQL_DESC_ARRAY_STATUS_PTR, SQL_DESC_BIND_OFFSET_PTR,
		SQL_DESC_BIND_TYPE, SQL_DESC_COUNT, SQL_DESC_ROWS_PROCESSED_PTR:
		return true
	}
	return false
}

func (d *Desc) headerField(id int16) (any, error) {
	switch id {
	case SQL_DESC_ALLOC_TYPE:
		return int64(d.allocType()), nil
	case SQL_DESC_ARRAY_SIZE:
		return int64(d.arraySize), nil
	case SQL_DESC_ARRAY_STATUS_PTR:
		return d.arrayStatusPtr, nil
	case SQL_DESC_BIND_OFFSET_PTR:
		return d.bindOffsetPtr, nil
	case SQL_DESC_BIND_TYPE:
		return int64(d.bindType), nil
	case SQL_DESC_COUNT:
		return int64(d.count()), nil
	case SQL_DESC_ROWS_PROCESSED_PTR:
		return d.rowsProcessedPtr, nil
	}
	return nil, fieldError(id)
}

func (d *Desc) setHeaderField(id int16, v any) error {
	if id == SQL_DESC_ALLOC_TYPE {
		return fieldError(id)
	}
	if d.kind == descIRD && id != SQL_DESC_ARRAY_STATUS_PTR && id != SQL_DESC_ROWS_PROCESSED_PTR {
		return errImplDescModify
	}
	switch id {
	case SQL_DESC_ARRAY_SIZE:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < 1 {
			return fmt.Errorf("%w: array size %d", errInvalidAttrValue, n)
		}
		d.arraySize = uint64(n)
		d.changed = true
	case SQL_DESC_BIND_TYPE:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		d.bindType = uint64(n)
		d.changed = true
	case SQL_DESC_COUNT:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return errInvalidDescIndex
		}
		d.setCount(int(n))
	default:
		p, err := toPtr(v)
		if err != nil {
			return err
		}
		switch id {
		case SQL_DESC_ARRAY_STATUS_PTR:
			d.arrayStatusPtr = p
		case SQL_DESC_BIND_OFFSET_PTR:
			d.bindOffsetPtr = p
			d.changed = true
		case SQL_DESC_ROWS_PROCESSED_PTR:
			d.rowsProcessedPtr = p
		default:
			return fieldError(id)
		}
	}
	return nil
}

// checkRecordNumber validates rec for the descriptor kind.
func (d *Desc) checkRecordNumber(rec int) error {
	if rec < 0 {
		return fmt.Errorf("%w: record %d", errInvalidDescIndex, rec)
	}
	if rec == 0 && d.kind == descIPD {
		return fmt.Errorf("%w: bookmark record of a parameter descriptor", errInvalidDescIndex)
	}
	return nil
}

// field reads a record field. noData is set when rec is past the count.
func (d *Desc) field(rec int, id int16) (v any, noData bool, err error) {
	f, ok := recordFields[id]
	if !ok {
		return nil, false, fieldError(id)
	}
	if err := d.checkRecordNumber(rec); err != nil {
		return nil, false, err
	}
	r := d.recordAt(rec)
	if r == nil {
		return nil, true, nil
	}
	return f.get(r), false, nil
}

func (d *Desc) setField(rec int, id int16, v any) error {
	f, ok := recordFields[id]
	if !ok {
		return fieldError(id)
	}
	if err := f.class.writable(d.kind); err != nil {
		if err == errInvalidDescField {
			return fieldError(id)
		}
		return err
	}
	if err := d.checkRecordNumber(rec); err != nil {
		return err
	}
	if r := d.recordAt(rec); r != nil {
		if err := f.set(r, v); err != nil {
			return err
		}
		d.changed = true
		return nil
	}
	// Past the count the value is checked on a fresh record so a rejected
	// value leaves the count alone.
	r := newRecord(d.kind)
	if err := f.set(&r, v); err != nil {
		return err
	}
	*d.record(rec) = r
	d.changed = true
	return nil
}

// populateFromResultMetadata replaces every record with one per result
// column.
func (d *Desc) populateFromResultMetadata(cols []backend.Column, odbc2 bool) {
	d.records = d.records[:0]
	for _, c := range cols {
		d.records = append(d.records, recordFromColumn(c, odbc2))
	}
	d.changed = true
}

// register notes that s uses d in an application slot.
func (d *Desc) register(s *Stmt, asParam bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.refs[s.id]
	if !ok {
		ref = &descRef{stmt: s}
		d.refs[s.id] = ref
	}
	if asParam {
		ref.asParam = true
	} else {
		ref.asRow = true
	}
}

// detach removes the slot registration of s.
func (d *Desc) detach(s *Stmt, asParam bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ref, ok := d.refs[s.id]
	if !ok {
		return
	}
	if asParam {
		ref.asParam = false
	} else {
		ref.asRow = false
	}
	if !ref.asParam && !ref.asRow {
		delete(d.refs, s.id)
	}
}

// release reverts every statement still using d to its private default
// descriptors, then unlinks d from its connection.
func (d *Desc) release() {
	d.mu.Lock()
	refs := make([]descRef, 0, len(d.refs))
	for _, ref := range d.refs {
		refs = append(refs, *ref)
	}
	d.refs = make(map[uuid.UUID]*descRef)
	d.mu.Unlock()

	for _, ref := range refs {
		if ref.asParam {
			ref.stmt.revertDescriptor(true)
		}
		if ref.asRow {
			ref.stmt.revertDescriptor(false)
		}
	}
	if d.conn != nil {
		d.conn.dropDescriptor(d)
	}
	d.logger.Debug("descriptor released", slog.Int("dependents", len(refs)))
}

// copyFrom replaces the header and records of d with those of src.
func (d *Desc) copyFrom(src *Desc) error {
	if d.kind == descIRD {
		return errImplDescModify
	}
	d.bookmark = src.bookmark
	d.records = append(d.records[:0], src.records...)
	d.arraySize = src.arraySize
	d.arrayStatusPtr = src.arrayStatusPtr
	d.bindOffsetPtr = src.bindOffsetPtr
	d.bindType = src.bindType
	d.rowsProcessedPtr = src.rowsProcessedPtr
	d.changed = true
	return nil
}

// putFieldValue writes a field value into a caller destination.
func (h *handle) putFieldValue(v any, dest any, strLen *int32) error {
	switch x := v.(type) {
	case int64:
		return putInteger(dest, x)
	case Ptr:
		return putPointer(dest, x)
	case string:
		buf, ok := dest.([]byte)
		if !ok {
			if p, isPtr := dest.(*string); isPtr {
				*p = x
				if strLen != nil {
					*strLen = int32(len(x))
				}
				return nil
			}
			return fmt.Errorf("%w: string value into %T", errInvalidAttrValue, dest)
		}
		if putString(x, buf, strLen) {
			h.warn(stateTruncated, "string data, right truncated")
		}
	}
	return nil
}

// SetDescField sets a header field (any rec) or a record field of d.
func (d *Desc) SetDescField(rec int16, field int16, value any) SQLRETURN {
	return d.execute(func() (SQLRETURN, error) {
		if isHeaderField(field) {
			return SQL_SUCCESS, d.setHeaderField(field, value)
		}
		return SQL_SUCCESS, d.setField(int(rec), field, value)
	})
}

// GetDescField reads a header field or a record field of d into dest.
// Integer fields accept any integer pointer, pointer fields a *Ptr, and
// character fields a []byte that follows the truncation rule.
func (d *Desc) GetDescField(rec int16, field int16, dest any, strLen *int32) SQLRETURN {
	return d.execute(func() (SQLRETURN, error) {
		if isHeaderField(field) {
			v, err := d.headerField(field)
			if err != nil {
				return SQL_ERROR, err
			}
			return SQL_SUCCESS, d.putFieldValue(v, dest, strLen)
		}
		v, noData, err := d.field(int(rec), field)
		if err != nil {
			return SQL_ERROR, err
		}
		if noData {
			return SQL_NO_DATA, nil
		}
		return SQL_SUCCESS, d.putFieldValue(v, dest, strLen)
	})
}

// SetDescRec sets the type, length, precision, scale and bound pointers
// of record rec in one call.
func (d *Desc) SetDescRec(rec int16, typ int16, subType int16, length int64, precision int16, scale int16,
	data Ptr, strLenPtr Ptr, indPtr Ptr,
) SQLRETURN {
	return d.execute(func() (SQLRETURN, error) {
		if d.kind == descIRD {
			return SQL_ERROR, errImplDescModify
		}
		if err := d.checkRecordNumber(int(rec)); err != nil {
			return SQL_ERROR, err
		}
		r := d.record(int(rec))
		r.setType(typ)
		if typ == SQL_DATETIME || typ == SQL_INTERVAL {
			r.setDatetimeCode(subType)
		}
		r.octetLength = length
		r.length = length
		r.precision = precision
		r.scale = scale
		r.dataPtr = data
		r.octetLengthPtr = strLenPtr
		r.indicatorPtr = indPtr
		d.changed = true
		return SQL_SUCCESS, nil
	})
}

// GetDescRec reads the name, type, length, precision, scale and
// nullability of record rec.
func (d *Desc) GetDescRec(rec int16, name []byte, nameLen *int16, typ *int16, subType *int16, length *int64,
	precision *int16, scale *int16, nullable *int16,
) SQLRETURN {
	return d.execute(func() (SQLRETURN, error) {
		if err := d.checkRecordNumber(int(rec)); err != nil {
			return SQL_ERROR, err
		}
		r := d.recordAt(int(rec))
		if r == nil {
			return SQL_NO_DATA, nil
		}
		var n int32
		if putString(r.name, name, &n) {
			d.warn(stateTruncated, "string data, right truncated")
		}
		if nameLen != nil {
			*nameLen = int16(n)
		}
		setIf(typ, r.typ)
		setIf(subType, r.datetimeCode)
		setIf(length, r.octetLength)
		setIf(precision, r.precision)
		setIf(scale, r.scale)
		setIf(nullable, r.nullable)
		return SQL_SUCCESS, nil
	})
}

func setIf[T any](p *T, v T) {
	if p != nil {
		*p = v
	}
}

// CopyDesc copies the header and records of src into dst.
func CopyDesc(src *Desc, dst *Desc) SQLRETURN {
	if src == nil || dst == nil {
		return SQL_INVALID_HANDLE
	}
	return dst.execute(func() (SQLRETURN, error) {
		return SQL_SUCCESS, dst.copyFrom(src)
	})
}
