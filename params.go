package warpdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warpdrive/go-warpdrive/backend"
)

// BindParameter binds parameter num to caller memory. The application
// side is recorded on the active parameter descriptor, the SQL side on
// the implementation parameter descriptor.
func (s *Stmt) BindParameter(num uint16, ioType, valueType, paramType int16, colSize uint64, decDigits int16,
	value Ptr, bufLen int64, strLenOrInd Ptr,
) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if num == 0 {
			return SQL_ERROR, fmt.Errorf("%w: parameter 0", errInvalidDescIndex)
		}
		switch ioType {
		case SQL_PARAM_INPUT:
		case SQL_PARAM_OUTPUT, SQL_PARAM_INPUT_OUTPUT:
			return SQL_ERROR, fmt.Errorf("%w: output parameters", errNotImplemented)
		default:
			return SQL_ERROR, fmt.Errorf("%w: parameter type %d", errInvalidAttrValue, ioType)
		}
		if !validCType(valueType) {
			return SQL_ERROR, fmt.Errorf("%w: %d", errInvalidBufferType, valueType)
		}
		if bufLen < 0 {
			return SQL_ERROR, fmt.Errorf("%w: %d", errBufferLength, bufLen)
		}

		a := s.apd.record(int(num))
		a.setConciseType(valueType)
		a.octetLength = bufLen
		a.dataPtr = value
		a.indicatorPtr = strLenOrInd
		a.octetLengthPtr = strLenOrInd
		if valueType == SQL_C_NUMERIC {
			a.precision = int16(colSize)
			a.scale = decDigits
		}
		s.apd.changed = true

		p := s.ipd.record(int(num))
		p.setConciseType(paramType)
		p.paramType = ioType
		p.length = int64(colSize)
		p.precision = int16(colSize)
		p.scale = decDigits
		return SQL_SUCCESS, nil
	})
}

type opKind int

const (
	opExecute opKind = iota
	opSetPos
	opBulk
)

func (k opKind) String() string {
	switch k {
	case opExecute:
		return "execute"
	case opSetPos:
		return "setpos"
	case opBulk:
		return "bulk"
	}
	return "unknown"
}

// opRow is one row a suspended operation processes.
type opRow struct {
	// buf is the row of the bound buffers values are read from and
	// statuses are reported for.
	buf int
	// target is the 0-based result row operated on.
	target int
	id     backend.RowID
	ignore bool
}

// deferredValue is a data-at-execution value of the current row.
type deferredValue struct {
	slot    int
	cType   int16
	sqlType int16
	token   Ptr
}

// suspendedOp is the continuation of an execution or positioned operation
// that processes its rows one by one and can stop for data-at-execution
// values. It is resumed by ParamData.
type suspendedOp struct {
	kind opKind
	op   int16
	rows []opRow
	row  int
	end  int

	// collected is set once the values of rows[row] have been read.
	collected bool
	columns   []string
	values    []any
	deferred  []deferredValue
	// cur is the deferred value PutData appends to, -1 before the first
	// ParamData of a row.
	cur  int
	data []byte
	got  bool
	null bool

	affected  int64
	processed int
	succeeded int
	failed    bool

	prevState stmtState
	implicit  bool
}

// newExecuteOp plans one backend execution per parameter row. Without
// bound parameters the statement runs once.
func (s *Stmt) newExecuteOp() (*suspendedOp, error) {
	// A failed or discarded execution leaves the statement as prepared.
	prev := stmtAllocated
	if s.prepared {
		prev = stmtPrepared
	}
	op := &suspendedOp{kind: opExecute, prevState: prev, cur: -1}
	n := 1
	if s.apd.count() > 0 {
		n = max(int(s.apd.arraySize), 1)
	}
	ops := s.apd.arrayStatusPtr
	for i := 0; i < n; i++ {
		r := opRow{buf: i, target: -1}
		if !ops.IsNull() && ops.Add(2*i).Uint16() == SQL_PARAM_IGNORE {
			r.ignore = true
		}
		op.rows = append(op.rows, r)
	}
	op.end = len(op.rows)
	return op, nil
}

// resume processes the remaining rows of op. It suspends op and returns
// SQL_NEED_DATA when a row has data-at-execution values.
func (s *Stmt) resume(ctx context.Context, op *suspendedOp) (SQLRETURN, error) {
	for op.row < len(op.rows) {
		r := op.rows[op.row]
		if r.ignore {
			if op.kind == opExecute {
				s.setOpStatus(op, r, SQL_PARAM_UNUSED)
			}
			op.row++
			continue
		}
		if !op.collected {
			if err := s.collect(op, r); err != nil {
				op.processed++
				s.rowFailed(op, r, err)
				op.row++
				continue
			}
			op.collected = true
			op.cur = -1
		}
		if len(op.deferred) > 0 && op.cur < len(op.deferred) {
			s.pending = op
			s.state = stmtNeedData
			return SQL_NEED_DATA, nil
		}
		if err := s.checkpoint(ctx); err != nil {
			return SQL_ERROR, errors.Join(err, s.discardOp(ctx, op))
		}
		op.processed++
		s.perform(ctx, op, r)
		op.collected = false
		op.row++
	}
	return s.finish(ctx, op)
}

// collect reads the values of row r from the bound buffers.
func (s *Stmt) collect(op *suspendedOp, r opRow) error {
	op.columns = op.columns[:0]
	op.values = op.values[:0]
	op.deferred = op.deferred[:0]
	if op.kind == opExecute {
		return s.collectParams(op, r)
	}
	if op.op == SQL_DELETE || op.op == SQL_DELETE_BY_BOOKMARK || op.op == SQL_REFRESH || op.op == SQL_POSITION {
		return nil
	}
	return s.collectColumns(op, r)
}

func (s *Stmt) collectParams(op *suspendedOp, r opRow) error {
	for i := 1; i <= s.apd.count(); i++ {
		a := s.apd.recordAt(i)
		sqlType := SQL_VARCHAR
		if p := s.ipd.recordAt(i); p != nil {
			sqlType = p.conciseType
		}
		cType := a.conciseType
		if cType == SQL_C_DEFAULT {
			cType = defaultCType(sqlType, false, s.odbc2())
		}
		data, ind, octet := element(s.apd, a, r.buf, bufferLength(cType, a.octetLength))
		v, deferred, err := readBound(cType, sqlType, data, ind, octet)
		if err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if deferred {
			op.deferred = append(op.deferred, deferredValue{slot: len(op.values), cType: cType, sqlType: sqlType, token: data})
		}
		op.values = append(op.values, v)
	}
	return nil
}

// collectColumns reads the bound column values of row r for a positioned
// update or insert. Columns whose indicator is SQL_COLUMN_IGNORE are left
// out.
func (s *Stmt) collectColumns(op *suspendedOp, r opRow) error {
	names := s.cursor.columnNames()
	for _, b := range s.computeBindings() {
		if b.col == 0 {
			continue
		}
		data, ind, octet := element(s.ard, b.rec, r.buf, b.bufLen)
		if !ind.IsNull() && ind.Len() == SQL_COLUMN_IGNORE {
			continue
		}
		v, deferred, err := readBound(b.cType, b.sqlType, data, ind, octet)
		if err != nil {
			return columnError(err, b.col)
		}
		if deferred {
			op.deferred = append(op.deferred, deferredValue{slot: len(op.values), cType: b.cType, sqlType: b.sqlType, token: data})
		}
		op.columns = append(op.columns, names[b.col-1])
		op.values = append(op.values, v)
	}
	return nil
}

// readBound reads one bound input value through its indicator.
func readBound(cType, sqlType int16, data, ind, octet Ptr) (v any, deferred bool, err error) {
	length := SQL_NTS
	if !ind.IsNull() {
		switch iv := ind.Len(); {
		case iv == SQL_NULL_DATA:
			return nil, false, nil
		case isDataAtExec(iv):
			return nil, true, nil
		}
	}
	if !octet.IsNull() {
		length = octet.Len()
	}
	if !isVarCType(cType) {
		length = cTypeSize(cType)
	}
	v, err = fromC(cType, data, length, sqlType)
	return v, false, err
}

// perform runs op for the collected row r.
func (s *Stmt) perform(ctx context.Context, op *suspendedOp, r opRow) {
	if op.kind != opExecute {
		s.performRow(ctx, op, r)
		return
	}
	if err := s.executeOnce(ctx, op.values); err != nil {
		s.rowFailed(op, r, err)
		return
	}
	if n := s.bs.UpdateCount(); n > 0 {
		op.affected += n
	}
	op.succeeded++
	s.setOpStatus(op, r, SQL_PARAM_SUCCESS)
}

// rowFailed records err against row r and continues with the next row.
// A single parameter set carries no row number.
func (s *Stmt) rowFailed(op *suspendedOp, r opRow, err error) {
	if op.kind == opExecute && len(op.rows) == 1 {
		s.diag.addError(err)
	} else {
		rec := s.diag.addError(rowError(err, r.buf+1))
		rec.Row = int64(r.buf + 1)
	}
	op.failed = true
	if op.kind == opExecute {
		s.setOpStatus(op, r, SQL_PARAM_ERROR)
		return
	}
	s.setOpStatus(op, r, SQL_ROW_ERROR)
}

// setOpStatus reports the outcome of row r in the status array of op.
func (s *Stmt) setOpStatus(op *suspendedOp, r opRow, st uint16) {
	p := s.ird.arrayStatusPtr
	if op.kind == opExecute {
		p = s.ipd.arrayStatusPtr
	}
	if !p.IsNull() && r.buf >= 0 {
		p.Add(2 * r.buf).PutUint16(st)
	}
}

// finish completes op once every row has been processed.
func (s *Stmt) finish(ctx context.Context, op *suspendedOp) (SQLRETURN, error) {
	s.pending = nil
	if op.kind != opExecute {
		return s.finishRows(ctx, op)
	}

	if p := s.ipd.rowsProcessedPtr; !p.IsNull() {
		p.PutUint64(uint64(op.processed))
	}
	s.logger.Debug("executed",
		slog.Int("processed", op.processed),
		slog.Int("succeeded", op.succeeded),
		slog.Int64("affected", op.affected))
	if op.succeeded == 0 && op.failed {
		s.state = op.prevState
		if s.state == stmtNeedData {
			s.state = stmtAllocated
		}
		return SQL_ERROR, nil
	}
	if op.processed == 0 {
		s.rowCount = 0
		s.state = stmtExecuted
		return SQL_SUCCESS, nil
	}
	s.openResult(op.affected)
	if op.failed {
		return SQL_SUCCESS_WITH_INFO, nil
	}
	return SQL_SUCCESS, nil
}

// ParamData finishes the data-at-execution value being supplied and
// returns the token of the next one. Once every value of the row has been
// supplied the suspended operation resumes.
func (s *Stmt) ParamData(ctx context.Context, token *Ptr) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		op := s.pending
		if op == nil {
			return SQL_ERROR, fmt.Errorf("%w: no data-at-execution operation", errSequence)
		}
		if op.cur >= 0 && op.cur < len(op.deferred) {
			if err := op.finishValue(); err != nil {
				ctx, done := s.begin(ctx)
				defer done()
				return SQL_ERROR, errors.Join(err, s.discardOp(ctx, op))
			}
		}
		op.cur++
		if op.cur < len(op.deferred) {
			if token != nil {
				*token = op.deferred[op.cur].token
			}
			return SQL_NEED_DATA, nil
		}

		ctx, done := s.begin(ctx)
		defer done()
		s.pending = nil
		s.state = op.prevState
		rc, err := s.resume(ctx, op)
		if rc == SQL_NEED_DATA {
			op.cur = 0
			if token != nil {
				*token = op.deferred[0].token
			}
		}
		return rc, err
	})
}

// PutData appends a piece of the data-at-execution value ParamData last
// returned the token of.
func (s *Stmt) PutData(data Ptr, length int64) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		op := s.pending
		if op == nil || op.cur < 0 || op.cur >= len(op.deferred) {
			return SQL_ERROR, fmt.Errorf("%w: no data-at-execution value requested", errSequence)
		}
		d := op.deferred[op.cur]
		if length == SQL_NULL_DATA {
			if op.got {
				return SQL_ERROR, fmt.Errorf("%w: null after data", errSequence)
			}
			op.null, op.got = true, true
			return SQL_SUCCESS, nil
		}
		if op.null {
			return SQL_ERROR, fmt.Errorf("%w: data after null", errSequence)
		}
		if op.got && !isVarCType(d.cType) {
			return SQL_ERROR, errNonCharPieces
		}
		var chunk []byte
		switch {
		case data.IsNull() && length != 0:
			return SQL_ERROR, errInvalidNull
		case length == SQL_NTS:
			chunk = data.cstring(-1)
		case length < 0:
			return SQL_ERROR, fmt.Errorf("%w: %d", errBufferLength, length)
		case length > int64(data.Cap()):
			return SQL_ERROR, fmt.Errorf("%w: %d past the buffer end", errBufferLength, length)
		default:
			chunk = data.Bytes(int(length))
		}
		op.data = append(op.data, chunk...)
		op.got = true
		return SQL_SUCCESS, nil
	})
}

// finishValue converts the pieces of the current deferred value into its
// slot and resets the piece buffer.
func (op *suspendedOp) finishValue() error {
	d := op.deferred[op.cur]
	defer func() {
		op.data, op.got, op.null = nil, false, false
	}()
	if op.null {
		op.values[d.slot] = nil
		return nil
	}
	length := int64(len(op.data))
	if !isVarCType(d.cType) && length < cTypeSize(d.cType) {
		return fmt.Errorf("%w: %d bytes for C type %d", errBufferLength, length, d.cType)
	}
	v, err := fromC(d.cType, NewPtr(op.data), length, d.sqlType)
	if err != nil {
		return err
	}
	op.values[d.slot] = v
	return nil
}

// discardOp drops op, rolling back the transaction it began.
func (s *Stmt) discardOp(ctx context.Context, op *suspendedOp) error {
	s.pending = nil
	s.state = op.prevState
	if s.state == stmtNeedData {
		s.state = stmtAllocated
	}
	if !op.implicit {
		return nil
	}
	op.implicit = false
	return s.conn.endTran(ctx, false)
}

// discardPending drops the suspended operation of s, if any.
func (s *Stmt) discardPending(ctx context.Context) error {
	op := s.pending
	if op == nil {
		return nil
	}
	s.logger.Debug("discarding suspended operation", slog.String("kind", op.kind.String()), slog.Int("row", op.row))
	return s.discardOp(ctx, op)
}
