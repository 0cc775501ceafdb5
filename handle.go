package warpdrive

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Handle is an environment, connection, statement or descriptor handle.
type Handle interface {
	// HandleType returns one of the SQL_HANDLE_* kinds.
	HandleType() int16
	// ID is the identity of the handle.
	ID() uuid.UUID
	base() *handle
}

// handle is the state shared by every handle kind.
type handle struct {
	id     uuid.UUID
	diag   diagnostics
	logger *slog.Logger
}

func newHandle(logger *slog.Logger, kind string) handle {
	id := uuid.New()
	return handle{
		id:     id,
		logger: logger.With(slog.String("handle", kind), slog.String("id", id.String())),
	}
}

func (h *handle) ID() uuid.UUID {
	return h.id
}

func (h *handle) base() *handle {
	return h
}

// handleBase resolves h to its shared state, treating typed nil pointers
// like a nil interface.
func handleBase(h Handle) *handle {
	if h == nil {
		return nil
	}
	switch v := h.(type) {
	case *Env:
		if v == nil {
			return nil
		}
	case *Conn:
		if v == nil {
			return nil
		}
	case *Stmt:
		if v == nil {
			return nil
		}
	case *Desc:
		if v == nil {
			return nil
		}
	}
	return h.base()
}

// execute runs fn as one call against h: the ledger is cleared, an error
// returned by fn is recorded, and the return code is derived from the
// ledger. A panic in fn is recovered into a general error record.
func (h *handle) execute(fn func() (SQLRETURN, error)) (rc SQLRETURN) {
	h.diag.clear()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic", slog.Any("panic", r))
			h.diag.addError(getError(errDriver, fmt.Errorf("%v", r)))
			rc = SQL_ERROR
		}
		h.diag.returnCode = rc
	}()

	code, err := fn()
	if err != nil {
		h.diag.addError(err)
	}
	switch {
	case code == SQL_SUCCESS_WITH_INFO:
		// Row errors of a partially successful batch stay in the ledger.
	case h.diag.hasError():
		return SQL_ERROR
	case code == SQL_SUCCESS && h.diag.hasWarning():
		return SQL_SUCCESS_WITH_INFO
	}
	return code
}

// warn appends a warning record to the ledger of the running call.
func (h *handle) warn(state string, format string, args ...any) {
	h.diag.addWarning(state, fmt.Sprintf(format, args...))
}
