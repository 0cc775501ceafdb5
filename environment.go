package warpdrive

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Env is an environment handle.
type Env struct {
	handle
	driver      *Driver
	odbcVersion int64

	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
}

func (e *Env) HandleType() int16 {
	return SQL_HANDLE_ENV
}

func (e *Env) odbc2() bool {
	return e.odbcVersion == SQL_OV_ODBC2
}

// SetEnvAttr sets an environment attribute; only SQL_ATTR_ODBC_VERSION is
// supported.
func (e *Env) SetEnvAttr(attr int32, value any) SQLRETURN {
	return e.execute(func() (SQLRETURN, error) {
		if attr != SQL_ATTR_ODBC_VERSION {
			return SQL_ERROR, attributeError(attr)
		}
		v, err := toInt64(value)
		if err != nil {
			return SQL_ERROR, err
		}
		if v != SQL_OV_ODBC2 && v != SQL_OV_ODBC3 {
			e.warn(stateOptionChanged, "ODBC version %d is not supported, using 3", v)
			v = SQL_OV_ODBC3
		}
		e.odbcVersion = v
		return SQL_SUCCESS, nil
	})
}

// GetEnvAttr reads an environment attribute into dest.
func (e *Env) GetEnvAttr(attr int32, dest any) SQLRETURN {
	return e.execute(func() (SQLRETURN, error) {
		if attr != SQL_ATTR_ODBC_VERSION {
			return SQL_ERROR, attributeError(attr)
		}
		return SQL_SUCCESS, putInteger(dest, e.odbcVersion)
	})
}

// AllocConnect allocates a connection handle on e.
func (e *Env) AllocConnect() (*Conn, SQLRETURN) {
	var c *Conn
	rc := e.execute(func() (SQLRETURN, error) {
		c = newConn(e)
		e.mu.Lock()
		e.conns[c.id] = c
		e.mu.Unlock()
		return SQL_SUCCESS, nil
	})
	return c, rc
}

func (e *Env) dropConn(c *Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c.id)
}

// EndTran commits or rolls back the transactions of every connection of e.
func (e *Env) EndTran(ctx context.Context, completion int16) SQLRETURN {
	return e.execute(func() (SQLRETURN, error) {
		e.mu.Lock()
		conns := make([]*Conn, 0, len(e.conns))
		for _, c := range e.conns {
			conns = append(conns, c)
		}
		e.mu.Unlock()

		var errs []error
		for _, c := range conns {
			if c.be == nil {
				continue
			}
			if err := c.endTran(ctx, completion == SQL_COMMIT); err != nil {
				errs = append(errs, err)
			}
		}
		return SQL_SUCCESS, errors.Join(errs...)
	})
}

func (e *Env) free() SQLRETURN {
	return e.execute(func() (SQLRETURN, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if len(e.conns) > 0 {
			return SQL_ERROR, getError(errSequence, errors.New("environment has allocated connections"))
		}
		return SQL_SUCCESS, nil
	})
}
