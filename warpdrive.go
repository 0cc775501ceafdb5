// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package warpdrive implements the statement and descriptor engine of a
// call-level database driver: handles, descriptors, the statement state
// machine, row and parameter binding, and keyset-driven updatable cursors
// with transaction-scoped rollback of positioned row operations.
//
// Query execution is delegated to a backend (see package backend) that
// is registered with the Driver by name.
package warpdrive

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/warpdrive/go-warpdrive/backend"
)

// Driver is the driver service. It is constructed once by the process and
// passed to every environment allocated from it.
type Driver struct {
	logger *slog.Logger

	mu       sync.RWMutex
	backends map[string]backend.Opener
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger handles log to.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithBackend registers a backend opener under name. The connection
// property "backend" selects it.
func WithBackend(name string, open backend.Opener) Option {
	return func(d *Driver) {
		d.backends[name] = open
	}
}

// NewDriver returns a driver configured by opts.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		logger:   slog.Default(),
		backends: make(map[string]backend.Opener),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterBackend adds a backend after construction.
func (d *Driver) RegisterBackend(name string, open backend.Opener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends[name] = open
}

func (d *Driver) opener(name string) (backend.Opener, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	open, ok := d.backends[name]
	return open, ok
}

// AllocEnv allocates an environment handle.
func (d *Driver) AllocEnv() *Env {
	e := &Env{
		handle:      newHandle(d.logger, "env"),
		driver:      d,
		odbcVersion: SQL_OV_ODBC3,
		conns:       make(map[uuid.UUID]*Conn),
	}
	e.logger.Debug("environment allocated")
	return e
}

// AllocHandle allocates a handle of the given kind. input is nil for an
// environment, the environment for a connection, and the connection for a
// statement or an explicit descriptor.
func (d *Driver) AllocHandle(kind int16, input Handle) (Handle, SQLRETURN) {
	switch kind {
	case SQL_HANDLE_ENV:
		return d.AllocEnv(), SQL_SUCCESS
	case SQL_HANDLE_DBC:
		env, ok := input.(*Env)
		if !ok || env == nil {
			return nil, SQL_INVALID_HANDLE
		}
		conn, rc := env.AllocConnect()
		if conn == nil {
			return nil, rc
		}
		return conn, rc
	case SQL_HANDLE_STMT:
		conn, ok := input.(*Conn)
		if !ok || conn == nil {
			return nil, SQL_INVALID_HANDLE
		}
		stmt, rc := conn.AllocStmt()
		if stmt == nil {
			return nil, rc
		}
		return stmt, rc
	case SQL_HANDLE_DESC:
		conn, ok := input.(*Conn)
		if !ok || conn == nil {
			return nil, SQL_INVALID_HANDLE
		}
		desc, rc := conn.AllocDesc()
		if desc == nil {
			return nil, rc
		}
		return desc, rc
	}
	return nil, SQL_ERROR
}

// FreeHandle releases h. Freeing a connection releases its statements and
// descriptors; freeing a statement closes its cursor.
func FreeHandle(kind int16, h Handle) SQLRETURN {
	if handleBase(h) == nil || h.HandleType() != kind {
		return SQL_INVALID_HANDLE
	}
	switch v := h.(type) {
	case *Env:
		return v.free()
	case *Conn:
		return v.free()
	case *Stmt:
		return v.FreeStmt(SQL_DROP)
	case *Desc:
		if v.conn == nil {
			return v.execute(func() (SQLRETURN, error) {
				return SQL_ERROR, errImplDescUse
			})
		}
		v.release()
		return SQL_SUCCESS
	}
	return SQL_INVALID_HANDLE
}
