package warpdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/warpdrive/go-warpdrive/backend"
)

// Conn is a connection handle.
type Conn struct {
	handle
	env *Env
	cfg Config
	be  backend.Connection

	mu    sync.Mutex
	stmts map[uuid.UUID]*Stmt
	descs map[uuid.UUID]*Desc

	autocommit bool
	inTx       bool

	// tracking is the statement whose inheritable attributes seed new
	// statements of the connection.
	tracking *Stmt
	ctxs     cancelStore
}

func newConn(e *Env) *Conn {
	return &Conn{
		handle:     newHandle(e.driver.logger, "dbc"),
		env:        e,
		cfg:        defaultConfig(),
		stmts:      make(map[uuid.UUID]*Stmt),
		descs:      make(map[uuid.UUID]*Desc),
		autocommit: true,
		ctxs:       newContextStore(),
	}
}

func (c *Conn) HandleType() int16 {
	return SQL_HANDLE_DBC
}

func (c *Conn) odbc2() bool {
	return c.env.odbc2()
}

// DriverConnect parses connStr, opens the selected backend and applies the
// connection defaults it carries.
func (c *Conn) DriverConnect(ctx context.Context, connStr string) SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		if c.be != nil {
			return SQL_ERROR, getError(errSequence, errors.New("connection is already open"))
		}
		cfg, err := ParseConfig(connStr)
		if err != nil {
			return SQL_ERROR, err
		}
		open, ok := c.env.driver.opener(cfg.Backend)
		if !ok {
			return SQL_ERROR, getError(errNoBackend, fmt.Errorf("backend %q", cfg.Backend))
		}
		be, err := open(ctx, backend.Options{
			Database:     cfg.Database,
			QueryTimeout: cfg.queryTimeout(),
			Properties:   cfg.backendProperties(),
			Logger:       c.logger,
		})
		if err != nil {
			return SQL_ERROR, getError(errConnect, err)
		}
		c.cfg = cfg
		c.be = be
		c.autocommit = cfg.AutoCommit
		c.logger.Debug("connected", slog.String("backend", cfg.Backend), slog.String("database", cfg.Database))
		return SQL_SUCCESS, nil
	})
}

// Disconnect frees every statement and explicit descriptor of c, rolls
// back an open transaction and closes the backend connection.
func (c *Conn) Disconnect(ctx context.Context) SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		if c.be == nil {
			return SQL_ERROR, errNotConnected
		}
		return SQL_SUCCESS, c.disconnect(ctx)
	})
}

func (c *Conn) disconnect(ctx context.Context) error {
	var errs []error
	if c.inTx {
		errs = append(errs, c.be.Rollback(ctx))
		c.inTx = false
	}
	for _, s := range c.statements() {
		s.drop()
	}
	for _, d := range c.descriptors() {
		d.release()
	}
	errs = append(errs, c.be.Close())
	c.be = nil
	c.tracking = nil
	c.logger.Debug("disconnected")
	return errors.Join(errs...)
}

func (c *Conn) free() SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		var err error
		if c.be != nil {
			err = c.disconnect(context.Background())
		}
		c.env.dropConn(c)
		return SQL_SUCCESS, err
	})
}

// AllocStmt allocates a statement on c. The new statement inherits the
// attribute defaults of the connection.
func (c *Conn) AllocStmt() (*Stmt, SQLRETURN) {
	var s *Stmt
	rc := c.execute(func() (SQLRETURN, error) {
		if c.be == nil {
			return SQL_ERROR, errNotConnected
		}
		bs, err := c.be.NewStatement(context.Background())
		if err != nil {
			return SQL_ERROR, err
		}
		s = newStmt(c, bs)
		if c.tracking != nil {
			if err := s.copyAttributesFrom(c.tracking); err != nil {
				return SQL_ERROR, err
			}
		}
		c.mu.Lock()
		c.stmts[s.id] = s
		c.mu.Unlock()
		s.logger.Debug("statement allocated")
		return SQL_SUCCESS, nil
	})
	if rc == SQL_ERROR {
		return nil, rc
	}
	return s, rc
}

// AllocDesc allocates an explicit application descriptor on c.
func (c *Conn) AllocDesc() (*Desc, SQLRETURN) {
	var d *Desc
	rc := c.execute(func() (SQLRETURN, error) {
		if c.be == nil {
			return SQL_ERROR, errNotConnected
		}
		d = newDesc(c.env.driver.logger, descApp, c)
		c.mu.Lock()
		c.descs[d.id] = d
		c.mu.Unlock()
		return SQL_SUCCESS, nil
	})
	if rc == SQL_ERROR {
		return nil, rc
	}
	return d, rc
}

func (c *Conn) statements() []*Stmt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stmt, 0, len(c.stmts))
	for _, s := range c.stmts {
		out = append(out, s)
	}
	return out
}

func (c *Conn) descriptors() []*Desc {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Desc, 0, len(c.descs))
	for _, d := range c.descs {
		out = append(out, d)
	}
	return out
}

func (c *Conn) removeStmt(s *Stmt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stmts, s.id)
	if c.tracking == s {
		c.tracking = nil
	}
}

func (c *Conn) dropDescriptor(d *Desc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.descs, d.id)
}

// SetConnectAttr sets a connection attribute. Switching autocommit on
// commits an open transaction.
func (c *Conn) SetConnectAttr(ctx context.Context, attr int32, value any) SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		switch attr {
		case SQL_ATTR_AUTOCOMMIT:
			v, err := toInt64(value)
			if err != nil {
				return SQL_ERROR, err
			}
			switch v {
			case SQL_AUTOCOMMIT_ON:
				if c.inTx {
					if err := c.endTran(ctx, true); err != nil {
						return SQL_ERROR, err
					}
				}
				c.autocommit = true
			case SQL_AUTOCOMMIT_OFF:
				c.autocommit = false
			default:
				return SQL_ERROR, fmt.Errorf("%w: autocommit %d", errInvalidAttrValue, v)
			}
			return SQL_SUCCESS, nil
		case SQL_ATTR_QUERY_TIMEOUT:
			v, err := toInt64(value)
			if err != nil {
				return SQL_ERROR, err
			}
			c.cfg.QueryTimeout = v
			return SQL_SUCCESS, nil
		}
		return SQL_ERROR, attributeError(attr)
	})
}

// GetConnectAttr reads a connection attribute into dest.
func (c *Conn) GetConnectAttr(attr int32, dest any) SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		switch attr {
		case SQL_ATTR_AUTOCOMMIT:
			v := SQL_AUTOCOMMIT_OFF
			if c.autocommit {
				v = SQL_AUTOCOMMIT_ON
			}
			return SQL_SUCCESS, putInteger(dest, v)
		case SQL_ATTR_QUERY_TIMEOUT:
			return SQL_SUCCESS, putInteger(dest, c.cfg.QueryTimeout)
		}
		return SQL_ERROR, attributeError(attr)
	})
}

// EndTran commits or rolls back the transaction of c. Every cursor of the
// connection promotes or undoes the positioned operations it journaled.
func (c *Conn) EndTran(ctx context.Context, completion int16) SQLRETURN {
	return c.execute(func() (SQLRETURN, error) {
		if c.be == nil {
			return SQL_ERROR, errNotConnected
		}
		switch completion {
		case SQL_COMMIT, SQL_ROLLBACK:
		default:
			return SQL_ERROR, fmt.Errorf("%w: completion type %d", errInvalidAttrValue, completion)
		}
		return SQL_SUCCESS, c.endTran(ctx, completion == SQL_COMMIT)
	})
}

func (c *Conn) endTran(ctx context.Context, commit bool) error {
	var err error
	if c.inTx {
		if commit {
			err = c.be.Commit(ctx)
		} else {
			err = c.be.Rollback(ctx)
		}
		c.inTx = false
	}
	// A failed commit leaves nothing committed.
	committed := commit && err == nil
	for _, s := range c.statements() {
		if s.cursor == nil {
			continue
		}
		if committed {
			s.cursor.discardRollback()
		} else {
			s.cursor.undoRollback()
		}
	}
	c.logger.Debug("transaction ended", slog.Bool("commit", commit), slog.Bool("committed", committed))
	return err
}

// ensureTx begins the transaction a manual-commit connection executes in.
func (c *Conn) ensureTx(ctx context.Context) error {
	if c.autocommit || c.inTx {
		return nil
	}
	if err := c.be.Begin(ctx); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

// beginImplicit opens the transaction positioned operations run in on an
// autocommit connection. It reports whether it began one.
func (c *Conn) beginImplicit(ctx context.Context) (bool, error) {
	if c.inTx {
		return false, nil
	}
	if !c.autocommit {
		return false, c.ensureTx(ctx)
	}
	if err := c.be.Begin(ctx); err != nil {
		return false, err
	}
	c.inTx = true
	return true, nil
}
