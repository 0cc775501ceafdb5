package warpdrive

import (
	"fmt"
)

// stmtAttrs holds the statement attributes that are not stored in a
// descriptor header.
type stmtAttrs struct {
	queryTimeout     int64
	maxRows          int64
	noScan           int64
	maxLength        int64
	cursorType       int64
	concurrency      int64
	keysetSize       int64
	rowsetSize       int64
	simulateCursor   int64
	retrieveData     int64
	useBookmarks     int64
	enableAutoIPD    int64
	metadataID       int64
	fetchBookmarkPtr Ptr
}

func defaultStmtAttrs(cfg Config) stmtAttrs {
	return stmtAttrs{
		queryTimeout:   cfg.QueryTimeout,
		maxRows:        cfg.MaxRows,
		cursorType:     SQL_CURSOR_FORWARD_ONLY,
		concurrency:    SQL_CONCUR_READ_ONLY,
		keysetSize:     cfg.KeysetSize,
		rowsetSize:     1,
		simulateCursor: SQL_SC_NON_UNIQUE,
		retrieveData:   SQL_RD_ON,
		useBookmarks:   cfg.UseBookmarks,
	}
}

func (a stmtAttrs) scrollable() bool {
	return a.cursorType != SQL_CURSOR_FORWARD_ONLY
}

func (a stmtAttrs) sensitivity() int64 {
	switch {
	case a.cursorType == SQL_CURSOR_STATIC && a.concurrency == SQL_CONCUR_READ_ONLY:
		return SQL_INSENSITIVE
	case a.cursorType == SQL_CURSOR_KEYSET_DRIVEN:
		return SQL_SENSITIVE
	}
	return SQL_UNSPECIFIED
}

// inheritable reports whether a new statement of the connection copies
// attr from the most recently configured statement.
func inheritable(attr int32) bool {
	switch attr {
	case SQL_ATTR_METADATA_ID, SQL_ATTR_MAX_LENGTH, SQL_ATTR_NOSCAN, SQL_ATTR_QUERY_TIMEOUT, SQL_ATTR_ROW_BIND_TYPE:
		return true
	}
	return false
}

// SetStmtAttr sets a statement attribute. Attributes backed by a
// descriptor header write through to the active descriptor.
func (s *Stmt) SetStmtAttr(attr int32, value any) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		if err := s.setAttr(attr, value); err != nil {
			return SQL_ERROR, err
		}
		if inheritable(attr) {
			s.conn.tracking = s
		}
		return SQL_SUCCESS, nil
	})
}

func (s *Stmt) setAttr(attr int32, value any) error {
	switch attr {
	case SQL_ATTR_APP_ROW_DESC:
		return s.assignDescriptor(value, false)
	case SQL_ATTR_APP_PARAM_DESC:
		return s.assignDescriptor(value, true)
	case SQL_ATTR_IMP_ROW_DESC, SQL_ATTR_IMP_PARAM_DESC:
		return errImplDescUse
	case SQL_ATTR_ROW_NUMBER:
		return fmt.Errorf("%w: row number is read-only", errInvalidAttribute)
	case SQL_ATTR_FETCH_BOOKMARK_PTR:
		p, err := toPtr(value)
		if err != nil {
			return err
		}
		s.attrs.fetchBookmarkPtr = p
		return nil
	case SQL_ATTR_ROW_BIND_OFFSET_PTR:
		return s.ard.setHeaderField(SQL_DESC_BIND_OFFSET_PTR, value)
	case SQL_ATTR_ROW_OPERATION_PTR:
		return s.ard.setHeaderField(SQL_DESC_ARRAY_STATUS_PTR, value)
	case SQL_ATTR_ROW_STATUS_PTR:
		return s.ird.setHeaderField(SQL_DESC_ARRAY_STATUS_PTR, value)
	case SQL_ATTR_ROWS_FETCHED_PTR:
		return s.ird.setHeaderField(SQL_DESC_ROWS_PROCESSED_PTR, value)
	case SQL_ATTR_PARAM_BIND_OFFSET_PTR:
		return s.apd.setHeaderField(SQL_DESC_BIND_OFFSET_PTR, value)
	case SQL_ATTR_PARAM_OPERATION_PTR:
		return s.apd.setHeaderField(SQL_DESC_ARRAY_STATUS_PTR, value)
	case SQL_ATTR_PARAM_STATUS_PTR:
		return s.ipd.setHeaderField(SQL_DESC_ARRAY_STATUS_PTR, value)
	case SQL_ATTR_PARAMS_PROCESSED_PTR:
		return s.ipd.setHeaderField(SQL_DESC_ROWS_PROCESSED_PTR, value)
	}

	v, err := toInt64(value)
	if err != nil {
		return err
	}
	switch attr {
	case SQL_ATTR_ROW_ARRAY_SIZE:
		return s.ard.setHeaderField(SQL_DESC_ARRAY_SIZE, v)
	case SQL_ATTR_ROW_BIND_TYPE:
		return s.ard.setHeaderField(SQL_DESC_BIND_TYPE, v)
	case SQL_ATTR_PARAMSET_SIZE:
		return s.apd.setHeaderField(SQL_DESC_ARRAY_SIZE, v)
	case SQL_ATTR_PARAM_BIND_TYPE:
		return s.apd.setHeaderField(SQL_DESC_BIND_TYPE, v)
	case SQL_ATTR_QUERY_TIMEOUT:
		if v < 0 {
			return fmt.Errorf("%w: query timeout %d", errInvalidAttrValue, v)
		}
		s.attrs.queryTimeout = v
		return s.syncBackendAttrs()
	case SQL_ATTR_MAX_ROWS:
		s.attrs.maxRows = v
		return s.syncBackendAttrs()
	case SQL_ATTR_MAX_LENGTH:
		s.attrs.maxLength = v
		return s.syncBackendAttrs()
	case SQL_ATTR_NOSCAN:
		s.attrs.noScan = v
		return s.syncBackendAttrs()
	case SQL_ATTR_METADATA_ID:
		s.attrs.metadataID = v
	case SQL_ATTR_ASYNC_ENABLE:
		if v != SQL_ASYNC_ENABLE_OFF {
			return fmt.Errorf("%w: asynchronous execution", errNotImplemented)
		}
	case SQL_ATTR_CURSOR_TYPE:
		return s.setCursorType(v)
	case SQL_ATTR_CONCURRENCY:
		return s.setConcurrency(v)
	case SQL_ATTR_CURSOR_SCROLLABLE:
		if v == SQL_SCROLLABLE {
			if s.attrs.scrollable() {
				return nil
			}
			return s.setCursorType(SQL_CURSOR_KEYSET_DRIVEN)
		}
		return s.setCursorType(SQL_CURSOR_FORWARD_ONLY)
	case SQL_ATTR_CURSOR_SENSITIVITY:
		switch v {
		case SQL_INSENSITIVE:
			if err := s.setCursorType(SQL_CURSOR_STATIC); err != nil {
				return err
			}
			return s.setConcurrency(SQL_CONCUR_READ_ONLY)
		case SQL_SENSITIVE:
			return s.setCursorType(SQL_CURSOR_KEYSET_DRIVEN)
		case SQL_UNSPECIFIED:
		default:
			return fmt.Errorf("%w: cursor sensitivity %d", errInvalidAttrValue, v)
		}
	case SQL_ATTR_KEYSET_SIZE:
		if v < 0 {
			return fmt.Errorf("%w: keyset size %d", errInvalidAttrValue, v)
		}
		s.attrs.keysetSize = v
	case SQL_ROWSET_SIZE:
		if v < 1 {
			return fmt.Errorf("%w: rowset size %d", errInvalidAttrValue, v)
		}
		s.attrs.rowsetSize = v
	case SQL_ATTR_SIMULATE_CURSOR:
		s.attrs.simulateCursor = v
	case SQL_ATTR_RETRIEVE_DATA:
		if v != SQL_RD_ON && v != SQL_RD_OFF {
			return fmt.Errorf("%w: retrieve data %d", errInvalidAttrValue, v)
		}
		s.attrs.retrieveData = v
	case SQL_ATTR_USE_BOOKMARKS:
		if v != SQL_UB_OFF && v != SQL_UB_FIXED && v != SQL_UB_VARIABLE {
			return fmt.Errorf("%w: use bookmarks %d", errInvalidAttrValue, v)
		}
		if s.cursor != nil {
			return errInvalidCursor
		}
		s.attrs.useBookmarks = v
		s.ird.bookmark = bookmarkRecord(v == SQL_UB_VARIABLE)
	case SQL_ATTR_ENABLE_AUTO_IPD:
		s.attrs.enableAutoIPD = v
	default:
		return attributeError(attr)
	}
	return nil
}

func (s *Stmt) setCursorType(v int64) error {
	if s.cursor != nil {
		return errInvalidCursor
	}
	switch v {
	case SQL_CURSOR_FORWARD_ONLY, SQL_CURSOR_STATIC, SQL_CURSOR_KEYSET_DRIVEN:
	case SQL_CURSOR_DYNAMIC:
		s.warn(stateOptionChanged, "dynamic cursors are not supported, using a keyset-driven cursor")
		v = SQL_CURSOR_KEYSET_DRIVEN
	default:
		return fmt.Errorf("%w: cursor type %d", errInvalidAttrValue, v)
	}
	s.attrs.cursorType = v
	return nil
}

func (s *Stmt) setConcurrency(v int64) error {
	if s.cursor != nil {
		return errInvalidCursor
	}
	switch v {
	case SQL_CONCUR_READ_ONLY, SQL_CONCUR_ROWVER, SQL_CONCUR_VALUES:
	case SQL_CONCUR_LOCK:
		s.warn(stateOptionChanged, "lock concurrency is not supported, using row versioning")
		v = SQL_CONCUR_ROWVER
	default:
		return fmt.Errorf("%w: concurrency %d", errInvalidAttrValue, v)
	}
	s.attrs.concurrency = v
	return nil
}

// assignDescriptor makes value the active application descriptor of one
// side. A nil value reverts to the private default.
func (s *Stmt) assignDescriptor(value any, isParam bool) error {
	var d *Desc
	switch v := value.(type) {
	case nil:
	case *Desc:
		d = v
	default:
		return fmt.Errorf("%w: expected a descriptor handle, got %T", errInvalidAttrValue, value)
	}

	current := s.ard
	if isParam {
		current = s.apd
	}
	if d == nil || d == s.defaultARD || d == s.defaultAPD {
		if current != s.defaultARD && current != s.defaultAPD {
			current.detach(s, isParam)
		}
		s.revertDescriptor(isParam)
		return nil
	}
	if d.kind != descApp || d.conn == nil {
		return errImplDescUse
	}
	if d.conn != s.conn {
		return fmt.Errorf("%w: descriptor belongs to another connection", errInvalidAttrValue)
	}
	if current != d && current != s.defaultARD && current != s.defaultAPD {
		current.detach(s, isParam)
	}
	d.register(s, isParam)
	d.changed = true
	if isParam {
		s.apd = d
	} else {
		s.ard = d
		s.bindings = nil
	}
	return nil
}

// GetStmtAttr reads a statement attribute into dest: integer attributes
// into an integer pointer, pointer attributes into a *Ptr and descriptor
// attributes into a **Desc or *Handle.
func (s *Stmt) GetStmtAttr(attr int32, dest any, strLen *int32) SQLRETURN {
	return s.call(func() (SQLRETURN, error) {
		switch attr {
		case SQL_ATTR_APP_ROW_DESC:
			return SQL_SUCCESS, putDesc(dest, s.ard)
		case SQL_ATTR_APP_PARAM_DESC:
			return SQL_SUCCESS, putDesc(dest, s.apd)
		case SQL_ATTR_IMP_ROW_DESC:
			return SQL_SUCCESS, putDesc(dest, s.ird)
		case SQL_ATTR_IMP_PARAM_DESC:
			return SQL_SUCCESS, putDesc(dest, s.ipd)
		case SQL_ATTR_FETCH_BOOKMARK_PTR:
			return SQL_SUCCESS, putPointer(dest, s.attrs.fetchBookmarkPtr)
		case SQL_ATTR_ROW_BIND_OFFSET_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ard.bindOffsetPtr)
		case SQL_ATTR_ROW_OPERATION_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ard.arrayStatusPtr)
		case SQL_ATTR_ROW_STATUS_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ird.arrayStatusPtr)
		case SQL_ATTR_ROWS_FETCHED_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ird.rowsProcessedPtr)
		case SQL_ATTR_PARAM_BIND_OFFSET_PTR:
			return SQL_SUCCESS, putPointer(dest, s.apd.bindOffsetPtr)
		case SQL_ATTR_PARAM_OPERATION_PTR:
			return SQL_SUCCESS, putPointer(dest, s.apd.arrayStatusPtr)
		case SQL_ATTR_PARAM_STATUS_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ipd.arrayStatusPtr)
		case SQL_ATTR_PARAMS_PROCESSED_PTR:
			return SQL_SUCCESS, putPointer(dest, s.ipd.rowsProcessedPtr)
		}
		v, err := s.intAttr(attr)
		if err != nil {
			return SQL_ERROR, err
		}
		if strLen != nil {
			*strLen = sizeLen
		}
		return SQL_SUCCESS, putInteger(dest, v)
	})
}

func (s *Stmt) intAttr(attr int32) (int64, error) {
	switch attr {
	case SQL_ATTR_ROW_ARRAY_SIZE:
		return int64(s.ard.arraySize), nil
	case SQL_ATTR_ROW_BIND_TYPE:
		return int64(s.ard.bindType), nil
	case SQL_ATTR_PARAMSET_SIZE:
		return int64(s.apd.arraySize), nil
	case SQL_ATTR_PARAM_BIND_TYPE:
		return int64(s.apd.bindType), nil
	case SQL_ATTR_QUERY_TIMEOUT:
		return s.attrs.queryTimeout, nil
	case SQL_ATTR_MAX_ROWS:
		return s.attrs.maxRows, nil
	case SQL_ATTR_MAX_LENGTH:
		return s.attrs.maxLength, nil
	case SQL_ATTR_NOSCAN:
		return s.attrs.noScan, nil
	case SQL_ATTR_METADATA_ID:
		return s.attrs.metadataID, nil
	case SQL_ATTR_ASYNC_ENABLE:
		return SQL_ASYNC_ENABLE_OFF, nil
	case SQL_ATTR_CURSOR_TYPE:
		return s.attrs.cursorType, nil
	case SQL_ATTR_CONCURRENCY:
		return s.attrs.concurrency, nil
	case SQL_ATTR_CURSOR_SCROLLABLE:
		if s.attrs.scrollable() {
			return SQL_SCROLLABLE, nil
		}
		return SQL_NONSCROLLABLE, nil
	case SQL_ATTR_CURSOR_SENSITIVITY:
		return s.attrs.sensitivity(), nil
	case SQL_ATTR_KEYSET_SIZE:
		return s.attrs.keysetSize, nil
	case SQL_ROWSET_SIZE:
		return s.attrs.rowsetSize, nil
	case SQL_ATTR_SIMULATE_CURSOR:
		return s.attrs.simulateCursor, nil
	case SQL_ATTR_RETRIEVE_DATA:
		return s.attrs.retrieveData, nil
	case SQL_ATTR_USE_BOOKMARKS:
		return s.attrs.useBookmarks, nil
	case SQL_ATTR_ENABLE_AUTO_IPD:
		return s.attrs.enableAutoIPD, nil
	case SQL_ATTR_ROW_NUMBER:
		return s.rowNumber(), nil
	}
	return 0, attributeError(attr)
}

func putDesc(dest any, d *Desc) error {
	switch p := dest.(type) {
	case **Desc:
		*p = d
	case *Handle:
		*p = d
	case *any:
		*p = d
	case nil:
		return errInvalidNull
	default:
		return fmt.Errorf("%w: descriptor handle into %T", errInvalidAttrValue, dest)
	}
	return nil
}
