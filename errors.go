package warpdrive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warpdrive/go-warpdrive/backend"
)

// DriverError is an error carrying the SQLSTATE and native code it is
// recorded with in a diagnostics ledger.
type DriverError struct {
	SQLState string
	Native   int32
	Msg      string
	Err      error
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", driverErrMsg, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", driverErrMsg, e.Msg, e.Err.Error())
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

func newError(state string, format string, args ...any) *DriverError {
	return &DriverError{SQLState: state, Msg: fmt.Sprintf(format, args...)}
}

func getError(errDriver error, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", driverErrMsg, errDriver)
	}
	return fmt.Errorf("%s: %w: %s", driverErrMsg, errDriver, err.Error())
}

func columnError(err error, colIdx int) error {
	return fmt.Errorf("%w: %s: %d", err, columnErrMsg, colIdx)
}

func rowError(err error, rowIdx int) error {
	return fmt.Errorf("%w: %s: %d", err, rowErrMsg, rowIdx)
}

func unsupportedTypeError(name string, cType int16) error {
	return fmt.Errorf("%w: %s: %s %d", errRestrictedConversion, unsupportedTypeErrMsg, name, cType)
}

func attributeError(attr int32) error {
	return fmt.Errorf("%w: %d", errInvalidAttribute, attr)
}

func fieldError(field int16) error {
	return fmt.Errorf("%w: %d", errInvalidDescField, field)
}

const (
	driverErrMsg          = "warpdrive"
	columnErrMsg          = "column index"
	rowErrMsg             = "row index"
	unsupportedTypeErrMsg = "unsupported conversion"
)

// SQLSTATE values raised by the engine.
const (
	stateGeneralWarning      = "01000"
	stateCursorOpConflict    = "01001"
	stateTruncated           = "01004"
	stateOptionChanged       = "01S02"
	stateRowsetRange         = "01S06"
	stateFractionalTruncated = "01S07"
	stateRestrictedType      = "07006"
	stateInvalidDescIndex    = "07009"
	stateColumnCount         = "21S02"
	stateLengthMismatch      = "22001"
	stateIndicatorRequired   = "22002"
	stateNumericRange        = "22003"
	stateInvalidDatetime     = "22007"
	stateInvalidCharValue    = "22018"
	stateInvalidCursorState  = "24000"
	stateInvalidCursorName   = "34000"
	stateDuplicateCursorName = "3C000"
	stateGeneral             = "HY000"
	stateMemory              = "HY001"
	stateInvalidBufferType   = "HY003"
	stateCancelled           = "HY008"
	stateInvalidNull         = "HY009"
	stateSequence            = "HY010"
	stateImplDescModify      = "HY016"
	stateImplDescUse         = "HY017"
	stateNonCharPieces       = "HY019"
	stateAttrValue           = "HY024"
	stateBufferLength        = "HY090"
	stateInvalidDescField    = "HY091"
	stateInvalidAttribute    = "HY092"
	stateFetchTypeRange      = "HY106"
	stateRowRange            = "HY107"
	stateInvalidCursorPos    = "HY109"
	stateNotImplemented      = "HYC00"
	stateTimeout             = "HYT00"
)

var (
	errDriver = errors.New("internal driver error, please file a bug report")

	errSequence          = errors.New("function sequence error")
	errInvalidCursor     = errors.New("invalid cursor state")
	errCancelled         = errors.New("operation cancelled")
	errNotImplemented    = errors.New("optional feature not implemented")
	errInvalidAttribute  = errors.New("invalid attribute/option identifier")
	errInvalidAttrValue  = errors.New("invalid attribute value")
	errInvalidDescField  = errors.New("invalid descriptor field identifier")
	errInvalidDescIndex  = errors.New("invalid descriptor index")
	errImplDescModify    = errors.New("cannot modify an implementation row descriptor")
	errImplDescUse       = errors.New("invalid use of an automatically allocated descriptor handle")
	errRowRange          = errors.New("row value out of range")
	errFetchTypeRange    = errors.New("fetch type out of range")
	errCursorPosition    = errors.New("invalid cursor position")
	errBufferLength      = errors.New("invalid string or buffer length")
	errNonCharPieces     = errors.New("non-character and non-binary data sent in pieces")
	errIndicatorRequired = errors.New("indicator variable required but not supplied")
	errNumericRange      = errors.New("numeric value out of range")
	errInvalidCharValue  = errors.New("invalid character value for cast specification")
	errInvalidDatetime   = errors.New("invalid datetime format")
	errLengthMismatch    = errors.New("string data, right truncated")
	errInvalidNull       = errors.New("invalid use of null pointer")
	errInvalidBufferType = errors.New("invalid application buffer type")

	errRestrictedConversion = errors.New("restricted data type attribute violation")
	errReadOnlyCursor       = errors.New("the operation is not allowed on a read-only cursor")
	errNotPrepared          = errors.New("statement is not prepared")
	errNoBackend            = errors.New("no backend registered for connection")
	errConnect              = errors.New("could not connect to backend")
	errParseConnStr         = errors.New("could not parse connection string")
	errNotConnected         = errors.New("connection is not open")
	errNotUpdatable         = errors.New("the result set is not updatable by position")
	errNoColumns            = errors.New("degree of derived table does not match column list")
	errInvalidCursorName    = errors.New("invalid cursor name")
	errDuplicateCursorName  = errors.New("duplicate cursor name")

	// Errors not covered in tests.
	errMemory = errors.New("memory allocation error")
)

// errorStates maps the sentinels above to the SQLSTATE they are recorded
// with. The first match in the wrapped chain wins.
var errorStates = []struct {
	err   error
	state string
}{
	{errSequence, stateSequence},
	{errNotPrepared, stateSequence},
	{errInvalidCursor, stateInvalidCursorState},
	{errCancelled, stateCancelled},
	{errNotImplemented, stateNotImplemented},
	{errInvalidAttribute, stateInvalidAttribute},
	{errReadOnlyCursor, stateInvalidAttribute},
	{errInvalidAttrValue, stateAttrValue},
	{errInvalidDescField, stateInvalidDescField},
	{errInvalidDescIndex, stateInvalidDescIndex},
	{errImplDescModify, stateImplDescModify},
	{errImplDescUse, stateImplDescUse},
	{errRowRange, stateRowRange},
	{errFetchTypeRange, stateFetchTypeRange},
	{errCursorPosition, stateInvalidCursorPos},
	{errBufferLength, stateBufferLength},
	{errNonCharPieces, stateNonCharPieces},
	{errIndicatorRequired, stateIndicatorRequired},
	{errNumericRange, stateNumericRange},
	{errInvalidCharValue, stateInvalidCharValue},
	{errInvalidDatetime, stateInvalidDatetime},
	{errLengthMismatch, stateLengthMismatch},
	{errNoColumns, stateColumnCount},
	{errInvalidCursorName, stateInvalidCursorName},
	{errDuplicateCursorName, stateDuplicateCursorName},
	{errInvalidNull, stateInvalidNull},
	{errInvalidBufferType, stateInvalidBufferType},
	{errRestrictedConversion, stateRestrictedType},
	{errMemory, stateMemory},
	{errNoBackend, "08001"},
	{errConnect, "08001"},
	{errParseConnStr, "08001"},
	{errNotConnected, "08003"},
	{context.Canceled, stateCancelled},
	{context.DeadlineExceeded, stateTimeout},
}

// classify returns the SQLSTATE, native code and message an error is
// recorded with.
func classify(err error) (state string, native int32, msg string) {
	msg = err.Error()
	if !strings.HasPrefix(msg, driverErrMsg+": ") {
		msg = driverErrMsg + ": " + msg
	}
	var de *DriverError
	if errors.As(err, &de) {
		return de.SQLState, de.Native, msg
	}
	var be *backend.Error
	if errors.As(err, &be) {
		state = be.SQLState
		if state == "" {
			state = stateGeneral
		}
		return state, be.Native, msg
	}
	for _, es := range errorStates {
		if errors.Is(err, es.err) {
			return es.state, 0, msg
		}
	}
	return stateGeneral, 0, msg
}
