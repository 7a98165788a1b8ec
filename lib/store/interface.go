package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/eKV/lib/core"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the part of a store that does not depend on its key model.
// Both store variants embed *core.Database and satisfy it, so tools can register
// extensions and read statistics without knowing which variant they hold.
type IStore interface {
	// RegisterExtension registers ext under name (see core.Database.RegisterExtension)
	RegisterExtension(ext core.Extension, name string) bool
	// TryRegisterExtension is like RegisterExtension but returns the reason of a failure
	TryRegisterExtension(ext core.Extension, name string) error
	// UnregisterExtension detaches ext and drops its private storage
	UnregisterExtension(name string) bool
	// RegisteredExtensionNames returns the active extensions in registration order
	RegisteredExtensionNames() []string
	// Stats returns a summary of the database
	Stats() core.Stats
	// Flush writes buffered engine state to durable storage
	Flush() error
	// Close closes the store. All connections must be closed before.
	Close() error
}

var _ IStore = (*core.Database)(nil)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// ErrEmptyKey is returned by every operation that is called with an empty key
var ErrEmptyKey = NewError(RetCInvalidOperation, "key must not be empty")

// CheckKey returns ErrEmptyKey for an empty key
func CheckKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

// Wrap converts errors of the database core caused by an invalid use of the store
// into an *Error with code RetCInvalidOperation. Other errors (codec errors,
// extension errors, engine errors) are returned unchanged.
func Wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrInvalidKey),
		errors.Is(err, core.ErrTransactionDone),
		errors.Is(err, core.ErrConnectionClosed),
		errors.Is(err, core.ErrDatabaseClosed),
		errors.Is(err, core.ErrOpenTransactions),
		errors.Is(err, core.ErrOpenConnections):
		var storeErr *Error
		if errors.As(err, &storeErr) {
			return err
		}
		return &Error{Code: RetCInvalidOperation, Msg: err.Error(), Err: err}
	default:
		return err
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
