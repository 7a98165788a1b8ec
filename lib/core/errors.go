package core

import (
	"errors"
	"fmt"
)

// Registry errors
var (
	ErrDuplicateExtensionName     = errors.New("core: an extension with this name is already registered")
	ErrExtensionAlreadyRegistered = errors.New("core: extension is already registered")
	ErrInvalidExtensionName       = errors.New("core: invalid extension name")
	ErrExtensionNotComparable     = errors.New("core: extension must be a comparable value (use a pointer)")
	ErrExtensionNotFound          = errors.New("core: extension is not registered")
)

// Lifecycle errors
var (
	ErrDatabaseClosed   = errors.New("core: database is closed")
	ErrConnectionClosed = errors.New("core: connection is closed")
	ErrTransactionDone  = errors.New("core: transaction already committed or rolled back")
	ErrOpenConnections  = errors.New("core: database still has open connections")
	ErrOpenTransactions = errors.New("core: connection still has open transactions")
)

// Data errors
var (
	ErrInvalidKey    = errors.New("core: invalid collection or key")
	ErrCorruptRecord = errors.New("core: corrupt record")
)

// ExtensionInstallError is returned when the Install step of a registration fails.
// The database is left exactly as before the registration.
type ExtensionInstallError struct {
	Name string
	Err  error
}

func (e *ExtensionInstallError) Error() string {
	return fmt.Sprintf("core: install of extension %q failed: %v", e.Name, e.Err)
}

func (e *ExtensionInstallError) Unwrap() error {
	return e.Err
}

// ExtensionHookError is returned by Commit when an extension rejects the mutations
// of a write transaction. The whole transaction has been rolled back.
type ExtensionHookError struct {
	Name string
	Err  error
}

func (e *ExtensionHookError) Error() string {
	return fmt.Sprintf("core: extension %q failed to process mutations: %v", e.Name, e.Err)
}

func (e *ExtensionHookError) Unwrap() error {
	return e.Err
}

// recovered converts a panic value of an extension callback into an error
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
