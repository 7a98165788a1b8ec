// Package store contains what the store variants of eKV share: the IStore interface
// for key-model independent operations and the unified error type.
//
// The package focuses on:
//   - A unified interface (IStore) for extension registration, statistics and shutdown
//   - Standardized error reporting for invalid operations
//
// Key Components:
//
//   - IStore Interface: Satisfied by every store variant through the embedded
//     *core.Database. Tools such as the ekv command line use it to register extensions
//     and read statistics without knowing the key model of the store.
//
//   - Error System: A structured error type with a return code. Invalid uses of a store
//     (an empty key, a collection containing a NUL byte, a write on a finished
//     transaction, a closed connection) are reported as *Error with code
//     RetCInvalidOperation. The original error of the database core stays reachable
//     through errors.Is and errors.As. Codec and extension errors are passed through
//     unchanged.
//
// Implementations:
//
//	- Key/Value Store (kvstore): All keys live in a single unnamed collection.
//	  Available in the "github.com/ValentinKolb/eKV/lib/store/kvstore" package.
//
//	- Collection/Key Store (cstore): Values are addressed by collection and key.
//	  Adds collection enumeration and bulk removal per collection.
//	  Available in the "github.com/ValentinKolb/eKV/lib/store/cstore" package.
//
// Both variants wrap the connection and transaction types of the core and share the
// codecs, the extension registry and the hooks of the database they embed.
package store
