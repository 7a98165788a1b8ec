package core

import "fmt"

// MutationKind identifies the type of change a write transaction made to a primary record
type MutationKind int

const (
	MutationInsert         MutationKind = iota // A new key was stored
	MutationUpdate                             // The object (and metadata) of an existing key was replaced
	MutationUpdateMetadata                     // Only the metadata of an existing key was replaced
	MutationRemove                             // An existing key was removed
)

func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "Insert"
	case MutationUpdate:
		return "Update"
	case MutationUpdateMetadata:
		return "UpdateMetadata"
	case MutationRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// Mutation describes one change of a write transaction, in the order it was made.
//
// Object is set for Insert and Update. Metadata is set for Insert, Update and
// UpdateMetadata (nil if the record has none). Remove carries neither.
type Mutation struct {
	Kind       MutationKind
	Collection string
	Key        string
	Object     any
	Metadata   any
}

func (m Mutation) String() string {
	return fmt.Sprintf("Mutation{Kind: %s, Collection: %q, Key: %q}", m.Kind, m.Collection, m.Key)
}
