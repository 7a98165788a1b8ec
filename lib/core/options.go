package core

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/maple"
)

// Options configures a Database at open time. Options are copied by Open,
// later changes have no effect.
type Options struct {
	// Codecs used for objects and metadata. A zero value selects codec.Default().
	Codecs codec.Config

	// Engine opens the storage engine at the database path. nil selects maple.Open.
	Engine db.Factory

	// SlowCommitThreshold is the commit duration above which a commit is logged
	// (0 disables the log).
	SlowCommitThreshold time.Duration
}

// DefaultOptions returns the default database options:
// full-fidelity codecs, the maple engine and a slow commit threshold of 1ms.
func DefaultOptions() *Options {
	return &Options{
		Codecs:              codec.Default(),
		Engine:              maple.Open,
		SlowCommitThreshold: time.Millisecond,
	}
}

// normalize fills unset fields with defaults and validates the codecs
func (o *Options) normalize() (Options, error) {
	if o == nil {
		return *DefaultOptions(), nil
	}

	out := *o
	if out.Codecs.IsZero() {
		out.Codecs = codec.Default()
	}
	if err := out.Codecs.Validate(); err != nil {
		return Options{}, fmt.Errorf("core: invalid codecs: %w", err)
	}
	if out.Engine == nil {
		out.Engine = maple.Open
	}
	return out, nil
}
