package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/maple"
	"github.com/ValentinKolb/eKV/lib/db/engines/pebble"
)

// --------------------------------------------------------------------------
// Database configuration struct
// --------------------------------------------------------------------------

// Config holds all parameters needed to open a database from the CLI
// (flags, environment variables or a config file).
type Config struct {
	// Storage
	Path   string            // "" keeps the database in memory
	Engine db.Implementation // maple or pebble
	Sync   bool              // fsync every commit (pebble only)

	// Codecs
	ObjectCodec   string
	MetadataCodec string
	Compression   string // applied to objects only

	// Transactions
	SlowCommitThreshold time.Duration

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Engine:              db.ImplMaple,
		Sync:                true,
		ObjectCodec:         string(codec.ProfileFull),
		MetadataCodec:       string(codec.ProfileFull),
		Compression:         string(codec.CompressionNone),
		SlowCommitThreshold: time.Millisecond,
		LogLevel:            "info",
	}
}

// ToOptions converts the configuration into core.Options
func (c *Config) ToOptions() (*core.Options, error) {
	objectProfile, err := codec.ParseProfile(c.ObjectCodec)
	if err != nil {
		return nil, err
	}
	metadataProfile, err := codec.ParseProfile(c.MetadataCodec)
	if err != nil {
		return nil, err
	}
	compression, err := codec.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	codecs, err := codec.FromProfiles(objectProfile, metadataProfile)
	if err != nil {
		return nil, err
	}

	engine, err := c.engineFactory()
	if err != nil {
		return nil, err
	}

	return &core.Options{
		Codecs:              codecs.CompressObjects(compression),
		Engine:              engine,
		SlowCommitThreshold: c.SlowCommitThreshold,
	}, nil
}

// Open opens the database described by the configuration
func (c *Config) Open() (*core.Database, error) {
	opts, err := c.ToOptions()
	if err != nil {
		return nil, err
	}
	return core.Open(c.Path, opts)
}

// engineFactory returns the db.Factory of the configured engine
func (c *Config) engineFactory() (db.Factory, error) {
	switch db.Implementation(strings.ToLower(string(c.Engine))) {
	case db.ImplMaple, "":
		return maple.Open, nil
	case db.ImplPebble:
		sync := c.Sync
		return func(path string) (db.KVDB, error) {
			opts := pebble.DefaultOptions()
			opts.Dir = path
			opts.Sync = sync
			return pebble.NewPebbleDB(opts)
		}, nil
	default:
		return nil, fmt.Errorf("invalid engine %q (expected one of: maple, pebble)", c.Engine)
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	path := c.Path
	if path == "" {
		path = "(in memory)"
	}

	addSection("Storage")
	addField("Path", path)
	addField("Engine", string(c.Engine))
	addField("Sync", fmt.Sprintf("%t", c.Sync))

	addSection("Codecs")
	addField("Object Codec", c.ObjectCodec)
	addField("Metadata Codec", c.MetadataCodec)
	addField("Compression", c.Compression)

	addSection("Transactions")
	addField("Slow Commit Threshold", c.SlowCommitThreshold.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
