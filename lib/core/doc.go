// Package core implements the extensible database core shared by all stores of eKV.
//
// A Database owns a storage engine (see package db), the codecs that turn objects and
// metadata into bytes (see package codec) and a registry of extensions. Extensions are
// derived structures such as secondary indexes, views or full-text search that are kept
// transactionally consistent with the primary data: every write transaction hands its
// mutations to all active extensions before it commits, and the writes of the
// extensions become durable in the same atomic engine batch as the primary data.
//
// Key Components:
//
//   - Database: Opened with Open(path, opts). Hands out connections, owns the single
//     write slot and the extension registry. Close detaches all extensions and closes
//     the engine, it fails while connections are open.
//
//   - Connection: A cheap handle used to begin transactions. BeginRead returns a
//     ReadTxn bound to an immutable snapshot, BeginReadWrite waits for the write slot
//     and returns the exclusive ReadWriteTxn. Read and ReadWrite wrap a function into
//     a transaction that is closed, committed or rolled back automatically.
//
//   - Transactions: Primary data is addressed by (collection, key). A record holds an
//     object and optional metadata, both encoded with the codecs of the database.
//     Every write of a ReadWriteTxn appends a Mutation (Insert, Update, UpdateMetadata
//     or Remove). Reads inside a ReadWriteTxn observe its own writes.
//
//   - Extensions: Implement the Extension interface and are registered under a unique
//     name with RegisterExtension. Registration runs Install inside an exclusive write
//     transaction, typically to backfill the derived state from all existing entries.
//     OnMutation is called once per committing transaction with all its mutations, an
//     error rolls back the whole transaction. Each extension has a private key/value
//     storage, readable from a ReadTxn through ExtensionStorage.
//
// Consistency:
//
// The commit of a batch and the publication of a new registry state happen inside one
// short critical section. Read transactions capture their snapshot and the registry
// inside the same section, so a reader either sees an extension together with its fully
// backfilled storage or does not see the extension at all. Registrations run on the write
// slot, so no write transaction can commit between the backfill and the publication.
//
// Engine key space:
//
//	p<collection>\x00<key>    primary record: flags | uvarint(len(object)) | object | metadata
//	x<extension>\x00<subkey>  private storage of an extension
//
// Observability:
//
// Process-wide counters and histograms are exported through VictoriaMetrics/metrics
// (metrics.WritePrometheus), per-database commit and hook timers are kept in a
// go-metrics registry and summarized by Database.Stats. Logging uses the dragonboat
// logger under the name "core".
package core
