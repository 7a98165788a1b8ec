// Package cmd implements the command-line interface of eKV. The ekv binary works on a
// local database, selected and configured with flags, EKV_* environment variables
// (.env files are loaded) or a JSON config file.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for store operations (set, get, del, list, count, collections) and
//     the perf benchmark that measures the overhead of registered extensions
//   - stats: Runs a short workload and prints the database statistics and the
//     Prometheus metrics of the process
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See ekv -help for a list of all commands.
package cmd
