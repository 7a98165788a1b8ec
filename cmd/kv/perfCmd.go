package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/common"
	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/store/cstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for eKV databases",
		Long:    "Runs write and read benchmarks against the configured database. With --extensions N, N no-op extensions are registered first to measure the overhead of the extension hooks.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfExtensions       = 0
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "extensions"
	perfTestCmd.Flags().Int(key, 0, util.WrapString("Number of no-op extensions to register before the benchmarks"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfExtensions = viper.GetInt("extensions")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// --------------------------------------------------------------------------
// No-op extension
// --------------------------------------------------------------------------

// noopExt receives every mutation but keeps no state
type noopExt struct {
	id int
}

func (e *noopExt) Install(core.ExtensionTxn) error { return nil }
func (e *noopExt) OnMutation(core.ExtensionTxn, []core.Mutation) error { return nil }
func (e *noopExt) Detach() error { return nil }

func registerExtensions(n int) error {
	for i := 0; i < n; i++ {
		if err := database.TryRegisterExtension(&noopExt{id: i}, fmt.Sprintf("noop-%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for eKV databases")

	if err := registerExtensions(perfExtensions); err != nil {
		return fmt.Errorf("failed to register extensions: %w", err)
	}

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Extensions: %d\n", perfExtensions)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	bench := func(name string, fn func(b *testing.B)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			fn(b)
		})
		results[name] = result
		printResult(name, result)
	}

	bench("set", func(b *testing.B) {
		getKey, iter := getKeys("set")
		b.Cleanup(func() { removeKeys("set", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := set(getKey(counter), "test"); err != nil {
					log.Printf("(set) - error setting key: %v\n", err)
				}
				counter++
			}
		})
	})

	bench("set-large", func(b *testing.B) {
		largeValue := make([]byte, perfLargeValueSizeKB*1024)
		getKey, iter := getKeys("set-large")
		b.Cleanup(func() { removeKeys("set-large", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := set(getKey(counter), largeValue); err != nil {
					log.Printf("(set-large) - error setting key: %v", err)
				}
				counter++
			}
		})
	})

	bench("set-batch", func(b *testing.B) {
		getKey, iter := getKeys("set-batch")
		b.Cleanup(func() { removeKeys("set-batch", iter) })

		b.ResetTimer()

		// one transaction per key spread
		for i := 0; i < b.N; i++ {
			err := conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
				for k := 0; k < perfKeySpread; k++ {
					if err := tx.Set(collection(), getKey(k), "test"); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				log.Printf("(set-batch) - error committing batch: %v", err)
			}
		}
	})

	bench("get", func(b *testing.B) {
		getKey, iter := getKeys("get")
		iter(func(k string) {
			if err := set(k, "test"); err != nil {
				log.Printf("(get) - error setting key: %v\n", err)
			}
		})
		b.Cleanup(func() { removeKeys("get", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			c := database.NewConnection()
			defer c.Close()
			counter := 0
			for pb.Next() {
				err := c.Read(func(tx *cstore.ReadTxn) error {
					_, _, err := tx.Object(collection(), getKey(counter))
					return err
				})
				if err != nil {
					log.Printf("(get) - error getting key: %v\n", err)
				}
				counter++
			}
		})
	})

	bench("delete", func(b *testing.B) {
		getKey, iter := getKeys("delete")
		iter(func(k string) {
			if err := set(k, "test"); err != nil {
				log.Printf("(delete) - error setting key: %v\n", err)
			}
		})
		b.Cleanup(func() { removeKeys("delete", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := remove(getKey(counter)); err != nil {
					log.Printf("(delete) - error deleting key: %v\n", err)
				}
				counter++
			}
		})
	})

	bench("mixed", func(b *testing.B) {
		getKey, iter := getKeys("mixed")
		b.Cleanup(func() { removeKeys("mixed", iter) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := getKey(counter)
				var err error
				switch counter % 4 {
				case 0: // set
					err = set(key, "test")
				case 1: // get
					err = conn.Read(func(tx *cstore.ReadTxn) error {
						_, _, err := tx.Object(collection(), key)
						return err
					})
				case 2: // delete
					err = remove(key)
				case 3: // has
					err = conn.Read(func(tx *cstore.ReadTxn) error {
						_, err := tx.Has(collection(), key)
						return err
					})
				}

				if err != nil {
					log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
				}
				counter++
			}
		})
	})

	fmt.Println()
	fmt.Println(database.Stats().String())

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func set(key string, value any) error {
	return conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
		return tx.Set(collection(), key, value)
	})
}

func remove(key string) error {
	return conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
		return tx.Remove(collection(), key)
	})
}

// removeKeys deletes all test keys of a benchmark in one transaction
func removeKeys(test string, iter func(func(string))) {
	err := conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
		var err error
		iter(func(k string) {
			if err == nil {
				err = tx.Remove(collection(), k)
			}
		})
		return err
	})
	if err != nil {
		log.Printf("(%s) - error deleting keys: %v\n", test, err)
	}
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.Config) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Engine", "Path", "ObjectCodec", "MetadataCodec", "Compression",
		"Extensions", "Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			string(config.Engine),
			config.Path,
			config.ObjectCodec,
			config.MetadataCodec,
			config.Compression,
			strconv.Itoa(perfExtensions),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
