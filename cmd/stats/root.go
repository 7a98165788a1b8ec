package stats

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/store/kvstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("cli")

// StatsCmd runs a short workload and prints database statistics and Prometheus metrics
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Runs a short workload and prints the database statistics and metrics",
	Long: util.WrapString(`Opens the configured database, registers a key counting extension, ` +
		`runs a short write and read workload and prints the statistics of the database ` +
		`followed by the process metrics in the Prometheus text format.`),
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	util.SetupDatabaseFlags(StatsCmd)
	StatsCmd.Flags().Int("ops", 1000, util.WrapString("Number of write transactions of the workload"))
	StatsCmd.Flags().Bool("process-metrics", false, util.WrapString("Also print the Go runtime and process metrics"))
}

func runStats(cmd *cobra.Command, _ []string) (err error) {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf := util.GetConfig()
	opts, err := conf.ToOptions()
	if err != nil {
		return err
	}
	d, err := kvstore.Open(conf.Path, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()

	if err := d.TryRegisterExtension(&counter{}, "counter"); err != nil {
		return err
	}
	defer d.UnregisterExtension("counter")

	c := d.NewConnection()
	defer c.Close()

	ops := viper.GetInt("ops")
	log.Infof("running workload with %d write transactions", ops)
	for i := 0; i < ops; i++ {
		key := fmt.Sprintf("__stats-%d", i%100)
		err := c.ReadWrite(func(tx *kvstore.ReadWriteTxn) error {
			if i%10 == 9 {
				return tx.Remove(key)
			}
			return tx.SetWithMetadata(key, i, "stats")
		})
		if err != nil {
			return err
		}
		if err := c.Read(func(tx *kvstore.ReadTxn) error {
			_, _, err := tx.Object(key)
			return err
		}); err != nil {
			return err
		}
	}

	var keys int64
	if err := c.Read(func(tx *kvstore.ReadTxn) error {
		n, err := counted(tx)
		keys = n
		return err
	}); err != nil {
		return err
	}

	fmt.Println(d.Stats().String())
	fmt.Printf("Keys counted by extension: %d\n\n", keys)
	metrics.WritePrometheus(os.Stdout, viper.GetBool("process-metrics"))

	// remove the workload keys again
	return c.ReadWrite(func(tx *kvstore.ReadWriteTxn) error {
		var workload []string
		if err := tx.EnumerateKeys(func(key string) bool {
			if strings.HasPrefix(key, "__stats-") {
				workload = append(workload, key)
			}
			return true
		}); err != nil {
			return err
		}
		return tx.RemoveKeys(workload)
	})
}
