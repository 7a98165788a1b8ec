package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/eKV/cmd/kv"
	"github.com/ValentinKolb/eKV/cmd/stats"
	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ekv",
		Short: "extensible embedded key-value database",
		Long: fmt.Sprintf(`eKV (v%s)

An embedded, transactional key-value database library written in Go.
Extensions (indexes, views, search) registered on a database are kept
consistent with the primary data inside every write transaction.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of eKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eKV v%s\n", Version)
		},
	}
)

func init() {
	// run the root setup before the hooks of the subcommands
	cobra.EnableTraverseRunHooks = true
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(stats.StatsCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Log level (debug, info, warn, error)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Optional JSON config file (comments and trailing commas allowed) with flag names as keys"))
}

// setup binds the flags, reads the config file and initializes the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.LoadConfigFile(viper.GetString("config")); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
