package kv

import (
	"errors"

	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/store/cstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	database *cstore.Database
	conn     *cstore.Connection

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform store operations on a local database",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Add database flags to the KV command
	util.SetupDatabaseFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("collection", "", util.WrapString("Collection to operate on (empty is the default collection)"))

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(collectionsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openStore opens the configured database and a connection to it
func openStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf := util.GetConfig()
	opts, err := conf.ToOptions()
	if err != nil {
		return err
	}

	database, err = cstore.Open(conf.Path, opts)
	if err != nil {
		return err
	}
	conn = database.NewConnection()
	return nil
}

// closeStore closes the connection and the database (writing it back for maple)
func closeStore(_ *cobra.Command, _ []string) error {
	if database == nil {
		return nil
	}
	return errors.Join(conn.Close(), database.Close())
}

// collection returns the collection selected with --collection
func collection() string {
	return viper.GetString("collection")
}
