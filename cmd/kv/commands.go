package kv

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/eKV/cmd/util"
	"github.com/ValentinKolb/eKV/lib/store/cstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the object (and optional metadata) for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			object, err := parseValue(args[1])
			if err != nil {
				return err
			}

			var metadata any
			if cmd.Flags().Changed("metadata") {
				if metadata, err = parseValue(viper.GetString("metadata")); err != nil {
					return err
				}
			}

			err = conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
				return tx.SetWithMetadata(collection(), key, object, metadata)
			})
			if err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the object and metadata of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return conn.Read(func(tx *cstore.ReadTxn) error {
				object, metadata, found, err := tx.ObjectAndMetadata(collection(), key)
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, found=%t, object=%v, metadata=%v\n", key, found, object, metadata)
				return nil
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			err := conn.ReadWrite(func(tx *cstore.ReadWriteTxn) error {
				return tx.Remove(collection(), key)
			})
			if err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the keys and objects of the collection in ascending key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := viper.GetInt("limit")
			return conn.Read(func(tx *cstore.ReadTxn) error {
				n := 0
				return tx.EnumerateKeysAndObjectsInCollection(collection(), func(key string, object any) bool {
					fmt.Printf("%s\t%v\n", key, object)
					n++
					return limit <= 0 || n < limit
				})
			})
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Counts the keys of the collection (or of all collections with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return conn.Read(func(tx *cstore.ReadTxn) error {
				var n int
				var err error
				if viper.GetBool("all") {
					n, err = tx.Count()
				} else {
					n, err = tx.CountInCollection(collection())
				}
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	}
	collectionsCmd = &cobra.Command{
		Use:   "collections",
		Short: "Lists all non-empty collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return conn.Read(func(tx *cstore.ReadTxn) error {
				collections, err := tx.Collections()
				if err != nil {
					return err
				}
				for _, c := range collections {
					if c == "" {
						c = `""`
					}
					fmt.Println(c)
				}
				return nil
			})
		},
	}
)

func init() {
	setCmd.Flags().String("metadata", "", util.WrapString("Metadata stored with the object"))
	setCmd.Flags().Bool("json", false, util.WrapString("Parse value and metadata as JSON instead of storing them as strings"))
	listCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of entries to print (0 prints all)"))
	countCmd.Flags().Bool("all", false, util.WrapString("Count the keys of all collections"))
}

// parseValue returns s as string, or the decoded JSON value if --json is set
func parseValue(s string) (any, error) {
	if !viper.GetBool("json") {
		return s, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON value %q: %w", s, err)
	}
	return v, nil
}
