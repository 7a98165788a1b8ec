package util

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/eKV/lib/common"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupDatabaseFlags adds the flags describing the local database to a command
func SetupDatabaseFlags(cmd *cobra.Command) {
	defaults := common.DefaultConfig()

	key := "path"
	cmd.PersistentFlags().String(key, "", WrapString("Path of the database (file for maple, directory for pebble). Empty keeps the database in memory"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(defaults.Engine), WrapString("Storage engine to use (maple, pebble)"))

	key = "sync"
	cmd.PersistentFlags().Bool(key, defaults.Sync, WrapString("Whether to fsync every commit (pebble only)"))

	key = "object-codec"
	cmd.PersistentFlags().String(key, defaults.ObjectCodec, WrapString("Codec for objects (full, restricted, timestamp)"))

	key = "metadata-codec"
	cmd.PersistentFlags().String(key, defaults.MetadataCodec, WrapString("Codec for metadata (full, restricted, timestamp)"))

	key = "compression"
	cmd.PersistentFlags().String(key, defaults.Compression, WrapString("Compression applied to serialized objects (none, snappy, lz4)"))

	key = "slow-commit"
	cmd.PersistentFlags().Duration(key, defaults.SlowCommitThreshold, WrapString("Commits taking longer are logged (0 disables the log)"))
}

// InitConfig loads .env files and configures viper to read EKV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ekv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// LoadConfigFile reads a JSON config file that may contain comments and trailing
// commas (JWCC). Keys are the flag names, e.g. {"engine": "pebble", // comment
// "object-codec": "restricted",}. Flags and environment variables take precedence.
func LoadConfigFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	viper.SetConfigType("json")
	if err := viper.ReadConfig(bytes.NewReader(standardized)); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

// GetConfig reads the database configuration from viper
func GetConfig() *common.Config {
	return &common.Config{
		Path:                viper.GetString("path"),
		Engine:              db.Implementation(viper.GetString("engine")),
		Sync:                viper.GetBool("sync"),
		ObjectCodec:         viper.GetString("object-codec"),
		MetadataCodec:       viper.GetString("metadata-codec"),
		Compression:         viper.GetString("compression"),
		SlowCommitThreshold: viper.GetDuration("slow-commit"),
		LogLevel:            viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags (including inherited ones) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}
