// Package common contains the glue shared by the ekv command line tool and the stores:
// the custom logger factory for dragonboat's logger package and the Config struct that
// turns flags, environment variables and config files into core.Options.
package common
