package config

import (
	"flag"
	"fmt"
	"io"
	"time"
)

var knownFlags = []string{"-a", "-m", "-d", "-r", "-s", "-t", "-l", "-b", "-g", "-e", "-u", "-p"}

// parseFlags overlays Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-m string   metrics bind address, "" disables
//	-d string   database DSN
//	-r string   database driver: sqlite or pgx
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-l string   log level
//	-b string   S3 bucket for erasure manifests
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g. "http://127.0.0.1:9000/")
//	-u string   S3 access key
//	-p string   S3 secret key
//
// Unknown arguments are dropped by FilterArgs first, so subcommands can
// keep their own flags.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.GRPCAddr, "a", config.GRPCAddr, "address and port to run the admin server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port to serve metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Driver, "r", config.Driver, "database driver (sqlite, pgx)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "token validity (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")

	if err := fs.Parse(FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.TokenValidity = time.Duration(*tokenValidity) * time.Minute

	switch config.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", config.Driver)
	}
	return nil
}
