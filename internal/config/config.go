// Package config handles configuration for the admin server: defaults,
// an optional JSON overlay, then command-line flags.
package config

import "time"

// Drivers accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds runtime settings for the admin server.
//
// Fields:
//   - GRPCAddr: bind address for the admin gRPC endpoint.
//   - MetricsAddr: bind address for /metrics; empty disables it.
//   - Driver / DatabaseDSN: database/sql driver name and DSN.
//   - SecretKey: HMAC secret for operator tokens (HS256). Do not use the default in prod.
//   - TokenValidity: lifetime of tokens issued by the token command.
//   - LogLevel / LogFormat: slog level and handler ("json" or "text").
//   - S3*: erasure manifest archive. An empty bucket disables the archive.
type Config struct {
	GRPCAddr       string
	MetricsAddr    string
	Driver         string
	DatabaseDSN    string
	SecretKey      string
	TokenValidity  time.Duration
	LogLevel       string
	LogFormat      string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.GRPCAddr = ":50051"
	c.MetricsAddr = ":9090"
	c.Driver = DriverSQLite
	c.DatabaseDSN = "file:logicaldelete.db?_pragma=foreign_keys(1)"
	c.SecretKey = "secretKey"
	c.TokenValidity = 15 * time.Minute
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config from defaults, the JSON file named by -c or
// -config, and finally the flags in args (usually os.Args[1:]).
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
