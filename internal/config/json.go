package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration unmarshals from either a string such as "1m30s" or an integer
// number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// JsonConfig is the file form of Config. Absent fields keep the values
// already loaded.
type JsonConfig struct {
	GRPCAddr       *string   `json:"grpc_addr"`
	MetricsAddr    *string   `json:"metrics_addr"`
	Driver         *string   `json:"driver"`
	DatabaseDSN    *string   `json:"database_dsn"`
	SecretKey      *string   `json:"secret_key"`
	TokenValidity  *Duration `json:"token_validity"`
	LogLevel       *string   `json:"log_level"`
	LogFormat      *string   `json:"log_format"`
	S3Bucket       *string   `json:"s3_bucket"`
	S3Region       *string   `json:"s3_region"`
	S3BaseEndpoint *string   `json:"s3_base_endpoint"`
	S3AccessKey    *string   `json:"s3_access_key"`
	S3SecretKey    *string   `json:"s3_secret_key"`
}

// parseJson overlays config with the file named by -c or -config in args.
// Without either flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := configPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&config.GRPCAddr, c.GRPCAddr)
	set(&config.MetricsAddr, c.MetricsAddr)
	set(&config.Driver, c.Driver)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SecretKey, c.SecretKey)
	set(&config.LogLevel, c.LogLevel)
	set(&config.LogFormat, c.LogFormat)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	set(&config.S3AccessKey, c.S3AccessKey)
	set(&config.S3SecretKey, c.S3SecretKey)
	if c.TokenValidity != nil {
		config.TokenValidity = c.TokenValidity.Duration
	}
	return nil
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
