package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/mycloud/internal/flagx"
	"github.com/dmitrijs2005/mycloud/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Durations use timex.Duration
// so files may say "30m" instead of nanoseconds. Pointer fields distinguish
// "absent" from zero so a partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddrGRPC *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string         `json:"database_dsn"`
	DatabaseMaxConns *int            `json:"database_max_conns"`
	RedisAddr        *string         `json:"redis_addr"`
	RedisPassword    *string         `json:"redis_password"`
	RedisDB          *int            `json:"redis_db"`
	SessionTTL       *timex.Duration `json:"session_ttl"`
	MaxUploadMB      *int64          `json:"max_upload_mb"`
	MaxStorageMB     *int64          `json:"max_storage_mb"`
	BlobBackend      *string         `json:"blob_backend"`
	BlobDir          *string         `json:"blob_dir"`
	S3RootUser       *string         `json:"s3_root_user"`
	S3RootPassword   *string         `json:"s3_root_password"`
	S3Bucket         *string         `json:"s3_bucket"`
	S3Region         *string         `json:"s3_region"`
	S3BaseEndpoint   *string         `json:"s3_base_endpoint"`
	LogFormat        *string         `json:"log_format"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Without the flag nothing is loaded. An unreadable file or invalid
// JSON panics: the process must not start half-configured.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	set(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.DatabaseMaxConns, c.DatabaseMaxConns)
	set(&config.RedisAddr, c.RedisAddr)
	set(&config.RedisPassword, c.RedisPassword)
	set(&config.RedisDB, c.RedisDB)
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	set(&config.MaxUploadMB, c.MaxUploadMB)
	set(&config.MaxStorageMB, c.MaxStorageMB)
	set(&config.BlobBackend, c.BlobBackend)
	set(&config.BlobDir, c.BlobDir)
	set(&config.S3RootUser, c.S3RootUser)
	set(&config.S3RootPassword, c.S3RootPassword)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	set(&config.LogFormat, c.LogFormat)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
