package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/mycloud/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-n int      max open PostgreSQL connections
//	-r string   Redis address
//	-t int      session TTL, minutes
//	-m int      max single upload, MB
//	-q int      max storage per user, MB
//	-k string   blob backend ("s3" or "local")
//	-f string   blob directory for the local backend
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log format ("json" or "text")
//
// Only the flags above are picked out of os.Args (see flagx.FilterArgs), so
// -c/-config handled by parseJson do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-n", "-r", "-t", "-m", "-q", "-k", "-f", "-u", "-p", "-b", "-g", "-e", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.IntVar(&config.DatabaseMaxConns, "n", config.DatabaseMaxConns, "max database connections")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session ttl (in minutes)")

	fs.Int64Var(&config.MaxUploadMB, "m", config.MaxUploadMB, "max upload size (MB)")
	fs.Int64Var(&config.MaxStorageMB, "q", config.MaxStorageMB, "max storage per user (MB)")
	fs.StringVar(&config.BlobBackend, "k", config.BlobBackend, "blob backend: s3 or local")
	fs.StringVar(&config.BlobDir, "f", config.BlobDir, "local blob directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format: json or text")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// -t only overrides when given, so sub-minute JSON values survive.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
		}
	})
}
