// Package server wires the storage core together: it opens the relational
// store and runs migrations, connects to Redis and the blob backend, builds
// the services and runs the gRPC server until a termination signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/mycloud/internal/logging"
	"github.com/dmitrijs2005/mycloud/internal/server/auth"
	"github.com/dmitrijs2005/mycloud/internal/server/blobstore"
	"github.com/dmitrijs2005/mycloud/internal/server/config"
	"github.com/dmitrijs2005/mycloud/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mycloud/internal/server/services"
	"github.com/dmitrijs2005/mycloud/internal/server/sessions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/mycloud/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	rdb      *redis.Client
	accounts *services.AccountService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, slog.LevelInfo, os.Stdout)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	db.SetMaxOpenConns(c.DatabaseMaxConns)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn(ctx, "redis is not reachable yet", "address", c.RedisAddr, "error", err)
	}

	quota := services.NewQuotaEnforcer(db, rm, services.Limits{
		MaxUploadBytes:  c.MaxUploadBytes(),
		MaxStorageBytes: c.MaxStorageBytes(),
	})
	tree := services.NewTreeService(db, rm, blobs, quota, logger)
	accounts := services.NewAccountService(db, rm, tree, sessions.NewRedisStore(rdb, c.SessionTTL), auth.NewBcryptHasher(0), logger)

	return &App{config: c, logger: logger, db: db, rdb: rdb, accounts: accounts}, nil
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendLocal:
		return blobstore.NewLocalStore(c.BlobDir)
	case config.BlobBackendS3:
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives, then
// closes the Redis client and the database pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

func (app *App) Close() error {
	return errors.Join(app.rdb.Close(), app.db.Close())
}
