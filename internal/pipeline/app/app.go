package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	grpcHandler "github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/inbound/grpc"
	httpHandler "github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/inbound/http"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/backend"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/dynamostore"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/locker"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/memblob"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/s3blob"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/adapter/outbound/sqlstore"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/service"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	cfg    *config.Config
	svc    *service.PipelineServiceImpl
	server *httpHandler.Server
	health *grpcHandler.HealthServer

	// closers run in reverse order on shutdown
	closers []func() error
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	a := &App{cfg: cfg}
	ctx := context.Background()
	var checks []grpcHandler.ReadinessCheck

	// 3. Blob storage
	var (
		blobs       port.BlobStore
		blobHandler http.Handler
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := memblob.New(
			memblob.WithSigningKey(cfg.Storage.SigningKey),
			memblob.WithBaseURL(cfg.Storage.PublicBaseURL),
		)
		blobs, blobHandler = store, store.Handler("/blobs")
	case "s3", "":
		store, err := s3blob.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		blobs = store
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	// 4. Session store
	var sessions port.SessionStore
	switch cfg.Sessions.Driver {
	case "dynamodb":
		store, err := dynamostore.NewFromConfig(ctx, cfg.Sessions, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to init dynamodb sessions: %w", err)
		}
		sessions = store
		checks = append(checks, grpcHandler.ReadinessCheck{Name: "sessions", Check: store.Ping})
	default:
		store, err := sqlstore.Open(cfg.Sessions)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		sessions = store
		a.closers = append(a.closers, store.Close)
		checks = append(checks, grpcHandler.ReadinessCheck{Name: "sessions", Check: store.Ping})
	}

	// 5. Build lock
	var lock port.Locker
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			a.close()
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		lock = locker.NewRedis(redisClient, cfg.Redis.Prefix)
		a.closers = append(a.closers, redisClient.Close)
		checks = append(checks, grpcHandler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	} else {
		lock = locker.NewLocal(time.Now)
	}

	// 6. Services
	a.svc = service.NewPipelineService(cfg, blobs, sessions, backend.NewClient(cfg), lock)

	// 7. Inbound servers
	var opts []httpHandler.Option
	if blobHandler != nil {
		opts = append(opts, httpHandler.WithBlobHandler(blobHandler))
	}
	a.server = httpHandler.NewServer(cfg, a.svc, opts...)
	if cfg.GRPC.Addr != "" {
		a.health = grpcHandler.NewHealthServer(cfg.GRPC.Addr, 5*time.Second, checks...)
	}

	return a, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 2)

	if a.health != nil {
		logger.Infow("Health service starting", "addr", a.cfg.GRPC.Addr)
		go func() {
			if err := a.health.Start(ctx); err != nil {
				serverErrCh <- fmt.Errorf("grpc health server failed: %w", err)
			}
		}()
	}

	logger.Infow("Pipeline service starting", "addr", a.cfg.Server.Addr)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	if interval := a.cfg.SweepInterval(); interval > 0 {
		go a.svc.StartSweepWorker(ctx, interval)
	}

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = err
		logger.Errorw("Pipeline server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down pipeline services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		logger.Errorw("HTTP shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	if a.health != nil {
		a.health.Stop()
	}
	if err := a.Close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}

// Sweep runs one expiration sweep with the configured staleness.
func (a *App) Sweep(ctx context.Context) (*domain.SweepReport, error) {
	return a.svc.Sweep(ctx, 0)
}

// Close waits for queued pipeline runs and releases store connections.
func (a *App) Close(ctx context.Context) error {
	err := a.svc.Close(ctx)
	if err != nil {
		logger.Errorw("Pipeline runs did not drain", "error", err.Error())
	}
	a.close()
	return err
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnw("Close failed", "error", err.Error())
		}
	}
	a.closers = nil
}
