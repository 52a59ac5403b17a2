package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"polegrid/docs"
	"polegrid/internal/config"
	"polegrid/internal/database"
	handlers "polegrid/internal/http/handler"
	"polegrid/internal/http/middleware"
	"polegrid/internal/logging"
	"polegrid/internal/otel"
	"polegrid/internal/repository"
	"polegrid/internal/repository/jsonfile"
	"polegrid/internal/repository/postgres"
	"polegrid/internal/service"
	"polegrid/internal/storage"
)

// @title PoleGrid Services API
// @version 1.0
// @description Registration intake for landlords, organizations and contact messages.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	files, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}

	records, closeRecords, err := openRecordStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer closeRecords()

	svc := service.NewRegistrationService(files, records, service.DefaultSchemas(cfg.Required), log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler(log),
	})

	// Register global middleware
	app.Use(fiberrecover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSAllowOrigins}))
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(metrics.Handler())

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	// Register HTTP routes with injected service; the catch-all 404 goes last
	handlers.RegisterRoutes(app, svc, files, reg)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_listening",
			zap.String("addr", addr),
			zap.String("record_store", cfg.RecordStore),
			zap.String("storage_driver", cfg.StorageDriver),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageLocal:
		return storage.NewLocal(cfg.UploadDir)
	case config.StorageMinIO:
		return storage.NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func openRecordStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (repository.RecordStore, func(), error) {
	switch cfg.RecordStore {
	case config.RecordStoreFile:
		store, err := jsonfile.New(cfg.DBFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.RecordStorePostgres:
		db, err := database.OpenRecords(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				log.Warn("database_close_failed", zap.Error(err))
			}
		}
		return postgres.NewRecordPostgres(db), closeDB, nil

	default:
		return nil, nil, fmt.Errorf("unknown RECORD_STORE %q", cfg.RecordStore)
	}
}
