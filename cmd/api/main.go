package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"task-manager/configs"
	v1 "task-manager/internal/api/v1"
	"task-manager/internal/config"
	"task-manager/internal/middleware"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
	"task-manager/pkg/database"
	"task-manager/pkg/logger"
)

func main() {
	cfg := configs.LoadConfig()

	if err := logger.InitLoggers(cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialise loggers: %v", err)
	}
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.ErrorLogger.Error("Application stopped with error", zap.Error(err))
		logger.SyncLoggers()
		os.Exit(1)
	}
	logger.SystemLogger.Info("Application stopped")
}

func run(ctx context.Context, cfg configs.Config) error {
	users, tasks, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.RedisHost != "" {
		client, err := database.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		users = repository.NewCachedUsers(users, client)
		logger.SystemLogger.Info("Redis user cache enabled")
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.SendGridAPIKey != "" {
		mailer = notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom)
	} else {
		logger.SystemLogger.Warn("SENDGRID_API_KEY not set, emails are only logged")
	}
	dispatcher := notify.NewDispatcher(mailer)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(dispatchCtx)
		close(dispatchDone)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
	}()

	deps := config.NewDependencies(cfg, users, tasks, dispatcher)

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.FiberErrorHandler,
		BodyLimit:    int(cfg.AvatarMaxBytes) + 1<<20,
	})
	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: 1 * time.Minute,
	}))
	v1.RegisterRoutes(app, deps)

	listenErr := make(chan error, 1)
	go func() {
		logger.SystemLogger.Info("Application ready", zap.Int("port", cfg.Port))
		listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.SystemLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// openStorage connects the backend selected by STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg configs.Config) (repository.UserRepository, repository.TaskRepository, func(), error) {
	switch cfg.StorageDriver {
	case configs.StorageMongo:
		client, db, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		logger.SystemLogger.Info("MongoDB connected", zap.String("database", cfg.MongoDatabase))
		return repository.NewMongoUserRepository(db), repository.NewMongoTaskRepository(db), closeFn, nil

	case configs.StoragePostgres:
		db, err := database.ConnectDB(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() { db.Close() }
		if err := repository.CreateTableIfNotExists(db); err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		logger.SystemLogger.Info("Database Connected")
		return repository.NewPostgresUserRepository(db), repository.NewPostgresTaskRepository(db), closeFn, nil

	case configs.StorageMemory:
		logger.SystemLogger.Warn("Using in-memory storage, data is lost on restart")
		store := repository.NewMemoryStore()
		return store.Users(), store.Tasks(), func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
