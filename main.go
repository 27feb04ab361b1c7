package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/phillip/volunteer-events-go/config"
	"github.com/phillip/volunteer-events-go/controllers"
	"github.com/phillip/volunteer-events-go/dispatcher"
	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/metrics"
	"github.com/phillip/volunteer-events-go/middleware"
	"github.com/phillip/volunteer-events-go/realtime"
	"github.com/phillip/volunteer-events-go/repository"
	"github.com/phillip/volunteer-events-go/repository/memory"
	"github.com/phillip/volunteer-events-go/repository/mongorepo"
	"github.com/phillip/volunteer-events-go/routes"
	"github.com/phillip/volunteer-events-go/services"
	"github.com/phillip/volunteer-events-go/utils"
)

const serviceName = "volunteer-events"

func main() {
	if err := run(); err != nil {
		logger.LogE(err.Error())
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	logger.InitZap()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.InitZap(logger.OptionSetLevel(cfg.LogLevel), logger.OptionSetService(serviceName))
	defer logger.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.MongoClient != nil {
		defer cfg.MongoClient.Disconnect(context.Background())
	}

	// --- real-time fan-out ---
	var (
		publisher realtime.Publisher
		stream    realtime.Subscriber
		broker    *realtime.RedisBroker
	)
	if pool := cfg.NewRedisPool(); pool != nil {
		defer pool.Close()
		broker = realtime.NewRedisBroker(pool)
		if err := broker.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		publisher, stream = broker, broker
		logger.LogI("real-time notifications over redis")
	} else {
		hub := realtime.NewHub()
		publisher, stream = hub, hub
		logger.LogI("REDIS_ADDR not set, real-time notifications stay in process")
	}

	// --- optional integrations ---
	var mailer dispatcher.Mailer
	if cfg.EmailEnabled() {
		zm, err := utils.NewZeptoMailer(cfg)
		if err != nil {
			return err
		}
		mailer = zm
	}
	var images controllers.ImageStore
	if cfg.CloudinaryCloudName != "" {
		cld, err := utils.NewCloudinary(cfg)
		if err != nil {
			return err
		}
		images = cld
	}

	notifier := services.NewOutboxNotifier(store.Outbox, time.Now)
	opts := []services.Option{services.WithAutoConfirm(cfg.AutoConfirm())}

	worker := dispatcher.NewWorker(store, publisher, mailer, dispatcher.Config{
		Interval:    cfg.DispatchInterval,
		BatchSize:   cfg.DispatchBatchSize,
		MaxAttempts: cfg.DispatchMaxAttempts,
	})
	go worker.Run(ctx)

	// --- http ---
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders:    []string{"ETag", "Last-Modified", middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(cfg.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(r, cfg, routes.Deps{
		Events:        services.NewEventService(store, notifier, opts...),
		Registrations: services.NewRegistrationService(store, notifier, opts...),
		Notifications: services.NewNotificationService(store.Notifications, opts...),
		Stream:        stream,
		Images:        images,
		Health: func(c *gin.Context) error {
			if cfg.MongoClient != nil {
				if err := cfg.MongoClient.Ping(c.Request.Context(), readpref.Primary()); err != nil {
					return fmt.Errorf("mongodb: %w", err)
				}
			}
			if broker != nil {
				if err := broker.Health(c.Request.Context()); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.LogIf("server listening on :%s (store=%s, registration=%s)", cfg.Port, cfg.StoreDriver, cfg.RegistrationMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.LogI("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.LogW("STORE_DRIVER=memory, data is lost on restart")
		return memory.New().Store(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := cfg.ConnectMongo(connectCtx); err != nil {
		return repository.Store{}, err
	}
	if err := mongorepo.EnsureIndexes(connectCtx, cfg.Database()); err != nil {
		return repository.Store{}, fmt.Errorf("ensure indexes: %w", err)
	}
	return mongorepo.NewStore(cfg.Database()), nil
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
