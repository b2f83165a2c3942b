// Package app composes the chat server from its parts with fx.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go-gemini-chat/internal/chat"
	"go-gemini-chat/internal/config"
	"go-gemini-chat/internal/db"
	"go-gemini-chat/internal/llm"
	"go-gemini-chat/internal/logging"
	myMiddleware "go-gemini-chat/internal/middleware"
	"go-gemini-chat/internal/user"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "chat-server"

// Module returns the fx module for the server, composing all providers and lifecycle hooks.
func Module(cfg *config.Server) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Module("server",
			fx.Supply(cfg),
			fx.Provide(
				provideLogger,
				provideDatabase,
				provideGorm,
				provideRedis,
				provideHealth,
				user.NewRepository,
				provideUserService,
				provideUserHandler,
				provideAuth,
				provideLLM,
				chat.NewRepository,
				provideHub,
				provideChatService,
				provideChatHandler,
				provideReconciler,
				NewRouter,
				provideHTTPServer,
			),
			fx.Invoke(registerLifecycle),
		),
	)
}

func provideLogger(cfg *config.Server) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, serviceName)
}

func provideDatabase(cfg *config.Server, logger *zap.Logger) (*db.Database, error) {
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")

	result, err := database.Migrate()
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	return database, nil
}

func provideGorm(database *db.Database) *gorm.DB {
	return database.Gorm
}

func provideRedis(cfg *config.Server, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return client, nil
}

func provideHealth(database *db.Database, rdb *redis.Client) HealthFunc {
	return func(ctx context.Context) error {
		if err := database.Conn.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}
}

func provideUserService(cfg *config.Server, repo *user.Repository, rdb *redis.Client) *user.Service {
	return user.NewService(repo, user.NewRedisRevocations(rdb), cfg.JWTSecret, cfg.SessionTTL)
}

func provideUserHandler(cfg *config.Server, s *user.Service, logger *zap.Logger) *user.Handler {
	return user.NewHandler(s, logger.Named("user"), cfg.CookieSecure)
}

func provideAuth(s *user.Service, logger *zap.Logger) *myMiddleware.AuthMiddleware {
	return myMiddleware.NewAuthMiddleware(s, logger.Named("auth"))
}

func provideLLM(cfg *config.Server, logger *zap.Logger) *llm.Client {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, every reply will fail")
	}
	return llm.NewClient(llm.Config{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
		RetryDelay: cfg.LLMRetryDelay,
	}, logger)
}

func provideHub(rdb *redis.Client, logger *zap.Logger) *chat.Hub {
	return chat.NewHub(rdb, logger)
}

func provideChatService(repo *chat.Repository, responder *llm.Client, hub *chat.Hub, logger *zap.Logger) *chat.Service {
	return chat.NewService(repo, responder, hub, logger)
}

func provideChatHandler(s *chat.Service, hub *chat.Hub, logger *zap.Logger) *chat.Handler {
	return chat.NewHandler(s, hub, logger.Named("chat"))
}

func provideReconciler(cfg *config.Server, repo *chat.Repository, hub *chat.Hub, logger *zap.Logger) *chat.Reconciler {
	return chat.NewReconciler(repo, hub, logger, cfg.ReconcileInterval, cfg.TurnStallAfter)
}

func provideHTTPServer(cfg *config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *http.Server, hub *chat.Hub, reconciler *chat.Reconciler, database *db.Database, rdb *redis.Client, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}

			go hub.Run(ctx)
			go hub.SubscribeToRedis(ctx)
			reconciler.Start(ctx)

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			logger.Info("server started", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			err := srv.Shutdown(stopCtx)
			reconciler.Stop()
			cancel()
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Warn("error closing redis", zap.Error(closeErr))
			}
			if closeErr := database.Close(); closeErr != nil {
				logger.Warn("error closing database", zap.Error(closeErr))
			}
			logger.Info("server stopped")
			_ = logger.Sync()
			return err
		},
	})
}
