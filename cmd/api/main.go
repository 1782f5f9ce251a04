package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"storyboard/internal/app"
	"storyboard/internal/config"
	"storyboard/internal/ratelimit"
	"storyboard/internal/server"
	"storyboard/internal/servicetoken"
	"storyboard/internal/util"
	"storyboard/pkg/dispatch"
	"storyboard/pkg/storage"
	"storyboard/pkg/store"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	refreshTTL, err := config.ParseRefreshTTL(cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("failed to parse refresh TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
	}

	dataStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	sessions, refreshTokens := buildSessionStores(redisClient)
	objects, err := buildObjectStore(cfg)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}
	dispatcher, err := buildDispatcher(cfg, redisClient)
	if err != nil {
		log.Fatalf("failed to init dispatcher: %v", err)
	}
	defer dispatcher.Close()

	appCore := app.New(app.Config{
		Store:         dataStore,
		Sessions:      sessions,
		RefreshTokens: refreshTokens,
		Objects:       objects,
		Dispatcher:    dispatcher,
		SessionTTL:    sessionTTL,
		RefreshTTL:    refreshTTL,
	})

	var workerTokens *servicetoken.Verifier
	if cfg.WorkerTokenSecret != "" {
		workerTokens, err = servicetoken.NewVerifier(cfg.WorkerTokenAudience, cfg.WorkerTokenSecret, cfg.WorkerTokenIssuers, 0)
		if err != nil {
			log.Fatalf("failed to init worker token verifier: %v", err)
		}
	} else {
		slog.Warn("worker callbacks disabled, no worker token secret configured")
	}

	proxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	signupLimiter, loginLimiter := buildLimiters(cfg, redisClient)

	httpServer, err := server.New(server.Config{
		App:            appCore,
		WorkerTokens:   workerTokens,
		SignupLimiter:  signupLimiter,
		LoginLimiter:   loginLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Env:            cfg.Env,
		TrustedProxies: proxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	handler := util.WithRequestID(util.WithRequestLog("api", httpServer.Router()))
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewGormStore(cfg.PostgresDSN)
	default:
		return store.NewMemoryStore(), nil
	}
}

// buildSessionStores keeps sessions in Redis when it is configured so every
// replica sees the same tokens, and falls back to process memory for dev.
func buildSessionStores(client *redis.Client) (store.SessionStore, store.RefreshTokenStore) {
	if client != nil {
		return store.NewRedisSessionStore(client), store.NewRedisRefreshTokenStore(client)
	}
	return store.NewMemorySessionStore(), store.NewMemoryRefreshTokenStore()
}

func buildObjectStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return storage.NewMemoryStore(), nil
	}
}

func buildDispatcher(cfg config.FileConfig, client *redis.Client) (dispatch.Dispatcher, error) {
	switch cfg.DispatchDriver {
	case "redis":
		return dispatch.NewRedisDispatcher(client, cfg.DispatchStream, 0)
	case "amqp":
		return dispatch.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPQueue)
	default:
		return dispatch.NoopDispatcher{}, nil
	}
}

func buildLimiters(cfg config.FileConfig, client *redis.Client) (signup, login *ratelimit.FixedWindowLimiter) {
	if client == nil {
		return nil, nil
	}
	if cfg.SignupRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "storyboard:ratelimit:signup", cfg.SignupRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init signup limiter: %v", err)
		}
		signup = limiter
	}
	if cfg.LoginRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "storyboard:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init login limiter: %v", err)
		}
		login = limiter
	}
	return signup, login
}
