package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "dormlink/cmd/api/router/v1"
	cacheAdapter "dormlink/internal/infrastructure/cache/adapter"
	cacheport "dormlink/internal/infrastructure/cache/port"
	"dormlink/internal/infrastructure/database"
	"dormlink/internal/infrastructure/identity"
	queueAdapter "dormlink/internal/infrastructure/queue/adapter"
	qport "dormlink/internal/infrastructure/queue/port"
	"dormlink/internal/infrastructure/realtime"
	relayAdapter "dormlink/internal/infrastructure/relay/adapter"
	relayport "dormlink/internal/infrastructure/relay/port"
	"dormlink/internal/pkg/chat/application/notify"
	"dormlink/internal/pkg/chat/application/task"
	repoAdapter "dormlink/internal/pkg/chat/persistence/repository/adapter"
	chatHTTP "dormlink/internal/pkg/chat/presentation/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found or could not be loaded", "err", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := database.NewPoolFromEnv(connectCtx)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	resolver, err := identity.NewResolverFromEnv()
	if err != nil {
		logger.Error("failed to configure token resolver", "err", err)
		os.Exit(1)
	}

	// Redis backs both the chat-list cache and the task queue. Without it the
	// API still serves: lists skip the cache and the REST send path is off.
	var cache cacheport.Cache
	if redisCache, err := cacheAdapter.NewRedisAdapter(); err != nil {
		logger.Warn("redis unavailable, chat lists served uncached", "err", err)
	} else {
		cache = redisCache
		defer redisCache.Close()
	}

	var queueClient qport.Client
	var queueServer qport.Server
	if cache != nil {
		client, err := queueAdapter.NewAsynqClientFromEnv()
		if err != nil {
			logger.Warn("queue client unavailable, REST send path disabled", "err", err)
		} else {
			queueClient = client
			defer client.Close()
		}
		srv, err := queueAdapter.NewAsynqServer()
		if err != nil {
			logger.Warn("queue server unavailable, queued appends will not run here", "err", err)
		} else {
			queueServer = srv
		}
	}

	registry := realtime.NewRegistry(logger)
	defer registry.Close()

	var relay relayport.Relay
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsRelay, err := relayAdapter.NewNATSRelay(natsURL, registry, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "err", err)
			os.Exit(1)
		}
		relay = natsRelay
		defer natsRelay.Close()
	}

	notifier := notify.NewNotifier(registry, cache, relay, logger)
	repo := repoAdapter.NewPgChatRepository(pool)

	if queueServer != nil {
		task.RegisterAppendMessageTask(queueServer, repo, notifier, logger)
		go func() {
			if err := queueServer.Run(ctx); err != nil {
				logger.Error("queue server stopped", "err", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = queueServer.Stop(stopCtx)
		}()
	}

	r := gin.Default()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	v1.RegisterRoutes(r, chatHTTP.Deps{
		Pool:     pool,
		Cache:    cache,
		Queue:    queueClient,
		Resolver: resolver,
		Registry: registry,
		Notifier: notifier,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		logger.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
}
