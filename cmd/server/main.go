package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulselabs/pulsevote/internal/api"
	"github.com/pulselabs/pulsevote/internal/realtime"
	"github.com/pulselabs/pulsevote/internal/redis"
	"github.com/pulselabs/pulsevote/internal/setup"
	"github.com/pulselabs/pulsevote/internal/trending"
	"github.com/pulselabs/pulsevote/internal/vote"
	"go.uber.org/zap"
)

// Server timeouts.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	ShutdownTimeout     = 30 * time.Second
)

func main() {
	app, err := setup.InitializeApp(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Registry and broadcaster carry the WebSocket fan-out
	registry := realtime.NewRegistry(&app.Config.Realtime, app.Logger)
	broadcaster := realtime.NewBroadcaster(registry, app.Logger)

	realtimeRedis, err := app.RedisManager.GetClient(redis.RealtimeDBIndex)
	if err != nil {
		app.Logger.Fatal("Failed to create realtime Redis client", zap.Error(err))
	}

	go registry.Run(ctx, realtime.NewGauge(realtimeRedis))

	trendingRedis, err := app.RedisManager.GetClient(redis.TrendingDBIndex)
	if err != nil {
		app.Logger.Fatal("Failed to create trending Redis client", zap.Error(err))
	}

	trendingStore := trending.NewStore(trendingRedis, app.Logger)

	voteService := vote.NewService(
		app.DB.Model().Poll(), app.DB.Model().Vote(), broadcaster, app.Logger)

	handler := api.NewServer(
		app.DB, voteService, registry, trendingStore, app.Config, app.Logger)

	addr := fmt.Sprintf("%s:%d", app.Config.Server.Host, app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout(app),
		WriteTimeout: writeTimeout(app),
	}

	go func() {
		app.Logger.Info("Server started", zap.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	app.Logger.Info("Server gracefully stopped")
}

func readTimeout(app *setup.App) time.Duration {
	if app.Config.Server.ReadTimeout > 0 {
		return time.Duration(app.Config.Server.ReadTimeout) * time.Second
	}

	return DefaultReadTimeout
}

func writeTimeout(app *setup.App) time.Duration {
	if app.Config.Server.WriteTimeout > 0 {
		return time.Duration(app.Config.Server.WriteTimeout) * time.Second
	}

	return DefaultWriteTimeout
}
