package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pulselabs/pulsevote/internal/redis"
	"github.com/pulselabs/pulsevote/internal/setup"
	"github.com/pulselabs/pulsevote/internal/trending"
	maintenanceWorker "github.com/pulselabs/pulsevote/internal/worker/maintenance"
	trendingWorker "github.com/pulselabs/pulsevote/internal/worker/trending"
	"go.uber.org/zap"
)

func main() {
	app, err := setup.InitializeApp(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trendingRedis, err := app.RedisManager.GetClient(redis.TrendingDBIndex)
	if err != nil {
		app.Logger.Fatal("Failed to create trending Redis client", zap.Error(err))
	}

	store := trending.NewStore(trendingRedis, app.Logger)
	ranker := trending.NewRanker(app.DB, store, &app.Config.Trending, app.Logger)

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		trendingWorker.New(ranker, &app.Config.Trending, app.Logger).Start(ctx)
	}()

	go func() {
		defer wg.Done()
		maintenanceWorker.New(app.DB, app.Logger).Start(ctx)
	}()

	app.Logger.Info("Workers started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down workers...")
	cancel()
	wg.Wait()

	app.Logger.Info("Workers gracefully stopped")
}
