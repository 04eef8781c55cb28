package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pickforge/internal/cache"
	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/handler"
	"github.com/pickforge/internal/kafka"
	"github.com/pickforge/internal/metrics"
	"github.com/pickforge/internal/odds"
	"github.com/pickforge/internal/postgres"
	"github.com/pickforge/internal/redis"
	"github.com/pickforge/internal/schedule"
	"github.com/pickforge/internal/service"
	"github.com/pickforge/internal/websocket"
	"github.com/pickforge/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calendar, err := schedule.NewCalendar(cfg.Schedule)
	if err != nil {
		logger.Error("invalid schedule configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Optional PostgreSQL pick store
	var (
		repo        *postgres.Repository
		pickStore   service.PickStore
		resultStore worker.ResultStore
	)
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err = postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Warn("failed to connect to PostgreSQL, picks will not be stored", "error", err)
		} else if err := repo.RunMigrations(ctx); err != nil {
			logger.Warn("failed to run migrations, picks will not be stored", "error", err)
			repo.Close()
			repo = nil
		} else {
			defer repo.Close()
			pickStore = repo
			resultStore = repo
			logger.Info("connected to PostgreSQL")
		}
	}

	// Optional Redis standings
	var (
		standings       *redis.Standings
		standingsReader service.StandingsReader
		standingsStore  worker.StandingsStore
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		standings, err = redis.NewStandings(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, standings disabled", "error", err)
		} else {
			defer standings.Close()
			standingsReader = standings
			standingsStore = standings
			logger.Info("connected to Redis")
		}
	}

	wsHub := websocket.NewHub(m, logger)
	go wsHub.Run()

	oddsClient := odds.NewClient(&cfg.Odds, m, logger)

	syncer := worker.NewResultSyncer(
		resultStore,
		oddsClient,
		standingsStore,
		wsHub,
		&cfg.Sync,
		cfg.Odds.ScoresDaysFrom,
		m,
		logger,
	)
	// Postgres is the source of truth for settled picks; realign Redis on startup
	if resultStore != nil && standingsStore != nil {
		logger.Info("rebuilding standings from settled picks")
		if err := syncer.RebuildAllStandings(ctx); err != nil {
			logger.Warn("failed to rebuild standings on startup", "error", err)
		}
	}

	if err := syncer.Start(ctx); err != nil {
		logger.Error("failed to start result syncer", "error", err)
		os.Exit(1)
	}

	// Optional Kafka score feed
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(&cfg.Kafka, syncer, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without score feed", "error", err)
		} else if err := consumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without score feed", "error", err)
			consumer = nil
		}
	}

	linesService := service.NewLinesService(
		oddsClient,
		cache.NewOddsCache(time.Now),
		syncer,
		&cfg.Odds,
		m,
		logger,
	)
	pickService := service.NewPickService(
		service.NewIndexBuilder(oddsClient),
		pickStore,
		calendar.Week,
		m,
		logger,
	)
	standingsService := service.NewStandingsService(standingsReader)

	httpHandler := handler.NewHandler(
		linesService,
		pickService,
		standingsService,
		wsHub,
		m,
		cfg.Server.CORSOrigins,
		logger,
	)
	if repo != nil {
		httpHandler.AddReadinessCheck("postgres", repo)
	}
	if standings != nil {
		httpHandler.AddReadinessCheck("redis", standings)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"picks_stored", pickStore != nil,
			"standings", standingsReader != nil,
			"score_feed", consumer != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncer.Stop(); err != nil {
		logger.Error("failed to stop result syncer", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}
