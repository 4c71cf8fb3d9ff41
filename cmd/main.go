package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/oarlock/gauntlet-system/config"
	"github.com/oarlock/gauntlet-system/db"
	"github.com/oarlock/gauntlet-system/handlers"
	"github.com/oarlock/gauntlet-system/live"
	"github.com/oarlock/gauntlet-system/models"
	"github.com/oarlock/gauntlet-system/repositories"
	api "github.com/oarlock/gauntlet-system/routes"
	"github.com/oarlock/gauntlet-system/services"
)

const sweepInterval = 5 * time.Minute // How often the invariant sweep runs

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация WebSocket Hub
	wsHub := live.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	gauntletRepo := repositories.NewPostgresGauntletRepository(dbConn)
	lineupRepo := repositories.NewPostgresLineupRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	positionRepo := repositories.NewPostgresPositionRepository(dbConn)
	progressionRepo := repositories.NewPostgresProgressionRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	locker := services.NewGauntletLocker()
	rankingService := services.NewRankingService(
		dbConn,
		gauntletRepo,
		positionRepo,
		progressionRepo,
		locker,
		wsHub,
		logger,
	)
	matchService := services.NewMatchService(
		dbConn,
		gauntletRepo,
		lineupRepo,
		matchRepo,
		positionRepo,
		rankingService,
		locker,
		wsHub,
		logger,
	)
	gauntletService := services.NewGauntletService(
		dbConn,
		gauntletRepo,
		lineupRepo,
		positionRepo,
		rankingService,
		locker,
		wsHub,
		logger,
	)
	lifecycleService := services.NewLifecycleService(
		dbConn,
		gauntletRepo,
		lineupRepo,
		matchRepo,
		positionRepo,
		progressionRepo,
		rankingService,
		locker,
		wsHub,
		logger,
	)
	logger.Info("Services initialized")

	// Запуск периодической сверки инвариантов лестницы
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		logger.Info("Ladder invariant sweep started", slog.Duration("interval", sweepInterval))

		sweep := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			gauntlets, err := gauntletRepo.ListByStatus(ctx, nil, models.GauntletStatusActive)
			if err != nil {
				logger.Error("Sweep: failed to list active gauntlets", slog.Any("error", err))
				return
			}
			for _, g := range gauntlets {
				if err := rankingService.VerifyInvariants(ctx, nil, g.ID); err != nil {
					logger.Error("Sweep: ladder invariants violated",
						slog.Int("gauntlet_id", g.ID), slog.Any("error", err))
				}
			}
		}

		// Run once immediately at startup, then on ticker
		sweep()
		for range ticker.C {
			sweep()
		}
	}()

	// Инициализация обработчиков HTTP
	gauntletHandler := handlers.NewGauntletHandler(gauntletService, lifecycleService)
	matchHandler := handlers.NewMatchHandler(matchService, lifecycleService)
	ladderHandler := handlers.NewLadderHandler(rankingService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.CORSAllowedOrigins,
		gauntletHandler,
		matchHandler,
		ladderHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
