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

	"github.com/cs2platform/backend/brackets"
	"github.com/cs2platform/backend/config"
	"github.com/cs2platform/backend/db"
	"github.com/cs2platform/backend/handlers"
	"github.com/cs2platform/backend/middleware"
	"github.com/cs2platform/backend/repositories"
	api "github.com/cs2platform/backend/routes"
	"github.com/cs2platform/backend/services"
	"github.com/cs2platform/backend/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const vetoSweepInterval = 10 * time.Second // How often expired veto turns are resolved

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

	// Инициализация загрузчика файлов (Cloudflare R2), опционально
	var uploader storage.FileUploader
	if cfg.HasR2() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage is not configured, logo uploads are disabled")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	txManager := repositories.NewSQLTxManager(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresTournamentTeamRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	mapBanRepo := repositories.NewPostgresMapBanRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo)
	teamService := services.NewTeamService(teamRepo, userRepo, uploader, logger)
	broadcaster := services.NewBroadcastService(wsHub, matchRepo, mapBanRepo, logger)
	vetoService := services.NewVetoService(txManager, matchRepo, mapBanRepo, teamRepo, cfg.GameServerAddr, nil, nil)
	bracketService := services.NewBracketService(txManager, tournamentRepo, participantRepo, matchRepo, cfg.VetoTurnTimeout, nil)
	matchService := services.NewMatchService(txManager, matchRepo)
	tournamentService := services.NewTournamentService(
		txManager,
		tournamentRepo,
		participantRepo,
		teamRepo,
		matchRepo,
		bracketService,
		broadcaster,
		uploader,
		cfg.MinTeamsToStart,
		logger,
	)
	logger.Info("Services initialized")

	// Планировщик: добивает просроченные ходы вето, даже если никто не
	// держит открытой страницу матча.
	go func() {
		ticker := time.NewTicker(vetoSweepInterval)
		defer ticker.Stop()
		logger.Info("veto sweep scheduler started", slog.Duration("interval", vetoSweepInterval))

		for range ticker.C {
			resolved, err := vetoService.SweepExpired(context.Background())
			if err != nil {
				logger.Error("veto sweep failed", slog.Any("error", err))
				continue
			}
			for _, matchID := range resolved {
				broadcaster.BroadcastMatchUpdate(context.Background(), matchID)
			}
		}
	}()

	// Инициализация обработчиков HTTP
	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	teamHandler := handlers.NewTeamHandler(teamService, userRepo)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, userRepo)
	matchHandler := handlers.NewMatchHandler(matchService, vetoService, bracketService, broadcaster, userRepo)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, vetoService, broadcaster, userRepo, logger)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		authHandler,
		teamHandler,
		tournamentHandler,
		matchHandler,
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
