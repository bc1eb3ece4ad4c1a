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

	"github.com/koc-community/tournament-system/brackets"
	"github.com/koc-community/tournament-system/collectors"
	"github.com/koc-community/tournament-system/config"
	"github.com/koc-community/tournament-system/db"
	"github.com/koc-community/tournament-system/handlers"
	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/repositories"
	api "github.com/koc-community/tournament-system/routes"
	"github.com/koc-community/tournament-system/services"
	"github.com/koc-community/tournament-system/statusboard"
	"github.com/koc-community/tournament-system/storage"
	_ "github.com/lib/pq"
)

const migrationsPath = "migrations"

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

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
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn, migrationsPath); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Загрузчик логотипов (Cloudflare R2), опциональный
	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(context.Background(), storage.CloudflareR2UploaderConfig{
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
		logger.Warn("R2 credentials missing, logo uploads disabled")
	}

	// WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run()

	// Клиент сервиса сообщества
	identityClient := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityAPIToken)

	// Репозитории
	brawlerRepo := repositories.NewPostgresBrawlerRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	inviteRepo := repositories.NewPostgresInviteRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	stageRepo := repositories.NewPostgresStageRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)

	// Сервисы
	brawlerService := services.NewBrawlerService(brawlerRepo, identityClient, logger)
	teamService := services.NewTeamService(dbConn, teamRepo, brawlerRepo, inviteRepo, participantRepo, brawlerService, uploader, logger)
	generator := brackets.NewSingleEliminationGenerator()
	tournamentService := services.NewTournamentService(
		dbConn, tournamentRepo, participantRepo, brawlerRepo, teamRepo, stageRepo,
		brawlerService, generator, wsHub, logger,
	)
	matchService := services.NewMatchService(
		dbConn, tournamentRepo, participantRepo, stageRepo, matchRepo,
		teamService, wsHub, logger,
	)
	logger.Info("services initialized")

	// Реестр интерактивных сессий
	registry := collectors.NewRegistry(collectors.DefaultTTL, logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Опрос игровых серверов
	serverPoller := statusboard.NewServerStatusPoller(identityClient, wsHub, cfg.ServerPollInterval, logger)
	go serverPoller.Run(rootCtx)

	// Трекер стримов, опциональный
	if cfg.StreamTrackingEnabled() {
		streamTracker := statusboard.NewStreamTracker(rootCtx, statusboard.StreamTrackerConfig{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			Logins:       cfg.TwitchChannels,
			Interval:     cfg.StreamPollInterval,
		}, wsHub, logger)
		go streamTracker.Run(rootCtx)
		logger.Info("stream tracker started", slog.Int("channels", len(cfg.TwitchChannels)))
	} else {
		logger.Warn("twitch credentials missing, stream tracking disabled")
	}

	// Планировщик уборки: просроченные приглашения и сессии
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				teamService.SweepExpiredInvites(rootCtx)
				registry.Sweep()
			}
		}
	}()

	// HTTP-обработчики и маршруты
	router := api.SetupRoutes(api.Handlers{
		Brawlers:    handlers.NewBrawlerHandler(brawlerService),
		Teams:       handlers.NewTeamHandler(teamService),
		Tournaments: handlers.NewTournamentHandler(tournamentService),
		Matches:     handlers.NewMatchHandler(matchService),
		Collectors:  handlers.NewCollectorHandler(registry),
		StatusBoard: handlers.NewStatusBoardHandler(serverPoller),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, logger),
	}, cfg.JWTSecretKey)
	logger.Info("routes configured")

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

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
	}
	logger.Info("application exited")
}
