package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/artisan-market-backend/internal/config"
	"github.com/ignatzorin/artisan-market-backend/internal/db"
	"github.com/ignatzorin/artisan-market-backend/internal/domain/negotiation"
	"github.com/ignatzorin/artisan-market-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/artisan-market-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/artisan-market-backend/internal/http/router"
	"github.com/ignatzorin/artisan-market-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/artisan-market-backend/internal/logger"
	"github.com/ignatzorin/artisan-market-backend/internal/repository"
	"github.com/ignatzorin/artisan-market-backend/internal/service"
	"github.com/ignatzorin/artisan-market-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	itemRepo := repository.NewItemRepository(dbConn)
	negotiationRepo := persistence.NewNegotiationRepositoryAdapter(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	goroutine.SafeGo(hub.Run)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	converter := service.NewPurchaseOrderConverter(dbConn)
	rules := negotiation.Rules{
		MaxRounds: cfg.MaxNegotiationRounds,
		OfferTTL:  cfg.OfferTTL,
	}
	negotiationService := service.NewNegotiationService(
		negotiationRepo,
		userRepo,
		itemRepo,
		converter,
		ws.NewChatChannel(hub),
		rules,
	)

	// Фоновое закрытие просроченных торгов.
	sweeper := service.NewExpirationSweeper(negotiationRepo, negotiationService, cfg.SweepInterval)
	goroutine.SafeGoWithContext(ctx, sweeper.Run)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	itemHandler := httpHandlers.NewItemHandler(itemRepo)
	negotiationHandler := httpHandlers.NewNegotiationHandler(negotiationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, itemHandler, negotiationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
