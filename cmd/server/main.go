package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"storybook-server/internal/billing"
	"storybook-server/internal/config"
	"storybook-server/internal/entitlement"
	"storybook-server/internal/handler"
	"storybook-server/internal/logger"
	"storybook-server/internal/service"
	"storybook-server/internal/storage"
	"storybook-server/internal/store"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Storybook Server...")

	// Конфиг загружается до инициализации логгера.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zLogger.Sync()
	zLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// Клиент реляционного REST-хранилища и репозитории.
	storeClient := store.NewClient(cfg.StoreBaseURL, cfg.StoreServiceKey, cfg.StoreTimeout, zLogger)
	storybookRepo := store.NewRESTStorybookRepository(storeClient, zLogger)
	quotaRepo := store.NewRESTQuotaRepository(storeClient, zLogger)
	subscriptionRepo := store.NewRESTSubscriptionRepository(storeClient, zLogger)
	webhookEventRepo := store.NewRESTWebhookEventRepository(storeClient, zLogger)

	// Объектное хранилище ассетов.
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	objectStorage, err := storage.NewS3Storage(initCtx, cfg, zLogger)
	cancelInit()
	if err != nil {
		zLogger.Fatal("Не удалось инициализировать объектное хранилище", zap.Error(err))
	}

	// Движок квот.
	entitlementEngine, err := entitlement.NewEngine(quotaRepo, subscriptionRepo, entitlement.Limits{
		FreeTotalDefault: cfg.FreeQuotaTotal,
		DailyStandard:    cfg.DailyLimitStandard,
		DailyPro:         cfg.DailyLimitPro,
	}, cfg.ReferenceTimezone, zLogger)
	if err != nil {
		zLogger.Fatal("Не удалось создать движок квот", zap.Error(err))
	}

	// Клиенты генерации.
	aiClient, err := service.NewAIClient(cfg, zLogger)
	if err != nil {
		zLogger.Fatal("Не удалось создать AI клиент", zap.Error(err))
	}
	imageClient := service.NewImageClient(cfg, zLogger)
	speechClient := service.NewSpeechClient(cfg, zLogger)

	promptProvider := service.NewPromptProvider(cfg.PromptsDir)
	assetGenerator := service.NewAssetGenerator(imageClient, speechClient, zLogger)
	persistenceSaga := service.NewPersistenceSaga(storybookRepo, objectStorage, zLogger)

	storybookService := service.NewStorybookService(
		aiClient,
		promptProvider,
		assetGenerator,
		persistenceSaga,
		storybookRepo,
		objectStorage,
		entitlementEngine,
		cfg.PromptVersion,
		zLogger,
	)

	// Биллинг.
	reconciler := billing.NewReconciler(
		subscriptionRepo,
		webhookEventRepo,
		cfg.StripeWebhookSecret,
		cfg.PlanByPriceID,
		cfg.FallbackPlan,
		zLogger,
	)
	checkoutService := billing.NewCheckoutService(
		subscriptionRepo,
		cfg.StripeSecretKey,
		cfg.PlanByPriceID,
		cfg.TrialDays,
		cfg.CheckoutURL,
		zLogger,
	)

	apiHandler, err := handler.NewHandler(storybookService, entitlementEngine, checkoutService, reconciler, cfg.JWTSecret, zLogger)
	if err != nil {
		zLogger.Fatal("Не удалось создать HTTP handler", zap.Error(err))
	}
	router := apiHandler.NewRouter(cfg.CORSAllowOrigins, cfg.LogLevel)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zLogger.Info("HTTP сервер слушает", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zLogger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zLogger.Error("Ошибка при graceful shutdown HTTP сервера", zap.Error(err))
	}

	log.Println("Storybook Server успешно остановлен")
}
