package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/robolearn/learning-backend/internal/config"
	"github.com/robolearn/learning-backend/internal/db"
	"github.com/robolearn/learning-backend/internal/goroutine"
	httpHandlers "github.com/robolearn/learning-backend/internal/http/handlers"
	httpRouter "github.com/robolearn/learning-backend/internal/http/router"
	"github.com/robolearn/learning-backend/internal/logger"
	"github.com/robolearn/learning-backend/internal/mail"
	"github.com/robolearn/learning-backend/internal/repository"
	"github.com/robolearn/learning-backend/internal/service"
	"github.com/robolearn/learning-backend/internal/storage"
	"github.com/robolearn/learning-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	development := cfg.Env == "development"
	logLevel := "info"
	if development {
		logLevel = "debug"
	}
	logger.Init(logLevel, development)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	photoStorage, err := storage.NewPhotoStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	mailer, err := mail.NewMailer(cfg)
	if err != nil {
		log.Fatalf("main: не удалось настроить почту: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	otpRepo := repository.NewOTPRepository(dbConn)
	catalogRepo := repository.NewCatalogRepository(dbConn)
	enrollmentRepo := repository.NewEnrollmentRepository(dbConn)
	reviewRepo := repository.NewReviewRepository(dbConn)
	progressionRepo := repository.NewProgressionRepository(dbConn)
	newsletterRepo := repository.NewNewsletterRepository(dbConn)
	mediaRepo := repository.NewMediaRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	otpService := service.NewOTPService(dbConn, otpRepo, mailer, cfg.OTPCodeLength, cfg.OTPCodeTTL, cfg.OTPMaxAttempts)
	authService := service.NewAuthService(userRepo, tokenManager, otpService, mailer)
	progressionService := service.NewProgressionService(dbConn, userRepo, progressionRepo, hub)
	courseService := service.NewCourseService(dbConn, catalogRepo, enrollmentRepo, reviewRepo, progressionService)
	seedService := service.NewSeedService(dbConn, userRepo)

	// Просроченные коды чистим в фоне раз в час.
	goroutine.SafeGoWithContext(ctx, "otp-purge", func(ctx context.Context) {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := otpService.PurgeExpired(ctx)
				if err != nil {
					logger.Log.WithError(err).Error("main: не удалось удалить просроченные коды")
					continue
				}
				if removed > 0 {
					logger.Log.WithField("removed", removed).Debug("main: просроченные коды удалены")
				}
			}
		}
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService, otpService)
	profileHandler := httpHandlers.NewProfileHandler(userRepo)
	courseHandler := httpHandlers.NewCourseHandler(courseService)
	studentHandler := httpHandlers.NewStudentHandler(courseService, progressionService)
	newsletterHandler := httpHandlers.NewNewsletterHandler(newsletterRepo)
	mediaHandler := httpHandlers.NewMediaHandler(mediaRepo, photoStorage)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	seedHandler := httpHandlers.NewSeedHandler(seedService)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		profileHandler,
		courseHandler,
		studentHandler,
		newsletterHandler,
		mediaHandler,
		wsHandler,
		healthHandler,
		seedHandler,
		tokenManager,
	)

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
