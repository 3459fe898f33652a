package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/filehost/internal/config"
	"github.com/maynagashev/filehost/internal/handlers"
	"github.com/maynagashev/filehost/internal/logger"
	appmiddleware "github.com/maynagashev/filehost/internal/middleware"
	"github.com/maynagashev/filehost/internal/repository"
	"github.com/maynagashev/filehost/internal/services"
	"github.com/maynagashev/filehost/internal/session"
	"github.com/maynagashev/filehost/internal/storage"
	"github.com/maynagashev/filehost/internal/tracing"
	"go.uber.org/zap"
)

// Подменяется в тестах.
var openDB = repository.Open

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db              *sqlx.DB // nil для хранилища в памяти
	fileStorage     storage.FileStorage
	revoker         session.Revoker
	authService     services.AuthService
	authHandler     *handlers.AuthHandler
	artifactHandler *handlers.ArtifactHandler
}

// Close освобождает соединения с БД и Redis.
func (d *dependencies) Close() {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			zap.S().Warnf("Ошибка закрытия соединения с БД: %v", err)
		}
	}
	if c, ok := d.revoker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			zap.S().Warnf("Ошибка закрытия соединения с Redis: %v", err)
		}
	}
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		log.Printf("Ошибка выполнения сервера: %v", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args, os.LookupEnv)
	if err != nil {
		return err
	}

	_, syncLogger, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer syncLogger()
	zap.S().Infof("Запуск сервера filehost...")

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if tErr := shutdownTracing(shutdownCtx); tErr != nil {
			zap.S().Warnf("Ошибка остановки трассировки: %v", tErr)
		}
	}()

	if err = ensureJWTSecret(cfg); err != nil {
		return err
	}

	deps, err := setupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer deps.Close()

	var limiter *appmiddleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = appmiddleware.NewRateLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	r := setupRouter(deps, limiter)
	return serve(ctx, newHTTPServer(cfg.Server, r), cfg.Server)
}

// ensureJWTSecret генерирует случайный секрет в режиме разработки, если он не задан.
// Токены, выданные с таким секретом, перестают действовать после перезапуска.
func ensureJWTSecret(cfg *config.Config) error {
	if cfg.Auth.JWTSecret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("ошибка генерации секрета JWT: %w", err)
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(buf)
	zap.S().Warnf("Секрет JWT не задан, сгенерирован временный (только для разработки)")
	return nil
}

// openRepositories выбирает реализацию хранилища записей по драйверу.
func openRepositories(
	ctx context.Context,
	cfg config.DatabaseConfig,
) (*sqlx.DB, repository.UserRepository, repository.ArtifactRepository, error) {
	if cfg.Driver == config.DriverMemory {
		zap.S().Warnf("Используется хранилище записей в памяти, данные не сохраняются между запусками")
		store := repository.NewMemoryStore()
		return nil, store, store, nil
	}

	db, err := openDB(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}
	return db, repository.NewSQLUserRepository(db), repository.NewSQLArtifactRepository(db), nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	// 1. Хранилище записей
	db, userRepo, artifactRepo, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	deps.db = db

	// 2. Хранилище содержимого
	deps.fileStorage, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("ошибка инициализации хранилища файлов: %w", err)
	}

	// 3. Реестр отозванных токенов
	deps.revoker, err = session.New(ctx, cfg.Redis)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("ошибка инициализации реестра сессий: %w", err)
	}

	// 4. Сервисы
	artifactService := services.NewArtifactService(artifactRepo, userRepo, deps.fileStorage, services.ArtifactConfig{
		VerifyOnDownload: cfg.Integrity.VerifyOnDownload,
		ServeCorrupted:   cfg.Integrity.ServeCorrupted,
		SpoolDir:         cfg.Integrity.SpoolDir,
	})
	deps.authService = services.NewAuthService(userRepo, deps.revoker, artifactService, services.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	})

	// 5. Обработчики
	deps.authHandler = handlers.NewAuthHandler(deps.authService)
	deps.artifactHandler = handlers.NewArtifactHandler(artifactService, cfg.Upload.MaxBytes)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi. limiter может быть nil.
func setupRouter(deps *dependencies, limiter *appmiddleware.RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- Маршруты --- //
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты (регистрация, вход)
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/register", deps.authHandler.Register)
			r.Post("/login", deps.authHandler.Login)
		})

		// Приватные маршруты (требуют аутентификации)
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authenticator(deps.authService))

			r.Post("/logout", deps.authHandler.Logout)
			r.Delete("/account", deps.authHandler.DeleteAccount)

			r.Route("/files", func(r chi.Router) {
				r.Get("/", deps.artifactHandler.List)
				r.Post("/", deps.artifactHandler.Upload)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", deps.artifactHandler.Info)
					r.Delete("/", deps.artifactHandler.Delete)
					r.Get("/download", deps.artifactHandler.Download)
					r.Get("/verify", deps.artifactHandler.Verify)
					r.Post("/share", deps.artifactHandler.Share)
				})
			})
		})
	})
	return r
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// serve запускает сервер и останавливает его при отмене ctx, дожидаясь текущих запросов.
func serve(ctx context.Context, server *http.Server, cfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			zap.S().Infof("Запуск HTTPS-сервера на порту %s (сертификат: %s)", cfg.Port, cfg.CertFile)
			err = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			zap.S().Warnf("TLS не настроен, запуск HTTP-сервера на порту %s", cfg.Port)
			err = server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ошибка запуска сервера: %w", err)
	case <-ctx.Done():
	}

	zap.S().Infof("Получен сигнал остановки, завершение работы...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	zap.S().Infof("Сервер остановлен")
	return nil
}
