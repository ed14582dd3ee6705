// Пакет server — HTTP-сервер flashshare с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yhyb24P/flashshare/internal/api/middleware"
	"github.com/Yhyb24P/flashshare/internal/config"
)

// RouteRegistrar — источник маршрутов API.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// Server — HTTP-сервер flashshare.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, api RouteRegistrar, origins *middleware.OriginPolicy) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORS(origins))

	api.Register(router)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		router:     router,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой обработчик с middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnShutdown регистрирует функцию, вызываемую в начале graceful shutdown.
// WebSocket-соединения не отслеживаются http.Server, их закрывают здесь.
func (s *Server) OnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
