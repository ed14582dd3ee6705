// Точка входа flashshare — эфемерного обмена сообщениями и файлами в комнатах.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Yhyb24P/flashshare/internal/api/handlers"
	"github.com/Yhyb24P/flashshare/internal/api/middleware"
	"github.com/Yhyb24P/flashshare/internal/config"
	"github.com/Yhyb24P/flashshare/internal/room"
	"github.com/Yhyb24P/flashshare/internal/server"
	"github.com/Yhyb24P/flashshare/internal/service"
	"github.com/Yhyb24P/flashshare/internal/storage/filestore"
	"github.com/Yhyb24P/flashshare/internal/storage/itemstore"
)

func main() {
	app := &cli.App{
		Name:    "flashshare",
		Usage:   "эфемерные комнаты для сообщений и файлов",
		Version: config.Version,
		Flags:   config.Flags(),
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "запустить HTTP/WebSocket сервер",
				Flags:  config.Flags(),
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "показать версию",
				Action: func(_ *cli.Context) error {
					fmt.Println(config.Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// serve собирает компоненты и запускает сервер до сигнала завершения.
func serve(c *cli.Context) error {
	// Загрузка конфигурации из флагов и переменных окружения
	cfg, err := config.FromContext(c)
	if err != nil {
		return fmt.Errorf("конфигурация: %w", err)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("flashshare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
		slog.Duration("item_ttl", cfg.ItemTTL),
		slog.Duration("sweep_interval", cfg.SweepInterval),
	)

	// --- Инициализация компонентов ---

	// 1. Хранилище артефактов
	artifacts, err := filestore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		return err
	}

	// 2. Хранилище элементов и реестр комнат
	store := itemstore.New(logger)
	registry := room.NewRegistry(logger)

	// 3. Жизненный цикл и фоновая очистка
	coord := service.NewCoordinator(store, artifacts, registry, cfg.ItemTTL, nil, logger)
	sweeper := service.NewSweeperService(store, artifacts, registry, cfg.SweepInterval, nil, logger)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 4. HTTP API
	origins := middleware.NewOriginPolicy(cfg.AllowedOrigins, logger)
	api := handlers.NewAPIHandler(
		handlers.NewRoomHandler(registry, coord, origins, cfg.SendBuffer, logger),
		handlers.NewFilesHandler(coord, logger),
		handlers.NewHealthHandler(artifacts.DataDir(), sweeper, registry),
	)

	srv := server.New(cfg, logger, api, origins)
	srv.OnShutdown(func() { registry.CloseAll() })

	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("flashshare остановлен")
	return nil
}
