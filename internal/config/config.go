// Пакет config — флаги командной строки flashshare, привязанные к
// переменным окружения FLASH_*, их валидация и настройка логгера.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Имена флагов.
const (
	FlagPort             = "port"
	FlagUploadDir        = "upload-dir"
	FlagItemTTL          = "item-ttl"
	FlagSweepInterval    = "sweep-interval"
	FlagAllowedOrigins   = "allowed-origins"
	FlagSendBuffer       = "send-buffer"
	FlagLogLevel         = "log-level"
	FlagLogFormat        = "log-format"
	FlagHTTPReadTimeout  = "http-read-timeout"
	FlagHTTPWriteTimeout = "http-write-timeout"
	FlagHTTPIdleTimeout  = "http-idle-timeout"
	FlagShutdownTimeout  = "shutdown-timeout"
)

// Config содержит все параметры конфигурации flashshare.
// Не изменяется после старта.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Каталог артефактов загруженных файлов
	UploadDir string
	// Срок жизни элемента
	ItemTTL time.Duration
	// Период цикла очистки
	SweepInterval time.Duration
	// Допустимые Origin для WebSocket и CORS ("*" — любые)
	AllowedOrigins []string
	// Размер очереди исходящих сообщений одного соединения
	SendBuffer int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Flags возвращает флаги приложения. Каждый флаг читается также из
// переменной окружения FLASH_<ИМЯ>.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    FlagPort,
			Usage:   "порт HTTP-сервера",
			Value:   8080,
			EnvVars: []string{"FLASH_PORT"},
		},
		&cli.StringFlag{
			Name:    FlagUploadDir,
			Usage:   "каталог артефактов загруженных файлов",
			Value:   "uploads",
			EnvVars: []string{"FLASH_UPLOAD_DIR"},
		},
		&cli.DurationFlag{
			Name:    FlagItemTTL,
			Usage:   "срок жизни сообщения или файла",
			Value:   10 * time.Minute,
			EnvVars: []string{"FLASH_ITEM_TTL"},
		},
		&cli.DurationFlag{
			Name:    FlagSweepInterval,
			Usage:   "период цикла очистки",
			Value:   5 * time.Second,
			EnvVars: []string{"FLASH_SWEEP_INTERVAL"},
		},
		&cli.StringSliceFlag{
			Name:    FlagAllowedOrigins,
			Usage:   "допустимые Origin через запятую, * — любые",
			Value:   cli.NewStringSlice("*"),
			EnvVars: []string{"FLASH_ALLOWED_ORIGINS"},
		},
		&cli.IntFlag{
			Name:    FlagSendBuffer,
			Usage:   "размер очереди исходящих сообщений соединения",
			Value:   256,
			EnvVars: []string{"FLASH_SEND_BUFFER"},
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Usage:   "уровень логирования: debug, info, warn, error",
			Value:   "info",
			EnvVars: []string{"FLASH_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    FlagLogFormat,
			Usage:   "формат логов: json, text",
			Value:   "json",
			EnvVars: []string{"FLASH_LOG_FORMAT"},
		},
		&cli.DurationFlag{
			Name:    FlagHTTPReadTimeout,
			Usage:   "таймаут чтения HTTP-запроса",
			Value:   30 * time.Second,
			EnvVars: []string{"FLASH_HTTP_READ_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    FlagHTTPWriteTimeout,
			Usage:   "таймаут записи HTTP-ответа",
			Value:   60 * time.Second,
			EnvVars: []string{"FLASH_HTTP_WRITE_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    FlagHTTPIdleTimeout,
			Usage:   "таймаут простоя keep-alive соединения",
			Value:   120 * time.Second,
			EnvVars: []string{"FLASH_HTTP_IDLE_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    FlagShutdownTimeout,
			Usage:   "таймаут graceful shutdown",
			Value:   10 * time.Second,
			EnvVars: []string{"FLASH_SHUTDOWN_TIMEOUT"},
		},
	}
}

// FromContext собирает Config из разобранных флагов и валидирует его.
func FromContext(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Port:             c.Int(FlagPort),
		UploadDir:        strings.TrimSpace(c.String(FlagUploadDir)),
		ItemTTL:          c.Duration(FlagItemTTL),
		SweepInterval:    c.Duration(FlagSweepInterval),
		AllowedOrigins:   splitOrigins(c.StringSlice(FlagAllowedOrigins)),
		SendBuffer:       c.Int(FlagSendBuffer),
		LogFormat:        strings.ToLower(c.String(FlagLogFormat)),
		HTTPReadTimeout:  c.Duration(FlagHTTPReadTimeout),
		HTTPWriteTimeout: c.Duration(FlagHTTPWriteTimeout),
		HTTPIdleTimeout:  c.Duration(FlagHTTPIdleTimeout),
		ShutdownTimeout:  c.Duration(FlagShutdownTimeout),
	}

	level, err := parseLogLevel(c.String(FlagLogLevel))
	if err != nil {
		return nil, fmt.Errorf("FLASH_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения конфигурации.
func (cfg *Config) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("FLASH_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}
	if cfg.UploadDir == "" {
		return fmt.Errorf("FLASH_UPLOAD_DIR: значение не может быть пустым")
	}
	if cfg.ItemTTL <= 0 {
		return fmt.Errorf("FLASH_ITEM_TTL: значение должно быть положительным, получено %s", cfg.ItemTTL)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("FLASH_SWEEP_INTERVAL: значение должно быть положительным, получено %s", cfg.SweepInterval)
	}
	if cfg.SweepInterval > cfg.ItemTTL {
		return fmt.Errorf("FLASH_SWEEP_INTERVAL: значение %s не может превышать FLASH_ITEM_TTL (%s)",
			cfg.SweepInterval, cfg.ItemTTL)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("FLASH_ALLOWED_ORIGINS: список не может быть пустым")
	}
	if cfg.SendBuffer <= 0 {
		return fmt.Errorf("FLASH_SEND_BUFFER: значение должно быть положительным, получено %d", cfg.SendBuffer)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("FLASH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	for name, d := range map[string]time.Duration{
		"FLASH_HTTP_READ_TIMEOUT":  cfg.HTTPReadTimeout,
		"FLASH_HTTP_WRITE_TIMEOUT": cfg.HTTPWriteTimeout,
		"FLASH_HTTP_IDLE_TIMEOUT":  cfg.HTTPIdleTimeout,
		"FLASH_SHUTDOWN_TIMEOUT":   cfg.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: значение должно быть положительным, получено %s", name, d)
		}
	}
	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// splitOrigins разбирает элементы списка, допуская запятые внутри
// одного значения флага, и отбрасывает пустые.
func splitOrigins(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
