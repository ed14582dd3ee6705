// cors.go — политика допустимых Origin для HTTP и WebSocket.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"
)

// preflightMaxAge — время кэширования preflight-ответа браузером, секунды.
const preflightMaxAge = 600

// OriginPolicy — набор допустимых Origin поверх rs/cors.
// Значение "*" разрешает любой Origin.
type OriginPolicy struct {
	allowAll bool
	cors     *cors.Cors
}

// NewOriginPolicy создаёт политику из списка Origin (scheme://host[:port]).
// Некорректные значения пропускаются с предупреждением в лог.
func NewOriginPolicy(origins []string, logger *slog.Logger) *OriginPolicy {
	p := &OriginPolicy{}
	allowed := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("Некорректный Origin в конфигурации пропущен",
				slog.String("origin", origin),
			)
			continue
		}
		allowed = append(allowed, normalized)
	}
	if p.allowAll {
		allowed = []string{"*"}
	}

	p.cors = cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           preflightMaxAge,
		Logger:           slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
	})
	return p
}

// AllowAll сообщает, разрешены ли любые Origin.
func (p *OriginPolicy) AllowAll() bool {
	return p.allowAll
}

// CheckOrigin — функция для websocket.Upgrader.CheckOrigin.
// Запрос без Origin (клиент не из браузера) допускается.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	if r.Header.Get("Origin") == "" {
		return true
	}
	return p.cors.OriginAllowed(r)
}

// CORS возвращает middleware, выставляющий CORS-заголовки для
// допустимых Origin и отвечающий на preflight-запросы.
func CORS(policy *OriginPolicy) func(http.Handler) http.Handler {
	return policy.cors.Handler
}

// normalizeOrigin приводит Origin к виду scheme://host в нижнем регистре.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
