// logging.go — middleware логирования HTTP-запросов и WebSocket-сессий через slog.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// routeParams — параметры маршрута, попадающие в запись лога.
var routeParams = []string{"room_id", "client_id", "file_id"}

// RequestLogger возвращает middleware, логирующий каждый запрос после
// его завершения. Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
// WebSocket-сессия логируется одной записью при отключении клиента,
// duration равна длительности сессии.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			msg := "HTTP запрос"
			if rec.hijacked {
				msg = "WebSocket сессия завершена"
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				for _, name := range routeParams {
					if v := rctx.URLParam(name); v != "" {
						attrs = append(attrs, slog.String(name, v))
					}
				}
			}

			logger.LogAttrs(r.Context(), level, msg, attrs...)
		})
	}
}
