// metrics.go — Prometheus HTTP метрики flashshare.
// Регистрирует метрики: flashshare_http_requests_total, flashshare_http_request_duration_seconds.
// Бизнес-метрики (flashshare_items, flashshare_operations_total) обновляются
// из сервисного слоя. Метрики комнат и очистки регистрируются
// в соответствующих пакетах.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flashshare_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flashshare_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// ItemsCurrent — текущее количество живых элементов по видам (gauge).
	ItemsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flashshare_items",
			Help: "Текущее количество живых элементов",
		},
		[]string{"kind"},
	)

	// OperationsTotal — общее количество операций с элементами.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flashshare_operations_total",
			Help: "Общее количество операций с элементами",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rec.status)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет идентификаторы в пути на шаблоны для
// предотвращения взрывного роста кардинальности метрик.
// /api/download/3f1c… → /api/download/{file_id}
// /ws/r1/c1 → /ws/{room_id}/{client_id}
func normalizePath(path string) string {
	switch {
	case path == "/health/live",
		path == "/health/ready",
		path == "/metrics",
		path == "/api/upload":
		return path
	case strings.HasPrefix(path, "/api/download/"):
		return "/api/download/{file_id}"
	case strings.HasPrefix(path, "/ws/"):
		return "/ws/{room_id}/{client_id}"
	}
	return "other"
}
