// health.go — обработчики health endpoints (liveness и readiness).
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Yhyb24P/flashshare/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// SweeperStatus — проверка, что фоновая очистка работает.
type SweeperStatus interface {
	IsRunning() bool
}

// RoomStats — статистика комнат для readiness-ответа.
type RoomStats interface {
	RoomCount() int
	ConnectionCount() int
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// uploadDir — каталог артефактов (для проверки FS)
	uploadDir string
	sweeper   SweeperStatus
	rooms     RoomStats
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(uploadDir string, sweeper SweeperStatus, rooms RoomStats) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		uploadDir: uploadDir,
		sweeper:   sweeper,
		rooms:     rooms,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "flashshare",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: каталог загрузок доступен на запись, очистка запущена.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	sweeperCheck := map[string]any{"status": "ok"}
	if h.sweeper != nil && !h.sweeper.IsRunning() {
		sweeperCheck = map[string]any{
			"status":  statusFail,
			"message": "Фоновая очистка не запущена",
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "flashshare",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"sweeper":    sweeperCheck,
		},
	}
	if h.rooms != nil {
		resp["rooms"] = h.rooms.RoomCount()
		resp["connections"] = h.rooms.ConnectionCount()
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность каталога загрузок на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.uploadDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.uploadDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Каталог загрузок недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// writeJSON пишет JSON-ответ с заданным статусом.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
