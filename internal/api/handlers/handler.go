// handler.go — APIHandler собирает доменные handler'ы и регистрирует
// их маршруты в chi-роутере.
package handlers

import (
	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка регистрации всех endpoints flashshare.
type APIHandler struct {
	rooms  *RoomHandler
	files  *FilesHandler
	health *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(rooms *RoomHandler, files *FilesHandler, health *HealthHandler) *APIHandler {
	return &APIHandler{
		rooms:  rooms,
		files:  files,
		health: health,
	}
}

// Register монтирует маршруты в роутер.
func (h *APIHandler) Register(r chi.Router) {
	// --- Комнаты ---
	r.Get("/ws/{room_id}/{client_id}", h.rooms.ServeWS)

	// --- Файлы ---
	r.Post("/api/upload", h.files.Upload)
	r.Get("/api/download/{file_id}", h.files.Download)

	// --- Health ---
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
}
