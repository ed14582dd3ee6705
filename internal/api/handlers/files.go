// files.go — HTTP handlers загрузки и скачивания файлов комнаты.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Yhyb24P/flashshare/internal/api/errors"
	"github.com/Yhyb24P/flashshare/internal/service"
)

// maxMemory — объём multipart-формы, хранимый в памяти; остальное
// уходит во временные файлы.
const maxMemory = 32 << 20

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	Status string `json:"status"`
	FileID string `json:"file_id"`
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	coord  *service.Coordinator
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(coord *service.Coordinator, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		coord:  coord,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// Upload обрабатывает POST /api/upload.
// Multipart form: file, room_id, sender (все обязательны).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	item, err := h.coord.Upload(r.Context(), service.UploadParams{
		RoomID:   r.FormValue("room_id"),
		Sender:   r.FormValue("sender"),
		Filename: header.Filename,
		Reader:   file,
	})
	if err != nil {
		apierrors.FromDomain(w, err, "", "Не удалось сохранить файл")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(uploadResponse{Status: "ok", FileID: item.ID})
}

// Download обрабатывает GET /api/download/{file_id}.
// Отсутствующий, истёкший и утративший артефакт файл неразличимы: 404.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")

	f, dl, err := h.coord.Open(r.Context(), fileID)
	if err != nil {
		if apierrors.FromDomain(w, err, "Файл не найден или истёк", "Ошибка чтения файла") >= http.StatusInternalServerError {
			h.logger.Error("Ошибка открытия файла",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	if dl.Checksum != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", dl.Checksum))
	}
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, dl.Filename, dl.ModTime, f)

	h.logger.Debug("Файл скачан",
		slog.String("file_id", fileID),
		slog.String("filename", dl.Filename),
		slog.Int64("size", dl.Size),
	)
}
