// ws.go — обработчик WebSocket endpoint комнаты.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	apierrors "github.com/Yhyb24P/flashshare/internal/api/errors"
	"github.com/Yhyb24P/flashshare/internal/api/middleware"
	"github.com/Yhyb24P/flashshare/internal/domain/model"
	"github.com/Yhyb24P/flashshare/internal/room"
	"github.com/Yhyb24P/flashshare/internal/service"
)

// RoomHandler обслуживает GET /ws/{room_id}/{client_id}.
type RoomHandler struct {
	registry   *room.Registry
	coord      *service.Coordinator
	upgrader   *websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger
}

// NewRoomHandler создаёт обработчик комнаты.
func NewRoomHandler(
	registry *room.Registry,
	coord *service.Coordinator,
	origins *middleware.OriginPolicy,
	sendBuffer int,
	logger *slog.Logger,
) *RoomHandler {
	return &RoomHandler{
		registry: registry,
		coord:    coord,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
			Error:           upgradeError,
		},
		sendBuffer: sendBuffer,
		logger:     logger.With(slog.String("component", "room_handler")),
	}
}

// upgradeError отвечает на неудачный upgrade в формате ошибок API.
func upgradeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	if status == http.StatusForbidden {
		apierrors.Forbidden(w, "Origin не разрешён")
		return
	}
	apierrors.WriteError(w, status, apierrors.CodeValidationError, reason.Error())
}

// ServeWS подключает клиента к комнате.
//
// Порядок: upgrade и регистрация → история комнаты новому клиенту →
// системное уведомление о входе → чтение сообщений до отключения →
// отписка и уведомление о выходе. Элемент, попавший и в рассылку,
// и в историю, клиент получает один раз (см. wsConn.admit).
func (h *RoomHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	clientID := chi.URLParam(r, "client_id")
	if roomID == "" || clientID == "" {
		apierrors.ValidationError(w, "room_id и client_id обязательны")
		return
	}

	// Уведомление о выходе рассылается и после отмены контекста запроса
	ctx := context.WithoutCancel(r.Context())

	conn := newWSConn(clientID, w, r, h.upgrader, h.sendBuffer, h.logger)
	if err := h.registry.Join(ctx, roomID, conn); err != nil {
		h.logger.Warn("Не удалось подключить клиента",
			slog.String("room_id", roomID),
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return
	}

	defer func() {
		h.registry.Leave(roomID, conn)
		_ = conn.Close()
		conn.Wait()
		h.coord.SystemNotice(ctx, roomID, fmt.Sprintf("%s покинул комнату", clientID))
	}()

	for _, env := range h.coord.Backlog(roomID) {
		if err := h.registry.Send(ctx, roomID, conn, env); err != nil {
			return
		}
	}
	conn.joined()
	h.coord.SystemNotice(ctx, roomID, fmt.Sprintf("%s вошёл в комнату", clientID))

	conn.readLoop(func(content string) {
		_, err := h.coord.CreateText(ctx, service.TextParams{
			RoomID:  roomID,
			Sender:  clientID,
			Content: content,
		})
		if err != nil && !errors.Is(err, model.ErrInvalidInput) {
			h.logger.Error("Ошибка создания сообщения",
				slog.String("room_id", roomID),
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
		}
	})
}
