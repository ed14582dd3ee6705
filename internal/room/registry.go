// Пакет room — реестр соединений по комнатам и рассылка сообщений.
//
// Комната существует неявно как множество живых соединений с общим
// room_id: создаётся при первом Join и удаляется из реестра, когда
// становится пустой. Рассылка идёт по снимку множества вне блокировки;
// соединение, не принявшее сообщение, считается мёртвым и
// отписывается немедленно.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

// Prometheus метрики реестра
var (
	// roomsActive — текущее количество непустых комнат.
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flashshare_rooms_active",
		Help: "Текущее количество непустых комнат",
	})

	// connectionsActive — текущее количество зарегистрированных соединений.
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flashshare_connections_active",
		Help: "Текущее количество зарегистрированных соединений",
	})

	// broadcastFailuresTotal — количество неудачных доставок.
	broadcastFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashshare_broadcast_failures_total",
		Help: "Общее количество неудачных доставок сообщений соединениям",
	})
)

// ErrSendPanic — отправка в соединение завершилась паникой.
var ErrSendPanic = errors.New("паника при отправке")

// Conn — соединение участника комнаты.
// Close должен быть идемпотентным.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Handshaker — соединение, требующее однократного рукопожатия
// перед регистрацией.
type Handshaker interface {
	Handshake(ctx context.Context) error
}

// BroadcastResult — итог одной рассылки.
type BroadcastResult struct {
	// Delivered — количество соединений, принявших сообщение
	Delivered int
	// Failed — количество соединений, отписанных из-за ошибки доставки
	Failed int
}

// Registry — потокобезопасный реестр комнат.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{} // room_id → множество соединений
	conns  int
	logger *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]map[Conn]struct{}),
		logger: logger.With(slog.String("component", "room_registry")),
	}
}

// Join выполняет рукопожатие соединения (если требуется) и регистрирует
// его в комнате. При ошибке рукопожатия соединение не регистрируется.
func (r *Registry) Join(ctx context.Context, roomID string, conn Conn) error {
	if hs, ok := conn.(Handshaker); ok {
		if err := hs.Handshake(ctx); err != nil {
			return fmt.Errorf("рукопожатие соединения %s: %w", conn.ID(), err)
		}
	}

	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[Conn]struct{})
		r.rooms[roomID] = members
	}
	if _, dup := members[conn]; !dup {
		members[conn] = struct{}{}
		r.conns++
	}
	size := len(members)
	r.updateGaugesLocked()
	r.mu.Unlock()

	r.logger.Info("Соединение вошло в комнату",
		slog.String("room_id", roomID),
		slog.String("conn_id", conn.ID()),
		slog.Int("members", size),
	)
	return nil
}

// Leave отписывает соединение от комнаты. Пустая комната удаляется.
// Возвращает true только для вызова, который действительно удалил
// соединение.
func (r *Registry) Leave(roomID string, conn Conn) bool {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := members[conn]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(members, conn)
	r.conns--
	size := len(members)
	if size == 0 {
		delete(r.rooms, roomID)
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	r.logger.Info("Соединение покинуло комнату",
		slog.String("room_id", roomID),
		slog.String("conn_id", conn.ID()),
		slog.Int("members", size),
	)
	return true
}

// Broadcast доставляет сообщение всем соединениям комнаты.
// Ошибка доставки одному соединению не мешает остальным: такое
// соединение отписывается и закрывается. Отмена контекста рассылку
// не прерывает.
func (r *Registry) Broadcast(_ context.Context, roomID string, env model.Envelope) BroadcastResult {
	var result BroadcastResult

	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("Ошибка сериализации сообщения",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()),
		)
		return result
	}

	members := r.snapshot(roomID)
	for _, conn := range members {
		if err := safeSend(conn, data); err != nil {
			r.drop(roomID, conn, err)
			result.Failed++
			continue
		}
		result.Delivered++
	}

	r.logger.Debug("Рассылка выполнена",
		slog.String("room_id", roomID),
		slog.String("type", string(env.Type)),
		slog.Int("delivered", result.Delivered),
		slog.Int("failed", result.Failed),
	)
	return result
}

// Send доставляет сообщение одному соединению комнаты.
// При ошибке соединение отписывается так же, как в Broadcast.
func (r *Registry) Send(ctx context.Context, roomID string, conn Conn, env model.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сообщения: %w", err)
	}

	if err := safeSend(conn, data); err != nil {
		r.drop(roomID, conn, err)
		return &model.DeliveryError{RoomID: roomID, ConnID: conn.ID(), Err: err}
	}
	return nil
}

// CloseAll закрывает все соединения и очищает реестр.
// Используется при остановке сервера.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	var all []Conn
	for _, members := range r.rooms {
		for conn := range members {
			all = append(all, conn)
		}
	}
	r.rooms = make(map[string]map[Conn]struct{})
	r.conns = 0
	r.updateGaugesLocked()
	r.mu.Unlock()

	for _, conn := range all {
		if err := conn.Close(); err != nil {
			r.logger.Debug("Ошибка закрытия соединения",
				slog.String("conn_id", conn.ID()),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Info("Все соединения закрыты", slog.Int("count", len(all)))
	return len(all)
}

// RoomCount возвращает количество непустых комнат.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// MemberCount возвращает количество соединений в комнате.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// ConnectionCount возвращает общее количество соединений.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns
}

// snapshot возвращает копию множества соединений комнаты.
func (r *Registry) snapshot(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]Conn, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// drop отписывает и закрывает соединение после ошибки доставки.
func (r *Registry) drop(roomID string, conn Conn, cause error) {
	broadcastFailuresTotal.Inc()

	removed := r.Leave(roomID, conn)
	if err := conn.Close(); err != nil {
		r.logger.Debug("Ошибка закрытия соединения",
			slog.String("conn_id", conn.ID()),
			slog.String("error", err.Error()),
		)
	}

	deliveryErr := &model.DeliveryError{RoomID: roomID, ConnID: conn.ID(), Err: cause}
	r.logger.Warn("Соединение отписано из-за ошибки доставки",
		slog.String("room_id", roomID),
		slog.String("conn_id", conn.ID()),
		slog.Bool("removed", removed),
		slog.String("error", deliveryErr.Error()),
	)
}

// updateGaugesLocked обновляет метрики. Вызывается под r.mu.
func (r *Registry) updateGaugesLocked() {
	roomsActive.Set(float64(len(r.rooms)))
	connectionsActive.Set(float64(r.conns))
}

// safeSend вызывает conn.Send, превращая панику в ошибку.
func safeSend(conn Conn, data []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrSendPanic, rec)
		}
	}()
	return conn.Send(data)
}
