// client.go — WebSocket-соединение участника комнаты.
// Исходящие сообщения ставятся в ограниченную очередь и пишутся
// отдельной горутиной (write pump) в порядке постановки; входящие
// читаются в горутине обработчика (read loop).
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

const (
	// writeWait — таймаут записи одного кадра.
	writeWait = 10 * time.Second
	// pongWait — сколько ждать pong от клиента.
	pongWait = 60 * time.Second
	// pingPeriod — период ping, меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxInboundSize — максимальный размер входящего кадра.
	maxInboundSize = 64 * 1024
)

var (
	// ErrConnClosed — соединение уже закрыто.
	ErrConnClosed = errors.New("соединение закрыто")
	// ErrSendBufferFull — очередь исходящих сообщений переполнена.
	ErrSendBufferFull = errors.New("очередь исходящих сообщений переполнена")
)

// inboundMessage — входящий кадр клиента.
type inboundMessage struct {
	Content string `json:"content"`
}

// frameKey — поля исходящего кадра, по которым отсекаются повторы.
type frameKey struct {
	Type model.Kind `json:"type"`
	ID   string     `json:"id"`
}

// wsConn — соединение участника, реализует room.Conn и room.Handshaker.
type wsConn struct {
	id       string
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	logger   *slog.Logger

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu        sync.RWMutex // защита closed против Send
	closed    bool
	closeOnce sync.Once
	pumpDone  chan struct{}

	dedupMu sync.Mutex
	// delivered — элементы, уже поставленные в очередь клиенту
	delivered map[string]struct{}
	// expiredEarly — элементы, уничтоженные до отправки истории;
	// nil после joined
	expiredEarly map[string]struct{}
}

// newWSConn создаёт соединение до рукопожатия.
func newWSConn(
	id string,
	w http.ResponseWriter,
	r *http.Request,
	upgrader *websocket.Upgrader,
	sendBuffer int,
	logger *slog.Logger,
) *wsConn {
	return &wsConn{
		id:       id,
		w:        w,
		r:        r,
		upgrader: upgrader,
		logger:   logger.With(slog.String("conn_id", id)),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),

		delivered:    make(map[string]struct{}),
		expiredEarly: make(map[string]struct{}),
	}
}

// ID возвращает идентификатор клиента.
func (c *wsConn) ID() string {
	return c.id
}

// Handshake выполняет WebSocket upgrade и запускает write pump.
// При ошибке upgrader уже записал HTTP-ответ клиенту.
func (c *wsConn) Handshake(_ context.Context) error {
	conn, err := c.upgrader.Upgrade(c.w, c.r, nil)
	if err != nil {
		close(c.pumpDone)
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxInboundSize)

	go c.writePump()
	return nil
}

// Send ставит сообщение в очередь. Не блокируется: переполненная
// очередь означает, что клиент не успевает читать.
func (c *wsConn) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnClosed
	}
	if !c.admit(data) {
		return nil
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// admit решает, ставить ли кадр в очередь. Между регистрацией в комнате
// и снимком истории один элемент может прийти и рассылкой, и историей:
// каждый элемент доставляется клиенту не более одного раза, а элемент,
// уничтоженный до отправки истории, из неё не отправляется.
func (c *wsConn) admit(data []byte) bool {
	var key frameKey
	if err := json.Unmarshal(data, &key); err != nil || key.ID == "" {
		return true
	}

	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()

	if key.Type == model.KindExpired {
		delete(c.delivered, key.ID)
		if c.expiredEarly != nil {
			c.expiredEarly[key.ID] = struct{}{}
		}
		return true
	}
	if _, ok := c.delivered[key.ID]; ok {
		return false
	}
	if _, ok := c.expiredEarly[key.ID]; ok {
		return false
	}
	c.delivered[key.ID] = struct{}{}
	return true
}

// joined закрывает окно входа: история комнаты отправлена.
func (c *wsConn) joined() {
	c.dedupMu.Lock()
	c.expiredEarly = nil
	c.dedupMu.Unlock()
}

// Close закрывает соединение. Идемпотентен.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Wait дожидается завершения write pump.
func (c *wsConn) Wait() {
	<-c.pumpDone
}

// readLoop читает входящие кадры до ошибки или закрытия соединения
// и передаёт текст каждого сообщения в handle.
func (c *wsConn) readLoop(handle func(content string)) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("Ошибка установки read deadline", slog.String("error", err.Error()))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Некорректное сообщение клиента", slog.String("error", err.Error()))
			continue
		}
		handle(msg.Content)
	}
}

// writePump пишет сообщения из очереди и периодический ping.
// Закрывает сетевое соединение при выходе, что прерывает readLoop.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("Ошибка записи в соединение", slog.String("error", err.Error()))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Ошибка отправки ping", slog.String("error", err.Error()))
				_ = c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain дописывает сообщения, поставленные в очередь до закрытия.
func (c *wsConn) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// write пишет один кадр с таймаутом.
func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// logReadError логирует причину завершения чтения.
func (c *wsConn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("Сообщение клиента превысило лимит размера",
			slog.Int("limit", maxInboundSize),
		)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("Клиент закрыл соединение")
	case websocket.IsUnexpectedCloseError(err):
		c.logger.Debug("Соединение прервано", slog.String("error", err.Error()))
	default:
		c.logger.Debug("Чтение из соединения завершено", slog.String("error", err.Error()))
	}
}
