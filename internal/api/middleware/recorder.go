package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// statusRecorder запоминает статус и размер ответа для логирования
// и метрик. Hijack пропускается к исходному ResponseWriter
// для WebSocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	written  int64
	hijacked bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Hijack передаёт соединение WebSocket upgrader'у.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("ResponseWriter %T не поддерживает Hijack", rec.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err != nil {
		return nil, nil, err
	}
	rec.hijacked = true
	rec.status = http.StatusSwitchingProtocols
	return conn, rw, nil
}
