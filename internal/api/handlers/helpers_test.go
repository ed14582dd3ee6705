package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Yhyb24P/flashshare/internal/api/middleware"
	"github.com/Yhyb24P/flashshare/internal/domain/model"
	"github.com/Yhyb24P/flashshare/internal/room"
	"github.com/Yhyb24P/flashshare/internal/service"
	"github.com/Yhyb24P/flashshare/internal/storage/filestore"
	"github.com/Yhyb24P/flashshare/internal/storage/itemstore"
)

const testTTL = 600 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock — управляемые часы.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testServer — полный HTTP-стек поверх httptest.Server.
type testServer struct {
	srv       *httptest.Server
	store     *itemstore.Store
	artifacts *filestore.FileStore
	registry  *room.Registry
	clock     *fakeClock
	sweeper   *service.SweeperService
}

func newTestServer(t *testing.T, origins ...string) *testServer {
	t.Helper()

	if len(origins) == 0 {
		origins = []string{"*"}
	}

	artifacts, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	ts := &testServer{
		store:     itemstore.New(testLogger()),
		artifacts: artifacts,
		registry:  room.NewRegistry(testLogger()),
		clock:     &fakeClock{now: time.Now()},
	}
	coord := service.NewCoordinator(ts.store, artifacts, ts.registry, testTTL, ts.clock.Now, testLogger())
	ts.sweeper = service.NewSweeperService(ts.store, artifacts, ts.registry, time.Hour, ts.clock.Now, testLogger())

	policy := middleware.NewOriginPolicy(origins, testLogger())
	api := NewAPIHandler(
		NewRoomHandler(ts.registry, coord, policy, 16, testLogger()),
		NewFilesHandler(coord, testLogger()),
		NewHealthHandler(artifacts.DataDir(), ts.sweeper, ts.registry),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(testLogger()))
	router.Use(middleware.MetricsMiddleware())
	api.Register(router)

	ts.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		ts.registry.CloseAll()
		ts.srv.Close()
	})
	return ts
}

// dial подключает клиента к комнате.
func (ts *testServer) dial(t *testing.T, roomID, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/" + roomID + "/" + clientID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope читает одно сообщение комнаты.
func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// upload отправляет multipart-форму на /api/upload.
func (ts *testServer) upload(t *testing.T, fields map[string]string, filename string, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.srv.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// get выполняет GET и возвращает ответ с прочитанным телом.
func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// errorCode извлекает код из тела ошибки API.
func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Error.Code
}

// removeArtifacts удаляет все артефакты из каталога загрузок.
func removeArtifacts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Remove(filepath.Join(dir, e.Name())))
	}
}
