package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

func uploadFileID(t *testing.T, resp *http.Response) string {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.NotEmpty(t, body.FileID)
	return body.FileID
}

// TestUploadDownload — загрузка файла, рассылка в комнату и скачивание.
func TestUploadDownload(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t, "r1", "alice")
	readEnvelope(t, alice)

	content := []byte("%PDF-1.4 report")
	resp := ts.upload(t, map[string]string{"room_id": "r1", "sender": "alice"}, "report.pdf", content)
	fileID := uploadFileID(t, resp)

	env := readEnvelope(t, alice)
	assert.Equal(t, model.KindFile, env.Type)
	assert.Equal(t, fileID, env.ID)
	assert.Equal(t, "report.pdf", env.Filename)
	assert.Equal(t, int64(len(content)), env.FileSize)
	assert.Equal(t, "/api/download/"+fileID, env.DownloadURL)

	dl, data := ts.get(t, env.DownloadURL)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, content, data)
	assert.Equal(t, "application/octet-stream", dl.Header.Get("Content-Type"))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "report.pdf")
	assert.NotEmpty(t, dl.Header.Get("ETag"))
}

// TestDownload_Range — частичное скачивание.
func TestDownload_Range(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.upload(t, map[string]string{"room_id": "r1", "sender": "alice"}, "a.txt", []byte("0123456789"))
	fileID := uploadFileID(t, resp)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/download/"+fileID, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-4")
	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()

	assert.Equal(t, http.StatusPartialContent, dl.StatusCode)
	assert.Equal(t, "bytes 2-4/10", dl.Header.Get("Content-Range"))
}

func TestUpload_Invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
	}{
		{"нет файла", map[string]string{"room_id": "r1", "sender": "alice"}, ""},
		{"нет room_id", map[string]string{"sender": "alice"}, "a.txt"},
		{"пустой sender", map[string]string{"room_id": "r1", "sender": " "}, "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.upload(t, tt.fields, tt.filename, []byte("x"))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		})
	}
	assert.Equal(t, 0, ts.store.Count())
}

// TestDownload_NotFound — неизвестный ID, текстовый элемент и истёкший
// файл неразличимы для клиента.
func TestDownload_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.get(t, "/api/download/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, data))

	alice := ts.dial(t, "r1", "alice")
	readEnvelope(t, alice)
	require.NoError(t, alice.WriteJSON(map[string]string{"content": "text"}))
	text := readEnvelope(t, alice)

	resp, data = ts.get(t, "/api/download/"+text.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, data))

	fileID := uploadFileID(t, ts.upload(t, map[string]string{"room_id": "r1", "sender": "alice"}, "a.txt", []byte("x")))
	ts.clock.Advance(testTTL + time.Second)

	resp, data = ts.get(t, fmt.Sprintf("/api/download/%s", fileID))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, data))
}

// TestDownload_SelfHeal — артефакт пропал с диска: 404, запись удалена,
// участники комнаты получают Expired.
func TestDownload_SelfHeal(t *testing.T) {
	ts := newTestServer(t)

	alice := ts.dial(t, "r1", "alice")
	readEnvelope(t, alice)

	fileID := uploadFileID(t, ts.upload(t, map[string]string{"room_id": "r1", "sender": "alice"}, "a.txt", []byte("x")))
	readEnvelope(t, alice)

	removeArtifacts(t, ts.artifacts.DataDir())

	resp, data := ts.get(t, "/api/download/"+fileID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, data))

	_, ok := ts.store.Get(fileID)
	assert.False(t, ok, "запись должна быть удалена")

	env := readEnvelope(t, alice)
	assert.Equal(t, model.KindExpired, env.Type)
	assert.Equal(t, fileID, env.ID)
}
