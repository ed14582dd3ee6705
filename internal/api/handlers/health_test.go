package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct{ running bool }

func (s stubSweeper) IsRunning() bool { return s.running }

type stubRooms struct{}

func (stubRooms) RoomCount() int       { return 2 }
func (stubRooms) ConnectionCount() int { return 3 }

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler("", nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeHealth(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "flashshare", body["service"])
}

func TestHealthReady(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		dir        string
		sweeper    SweeperStatus
		wantStatus int
	}{
		{"всё в порядке", dir, stubSweeper{running: true}, http.StatusOK},
		{"очистка остановлена", dir, stubSweeper{running: false}, http.StatusServiceUnavailable},
		{"каталог недоступен", filepath.Join(dir, "missing", "nested"), stubSweeper{running: true}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.dir, tt.sweeper, stubRooms{})
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeHealth(t, rec)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ok", body["status"])
			} else {
				assert.Equal(t, statusFail, body["status"])
			}
			assert.EqualValues(t, 2, body["rooms"])
			assert.EqualValues(t, 3, body["connections"])
		})
	}
}
