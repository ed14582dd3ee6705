package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
	"github.com/Yhyb24P/flashshare/internal/room"
	"github.com/Yhyb24P/flashshare/internal/storage/filestore"
	"github.com/Yhyb24P/flashshare/internal/storage/itemstore"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// sent — сообщение, переданное в рассылку.
type sent struct {
	roomID string
	env    model.Envelope
}

// recordingBroadcaster запоминает рассылки. Может паниковать
// для элемента с заданным ID.
type recordingBroadcaster struct {
	mu      sync.Mutex
	sent    []sent
	panicOn string
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, roomID string, env model.Envelope) room.BroadcastResult {
	if b.panicOn != "" && env.ID == b.panicOn {
		panic("broadcast failure")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{roomID: roomID, env: env})
	return room.BroadcastResult{Delivered: 1}
}

// byType возвращает рассылки заданного вида.
func (b *recordingBroadcaster) byType(kind model.Kind) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.sent {
		if s.env.Type == kind {
			out = append(out, s)
		}
	}
	return out
}

// captureConn — участник комнаты, запоминающий полученные кадры.
type captureConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) ID() string { return c.id }

func (c *captureConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *captureConn) Close() error { return nil }

// envelopes декодирует полученные кадры.
func (c *captureConn) envelopes(t *testing.T) []model.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env model.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("ошибка декодирования кадра: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// fakeClock — управляемые часы.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
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

// testEnv — окружение сервисного слоя.
type testEnv struct {
	store     *itemstore.Store
	artifacts *filestore.FileStore
	bc        *recordingBroadcaster
	clock     *fakeClock
	coord     *Coordinator
	sweeper   *SweeperService
}

const testTTL = 600 * time.Second

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	artifacts, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	env := &testEnv{
		store:     itemstore.New(testLogger()),
		artifacts: artifacts,
		bc:        &recordingBroadcaster{},
		clock:     newFakeClock(),
	}
	env.coord = NewCoordinator(env.store, env.artifacts, env.bc, testTTL, env.clock.Now, testLogger())
	env.sweeper = NewSweeperService(env.store, env.artifacts, env.bc, time.Hour, env.clock.Now, testLogger())
	return env
}
