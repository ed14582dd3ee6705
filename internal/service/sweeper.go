// sweeper.go — фоновая очистка элементов с истёкшим сроком жизни.
//
// Цикл: снимок Store → отбор expires_at < now → уничтожение каждого
// элемента → отчёт. Уничтожение одного элемента:
//  1. для файла удаляется артефакт (отсутствующий артефакт — WARN,
//     ошибка удаления — ERROR и учёт в SweepResult.Errors);
//  2. элемент атомарно удаляется из Store; если его уже удалил
//     другой участник (скачивание с самовосстановлением), уведомление
//     не отправляется;
//  3. в комнату рассылается уведомление Expired.
//
// Запускается как горутина с периодическим тикером (FLASH_SWEEP_INTERVAL).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
	"github.com/Yhyb24P/flashshare/internal/room"
	"github.com/Yhyb24P/flashshare/internal/storage/filestore"
	"github.com/Yhyb24P/flashshare/internal/storage/itemstore"
)

// Prometheus метрики очистки
var (
	// sweeperRunsTotal — количество циклов очистки.
	sweeperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashshare_sweeper_runs_total",
		Help: "Общее количество циклов очистки",
	})

	// sweeperItemsExpiredTotal — количество уничтоженных элементов.
	sweeperItemsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashshare_sweeper_items_expired_total",
		Help: "Общее количество элементов, уничтоженных очисткой",
	})

	// sweeperErrorsTotal — количество ошибок очистки (по элементам и по циклам).
	sweeperErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashshare_sweeper_errors_total",
		Help: "Общее количество ошибок очистки",
	})

	// sweeperDurationSeconds — длительность цикла очистки.
	sweeperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashshare_sweeper_duration_seconds",
		Help:    "Длительность цикла очистки в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Broadcaster — рассылка сообщений в комнату.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, env model.Envelope) room.BroadcastResult
}

// SweepResult — результат одного цикла очистки.
type SweepResult struct {
	// Scanned — количество элементов в снимке
	Scanned int
	// Expired — количество уничтоженных элементов (с отправленным уведомлением)
	Expired int
	// Skipped — элементы, удалённые другим участником между снимком и уничтожением
	Skipped int
	// Errors — количество ошибок при обработке элементов
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
	// Err — сбой цикла целиком (*model.SweepCycleError), nil при штатной работе
	Err error
}

// SweeperService — сервис фоновой очистки истёкших элементов.
type SweeperService struct {
	store       *itemstore.Store
	artifacts   *filestore.FileStore
	broadcaster Broadcaster
	interval    time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex // защита от параллельного запуска RunOnce
	stateMu sync.Mutex // защита running и cancel
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeperService создаёт сервис очистки.
// now — источник времени; nil означает time.Now.
func NewSweeperService(
	store *itemstore.Store,
	artifacts *filestore.FileStore,
	broadcaster Broadcaster,
	interval time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *SweeperService {
	if now == nil {
		now = time.Now
	}
	return &SweeperService{
		store:       store,
		artifacts:   artifacts,
		broadcaster: broadcaster,
		interval:    interval,
		now:         now,
		logger:      logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Повторный вызов без Stop игнорируется.
func (s *SweeperService) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.running {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})

	go s.run(sweepCtx, s.done)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс и дожидается завершения текущего цикла.
func (s *SweeperService) Stop() {
	s.stateMu.Lock()
	if !s.running {
		s.stateMu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.stateMu.Unlock()

	<-done
	s.logger.Info("Очистка остановлена")
}

// IsRunning сообщает, работает ли фоновый процесс.
func (s *SweeperService) IsRunning() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

// run — основной цикл фоновой горутины.
func (s *SweeperService) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	// Первый запуск — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
// Паника внутри цикла не покидает метод: она превращается в
// *model.SweepCycleError в SweepResult.Err.
func (s *SweeperService) RunOnce(ctx context.Context) (result *SweepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result = &SweepResult{}

	defer func() {
		if rec := recover(); rec != nil {
			cycleErr := &model.SweepCycleError{Cause: rec}
			result.Err = cycleErr
			result.Errors++
			s.logger.Error("Сбой цикла очистки",
				slog.String("error", cycleErr.Error()),
				slog.String("stack", string(debug.Stack())),
			)
		}
		result.Duration = time.Since(start)
		s.observe(result)
	}()

	now := s.now()
	snapshot := s.store.Snapshot()
	result.Scanned = len(snapshot)

	for _, item := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if !item.IsExpired(now) {
			continue
		}

		destroyed, err := s.destroy(ctx, item)
		if err != nil {
			result.Errors++
		}
		switch {
		case destroyed:
			result.Expired++
		case err == nil:
			result.Skipped++
		}
	}

	return result
}

// destroy уничтожает один элемент. Возвращает true, если элемент удалён
// этим вызовом и уведомление отправлено; ошибка удаления артефакта
// возвращается вместе с true. Паника перехватывается и возвращается
// как ошибка, чтобы не прерывать цикл.
func (s *SweeperService) destroy(ctx context.Context, item model.Item) (destroyed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("паника при уничтожении элемента %s: %v", item.ID, rec)
			s.logger.Error("Ошибка уничтожения элемента",
				slog.String("item_id", item.ID),
				slog.String("room_id", item.RoomID),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Артефакт удаляется раньше записи в Store. Ошибка удаления
	// учитывается, но элемент всё равно уничтожается.
	var artifactErr error
	if fp, ok := item.File(); ok {
		removed, delErr := s.artifacts.DeleteFile(fp.ArtifactPath)
		switch {
		case delErr != nil:
			artifactErr = delErr
			s.logger.Error("Ошибка удаления артефакта",
				slog.String("item_id", item.ID),
				slog.String("artifact", fp.ArtifactPath),
				slog.String("error", delErr.Error()),
			)
		case !removed:
			s.logger.Warn("Артефакт уже отсутствует на диске",
				slog.String("item_id", item.ID),
				slog.String("artifact", fp.ArtifactPath),
			)
		}
	}

	if _, ok := s.store.Remove(item.ID); !ok {
		s.logger.Debug("Элемент уже удалён",
			slog.String("item_id", item.ID),
		)
		return false, artifactErr
	}
	refreshItemGauges(s.store)

	res := s.broadcaster.Broadcast(ctx, item.RoomID, model.NewExpiredNotice(item.ID))

	s.logger.Debug("Элемент уничтожен",
		slog.String("item_id", item.ID),
		slog.String("room_id", item.RoomID),
		slog.String("kind", string(item.Kind())),
		slog.Int("notified", res.Delivered),
	)
	return true, artifactErr
}

// observe обновляет метрики и пишет итог цикла в лог.
func (s *SweeperService) observe(result *SweepResult) {
	sweeperRunsTotal.Inc()
	sweeperItemsExpiredTotal.Add(float64(result.Expired))
	sweeperErrorsTotal.Add(float64(result.Errors))
	sweeperDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelDebug
	if result.Expired > 0 || result.Errors > 0 {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "Очистка завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("expired", result.Expired),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
}
