// Пакет service — бизнес-логика flashshare.
// lifecycle.go — создание элементов комнаты, выдача файлов на скачивание
// с самовосстановлением расхождения Store и диска.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yhyb24P/flashshare/internal/api/middleware"
	"github.com/Yhyb24P/flashshare/internal/domain/model"
	"github.com/Yhyb24P/flashshare/internal/storage/filestore"
	"github.com/Yhyb24P/flashshare/internal/storage/itemstore"
)

// TextParams — параметры текстового сообщения.
type TextParams struct {
	RoomID  string
	Sender  string
	Content string
}

// FileParams — параметры файла, артефакт которого уже записан на диск.
type FileParams struct {
	// ID — идентификатор элемента; пустой означает генерацию нового.
	// Задаётся, когда имя артефакта уже содержит ID.
	ID           string
	RoomID       string
	Sender       string
	ArtifactPath string
	Filename     string
	Size         int64
	Checksum     string
}

// UploadParams — параметры загрузки файла в комнату.
type UploadParams struct {
	RoomID   string
	Sender   string
	Filename string
	// Reader — поток данных файла
	Reader io.Reader
}

// Download — файл, готовый к отдаче клиенту.
type Download struct {
	ItemID   string
	Path     string
	Filename string
	Size     int64
	Checksum string
	// ModTime — время создания элемента, для заголовков кэширования
	ModTime time.Time
}

// Coordinator — координатор жизненного цикла элементов.
type Coordinator struct {
	store       *itemstore.Store
	artifacts   *filestore.FileStore
	broadcaster Broadcaster
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewCoordinator создаёт координатор.
// now — источник времени; nil означает time.Now.
func NewCoordinator(
	store *itemstore.Store,
	artifacts *filestore.FileStore,
	broadcaster Broadcaster,
	ttl time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:       store,
		artifacts:   artifacts,
		broadcaster: broadcaster,
		ttl:         ttl,
		now:         now,
		logger:      logger.With(slog.String("component", "lifecycle")),
	}
}

// CreateText создаёт текстовое сообщение, сохраняет его и рассылает в комнату.
func (c *Coordinator) CreateText(ctx context.Context, params TextParams) (model.Item, error) {
	if err := requireFields(map[string]string{
		"room_id": params.RoomID,
		"sender":  params.Sender,
		"content": params.Content,
	}); err != nil {
		middleware.OperationsTotal.WithLabelValues("create_text", "invalid").Inc()
		return model.Item{}, err
	}

	item := c.stamp(uuid.NewString(), params.RoomID, params.Sender, model.TextPayload{Content: params.Content})
	c.publish(ctx, item)

	middleware.OperationsTotal.WithLabelValues("create_text", "success").Inc()
	return item, nil
}

// CreateFile регистрирует файл с уже записанным артефактом и рассылает его в комнату.
func (c *Coordinator) CreateFile(ctx context.Context, params FileParams) (model.Item, error) {
	if err := requireFields(map[string]string{
		"room_id":       params.RoomID,
		"sender":        params.Sender,
		"filename":      params.Filename,
		"artifact_path": params.ArtifactPath,
	}); err != nil {
		middleware.OperationsTotal.WithLabelValues("create_file", "invalid").Inc()
		return model.Item{}, err
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	item := c.stamp(id, params.RoomID, params.Sender, model.FilePayload{
		Filename:     params.Filename,
		DownloadURL:  model.DownloadPath(id),
		ArtifactPath: params.ArtifactPath,
		Size:         params.Size,
		Checksum:     params.Checksum,
	})
	c.publish(ctx, item)

	middleware.OperationsTotal.WithLabelValues("create_file", "success").Inc()
	return item, nil
}

// Upload записывает артефакт на диск и регистрирует файл в комнате.
// При ошибке записи возвращается *model.ArtifactError, элемент не создаётся.
func (c *Coordinator) Upload(ctx context.Context, params UploadParams) (model.Item, error) {
	if err := requireFields(map[string]string{
		"room_id":  params.RoomID,
		"sender":   params.Sender,
		"filename": params.Filename,
	}); err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "invalid").Inc()
		return model.Item{}, err
	}
	if params.Reader == nil {
		middleware.OperationsTotal.WithLabelValues("upload", "invalid").Inc()
		return model.Item{}, fmt.Errorf("%w: отсутствует содержимое файла", model.ErrInvalidInput)
	}

	id := uuid.NewString()
	saved, err := c.artifacts.SaveFile(params.Reader, params.Filename, id)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		c.logger.Error("Ошибка записи артефакта",
			slog.String("item_id", id),
			slog.String("room_id", params.RoomID),
			slog.String("error", err.Error()),
		)
		return model.Item{}, err
	}

	item, err := c.CreateFile(ctx, FileParams{
		ID:           id,
		RoomID:       params.RoomID,
		Sender:       params.Sender,
		ArtifactPath: saved.StoragePath,
		Filename:     params.Filename,
		Size:         saved.Size,
		Checksum:     saved.Checksum,
	})
	if err != nil {
		c.discardArtifact(id, saved.StoragePath)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return model.Item{}, err
	}

	c.logger.Info("Файл загружен",
		slog.String("item_id", id),
		slog.String("room_id", params.RoomID),
		slog.String("filename", params.Filename),
		slog.Int64("size", saved.Size),
	)
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	return item, nil
}

// Retrieve находит файл для скачивания.
//
// Возвращает model.ErrNotFound, если элемент отсутствует, не является
// файлом или уже истёк. Если запись есть, а артефакта на диске нет,
// запись удаляется из Store (самовосстановление) и участники комнаты
// получают уведомление Expired.
func (c *Coordinator) Retrieve(ctx context.Context, id string) (*Download, error) {
	item, ok := c.store.Get(id)
	if !ok {
		return nil, model.ErrNotFound
	}
	fp, ok := item.File()
	if !ok {
		return nil, model.ErrNotFound
	}
	if item.IsExpired(c.now()) {
		return nil, model.ErrNotFound
	}

	if !c.artifacts.FileExists(fp.ArtifactPath) {
		c.heal(ctx, item)
		return nil, model.ErrNotFound
	}

	return &Download{
		ItemID:   item.ID,
		Path:     c.artifacts.FullPath(fp.ArtifactPath),
		Filename: fp.Filename,
		Size:     fp.Size,
		Checksum: fp.Checksum,
		ModTime:  item.CreatedAt,
	}, nil
}

// Open находит файл и открывает его артефакт для чтения.
// Вызывающий код обязан закрыть файл. Артефакт, исчезнувший между
// Retrieve и открытием, обрабатывается так же, как в Retrieve.
func (c *Coordinator) Open(ctx context.Context, id string) (*os.File, *Download, error) {
	dl, err := c.Retrieve(ctx, id)
	if err != nil {
		c.countDownload(err)
		return nil, nil, err
	}

	f, err := c.artifacts.Open(dl.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if item, ok := c.store.Get(id); ok {
				c.heal(ctx, item)
			}
			c.countDownload(model.ErrNotFound)
			return nil, nil, model.ErrNotFound
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return nil, nil, &model.ArtifactError{Op: "open", Path: dl.Path, Err: err}
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	return f, dl, nil
}

// Backlog возвращает живые элементы комнаты в порядке создания
// для клиента, только что вошедшего в комнату.
func (c *Coordinator) Backlog(roomID string) []model.Envelope {
	now := c.now()
	items := c.store.ListByRoom(roomID)

	out := make([]model.Envelope, 0, len(items))
	for _, item := range items {
		if item.IsExpired(now) {
			continue
		}
		out = append(out, item.Envelope())
	}
	return out
}

// SystemNotice рассылает системное уведомление в комнату.
// Уведомление не сохраняется.
func (c *Coordinator) SystemNotice(ctx context.Context, roomID, content string) {
	c.broadcaster.Broadcast(ctx, roomID, model.NewSystemNotice(roomID, content, c.now()))
}

// stamp строит элемент с текущим временем и сроком жизни.
func (c *Coordinator) stamp(id, roomID, sender string, payload model.Payload) model.Item {
	createdAt := c.now()
	return model.Item{
		ID:        id,
		RoomID:    roomID,
		Sender:    sender,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(c.ttl),
		Payload:   payload,
	}
}

// publish сохраняет элемент и рассылает его в комнату.
func (c *Coordinator) publish(ctx context.Context, item model.Item) {
	c.store.Put(item)
	refreshItemGauges(c.store)

	res := c.broadcaster.Broadcast(ctx, item.RoomID, item.Envelope())

	c.logger.Debug("Элемент создан",
		slog.String("item_id", item.ID),
		slog.String("room_id", item.RoomID),
		slog.String("kind", string(item.Kind())),
		slog.Int("delivered", res.Delivered),
	)
}

// heal удаляет запись, чей артефакт пропал с диска. Уведомление
// отправляет только вызов, который действительно удалил запись.
func (c *Coordinator) heal(ctx context.Context, item model.Item) {
	if _, removed := c.store.Remove(item.ID); !removed {
		return
	}
	refreshItemGauges(c.store)

	c.logger.Warn("Артефакт отсутствует на диске, запись удалена",
		slog.String("item_id", item.ID),
		slog.String("room_id", item.RoomID),
	)
	c.broadcaster.Broadcast(ctx, item.RoomID, model.NewExpiredNotice(item.ID))
}

// countDownload учитывает неуспешное скачивание в метриках.
func (c *Coordinator) countDownload(err error) {
	result := "error"
	if errors.Is(err, model.ErrNotFound) {
		result = "not_found"
	}
	middleware.OperationsTotal.WithLabelValues("download", result).Inc()
}

// discardArtifact удаляет артефакт, так и не ставший элементом.
func (c *Coordinator) discardArtifact(id, storagePath string) {
	if _, err := c.artifacts.DeleteFile(storagePath); err != nil {
		c.logger.Error("Ошибка удаления артефакта",
			slog.String("item_id", id),
			slog.String("artifact", storagePath),
			slog.String("error", err.Error()),
		)
	}
}

// requireFields проверяет, что все перечисленные поля непустые.
func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: не заданы поля %s", model.ErrInvalidInput, strings.Join(missing, ", "))
}

// refreshItemGauges обновляет gauge количества элементов по видам.
func refreshItemGauges(store *itemstore.Store) {
	middleware.ItemsCurrent.WithLabelValues(string(model.KindText)).Set(float64(store.CountByKind(model.KindText)))
	middleware.ItemsCurrent.WithLabelValues(string(model.KindFile)).Set(float64(store.CountByKind(model.KindFile)))
}
