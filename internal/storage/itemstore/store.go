// Пакет itemstore — потокобезопасное in-memory хранилище эфемерных элементов.
//
// Store — единственный источник истины о живых элементах: id → model.Item.
// Мьютекс удерживается только на время операции с картой. Перебор для
// очистки выполняется по снимку (Snapshot), поэтому ввод-вывод и рассылка
// никогда не происходят под блокировкой.
//
// Не персистентный: при рестарте процесса все элементы теряются.
package itemstore

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

// Store — потокобезопасное хранилище элементов.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
type Store struct {
	mu     sync.RWMutex
	items  map[string]model.Item // item_id → item
	logger *slog.Logger
}

// New создаёт пустое хранилище.
func New(logger *slog.Logger) *Store {
	return &Store{
		items:  make(map[string]model.Item),
		logger: logger.With(slog.String("component", "item_store")),
	}
}

// Put добавляет элемент. Если элемент с таким ID уже существует,
// он будет перезаписан.
func (s *Store) Put(item model.Item) {
	s.mu.Lock()
	s.items[item.ID] = item
	s.mu.Unlock()

	s.logger.Debug("Элемент сохранён",
		slog.String("item_id", item.ID),
		slog.String("kind", string(item.Kind())),
		slog.String("room_id", item.RoomID),
	)
}

// Get возвращает элемент по ID.
// Второе значение false, если элемент не найден.
func (s *Store) Get(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	return item, ok
}

// Remove удаляет элемент и возвращает его.
// Удаление отсутствующего ID — не ошибка: возвращается false.
// Ровно один из конкурирующих вызовов для одного ID получает true.
func (s *Store) Remove(id string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return model.Item{}, false
	}
	delete(s.items, id)
	return item, true
}

// Snapshot возвращает копию всех элементов на момент вызова.
// Порядок не определён.
func (s *Store) Snapshot() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out
}

// ListByRoom возвращает элементы комнаты, отсортированные по времени
// создания (старые первые).
func (s *Store) ListByRoom(roomID string) []model.Item {
	s.mu.RLock()
	var out []model.Item
	for _, item := range s.items {
		if item.RoomID == roomID {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count возвращает общее количество элементов.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// CountByKind возвращает количество элементов указанного вида.
func (s *Store) CountByKind(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if item.Kind() == kind {
			count++
		}
	}
	return count
}
