// Пакет model — доменные модели flashshare.
// Item — единица эфемерного хранения (текст или файл) с фиксированным
// сроком жизни. Вид элемента определяется типом полезной нагрузки,
// поэтому недопустимые комбинации (текст с именем файла) невыразимы.
package model

import (
	"fmt"
	"time"
)

// Kind — вид сообщения.
type Kind string

const (
	// KindText — текстовое сообщение
	KindText Kind = "text"
	// KindFile — загруженный файл
	KindFile Kind = "file"
	// KindSystem — системное уведомление (не хранится)
	KindSystem Kind = "system"
	// KindExpired — уведомление об уничтожении элемента (не хранится)
	KindExpired Kind = "expired"
)

// Valid проверяет, что значение Kind входит в допустимый набор.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFile, KindSystem, KindExpired:
		return true
	default:
		return false
	}
}

// Payload — полезная нагрузка хранимого элемента.
// Реализуется только TextPayload и FilePayload.
type Payload interface {
	Kind() Kind
	isPayload()
}

// TextPayload — содержимое текстового сообщения.
type TextPayload struct {
	Content string
}

// Kind возвращает KindText.
func (TextPayload) Kind() Kind { return KindText }

func (TextPayload) isPayload() {}

// FilePayload — ссылка на файл, загруженный в комнату.
type FilePayload struct {
	// Filename — отображаемое имя файла
	Filename string
	// DownloadURL — публичный путь скачивания
	DownloadURL string
	// ArtifactPath — путь артефакта относительно каталога загрузок.
	// Не покидает сервер.
	ArtifactPath string
	// Size — размер артефакта в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// Kind возвращает KindFile.
func (FilePayload) Kind() Kind { return KindFile }

func (FilePayload) isPayload() {}

// Item — хранимый элемент комнаты. После помещения в Store не изменяется.
type Item struct {
	ID        string
	RoomID    string
	Sender    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Payload   Payload
}

// Kind возвращает вид элемента по типу полезной нагрузки.
func (it Item) Kind() Kind {
	if it.Payload == nil {
		return ""
	}
	return it.Payload.Kind()
}

// IsExpired сообщает, истёк ли срок жизни элемента.
// Предикат строгий: элемент с ExpiresAt == now ещё жив.
func (it Item) IsExpired(now time.Time) bool {
	return it.ExpiresAt.Before(now)
}

// File возвращает файловую нагрузку, если элемент — файл.
func (it Item) File() (FilePayload, bool) {
	fp, ok := it.Payload.(FilePayload)
	return fp, ok
}

// Text возвращает текстовую нагрузку, если элемент — текст.
func (it Item) Text() (TextPayload, bool) {
	tp, ok := it.Payload.(TextPayload)
	return tp, ok
}

// DownloadPath формирует публичный путь скачивания файла по его ID.
func DownloadPath(id string) string {
	return fmt.Sprintf("/api/download/%s", id)
}
