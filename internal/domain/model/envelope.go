// envelope.go — исходящий формат сообщений, рассылаемых в комнату.
package model

import "time"

// ExpiredNote — текст уведомления об уничтожении элемента.
const ExpiredNote = "Сообщение/файл истёк и уничтожен"

// Envelope — сообщение, отправляемое участникам комнаты.
// Поля соответствуют формату клиента: type, id, room_id, sender, content,
// filename, file_size, download_url, created_at, expires_at.
// Для KindExpired заполняются только type, id и content.
type Envelope struct {
	Type        Kind    `json:"type"`
	ID          string  `json:"id,omitempty"`
	RoomID      string  `json:"room_id,omitempty"`
	Sender      string  `json:"sender,omitempty"`
	Content     string  `json:"content,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	FileSize    int64   `json:"file_size,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
	CreatedAt   float64 `json:"created_at,omitempty"`
	ExpiresAt   float64 `json:"expires_at,omitempty"`
}

// Envelope преобразует хранимый элемент в исходящее сообщение.
// Путь артефакта в сообщение не попадает.
func (it Item) Envelope() Envelope {
	env := Envelope{
		Type:      it.Kind(),
		ID:        it.ID,
		RoomID:    it.RoomID,
		Sender:    it.Sender,
		CreatedAt: UnixSeconds(it.CreatedAt),
		ExpiresAt: UnixSeconds(it.ExpiresAt),
	}

	switch p := it.Payload.(type) {
	case TextPayload:
		env.Content = p.Content
	case FilePayload:
		env.Filename = p.Filename
		env.FileSize = p.Size
		env.DownloadURL = p.DownloadURL
	}

	return env
}

// NewExpiredNotice создаёт уведомление об уничтожении элемента.
func NewExpiredNotice(id string) Envelope {
	return Envelope{
		Type:    KindExpired,
		ID:      id,
		Content: ExpiredNote,
	}
}

// NewSystemNotice создаёт системное уведомление для комнаты.
func NewSystemNotice(roomID, content string, now time.Time) Envelope {
	return Envelope{
		Type:      KindSystem,
		RoomID:    roomID,
		Content:   content,
		CreatedAt: UnixSeconds(now),
	}
}

// UnixSeconds переводит время в секунды Unix с дробной частью.
func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
