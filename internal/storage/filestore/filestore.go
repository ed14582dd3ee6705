// Пакет filestore — операции с артефактами файлов на диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// открытие, проверку существования и удаление.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

// FileStore — управление артефактами в каталоге загрузок.
type FileStore struct {
	// dataDir — корневой каталог загрузок (FLASH_UPLOAD_DIR)
	dataDir string
}

// SaveResult — результат сохранения артефакта.
type SaveResult struct {
	// StoragePath — имя артефакта относительно dataDir
	StoragePath string
	// FullPath — абсолютный путь на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// New создаёт FileStore. Создаёт каталог, если он не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог загрузок %s: %w", dataDir, err)
	}

	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь каталога %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: abs}, nil
}

// SaveFile записывает данные из reader на диск с подсчётом SHA-256 на лету.
// Имя артефакта: {itemID}_{name}.{ext}, поэтому два элемента не могут
// делить один артефакт.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется, возвращается *model.ArtifactError.
func (fs *FileStore) SaveFile(reader io.Reader, originalFilename, itemID string) (*SaveResult, error) {
	storageName := generateStorageName(originalFilename, itemID)
	fullPath := filepath.Join(fs.dataDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, &model.ArtifactError{Op: "create", Path: storageName, Err: err}
	}

	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, &model.ArtifactError{Op: "write", Path: storageName, Err: err}
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, &model.ArtifactError{Op: "fsync", Path: storageName, Err: err}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, &model.ArtifactError{Op: "close", Path: storageName, Err: err}
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, &model.ArtifactError{Op: "rename", Path: storageName, Err: err}
	}

	return &SaveResult{
		StoragePath: storageName,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает артефакт для чтения. Вызывающий код обязан закрыть файл.
// Для отсутствующего артефакта ошибка удовлетворяет errors.Is(err, os.ErrNotExist).
func (fs *FileStore) Open(storagePath string) (*os.File, error) {
	f, err := os.Open(fs.FullPath(storagePath))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия артефакта %s: %w", storagePath, err)
	}
	return f, nil
}

// FullPath возвращает абсолютный путь к артефакту.
func (fs *FileStore) FullPath(storagePath string) string {
	return filepath.Join(fs.dataDir, filepath.Base(storagePath))
}

// DeleteFile удаляет артефакт с диска.
// removed == false и err == nil, если артефакт уже отсутствовал.
func (fs *FileStore) DeleteFile(storagePath string) (removed bool, err error) {
	err = os.Remove(fs.FullPath(storagePath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &model.ArtifactError{Op: "delete", Path: storagePath, Err: err}
}

// FileExists проверяет существование артефакта на диске.
func (fs *FileStore) FileExists(storagePath string) bool {
	_, err := os.Stat(fs.FullPath(storagePath))
	return err == nil
}

// DataDir возвращает путь к каталогу загрузок.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// generateStorageName генерирует имя артефакта.
// Формат: {itemID}_{name}.{ext}
// Пример: 3f1c…_report.pdf
func generateStorageName(originalFilename, itemID string) string {
	base := filepath.Base(originalFilename)
	ext := sanitizeExt(filepath.Ext(base))
	name := strings.TrimSuffix(base, filepath.Ext(base))

	name = sanitize(name)

	// Ограничиваем длину имени для предотвращения проблем с FS
	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}

	return fmt.Sprintf("%s_%s%s", itemID, name, ext)
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет буквы и цифры любых алфавитов, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt оставляет в расширении только латиницу и цифры.
func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	var result strings.Builder
	for _, r := range strings.TrimPrefix(ext, ".") {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 || result.Len() > 16 {
		return ""
	}
	return "." + result.String()
}
