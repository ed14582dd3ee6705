package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yhyb24P/flashshare/internal/domain/model"
)

// TestNew_CreatesDirectory проверяет создание каталога загрузок.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("каталог не создан: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является каталогом")
	}
}

// TestSaveFile проверяет сохранение артефакта с подсчётом SHA-256.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")

	result, err := fs.SaveFile(bytes.NewReader(content), "report.pdf", "item-1")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	expectedHash := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(expectedHash[:]) {
		t.Errorf("checksum: получено %s", result.Checksum)
	}

	if result.StoragePath != "item-1_report.pdf" {
		t.Errorf("имя артефакта: ожидалось item-1_report.pdf, получено %s", result.StoragePath)
	}

	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое артефакта не совпадает")
	}

	// temp файл не должен оставаться
	if _, err := os.Stat(result.FullPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp файл не удалён")
	}
}

// failingReader возвращает ошибку после первого чтения.
type failingReader struct{ done bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("соединение оборвано")
	}
	r.done = true
	return copy(p, "partial"), nil
}

// TestSaveFile_ReaderError проверяет очистку при ошибке чтения.
func TestSaveFile_ReaderError(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir)

	_, err := fs.SaveFile(&failingReader{}, "broken.bin", "item-2")
	if err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	var artErr *model.ArtifactError
	if !errors.As(err, &artErr) {
		t.Fatalf("ожидалась *model.ArtifactError, получено %T", err)
	}
	if artErr.Op != "write" {
		t.Errorf("Op: ожидалось write, получено %s", artErr.Op)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("в каталоге остались файлы: %d", len(entries))
	}
}

// TestOpen_NotExist проверяет, что отсутствие артефакта различимо через errors.Is.
func TestOpen_NotExist(t *testing.T) {
	fs, _ := New(t.TempDir())

	_, err := fs.Open("missing.bin")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ожидалась os.ErrNotExist, получено %v", err)
	}
}

// TestOpen_ReadsContent проверяет чтение сохранённого артефакта.
func TestOpen_ReadsContent(t *testing.T) {
	fs, _ := New(t.TempDir())
	res, err := fs.SaveFile(strings.NewReader("abc"), "a.txt", "item-3")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	f, err := fs.Open(res.StoragePath)
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()

	data, _ := io.ReadAll(f)
	if string(data) != "abc" {
		t.Errorf("ожидалось abc, получено %q", data)
	}
}

// TestDeleteFile проверяет удаление и повторное удаление.
func TestDeleteFile(t *testing.T) {
	fs, _ := New(t.TempDir())
	res, _ := fs.SaveFile(strings.NewReader("x"), "x.txt", "item-4")

	removed, err := fs.DeleteFile(res.StoragePath)
	if err != nil || !removed {
		t.Fatalf("первое удаление: removed=%v err=%v", removed, err)
	}
	if fs.FileExists(res.StoragePath) {
		t.Error("артефакт остался на диске")
	}

	removed, err = fs.DeleteFile(res.StoragePath)
	if err != nil {
		t.Errorf("повторное удаление не должно возвращать ошибку: %v", err)
	}
	if removed {
		t.Error("повторное удаление должно вернуть removed=false")
	}
}

// TestFullPath_NoTraversal проверяет, что путь не выходит за каталог загрузок.
func TestFullPath_NoTraversal(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir)

	got := fs.FullPath("../../etc/passwd")
	if filepath.Dir(got) != dir {
		t.Errorf("путь вышел за каталог загрузок: %s", got)
	}
}

// TestGenerateStorageName проверяет формирование имени артефакта.
func TestGenerateStorageName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"обычное имя", "report.pdf", "id_report.pdf"},
		{"кириллица", "отчёт.docx", "id_отчёт.docx"},
		{"китайские символы", "报告.txt", "id_报告.txt"},
		{"пробелы и точки", "my file.v2.tar", "id_myfilev2.tar"},
		{"без расширения", "README", "id_README"},
		{"путь в имени", "../../etc/passwd", "id_passwd"},
		{"только спецсимволы", "!!!.png", "id_file.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := generateStorageName(tt.filename, "id"); got != tt.want {
				t.Errorf("ожидалось %q, получено %q", tt.want, got)
			}
		})
	}
}

// TestGenerateStorageName_LongName проверяет обрезку длинного имени.
func TestGenerateStorageName_LongName(t *testing.T) {
	long := strings.Repeat("я", 80) + ".txt"
	got := generateStorageName(long, "id")

	want := "id_" + strings.Repeat("я", 50) + ".txt"
	if got != want {
		t.Errorf("ожидалось %q, получено %q", want, got)
	}
}
