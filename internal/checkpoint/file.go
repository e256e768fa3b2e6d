package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExt — расширение файлов состояния в каталоге FileStore.
const FileExt = ".state"

// FileStore хранит каждое состояние в отдельном файле.
//
// Ключ без разделителей пути превращается в <dir>/<key>.state; ключ, похожий
// на путь, используется как есть. Запись идёт во временный файл в том же
// каталоге, затем fsync и rename.
type FileStore struct {
	dir string
}

// NewFileStore создаёт хранилище в каталоге dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir возвращает каталог хранилища.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path возвращает путь к файлу состояния для ключа.
func (s *FileStore) Path(key string) string {
	if filepath.IsAbs(key) || strings.ContainsAny(key, `/\`) {
		return key
	}
	if filepath.Ext(key) == "" {
		key += FileExt
	}
	return filepath.Join(s.dir, key)
}

// Save реализует Store.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	if key == "" {
		return NewPersistenceError("save", key, ErrEmptyKey)
	}
	path := s.Path(key)
	if err := writeAtomic(path, data); err != nil {
		return NewPersistenceError("save", key, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load реализует Store.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, NewPersistenceError("load", key, ErrEmptyKey)
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, NewPersistenceError("load", key, ErrNotFound)
	}
	if err != nil {
		return nil, NewPersistenceError("load", key, err)
	}
	return data, nil
}

// Delete реализует Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return NewPersistenceError("delete", key, ErrEmptyKey)
	}
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewPersistenceError("delete", key, err)
	}
	return nil
}

// Exists реализует Store.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, NewPersistenceError("exists", key, ErrEmptyKey)
	}
	_, err := os.Stat(s.Path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, NewPersistenceError("exists", key, err)
	}
}
