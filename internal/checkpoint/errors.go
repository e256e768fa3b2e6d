package checkpoint

import (
	"errors"
	"fmt"
)

// ErrPersistence — базовая ошибка сохранения и загрузки состояния.
var ErrPersistence = errors.New("checkpoint persistence failed")

// Причины ошибок хранилища.
var (
	// ErrNotFound — checkpoint с таким ключом не существует.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrEmptyKey — пустой ключ экземпляра.
	ErrEmptyKey = errors.New("checkpoint key is empty")

	// ErrUnknownCodec — неизвестное имя кодека.
	ErrUnknownCodec = errors.New("unknown checkpoint codec")

	// ErrUnsupportedVersion — версия схемы состояния не поддерживается.
	ErrUnsupportedVersion = errors.New("unsupported state version")
)

// PersistenceError — ошибка операции с checkpoint.
type PersistenceError struct {
	Op  string // save, load, delete, exists, encode, decode
	Key string
	Err error
}

// Error реализует интерфейс error.
func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap возвращает причину.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrPersistence).
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError создаёт ошибку операции с checkpoint.
func NewPersistenceError(op, key string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Key: key, Err: err}
}
