package checkpoint

import "context"

// Store — хранилище сериализованных состояний по ключу экземпляра.
type Store interface {
	// Save атомарно записывает состояние.
	Save(ctx context.Context, key string, data []byte) error

	// Load читает состояние; отсутствие — ErrNotFound внутри PersistenceError.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete удаляет состояние; отсутствие ошибкой не считается.
	Delete(ctx context.Context, key string) error

	// Exists проверяет наличие состояния.
	Exists(ctx context.Context, key string) (bool, error)
}
