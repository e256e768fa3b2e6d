package variables

import (
	"strings"
	"sync"
	"time"
)

// Store — таблица переменных одного экземпляра flow.
// Ключи хранятся в виде %name%; последняя запись побеждает.
type Store struct {
	mu    sync.RWMutex
	vars  map[string]any
	clock func() time.Time
	env   SystemEnv
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		vars:  make(map[string]any),
		clock: time.Now,
		env:   DefaultSystemEnv(),
	}
}

// Key нормализует имя переменной к виду %name%.
func Key(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, "%") && strings.HasSuffix(name, "%") {
		return name
	}
	return "%" + strings.Trim(name, "%") + "%"
}

// SetClock подменяет источник времени для системных переменных.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetSystemEnv подменяет источник сведений о пользователе и каталогах.
func (s *Store) SetSystemEnv(env SystemEnv) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
}

// Get возвращает значение переменной.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[Key(name)]
	return v, ok
}

// Has проверяет наличие переменной.
func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Set записывает значение переменной.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[Key(name)] = value
}

// Delete удаляет переменную.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, Key(name))
}

// Snapshot возвращает копию всех переменных.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Restore заменяет содержимое хранилища.
func (s *Store) Restore(vars map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]any, len(vars))
	for k, v := range vars {
		s.vars[Key(k)] = v
	}
}

// Len возвращает количество переменных.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}
