package action

import (
	"context"
	"errors"
)

// Chain опрашивает реестры по порядку и возвращает первое найденное действие.
type Chain []Registry

// Resolve реализует Registry.
//
// Ошибки разрешения не прерывают опрос. Если действие не найдено нигде,
// возвращается наиболее точная ошибка: «функция не найдена» важнее «модуль не найден».
func (c Chain) Resolve(ctx context.Context, ref Ref) (Invokable, error) {
	var best error
	for _, r := range c {
		if r == nil {
			continue
		}
		inv, err := r.Resolve(ctx, ref)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, ErrActionResolution) {
			return nil, err
		}
		if best == nil || (errors.Is(best, ErrModuleNotFound) || errors.Is(best, ErrUnsupported)) && !errors.Is(err, ErrModuleNotFound) {
			best = err
		}
	}
	if best == nil {
		best = notFound(ref, ErrModuleNotFound)
	}
	return nil, best
}
